package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"schooldesk/internal/auth"
	"schooldesk/internal/school"
)

// ---------- Auth ----------

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	auth.TokenPair
	ProfileID string      `json:"profile_id"`
	Role      school.Role `json:"role"`
}

// Login checks an email/password pair and issues tokens.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cred, err := h.Repo.CredentialByEmail(c.Request.Context(), req.Email)
	if errors.Is(err, school.ErrNotFound) {
		h.fail(c, auth.ErrBadCredentials)
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := auth.CheckPassword(cred.PasswordHash, req.Password); err != nil {
		h.fail(c, err)
		return
	}
	h.issue(c, cred.ProfileID, cred.Role)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh trades a refresh token for a new pair. Each refresh token works once.
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cl, err := auth.Parse(h.Auth, req.RefreshToken, auth.KindRefresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	ok, err := h.Repo.ConsumeRefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token already used or revoked"})
		return
	}
	// the role may have changed since the token was issued
	p, err := h.Repo.GetProfile(c.Request.Context(), cl.Subject)
	if errors.Is(err, school.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "profile no longer exists"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	h.issue(c, p.ID, p.Role)
}

func (h *Handler) issue(c *gin.Context, profileID string, role school.Role) {
	pair, err := auth.Issue(h.Auth, profileID, role)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Repo.SaveRefreshToken(c.Request.Context(), profileID, pair.RefreshToken, pair.RefreshExp); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{TokenPair: pair, ProfileID: profileID, Role: role})
}

// Me returns the caller's profile.
func (h *Handler) Me(c *gin.Context) {
	p, err := h.Repo.GetProfile(c.Request.Context(), claims(c).Subject)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Overview returns the role-specific dashboard.
func (h *Handler) Overview(c *gin.Context) {
	p, err := h.Repo.GetProfile(c.Request.Context(), claims(c).Subject)
	if err != nil {
		h.fail(c, err)
		return
	}
	ov, err := h.Dashboard.Build(c.Request.Context(), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ov)
}
