package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"schooldesk/internal/attendance"
	"schooldesk/internal/auth"
	"schooldesk/internal/cloudinary"
	"schooldesk/internal/dashboard"
	"schooldesk/internal/school"
	"schooldesk/internal/stats"
)

// Uploader stores a document file and returns where it lives.
type Uploader interface {
	Upload(ctx context.Context, filename string, data io.Reader) (*cloudinary.UploadResult, error)
}

// SummaryCache holds per-student attendance summaries.
type SummaryCache interface {
	Get(ctx context.Context, studentID string) (stats.Summary, bool, error)
	Set(ctx context.Context, studentID string, s stats.Summary) error
}

// Handler serves the JSON API.
type Handler struct {
	Repo      *school.Repository
	Sessions  *attendance.Registry
	Dashboard *dashboard.Builder
	Auth      auth.Settings
	Log       *zap.Logger

	// Optional collaborators; nil disables the feature.
	Cloud Uploader
	Cache SummaryCache

	// Checks are reported by /healthz; any false answer is a 503.
	Checks map[string]func(context.Context) bool
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")
	v1.POST("/auth/login", h.Login)
	v1.POST("/auth/refresh", h.Refresh)

	authed := v1.Group("", auth.Bearer(h.Auth))
	student := auth.RequireRole(school.RoleStudent)
	teacher := auth.RequireRole(school.RoleTeacher)
	staff := auth.RequireRole(school.RoleTeacher, school.RoleAdmin)
	admin := auth.RequireRole(school.RoleAdmin)

	authed.GET("/me", h.Me)
	authed.GET("/dashboard", h.Overview)

	authed.GET("/attendance/me", student, h.MyAttendance)
	sessions := authed.Group("/attendance/sessions", staff)
	sessions.POST("", h.OpenSession)
	sessions.GET("/:id", h.GetSession)
	sessions.GET("/:id/recorded", h.RecordedAttendance)
	sessions.PUT("/:id/subject", h.SelectSubject)
	sessions.PUT("/:id/date", h.SelectDate)
	sessions.PUT("/:id/period", h.SelectPeriod)
	sessions.PUT("/:id/statuses/:student_id", h.SetStatus)
	sessions.POST("/:id/submit", h.Submit)
	sessions.POST("/:id/reset", h.ResetSession)
	sessions.DELETE("/:id", h.CloseSession)
	authed.GET("/students/:id/attendance-summary", staff, h.StudentSummary)

	authed.GET("/profiles", admin, h.ListProfiles)
	authed.GET("/classes", h.ListClasses)
	authed.POST("/classes", admin, h.CreateClass)
	authed.GET("/subjects", staff, h.ListSubjects)
	authed.POST("/subjects", admin, h.CreateSubject)
	authed.GET("/subjects/:id/periods", staff, h.ListPeriods)
	authed.POST("/subjects/:id/periods", admin, h.CreatePeriod)

	authed.GET("/documents", h.ListDocuments)
	authed.POST("/documents", staff, h.UploadDocument)
	authed.GET("/quizzes", h.ListQuizzes)
	authed.POST("/quizzes", teacher, h.CreateQuiz)
	authed.GET("/achievements", h.ListAchievements)
	authed.POST("/achievements", admin, h.CreateAchievement)
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{}
	for name, check := range h.Checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
		}
	}
	if status == http.StatusOK {
		body["status"] = "ok"
	} else {
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}

// claims returns the caller's identity; Bearer has already run.
func claims(c *gin.Context) auth.Claims {
	cl, _ := auth.ClaimsFrom(c)
	return cl
}

func marker(c *gin.Context) attendance.Marker {
	cl := claims(c)
	return attendance.Marker{ID: cl.Subject, Role: cl.Role}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
