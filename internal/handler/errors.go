package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"schooldesk/internal/attendance"
	"schooldesk/internal/auth"
	"schooldesk/internal/school"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{attendance.ErrNotFound, http.StatusNotFound},
	{attendance.ErrSessionNotFound, http.StatusNotFound},
	{school.ErrNotFound, http.StatusNotFound},
	{attendance.ErrInvalidSelection, http.StatusUnprocessableEntity},
	{attendance.ErrIncompleteSelection, http.StatusConflict},
	{attendance.ErrSubmitInProgress, http.StatusConflict},
	{attendance.ErrStaleResult, http.StatusConflict},
	{attendance.ErrRetrieval, http.StatusServiceUnavailable},
	{attendance.ErrSubmissionFailed, http.StatusBadGateway},
	{auth.ErrBadCredentials, http.StatusUnauthorized},
}

// fail writes err as JSON. Client errors carry the full message; server
// errors only name the failing step and are logged with their cause.
func (h *Handler) fail(c *gin.Context, err error) {
	status, msg := http.StatusInternalServerError, "internal error"
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			status, msg = e.status, err.Error()
			if status >= 500 {
				msg = e.err.Error()
			}
			break
		}
	}
	if status >= 500 {
		h.Log.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": msg})
}
