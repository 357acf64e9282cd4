package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"schooldesk/internal/attendance"
	"schooldesk/internal/school"
	"schooldesk/internal/stats"
)

// ---------- Attendance sessions ----------

// OpenSession starts an empty marking session for the caller.
func (h *Handler) OpenSession(c *gin.Context) {
	s := h.Sessions.Open(marker(c))
	c.JSON(http.StatusCreated, s.Snapshot())
}

func (h *Handler) session(c *gin.Context) (*attendance.Session, bool) {
	s, err := h.Sessions.Get(c.Param("id"), marker(c))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) GetSession(c *gin.Context) {
	if s, ok := h.session(c); ok {
		c.JSON(http.StatusOK, s.Snapshot())
	}
}

// RecordedAttendance lists what is already stored for the session's
// period and date, so a reopened roll call can show earlier marks.
func (h *Handler) RecordedAttendance(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	snap := s.Snapshot()
	if snap.PeriodID == "" {
		h.fail(c, fmt.Errorf("%w: no period selected", attendance.ErrIncompleteSelection))
		return
	}
	records, err := h.Repo.AttendanceForPeriod(c.Request.Context(), snap.PeriodID, snap.Date)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"period_id": snap.PeriodID, "date": snap.Date, "records": records})
}

type subjectRequest struct {
	SubjectID string `json:"subject_id" binding:"required"`
}

func (h *Handler) SelectSubject(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req subjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.SelectSubject(c.Request.Context(), req.SubjectID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

type dateRequest struct {
	Date string `json:"date" binding:"required"`
}

func (h *Handler) SelectDate(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req dateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d, err := school.ParseDate(req.Date)
	if err != nil {
		h.fail(c, fmt.Errorf("%w: %w", attendance.ErrInvalidSelection, err))
		return
	}
	if err := s.SelectDate(d); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

type periodRequest struct {
	PeriodID string `json:"period_id" binding:"required"`
}

func (h *Handler) SelectPeriod(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req periodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.SelectPeriod(req.PeriodID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

type statusRequest struct {
	Status school.AttendanceStatus `json:"status" binding:"required"`
}

func (h *Handler) SetStatus(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.SetStatus(c.Param("student_id"), req.Status); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

// Submit writes the session's batch. The response carries the written
// records and the session as it is afterwards.
func (h *Handler) Submit(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	res, err := s.Submit(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.Log.Info("attendance submitted",
		zap.String("session_id", s.ID()),
		zap.String("marked_by", s.Marker().ID),
		zap.Int("records", len(res.Records)),
		zap.Bool("applied", res.Applied))
	c.JSON(http.StatusOK, gin.H{"result": res, "session": s.Snapshot()})
}

func (h *Handler) ResetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Reset(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *Handler) CloseSession(c *gin.Context) {
	if err := h.Sessions.Close(c.Param("id"), marker(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------- Attendance reads ----------

// MyAttendance lists the calling student's records with a summary.
func (h *Handler) MyAttendance(c *gin.Context) {
	entries, err := h.Repo.AttendanceByStudent(c.Request.Context(), claims(c).Subject)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": entries, "summary": summarize(entries)})
}

// StudentSummary serves a student's summary from the cache, computing and
// storing it on a miss. Cache failures fall back to the database.
func (h *Handler) StudentSummary(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if h.Cache != nil {
		sum, hit, err := h.Cache.Get(ctx, id)
		if err != nil {
			h.Log.Warn("summary cache read", zap.String("student_id", id), zap.Error(err))
		} else if hit {
			c.JSON(http.StatusOK, gin.H{"student_id": id, "summary": sum, "cached": true})
			return
		}
	}

	p, err := h.Repo.GetProfile(ctx, id)
	if err == nil && p.Role != school.RoleStudent {
		err = school.ErrNotFound
	}
	if err != nil {
		if errors.Is(err, school.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
			return
		}
		h.fail(c, err)
		return
	}
	entries, err := h.Repo.AttendanceByStudent(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	sum := summarize(entries)
	if h.Cache != nil {
		if err := h.Cache.Set(ctx, id, sum); err != nil {
			h.Log.Warn("summary cache write", zap.String("student_id", id), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"student_id": id, "summary": sum, "cached": false})
}

func summarize(entries []school.AttendanceEntry) stats.Summary {
	records := make([]school.AttendanceRecord, len(entries))
	for i, e := range entries {
		records[i] = e.AttendanceRecord
	}
	return stats.Summarize(records)
}
