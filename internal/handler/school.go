package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"schooldesk/internal/school"
)

// ---------- Profiles ----------

func (h *Handler) ListProfiles(c *gin.Context) {
	role := school.Role(c.Query("role"))
	if role != "" && !role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be student, teacher or admin"})
		return
	}
	profiles, err := h.Repo.ListProfiles(c.Request.Context(), role)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles})
}

// ---------- Classes ----------

func (h *Handler) ListClasses(c *gin.Context) {
	classes, err := h.Repo.ListClasses(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"classes": classes})
}

type classRequest struct {
	Name    string `json:"name" binding:"required"`
	Grade   int    `json:"grade" binding:"required,min=1,max=12"`
	Section string `json:"section" binding:"required"`
}

func (h *Handler) CreateClass(c *gin.Context) {
	var req classRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	class := school.Class{Name: req.Name, Grade: req.Grade, Section: req.Section}
	if err := h.Repo.CreateClass(c.Request.Context(), &class); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, class)
}

// ---------- Subjects & periods ----------

// ListSubjects returns the caller's subjects, or every subject for admins.
func (h *Handler) ListSubjects(c *gin.Context) {
	cl := claims(c)
	teacherID := ""
	if cl.Role == school.RoleTeacher {
		teacherID = cl.Subject
	}
	subjects, err := h.Repo.ListSubjects(c.Request.Context(), teacherID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subjects": subjects})
}

type subjectCreateRequest struct {
	Name      string  `json:"name" binding:"required"`
	ClassID   string  `json:"class_id" binding:"required"`
	TeacherID *string `json:"teacher_id"`
}

func (h *Handler) CreateSubject(c *gin.Context) {
	ctx := c.Request.Context()
	var req subjectCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if _, err := h.Repo.GetClass(ctx, req.ClassID); err != nil {
		h.failMissing(c, err, "class not found")
		return
	}
	if req.TeacherID != nil {
		p, err := h.Repo.GetProfile(ctx, *req.TeacherID)
		if err == nil && p.Role != school.RoleTeacher {
			err = school.ErrNotFound
		}
		if err != nil {
			h.failMissing(c, err, "teacher not found")
			return
		}
	}
	subject := school.Subject{Name: req.Name, ClassID: req.ClassID, TeacherID: req.TeacherID}
	if err := h.Repo.CreateSubject(ctx, &subject); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, subject)
}

// visibleSubject loads a subject a teacher owns; admins see all.
func (h *Handler) visibleSubject(c *gin.Context, id string) (school.Subject, bool) {
	subject, err := h.Repo.GetSubject(c.Request.Context(), id)
	cl := claims(c)
	if err == nil && cl.Role == school.RoleTeacher && !subject.AssignedTo(cl.Subject) {
		err = school.ErrNotFound
	}
	if err != nil {
		h.failMissing(c, err, "subject not found")
		return school.Subject{}, false
	}
	return subject, true
}

func (h *Handler) ListPeriods(c *gin.Context) {
	subject, ok := h.visibleSubject(c, c.Param("id"))
	if !ok {
		return
	}
	periods, err := h.Repo.PeriodsBySubject(c.Request.Context(), subject.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"periods": periods})
}

type periodCreateRequest struct {
	PeriodNumber int    `json:"period_number" binding:"required,min=1"`
	DayOfWeek    *int   `json:"day_of_week" binding:"required,min=0,max=6"`
	StartTime    string `json:"start_time" binding:"required,datetime=15:04"`
	EndTime      string `json:"end_time" binding:"required,datetime=15:04"`
}

func (h *Handler) CreatePeriod(c *gin.Context) {
	subject, ok := h.visibleSubject(c, c.Param("id"))
	if !ok {
		return
	}
	var req periodCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.EndTime <= req.StartTime {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_time must be after start_time"})
		return
	}
	p := school.Period{
		ClassID:      subject.ClassID,
		SubjectID:    subject.ID,
		PeriodNumber: req.PeriodNumber,
		DayOfWeek:    *req.DayOfWeek,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
	}
	if err := h.Repo.CreatePeriod(c.Request.Context(), &p); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// failMissing reports a not-found lookup with msg and anything else as an error.
func (h *Handler) failMissing(c *gin.Context, err error, msg string) {
	if errors.Is(err, school.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": msg})
		return
	}
	h.fail(c, err)
}
