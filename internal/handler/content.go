package handler

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"schooldesk/internal/school"
)

// ---------- Documents ----------

// ListDocuments: students see public documents, teachers their own uploads,
// admins everything.
func (h *Handler) ListDocuments(c *gin.Context) {
	var f school.DocumentFilter
	switch cl := claims(c); cl.Role {
	case school.RoleStudent:
		f.PublicOnly = true
	case school.RoleTeacher:
		f.UploadedBy = cl.Subject
	}
	docs, err := h.Repo.ListDocuments(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

type documentForm struct {
	Title       string                  `form:"title" binding:"required"`
	Description string                  `form:"description"`
	Category    school.DocumentCategory `form:"document_category" binding:"required"`
	ClassID     string                  `form:"class_id"`
	SubjectID   string                  `form:"subject_id"`
	IsPublic    bool                    `form:"is_public"`
}

// UploadDocument stores the multipart "file" field and records the document.
func (h *Handler) UploadDocument(c *gin.Context) {
	if h.Cloud == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "document storage not configured"})
		return
	}
	var form documentForm
	if err := c.ShouldBind(&form); err != nil {
		badRequest(c, err)
		return
	}
	if !form.Category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown document_category"})
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer file.Close()

	res, err := h.Cloud.Upload(c.Request.Context(), header.Filename, file)
	if err != nil {
		h.Log.Error("document upload failed", zap.String("filename", header.Filename), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "document upload failed"})
		return
	}

	doc := school.Document{
		Title:      form.Title,
		FileURL:    res.SecureURL,
		FileType:   strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), "."),
		Category:   form.Category,
		UploadedBy: claims(c).Subject,
		ClassID:    optional(form.ClassID),
		SubjectID:  optional(form.SubjectID),
		IsPublic:   form.IsPublic,
	}
	doc.Description = optional(form.Description)
	if err := h.Repo.CreateDocument(c.Request.Context(), &doc); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

// ---------- Quizzes ----------

// ListQuizzes: students see active quizzes, teachers their own, admins all.
func (h *Handler) ListQuizzes(c *gin.Context) {
	var f school.QuizFilter
	switch cl := claims(c); cl.Role {
	case school.RoleStudent:
		f.ActiveOnly = true
	case school.RoleTeacher:
		f.CreatedBy = cl.Subject
	}
	quizzes, err := h.Repo.ListQuizzes(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quizzes": quizzes})
}

type questionRequest struct {
	QuestionText  string `json:"question_text" binding:"required"`
	OptionA       string `json:"option_a" binding:"required"`
	OptionB       string `json:"option_b" binding:"required"`
	OptionC       string `json:"option_c" binding:"required"`
	OptionD       string `json:"option_d" binding:"required"`
	CorrectOption string `json:"correct_option" binding:"required,oneof=a b c d"`
	Marks         int    `json:"marks" binding:"min=0"`
}

type quizRequest struct {
	Title           string            `json:"title" binding:"required"`
	Description     *string           `json:"description"`
	SubjectID       string            `json:"subject_id" binding:"required"`
	DurationMinutes int               `json:"duration_minutes" binding:"required,min=1"`
	IsActive        bool              `json:"is_active"`
	StartDate       string            `json:"start_date" binding:"required"`
	EndDate         *string           `json:"end_date"`
	Questions       []questionRequest `json:"questions" binding:"dive"`
}

// CreateQuiz stores a quiz and its questions for one of the teacher's subjects.
func (h *Handler) CreateQuiz(c *gin.Context) {
	var req quizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	subject, ok := h.visibleSubject(c, req.SubjectID)
	if !ok {
		return
	}
	start, err := school.ParseDate(req.StartDate)
	if err != nil {
		badRequest(c, err)
		return
	}
	quiz := school.Quiz{
		Title:           req.Title,
		Description:     req.Description,
		SubjectID:       subject.ID,
		CreatedBy:       claims(c).Subject,
		DurationMinutes: req.DurationMinutes,
		IsActive:        req.IsActive,
		StartDate:       start,
	}
	if req.EndDate != nil {
		end, err := school.ParseDate(*req.EndDate)
		if err != nil {
			badRequest(c, err)
			return
		}
		if end < start {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end_date is before start_date"})
			return
		}
		quiz.EndDate = &end
	}

	questions := make([]school.QuizQuestion, len(req.Questions))
	for i, q := range req.Questions {
		marks := q.Marks
		if marks == 0 {
			marks = 1
		}
		questions[i] = school.QuizQuestion{
			QuestionText:  q.QuestionText,
			OptionA:       q.OptionA,
			OptionB:       q.OptionB,
			OptionC:       q.OptionC,
			OptionD:       q.OptionD,
			CorrectOption: q.CorrectOption,
			Marks:         marks,
			OrderNumber:   i + 1,
		}
		quiz.TotalMarks += marks
	}
	if err := h.Repo.CreateQuiz(c.Request.Context(), &quiz, questions); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"quiz": quiz, "questions": questions})
}

// ---------- Achievements ----------

// ListAchievements: students see their own, staff see everyone's.
func (h *Handler) ListAchievements(c *gin.Context) {
	studentID := ""
	if cl := claims(c); cl.Role == school.RoleStudent {
		studentID = cl.Subject
	}
	list, err := h.Repo.ListAchievements(c.Request.Context(), studentID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"achievements": list})
}

type achievementRequest struct {
	StudentID   string                     `json:"student_id" binding:"required"`
	Title       string                     `json:"title" binding:"required"`
	Description *string                    `json:"description"`
	Category    school.AchievementCategory `json:"category" binding:"required"`
	Rank        *int                       `json:"rank" binding:"omitempty,min=1"`
	AwardedDate string                     `json:"awarded_date" binding:"required"`
}

func (h *Handler) CreateAchievement(c *gin.Context) {
	var req achievementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !req.Category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
		return
	}
	awarded, err := school.ParseDate(req.AwardedDate)
	if err != nil {
		badRequest(c, err)
		return
	}
	student, err := h.Repo.GetProfile(c.Request.Context(), req.StudentID)
	if err == nil && student.Role != school.RoleStudent {
		err = school.ErrNotFound
	}
	if err != nil {
		h.failMissing(c, err, "student not found")
		return
	}
	awardedBy := claims(c).Subject
	a := school.Achievement{
		StudentID:   student.ID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Rank:        req.Rank,
		AwardedDate: awarded,
		AwardedBy:   &awardedBy,
		StudentName: student.FullName,
	}
	if err := h.Repo.CreateAchievement(c.Request.Context(), &a); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
