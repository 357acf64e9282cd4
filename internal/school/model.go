package school

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Role is the discriminant for what a profile may see and do.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}

// AttendanceStatus is the outcome recorded for one student in one period.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusAbsent  AttendanceStatus = "absent"
	StatusLate    AttendanceStatus = "late"
)

// Valid reports whether s is a supported status.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate:
		return true
	default:
		return false
	}
}

// DateLayout is the wire and storage format of a calendar day.
const DateLayout = "2006-01-02"

// Date is a calendar day without time of day, stored as YYYY-MM-DD.
type Date string

// ParseDate validates s as a calendar day.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q, use YYYY-MM-DD", s)
	}
	return Date(t.Format(DateLayout)), nil
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date { return Date(t.Format(DateLayout)) }

func (d Date) String() string { return string(d) }

// Value stores the day as text; Postgres casts it to DATE.
func (d Date) Value() (driver.Value, error) { return string(d), nil }

// Scan accepts what pgx and sqlite3 hand back for a DATE column.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = Date(v.Format(DateLayout))
	case string:
		*d = Date(trimDay(v))
	case []byte:
		*d = Date(trimDay(string(v)))
	case nil:
		*d = ""
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
	return nil
}

func trimDay(s string) string {
	if len(s) > len(DateLayout) {
		return s[:len(DateLayout)]
	}
	return s
}

// Profile is a user of any role. Students carry their class.
type Profile struct {
	ID        string    `db:"id" json:"id"`
	Role      Role      `db:"role" json:"role"`
	FullName  string    `db:"full_name" json:"full_name"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	ClassID   *string   `db:"class_id" json:"class_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Class is a grade/section group of students.
type Class struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Grade     int       `db:"grade" json:"grade"`
	Section   string    `db:"section" json:"section"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Subject is taught to one class, optionally by an assigned teacher.
type Subject struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	ClassID     string    `db:"class_id" json:"class_id"`
	TeacherID   *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	ClassName   string    `db:"class_name" json:"class_name"`
	TeacherName *string   `db:"teacher_name" json:"teacher_name,omitempty"`
}

// AssignedTo reports whether teacherID is the subject's teacher.
func (s Subject) AssignedTo(teacherID string) bool {
	return s.TeacherID != nil && *s.TeacherID == teacherID
}

// Period is a scheduled slot of a subject within a school day.
type Period struct {
	ID           string    `db:"id" json:"id"`
	ClassID      string    `db:"class_id" json:"class_id"`
	SubjectID    string    `db:"subject_id" json:"subject_id"`
	PeriodNumber int       `db:"period_number" json:"period_number"`
	DayOfWeek    int       `db:"day_of_week" json:"day_of_week"`
	StartTime    string    `db:"start_time" json:"start_time"`
	EndTime      string    `db:"end_time" json:"end_time"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// AttendanceRecord is keyed logically by (StudentID, PeriodID, Date).
type AttendanceRecord struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	PeriodID  string           `db:"period_id" json:"period_id"`
	Date      Date             `db:"date" json:"date"`
	Status    AttendanceStatus `db:"status" json:"status"`
	MarkedBy  *string          `db:"marked_by" json:"marked_by,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// AttendanceEntry is a record joined with its period and subject for display.
type AttendanceEntry struct {
	AttendanceRecord
	PeriodNumber int    `db:"period_number" json:"period_number"`
	SubjectID    string `db:"subject_id" json:"subject_id"`
	SubjectName  string `db:"subject_name" json:"subject_name"`
}

// DocumentCategory classifies uploaded documents.
type DocumentCategory string

const (
	DocumentTC          DocumentCategory = "tc"
	DocumentBonafide    DocumentCategory = "bonafide"
	DocumentAgreement   DocumentCategory = "agreement"
	DocumentNotes       DocumentCategory = "notes"
	DocumentMarksheet   DocumentCategory = "marksheet"
	DocumentAnswerSheet DocumentCategory = "answer_sheet"
	DocumentOther       DocumentCategory = "other"
)

// Valid reports whether c is a known category.
func (c DocumentCategory) Valid() bool {
	switch c {
	case DocumentTC, DocumentBonafide, DocumentAgreement, DocumentNotes,
		DocumentMarksheet, DocumentAnswerSheet, DocumentOther:
		return true
	default:
		return false
	}
}

// Document is a file stored externally and referenced by URL.
type Document struct {
	ID          string           `db:"id" json:"id"`
	Title       string           `db:"title" json:"title"`
	Description *string          `db:"description" json:"description,omitempty"`
	FileURL     string           `db:"file_url" json:"file_url"`
	FileType    string           `db:"file_type" json:"file_type"`
	Category    DocumentCategory `db:"document_category" json:"document_category"`
	UploadedBy  string           `db:"uploaded_by" json:"uploaded_by"`
	ClassID     *string          `db:"class_id" json:"class_id,omitempty"`
	SubjectID   *string          `db:"subject_id" json:"subject_id,omitempty"`
	IsPublic    bool             `db:"is_public" json:"is_public"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}

// Quiz is stored for listing; no taking or scoring happens here.
type Quiz struct {
	ID              string    `db:"id" json:"id"`
	Title           string    `db:"title" json:"title"`
	Description     *string   `db:"description" json:"description,omitempty"`
	SubjectID       string    `db:"subject_id" json:"subject_id"`
	CreatedBy       string    `db:"created_by" json:"created_by"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	TotalMarks      int       `db:"total_marks" json:"total_marks"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	StartDate       Date      `db:"start_date" json:"start_date"`
	EndDate         *Date     `db:"end_date" json:"end_date,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// QuizQuestion is a multiple-choice question of a quiz.
type QuizQuestion struct {
	ID            string    `db:"id" json:"id"`
	QuizID        string    `db:"quiz_id" json:"quiz_id"`
	QuestionText  string    `db:"question_text" json:"question_text"`
	OptionA       string    `db:"option_a" json:"option_a"`
	OptionB       string    `db:"option_b" json:"option_b"`
	OptionC       string    `db:"option_c" json:"option_c"`
	OptionD       string    `db:"option_d" json:"option_d"`
	CorrectOption string    `db:"correct_option" json:"-"`
	Marks         int       `db:"marks" json:"marks"`
	OrderNumber   int       `db:"order_number" json:"order_number"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// AchievementCategory classifies achievements.
type AchievementCategory string

const (
	AchievementAcademic AchievementCategory = "academic"
	AchievementSports   AchievementCategory = "sports"
	AchievementCultural AchievementCategory = "cultural"
	AchievementOther    AchievementCategory = "other"
)

// Valid reports whether c is a known category.
func (c AchievementCategory) Valid() bool {
	switch c {
	case AchievementAcademic, AchievementSports, AchievementCultural, AchievementOther:
		return true
	default:
		return false
	}
}

// Achievement is an award given to a student.
type Achievement struct {
	ID          string              `db:"id" json:"id"`
	StudentID   string              `db:"student_id" json:"student_id"`
	Title       string              `db:"title" json:"title"`
	Description *string             `db:"description" json:"description,omitempty"`
	Category    AchievementCategory `db:"category" json:"category"`
	Rank        *int                `db:"rank" json:"rank,omitempty"`
	AwardedDate Date                `db:"awarded_date" json:"awarded_date"`
	AwardedBy   *string             `db:"awarded_by" json:"awarded_by,omitempty"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	StudentName string              `db:"student_name" json:"student_name,omitempty"`
}

// Credential binds a login email to a profile.
type Credential struct {
	ProfileID    string `db:"profile_id"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	Role         Role   `db:"role"`
}
