package school

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a lookup by key matches no row.
var ErrNotFound = errors.New("not found")

// Repository reads and writes school rows. Queries are written with '?'
// placeholders and rebound for the driver in use.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a repo.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) get(ctx context.Context, dest any, query string, args ...any) error {
	err := r.db.GetContext(ctx, dest, r.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *Repository) sel(ctx context.Context, dest any, query string, args ...any) error {
	return r.db.SelectContext(ctx, dest, r.db.Rebind(query), args...)
}

func (r *Repository) exec(ctx context.Context, query string, args ...any) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	return err
}

func newID() string { return uuid.NewString() }

func now() time.Time { return time.Now().UTC().Truncate(time.Second) }

// -------- Profiles --------

const profileColumns = `id, role, full_name, phone, class_id, created_at, updated_at`

// GetProfile returns a single profile by id.
func (r *Repository) GetProfile(ctx context.Context, id string) (Profile, error) {
	var p Profile
	err := r.get(ctx, &p, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	return p, errors.Wrapf(err, "get profile %s", id)
}

// ListProfiles returns profiles of one role, or all when role is empty.
func (r *Repository) ListProfiles(ctx context.Context, role Role) ([]Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles`
	args := []any{}
	if role != "" {
		query += ` WHERE role = ?`
		args = append(args, role)
	}
	query += ` ORDER BY full_name, id`
	out := []Profile{}
	err := r.sel(ctx, &out, query, args...)
	return out, errors.Wrap(err, "list profiles")
}

// StudentsByClass returns the students enrolled in a class.
func (r *Repository) StudentsByClass(ctx context.Context, classID string) ([]Profile, error) {
	out := []Profile{}
	err := r.sel(ctx, &out, `SELECT `+profileColumns+` FROM profiles
		WHERE class_id = ? AND role = ?
		ORDER BY full_name, id`, classID, RoleStudent)
	return out, errors.Wrapf(err, "students of class %s", classID)
}

// CreateUser inserts a profile and, when email is set, its login credential.
func (r *Repository) CreateUser(ctx context.Context, p *Profile, email, passwordHash string) error {
	if p.ID == "" {
		p.ID = newID()
	}
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin create user")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO profiles (id, role, full_name, phone, class_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.Role, p.FullName, p.Phone, p.ClassID, p.CreatedAt, p.UpdatedAt); err != nil {
		return errors.Wrap(err, "insert profile")
	}
	if email != "" {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO credentials (profile_id, email, password_hash) VALUES (?, ?, ?)`),
			p.ID, normalizeEmail(email), passwordHash); err != nil {
			return errors.Wrap(err, "insert credential")
		}
	}
	return errors.Wrap(tx.Commit(), "commit create user")
}

// CredentialByEmail returns the login credential for an email.
func (r *Repository) CredentialByEmail(ctx context.Context, email string) (Credential, error) {
	var c Credential
	err := r.get(ctx, &c, `
		SELECT c.profile_id, c.email, c.password_hash, p.role
		FROM credentials c JOIN profiles p ON p.id = c.profile_id
		WHERE c.email = ?`, normalizeEmail(email))
	return c, errors.Wrap(err, "credential by email")
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, profileID, token string, expiresAt time.Time) error {
	err := r.exec(ctx, `INSERT INTO refresh_tokens (token, profile_id, expires_at, revoked) VALUES (?, ?, ?, ?)`,
		token, profileID, expiresAt.UTC().Truncate(time.Second), false)
	return errors.Wrap(err, "save refresh token")
}

// ConsumeRefreshToken revokes an unrevoked, unexpired token and reports
// whether it was usable.
func (r *Repository) ConsumeRefreshToken(ctx context.Context, token string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE refresh_tokens SET revoked = ?
		WHERE token = ? AND revoked = ? AND expires_at > ?`),
		true, token, false, now())
	if err != nil {
		return false, errors.Wrap(err, "consume refresh token")
	}
	n, err := res.RowsAffected()
	return n == 1, errors.Wrap(err, "consume refresh token")
}

// -------- Classes, subjects, periods --------

// ListClasses returns every class ordered by grade and section.
func (r *Repository) ListClasses(ctx context.Context) ([]Class, error) {
	out := []Class{}
	err := r.sel(ctx, &out, `SELECT id, name, grade, section, created_at FROM classes ORDER BY grade, section, name`)
	return out, errors.Wrap(err, "list classes")
}

// GetClass returns a single class.
func (r *Repository) GetClass(ctx context.Context, id string) (Class, error) {
	var c Class
	err := r.get(ctx, &c, `SELECT id, name, grade, section, created_at FROM classes WHERE id = ?`, id)
	return c, errors.Wrapf(err, "get class %s", id)
}

// CreateClass inserts a class.
func (r *Repository) CreateClass(ctx context.Context, c *Class) error {
	c.ID, c.CreatedAt = newID(), now()
	err := r.exec(ctx, `INSERT INTO classes (id, name, grade, section, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Grade, c.Section, c.CreatedAt)
	return errors.Wrap(err, "create class")
}

const subjectSelect = `
	SELECT s.id, s.name, s.class_id, s.teacher_id, s.created_at,
		c.name AS class_name, t.full_name AS teacher_name
	FROM subjects s
	JOIN classes c ON c.id = s.class_id
	LEFT JOIN profiles t ON t.id = s.teacher_id`

// GetSubject returns a subject with its class and teacher names.
func (r *Repository) GetSubject(ctx context.Context, id string) (Subject, error) {
	var s Subject
	err := r.get(ctx, &s, subjectSelect+` WHERE s.id = ?`, id)
	return s, errors.Wrapf(err, "get subject %s", id)
}

// ListSubjects returns the subjects of one teacher, or all when teacherID is empty.
func (r *Repository) ListSubjects(ctx context.Context, teacherID string) ([]Subject, error) {
	query := subjectSelect
	args := []any{}
	if teacherID != "" {
		query += ` WHERE s.teacher_id = ?`
		args = append(args, teacherID)
	}
	query += ` ORDER BY c.grade, c.section, s.name`
	out := []Subject{}
	err := r.sel(ctx, &out, query, args...)
	return out, errors.Wrap(err, "list subjects")
}

// CreateSubject inserts a subject.
func (r *Repository) CreateSubject(ctx context.Context, s *Subject) error {
	s.ID, s.CreatedAt = newID(), now()
	err := r.exec(ctx, `INSERT INTO subjects (id, name, class_id, teacher_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.ClassID, s.TeacherID, s.CreatedAt)
	return errors.Wrap(err, "create subject")
}

// PeriodsBySubject returns a subject's periods ordered by period number.
func (r *Repository) PeriodsBySubject(ctx context.Context, subjectID string) ([]Period, error) {
	out := []Period{}
	err := r.sel(ctx, &out, `
		SELECT id, class_id, subject_id, period_number, day_of_week, start_time, end_time, created_at
		FROM periods WHERE subject_id = ?
		ORDER BY period_number, day_of_week, id`, subjectID)
	return out, errors.Wrapf(err, "periods of subject %s", subjectID)
}

// CreatePeriod inserts a period. ClassID must match the subject's class.
func (r *Repository) CreatePeriod(ctx context.Context, p *Period) error {
	p.ID, p.CreatedAt = newID(), now()
	err := r.exec(ctx, `
		INSERT INTO periods (id, class_id, subject_id, period_number, day_of_week, start_time, end_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ClassID, p.SubjectID, p.PeriodNumber, p.DayOfWeek, p.StartTime, p.EndTime, p.CreatedAt)
	return errors.Wrap(err, "create period")
}

// -------- Attendance --------

const upsertAttendanceSQL = `
	INSERT INTO attendance (id, student_id, period_id, date, status, marked_by, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (student_id, period_id, date) DO UPDATE SET
		status = excluded.status,
		marked_by = excluded.marked_by`

// UpsertAttendance writes the batch in one transaction. A record whose
// (student, period, date) already exists replaces the stored status.
func (r *Repository) UpsertAttendance(ctx context.Context, records []AttendanceRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin attendance upsert")
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(upsertAttendanceSQL))
	if err != nil {
		return errors.Wrap(err, "prepare attendance upsert")
	}
	defer stmt.Close()

	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			rec.ID = newID()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now()
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.StudentID, rec.PeriodID, rec.Date.String(),
			rec.Status, rec.MarkedBy, rec.CreatedAt); err != nil {
			return errors.Wrapf(err, "upsert attendance for student %s", rec.StudentID)
		}
	}
	return errors.Wrap(tx.Commit(), "commit attendance upsert")
}

// AttendanceByStudent returns a student's records with period and subject.
func (r *Repository) AttendanceByStudent(ctx context.Context, studentID string) ([]AttendanceEntry, error) {
	out := []AttendanceEntry{}
	err := r.sel(ctx, &out, `
		SELECT a.id, a.student_id, a.period_id, a.date, a.status, a.marked_by, a.created_at,
			p.period_number, p.subject_id, s.name AS subject_name
		FROM attendance a
		JOIN periods p ON p.id = a.period_id
		JOIN subjects s ON s.id = p.subject_id
		WHERE a.student_id = ?
		ORDER BY a.date DESC, p.period_number`, studentID)
	return out, errors.Wrapf(err, "attendance of student %s", studentID)
}

// AttendanceForPeriod returns the records of one period on one day.
func (r *Repository) AttendanceForPeriod(ctx context.Context, periodID string, date Date) ([]AttendanceRecord, error) {
	out := []AttendanceRecord{}
	err := r.sel(ctx, &out, `
		SELECT id, student_id, period_id, date, status, marked_by, created_at
		FROM attendance WHERE period_id = ? AND date = ?
		ORDER BY student_id`, periodID, date.String())
	return out, errors.Wrapf(err, "attendance of period %s", periodID)
}

// -------- Documents --------

// DocumentFilter scopes document listings; zero value lists everything.
type DocumentFilter struct {
	UploadedBy string
	PublicOnly bool
}

// ListDocuments returns documents newest first.
func (r *Repository) ListDocuments(ctx context.Context, f DocumentFilter) ([]Document, error) {
	query := `SELECT id, title, description, file_url, file_type, document_category, uploaded_by,
		class_id, subject_id, is_public, created_at FROM documents WHERE 1 = 1`
	args := []any{}
	if f.UploadedBy != "" {
		query += ` AND uploaded_by = ?`
		args = append(args, f.UploadedBy)
	}
	if f.PublicOnly {
		query += ` AND is_public = ?`
		args = append(args, true)
	}
	query += ` ORDER BY created_at DESC, id`
	out := []Document{}
	err := r.sel(ctx, &out, query, args...)
	return out, errors.Wrap(err, "list documents")
}

// CreateDocument inserts a document row.
func (r *Repository) CreateDocument(ctx context.Context, d *Document) error {
	d.ID, d.CreatedAt = newID(), now()
	err := r.exec(ctx, `
		INSERT INTO documents (id, title, description, file_url, file_type, document_category,
			uploaded_by, class_id, subject_id, is_public, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Title, d.Description, d.FileURL, d.FileType, d.Category,
		d.UploadedBy, d.ClassID, d.SubjectID, d.IsPublic, d.CreatedAt)
	return errors.Wrap(err, "create document")
}

// -------- Quizzes --------

// QuizFilter scopes quiz listings; zero value lists everything.
type QuizFilter struct {
	CreatedBy  string
	ActiveOnly bool
}

const quizColumns = `id, title, description, subject_id, created_by, duration_minutes, total_marks,
	is_active, start_date, end_date, created_at`

// ListQuizzes returns quizzes newest first.
func (r *Repository) ListQuizzes(ctx context.Context, f QuizFilter) ([]Quiz, error) {
	query := `SELECT ` + quizColumns + ` FROM quizzes WHERE 1 = 1`
	args := []any{}
	if f.CreatedBy != "" {
		query += ` AND created_by = ?`
		args = append(args, f.CreatedBy)
	}
	if f.ActiveOnly {
		query += ` AND is_active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY created_at DESC, id`
	out := []Quiz{}
	err := r.sel(ctx, &out, query, args...)
	return out, errors.Wrap(err, "list quizzes")
}

// GetQuiz returns a single quiz.
func (r *Repository) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	var q Quiz
	err := r.get(ctx, &q, `SELECT `+quizColumns+` FROM quizzes WHERE id = ?`, id)
	return q, errors.Wrapf(err, "get quiz %s", id)
}

// CreateQuiz inserts a quiz with its questions in one transaction.
func (r *Repository) CreateQuiz(ctx context.Context, q *Quiz, questions []QuizQuestion) error {
	q.ID, q.CreatedAt = newID(), now()
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin create quiz")
	}
	defer tx.Rollback()

	var endDate any
	if q.EndDate != nil {
		endDate = q.EndDate.String()
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO quizzes (id, title, description, subject_id, created_by, duration_minutes,
			total_marks, is_active, start_date, end_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		q.ID, q.Title, q.Description, q.SubjectID, q.CreatedBy, q.DurationMinutes,
		q.TotalMarks, q.IsActive, q.StartDate.String(), endDate, q.CreatedAt); err != nil {
		return errors.Wrap(err, "insert quiz")
	}
	for i := range questions {
		qq := &questions[i]
		qq.ID, qq.QuizID, qq.CreatedAt = newID(), q.ID, q.CreatedAt
		if qq.OrderNumber == 0 {
			qq.OrderNumber = i + 1
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO quiz_questions (id, quiz_id, question_text, option_a, option_b, option_c,
				option_d, correct_option, marks, order_number, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			qq.ID, qq.QuizID, qq.QuestionText, qq.OptionA, qq.OptionB, qq.OptionC,
			qq.OptionD, qq.CorrectOption, qq.Marks, qq.OrderNumber, qq.CreatedAt); err != nil {
			return errors.Wrapf(err, "insert question %d", i+1)
		}
	}
	return errors.Wrap(tx.Commit(), "commit create quiz")
}

// QuizQuestions returns a quiz's questions in display order.
func (r *Repository) QuizQuestions(ctx context.Context, quizID string) ([]QuizQuestion, error) {
	out := []QuizQuestion{}
	err := r.sel(ctx, &out, `
		SELECT id, quiz_id, question_text, option_a, option_b, option_c, option_d,
			correct_option, marks, order_number, created_at
		FROM quiz_questions WHERE quiz_id = ? ORDER BY order_number`, quizID)
	return out, errors.Wrapf(err, "questions of quiz %s", quizID)
}

// -------- Achievements --------

// ListAchievements returns one student's achievements, or all when studentID is empty.
func (r *Repository) ListAchievements(ctx context.Context, studentID string) ([]Achievement, error) {
	query := `
		SELECT a.id, a.student_id, a.title, a.description, a.category, a.rank, a.awarded_date,
			a.awarded_by, a.created_at, p.full_name AS student_name
		FROM achievements a JOIN profiles p ON p.id = a.student_id`
	args := []any{}
	if studentID != "" {
		query += ` WHERE a.student_id = ?`
		args = append(args, studentID)
	}
	query += ` ORDER BY a.awarded_date DESC, a.id`
	out := []Achievement{}
	err := r.sel(ctx, &out, query, args...)
	return out, errors.Wrap(err, "list achievements")
}

// CreateAchievement inserts an achievement.
func (r *Repository) CreateAchievement(ctx context.Context, a *Achievement) error {
	a.ID, a.CreatedAt = newID(), now()
	err := r.exec(ctx, `
		INSERT INTO achievements (id, student_id, title, description, category, rank,
			awarded_date, awarded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.StudentID, a.Title, a.Description, a.Category, a.Rank,
		a.AwardedDate.String(), a.AwardedBy, a.CreatedAt)
	return errors.Wrap(err, "create achievement")
}
