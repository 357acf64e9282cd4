// Package dashboard assembles the landing view of each role.
package dashboard

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"schooldesk/internal/school"
	"schooldesk/internal/stats"
)

// Source is the read side of the school store.
type Source interface {
	AttendanceByStudent(ctx context.Context, studentID string) ([]school.AttendanceEntry, error)
	ListDocuments(ctx context.Context, f school.DocumentFilter) ([]school.Document, error)
	ListQuizzes(ctx context.Context, f school.QuizFilter) ([]school.Quiz, error)
	ListAchievements(ctx context.Context, studentID string) ([]school.Achievement, error)
	ListSubjects(ctx context.Context, teacherID string) ([]school.Subject, error)
	ListProfiles(ctx context.Context, role school.Role) ([]school.Profile, error)
	ListClasses(ctx context.Context) ([]school.Class, error)
}

// Overview carries exactly one of the role views, chosen by Role.
type Overview struct {
	Role    school.Role      `json:"role"`
	Student *StudentOverview `json:"student,omitempty"`
	Teacher *TeacherOverview `json:"teacher,omitempty"`
	Admin   *AdminOverview   `json:"admin,omitempty"`
}

type StudentOverview struct {
	Attendance   stats.Summary            `json:"attendance"`
	Recent       []school.AttendanceEntry `json:"recent_attendance"`
	Documents    []school.Document        `json:"documents"`
	Quizzes      []school.Quiz            `json:"quizzes"`
	Achievements []school.Achievement     `json:"achievements"`
}

type TeacherOverview struct {
	SubjectCount  int               `json:"subject_count"`
	DocumentCount int               `json:"document_count"`
	QuizCount     int               `json:"quiz_count"`
	Subjects      []school.Subject  `json:"subjects"`
	Documents     []school.Document `json:"documents"`
	Quizzes       []school.Quiz     `json:"quizzes"`
}

type AdminOverview struct {
	Students     int                  `json:"students"`
	Teachers     int                  `json:"teachers"`
	Admins       int                  `json:"admins"`
	Classes      int                  `json:"classes"`
	Documents    int                  `json:"documents"`
	Subjects     []school.Subject     `json:"subjects"`
	Achievements []school.Achievement `json:"achievements"`
}

// RecentLimit caps the attendance rows shown to a student.
const RecentLimit = 10

// Builder loads the overview of a profile.
type Builder struct {
	src Source
}

func NewBuilder(src Source) *Builder { return &Builder{src: src} }

// Build dispatches on the profile's role.
func (b *Builder) Build(ctx context.Context, p school.Profile) (Overview, error) {
	out := Overview{Role: p.Role}
	var err error
	switch p.Role {
	case school.RoleStudent:
		out.Student, err = b.student(ctx, p.ID)
	case school.RoleTeacher:
		out.Teacher, err = b.teacher(ctx, p.ID)
	case school.RoleAdmin:
		out.Admin, err = b.admin(ctx)
	default:
		err = fmt.Errorf("dashboard: unknown role %q", p.Role)
	}
	return out, err
}

func (b *Builder) student(ctx context.Context, id string) (*StudentOverview, error) {
	var (
		v       StudentOverview
		entries []school.AttendanceEntry
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		entries, err = b.src.AttendanceByStudent(ctx, id)
		return err
	})
	g.Go(func() (err error) {
		v.Documents, err = b.src.ListDocuments(ctx, school.DocumentFilter{PublicOnly: true})
		return err
	})
	g.Go(func() (err error) {
		v.Quizzes, err = b.src.ListQuizzes(ctx, school.QuizFilter{ActiveOnly: true})
		return err
	})
	g.Go(func() (err error) {
		v.Achievements, err = b.src.ListAchievements(ctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([]school.AttendanceRecord, len(entries))
	for i, e := range entries {
		records[i] = e.AttendanceRecord
	}
	v.Attendance = stats.Summarize(records)
	v.Recent = entries[:min(len(entries), RecentLimit)]
	return &v, nil
}

func (b *Builder) teacher(ctx context.Context, id string) (*TeacherOverview, error) {
	var v TeacherOverview
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		v.Subjects, err = b.src.ListSubjects(ctx, id)
		return err
	})
	g.Go(func() (err error) {
		v.Documents, err = b.src.ListDocuments(ctx, school.DocumentFilter{UploadedBy: id})
		return err
	})
	g.Go(func() (err error) {
		v.Quizzes, err = b.src.ListQuizzes(ctx, school.QuizFilter{CreatedBy: id})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	v.SubjectCount = len(v.Subjects)
	v.DocumentCount = len(v.Documents)
	v.QuizCount = len(v.Quizzes)
	return &v, nil
}

func (b *Builder) admin(ctx context.Context) (*AdminOverview, error) {
	var (
		v         AdminOverview
		profiles  []school.Profile
		classes   []school.Class
		documents []school.Document
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		profiles, err = b.src.ListProfiles(ctx, "")
		return err
	})
	g.Go(func() (err error) {
		classes, err = b.src.ListClasses(ctx)
		return err
	})
	g.Go(func() (err error) {
		documents, err = b.src.ListDocuments(ctx, school.DocumentFilter{})
		return err
	})
	g.Go(func() (err error) {
		v.Subjects, err = b.src.ListSubjects(ctx, "")
		return err
	})
	g.Go(func() (err error) {
		v.Achievements, err = b.src.ListAchievements(ctx, "")
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	v.Students = stats.CountByRole(profiles, school.RoleStudent)
	v.Teachers = stats.CountByRole(profiles, school.RoleTeacher)
	v.Admins = stats.CountByRole(profiles, school.RoleAdmin)
	v.Classes = len(classes)
	v.Documents = len(documents)
	return &v, nil
}
