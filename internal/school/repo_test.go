package school_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schooldesk/internal/school"
	"schooldesk/internal/store"
)

func newRepo(t *testing.T) *school.Repository {
	t.Helper()
	ctx := context.Background()
	db, err := store.NewDB(ctx, "sqlite3", filepath.Join(t.TempDir(), "school.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx))
	return school.NewRepository(db.Client)
}

type fixture struct {
	class   school.Class
	teacher school.Profile
	student []school.Profile
	subject school.Subject
	periods []school.Period
}

func seed(t *testing.T, repo *school.Repository) fixture {
	t.Helper()
	ctx := context.Background()
	var f fixture

	f.class = school.Class{Name: "Grade 7 A", Grade: 7, Section: "A"}
	require.NoError(t, repo.CreateClass(ctx, &f.class))
	other := school.Class{Name: "Grade 8 B", Grade: 8, Section: "B"}
	require.NoError(t, repo.CreateClass(ctx, &other))

	f.teacher = school.Profile{Role: school.RoleTeacher, FullName: "Tara Teacher"}
	require.NoError(t, repo.CreateUser(ctx, &f.teacher, "tara@school.test", "hash"))

	for _, name := range []string{"Cleo", "Abel", "Bea"} {
		p := school.Profile{Role: school.RoleStudent, FullName: name, ClassID: &f.class.ID}
		require.NoError(t, repo.CreateUser(ctx, &p, "", ""))
		f.student = append(f.student, p)
	}
	outsider := school.Profile{Role: school.RoleStudent, FullName: "Zed", ClassID: &other.ID}
	require.NoError(t, repo.CreateUser(ctx, &outsider, "", ""))

	f.subject = school.Subject{Name: "Maths", ClassID: f.class.ID, TeacherID: &f.teacher.ID}
	require.NoError(t, repo.CreateSubject(ctx, &f.subject))

	for _, n := range []int{3, 1, 2} {
		p := school.Period{ClassID: f.class.ID, SubjectID: f.subject.ID, PeriodNumber: n, DayOfWeek: 1, StartTime: "08:00", EndTime: "08:45"}
		require.NoError(t, repo.CreatePeriod(ctx, &p))
		f.periods = append(f.periods, p)
	}
	return f
}

func TestStudentsByClass_OnlyEnrolledStudents(t *testing.T) {
	repo := newRepo(t)
	f := seed(t, repo)

	got, err := repo.StudentsByClass(context.Background(), f.class.ID)
	require.NoError(t, err)

	names := []string{}
	for _, p := range got {
		names = append(names, p.FullName)
		assert.Equal(t, school.RoleStudent, p.Role)
	}
	assert.Equal(t, []string{"Abel", "Bea", "Cleo"}, names)

	none, err := repo.StudentsByClass(context.Background(), "no-such-class")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetSubject(t *testing.T) {
	repo := newRepo(t)
	f := seed(t, repo)

	got, err := repo.GetSubject(context.Background(), f.subject.ID)
	require.NoError(t, err)
	assert.Equal(t, "Maths", got.Name)
	assert.Equal(t, "Grade 7 A", got.ClassName)
	require.NotNil(t, got.TeacherName)
	assert.Equal(t, "Tara Teacher", *got.TeacherName)
	assert.True(t, got.AssignedTo(f.teacher.ID))

	_, err = repo.GetSubject(context.Background(), "missing")
	assert.ErrorIs(t, err, school.ErrNotFound)
}

func TestPeriodsBySubject_OrderedByNumber(t *testing.T) {
	repo := newRepo(t)
	f := seed(t, repo)

	got, err := repo.PeriodsBySubject(context.Background(), f.subject.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, p := range got {
		assert.Equal(t, i+1, p.PeriodNumber)
	}
}

func TestUpsertAttendance_ReplacesSameKey(t *testing.T) {
	repo := newRepo(t)
	f := seed(t, repo)
	ctx := context.Background()
	day := school.Date("2024-03-01")
	period := f.periods[0]

	first := []school.AttendanceRecord{
		{StudentID: f.student[0].ID, PeriodID: period.ID, Date: day, Status: school.StatusPresent, MarkedBy: &f.teacher.ID},
		{StudentID: f.student[1].ID, PeriodID: period.ID, Date: day, Status: school.StatusAbsent, MarkedBy: &f.teacher.ID},
	}
	require.NoError(t, repo.UpsertAttendance(ctx, first))

	second := []school.AttendanceRecord{
		{StudentID: f.student[0].ID, PeriodID: period.ID, Date: day, Status: school.StatusLate, MarkedBy: &f.teacher.ID},
		{StudentID: f.student[1].ID, PeriodID: period.ID, Date: day, Status: school.StatusAbsent, MarkedBy: &f.teacher.ID},
	}
	require.NoError(t, repo.UpsertAttendance(ctx, second))

	got, err := repo.AttendanceForPeriod(ctx, period.ID, day)
	require.NoError(t, err)
	require.Len(t, got, 2)

	byStudent := map[string]school.AttendanceStatus{}
	for _, r := range got {
		byStudent[r.StudentID] = r.Status
		assert.Equal(t, day, r.Date)
	}
	assert.Equal(t, school.StatusLate, byStudent[f.student[0].ID])
	assert.Equal(t, school.StatusAbsent, byStudent[f.student[1].ID])

	other, err := repo.AttendanceForPeriod(ctx, period.ID, school.Date("2024-03-02"))
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestAttendanceByStudent_JoinsSubject(t *testing.T) {
	repo := newRepo(t)
	f := seed(t, repo)
	ctx := context.Background()

	require.NoError(t, repo.UpsertAttendance(ctx, []school.AttendanceRecord{
		{StudentID: f.student[0].ID, PeriodID: f.periods[0].ID, Date: "2024-03-01", Status: school.StatusPresent},
		{StudentID: f.student[0].ID, PeriodID: f.periods[1].ID, Date: "2024-03-02", Status: school.StatusAbsent},
	}))

	got, err := repo.AttendanceByStudent(ctx, f.student[0].ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, school.Date("2024-03-02"), got[0].Date)
	assert.Equal(t, "Maths", got[0].SubjectName)
	assert.Equal(t, f.periods[1].PeriodNumber, got[0].PeriodNumber)
}

func TestCredentialByEmail(t *testing.T) {
	repo := newRepo(t)
	f := seed(t, repo)

	c, err := repo.CredentialByEmail(context.Background(), "tara@school.test")
	require.NoError(t, err)
	assert.Equal(t, f.teacher.ID, c.ProfileID)
	assert.Equal(t, school.RoleTeacher, c.Role)

	_, err = repo.CredentialByEmail(context.Background(), "nobody@school.test")
	assert.ErrorIs(t, err, school.ErrNotFound)
}

func TestConsumeRefreshToken_SingleUse(t *testing.T) {
	repo := newRepo(t)
	f := seed(t, repo)
	ctx := context.Background()

	require.NoError(t, repo.SaveRefreshToken(ctx, f.teacher.ID, "tok-1", time.Now().Add(time.Hour)))
	require.NoError(t, repo.SaveRefreshToken(ctx, f.teacher.ID, "tok-old", time.Now().Add(-time.Hour)))

	ok, err := repo.ConsumeRefreshToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ConsumeRefreshToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.False(t, ok, "a consumed token cannot be reused")

	ok, err = repo.ConsumeRefreshToken(ctx, "tok-old")
	require.NoError(t, err)
	assert.False(t, ok, "an expired token is rejected")
}

func TestListDocuments_Filters(t *testing.T) {
	repo := newRepo(t)
	f := seed(t, repo)
	ctx := context.Background()

	public := school.Document{Title: "Syllabus", FileURL: "https://cdn/s.pdf", FileType: "pdf", Category: school.DocumentNotes, UploadedBy: f.teacher.ID, IsPublic: true}
	private := school.Document{Title: "Marks", FileURL: "https://cdn/m.pdf", FileType: "pdf", Category: school.DocumentMarksheet, UploadedBy: f.teacher.ID}
	require.NoError(t, repo.CreateDocument(ctx, &public))
	require.NoError(t, repo.CreateDocument(ctx, &private))

	all, err := repo.ListDocuments(ctx, school.DocumentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pub, err := repo.ListDocuments(ctx, school.DocumentFilter{PublicOnly: true})
	require.NoError(t, err)
	require.Len(t, pub, 1)
	assert.Equal(t, "Syllabus", pub[0].Title)

	mine, err := repo.ListDocuments(ctx, school.DocumentFilter{UploadedBy: f.student[0].ID})
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestCreateQuiz_WithQuestions(t *testing.T) {
	repo := newRepo(t)
	f := seed(t, repo)
	ctx := context.Background()

	q := school.Quiz{Title: "Fractions", SubjectID: f.subject.ID, CreatedBy: f.teacher.ID, DurationMinutes: 20, TotalMarks: 2, IsActive: true, StartDate: "2024-03-04"}
	questions := []school.QuizQuestion{
		{QuestionText: "1/2 + 1/4?", OptionA: "3/4", OptionB: "2/6", OptionC: "1", OptionD: "1/8", CorrectOption: "a", Marks: 1},
		{QuestionText: "1/3 of 9?", OptionA: "2", OptionB: "3", OptionC: "6", OptionD: "9", CorrectOption: "b", Marks: 1},
	}
	require.NoError(t, repo.CreateQuiz(ctx, &q, questions))

	active, err := repo.ListQuizzes(ctx, school.QuizFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, school.Date("2024-03-04"), active[0].StartDate)
	assert.Nil(t, active[0].EndDate)

	got, err := repo.QuizQuestions(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].OrderNumber)
	assert.Equal(t, "b", got[1].CorrectOption)
}

func TestAchievements(t *testing.T) {
	repo := newRepo(t)
	f := seed(t, repo)
	ctx := context.Background()

	rank := 1
	a := school.Achievement{StudentID: f.student[0].ID, Title: "Chess", Category: school.AchievementOther, Rank: &rank, AwardedDate: "2024-02-10"}
	require.NoError(t, repo.CreateAchievement(ctx, &a))

	got, err := repo.ListAchievements(ctx, f.student[0].ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Cleo", got[0].StudentName)
	require.NotNil(t, got[0].Rank)
	assert.Equal(t, 1, *got[0].Rank)

	none, err := repo.ListAchievements(ctx, f.student[1].ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}
