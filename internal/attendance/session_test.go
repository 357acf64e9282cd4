package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schooldesk/internal/school"
)

type fakeStore struct {
	mu       sync.Mutex
	subjects map[string]school.Subject
	students map[string][]school.Profile
	periods  map[string][]school.Period
	readErr  error
	listErr  error

	// subject reads listed in gates announce themselves on entered and
	// block until their gate is closed
	gates      map[string]chan struct{}
	entered    chan string
	subjectErr map[string]error

	upsertErr error
	started   chan struct{}
	release   chan struct{}
	writes    [][]school.AttendanceRecord
}

func (f *fakeStore) GetSubject(_ context.Context, id string) (school.Subject, error) {
	if gate, ok := f.gates[id]; ok {
		f.entered <- id
		<-gate
	}
	if f.readErr != nil {
		return school.Subject{}, f.readErr
	}
	if err := f.subjectErr[id]; err != nil {
		return school.Subject{}, err
	}
	s, ok := f.subjects[id]
	if !ok {
		return school.Subject{}, school.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) StudentsByClass(_ context.Context, classID string) ([]school.Profile, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]school.Profile(nil), f.students[classID]...), nil
}

func (f *fakeStore) PeriodsBySubject(_ context.Context, subjectID string) ([]school.Period, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]school.Period(nil), f.periods[subjectID]...), nil
}

func (f *fakeStore) UpsertAttendance(ctx context.Context, records []school.AttendanceRecord) error {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, append([]school.AttendanceRecord(nil), records...))
	return f.upsertErr
}

func (f *fakeStore) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

const teacherID = "t1"

func teacher() Marker { return Marker{ID: teacherID, Role: school.RoleTeacher} }

func newFake() *fakeStore {
	owner := teacherID
	other := "t2"
	return &fakeStore{
		subjects: map[string]school.Subject{
			"maths":   {ID: "maths", Name: "Maths", ClassID: "c1", TeacherID: &owner},
			"art":     {ID: "art", Name: "Art", ClassID: "c-empty", TeacherID: &owner},
			"history": {ID: "history", Name: "History", ClassID: "c1", TeacherID: &other},
		},
		students: map[string][]school.Profile{
			"c1": {{ID: "A", Role: school.RoleStudent}, {ID: "B", Role: school.RoleStudent}, {ID: "C", Role: school.RoleStudent}},
		},
		periods: map[string][]school.Period{
			"maths": {
				{ID: "P2", SubjectID: "maths", PeriodNumber: 2},
				{ID: "P1", SubjectID: "maths", PeriodNumber: 1},
			},
			"art": {{ID: "P9", SubjectID: "art", PeriodNumber: 4}},
		},
	}
}

func fixedClock() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }

func openSession(t *testing.T, store Store, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	return NewRegistry(store, time.Hour, opts...).Open(teacher())
}

func loaded(t *testing.T, store Store) *Session {
	t.Helper()
	s := openSession(t, store)
	require.NoError(t, s.SelectSubject(context.Background(), "maths"))
	return s
}

func TestSession_StartsEmptyOnToday(t *testing.T) {
	s := openSession(t, newFake())
	snap := s.Snapshot()
	assert.Equal(t, StateEmpty, snap.State)
	assert.Equal(t, school.Date("2024-03-01"), snap.Date)
	assert.Empty(t, snap.Statuses)
}

func TestSession_SubmitDefaultsToAbsent(t *testing.T) {
	store := newFake()
	s := loaded(t, store)

	require.NoError(t, s.SetStatus("A", school.StatusPresent))
	require.NoError(t, s.SetStatus("C", school.StatusLate))
	require.NoError(t, s.SelectPeriod("P1"))
	require.NoError(t, s.SelectDate("2024-03-01"))

	res, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Applied)

	require.Equal(t, 1, store.writeCount())
	got := store.writes[0]
	require.Len(t, got, 3)
	want := []struct {
		student string
		status  school.AttendanceStatus
	}{{"A", school.StatusPresent}, {"B", school.StatusAbsent}, {"C", school.StatusLate}}
	for i, w := range want {
		assert.Equal(t, w.student, got[i].StudentID)
		assert.Equal(t, w.status, got[i].Status)
		assert.Equal(t, "P1", got[i].PeriodID)
		assert.Equal(t, school.Date("2024-03-01"), got[i].Date)
		require.NotNil(t, got[i].MarkedBy)
		assert.Equal(t, teacherID, *got[i].MarkedBy)
	}
}

func TestSession_SubmitAfterSubmittedIsRejected(t *testing.T) {
	store := newFake()
	s := loaded(t, store)
	require.NoError(t, s.SetStatus("A", school.StatusPresent))
	require.NoError(t, s.SelectPeriod("P1"))

	_, err := s.Submit(context.Background())
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, StateSubmitted, snap.State)
	assert.Empty(t, snap.Statuses)
	assert.Equal(t, "P1", snap.PeriodID)

	// a late second click must not overwrite the stored marks
	_, err = s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrIncompleteSelection)
	require.Equal(t, 1, store.writeCount())
	assert.Equal(t, school.StatusPresent, store.writes[0][0].Status)
	assert.Equal(t, StateSubmitted, s.Snapshot().State)

	// re-marking reopens the batch
	require.NoError(t, s.SetStatus("B", school.StatusLate))
	assert.Equal(t, StateRosterLoaded, s.Snapshot().State)
	_, err = s.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, store.writeCount())
	assert.Equal(t, school.StatusLate, store.writes[1][1].Status)
}

func TestSession_SubmitNeedsSubjectAndPeriod(t *testing.T) {
	store := newFake()
	s := openSession(t, store)

	_, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrIncompleteSelection)

	require.NoError(t, s.SelectSubject(context.Background(), "maths"))
	_, err = s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrIncompleteSelection)
	assert.Zero(t, store.writeCount())
}

func TestSession_ConcurrentSubmitWritesOnce(t *testing.T) {
	store := newFake()
	s := loaded(t, store)
	require.NoError(t, s.SelectPeriod("P1"))

	store.started = make(chan struct{}, 1)
	store.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background())
		done <- err
	}()
	<-store.started

	assert.Equal(t, StateSubmitting, s.Snapshot().State)
	_, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmitInProgress)
	assert.ErrorIs(t, s.SetStatus("A", school.StatusLate), ErrSubmitInProgress)
	assert.ErrorIs(t, s.SelectPeriod("P2"), ErrSubmitInProgress)

	close(store.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, store.writeCount())
	assert.Equal(t, StateSubmitted, s.Snapshot().State)
}

func TestSession_FailedSubmitKeepsStatusesForRetry(t *testing.T) {
	store := newFake()
	store.upsertErr = errors.New("connection reset")
	s := loaded(t, store)
	require.NoError(t, s.SetStatus("B", school.StatusLate))
	require.NoError(t, s.SelectPeriod("P2"))

	_, err := s.Submit(context.Background())
	require.ErrorIs(t, err, ErrSubmissionFailed)

	snap := s.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, school.StatusLate, snap.Statuses["B"])
	assert.Contains(t, snap.Error, "connection reset")

	store.upsertErr = nil
	_, err = s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSubmitted, s.Snapshot().State)
	assert.Equal(t, school.StatusLate, store.writes[1][1].Status)
}

func TestSession_DateChangeDuringSubmitIsNotApplied(t *testing.T) {
	store := newFake()
	s := loaded(t, store)
	require.NoError(t, s.SetStatus("A", school.StatusPresent))
	require.NoError(t, s.SelectPeriod("P1"))

	store.started = make(chan struct{}, 1)
	store.release = make(chan struct{})
	done := make(chan SubmitResult, 1)
	go func() {
		res, err := s.Submit(context.Background())
		assert.NoError(t, err)
		done <- res
	}()
	<-store.started

	require.NoError(t, s.SelectDate("2024-03-02"))
	close(store.release)
	res := <-done

	assert.False(t, res.Applied)
	assert.Equal(t, school.Date("2024-03-01"), res.Records[0].Date)

	snap := s.Snapshot()
	assert.Equal(t, StateRosterLoaded, snap.State)
	assert.Equal(t, school.Date("2024-03-02"), snap.Date)
	assert.Equal(t, school.StatusPresent, snap.Statuses["A"], "stale ack must not clear statuses")
}

func TestSession_SubjectChangeDiscardsSelection(t *testing.T) {
	s := loaded(t, newFake())
	require.NoError(t, s.SetStatus("A", school.StatusPresent))
	require.NoError(t, s.SelectPeriod("P1"))

	require.NoError(t, s.SelectSubject(context.Background(), "art"))
	snap := s.Snapshot()
	assert.Equal(t, StateRosterLoaded, snap.State)
	assert.Empty(t, snap.PeriodID)
	assert.Empty(t, snap.Statuses)
	assert.Empty(t, snap.Roster)
	require.NotNil(t, snap.Subject)
	assert.Equal(t, "Art", snap.Subject.Name)
}

func TestSession_EmptyRosterSubmitsEmptyBatch(t *testing.T) {
	store := newFake()
	s := openSession(t, store)
	require.NoError(t, s.SelectSubject(context.Background(), "art"))
	require.NoError(t, s.SelectPeriod("P9"))

	res, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Records)
}

func TestSession_PeriodsOrderedByNumber(t *testing.T) {
	s := loaded(t, newFake())
	snap := s.Snapshot()
	require.Len(t, snap.Periods, 2)
	assert.Equal(t, "P1", snap.Periods[0].ID)
	assert.Equal(t, "P2", snap.Periods[1].ID)
}

func TestSession_SelectSubjectFailureKeepsPrevious(t *testing.T) {
	store := newFake()
	s := loaded(t, store)
	require.NoError(t, s.SetStatus("C", school.StatusLate))

	err := s.SelectSubject(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	snap := s.Snapshot()
	assert.Equal(t, StateRosterLoaded, snap.State)
	assert.Equal(t, "Maths", snap.Subject.Name)
	assert.Equal(t, school.StatusLate, snap.Statuses["C"])

	store.readErr = errors.New("timeout")
	assert.ErrorIs(t, s.SelectSubject(context.Background(), "maths"), ErrRetrieval)
}

func TestSession_OverlappingLoadFailureRestoresLoadedSubject(t *testing.T) {
	store := newFake()
	s := loaded(t, store)
	require.NoError(t, s.SetStatus("C", school.StatusLate))

	store.gates = map[string]chan struct{}{"art": make(chan struct{}), "history": make(chan struct{})}
	store.entered = make(chan string, 2)
	store.subjectErr = map[string]error{"history": errors.New("db down")}

	errA := make(chan error, 1)
	go func() { errA <- s.SelectSubject(context.Background(), "art") }()
	require.Equal(t, "art", <-store.entered)

	errB := make(chan error, 1)
	go func() { errB <- s.SelectSubject(context.Background(), "history") }()
	require.Equal(t, "history", <-store.entered)

	close(store.gates["art"])
	assert.ErrorIs(t, <-errA, ErrStaleResult)
	close(store.gates["history"])
	assert.ErrorIs(t, <-errB, ErrRetrieval)

	snap := s.Snapshot()
	assert.Equal(t, StateRosterLoaded, snap.State)
	require.NotNil(t, snap.Subject)
	assert.Equal(t, "Maths", snap.Subject.Name)
	assert.Len(t, snap.Roster, 3)
	assert.Equal(t, school.StatusLate, snap.Statuses["C"])

	require.NoError(t, s.SelectPeriod("P1"))
	require.NoError(t, s.SetStatus("A", school.StatusPresent))
	_, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, store.writeCount())
}

func TestSession_OverlappingLoadFailureFromEmpty(t *testing.T) {
	store := newFake()
	s := openSession(t, store)

	store.gates = map[string]chan struct{}{"art": make(chan struct{}), "history": make(chan struct{})}
	store.entered = make(chan string, 2)
	store.subjectErr = map[string]error{"history": errors.New("db down")}

	errA := make(chan error, 1)
	go func() { errA <- s.SelectSubject(context.Background(), "art") }()
	require.Equal(t, "art", <-store.entered)
	errB := make(chan error, 1)
	go func() { errB <- s.SelectSubject(context.Background(), "history") }()
	require.Equal(t, "history", <-store.entered)

	close(store.gates["art"])
	assert.ErrorIs(t, <-errA, ErrStaleResult)
	close(store.gates["history"])
	assert.ErrorIs(t, <-errB, ErrRetrieval)

	snap := s.Snapshot()
	assert.Equal(t, StateEmpty, snap.State)
	assert.Nil(t, snap.Subject)
}

func TestSession_TeacherCannotOpenOthersSubject(t *testing.T) {
	store := newFake()
	s := openSession(t, store)
	assert.ErrorIs(t, s.SelectSubject(context.Background(), "history"), ErrNotFound)

	admin := NewRegistry(store, time.Hour).Open(Marker{ID: "root", Role: school.RoleAdmin})
	assert.NoError(t, admin.SelectSubject(context.Background(), "history"))
}

func TestSession_RejectsUnknownSelections(t *testing.T) {
	s := loaded(t, newFake())
	assert.ErrorIs(t, s.SelectPeriod("P9"), ErrInvalidSelection)
	assert.ErrorIs(t, s.SetStatus("Z", school.StatusPresent), ErrInvalidSelection)
	assert.ErrorIs(t, s.SetStatus("A", "excused"), ErrInvalidSelection)
	assert.ErrorIs(t, s.SelectDate("2024-02-30"), ErrInvalidSelection)

	empty := openSession(t, newFake())
	assert.ErrorIs(t, empty.SetStatus("A", school.StatusPresent), ErrIncompleteSelection)
}

func TestSession_ResetReturnsToEmpty(t *testing.T) {
	s := loaded(t, newFake())
	require.NoError(t, s.SetStatus("A", school.StatusPresent))
	require.NoError(t, s.SelectPeriod("P1"))
	require.NoError(t, s.SelectDate("2024-03-04"))
	require.NoError(t, s.Reset())

	snap := s.Snapshot()
	assert.Equal(t, StateEmpty, snap.State)
	assert.Nil(t, snap.Subject)
	assert.Empty(t, snap.PeriodID)
	assert.Empty(t, snap.Statuses)
	assert.Empty(t, snap.Roster)
	assert.Equal(t, school.Date("2024-03-04"), snap.Date)

	_, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrIncompleteSelection)
}

type recordingNotifier struct {
	mu      sync.Mutex
	batches [][]school.AttendanceRecord
}

func (n *recordingNotifier) AttendanceSubmitted(_ context.Context, _ Marker, records []school.AttendanceRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, records)
}

func TestSession_NotifiesAfterWrite(t *testing.T) {
	store := newFake()
	n := &recordingNotifier{}
	s := openSession(t, store, WithNotifier(n))
	require.NoError(t, s.SelectSubject(context.Background(), "maths"))
	require.NoError(t, s.SelectPeriod("P2"))
	_, err := s.Submit(context.Background())
	require.NoError(t, err)

	require.Len(t, n.batches, 1)
	assert.Len(t, n.batches[0], 3)

	store.upsertErr = errors.New("down")
	require.NoError(t, s.SelectPeriod("P1"))
	_, err = s.Submit(context.Background())
	require.Error(t, err)
	assert.Len(t, n.batches, 1, "failed writes are not announced")
}
