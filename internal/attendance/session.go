package attendance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"schooldesk/internal/school"
)

// State is where a session sits in the marking workflow.
type State string

const (
	StateEmpty           State = "empty"
	StateSubjectSelected State = "subject_selected"
	StateRosterLoaded    State = "roster_loaded"
	StateSubmitting      State = "submitting"
	StateSubmitted       State = "submitted"
	StateError           State = "error"
)

// Notifier is told about every batch that reached the store.
type Notifier interface {
	AttendanceSubmitted(ctx context.Context, m Marker, records []school.AttendanceRecord)
}

// Snapshot is a consistent copy of a session for display.
type Snapshot struct {
	ID         string                             `json:"id"`
	State      State                              `json:"state"`
	Generation uint64                             `json:"generation"`
	Subject    *school.Subject                    `json:"subject,omitempty"`
	Date       school.Date                        `json:"date"`
	PeriodID   string                             `json:"period_id,omitempty"`
	Roster     []school.Profile                   `json:"roster"`
	Periods    []school.Period                    `json:"periods"`
	Statuses   map[string]school.AttendanceStatus `json:"statuses"`
	Error      string                             `json:"error,omitempty"`
}

// SubmitResult describes a finished write. Applied is false when the
// session moved to another subject or date while the write was in flight;
// the rows were still written but the session kept its new selection.
type SubmitResult struct {
	Records []school.AttendanceRecord `json:"records"`
	Applied bool                      `json:"applied"`
}

// Session is one teacher's attendance-taking workflow. All methods are
// safe for concurrent use; store calls happen outside the lock.
type Session struct {
	id       string
	marker   Marker
	resolver *Resolver
	writer   Writer
	notifier Notifier
	now      func() time.Time

	mu         sync.Mutex
	state      State
	generation uint64 // bumped on subject or date change
	loads      uint64 // bumped on subject change only
	subject    *school.Subject
	date       school.Date
	periodID   string
	roster     []school.Profile
	periods    []school.Period
	statuses   map[string]school.AttendanceStatus
	lastErr    error
	lastActive time.Time
}

func newSession(id string, m Marker, resolver *Resolver, writer Writer, notifier Notifier, now func() time.Time) *Session {
	return &Session{
		id:         id,
		marker:     m,
		resolver:   resolver,
		writer:     writer,
		notifier:   notifier,
		now:        now,
		state:      StateEmpty,
		date:       school.DateOf(now()),
		statuses:   map[string]school.AttendanceStatus{},
		lastActive: now(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Marker returns who owns the session.
func (s *Session) Marker() Marker { return s.marker }

type selection struct {
	state    State
	subject  *school.Subject
	periodID string
	roster   []school.Profile
	periods  []school.Period
	statuses map[string]school.AttendanceStatus
}

// SelectSubject loads roster and periods for the subject. Any earlier
// period choice and status map are discarded. On failure the previous
// selection is kept and the error is returned.
func (s *Session) SelectSubject(ctx context.Context, subjectID string) error {
	s.mu.Lock()
	prev := selection{
		state:    s.state,
		subject:  s.subject,
		periodID: s.periodID,
		roster:   s.roster,
		periods:  s.periods,
		statuses: s.statuses,
	}
	s.generation++
	s.loads++
	load := s.loads
	s.state = StateSubjectSelected
	s.touch()
	s.mu.Unlock()

	res, err := s.resolver.Resolve(ctx, s.marker, subjectID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if load != s.loads {
		return fmt.Errorf("%w: subject %s", ErrStaleResult, subjectID)
	}
	if err != nil {
		s.restore(prev)
		return err
	}
	subject := res.Subject
	s.subject = &subject
	s.roster = res.Roster
	s.periods = res.Periods
	s.periodID = ""
	s.statuses = map[string]school.AttendanceStatus{}
	s.state = StateRosterLoaded
	s.lastErr = nil
	return nil
}

func (s *Session) restore(prev selection) {
	s.subject = prev.subject
	s.periodID = prev.periodID
	s.roster = prev.roster
	s.periods = prev.periods
	s.statuses = prev.statuses
	s.state = prev.state
	switch s.state {
	case StateSubmitting:
		// the write that was in flight belongs to an abandoned generation
		s.state = StateRosterLoaded
	case StateSubjectSelected:
		// prev was captured while another load was pending
		if s.subject != nil {
			s.state = StateRosterLoaded
		} else {
			s.state = StateEmpty
		}
	}
}

// SelectDate sets the day being marked. Entered statuses survive; a write
// still in flight for the old day will not touch the session.
func (s *Session) SelectDate(d school.Date) error {
	if _, err := school.ParseDate(d.String()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSelection, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if d == s.date {
		return nil
	}
	s.date = d
	s.generation++
	if s.state == StateSubmitting || s.state == StateSubmitted {
		s.state = StateRosterLoaded
	}
	return nil
}

// SelectPeriod picks one of the loaded subject's periods.
func (s *Session) SelectPeriod(periodID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if err := s.editable(); err != nil {
		return err
	}
	for _, p := range s.periods {
		if p.ID == periodID {
			s.periodID = periodID
			s.state = StateRosterLoaded
			return nil
		}
	}
	return fmt.Errorf("%w: period %s is not scheduled for this subject", ErrInvalidSelection, periodID)
}

// SetStatus records the status of one rostered student.
func (s *Session) SetStatus(studentID string, status school.AttendanceStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidSelection, status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if err := s.editable(); err != nil {
		return err
	}
	for _, p := range s.roster {
		if p.ID == studentID {
			s.statuses[studentID] = status
			s.state = StateRosterLoaded
			return nil
		}
	}
	return fmt.Errorf("%w: student %s is not on the roster", ErrInvalidSelection, studentID)
}

// editable must be called with s.mu held.
func (s *Session) editable() error {
	switch s.state {
	case StateSubmitting:
		return ErrSubmitInProgress
	case StateEmpty, StateSubjectSelected:
		return fmt.Errorf("%w: no subject loaded", ErrIncompleteSelection)
	}
	return nil
}

// Submit writes one record per rostered student for the selected period
// and date. Students without an entered status are recorded absent.
// A second call while a write is in flight fails with ErrSubmitInProgress;
// after a successful write the session must be re-marked before another.
func (s *Session) Submit(ctx context.Context) (SubmitResult, error) {
	s.mu.Lock()
	s.touch()
	switch s.state {
	case StateSubmitting:
		s.mu.Unlock()
		submissions.WithLabelValues("rejected").Inc()
		return SubmitResult{}, ErrSubmitInProgress
	case StateEmpty, StateSubjectSelected:
		s.mu.Unlock()
		return SubmitResult{}, fmt.Errorf("%w: no subject loaded", ErrIncompleteSelection)
	case StateSubmitted:
		// a repeat would overwrite the stored marks with an all-absent batch
		s.mu.Unlock()
		submissions.WithLabelValues("rejected").Inc()
		return SubmitResult{}, fmt.Errorf("%w: nothing to submit; re-mark first", ErrIncompleteSelection)
	}
	if s.periodID == "" {
		s.mu.Unlock()
		return SubmitResult{}, fmt.Errorf("%w: no period selected", ErrIncompleteSelection)
	}
	records := s.batch()
	gen := s.generation
	s.state = StateSubmitting
	s.mu.Unlock()

	err := s.writer.UpsertAttendance(ctx, records)

	s.mu.Lock()
	current := gen == s.generation
	if current {
		if err != nil {
			s.state = StateError
			s.lastErr = err
		} else {
			s.state = StateSubmitted
			s.statuses = map[string]school.AttendanceStatus{}
			s.lastErr = nil
		}
	}
	s.touch()
	s.mu.Unlock()

	if err != nil {
		submissions.WithLabelValues("failed").Inc()
		return SubmitResult{}, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	if current {
		submissions.WithLabelValues("applied").Inc()
	} else {
		submissions.WithLabelValues("stale").Inc()
	}
	for _, r := range records {
		recordsWritten.WithLabelValues(string(r.Status)).Inc()
	}
	if s.notifier != nil {
		s.notifier.AttendanceSubmitted(ctx, s.marker, records)
	}
	return SubmitResult{Records: records, Applied: current}, nil
}

// batch must be called with s.mu held.
func (s *Session) batch() []school.AttendanceRecord {
	markedBy := s.marker.ID
	records := make([]school.AttendanceRecord, 0, len(s.roster))
	for _, student := range s.roster {
		status, ok := s.statuses[student.ID]
		if !ok {
			status = school.StatusAbsent
		}
		records = append(records, school.AttendanceRecord{
			StudentID: student.ID,
			PeriodID:  s.periodID,
			Date:      s.date,
			Status:    status,
			MarkedBy:  &markedBy,
		})
	}
	return records
}

// Reset returns the session to Empty so a new subject can be picked.
// The selected date is kept.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if s.state == StateSubmitting {
		return ErrSubmitInProgress
	}
	s.generation++
	s.loads++
	s.subject = nil
	s.periodID = ""
	s.roster = nil
	s.periods = nil
	s.statuses = map[string]school.AttendanceStatus{}
	s.lastErr = nil
	s.state = StateEmpty
	return nil
}

// Snapshot returns a copy that is safe to read after the lock is released.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:         s.id,
		State:      s.state,
		Generation: s.generation,
		Date:       s.date,
		PeriodID:   s.periodID,
		Roster:     append([]school.Profile{}, s.roster...),
		Periods:    append([]school.Period{}, s.periods...),
		Statuses:   make(map[string]school.AttendanceStatus, len(s.statuses)),
	}
	if s.subject != nil {
		subject := *s.subject
		snap.Subject = &subject
	}
	for k, v := range s.statuses {
		snap.Statuses[k] = v
	}
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
	}
	return snap
}

func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive, s.state == StateSubmitting
}

// touch must be called with s.mu held.
func (s *Session) touch() { s.lastActive = s.now() }
