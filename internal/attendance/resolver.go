package attendance

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"schooldesk/internal/school"
)

// Reader is the part of the school store the resolver queries.
type Reader interface {
	GetSubject(ctx context.Context, id string) (school.Subject, error)
	StudentsByClass(ctx context.Context, classID string) ([]school.Profile, error)
	PeriodsBySubject(ctx context.Context, subjectID string) ([]school.Period, error)
}

// Writer is the single mutation path of the workflow.
type Writer interface {
	UpsertAttendance(ctx context.Context, records []school.AttendanceRecord) error
}

// Store is what a session needs from the school store.
type Store interface {
	Reader
	Writer
}

// Marker identifies who is taking attendance.
type Marker struct {
	ID   string
	Role school.Role
}

// Resolution is everything a session needs after a subject is picked.
type Resolution struct {
	Subject school.Subject
	Roster  []school.Profile
	Periods []school.Period
}

// Resolver looks up a subject's roster and schedule. It never writes.
type Resolver struct {
	store Reader
}

// NewResolver creates a resolver over the store.
func NewResolver(store Reader) *Resolver {
	return &Resolver{store: store}
}

// ResolveSubject returns the subject or ErrNotFound.
func (r *Resolver) ResolveSubject(ctx context.Context, subjectID string) (school.Subject, error) {
	subject, err := r.store.GetSubject(ctx, subjectID)
	switch {
	case errors.Is(err, school.ErrNotFound):
		return school.Subject{}, fmt.Errorf("%w: subject %s", ErrNotFound, subjectID)
	case err != nil:
		return school.Subject{}, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	return subject, nil
}

// ResolveRoster returns the students of the subject's class. An empty
// roster is a valid result; only an unknown subject is ErrNotFound.
func (r *Resolver) ResolveRoster(ctx context.Context, subjectID string) ([]school.Profile, error) {
	subject, err := r.ResolveSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	return r.roster(ctx, subject)
}

// ResolvePeriods returns the subject's periods ordered by period number,
// then weekday, then id.
func (r *Resolver) ResolvePeriods(ctx context.Context, subjectID string) ([]school.Period, error) {
	periods, err := r.store.PeriodsBySubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	if periods == nil {
		periods = []school.Period{}
	}
	sortPeriods(periods)
	return periods, nil
}

// Resolve loads subject, roster and periods for a marker. Teachers may only
// open subjects assigned to them; anything else reads as not found.
func (r *Resolver) Resolve(ctx context.Context, m Marker, subjectID string) (Resolution, error) {
	subject, err := r.ResolveSubject(ctx, subjectID)
	if err != nil {
		return Resolution{}, err
	}
	if m.Role != school.RoleAdmin && !subject.AssignedTo(m.ID) {
		return Resolution{}, fmt.Errorf("%w: subject %s", ErrNotFound, subjectID)
	}

	res := Resolution{Subject: subject}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		roster, err := r.roster(gctx, subject)
		res.Roster = roster
		return err
	})
	g.Go(func() error {
		periods, err := r.ResolvePeriods(gctx, subjectID)
		res.Periods = periods
		return err
	})
	if err := g.Wait(); err != nil {
		return Resolution{}, err
	}
	return res, nil
}

func (r *Resolver) roster(ctx context.Context, subject school.Subject) ([]school.Profile, error) {
	students, err := r.store.StudentsByClass(ctx, subject.ClassID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	if students == nil {
		students = []school.Profile{}
	}
	return students, nil
}

func sortPeriods(periods []school.Period) {
	sort.SliceStable(periods, func(i, j int) bool {
		a, b := periods[i], periods[j]
		if a.PeriodNumber != b.PeriodNumber {
			return a.PeriodNumber < b.PeriodNumber
		}
		if a.DayOfWeek != b.DayOfWeek {
			return a.DayOfWeek < b.DayOfWeek
		}
		return a.ID < b.ID
	})
}
