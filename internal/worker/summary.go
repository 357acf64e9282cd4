// Package worker refreshes derived data after attendance is written.
package worker

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"schooldesk/internal/attendance"
	"schooldesk/internal/queue"
	"schooldesk/internal/school"
	"schooldesk/internal/stats"
)

var processed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "schooldesk",
	Subsystem: "worker",
	Name:      "events_total",
	Help:      "Queue events handled by the worker, by type and outcome.",
}, []string{"type", "outcome"})

// Source reads a student's attendance history.
type Source interface {
	AttendanceByStudent(ctx context.Context, studentID string) ([]school.AttendanceEntry, error)
}

// Cache receives recomputed summaries.
type Cache interface {
	Set(ctx context.Context, studentID string, s stats.Summary) error
}

// SummaryRefresher recomputes the cached summary of every student in a
// submitted batch.
type SummaryRefresher struct {
	Source Source
	Cache  Cache
	Log    *zap.Logger
}

// Handle processes one message. Messages of other types are skipped.
// A failure for one student does not stop the others.
func (r *SummaryRefresher) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != attendance.EventSubmitted {
		processed.WithLabelValues(msg.Type, "skipped").Inc()
		return nil
	}
	var ev attendance.Submitted
	if err := msg.Decode(&ev); err != nil {
		processed.WithLabelValues(msg.Type, "malformed").Inc()
		return err
	}

	var errs []error
	for _, id := range ev.StudentIDs {
		if err := r.refresh(ctx, id); err != nil {
			errs = append(errs, err)
			r.Log.Warn("refresh summary", zap.String("student_id", id), zap.Error(err))
		}
	}
	if len(errs) > 0 {
		processed.WithLabelValues(msg.Type, "failed").Inc()
		return errors.Join(errs...)
	}
	processed.WithLabelValues(msg.Type, "ok").Inc()
	r.Log.Debug("summaries refreshed",
		zap.String("period_id", ev.PeriodID),
		zap.String("date", ev.Date.String()),
		zap.Int("students", len(ev.StudentIDs)))
	return nil
}

func (r *SummaryRefresher) refresh(ctx context.Context, studentID string) error {
	entries, err := r.Source.AttendanceByStudent(ctx, studentID)
	if err != nil {
		return err
	}
	records := make([]school.AttendanceRecord, len(entries))
	for i, e := range entries {
		records[i] = e.AttendanceRecord
	}
	return r.Cache.Set(ctx, studentID, stats.Summarize(records))
}

// Run consumes q until ctx is done.
func (r *SummaryRefresher) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range messages {
		if err := r.Handle(ctx, msg); err != nil {
			r.Log.Error("handle event", zap.String("type", msg.Type), zap.Error(err))
		}
	}
	return nil
}
