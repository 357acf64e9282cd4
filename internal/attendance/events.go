package attendance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"schooldesk/internal/queue"
	"schooldesk/internal/school"
)

// EventSubmitted is the queue message type published after a write.
const EventSubmitted = "attendance.submitted"

// Submitted is the body of an EventSubmitted message.
type Submitted struct {
	MarkedBy   string      `json:"marked_by"`
	PeriodID   string      `json:"period_id"`
	Date       school.Date `json:"date"`
	StudentIDs []string    `json:"student_ids"`
}

// QueueNotifier publishes submitted batches so the worker can refresh
// per-student summaries. Publish failures are logged, never returned:
// the records are already stored.
type QueueNotifier struct {
	Queue queue.Queue
	Log   *zap.Logger
}

func (n QueueNotifier) AttendanceSubmitted(ctx context.Context, m Marker, records []school.AttendanceRecord) {
	if len(records) == 0 {
		return
	}
	ev := Submitted{
		MarkedBy: m.ID,
		PeriodID: records[0].PeriodID,
		Date:     records[0].Date,
	}
	for _, r := range records {
		ev.StudentIDs = append(ev.StudentIDs, r.StudentID)
	}
	msg, err := queue.NewMessage(EventSubmitted, ev)
	if err == nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		err = n.Queue.Publish(pctx, msg)
		cancel()
	}
	if err != nil {
		n.Log.Warn("publish attendance event", zap.String("period_id", ev.PeriodID), zap.Error(err))
	}
}
