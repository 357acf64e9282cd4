package attendance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schooldesk",
		Subsystem: "attendance",
		Name:      "submissions_total",
		Help:      "Attendance submissions by outcome (applied, stale, failed, rejected).",
	}, []string{"outcome"})

	recordsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schooldesk",
		Subsystem: "attendance",
		Name:      "records_written_total",
		Help:      "Attendance records upserted, by status.",
	}, []string{"status"})

	openSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "schooldesk",
		Subsystem: "attendance",
		Name:      "open_sessions",
		Help:      "Attendance sessions currently held in memory.",
	})
)
