// internal/infra/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_cycles_total",
			Help: "Total number of reminder processing cycles by outcome",
		},
		[]string{"outcome"},
	)

	TicksSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_ticks_skipped_total",
			Help: "Ticks dropped because a cycle was still running or another replica held the lock",
		},
		[]string{"reason"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "reminder_cycle_duration_seconds",
			Help: "Duration of reminder processing cycles in seconds",
		},
	)

	RemindersSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reminders_sent_total",
			Help: "Total number of reminders dispatched and marked sent",
		},
	)

	RemindersFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reminders_failed_total",
			Help: "Total number of reminder dispatch attempts that failed",
		},
	)
)
