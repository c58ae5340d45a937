// Package metrics holds the Prometheus collectors of the planner.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "planner"

var (
	// OccurrencesGenerated counts occurrences created by window generation.
	OccurrencesGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "repeat",
			Name:      "occurrences_generated_total",
			Help:      "Occurrences created by rolling window generation",
		},
	)

	// SeriesFillFailures counts series whose window fill failed.
	SeriesFillFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "repeat",
			Name:      "series_fill_failures_total",
			Help:      "Series whose window fill returned an error",
		},
	)

	// RemindersScheduled counts reminders by scheduling outcome (created, dropped_past).
	RemindersScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "scheduled_total",
			Help:      "Reminder offsets processed by outcome",
		},
		[]string{"outcome"},
	)

	// RemindersDelivered counts delivery attempts by result (sent, failed, skipped).
	RemindersDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "delivered_total",
			Help:      "Due reminder delivery attempts by result",
		},
		[]string{"result"},
	)

	// ReminderTransitions counts user-driven state changes (snoozed, dismissed, cancelled).
	ReminderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "transitions_total",
			Help:      "Reminder state transitions by target state",
		},
		[]string{"to"},
	)

	// DeliveryCycleDuration observes one delivery checker cycle.
	DeliveryCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "delivery_cycle_duration_seconds",
			Help:      "Duration of one due-reminder delivery cycle",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
