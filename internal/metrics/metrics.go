// Package metrics exposes Prometheus instrumentation for the dispatch engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsCreated counts successfully dispatched jobs.
	JobsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_jobs_created_total",
		Help: "Total number of jobs created and bound to a unit",
	})

	// DispatchConflicts counts assignment attempts retried after losing a
	// race for a unit.
	DispatchConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_conflicts_total",
		Help: "Total number of unit claim races detected and retried",
	})

	// StatusUpdates counts committed status transitions.
	StatusUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_status_updates_total",
		Help: "Total number of committed job status transitions",
	})

	// QueuePromotions counts pending jobs auto-promoted when a unit freed up.
	QueuePromotions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_queue_promotions_total",
		Help: "Total number of queued jobs promoted onto a freed unit",
	})

	// UnitsFreed counts units released with no queued work.
	UnitsFreed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_units_freed_total",
		Help: "Total number of times a unit was freed with an empty queue",
	})
)
