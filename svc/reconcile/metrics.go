package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SweepRunsTotal counts sweep runs by sweep name and outcome (ok, partial, error).
	SweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bookpage",
		Subsystem: "reconcile",
		Name:      "sweep_runs_total",
		Help:      "Total reconciliation sweep runs.",
	}, []string{"sweep", "outcome"})

	// SweepTransitionsTotal counts profiles actually changed by a sweep.
	SweepTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bookpage",
		Subsystem: "reconcile",
		Name:      "sweep_transitions_total",
		Help:      "Profiles transitioned by reconciliation sweeps.",
	}, []string{"sweep"})

	SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bookpage",
		Subsystem: "reconcile",
		Name:      "sweep_duration_seconds",
		Help:      "Reconciliation sweep duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"sweep"})

	FullSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bookpage",
		Subsystem: "reconcile",
		Name:      "full_sync_total",
		Help:      "On-demand full sync requests by outcome.",
	}, []string{"outcome"})
)
