// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_ticks_total",
			Help: "Total number of scheduler ticks by result",
		},
		[]string{"result"},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "automation_tick_duration_seconds",
			Help:    "Duration of a full scheduler tick in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_candidates_total",
			Help: "Total number of candidate subjects matched per workflow type",
		},
		[]string{"workflow_type"},
	)

	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_dispatch_total",
			Help: "Total number of dispatch attempts by outcome",
		},
		[]string{"workflow_type", "status"},
	)

	DeferredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_deferred_total",
			Help: "Candidates deferred by the business hours gate",
		},
		[]string{"workflow_type"},
	)

	DuplicatesDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_duplicates_discarded_total",
			Help: "Dispatches discarded because a sent record already existed at write time",
		},
		[]string{"workflow_type"},
	)

	WorkflowErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_workflow_errors_total",
			Help: "Errors caught at the per-workflow error boundary",
		},
		[]string{"workflow_type", "error_code"},
	)

	SchedulerRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "automation_scheduler_running",
			Help: "1 while the scheduler clock is running",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_events_published_total",
			Help: "Dispatch events handed to downstream sinks by result",
		},
		[]string{"sink", "result"},
	)
)
