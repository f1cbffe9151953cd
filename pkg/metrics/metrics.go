package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the valuation engine.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec

	// Evaluation metrics
	EvaluationsTotal   *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	RulesFired         prometheus.Histogram
	ClampedListings    prometheus.Counter

	// Scheduler metrics
	SchedulerEnqueues   prometheus.Counter
	SchedulerMerges     prometheus.Counter
	SchedulerQueueDepth prometheus.Gauge
	StalenessRetries    prometheus.Counter
	// IndexFullScans counts candidate computations that degraded to a
	// full catalog scan.
	IndexFullScans prometheus.Counter

	// Worker metrics
	WorkerJobsProcessed *prometheus.CounterVec
	WorkerJobDuration   prometheus.Histogram
	LockContentions     prometheus.Counter

	// Notification metrics
	CompletionEventsPublished *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		EvaluationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valuation_evaluations_total",
				Help: "Total number of listing evaluation passes",
			},
			[]string{"status"},
		),
		EvaluationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "valuation_evaluation_duration_seconds",
				Help:    "Listing evaluation pass duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
		),
		RulesFired: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "valuation_rules_fired",
				Help:    "Rules contributing a delta per evaluation pass",
				Buckets: prometheus.LinearBuckets(0, 5, 10),
			},
		),
		ClampedListings: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "valuation_clamped_listings_total",
				Help: "Evaluations whose running total was clamped to zero",
			},
		),

		SchedulerEnqueues: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "recalc_scheduler_enqueues_total",
				Help: "Total recalculation jobs enqueued",
			},
		),
		SchedulerMerges: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "recalc_scheduler_merges_total",
				Help: "Triggers merged into an already-pending job",
			},
		),
		SchedulerQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "recalc_scheduler_queue_depth",
				Help: "Current depth of the recalculation queue",
			},
		),
		StalenessRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "recalc_staleness_retries_total",
				Help: "Jobs re-enqueued after a ruleset version bump",
			},
		),
		IndexFullScans: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "recalc_index_full_scans_total",
				Help: "Affected-listing computations that fell back to a full scan",
			},
		),

		WorkerJobsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recalc_worker_jobs_processed_total",
				Help: "Total recalculation jobs processed by workers",
			},
			[]string{"status"},
		),
		WorkerJobDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "recalc_worker_job_duration_seconds",
				Help:    "Recalculation job processing duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
		),
		LockContentions: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "recalc_lock_contentions_total",
				Help: "Jobs deferred because the listing lock was held",
			},
		),

		CompletionEventsPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valuation_completion_events_total",
				Help: "Completion events published to the notification channel",
			},
			[]string{"status"},
		),
	}
}
