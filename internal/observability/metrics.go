package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adtarget_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adtarget_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// selection outcomes: filled, empty, error
	SelectionCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adtarget_selections_total",
			Help: "Total ad selection calls by outcome",
		},
		[]string{"outcome"},
	)

	// end-to-end selection latency
	SelectionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adtarget_selection_duration_seconds",
			Help:    "Duration of ad selection calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	// targeting group verdicts
	GroupEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adtarget_group_evaluations_total",
			Help: "Total targeting group evaluations by verdict",
		},
		[]string{"verdict"},
	)

	// individual predicate evaluations by kind and result
	PredicateEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adtarget_predicate_evaluations_total",
			Help: "Total predicate evaluations by kind and result",
		},
		[]string{"kind", "result"},
	)

	// per-predicate evaluation latency by kind
	PredicateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adtarget_predicate_duration_seconds",
			Help:    "Duration of single predicate evaluations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// number of impression events received (status code label)
	ImpressionCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adtarget_impressions_total",
			Help: "Total impression events",
		},
		[]string{"status"},
	)

	// number of click events received (status code label)
	ClickCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adtarget_clicks_total",
			Help: "Total click events",
		},
		[]string{"status"},
	)

	// customer collaborator requests labelled by service and outcome
	CollaboratorRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adtarget_collaborator_requests_total",
			Help: "Total customer collaborator requests",
		},
		[]string{"service", "outcome"},
	)

	// latency of customer collaborator calls
	CollaboratorLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adtarget_collaborator_duration_seconds",
			Help:    "Duration of customer collaborator requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	// ad requests checked against the per-marketplace rate limiter
	RateLimitRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adtarget_ratelimit_requests_total",
			Help: "Total ad requests checked against the rate limiter",
		},
		[]string{"marketplace"},
	)

	// ad requests rejected by the rate limiter
	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adtarget_ratelimit_hits_total",
			Help: "Total ad requests rejected by the rate limiter",
		},
		[]string{"marketplace"},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		SelectionCount,
		SelectionDuration,
		GroupEvaluations,
		PredicateEvaluations,
		PredicateDuration,
		ImpressionCount,
		ClickCount,
		CollaboratorRequests,
		CollaboratorLatency,
		RateLimitRequests,
		RateLimitHits,
	)
}

// IncrementPredicateEvaluations records one predicate evaluation outcome.
func IncrementPredicateEvaluations(kind, result string) {
	PredicateEvaluations.WithLabelValues(kind, result).Inc()
}

// RecordPredicateDuration records the latency of one predicate evaluation.
func RecordPredicateDuration(kind string, d time.Duration) {
	PredicateDuration.WithLabelValues(kind).Observe(d.Seconds())
}
