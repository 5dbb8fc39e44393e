package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics
// This replaces direct access to global Prometheus metrics with dependency injection
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Selection metrics
	IncrementSelections(outcome string)
	RecordSelectionDuration(duration time.Duration)
	IncrementGroupEvaluations(verdict string)

	// Event tracking metrics
	IncrementImpressions(status string)
	IncrementClicks(status string)

	// Customer collaborator metrics
	IncrementCollaboratorRequests(service, outcome string)
	RecordCollaboratorLatency(service string, duration time.Duration)

	// Rate limiting metrics
	IncrementRateLimitRequests(marketplace string)
	IncrementRateLimitHits(marketplace string)
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

// HTTP Request metrics
func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// Selection metrics
func (r *PrometheusRegistry) IncrementSelections(outcome string) {
	SelectionCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) RecordSelectionDuration(duration time.Duration) {
	SelectionDuration.Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementGroupEvaluations(verdict string) {
	GroupEvaluations.WithLabelValues(verdict).Inc()
}

// Event tracking metrics
func (r *PrometheusRegistry) IncrementImpressions(status string) {
	ImpressionCount.WithLabelValues(status).Inc()
}

func (r *PrometheusRegistry) IncrementClicks(status string) {
	ClickCount.WithLabelValues(status).Inc()
}

// Customer collaborator metrics
func (r *PrometheusRegistry) IncrementCollaboratorRequests(service, outcome string) {
	CollaboratorRequests.WithLabelValues(service, outcome).Inc()
}

func (r *PrometheusRegistry) RecordCollaboratorLatency(service string, duration time.Duration) {
	CollaboratorLatency.WithLabelValues(service).Observe(duration.Seconds())
}

// Rate limiting metrics
func (r *PrometheusRegistry) IncrementRateLimitRequests(marketplace string) {
	RateLimitRequests.WithLabelValues(marketplace).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitHits(marketplace string) {
	RateLimitHits.WithLabelValues(marketplace).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementSelections(outcome string)                                   {}
func (r *NoOpRegistry) RecordSelectionDuration(duration time.Duration)                       {}
func (r *NoOpRegistry) IncrementGroupEvaluations(verdict string)                             {}
func (r *NoOpRegistry) IncrementImpressions(status string)                                   {}
func (r *NoOpRegistry) IncrementClicks(status string)                                        {}
func (r *NoOpRegistry) IncrementCollaboratorRequests(service, outcome string)                {}
func (r *NoOpRegistry) RecordCollaboratorLatency(service string, duration time.Duration)     {}
func (r *NoOpRegistry) IncrementRateLimitRequests(marketplace string)                        {}
func (r *NoOpRegistry) IncrementRateLimitHits(marketplace string)                            {}
