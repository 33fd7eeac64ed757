// Package metrics provides Prometheus instrumentation for the reply
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is
// valid and turns every record call into a no-op.
type Metrics struct {
	// RequestsTotal counts generation requests by provider and outcome.
	RequestsTotal *prometheus.CounterVec

	// RequestLatency tracks end-to-end generation latency in seconds.
	RequestLatency *prometheus.HistogramVec

	// TokensTotal counts tokens consumed by provider and direction.
	TokensTotal *prometheus.CounterVec

	// QualityRetriesTotal counts replies regenerated after a failed
	// quality check.
	QualityRetriesTotal prometheus.Counter

	// RateLimitedTotal counts requests rejected at admission.
	RateLimitedTotal prometheus.Counter

	// ModelLoadAttemptsTotal counts local model load attempts by outcome.
	ModelLoadAttemptsTotal *prometheus.CounterVec
}

// New registers the pipeline collectors with reg. Pass
// prometheus.DefaultRegisterer for normal operation; tests use their own
// registry so parallel test binaries never collide.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replymate_requests_total",
				Help: "Total number of generation requests by provider and outcome.",
			},
			[]string{"provider", "outcome"}, // outcome: "success", "fallback", "error", "rejected"
		),
		RequestLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "replymate_request_latency_seconds",
				Help:    "End-to-end generation latency in seconds.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		TokensTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replymate_tokens_total",
				Help: "Total number of tokens consumed.",
			},
			[]string{"provider", "direction"}, // direction: "input" or "output"
		),
		QualityRetriesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "replymate_quality_retries_total",
				Help: "Total number of regenerations triggered by the quality check.",
			},
		),
		RateLimitedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "replymate_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter.",
			},
		),
		ModelLoadAttemptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replymate_model_load_attempts_total",
				Help: "Total number of local model load attempts by outcome.",
			},
			[]string{"model", "outcome"}, // outcome: "success" or "failure"
		),
	}
}

// RecordRequest records one finished request.
func (m *Metrics) RecordRequest(provider, model, outcome string, latencySeconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(provider, outcome).Inc()
	m.RequestLatency.WithLabelValues(provider, model).Observe(latencySeconds)
}

// RecordTokens records token usage for one request.
func (m *Metrics) RecordTokens(provider string, input, output int) {
	if m == nil {
		return
	}
	if input > 0 {
		m.TokensTotal.WithLabelValues(provider, "input").Add(float64(input))
	}
	if output > 0 {
		m.TokensTotal.WithLabelValues(provider, "output").Add(float64(output))
	}
}

// RecordQualityRetry records one quality-triggered regeneration.
func (m *Metrics) RecordQualityRetry() {
	if m == nil {
		return
	}
	m.QualityRetriesTotal.Inc()
}

// RecordRateLimited records one request rejected at admission.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

// RecordModelLoad records one local model load attempt.
func (m *Metrics) RecordModelLoad(model string, ok bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	m.ModelLoadAttemptsTotal.WithLabelValues(model, outcome).Inc()
}
