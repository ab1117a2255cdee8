package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks gateway request processing.
//
// Metrics:
//   - prism_requests_total{operation, source, status}
//   - prism_request_duration_seconds{operation, source}
//   - prism_request_tokens_total{source, model, kind}
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
}

func newRequestMetrics(cfg Config, registry *prometheus.Registry) *RequestMetrics {
	m := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "requests_total",
				Help:      "Total number of gateway requests by operation, source (cache/upstream), and status",
			},
			[]string{"operation", "source", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "request_duration_seconds",
				Help:      "Gateway request duration in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"operation", "source"},
		),
		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "request_tokens_total",
				Help:      "Total tokens processed by source, model, and kind (prompt/completion)",
			},
			[]string{"source", "model", "kind"},
		),
	}

	registry.MustRegister(m.requestsTotal, m.requestDuration, m.tokensTotal)
	return m
}

// Record records one finished request.
func (m *RequestMetrics) Record(operation, source, status string, duration time.Duration) {
	m.requestsTotal.WithLabelValues(operation, source, status).Inc()
	m.requestDuration.WithLabelValues(operation, source).Observe(duration.Seconds())
}

// RecordTokens records token consumption for a request.
func (m *RequestMetrics) RecordTokens(source, model string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		m.tokensTotal.WithLabelValues(source, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.tokensTotal.WithLabelValues(source, model, "completion").Add(float64(completionTokens))
	}
}
