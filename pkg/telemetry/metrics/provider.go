package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ProviderMetrics tracks provider health and performance.
//
// Metrics:
//   - prism_provider_health{provider}: 1=healthy, 0=unhealthy
//   - prism_provider_latency_seconds{provider, operation}
//   - prism_provider_errors_total{provider, kind}
//   - prism_provider_requests_total{provider, operation}
//   - prism_provider_in_flight{provider}
type ProviderMetrics struct {
	health   *prometheus.GaugeVec
	latency  *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	requests *prometheus.CounterVec
	inFlight *prometheus.GaugeVec
}

func newProviderMetrics(cfg Config, registry *prometheus.Registry) *ProviderMetrics {
	m := &ProviderMetrics{
		health: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "provider_health",
				Help:      "Provider health status (1=healthy, 0=unhealthy)",
			},
			[]string{"provider"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "provider_latency_seconds",
				Help:      "Provider API call latency in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"provider", "operation"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "provider_errors_total",
				Help:      "Total provider errors by classified kind",
			},
			[]string{"provider", "kind"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "provider_requests_total",
				Help:      "Total upstream calls by provider and operation",
			},
			[]string{"provider", "operation"},
		),
		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "provider_in_flight",
				Help:      "Requests currently in flight per provider",
			},
			[]string{"provider"},
		),
	}

	registry.MustRegister(m.health, m.latency, m.errors, m.requests, m.inFlight)
	return m
}

// UpdateHealth sets the provider health gauge.
func (m *ProviderMetrics) UpdateHealth(provider string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.health.WithLabelValues(provider).Set(value)
}

// RecordAttempt records one upstream call outcome.
func (m *ProviderMetrics) RecordAttempt(provider, operation, errKind string, latencySeconds float64) {
	m.requests.WithLabelValues(provider, operation).Inc()
	m.latency.WithLabelValues(provider, operation).Observe(latencySeconds)
	if errKind != "" {
		m.errors.WithLabelValues(provider, errKind).Inc()
	}
}

// SetInFlight sets the in-flight gauge for a provider.
func (m *ProviderMetrics) SetInFlight(provider string, n int64) {
	m.inFlight.WithLabelValues(provider).Set(float64(n))
}
