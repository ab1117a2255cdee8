package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BreakerMetrics tracks circuit breaker state.
//
// Metrics:
//   - prism_breaker_state{provider}: 0=closed, 1=open, 2=half-open
//   - prism_breaker_transitions_total{provider, from, to}
type BreakerMetrics struct {
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
}

func newBreakerMetrics(cfg Config, registry *prometheus.Registry) *BreakerMetrics {
	m := &BreakerMetrics{
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "breaker_state",
				Help:      "Circuit breaker state per provider (0=closed, 1=open, 2=half-open)",
			},
			[]string{"provider"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "breaker_transitions_total",
				Help:      "Circuit breaker state transitions",
			},
			[]string{"provider", "from", "to"},
		),
	}

	registry.MustRegister(m.state, m.transitions)
	return m
}

// RecordTransition records a state transition and updates the state
// gauge.
func (m *BreakerMetrics) RecordTransition(provider, from, to string, stateValue int) {
	m.transitions.WithLabelValues(provider, from, to).Inc()
	m.state.WithLabelValues(provider).Set(float64(stateValue))
}
