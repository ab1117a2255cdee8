package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns the gateway's Prometheus registry and the per-concern
// metric groups.
type Collector struct {
	registry *prometheus.Registry

	// Request is the per-request metric group.
	Request *RequestMetrics

	// Provider is the per-provider metric group.
	Provider *ProviderMetrics

	// Breaker is the circuit breaker metric group.
	Breaker *BreakerMetrics

	// Cache is the response cache metric group.
	Cache *CacheMetrics
}

// Config configures metric naming.
type Config struct {
	// Namespace prefixes every metric name (default "prism").
	Namespace string

	// DurationBuckets are the histogram buckets for latencies in
	// seconds; the defaults cover LLM workloads (fast embeds through
	// minute-long generations).
	DurationBuckets []float64
}

func (c Config) withDefaults() Config {
	if c.Namespace == "" {
		c.Namespace = "prism"
	}
	if len(c.DurationBuckets) == 0 {
		c.DurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}
	}
	return c
}

// NewCollector creates the collector and registers every metric group.
// registry may be nil, in which case a fresh registry is created.
func NewCollector(cfg Config, registry *prometheus.Registry) *Collector {
	cfg = cfg.withDefaults()
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	return &Collector{
		registry: registry,
		Request:  newRequestMetrics(cfg, registry),
		Provider: newProviderMetrics(cfg, registry),
		Breaker:  newBreakerMetrics(cfg, registry),
		Cache:    newCacheMetrics(cfg, registry),
	}
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
