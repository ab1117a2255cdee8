package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics tracks response cache effectiveness.
//
// Metrics:
//   - prism_cache_hits_total
//   - prism_cache_misses_total
//   - prism_cache_coalesced_total: followers served by a leader's call
//   - prism_cache_entries: live entry count
type CacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	coalesced prometheus.Counter
	entries   prometheus.Gauge
}

func newCacheMetrics(cfg Config, registry *prometheus.Registry) *CacheMetrics {
	m := &CacheMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "cache_hits_total",
			Help:      "Total response cache hits",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "cache_misses_total",
			Help:      "Total response cache misses",
		}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "cache_coalesced_total",
			Help:      "Total requests coalesced onto an in-flight leader",
		}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "cache_entries",
			Help:      "Live response cache entries",
		}),
	}

	registry.MustRegister(m.hits, m.misses, m.coalesced, m.entries)
	return m
}

// RecordHit increments the hit counter.
func (m *CacheMetrics) RecordHit() { m.hits.Inc() }

// RecordMiss increments the miss counter.
func (m *CacheMetrics) RecordMiss() { m.misses.Inc() }

// RecordCoalesced increments the coalesced-follower counter.
func (m *CacheMetrics) RecordCoalesced() { m.coalesced.Inc() }

// SetEntries sets the live entry gauge.
func (m *CacheMetrics) SetEntries(n int) { m.entries.Set(float64(n)) }
