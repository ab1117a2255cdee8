// Package metrics provides Prometheus metrics for the gateway.
//
// Metric groups are split by concern: request processing, provider
// health and latency, circuit breaker state, and response cache
// effectiveness. The gateway additionally serves a JSON snapshot
// assembled from its own counters on /metrics; this package covers the
// Prometheus exposition on /metrics/prometheus.
package metrics
