// Package telemetry groups the gateway's observability subpackages.
//
//   - logging: structured slog-based logging with credential redaction
//   - metrics: Prometheus collectors plus the JSON snapshot feeding
//     GET /metrics
//
// Both are wired by pkg/gateway and cmd/prism; nothing here is imported
// by the core routing/caching/breaker packages.
package telemetry
