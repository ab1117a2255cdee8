package handlers

import (
	"net/http"

	"lumenroute/prism/pkg/gateway"
	"lumenroute/prism/pkg/proxy"
)

// BreakersHandler serves GET /admin/circuit-breakers.
type BreakersHandler struct {
	Gateway *gateway.Gateway
}

// NewBreakersHandler creates the breaker snapshot handler.
func NewBreakersHandler(g *gateway.Gateway) *BreakersHandler {
	return &BreakersHandler{Gateway: g}
}

// ServeHTTP implements http.Handler.
func (h *BreakersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = proxy.WriteJSON(w, http.StatusOK, map[string]any{
		"circuit_breakers": h.Gateway.Breakers(),
	})
}

// MetricsHandler serves GET /metrics: the JSON snapshot (the
// Prometheus exposition lives on /metrics/prometheus).
type MetricsHandler struct {
	Gateway *gateway.Gateway
}

// NewMetricsHandler creates the JSON metrics snapshot handler.
func NewMetricsHandler(g *gateway.Gateway) *MetricsHandler {
	return &MetricsHandler{Gateway: g}
}

// ServeHTTP implements http.Handler.
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = proxy.WriteJSON(w, http.StatusOK, h.Gateway.Snapshot(r.Context()))
}
