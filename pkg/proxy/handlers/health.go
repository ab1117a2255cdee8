package handlers

import (
	"net/http"

	"lumenroute/prism/pkg/proxy"
)

// HealthHandler serves GET /health.
type HealthHandler struct{}

// NewHealthHandler creates a liveness handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// ServeHTTP implements http.Handler.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = proxy.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
