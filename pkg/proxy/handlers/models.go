package handlers

import (
	"net/http"
	"sort"
	"time"

	"lumenroute/prism/pkg/gateway"
	"lumenroute/prism/pkg/proxy"
	"lumenroute/prism/pkg/proxy/types"
)

// ModelsHandler serves GET /v1/models: the union of the enabled
// providers' model maps.
type ModelsHandler struct {
	Gateway *gateway.Gateway
}

// NewModelsHandler creates a models handler.
func NewModelsHandler(g *gateway.Gateway) *ModelsHandler {
	return &ModelsHandler{Gateway: g}
}

// ServeHTTP implements http.Handler.
func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	models := h.Gateway.Registry().Models()

	ids := make([]string, 0, len(models))
	for id := range models {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := time.Now().Unix()
	out := &types.ModelsResponse{Object: "list", Data: make([]types.Model, len(ids))}
	for i, id := range ids {
		ownedBy := "prism"
		if owners := models[id]; len(owners) > 0 {
			ownedBy = owners[0]
		}
		out.Data[i] = types.Model{ID: id, Object: "model", Created: now, OwnedBy: ownedBy}
	}

	_ = proxy.WriteJSON(w, http.StatusOK, out)
}
