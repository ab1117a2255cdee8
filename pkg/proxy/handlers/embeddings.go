package handlers

import (
	"log/slog"
	"net/http"

	"lumenroute/prism/pkg/gateway"
	"lumenroute/prism/pkg/proxy"
	"lumenroute/prism/pkg/proxy/middleware"
	"lumenroute/prism/pkg/proxy/types"
)

// EmbeddingHandler serves POST /v1/embeddings.
type EmbeddingHandler struct {
	Gateway *gateway.Gateway
}

// NewEmbeddingHandler creates an embedding handler.
func NewEmbeddingHandler(g *gateway.Gateway) *EmbeddingHandler {
	return &EmbeddingHandler{Gateway: g}
}

// ServeHTTP implements http.Handler.
func (h *EmbeddingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		_ = proxy.WriteJSON(w, http.StatusMethodNotAllowed,
			types.NewInvalidRequestError("use POST", "method", "method_not_allowed"))
		return
	}

	var wireReq types.EmbeddingRequest
	if err := proxy.DecodeJSON(r, &wireReq); err != nil {
		_ = proxy.WriteJSON(w, http.StatusBadRequest,
			types.NewInvalidRequestError(err.Error(), "body", ""))
		return
	}

	req := proxy.ToEmbeddingRequest(&wireReq)

	resp, err := h.Gateway.Embedding(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed",
			"request_id", middleware.GetRequestID(ctx),
			"model", req.Model,
			"error", err,
		)
		_ = proxy.WriteError(w, err)
		return
	}

	_ = proxy.WriteJSON(w, http.StatusOK, proxy.FormatEmbeddingResponse(resp))
}
