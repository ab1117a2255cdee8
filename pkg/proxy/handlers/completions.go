package handlers

import (
	"log/slog"
	"net/http"

	"lumenroute/prism/pkg/gateway"
	"lumenroute/prism/pkg/proxy"
	"lumenroute/prism/pkg/proxy/middleware"
	"lumenroute/prism/pkg/proxy/types"
)

// CompletionHandler serves POST /v1/completions.
type CompletionHandler struct {
	Gateway *gateway.Gateway
}

// NewCompletionHandler creates a completion handler.
func NewCompletionHandler(g *gateway.Gateway) *CompletionHandler {
	return &CompletionHandler{Gateway: g}
}

// ServeHTTP implements http.Handler.
func (h *CompletionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	if r.Method != http.MethodPost {
		_ = proxy.WriteJSON(w, http.StatusMethodNotAllowed,
			types.NewInvalidRequestError("use POST", "method", "method_not_allowed"))
		return
	}

	var wireReq types.CompletionRequest
	if err := proxy.DecodeJSON(r, &wireReq); err != nil {
		_ = proxy.WriteJSON(w, http.StatusBadRequest,
			types.NewInvalidRequestError(err.Error(), "body", ""))
		return
	}

	req := proxy.ToCompletionRequest(&wireReq)

	if req.Stream {
		chunks, cancel, err := h.Gateway.CompletionStream(ctx, req)
		if err != nil {
			_ = proxy.WriteError(w, err)
			return
		}
		defer cancel()

		proxy.SetSSEHeaders(w)
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
		streamChunks(ctx, w, chunks, "text_completion", requestID)
		return
	}

	resp, err := h.Gateway.Completion(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "completion failed",
			"request_id", requestID,
			"model", req.Model,
			"error", err,
		)
		_ = proxy.WriteError(w, err)
		return
	}

	_ = proxy.WriteJSON(w, http.StatusOK, proxy.FormatCompletionResponse(resp))
}
