package handlers

import (
	"log/slog"
	"net/http"

	"lumenroute/prism/pkg/gateway"
	"lumenroute/prism/pkg/providers"
	"lumenroute/prism/pkg/proxy"
	"lumenroute/prism/pkg/proxy/middleware"
	"lumenroute/prism/pkg/proxy/types"
)

// ImageHandler serves POST /v1/images/generations.
type ImageHandler struct {
	Gateway *gateway.Gateway
}

// NewImageHandler creates an image generation handler.
func NewImageHandler(g *gateway.Gateway) *ImageHandler {
	return &ImageHandler{Gateway: g}
}

// ServeHTTP implements http.Handler.
func (h *ImageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		_ = proxy.WriteJSON(w, http.StatusMethodNotAllowed,
			types.NewInvalidRequestError("use POST", "method", "method_not_allowed"))
		return
	}

	var wireReq types.ImageGenerationRequest
	if err := proxy.DecodeJSON(r, &wireReq); err != nil {
		_ = proxy.WriteJSON(w, http.StatusBadRequest,
			types.NewInvalidRequestError(err.Error(), "body", ""))
		return
	}
	if wireReq.Prompt == "" {
		_ = proxy.WriteJSON(w, http.StatusBadRequest,
			types.NewInvalidRequestError("prompt is required", "prompt", ""))
		return
	}

	req := &providers.ImageRequest{
		Model:          wireReq.Model,
		Prompt:         wireReq.Prompt,
		N:              wireReq.N,
		Size:           wireReq.Size,
		ResponseFormat: wireReq.ResponseFormat,
		Routing:        providers.RoutingHints{PreferredProvider: wireReq.Provider},
	}

	resp, err := h.Gateway.Image(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "image generation failed",
			"request_id", middleware.GetRequestID(ctx),
			"model", req.Model,
			"error", err,
		)
		_ = proxy.WriteError(w, err)
		return
	}

	out := &types.ImageGenerationResponse{Created: resp.Created, Data: make([]types.ImageData, len(resp.Images))}
	for i, img := range resp.Images {
		out.Data[i] = types.ImageData{URL: img.URL, B64JSON: img.B64JSON}
	}
	_ = proxy.WriteJSON(w, http.StatusOK, out)
}
