package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"lumenroute/prism/pkg/gateway"
	"lumenroute/prism/pkg/providers"
	"lumenroute/prism/pkg/proxy"
	"lumenroute/prism/pkg/proxy/middleware"
	"lumenroute/prism/pkg/proxy/types"
)

// AudioHandler serves POST /v1/audio/transcriptions (multipart).
type AudioHandler struct {
	Gateway *gateway.Gateway
}

// NewAudioHandler creates a transcription handler.
func NewAudioHandler(g *gateway.Gateway) *AudioHandler {
	return &AudioHandler{Gateway: g}
}

// maxAudioMemory bounds the in-memory part of multipart parsing; the
// rest spills to disk.
const maxAudioMemory = 32 << 20

// ServeHTTP implements http.Handler.
func (h *AudioHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		_ = proxy.WriteJSON(w, http.StatusMethodNotAllowed,
			types.NewInvalidRequestError("use POST", "method", "method_not_allowed"))
		return
	}

	if err := r.ParseMultipartForm(maxAudioMemory); err != nil {
		_ = proxy.WriteJSON(w, http.StatusBadRequest,
			types.NewInvalidRequestError("invalid multipart body: "+err.Error(), "body", ""))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		_ = proxy.WriteJSON(w, http.StatusBadRequest,
			types.NewInvalidRequestError("file part is required", "file", ""))
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		_ = proxy.WriteJSON(w, http.StatusBadRequest,
			types.NewInvalidRequestError("failed to read audio file", "file", ""))
		return
	}

	model := r.FormValue("model")
	if model == "" {
		_ = proxy.WriteJSON(w, http.StatusBadRequest,
			types.NewInvalidRequestError("model is required", "model", ""))
		return
	}

	req := &providers.TranscriptionRequest{
		Model:    model,
		Audio:    audio,
		Filename: header.Filename,
		Language: r.FormValue("language"),
	}

	resp, err := h.Gateway.Transcribe(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "transcription failed",
			"request_id", middleware.GetRequestID(ctx),
			"model", model,
			"error", err,
		)
		_ = proxy.WriteError(w, err)
		return
	}

	_ = proxy.WriteJSON(w, http.StatusOK, &types.TranscriptionResponse{Text: resp.Text})
}
