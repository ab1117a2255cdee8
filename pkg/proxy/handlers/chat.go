package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"lumenroute/prism/pkg/gateway"
	"lumenroute/prism/pkg/providers"
	"lumenroute/prism/pkg/proxy"
	"lumenroute/prism/pkg/proxy/middleware"
	"lumenroute/prism/pkg/proxy/types"
)

// ChatHandler serves POST /v1/chat/completions.
type ChatHandler struct {
	Gateway *gateway.Gateway
}

// NewChatHandler creates a chat handler.
func NewChatHandler(g *gateway.Gateway) *ChatHandler {
	return &ChatHandler{Gateway: g}
}

// ServeHTTP implements http.Handler.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	start := time.Now()

	if r.Method != http.MethodPost {
		_ = proxy.WriteJSON(w, http.StatusMethodNotAllowed,
			types.NewInvalidRequestError("use POST", "method", "method_not_allowed"))
		return
	}

	var wireReq types.ChatCompletionRequest
	if err := proxy.DecodeJSON(r, &wireReq); err != nil {
		_ = proxy.WriteJSON(w, http.StatusBadRequest,
			types.NewInvalidRequestError(err.Error(), "body", ""))
		return
	}

	req := proxy.ToChatRequest(&wireReq)

	slog.InfoContext(ctx, "processing chat completion",
		"request_id", requestID,
		"model", req.Model,
		"messages", len(req.Messages),
		"stream", req.Stream,
	)

	if req.Stream {
		h.serveStream(w, r, req)
		return
	}

	resp, err := h.Gateway.Chat(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "chat completion failed",
			"request_id", requestID,
			"model", req.Model,
			"error", err,
		)
		_ = proxy.WriteError(w, err)
		return
	}

	slog.InfoContext(ctx, "chat completion succeeded",
		"request_id", requestID,
		"model", req.Model,
		"total_tokens", resp.Usage.TotalTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	_ = proxy.WriteJSON(w, http.StatusOK, proxy.FormatChatResponse(resp))
}

// serveStream bridges the gateway stream onto the SSE response.
func (h *ChatHandler) serveStream(w http.ResponseWriter, r *http.Request, req *providers.ChatRequest) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	chunks, cancel, err := h.Gateway.ChatStream(ctx, req)
	if err != nil {
		_ = proxy.WriteError(w, err)
		return
	}
	defer cancel()

	proxy.SetSSEHeaders(w)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	streamChunks(ctx, w, chunks, "chat.completion.chunk", requestID)
}

// streamChunks writes canonical chunks as SSE until the channel closes.
// Shared by the chat and completion stream paths.
func streamChunks(ctx context.Context, w http.ResponseWriter, chunks <-chan *providers.StreamChunk, object, requestID string) {
	sent := 0
	for chunk := range chunks {
		if chunk.Err != nil {
			slog.Error("stream terminated with error",
				"request_id", requestID,
				"chunks_sent", sent,
				"error", chunk.Err,
			)
			_ = proxy.WriteSSEError(w, chunk.Err)
			break
		}

		if err := proxy.WriteSSEChunk(w, proxy.FormatStreamChunk(chunk, object)); err != nil {
			slog.Warn("client write failed during stream",
				"request_id", requestID,
				"chunks_sent", sent,
				"error", err,
			)
			return
		}
		sent++

		select {
		case <-ctx.Done():
			slog.Info("client disconnected during stream",
				"request_id", requestID,
				"chunks_sent", sent,
			)
			return
		default:
		}
	}

	_ = proxy.WriteSSEDone(w)
}
