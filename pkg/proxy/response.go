package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"

	"lumenroute/prism/pkg/providers"
	"lumenroute/prism/pkg/proxy/types"
)

// FormatChatResponse converts a canonical response to the OpenAI chat
// shape.
func FormatChatResponse(resp *providers.Response) *types.ChatCompletionResponse {
	out := &types.ChatCompletionResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: resp.Created,
		Model:   resp.Model,
		Choices: make([]types.Choice, len(resp.Choices)),
		Usage: types.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for i, choice := range resp.Choices {
		out.Choices[i] = types.Choice{
			Index:        choice.Index,
			FinishReason: choice.FinishReason,
			Message: types.Message{
				Role:      choice.Message.Role,
				Content:   choice.Message.Content,
				ToolCalls: fromCanonicalToolCalls(choice.Message.ToolCalls),
			},
		}
	}
	return out
}

// FormatCompletionResponse converts a canonical response to the legacy
// completion shape.
func FormatCompletionResponse(resp *providers.Response) *types.CompletionResponse {
	out := &types.CompletionResponse{
		ID:      resp.ID,
		Object:  "text_completion",
		Created: resp.Created,
		Model:   resp.Model,
		Choices: make([]types.CompletionChoice, len(resp.Choices)),
		Usage: types.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for i, choice := range resp.Choices {
		out.Choices[i] = types.CompletionChoice{
			Index:        choice.Index,
			Text:         choice.Message.Content,
			FinishReason: choice.FinishReason,
		}
	}
	return out
}

// FormatEmbeddingResponse converts a canonical embedding response.
func FormatEmbeddingResponse(resp *providers.EmbeddingResponse) *types.EmbeddingResponse {
	out := &types.EmbeddingResponse{
		Object: "list",
		Model:  resp.Model,
		Data:   make([]types.EmbeddingData, len(resp.Embeddings)),
		Usage: types.Usage{
			PromptTokens: resp.Usage.PromptTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	for i, emb := range resp.Embeddings {
		out.Data[i] = types.EmbeddingData{Object: "embedding", Index: i, Embedding: emb}
	}
	return out
}

// FormatStreamChunk converts a canonical chunk to the OpenAI SSE shape.
func FormatStreamChunk(chunk *providers.StreamChunk, object string) *types.ChatCompletionStreamChunk {
	out := &types.ChatCompletionStreamChunk{
		ID:      chunk.ID,
		Object:  object,
		Created: chunk.Created,
		Model:   chunk.Model,
		Choices: []types.StreamChoice{{
			Index: chunk.Index,
			Delta: types.Delta{
				Content:   chunk.Delta,
				ToolCalls: fromCanonicalToolCalls(chunk.ToolCalls),
			},
			FinishReason: chunk.FinishReason,
		}},
	}
	if chunk.Usage != nil {
		out.Usage = &types.Usage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.TotalTokens,
		}
	}
	return out
}

func fromCanonicalToolCalls(calls []providers.ToolCall) []types.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]types.ToolCall, len(calls))
	for i, tc := range calls {
		out[i] = types.ToolCall{
			ID:   tc.ID,
			Type: tc.Type,
			Function: types.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		}
	}
	return out
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

// WriteError maps err and writes the OpenAI-shaped error body.
func WriteError(w http.ResponseWriter, err error) error {
	status, body := MapError(err)
	return WriteJSON(w, status, body)
}

// SetSSEHeaders prepares the response for event streaming.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// WriteSSEChunk writes one data frame and flushes.
func WriteSSEChunk(w http.ResponseWriter, chunk any) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE chunk: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

// WriteSSEError writes a terminal error frame.
func WriteSSEError(w http.ResponseWriter, err error) error {
	_, body := MapError(err)
	return WriteSSEChunk(w, body)
}

// WriteSSEDone writes the [DONE] sentinel.
func WriteSSEDone(w http.ResponseWriter) error {
	if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}
