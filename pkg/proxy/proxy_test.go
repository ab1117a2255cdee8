package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumenroute/prism/pkg/driver"
	"lumenroute/prism/pkg/providers"
	"lumenroute/prism/pkg/proxy/types"
	"lumenroute/prism/pkg/routing"
)

func TestMapErrorStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &providers.ValidationError{Field: "model", Message: "required"}, http.StatusBadRequest},
		{"bad request", &providers.Error{Kind: providers.KindBadRequest}, http.StatusBadRequest},
		{"auth", &providers.Error{Kind: providers.KindAuthFailed}, http.StatusUnauthorized},
		{"unsupported model", &providers.Error{Kind: providers.KindUnsupportedModel}, http.StatusNotFound},
		{"unsupported feature", &providers.Error{Kind: providers.KindUnsupportedFeature}, http.StatusUnprocessableEntity},
		{"rate limited", &providers.Error{Kind: providers.KindRateLimited}, http.StatusTooManyRequests},
		{"timeout", &providers.Error{Kind: providers.KindTimeout}, http.StatusGatewayTimeout},
		{"transient", &providers.Error{Kind: providers.KindTransient}, http.StatusBadGateway},
		{"no providers", routing.ErrNoProvidersAvailable, http.StatusServiceUnavailable},
		{"all failed mixed", &driver.AllProvidersFailedError{Errors: map[string]error{
			"a": &providers.Error{Kind: providers.KindTransient},
		}}, http.StatusBadGateway},
		{"all breakers open", &driver.AllProvidersFailedError{Errors: map[string]error{
			"a": &driver.BreakerOpenError{Provider: "a"},
			"b": &driver.BreakerOpenError{Provider: "b"},
		}}, http.StatusServiceUnavailable},
		{"opaque", fmt.Errorf("mystery"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := MapError(tt.err)
			assert.Equal(t, tt.want, status)
			assert.NotEmpty(t, body.Error.Type)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestToChatRequestConversion(t *testing.T) {
	temp := 0.0
	maxTokens := 256
	wire := &types.ChatCompletionRequest{
		Model: "gpt-4",
		Messages: []types.Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hello"},
		},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		Stop:        json.RawMessage(`["\n\n"]`),
		Provider:    "openai-primary",
	}

	req := ToChatRequest(wire)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "be brief", req.Messages[0].Content)
	assert.Equal(t, 256, req.MaxTokens)
	require.NotNil(t, req.Temperature)
	assert.Zero(t, *req.Temperature)
	assert.Equal(t, []string{"\n\n"}, req.Stop)
	assert.Equal(t, "openai-primary", req.Routing.PreferredProvider)
}

func TestToChatRequestMultimodalContent(t *testing.T) {
	wire := &types.ChatCompletionRequest{
		Model: "gpt-4o",
		Messages: []types.Message{{
			Role: "user",
			Content: []any{
				map[string]any{"type": "text", "text": "describe"},
				map[string]any{"type": "image_url", "image_url": map[string]any{"url": "https://x/img.png"}},
				map[string]any{"type": "text", "text": "this"},
			},
		}},
	}

	req := ToChatRequest(wire)
	assert.Equal(t, "describe this", req.Messages[0].Content)
}

func TestStopAcceptsStringOrArray(t *testing.T) {
	assert.Equal(t, []string{"END"}, decodeStop(json.RawMessage(`"END"`)))
	assert.Equal(t, []string{"a", "b"}, decodeStop(json.RawMessage(`["a","b"]`)))
	assert.Nil(t, decodeStop(nil))
}

func TestEmbeddingInputAcceptsStringOrArray(t *testing.T) {
	req := ToEmbeddingRequest(&types.EmbeddingRequest{Model: "e", Input: json.RawMessage(`"solo"`)})
	assert.Equal(t, []string{"solo"}, req.Input)

	req = ToEmbeddingRequest(&types.EmbeddingRequest{Model: "e", Input: json.RawMessage(`["a","b"]`)})
	assert.Equal(t, []string{"a", "b"}, req.Input)
}

func TestFormatChatResponse(t *testing.T) {
	resp := &providers.Response{
		ID:      "chatcmpl-1",
		Created: 1700000000,
		Model:   "gpt-4",
		Choices: []providers.Choice{{
			Index:        0,
			Message:      providers.Message{Role: "assistant", Content: "hi"},
			FinishReason: "stop",
		}},
		Usage: providers.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2},
	}

	out := FormatChatResponse(resp)
	assert.Equal(t, "chat.completion", out.Object)
	assert.Equal(t, "gpt-4", out.Model)
	require.Len(t, out.Choices, 1)
	assert.Equal(t, "hi", out.Choices[0].Message.Content)
	assert.Equal(t, 2, out.Usage.TotalTokens)
}

func TestFormatCompletionResponseUsesText(t *testing.T) {
	resp := &providers.Response{
		ID:    "cmpl-1",
		Model: "m",
		Choices: []providers.Choice{{
			Message:      providers.Message{Role: "assistant", Content: "completed text"},
			FinishReason: "stop",
		}},
	}

	out := FormatCompletionResponse(resp)
	assert.Equal(t, "text_completion", out.Object)
	require.Len(t, out.Choices, 1)
	assert.Equal(t, "completed text", out.Choices[0].Text)
}
