package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"lumenroute/prism/pkg/providers"
	"lumenroute/prism/pkg/proxy/types"
)

// DecodeJSON reads and decodes a JSON request body.
func DecodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}
	if len(body) == 0 {
		return fmt.Errorf("request body is empty")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ToChatRequest converts the wire body to the canonical request.
func ToChatRequest(req *types.ChatCompletionRequest) *providers.ChatRequest {
	out := &providers.ChatRequest{
		Model:            req.Model,
		Messages:         make([]providers.Message, 0, len(req.Messages)),
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		Stream:           req.Stream,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
		ToolChoice:       req.ToolChoice,
		User:             req.User,
		Stop:             decodeStop(req.Stop),
		Routing: providers.RoutingHints{
			PreferredProvider: req.Provider,
			Region:            req.Region,
			CostCeiling:       req.CostCeiling,
		},
	}

	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}

	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, providers.Message{
			Role:       msg.Role,
			Content:    flattenContent(msg.Content),
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
			ToolCalls:  toCanonicalToolCalls(msg.ToolCalls),
		})
	}

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, providers.Tool{
			Type: tool.Type,
			Function: providers.FunctionDefinition{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		})
	}

	return out
}

// ToCompletionRequest converts the wire body to the canonical request.
func ToCompletionRequest(req *types.CompletionRequest) *providers.CompletionRequest {
	out := &providers.CompletionRequest{
		Model:       req.Model,
		Prompt:      decodePrompt(req.Prompt),
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
		User:        req.User,
		Stop:        decodeStop(req.Stop),
		Routing: providers.RoutingHints{
			PreferredProvider: req.Provider,
			Region:            req.Region,
		},
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	return out
}

// ToEmbeddingRequest converts the wire body to the canonical request.
func ToEmbeddingRequest(req *types.EmbeddingRequest) *providers.EmbeddingRequest {
	return &providers.EmbeddingRequest{
		Model: req.Model,
		Input: decodeInput(req.Input),
		User:  req.User,
		Routing: providers.RoutingHints{
			PreferredProvider: req.Provider,
			Region:            req.Region,
		},
	}
}

// flattenContent reduces string-or-parts content to text, keeping only
// text parts of multimodal arrays.
func flattenContent(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		var text string
		for _, part := range v {
			m, ok := part.(map[string]any)
			if !ok {
				continue
			}
			if m["type"] == "text" {
				if t, ok := m["text"].(string); ok {
					if text != "" {
						text += " "
					}
					text += t
				}
			}
		}
		return text
	default:
		return fmt.Sprintf("%v", content)
	}
}

// decodeStop accepts a string or an array of strings.
func decodeStop(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	return nil
}

// decodePrompt accepts a string or an array of strings (joined).
func decodePrompt(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		out := many[0]
		for _, p := range many[1:] {
			out += "\n" + p
		}
		return out
	}
	return ""
}

// decodeInput accepts a string or an array of strings.
func decodeInput(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	return nil
}

func toCanonicalToolCalls(calls []types.ToolCall) []providers.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]providers.ToolCall, len(calls))
	for i, tc := range calls {
		out[i] = providers.ToolCall{
			ID:   tc.ID,
			Type: tc.Type,
			Function: providers.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		}
	}
	return out
}
