package anthropic

import (
	"encoding/json"
	"fmt"

	"lumenroute/prism/pkg/providers"
)

// Wire types for the Messages API.

type messagesRequest struct {
	Model         string        `json:"model"`
	MaxTokens     int           `json:"max_tokens"`
	System        string        `json:"system,omitempty"`
	Messages      []wireMessage `json:"messages"`
	Temperature   *float64      `json:"temperature,omitempty"`
	TopP          *float64      `json:"top_p,omitempty"`
	StopSequences []string      `json:"stop_sequences,omitempty"`
	Stream        bool          `json:"stream,omitempty"`
	Tools         []wireTool    `json:"tools,omitempty"`
}

type wireMessage struct {
	Role    string      `json:"role"`
	Content []wireBlock `json:"content"`
}

type wireBlock struct {
	Type string `json:"type"`

	// type == "text"
	Text string `json:"text,omitempty"`

	// type == "tool_use"
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// type == "tool_result"
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type wireTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type messagesResponse struct {
	ID         string      `json:"id"`
	Model      string      `json:"model"`
	Content    []wireBlock `json:"content"`
	StopReason string      `json:"stop_reason"`
	Usage      wireUsage   `json:"usage"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Streaming wire frames. Each SSE event names its frame type.

type streamFrame struct {
	Type string `json:"type"`

	// message_start
	Message *messagesResponse `json:"message,omitempty"`

	// content_block_delta
	Index int         `json:"index,omitempty"`
	Delta *frameDelta `json:"delta,omitempty"`

	// message_delta
	Usage *wireUsage `json:"usage,omitempty"`
}

type frameDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

// defaultMaxTokens is applied when the client leaves max_tokens unset;
// the Messages API rejects requests without it.
const defaultMaxTokens = 4096

// transformChat translates a canonical chat request to Messages form.
// System messages are lifted into the top-level system field; tool-role
// messages become user-side tool_result blocks.
func transformChat(req *providers.ChatRequest, model string) (*messagesRequest, error) {
	out := &messagesRequest{
		Model:         model,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.Stop,
		Stream:        req.Stream,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = defaultMaxTokens
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case providers.RoleSystem:
			if out.System != "" {
				out.System += "\n"
			}
			out.System += msg.Content

		case providers.RoleUser:
			out.Messages = append(out.Messages, wireMessage{
				Role:    "user",
				Content: []wireBlock{{Type: "text", Text: msg.Content}},
			})

		case providers.RoleAssistant:
			blocks := make([]wireBlock, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, wireBlock{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, wireBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Function.Name,
					Input: json.RawMessage(tc.Function.Arguments),
				})
			}
			out.Messages = append(out.Messages, wireMessage{Role: "assistant", Content: blocks})

		case providers.RoleTool:
			out.Messages = append(out.Messages, wireMessage{
				Role: "user",
				Content: []wireBlock{{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   msg.Content,
				}},
			})

		default:
			return nil, &providers.ValidationError{
				Field:   "messages",
				Message: fmt.Sprintf("unknown role %q", msg.Role),
			}
		}
	}

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, wireTool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: tool.Function.Parameters,
		})
	}

	return out, nil
}

// transformResponse normalizes a Messages response.
func transformResponse(resp *messagesResponse, logicalModel string) *providers.Response {
	msg := providers.Message{Role: providers.RoleAssistant}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			msg.Content += block.Text
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, providers.ToolCall{
				ID:   block.ID,
				Type: providers.ToolTypeFunction,
				Function: providers.FunctionCall{
					Name:      block.Name,
					Arguments: string(block.Input),
				},
			})
		}
	}

	return &providers.Response{
		ID:    resp.ID,
		Model: logicalModel,
		Choices: []providers.Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: normalizeStopReason(resp.StopReason),
		}},
		Usage: providers.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
}

// normalizeStopReason maps Messages stop reasons onto canonical finish
// reasons.
func normalizeStopReason(reason string) string {
	switch reason {
	case "":
		return ""
	case "end_turn", "stop_sequence":
		return providers.FinishReasonStop
	case "max_tokens":
		return providers.FinishReasonLength
	case "tool_use":
		return providers.FinishReasonToolCalls
	default:
		return reason
	}
}
