package openai

import (
	"fmt"

	"lumenroute/prism/pkg/providers"
)

// Wire types for the chat-completions dialect. These are the only place
// the provider-native shapes live.

type chatRequest struct {
	Model            string         `json:"model"`
	Messages         []chatMessage  `json:"messages"`
	Temperature      *float64       `json:"temperature,omitempty"`
	TopP             *float64       `json:"top_p,omitempty"`
	MaxTokens        int            `json:"max_tokens,omitempty"`
	Stream           bool           `json:"stream,omitempty"`
	Tools            []chatTool     `json:"tools,omitempty"`
	ToolChoice       any            `json:"tool_choice,omitempty"`
	Stop             []string       `json:"stop,omitempty"`
	PresencePenalty  *float64       `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64       `json:"frequency_penalty,omitempty"`
	User             string         `json:"user,omitempty"`
	StreamOptions    *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatTool struct {
	Type     string           `json:"type"`
	Function wireFunctionDefn `json:"function"`
}

type wireFunctionDefn struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   wireUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	Text         string      `json:"text"` // legacy completions
	FinishReason string      `json:"finish_reason"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type completionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
	User        string   `json:"user,omitempty"`
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
	User  string   `json:"user,omitempty"`
}

type embeddingResponse struct {
	Model string          `json:"model"`
	Data  []embeddingItem `json:"data"`
	Usage wireUsage       `json:"usage"`
}

type embeddingItem struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

type imageRequest struct {
	Model          string `json:"model,omitempty"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type imageResponse struct {
	Created int64       `json:"created"`
	Data    []imageItem `json:"data"`
}

type imageItem struct {
	URL     string `json:"url,omitempty"`
	B64JSON string `json:"b64_json,omitempty"`
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Streaming wire types.

type streamResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []streamChoice `json:"choices"`
	Usage   *wireUsage     `json:"usage,omitempty"`
}

type streamChoice struct {
	Index        int         `json:"index"`
	Delta        streamDelta `json:"delta"`
	Text         string      `json:"text"` // legacy completions stream
	FinishReason string      `json:"finish_reason,omitempty"`
}

type streamDelta struct {
	Role      string         `json:"role,omitempty"`
	Content   string         `json:"content,omitempty"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

// transformChat translates a canonical chat request to wire form.
func transformChat(req *providers.ChatRequest, model string) *chatRequest {
	out := &chatRequest{
		Model:            model,
		Messages:         make([]chatMessage, len(req.Messages)),
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		MaxTokens:        req.MaxTokens,
		Stream:           req.Stream,
		Stop:             req.Stop,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
		User:             req.User,
		ToolChoice:       req.ToolChoice,
	}

	for i, msg := range req.Messages {
		out.Messages[i] = chatMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
			ToolCalls:  toWireToolCalls(msg.ToolCalls),
		}
	}

	if len(req.Tools) > 0 {
		out.Tools = make([]chatTool, len(req.Tools))
		for i, tool := range req.Tools {
			out.Tools[i] = chatTool{
				Type: tool.Type,
				Function: wireFunctionDefn{
					Name:        tool.Function.Name,
					Description: tool.Function.Description,
					Parameters:  tool.Function.Parameters,
				},
			}
		}
	}

	if req.Stream {
		out.StreamOptions = &streamOptions{IncludeUsage: true}
	}

	return out
}

// transformResponse normalizes a wire chat/completion response.
func transformResponse(resp *chatResponse, logicalModel string) (*providers.Response, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	out := &providers.Response{
		ID:      resp.ID,
		Created: resp.Created,
		Model:   logicalModel,
		Choices: make([]providers.Choice, len(resp.Choices)),
		Usage: providers.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}

	for i, choice := range resp.Choices {
		content := choice.Message.Content
		if content == "" && choice.Text != "" {
			content = choice.Text
		}
		out.Choices[i] = providers.Choice{
			Index:        choice.Index,
			FinishReason: normalizeFinishReason(choice.FinishReason),
			Message: providers.Message{
				Role:      providers.RoleAssistant,
				Content:   content,
				ToolCalls: fromWireToolCalls(choice.Message.ToolCalls),
			},
		}
	}

	return out, nil
}

// transformStreamChunk normalizes one wire stream frame. Frames without
// choices (usage-only trailers) return a chunk carrying just usage.
func transformStreamChunk(frame *streamResponse, logicalModel string) *providers.StreamChunk {
	chunk := &providers.StreamChunk{
		ID:      frame.ID,
		Model:   logicalModel,
		Created: frame.Created,
	}

	if frame.Usage != nil {
		chunk.Usage = &providers.Usage{
			PromptTokens:     frame.Usage.PromptTokens,
			CompletionTokens: frame.Usage.CompletionTokens,
			TotalTokens:      frame.Usage.TotalTokens,
		}
	}

	if len(frame.Choices) == 0 {
		return chunk
	}

	choice := frame.Choices[0]
	chunk.Index = choice.Index
	chunk.Delta = choice.Delta.Content
	if chunk.Delta == "" && choice.Text != "" {
		chunk.Delta = choice.Text
	}
	chunk.FinishReason = normalizeFinishReason(choice.FinishReason)
	chunk.ToolCalls = fromWireToolCalls(choice.Delta.ToolCalls)

	return chunk
}

func toWireToolCalls(calls []providers.ToolCall) []wireToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]wireToolCall, len(calls))
	for i, tc := range calls {
		out[i] = wireToolCall{
			ID:   tc.ID,
			Type: tc.Type,
			Function: wireFunction{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		}
	}
	return out
}

func fromWireToolCalls(calls []wireToolCall) []providers.ToolCall {
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

// normalizeFinishReason maps wire finish reasons onto canonical values.
func normalizeFinishReason(reason string) string {
	switch reason {
	case "":
		return ""
	case "stop":
		return providers.FinishReasonStop
	case "length":
		return providers.FinishReasonLength
	case "tool_calls", "function_call":
		return providers.FinishReasonToolCalls
	case "content_filter":
		return providers.FinishReasonContentFilter
	default:
		return reason
	}
}
