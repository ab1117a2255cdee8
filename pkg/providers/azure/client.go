// Package azure implements the Azure OpenAI dialect.
//
// Azure serves the chat-completions wire shapes but scopes every call to
// a deployment in the URL path, authenticates with an api-key header,
// and requires an api-version query parameter. The model map is
// mandatory here: logical model names map to deployment names.
package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"lumenroute/prism/pkg/providers"
)

// DefaultAPIVersion is the api-version query value when none is
// configured.
const DefaultAPIVersion = "2024-02-01"

// Provider is the Azure OpenAI adapter.
type Provider struct {
	*providers.HTTPProvider
}

var capabilities = providers.NewCapabilitySet(
	providers.CapChat,
	providers.CapChatStream,
	providers.CapEmbedding,
	providers.CapTools,
)

// New creates an Azure OpenAI adapter. BaseURL is the resource endpoint
// (https://<resource>.openai.azure.com).
func New(config providers.Config) (*Provider, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("provider %q: base_url (resource endpoint) is required for azure", config.Name)
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("provider %q: API key is required for azure", config.Name)
	}
	if config.APIVersion == "" {
		config.APIVersion = DefaultAPIVersion
	}
	// Deployments are provisioned per resource; an unmapped logical
	// model cannot be guessed.
	config.RequireModelMap = true

	p := &Provider{HTTPProvider: providers.NewHTTPProvider(config)}

	slog.Info("provider initialized",
		"provider", config.Name,
		"dialect", "azure",
		"base_url", config.BaseURL,
	)

	return p, nil
}

// Capabilities returns chat, chat streaming, embeddings, and tools.
func (p *Provider) Capabilities() providers.CapabilitySet { return capabilities }

func (p *Provider) authHeaders() map[string]string {
	return map[string]string{
		"api-key":      p.Config().APIKey,
		"Content-Type": "application/json",
	}
}

// deploymentURL builds the deployment-scoped operation URL.
func (p *Provider) deploymentURL(deployment, operation string) string {
	return fmt.Sprintf("%s/openai/deployments/%s/%s?api-version=%s",
		p.Config().BaseURL,
		url.PathEscape(deployment),
		operation,
		url.QueryEscape(p.Config().APIVersion),
	)
}

// Wire types: Azure reuses the chat-completions shapes; only the subset
// this adapter serves is declared.

type chatRequest struct {
	Messages         []chatMessage `json:"messages"`
	Temperature      *float64      `json:"temperature,omitempty"`
	TopP             *float64      `json:"top_p,omitempty"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	Stream           bool          `json:"stream,omitempty"`
	Stop             []string      `json:"stop,omitempty"`
	Tools            []wireTool    `json:"tools,omitempty"`
	ToolChoice       any           `json:"tool_choice,omitempty"`
	PresencePenalty  *float64      `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64      `json:"frequency_penalty,omitempty"`
	User             string        `json:"user,omitempty"`
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

type wireTool struct {
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
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   wireUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type streamResponse struct {
	ID      string         `json:"id"`
	Created int64          `json:"created"`
	Choices []streamChoice `json:"choices"`
	Usage   *wireUsage     `json:"usage,omitempty"`
}

type streamChoice struct {
	Index        int         `json:"index"`
	Delta        streamDelta `json:"delta"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

type streamDelta struct {
	Content   string         `json:"content,omitempty"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

type embeddingRequest struct {
	Input []string `json:"input"`
	User  string   `json:"user,omitempty"`
}

type embeddingResponse struct {
	Data  []embeddingItem `json:"data"`
	Usage wireUsage       `json:"usage"`
}

type embeddingItem struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

func transformChat(req *providers.ChatRequest) *chatRequest {
	out := &chatRequest{
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
		}
		for _, tc := range msg.ToolCalls {
			out.Messages[i].ToolCalls = append(out.Messages[i].ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: tc.Type,
				Function: wireFunction{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
	}
	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, wireTool{
			Type: tool.Type,
			Function: wireFunctionDefn{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		})
	}
	return out
}

// Chat sends a non-streaming chat completion to the deployment.
func (p *Provider) Chat(ctx context.Context, req *providers.ChatRequest) (*providers.Response, error) {
	if err := providers.ValidateChat(req); err != nil {
		return nil, err
	}
	deployment, err := p.NativeModel(req.Model)
	if err != nil {
		return nil, err
	}

	wire := transformChat(req)
	wire.Stream = false

	var resp chatResponse
	if err := p.DoJSON(ctx, http.MethodPost, p.deploymentURL(deployment, "chat/completions"), wire, &resp, p.authHeaders()); err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, &providers.Error{Provider: p.Name(), Kind: providers.KindTransient, Message: "no choices in response"}
	}

	out := &providers.Response{
		ID:      resp.ID,
		Created: resp.Created,
		Model:   req.Model,
		Choices: make([]providers.Choice, len(resp.Choices)),
		Usage: providers.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for i, choice := range resp.Choices {
		msg := providers.Message{Role: providers.RoleAssistant, Content: choice.Message.Content}
		for _, tc := range choice.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, providers.ToolCall{
				ID:   tc.ID,
				Type: tc.Type,
				Function: providers.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		out.Choices[i] = providers.Choice{
			Index:        choice.Index,
			Message:      msg,
			FinishReason: normalizeFinishReason(choice.FinishReason),
		}
	}
	return out, nil
}

// ChatStream sends a streaming chat completion to the deployment.
func (p *Provider) ChatStream(ctx context.Context, req *providers.ChatRequest) (<-chan *providers.StreamChunk, error) {
	if err := providers.ValidateChat(req); err != nil {
		return nil, err
	}
	deployment, err := p.NativeModel(req.Model)
	if err != nil {
		return nil, err
	}

	wire := transformChat(req)
	wire.Stream = true

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, &providers.Error{Provider: p.Name(), Kind: providers.KindBadRequest, Message: "failed to marshal request", Cause: err}
	}

	headers := p.authHeaders()
	headers["Accept"] = "text/event-stream"

	resp, err := p.DoRequest(ctx, http.MethodPost, p.deploymentURL(deployment, "chat/completions"), body, headers)
	if err != nil {
		return nil, err
	}

	out := make(chan *providers.StreamChunk)
	go p.runStream(ctx, resp.Body, req.Model, out)
	return out, nil
}

// runStream reads the SSE stream and forwards canonical chunks.
func (p *Provider) runStream(ctx context.Context, body io.ReadCloser, logicalModel string, out chan<- *providers.StreamChunk) {
	defer close(out)

	reader := providers.NewSSEReader(p.Name(), body)
	defer reader.Close()

	var (
		finished bool
		streamID string
	)

	for {
		_, data, err := reader.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			p.send(ctx, out, &providers.StreamChunk{
				ID:           streamID,
				Model:        logicalModel,
				FinishReason: providers.FinishReasonError,
				Err:          err,
			})
			return
		}

		var frame streamResponse
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			p.send(ctx, out, &providers.StreamChunk{
				ID:           streamID,
				Model:        logicalModel,
				FinishReason: providers.FinishReasonError,
				Err:          &providers.Error{Provider: p.Name(), Kind: providers.KindTransient, Message: "failed to parse stream frame", Cause: err},
			})
			return
		}

		chunk := &providers.StreamChunk{ID: frame.ID, Model: logicalModel, Created: frame.Created}
		streamID = frame.ID
		if frame.Usage != nil {
			chunk.Usage = &providers.Usage{
				PromptTokens:     frame.Usage.PromptTokens,
				CompletionTokens: frame.Usage.CompletionTokens,
				TotalTokens:      frame.Usage.TotalTokens,
			}
		}
		if len(frame.Choices) > 0 {
			choice := frame.Choices[0]
			chunk.Index = choice.Index
			chunk.Delta = choice.Delta.Content
			chunk.FinishReason = normalizeFinishReason(choice.FinishReason)
		}

		if !p.send(ctx, out, chunk) {
			return
		}
		if chunk.FinishReason != "" {
			finished = true
		}
	}

	if !finished {
		p.send(ctx, out, &providers.StreamChunk{
			ID:           streamID,
			Model:        logicalModel,
			FinishReason: providers.FinishReasonError,
			Err: &providers.Error{
				Provider: p.Name(),
				Kind:     providers.KindTruncatedStream,
				Message:  "stream ended without a finish reason",
			},
		})
	}
}

func (p *Provider) send(ctx context.Context, out chan<- *providers.StreamChunk, chunk *providers.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// Completion is not served; Azure retired the legacy completions API.
func (p *Provider) Completion(ctx context.Context, req *providers.CompletionRequest) (*providers.Response, error) {
	return nil, providers.ErrUnsupported(p.Name(), providers.OpCompletion)
}

// CompletionStream is not served.
func (p *Provider) CompletionStream(ctx context.Context, req *providers.CompletionRequest) (<-chan *providers.StreamChunk, error) {
	return nil, providers.ErrUnsupported(p.Name(), providers.OpCompletion)
}

// Embedding embeds input strings via the deployment.
func (p *Provider) Embedding(ctx context.Context, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	if err := providers.ValidateEmbedding(req); err != nil {
		return nil, err
	}
	deployment, err := p.NativeModel(req.Model)
	if err != nil {
		return nil, err
	}

	wire := &embeddingRequest{Input: req.Input, User: req.User}

	var resp embeddingResponse
	if err := p.DoJSON(ctx, http.MethodPost, p.deploymentURL(deployment, "embeddings"), wire, &resp, p.authHeaders()); err != nil {
		return nil, err
	}

	out := &providers.EmbeddingResponse{
		Model:      req.Model,
		Embeddings: make([][]float64, len(resp.Data)),
		Usage: providers.Usage{
			PromptTokens: resp.Usage.PromptTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	for _, item := range resp.Data {
		if item.Index >= 0 && item.Index < len(out.Embeddings) {
			out.Embeddings[item.Index] = item.Embedding
		}
	}
	return out, nil
}

// Image is not served by this adapter.
func (p *Provider) Image(ctx context.Context, req *providers.ImageRequest) (*providers.ImageResponse, error) {
	return nil, providers.ErrUnsupported(p.Name(), providers.OpImage)
}

// Transcribe is not served by this adapter.
func (p *Provider) Transcribe(ctx context.Context, req *providers.TranscriptionRequest) (*providers.TranscriptionResponse, error) {
	return nil, providers.ErrUnsupported(p.Name(), providers.OpTranscription)
}

// HealthCheck lists deployments' models endpoint on the resource.
func (p *Provider) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/openai/models?api-version=%s", p.Config().BaseURL, p.Config().APIVersion)
	resp, err := p.DoRequest(ctx, http.MethodGet, url, nil, map[string]string{"api-key": p.Config().APIKey})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

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
