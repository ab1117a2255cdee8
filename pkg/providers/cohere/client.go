// Package cohere implements the Cohere chat and embed dialect.
//
// Cohere's chat API takes the latest user message separately from the
// prior turns (chat_history) and has no system role: the first system
// message becomes the preamble, and any further system messages are
// merged into the outgoing (final) user message under a "System:"
// prefix.
package cohere

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"lumenroute/prism/pkg/providers"
)

// Provider is the Cohere adapter.
type Provider struct {
	*providers.HTTPProvider
}

var capabilities = providers.NewCapabilitySet(
	providers.CapChat,
	providers.CapEmbedding,
)

// New creates a Cohere adapter.
func New(config providers.Config) (*Provider, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.cohere.com"
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("provider %q: API key is required", config.Name)
	}

	p := &Provider{HTTPProvider: providers.NewHTTPProvider(config)}

	slog.Info("provider initialized",
		"provider", config.Name,
		"dialect", "cohere",
		"base_url", config.BaseURL,
	)

	return p, nil
}

// Capabilities returns chat and embeddings.
func (p *Provider) Capabilities() providers.CapabilitySet { return capabilities }

func (p *Provider) authHeaders() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + p.Config().APIKey,
		"Content-Type":  "application/json",
	}
}

// Wire types.

type chatRequest struct {
	Model         string        `json:"model"`
	Message       string        `json:"message"`
	ChatHistory   []historyTurn `json:"chat_history,omitempty"`
	Preamble      string        `json:"preamble,omitempty"`
	Temperature   *float64      `json:"temperature,omitempty"`
	P             *float64      `json:"p,omitempty"`
	MaxTokens     int           `json:"max_tokens,omitempty"`
	StopSequences []string      `json:"stop_sequences,omitempty"`
}

type historyTurn struct {
	Role    string `json:"role"` // USER or CHATBOT
	Message string `json:"message"`
}

type chatResponse struct {
	GenerationID string    `json:"generation_id"`
	Text         string    `json:"text"`
	FinishReason string    `json:"finish_reason"`
	Meta         *chatMeta `json:"meta,omitempty"`
}

type chatMeta struct {
	Tokens *tokenCounts `json:"tokens,omitempty"`
}

type tokenCounts struct {
	InputTokens  float64 `json:"input_tokens"`
	OutputTokens float64 `json:"output_tokens"`
}

type embedRequest struct {
	Model          string   `json:"model"`
	Texts          []string `json:"texts"`
	InputType      string   `json:"input_type"`
	EmbeddingTypes []string `json:"embedding_types,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Meta       *chatMeta   `json:"meta,omitempty"`
}

// transformChat splits the canonical conversation into Cohere's
// message/history/preamble shape.
func transformChat(req *providers.ChatRequest, model string) (*chatRequest, error) {
	out := &chatRequest{
		Model:         model,
		Temperature:   req.Temperature,
		P:             req.TopP,
		MaxTokens:     req.MaxTokens,
		StopSequences: req.Stop,
	}

	var turns []historyTurn
	var extraSystem []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case providers.RoleSystem:
			if out.Preamble == "" {
				out.Preamble = msg.Content
			} else {
				extraSystem = append(extraSystem, msg.Content)
			}
		case providers.RoleUser:
			turns = append(turns, historyTurn{Role: "USER", Message: msg.Content})
		case providers.RoleAssistant:
			turns = append(turns, historyTurn{Role: "CHATBOT", Message: msg.Content})
		default:
			return nil, &providers.ValidationError{
				Field:   "messages",
				Message: fmt.Sprintf("role %q cannot be expressed in this dialect", msg.Role),
			}
		}
	}

	if len(turns) == 0 || turns[len(turns)-1].Role != "USER" {
		return nil, &providers.ValidationError{
			Field:   "messages",
			Message: "conversation must end with a user message",
		}
	}

	// The final user turn is the message; everything before is history.
	out.Message = turns[len(turns)-1].Message
	out.ChatHistory = turns[:len(turns)-1]

	// Overflow system messages are merged into the outgoing message
	// under a documented prefix since the dialect has a single preamble.
	if len(extraSystem) > 0 {
		out.Message = "System: " + strings.Join(extraSystem, "\n") + "\n\n" + out.Message
	}

	return out, nil
}

// Chat sends a non-streaming chat request.
func (p *Provider) Chat(ctx context.Context, req *providers.ChatRequest) (*providers.Response, error) {
	if err := providers.ValidateChat(req); err != nil {
		return nil, err
	}
	if len(req.Tools) > 0 {
		return nil, providers.ErrUnsupported(p.Name(), "tool_calls")
	}
	model, err := p.NativeModel(req.Model)
	if err != nil {
		return nil, err
	}

	wire, err := transformChat(req, model)
	if err != nil {
		return nil, err
	}

	var resp chatResponse
	if err := p.DoJSON(ctx, http.MethodPost, p.Config().BaseURL+"/v1/chat", wire, &resp, p.authHeaders()); err != nil {
		return nil, err
	}

	out := &providers.Response{
		ID:    resp.GenerationID,
		Model: req.Model,
		Choices: []providers.Choice{{
			Index:        0,
			Message:      providers.Message{Role: providers.RoleAssistant, Content: resp.Text},
			FinishReason: normalizeFinishReason(resp.FinishReason),
		}},
	}

	if resp.Meta != nil && resp.Meta.Tokens != nil {
		prompt := int(resp.Meta.Tokens.InputTokens)
		completion := int(resp.Meta.Tokens.OutputTokens)
		out.Usage = providers.Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
	} else {
		prompt := providers.EstimateChatTokens(req.Messages)
		completion := providers.EstimateTokens(resp.Text)
		out.Usage = providers.Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
	}

	return out, nil
}

// ChatStream is not served by this adapter.
func (p *Provider) ChatStream(ctx context.Context, req *providers.ChatRequest) (<-chan *providers.StreamChunk, error) {
	return nil, providers.ErrUnsupported(p.Name(), providers.OpChat)
}

// Completion is not part of this dialect.
func (p *Provider) Completion(ctx context.Context, req *providers.CompletionRequest) (*providers.Response, error) {
	return nil, providers.ErrUnsupported(p.Name(), providers.OpCompletion)
}

// CompletionStream is not part of this dialect.
func (p *Provider) CompletionStream(ctx context.Context, req *providers.CompletionRequest) (<-chan *providers.StreamChunk, error) {
	return nil, providers.ErrUnsupported(p.Name(), providers.OpCompletion)
}

// Embedding embeds input strings.
func (p *Provider) Embedding(ctx context.Context, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	if err := providers.ValidateEmbedding(req); err != nil {
		return nil, err
	}
	model, err := p.NativeModel(req.Model)
	if err != nil {
		return nil, err
	}

	wire := &embedRequest{
		Model:     model,
		Texts:     req.Input,
		InputType: "search_document",
	}

	var resp embedResponse
	if err := p.DoJSON(ctx, http.MethodPost, p.Config().BaseURL+"/v1/embed", wire, &resp, p.authHeaders()); err != nil {
		return nil, err
	}

	out := &providers.EmbeddingResponse{Model: req.Model, Embeddings: resp.Embeddings}
	if resp.Meta != nil && resp.Meta.Tokens != nil {
		out.Usage = providers.Usage{
			PromptTokens: int(resp.Meta.Tokens.InputTokens),
			TotalTokens:  int(resp.Meta.Tokens.InputTokens),
		}
	} else {
		tokens := 0
		for _, input := range req.Input {
			tokens += providers.EstimateTokens(input)
		}
		out.Usage = providers.Usage{PromptTokens: tokens, TotalTokens: tokens}
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

// HealthCheck lists models.
func (p *Provider) HealthCheck(ctx context.Context) error {
	resp, err := p.DoRequest(ctx, http.MethodGet, p.Config().BaseURL+"/v1/models", nil, map[string]string{
		"Authorization": "Bearer " + p.Config().APIKey,
	})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// normalizeFinishReason maps Cohere finish reasons onto canonical
// values.
func normalizeFinishReason(reason string) string {
	switch reason {
	case "":
		return ""
	case "COMPLETE", "STOP_SEQUENCE":
		return providers.FinishReasonStop
	case "MAX_TOKENS":
		return providers.FinishReasonLength
	case "TOXICITY":
		return providers.FinishReasonContentFilter
	default:
		return providers.FinishReasonStop
	}
}
