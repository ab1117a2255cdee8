package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"lumenroute/prism/pkg/providers"
)

const (
	// DefaultAPIVersion is the anthropic-version header value.
	DefaultAPIVersion = "2023-06-01"
)

// Provider is the Anthropic Messages API adapter.
type Provider struct {
	*providers.HTTPProvider
}

var capabilities = providers.NewCapabilitySet(
	providers.CapChat,
	providers.CapChatStream,
	providers.CapTools,
)

// New creates an Anthropic adapter.
func New(config providers.Config) (*Provider, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.anthropic.com"
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("provider %q: API key is required", config.Name)
	}
	if config.APIVersion == "" {
		config.APIVersion = DefaultAPIVersion
	}

	p := &Provider{HTTPProvider: providers.NewHTTPProvider(config)}

	slog.Info("provider initialized",
		"provider", config.Name,
		"dialect", "anthropic",
		"base_url", config.BaseURL,
	)

	return p, nil
}

// Capabilities returns chat, chat streaming, and tools.
func (p *Provider) Capabilities() providers.CapabilitySet { return capabilities }

func (p *Provider) authHeaders() map[string]string {
	return map[string]string{
		"x-api-key":         p.Config().APIKey,
		"anthropic-version": p.Config().APIVersion,
		"Content-Type":      "application/json",
	}
}

// Chat sends a non-streaming message request.
func (p *Provider) Chat(ctx context.Context, req *providers.ChatRequest) (*providers.Response, error) {
	if err := providers.ValidateChat(req); err != nil {
		return nil, err
	}
	model, err := p.NativeModel(req.Model)
	if err != nil {
		return nil, err
	}

	wire, err := transformChat(req, model)
	if err != nil {
		return nil, err
	}
	wire.Stream = false

	var resp messagesResponse
	url := p.Config().BaseURL + "/v1/messages"
	if err := p.DoJSON(ctx, http.MethodPost, url, wire, &resp, p.authHeaders()); err != nil {
		return nil, err
	}

	return transformResponse(&resp, req.Model), nil
}

// ChatStream sends a streaming message request.
func (p *Provider) ChatStream(ctx context.Context, req *providers.ChatRequest) (<-chan *providers.StreamChunk, error) {
	if err := providers.ValidateChat(req); err != nil {
		return nil, err
	}
	model, err := p.NativeModel(req.Model)
	if err != nil {
		return nil, err
	}

	wire, err := transformChat(req, model)
	if err != nil {
		return nil, err
	}
	wire.Stream = true

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, &providers.Error{Provider: p.Name(), Kind: providers.KindBadRequest, Message: "failed to marshal request", Cause: err}
	}

	headers := p.authHeaders()
	headers["Accept"] = "text/event-stream"

	resp, err := p.DoRequest(ctx, http.MethodPost, p.Config().BaseURL+"/v1/messages", body, headers)
	if err != nil {
		return nil, err
	}

	out := make(chan *providers.StreamChunk)
	go runStream(ctx, p, resp.Body, req.Model, out)
	return out, nil
}

// Completion is not part of the Messages dialect.
func (p *Provider) Completion(ctx context.Context, req *providers.CompletionRequest) (*providers.Response, error) {
	return nil, providers.ErrUnsupported(p.Name(), providers.OpCompletion)
}

// CompletionStream is not part of the Messages dialect.
func (p *Provider) CompletionStream(ctx context.Context, req *providers.CompletionRequest) (<-chan *providers.StreamChunk, error) {
	return nil, providers.ErrUnsupported(p.Name(), providers.OpCompletion)
}

// Embedding is not offered by Anthropic.
func (p *Provider) Embedding(ctx context.Context, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	return nil, providers.ErrUnsupported(p.Name(), providers.OpEmbedding)
}

// Image is not offered by Anthropic.
func (p *Provider) Image(ctx context.Context, req *providers.ImageRequest) (*providers.ImageResponse, error) {
	return nil, providers.ErrUnsupported(p.Name(), providers.OpImage)
}

// Transcribe is not offered by Anthropic.
func (p *Provider) Transcribe(ctx context.Context, req *providers.TranscriptionRequest) (*providers.TranscriptionResponse, error) {
	return nil, providers.ErrUnsupported(p.Name(), providers.OpTranscription)
}

// HealthCheck lists models.
func (p *Provider) HealthCheck(ctx context.Context) error {
	resp, err := p.DoRequest(ctx, http.MethodGet, p.Config().BaseURL+"/v1/models", nil, map[string]string{
		"x-api-key":         p.Config().APIKey,
		"anthropic-version": p.Config().APIVersion,
	})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
