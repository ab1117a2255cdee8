package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"lumenroute/prism/pkg/providers"
)

// Provider is the chat-completions dialect adapter. It serves OpenAI
// itself plus the compatible hosted providers (Groq, Mistral,
// Perplexity, Together) that differ only in base URL and model map.
type Provider struct {
	*providers.HTTPProvider
}

var capabilities = providers.NewCapabilitySet(
	providers.CapChat,
	providers.CapChatStream,
	providers.CapCompletion,
	providers.CapCompletionStream,
	providers.CapEmbedding,
	providers.CapImage,
	providers.CapAudio,
	providers.CapTools,
)

// New creates an adapter for the chat-completions dialect.
func New(config providers.Config) (*Provider, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("provider %q: API key is required", config.Name)
	}

	p := &Provider{HTTPProvider: providers.NewHTTPProvider(config)}

	slog.Info("provider initialized",
		"provider", config.Name,
		"dialect", config.Dialect,
		"base_url", config.BaseURL,
	)

	return p, nil
}

// Capabilities returns the full dialect capability set.
func (p *Provider) Capabilities() providers.CapabilitySet { return capabilities }

// authHeaders returns the mandatory auth headers for this dialect.
func (p *Provider) authHeaders() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + p.Config().APIKey,
		"Content-Type":  "application/json",
	}
}

// Chat sends a non-streaming chat completion.
func (p *Provider) Chat(ctx context.Context, req *providers.ChatRequest) (*providers.Response, error) {
	if err := providers.ValidateChat(req); err != nil {
		return nil, err
	}
	model, err := p.NativeModel(req.Model)
	if err != nil {
		return nil, err
	}

	wire := transformChat(req, model)
	wire.Stream = false
	wire.StreamOptions = nil

	var resp chatResponse
	url := p.Config().BaseURL + "/chat/completions"
	if err := p.DoJSON(ctx, http.MethodPost, url, wire, &resp, p.authHeaders()); err != nil {
		return nil, err
	}

	out, err := transformResponse(&resp, req.Model)
	if err != nil {
		return nil, &providers.Error{Provider: p.Name(), Kind: providers.KindTransient, Message: "malformed provider response", Cause: err}
	}
	p.fillUsage(out, req)
	return out, nil
}

// ChatStream sends a streaming chat completion.
func (p *Provider) ChatStream(ctx context.Context, req *providers.ChatRequest) (<-chan *providers.StreamChunk, error) {
	if err := providers.ValidateChat(req); err != nil {
		return nil, err
	}
	model, err := p.NativeModel(req.Model)
	if err != nil {
		return nil, err
	}

	wire := transformChat(req, model)
	wire.Stream = true

	body, err := p.openStream(ctx, p.Config().BaseURL+"/chat/completions", wire)
	if err != nil {
		return nil, err
	}

	out := make(chan *providers.StreamChunk)
	go runStream(ctx, p, body, req.Model, out)
	return out, nil
}

// Completion sends a non-streaming legacy text completion.
func (p *Provider) Completion(ctx context.Context, req *providers.CompletionRequest) (*providers.Response, error) {
	if err := providers.ValidateCompletion(req); err != nil {
		return nil, err
	}
	model, err := p.NativeModel(req.Model)
	if err != nil {
		return nil, err
	}

	wire := &completionRequest{
		Model:       model,
		Prompt:      req.Prompt,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
		User:        req.User,
	}

	var resp chatResponse
	url := p.Config().BaseURL + "/completions"
	if err := p.DoJSON(ctx, http.MethodPost, url, wire, &resp, p.authHeaders()); err != nil {
		return nil, err
	}

	out, err := transformResponse(&resp, req.Model)
	if err != nil {
		return nil, &providers.Error{Provider: p.Name(), Kind: providers.KindTransient, Message: "malformed provider response", Cause: err}
	}
	if out.Usage.TotalTokens == 0 {
		prompt := providers.EstimateTokens(req.Prompt)
		completion := providers.EstimateTokens(out.Content())
		out.Usage = providers.Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
	}
	return out, nil
}

// CompletionStream sends a streaming text completion.
func (p *Provider) CompletionStream(ctx context.Context, req *providers.CompletionRequest) (<-chan *providers.StreamChunk, error) {
	if err := providers.ValidateCompletion(req); err != nil {
		return nil, err
	}
	model, err := p.NativeModel(req.Model)
	if err != nil {
		return nil, err
	}

	wire := &completionRequest{
		Model:       model,
		Prompt:      req.Prompt,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
		Stream:      true,
		User:        req.User,
	}

	body, err := p.openStream(ctx, p.Config().BaseURL+"/completions", wire)
	if err != nil {
		return nil, err
	}

	out := make(chan *providers.StreamChunk)
	go runStream(ctx, p, body, req.Model, out)
	return out, nil
}

// Embedding embeds one or more input strings.
func (p *Provider) Embedding(ctx context.Context, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	if err := providers.ValidateEmbedding(req); err != nil {
		return nil, err
	}
	model, err := p.NativeModel(req.Model)
	if err != nil {
		return nil, err
	}

	wire := &embeddingRequest{Model: model, Input: req.Input, User: req.User}

	var resp embeddingResponse
	url := p.Config().BaseURL + "/embeddings"
	if err := p.DoJSON(ctx, http.MethodPost, url, wire, &resp, p.authHeaders()); err != nil {
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

// Image generates images from a prompt.
func (p *Provider) Image(ctx context.Context, req *providers.ImageRequest) (*providers.ImageResponse, error) {
	model, err := p.NativeModel(req.Model)
	if err != nil {
		return nil, err
	}

	wire := &imageRequest{
		Model:          model,
		Prompt:         req.Prompt,
		N:              req.N,
		Size:           req.Size,
		ResponseFormat: req.ResponseFormat,
	}

	var resp imageResponse
	url := p.Config().BaseURL + "/images/generations"
	if err := p.DoJSON(ctx, http.MethodPost, url, wire, &resp, p.authHeaders()); err != nil {
		return nil, err
	}

	out := &providers.ImageResponse{Created: resp.Created, Images: make([]providers.ImageData, len(resp.Data))}
	for i, item := range resp.Data {
		out.Images[i] = providers.ImageData{URL: item.URL, B64JSON: item.B64JSON}
	}
	return out, nil
}

// Transcribe transcribes audio via the multipart transcription endpoint.
func (p *Provider) Transcribe(ctx context.Context, req *providers.TranscriptionRequest) (*providers.TranscriptionResponse, error) {
	model, err := p.NativeModel(req.Model)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", req.Filename)
	if err != nil {
		return nil, &providers.Error{Provider: p.Name(), Kind: providers.KindBadRequest, Message: "failed to build multipart body", Cause: err}
	}
	if _, err := part.Write(req.Audio); err != nil {
		return nil, &providers.Error{Provider: p.Name(), Kind: providers.KindBadRequest, Message: "failed to write audio payload", Cause: err}
	}
	if err := mw.WriteField("model", model); err != nil {
		return nil, &providers.Error{Provider: p.Name(), Kind: providers.KindBadRequest, Message: "failed to write model field", Cause: err}
	}
	if req.Language != "" {
		if err := mw.WriteField("language", req.Language); err != nil {
			return nil, &providers.Error{Provider: p.Name(), Kind: providers.KindBadRequest, Message: "failed to write language field", Cause: err}
		}
	}
	if err := mw.Close(); err != nil {
		return nil, &providers.Error{Provider: p.Name(), Kind: providers.KindBadRequest, Message: "failed to finalize multipart body", Cause: err}
	}

	headers := map[string]string{
		"Authorization": "Bearer " + p.Config().APIKey,
		"Content-Type":  mw.FormDataContentType(),
	}

	resp, err := p.DoRequest(ctx, http.MethodPost, p.Config().BaseURL+"/audio/transcriptions", buf.Bytes(), headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &providers.Error{Provider: p.Name(), Kind: providers.KindTransient, Message: "failed to read transcription response", Cause: err}
	}

	var tr transcriptionResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, &providers.Error{Provider: p.Name(), Kind: providers.KindTransient, Message: "failed to parse transcription response", Cause: err}
	}

	tokens := providers.EstimateTokens(tr.Text)
	return &providers.TranscriptionResponse{
		Text:  tr.Text,
		Usage: providers.Usage{CompletionTokens: tokens, TotalTokens: tokens},
	}, nil
}

// HealthCheck lists models, the cheapest free endpoint this dialect has.
func (p *Provider) HealthCheck(ctx context.Context) error {
	resp, err := p.DoRequest(ctx, http.MethodGet, p.Config().BaseURL+"/models", nil, map[string]string{
		"Authorization": "Bearer " + p.Config().APIKey,
	})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// openStream issues the streaming POST and hands back the response body.
func (p *Provider) openStream(ctx context.Context, url string, wire any) (io.ReadCloser, error) {
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, &providers.Error{Provider: p.Name(), Kind: providers.KindBadRequest, Message: "failed to marshal request", Cause: err}
	}

	headers := p.authHeaders()
	headers["Accept"] = "text/event-stream"

	resp, err := p.DoRequest(ctx, http.MethodPost, url, body, headers)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// fillUsage estimates usage when the provider omitted it.
func (p *Provider) fillUsage(resp *providers.Response, req *providers.ChatRequest) {
	if resp.Usage.TotalTokens > 0 {
		return
	}
	prompt := providers.EstimateChatTokens(req.Messages)
	completion := providers.EstimateTokens(resp.Content())
	resp.Usage = providers.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}
