// Package vertex implements the Google Gemini generateContent dialect
// used by Vertex AI and the Generative Language API.
//
// Differences from the chat-completions dialect the adapter absorbs:
// the model lives in the URL path, the API key is a query parameter,
// messages become contents with parts, the assistant role is named
// "model", and system messages are lifted into systemInstruction.
package vertex

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

// Provider is the Gemini dialect adapter.
type Provider struct {
	*providers.HTTPProvider
}

var capabilities = providers.NewCapabilitySet(
	providers.CapChat,
	providers.CapChatStream,
	providers.CapEmbedding,
)

// New creates a Gemini dialect adapter.
func New(config providers.Config) (*Provider, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("provider %q: API key is required", config.Name)
	}

	p := &Provider{HTTPProvider: providers.NewHTTPProvider(config)}

	slog.Info("provider initialized",
		"provider", config.Name,
		"dialect", "vertex",
		"base_url", config.BaseURL,
	)

	return p, nil
}

// Capabilities returns chat, chat streaming, and embeddings.
func (p *Provider) Capabilities() providers.CapabilitySet { return capabilities }

// Wire types.

type geminiRequest struct {
	Contents          []geminiContent   `json:"contents"`
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *usageMetadata    `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type embedRequest struct {
	Requests []embedItem `json:"requests"`
}

type embedItem struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type embedResponse struct {
	Embeddings []embedValues `json:"embeddings"`
}

type embedValues struct {
	Values []float64 `json:"values"`
}

// transformChat translates a canonical chat request. System messages are
// concatenated into systemInstruction; the assistant role becomes
// "model". Tool-role messages cannot be expressed in this dialect.
func transformChat(req *providers.ChatRequest) (*geminiRequest, error) {
	out := &geminiRequest{}

	for _, msg := range req.Messages {
		switch msg.Role {
		case providers.RoleSystem:
			if out.SystemInstruction == nil {
				out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: msg.Content}}}
			} else {
				out.SystemInstruction.Parts = append(out.SystemInstruction.Parts, geminiPart{Text: msg.Content})
			}

		case providers.RoleUser:
			out.Contents = append(out.Contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: msg.Content}},
			})

		case providers.RoleAssistant:
			out.Contents = append(out.Contents, geminiContent{
				Role:  "model",
				Parts: []geminiPart{{Text: msg.Content}},
			})

		default:
			return nil, &providers.ValidationError{
				Field:   "messages",
				Message: fmt.Sprintf("role %q cannot be expressed in this dialect", msg.Role),
			}
		}
	}

	if req.Temperature != nil || req.TopP != nil || req.MaxTokens > 0 || len(req.Stop) > 0 {
		out.GenerationConfig = &generationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxTokens,
			StopSequences:   req.Stop,
		}
	}

	return out, nil
}

// endpoint builds a model-scoped operation URL with the key parameter.
func (p *Provider) endpoint(model, operation, extraQuery string) string {
	u := fmt.Sprintf("%s/models/%s:%s?key=%s",
		p.Config().BaseURL, url.PathEscape(model), operation, url.QueryEscape(p.Config().APIKey))
	if extraQuery != "" {
		u += "&" + extraQuery
	}
	return u
}

// Chat sends a non-streaming generateContent request.
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

	wire, err := transformChat(req)
	if err != nil {
		return nil, err
	}

	var resp geminiResponse
	if err := p.DoJSON(ctx, http.MethodPost, p.endpoint(model, "generateContent", ""), wire, &resp, nil); err != nil {
		return nil, err
	}

	return p.transformResponse(&resp, req)
}

// transformResponse normalizes a generateContent response.
func (p *Provider) transformResponse(resp *geminiResponse, req *providers.ChatRequest) (*providers.Response, error) {
	if len(resp.Candidates) == 0 {
		return nil, &providers.Error{Provider: p.Name(), Kind: providers.KindTransient, Message: "no candidates in response"}
	}

	candidate := resp.Candidates[0]
	var content string
	for _, part := range candidate.Content.Parts {
		content += part.Text
	}

	out := &providers.Response{
		Model: req.Model,
		Choices: []providers.Choice{{
			Index:        0,
			Message:      providers.Message{Role: providers.RoleAssistant, Content: content},
			FinishReason: normalizeFinishReason(candidate.FinishReason),
		}},
	}

	if resp.UsageMetadata != nil {
		out.Usage = providers.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	} else {
		prompt := providers.EstimateChatTokens(req.Messages)
		completion := providers.EstimateTokens(content)
		out.Usage = providers.Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
	}

	return out, nil
}

// ChatStream sends a streaming generateContent request (SSE framing).
func (p *Provider) ChatStream(ctx context.Context, req *providers.ChatRequest) (<-chan *providers.StreamChunk, error) {
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

	wire, err := transformChat(req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, &providers.Error{Provider: p.Name(), Kind: providers.KindBadRequest, Message: "failed to marshal request", Cause: err}
	}

	resp, err := p.DoRequest(ctx, http.MethodPost, p.endpoint(model, "streamGenerateContent", "alt=sse"), body, map[string]string{
		"Content-Type": "application/json",
		"Accept":       "text/event-stream",
	})
	if err != nil {
		return nil, err
	}

	out := make(chan *providers.StreamChunk)
	go p.runStream(ctx, resp.Body, req.Model, out)
	return out, nil
}

// runStream reads the SSE frames and forwards canonical chunks.
func (p *Provider) runStream(ctx context.Context, body io.ReadCloser, logicalModel string, out chan<- *providers.StreamChunk) {
	defer close(out)

	reader := providers.NewSSEReader(p.Name(), body)
	defer reader.Close()

	var finished bool

	for {
		_, data, err := reader.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			p.send(ctx, out, &providers.StreamChunk{
				Model:        logicalModel,
				FinishReason: providers.FinishReasonError,
				Err:          err,
			})
			return
		}

		var frame geminiResponse
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			p.send(ctx, out, &providers.StreamChunk{
				Model:        logicalModel,
				FinishReason: providers.FinishReasonError,
				Err:          &providers.Error{Provider: p.Name(), Kind: providers.KindTransient, Message: "failed to parse stream frame", Cause: err},
			})
			return
		}

		if len(frame.Candidates) == 0 {
			continue
		}
		candidate := frame.Candidates[0]

		var delta string
		for _, part := range candidate.Content.Parts {
			delta += part.Text
		}

		chunk := &providers.StreamChunk{
			Model:        logicalModel,
			Delta:        delta,
			FinishReason: normalizeFinishReason(candidate.FinishReason),
		}
		if frame.UsageMetadata != nil && chunk.FinishReason != "" {
			chunk.Usage = &providers.Usage{
				PromptTokens:     frame.UsageMetadata.PromptTokenCount,
				CompletionTokens: frame.UsageMetadata.CandidatesTokenCount,
				TotalTokens:      frame.UsageMetadata.TotalTokenCount,
			}
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

// Completion is not part of this dialect.
func (p *Provider) Completion(ctx context.Context, req *providers.CompletionRequest) (*providers.Response, error) {
	return nil, providers.ErrUnsupported(p.Name(), providers.OpCompletion)
}

// CompletionStream is not part of this dialect.
func (p *Provider) CompletionStream(ctx context.Context, req *providers.CompletionRequest) (<-chan *providers.StreamChunk, error) {
	return nil, providers.ErrUnsupported(p.Name(), providers.OpCompletion)
}

// Embedding embeds input strings via batchEmbedContents.
func (p *Provider) Embedding(ctx context.Context, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	if err := providers.ValidateEmbedding(req); err != nil {
		return nil, err
	}
	model, err := p.NativeModel(req.Model)
	if err != nil {
		return nil, err
	}

	wire := &embedRequest{Requests: make([]embedItem, len(req.Input))}
	for i, input := range req.Input {
		wire.Requests[i] = embedItem{
			Model:   "models/" + model,
			Content: geminiContent{Parts: []geminiPart{{Text: input}}},
		}
	}

	var resp embedResponse
	if err := p.DoJSON(ctx, http.MethodPost, p.endpoint(model, "batchEmbedContents", ""), wire, &resp, nil); err != nil {
		return nil, err
	}

	out := &providers.EmbeddingResponse{
		Model:      req.Model,
		Embeddings: make([][]float64, len(resp.Embeddings)),
	}
	tokens := 0
	for i, emb := range resp.Embeddings {
		out.Embeddings[i] = emb.Values
	}
	for _, input := range req.Input {
		tokens += providers.EstimateTokens(input)
	}
	out.Usage = providers.Usage{PromptTokens: tokens, TotalTokens: tokens}
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
	u := fmt.Sprintf("%s/models?key=%s", p.Config().BaseURL, url.QueryEscape(p.Config().APIKey))
	resp, err := p.DoRequest(ctx, http.MethodGet, u, nil, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// normalizeFinishReason maps Gemini finish reasons onto canonical
// values.
func normalizeFinishReason(reason string) string {
	switch reason {
	case "":
		return ""
	case "STOP":
		return providers.FinishReasonStop
	case "MAX_TOKENS":
		return providers.FinishReasonLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT":
		return providers.FinishReasonContentFilter
	default:
		return providers.FinishReasonStop
	}
}
