// Package ollama implements the Ollama native dialect for local models.
//
// Ollama streams newline-delimited JSON rather than SSE, reports usage
// as eval counts, and needs no authentication. Health checks hit
// /api/tags, the installed-model listing.
package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"lumenroute/prism/pkg/providers"
)

// Provider is the Ollama adapter.
type Provider struct {
	*providers.HTTPProvider
}

var capabilities = providers.NewCapabilitySet(
	providers.CapChat,
	providers.CapChatStream,
	providers.CapCompletion,
	providers.CapCompletionStream,
	providers.CapEmbedding,
)

// New creates an Ollama adapter.
func New(config providers.Config) (*Provider, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}

	p := &Provider{HTTPProvider: providers.NewHTTPProvider(config)}

	slog.Info("provider initialized",
		"provider", config.Name,
		"dialect", "ollama",
		"base_url", config.BaseURL,
	)

	return p, nil
}

// Capabilities returns chat, completion, their streams, and embeddings.
func (p *Provider) Capabilities() providers.CapabilitySet { return capabilities }

// Wire types.

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []wireMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	Message         wireMessage `json:"message"`
	Response        string      `json:"response"` // generate endpoint
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings      [][]float64 `json:"embeddings"`
	PromptEvalCount int         `json:"prompt_eval_count"`
}

// options maps sampling parameters into Ollama's options object.
func options(temperature, topP *float64, maxTokens int, stop []string) map[string]any {
	opts := map[string]any{}
	if temperature != nil {
		opts["temperature"] = *temperature
	}
	if topP != nil {
		opts["top_p"] = *topP
	}
	if maxTokens > 0 {
		opts["num_predict"] = maxTokens
	}
	if len(stop) > 0 {
		opts["stop"] = stop
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
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

	wire := &chatRequest{
		Model:    model,
		Messages: make([]wireMessage, len(req.Messages)),
		Stream:   false,
		Options:  options(req.Temperature, req.TopP, req.MaxTokens, req.Stop),
	}
	for i, msg := range req.Messages {
		wire.Messages[i] = wireMessage{Role: msg.Role, Content: msg.Content}
	}

	var resp chatResponse
	if err := p.DoJSON(ctx, http.MethodPost, p.Config().BaseURL+"/api/chat", wire, &resp, nil); err != nil {
		return nil, err
	}

	return p.normalize(&resp, req.Model, resp.Message.Content), nil
}

// normalize builds a canonical response from a terminal frame.
func (p *Provider) normalize(resp *chatResponse, logicalModel, content string) *providers.Response {
	usage := providers.Usage{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
	}
	if usage.TotalTokens == 0 {
		completion := providers.EstimateTokens(content)
		usage = providers.Usage{CompletionTokens: completion, TotalTokens: completion}
	}

	return &providers.Response{
		Model: logicalModel,
		Choices: []providers.Choice{{
			Index:        0,
			Message:      providers.Message{Role: providers.RoleAssistant, Content: content},
			FinishReason: normalizeDoneReason(resp.DoneReason),
		}},
		Usage: usage,
	}
}

// ChatStream sends a streaming chat request over NDJSON.
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

	wire := &chatRequest{
		Model:    model,
		Messages: make([]wireMessage, len(req.Messages)),
		Stream:   true,
		Options:  options(req.Temperature, req.TopP, req.MaxTokens, req.Stop),
	}
	for i, msg := range req.Messages {
		wire.Messages[i] = wireMessage{Role: msg.Role, Content: msg.Content}
	}

	return p.openStream(ctx, "/api/chat", wire, req.Model, func(frame *chatResponse) string {
		return frame.Message.Content
	})
}

// Completion sends a non-streaming generate request.
func (p *Provider) Completion(ctx context.Context, req *providers.CompletionRequest) (*providers.Response, error) {
	if err := providers.ValidateCompletion(req); err != nil {
		return nil, err
	}
	model, err := p.NativeModel(req.Model)
	if err != nil {
		return nil, err
	}

	wire := &generateRequest{
		Model:   model,
		Prompt:  req.Prompt,
		Stream:  false,
		Options: options(req.Temperature, req.TopP, req.MaxTokens, req.Stop),
	}

	var resp chatResponse
	if err := p.DoJSON(ctx, http.MethodPost, p.Config().BaseURL+"/api/generate", wire, &resp, nil); err != nil {
		return nil, err
	}

	return p.normalize(&resp, req.Model, resp.Response), nil
}

// CompletionStream sends a streaming generate request over NDJSON.
func (p *Provider) CompletionStream(ctx context.Context, req *providers.CompletionRequest) (<-chan *providers.StreamChunk, error) {
	if err := providers.ValidateCompletion(req); err != nil {
		return nil, err
	}
	model, err := p.NativeModel(req.Model)
	if err != nil {
		return nil, err
	}

	wire := &generateRequest{
		Model:   model,
		Prompt:  req.Prompt,
		Stream:  true,
		Options: options(req.Temperature, req.TopP, req.MaxTokens, req.Stop),
	}

	return p.openStream(ctx, "/api/generate", wire, req.Model, func(frame *chatResponse) string {
		return frame.Response
	})
}

// openStream issues the streaming POST and bridges NDJSON frames to
// canonical chunks.
func (p *Provider) openStream(ctx context.Context, path string, wire any, logicalModel string, delta func(*chatResponse) string) (<-chan *providers.StreamChunk, error) {
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, &providers.Error{Provider: p.Name(), Kind: providers.KindBadRequest, Message: "failed to marshal request", Cause: err}
	}

	resp, err := p.DoRequest(ctx, http.MethodPost, p.Config().BaseURL+path, body, nil)
	if err != nil {
		return nil, err
	}

	out := make(chan *providers.StreamChunk)
	go p.runStream(ctx, resp.Body, logicalModel, delta, out)
	return out, nil
}

// runStream walks the newline-delimited JSON frames. The terminal frame
// carries done=true plus eval counts; a stream ending without one is
// truncated.
func (p *Provider) runStream(ctx context.Context, body io.ReadCloser, logicalModel string, delta func(*chatResponse) string, out chan<- *providers.StreamChunk) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var finished bool

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var frame chatResponse
		if err := json.Unmarshal(line, &frame); err != nil {
			p.send(ctx, out, &providers.StreamChunk{
				Model:        logicalModel,
				FinishReason: providers.FinishReasonError,
				Err:          &providers.Error{Provider: p.Name(), Kind: providers.KindTransient, Message: "failed to parse stream frame", Cause: err},
			})
			return
		}

		chunk := &providers.StreamChunk{
			Model: logicalModel,
			Delta: delta(&frame),
		}

		if frame.Done {
			finished = true
			chunk.FinishReason = normalizeDoneReason(frame.DoneReason)
			chunk.Usage = &providers.Usage{
				PromptTokens:     frame.PromptEvalCount,
				CompletionTokens: frame.EvalCount,
				TotalTokens:      frame.PromptEvalCount + frame.EvalCount,
			}
		}

		if !p.send(ctx, out, chunk) {
			return
		}
		if frame.Done {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		p.send(ctx, out, &providers.StreamChunk{
			Model:        logicalModel,
			FinishReason: providers.FinishReasonError,
			Err:          &providers.Error{Provider: p.Name(), Kind: providers.KindTransient, Message: "failed to read stream", Cause: err},
		})
		return
	}

	if !finished {
		p.send(ctx, out, &providers.StreamChunk{
			Model:        logicalModel,
			FinishReason: providers.FinishReasonError,
			Err: &providers.Error{
				Provider: p.Name(),
				Kind:     providers.KindTruncatedStream,
				Message:  "stream ended without a done frame",
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

// Embedding embeds input strings.
func (p *Provider) Embedding(ctx context.Context, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	if err := providers.ValidateEmbedding(req); err != nil {
		return nil, err
	}
	model, err := p.NativeModel(req.Model)
	if err != nil {
		return nil, err
	}

	wire := &embedRequest{Model: model, Input: req.Input}

	var resp embedResponse
	if err := p.DoJSON(ctx, http.MethodPost, p.Config().BaseURL+"/api/embed", wire, &resp, nil); err != nil {
		return nil, err
	}

	return &providers.EmbeddingResponse{
		Model:      req.Model,
		Embeddings: resp.Embeddings,
		Usage: providers.Usage{
			PromptTokens: resp.PromptEvalCount,
			TotalTokens:  resp.PromptEvalCount,
		},
	}, nil
}

// Image is not served by this adapter.
func (p *Provider) Image(ctx context.Context, req *providers.ImageRequest) (*providers.ImageResponse, error) {
	return nil, providers.ErrUnsupported(p.Name(), providers.OpImage)
}

// Transcribe is not served by this adapter.
func (p *Provider) Transcribe(ctx context.Context, req *providers.TranscriptionRequest) (*providers.TranscriptionResponse, error) {
	return nil, providers.ErrUnsupported(p.Name(), providers.OpTranscription)
}

// HealthCheck lists installed models.
func (p *Provider) HealthCheck(ctx context.Context) error {
	resp, err := p.DoRequest(ctx, http.MethodGet, p.Config().BaseURL+"/api/tags", nil, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// normalizeDoneReason maps Ollama done reasons onto canonical values.
func normalizeDoneReason(reason string) string {
	switch reason {
	case "":
		return providers.FinishReasonStop
	case "stop":
		return providers.FinishReasonStop
	case "length":
		return providers.FinishReasonLength
	default:
		return providers.FinishReasonStop
	}
}
