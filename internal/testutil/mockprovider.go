// Package testutil provides scriptable doubles for the gateway's
// tests: an in-memory Provider and an httptest upstream that speaks
// the chat-completions dialect.
package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"lumenroute/prism/pkg/providers"
)

// MockProvider is a scriptable in-memory providers.Provider. Each call
// pops the next scripted outcome; when the script is empty the call
// succeeds with a canned response.
type MockProvider struct {
	ProviderName string
	Caps         providers.CapabilitySet
	Cfg          providers.Config

	// Latency is added to every call.
	Latency time.Duration

	// Reply overrides the canned response content.
	Reply string

	// StreamDeltas are the deltas ChatStream emits before the terminal
	// chunk. StreamInterval spaces them out.
	StreamDeltas   []string
	StreamInterval time.Duration

	mu     sync.Mutex
	script []error

	calls atomic.Int64
}

// NewMockProvider creates a mock with the full capability set.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		ProviderName: name,
		Reply:        "mock response",
		Caps: providers.NewCapabilitySet(
			providers.CapChat,
			providers.CapChatStream,
			providers.CapCompletion,
			providers.CapCompletionStream,
			providers.CapEmbedding,
			providers.CapImage,
			providers.CapAudio,
			providers.CapTools,
		),
		Cfg: providers.Config{Name: name, Dialect: "mock", Timeout: 5 * time.Second},
	}
}

// Fail scripts the next calls to return err n times.
func (m *MockProvider) Fail(err error, n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.script = append(m.script, err)
	}
	return m
}

// Calls returns how many operation calls the provider has served.
func (m *MockProvider) Calls() int64 { return m.calls.Load() }

// next pops the scripted outcome for one call.
func (m *MockProvider) next(ctx context.Context) error {
	m.calls.Add(1)

	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return &providers.Error{Provider: m.ProviderName, Kind: providers.KindCancelled, Message: "cancelled", Cause: ctx.Err()}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.script) == 0 {
		return nil
	}
	err := m.script[0]
	m.script = m.script[1:]
	return err
}

// TransientErr builds a transient provider error for scripting.
func TransientErr(provider string) *providers.Error {
	return &providers.Error{Provider: provider, Kind: providers.KindTransient, StatusCode: 500, Message: "upstream error"}
}

// AuthErr builds an auth-failed provider error for scripting.
func AuthErr(provider string) *providers.Error {
	return &providers.Error{Provider: provider, Kind: providers.KindAuthFailed, StatusCode: 401, Message: "bad key"}
}

func (m *MockProvider) Name() string                            { return m.ProviderName }
func (m *MockProvider) Dialect() string                         { return "mock" }
func (m *MockProvider) Capabilities() providers.CapabilitySet   { return m.Caps }
func (m *MockProvider) Config() providers.Config                { return m.Cfg }
func (m *MockProvider) Models() []string                        { return nil }
func (m *MockProvider) Close() error                            { return nil }
func (m *MockProvider) HealthCheck(ctx context.Context) error   { return m.next(ctx) }

// Chat serves a canned chat response.
func (m *MockProvider) Chat(ctx context.Context, req *providers.ChatRequest) (*providers.Response, error) {
	if err := m.next(ctx); err != nil {
		return nil, err
	}
	return m.response(req.Model), nil
}

func (m *MockProvider) response(model string) *providers.Response {
	return &providers.Response{
		ID:      "mock-" + m.ProviderName,
		Created: 1700000000,
		Model:   model,
		Choices: []providers.Choice{{
			Index:        0,
			Message:      providers.Message{Role: providers.RoleAssistant, Content: m.Reply},
			FinishReason: providers.FinishReasonStop,
		}},
		Usage: providers.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}
}

// ChatStream serves the scripted deltas then a terminal chunk.
func (m *MockProvider) ChatStream(ctx context.Context, req *providers.ChatRequest) (<-chan *providers.StreamChunk, error) {
	if err := m.next(ctx); err != nil {
		return nil, err
	}

	deltas := m.StreamDeltas
	if len(deltas) == 0 {
		deltas = []string{"mock ", "stream"}
	}

	out := make(chan *providers.StreamChunk)
	go func() {
		defer close(out)
		for _, delta := range deltas {
			if m.StreamInterval > 0 {
				select {
				case <-time.After(m.StreamInterval):
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- &providers.StreamChunk{ID: "mock-stream", Model: req.Model, Delta: delta}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- &providers.StreamChunk{ID: "mock-stream", Model: req.Model, FinishReason: providers.FinishReasonStop}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

// Completion serves a canned completion response.
func (m *MockProvider) Completion(ctx context.Context, req *providers.CompletionRequest) (*providers.Response, error) {
	if err := m.next(ctx); err != nil {
		return nil, err
	}
	return m.response(req.Model), nil
}

// CompletionStream serves the scripted deltas.
func (m *MockProvider) CompletionStream(ctx context.Context, req *providers.CompletionRequest) (<-chan *providers.StreamChunk, error) {
	return m.ChatStream(ctx, &providers.ChatRequest{Model: req.Model, Messages: []providers.Message{{Role: providers.RoleUser, Content: req.Prompt}}})
}

// Embedding serves a canned embedding response.
func (m *MockProvider) Embedding(ctx context.Context, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	if err := m.next(ctx); err != nil {
		return nil, err
	}
	out := &providers.EmbeddingResponse{Model: req.Model, Embeddings: make([][]float64, len(req.Input))}
	for i := range req.Input {
		out.Embeddings[i] = []float64{0.1, 0.2, 0.3}
	}
	out.Usage = providers.Usage{PromptTokens: len(req.Input), TotalTokens: len(req.Input)}
	return out, nil
}

// Image serves a canned image response.
func (m *MockProvider) Image(ctx context.Context, req *providers.ImageRequest) (*providers.ImageResponse, error) {
	if err := m.next(ctx); err != nil {
		return nil, err
	}
	return &providers.ImageResponse{Created: 1700000000, Images: []providers.ImageData{{URL: "https://img.invalid/mock.png"}}}, nil
}

// Transcribe serves a canned transcription response.
func (m *MockProvider) Transcribe(ctx context.Context, req *providers.TranscriptionRequest) (*providers.TranscriptionResponse, error) {
	if err := m.next(ctx); err != nil {
		return nil, err
	}
	return &providers.TranscriptionResponse{Text: "mock transcript", Usage: providers.Usage{CompletionTokens: 2, TotalTokens: 2}}, nil
}
