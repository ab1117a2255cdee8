package providers

import "context"

// Capability names one operation a dialect can express. Adapters declare
// their capability set statically; the gateway rejects requests for
// missing capabilities with KindUnsupportedFeature before any network
// traffic happens.
type Capability string

const (
	CapChat             Capability = "chat"
	CapChatStream       Capability = "chat_stream"
	CapCompletion       Capability = "completion"
	CapCompletionStream Capability = "completion_stream"
	CapEmbedding        Capability = "embedding"
	CapImage            Capability = "image"
	CapAudio            Capability = "audio"
	CapTools            Capability = "tools"
)

// CapabilitySet is the set of operations a provider dialect supports.
type CapabilitySet map[Capability]bool

// NewCapabilitySet builds a set from its members.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = true
	}
	return s
}

// Has reports whether the set contains c.
func (s CapabilitySet) Has(c Capability) bool { return s[c] }

// Provider is the contract every dialect adapter implements. The adapter
// is the only place provider-native wire shapes live: it translates
// canonical requests out, performs the upstream HTTP call, and translates
// responses back.
//
// All methods accept a context.Context and must return promptly when it
// is cancelled. Adapters never retry; retries belong to the failover
// driver so breaker accounting stays correct.
type Provider interface {
	// Name returns the provider's configured name (stable identifier).
	Name() string

	// Dialect returns the wire dialect tag (e.g. "openai", "anthropic").
	Dialect() string

	// Capabilities returns the operations this adapter can express.
	Capabilities() CapabilitySet

	// Config returns the adapter's configuration subset.
	Config() Config

	// Chat sends a non-streaming chat completion.
	Chat(ctx context.Context, req *ChatRequest) (*Response, error)

	// ChatStream sends a streaming chat completion. The returned channel
	// yields chunks in source order and is closed after the terminal
	// chunk. A stream that ends without a finish reason is closed with a
	// finish_reason of "error" and a KindTruncatedStream error chunk.
	ChatStream(ctx context.Context, req *ChatRequest) (<-chan *StreamChunk, error)

	// Completion sends a non-streaming legacy text completion.
	Completion(ctx context.Context, req *CompletionRequest) (*Response, error)

	// CompletionStream sends a streaming text completion.
	CompletionStream(ctx context.Context, req *CompletionRequest) (<-chan *StreamChunk, error)

	// Embedding embeds one or more input strings.
	Embedding(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error)

	// Image generates images from a prompt.
	Image(ctx context.Context, req *ImageRequest) (*ImageResponse, error)

	// Transcribe transcribes audio to text.
	Transcribe(ctx context.Context, req *TranscriptionRequest) (*TranscriptionResponse, error)

	// HealthCheck performs a cheap liveness probe against the provider.
	// Adapters pick a free endpoint; dialects without one list models.
	HealthCheck(ctx context.Context) error

	// Models returns the logical model names this provider serves
	// (the keys of its model map).
	Models() []string

	// Close releases HTTP connections. The provider must not be used
	// after Close.
	Close() error
}
