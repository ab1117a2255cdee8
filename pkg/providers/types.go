package providers

import "time"

// Operation identifies which gateway pipeline a canonical request rides.
type Operation string

const (
	OpChat          Operation = "chat"
	OpCompletion    Operation = "completion"
	OpEmbedding     Operation = "embedding"
	OpImage         Operation = "image"
	OpTranscription Operation = "transcription"
)

// Message represents a single message in a conversation.
// It is provider-agnostic and is transformed to provider-specific formats
// by each dialect adapter.
type Message struct {
	// Role identifies the message sender (system, user, assistant, tool)
	Role string `json:"role"`

	// Content is the message text content
	Content string `json:"content"`

	// Name is an optional name for the message sender
	Name string `json:"name,omitempty"`

	// ToolCalls contains function/tool calls made by the assistant
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID is used when role is "tool" to reference which tool call
	// this message responds to
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall represents a function/tool call request from the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall represents a specific function invocation.
type FunctionCall struct {
	Name string `json:"name"`

	// Arguments is a JSON string containing the function arguments
	Arguments string `json:"arguments"`
}

// Tool represents a tool/function definition that the model can call.
type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition defines a callable function.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Usage tracks token consumption for a request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// RoutingHints carries optional client preferences the router may honor.
// Hints narrow candidate selection but never override health or breaker
// filtering.
type RoutingHints struct {
	// PreferredProvider pins the request to a named provider when set.
	PreferredProvider string `json:"preferred_provider,omitempty"`

	// Region restricts selection to providers tagged with this region.
	Region string `json:"region,omitempty"`

	// CostCeiling is the maximum acceptable estimated cost in USD per
	// request (0 = no ceiling). It is carried on the request only: the
	// router does not filter candidates by it.
	CostCeiling float64 `json:"cost_ceiling,omitempty"`
}

// Request is the common view the router, cache, and driver take of every
// canonical request variant.
type Request interface {
	// Operation returns the pipeline this request rides.
	Operation() Operation

	// ModelName returns the logical model name.
	ModelName() string

	// Hints returns the request's routing hints.
	Hints() RoutingHints

	// IsStreaming reports whether the client asked for a streamed
	// response. Only chat and completion honor it.
	IsStreaming() bool
}

// ChatRequest is a canonical chat completion request.
//
// Invariants enforced by ValidateChat: at least one message, max_tokens >= 1
// when set, temperature within [0, 2].
type ChatRequest struct {
	// Model is the logical model name (e.g. "gpt-4", "claude-3-opus")
	Model string `json:"model"`

	// Messages is the ordered conversation history
	Messages []Message `json:"messages"`

	// Temperature controls randomness; nil means provider default
	Temperature *float64 `json:"temperature,omitempty"`

	// TopP controls nucleus sampling; nil means provider default
	TopP *float64 `json:"top_p,omitempty"`

	// MaxTokens is the maximum number of tokens to generate (0 = unset)
	MaxTokens int `json:"max_tokens,omitempty"`

	// Stop sequences that halt generation
	Stop []string `json:"stop,omitempty"`

	// PresencePenalty reduces repetition (-2.0 to 2.0); nil means unset
	PresencePenalty *float64 `json:"presence_penalty,omitempty"`

	// FrequencyPenalty reduces frequency-based repetition; nil means unset
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`

	// Tools is a list of tools the model can call
	Tools []Tool `json:"tools,omitempty"`

	// ToolChoice controls which tools may be called
	ToolChoice any `json:"tool_choice,omitempty"`

	// User is an optional end-user identifier for abuse monitoring
	User string `json:"user,omitempty"`

	// Stream requests incremental delivery
	Stream bool `json:"stream,omitempty"`

	// Routing carries optional routing hints
	Routing RoutingHints `json:"-"`
}

func (r *ChatRequest) Operation() Operation { return OpChat }
func (r *ChatRequest) ModelName() string    { return r.Model }
func (r *ChatRequest) Hints() RoutingHints  { return r.Routing }
func (r *ChatRequest) IsStreaming() bool    { return r.Stream }

// CompletionRequest is a canonical legacy text completion request.
type CompletionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	User        string   `json:"user,omitempty"`
	Stream      bool     `json:"stream,omitempty"`

	Routing RoutingHints `json:"-"`
}

func (r *CompletionRequest) Operation() Operation { return OpCompletion }
func (r *CompletionRequest) ModelName() string    { return r.Model }
func (r *CompletionRequest) Hints() RoutingHints  { return r.Routing }
func (r *CompletionRequest) IsStreaming() bool    { return r.Stream }

// EmbeddingRequest is a canonical embedding request over one or more
// input strings.
type EmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
	User  string   `json:"user,omitempty"`

	Routing RoutingHints `json:"-"`
}

func (r *EmbeddingRequest) Operation() Operation { return OpEmbedding }
func (r *EmbeddingRequest) ModelName() string    { return r.Model }
func (r *EmbeddingRequest) Hints() RoutingHints  { return r.Routing }
func (r *EmbeddingRequest) IsStreaming() bool    { return false }

// ImageRequest is a canonical image generation request.
type ImageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`

	Routing RoutingHints `json:"-"`
}

func (r *ImageRequest) Operation() Operation { return OpImage }
func (r *ImageRequest) ModelName() string    { return r.Model }
func (r *ImageRequest) Hints() RoutingHints  { return r.Routing }
func (r *ImageRequest) IsStreaming() bool    { return false }

// TranscriptionRequest is a canonical audio transcription request.
type TranscriptionRequest struct {
	Model    string `json:"model"`
	Audio    []byte `json:"-"`
	Filename string `json:"filename,omitempty"`
	Language string `json:"language,omitempty"`

	Routing RoutingHints `json:"-"`
}

func (r *TranscriptionRequest) Operation() Operation { return OpTranscription }
func (r *TranscriptionRequest) ModelName() string    { return r.Model }
func (r *TranscriptionRequest) Hints() RoutingHints  { return r.Routing }
func (r *TranscriptionRequest) IsStreaming() bool    { return false }

// Choice is one completion alternative inside a Response.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Response is the canonical non-streaming chat/completion response.
type Response struct {
	// ID is the unique response identifier
	ID string `json:"id"`

	// Created is the Unix timestamp when the response was created
	Created int64 `json:"created"`

	// Model is the logical model name the client asked for
	Model string `json:"model"`

	// Choices is the ordered list of completion alternatives
	Choices []Choice `json:"choices"`

	// Usage contains token consumption information
	Usage Usage `json:"usage"`
}

// Content returns the text of the first choice, or "" when empty.
func (r *Response) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// EmbeddingResponse is the canonical embedding response.
type EmbeddingResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
	Usage      Usage       `json:"usage"`
}

// ImageData is one generated image, either by URL or inline base64.
type ImageData struct {
	URL     string `json:"url,omitempty"`
	B64JSON string `json:"b64_json,omitempty"`
}

// ImageResponse is the canonical image generation response.
type ImageResponse struct {
	Created int64       `json:"created"`
	Images  []ImageData `json:"images"`
}

// TranscriptionResponse is the canonical audio transcription response.
type TranscriptionResponse struct {
	Text  string `json:"text"`
	Usage Usage  `json:"usage"`
}

// StreamChunk represents a single chunk in a streaming response.
// The terminal chunk carries a finish reason; a chunk with Err set
// terminates the stream abnormally.
type StreamChunk struct {
	// ID is the response identifier (same across all chunks)
	ID string `json:"id"`

	// Model is the logical model generating the response
	Model string `json:"model"`

	// Created is the Unix timestamp when the chunk was created
	Created int64 `json:"created"`

	// Index is the choice index this delta belongs to
	Index int `json:"index"`

	// Delta is the incremental content in this chunk
	Delta string `json:"delta"`

	// ToolCalls contains incremental tool call information
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// FinishReason is set on the terminal chunk
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage is included in the final chunk when the provider reports it
	Usage *Usage `json:"usage,omitempty"`

	// Err is set if an error occurred during streaming
	Err error `json:"-"`
}

// Outcome is the passive health report every adapter call produces.
type Outcome struct {
	Provider string
	Success  bool
	Elapsed  time.Duration
}

// Message role constants
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Finish reason constants
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonToolCalls     = "tool_calls"
	FinishReasonContentFilter = "content_filter"
	FinishReasonError         = "error"
)

// Tool type constants
const (
	ToolTypeFunction = "function"
)
