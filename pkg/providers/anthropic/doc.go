// Package anthropic implements the Anthropic Messages API dialect.
//
// The Messages API differs from the chat-completions dialect in three
// ways the adapter has to absorb: the system prompt is a top-level
// field rather than a message, max_tokens is mandatory, and streaming
// frames are named SSE events instead of uniform data lines.
package anthropic
