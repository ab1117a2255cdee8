// Package generic adapts any OpenAI-compatible HTTP endpoint, covering
// self-hosted inference servers and gateways that speak the
// chat-completions dialect without being one of the named providers.
package generic
