// Package handlers implements the OpenAI-compatible route handlers.
// Each handler parses the wire body, converts it to the canonical
// request, invokes the gateway core, and writes the OpenAI-shaped
// response (JSON or SSE).
package handlers
