package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// UpstreamResponse scripts one mock upstream reply.
type UpstreamResponse struct {
	StatusCode   int
	Body         any
	Headers      map[string]string
	Delay        time.Duration
	StreamChunks []string // raw SSE data payloads; "[DONE]" is appended
}

// UpstreamServer is a scriptable httptest server that stands in for a
// provider API. Responses are keyed by path; per-path scripts pop in
// order, with the last entry repeating.
type UpstreamServer struct {
	server *httptest.Server

	mu       sync.Mutex
	scripts  map[string][]UpstreamResponse
	requests []string
}

// NewUpstreamServer creates a mock upstream.
func NewUpstreamServer() *UpstreamServer {
	us := &UpstreamServer{scripts: make(map[string][]UpstreamResponse)}
	us.server = httptest.NewServer(http.HandlerFunc(us.handler))
	return us
}

// URL returns the server's base URL.
func (us *UpstreamServer) URL() string { return us.server.URL }

// Close shuts the server down.
func (us *UpstreamServer) Close() { us.server.Close() }

// Script appends responses for a path.
func (us *UpstreamServer) Script(path string, responses ...UpstreamResponse) {
	us.mu.Lock()
	defer us.mu.Unlock()
	us.scripts[path] = append(us.scripts[path], responses...)
}

// RequestCount returns how many requests hit a path ("" = any).
func (us *UpstreamServer) RequestCount(path string) int {
	us.mu.Lock()
	defer us.mu.Unlock()
	if path == "" {
		return len(us.requests)
	}
	n := 0
	for _, p := range us.requests {
		if p == path {
			n++
		}
	}
	return n
}

func (us *UpstreamServer) handler(w http.ResponseWriter, r *http.Request) {
	us.mu.Lock()
	us.requests = append(us.requests, r.URL.Path)
	script := us.scripts[r.URL.Path]
	var resp UpstreamResponse
	switch {
	case len(script) == 0:
		resp = UpstreamResponse{StatusCode: http.StatusNotFound, Body: map[string]string{"error": "no script for " + r.URL.Path}}
	case len(script) == 1:
		resp = script[0]
	default:
		resp = script[0]
		us.scripts[r.URL.Path] = script[1:]
	}
	us.mu.Unlock()

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}

	if len(resp.StreamChunks) > 0 {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, chunk := range resp.StreamChunks {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
			if flusher != nil {
				flusher.Flush()
			}
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		if flusher != nil {
			flusher.Flush()
		}
		return
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if resp.Body != nil {
		_ = json.NewEncoder(w).Encode(resp.Body)
	}
}

// ChatResponseBody builds a minimal chat-completions response body.
func ChatResponseBody(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5},
	}
}

// EmbeddingResponseBody builds a minimal embeddings response body.
func EmbeddingResponseBody(n int) map[string]any {
	data := make([]map[string]any, n)
	for i := 0; i < n; i++ {
		data[i] = map[string]any{"object": "embedding", "index": i, "embedding": []float64{0.1, 0.2}}
	}
	return map[string]any{
		"object": "list",
		"model":  "test-embed",
		"data":   data,
		"usage":  map[string]any{"prompt_tokens": 2, "total_tokens": 2},
	}
}
