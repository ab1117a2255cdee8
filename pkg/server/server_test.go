package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumenroute/prism/internal/testutil"
	"lumenroute/prism/pkg/config"
	"lumenroute/prism/pkg/gateway"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*httptest.Server, *testutil.UpstreamServer) {
	t.Helper()

	upstream := testutil.NewUpstreamServer()
	t.Cleanup(upstream.Close)
	upstream.Script("/chat/completions", testutil.UpstreamResponse{Body: testutil.ChatResponseBody("hello from upstream")})
	upstream.Script("/embeddings", testutil.UpstreamResponse{Body: testutil.EmbeddingResponseBody(1)})

	cfg := &config.Config{
		Providers: []config.ProviderConfig{{
			Name:    "p",
			Dialect: "generic",
			BaseURL: upstream.URL(),
			APIKey:  "k",
			Models:  map[string]string{"test-model": "native-model"},
		}},
	}
	cfg.Routing.Strategy = "failover"
	config.ApplyDefaults(cfg)
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, config.Validate(cfg))

	g, err := gateway.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })

	srv := httptest.NewServer(New(cfg, g).Handler())
	t.Cleanup(srv.Close)
	return srv, upstream
}

func TestChatEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json", strings.NewReader(`{
		"model": "test-model",
		"messages": [{"role": "user", "content": "hi"}]
	}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body struct {
		Object  string `json:"object"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "chat.completion", body.Object)
	require.Len(t, body.Choices, 1)
	assert.Equal(t, "hello from upstream", body.Choices[0].Message.Content)
}

func TestChatEndpointRejectsBadBody(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json", strings.NewReader(`{"model": ""}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "invalid_request_error", body.Error.Type)
}

func TestAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Enabled = true
		cfg.Auth.APIKeys = []string{"secret-key"}
	})

	// Missing key.
	resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong key.
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/chat/completions", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Correct key.
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/v1/chat/completions",
		strings.NewReader(`{"model":"test-model","messages":[{"role":"user","content":"hi"}]}`))
	req.Header.Set("Authorization", "Bearer secret-key")
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Health stays open without a key.
	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimiting(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.RateLimit = config.RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 1,
			Burst:             2,
		}
	})

	statuses := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		resp, err := http.Get(srv.URL + "/v1/models")
		require.NoError(t, err)
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}

	assert.Equal(t, http.StatusOK, statuses[0])
	assert.Equal(t, http.StatusOK, statuses[1])
	assert.Contains(t, statuses[2:], http.StatusTooManyRequests)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestModelsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/v1/models")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Object string `json:"object"`
		Data   []struct {
			ID      string `json:"id"`
			OwnedBy string `json:"owned_by"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "list", body.Object)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "test-model", body.Data[0].ID)
	assert.Equal(t, "p", body.Data[0].OwnedBy)
}

func TestBreakerSnapshotEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/admin/circuit-breakers")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		CircuitBreakers []struct {
			Provider string `json:"provider"`
			State    string `json:"state"`
		} `json:"circuit_breakers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.CircuitBreakers, 1)
	assert.Equal(t, "p", body.CircuitBreakers[0].Provider)
	assert.Equal(t, "closed", body.CircuitBreakers[0].State)
}

func TestMetricsSnapshotEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		UptimeSeconds float64 `json:"uptime_seconds"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.GreaterOrEqual(t, body.UptimeSeconds, 0.0)
}

func TestStreamingEndpoint(t *testing.T) {
	srv, upstream := newTestServer(t, nil)
	upstream.Script("/chat/completions", testutil.UpstreamResponse{
		StreamChunks: []string{
			`{"id":"s1","choices":[{"index":0,"delta":{"content":"str"}}]}`,
			`{"id":"s1","choices":[{"index":0,"delta":{"content":"eam"}}]}`,
			`{"id":"s1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		},
	})

	// Drain the scripted non-streaming response first so the stream
	// script is next.
	r, err := http.Post(srv.URL+"/v1/chat/completions", "application/json",
		strings.NewReader(`{"model":"test-model","messages":[{"role":"user","content":"warm"}]}`))
	require.NoError(t, err)
	r.Body.Close()

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(srv.URL+"/v1/chat/completions", "application/json",
		strings.NewReader(`{"model":"test-model","messages":[{"role":"user","content":"hi"}],"stream":true}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	buf := make([]byte, 64*1024)
	n, _ := resp.Body.Read(buf)
	payload := string(buf[:n])
	for {
		m, err := resp.Body.Read(buf)
		payload += string(buf[:m])
		if err != nil {
			break
		}
	}

	assert.Contains(t, payload, `"content":"str"`)
	assert.Contains(t, payload, `"content":"eam"`)
	assert.Contains(t, payload, "data: [DONE]")
}
