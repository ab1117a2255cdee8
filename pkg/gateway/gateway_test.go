package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumenroute/prism/internal/testutil"
	"lumenroute/prism/pkg/config"
	"lumenroute/prism/pkg/providers"
)

// newGateway builds a gateway over scripted upstreams. Each provider is
// a generic (OpenAI-compatible) adapter pointed at its own mock server.
func newGateway(t *testing.T, upstreams map[string]*testutil.UpstreamServer, mutate func(*config.Config)) *Gateway {
	t.Helper()

	cfg := &config.Config{}
	for _, name := range orderedNames(upstreams) {
		enabled := true
		cfg.Providers = append(cfg.Providers, config.ProviderConfig{
			Name:    name,
			Dialect: "generic",
			BaseURL: upstreams[name].URL(),
			APIKey:  "test",
			Enabled: &enabled,
			Breaker: config.BreakerConfig{
				FailureThreshold: 3,
				RecoveryTimeout:  50 * time.Millisecond,
				RequestTimeout:   5 * time.Second,
				HalfOpenMaxCalls: 2,
			},
		})
	}
	cfg.Routing.Strategy = "failover"
	config.ApplyDefaults(cfg)
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, config.Validate(cfg))

	g, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g
}

// orderedNames keeps provider order deterministic: "a" before "b".
func orderedNames(upstreams map[string]*testutil.UpstreamServer) []string {
	names := make([]string, 0, len(upstreams))
	for _, candidate := range []string{"a", "b", "c", "p"} {
		if _, ok := upstreams[candidate]; ok {
			names = append(names, candidate)
		}
	}
	return names
}

func zeroTempChat(content string) *providers.ChatRequest {
	temp := 0.0
	return &providers.ChatRequest{
		Model:       "test-model",
		Messages:    []providers.Message{{Role: providers.RoleUser, Content: content}},
		Temperature: &temp,
	}
}

// Scenario: cache hit. One provider, two identical embedding requests;
// the upstream sees one call and both responses are byte-identical.
func TestScenarioCacheHit(t *testing.T) {
	upstream := testutil.NewUpstreamServer()
	defer upstream.Close()
	upstream.Script("/embeddings", testutil.UpstreamResponse{Body: testutil.EmbeddingResponseBody(1)})

	g := newGateway(t, map[string]*testutil.UpstreamServer{"p": upstream}, nil)
	ctx := context.Background()

	req := &providers.EmbeddingRequest{Model: "e", Input: []string{"hi"}}

	first, err := g.Embedding(ctx, req)
	require.NoError(t, err)

	start := time.Now()
	second, err := g.Embedding(ctx, req)
	require.NoError(t, err)
	hitLatency := time.Since(start)

	assert.Equal(t, 1, upstream.RequestCount("/embeddings"), "the provider receives exactly one call")

	firstBytes, _ := json.Marshal(first)
	secondBytes, _ := json.Marshal(second)
	assert.Equal(t, firstBytes, secondBytes, "cached response is identical to the original")
	assert.Less(t, hitLatency, 5*time.Millisecond, "cache hits are served without upstream latency")
}

// Scenario: single-flight. Fifty concurrent identical temperature-zero
// chats produce exactly one upstream call and one cache entry.
func TestScenarioSingleFlight(t *testing.T) {
	upstream := testutil.NewUpstreamServer()
	defer upstream.Close()
	upstream.Script("/chat/completions", testutil.UpstreamResponse{
		Body:  testutil.ChatResponseBody("shared"),
		Delay: 30 * time.Millisecond, // hold the leader open so followers pile up
	})

	g := newGateway(t, map[string]*testutil.UpstreamServer{"p": upstream}, nil)
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	responses := make([]*providers.Response, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i], errs[i] = g.Chat(ctx, zeroTempChat("hello"))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, upstream.RequestCount("/chat/completions"), "identical concurrent requests share one upstream call")

	want, _ := json.Marshal(responses[0])
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		got, _ := json.Marshal(responses[i])
		assert.Equal(t, want, got, "all coalesced responses are equal")
	}

	stats := g.cache.Stats(ctx)
	assert.Equal(t, 1, stats.Entries, "the cache ends with one entry")
}

// Round-trip law: non-cacheable requests hit upstream every time.
func TestNonCacheableMakesTwoCalls(t *testing.T) {
	upstream := testutil.NewUpstreamServer()
	defer upstream.Close()
	upstream.Script("/chat/completions", testutil.UpstreamResponse{Body: testutil.ChatResponseBody("fresh")})

	g := newGateway(t, map[string]*testutil.UpstreamServer{"p": upstream}, nil)
	ctx := context.Background()

	temp := 0.9
	req := &providers.ChatRequest{
		Model:       "test-model",
		Messages:    []providers.Message{{Role: providers.RoleUser, Content: "hi"}},
		Temperature: &temp,
	}

	_, err := g.Chat(ctx, req)
	require.NoError(t, err)
	_, err = g.Chat(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, 2, upstream.RequestCount("/chat/completions"))
}

// Scenario: failover. Provider a fails three times (threshold 3); the
// fourth request lands on b without touching a, whose breaker is open.
func TestScenarioFailover(t *testing.T) {
	upstreamA := testutil.NewUpstreamServer()
	defer upstreamA.Close()
	upstreamA.Script("/chat/completions", testutil.UpstreamResponse{
		StatusCode: 500,
		Body:       map[string]string{"error": "down"},
	})

	upstreamB := testutil.NewUpstreamServer()
	defer upstreamB.Close()
	upstreamB.Script("/chat/completions", testutil.UpstreamResponse{Body: testutil.ChatResponseBody("from b")})

	g := newGateway(t, map[string]*testutil.UpstreamServer{"a": upstreamA, "b": upstreamB}, func(cfg *config.Config) {
		cfg.Cache.Enabled = boolPtr(false)
	})
	ctx := context.Background()

	// Three requests fail over from a to b, tripping a's breaker.
	for i := 0; i < 3; i++ {
		resp, err := g.Chat(ctx, zeroTempChat("hello"))
		require.NoError(t, err)
		assert.Equal(t, "from b", resp.Content())
	}
	assert.Equal(t, 3, upstreamA.RequestCount("/chat/completions"))

	snapshotHasState(t, g, "a", "open")

	// Request 4: a is pared by its open breaker and never called.
	resp, err := g.Chat(ctx, zeroTempChat("hello"))
	require.NoError(t, err)
	assert.Equal(t, "from b", resp.Content())
	assert.Equal(t, 3, upstreamA.RequestCount("/chat/completions"), "an open breaker issues zero adapter calls")
}

// Scenario: breaker recovery. After the recovery timeout, probes close
// the breaker again.
func TestScenarioBreakerRecovery(t *testing.T) {
	upstreamA := testutil.NewUpstreamServer()
	defer upstreamA.Close()
	// Three failures, then recovery.
	upstreamA.Script("/chat/completions",
		testutil.UpstreamResponse{StatusCode: 500, Body: map[string]string{"error": "down"}},
		testutil.UpstreamResponse{StatusCode: 500, Body: map[string]string{"error": "down"}},
		testutil.UpstreamResponse{StatusCode: 500, Body: map[string]string{"error": "down"}},
		testutil.UpstreamResponse{Body: testutil.ChatResponseBody("recovered")},
	)

	g := newGateway(t, map[string]*testutil.UpstreamServer{"a": upstreamA}, func(cfg *config.Config) {
		cfg.Cache.Enabled = boolPtr(false)
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := g.Chat(ctx, zeroTempChat("hello"))
		require.Error(t, err)
	}
	snapshotHasState(t, g, "a", "open")

	// Wait out the recovery timeout; the next requests probe a and,
	// after half_open_max_calls successes, close the breaker.
	time.Sleep(60 * time.Millisecond)
	for i := 0; i < 2; i++ {
		resp, err := g.Chat(ctx, zeroTempChat("hello"))
		require.NoError(t, err)
		assert.Equal(t, "recovered", resp.Content())
	}
	snapshotHasState(t, g, "a", "closed")
}

// Scenario: refuse-to-failover. A 401 from a surfaces immediately;
// b is never called and a's breaker stays closed.
func TestScenarioRefuseToFailover(t *testing.T) {
	upstreamA := testutil.NewUpstreamServer()
	defer upstreamA.Close()
	upstreamA.Script("/chat/completions", testutil.UpstreamResponse{
		StatusCode: 401,
		Body:       map[string]string{"error": "invalid key"},
	})

	upstreamB := testutil.NewUpstreamServer()
	defer upstreamB.Close()
	upstreamB.Script("/chat/completions", testutil.UpstreamResponse{Body: testutil.ChatResponseBody("never")})

	g := newGateway(t, map[string]*testutil.UpstreamServer{"a": upstreamA, "b": upstreamB}, func(cfg *config.Config) {
		cfg.Cache.Enabled = boolPtr(false)
	})

	_, err := g.Chat(context.Background(), zeroTempChat("hello"))
	require.Error(t, err)

	pe, ok := providers.AsError(err)
	require.True(t, ok)
	assert.Equal(t, providers.KindAuthFailed, pe.Kind)

	assert.Equal(t, 1, upstreamA.RequestCount("/chat/completions"))
	assert.Equal(t, 0, upstreamB.RequestCount("/chat/completions"), "auth failures never fail over")
	snapshotHasState(t, g, "a", "closed")
}

// Streaming through the gateway: chunks arrive in order with a final
// finish reason.
func TestGatewayChatStream(t *testing.T) {
	upstream := testutil.NewUpstreamServer()
	defer upstream.Close()
	upstream.Script("/chat/completions", testutil.UpstreamResponse{
		StreamChunks: []string{
			`{"id":"s1","choices":[{"index":0,"delta":{"content":"str"}}]}`,
			`{"id":"s1","choices":[{"index":0,"delta":{"content":"eam"}}]}`,
			`{"id":"s1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		},
	})

	g := newGateway(t, map[string]*testutil.UpstreamServer{"p": upstream}, nil)

	req := zeroTempChat("hello")
	req.Stream = true
	req.Temperature = nil

	chunks, cancel, err := g.ChatStream(context.Background(), req)
	require.NoError(t, err)
	defer cancel()

	var text string
	var finish string
	for chunk := range chunks {
		require.NoError(t, chunk.Err)
		text += chunk.Delta
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
	}
	assert.Equal(t, "stream", text)
	assert.Equal(t, providers.FinishReasonStop, finish)
}

// With no enabled provider, requests are rejected before any upstream
// traffic.
func TestNoProvidersForOperation(t *testing.T) {
	upstream := testutil.NewUpstreamServer()
	defer upstream.Close()

	g := newGateway(t, map[string]*testutil.UpstreamServer{"p": upstream}, func(cfg *config.Config) {
		cfg.Providers[0].Enabled = boolPtr(false)
	})

	_, err := g.Embedding(context.Background(), &providers.EmbeddingRequest{Model: "e", Input: []string{"x"}})
	require.Error(t, err)
	assert.Equal(t, 0, upstream.RequestCount(""))
}

func snapshotHasState(t *testing.T, g *Gateway, provider, state string) {
	t.Helper()
	for _, snap := range g.Breakers() {
		if snap.Provider == provider {
			assert.Equal(t, state, snap.State, "breaker %s", provider)
			return
		}
	}
	t.Fatalf("no breaker snapshot for %q", provider)
}

func boolPtr(b bool) *bool { return &b }
