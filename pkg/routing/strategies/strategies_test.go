package strategies

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumenroute/prism/internal/testutil"
	"lumenroute/prism/pkg/providers"
	"lumenroute/prism/pkg/routing"
)

func pool(names ...string) []providers.Provider {
	out := make([]providers.Provider, len(names))
	for i, name := range names {
		out[i] = testutil.NewMockProvider(name)
	}
	return out
}

func chat(model string) *providers.ChatRequest {
	return &providers.ChatRequest{
		Model:    model,
		Messages: []providers.Message{{Role: "user", Content: "the quick brown fox jumps over the lazy dog"}},
	}
}

// fixedStats is a canned HealthStats for the load-aware strategies.
type fixedStats struct {
	inFlight map[string]int64
	latency  map[string]time.Duration
	success  map[string]float64
}

func (s *fixedStats) InFlight(p string) int64          { return s.inFlight[p] }
func (s *fixedStats) Latency(p string) time.Duration   { return s.latency[p] }
func (s *fixedStats) SuccessRate(p string) float64     { return s.success[p] }

func TestRoundRobinFairness(t *testing.T) {
	s := NewRoundRobin()
	available := pool("a", "b", "c")

	const requests = 1000
	counts := make(map[string]int)
	for i := 0; i < requests; i++ {
		ordered, err := s.Order(chat("m"), available)
		require.NoError(t, err)
		counts[ordered[0].Name()]++
	}

	// Each provider receives floor(K/N) or ceil(K/N) requests (+-1).
	for name, n := range counts {
		assert.InDelta(t, requests/3, n, 1.5, "provider %s unfairly loaded: %d", name, n)
	}
}

func TestRoundRobinConcurrentDistinctOffsets(t *testing.T) {
	s := NewRoundRobin()
	available := pool("a", "b", "c", "d")

	const workers = 100
	var mu sync.Mutex
	counts := make(map[string]int)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ordered, err := s.Order(chat("m"), available)
			if err != nil {
				return
			}
			mu.Lock()
			counts[ordered[0].Name()]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	total := 0
	for _, n := range counts {
		assert.InDelta(t, workers/4, n, 1.5)
		total += n
	}
	assert.Equal(t, workers, total)
}

func TestRoundRobinReturnsFullRotation(t *testing.T) {
	s := NewRoundRobin()
	available := pool("a", "b", "c")

	ordered, err := s.Order(chat("m"), available)
	require.NoError(t, err)
	require.Len(t, ordered, 3)

	seen := map[string]bool{}
	for _, p := range ordered {
		seen[p.Name()] = true
	}
	assert.Len(t, seen, 3, "rotation must include every provider for failover")
}

func TestLoadBalanceConvergesToWeights(t *testing.T) {
	s := NewLoadBalance(map[string]int{"heavy": 3, "light": 1})
	available := pool("heavy", "light")

	const trials = 20000
	counts := make(map[string]int)
	for i := 0; i < trials; i++ {
		ordered, err := s.Order(chat("m"), available)
		require.NoError(t, err)
		counts[ordered[0].Name()]++
	}

	ratio := float64(counts["heavy"]) / float64(trials)
	assert.InDelta(t, 0.75, ratio, 0.02, "empirical distribution must converge to w_i / sum(w)")
	assert.False(t, math.IsNaN(ratio))
}

func TestLoadBalanceZeroWeightExcludes(t *testing.T) {
	s := NewLoadBalance(map[string]int{"a": 0, "b": 1})
	available := pool("a", "b")

	for i := 0; i < 100; i++ {
		ordered, err := s.Order(chat("m"), available)
		require.NoError(t, err)
		assert.Equal(t, "b", ordered[0].Name())
	}
}

func TestLeastUsedPrefersIdleProvider(t *testing.T) {
	stats := &fixedStats{
		inFlight: map[string]int64{"busy": 9, "idle": 0, "mid": 4},
		latency:  map[string]time.Duration{},
	}
	s := NewLeastUsed(stats)

	ordered, err := s.Order(chat("m"), pool("busy", "idle", "mid"))
	require.NoError(t, err)
	assert.Equal(t, []string{"idle", "mid", "busy"}, names(ordered))
}

func TestLeastUsedTieBreaksOnLatency(t *testing.T) {
	stats := &fixedStats{
		inFlight: map[string]int64{"slow": 2, "fast": 2},
		latency:  map[string]time.Duration{"slow": time.Second, "fast": 50 * time.Millisecond},
	}
	s := NewLeastUsed(stats)

	ordered, err := s.Order(chat("m"), pool("slow", "fast"))
	require.NoError(t, err)
	assert.Equal(t, "fast", ordered[0].Name())
}

func TestLowestLatencyOrdersByEMA(t *testing.T) {
	stats := &fixedStats{
		latency: map[string]time.Duration{"a": 300 * time.Millisecond, "b": 80 * time.Millisecond, "c": 150 * time.Millisecond},
		success: map[string]float64{},
	}
	s := NewLowestLatency(stats)

	ordered, err := s.Order(chat("m"), pool("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, names(ordered))
}

func TestLowestLatencyTieBreaksOnSuccess(t *testing.T) {
	stats := &fixedStats{
		latency: map[string]time.Duration{"flaky": 100 * time.Millisecond, "solid": 100 * time.Millisecond},
		success: map[string]float64{"flaky": 0.6, "solid": 0.99},
	}
	s := NewLowestLatency(stats)

	ordered, err := s.Order(chat("m"), pool("flaky", "solid"))
	require.NoError(t, err)
	assert.Equal(t, "solid", ordered[0].Name())
}

func TestFailoverKeepsConfigOrder(t *testing.T) {
	s := NewFailover()
	ordered, err := s.Order(chat("m"), pool("primary", "secondary", "tertiary"))
	require.NoError(t, err)
	assert.Equal(t, []string{"primary", "secondary", "tertiary"}, names(ordered))
}

func TestSinglePinsProvider(t *testing.T) {
	s := NewSingle("chosen")
	ordered, err := s.Order(chat("m"), pool("other", "chosen"))
	require.NoError(t, err)
	require.Len(t, ordered, 1)
	assert.Equal(t, "chosen", ordered[0].Name())

	_, err = s.Order(chat("m"), pool("other"))
	assert.ErrorIs(t, err, routing.ErrNoProvidersAvailable)
}

func TestConditionalRuleMatching(t *testing.T) {
	s, err := NewConditional([]routing.Rule{
		{ModelPrefix: "gpt-", Provider: "openai"},
		{MinTokens: 5, Provider: "big"},
	}, "fallback")
	require.NoError(t, err)

	available := pool("openai", "big", "fallback")

	ordered, err := s.Order(chat("gpt-4"), available)
	require.NoError(t, err)
	assert.Equal(t, "openai", ordered[0].Name())

	// Nine whitespace tokens matches the min-token rule.
	ordered, err = s.Order(chat("claude-3"), available)
	require.NoError(t, err)
	assert.Equal(t, "big", ordered[0].Name())

	short := &providers.ChatRequest{Model: "claude-3", Messages: []providers.Message{{Role: "user", Content: "hi"}}}
	ordered, err = s.Order(short, available)
	require.NoError(t, err)
	assert.Equal(t, "fallback", ordered[0].Name())
}

func TestConditionalConjunction(t *testing.T) {
	// Both predicates must match: AND, never OR.
	s, err := NewConditional([]routing.Rule{
		{ModelPrefix: "gpt-", Region: "eu", Provider: "eu-openai"},
	}, "fallback")
	require.NoError(t, err)

	available := pool("eu-openai", "fallback")

	matching := chat("gpt-4")
	matching.Routing.Region = "eu"
	ordered, err := s.Order(matching, available)
	require.NoError(t, err)
	assert.Equal(t, "eu-openai", ordered[0].Name())

	half := chat("gpt-4") // prefix matches, region does not
	ordered, err = s.Order(half, available)
	require.NoError(t, err)
	assert.Equal(t, "fallback", ordered[0].Name())
}

func TestConditionalRejectsEmptyRules(t *testing.T) {
	_, err := NewConditional([]routing.Rule{{Provider: "x"}}, "fallback")
	assert.Error(t, err)

	_, err = NewConditional(nil, "")
	assert.Error(t, err)
}

func TestABTestStableBucketing(t *testing.T) {
	s, err := NewABTest(map[string]int{"a": 50, "b": 50}, nil)
	require.NoError(t, err)

	available := pool("a", "b")

	req := chat("gpt-4")
	first, err := s.Order(req, available)
	require.NoError(t, err)

	// The same request always lands in the same bucket.
	for i := 0; i < 20; i++ {
		again, err := s.Order(req, available)
		require.NoError(t, err)
		assert.Equal(t, first[0].Name(), again[0].Name())
	}
}

func TestABTestSplitDistribution(t *testing.T) {
	hashes := map[string]uint64{}
	hash := func(req providers.Request) uint64 { return hashes[req.ModelName()] }

	s, err := NewABTest(map[string]int{"a": 30, "b": 70}, hash)
	require.NoError(t, err)

	available := pool("a", "b")

	counts := map[string]int{}
	for i := 0; i < 100; i++ {
		model := fmt.Sprintf("m-%d", i)
		hashes[model] = uint64(i)
		ordered, err := s.Order(chat(model), available)
		require.NoError(t, err)
		counts[ordered[0].Name()]++
	}

	assert.Equal(t, 30, counts["a"])
	assert.Equal(t, 70, counts["b"])
}

func TestABTestRejectsBadSplits(t *testing.T) {
	_, err := NewABTest(map[string]int{"a": 60, "b": 60}, nil)
	assert.Error(t, err)

	_, err = NewABTest(nil, nil)
	assert.Error(t, err)
}

func names(ps []providers.Provider) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name()
	}
	return out
}
