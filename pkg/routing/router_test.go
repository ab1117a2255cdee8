package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumenroute/prism/internal/testutil"
	"lumenroute/prism/pkg/providers"
)

// listSource is a fixed ProviderSource for tests.
type listSource struct {
	list []providers.Provider
}

func (s *listSource) Enabled() []providers.Provider { return s.list }
func (s *listSource) Get(name string) (providers.Provider, bool) {
	for _, p := range s.list {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// openSet reports the named breakers as open.
type openSet map[string]bool

func (o openSet) IsOpen(name string) bool { return o[name] }

// passthrough orders without reordering.
type passthrough struct{}

func (passthrough) Name() string { return "passthrough" }
func (passthrough) Order(req providers.Request, available []providers.Provider) ([]providers.Provider, error) {
	return available, nil
}

func chat(model string) *providers.ChatRequest {
	return &providers.ChatRequest{Model: model, Messages: []providers.Message{{Role: "user", Content: "hi"}}}
}

func TestRouterParesOpenBreakers(t *testing.T) {
	a := testutil.NewMockProvider("a")
	b := testutil.NewMockProvider("b")
	r := NewRouter(passthrough{}, &listSource{list: []providers.Provider{a, b}}, openSet{"a": true})

	candidates, err := r.Candidates(chat("m"))
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "b", candidates[0].Name())
}

func TestRouterEmptyListError(t *testing.T) {
	a := testutil.NewMockProvider("a")
	r := NewRouter(passthrough{}, &listSource{list: []providers.Provider{a}}, openSet{"a": true})

	_, err := r.Candidates(chat("m"))
	assert.ErrorIs(t, err, ErrNoProvidersAvailable)
}

func TestRouterParesByCapability(t *testing.T) {
	chatOnly := testutil.NewMockProvider("chat-only")
	chatOnly.Caps = providers.NewCapabilitySet(providers.CapChat)

	full := testutil.NewMockProvider("full")

	r := NewRouter(passthrough{}, &listSource{list: []providers.Provider{chatOnly, full}}, nil)

	// Non-streaming chat: both qualify.
	candidates, err := r.Candidates(chat("m"))
	require.NoError(t, err)
	assert.Len(t, candidates, 2)

	// Streaming chat: only the full provider qualifies.
	streaming := chat("m")
	streaming.Stream = true
	candidates, err = r.Candidates(streaming)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "full", candidates[0].Name())

	// Embeddings: only the full provider qualifies.
	candidates, err = r.Candidates(&providers.EmbeddingRequest{Model: "e", Input: []string{"x"}})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "full", candidates[0].Name())
}

func TestRouterHonorsPreferredProviderHint(t *testing.T) {
	a := testutil.NewMockProvider("a")
	b := testutil.NewMockProvider("b")
	r := NewRouter(passthrough{}, &listSource{list: []providers.Provider{a, b}}, nil)

	req := chat("m")
	req.Routing.PreferredProvider = "b"

	candidates, err := r.Candidates(req)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "b", candidates[0].Name())
}

func TestRouterHonorsRegionHint(t *testing.T) {
	eu := testutil.NewMockProvider("eu")
	eu.Cfg.Region = "eu"
	us := testutil.NewMockProvider("us")
	us.Cfg.Region = "us"
	anywhere := testutil.NewMockProvider("anywhere") // untagged providers serve every region

	r := NewRouter(passthrough{}, &listSource{list: []providers.Provider{eu, us, anywhere}}, nil)

	req := chat("m")
	req.Routing.Region = "eu"

	candidates, err := r.Candidates(req)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"eu", "anywhere"}, names(candidates))
}

func TestRouterParesMandatoryModelMap(t *testing.T) {
	strict := testutil.NewMockProvider("strict")
	strict.Cfg.RequireModelMap = true
	strict.Cfg.ModelMap = map[string]string{"known": "native"}

	loose := testutil.NewMockProvider("loose")

	r := NewRouter(passthrough{}, &listSource{list: []providers.Provider{strict, loose}}, nil)

	candidates, err := r.Candidates(chat("unknown"))
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "loose", candidates[0].Name())

	candidates, err = r.Candidates(chat("known"))
	require.NoError(t, err)
	assert.Len(t, candidates, 2)
}

func names(ps []providers.Provider) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name()
	}
	return out
}
