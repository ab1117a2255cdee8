package strategies

import (
	"math/rand"

	"lumenroute/prism/pkg/providers"
)

// LoadBalance picks providers by weighted random sampling. The head of
// the candidate list is drawn by cumulative-weight sampling; the rest of
// the list is drawn the same way without replacement so failover still
// respects the weights.
type LoadBalance struct {
	weights map[string]int
}

// NewLoadBalance creates a weighted random strategy. Providers missing
// from weights get weight 1; zero or negative weights exclude the
// provider.
func NewLoadBalance(weights map[string]int) *LoadBalance {
	if weights == nil {
		weights = make(map[string]int)
	}
	return &LoadBalance{weights: weights}
}

// Name returns the strategy identifier.
func (s *LoadBalance) Name() string { return NameLoadBalance }

// weight returns the configured weight for a provider (default 1).
func (s *LoadBalance) weight(name string) int {
	if w, ok := s.weights[name]; ok {
		return w
	}
	return 1
}

// Order draws a weighted shuffle of the available providers.
func (s *LoadBalance) Order(req providers.Request, available []providers.Provider) ([]providers.Provider, error) {
	pool := make([]providers.Provider, 0, len(available))
	for _, p := range available {
		if s.weight(p.Name()) > 0 {
			pool = append(pool, p)
		}
	}
	if len(pool) == 0 {
		// All weights zero; fall back to unweighted order.
		pool = append(pool, available...)
	}

	ordered := make([]providers.Provider, 0, len(pool))
	for len(pool) > 0 {
		total := 0
		for _, p := range pool {
			total += max(s.weight(p.Name()), 1)
		}

		pick := rand.Intn(total)
		cumulative := 0
		for i, p := range pool {
			cumulative += max(s.weight(p.Name()), 1)
			if pick < cumulative {
				ordered = append(ordered, p)
				pool = append(pool[:i], pool[i+1:]...)
				break
			}
		}
	}

	return ordered, nil
}
