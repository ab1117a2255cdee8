package strategies

import (
	"sort"

	"lumenroute/prism/pkg/providers"
	"lumenroute/prism/pkg/routing"
)

// LowestLatency orders providers by ascending latency EMA, breaking
// ties with the higher success EMA.
type LowestLatency struct {
	stats routing.HealthStats
}

// NewLowestLatency creates a lowest-latency strategy.
func NewLowestLatency(stats routing.HealthStats) *LowestLatency {
	return &LowestLatency{stats: stats}
}

// Name returns the strategy identifier.
func (s *LowestLatency) Name() string { return NameLowestLatency }

// Order sorts by latency EMA, then success EMA.
func (s *LowestLatency) Order(req providers.Request, available []providers.Provider) ([]providers.Provider, error) {
	ordered := make([]providers.Provider, len(available))
	copy(ordered, available)

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].Name(), ordered[j].Name()
		la, lb := s.stats.Latency(a), s.stats.Latency(b)
		if la != lb {
			return la < lb
		}
		return s.stats.SuccessRate(a) > s.stats.SuccessRate(b)
	})

	return ordered, nil
}
