package strategies

import (
	"sort"

	"lumenroute/prism/pkg/providers"
	"lumenroute/prism/pkg/routing"
)

// LeastUsed orders providers by ascending in-flight request count,
// breaking ties with the lower latency EMA.
type LeastUsed struct {
	stats routing.HealthStats
}

// NewLeastUsed creates a least-used strategy.
func NewLeastUsed(stats routing.HealthStats) *LeastUsed {
	return &LeastUsed{stats: stats}
}

// Name returns the strategy identifier.
func (s *LeastUsed) Name() string { return NameLeastUsed }

// Order sorts by in-flight count, then latency EMA.
func (s *LeastUsed) Order(req providers.Request, available []providers.Provider) ([]providers.Provider, error) {
	ordered := make([]providers.Provider, len(available))
	copy(ordered, available)

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].Name(), ordered[j].Name()
		ia, ib := s.stats.InFlight(a), s.stats.InFlight(b)
		if ia != ib {
			return ia < ib
		}
		return s.stats.Latency(a) < s.stats.Latency(b)
	})

	return ordered, nil
}
