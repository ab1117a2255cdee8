package strategies

import (
	"sync/atomic"

	"lumenroute/prism/pkg/providers"
)

// RoundRobin rotates across the available providers with an atomic
// counter, so N concurrent requests start at N distinct offsets
// (modulo provider count). The returned list is the full rotation, so
// failover continues around the ring.
type RoundRobin struct {
	counter atomic.Int64
}

// NewRoundRobin creates a round-robin strategy.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Name returns the strategy identifier.
func (s *RoundRobin) Name() string { return NameRoundRobin }

// Order rotates the available list by the next counter value.
func (s *RoundRobin) Order(req providers.Request, available []providers.Provider) ([]providers.Provider, error) {
	n := len(available)
	if n == 1 {
		return available, nil
	}

	count := s.counter.Add(1) - 1
	// Reset before the counter grows unbounded; modulo keeps rotation
	// correct either way.
	if count >= 1_000_000_000 {
		s.counter.CompareAndSwap(count+1, 0)
	}

	start := int(count % int64(n))
	ordered := make([]providers.Provider, 0, n)
	for i := 0; i < n; i++ {
		ordered = append(ordered, available[(start+i)%n])
	}
	return ordered, nil
}

// Reset resets the rotation counter. Primarily for tests.
func (s *RoundRobin) Reset() {
	s.counter.Store(0)
}
