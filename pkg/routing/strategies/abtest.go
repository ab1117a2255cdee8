package strategies

import (
	"fmt"
	"hash/fnv"
	"sort"

	"lumenroute/prism/pkg/providers"
	"lumenroute/prism/pkg/routing"
)

// ABTest buckets requests by fingerprint hash mod 100 and maps bucket
// ranges to providers according to the configured splits. Identical
// requests always land in the same bucket, which keeps experiments
// stable across retries and cache misses.
type ABTest struct {
	// buckets is the cumulative split table in provider-name order.
	buckets []bucket
	hash    func(providers.Request) uint64
}

type bucket struct {
	provider string
	upper    int // exclusive upper bound in [0, 100)
}

// NewABTest creates an A/B test strategy. Splits are percentages and
// must sum to 100. hash may be nil, in which case a stable FNV hash of
// the model and operation is used.
func NewABTest(splits map[string]int, hash func(providers.Request) uint64) (*ABTest, error) {
	if len(splits) == 0 {
		return nil, fmt.Errorf("ab-test routing requires splits")
	}

	names := make([]string, 0, len(splits))
	total := 0
	for name, pct := range splits {
		if pct <= 0 {
			return nil, fmt.Errorf("ab-test split for %q must be positive", name)
		}
		names = append(names, name)
		total += pct
	}
	if total != 100 {
		return nil, fmt.Errorf("ab-test splits must sum to 100, got %d", total)
	}
	sort.Strings(names)

	s := &ABTest{hash: hash}
	cumulative := 0
	for _, name := range names {
		cumulative += splits[name]
		s.buckets = append(s.buckets, bucket{provider: name, upper: cumulative})
	}

	if s.hash == nil {
		s.hash = defaultHash
	}
	return s, nil
}

// Name returns the strategy identifier.
func (s *ABTest) Name() string { return NameABTest }

// Order maps the request's bucket to its provider, with the remaining
// split providers trailing as failover targets in bucket order.
func (s *ABTest) Order(req providers.Request, available []providers.Provider) ([]providers.Provider, error) {
	byName := make(map[string]providers.Provider, len(available))
	for _, p := range available {
		byName[p.Name()] = p
	}

	slot := int(s.hash(req) % 100)
	target := s.buckets[len(s.buckets)-1].provider
	for _, b := range s.buckets {
		if slot < b.upper {
			target = b.provider
			break
		}
	}

	var ordered []providers.Provider
	if p, ok := byName[target]; ok {
		ordered = append(ordered, p)
	}
	for _, b := range s.buckets {
		if b.provider == target {
			continue
		}
		if p, ok := byName[b.provider]; ok {
			ordered = append(ordered, p)
		}
	}
	if len(ordered) == 0 {
		return nil, routing.ErrNoProvidersAvailable
	}
	return ordered, nil
}

// defaultHash fingerprints the request by operation and model. The
// gateway normally injects the cache fingerprint instead.
func defaultHash(req providers.Request) uint64 {
	h := fnv.New64a()
	h.Write([]byte(req.Operation()))
	h.Write([]byte{0x1f})
	h.Write([]byte(req.ModelName()))
	return h.Sum64()
}
