// Package strategies implements the routing strategies the gateway can
// be configured with. Each strategy orders the already-pared provider
// set into the candidate list the failover driver walks.
package strategies

import (
	"fmt"

	"lumenroute/prism/pkg/providers"
	"lumenroute/prism/pkg/routing"
)

// Strategy names accepted in configuration.
const (
	NameSingle        = "single"
	NameRoundRobin    = "round-robin"
	NameLoadBalance   = "load-balance"
	NameLeastUsed     = "least-used"
	NameLowestLatency = "lowest-latency"
	NameFailover      = "failover"
	NameConditional   = "conditional"
	NameABTest        = "ab-test"
)

// Options carries the strategy-specific configuration a gateway passes
// when constructing its strategy.
type Options struct {
	// Provider is the fixed target for the single strategy.
	Provider string

	// Weights drive the load-balance strategy (provider name → weight).
	Weights map[string]int

	// Rules drive the conditional strategy, evaluated in order.
	Rules []routing.Rule

	// DefaultProvider is the conditional strategy's fall-through target.
	DefaultProvider string

	// Splits drive the ab-test strategy (provider name → percent,
	// summing to 100).
	Splits map[string]int

	// Stats supplies health statistics to the load-aware strategies.
	Stats routing.HealthStats

	// Hash fingerprints a request for the ab-test strategy.
	Hash func(providers.Request) uint64
}

// New constructs the named strategy.
func New(name string, opts Options) (routing.Strategy, error) {
	switch name {
	case NameSingle:
		return NewSingle(opts.Provider), nil
	case NameRoundRobin, "":
		return NewRoundRobin(), nil
	case NameLoadBalance:
		return NewLoadBalance(opts.Weights), nil
	case NameLeastUsed:
		return NewLeastUsed(opts.Stats), nil
	case NameLowestLatency:
		return NewLowestLatency(opts.Stats), nil
	case NameFailover:
		return NewFailover(), nil
	case NameConditional:
		return NewConditional(opts.Rules, opts.DefaultProvider)
	case NameABTest:
		return NewABTest(opts.Splits, opts.Hash)
	default:
		return nil, fmt.Errorf("unknown routing strategy %q", name)
	}
}
