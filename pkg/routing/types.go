package routing

import (
	"time"

	"lumenroute/prism/pkg/providers"
)

// ProviderSource supplies the enabled provider set in configuration
// order. The gateway's registry implements it; hot reloads are picked
// up because the router asks on every request.
type ProviderSource interface {
	// Enabled returns the enabled providers in configuration order.
	Enabled() []providers.Provider

	// Get returns a provider by name.
	Get(name string) (providers.Provider, bool)
}

// BreakerState reports whether a provider's breaker currently rejects
// traffic. The router pares open-breaker providers from every candidate
// list.
type BreakerState interface {
	IsOpen(provider string) bool
}

// HealthStats is the read-only health view the load-aware strategies
// consult.
type HealthStats interface {
	InFlight(provider string) int64
	Latency(provider string) time.Duration
	SuccessRate(provider string) float64
}

// Strategy orders the available providers into the candidate list the
// failover driver will walk. Strategies never pare by health or breaker
// state — the router does that before ordering.
type Strategy interface {
	// Name returns the strategy identifier used in config and metrics.
	Name() string

	// Order returns the ordered candidate list for the request.
	Order(req providers.Request, available []providers.Provider) ([]providers.Provider, error)
}

// Rule is one conditional-routing rule: the conjunction of its non-zero
// predicates must all match for the rule to fire.
type Rule struct {
	// ModelPrefix matches when the logical model name starts with it.
	ModelPrefix string

	// MinTokens / MaxTokens bound the estimated prompt token count
	// (0 = unbounded).
	MinTokens int
	MaxTokens int

	// Region matches the request's region hint.
	Region string

	// Provider is the target when the rule fires.
	Provider string
}
