package strategies

import (
	"lumenroute/prism/pkg/providers"
	"lumenroute/prism/pkg/routing"
)

// Single always routes to one fixed provider. When no provider is named
// it falls back to the first enabled provider in configuration order.
type Single struct {
	provider string
}

// NewSingle creates a single-provider strategy.
func NewSingle(provider string) *Single {
	return &Single{provider: provider}
}

// Name returns the strategy identifier.
func (s *Single) Name() string { return NameSingle }

// Order returns the pinned provider alone.
func (s *Single) Order(req providers.Request, available []providers.Provider) ([]providers.Provider, error) {
	if s.provider == "" {
		return available[:1], nil
	}
	for _, p := range available {
		if p.Name() == s.provider {
			return []providers.Provider{p}, nil
		}
	}
	return nil, routing.ErrNoProvidersAvailable
}
