package strategies

import "lumenroute/prism/pkg/providers"

// Failover keeps the configuration order: the driver walks the list
// top to bottom, so the first configured provider is primary and the
// rest are ordered fallbacks.
type Failover struct{}

// NewFailover creates a failover strategy.
func NewFailover() *Failover {
	return &Failover{}
}

// Name returns the strategy identifier.
func (s *Failover) Name() string { return NameFailover }

// Order returns the available providers unchanged (configuration
// order).
func (s *Failover) Order(req providers.Request, available []providers.Provider) ([]providers.Provider, error) {
	return available, nil
}
