package gateway

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"lumenroute/prism/pkg/config"
	"lumenroute/prism/pkg/providers"
	"lumenroute/prism/pkg/providers/anthropic"
	"lumenroute/prism/pkg/providers/azure"
	"lumenroute/prism/pkg/providers/cohere"
	"lumenroute/prism/pkg/providers/generic"
	"lumenroute/prism/pkg/providers/ollama"
	"lumenroute/prism/pkg/providers/openai"
	"lumenroute/prism/pkg/providers/vertex"
)

// Registry holds the instantiated provider adapters in configuration
// order. It implements routing.ProviderSource. The enabled set can be
// flipped by a config hot reload without rebuilding adapters.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	byName  map[string]providers.Provider
	enabled map[string]bool
}

// NewRegistry instantiates one adapter per configured provider.
func NewRegistry(configs []config.ProviderConfig) (*Registry, error) {
	r := &Registry{
		byName:  make(map[string]providers.Provider, len(configs)),
		enabled: make(map[string]bool, len(configs)),
	}

	for i := range configs {
		pc := &configs[i]
		p, err := newProvider(pc)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		r.order = append(r.order, pc.Name)
		r.byName[pc.Name] = p
		r.enabled[pc.Name] = pc.IsEnabled()
	}

	return r, nil
}

// newProvider builds the dialect adapter for one descriptor.
func newProvider(pc *config.ProviderConfig) (providers.Provider, error) {
	cfg := providers.Config{
		Name:                pc.Name,
		Dialect:             pc.Dialect,
		BaseURL:             pc.BaseURL,
		APIKey:              pc.APIKey,
		Region:              pc.Region,
		Timeout:             pc.Timeout,
		ModelMap:            pc.Models,
		RequireModelMap:     pc.RequireModels,
		Headers:             pc.Headers,
		APIVersion:          pc.APIVersion,
		MaxIdleConns:        pc.MaxIdleConns,
		MaxIdleConnsPerHost: pc.MaxIdleConnsPerHost,
		IdleConnTimeout:     pc.IdleConnTimeout,
		MaxInFlight:         pc.MaxInFlight,
		MaxRetries:          pc.MaxRetries,
		RetryBaseDelay:      pc.RetryBaseDelay,
	}

	switch pc.Dialect {
	case "openai":
		return openai.New(cfg)
	case "anthropic":
		return anthropic.New(cfg)
	case "azure":
		return azure.New(cfg)
	case "vertex":
		return vertex.New(cfg)
	case "cohere":
		return cohere.New(cfg)
	case "ollama":
		return ollama.New(cfg)
	case "generic":
		return generic.New(cfg)
	default:
		return nil, fmt.Errorf("unknown dialect %q", pc.Dialect)
	}
}

// Enabled returns the enabled providers in configuration order.
func (r *Registry) Enabled() []providers.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]providers.Provider, 0, len(r.order))
	for _, name := range r.order {
		if r.enabled[name] {
			out = append(out, r.byName[name])
		}
	}
	return out
}

// All returns every registered provider in configuration order.
func (r *Registry) All() []providers.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]providers.Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (providers.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// SetEnabled flips one provider's enabled flag.
func (r *Registry) SetEnabled(name string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		r.enabled[name] = enabled
	}
}

// Models returns the union of the enabled providers' logical model
// names, sorted, with the serving providers per model.
func (r *Registry) Models() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string)
	for _, name := range r.order {
		if !r.enabled[name] {
			continue
		}
		for _, model := range r.byName[name].Models() {
			out[model] = append(out[model], name)
		}
	}
	for model := range out {
		sort.Strings(out[model])
	}
	return out
}

// Close closes every adapter.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, p := range r.byName {
		if err := p.Close(); err != nil {
			slog.Warn("provider close failed", "provider", name, "error", err)
		}
	}
}
