package routing

import (
	"log/slog"

	"lumenroute/prism/pkg/providers"
)

// Router produces the ordered candidate list for each request. The
// pipeline is: gather enabled providers → pare by capability, hints,
// model support, and breaker state → hand the survivors to the strategy
// for ordering.
type Router struct {
	strategy Strategy
	source   ProviderSource
	breakers BreakerState
}

// NewRouter creates a router. breakers may be nil (no paring).
func NewRouter(strategy Strategy, source ProviderSource, breakers BreakerState) *Router {
	return &Router{
		strategy: strategy,
		source:   source,
		breakers: breakers,
	}
}

// Strategy returns the configured strategy.
func (r *Router) Strategy() Strategy { return r.strategy }

// Candidates returns the ordered provider list for the request, or
// ErrNoProvidersAvailable when paring leaves nothing.
func (r *Router) Candidates(req providers.Request) ([]providers.Provider, error) {
	available := r.pare(req, r.source.Enabled())
	if len(available) == 0 {
		return nil, ErrNoProvidersAvailable
	}

	ordered, err := r.strategy.Order(req, available)
	if err != nil {
		return nil, err
	}
	if len(ordered) == 0 {
		return nil, ErrNoProvidersAvailable
	}

	slog.Debug("routing candidates selected",
		"strategy", r.strategy.Name(),
		"model", req.ModelName(),
		"candidates", len(ordered),
	)

	return ordered, nil
}

// pare filters the enabled set down to providers that could serve the
// request.
func (r *Router) pare(req providers.Request, enabled []providers.Provider) []providers.Provider {
	hints := req.Hints()

	out := make([]providers.Provider, 0, len(enabled))
	for _, p := range enabled {
		if r.breakers != nil && r.breakers.IsOpen(p.Name()) {
			continue
		}
		if !supportsOperation(p, req) {
			continue
		}
		if hints.PreferredProvider != "" && p.Name() != hints.PreferredProvider {
			continue
		}
		if hints.Region != "" && p.Config().Region != "" && p.Config().Region != hints.Region {
			continue
		}
		if !supportsModel(p, req.ModelName()) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// supportsOperation checks the provider's capability set against the
// request's operation and streaming flag.
func supportsOperation(p providers.Provider, req providers.Request) bool {
	caps := p.Capabilities()
	switch req.Operation() {
	case providers.OpChat:
		if req.IsStreaming() {
			return caps.Has(providers.CapChatStream)
		}
		return caps.Has(providers.CapChat)
	case providers.OpCompletion:
		if req.IsStreaming() {
			return caps.Has(providers.CapCompletionStream)
		}
		return caps.Has(providers.CapCompletion)
	case providers.OpEmbedding:
		return caps.Has(providers.CapEmbedding)
	case providers.OpImage:
		return caps.Has(providers.CapImage)
	case providers.OpTranscription:
		return caps.Has(providers.CapAudio)
	default:
		return false
	}
}

// supportsModel excludes providers that mandate a model mapping the
// logical model is missing from.
func supportsModel(p providers.Provider, model string) bool {
	cfg := p.Config()
	if !cfg.RequireModelMap {
		return true
	}
	_, ok := cfg.ModelMap[model]
	return ok
}
