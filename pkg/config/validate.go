package config

import (
	"fmt"
)

// knownDialects are the adapters the gateway ships.
var knownDialects = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"azure":     true,
	"vertex":    true,
	"cohere":    true,
	"ollama":    true,
	"generic":   true,
}

// knownStrategies are the accepted routing strategies.
var knownStrategies = map[string]bool{
	"single":         true,
	"round-robin":    true,
	"load-balance":   true,
	"least-used":     true,
	"lowest-latency": true,
	"failover":       true,
	"conditional":    true,
	"ab-test":        true,
}

// Validate checks the configuration for structural errors. A non-nil
// return maps to CLI exit code 2.
func Validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", cfg.Server.Port)
	}

	if len(cfg.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}

	names := make(map[string]bool, len(cfg.Providers))
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.Name == "" {
			return fmt.Errorf("providers[%d]: name is required", i)
		}
		if names[p.Name] {
			return fmt.Errorf("provider %q is configured twice", p.Name)
		}
		names[p.Name] = true

		if !knownDialects[p.Dialect] {
			return fmt.Errorf("provider %q: unknown dialect %q", p.Name, p.Dialect)
		}
		if p.Dialect == "azure" && p.BaseURL == "" {
			return fmt.Errorf("provider %q: base_url is required for azure", p.Name)
		}
		if p.Dialect == "generic" && p.BaseURL == "" {
			return fmt.Errorf("provider %q: base_url is required for generic providers", p.Name)
		}
		if p.MaxInFlight < 0 {
			return fmt.Errorf("provider %q: max_in_flight cannot be negative", p.Name)
		}
	}

	if err := validateRouting(cfg, names); err != nil {
		return err
	}

	switch cfg.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", cfg.Cache.Backend)
	}
	if cfg.Cache.MaxSize < 0 {
		return fmt.Errorf("cache.max_size cannot be negative")
	}

	if cfg.Auth.Enabled && len(cfg.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth.enabled requires at least one api key")
	}

	return nil
}

// validateRouting checks the strategy and its parameters.
func validateRouting(cfg *Config, providerNames map[string]bool) error {
	r := &cfg.Routing

	if !knownStrategies[r.Strategy] {
		return fmt.Errorf("unknown routing strategy %q", r.Strategy)
	}

	switch r.Strategy {
	case "single":
		if r.Provider != "" && !providerNames[r.Provider] {
			return fmt.Errorf("routing.provider %q is not a configured provider", r.Provider)
		}

	case "load-balance":
		for name := range r.Weights {
			if !providerNames[name] {
				return fmt.Errorf("routing.weights names unknown provider %q", name)
			}
		}

	case "conditional":
		if r.DefaultProvider == "" {
			return fmt.Errorf("conditional routing requires routing.default_provider")
		}
		if !providerNames[r.DefaultProvider] {
			return fmt.Errorf("routing.default_provider %q is not a configured provider", r.DefaultProvider)
		}
		for i, rule := range r.Rules {
			if rule.Provider == "" {
				return fmt.Errorf("routing.rules[%d]: provider is required", i)
			}
			if !providerNames[rule.Provider] {
				return fmt.Errorf("routing.rules[%d]: unknown provider %q", i, rule.Provider)
			}
			// Predicates combine as a conjunction; a rule with none
			// would shadow every later rule.
			if rule.ModelPrefix == "" && rule.MinTokens == 0 && rule.MaxTokens == 0 && rule.Region == "" {
				return fmt.Errorf("routing.rules[%d]: at least one predicate is required", i)
			}
			if rule.MinTokens < 0 || rule.MaxTokens < 0 {
				return fmt.Errorf("routing.rules[%d]: token bounds cannot be negative", i)
			}
			if rule.MinTokens > 0 && rule.MaxTokens > 0 && rule.MinTokens > rule.MaxTokens {
				return fmt.Errorf("routing.rules[%d]: min_tokens exceeds max_tokens", i)
			}
		}

	case "ab-test":
		if len(r.Splits) == 0 {
			return fmt.Errorf("ab-test routing requires routing.splits")
		}
		total := 0
		for name, pct := range r.Splits {
			if !providerNames[name] {
				return fmt.Errorf("routing.splits names unknown provider %q", name)
			}
			if pct <= 0 {
				return fmt.Errorf("routing.splits[%q] must be positive", name)
			}
			total += pct
		}
		if total != 100 {
			return fmt.Errorf("routing.splits must sum to 100, got %d", total)
		}
	}

	return nil
}
