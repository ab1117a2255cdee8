package config

import "time"

// ApplyDefaults fills zero-valued fields with the gateway defaults.
// It is called after YAML parsing and before validation.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		// Streams write for the life of the request; the write timeout
		// must cover the longest allowed generation.
		cfg.Server.WriteTimeout = 5 * time.Minute
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 5 * time.Minute
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = 10 << 20 // 10 MiB
	}

	for i := range cfg.Providers {
		applyProviderDefaults(&cfg.Providers[i])
	}

	if cfg.Routing.Strategy == "" {
		cfg.Routing.Strategy = "round-robin"
	}
	if cfg.Routing.HealthCheckInterval == 0 {
		cfg.Routing.HealthCheckInterval = 30 * time.Second
	}
	if cfg.Routing.FailoverThreshold == 0 {
		cfg.Routing.FailoverThreshold = 0.8
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = time.Hour
	}
	if cfg.Cache.MaxSize == 0 {
		cfg.Cache.MaxSize = 1000
	}
	if cfg.Cache.Redis.Addr == "" {
		cfg.Cache.Redis.Addr = "localhost:6379"
	}

	if cfg.Auth.RateLimit.RequestsPerSecond == 0 {
		cfg.Auth.RateLimit.RequestsPerSecond = 10
	}
	if cfg.Auth.RateLimit.Burst == 0 {
		cfg.Auth.RateLimit.Burst = 20
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "prism"
	}

	if cfg.Usage.Path == "" {
		cfg.Usage.Path = "data/usage.db"
	}
	if cfg.Usage.Retention == 0 {
		cfg.Usage.Retention = 30 * 24 * time.Hour
	}
	if cfg.Usage.PruneSchedule == "" {
		cfg.Usage.PruneSchedule = "17 3 * * *"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// applyProviderDefaults fills one provider's zero-valued fields.
func applyProviderDefaults(p *ProviderConfig) {
	if p.Dialect == "" {
		p.Dialect = inferDialect(p.Name)
	}
	if p.Timeout == 0 {
		p.Timeout = 60 * time.Second
	}
	// MaxRetries deliberately defaults to zero: failover to the next
	// candidate is usually better than hammering a failing provider.
	if p.RetryBaseDelay == 0 {
		p.RetryBaseDelay = 500 * time.Millisecond
	}
	if p.MaxIdleConns == 0 {
		p.MaxIdleConns = 100
	}
	if p.MaxIdleConnsPerHost == 0 {
		p.MaxIdleConnsPerHost = 10
	}
	if p.IdleConnTimeout == 0 {
		p.IdleConnTimeout = 90 * time.Second
	}

	if p.Breaker.FailureThreshold == 0 {
		p.Breaker.FailureThreshold = 5
	}
	if p.Breaker.RecoveryTimeout == 0 {
		p.Breaker.RecoveryTimeout = 30 * time.Second
	}
	if p.Breaker.RequestTimeout == 0 {
		p.Breaker.RequestTimeout = p.Timeout
	}
	if p.Breaker.HalfOpenMaxCalls == 0 {
		p.Breaker.HalfOpenMaxCalls = 3
	}
}

// inferDialect guesses the adapter from a provider name, so configs can
// say just "name: anthropic".
func inferDialect(name string) string {
	switch name {
	case "openai", "groq", "mistral", "perplexity", "together", "openrouter":
		return "openai"
	case "anthropic":
		return "anthropic"
	case "azure", "azure-openai":
		return "azure"
	case "vertex", "google", "gemini":
		return "vertex"
	case "cohere":
		return "cohere"
	case "ollama":
		return "ollama"
	default:
		return "generic"
	}
}
