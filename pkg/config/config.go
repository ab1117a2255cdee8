package config

import "time"

// Config is the root gateway configuration. YAML is the persisted
// serialization; the core accepts this structured value and the CLI
// loads it from --config.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server"`

	// Providers lists the upstream providers in priority order. Order
	// is meaningful: the single and failover strategies follow it.
	Providers []ProviderConfig `yaml:"providers"`

	// Routing selects and configures the routing strategy.
	Routing RoutingConfig `yaml:"routing"`

	// Cache configures the response cache.
	Cache CacheConfig `yaml:"cache"`

	// Auth configures inbound authentication and rate limiting.
	Auth AuthConfig `yaml:"auth"`

	// Metrics configures the Prometheus collector.
	Metrics MetricsConfig `yaml:"metrics"`

	// Usage configures the request accounting store.
	Usage UsageConfig `yaml:"usage"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// ReadTimeout / WriteTimeout / IdleTimeout bound the listener.
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`

	// RequestTimeout is the maximum end-to-end request duration the
	// gateway imposes when the caller supplies no deadline.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodySize bounds inbound request bodies in bytes.
	MaxBodySize int64 `yaml:"max_body_size"`

	// CORS configures cross-origin access.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig configures cross-origin resource sharing.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// ProviderConfig is the descriptor for one upstream provider.
type ProviderConfig struct {
	// Name is the stable identifier used in routing, metrics, and
	// breaker state.
	Name string `yaml:"name"`

	// Dialect selects the adapter: openai, anthropic, azure, vertex,
	// cohere, ollama, generic. Empty dialects are inferred from the
	// name.
	Dialect string `yaml:"dialect"`

	// BaseURL overrides the dialect's default endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey is the credential. Supports env override
	// PRISM_PROVIDER_<NAME>_API_KEY.
	APIKey string `yaml:"api_key"`

	// Region tags the provider for hint-based routing.
	Region string `yaml:"region"`

	// Enabled defaults to true.
	Enabled *bool `yaml:"enabled"`

	// Timeout is the per-request timeout for this provider.
	Timeout time.Duration `yaml:"timeout"`

	// Models maps logical model names to provider-native names.
	Models map[string]string `yaml:"models"`

	// RequireModels makes unmapped logical models an error instead of
	// passing through verbatim.
	RequireModels bool `yaml:"require_models"`

	// Headers are custom header injections.
	Headers map[string]string `yaml:"headers"`

	// APIVersion is dialect-specific (azure api-version,
	// anthropic-version).
	APIVersion string `yaml:"api_version"`

	// MaxRetries is the same-provider retry budget for retryable
	// failures.
	MaxRetries int `yaml:"max_retries"`

	// RetryBaseDelay seeds the retry backoff.
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`

	// MaxIdleConns / MaxIdleConnsPerHost / IdleConnTimeout bound the
	// provider's connection pool.
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`

	// MaxInFlight bounds concurrent requests (0 = unbounded).
	MaxInFlight int64 `yaml:"max_in_flight"`

	// Breaker configures the provider's circuit breaker.
	Breaker BreakerConfig `yaml:"breaker"`
}

// IsEnabled reports the effective enabled flag (default true).
func (p *ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// BreakerConfig configures one circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	HalfOpenMaxCalls int           `yaml:"half_open_max_calls"`
}

// RoutingConfig selects and parameterizes the routing strategy.
type RoutingConfig struct {
	// Strategy: single, round-robin, load-balance, least-used,
	// lowest-latency, failover, conditional, ab-test.
	Strategy string `yaml:"strategy"`

	// HealthCheckInterval is the active probe interval.
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`

	// FailoverThreshold is the success-EMA floor below which a
	// provider is reported unhealthy.
	FailoverThreshold float64 `yaml:"failover_threshold"`

	// Provider pins the single strategy.
	Provider string `yaml:"provider"`

	// Weights drive the load-balance strategy.
	Weights map[string]int `yaml:"weights"`

	// Rules drive the conditional strategy.
	Rules []ConditionalRule `yaml:"rules"`

	// DefaultProvider is the conditional fall-through target.
	DefaultProvider string `yaml:"default_provider"`

	// Splits drive the ab-test strategy (percent per provider,
	// summing to 100).
	Splits map[string]int `yaml:"splits"`
}

// ConditionalRule is one conditional-routing rule. All declared
// predicates must match (conjunction); rules with no predicates are
// rejected by validation.
type ConditionalRule struct {
	ModelPrefix string `yaml:"model_prefix"`
	MinTokens   int    `yaml:"min_tokens"`
	MaxTokens   int    `yaml:"max_tokens"`
	Region      string `yaml:"region"`
	Provider    string `yaml:"provider"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	// Enabled defaults to true.
	Enabled *bool `yaml:"enabled"`

	// Backend: memory or redis.
	Backend string `yaml:"backend"`

	// TTL is the entry lifetime.
	TTL time.Duration `yaml:"ttl"`

	// MaxSize bounds the entry count (memory backend).
	MaxSize int `yaml:"max_size"`

	// Redis configures the redis backend.
	Redis RedisConfig `yaml:"redis"`
}

// IsEnabled reports the effective enabled flag (default true).
func (c *CacheConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// RedisConfig configures the Redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig configures inbound authentication.
type AuthConfig struct {
	Enabled bool `yaml:"enabled"`

	// APIKeys are the accepted bearer keys.
	APIKeys []string `yaml:"api_keys"`

	// RateLimit is the per-key token bucket.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig configures the per-key token bucket.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	Enabled   *bool  `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// IsEnabled reports the effective enabled flag (default true).
func (m *MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// UsageConfig configures the request accounting store.
type UsageConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Path          string        `yaml:"path"`
	Retention     time.Duration `yaml:"retention"`
	PruneSchedule string        `yaml:"prune_schedule"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}
