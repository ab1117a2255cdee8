package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads, defaults, env-overrides, and validates the configuration
// at path.
//
// The sequence is:
//  1. Parse YAML from the file
//  2. Apply default values
//  3. Apply environment variable overrides (PRISM_SECTION_FIELD)
//  4. Validate the final configuration
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies PRISM_SECTION_FIELD environment variables
// over string, boolean, and numeric fields.
func applyEnvOverrides(cfg *Config) {
	setString("PRISM_SERVER_HOST", &cfg.Server.Host)
	setInt("PRISM_SERVER_PORT", &cfg.Server.Port)
	setDuration("PRISM_SERVER_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)
	setInt64("PRISM_SERVER_MAX_BODY_SIZE", &cfg.Server.MaxBodySize)

	setString("PRISM_ROUTING_STRATEGY", &cfg.Routing.Strategy)
	setDuration("PRISM_ROUTING_HEALTH_CHECK_INTERVAL", &cfg.Routing.HealthCheckInterval)

	setBoolPtr("PRISM_CACHE_ENABLED", &cfg.Cache.Enabled)
	setString("PRISM_CACHE_BACKEND", &cfg.Cache.Backend)
	setDuration("PRISM_CACHE_TTL", &cfg.Cache.TTL)
	setInt("PRISM_CACHE_MAX_SIZE", &cfg.Cache.MaxSize)
	setString("PRISM_CACHE_REDIS_ADDR", &cfg.Cache.Redis.Addr)
	setString("PRISM_CACHE_REDIS_PASSWORD", &cfg.Cache.Redis.Password)

	setBool("PRISM_AUTH_ENABLED", &cfg.Auth.Enabled)
	if val := os.Getenv("PRISM_AUTH_API_KEYS"); val != "" {
		cfg.Auth.APIKeys = strings.Split(val, ",")
	}

	setBoolPtr("PRISM_METRICS_ENABLED", &cfg.Metrics.Enabled)
	setBool("PRISM_USAGE_ENABLED", &cfg.Usage.Enabled)
	setString("PRISM_USAGE_PATH", &cfg.Usage.Path)

	setString("PRISM_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("PRISM_LOGGING_FORMAT", &cfg.Logging.Format)
	setString("PRISM_LOGGING_OUTPUT", &cfg.Logging.Output)

	// Per-provider overrides: PRISM_PROVIDER_<NAME>_API_KEY etc.
	for i := range cfg.Providers {
		prefix := "PRISM_PROVIDER_" + strings.ToUpper(strings.ReplaceAll(cfg.Providers[i].Name, "-", "_"))
		setString(prefix+"_API_KEY", &cfg.Providers[i].APIKey)
		setString(prefix+"_BASE_URL", &cfg.Providers[i].BaseURL)
		setBoolPtr(prefix+"_ENABLED", &cfg.Providers[i].Enabled)
	}
}

func setString(key string, target *string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

func setInt(key string, target *int) {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*target = i
		}
	}
}

func setInt64(key string, target *int64) {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			*target = i
		}
	}
}

func setBool(key string, target *bool) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*target = b
		}
	}
}

func setBoolPtr(key string, target **bool) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*target = &b
		}
	}
}

func setDuration(key string, target *time.Duration) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*target = d
		}
	}
}
