package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
server:
  port: 9090
providers:
  - name: openai
    api_key: sk-test
  - name: anthropic
    api_key: sk-ant-test
routing:
  strategy: failover
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "failover", cfg.Routing.Strategy)
	assert.Equal(t, 30*time.Second, cfg.Routing.HealthCheckInterval)
	assert.Equal(t, 0.8, cfg.Routing.FailoverThreshold)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 1000, cfg.Cache.MaxSize)

	require.Len(t, cfg.Providers, 2)
	openai := cfg.Providers[0]
	assert.Equal(t, "openai", openai.Dialect, "dialect inferred from name")
	assert.Equal(t, 60*time.Second, openai.Timeout)
	assert.Equal(t, 5, openai.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, openai.Breaker.RecoveryTimeout)
	assert.Equal(t, 3, openai.Breaker.HalfOpenMaxCalls)
	assert.True(t, openai.IsEnabled())

	assert.Equal(t, "anthropic", cfg.Providers[1].Dialect)
}

func TestLoadPreservesProviderOrder(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
providers:
  - name: zeta
    base_url: http://localhost:1
    dialect: generic
  - name: alpha
    base_url: http://localhost:2
    dialect: generic
  - name: mid
    base_url: http://localhost:3
    dialect: generic
`))
	require.NoError(t, err)

	names := make([]string, len(cfg.Providers))
	for i, p := range cfg.Providers {
		names[i] = p.Name
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names, "config order drives failover order")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PRISM_SERVER_PORT", "7777")
	t.Setenv("PRISM_ROUTING_STRATEGY", "round-robin")
	t.Setenv("PRISM_CACHE_ENABLED", "false")
	t.Setenv("PRISM_PROVIDER_OPENAI_API_KEY", "sk-from-env")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "round-robin", cfg.Routing.Strategy)
	assert.False(t, cfg.Cache.IsEnabled())
	assert.Equal(t, "sk-from-env", cfg.Providers[0].APIKey)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no providers", `
server: {port: 8080}
providers: []
`},
		{"duplicate provider", `
providers:
  - {name: a, dialect: openai, api_key: k}
  - {name: a, dialect: openai, api_key: k}
`},
		{"unknown strategy", `
providers: [{name: a, dialect: openai, api_key: k}]
routing: {strategy: chaos-monkey}
`},
		{"generic without base_url", `
providers: [{name: local, dialect: generic}]
`},
		{"conditional without default", `
providers: [{name: a, dialect: openai, api_key: k}]
routing:
  strategy: conditional
  rules: [{model_prefix: "gpt-", provider: a}]
`},
		{"conditional rule without predicates", `
providers: [{name: a, dialect: openai, api_key: k}]
routing:
  strategy: conditional
  default_provider: a
  rules: [{provider: a}]
`},
		{"ab-test splits not 100", `
providers:
  - {name: a, dialect: openai, api_key: k}
  - {name: b, dialect: openai, api_key: k}
routing:
  strategy: ab-test
  splits: {a: 50, b: 40}
`},
		{"bad cache backend", `
providers: [{name: a, dialect: openai, api_key: k}]
cache: {backend: memcached}
`},
		{"auth without keys", `
providers: [{name: a, dialect: openai, api_key: k}]
auth: {enabled: true}
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestValidateAcceptsAllStrategies(t *testing.T) {
	base := `
providers:
  - {name: a, dialect: openai, api_key: k}
  - {name: b, dialect: openai, api_key: k}
routing:
`
	for _, strategy := range []string{"single", "round-robin", "least-used", "lowest-latency", "failover"} {
		_, err := Load(writeConfig(t, base+"  strategy: "+strategy+"\n"))
		assert.NoError(t, err, strategy)
	}

	_, err := Load(writeConfig(t, base+`  strategy: load-balance
  weights: {a: 3, b: 1}
`))
	assert.NoError(t, err)

	_, err = Load(writeConfig(t, base+`  strategy: conditional
  default_provider: a
  rules: [{model_prefix: "gpt-", provider: b}]
`))
	assert.NoError(t, err)

	_, err = Load(writeConfig(t, base+`  strategy: ab-test
  splits: {a: 25, b: 75}
`))
	assert.NoError(t, err)
}

func TestWatcherReloads(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()

	updated := minimalConfig + "\ncache:\n  backend: memory\n  max_size: 42\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 42, cfg.Cache.MaxSize)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not reload")
	}
}
