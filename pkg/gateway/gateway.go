// Package gateway wires the core subsystems — provider registry,
// circuit breakers, health monitor, router, failover driver, and
// response cache — into the library entry points the HTTP layer calls.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"lumenroute/prism/pkg/breaker"
	"lumenroute/prism/pkg/cache"
	"lumenroute/prism/pkg/config"
	"lumenroute/prism/pkg/driver"
	"lumenroute/prism/pkg/health"
	"lumenroute/prism/pkg/providers"
	"lumenroute/prism/pkg/routing"
	"lumenroute/prism/pkg/routing/strategies"
	"lumenroute/prism/pkg/telemetry/metrics"
	"lumenroute/prism/pkg/usage"
)

// Gateway is the process-wide core: initialised once from config,
// mutated only through its own APIs, torn down in reverse-dependency
// order by Close.
type Gateway struct {
	cfg       *config.Config
	registry  *Registry
	breakers  *breaker.Registry
	monitor   *health.Monitor
	router    *routing.Router
	driver    *driver.Driver
	cache     *cache.Cache
	collector *metrics.Collector
	usage     *usage.Store

	started time.Time
}

// New builds a gateway from configuration. The config must already be
// validated.
func New(cfg *config.Config) (*Gateway, error) {
	g := &Gateway{cfg: cfg, started: time.Now()}

	if cfg.Metrics.IsEnabled() {
		g.collector = metrics.NewCollector(metrics.Config{Namespace: cfg.Metrics.Namespace}, nil)
	}

	registry, err := NewRegistry(cfg.Providers)
	if err != nil {
		return nil, err
	}
	g.registry = registry

	breakerConfigs := make(map[string]breaker.Config, len(cfg.Providers))
	for i := range cfg.Providers {
		pc := &cfg.Providers[i]
		breakerConfigs[pc.Name] = breaker.Config{
			FailureThreshold: pc.Breaker.FailureThreshold,
			RecoveryTimeout:  pc.Breaker.RecoveryTimeout,
			RequestTimeout:   pc.Breaker.RequestTimeout,
			HalfOpenMaxCalls: pc.Breaker.HalfOpenMaxCalls,
		}
	}
	g.breakers = breaker.NewRegistry(breakerConfigs, breaker.Config{}, g.onBreakerTransition)

	g.monitor = health.NewMonitor(cfg.Routing.FailoverThreshold, g.breakers)

	strategy, err := strategies.New(cfg.Routing.Strategy, strategies.Options{
		Provider:        cfg.Routing.Provider,
		Weights:         cfg.Routing.Weights,
		Rules:           toRules(cfg.Routing.Rules),
		DefaultProvider: cfg.Routing.DefaultProvider,
		Splits:          cfg.Routing.Splits,
		Stats:           g.monitor,
		Hash:            cache.FingerprintHash,
	})
	if err != nil {
		registry.Close()
		return nil, err
	}

	g.router = routing.NewRouter(strategy, registry, g.breakers)
	g.driver = driver.New(g.breakers, g.monitor, g.onAttempt)

	if cfg.Cache.IsEnabled() {
		backend, err := newCacheBackend(cfg)
		if err != nil {
			registry.Close()
			return nil, err
		}
		g.cache = cache.New(backend, cfg.Cache.TTL)
	}

	if cfg.Usage.Enabled {
		store, err := usage.NewStore(usage.Config{
			Path:          cfg.Usage.Path,
			Retention:     cfg.Usage.Retention,
			PruneSchedule: cfg.Usage.PruneSchedule,
		})
		if err != nil {
			registry.Close()
			return nil, err
		}
		g.usage = store
	}

	if err := g.monitor.StartProbing(cfg.Routing.HealthCheckInterval, registry.Enabled); err != nil {
		g.Close()
		return nil, err
	}

	slog.Info("gateway initialized",
		"providers", len(cfg.Providers),
		"strategy", cfg.Routing.Strategy,
		"cache", cfg.Cache.IsEnabled(),
	)

	return g, nil
}

// newCacheBackend builds the configured cache backend.
func newCacheBackend(cfg *config.Config) (cache.Backend, error) {
	switch cfg.Cache.Backend {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return cache.NewRedisBackend(ctx, cfg.Cache.Redis.Addr, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB, cfg.Cache.TTL)
	default:
		return cache.NewMemoryBackend(cfg.Cache.TTL, cfg.Cache.MaxSize), nil
	}
}

// toRules converts config rules to routing rules.
func toRules(in []config.ConditionalRule) []routing.Rule {
	out := make([]routing.Rule, len(in))
	for i, r := range in {
		out[i] = routing.Rule{
			ModelPrefix: r.ModelPrefix,
			MinTokens:   r.MinTokens,
			MaxTokens:   r.MaxTokens,
			Region:      r.Region,
			Provider:    r.Provider,
		}
	}
	return out
}

// onBreakerTransition feeds breaker transitions into metrics.
func (g *Gateway) onBreakerTransition(provider string, from, to breaker.State, at time.Time) {
	slog.Info("circuit breaker transition",
		"provider", provider,
		"from", from.String(),
		"to", to.String(),
		"at", at,
	)
	if g.collector != nil {
		g.collector.Breaker.RecordTransition(provider, from.String(), to.String(), int(to))
	}
}

// onAttempt feeds every adapter attempt into metrics.
func (g *Gateway) onAttempt(provider string, op providers.Operation, err error, elapsed time.Duration) {
	if g.collector == nil {
		return
	}
	kind := ""
	if err != nil {
		kind = providers.KindOf(err).String()
	}
	g.collector.Provider.RecordAttempt(provider, string(op), kind, elapsed.Seconds())
	g.collector.Provider.UpdateHealth(provider, g.monitor.Healthy(provider))
	g.collector.Provider.SetInFlight(provider, g.monitor.InFlight(provider))
}

// Registry exposes the provider registry (for /v1/models and tests).
func (g *Gateway) Registry() *Registry { return g.registry }

// Breakers exposes breaker snapshots for the admin endpoint.
func (g *Gateway) Breakers() []breaker.Snapshot { return g.breakers.Snapshots() }

// Health exposes the health scores.
func (g *Gateway) Health() []health.Score { return g.monitor.Snapshot() }

// Collector returns the Prometheus collector (nil when metrics are
// disabled).
func (g *Gateway) Collector() *metrics.Collector { return g.collector }

// ApplyConfig applies the hot-reloadable subset of a freshly loaded
// configuration: provider enabled flags. Listener and adapter changes
// require a restart.
func (g *Gateway) ApplyConfig(cfg *config.Config) {
	for i := range cfg.Providers {
		pc := &cfg.Providers[i]
		g.registry.SetEnabled(pc.Name, pc.IsEnabled())
	}
}

// Close tears the gateway down in reverse-dependency order:
// health prober, then cache, then usage store, then adapters (which
// close their connection pools).
func (g *Gateway) Close() error {
	g.monitor.Stop()
	if g.cache != nil {
		if err := g.cache.Close(); err != nil {
			slog.Warn("cache close failed", "error", err)
		}
	}
	if g.usage != nil {
		if err := g.usage.Close(); err != nil {
			slog.Warn("usage store close failed", "error", err)
		}
	}
	g.registry.Close()
	slog.Info("gateway closed")
	return nil
}

// MetricsSnapshot is the JSON document served on GET /metrics.
type MetricsSnapshot struct {
	UptimeSeconds float64                 `json:"uptime_seconds"`
	Providers     []health.Score          `json:"providers"`
	Breakers      []breaker.Snapshot      `json:"breakers"`
	Cache         *cache.Stats            `json:"cache,omitempty"`
	Usage         *usage.Totals           `json:"usage,omitempty"`
	UsagePerProv  map[string]usage.Totals `json:"usage_by_provider,omitempty"`
}

// Snapshot assembles the JSON metrics document.
func (g *Gateway) Snapshot(ctx context.Context) MetricsSnapshot {
	snap := MetricsSnapshot{
		UptimeSeconds: time.Since(g.started).Seconds(),
		Providers:     g.monitor.Snapshot(),
		Breakers:      g.breakers.Snapshots(),
	}

	if g.cache != nil {
		stats := g.cache.Stats(ctx)
		snap.Cache = &stats
		if g.collector != nil {
			g.collector.Cache.SetEntries(stats.Entries)
		}
	}

	if g.usage != nil {
		if totals, err := g.usage.Totals(ctx); err == nil {
			snap.Usage = &totals
		}
		if per, err := g.usage.TotalsByProvider(ctx); err == nil {
			snap.UsagePerProv = per
		}
	}

	return snap
}

// execute routes and drives one non-streaming call.
func execute[T any](g *Gateway, ctx context.Context, req providers.Request, call func(context.Context, providers.Provider) (T, error)) (T, error) {
	var zero T

	candidates, err := g.router.Candidates(req)
	if err != nil {
		return zero, err
	}

	return driver.Run(ctx, g.driver, req, candidates, call)
}

// cached wraps execute with the response cache and single-flight
// coalescing. The leader's upstream work is detached from its client's
// cancellation so a filled cache outlives an impatient leader; the
// leader still observes its own cancellation afterwards.
func cached[T any](g *Gateway, ctx context.Context, req providers.Request, call func(context.Context, providers.Provider) (T, error)) (T, bool, error) {
	var zero T

	look := g.cache.Lookup(ctx, req)
	switch look.State {
	case cache.StateHit:
		if g.collector != nil {
			g.collector.Cache.RecordHit()
		}
		var result T
		if err := json.Unmarshal(look.Payload, &result); err != nil {
			return zero, false, fmt.Errorf("corrupt cache payload: %w", err)
		}
		return result, true, nil

	case cache.StateWait:
		if g.collector != nil {
			g.collector.Cache.RecordCoalesced()
		}
		payload, err := look.Wait(ctx)
		if err != nil {
			return zero, false, err
		}
		var result T
		if err := json.Unmarshal(payload, &result); err != nil {
			return zero, false, fmt.Errorf("corrupt cache payload: %w", err)
		}
		return result, true, nil

	case cache.StateLead:
		if g.collector != nil {
			g.collector.Cache.RecordMiss()
		}
		leaderCtx := context.WithoutCancel(ctx)
		result, err := execute(g, leaderCtx, req, call)

		var payload []byte
		if err == nil {
			if payload, err = json.Marshal(result); err != nil {
				err = fmt.Errorf("failed to encode response for cache: %w", err)
			}
		}
		look.Complete(context.WithoutCancel(ctx), payload, err)

		if err == nil && ctx.Err() != nil {
			// The upstream call finished for the cache's benefit, but
			// this caller is gone.
			return zero, false, &providers.Error{Kind: providers.KindCancelled, Message: "request cancelled", Cause: ctx.Err()}
		}
		return result, false, err

	default: // cache.StateBypass
		result, err := execute(g, ctx, req, call)
		return result, false, err
	}
}
