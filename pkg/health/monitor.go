// Package health scores provider health from passive call outcomes and
// active probes.
//
// Every adapter call feeds the per-provider exponential moving averages
// (latency and success rate) through [Monitor.Observe]; a cron-driven
// prober additionally exercises each enabled provider's HealthCheck so
// idle providers keep fresh scores. A provider is unhealthy when its
// success EMA drops below the configured threshold or its breaker is
// open.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"lumenroute/prism/pkg/providers"
)

const (
	// latencyAlpha is the smoothing factor for the latency EMA.
	latencyAlpha = 0.3

	// successAlpha is the smoothing factor for the success-rate EMA.
	successAlpha = 0.1

	// probeTimeout bounds one active health check.
	probeTimeout = 10 * time.Second
)

// Score is a point-in-time view of one provider's health.
type Score struct {
	Provider   string        `json:"provider"`
	LatencyEMA time.Duration `json:"latency_ema"`
	SuccessEMA float64       `json:"success_ema"`
	LastSeen   time.Time     `json:"last_seen"`
	InFlight   int64         `json:"in_flight"`
	Healthy    bool          `json:"healthy"`
}

// score is the mutable per-provider state, guarded by its own mutex so
// hot providers do not contend with each other.
type score struct {
	mu         sync.Mutex
	latencyEMA float64 // seconds
	successEMA float64
	lastSeen   time.Time
	inFlight   int64
	observed   bool
}

// BreakerState reports whether a provider's breaker is open. The
// monitor and the breaker registry deliberately do not reference each
// other; the gateway hands the monitor this narrow view.
type BreakerState interface {
	IsOpen(provider string) bool
}

// Monitor tracks health scores for all registered providers.
type Monitor struct {
	mu     sync.RWMutex
	scores map[string]*score

	threshold float64
	breakers  BreakerState

	cron    *cron.Cron
	entryID cron.EntryID
}

// NewMonitor creates a monitor. threshold is the success-EMA floor below
// which a provider is reported unhealthy (default 0.8 when <= 0).
// breakers may be nil.
func NewMonitor(threshold float64, breakers BreakerState) *Monitor {
	if threshold <= 0 {
		threshold = 0.8
	}
	return &Monitor{
		scores:    make(map[string]*score),
		threshold: threshold,
		breakers:  breakers,
	}
}

// get returns (creating if needed) the provider's score cell.
func (m *Monitor) get(provider string) *score {
	m.mu.RLock()
	s, ok := m.scores[provider]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.scores[provider]; ok {
		return s
	}
	// New providers start optimistic so they are routable before the
	// first probe lands.
	s = &score{successEMA: 1.0}
	m.scores[provider] = s
	return s
}

// Observe feeds one call outcome into the provider's EMAs.
func (m *Monitor) Observe(provider string, success bool, elapsed time.Duration) {
	s := m.get(provider)

	s.mu.Lock()
	defer s.mu.Unlock()

	seconds := elapsed.Seconds()
	if !s.observed {
		s.latencyEMA = seconds
		s.observed = true
	} else {
		s.latencyEMA = latencyAlpha*seconds + (1-latencyAlpha)*s.latencyEMA
	}

	outcome := 0.0
	if success {
		outcome = 1.0
	}
	s.successEMA = successAlpha*outcome + (1-successAlpha)*s.successEMA
	s.lastSeen = time.Now()
}

// Acquire increments the provider's in-flight gauge and returns the
// release function.
func (m *Monitor) Acquire(provider string) func() {
	s := m.get(provider)
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}
}

// InFlight returns the provider's current in-flight count.
func (m *Monitor) InFlight(provider string) int64 {
	s := m.get(provider)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Latency returns the provider's latency EMA.
func (m *Monitor) Latency(provider string) time.Duration {
	s := m.get(provider)
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.latencyEMA * float64(time.Second))
}

// SuccessRate returns the provider's success EMA.
func (m *Monitor) SuccessRate(provider string) float64 {
	s := m.get(provider)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.successEMA
}

// Healthy reports whether the provider is currently considered healthy:
// success EMA at or above the threshold and breaker not open.
func (m *Monitor) Healthy(provider string) bool {
	if m.breakers != nil && m.breakers.IsOpen(provider) {
		return false
	}
	return m.SuccessRate(provider) >= m.threshold
}

// Snapshot returns all providers' scores, for the metrics endpoint.
func (m *Monitor) Snapshot() []Score {
	m.mu.RLock()
	names := make([]string, 0, len(m.scores))
	for name := range m.scores {
		names = append(names, name)
	}
	m.mu.RUnlock()

	out := make([]Score, 0, len(names))
	for _, name := range names {
		s := m.get(name)
		s.mu.Lock()
		out = append(out, Score{
			Provider:   name,
			LatencyEMA: time.Duration(s.latencyEMA * float64(time.Second)),
			SuccessEMA: s.successEMA,
			LastSeen:   s.lastSeen,
			InFlight:   s.inFlight,
		})
		s.mu.Unlock()
	}
	for i := range out {
		out[i].Healthy = m.Healthy(out[i].Provider)
	}
	return out
}

// StartProbing schedules active health checks at the given interval.
// list supplies the enabled providers at each tick so hot reloads are
// picked up without rescheduling.
func (m *Monitor) StartProbing(interval time.Duration, list func() []providers.Provider) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	m.cron = cron.New()
	spec := fmt.Sprintf("@every %s", interval)
	id, err := m.cron.AddFunc(spec, func() { m.probeAll(list()) })
	if err != nil {
		return fmt.Errorf("invalid probe schedule %q: %w", spec, err)
	}
	m.entryID = id
	m.cron.Start()

	slog.Info("active health probing started", "interval", interval.String())
	return nil
}

// probeAll fans the health checks out and feeds results back into the
// same EMAs passive traffic uses.
func (m *Monitor) probeAll(list []providers.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, p := range list {
		p := p
		g.Go(func() error {
			start := time.Now()
			err := p.HealthCheck(ctx)
			m.Observe(p.Name(), err == nil, time.Since(start))
			if err != nil {
				slog.Debug("health probe failed",
					"provider", p.Name(),
					"error", err,
				)
			}
			return nil
		})
	}

	_ = g.Wait()
}

// Stop halts active probing.
func (m *Monitor) Stop() {
	if m.cron != nil {
		ctx := m.cron.Stop()
		<-ctx.Done()
	}
}
