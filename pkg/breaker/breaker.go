// Package breaker provides per-provider failure isolation.
//
// One [Breaker] guards each provider with the classic three-state
// machine (closed → open → half-open). The driver asks for admission
// before every adapter call and reports the classified outcome after;
// caller-fault errors (bad request, auth, unsupported model or feature,
// cancellation) never count against the provider.
//
// All types are safe for concurrent use.
package breaker

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"lumenroute/prism/pkg/providers"
)

// ErrOpen is returned by [Breaker.Allow] when the breaker rejects the
// call, either because it is open or because the half-open probe budget
// is exhausted.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [Breaker].
type State int

const (
	// StateClosed is the normal operating state — calls pass through.
	StateClosed State = iota

	// StateOpen means the breaker has tripped; calls fail fast until
	// the recovery timeout elapses.
	StateOpen

	// StateHalfOpen is the probe state: a bounded number of concurrent
	// calls are admitted to test recovery.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds the tuning knobs for a [Breaker]. Zero values are
// replaced with defaults by [New].
type Config struct {
	// FailureThreshold is the number of consecutive counted failures in
	// the closed state before the breaker opens. Default: 5.
	FailureThreshold int

	// RecoveryTimeout is how long the breaker stays open before
	// admitting probes. Default: 30s.
	RecoveryTimeout time.Duration

	// RequestTimeout is the per-call deadline the breaker enforces on
	// top of any caller deadline (the shorter wins). Default: 60s.
	RequestTimeout time.Duration

	// HalfOpenMaxCalls is both the concurrent probe budget and the
	// consecutive-success count required to close. Default: 3.
	HalfOpenMaxCalls int
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 30 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = 3
	}
	return c
}

// TransitionFunc observes state transitions for metrics. It is called
// outside the breaker lock.
type TransitionFunc func(provider string, from, to State, at time.Time)

// Snapshot is a point-in-time view of a breaker for observability.
type Snapshot struct {
	Provider            string    `json:"provider"`
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	HalfOpenSuccesses   int       `json:"half_open_successes"`
	StateSince          time.Time `json:"state_since"`
	LastRetryAfterHint  string    `json:"last_retry_after_hint,omitempty"`
}

// Breaker implements the three-state circuit breaker for one provider.
type Breaker struct {
	provider     string
	config       Config
	onTransition TransitionFunc

	mu                sync.Mutex
	state             State
	consecutiveFail   int
	halfOpenInFlight  int
	halfOpenSuccesses int
	stateSince        time.Time
	retryAfterHint    time.Duration
}

// New creates a [Breaker] for the named provider. onTransition may be
// nil.
func New(provider string, config Config, onTransition TransitionFunc) *Breaker {
	return &Breaker{
		provider:     provider,
		config:       config.withDefaults(),
		onTransition: onTransition,
		state:        StateClosed,
		stateSince:   time.Now(),
	}
}

// RequestTimeout returns the per-call deadline this breaker enforces.
func (b *Breaker) RequestTimeout() time.Duration {
	return b.config.RequestTimeout
}

// Allow asks for admission. On success it returns a completion callback
// the caller must invoke exactly once with the call's outcome. When the
// breaker rejects the call it returns [ErrOpen].
func (b *Breaker) Allow() (done func(err error), err error) {
	b.mu.Lock()

	switch b.state {
	case StateOpen:
		if time.Since(b.stateSince) < b.config.RecoveryTimeout {
			b.mu.Unlock()
			return nil, ErrOpen
		}
		b.transition(StateHalfOpen)
		fallthrough

	case StateHalfOpen:
		if b.halfOpenInFlight >= b.config.HalfOpenMaxCalls {
			b.mu.Unlock()
			return nil, ErrOpen
		}
		b.halfOpenInFlight++
	}

	probe := b.state == StateHalfOpen
	b.mu.Unlock()

	return func(err error) { b.record(probe, err) }, nil
}

// record applies a classified outcome.
func (b *Breaker) record(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe && b.halfOpenInFlight > 0 {
		// A probe admitted before a state flip may report after the
		// counter was reset; never let the slot count go negative.
		b.halfOpenInFlight--
	}

	if err == nil {
		b.recordSuccess(probe)
		return
	}

	pe, ok := providers.AsError(err)
	if ok && !pe.BreakerFailure() {
		// Caller-fault errors neither trip nor heal the breaker.
		return
	}
	if ok && pe.Kind == providers.KindRateLimited {
		b.retryAfterHint = pe.RetryAfter
	}

	b.recordFailure(probe)
}

// recordFailure handles failure accounting. Must be called with b.mu
// held.
func (b *Breaker) recordFailure(probe bool) {
	if b.state == StateHalfOpen {
		// Any counted failure during probing re-opens immediately.
		b.halfOpenSuccesses = 0
		b.consecutiveFail = b.config.FailureThreshold
		b.transition(StateOpen)
		slog.Warn("circuit breaker re-opened from half-open",
			"provider", b.provider)
		return
	}

	if b.state != StateClosed {
		return
	}

	b.consecutiveFail++
	if b.consecutiveFail >= b.config.FailureThreshold {
		b.transition(StateOpen)
		slog.Warn("circuit breaker opened",
			"provider", b.provider,
			"consecutive_failures", b.consecutiveFail)
	}
}

// recordSuccess handles success accounting. Must be called with b.mu
// held.
func (b *Breaker) recordSuccess(probe bool) {
	if b.state == StateHalfOpen && probe {
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.config.HalfOpenMaxCalls {
			b.consecutiveFail = 0
			b.halfOpenSuccesses = 0
			b.transition(StateClosed)
			slog.Info("circuit breaker closed after successful probes",
				"provider", b.provider)
		}
		return
	}

	b.consecutiveFail = 0
}

// transition switches state and notifies the observer. Must be called
// with b.mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.stateSince = time.Now()
	if to == StateHalfOpen {
		b.halfOpenInFlight = 0
		b.halfOpenSuccesses = 0
	}
	if b.onTransition != nil {
		at := b.stateSince
		go b.onTransition(b.provider, from, to, at)
	}
}

// State returns the breaker's current state. An open breaker whose
// recovery timeout has elapsed reports half-open; the actual transition
// happens on the next Allow.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && time.Since(b.stateSince) >= b.config.RecoveryTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Snapshot returns a point-in-time view for the admin endpoint.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		Provider:            b.provider,
		State:               b.state.String(),
		ConsecutiveFailures: b.consecutiveFail,
		HalfOpenSuccesses:   b.halfOpenSuccesses,
		StateSince:          b.stateSince,
	}
	if b.retryAfterHint > 0 {
		snap.LastRetryAfterHint = b.retryAfterHint.String()
	}
	return snap
}

// Reset forces the breaker back to closed, clearing all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFail = 0
	b.halfOpenInFlight = 0
	b.halfOpenSuccesses = 0
	b.transition(StateClosed)
	slog.Info("circuit breaker manually reset", "provider", b.provider)
}
