// Package driver walks a routed candidate list with retries, breaker
// accounting, and deadline composition.
//
// For every attempt the driver asks the provider's breaker for
// admission, composes the effective deadline (the shortest of the
// caller's deadline, the breaker's request timeout, and the provider's
// configured timeout), invokes the adapter, and reports the classified
// outcome to both the breaker and the health monitor. Failover is
// strictly ordered; attempts are never issued in parallel.
package driver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"lumenroute/prism/pkg/breaker"
	"lumenroute/prism/pkg/health"
	"lumenroute/prism/pkg/providers"
)

// AttemptObserver sees every adapter attempt, for metrics.
type AttemptObserver func(provider string, op providers.Operation, err error, elapsed time.Duration)

// Driver coordinates failover across a candidate list.
type Driver struct {
	breakers *breaker.Registry
	monitor  *health.Monitor
	observer AttemptObserver
}

// New creates a driver. observer may be nil.
func New(breakers *breaker.Registry, monitor *health.Monitor, observer AttemptObserver) *Driver {
	return &Driver{
		breakers: breakers,
		monitor:  monitor,
		observer: observer,
	}
}

// Run executes call across the candidates in order and returns the
// first success.
//
// Per-candidate behavior:
//   - an open breaker skips the candidate;
//   - caller-fault errors (bad request, auth, unsupported model or
//     feature) surface immediately without failover;
//   - a rate limit whose retry-after hint fits within a quarter of the
//     remaining budget sleeps and retries the same provider once;
//   - transient/timeout/truncated-stream failures retry the same
//     provider per its retry policy (exponential backoff, full jitter,
//     capped at half the breaker request timeout), then advance;
//   - cancellation aborts everything and is never counted against the
//     breaker.
//
// When the list is exhausted the returned error is
// *AllProvidersFailedError carrying the per-provider error list.
func Run[T any](ctx context.Context, d *Driver, req providers.Request, candidates []providers.Provider, call func(context.Context, providers.Provider) (T, error)) (T, error) {
	var zero T
	failures := make(map[string]error, len(candidates))

	for _, p := range candidates {
		result, err := tryProvider(ctx, d, req, p, call)
		if err == nil {
			return result, nil
		}

		if ctx.Err() != nil {
			return zero, &providers.Error{
				Provider: p.Name(),
				Kind:     providers.KindCancelled,
				Message:  "request cancelled",
				Cause:    ctx.Err(),
			}
		}

		if !shouldFailover(err) {
			return zero, err
		}

		failures[p.Name()] = err
		slog.Debug("advancing to next candidate",
			"provider", p.Name(),
			"model", req.ModelName(),
			"error", err,
		)
	}

	return zero, &AllProvidersFailedError{Errors: failures}
}

// tryProvider runs all same-provider attempts (breaker admission, the
// initial call, rate-limit waits, and backoff retries).
func tryProvider[T any](ctx context.Context, d *Driver, req providers.Request, p providers.Provider, call func(context.Context, providers.Provider) (T, error)) (T, error) {
	var zero T

	cfg := p.Config()
	b := d.breakers.Get(p.Name())
	maxRetries := cfg.MaxRetries

	var lastErr error
	rateLimitRetried := false

	for attempt := 0; ; attempt++ {
		done, err := b.Allow()
		if err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, &BreakerOpenError{Provider: p.Name()}
		}

		result, err := invoke(ctx, d, req, p, b, call)
		done(err)

		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil || !shouldFailover(err) {
			return zero, err
		}

		pe, _ := providers.AsError(err)

		// Rate limits: wait for the provider's hint once, when it fits
		// the remaining budget.
		if pe != nil && pe.Kind == providers.KindRateLimited {
			if rateLimitRetried || !d.waitRetryAfter(ctx, pe.RetryAfter) {
				return zero, err
			}
			rateLimitRetried = true
			continue
		}

		if attempt >= maxRetries {
			return zero, err
		}

		delay := backoffDelay(cfg.RetryBaseDelay, attempt, b.RequestTimeout())
		slog.Debug("retrying provider",
			"provider", p.Name(),
			"attempt", attempt+1,
			"max_retries", maxRetries,
			"backoff", delay,
		)
		select {
		case <-ctx.Done():
			return zero, &providers.Error{Provider: p.Name(), Kind: providers.KindCancelled, Message: "request cancelled", Cause: ctx.Err()}
		case <-time.After(delay):
		}
	}
}

// invoke issues one adapter call under the composed deadline, feeding
// the outcome to the health monitor and observer.
func invoke[T any](ctx context.Context, d *Driver, req providers.Request, p providers.Provider, b *breaker.Breaker, call func(context.Context, providers.Provider) (T, error)) (T, error) {
	attemptCtx, cancel := d.composeDeadline(ctx, p, b)
	defer cancel()

	release := d.monitor.Acquire(p.Name())
	start := time.Now()
	result, err := call(attemptCtx, p)
	elapsed := time.Since(start)
	release()

	success := err == nil
	if pe, ok := providers.AsError(err); ok && pe.Kind == providers.KindCancelled {
		// The caller went away; the provider did nothing wrong and the
		// score should not move.
		d.observe(p.Name(), req.Operation(), err, elapsed)
		return result, err
	}
	d.monitor.Observe(p.Name(), success, elapsed)
	d.observe(p.Name(), req.Operation(), err, elapsed)

	return result, err
}

// composeDeadline applies min(caller deadline, breaker request timeout,
// provider timeout).
func (d *Driver) composeDeadline(ctx context.Context, p providers.Provider, b *breaker.Breaker) (context.Context, context.CancelFunc) {
	timeout := b.RequestTimeout()
	if pt := p.Config().Timeout; pt > 0 && pt < timeout {
		timeout = pt
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// waitRetryAfter sleeps for the provider's hint when it fits within a
// quarter of the remaining budget. Returns false when the hint is
// absent or too long to be worth waiting for.
func (d *Driver) waitRetryAfter(ctx context.Context, hint time.Duration) bool {
	if hint <= 0 {
		return false
	}

	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); hint > remaining/4 {
			return false
		}
	}

	select {
	case <-ctx.Done():
		return false
	case <-time.After(hint):
		return true
	}
}

// observe reports an attempt to the metrics observer.
func (d *Driver) observe(provider string, op providers.Operation, err error, elapsed time.Duration) {
	if d.observer != nil {
		d.observer(provider, op, err, elapsed)
	}
}

// shouldFailover reports whether the error permits advancing to the
// next candidate: retryable provider faults and breaker skips do;
// caller faults and cancellation do not.
func shouldFailover(err error) bool {
	var open *BreakerOpenError
	if errors.As(err, &open) {
		return true
	}
	if pe, ok := providers.AsError(err); ok {
		return pe.Retryable()
	}
	// Unclassified errors are treated as transient.
	return true
}
