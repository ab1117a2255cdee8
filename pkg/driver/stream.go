package driver

import (
	"context"
	"log/slog"
	"time"

	"lumenroute/prism/pkg/providers"
	"lumenroute/prism/pkg/stream"
)

// RunStream executes a streaming call across the candidates in order.
// Breaker admission and the failover classification match Run, but each
// candidate gets a single attempt: Run's same-provider backoff retries
// and rate-limit waits are not applied. Once the first content chunk
// has been handed to the returned channel there is no failover either —
// a later failure reaches the consumer as a terminal error chunk.
//
// The returned cancel function aborts the upstream call; the HTTP layer
// ties it to the client connection.
func (d *Driver) RunStream(ctx context.Context, req providers.Request, candidates []providers.Provider, open func(context.Context, providers.Provider) (<-chan *providers.StreamChunk, error)) (<-chan *providers.StreamChunk, context.CancelFunc, error) {
	failures := make(map[string]error, len(candidates))

	for _, p := range candidates {
		b := d.breakers.Get(p.Name())

		done, err := b.Allow()
		if err != nil {
			failures[p.Name()] = &BreakerOpenError{Provider: p.Name()}
			continue
		}

		// Streams get a cancellable context without the request
		// timeout: a healthy stream legitimately outlives it. The
		// upstream connect is still bounded by the provider's HTTP
		// behavior and the caller's own deadline.
		streamCtx, cancel := context.WithCancel(ctx)
		release := d.monitor.Acquire(p.Name())
		start := time.Now()

		upstream, err := open(streamCtx, p)
		if err != nil {
			done(err)
			release()
			cancel()
			d.monitor.Observe(p.Name(), false, time.Since(start))
			d.observe(p.Name(), req.Operation(), err, time.Since(start))

			if ctx.Err() != nil || !shouldFailover(err) {
				return nil, nil, err
			}
			failures[p.Name()] = err
			continue
		}

		// Peek the first chunk: a stream that dies before emitting any
		// content is still eligible for failover.
		var first *providers.StreamChunk
		select {
		case first = <-upstream:
		case <-ctx.Done():
			cancelErr := &providers.Error{Provider: p.Name(), Kind: providers.KindCancelled, Message: "request cancelled", Cause: ctx.Err()}
			done(cancelErr)
			release()
			cancel()
			return nil, nil, cancelErr
		}

		if first == nil || first.Err != nil {
			var ferr error
			if first != nil {
				ferr = first.Err
			} else {
				ferr = &providers.Error{Provider: p.Name(), Kind: providers.KindTruncatedStream, Message: "stream closed before first chunk"}
			}
			done(ferr)
			release()
			cancel()
			d.monitor.Observe(p.Name(), false, time.Since(start))
			d.observe(p.Name(), req.Operation(), ferr, time.Since(start))

			if ctx.Err() != nil || !shouldFailover(ferr) {
				return nil, nil, ferr
			}
			failures[p.Name()] = ferr
			continue
		}

		// Committed: bridge the stream and report the terminal outcome
		// when it ends.
		provider := p.Name()
		op := req.Operation()
		out := stream.Run(streamCtx, stream.DefaultCapacity, first, upstream, func(err error) {
			elapsed := time.Since(start)
			release()

			if pe, ok := providers.AsError(err); ok && pe.Kind == providers.KindCancelled {
				// Client disconnects leave the breaker and score
				// untouched; a cancelled outcome is not counted.
				done(err)
			} else {
				done(err)
				d.monitor.Observe(provider, err == nil, elapsed)
			}
			d.observe(provider, op, err, elapsed)

			slog.Debug("stream completed",
				"provider", provider,
				"elapsed", elapsed,
				"error", err,
			)
		})

		return out, cancel, nil
	}

	return nil, nil, &AllProvidersFailedError{Errors: failures}
}
