// Package stream bridges adapter-produced chunk streams to the HTTP
// consumer over a bounded channel.
//
// The bridge owns the channel between the two goroutines. Ordering is
// strictly FIFO. Backpressure is the channel bound: when the consumer
// lags, the producer blocks on send until space frees. When the
// consumer goes away its context is cancelled; the producer observes
// the cancellation on its next send, aborts, and reports the outcome.
// The bridge never retries.
package stream

import (
	"context"

	"lumenroute/prism/pkg/providers"
)

// DefaultCapacity is the chunk buffer between producer and consumer.
const DefaultCapacity = 32

// CompleteFunc receives the stream's terminal outcome exactly once:
// nil after a clean finish, the terminal chunk's error after an
// upstream failure, or a cancellation error when the consumer went
// away.
type CompleteFunc func(err error)

// Run starts the producer goroutine and returns the consumer side of
// the bounded channel. first, when non-nil, is delivered before any
// chunk from upstream (the driver peeks one chunk to decide failover).
// onComplete may be nil.
func Run(ctx context.Context, capacity int, first *providers.StreamChunk, upstream <-chan *providers.StreamChunk, onComplete CompleteFunc) <-chan *providers.StreamChunk {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	out := make(chan *providers.StreamChunk, capacity)

	go func() {
		defer close(out)

		complete := func(err error) {
			if onComplete != nil {
				onComplete(err)
				onComplete = nil
			}
		}

		var last *providers.StreamChunk

		forward := func(chunk *providers.StreamChunk) bool {
			select {
			case out <- chunk:
				last = chunk
				return true
			case <-ctx.Done():
				complete(&providers.Error{
					Kind:    providers.KindCancelled,
					Message: "consumer closed the stream",
					Cause:   ctx.Err(),
				})
				return false
			}
		}

		if first != nil {
			if !forward(first) {
				return
			}
		}

		for {
			select {
			case chunk, ok := <-upstream:
				if !ok {
					if last != nil && last.Err != nil {
						complete(last.Err)
					} else {
						complete(nil)
					}
					return
				}
				if !forward(chunk) {
					return
				}

			case <-ctx.Done():
				// Consumer disconnect: the shared context also aborts
				// the adapter's upstream read.
				complete(&providers.Error{
					Kind:    providers.KindCancelled,
					Message: "consumer closed the stream",
					Cause:   ctx.Err(),
				})
				return
			}
		}
	}()

	return out
}
