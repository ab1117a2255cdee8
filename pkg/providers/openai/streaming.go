package openai

import (
	"context"
	"encoding/json"
	"io"

	"lumenroute/prism/pkg/providers"
)

// runStream reads the SSE stream and forwards canonical chunks until the
// terminal frame. A stream that ends without a finish reason is closed
// with finish_reason=error and a KindTruncatedStream error chunk, per
// the adapter contract.
func runStream(ctx context.Context, p *Provider, body io.ReadCloser, logicalModel string, out chan<- *providers.StreamChunk) {
	defer close(out)

	reader := providers.NewSSEReader(p.Name(), body)
	defer reader.Close()

	var (
		finished      bool
		streamID      string
		emittedTokens int
	)

	for {
		_, data, err := reader.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			sendChunk(ctx, out, &providers.StreamChunk{
				ID:           streamID,
				Model:        logicalModel,
				FinishReason: providers.FinishReasonError,
				Err:          p.wrapStreamErr(err),
			})
			return
		}

		var frame streamResponse
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			sendChunk(ctx, out, &providers.StreamChunk{
				ID:           streamID,
				Model:        logicalModel,
				FinishReason: providers.FinishReasonError,
				Err: &providers.Error{
					Provider: p.Name(),
					Kind:     providers.KindTransient,
					Message:  "failed to parse stream frame",
					Cause:    err,
				},
			})
			return
		}

		chunk := transformStreamChunk(&frame, logicalModel)
		streamID = chunk.ID
		emittedTokens += providers.EstimateTokens(chunk.Delta)

		if chunk.Usage == nil && chunk.FinishReason != "" {
			// Provider did not report usage; estimate completion tokens
			// from our own emitted deltas.
			chunk.Usage = &providers.Usage{
				CompletionTokens: emittedTokens,
				TotalTokens:      emittedTokens,
			}
		}

		if !sendChunk(ctx, out, chunk) {
			return
		}

		if chunk.FinishReason != "" {
			finished = true
		}
	}

	if !finished {
		sendChunk(ctx, out, &providers.StreamChunk{
			ID:           streamID,
			Model:        logicalModel,
			FinishReason: providers.FinishReasonError,
			Err: &providers.Error{
				Provider: p.Name(),
				Kind:     providers.KindTruncatedStream,
				Message:  "stream ended without a finish reason",
			},
		})
	}
}

// sendChunk delivers a chunk unless the consumer has gone away.
func sendChunk(ctx context.Context, out chan<- *providers.StreamChunk, chunk *providers.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// wrapStreamErr classifies a mid-stream read failure.
func (p *Provider) wrapStreamErr(err error) error {
	if _, ok := providers.AsError(err); ok {
		return err
	}
	if err == context.Canceled {
		return &providers.Error{Provider: p.Name(), Kind: providers.KindCancelled, Message: "stream cancelled", Cause: err}
	}
	if err == context.DeadlineExceeded {
		return &providers.Error{Provider: p.Name(), Kind: providers.KindTimeout, Message: "stream timed out", Cause: err}
	}
	return &providers.Error{Provider: p.Name(), Kind: providers.KindTransient, Message: "stream read failed", Cause: err}
}
