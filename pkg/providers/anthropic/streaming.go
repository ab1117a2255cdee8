package anthropic

import (
	"context"
	"encoding/json"
	"io"

	"lumenroute/prism/pkg/providers"
)

// runStream reads the named-event SSE stream and forwards canonical
// chunks. The Messages stream interleaves message_start /
// content_block_delta / message_delta / message_stop frames; the
// message_delta frame carries the stop reason and output token count.
func runStream(ctx context.Context, p *Provider, body io.ReadCloser, logicalModel string, out chan<- *providers.StreamChunk) {
	defer close(out)

	reader := providers.NewSSEReader(p.Name(), body)
	defer reader.Close()

	var (
		streamID     string
		inputTokens  int
		outputTokens int
		finished     bool
	)

	for {
		_, data, err := reader.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			deliver(ctx, out, &providers.StreamChunk{
				ID:           streamID,
				Model:        logicalModel,
				FinishReason: providers.FinishReasonError,
				Err:          p.classifyStreamErr(err),
			})
			return
		}

		var frame streamFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			deliver(ctx, out, &providers.StreamChunk{
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

		switch frame.Type {
		case "message_start":
			if frame.Message != nil {
				streamID = frame.Message.ID
				inputTokens = frame.Message.Usage.InputTokens
			}

		case "content_block_delta":
			if frame.Delta == nil {
				continue
			}
			delta := frame.Delta.Text
			if delta == "" && frame.Delta.PartialJSON != "" {
				delta = frame.Delta.PartialJSON
			}
			outputTokens += providers.EstimateTokens(delta)
			if !deliver(ctx, out, &providers.StreamChunk{
				ID:    streamID,
				Model: logicalModel,
				Index: frame.Index,
				Delta: delta,
			}) {
				return
			}

		case "message_delta":
			if frame.Usage != nil && frame.Usage.OutputTokens > 0 {
				outputTokens = frame.Usage.OutputTokens
			}
			if frame.Delta != nil && frame.Delta.StopReason != "" {
				finished = true
				if !deliver(ctx, out, &providers.StreamChunk{
					ID:           streamID,
					Model:        logicalModel,
					FinishReason: normalizeStopReason(frame.Delta.StopReason),
					Usage: &providers.Usage{
						PromptTokens:     inputTokens,
						CompletionTokens: outputTokens,
						TotalTokens:      inputTokens + outputTokens,
					},
				}) {
					return
				}
			}

		case "message_stop":
			// Terminal frame; the stop reason already arrived on
			// message_delta.

		case "ping", "content_block_start", "content_block_stop":
			// Keep-alives and block framing carry no delta.
		}
	}

	if !finished {
		deliver(ctx, out, &providers.StreamChunk{
			ID:           streamID,
			Model:        logicalModel,
			FinishReason: providers.FinishReasonError,
			Err: &providers.Error{
				Provider: p.Name(),
				Kind:     providers.KindTruncatedStream,
				Message:  "stream ended without a stop reason",
			},
		})
	}
}

// deliver sends a chunk unless the consumer has gone away.
func deliver(ctx context.Context, out chan<- *providers.StreamChunk, chunk *providers.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// classifyStreamErr classifies a mid-stream read failure.
func (p *Provider) classifyStreamErr(err error) error {
	if _, ok := providers.AsError(err); ok {
		return err
	}
	switch err {
	case context.Canceled:
		return &providers.Error{Provider: p.Name(), Kind: providers.KindCancelled, Message: "stream cancelled", Cause: err}
	case context.DeadlineExceeded:
		return &providers.Error{Provider: p.Name(), Kind: providers.KindTimeout, Message: "stream timed out", Cause: err}
	default:
		return &providers.Error{Provider: p.Name(), Kind: providers.KindTransient, Message: "stream read failed", Cause: err}
	}
}
