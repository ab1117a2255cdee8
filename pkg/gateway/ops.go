package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"

	"lumenroute/prism/pkg/providers"
	"lumenroute/prism/pkg/telemetry/logging"
	"lumenroute/prism/pkg/usage"
)

// Chat serves a non-streaming chat completion through the cache, the
// router, and the failover driver.
func (g *Gateway) Chat(ctx context.Context, req *providers.ChatRequest) (*providers.Response, error) {
	if err := providers.ValidateChat(req); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, fromCache, err := cached(g, ctx, req, func(ctx context.Context, p providers.Provider) (*providers.Response, error) {
		return p.Chat(ctx, req)
	})
	g.account(ctx, req, responseUsage(resp), fromCache, err, time.Since(start))
	return resp, err
}

// ChatStream serves a streaming chat completion. The returned cancel
// function aborts the upstream; callers tie it to the client
// connection.
func (g *Gateway) ChatStream(ctx context.Context, req *providers.ChatRequest) (<-chan *providers.StreamChunk, context.CancelFunc, error) {
	if err := providers.ValidateChat(req); err != nil {
		return nil, nil, err
	}

	candidates, err := g.router.Candidates(req)
	if err != nil {
		return nil, nil, err
	}

	return g.driver.RunStream(ctx, req, candidates, func(ctx context.Context, p providers.Provider) (<-chan *providers.StreamChunk, error) {
		return p.ChatStream(ctx, req)
	})
}

// Completion serves a non-streaming text completion.
func (g *Gateway) Completion(ctx context.Context, req *providers.CompletionRequest) (*providers.Response, error) {
	if err := providers.ValidateCompletion(req); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, fromCache, err := cached(g, ctx, req, func(ctx context.Context, p providers.Provider) (*providers.Response, error) {
		return p.Completion(ctx, req)
	})
	g.account(ctx, req, responseUsage(resp), fromCache, err, time.Since(start))
	return resp, err
}

// CompletionStream serves a streaming text completion.
func (g *Gateway) CompletionStream(ctx context.Context, req *providers.CompletionRequest) (<-chan *providers.StreamChunk, context.CancelFunc, error) {
	if err := providers.ValidateCompletion(req); err != nil {
		return nil, nil, err
	}

	candidates, err := g.router.Candidates(req)
	if err != nil {
		return nil, nil, err
	}

	return g.driver.RunStream(ctx, req, candidates, func(ctx context.Context, p providers.Provider) (<-chan *providers.StreamChunk, error) {
		return p.CompletionStream(ctx, req)
	})
}

// Embedding serves an embedding request. Embeddings are always
// cacheable.
func (g *Gateway) Embedding(ctx context.Context, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	if err := providers.ValidateEmbedding(req); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, fromCache, err := cached(g, ctx, req, func(ctx context.Context, p providers.Provider) (*providers.EmbeddingResponse, error) {
		return p.Embedding(ctx, req)
	})
	var u providers.Usage
	if resp != nil {
		u = resp.Usage
	}
	g.account(ctx, req, u, fromCache, err, time.Since(start))
	return resp, err
}

// Image serves an image generation request (never cached).
func (g *Gateway) Image(ctx context.Context, req *providers.ImageRequest) (*providers.ImageResponse, error) {
	start := time.Now()
	resp, err := execute(g, ctx, req, func(ctx context.Context, p providers.Provider) (*providers.ImageResponse, error) {
		return p.Image(ctx, req)
	})
	g.account(ctx, req, providers.Usage{}, false, err, time.Since(start))
	return resp, err
}

// Transcribe serves an audio transcription request (never cached).
func (g *Gateway) Transcribe(ctx context.Context, req *providers.TranscriptionRequest) (*providers.TranscriptionResponse, error) {
	start := time.Now()
	resp, err := execute(g, ctx, req, func(ctx context.Context, p providers.Provider) (*providers.TranscriptionResponse, error) {
		return p.Transcribe(ctx, req)
	})
	var u providers.Usage
	if resp != nil {
		u = resp.Usage
	}
	g.account(ctx, req, u, false, err, time.Since(start))
	return resp, err
}

// responseUsage extracts usage from a possibly-nil response.
func responseUsage(resp *providers.Response) providers.Usage {
	if resp == nil {
		return providers.Usage{}
	}
	return resp.Usage
}

// account records request metrics and the usage row.
func (g *Gateway) account(ctx context.Context, req providers.Request, u providers.Usage, fromCache bool, err error, elapsed time.Duration) {
	status := "success"
	provider := "cache"
	if err != nil {
		status = providers.KindOf(err).String()
	}
	if !fromCache {
		provider = "upstream"
	}

	if g.collector != nil {
		g.collector.Request.Record(string(req.Operation()), provider, status, elapsed)
		g.collector.Request.RecordTokens(provider, req.ModelName(), u.PromptTokens, u.CompletionTokens)
	}

	if g.usage != nil {
		requestID := logging.RequestID(ctx)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		g.usage.Append(context.WithoutCancel(ctx), usage.Record{
			RequestID:        requestID,
			Operation:        string(req.Operation()),
			Provider:         provider,
			Model:            req.ModelName(),
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			LatencyMS:        elapsed.Milliseconds(),
			CostUSD:          usage.EstimateCost(req.ModelName(), u.PromptTokens, u.CompletionTokens),
			Cached:           fromCache,
			Status:           status,
		})
	}
}
