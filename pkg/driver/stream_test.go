package driver

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumenroute/prism/internal/testutil"
	"lumenroute/prism/pkg/breaker"
	"lumenroute/prism/pkg/providers"
)

func streamOpen(req *providers.ChatRequest) func(context.Context, providers.Provider) (<-chan *providers.StreamChunk, error) {
	return func(ctx context.Context, p providers.Provider) (<-chan *providers.StreamChunk, error) {
		return p.ChatStream(ctx, req)
	}
}

func TestRunStreamDeliversChunksInOrder(t *testing.T) {
	d := newDriver()
	a := testutil.NewMockProvider("a")
	a.StreamDeltas = []string{"one ", "two ", "three"}

	req := chat("m")
	req.Stream = true

	out, cancel, err := d.RunStream(context.Background(), req, []providers.Provider{a}, streamOpen(req))
	require.NoError(t, err)
	defer cancel()

	var text strings.Builder
	var finish string
	for chunk := range out {
		require.NoError(t, chunk.Err)
		text.WriteString(chunk.Delta)
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
	}

	assert.Equal(t, "one two three", text.String())
	assert.Equal(t, providers.FinishReasonStop, finish)
}

func TestRunStreamFailsOverBeforeFirstChunk(t *testing.T) {
	d := newDriver()
	a := testutil.NewMockProvider("a")
	a.Fail(testutil.TransientErr("a"), 1) // open fails
	b := testutil.NewMockProvider("b")
	b.StreamDeltas = []string{"from b"}

	req := chat("m")
	req.Stream = true

	out, cancel, err := d.RunStream(context.Background(), req, []providers.Provider{a, b}, streamOpen(req))
	require.NoError(t, err)
	defer cancel()

	first := <-out
	assert.Equal(t, "from b", first.Delta)
	for range out {
	}
}

func TestRunStreamNoFailoverOnAuth(t *testing.T) {
	d := newDriver()
	a := testutil.NewMockProvider("a")
	a.Fail(testutil.AuthErr("a"), 1)
	b := testutil.NewMockProvider("b")

	req := chat("m")
	req.Stream = true

	_, _, err := d.RunStream(context.Background(), req, []providers.Provider{a, b}, streamOpen(req))
	pe, ok := providers.AsError(err)
	require.True(t, ok)
	assert.Equal(t, providers.KindAuthFailed, pe.Kind)
	assert.EqualValues(t, 0, b.Calls())
}

func TestRunStreamClientCancelAbortsUpstream(t *testing.T) {
	d := newDriver()
	a := testutil.NewMockProvider("a")
	a.StreamDeltas = []string{"c0", "c1", "c2", "c3", "c4"}
	a.StreamInterval = 30 * time.Millisecond

	req := chat("m")
	req.Stream = true

	ctx, clientCancel := context.WithCancel(context.Background())
	out, cancel, err := d.RunStream(ctx, req, []providers.Provider{a}, streamOpen(req))
	require.NoError(t, err)
	defer cancel()

	// Read two chunks, then disconnect.
	<-out
	<-out
	clientCancel()

	// The bridge closes promptly; remaining chunks are dropped.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				// Breaker state is unchanged by a client disconnect.
				assert.Equal(t, breaker.StateClosed, d.breakers.Get("a").State())
				snap := d.breakers.Get("a").Snapshot()
				assert.Equal(t, 0, snap.ConsecutiveFailures)
				return
			}
		case <-deadline:
			t.Fatal("stream did not close after client cancel")
		}
	}
}

func TestRunStreamAllBreakersOpen(t *testing.T) {
	d := newDriver()
	a := testutil.NewMockProvider("a")

	// Trip a's breaker.
	req := chat("m")
	a.Cfg.MaxRetries = 0
	a.Fail(testutil.TransientErr("a"), 3)
	for i := 0; i < 3; i++ {
		_, _ = Run(context.Background(), d, req, []providers.Provider{a}, chatCall(req))
	}

	streamReq := chat("m")
	streamReq.Stream = true
	_, _, err := d.RunStream(context.Background(), streamReq, []providers.Provider{a}, streamOpen(streamReq))

	var all *AllProvidersFailedError
	require.ErrorAs(t, err, &all)
	assert.True(t, all.AllBreakersOpen())
}
