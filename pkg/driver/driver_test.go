package driver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumenroute/prism/internal/testutil"
	"lumenroute/prism/pkg/breaker"
	"lumenroute/prism/pkg/health"
	"lumenroute/prism/pkg/providers"
)

func newDriver() *Driver {
	breakers := breaker.NewRegistry(nil, breaker.Config{
		FailureThreshold: 3,
		RecoveryTimeout:  50 * time.Millisecond,
		RequestTimeout:   5 * time.Second,
		HalfOpenMaxCalls: 2,
	}, nil)
	monitor := health.NewMonitor(0.8, breakers)
	return New(breakers, monitor, nil)
}

func chat(model string) *providers.ChatRequest {
	return &providers.ChatRequest{Model: model, Messages: []providers.Message{{Role: "user", Content: "hi"}}}
}

func chatCall(req *providers.ChatRequest) func(context.Context, providers.Provider) (*providers.Response, error) {
	return func(ctx context.Context, p providers.Provider) (*providers.Response, error) {
		return p.Chat(ctx, req)
	}
}

func TestRunFirstProviderSucceeds(t *testing.T) {
	d := newDriver()
	a := testutil.NewMockProvider("a")
	b := testutil.NewMockProvider("b")

	req := chat("m")
	resp, err := Run(context.Background(), d, req, []providers.Provider{a, b}, chatCall(req))
	require.NoError(t, err)
	assert.Equal(t, "mock-a", resp.ID)
	assert.EqualValues(t, 1, a.Calls())
	assert.EqualValues(t, 0, b.Calls(), "ordered failover never issues parallel attempts")
}

func TestRunFailsOverOnTransient(t *testing.T) {
	d := newDriver()
	a := testutil.NewMockProvider("a")
	a.Cfg.MaxRetries = 0
	a.Fail(testutil.TransientErr("a"), 10)
	b := testutil.NewMockProvider("b")

	req := chat("m")
	resp, err := Run(context.Background(), d, req, []providers.Provider{a, b}, chatCall(req))
	require.NoError(t, err)
	assert.Equal(t, "mock-b", resp.ID)
}

func TestRunRefusesToFailoverOnAuth(t *testing.T) {
	d := newDriver()
	a := testutil.NewMockProvider("a")
	a.Fail(testutil.AuthErr("a"), 1)
	b := testutil.NewMockProvider("b")

	req := chat("m")
	_, err := Run(context.Background(), d, req, []providers.Provider{a, b}, chatCall(req))

	pe, ok := providers.AsError(err)
	require.True(t, ok)
	assert.Equal(t, providers.KindAuthFailed, pe.Kind)
	assert.EqualValues(t, 1, a.Calls())
	assert.EqualValues(t, 0, b.Calls(), "caller-fault errors must not fail over")

	// The breaker stays closed: the provider did nothing wrong.
	assert.Equal(t, breaker.StateClosed, d.breakers.Get("a").State())
}

func TestRunSameProviderRetry(t *testing.T) {
	d := newDriver()
	a := testutil.NewMockProvider("a")
	a.Cfg.MaxRetries = 2
	a.Cfg.RetryBaseDelay = time.Millisecond
	a.Fail(testutil.TransientErr("a"), 2)

	req := chat("m")
	resp, err := Run(context.Background(), d, req, []providers.Provider{a}, chatCall(req))
	require.NoError(t, err)
	assert.Equal(t, "mock-a", resp.ID)
	assert.EqualValues(t, 3, a.Calls(), "two retries after the initial attempt")
}

func TestRunAllProvidersFailed(t *testing.T) {
	d := newDriver()
	a := testutil.NewMockProvider("a")
	a.Cfg.MaxRetries = 0
	a.Fail(testutil.TransientErr("a"), 10)
	b := testutil.NewMockProvider("b")
	b.Cfg.MaxRetries = 0
	b.Fail(testutil.TransientErr("b"), 10)

	req := chat("m")
	_, err := Run(context.Background(), d, req, []providers.Provider{a, b}, chatCall(req))

	var all *AllProvidersFailedError
	require.ErrorAs(t, err, &all)
	assert.Len(t, all.Errors, 2)
	assert.Contains(t, all.Errors, "a")
	assert.Contains(t, all.Errors, "b")
	assert.False(t, all.AllBreakersOpen())
}

func TestRunSkipsOpenBreaker(t *testing.T) {
	d := newDriver()
	a := testutil.NewMockProvider("a")
	a.Cfg.MaxRetries = 0
	a.Fail(testutil.TransientErr("a"), 10)
	b := testutil.NewMockProvider("b")

	req := chat("m")

	// Trip a's breaker (threshold 3).
	for i := 0; i < 3; i++ {
		_, err := Run(context.Background(), d, req, []providers.Provider{a}, chatCall(req))
		require.Error(t, err)
	}
	require.Equal(t, breaker.StateOpen, d.breakers.Get("a").State())
	callsBefore := a.Calls()

	// While open, zero adapter calls are issued against a.
	resp, err := Run(context.Background(), d, req, []providers.Provider{a, b}, chatCall(req))
	require.NoError(t, err)
	assert.Equal(t, "mock-b", resp.ID)
	assert.Equal(t, callsBefore, a.Calls())
}

func TestRunBreakerRecovery(t *testing.T) {
	d := newDriver()
	a := testutil.NewMockProvider("a")
	a.Cfg.MaxRetries = 0
	a.Fail(testutil.TransientErr("a"), 3)

	req := chat("m")
	for i := 0; i < 3; i++ {
		_, _ = Run(context.Background(), d, req, []providers.Provider{a}, chatCall(req))
	}
	require.Equal(t, breaker.StateOpen, d.breakers.Get("a").State())

	// After the recovery timeout the next requests probe a; two
	// successes (half_open_max_calls) close the breaker.
	time.Sleep(60 * time.Millisecond)
	for i := 0; i < 2; i++ {
		resp, err := Run(context.Background(), d, req, []providers.Provider{a}, chatCall(req))
		require.NoError(t, err)
		assert.Equal(t, "mock-a", resp.ID)
	}
	assert.Equal(t, breaker.StateClosed, d.breakers.Get("a").State())
}

func TestRunRateLimitWaitsForShortHint(t *testing.T) {
	d := newDriver()
	a := testutil.NewMockProvider("a")
	a.Cfg.MaxRetries = 0
	a.Fail(&providers.Error{
		Provider:   "a",
		Kind:       providers.KindRateLimited,
		RetryAfter: 10 * time.Millisecond,
	}, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req := chat("m")
	start := time.Now()
	resp, err := Run(ctx, d, req, []providers.Provider{a}, chatCall(req))
	require.NoError(t, err)
	assert.Equal(t, "mock-a", resp.ID)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.EqualValues(t, 2, a.Calls(), "rate limit retries the same provider once")
}

func TestRunRateLimitSkipsLongHint(t *testing.T) {
	d := newDriver()
	a := testutil.NewMockProvider("a")
	a.Cfg.MaxRetries = 0
	a.Fail(&providers.Error{
		Provider:   "a",
		Kind:       providers.KindRateLimited,
		RetryAfter: time.Minute, // far beyond remaining/4
	}, 1)
	b := testutil.NewMockProvider("b")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	req := chat("m")
	resp, err := Run(ctx, d, req, []providers.Provider{a, b}, chatCall(req))
	require.NoError(t, err)
	assert.Equal(t, "mock-b", resp.ID)
	assert.EqualValues(t, 1, a.Calls())
}

func TestRunCancelledNotCountedAsBreakerFailure(t *testing.T) {
	d := newDriver()
	a := testutil.NewMockProvider("a")
	a.Latency = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	req := chat("m")
	_, err := Run(ctx, d, req, []providers.Provider{a}, chatCall(req))
	require.Error(t, err)

	pe, ok := providers.AsError(err)
	require.True(t, ok)
	assert.Equal(t, providers.KindCancelled, pe.Kind)

	snap := d.breakers.Get("a").Snapshot()
	assert.Equal(t, 0, snap.ConsecutiveFailures)
}

func TestBackoffDelayBounds(t *testing.T) {
	for attempt := 0; attempt < 8; attempt++ {
		delay := backoffDelay(100*time.Millisecond, attempt, 10*time.Second)
		assert.GreaterOrEqual(t, delay, time.Duration(0))
		assert.Less(t, delay, 5*time.Second, "delay is capped at request_timeout/2")
	}
}
