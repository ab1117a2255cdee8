package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumenroute/prism/pkg/providers"
)

func transient() error {
	return &providers.Error{Provider: "p", Kind: providers.KindTransient, Message: "boom"}
}

func authFailed() error {
	return &providers.Error{Provider: "p", Kind: providers.KindAuthFailed, Message: "bad key"}
}

func report(t *testing.T, b *Breaker, err error) {
	t.Helper()
	done, allowErr := b.Allow()
	require.NoError(t, allowErr)
	done(err)
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := New("p", Config{FailureThreshold: 3, RecoveryTimeout: time.Minute}, nil)

	report(t, b, transient())
	report(t, b, transient())
	assert.Equal(t, StateClosed, b.State())

	report(t, b, transient())
	assert.Equal(t, StateOpen, b.State())

	// While open, zero calls are admitted.
	_, err := b.Allow()
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := New("p", Config{FailureThreshold: 3, RecoveryTimeout: time.Minute}, nil)

	report(t, b, transient())
	report(t, b, transient())
	report(t, b, nil)
	report(t, b, transient())
	report(t, b, transient())
	assert.Equal(t, StateClosed, b.State())

	report(t, b, transient())
	assert.Equal(t, StateOpen, b.State())
}

func TestCallerFaultsDoNotCount(t *testing.T) {
	b := New("p", Config{FailureThreshold: 2, RecoveryTimeout: time.Minute}, nil)

	for i := 0; i < 10; i++ {
		report(t, b, authFailed())
	}
	assert.Equal(t, StateClosed, b.State())

	cancelled := &providers.Error{Provider: "p", Kind: providers.KindCancelled}
	for i := 0; i < 10; i++ {
		report(t, b, cancelled)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerRecovery(t *testing.T) {
	b := New("p", Config{
		FailureThreshold: 2,
		RecoveryTimeout:  20 * time.Millisecond,
		HalfOpenMaxCalls: 2,
	}, nil)

	report(t, b, transient())
	report(t, b, transient())
	require.Equal(t, StateOpen, b.State())

	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	// Two consecutive probe successes close the breaker.
	report(t, b, nil)
	assert.Equal(t, StateHalfOpen, b.State())
	report(t, b, nil)
	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New("p", Config{
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
		HalfOpenMaxCalls: 3,
	}, nil)

	report(t, b, transient())
	time.Sleep(20 * time.Millisecond)

	report(t, b, transient())
	assert.Equal(t, StateOpen, b.State())
}

func TestHalfOpenProbeBudget(t *testing.T) {
	b := New("p", Config{
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
		HalfOpenMaxCalls: 2,
	}, nil)

	report(t, b, transient())
	time.Sleep(20 * time.Millisecond)

	// Admit exactly HalfOpenMaxCalls concurrent probes.
	done1, err := b.Allow()
	require.NoError(t, err)
	done2, err := b.Allow()
	require.NoError(t, err)

	_, err = b.Allow()
	assert.ErrorIs(t, err, ErrOpen)

	// Releasing a probe slot admits another attempt.
	done1(nil)
	done3, err := b.Allow()
	require.NoError(t, err)

	done2(nil)
	done3(nil)
	assert.Equal(t, StateClosed, b.State())
}

func TestTransitionObserver(t *testing.T) {
	transitions := make(chan [2]State, 8)
	b := New("p", Config{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond, HalfOpenMaxCalls: 1},
		func(provider string, from, to State, at time.Time) {
			transitions <- [2]State{from, to}
		})

	report(t, b, transient())

	select {
	case tr := <-transitions:
		assert.Equal(t, [2]State{StateClosed, StateOpen}, tr)
	case <-time.After(time.Second):
		t.Fatal("no transition observed")
	}

	time.Sleep(20 * time.Millisecond)
	report(t, b, nil)

	seen := make(map[[2]State]bool)
	for i := 0; i < 2; i++ {
		select {
		case tr := <-transitions:
			seen[tr] = true
		case <-time.After(time.Second):
			t.Fatal("missing transitions")
		}
	}
	assert.True(t, seen[[2]State{StateOpen, StateHalfOpen}])
	assert.True(t, seen[[2]State{StateHalfOpen, StateClosed}])
}

func TestRateLimitHintRecorded(t *testing.T) {
	b := New("p", Config{FailureThreshold: 5}, nil)

	report(t, b, &providers.Error{
		Provider:   "p",
		Kind:       providers.KindRateLimited,
		RetryAfter: 7 * time.Second,
	})

	snap := b.Snapshot()
	assert.Equal(t, 1, snap.ConsecutiveFailures)
	assert.Equal(t, "7s", snap.LastRetryAfterHint)
}
