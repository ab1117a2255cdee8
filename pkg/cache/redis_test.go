package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisBackend(t *testing.T, ttl time.Duration) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	b, err := NewRedisBackend(context.Background(), mr.Addr(), "", 0, ttl)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b, mr
}

func TestRedisBackendRoundTrip(t *testing.T) {
	b, _ := newRedisBackend(t, time.Minute)
	ctx := context.Background()

	entry := &Entry{
		Discriminator: "disc",
		Payload:       []byte(`{"cached":true}`),
		Size:          16,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, b.Set(ctx, "key1", entry))

	got, ok, err := b.Get(ctx, "key1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.Discriminator, got.Discriminator)
	assert.Equal(t, entry.Payload, got.Payload)
}

func TestRedisBackendMiss(t *testing.T) {
	b, _ := newRedisBackend(t, time.Minute)

	_, ok, err := b.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisBackendTTL(t *testing.T) {
	b, mr := newRedisBackend(t, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "expiring", &Entry{Payload: []byte("v")}))

	// miniredis advances expiry manually.
	mr.FastForward(time.Minute)

	_, ok, err := b.Get(ctx, "expiring")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisBackendLen(t *testing.T) {
	b, _ := newRedisBackend(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "a", &Entry{Payload: []byte("1")}))
	require.NoError(t, b.Set(ctx, "b", &Entry{Payload: []byte("2")}))

	n, err := b.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRedisBackendCorruptValueIsMiss(t *testing.T) {
	b, mr := newRedisBackend(t, time.Minute)

	require.NoError(t, mr.Set(keyPrefix+"bad", "not json"))

	_, ok, err := b.Get(context.Background(), "bad")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheOverRedisSingleFlight(t *testing.T) {
	b, _ := newRedisBackend(t, time.Minute)
	c := New(b, time.Minute)
	ctx := context.Background()

	req := embReq("redis")

	lead := c.Lookup(ctx, req)
	require.Equal(t, StateLead, lead.State)

	// Coalescing stays in-process regardless of backend.
	follower := c.Lookup(ctx, req)
	require.Equal(t, StateWait, follower.State)

	go lead.Complete(ctx, []byte(`{"v":1}`), nil)
	payload, err := follower.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":1}`), payload)

	hit := c.Lookup(ctx, req)
	assert.Equal(t, StateHit, hit.State)
}
