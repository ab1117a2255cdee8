// Package cache implements the response cache with single-flight
// coalescing.
//
// Idempotent requests are fingerprinted ([Fingerprint]) and looked up in
// a backend (memory or Redis). A miss makes the caller the leader for
// that fingerprint: concurrent lookups with the same fingerprint become
// followers that wait on the leader's inflight ticket instead of issuing
// their own upstream calls. Followers are cancellable independently; the
// leader's work continues so future requests can benefit.
//
// Coalescing is always in-process, even with the Redis backend — the
// gateway does not attempt cross-instance single-flight.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"lumenroute/prism/pkg/providers"
)

// Entry is one cached response plus its bookkeeping. Payload holds the
// marshaled canonical response so cache hits return byte-identical
// bodies. Discriminator stores the canonical request form so a hash
// collision is detected by byte comparison and treated as a miss.
type Entry struct {
	Discriminator string    `json:"discriminator"`
	Payload       []byte    `json:"payload"`
	Size          int       `json:"size"`
	CreatedAt     time.Time `json:"created_at"`
	Hits          int64     `json:"hits"`
}

// Backend is the storage behind the cache. Implementations own
// eviction: TTL everywhere, LRU in memory.
type Backend interface {
	// Get returns the live entry for key, or ok=false.
	Get(ctx context.Context, key string) (entry *Entry, ok bool, err error)

	// Set stores the entry under key.
	Set(ctx context.Context, key string, entry *Entry) error

	// Delete removes key.
	Delete(ctx context.Context, key string) error

	// Len returns the number of live entries.
	Len(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}

// State tags a lookup outcome.
type State int

const (
	// StateBypass means the request is not cacheable; call upstream
	// directly.
	StateBypass State = iota

	// StateHit means the cached payload is in Lookup.Payload.
	StateHit

	// StateLead means the caller owns the upstream call and must invoke
	// Lookup.Complete exactly once.
	StateLead

	// StateWait means another caller is already in flight; wait on
	// Lookup.Wait.
	StateWait
)

// ticket is the inflight marker shared between a leader and its
// followers.
type ticket struct {
	done    chan struct{}
	payload []byte
	err     error
}

// Lookup is the outcome of Cache.Lookup.
type Lookup struct {
	State State

	// Payload is the cached response bytes (StateHit only).
	Payload []byte

	key    string
	form   string
	cache  *Cache
	ticket *ticket
}

// Cache coordinates fingerprinting, the backend, and single-flight
// coalescing.
type Cache struct {
	backend Backend
	ttl     time.Duration

	mu       sync.Mutex
	inflight map[string]*ticket

	// Stats counters, guarded by mu.
	hits      int64
	misses    int64
	coalesced int64
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Coalesced int64 `json:"coalesced"`
	Entries   int   `json:"entries"`
}

// New creates a cache over the given backend. ttl is recorded on
// entries at store time (backends also enforce it).
func New(backend Backend, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		backend:  backend,
		ttl:      ttl,
		inflight: make(map[string]*ticket),
	}
}

// Lookup resolves a request against the cache. The caller must follow
// the returned state's contract (see [State]).
func (c *Cache) Lookup(ctx context.Context, req providers.Request) *Lookup {
	if c == nil || !Cacheable(req) {
		return &Lookup{State: StateBypass}
	}

	form := CanonicalForm(req)
	key := Fingerprint(req)

	if entry, ok, err := c.backend.Get(ctx, key); err == nil && ok {
		if entry.Discriminator == form {
			c.mu.Lock()
			c.hits++
			c.mu.Unlock()
			return &Lookup{State: StateHit, Payload: entry.Payload}
		}
		// Hash collision: the stored request does not byte-equal the
		// probe, so this is a miss for the prober.
		slog.Warn("cache fingerprint collision", "key", key)
	} else if err != nil {
		slog.Warn("cache backend get failed", "key", key, "error", err)
	}

	// The get-or-insert below is the synchronisation point that makes
	// single-flight correct: exactly one caller per fingerprint sees a
	// missing ticket.
	c.mu.Lock()
	if t, ok := c.inflight[key]; ok {
		c.coalesced++
		c.mu.Unlock()
		return &Lookup{State: StateWait, key: key, cache: c, ticket: t}
	}
	t := &ticket{done: make(chan struct{})}
	c.inflight[key] = t
	c.misses++
	c.mu.Unlock()

	return &Lookup{State: StateLead, key: key, form: form, cache: c, ticket: t}
}

// Complete finishes a leader's inflight ticket. On success the payload
// is stored and every follower is fulfilled with it; on failure the
// followers receive the same error and nothing is stored. The ticket is
// removed either way.
func (l *Lookup) Complete(ctx context.Context, payload []byte, err error) {
	if l.State != StateLead {
		return
	}

	c := l.cache

	if err == nil && payload != nil {
		entry := &Entry{
			Discriminator: l.form,
			Payload:       payload,
			Size:          len(payload),
			CreatedAt:     time.Now(),
		}
		if storeErr := c.backend.Set(ctx, l.key, entry); storeErr != nil {
			slog.Warn("cache backend set failed", "key", l.key, "error", storeErr)
		}
	}

	l.ticket.payload = payload
	l.ticket.err = err
	close(l.ticket.done)

	c.mu.Lock()
	delete(c.inflight, l.key)
	c.mu.Unlock()
}

// Wait blocks a follower until the leader completes or the follower's
// own context is cancelled. Follower cancellation does not affect the
// leader.
func (l *Lookup) Wait(ctx context.Context) ([]byte, error) {
	if l.State != StateWait {
		return nil, nil
	}
	select {
	case <-l.ticket.done:
		return l.ticket.payload, l.ticket.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TTL returns the cache's entry lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Stats returns cache effectiveness counters and the live entry count.
func (c *Cache) Stats(ctx context.Context) Stats {
	c.mu.Lock()
	stats := Stats{Hits: c.hits, Misses: c.misses, Coalesced: c.coalesced}
	c.mu.Unlock()

	if n, err := c.backend.Len(ctx); err == nil {
		stats.Entries = n
	}
	return stats
}

// InflightCount returns the number of live tickets. Primarily for
// tests asserting the single-flight invariant.
func (c *Cache) InflightCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// Close releases the backend.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.backend.Close()
}
