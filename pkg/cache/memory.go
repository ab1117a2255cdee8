package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// MemoryBackend is an in-process backend with TTL expiry and LRU
// eviction. Expired entries are removed lazily on access and proactively
// by a cron sweep at TTL/10 intervals (never more often than once a
// second).
type MemoryBackend struct {
	mu         sync.RWMutex
	entries    map[string]*memoryEntry
	ttl        time.Duration
	maxEntries int

	sweeper *cron.Cron
}

type memoryEntry struct {
	entry          Entry
	expiresAt      time.Time
	lastAccessedAt time.Time
}

// NewMemoryBackend creates a memory backend. maxEntries bounds the
// entry count (default 1000); ttl defaults to one hour.
func NewMemoryBackend(ttl time.Duration, maxEntries int) *MemoryBackend {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}

	b := &MemoryBackend{
		entries:    make(map[string]*memoryEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
	}

	sweep := ttl / 10
	if sweep < time.Second {
		sweep = time.Second
	}
	b.sweeper = cron.New()
	if _, err := b.sweeper.AddFunc(fmt.Sprintf("@every %s", sweep), b.removeExpired); err == nil {
		b.sweeper.Start()
	} else {
		slog.Warn("cache sweep schedule rejected", "error", err)
	}

	return b
}

// Get returns the live entry for key, expiring it lazily if its TTL has
// passed.
func (b *MemoryBackend) Get(ctx context.Context, key string) (*Entry, bool, error) {
	b.mu.RLock()
	me, ok := b.entries[key]
	if !ok {
		b.mu.RUnlock()
		return nil, false, nil
	}
	if time.Now().After(me.expiresAt) {
		b.mu.RUnlock()
		b.mu.Lock()
		delete(b.entries, key)
		b.mu.Unlock()
		return nil, false, nil
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	me, ok = b.entries[key]
	if !ok {
		return nil, false, nil
	}
	me.lastAccessedAt = time.Now()
	me.entry.Hits++

	// Copy so callers cannot mutate the stored entry.
	entry := me.entry
	return &entry, true, nil
}

// Set stores the entry, evicting the least recently used entry when the
// cache is full.
func (b *MemoryBackend) Set(ctx context.Context, key string, entry *Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.entries[key]; !exists && len(b.entries) >= b.maxEntries {
		b.evictLRU()
	}

	now := time.Now()
	b.entries[key] = &memoryEntry{
		entry:          *entry,
		expiresAt:      now.Add(b.ttl),
		lastAccessedAt: now,
	}
	return nil
}

// Delete removes key.
func (b *MemoryBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

// Len returns the number of stored entries (including any not yet
// swept).
func (b *MemoryBackend) Len(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries), nil
}

// Close stops the background sweep.
func (b *MemoryBackend) Close() error {
	if b.sweeper != nil {
		<-b.sweeper.Stop().Done()
	}
	return nil
}

// evictLRU removes the least recently accessed entry. Must be called
// with the write lock held.
func (b *MemoryBackend) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	for key, me := range b.entries {
		if oldestKey == "" || me.lastAccessedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = me.lastAccessedAt
		}
	}

	if oldestKey != "" {
		delete(b.entries, oldestKey)
	}
}

// removeExpired drops every expired entry. Runs on the sweep schedule.
func (b *MemoryBackend) removeExpired() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	for key, me := range b.entries {
		if now.After(me.expiresAt) {
			delete(b.entries, key)
		}
	}
}
