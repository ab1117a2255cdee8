package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces gateway cache entries in a shared Redis.
const keyPrefix = "prism:cache:"

// RedisBackend stores entries in Redis so multiple gateway instances
// share one response cache. TTL is enforced by Redis expiry; the entry
// count bound is left to the server's maxmemory policy. Single-flight
// coalescing stays in-process regardless of backend.
type RedisBackend struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisBackend, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %q: %w", addr, err)
	}

	return &RedisBackend{client: client, ttl: ttl}, nil
}

// Get returns the live entry for key.
func (b *RedisBackend) Get(ctx context.Context, key string) (*Entry, bool, error) {
	raw, err := b.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A corrupt value is unrecoverable; drop it and report a miss.
		b.client.Del(ctx, keyPrefix+key)
		return nil, false, nil
	}

	// Hit counting is approximate across instances; a per-get INCR
	// would double the round trips for a metric nobody alerts on.
	entry.Hits++
	return &entry, true, nil
}

// Set stores the entry with the backend TTL.
func (b *RedisBackend) Set(ctx context.Context, key string, entry *Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := b.client.Set(ctx, keyPrefix+key, raw, b.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, keyPrefix+key).Err()
}

// Len counts the gateway's keys.
func (b *RedisBackend) Len(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := b.client.Scan(ctx, cursor, keyPrefix+"*", 1000).Result()
		if err != nil {
			return 0, fmt.Errorf("redis scan: %w", err)
		}
		count += len(keys)
		if next == 0 {
			return count, nil
		}
		cursor = next
	}
}

// Close closes the Redis connection.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
