// Package store is the small key-value layer behind usage quotas and
// history. Values are opaque bytes; counters are integers.
package store

import (
	"context"
	"time"

	"github.com/use-agent/adsaver/config"
)

// Store is implemented by MemoryStore and RedisStore.
type Store interface {
	// Incr increments the counter at key and returns the new value. ttl is
	// applied when the key is created.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Decr decrements the counter at key and returns the new value. A
	// missing key is left alone and reported as 0.
	Decr(ctx context.Context, key string) (int64, error)
	// Count returns the counter at key, 0 when missing.
	Count(ctx context.Context, key string) (int64, error)
	// Get returns the value at key. ok is false when missing.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value at key with the given ttl (0 means no expiry).
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// New returns a RedisStore when cfg names a host and a MemoryStore
// otherwise.
func New(cfg config.RedisConfig) Store {
	if cfg.Host == "" {
		return NewMemoryStore()
	}
	return NewRedisStore(cfg)
}
