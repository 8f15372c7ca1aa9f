package storage

import (
	"context"
	"time"
)

// Sentinel results of Storage.TTL. They match the values Redis reports for
// TTL so every backend answers the same way.
const (
	NoExpiry   time.Duration = -1 // key exists without an expiry
	KeyMissing time.Duration = -2 // key does not exist or has expired
)

// Storage is the shared key/value store every service instance talks to.
// It backs both the response caches and the rate limit counters, so all
// implementations must perform Incr atomically at the store.
type Storage interface {
	// Get returns the value stored under key, or ErrNotFound when the key
	// is missing or expired.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key. A ttl greater than zero expires the key
	// after ttl; otherwise the key persists and any previous expiry is cleared.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Incr atomically increments the integer counter under key and returns
	// the new value. A missing key is created at 1 without an expiry.
	Incr(ctx context.Context, key string) (int64, error)

	// TTL returns the remaining time to live of key, NoExpiry or KeyMissing.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Expire sets or overwrites the expiry of an existing key. It is a no-op
	// when the key is absent. A ttl of zero or less deletes the key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend connection and stops background work.
	Close() error
}
