// Package cache is the key/value layer every upstream client goes through.
// Values are JSON-encoded unless they are already text; counters have their
// own operations so they are never encoded.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"polluted/internal/storage"
)

// Connector opens the underlying store. It is invoked lazily on first use.
type Connector func(ctx context.Context) (storage.Storage, error)

// Cache wraps a storage.Storage connection that is opened on first use and
// kept for the lifetime of the process. A failed connect is retried by the
// next call.
type Cache struct {
	connect Connector

	mu    sync.Mutex
	store storage.Storage
}

// New creates a cache that dials the store through connect on first use.
func New(connect Connector) *Cache {
	return &Cache{connect: connect}
}

// NewWithStorage creates a cache over an already open store.
func NewWithStorage(s storage.Storage) *Cache {
	return &Cache{store: s}
}

func (c *Cache) open(ctx context.Context) (storage.Storage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store != nil {
		return c.store, nil
	}
	if c.connect == nil {
		return nil, &storage.Error{Op: "connect", Err: errors.New("no connector configured")}
	}

	s, err := c.connect(ctx)
	if err != nil {
		var se *storage.Error
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &storage.Error{Op: "connect", Err: err}
	}

	c.store = s
	slog.Debug("Cache store connected")
	return s, nil
}

// Get loads the value under key into dest. A *string dest receives the raw
// stored text; any other dest is JSON-decoded. found is false when the key
// is missing, expired or holds an entry that cannot be decoded into dest.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	s, err := c.open(ctx)
	if err != nil {
		return false, err
	}

	raw, err := s.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if text, ok := dest.(*string); ok {
		*text = raw
		return true, nil
	}

	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		// Treated as a miss so the entry is refetched and overwritten.
		slog.Warn("Discarding undecodable cache entry", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

// Set stores value under key. Strings and byte slices are stored verbatim;
// anything else is JSON-encoded. A ttl greater than zero sets an expiry,
// otherwise the entry persists.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode cache value for %q: %w", key, err)
		}
		raw = string(data)
	}

	s, err := c.open(ctx)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, raw, ttl)
}

// Increment atomically increments the counter under key.
func (c *Cache) Increment(ctx context.Context, key string) (int64, error) {
	s, err := c.open(ctx)
	if err != nil {
		return 0, err
	}
	return s.Incr(ctx, key)
}

// TimeToLive returns the remaining lifetime of key, storage.NoExpiry or
// storage.KeyMissing.
func (c *Cache) TimeToLive(ctx context.Context, key string) (time.Duration, error) {
	s, err := c.open(ctx)
	if err != nil {
		return 0, err
	}
	return s.TTL(ctx, key)
}

// AddTimeToLive sets the expiry of an existing key. Absent keys are left alone.
func (c *Cache) AddTimeToLive(ctx context.Context, key string, ttl time.Duration) error {
	s, err := c.open(ctx)
	if err != nil {
		return err
	}
	return s.Expire(ctx, key, ttl)
}

// Ping connects if needed and checks the store.
func (c *Cache) Ping(ctx context.Context) error {
	s, err := c.open(ctx)
	if err != nil {
		return err
	}
	return s.Ping(ctx)
}

// Close closes the store if it was ever opened.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	return err
}
