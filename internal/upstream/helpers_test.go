package upstream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"polluted/internal/cache"
	"polluted/internal/models"
	"polluted/internal/storage"
)

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	c := cache.NewWithStorage(storage.NewMemoryStorage(0))
	t.Cleanup(func() { c.Close() })
	return c
}

// readOnlyStore serves reads from an empty memory store and rejects writes.
type readOnlyStore struct {
	storage.Storage
}

func (readOnlyStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return &storage.Error{Op: "set", Key: key, Err: errors.New("connection refused")}
}

func newReadOnlyCache(t *testing.T) *cache.Cache {
	t.Helper()
	c := cache.NewWithStorage(readOnlyStore{Storage: storage.NewMemoryStorage(0)})
	t.Cleanup(func() { c.Close() })
	return c
}

type countingAdmitter struct {
	calls atomic.Int32
	err   error
}

func (a *countingAdmitter) Acquire(ctx context.Context) error {
	a.calls.Add(1)
	return a.err
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
	return ctx.Err()
}

func (s *sleepRecorder) Recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

func testPollutionConfig(baseURL string) models.PollutionConfig {
	return models.PollutionConfig{
		BaseURL:     baseURL,
		Username:    "user",
		Password:    "secret",
		Timeout:     5 * time.Second,
		TokenTTL:    5 * time.Minute,
		CacheTTL:    30 * time.Second,
		MaxRetries:  3,
		BackoffBase: time.Second,
	}
}
