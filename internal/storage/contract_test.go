package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock shared by backends under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testStorageContract runs the behaviour every backend must share. advance
// moves the backend's clock forward; it is nil for backends on the wall clock
// and the expiry cases are skipped then.
func testStorageContract(t *testing.T, s Storage, advance func(time.Duration)) {
	ctx := context.Background()
	prefix := "test:" + uuid.NewString() + ":"

	t.Run("GetMissing", func(t *testing.T) {
		_, err := s.Get(ctx, prefix+"missing")
		assert.ErrorIs(t, err, ErrNotFound)

		var se *Error
		assert.False(t, errors.As(err, &se), "a miss is not a store failure")
	})

	t.Run("SetGet", func(t *testing.T) {
		key := prefix + "value"
		require.NoError(t, s.Set(ctx, key, `{"a":1}`, 0))

		got, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, `{"a":1}`, got)

		ttl, err := s.TTL(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, NoExpiry, ttl)
	})

	t.Run("SetWithTTL", func(t *testing.T) {
		key := prefix + "ttl"
		require.NoError(t, s.Set(ctx, key, "v", 10*time.Second))

		ttl, err := s.TTL(ctx, key)
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
		assert.LessOrEqual(t, ttl, 10*time.Second)
	})

	t.Run("OverwriteClearsExpiry", func(t *testing.T) {
		key := prefix + "overwrite"
		require.NoError(t, s.Set(ctx, key, "first", time.Minute))
		require.NoError(t, s.Set(ctx, key, "second", 0))

		got, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "second", got)

		ttl, err := s.TTL(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, NoExpiry, ttl)
	})

	t.Run("TTLMissing", func(t *testing.T) {
		ttl, err := s.TTL(ctx, prefix+"nothing")
		require.NoError(t, err)
		assert.Equal(t, KeyMissing, ttl)
	})

	t.Run("IncrCreatesWithoutExpiry", func(t *testing.T) {
		key := prefix + "counter"
		for want := int64(1); want <= 3; want++ {
			n, err := s.Incr(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, want, n)
		}

		ttl, err := s.TTL(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, NoExpiry, ttl)
	})

	t.Run("ExpireMissingIsNoop", func(t *testing.T) {
		key := prefix + "absent"
		require.NoError(t, s.Expire(ctx, key, time.Minute))

		ttl, err := s.TTL(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, KeyMissing, ttl)
	})

	t.Run("ExpireNonPositiveDeletes", func(t *testing.T) {
		key := prefix + "deleted"
		require.NoError(t, s.Set(ctx, key, "v", 0))
		require.NoError(t, s.Expire(ctx, key, 0))

		_, err := s.Get(ctx, key)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ConcurrentIncr", func(t *testing.T) {
		key := prefix + "concurrent"
		const workers = 25

		var wg sync.WaitGroup
		seen := make(chan int64, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				n, err := s.Incr(ctx, key)
				assert.NoError(t, err)
				seen <- n
			}()
		}
		wg.Wait()
		close(seen)

		values := make(map[int64]bool)
		for n := range seen {
			values[n] = true
		}
		assert.Len(t, values, workers, "every increment must observe a distinct count")

		got, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "25", got)
	})

	if advance == nil {
		return
	}

	t.Run("ValueExpires", func(t *testing.T) {
		key := prefix + "expiring"
		require.NoError(t, s.Set(ctx, key, "v", 5*time.Second))

		advance(4 * time.Second)
		_, err := s.Get(ctx, key)
		require.NoError(t, err)

		advance(2 * time.Second)
		_, err = s.Get(ctx, key)
		assert.ErrorIs(t, err, ErrNotFound)

		ttl, err := s.TTL(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, KeyMissing, ttl)
	})

	t.Run("CounterWindowRestarts", func(t *testing.T) {
		key := prefix + "window"
		n, err := s.Incr(ctx, key)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)
		require.NoError(t, s.Expire(ctx, key, 10*time.Second))

		n, err = s.Incr(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		ttl, err := s.TTL(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 10*time.Second, ttl, "incr keeps the existing expiry")

		advance(11 * time.Second)
		n, err = s.Incr(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		ttl, err = s.TTL(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, NoExpiry, ttl)
	})

	t.Run("ExpireExpiredKeyIsNoop", func(t *testing.T) {
		key := prefix + "stale"
		require.NoError(t, s.Set(ctx, key, "v", time.Second))
		advance(2 * time.Second)

		require.NoError(t, s.Expire(ctx, key, time.Minute))
		_, err := s.Get(ctx, key)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
