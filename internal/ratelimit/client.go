package ratelimit

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"polluted/internal/models"

	"golang.org/x/time/rate"
)

type clientBucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter is the inbound per-client token bucket limiter. Buckets idle
// for twice the sweep interval are dropped by a background goroutine.
type ClientLimiter struct {
	perMinute int
	every     rate.Limit
	burst     int
	sweep     time.Duration
	now       func() time.Time

	mu      sync.Mutex
	buckets map[string]*clientBucket

	stop     chan struct{}
	stopOnce sync.Once
}

// ClientLimiterOption configures a ClientLimiter.
type ClientLimiterOption func(*ClientLimiter)

// WithClientClock replaces the clock used for refills and eviction.
func WithClientClock(now func() time.Time) ClientLimiterOption {
	return func(l *ClientLimiter) {
		l.now = now
	}
}

// NewClientLimiter creates a limiter from the inbound rate limit settings and
// starts the sweeper.
func NewClientLimiter(cfg models.RateLimitConfig, opts ...ClientLimiterOption) *ClientLimiter {
	l := &ClientLimiter{
		perMinute: cfg.RequestsPerMinute,
		every:     rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute)),
		burst:     cfg.BurstSize,
		sweep:     cfg.CleanupInterval,
		now:       time.Now,
		buckets:   make(map[string]*clientBucket),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.sweep > 0 {
		go l.sweepLoop()
	}
	return l
}

func (l *ClientLimiter) take(client string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[client]
	if !ok {
		b = &clientBucket{tokens: rate.NewLimiter(l.every, l.burst)}
		l.buckets[client] = b
	}
	b.lastSeen = now
	return b.tokens
}

// Allow spends one token of the client's bucket.
func (l *ClientLimiter) Allow(client string) (bool, Info) {
	now := l.now()
	tokens := l.take(client, now)

	allowed := tokens.AllowN(now, 1)
	info := l.describe(tokens, now)
	if !allowed {
		// Reserve and cancel to learn the wait without spending the token.
		r := tokens.ReserveN(now, 1)
		info.RetryAfter = r.DelayFrom(now)
		r.CancelAt(now)
	}
	return allowed, info
}

// describe reports the bucket state at now for the response headers.
func (l *ClientLimiter) describe(tokens *rate.Limiter, now time.Time) Info {
	left := tokens.TokensAt(now)
	info := Info{
		Limit:     l.perMinute,
		Remaining: int(math.Max(0, math.Floor(left))),
		ResetAt:   now,
	}
	if deficit := float64(l.burst) - left; deficit > 0 {
		refill := time.Duration(deficit / float64(l.every) * float64(time.Second))
		info.ResetAt = now.Add(refill)
	}
	return info
}

// Close stops the sweeper. It is safe to call more than once.
func (l *ClientLimiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *ClientLimiter) sweepLoop() {
	ticker := time.NewTicker(l.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			if n := l.evictIdle(); n > 0 {
				slog.Debug("Evicted idle rate limit buckets", "count", n)
			}
		}
	}
}

// evictIdle drops buckets untouched for twice the sweep interval and returns
// how many were removed.
func (l *ClientLimiter) evictIdle() int {
	cutoff := l.now().Add(-2 * l.sweep)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for client, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, client)
			removed++
		}
	}
	return removed
}
