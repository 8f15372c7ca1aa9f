package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"polluted/internal/models"
	"polluted/internal/storage"
)

// ErrWaitBudgetExceeded is returned by FixedWindow.Acquire when admission
// would take longer than the configured maximum wait.
var ErrWaitBudgetExceeded = errors.New("rate limit wait budget exceeded")

// Counter is the slice of the cache FixedWindow needs. *cache.Cache satisfies it.
type Counter interface {
	Increment(ctx context.Context, key string) (int64, error)
	TimeToLive(ctx context.Context, key string) (time.Duration, error)
	AddTimeToLive(ctx context.Context, key string, ttl time.Duration) error
}

// FixedWindow admits at most max calls per window across every process that
// shares the same store and key. The window opens with the first increment
// and the counter key expires with it.
type FixedWindow struct {
	counter Counter
	key     string
	window  time.Duration
	max     int64
	padding time.Duration
	maxWait time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// WindowOption configures a FixedWindow.
type WindowOption func(*FixedWindow)

// WithWindowClock replaces the clock used to measure the wait budget.
func WithWindowClock(now func() time.Time) WindowOption {
	return func(w *FixedWindow) {
		w.now = now
	}
}

// WithSleeper replaces the function used to wait for the next window.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) WindowOption {
	return func(w *FixedWindow) {
		w.sleep = sleep
	}
}

// NewFixedWindow creates a limiter over counter configured by cfg.
func NewFixedWindow(counter Counter, cfg models.WindowLimitConfig, opts ...WindowOption) *FixedWindow {
	w := &FixedWindow{
		counter: counter,
		key:     cfg.Key,
		window:  cfg.Window,
		max:     int64(cfg.MaxRequests),
		padding: cfg.Padding,
		maxWait: cfg.MaxWait,
		now:     time.Now,
		sleep:   Sleep,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Acquire blocks until the caller is admitted to the current window. It
// returns a *storage.Error when the store fails, ErrWaitBudgetExceeded when
// the next admission is out of reach of the wait budget, or the context error.
func (w *FixedWindow) Acquire(ctx context.Context) error {
	started := w.now()

	for {
		count, err := w.counter.Increment(ctx, w.key)
		if err != nil {
			return err
		}
		if count == 1 {
			if err := w.counter.AddTimeToLive(ctx, w.key, w.window); err != nil {
				return err
			}
		}
		if count <= w.max {
			return nil
		}

		remaining, err := w.counter.TimeToLive(ctx, w.key)
		if err != nil {
			return err
		}
		if remaining == storage.NoExpiry {
			// The process that opened the window died before setting its
			// expiry; without one the counter would block everyone forever.
			slog.Warn("Rate limit counter has no expiry, restoring window",
				"key", w.key,
				"window", w.window,
			)
			if err := w.counter.AddTimeToLive(ctx, w.key, w.window); err != nil {
				return err
			}
			remaining = w.window
		}

		wait := max(remaining, time.Second) + w.padding
		if w.maxWait > 0 && w.now().Sub(started)+wait > w.maxWait {
			slog.Warn("Rate limit wait budget exceeded",
				"key", w.key,
				"waited", w.now().Sub(started),
				"next_wait", wait,
			)
			return ErrWaitBudgetExceeded
		}

		slog.Debug("Rate limit window full, waiting",
			"key", w.key,
			"count", count,
			"max", w.max,
			"wait", wait,
		)
		if err := w.sleep(ctx, wait); err != nil {
			return err
		}
	}
}
