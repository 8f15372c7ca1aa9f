package observability

import (
	"context"
	"errors"
	"time"

	"polluted/internal/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedStorage wraps a storage.Storage implementation with
// OpenTelemetry tracing and metrics instrumentation.
type InstrumentedStorage struct {
	inner    storage.Storage
	backend  string
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
	lookups  metric.Int64Counter
}

// NewInstrumentedStorage creates a new storage wrapper that records trace spans,
// operation latency histograms, error counters and cache hit/miss counts.
// backend labels every measurement (redis, memory, sqlite, postgres).
func NewInstrumentedStorage(inner storage.Storage, backend string) (*InstrumentedStorage, error) {
	tracer := otel.Tracer("polluted/storage")
	meter := otel.Meter("polluted/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	lookups, err := meter.Int64Counter(
		"storage.lookups",
		metric.WithDescription("Number of key lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:    inner,
		backend:  backend,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
		lookups:  lookups,
	}, nil
}

func (s *InstrumentedStorage) startSpan(ctx context.Context, operation, key string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("storage.operation", operation),
		attribute.String("storage.backend", s.backend),
	}
	if key != "" {
		attrs = append(attrs, attribute.String("storage.key", key))
	}
	return s.tracer.Start(ctx, "storage."+operation, trace.WithAttributes(attrs...))
}

func (s *InstrumentedStorage) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("backend", s.backend),
	)

	s.duration.Record(ctx, elapsed, attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (s *InstrumentedStorage) Get(ctx context.Context, key string) (string, error) {
	ctx, span := s.startSpan(ctx, "Get", key)
	start := time.Now()
	value, err := s.inner.Get(ctx, key)

	result := "hit"
	if errors.Is(err, storage.ErrNotFound) {
		result = "miss"
		// A miss is an answer, not a failure.
		s.record(ctx, span, "Get", start, nil)
	} else {
		if err != nil {
			result = "error"
		}
		s.record(ctx, span, "Get", start, err)
	}
	s.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
		attribute.String("backend", s.backend),
	))
	return value, err
}

func (s *InstrumentedStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, span := s.startSpan(ctx, "Set", key)
	span.SetAttributes(attribute.Int64("storage.ttl_ms", ttl.Milliseconds()))
	start := time.Now()
	err := s.inner.Set(ctx, key, value, ttl)
	s.record(ctx, span, "Set", start, err)
	return err
}

func (s *InstrumentedStorage) Incr(ctx context.Context, key string) (int64, error) {
	ctx, span := s.startSpan(ctx, "Incr", key)
	start := time.Now()
	n, err := s.inner.Incr(ctx, key)
	span.SetAttributes(attribute.Int64("storage.counter", n))
	s.record(ctx, span, "Incr", start, err)
	return n, err
}

func (s *InstrumentedStorage) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, span := s.startSpan(ctx, "TTL", key)
	start := time.Now()
	ttl, err := s.inner.TTL(ctx, key)
	s.record(ctx, span, "TTL", start, err)
	return ttl, err
}

func (s *InstrumentedStorage) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, span := s.startSpan(ctx, "Expire", key)
	start := time.Now()
	err := s.inner.Expire(ctx, key, ttl)
	s.record(ctx, span, "Expire", start, err)
	return err
}

func (s *InstrumentedStorage) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping", "")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
