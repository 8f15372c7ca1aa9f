package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const postgresIncr = `
INSERT INTO cache_entries (key, value, expires_at) VALUES ($1, '1', NULL)
ON CONFLICT (key) DO UPDATE SET
	value = CASE
		WHEN cache_entries.expires_at IS NOT NULL AND cache_entries.expires_at <= $2 THEN '1'
		ELSE (cache_entries.value::bigint + 1)::text
	END,
	expires_at = CASE
		WHEN cache_entries.expires_at IS NOT NULL AND cache_entries.expires_at <= $2 THEN NULL
		ELSE cache_entries.expires_at
	END
RETURNING value`

// PostgresStorage keeps the shared cache in a PostgreSQL table, letting
// several instances share one rate limit window without Redis.
type PostgresStorage struct {
	pool *pgxpool.Pool
	now  func() time.Time

	stop chan struct{}
	done chan struct{}
}

// NewPostgresStorage creates a new PostgreSQL storage instance.
func NewPostgresStorage(dsn string, maxConns int, connMaxLifetime, cleanupInterval time.Duration) (*PostgresStorage, error) {
	if dsn == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = int32(maxConns)
	}
	if connMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = connMaxLifetime
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	err = migrate(ctx, db, goose.DialectPostgres, "postgres")
	db.Close()
	if err != nil {
		pool.Close()
		return nil, err
	}

	ps := &PostgresStorage{
		pool: pool,
		now:  time.Now,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go ps.cleanupLoop(cleanupInterval)
	return ps, nil
}

func (ps *PostgresStorage) cleanupLoop(interval time.Duration) {
	defer close(ps.done)
	if interval <= 0 {
		<-ps.stop
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_, _ = ps.pool.Exec(ctx,
				`DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= $1`, ps.nowMillis())
			cancel()
		case <-ps.stop:
			return
		}
	}
}

func (ps *PostgresStorage) nowMillis() int64 {
	return ps.now().UnixMilli()
}

func (ps *PostgresStorage) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := ps.pool.QueryRow(ctx,
		`SELECT value FROM cache_entries WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`,
		key, ps.nowMillis(),
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", wrapErr("get", key, err)
	}
	return value, nil
}

func (ps *PostgresStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	var expiresAt *int64
	if ttl > 0 {
		ms := ps.now().Add(ttl).UnixMilli()
		expiresAt = &ms
	}
	_, err := ps.pool.Exec(ctx,
		`INSERT INTO cache_entries (key, value, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, expiresAt,
	)
	return wrapErr("set", key, err)
}

func (ps *PostgresStorage) Incr(ctx context.Context, key string) (int64, error) {
	var raw string
	if err := ps.pool.QueryRow(ctx, postgresIncr, key, ps.nowMillis()).Scan(&raw); err != nil {
		return 0, wrapErr("incr", key, err)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, wrapErr("incr", key, errNotInteger)
	}
	return n, nil
}

func (ps *PostgresStorage) TTL(ctx context.Context, key string) (time.Duration, error) {
	now := ps.nowMillis()
	var expiresAt *int64
	err := ps.pool.QueryRow(ctx,
		`SELECT expires_at FROM cache_entries WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`,
		key, now,
	).Scan(&expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return KeyMissing, nil
	}
	if err != nil {
		return 0, wrapErr("ttl", key, err)
	}
	if expiresAt == nil {
		return NoExpiry, nil
	}
	return time.Duration(*expiresAt-now) * time.Millisecond, nil
}

func (ps *PostgresStorage) Expire(ctx context.Context, key string, ttl time.Duration) error {
	now := ps.now()
	var err error
	if ttl <= 0 {
		_, err = ps.pool.Exec(ctx, `DELETE FROM cache_entries WHERE key = $1`, key)
	} else {
		_, err = ps.pool.Exec(ctx,
			`UPDATE cache_entries SET expires_at = $1 WHERE key = $2 AND (expires_at IS NULL OR expires_at > $3)`,
			now.Add(ttl).UnixMilli(), key, now.UnixMilli(),
		)
	}
	return wrapErr("expire", key, err)
}

// Ping verifies the storage backend is reachable and operational.
func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return wrapErr("ping", "", ps.pool.Ping(ctx))
}

// Close stops the cleanup goroutine and closes the connection pool.
func (ps *PostgresStorage) Close() error {
	select {
	case <-ps.stop:
		return nil
	default:
		close(ps.stop)
	}
	<-ps.done
	ps.pool.Close()
	return nil
}
