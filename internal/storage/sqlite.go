package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// Expired rows are reset to 1 so a counter that outlived its window starts a
// fresh one, matching Redis where the key would already be gone.
const sqliteIncr = `
INSERT INTO cache_entries (key, value, expires_at) VALUES (?1, '1', NULL)
ON CONFLICT (key) DO UPDATE SET
	value = CASE
		WHEN cache_entries.expires_at IS NOT NULL AND cache_entries.expires_at <= ?2 THEN '1'
		ELSE CAST(CAST(cache_entries.value AS INTEGER) + 1 AS TEXT)
	END,
	expires_at = CASE
		WHEN cache_entries.expires_at IS NOT NULL AND cache_entries.expires_at <= ?2 THEN NULL
		ELSE cache_entries.expires_at
	END
RETURNING value`

// SQLiteStorage stores entries in a single SQLite table. Expiry times are
// unix milliseconds; expired rows are invisible and purged periodically.
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time

	stop chan struct{}
	done chan struct{}
}

// NewSQLiteStorage opens the database at dsn and creates the table if needed.
func NewSQLiteStorage(dsn string, cleanupInterval time.Duration) (*SQLiteStorage, error) {
	if dsn == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrate(ctx, db, goose.DialectSQLite3, "sqlite"); err != nil {
		db.Close()
		return nil, err
	}
	// SQLite serialises writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteStorage{
		db:   db,
		now:  time.Now,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.cleanupLoop(cleanupInterval)
	return s, nil
}

func (s *SQLiteStorage) cleanupLoop(interval time.Duration) {
	defer close(s.done)
	if interval <= 0 {
		<-s.stop
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec(`DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`, s.nowMillis())
		case <-s.stop:
			return
		}
	}
}

func (s *SQLiteStorage) nowMillis() int64 {
	return s.now().UnixMilli()
}

func (s *SQLiteStorage) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM cache_entries WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, s.nowMillis(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", wrapErr("get", key, err)
	}
	return value, nil
}

func (s *SQLiteStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	var expiresAt sql.NullInt64
	if ttl > 0 {
		expiresAt = sql.NullInt64{Int64: s.now().Add(ttl).UnixMilli(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt,
	)
	return wrapErr("set", key, err)
}

func (s *SQLiteStorage) Incr(ctx context.Context, key string) (int64, error) {
	var raw string
	if err := s.db.QueryRowContext(ctx, sqliteIncr, key, s.nowMillis()).Scan(&raw); err != nil {
		return 0, wrapErr("incr", key, err)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, wrapErr("incr", key, errNotInteger)
	}
	return n, nil
}

func (s *SQLiteStorage) TTL(ctx context.Context, key string) (time.Duration, error) {
	now := s.nowMillis()
	var expiresAt sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT expires_at FROM cache_entries WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, now,
	).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return KeyMissing, nil
	}
	if err != nil {
		return 0, wrapErr("ttl", key, err)
	}
	if !expiresAt.Valid {
		return NoExpiry, nil
	}
	return time.Duration(expiresAt.Int64-now) * time.Millisecond, nil
}

func (s *SQLiteStorage) Expire(ctx context.Context, key string, ttl time.Duration) error {
	now := s.now()
	var err error
	if ttl <= 0 {
		_, err = s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE cache_entries SET expires_at = ? WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
			now.Add(ttl).UnixMilli(), key, now.UnixMilli(),
		)
	}
	return wrapErr("expire", key, err)
}

// Ping verifies the storage backend is reachable and operational.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return wrapErr("ping", "", s.db.PingContext(ctx))
}

// Close stops the cleanup goroutine and closes the database.
func (s *SQLiteStorage) Close() error {
	select {
	case <-s.stop:
		return nil
	default:
		close(s.stop)
	}
	<-s.done
	return s.db.Close()
}
