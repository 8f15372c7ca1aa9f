package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"polluted/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisStorage is the primary backend for multi-instance deployments.
type RedisStorage struct {
	client *redis.Client
}

// NewRedisStorage connects to Redis using either cfg.URL or cfg.Addr and
// verifies the connection with a PING.
func NewRedisStorage(cfg models.RedisConfig) (*RedisStorage, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		opts = parsed
	} else {
		if cfg.Addr == "" {
			return nil, fmt.Errorf("redis address is required")
		}
		opts = &redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisStorage{client: client}, nil
}

// NewRedisStorageFromClient wraps an existing client.
func NewRedisStorageFromClient(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client}
}

func (r *RedisStorage) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", wrapErr("get", key, err)
	}
	return value, nil
}

func (r *RedisStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	// go-redis treats negative durations as KEEPTTL.
	if ttl < 0 {
		ttl = 0
	}
	return wrapErr("set", key, r.client.Set(ctx, key, value, ttl).Err())
}

func (r *RedisStorage) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, wrapErr("incr", key, err)
	}
	return n, nil
}

func (r *RedisStorage) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, wrapErr("ttl", key, err)
	}
	return ttl, nil
}

func (r *RedisStorage) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return wrapErr("expire", key, r.client.Del(ctx, key).Err())
	}
	// EXPIRE answers 0 for a missing key, which is not an error here.
	return wrapErr("expire", key, r.client.Expire(ctx, key, ttl).Err())
}

// Ping verifies the storage backend is reachable and operational.
func (r *RedisStorage) Ping(ctx context.Context) error {
	return wrapErr("ping", "", r.client.Ping(ctx).Err())
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}
