// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/coursecast/internal/log"
)

const (
	redisDialTimeout = 5 * time.Second
	redisIOTimeout   = time.Second
)

// RedisConfig describes the Redis connection.
type RedisConfig struct {
	Addr     string // host:port
	Password string
	DB       int
	Prefix   string // prepended to every key, e.g. "coursecast:"
}

// RedisCache stores entries in Redis with native key expiry. Keys are
// namespaced by Prefix so several deployments can share one database.
type RedisCache struct {
	counters

	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewRedisCache dials Redis and fails unless a PING succeeds.
func NewRedisCache(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisIOTimeout,
		WriteTimeout: redisIOTimeout,
		PoolSize:     20,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: redis %s: %w", cfg.Addr, err)
	}

	logger = logger.With().Str(xglog.FieldComponent, "cache").Logger()
	logger.Info().
		Str(xglog.FieldEvent, "cache.redis_connected").
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("redis cache ready")

	return &RedisCache{client: client, prefix: cfg.Prefix, logger: logger}, nil
}

// fail counts and logs a backend error and wraps it with op.
func (c *RedisCache) fail(op, key string, err error) error {
	c.errors.Add(1)
	c.logger.Warn().Err(err).Str("op", op).Str("key", key).Msg("redis command failed")
	return fmt.Errorf("cache: redis %s: %w", op, err)
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		c.misses.Add(1)
		return nil, false, nil
	case err != nil:
		return nil, false, c.fail("get", key, err)
	}
	c.hits.Add(1)
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return c.fail("set", key, err)
	}
	c.sets.Add(1)
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return c.fail("del", key, err)
	}
	return nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Stats reports CurrentSize as DBSIZE, which covers the whole database and
// not only this prefix. It is 0 when Redis cannot be reached.
func (c *RedisCache) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), 2*redisIOTimeout)
	defer cancel()

	size, err := c.client.DBSize(ctx).Result()
	if err != nil {
		c.logger.Debug().Err(err).Msg("redis dbsize failed")
	}
	return c.snapshot(int(size))
}

// Close releases the connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
