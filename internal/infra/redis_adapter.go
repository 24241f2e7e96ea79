// Package infra provides concrete infrastructure adapters for Redis.
//
// The adapter wraps go-redis v9 and backs the API-key daily quota shared by
// all API instances. If Redis is unreachable the API falls back to the
// in-memory quota in main.go.
package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// GoRedisAdapter wraps a go-redis client.
type GoRedisAdapter struct {
	rdb *redis.Client
}

// NewGoRedisAdapter connects and pings. Returns the connection error so the
// caller can decide whether to fall back to in-memory.
func NewGoRedisAdapter(addr, password string, db int) (*GoRedisAdapter, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}

	slog.Info("Redis connected", "addr", addr, "db", db)
	return NewGoRedisAdapterFromClient(rdb), nil
}

// NewGoRedisAdapterFromClient wraps an existing client.
func NewGoRedisAdapterFromClient(rdb *redis.Client) *GoRedisAdapter {
	return &GoRedisAdapter{rdb: rdb}
}

// Ping checks connectivity.
func (a *GoRedisAdapter) Ping(ctx context.Context) error {
	return a.rdb.Ping(ctx).Err()
}

// Close shuts down the underlying redis client.
func (a *GoRedisAdapter) Close() error {
	return a.rdb.Close()
}

// =============================================================================
// solicit.DailyCounter implementation
// =============================================================================

// IncrExpireAt increments key and sets it to expire at expireAt, atomically.
func (a *GoRedisAdapter) IncrExpireAt(ctx context.Context, key string, expireAt time.Time) (int64, error) {
	var incr *redis.IntCmd
	_, err := a.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireAt(ctx, key, expireAt)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
