// Package kv implements the shared key-value coordination primitives on
// Redis: TTL-bounded lock leases and per-(feed, mode) sync cursors. These
// are the only writers of their key spaces; order rows live in Postgres and
// are owned by the db package.
package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ordersync/internal/config"
)

// RedisClient is the subset of *redis.Client used by this package. Narrowing
// the dependency keeps the lock and cursor logic testable without a live
// Redis.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	SetXX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// NewClient creates a Redis client from configuration and verifies
// connectivity. Store unavailability at startup is fatal: no sync work may
// proceed without the coordination store.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password.Reveal(),
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("kv: failed to connect to redis: %w", err)
	}

	return client, nil
}
