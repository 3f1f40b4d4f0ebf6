package kv

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ordersync/internal/types"
)

// releaseScript deletes the lock key only if the stored owner token still
// matches the caller's. This prevents a delayed release from clobbering a
// lease some other owner has re-acquired after expiry.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

// LockManager leases named, TTL-bounded exclusive tokens in Redis. It is the
// admission gate for sync cycles: at most one holder per lock name until
// release or expiry.
//
// Extend is deliberately weak: it refreshes any existing entry (SET XX)
// without comparing the stored token, so a caller with stale token
// bookkeeping can in principle extend a lease it no longer owns. This is a
// liveness-oriented primitive; every side effect it guards is idempotent.
// Do not use it to protect non-idempotent work.
type LockManager struct {
	client RedisClient
	prefix string
	logger *slog.Logger
}

// NewLockManager creates a LockManager. Keys are namespaced under
// "lock:<name>".
func NewLockManager(client RedisClient, logger *slog.Logger) *LockManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &LockManager{
		client: client,
		prefix: "lock:",
		logger: logger,
	}
}

// Acquire attempts to take the named lease for ttl. On success it returns a
// fresh owner token the caller must keep for Extend/Release; tokens travel
// inside job messages so the worker that executes a cycle can manage the
// lease the trigger acquired.
//
// Store unavailability propagates as an error (fail-closed): no work
// proceeds without a lock.
func (m *LockManager) Acquire(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.New().String()

	ok, err = m.client.SetNX(ctx, m.prefix+name, token, ttl).Result()
	if err != nil {
		return "", false, types.NewAppError(types.ErrCodeInternalKV, "lock acquire failed", err)
	}
	if !ok {
		return "", false, nil
	}

	m.logger.DebugContext(ctx, "lock acquired",
		"lock", name,
		"ttl", ttl.String(),
	)
	return token, true, nil
}

// Extend refreshes the lease TTL if an entry exists, re-stamping it with the
// caller's token. Returns false if the entry has already expired. See the
// type comment for why this does not verify current ownership.
func (m *LockManager) Extend(ctx context.Context, name string, token string, ttl time.Duration) (bool, error) {
	ok, err := m.client.SetXX(ctx, m.prefix+name, token, ttl).Result()
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalKV, "lock extend failed", err)
	}
	return ok, nil
}

// Held reports whether the named lease currently has an owner. An advisory
// read: the lease can expire or change hands immediately after, so callers
// may only use it to refuse work, never to skip acquiring.
func (m *LockManager) Held(ctx context.Context, name string) (bool, error) {
	_, err := m.client.Get(ctx, m.prefix+name).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalKV, "lock inspection failed", err)
	}
	return true, nil
}

// Release deletes the lease only if the stored token equals the caller's.
// Releasing a lease that expired and was re-acquired by another owner is a
// silent no-op.
func (m *LockManager) Release(ctx context.Context, name string, token string) error {
	deleted, err := m.client.Eval(ctx, releaseScript, []string{m.prefix + name}, token).Int64()
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalKV, "lock release failed", err)
	}
	if deleted == 0 {
		m.logger.DebugContext(ctx, "lock release skipped, not owner",
			"lock", name,
		)
	}
	return nil
}
