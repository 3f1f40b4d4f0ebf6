package kv

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"ordersync/internal/types"
)

// CursorStore persists the per-(feed, mode) progress marker. Cursors are
// opaque strings; their interpretation (timestamp, page token, item id) is
// connector-defined.
//
// There is no compare-and-swap here. Every write path to a given cursor key
// is lock-guarded by the engine, which makes single-writer-at-a-time an
// external invariant rather than a store feature. Unguarded concurrent
// writers would race.
type CursorStore struct {
	client RedisClient
	prefix string
}

// NewCursorStore creates a CursorStore. Keys are namespaced under
// "cursor:<source>:<mode>" via types.CursorKey.
func NewCursorStore(client RedisClient) *CursorStore {
	return &CursorStore{
		client: client,
		prefix: "",
	}
}

// Get returns the stored cursor, or ("", false) if the feed has never
// synced. Connectors decide what "never synced" means: realtime feeds start
// from the most recent point, backfill feeds from the window's beginning.
func (s *CursorStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, types.NewAppError(types.ErrCodeInternalKV, "cursor read failed", err)
	}
	return val, true, nil
}

// Set writes the cursor. Called only after the corresponding page has been
// durably persisted — never on a failed or partially-failed page — so a
// crash mid-cycle re-reads the prior cursor and retries safely against the
// idempotent sink.
func (s *CursorStore) Set(ctx context.Context, key string, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return types.NewAppError(types.ErrCodeInternalKV, "cursor write failed", err)
	}
	return nil
}
