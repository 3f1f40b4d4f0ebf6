package kv

import (
	"context"
	"errors"
	"testing"

	"ordersync/internal/types"
)

func TestCursorStore_GetMissing(t *testing.T) {
	store := NewCursorStore(newMockRedis())

	val, found, err := store.Get(context.Background(), types.CursorKey(types.SourceOpenSea, types.ModeRealtime))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found || val != "" {
		t.Fatalf("expected missing cursor, got %q found=%v", val, found)
	}
}

func TestCursorStore_SetGet(t *testing.T) {
	store := NewCursorStore(newMockRedis())
	ctx := context.Background()
	key := types.CursorKey(types.SourceRarible, types.ModeBackfill)

	if err := store.Set(ctx, key, "offset:300"); err != nil {
		t.Fatalf("set: %v", err)
	}

	val, found, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found || val != "offset:300" {
		t.Fatalf("expected offset:300, got %q found=%v", val, found)
	}

	// Realtime and backfill cursors for the same feed are independent.
	other, found, err := store.Get(ctx, types.CursorKey(types.SourceRarible, types.ModeRealtime))
	if err != nil {
		t.Fatalf("get other mode: %v", err)
	}
	if found || other != "" {
		t.Fatal("modes must not share cursor keys")
	}
}

func TestCursorStore_StoreErrors(t *testing.T) {
	r := newMockRedis()
	r.getErr = errors.New("connection reset")
	r.setErr = errors.New("connection reset")
	store := NewCursorStore(r)
	ctx := context.Background()

	assertKVErr := func(err error) {
		t.Helper()
		if err == nil {
			t.Fatal("expected error")
		}
		if types.CodeOf(err) != types.ErrCodeInternalKV {
			t.Errorf("expected kv error code, got %s", types.CodeOf(err))
		}
	}

	_, _, err := store.Get(ctx, "cursor:opensea:realtime")
	assertKVErr(err)

	err = store.Set(ctx, "cursor:opensea:realtime", "x")
	assertKVErr(err)
}
