// Package types defines the shared domain model for the ordersync engine:
// normalized orders, sync job messages, source/mode enums, the application
// error type, and the JSONB payload wrapper used for storage.
package types

import (
	"strings"
	"time"
)

// NormalizedOrder is the engine-level unit of work. Connectors produce these
// from raw feed items; everything downstream (sink, relay) operates on them
// without knowing which feed they came from.
type NormalizedOrder struct {
	// Source identifies the originating feed.
	Source SourceKind `json:"source"`

	// Hash is the content-derived identifier computed by the upstream order
	// library. It is globally unique in storage and is the sole dedup key:
	// re-delivery of the same hash is a no-op.
	Hash string `json:"hash"`

	// Target is the contract/collection address the order concerns,
	// canonicalized to lower case.
	Target string `json:"target"`

	// Maker is the signer/lister address.
	Maker string `json:"maker"`

	// CreatedAt is the feed-reported origin timestamp. It drives cursor
	// derivation and is distinct from InsertedAt (storage time).
	CreatedAt time.Time `json:"created_at"`

	// Payload is the feed-specific order data, stored verbatim for
	// downstream replay. The engine never inspects it.
	Payload Payload `json:"payload"`

	// InsertedAt is set by the sink when the row is first stored.
	InsertedAt time.Time `json:"inserted_at,omitempty"`
}

// Validate checks the invariants the sink relies on. Connectors are expected
// to return nil from Parse for items that cannot satisfy these, so a
// validation failure here indicates a connector bug rather than bad feed data.
func (o *NormalizedOrder) Validate() error {
	if !o.Source.Valid() {
		return NewAppError(ErrCodeValidationInvalidSource, "unknown source kind", nil)
	}
	if o.Hash == "" {
		return NewAppError(ErrCodeValidationMissingField, "order hash is required", nil)
	}
	if o.Target == "" {
		return NewAppError(ErrCodeValidationMissingField, "order target is required", nil)
	}
	if o.Target != strings.ToLower(o.Target) {
		return NewAppError(ErrCodeValidationMissingField, "order target must be lower-cased", nil)
	}
	if o.CreatedAt.IsZero() {
		return NewAppError(ErrCodeValidationMissingField, "order created_at is required", nil)
	}
	return nil
}

// CursorKey returns the key-value store key holding the progress marker for
// a (feed, mode) pair, e.g. "cursor:opensea:realtime".
func CursorKey(source SourceKind, mode SyncMode) string {
	return "cursor:" + string(source) + ":" + string(mode)
}

// LockName returns the lock lease name guarding a (feed, mode) pair,
// e.g. "sync:opensea:realtime". Realtime and backfill use distinct locks
// because they target disjoint cursor spaces.
func LockName(source SourceKind, mode SyncMode) string {
	return "sync:" + string(source) + ":" + string(mode)
}
