// Package connector defines the feed capability interface the sync engine
// drives, plus the concrete marketplace connectors. Connectors vary only in
// paging mechanics (offset, cursor token, time window) and parse rules; the
// engine sees nothing but the three-method contract.
//
// Connectors are stateless values: constructed once at startup and safe to
// call concurrently for different windows.
package connector

import (
	"context"
	"encoding/json"
	"time"

	"ordersync/internal/types"
)

// TimeWindow bounds a backfill query. Both edges are inclusive after the
// engine applies boundary padding.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Request is a paginated query description built by a connector from a
// cursor and optional window. The engine treats it as opaque and passes it
// straight back to FetchPage.
type Request struct {
	Cursor   string
	Window   *TimeWindow
	PageSize int
}

// Page is the result of one fetch: raw items, the connector's next progress
// marker, and whether the feed reported the sequence exhausted.
type Page struct {
	RawItems   []json.RawMessage
	NextCursor string
	Exhausted  bool
}

// Connector is the per-feed capability set.
type Connector interface {
	// Source identifies the feed this connector serves.
	Source() types.SourceKind

	// BuildRequest constructs a paginated query description from a cursor
	// (empty = feed's initial position) and an optional backfill window.
	BuildRequest(cursor string, window *TimeWindow) Request

	// FetchPage performs the network call. Rate-limit responses are retried
	// in place (same cursor/window) before surfacing; hard failures return
	// a classified error for the job queue's retry policy.
	FetchPage(ctx context.Context, req Request) (Page, error)

	// Parse converts one raw item into a normalized order. It is pure and
	// side-effect-free. A (nil, nil) return silently skips the item
	// (malformed, unsupported kind, unverifiable) — parse failures are
	// never sync failures.
	Parse(raw json.RawMessage) (*types.NormalizedOrder, error)
}
