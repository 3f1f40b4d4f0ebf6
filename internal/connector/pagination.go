package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ordersync/internal/httpx"
	"ordersync/internal/types"
)

// FeedConfig carries the per-feed HTTP settings shared by all pagination
// styles.
type FeedConfig struct {
	BaseURL      string
	APIKeyHeader string
	APIKey       string
	PageSize     int
}

// parseFunc converts one raw feed item into a normalized order, or
// (nil, nil) to skip it.
type parseFunc func(raw json.RawMessage) (*types.NormalizedOrder, error)

// feedBase holds what every connector needs to issue a page fetch.
type feedBase struct {
	source types.SourceKind
	client *httpx.Client
	cfg    FeedConfig
	parse  parseFunc
}

func (f *feedBase) Source() types.SourceKind { return f.source }

func (f *feedBase) Parse(raw json.RawMessage) (*types.NormalizedOrder, error) {
	return f.parse(raw)
}

// get issues one GET against the feed and decodes the JSON envelope.
// Rate-limit handling (429/503 + Retry-After) happens inside the httpx
// client, so by the time an error surfaces here it is terminal for this
// attempt and carries the right taxonomy code.
func (f *feedBase) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := f.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build feed request", err)
	}
	if f.cfg.APIKeyHeader != "" && f.cfg.APIKey != "" {
		req.Header.Set(f.cfg.APIKeyHeader, f.cfg.APIKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("feed %s returned status %d", f.source, resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable, "failed to read feed response", err)
	}
	return body, nil
}

func (f *feedBase) pageSize() int {
	if f.cfg.PageSize > 0 {
		return f.cfg.PageSize
	}
	return 50
}

// ---------------------------------------------------------------------------
// Cursor-token pagination
// ---------------------------------------------------------------------------

// cursorFeed pages with an opaque continuation token returned by the feed.
// Termination rule: empty page or an empty next token means done.
type cursorFeed struct {
	feedBase
	path      string
	itemsKey  string
	cursorKey string
}

func (f *cursorFeed) BuildRequest(cursor string, window *TimeWindow) Request {
	return Request{Cursor: cursor, Window: window, PageSize: f.pageSize()}
}

func (f *cursorFeed) FetchPage(ctx context.Context, req Request) (Page, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(req.PageSize))
	if req.Cursor != "" {
		q.Set("cursor", req.Cursor)
	}
	if req.Window != nil {
		q.Set("listed_after", strconv.FormatInt(req.Window.Start.Unix(), 10))
		q.Set("listed_before", strconv.FormatInt(req.Window.End.Unix(), 10))
	}

	body, err := f.get(ctx, f.path, q)
	if err != nil {
		return Page{}, err
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Page{}, types.NewAppError(types.ErrCodeUpstreamUnavailable, "malformed feed envelope", err)
	}

	var items []json.RawMessage
	if rawItems, ok := envelope[f.itemsKey]; ok {
		if err := json.Unmarshal(rawItems, &items); err != nil {
			return Page{}, types.NewAppError(types.ErrCodeUpstreamUnavailable, "malformed feed item list", err)
		}
	}

	var next string
	if rawNext, ok := envelope[f.cursorKey]; ok {
		// Tolerate null cursors on the last page.
		_ = json.Unmarshal(rawNext, &next)
	}

	return Page{
		RawItems:   items,
		NextCursor: next,
		Exhausted:  len(items) == 0 || next == "",
	}, nil
}

// ---------------------------------------------------------------------------
// Offset pagination
// ---------------------------------------------------------------------------

// offsetFeed pages with a numeric offset carried as the cursor. Termination
// rule: a page shorter than the page size means done. Offset feeds have no
// stable cursor semantics, so the engine's zero-new-rows tie-break is what
// actually bounds backfills against them.
type offsetFeed struct {
	feedBase
	path     string
	itemsKey string
}

func (f *offsetFeed) BuildRequest(cursor string, window *TimeWindow) Request {
	return Request{Cursor: cursor, Window: window, PageSize: f.pageSize()}
}

func (f *offsetFeed) FetchPage(ctx context.Context, req Request) (Page, error) {
	offset := 0
	if req.Cursor != "" {
		n, err := strconv.Atoi(req.Cursor)
		if err != nil {
			return Page{}, types.NewAppError(types.ErrCodeInternalUnexpected,
				fmt.Sprintf("feed %s: non-numeric offset cursor %q", f.source, req.Cursor), err)
		}
		offset = n
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(req.PageSize))
	q.Set("offset", strconv.Itoa(offset))
	if req.Window != nil {
		q.Set("from", strconv.FormatInt(req.Window.Start.Unix(), 10))
		q.Set("to", strconv.FormatInt(req.Window.End.Unix(), 10))
	}

	body, err := f.get(ctx, f.path, q)
	if err != nil {
		return Page{}, err
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Page{}, types.NewAppError(types.ErrCodeUpstreamUnavailable, "malformed feed envelope", err)
	}

	var items []json.RawMessage
	if rawItems, ok := envelope[f.itemsKey]; ok {
		if err := json.Unmarshal(rawItems, &items); err != nil {
			return Page{}, types.NewAppError(types.ErrCodeUpstreamUnavailable, "malformed feed item list", err)
		}
	}

	return Page{
		RawItems:   items,
		NextCursor: strconv.Itoa(offset + len(items)),
		Exhausted:  len(items) < req.PageSize,
	}, nil
}

// ---------------------------------------------------------------------------
// Time-window pagination
// ---------------------------------------------------------------------------

// windowFeed queries by creation-time range. The cursor is the RFC3339
// timestamp of the last item seen; realtime cycles slide the window forward
// from it. Termination rule: empty page means the window is drained.
type windowFeed struct {
	feedBase
	path     string
	itemsKey string
}

func (f *windowFeed) BuildRequest(cursor string, window *TimeWindow) Request {
	return Request{Cursor: cursor, Window: window, PageSize: f.pageSize()}
}

func (f *windowFeed) FetchPage(ctx context.Context, req Request) (Page, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(req.PageSize))
	q.Set("sort", "created_at")

	start, end := windowBounds(req)
	if !start.IsZero() {
		q.Set("created_after", start.UTC().Format(time.RFC3339))
	}
	if !end.IsZero() {
		q.Set("created_before", end.UTC().Format(time.RFC3339))
	}

	body, err := f.get(ctx, f.path, q)
	if err != nil {
		return Page{}, err
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Page{}, types.NewAppError(types.ErrCodeUpstreamUnavailable, "malformed feed envelope", err)
	}

	var items []json.RawMessage
	if rawItems, ok := envelope[f.itemsKey]; ok {
		if err := json.Unmarshal(rawItems, &items); err != nil {
			return Page{}, types.NewAppError(types.ErrCodeUpstreamUnavailable, "malformed feed item list", err)
		}
	}

	next := req.Cursor
	if len(items) > 0 {
		// Advance the cursor to the last item's creation time. Items that
		// share the boundary timestamp may reappear on the next page; the
		// idempotent sink absorbs them.
		if ts := lastCreatedAt(f.parse, items); !ts.IsZero() {
			next = ts.UTC().Format(time.RFC3339)
		}
	}

	return Page{
		RawItems:   items,
		NextCursor: next,
		Exhausted:  len(items) == 0,
	}, nil
}

// windowBounds resolves the effective query range. The cursor marks
// progress through the range and becomes the lower bound; inside an
// explicit backfill window it is clamped to the window, so continuation
// pages walk forward through the window instead of re-reading it from the
// start. A cursor at or past the window end leaves the bounds untouched
// and the empty result terminates the chain.
func windowBounds(req Request) (start, end time.Time) {
	if req.Window != nil {
		start, end = req.Window.Start, req.Window.End
	}
	if req.Cursor != "" {
		if t, err := time.Parse(time.RFC3339, req.Cursor); err == nil {
			if t.After(start) && (end.IsZero() || t.Before(end)) {
				start = t
			}
		}
	}
	return start, end
}

// lastCreatedAt returns the creation time of the last parseable item.
func lastCreatedAt(parse parseFunc, items []json.RawMessage) time.Time {
	for i := len(items) - 1; i >= 0; i-- {
		order, err := parse(items[i])
		if err == nil && order != nil {
			return order.CreatedAt
		}
	}
	return time.Time{}
}
