// Package engine implements the incremental sync core: the per-cycle state
// machine (fetch → parse → persist → relay → advance), the realtime tailing
// and backfill chaining protocols, and the wall-clock trigger scheduler.
//
// A cycle moves through Idle → LockPending → Fetching → Persisting →
// Relaying → Advancing and finishes Rescheduled (wait for the next tick),
// Chained (a follow-up job was enqueued), or Terminated (backfill drained).
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"ordersync/internal/connector"
	"ordersync/internal/types"
)

// LockManager leases named TTL-bounded exclusive tokens. Satisfied by
// kv.LockManager.
type LockManager interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error)
	Extend(ctx context.Context, name string, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string, token string) error
}

// CursorStore persists per-(feed, mode) progress markers. Satisfied by
// kv.CursorStore.
type CursorStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
}

// OrderSink bulk-upserts normalized orders and reports which hashes were
// newly inserted (the idempotence oracle). Satisfied by db.OrderRepository.
type OrderSink interface {
	UpsertBatch(ctx context.Context, orders []types.NormalizedOrder) (map[string]struct{}, error)
}

// RelayPublisher enqueues newly-inserted orders for downstream delivery.
// Satisfied by relay.Publisher.
type RelayPublisher interface {
	Publish(ctx context.Context, orders []types.NormalizedOrder) error
}

// JobEnqueuer submits sync jobs to the work queue. Satisfied by
// queue.Publisher.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg types.SyncJobMessage, delay time.Duration) error
}

// Metrics records cycle outcomes. Implementations must never fail the cycle.
type Metrics interface {
	RecordPage(ctx context.Context, source types.SourceKind, mode types.SyncMode, rawCount, insertedCount int)
	RecordCycleError(ctx context.Context, source types.SourceKind, mode types.SyncMode)
}

// NoopMetrics discards all measurements.
type NoopMetrics struct{}

func (NoopMetrics) RecordPage(context.Context, types.SourceKind, types.SyncMode, int, int) {}
func (NoopMetrics) RecordCycleError(context.Context, types.SourceKind, types.SyncMode)     {}

// lockRetryDelay is how long a backfill job waits before re-trying when
// another cycle holds the feed's lease.
const lockRetryDelay = 15 * time.Second

// maxBackfillChain bounds continuation depth as a last-resort guard against
// feeds that misreport exhaustion. The zero-new-rows tie-break should always
// fire first.
const maxBackfillChain = 100000

// Engine executes sync jobs against the registered feeds.
type Engine struct {
	registry *connector.Registry
	locks    LockManager
	cursors  CursorStore
	sink     OrderSink
	relay    RelayPublisher
	jobs     JobEnqueuer
	metrics  Metrics
	clock    types.Clock
	logger   *slog.Logger

	parseConcurrency int
}

// Config holds the dependencies for creating an Engine.
type Config struct {
	Registry *connector.Registry
	Locks    LockManager
	Cursors  CursorStore
	Sink     OrderSink
	Relay    RelayPublisher
	Jobs     JobEnqueuer
	Metrics  Metrics
	Clock    types.Clock
	Logger   *slog.Logger

	// ParseConcurrency bounds the fan-out when parsing a page. Parsing
	// fronts CPU-bound signature and hash verification, so the limit keeps
	// a large page from monopolizing the process.
	ParseConcurrency int
}

// New creates an Engine with the given configuration.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	concurrency := cfg.ParseConcurrency
	if concurrency <= 0 {
		concurrency = 20
	}
	return &Engine{
		registry:         cfg.Registry,
		locks:            cfg.Locks,
		cursors:          cfg.Cursors,
		sink:             cfg.Sink,
		relay:            cfg.Relay,
		jobs:             cfg.Jobs,
		metrics:          metrics,
		clock:            clock,
		logger:           logger,
		parseConcurrency: concurrency,
	}
}

// RunJob executes one sync job. Returning an error surfaces the job to the
// queue's retry policy; returning nil completes (and deletes) it. Expected
// coordination outcomes — lock held elsewhere, unknown feed — complete the
// job rather than erroring, so they are never retried as failures.
func (e *Engine) RunJob(ctx context.Context, msg types.SyncJobMessage) error {
	if err := msg.Validate(); err != nil {
		e.logger.ErrorContext(ctx, "dropping invalid sync job",
			"job_id", msg.JobID,
			"error", err,
		)
		return nil
	}

	feed, ok := e.registry.Get(msg.Source)
	if !ok {
		e.logger.WarnContext(ctx, "dropping job for unregistered feed",
			"job_id", msg.JobID,
			"source", string(msg.Source),
		)
		return nil
	}

	switch msg.Mode {
	case types.ModeRealtime:
		return e.runRealtime(ctx, feed, msg)
	default:
		return e.runBackfill(ctx, feed, msg)
	}
}

// runRealtime executes one single-page tailing cycle. The trigger acquired
// the lease and put its token in the message; the worker claims it (extend,
// falling back to a fresh acquire if the lease lapsed in transit), runs the
// page, then either chains the next page immediately or releases and waits
// for the next wall-clock tick.
func (e *Engine) runRealtime(ctx context.Context, feed connector.Feed, msg types.SyncJobMessage) error {
	source := feed.Connector.Source()
	lockName := types.LockName(source, types.ModeRealtime)
	lease := feed.Schedule.RealtimeLease

	token, held, err := e.claimLease(ctx, lockName, msg.LockToken, lease)
	if err != nil {
		return err
	}
	if !held {
		// Another cycle owns the feed. Expected, not an error.
		e.logger.DebugContext(ctx, "realtime cycle skipped, lock held elsewhere",
			"source", string(source),
		)
		return nil
	}

	result, err := e.runPage(ctx, feed, types.ModeRealtime, "", nil)
	if err != nil {
		// Release rather than extend so the next trigger retries the
		// identical window; cursor was not advanced.
		e.releaseQuietly(ctx, lockName, token)
		e.metrics.RecordCycleError(ctx, source, types.ModeRealtime)
		return err
	}

	// Completion policy: keep draining while pages advance, otherwise hand
	// the lease back and let the ticker re-arm. At most one live worker per
	// feed either way.
	if result.Advanced && !result.Exhausted {
		if ok, err := e.locks.Extend(ctx, lockName, token, lease); err == nil && ok {
			next := msg.Continuation("")
			next.LockToken = token
			if err := e.jobs.Enqueue(ctx, next, 0); err != nil {
				e.logger.ErrorContext(ctx, "failed to chain realtime job",
					"source", string(source),
					"error", err,
				)
				e.releaseQuietly(ctx, lockName, token)
			}
			return nil
		}
	}

	e.releaseQuietly(ctx, lockName, token)
	return nil
}

// runBackfill executes one page of a bounded-range drain and decides whether
// to chain a continuation job or terminate the chain.
func (e *Engine) runBackfill(ctx context.Context, feed connector.Feed, msg types.SyncJobMessage) error {
	source := feed.Connector.Source()
	lockName := types.LockName(source, types.ModeBackfill)
	lease := feed.Schedule.BackfillLease

	token, held, err := e.claimLease(ctx, lockName, msg.LockToken, lease)
	if err != nil {
		return err
	}
	if !held {
		// Another backfill chain owns the feed; try again shortly rather
		// than dropping the range.
		if err := e.jobs.Enqueue(ctx, msg, lockRetryDelay); err != nil {
			return types.NewAppError(types.ErrCodeInternalQueue,
				"failed to requeue backfill job behind held lock", err)
		}
		return nil
	}

	var window *connector.TimeWindow
	if msg.WindowStart != nil {
		window = &connector.TimeWindow{Start: *msg.WindowStart, End: *msg.WindowEnd}
	}

	result, err := e.runPage(ctx, feed, types.ModeBackfill, msg.Cursor, window)
	if err != nil {
		e.releaseQuietly(ctx, lockName, token)
		e.metrics.RecordCycleError(ctx, source, types.ModeBackfill)
		return err
	}

	// Termination rules, in order:
	//   1. empty page or connector-reported exhaustion — range drained;
	//   2. zero new rows from a nonzero raw page — caught up to already
	//      ingested history (tie-break preventing infinite loops on feeds
	//      with no stable cursor semantics);
	//   3. chain depth guard.
	terminal := result.RawCount == 0 ||
		result.Exhausted ||
		(result.InsertedCount == 0 && result.RawCount > 0) ||
		msg.Attempt >= maxBackfillChain

	if terminal {
		e.logger.InfoContext(ctx, "backfill chain terminated",
			"source", string(source),
			"trace_id", msg.TraceID,
			"pages", msg.Attempt+1,
			"raw_count", result.RawCount,
			"inserted_count", result.InsertedCount,
		)
		e.releaseQuietly(ctx, lockName, token)
		return nil
	}

	next := msg.Continuation(result.NextCursor)
	next.LockToken = token
	if err := e.jobs.Enqueue(ctx, next, 0); err != nil {
		// The chain is broken; release so a re-submission of the range can
		// start over. The idempotent sink absorbs the replay.
		e.releaseQuietly(ctx, lockName, token)
		return types.NewAppError(types.ErrCodeInternalQueue, "failed to enqueue continuation job", err)
	}
	return nil
}

// CycleResult summarizes one executed page.
type CycleResult struct {
	RawCount      int
	ParsedCount   int
	InsertedCount int
	NextCursor    string
	Advanced      bool
	Exhausted     bool
}

// runPage executes the Fetching → Persisting → Relaying → Advancing leg of
// the state machine for one page.
//
// The cursor is written only after the page has been durably persisted, and
// only if the page advanced it; a failure anywhere leaves the prior cursor
// in place so the retry re-reads the identical window against the
// idempotent sink.
//
// Only realtime cycles touch the durable cursor store. Backfill progress
// travels exclusively inside the job message: a fresh chain always starts
// from its own range, never from another chain's final position.
func (e *Engine) runPage(ctx context.Context, feed connector.Feed, mode types.SyncMode, jobCursor string, window *connector.TimeWindow) (CycleResult, error) {
	conn := feed.Connector
	source := conn.Source()
	cursorKey := types.CursorKey(source, mode)

	cursor := jobCursor
	if cursor == "" && mode == types.ModeRealtime {
		stored, _, err := e.cursors.Get(ctx, cursorKey)
		if err != nil {
			return CycleResult{}, err
		}
		cursor = stored
	}

	// Fetching.
	req := conn.BuildRequest(cursor, window)
	page, err := conn.FetchPage(ctx, req)
	if err != nil {
		return CycleResult{}, err
	}

	orders := e.parsePage(ctx, conn, page.RawItems)

	// Persisting.
	inserted, err := e.sink.UpsertBatch(ctx, orders)
	if err != nil {
		return CycleResult{}, err
	}

	// Relaying: only the newly-inserted, successfully-parsed items. A relay
	// failure is logged and does not roll back the persisted rows — relay
	// is a best-effort side channel outside the durability boundary.
	newOrders := make([]types.NormalizedOrder, 0, len(inserted))
	for _, o := range orders {
		if _, isNew := inserted[o.Hash]; isNew {
			newOrders = append(newOrders, o)
		}
	}
	if len(newOrders) > 0 {
		if err := e.relay.Publish(ctx, newOrders); err != nil {
			e.logger.ErrorContext(ctx, "relay publish failed, orders remain persisted",
				"source", string(source),
				"mode", string(mode),
				"count", len(newOrders),
				"error", err,
			)
		}
	}

	// Advancing: an idempotent no-op cycle (empty page, unchanged cursor)
	// leaves the stored cursor untouched.
	advanced := len(page.RawItems) > 0 && page.NextCursor != "" && page.NextCursor != cursor
	if advanced && mode == types.ModeRealtime {
		if err := e.cursors.Set(ctx, cursorKey, page.NextCursor); err != nil {
			// Rows are persisted; the next cycle re-fetches this page and
			// the sink absorbs the duplicates. Still an error: the cursor
			// must eventually advance.
			return CycleResult{}, err
		}
	}

	result := CycleResult{
		RawCount:      len(page.RawItems),
		ParsedCount:   len(orders),
		InsertedCount: len(newOrders),
		NextCursor:    page.NextCursor,
		Advanced:      advanced,
		Exhausted:     page.Exhausted,
	}

	e.metrics.RecordPage(ctx, source, mode, result.RawCount, result.InsertedCount)
	e.logger.InfoContext(ctx, "sync page complete",
		"source", string(source),
		"mode", string(mode),
		"raw_count", result.RawCount,
		"parsed_count", result.ParsedCount,
		"inserted_count", result.InsertedCount,
		"advanced", advanced,
		"exhausted", page.Exhausted,
	)

	return result, nil
}

// parsePage normalizes a page of raw items with bounded fan-out, preserving
// page order. Items the connector cannot parse are skipped, never retried,
// and never fail the page.
func (e *Engine) parsePage(ctx context.Context, conn connector.Connector, rawItems []json.RawMessage) []types.NormalizedOrder {
	results := make([]*types.NormalizedOrder, len(rawItems))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parseConcurrency)
	for i, raw := range rawItems {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			order, err := conn.Parse(raw)
			if err != nil {
				e.logger.DebugContext(gctx, "skipping unparseable item",
					"source", string(conn.Source()),
					"error", err,
				)
				return nil
			}
			results[i] = order
			return nil
		})
	}
	// Workers only return nil; Wait is for completion, not errors.
	_ = g.Wait()

	orders := make([]types.NormalizedOrder, 0, len(rawItems))
	for _, o := range results {
		if o != nil {
			orders = append(orders, *o)
		}
	}
	return orders
}

// claimLease extends an inherited lease token or acquires a fresh one.
// Returns the live token and whether this worker now holds the lease.
func (e *Engine) claimLease(ctx context.Context, name, inherited string, ttl time.Duration) (string, bool, error) {
	if inherited != "" {
		ok, err := e.locks.Extend(ctx, name, inherited, ttl)
		if err != nil {
			return "", false, err
		}
		if ok {
			return inherited, true, nil
		}
		// Lease expired between trigger and execution; fall through to a
		// fresh acquire.
	}
	token, ok, err := e.locks.Acquire(ctx, name, ttl)
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// releaseQuietly releases a lease, logging rather than propagating failures:
// the TTL guarantees eventual liveness even if the release is lost.
func (e *Engine) releaseQuietly(ctx context.Context, name, token string) {
	if err := e.locks.Release(ctx, name, token); err != nil {
		e.logger.WarnContext(ctx, "lock release failed, lease will expire via TTL",
			"lock", name,
			"error", err,
		)
	}
}
