package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ordersync/internal/types"
)

// RelayRepository owns the durable relay queue:
//
//	relay_jobs(id uuid PRIMARY KEY, order_hash text UNIQUE,
//	           source text, target text, maker text,
//	           order_created_at timestamptz, payload jsonb,
//	           status text, attempt_count int,
//	           next_attempt_at timestamptz, last_error text,
//	           created_at timestamptz, updated_at timestamptz)
//
// Entries are unique on order_hash, so publishing the same order twice (a
// retried cycle after a relay-side crash) collapses into one queue entry.
type RelayRepository struct {
	db DBTX
}

// NewRelayRepository creates a RelayRepository backed by the given
// connection (pool or transaction).
func NewRelayRepository(db DBTX) *RelayRepository {
	return &RelayRepository{db: db}
}

// EnqueueBatch inserts pending relay entries for the given orders, skipping
// hashes that already have an entry. Returns the number of entries created.
func (r *RelayRepository) EnqueueBatch(ctx context.Context, orders []types.NormalizedOrder) (int, error) {
	if len(orders) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	enqueued := 0

	for _, o := range orders {
		payload, err := o.Payload.Value()
		if err != nil {
			return enqueued, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal relay payload", err)
		}

		tag, err := r.db.Exec(ctx,
			`INSERT INTO relay_jobs
			   (id, order_hash, source, target, maker, order_created_at,
			    payload, status, attempt_count, next_attempt_at, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $9, $9)
			 ON CONFLICT (order_hash) DO NOTHING`,
			uuid.New().String(), o.Hash, string(o.Source), o.Target, o.Maker,
			o.CreatedAt.UTC(), payload, string(types.RelayPending), now)
		if err != nil {
			return enqueued, types.NewAppError(types.ErrCodeInternalDB, "failed to enqueue relay entry", err)
		}
		enqueued += int(tag.RowsAffected())
	}

	return enqueued, nil
}

// ClaimDue atomically claims up to limit pending entries whose
// next_attempt_at has passed, marking them delivering. SKIP LOCKED lets
// multiple relay workers claim disjoint sets without blocking each other.
func (r *RelayRepository) ClaimDue(ctx context.Context, limit int) ([]types.RelayEntry, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE relay_jobs SET status = $1, updated_at = now()
		 WHERE id IN (
		   SELECT id FROM relay_jobs
		   WHERE status = $2 AND next_attempt_at <= now()
		   ORDER BY next_attempt_at
		   LIMIT $3
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, order_hash, source, target, maker, order_created_at,
		           payload, status, attempt_count, next_attempt_at,
		           COALESCE(last_error, ''), created_at, updated_at`,
		string(types.RelayDelivering), string(types.RelayPending), limit)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to claim relay entries", err)
	}
	defer rows.Close()

	return scanRelayEntries(rows)
}

// MarkSent marks the given entries delivered.
func (r *RelayRepository) MarkSent(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`UPDATE relay_jobs SET status = $1, updated_at = now()
		 WHERE id = ANY($2)`,
		string(types.RelaySent), ids)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark relay entries sent", err)
	}
	return nil
}

// MarkRetry returns an entry to pending with an incremented attempt count
// and the computed next attempt time.
func (r *RelayRepository) MarkRetry(ctx context.Context, id string, reason string, nextAttemptAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE relay_jobs
		 SET status = $1, attempt_count = attempt_count + 1,
		     next_attempt_at = $2, last_error = $3, updated_at = now()
		 WHERE id = $4`,
		string(types.RelayPending), nextAttemptAt.UTC(), reason, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark relay entry for retry", err)
	}
	return nil
}

// MarkFailed moves an entry to the terminal failed state after its attempts
// are exhausted.
func (r *RelayRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE relay_jobs
		 SET status = $1, attempt_count = attempt_count + 1,
		     last_error = $2, updated_at = now()
		 WHERE id = $3`,
		string(types.RelayFailed), reason, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark relay entry failed", err)
	}
	return nil
}

// RequeueStale returns delivering entries that have not been updated since
// the cutoff to pending. Covers a relay worker that crashed after claiming a
// batch. Returns the number of entries requeued.
func (r *RelayRepository) RequeueStale(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE relay_jobs
		 SET status = $1, next_attempt_at = now(), updated_at = now()
		 WHERE status = $2 AND updated_at < $3`,
		string(types.RelayPending), string(types.RelayDelivering), cutoff.UTC())
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to requeue stale relay entries", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListTerminalBefore returns up to limit sent/failed entries last updated
// before the cutoff, oldest first. Used by the compactor's
// archive-then-delete cycle.
func (r *RelayRepository) ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]types.RelayEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, order_hash, source, target, maker, order_created_at,
		        payload, status, attempt_count, next_attempt_at,
		        COALESCE(last_error, ''), created_at, updated_at
		 FROM relay_jobs
		 WHERE status IN ($1, $2) AND updated_at < $3
		 ORDER BY updated_at
		 LIMIT $4`,
		string(types.RelaySent), string(types.RelayFailed), cutoff.UTC(), limit)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list terminal relay entries", err)
	}
	defer rows.Close()

	return scanRelayEntries(rows)
}

// DeleteByIDs removes the given entries. Returns the number deleted.
func (r *RelayRepository) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx,
		`DELETE FROM relay_jobs WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete relay entries", err)
	}
	return int(tag.RowsAffected()), nil
}

// rowScanner is the subset of pgx.Rows needed by scanRelayEntries.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRelayEntries(rows rowScanner) ([]types.RelayEntry, error) {
	var entries []types.RelayEntry
	for rows.Next() {
		var e types.RelayEntry
		var source, status string
		if err := rows.Scan(&e.ID, &e.OrderHash, &source, &e.Target, &e.Maker,
			&e.OrderCreated, &e.Payload, &status, &e.AttemptCount,
			&e.NextAttemptAt, &e.LastError, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan relay entry", err)
		}
		e.Source = types.SourceKind(source)
		e.Status = types.RelayStatus(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating relay entries", err)
	}
	return entries, nil
}
