package db

import (
	"context"
	"encoding/json"
	"time"

	"ordersync/internal/types"
)

// OrderRepository is the ingestion sink: it owns all write access to the
// orders table. The table is keyed by content hash:
//
//	orders(hash text PRIMARY KEY, target text, maker text,
//	       created_at timestamptz, data jsonb, source text,
//	       inserted_at timestamptz DEFAULT now())
//
// Conflict policy is insert-or-ignore: the first-seen payload wins and
// re-processing is side-effect-free. The RETURNING clause is the idempotence
// oracle — it yields exactly the hashes that were newly inserted, which the
// engine uses both to decide what to relay and to detect backfill
// termination.
type OrderRepository struct {
	db DBTX
}

// NewOrderRepository creates an OrderRepository backed by the given
// connection (pool or transaction).
func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

// UpsertBatch bulk-inserts normalized orders, ignoring rows whose hash is
// already stored, and returns the set of newly-inserted hashes. The result
// is exact, not an estimate: inserting the same batch twice returns the full
// hash set the first time and an empty set the second.
//
// The batch is written in a single statement using unnest so the oracle
// reflects one atomic insert; a failure persists nothing from the batch.
func (r *OrderRepository) UpsertBatch(ctx context.Context, orders []types.NormalizedOrder) (map[string]struct{}, error) {
	if len(orders) == 0 {
		return map[string]struct{}{}, nil
	}

	hashes := make([]string, len(orders))
	targets := make([]string, len(orders))
	makers := make([]string, len(orders))
	createdAts := make([]time.Time, len(orders))
	payloads := make([]string, len(orders))
	sources := make([]string, len(orders))

	for i, o := range orders {
		hashes[i] = o.Hash
		targets[i] = o.Target
		makers[i] = o.Maker
		createdAts[i] = o.CreatedAt.UTC()
		sources[i] = string(o.Source)

		data, err := json.Marshal(o.Payload)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal order payload", err)
		}
		payloads[i] = string(data)
	}

	rows, err := r.db.Query(ctx,
		`INSERT INTO orders (hash, target, maker, created_at, data, source)
		 SELECT * FROM unnest(
		   $1::text[], $2::text[], $3::text[],
		   $4::timestamptz[], $5::jsonb[], $6::text[]
		 )
		 ON CONFLICT (hash) DO NOTHING
		 RETURNING hash`,
		hashes, targets, makers, createdAts, payloads, sources)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert order batch", err)
	}
	defer rows.Close()

	inserted := make(map[string]struct{})
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan inserted hash", err)
		}
		inserted[hash] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating inserted hashes", err)
	}

	return inserted, nil
}
