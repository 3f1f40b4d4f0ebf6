package relay

import (
	"context"
	"log/slog"
	"time"

	"ordersync/internal/types"
)

// deliveryStore is the repository surface the worker needs.
type deliveryStore interface {
	ClaimDue(ctx context.Context, limit int) ([]types.RelayEntry, error)
	MarkSent(ctx context.Context, ids []string) error
	MarkRetry(ctx context.Context, id string, reason string, nextAttemptAt time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
	RequeueStale(ctx context.Context, cutoff time.Time) (int, error)
}

// staleClaimAge is how long a claimed entry may sit in delivering before the
// reaper assumes its worker died and returns it to pending.
const staleClaimAge = 5 * time.Minute

// deliverer sends a claimed batch downstream.
type deliverer interface {
	Deliver(ctx context.Context, entries []types.RelayEntry) error
}

// Metrics records relay delivery outcomes.
type Metrics interface {
	RecordRelayDelivery(ctx context.Context, sent, retried, failed int)
}

// NoopMetrics discards all measurements.
type NoopMetrics struct{}

func (NoopMetrics) RecordRelayDelivery(context.Context, int, int, int) {}

// Worker drains the relay queue: it claims due entries, delivers them to
// the downstream consumer in batches, and records the outcome. Delivery is
// at-least-once; an ambiguous failure (timeout after the consumer already
// processed the batch) is resolved by the consumer deduplicating on hash.
type Worker struct {
	store      deliveryStore
	downstream deliverer
	policy     RetryPolicy
	batchSize  int
	interval   time.Duration
	clock      types.Clock
	metrics    Metrics
	logger     *slog.Logger
}

// WorkerConfig configures a relay Worker.
type WorkerConfig struct {
	Store      deliveryStore
	Downstream deliverer
	Policy     RetryPolicy
	BatchSize  int
	Interval   time.Duration
	Clock      types.Clock
	Metrics    Metrics
	Logger     *slog.Logger
}

// NewWorker creates a relay Worker.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy = DefaultRetryPolicy
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NoopMetrics{}
	}
	return &Worker{
		store:      cfg.Store,
		downstream: cfg.Downstream,
		policy:     cfg.Policy,
		batchSize:  cfg.BatchSize,
		interval:   cfg.Interval,
		clock:      cfg.Clock,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// Run polls the queue until the context is cancelled. When a poll drains a
// full batch it immediately polls again, so a backlog clears at delivery
// speed rather than poll speed.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "relay worker started",
		"batch_size", w.batchSize,
		"poll_interval", w.interval.String())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	reap := time.NewTicker(staleClaimAge)
	defer reap.Stop()

	for {
		select {
		case <-reap.C:
			w.reapStale(ctx)
		default:
		}

		n, err := w.DeliverDue(ctx)
		if err != nil {
			w.logger.ErrorContext(ctx, "relay delivery poll failed", "error", err)
		}
		if n >= w.batchSize {
			continue
		}

		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "relay worker stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// DeliverDue claims and delivers one batch of due entries. Returns the
// number of entries claimed.
func (w *Worker) DeliverDue(ctx context.Context) (int, error) {
	entries, err := w.store.ClaimDue(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	if err := w.downstream.Deliver(ctx, entries); err != nil {
		retried, failed := w.rescheduleAll(ctx, entries, err)
		w.metrics.RecordRelayDelivery(ctx, 0, retried, failed)
		w.logger.WarnContext(ctx, "relay batch delivery failed",
			"count", len(entries),
			"retried", retried,
			"failed", failed,
			"error", err)
		return len(entries), nil
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if err := w.store.MarkSent(ctx, ids); err != nil {
		// The batch was delivered; the entries stay delivering and will be
		// swept back to pending by the reaper rather than redelivered here.
		w.logger.ErrorContext(ctx, "failed to mark relay entries sent", "error", err)
		return len(entries), err
	}

	w.metrics.RecordRelayDelivery(ctx, len(entries), 0, 0)
	w.logger.InfoContext(ctx, "relayed orders downstream", "count", len(entries))
	return len(entries), nil
}

// reapStale returns entries abandoned in delivering to pending.
func (w *Worker) reapStale(ctx context.Context) {
	cutoff := w.clock.Now().Add(-staleClaimAge)
	n, err := w.store.RequeueStale(ctx, cutoff)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to requeue stale relay entries", "error", err)
		return
	}
	if n > 0 {
		w.logger.WarnContext(ctx, "requeued stale relay entries", "count", n)
	}
}

// rescheduleAll returns every entry of a failed batch to pending with
// backoff, or marks it failed when its attempts are exhausted.
func (w *Worker) rescheduleAll(ctx context.Context, entries []types.RelayEntry, cause error) (retried, failed int) {
	now := w.clock.Now()
	for _, e := range entries {
		// AttemptCount counts completed attempts; this one makes it +1.
		if e.AttemptCount+1 >= w.policy.MaxAttempts {
			if err := w.store.MarkFailed(ctx, e.ID, cause.Error()); err != nil {
				w.logger.ErrorContext(ctx, "failed to mark relay entry failed",
					"id", e.ID, "error", err)
				continue
			}
			failed++
			w.logger.WarnContext(ctx, "relay entry exhausted its attempts",
				"id", e.ID,
				"order_hash", e.OrderHash,
				"attempts", e.AttemptCount+1)
			continue
		}

		next := now.Add(CalculateNextRetry(w.policy, e.AttemptCount))
		if err := w.store.MarkRetry(ctx, e.ID, cause.Error(), next); err != nil {
			w.logger.ErrorContext(ctx, "failed to schedule relay retry",
				"id", e.ID, "error", err)
			continue
		}
		retried++
	}
	return retried, failed
}
