package relay

import (
	"context"
	"log/slog"

	"ordersync/internal/types"
)

// enqueuer is the repository surface the publisher needs.
type enqueuer interface {
	EnqueueBatch(ctx context.Context, orders []types.NormalizedOrder) (int, error)
}

// Publisher enqueues newly ingested orders on the durable relay queue.
// Delivery itself happens asynchronously in the relay worker, so a slow or
// unreachable downstream never stalls an ingestion cycle.
type Publisher struct {
	repo   enqueuer
	logger *slog.Logger
}

// NewPublisher creates a Publisher over the given relay repository.
func NewPublisher(repo enqueuer, logger *slog.Logger) *Publisher {
	return &Publisher{repo: repo, logger: logger}
}

// Publish queues the given orders for downstream delivery. Orders whose hash
// is already queued are skipped by the repository.
func (p *Publisher) Publish(ctx context.Context, orders []types.NormalizedOrder) error {
	if len(orders) == 0 {
		return nil
	}

	enqueued, err := p.repo.EnqueueBatch(ctx, orders)
	if err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "queued orders for relay",
		"requested", len(orders),
		"enqueued", enqueued)
	return nil
}
