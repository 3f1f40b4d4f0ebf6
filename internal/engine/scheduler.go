package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ordersync/internal/connector"
	"ordersync/internal/types"
)

// Scheduler is the time-driven trigger: one ticker per registered feed. On
// each tick it attempts the feed's realtime lease and, on success, submits
// one unit of work to the job queue with the lease token attached. A failed
// acquire means another instance (or a chained cycle from the previous tick)
// owns the feed — the tick simply no-ops.
//
// Feeds fail independently; one feed's trigger error never blocks another's.
type Scheduler struct {
	registry *connector.Registry
	locks    LockManager
	jobs     JobEnqueuer
	logger   *slog.Logger
}

// SchedulerConfig holds the dependencies for creating a Scheduler.
type SchedulerConfig struct {
	Registry *connector.Registry
	Locks    LockManager
	Jobs     JobEnqueuer
	Logger   *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		registry: cfg.Registry,
		locks:    cfg.Locks,
		jobs:     cfg.Jobs,
		logger:   logger,
	}
}

// Run starts one trigger loop per feed and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, feed := range s.registry.All() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runFeed(ctx, feed)
		}()
	}
	wg.Wait()
}

// runFeed fires the realtime trigger for one feed at its configured
// interval.
func (s *Scheduler) runFeed(ctx context.Context, feed connector.Feed) {
	interval := feed.Schedule.RealtimeInterval
	if interval <= 0 {
		interval = connector.DefaultSchedule.RealtimeInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	source := feed.Connector.Source()
	s.logger.InfoContext(ctx, "feed trigger started",
		"source", string(source),
		"interval", interval.String(),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.trigger(ctx, feed)
		}
	}
}

// trigger performs one Idle → LockPending transition: acquire, then submit.
func (s *Scheduler) trigger(ctx context.Context, feed connector.Feed) {
	source := feed.Connector.Source()
	lockName := types.LockName(source, types.ModeRealtime)

	token, ok, err := s.locks.Acquire(ctx, lockName, feed.Schedule.RealtimeLease)
	if err != nil {
		// Fail-closed: no work proceeds without a lock.
		s.logger.ErrorContext(ctx, "trigger lock acquire failed",
			"source", string(source),
			"error", err,
		)
		return
	}
	if !ok {
		return
	}

	msg := types.NewSyncJob(source, types.ModeRealtime)
	msg.LockToken = token

	if err := s.jobs.Enqueue(ctx, msg, 0); err != nil {
		s.logger.ErrorContext(ctx, "trigger enqueue failed, releasing lease",
			"source", string(source),
			"error", err,
		)
		if relErr := s.locks.Release(ctx, lockName, token); relErr != nil {
			s.logger.WarnContext(ctx, "lease release failed, will expire via TTL",
				"source", string(source),
				"error", relErr,
			)
		}
	}
}
