package connector

import (
	"time"

	"ordersync/internal/types"
)

// Schedule holds the per-feed polling cadence and lease durations. Lease
// TTLs must be comfortably longer than the job timeout so an abandoned
// cycle's lease still expires and unblocks the next trigger.
type Schedule struct {
	// RealtimeInterval is the wall-clock trigger period for tailing.
	RealtimeInterval time.Duration

	// RealtimeLease bounds one realtime cycle (single page).
	RealtimeLease time.Duration

	// BackfillLease is long because backfill ranges span many pages.
	BackfillLease time.Duration
}

// DefaultSchedule is the cadence feeds use unless registered with an
// override.
var DefaultSchedule = Schedule{
	RealtimeInterval: 5 * time.Second,
	RealtimeLease:    2 * time.Minute,
	BackfillLease:    10 * time.Minute,
}

// Feed pairs a connector with its schedule.
type Feed struct {
	Connector Connector
	Schedule  Schedule
}

// Registry is the catalogue of enabled feeds. It is built once at startup
// and read-only afterwards.
type Registry struct {
	feeds map[types.SourceKind]Feed
	order []types.SourceKind
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{feeds: make(map[types.SourceKind]Feed)}
}

// Register adds a feed with the default schedule.
func (r *Registry) Register(c Connector) {
	r.RegisterWithSchedule(c, DefaultSchedule)
}

// RegisterWithSchedule adds a feed with an explicit schedule. Registering
// the same source twice replaces the earlier entry.
func (r *Registry) RegisterWithSchedule(c Connector, s Schedule) {
	if _, exists := r.feeds[c.Source()]; !exists {
		r.order = append(r.order, c.Source())
	}
	r.feeds[c.Source()] = Feed{Connector: c, Schedule: s}
}

// Get returns the feed for a source kind.
func (r *Registry) Get(source types.SourceKind) (Feed, bool) {
	f, ok := r.feeds[source]
	return f, ok
}

// All returns every registered feed in registration order.
func (r *Registry) All() []Feed {
	out := make([]Feed, 0, len(r.order))
	for _, s := range r.order {
		out = append(out, r.feeds[s])
	}
	return out
}
