package types

import (
	"time"

	"github.com/google/uuid"
)

// SyncJobMessage is one unit of sync work carried on the job queue. Jobs are
// immutable value records: progress is expressed by enqueueing a new message
// with an updated cursor/window, never by mutating an existing one.
type SyncJobMessage struct {
	// JobID uniquely identifies this job instance for logging.
	JobID string `json:"job_id"`

	// TraceID ties a backfill chain (or a realtime burst) together in logs.
	// Continuation jobs inherit the trace ID of the job that spawned them.
	TraceID string `json:"trace_id"`

	Source SourceKind `json:"source"`
	Mode   SyncMode   `json:"mode"`

	// Cursor is the connector-defined progress marker to resume from.
	// Empty means "start from the feed's initial position" for the mode.
	Cursor string `json:"cursor,omitempty"`

	// WindowStart/WindowEnd bound a backfill job to one time window.
	// Nil for realtime jobs and for cursor-only backfill feeds.
	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`

	// LockToken is the owner token of the lease acquired by the trigger, so
	// the worker that executes the job can extend or release it. Empty when
	// the worker is expected to acquire the lease itself (backfill).
	LockToken string `json:"lock_token,omitempty"`

	// Attempt counts continuation depth for backfill chains. It is a safety
	// bound against runaway chains, not a retry counter; queue-level retries
	// redeliver the same message unchanged.
	Attempt int `json:"attempt"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewSyncJob constructs a realtime or backfill job with fresh identifiers.
func NewSyncJob(source SourceKind, mode SyncMode) SyncJobMessage {
	return SyncJobMessage{
		JobID:      uuid.New().String(),
		TraceID:    uuid.New().String(),
		Source:     source,
		Mode:       mode,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Continuation derives the next job in a backfill chain: same trace, window,
// mode, and lease token, fresh job ID, updated cursor, incremented attempt.
// The lease token rides along so the chain holds one long lease instead of
// re-acquiring per page.
func (m SyncJobMessage) Continuation(cursor string) SyncJobMessage {
	next := m
	next.JobID = uuid.New().String()
	next.Cursor = cursor
	next.Attempt = m.Attempt + 1
	next.EnqueuedAt = time.Now().UTC()
	return next
}

// Validate checks that the message is routable.
func (m *SyncJobMessage) Validate() error {
	if !m.Source.Valid() {
		return NewAppError(ErrCodeValidationInvalidSource, "unknown source kind", nil)
	}
	if !m.Mode.Valid() {
		return NewAppError(ErrCodeValidationInvalidMode, "unknown sync mode", nil)
	}
	if (m.WindowStart == nil) != (m.WindowEnd == nil) {
		return NewAppError(ErrCodeValidationTimeWindow, "window start and end must be set together", nil)
	}
	if m.WindowStart != nil && !m.WindowEnd.After(*m.WindowStart) {
		return NewAppError(ErrCodeValidationTimeWindow, "window end must be after window start", nil)
	}
	return nil
}
