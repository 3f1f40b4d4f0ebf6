package types

import "time"

// RelayStatus is the lifecycle state of a relay queue entry.
type RelayStatus string

const (
	// RelayPending means the entry is waiting for a delivery attempt.
	RelayPending RelayStatus = "pending"

	// RelayDelivering means a worker has claimed the entry.
	RelayDelivering RelayStatus = "delivering"

	// RelaySent means the downstream consumer acknowledged the entry.
	RelaySent RelayStatus = "sent"

	// RelayFailed means delivery attempts are exhausted. Terminal.
	RelayFailed RelayStatus = "failed"
)

// Terminal reports whether the status is an end state eligible for
// compaction.
func (s RelayStatus) Terminal() bool {
	return s == RelaySent || s == RelayFailed
}

// RelayEntry is one order queued for best-effort forwarding to the
// downstream consumer. Entries are keyed by order hash so a re-ingested
// order is never relayed twice.
type RelayEntry struct {
	ID            string      `json:"id"`
	OrderHash     string      `json:"order_hash"`
	Source        SourceKind  `json:"source"`
	Target        string      `json:"target"`
	Maker         string      `json:"maker"`
	OrderCreated  time.Time   `json:"order_created_at"`
	Payload       Payload     `json:"payload"`
	Status        RelayStatus `json:"status"`
	AttemptCount  int         `json:"attempt_count"`
	NextAttemptAt time.Time   `json:"next_attempt_at"`
	LastError     string      `json:"last_error,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}
