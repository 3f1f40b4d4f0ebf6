// Package relay implements the best-effort hand-off of newly ingested
// orders to the downstream consumer: a durable Postgres-backed queue, a
// delivery worker with bounded exponential-backoff retries, and a compactor
// that archives and purges terminal entries. Relay is a side channel —
// nothing here ever rolls back or blocks order persistence.
package relay

import "time"

// RetryPolicy defines the exponential backoff parameters for delivery
// retries.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy is the delivery policy for the downstream consumer:
// three attempts with exponential backoff. The consumer is expected to be
// idempotent on the order hash, so at-least-once delivery is safe.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:   3,
	BaseDelay:     2 * time.Second,
	MaxDelay:      60 * time.Second,
	BackoffFactor: 4.0,
}

// CalculateNextRetry computes the delay before the next retry attempt using
// exponential backoff: delay = min(BaseDelay * BackoffFactor^attempt,
// MaxDelay).
func CalculateNextRetry(policy RetryPolicy, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(policy.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= policy.BackoffFactor
	}

	d := time.Duration(delay)
	if d > policy.MaxDelay || d < 0 {
		d = policy.MaxDelay
	}
	return d
}
