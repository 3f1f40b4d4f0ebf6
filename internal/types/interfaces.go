package types

import "time"

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// SecretString wraps sensitive configuration values (database URLs, API
// keys) so they cannot leak into logs via %v formatting.
type SecretString string

// String implements fmt.Stringer with a redacted representation.
func (SecretString) String() string { return "[REDACTED]" }

// Reveal returns the underlying secret value for actual use.
func (s SecretString) Reveal() string { return string(s) }
