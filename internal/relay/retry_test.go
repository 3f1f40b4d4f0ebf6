package relay

import (
	"testing"
	"time"
)

func TestCalculateNextRetry_GrowsExponentially(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:   5,
		BaseDelay:     2 * time.Second,
		MaxDelay:      60 * time.Second,
		BackoffFactor: 4.0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 8 * time.Second},
		{2, 32 * time.Second},
		{3, 60 * time.Second}, // 128s clamped
		{10, 60 * time.Second},
	}
	for _, tt := range tests {
		if got := CalculateNextRetry(policy, tt.attempt); got != tt.want {
			t.Errorf("attempt %d: got %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestCalculateNextRetry_NegativeAttemptUsesBase(t *testing.T) {
	if got := CalculateNextRetry(DefaultRetryPolicy, -3); got != DefaultRetryPolicy.BaseDelay {
		t.Errorf("got %s, want base delay %s", got, DefaultRetryPolicy.BaseDelay)
	}
}

func TestCalculateNextRetry_OverflowClampsToMax(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:   100,
		BaseDelay:     time.Second,
		MaxDelay:      time.Minute,
		BackoffFactor: 10.0,
	}
	// 10^50 seconds overflows time.Duration; the clamp must still hold.
	if got := CalculateNextRetry(policy, 50); got != time.Minute {
		t.Errorf("got %s, want %s", got, time.Minute)
	}
}
