package activity

import "time"

// RetryPolicy bounds retries for retry-capable activities (escalation).
type RetryPolicy struct {
	// FirstInterval is the delay before the second attempt, in real time
	// (the configured time-unit duration already applied).
	FirstInterval time.Duration

	// MaxAttempts is the total attempt budget, first attempt included.
	MaxAttempts int
}

// Backoff returns the delay before the given 1-based attempt. Growth is
// linear: attempt 1 runs immediately, attempt n waits FirstInterval × (n−1),
// so with a first interval of 5 time-units the waits are 5 then 10.
// Monotonically non-decreasing.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return p.FirstInterval * time.Duration(attempt-1)
}

// Exhausted reports whether the attempt budget is spent after the given
// number of completed attempts.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}
