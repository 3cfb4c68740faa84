package deploy

import "time"

// =============================================================================
// Retry Backoff Policy
// =============================================================================

// Backoff is a bounded exponential backoff policy for transient remote
// errors. The policy is a plain value so retry behavior is testable without
// sleeping.
type Backoff struct {
	// Attempts is the total number of tries, including the first one.
	Attempts int

	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
}

// DefaultBackoff returns the policy used when the caller does not override
// it: three attempts, 500ms doubling, capped at 5s.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  5 * time.Second,
	}
}

// Delay returns the wait after the given failed attempt (1-based). Attempt
// numbers at or past the limit return 0, meaning "do not retry".
//
// Example:
//
//	DefaultBackoff().Delay(1) // 500ms before attempt 2
//	DefaultBackoff().Delay(2) // 1s before attempt 3
//	DefaultBackoff().Delay(3) // 0, retries exhausted
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 || attempt >= b.Attempts {
		return 0
	}

	d := b.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.MaxDelay {
			return b.MaxDelay
		}
	}
	if d > b.MaxDelay {
		return b.MaxDelay
	}
	return d
}
