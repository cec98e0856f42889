// Package backoff provides exponential backoff with a ceiling for retry scheduling.
package backoff

import "time"

const maxShift = 62

// Exponential computes retry delays as base * 2^(retryCount-1), capped at Cap.
type Exponential struct {
	Base time.Duration
	Cap  time.Duration
}

// Delay returns the delay before the retry identified by retryCount.
// retryCount is 1-based: the first retry waits Base, the second 2*Base, and
// so on until Cap. Values below 1 are treated as 1.
func (b Exponential) Delay(retryCount int) time.Duration {
	if b.Base <= 0 {
		return 0
	}

	attempt := retryCount - 1
	if attempt < 0 {
		attempt = 0
	}

	if attempt > maxShift {
		return b.Cap
	}

	multiplier := int64(1) << attempt
	if b.Cap > 0 && int64(b.Base) > int64(b.Cap)/multiplier {
		return b.Cap
	}

	delay := time.Duration(int64(b.Base) * multiplier)
	if b.Cap > 0 && delay > b.Cap {
		return b.Cap
	}

	return delay
}

// NextRetryAt returns the absolute retry time for retryCount relative to now.
func (b Exponential) NextRetryAt(now time.Time, retryCount int) time.Time {
	return now.Add(b.Delay(retryCount))
}
