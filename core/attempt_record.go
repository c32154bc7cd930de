package core

import "time"

// DefaultRateLimitWindow bounds how long failed auth attempts count
// against a client.
const DefaultRateLimitWindow = 15 * time.Minute

// AttemptRecord counts failed authentication attempts from one client
// inside a rolling window. Construct records through the New functions
// so ResetAt is set.
type AttemptRecord struct {
	// Count is the number of failures seen in the current window.
	Count int

	// ResetAt is when the window expires and counting starts over.
	ResetAt time.Time
}

// NewAttemptRecord starts a window of the default length with one
// failure counted.
func NewAttemptRecord() AttemptRecord {
	return NewAttemptRecordWithWindow(DefaultRateLimitWindow)
}

// NewAttemptRecordWithWindow starts a window of the given length with
// one failure counted.
func NewAttemptRecordWithWindow(window time.Duration) AttemptRecord {
	return AttemptRecord{Count: 1, ResetAt: time.Now().Add(window)}
}

// ShouldReset reports whether the window has expired.
func (a AttemptRecord) ShouldReset() bool {
	return time.Now().After(a.ResetAt)
}

// IsBlocked reports whether the count has reached maxAttempts.
func (a AttemptRecord) IsBlocked(maxAttempts int) bool {
	return a.Count >= maxAttempts
}

// TimeUntilReset returns how long until the window expires, or zero
// when it already has.
func (a AttemptRecord) TimeUntilReset() time.Duration {
	if remaining := time.Until(a.ResetAt); remaining > 0 {
		return remaining
	}
	return 0
}

// Increment returns the record with one more failure counted. An
// expired window is discarded and a fresh default-length one started.
func (a AttemptRecord) Increment() AttemptRecord {
	if a.ShouldReset() {
		return NewAttemptRecord()
	}
	a.Count++
	return a
}
