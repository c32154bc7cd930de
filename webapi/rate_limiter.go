// Package webapi provides the HTTP transport for the generation service.
// This file contains the rate limiter molecule that protects the bearer
// token check against brute force attacks.
package webapi

import (
	"context"
	"sync"
	"time"

	"sdserve/core"
)

// RateLimiter blocks clients that keep failing the bearer token check.
// Failed attempts are counted per client IP inside a rolling window;
// once the budget is spent the IP stays blocked until the block span
// runs out. A successful authentication wipes the client's slate.
//
// This is a molecule over the core.AttemptRecord atom. All methods are
// safe for concurrent use.
type RateLimiter struct {
	mu          sync.RWMutex
	attempts    map[string]core.AttemptRecord
	maxAttempts int
	window      time.Duration
	block       time.Duration
}

// NewRateLimiter creates a limiter that blocks after maxAttempts
// failures. The window and block spans arrive minute-denominated
// because that is how AuthConfig carries them.
func NewRateLimiter(maxAttempts, windowMinutes, blockMinutes int) *RateLimiter {
	return &RateLimiter{
		attempts:    make(map[string]core.AttemptRecord),
		maxAttempts: maxAttempts,
		window:      time.Duration(windowMinutes) * time.Minute,
		block:       time.Duration(blockMinutes) * time.Minute,
	}
}

// Allow reports whether an IP may attempt authentication. A blocked IP
// gets false along with how long the block still has to run.
func (r *RateLimiter) Allow(ip string) (bool, time.Duration) {
	r.mu.RLock()
	record, ok := r.attempts[ip]
	r.mu.RUnlock()

	if !ok || record.ShouldReset() {
		return true, 0
	}
	if record.IsBlocked(r.maxAttempts) {
		return false, record.TimeUntilReset()
	}
	return true, 0
}

// RecordAttempt counts one failed authentication from an IP. The
// attempt that exhausts the budget starts the block, so the record's
// expiry moves from the counting window to the block span.
func (r *RateLimiter) RecordAttempt(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.attempts[ip]
	if !ok || record.ShouldReset() {
		r.attempts[ip] = core.NewAttemptRecordWithWindow(r.window)
		return
	}

	record.Count++
	if record.Count == r.maxAttempts {
		record.ResetAt = time.Now().Add(r.block)
	}
	r.attempts[ip] = record
}

// Reset clears the attempt record for an IP after a successful
// authentication.
func (r *RateLimiter) Reset(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attempts, ip)
}

// Cleanup drops expired records and returns how many were dropped.
func (r *RateLimiter) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := len(r.attempts)
	for ip, record := range r.attempts {
		if record.ShouldReset() {
			delete(r.attempts, ip)
		}
	}
	return before - len(r.attempts)
}

// StartCleanupTicker runs Cleanup every interval on a background
// goroutine until ctx is cancelled. Without it the attempts map grows
// with every distinct client that ever fails.
func (r *RateLimiter) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Cleanup()
			}
		}
	}()
}

// Count returns the number of IPs currently tracked.
func (r *RateLimiter) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.attempts)
}

// GetAttemptCount returns the failures counted against an IP in the
// current window, or 0 once the window has expired.
func (r *RateLimiter) GetAttemptCount(ip string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if record, ok := r.attempts[ip]; ok && !record.ShouldReset() {
		return record.Count
	}
	return 0
}
