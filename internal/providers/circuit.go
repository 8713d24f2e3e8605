package providers

import (
	"sync"
	"sync/atomic"
	"time"
)

// CircuitBreaker detects a provider going unavailable after repeated
// consecutive failures, adapted from other_examples/thizplus-ku-directory's
// face_worker.go CircuitBreaker (there used to throttle a photo-processing
// worker; here it backs the "provider marked unavailable after repeated
// restarts within a window" requirement of spec §6).
type CircuitBreaker struct {
	failures     int32
	threshold    int32
	resetTimeout time.Duration
	lastFailure  time.Time
	mu           sync.RWMutex
}

// NewCircuitBreaker creates a breaker that opens after threshold consecutive
// failures and stops refusing calls once resetTimeout has passed since the
// last failure (half-open); the next recorded failure reopens it.
func NewCircuitBreaker(threshold int32, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{threshold: threshold, resetTimeout: resetTimeout}
}

// IsOpen reports whether calls should be refused.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	if atomic.LoadInt32(&cb.failures) >= cb.threshold {
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			return false
		}
		return true
	}
	return false
}

// RecordSuccess resets the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	atomic.StoreInt32(&cb.failures, 0)
}

// RecordFailure increments the failure count and marks the time of failure.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	atomic.AddInt32(&cb.failures, 1)
	cb.lastFailure = time.Now()
}

// Failures returns the current consecutive-failure count.
func (cb *CircuitBreaker) Failures() int32 {
	return atomic.LoadInt32(&cb.failures)
}

// StatusValue maps breaker state to a provider Status: open -> unavailable,
// some failures but still closed -> degraded, clean -> ready.
func (cb *CircuitBreaker) StatusValue() Status {
	if cb.IsOpen() {
		return StatusUnavailable
	}
	if cb.Failures() > 0 {
		return StatusDegraded
	}
	return StatusReady
}
