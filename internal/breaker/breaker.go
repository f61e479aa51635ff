// Package breaker provides a consecutive-failure circuit breaker that
// protects a failing resource (a dead network share, a systematically locked
// file set) from being hammered with further attempts.
package breaker

import (
	"sync"
	"time"
)

const (
	// DefaultThreshold is the consecutive-failure count that opens the breaker.
	DefaultThreshold = 10
	// DefaultCooldown is how long the breaker stays open after the most
	// recent failure.
	DefaultCooldown = 30 * time.Second
)

// CircuitBreaker counts consecutive failures of one class of operation and
// short-circuits further attempts once a threshold is reached. After the
// cool-down elapses callers may try again, but the failure counter only
// resets on a recorded success.
type CircuitBreaker struct {
	mu          sync.Mutex
	threshold   int
	cooldown    time.Duration
	failures    int
	lastFailure time.Time

	now func() time.Time // overridable for tests
}

// New creates a breaker. Non-positive arguments fall back to the defaults.
func New(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// RecordFailure notes one failed attempt.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.now()
}

// RecordSuccess fully resets the failure counter.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}

// IsOpen reports whether callers should treat the resource as unavailable
// without attempting the operation. The breaker auto-closes once the
// cool-down window since the last failure has passed.
func (b *CircuitBreaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures < b.threshold {
		return false
	}
	return b.now().Sub(b.lastFailure) < b.cooldown
}

// ConsecutiveFailures returns the current failure streak.
func (b *CircuitBreaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
