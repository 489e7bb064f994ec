package transport

import (
	"sync"
	"time"

	"github.com/objstream/objstream/pkg/errors"
)

// BreakerState represents the state of the circuit breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker.
	FailureThreshold int

	// Interval resets the failure count while closed.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
}

// Breaker is a circuit breaker guarding the transport. While open, calls
// fail fast with a non-retryable BREAKER_OPEN error instead of hitting a
// store that is known to be down.
type Breaker struct {
	config BreakerConfig

	mu           sync.Mutex
	state        BreakerState
	failures     int
	lastFailure  time.Time
	lastStateChg time.Time
}

// NewBreaker creates a circuit breaker, filling zero config values with
// defaults.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.Interval <= 0 {
		config.Interval = 60 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Breaker{config: config, state: BreakerClosed, lastStateChg: time.Now()}
}

// Allow reports whether a call may proceed. When the breaker is open and
// its timeout has not elapsed, it returns a BREAKER_OPEN error.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if time.Since(b.lastStateChg) >= b.config.Timeout {
			b.transition(BreakerHalfOpen)
			return nil
		}
		return errors.New(errors.ErrCodeBreakerOpen, "transport circuit breaker is open")
	case BreakerClosed:
		if b.failures > 0 && time.Since(b.lastFailure) >= b.config.Interval {
			b.failures = 0
		}
	}
	return nil
}

// RecordSuccess notes a successful call, closing a half-open breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state != BreakerClosed {
		b.transition(BreakerClosed)
	}
}

// RecordFailure notes a failed call, tripping the breaker at the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()
	if b.state == BreakerHalfOpen || b.failures >= b.config.FailureThreshold {
		b.transition(BreakerOpen)
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(s BreakerState) {
	b.state = s
	b.lastStateChg = time.Now()
	if s == BreakerClosed {
		b.failures = 0
	}
}
