// Package breaker implements the per-adapter circuit breaker state
// machine from spec §4.3: CLOSED -> OPEN on failureThreshold consecutive
// failures, lazily OPEN -> HALF_OPEN after resetTimeoutMs, and a single
// HALF_OPEN probe that resolves to CLOSED or back to OPEN.
package breaker

import (
	"sync"
	"time"
)

// State is the breaker's tagged state.
type State string

const (
	Closed   State = "CLOSED"
	Open     State = "OPEN"
	HalfOpen State = "HALF_OPEN"
)

const (
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 60 * time.Second
)

// Breaker is a single adapter instance's circuit breaker. All mutation
// happens under its own lock; transitions are purely time-driven, no
// background goroutine is involved.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	resetTimeout     time.Duration

	state             State
	consecutiveFailures int
	openedAt          time.Time
	halfOpenProbeSent bool

	now func() time.Time
}

// Option configures a Breaker at construction.
type Option func(*Breaker)

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// New creates a Breaker in the CLOSED state.
func New(failureThreshold int, resetTimeout time.Duration, opts ...Option) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if resetTimeout <= 0 {
		resetTimeout = DefaultResetTimeout
	}
	b := &Breaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		state:            Closed,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// GetState returns the breaker's current state, lazily transitioning
// OPEN -> HALF_OPEN if resetTimeout has elapsed since openedAt.
func (b *Breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *Breaker) stateLocked() State {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.resetTimeout {
		b.state = HalfOpen
		b.halfOpenProbeSent = false
	}
	return b.state
}

// IsOpen reports whether calls should currently be skipped. A breaker
// that has lazily progressed to HALF_OPEN is not "open"; AllowProbe then
// admits exactly one probe.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked() == Open
}

// AllowProbe reports whether the caller may attempt a HALF_OPEN probe,
// and marks one as in flight if so. Only meaningful in HALF_OPEN; CLOSED
// calls are always allowed via IsOpen returning false.
func (b *Breaker) AllowProbe() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stateLocked() != HalfOpen {
		return true
	}
	if b.halfOpenProbeSent {
		return false
	}
	b.halfOpenProbeSent = true
	return true
}

// RecordSuccess resets the failure counter and, from HALF_OPEN, closes
// the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.state = Closed
	b.halfOpenProbeSent = false
}

// RecordFailure increments the consecutive-failure counter and opens the
// breaker once failureThreshold is reached; a failed HALF_OPEN probe
// reopens immediately without needing to re-reach the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case HalfOpen:
		b.state = Open
		b.openedAt = b.now()
		b.halfOpenProbeSent = false
	default:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			b.state = Open
			b.openedAt = b.now()
		}
	}
}
