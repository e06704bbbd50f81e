// Package breaker implements a per-host three-state circuit breaker
// guarding the fetch front-end: same state machine and injectable-clock
// pattern as a single-service breaker, generalized to a lazily-created
// breaker per normalized host.
package breaker

import (
	"sync"
	"time"
)

// State is one of the three circuit breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Breaker is a single host's circuit breaker.
type Breaker struct {
	mu              sync.Mutex
	state           State
	failures        int
	failureThreshold int
	recoveryTimeout time.Duration
	lastFailure     time.Time
	now             func() time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold overrides the default of 3 consecutive failures.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) { b.failureThreshold = n }
}

// WithRecoveryTimeout overrides the default of 1 hour.
func WithRecoveryTimeout(d time.Duration) Option {
	return func(b *Breaker) { b.recoveryTimeout = d }
}

// WithClock injects a clock function for deterministic tests.
func WithClock(fn func() time.Time) Option {
	return func(b *Breaker) { b.now = fn }
}

// New creates a Breaker in the CLOSED state.
func New(opts ...Option) *Breaker {
	b := &Breaker{
		state:            Closed,
		failureThreshold: 3,
		recoveryTimeout:  time.Hour,
		now:              time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// State reports the current state after applying any pending OPEN →
// HALF_OPEN transition.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeProbe()
	return b.state
}

// IsAllowable reports whether a call may proceed. A probing call that
// flips OPEN → HALF_OPEN returns true on that very call, so the caller
// performing the probe always gets to make it.
func (b *Breaker) IsAllowable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeProbe()
	return b.state != Open
}

// RecordSuccess closes the breaker from HALF_OPEN, or resets the
// failure count if CLOSED; it has no effect while OPEN.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		b.state = Closed
		b.failures = 0
	case Closed:
		b.failures = 0
	}
}

// RecordFailure increments the failure count and trips the breaker open
// once the threshold is reached (or immediately, from HALF_OPEN).
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailure = b.now()

	if b.state == HalfOpen {
		b.state = Open
		return
	}

	b.failures++
	if b.state == Closed && b.failures >= b.failureThreshold {
		b.state = Open
	}
}

// maybeProbe transitions OPEN → HALF_OPEN once recoveryTimeout has
// elapsed since the last recorded failure. Must be called with mu held.
func (b *Breaker) maybeProbe() {
	if b.state == Open && b.now().Sub(b.lastFailure) > b.recoveryTimeout {
		b.state = HalfOpen
	}
}

// Table keys Breakers by normalized host, creating them lazily.
type Table struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	opts     []Option
}

// NewTable creates an empty breaker table. opts apply to every Breaker
// the table lazily creates.
func NewTable(opts ...Option) *Table {
	return &Table{breakers: make(map[string]*Breaker), opts: opts}
}

// Get returns the Breaker for key, creating it if absent.
func (t *Table) Get(key string) *Breaker {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.breakers[key]
	if !ok {
		b = New(t.opts...)
		t.breakers[key] = b
	}
	return b
}
