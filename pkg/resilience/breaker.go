package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned for calls rejected without invoking the
// processing unit.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// BreakerState is the circuit breaker's current state. At most one state
// holds at any instant.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker is a per-node circuit breaker.
//
// Closed counts failures per the configured threshold mode. Reaching the
// threshold opens the circuit: every call fails fast for OpenFor. After that
// duration a single trial call is admitted (half-open); its success closes
// the circuit, its failure reopens it and resets the timer.
type Breaker struct {
	mu sync.Mutex

	cfg         BreakerConfig
	state       BreakerState
	consecutive int
	failures    []time.Time
	openedAt    time.Time
	trialActive bool
	trialAt     time.Time

	now      func() time.Time
	onChange func(from, to BreakerState)
}

// NewBreaker creates a breaker in the Closed state.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// OnStateChange registers a callback invoked (outside the hot path lock is
// still held, so keep it cheap) on every state transition.
func (b *Breaker) OnStateChange(fn func(from, to BreakerState)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.onChange = fn
}

// WithClock overrides the time source, for tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.now = now

	return b
}

// Allow reports whether a call may proceed. It returns ErrCircuitOpen for
// rejected calls and advances Open to HalfOpen once the open duration has
// elapsed, admitting exactly one trial call.
func (b *Breaker) Allow() error {
	if !b.cfg.Enabled {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.OpenFor {
			return ErrCircuitOpen
		}

		b.transition(StateHalfOpen)
		b.trialActive = true
		b.trialAt = b.now()

		return nil
	case StateHalfOpen:
		// A trial whose result was never recorded (the caller died
		// mid-flight) must not wedge the breaker; after another OpenFor
		// the slot is handed to the next caller.
		if b.trialActive && b.now().Sub(b.trialAt) < b.cfg.OpenFor {
			return ErrCircuitOpen
		}

		b.trialActive = true
		b.trialAt = b.now()

		return nil
	default:
		return nil
	}
}

// RecordSuccess reports a successful call.
func (b *Breaker) RecordSuccess() {
	if !b.cfg.Enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.trialActive = false
		b.consecutive = 0
		b.failures = nil
		b.transition(StateClosed)
	case StateClosed:
		b.consecutive = 0
	case StateOpen:
	}
}

// RecordFailure reports a failed call.
func (b *Breaker) RecordFailure() {
	if !b.cfg.Enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.trialActive = false
		b.openedAt = b.now()
		b.transition(StateOpen)
	case StateClosed:
		if b.tripped() {
			b.openedAt = b.now()
			b.consecutive = 0
			b.failures = nil
			b.transition(StateOpen)
		}
	case StateOpen:
	}
}

// tripped records one failure and reports whether the threshold is reached.
// Caller holds the lock.
func (b *Breaker) tripped() bool {
	switch b.cfg.Mode {
	case ThresholdWindowed:
		now := b.now()
		cutoff := now.Add(-b.cfg.Window)

		kept := b.failures[:0]

		for _, at := range b.failures {
			if at.After(cutoff) {
				kept = append(kept, at)
			}
		}

		b.failures = append(kept, now)

		return len(b.failures) >= b.cfg.FailureThreshold
	default:
		b.consecutive++

		return b.consecutive >= b.cfg.FailureThreshold
	}
}

// State returns the current state without advancing it.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

// transition moves to a new state and fires the callback. Caller holds the
// lock.
func (b *Breaker) transition(to BreakerState) {
	from := b.state
	if from == to {
		return
	}

	b.state = to

	if b.onChange != nil {
		b.onChange(from, to)
	}
}
