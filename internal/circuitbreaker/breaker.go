// Package circuitbreaker provides a per-key circuit breaker with
// closed → open → half-open state transitions.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbd888/saathi/internal/apperr"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal: requests flow through
	StateOpen                  // Tripped: requests are rejected
	StateHalfOpen              // Probing: every request is allowed through; the number of probes is not limited
)

// String returns the state name.
func (s State) String() string {
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

var cbStateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "saathi",
	Subsystem: "circuitbreaker",
	Name:      "state_transitions_total",
	Help:      "Circuit breaker state transitions by key, from-state, and to-state.",
}, []string{"key", "from_state", "to_state"})

func init() {
	prometheus.MustRegister(cbStateTransitions)
}

// entry tracks per-key circuit state.
type entry struct {
	state       State
	failures    int
	successes   int // consecutive successes while half-open
	lastFailure time.Time
}

// Breaker is a per-key circuit breaker (spec §4.1 / §5). It trips open
// after failureThreshold consecutive failures, waits recoveryTimeout
// before probing, and requires successThreshold consecutive probe
// successes in half-open before closing again. A single probe failure
// in half-open reopens the circuit immediately.
type Breaker struct {
	mu               sync.Mutex
	entries          map[string]*entry
	name             string // dependency name, used in apperr details
	failureThreshold int
	recoveryTimeout  time.Duration
	successThreshold int
	onTransition     func(key string, from, to State)
}

// New creates a circuit breaker identified by name (e.g. "payments",
// "messaging", "llm", "blockchain") for use in error details and metrics.
func New(name string, failureThreshold, successThreshold int, recoveryTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if successThreshold <= 0 {
		successThreshold = 2
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 30 * time.Second
	}
	return &Breaker{
		entries:          make(map[string]*entry),
		name:             name,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		recoveryTimeout:  recoveryTimeout,
	}
}

// OnTransition sets a callback invoked on state changes (for metrics).
func (b *Breaker) OnTransition(fn func(key string, from, to State)) {
	b.mu.Lock()
	b.onTransition = fn
	b.mu.Unlock()
}

// Allow returns nil if a request to key should be allowed, or a
// *apperr.Error of KindCircuitOpen otherwise. If the circuit is open and
// recoveryTimeout has elapsed, it transitions to half-open and allows
// the probe through.
func (b *Breaker) Allow(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return nil // no entry = closed
	}

	switch e.state {
	case StateClosed:
		return nil
	case StateOpen:
		elapsed := time.Since(e.lastFailure)
		if elapsed >= b.recoveryTimeout {
			b.transition(e, key, StateHalfOpen)
			return nil
		}
		retryAfter := int((b.recoveryTimeout - elapsed).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		return apperr.CircuitOpen(b.name+":"+key, retryAfter)
	case StateHalfOpen:
		return nil // allow concurrent probes; successThreshold gates the close
	default:
		return nil
	}
}

// RecordSuccess records a successful call. While half-open it counts
// toward successThreshold before the circuit closes; while closed it
// resets the failure count.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return
	}

	if e.state == StateHalfOpen {
		e.successes++
		if e.successes >= b.successThreshold {
			b.transition(e, key, StateClosed)
			e.successes = 0
		}
	}
	e.failures = 0
}

// RecordFailure records a failed call. A probe failure while half-open
// reopens the circuit immediately; a run of failureThreshold consecutive
// failures while closed trips it open.
func (b *Breaker) RecordFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		e = &entry{state: StateClosed}
		b.entries[key] = e
	}

	e.failures++
	e.lastFailure = time.Now()

	if e.state == StateHalfOpen {
		e.successes = 0
		b.transition(e, key, StateOpen)
		return
	}

	if e.state == StateClosed && e.failures >= b.failureThreshold {
		b.transition(e, key, StateOpen)
	}
}

// State returns the current state for a key. Returns StateClosed for unknown keys.
func (b *Breaker) State(key string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return StateClosed
	}
	return e.state
}

// transition changes state and fires the callback if set.
// Caller must hold b.mu.
func (b *Breaker) transition(e *entry, key string, to State) {
	from := e.state
	if from == to {
		return
	}
	e.state = to
	cbStateTransitions.WithLabelValues(key, from.String(), to.String()).Inc()
	if b.onTransition != nil {
		fn := b.onTransition
		go fn(key, from, to)
	}
}
