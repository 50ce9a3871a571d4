// Package resilience protects calls to external vector store backends.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open) that
// stops hammering a backend which keeps failing. [Group] composes the
// configured backends, each behind its own breaker, and fails over from the
// primary to the operator-configured fallback. Nothing here retries a call
// against the same backend.
//
// Everything here is safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is
// open and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	StateClosed   State = iota // calls pass; consecutive failures are counted
	StateOpen                  // calls fail fast with ErrCircuitOpen
	StateHalfOpen              // a limited number of probe calls pass
)

var stateNames = [...]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero fields take the
// defaults noted.
type CircuitBreakerConfig struct {
	// Name identifies the backend in logs and OnStateChange.
	Name string

	// MaxFailures consecutive failures open the breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long an open breaker waits before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax successful probes close the breaker; it is also the number
	// of probes allowed in flight. Default: 1.
	HalfOpenMax int

	// IsFailure decides whether an error counts against the backend.
	// Default: everything except the caller's own cancellation.
	IsFailure func(error) bool

	// OnStateChange runs after each transition, outside the breaker's lock.
	OnStateChange func(name string, from, to State)
}

func (c *CircuitBreakerConfig) applyDefaults() {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMax <= 0 {
		c.HalfOpenMax = 1
	}
	if c.IsFailure == nil {
		c.IsFailure = func(err error) bool { return !errors.Is(err, context.Canceled) }
	}
}

// CircuitBreaker stops calling a backend that keeps failing. Each state is a
// new generation; a call that finishes after the breaker has moved on is not
// counted, so a slow success from before an outage cannot close it.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu        sync.Mutex
	state     State
	gen       uint64
	failures  int
	openedAt  time.Time
	probes    int
	successes int
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cfg.applyDefaults()
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// ticket records the generation a call was admitted in.
type ticket struct {
	gen   uint64
	probe bool
}

// transition carries the side effects of a state change until the lock is
// released.
type transition func()

func (t transition) fire() {
	if t != nil {
		t()
	}
}

// Execute runs fn unless the breaker is open or out of probe slots, in which
// case it returns [ErrCircuitOpen]. A ctx that is already done is returned
// without touching the breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	cb.settle(t, err)
	return err
}

func (cb *CircuitBreaker) admit() (ticket, error) {
	cb.mu.Lock()
	var moved transition
	if cb.state == StateOpen && cb.cooled() {
		moved = cb.move(StateHalfOpen)
	}
	switch {
	case cb.state == StateOpen,
		cb.state == StateHalfOpen && cb.probes >= cb.cfg.HalfOpenMax:
		cb.mu.Unlock()
		return ticket{}, ErrCircuitOpen
	}
	t := ticket{gen: cb.gen, probe: cb.state == StateHalfOpen}
	if t.probe {
		cb.probes++
	}
	cb.mu.Unlock()
	moved.fire()
	return t, nil
}

func (cb *CircuitBreaker) settle(t ticket, err error) {
	cb.mu.Lock()
	var moved transition
	if t.gen == cb.gen {
		switch {
		case err == nil && t.probe:
			cb.successes++
			if cb.successes >= cb.cfg.HalfOpenMax {
				moved = cb.move(StateClosed)
			}
		case err == nil:
			cb.failures = 0
		case !cb.cfg.IsFailure(err):
			if t.probe {
				cb.probes--
			}
		case t.probe:
			moved = cb.move(StateOpen)
		default:
			cb.failures++
			if cb.failures >= cb.cfg.MaxFailures {
				moved = cb.move(StateOpen)
			}
		}
	}
	cb.mu.Unlock()
	moved.fire()
}

// move starts a new generation in state to. Must be called with cb.mu held.
func (cb *CircuitBreaker) move(to State) transition {
	from := cb.state
	if from == to {
		return nil
	}
	cb.state = to
	cb.gen++
	cb.failures, cb.probes, cb.successes = 0, 0, 0
	if to == StateOpen {
		cb.openedAt = cb.now()
	}

	name, hook := cb.cfg.Name, cb.cfg.OnStateChange
	return func() {
		level := slog.LevelInfo
		if to == StateOpen {
			level = slog.LevelWarn
		}
		slog.Log(context.Background(), level, "circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		if hook != nil {
			hook(name, from, to)
		}
	}
}

func (cb *CircuitBreaker) cooled() bool {
	return cb.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout
}

// State reports the current state. An open breaker past its reset timeout
// reports [StateHalfOpen] although the move happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cooled() {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	moved := cb.move(StateClosed)
	cb.failures = 0
	cb.mu.Unlock()
	moved.fire()
}
