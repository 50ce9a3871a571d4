package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every member of a [Group] fails or has an
// open circuit breaker.
var ErrAllFailed = errors.New("resilience: all backends failed")

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// Group holds a primary backend and optional fallbacks of the same type, each
// behind a dedicated [CircuitBreaker]. Members are tried in registration
// order; a failing or tripped member hands the call to the next one.
//
// Members are added during setup; a Group is read-only once calls start.
type Group[T any] struct {
	members []member[T]
	cfg     CircuitBreakerConfig
}

// NewGroup creates an empty [Group]. cfg is the template for every member's
// breaker; its Name is replaced by the member name.
func NewGroup[T any](cfg CircuitBreakerConfig) *Group[T] {
	return &Group[T]{cfg: cfg}
}

// Add appends a member. The first member added is the primary.
func (g *Group[T]) Add(name string, value T) {
	cfg := g.cfg
	cfg.Name = name
	g.members = append(g.members, member[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cfg),
	})
}

// Len returns the number of members.
func (g *Group[T]) Len() int { return len(g.members) }

// States reports the breaker state of every member in order.
func (g *Group[T]) States() []MemberState {
	out := make([]MemberState, len(g.members))
	for i := range g.members {
		out[i] = MemberState{Name: g.members[i].name, State: g.members[i].breaker.State()}
	}
	return out
}

// MemberState is a snapshot of one member's breaker.
type MemberState struct {
	Name  string
	State State
}

// Do runs fn against each member of g in order until one succeeds and
// returns its result together with the name of the member that served it.
// Members with an open breaker are skipped. When ctx ends, no further member
// is tried. If every member fails the error wraps [ErrAllFailed] and each
// member's error.
//
// Do is a package-level function because Go does not support method-level
// type parameters.
func Do[T, R any](ctx context.Context, g *Group[T], fn func(context.Context, T) (R, error)) (R, string, error) {
	var (
		zero R
		errs []error
	)
	for i := range g.members {
		m := &g.members[i]
		var result R
		err := m.breaker.Execute(ctx, func(ctx context.Context) error {
			var innerErr error
			result, innerErr = fn(ctx, m.value)
			return innerErr
		})
		if err == nil {
			return result, m.name, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
		if ctx.Err() != nil {
			break
		}
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping backend (circuit open)", "backend", m.name)
		} else if i < len(g.members)-1 {
			slog.Warn("backend failed, trying next", "backend", m.name, "error", err)
		}
	}
	if len(errs) == 0 {
		return zero, "", fmt.Errorf("%w: no backends configured", ErrAllFailed)
	}
	return zero, "", fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
