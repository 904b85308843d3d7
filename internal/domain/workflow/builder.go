package workflow

import (
	"context"
	"fmt"
)

// Guard is a pure precondition over the transition subject. A non-nil error
// rejects the transition; use Reject to attach a reason.
type Guard[T any] func(ctx context.Context, subject T) error

// SideEffect mutates the subject's working copy or calls a collaborator.
// It runs only after the guard passed.
type SideEffect[T any] func(ctx context.Context, subject T) error

// Resolver picks the target state at fire time, for transitions whose
// destination depends on the subject (resuming from hold).
type Resolver[T any] func(subject T) (State, error)

// Transition is one (event, guard, side effect, next state) entry of a definition
type Transition[T any] struct {
	Event   Event
	To      State
	Resolve Resolver[T]
	Guard   Guard[T]
	Effect  SideEffect[T]
}

// Builder configures a Definition state by state
type Builder[T any] struct {
	name        string
	entry       map[State]bool
	terminal    map[State]bool
	transitions map[State]map[Event]Transition[T]
}

// StateConfig configures the outgoing transitions of one state
type StateConfig[T any] struct {
	builder *Builder[T]
	from    State
}

// NewBuilder creates a builder for a named workflow
func NewBuilder[T any](name string) *Builder[T] {
	return &Builder[T]{
		name:        name,
		entry:       make(map[State]bool),
		terminal:    make(map[State]bool),
		transitions: make(map[State]map[Event]Transition[T]),
	}
}

// Entry declares the states an instance may be created in
func (b *Builder[T]) Entry(states ...State) *Builder[T] {
	for _, s := range states {
		mustBeValid(s)
		b.entry[s] = true
	}
	return b
}

// Terminal declares the end states of the workflow
func (b *Builder[T]) Terminal(states ...State) *Builder[T] {
	for _, s := range states {
		mustBeValid(s)
		b.terminal[s] = true
	}
	return b
}

// Configure returns a state configuration for the given state
func (b *Builder[T]) Configure(state State) *StateConfig[T] {
	mustBeValid(state)
	if _, exists := b.transitions[state]; !exists {
		b.transitions[state] = make(map[Event]Transition[T])
	}
	return &StateConfig[T]{builder: b, from: state}
}

// Permit allows event to move the instance to toState unconditionally
func (c *StateConfig[T]) Permit(event Event, toState State) *StateConfig[T] {
	return c.PermitWith(Transition[T]{Event: event, To: toState})
}

// PermitIf allows event to move the instance to toState when guard passes
func (c *StateConfig[T]) PermitIf(event Event, toState State, guard Guard[T]) *StateConfig[T] {
	return c.PermitWith(Transition[T]{Event: event, To: toState, Guard: guard})
}

// PermitWith registers a fully specified transition
func (c *StateConfig[T]) PermitWith(t Transition[T]) *StateConfig[T] {
	if t.Event == "" {
		panic(fmt.Sprintf("%s: empty event from state %s", c.builder.name, c.from))
	}
	if t.Resolve == nil {
		mustBeValid(t.To)
	}
	if _, dup := c.builder.transitions[c.from][t.Event]; dup {
		panic(fmt.Sprintf("%s: duplicate event %s from state %s", c.builder.name, t.Event, c.from))
	}
	c.builder.transitions[c.from][t.Event] = t
	return c
}

// Build freezes the configuration into an immutable Definition
func (b *Builder[T]) Build() *Definition[T] {
	if len(b.entry) == 0 {
		panic(fmt.Sprintf("%s: no entry state configured", b.name))
	}

	d := &Definition[T]{
		name:        b.name,
		entry:       make(map[State]bool, len(b.entry)),
		terminal:    make(map[State]bool, len(b.terminal)),
		transitions: make(map[State]map[Event]Transition[T], len(b.transitions)),
		states:      make(map[State]bool),
	}
	for s := range b.entry {
		d.entry[s] = true
		d.states[s] = true
	}
	for s := range b.terminal {
		d.terminal[s] = true
		d.states[s] = true
	}
	for from, byEvent := range b.transitions {
		copied := make(map[Event]Transition[T], len(byEvent))
		for ev, t := range byEvent {
			copied[ev] = t
			if t.To != "" {
				d.states[t.To] = true
			}
		}
		d.transitions[from] = copied
		d.states[from] = true
	}
	return d
}

func mustBeValid(s State) {
	if !s.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", s))
	}
}
