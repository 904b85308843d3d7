package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Definition is an immutable transition table for one kind of workflow.
// It holds no instance state and is safe for concurrent use.
type Definition[T any] struct {
	name        string
	entry       map[State]bool
	terminal    map[State]bool
	states      map[State]bool
	transitions map[State]map[Event]Transition[T]
}

// Name returns the workflow name
func (d *Definition[T]) Name() string {
	return d.name
}

// IsEntry returns true if instances may be created in state s
func (d *Definition[T]) IsEntry(s State) bool {
	return d.entry[s]
}

// IsTerminal returns true if s is an end state of this workflow
func (d *Definition[T]) IsTerminal(s State) bool {
	return d.terminal[s]
}

// HasState returns true if s takes part in this workflow
func (d *Definition[T]) HasState(s State) bool {
	return d.states[s]
}

// Lookup returns the transition for event from state from
func (d *Definition[T]) Lookup(from State, event Event) (Transition[T], error) {
	t, ok := d.transitions[from][event]
	if !ok {
		return Transition[T]{}, fmt.Errorf("%w: %s does not accept %s in %s", ErrIllegalTransition, d.name, event, from)
	}
	return t, nil
}

// PermittedEvents lists the events defined for state from, sorted by name.
// Guards are not evaluated.
func (d *Definition[T]) PermittedEvents(from State) []Event {
	byEvent := d.transitions[from]
	events := make([]Event, 0, len(byEvent))
	for ev := range byEvent {
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i] < events[j] })
	return events
}

// Fire validates and executes event from state from against subject.
// It runs, in order: lookup, guard, target resolution, side effect.
// On any error the caller must discard the subject's working copy.
func (d *Definition[T]) Fire(ctx context.Context, from State, event Event, subject T) (State, error) {
	t, err := d.Lookup(from, event)
	if err != nil {
		return "", err
	}

	if t.Guard != nil {
		if err := t.Guard(ctx, subject); err != nil {
			return "", asGuardRejection(err)
		}
	}

	to := t.To
	if t.Resolve != nil {
		to, err = t.Resolve(subject)
		if err != nil {
			return "", asGuardRejection(err)
		}
		if !d.states[to] {
			return "", fmt.Errorf("%w: %s resolved unknown state %s", ErrIllegalTransition, d.name, to)
		}
	}

	if t.Effect != nil {
		if err := t.Effect(ctx, subject); err != nil {
			// Rejections found while running the effect stay rejections
			var se *SideEffectError
			if errors.As(err, &se) || errors.Is(err, ErrGuardRejected) {
				return "", err
			}
			return "", &SideEffectError{Action: string(event), Err: err}
		}
	}

	return to, nil
}

func asGuardRejection(err error) error {
	if errors.Is(err, ErrGuardRejected) {
		return err
	}
	return &GuardRejectedError{Reason: err.Error()}
}
