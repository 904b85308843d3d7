package workflow

import (
	"context"
	"errors"
	"testing"
)

type subject struct {
	approved bool
	touched  int
	heldFrom State
}

func buildTestDefinition() *Definition[*subject] {
	b := NewBuilder[*subject]("test")
	b.Entry(StateNew).Terminal(StateDelivered, StateCancelled)

	b.Configure(StateNew).
		Permit(To(StateConfirmed), StateConfirmed).
		PermitIf(To(StateCancelled), StateCancelled, func(_ context.Context, s *subject) error {
			if !s.approved {
				return Reject("reason required")
			}
			return nil
		})

	b.Configure(StateConfirmed).
		PermitWith(Transition[*subject]{
			Event: To(StateDelivered),
			To:    StateDelivered,
			Effect: func(_ context.Context, s *subject) error {
				s.touched++
				if s.approved {
					return errors.New("carrier unavailable")
				}
				return nil
			},
		}).
		PermitWith(Transition[*subject]{
			Event: To(StateOnHold),
			To:    StateOnHold,
			Effect: func(_ context.Context, s *subject) error {
				s.heldFrom = StateConfirmed
				return nil
			},
		})

	b.Configure(StateOnHold).
		PermitWith(Transition[*subject]{
			Event: EventResume,
			Resolve: func(s *subject) (State, error) {
				if s.heldFrom == "" {
					return "", Reject("nothing to resume")
				}
				return s.heldFrom, nil
			},
		})

	return b.Build()
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"order state", StatePicklistCreated, true},
		{"installation state", StateInProgress, true},
		{"invalid state", State("INVALID"), false},
		{"empty state", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTo(t *testing.T) {
	if got := To(StateShipped); got != Event("SHIPPED") {
		t.Errorf("To() = %v, want SHIPPED", got)
	}
}

func TestBuilder_ConfigurePanicsOnInvalidState(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Configure() should panic on invalid state")
		}
	}()

	NewBuilder[*subject]("test").Configure(State("INVALID"))
}

func TestBuilder_DuplicateEventPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Permit() should panic on duplicate event")
		}
	}()

	NewBuilder[*subject]("test").Configure(StateNew).
		Permit(To(StateConfirmed), StateConfirmed).
		Permit(To(StateConfirmed), StateConfirmed)
}

func TestBuilder_BuildPanicsWithoutEntry(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Build() should panic without entry state")
		}
	}()

	NewBuilder[*subject]("test").Build()
}

func TestDefinition_Fire(t *testing.T) {
	def := buildTestDefinition()

	to, err := def.Fire(context.Background(), StateNew, To(StateConfirmed), &subject{})
	if err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	if to != StateConfirmed {
		t.Errorf("Fire() = %v, want %v", to, StateConfirmed)
	}
}

func TestDefinition_FireIllegal(t *testing.T) {
	def := buildTestDefinition()

	_, err := def.Fire(context.Background(), StateNew, To(StateDelivered), &subject{})
	if !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Fire() error = %v, want ErrIllegalTransition", err)
	}

	_, err = def.Fire(context.Background(), StateCancelled, To(StateCancelled), &subject{approved: true})
	if !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Fire() from terminal error = %v, want ErrIllegalTransition", err)
	}
}

func TestDefinition_FireGuardRejected(t *testing.T) {
	def := buildTestDefinition()

	_, err := def.Fire(context.Background(), StateNew, To(StateCancelled), &subject{})
	if !errors.Is(err, ErrGuardRejected) {
		t.Fatalf("Fire() error = %v, want ErrGuardRejected", err)
	}
	reason, ok := ReasonOf(err)
	if !ok || reason != "reason required" {
		t.Errorf("ReasonOf() = %q, %v", reason, ok)
	}
}

func TestDefinition_FireSideEffectFailed(t *testing.T) {
	def := buildTestDefinition()
	s := &subject{approved: true}

	_, err := def.Fire(context.Background(), StateConfirmed, To(StateDelivered), s)
	if !errors.Is(err, ErrSideEffectFailed) {
		t.Fatalf("Fire() error = %v, want ErrSideEffectFailed", err)
	}
	var se *SideEffectError
	if !errors.As(err, &se) || se.Action != "DELIVERED" {
		t.Errorf("SideEffectError action = %v", se)
	}
	if s.touched != 1 {
		t.Errorf("side effect ran %d times, want 1", s.touched)
	}
}

func TestDefinition_FireRejectionFromSideEffect(t *testing.T) {
	b := NewBuilder[*subject]("test")
	b.Entry(StateNew)
	b.Configure(StateNew).PermitWith(Transition[*subject]{
		Event:  To(StateConfirmed),
		To:     StateConfirmed,
		Effect: func(context.Context, *subject) error { return Reject("unknown technician T-9") },
	})

	_, err := b.Build().Fire(context.Background(), StateNew, To(StateConfirmed), &subject{})

	if !errors.Is(err, ErrGuardRejected) {
		t.Fatalf("Fire() error = %v, want ErrGuardRejected", err)
	}
	if errors.Is(err, ErrSideEffectFailed) {
		t.Error("a rejection must not also read as a side effect failure")
	}
	if IsRetryable(err) || !IsClientError(err) {
		t.Errorf("IsRetryable=%v IsClientError=%v", IsRetryable(err), IsClientError(err))
	}
	if reason, ok := ReasonOf(err); !ok || reason != "unknown technician T-9" {
		t.Errorf("ReasonOf() = %q, %v", reason, ok)
	}
}

func TestDefinition_FireGuardSkipsSideEffect(t *testing.T) {
	b := NewBuilder[*subject]("test")
	b.Entry(StateNew)
	b.Configure(StateNew).PermitWith(Transition[*subject]{
		Event: To(StateConfirmed),
		To:    StateConfirmed,
		Guard: func(context.Context, *subject) error { return errors.New("not yet") },
		Effect: func(_ context.Context, s *subject) error {
			s.touched++
			return nil
		},
	})
	s := &subject{}

	_, err := b.Build().Fire(context.Background(), StateNew, To(StateConfirmed), s)
	if !errors.Is(err, ErrGuardRejected) {
		t.Fatalf("Fire() error = %v, want ErrGuardRejected", err)
	}
	if s.touched != 0 {
		t.Error("side effect must not run when the guard rejects")
	}
}

func TestDefinition_ResolveTarget(t *testing.T) {
	def := buildTestDefinition()
	s := &subject{}

	held, err := def.Fire(context.Background(), StateConfirmed, To(StateOnHold), s)
	if err != nil || held != StateOnHold {
		t.Fatalf("hold: %v %v", held, err)
	}

	back, err := def.Fire(context.Background(), StateOnHold, EventResume, s)
	if err != nil {
		t.Fatalf("resume error = %v", err)
	}
	if back != StateConfirmed {
		t.Errorf("resume = %v, want %v", back, StateConfirmed)
	}

	_, err = def.Fire(context.Background(), StateOnHold, EventResume, &subject{})
	if !errors.Is(err, ErrGuardRejected) {
		t.Errorf("resume without origin error = %v, want ErrGuardRejected", err)
	}
}

func TestDefinition_PermittedEvents(t *testing.T) {
	def := buildTestDefinition()

	got := def.PermittedEvents(StateNew)
	want := []Event{To(StateCancelled), To(StateConfirmed)}
	if len(got) != len(want) {
		t.Fatalf("PermittedEvents() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("PermittedEvents()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if len(def.PermittedEvents(StateDelivered)) != 0 {
		t.Error("terminal state should have no permitted events")
	}
}

func TestDefinition_StateQueries(t *testing.T) {
	def := buildTestDefinition()

	if !def.IsEntry(StateNew) || def.IsEntry(StateConfirmed) {
		t.Error("IsEntry() mismatch")
	}
	if !def.IsTerminal(StateCancelled) || def.IsTerminal(StateNew) {
		t.Error("IsTerminal() mismatch")
	}
	if def.HasState(StateScheduled) {
		t.Error("HasState() should be false for unused state")
	}
}

func TestErrorHelpers(t *testing.T) {
	if !IsRetryable(ErrConcurrentModification) {
		t.Error("concurrent modification should be retryable")
	}
	if IsRetryable(Reject("x")) {
		t.Error("guard rejection should not be retryable")
	}
	if !IsClientError(Reject("x")) {
		t.Error("guard rejection should be a client error")
	}
	if IsClientError(&SideEffectError{Action: "x", Err: errors.New("boom")}) {
		t.Error("side effect failure should not be a client error")
	}
}
