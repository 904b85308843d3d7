package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/fulfillment-engine/internal/application/dispatcher"
	"github.com/garyjia/fulfillment-engine/internal/application/port"
	"github.com/garyjia/fulfillment-engine/internal/domain/entity"
	"github.com/garyjia/fulfillment-engine/internal/domain/event"
	domainwf "github.com/garyjia/fulfillment-engine/internal/domain/workflow"
	"github.com/google/uuid"
)

// engineImpl is the concrete implementation of FulfillmentEngine
type engineImpl struct {
	repo        port.InstanceRepository
	definitions map[entity.Kind]*Definition
	dispatcher  dispatcher.Dispatcher
	logger      dispatcher.Logger
	now         func() time.Time
	newID       func() string
}

// EngineOption configures the fulfillment engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLogger sets the engine logger
func WithLogger(l dispatcher.Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// WithIDGenerator overrides the identifier source
func WithIDGenerator(gen func() string) EngineOption {
	return func(e *engineImpl) {
		e.newID = gen
	}
}

// WithDefinition registers the workflow for a kind
func WithDefinition(kind entity.Kind, def *Definition) EngineOption {
	return func(e *engineImpl) {
		e.definitions[kind] = def
	}
}

// NewEngine creates a new fulfillment engine
func NewEngine(repo port.InstanceRepository, opts ...EngineOption) FulfillmentEngine {
	e := &engineImpl{
		repo:        repo,
		definitions: make(map[entity.Kind]*Definition),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Create persists a new instance in an entry state of its workflow
func (e *engineImpl) Create(ctx context.Context, inst *entity.Instance) (*entity.Instance, error) {
	def, err := e.definition(inst.Kind)
	if err != nil {
		return nil, err
	}
	if !def.IsEntry(inst.State) {
		return nil, fmt.Errorf("%w: %s cannot start in %s", domainwf.ErrIllegalTransition, def.Name(), inst.State)
	}
	if err := inst.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("invalid instance: %w", err)
	}

	if err := e.repo.Create(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}

	e.logInfo("Instance created", "instance_id", inst.ID, "kind", inst.Kind, "state", inst.State)
	e.dispatch(ctx, event.NewEvent(event.TypeInstanceCreated, inst.ID, string(inst.Kind), lastActor(inst), map[string]interface{}{
		"state": inst.State.String(),
	}))

	return inst, nil
}

// Transition validates the event, runs guard and side effect on a working
// copy, appends the audit entry and persists with a revision check. The
// stored instance is untouched unless every step succeeds.
func (e *engineImpl) Transition(ctx context.Context, kind entity.Kind, id string, ev domainwf.Event, actor string, input entity.TransitionInput) (*entity.Instance, error) {
	def, err := e.definition(kind)
	if err != nil {
		return nil, err
	}

	current, err := e.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	attempt := e.newAttempt(current, ev, actor, input)

	to, err := def.Fire(ctx, current.State, ev, attempt)
	if err != nil {
		if errors.Is(err, domainwf.ErrSideEffectFailed) {
			e.logError("Transition side effect failed",
				"instance_id", id,
				"from", current.State,
				"event", ev,
				"error", err,
			)
		}
		return nil, err
	}

	working := attempt.Instance
	working.AppendHistory(current.State, to, ev, attempt.Actor, input.HistoryNotes(), attempt.Now)
	if err := working.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("transition %s broke instance invariants: %w", ev, err)
	}

	if err := e.repo.Save(ctx, working, current.Revision); err != nil {
		return nil, fmt.Errorf("failed to persist transition %s of %s: %w", ev, id, err)
	}

	e.logInfo("Transition applied",
		"instance_id", id,
		"from", current.State,
		"to", to,
		"event", ev,
		"actor", actor,
	)

	statusEvent := event.NewEvent(event.TypeStatusChanged, working.ID, string(working.Kind), actor, map[string]interface{}{
		"from":     current.State.String(),
		"to":       to.String(),
		"event":    ev.String(),
		"notes":    input.HistoryNotes(),
		"sequence": int64(len(working.History)),
	})
	e.dispatch(ctx, statusEvent)
	for _, evt := range attempt.events {
		e.dispatch(ctx, evt.WithCorrelation(statusEvent.CorrelationID))
	}

	return working, nil
}

// Apply runs a guarded action against a working copy and persists it with a
// revision check. No history entry is written.
func (e *engineImpl) Apply(ctx context.Context, kind entity.Kind, id, actor string, action Action) (*entity.Instance, error) {
	current, err := e.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	attempt := e.newAttempt(current, "", actor, entity.TransitionInput{})

	if action.Guard != nil {
		if err := action.Guard(attempt); err != nil {
			return nil, err
		}
	}
	if err := action.Apply(ctx, attempt); err != nil {
		if errors.Is(err, domainwf.ErrSideEffectFailed) {
			e.logError("Action side effect failed", "instance_id", id, "action", action.Name, "error", err)
		}
		return nil, err
	}

	working := attempt.Instance
	working.UpdatedAt = attempt.Now
	if err := working.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("action %s broke instance invariants: %w", action.Name, err)
	}

	if err := e.repo.Save(ctx, working, current.Revision); err != nil {
		return nil, fmt.Errorf("failed to persist action %s on %s: %w", action.Name, id, err)
	}

	e.logInfo("Action applied", "instance_id", id, "action", action.Name, "actor", actor)
	for _, evt := range attempt.events {
		e.dispatch(ctx, evt)
	}

	return working, nil
}

// Get loads an instance of the given kind
func (e *engineImpl) Get(ctx context.Context, kind entity.Kind, id string) (*entity.Instance, error) {
	inst, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.Kind != kind {
		return nil, fmt.Errorf("%w: %s %s", domainwf.ErrInstanceNotFound, kind, id)
	}
	return inst, nil
}

// List returns instances of the given kind, optionally filtered by state
func (e *engineImpl) List(ctx context.Context, kind entity.Kind, state domainwf.State, page port.Page) ([]*entity.Instance, error) {
	return e.repo.List(ctx, port.ListFilter{Kind: kind, State: state}, page.Normalize())
}

// PermittedEvents lists events defined for the instance's current state
func (e *engineImpl) PermittedEvents(ctx context.Context, kind entity.Kind, id string) ([]domainwf.Event, error) {
	def, err := e.definition(kind)
	if err != nil {
		return nil, err
	}
	inst, err := e.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	return def.PermittedEvents(inst.State), nil
}

func (e *engineImpl) newAttempt(current *entity.Instance, ev domainwf.Event, actor string, input entity.TransitionInput) *Attempt {
	if actor == "" {
		actor = entity.ActorSystem
	}
	return &Attempt{
		Instance: current.Clone(),
		From:     current.State,
		Event:    ev,
		Actor:    actor,
		Input:    input,
		Now:      e.now(),
		newID:    e.newID,
	}
}

func (e *engineImpl) definition(kind entity.Kind) (*Definition, error) {
	def, ok := e.definitions[kind]
	if !ok {
		return nil, fmt.Errorf("no workflow registered for kind %q", kind)
	}
	return def, nil
}

func (e *engineImpl) dispatch(ctx context.Context, evt *event.Event) {
	if e.dispatcher != nil {
		e.dispatcher.DispatchAsync(ctx, evt)
	}
}

func (e *engineImpl) logInfo(msg string, kv ...interface{}) {
	if e.logger != nil {
		e.logger.Info(msg, kv...)
	}
}

func (e *engineImpl) logError(msg string, kv ...interface{}) {
	if e.logger != nil {
		e.logger.Error(msg, kv...)
	}
}

func lastActor(inst *entity.Instance) string {
	if h, ok := inst.LastEntry(); ok {
		return h.Actor
	}
	return entity.ActorSystem
}
