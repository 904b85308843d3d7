package workflow

import (
	"context"
	"time"

	"github.com/garyjia/fulfillment-engine/internal/application/port"
	"github.com/garyjia/fulfillment-engine/internal/domain/entity"
	"github.com/garyjia/fulfillment-engine/internal/domain/event"
	domainwf "github.com/garyjia/fulfillment-engine/internal/domain/workflow"
)

// Definition is a workflow definition over transition attempts
type Definition = domainwf.Definition[*Attempt]

// FulfillmentEngine drives instances through their workflow definitions
type FulfillmentEngine interface {
	// Create persists a new instance in one of its workflow's entry states
	Create(ctx context.Context, inst *entity.Instance) (*entity.Instance, error)

	// Transition validates and applies event to the instance
	Transition(ctx context.Context, kind entity.Kind, id string, ev domainwf.Event, actor string, input entity.TransitionInput) (*entity.Instance, error)

	// Apply runs a side-effect-only action that does not change the state
	Apply(ctx context.Context, kind entity.Kind, id, actor string, action Action) (*entity.Instance, error)

	// Get loads an instance of the given kind
	Get(ctx context.Context, kind entity.Kind, id string) (*entity.Instance, error)

	// List returns instances of the given kind
	List(ctx context.Context, kind entity.Kind, state domainwf.State, page port.Page) ([]*entity.Instance, error)

	// PermittedEvents lists the events defined for the instance's current state
	PermittedEvents(ctx context.Context, kind entity.Kind, id string) ([]domainwf.Event, error)
}

// Attempt is the subject every guard, side effect and action sees. Instance
// is a working copy; it is only persisted when every step succeeded.
type Attempt struct {
	Instance *entity.Instance
	From     domainwf.State
	Event    domainwf.Event
	Actor    string
	Input    entity.TransitionInput
	Now      time.Time

	newID  func() string
	events []*event.Event
}

// NewID generates an identifier for records created during the attempt
func (a *Attempt) NewID() string {
	return a.newID()
}

// Emit queues a domain event that is dispatched after the attempt is persisted
func (a *Attempt) Emit(t event.Type, payload map[string]interface{}) {
	a.events = append(a.events, event.NewEvent(t, a.Instance.ID, string(a.Instance.Kind), a.Actor, payload))
}

// Action is a guarded mutation that leaves the workflow state unchanged
type Action struct {
	Name  string
	Guard func(a *Attempt) error
	Apply func(ctx context.Context, a *Attempt) error
}
