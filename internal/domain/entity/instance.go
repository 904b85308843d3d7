package entity

import (
	"fmt"
	"time"

	"github.com/garyjia/fulfillment-engine/internal/domain/workflow"
)

// Kind identifies which workflow an instance follows
type Kind string

const (
	KindOrder        Kind = "ORDER"
	KindInstallation Kind = "INSTALLATION"
)

// IsValid returns true for known kinds
func (k Kind) IsValid() bool {
	return k == KindOrder || k == KindInstallation
}

// ActorSystem is recorded on history entries produced without a user
const ActorSystem = "system"

// Instance is one business entity moving through a fulfillment workflow.
// Exactly one of Order or Installation is set, matching Kind.
type Instance struct {
	ID       string         `json:"id"`
	Kind     Kind           `json:"kind"`
	State    workflow.State `json:"state"`
	HeldFrom workflow.State `json:"held_from,omitempty"`
	// Revision increments on every persisted mutation and guards concurrent writers
	Revision  int64          `json:"revision"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	History   []HistoryEntry `json:"history"`

	Order        *OrderPayload        `json:"order,omitempty"`
	Installation *InstallationPayload `json:"installation,omitempty"`
}

// HistoryEntry is one immutable audit record of a state change
type HistoryEntry struct {
	Sequence  int64          `json:"sequence_number"`
	FromState workflow.State `json:"from_state"`
	ToState   workflow.State `json:"to_state"`
	Event     workflow.Event `json:"event"`
	Actor     string         `json:"actor"`
	Notes     string         `json:"notes,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// AppendHistory records a state change and moves the instance to the new state
func (i *Instance) AppendHistory(from, to workflow.State, event workflow.Event, actor, notes string, at time.Time) HistoryEntry {
	if actor == "" {
		actor = ActorSystem
	}
	entry := HistoryEntry{
		Sequence:  int64(len(i.History)) + 1,
		FromState: from,
		ToState:   to,
		Event:     event,
		Actor:     actor,
		Notes:     notes,
		Timestamp: at,
	}
	i.History = append(i.History, entry)
	i.State = to
	i.UpdatedAt = at
	return entry
}

// LastEntry returns the most recent history entry
func (i *Instance) LastEntry() (HistoryEntry, bool) {
	if len(i.History) == 0 {
		return HistoryEntry{}, false
	}
	return i.History[len(i.History)-1], true
}

// Clone returns a deep copy used as the working copy of a transition
func (i *Instance) Clone() *Instance {
	c := *i
	c.History = append([]HistoryEntry(nil), i.History...)
	if i.Order != nil {
		c.Order = i.Order.Clone()
	}
	if i.Installation != nil {
		c.Installation = i.Installation.Clone()
	}
	return &c
}

// CheckInvariants verifies the structural rules every persisted instance obeys
func (i *Instance) CheckInvariants() error {
	if !i.Kind.IsValid() {
		return fmt.Errorf("instance %s: unknown kind %q", i.ID, i.Kind)
	}
	if (i.Kind == KindOrder) != (i.Order != nil) || (i.Kind == KindInstallation) != (i.Installation != nil) {
		return fmt.Errorf("instance %s: payload does not match kind %s", i.ID, i.Kind)
	}

	last, ok := i.LastEntry()
	if !ok {
		return fmt.Errorf("instance %s: empty history", i.ID)
	}
	if last.ToState != i.State {
		return fmt.Errorf("instance %s: state %s does not match last history entry %s", i.ID, i.State, last.ToState)
	}
	for idx, h := range i.History {
		if h.Sequence != int64(idx)+1 {
			return fmt.Errorf("instance %s: history sequence gap at %d", i.ID, idx)
		}
		if idx > 0 && h.FromState != i.History[idx-1].ToState {
			return fmt.Errorf("instance %s: history entry %d does not continue from %s", i.ID, h.Sequence, i.History[idx-1].ToState)
		}
	}
	if (i.State == workflow.StateOnHold) != (i.HeldFrom != "") {
		return fmt.Errorf("instance %s: held_from must be set exactly while on hold", i.ID)
	}

	if i.Order != nil {
		return i.Order.checkInvariants(i.ID)
	}
	return i.Installation.checkInvariants(i.ID, i.State)
}

// NewOrder creates an order instance in its entry state. Totals are computed from items.
func NewOrder(id string, entry workflow.State, payload *OrderPayload, actor string, now time.Time) *Instance {
	inst := &Instance{
		ID:        id,
		Kind:      KindOrder,
		CreatedAt: now,
		Order:     payload,
	}
	inst.AppendHistory("", entry, workflow.To(entry), actor, "created", now)
	return inst
}

// NewInstallation creates an installation instance in NEW
func NewInstallation(id string, payload *InstallationPayload, actor string, now time.Time) *Instance {
	inst := &Instance{
		ID:           id,
		Kind:         KindInstallation,
		CreatedAt:    now,
		Installation: payload,
	}
	inst.AppendHistory("", workflow.StateNew, workflow.To(workflow.StateNew), actor, "created", now)
	return inst
}
