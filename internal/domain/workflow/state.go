package workflow

// State is a named position in a fulfillment workflow
type State string

// Order fulfillment states
const (
	StateNew             State = "NEW"
	StatePendingPayment  State = "PENDING_PAYMENT"
	StateConfirmed       State = "CONFIRMED"
	StateAllocated       State = "ALLOCATED"
	StatePicklistCreated State = "PICKLIST_CREATED"
	StatePicking         State = "PICKING"
	StatePicked          State = "PICKED"
	StatePacking         State = "PACKING"
	StatePacked          State = "PACKED"
	StateManifested      State = "MANIFESTED"
	StateReadyToShip     State = "READY_TO_SHIP"
	StateShipped         State = "SHIPPED"
	StateInTransit       State = "IN_TRANSIT"
	StateOutForDelivery  State = "OUT_FOR_DELIVERY"
	StateDelivered       State = "DELIVERED"
	StateRTOInitiated    State = "RTO_INITIATED"
	StateRTOInTransit    State = "RTO_IN_TRANSIT"
	StateRTODelivered    State = "RTO_DELIVERED"
	StateOnHold          State = "ON_HOLD"
	StateCancelled       State = "CANCELLED"
	StateRefunded        State = "REFUNDED"
)

// Installation fulfillment states. NEW and CANCELLED are shared with orders.
const (
	StateScheduled  State = "SCHEDULED"
	StateAssigned   State = "ASSIGNED"
	StateInProgress State = "IN_PROGRESS"
	StateCompleted  State = "COMPLETED"
)

var knownStates = map[State]bool{
	StateNew:             true,
	StatePendingPayment:  true,
	StateConfirmed:       true,
	StateAllocated:       true,
	StatePicklistCreated: true,
	StatePicking:         true,
	StatePicked:          true,
	StatePacking:         true,
	StatePacked:          true,
	StateManifested:      true,
	StateReadyToShip:     true,
	StateShipped:         true,
	StateInTransit:       true,
	StateOutForDelivery:  true,
	StateDelivered:       true,
	StateRTOInitiated:    true,
	StateRTOInTransit:    true,
	StateRTODelivered:    true,
	StateOnHold:          true,
	StateCancelled:       true,
	StateRefunded:        true,
	StateScheduled:       true,
	StateAssigned:        true,
	StateInProgress:      true,
	StateCompleted:       true,
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state belongs to any known workflow
func (s State) IsValid() bool {
	return knownStates[s]
}

// Event is the name of a requested transition
type Event string

// EventResume returns an on-hold order to the state it was held from
const EventResume Event = "RESUME"

// To returns the event that moves an instance into s. Apart from RESUME,
// every event is named after the state it leads to.
func To(s State) Event {
	return Event(s)
}

// String returns the string representation of the event
func (e Event) String() string {
	return string(e)
}
