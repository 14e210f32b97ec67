package domain

// State is a payment transaction lifecycle state.
type State string

const (
	StateInitiated  State = "initiated"
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
	StateRefunded   State = "refunded"
	StateDisputed   State = "disputed"
)

var knownStates = map[State]struct{}{
	StateInitiated:  {},
	StatePending:    {},
	StateProcessing: {},
	StateCompleted:  {},
	StateFailed:     {},
	StateCancelled:  {},
	StateRefunded:   {},
	StateDisputed:   {},
}

// Known reports whether s is one of the states emitted by the payment system.
// Unknown states are still carried through untouched.
func (s State) Known() bool {
	_, ok := knownStates[s]
	return ok
}

// EventType is the kind of state transition an audit entry records.
type EventType string

const (
	EventPaymentInitiated  EventType = "payment_initiated"
	EventPaymentProcessing EventType = "payment_processing"
	EventPaymentCompleted  EventType = "payment_completed"
	EventPaymentFailed     EventType = "payment_failed"
	EventPaymentCancelled  EventType = "payment_cancelled"
	EventPaymentRefunded   EventType = "payment_refunded"
	EventPaymentDisputed   EventType = "payment_disputed"

	// EventSyntheticInitiation marks entries written by the backfill to close
	// a gap. Its NewState is the transaction's state at backfill time, which
	// may be terminal.
	EventSyntheticInitiation EventType = "synthetic-initiation"
)

// Synthetic reports whether the event was fabricated by the backfill.
func (t EventType) Synthetic() bool {
	return t == EventSyntheticInitiation
}
