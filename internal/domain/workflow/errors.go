package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalTransition is returned when the event is not defined for the current state
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrGuardRejected is returned when a transition precondition fails
	ErrGuardRejected = errors.New("guard rejected")

	// ErrSideEffectFailed is returned when a transition side effect fails.
	// The instance state is left unchanged.
	ErrSideEffectFailed = errors.New("side effect failed")

	// ErrConcurrentModification is returned when another writer committed first
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrInstanceNotFound is returned when no instance exists for an id
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrInvoiceAlreadyExists is returned when an order already has an active invoice
	ErrInvoiceAlreadyExists = errors.New("invoice already exists")

	// ErrInvoiceNotAllowedInState is returned when invoicing is attempted outside CONFIRMED
	ErrInvoiceNotAllowedInState = errors.New("invoice not allowed in state")
)

// GuardRejectedError carries the human-readable reason a guard refused a transition
type GuardRejectedError struct {
	Reason string
}

// Reject builds a guard rejection with the given reason
func Reject(reason string) error {
	return &GuardRejectedError{Reason: reason}
}

func (e *GuardRejectedError) Error() string {
	return fmt.Sprintf("guard rejected: %s", e.Reason)
}

func (e *GuardRejectedError) Unwrap() error {
	return ErrGuardRejected
}

// SideEffectError wraps the failure of a transition or action side effect
type SideEffectError struct {
	Action string
	Err    error
}

func (e *SideEffectError) Error() string {
	return fmt.Sprintf("side effect %s failed: %v", e.Action, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is/As
func (e *SideEffectError) Unwrap() []error {
	return []error{ErrSideEffectFailed, e.Err}
}

// IsRetryable reports whether the caller may reload the instance and try again
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError reports whether the error was caused by the request rather than the system
func IsClientError(err error) bool {
	return errors.Is(err, ErrIllegalTransition) ||
		errors.Is(err, ErrGuardRejected) ||
		errors.Is(err, ErrInstanceNotFound) ||
		errors.Is(err, ErrInvoiceAlreadyExists) ||
		errors.Is(err, ErrInvoiceNotAllowedInState)
}

// ReasonOf returns the guard rejection reason, if err is one
func ReasonOf(err error) (string, bool) {
	var gr *GuardRejectedError
	if errors.As(err, &gr) {
		return gr.Reason, true
	}
	return "", false
}
