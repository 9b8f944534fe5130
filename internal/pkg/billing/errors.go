package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrSignatureInvalid marks payloads that failed webhook signature
	// verification. The payload must not be processed further.
	ErrSignatureInvalid = errors.New("invalid webhook signature")

	// ErrAccountNotFound marks events that reference a customer or email with
	// no matching local account. This is a data-integrity gap, never a skip.
	ErrAccountNotFound = errors.New("no local account matches event")

	// ErrInvalidPriceID marks recurring line items whose price id matches no
	// configured billing period. Resolution fails closed, a period is never
	// guessed.
	ErrInvalidPriceID = errors.New("unrecognized recurring price id")
)

// ReconciliationError wraps unexpected store or provider failures with the
// event they occurred in.
type ReconciliationError struct {
	EventID   string
	EventType string
	Err       error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation failed for event %s (%s): %v", e.EventID, e.EventType, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

func reconciliationErr(ev *Event, err error) error {
	return &ReconciliationError{EventID: ev.ID, EventType: ev.TypeTag, Err: err}
}
