package flow

import (
	"errors"
	"fmt"
)

var (
	// ErrFlowComplete is returned for any transition attempted on a
	// terminal session.
	ErrFlowComplete = errors.New("payment flow already complete")

	// ErrBusy is returned when a transition arrives while a gateway call
	// is still in flight. The initiating control should have been disabled.
	ErrBusy = errors.New("a gateway request is in flight")

	// ErrSuperseded means an in-flight gateway call resolved after the
	// session had moved on; its result was discarded.
	ErrSuperseded = errors.New("session changed while the gateway call was in flight")
)

// TransitionError reports an event that is not legal in the current state.
type TransitionError struct {
	From  Status
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Event, e.From)
}

// ValidationError is a locally recoverable input problem: the shopper is
// re-prompted and the session state does not change.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ClipboardError wraps a failed copy. Non-fatal: the payee identifier is
// shown as plain text either way.
type ClipboardError struct {
	Err error
}

func (e *ClipboardError) Error() string {
	return fmt.Sprintf("clipboard copy failed: %v", e.Err)
}

func (e *ClipboardError) Unwrap() error { return e.Err }
