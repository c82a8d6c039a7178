package flow

import (
	"errors"
	"fmt"
)

var (
	// ErrTriggerConflict indicates a submitted trigger keyword already
	// belongs to another flow of the same account.
	ErrTriggerConflict = errors.New("trigger conflict")

	// ErrFlowDisabled indicates the target flow is administratively
	// disabled and rejects edits and deletion.
	ErrFlowDisabled = errors.New("flow disabled")

	// ErrFlowNotFound indicates the flow does not exist.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrJumpLimit indicates a chain of connect-flow nodes exceeded the
	// per-message jump bound.
	ErrJumpLimit = errors.New("connect-flow jump limit exceeded")
)

// TriggerConflictError carries the colliding keyword and the flow that owns it.
type TriggerConflictError struct {
	Trigger string
	FlowID  string
}

func (e *TriggerConflictError) Error() string {
	return fmt.Sprintf("trigger %q already belongs to flow %s", e.Trigger, e.FlowID)
}

func (e *TriggerConflictError) Unwrap() error {
	return ErrTriggerConflict
}

// IsTriggerConflict checks if an error indicates a trigger keyword collision.
func IsTriggerConflict(err error) bool {
	return errors.Is(err, ErrTriggerConflict)
}

// IsFlowDisabled checks if an error indicates an administratively disabled flow.
func IsFlowDisabled(err error) bool {
	return errors.Is(err, ErrFlowDisabled)
}

// IsFlowNotFound checks if an error indicates a missing flow.
func IsFlowNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound)
}
