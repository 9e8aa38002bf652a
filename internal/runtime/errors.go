package runtime

import (
	"fmt"

	"github.com/aretw0/novella/pkg/domain"
)

// StallError is returned when a playthrough cannot reach a pause or an ending:
// no active edge leaves a node, a choice has nothing to offer, or a single call
// walked more than the configured number of automatic nodes.
type StallError struct {
	NodeID string
	Reason string
	Steps  int
}

func (e *StallError) Error() string {
	if e.Steps > 0 {
		return fmt.Sprintf("playthrough stalled at %q after %d automatic steps: %s", e.NodeID, e.Steps, e.Reason)
	}
	return fmt.Sprintf("playthrough stalled at %q: %s", e.NodeID, e.Reason)
}

// Action error codes. They double as diagnostic codes.
const (
	CodeDivisionByZero   = "division_by_zero"
	CodeNonFinite        = "non_finite_result"
	CodeUnknownTarget    = "unknown_target"
	CodeTypeMismatch     = "type_mismatch"
	CodeInvalidOperation = "invalid_operation"
	CodeNotUsable        = "item_not_usable"
	CodeNotOwned         = "item_not_owned"
	CodeExtraNavigation  = "extra_navigation"
	CodeUnknownParameter = "unknown_parameter"
)

// ActionError is a recoverable failure of a single action. The mutation it
// describes was skipped.
type ActionError struct {
	Code      string
	Action    domain.ActionType
	Parameter string
	Reason    string
}

func (e *ActionError) Error() string {
	if e.Parameter == "" {
		return fmt.Sprintf("%s: %s", e.Action, e.Reason)
	}
	return fmt.Sprintf("%s %q: %s", e.Action, e.Parameter, e.Reason)
}

// ConditionError reports a condition that read a parameter the game state does
// not know. The condition evaluated to false.
type ConditionError struct {
	Condition domain.Condition
	Reason    string
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("condition %s: %s", e.Condition, e.Reason)
}
