package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNodeNotFound is returned when a node id is not part of the graph.
	ErrNodeNotFound = errors.New("node not found")
	// ErrStoryNotFound is returned when no story is published under an id.
	ErrStoryNotFound = errors.New("story not found")
	// ErrVersionNotFound is returned when a story exists but the version does not.
	ErrVersionNotFound = errors.New("graph version not found")
	// ErrPlaythroughNotFound is returned when a playthrough id cannot be found in the store.
	ErrPlaythroughNotFound = errors.New("playthrough not found")
	// ErrPlaythroughEnded is returned when resuming a playthrough that reached an ending.
	ErrPlaythroughEnded = errors.New("playthrough has ended")
	// ErrSelectionRequired is returned when resuming a choice without a selection.
	ErrSelectionRequired = errors.New("choice requires a selection")
	// ErrNotAChoice is returned when describing choices of a node that is not a choice.
	ErrNotAChoice = errors.New("node is not a choice")

	ErrUnknownNodeKind      = errors.New("unknown node kind")
	ErrUnknownConditionType = errors.New("unknown condition type")
	ErrUnknownActionType    = errors.New("unknown action type")
	ErrUnknownOperator      = errors.New("unknown operator")
	ErrUnknownOperation     = errors.New("unknown operation")
)

// InvalidSelectionError is returned when a resume names an option that is not
// currently selectable.
type InvalidSelectionError struct {
	NodeID   string
	OptionID string
}

func (e *InvalidSelectionError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("selection %q is not allowed here", e.OptionID)
	}
	return fmt.Sprintf("option %q is not selectable at %q", e.OptionID, e.NodeID)
}
