package domain

import (
	"reflect"
)

// StateDiff represents the changes between two game states.
// It is serialized to JSON for partial updates on the client.
type StateDiff struct {
	// PlaythroughID is always present to identify the target.
	PlaythroughID string `json:"playthrough_id"`

	CurrentNodeID *string `json:"current_node_id,omitempty"`
	Status        *Status `json:"status,omitempty"`

	// Numeric deltas carry new minus old. A slot that disappeared is reported
	// with the negated old value.
	Stats         map[string]float64 `json:"stats,omitempty"`
	Relationships map[string]float64 `json:"relationships,omitempty"`
	Currency      map[string]float64 `json:"currency,omitempty"`
	Inventory     map[string]int     `json:"inventory,omitempty"`

	// Flags maps a flag id to its new state.
	Flags map[string]bool `json:"flags,omitempty"`

	// Variables contains only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Variables map[string]any `json:"variables,omitempty"`

	HistoryParams *HistoryDelta `json:"history,omitempty"`

	Ending *Ending `json:"ending,omitempty"`
}

// HistoryDelta represents changes to the history stack.
type HistoryDelta struct {
	Appended []string `json:"appended"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, it returns a diff representing the entire newState (initial load).
func Diff(oldState, newState *GameState) *StateDiff {
	if newState == nil {
		return nil
	}
	old := oldState
	if old == nil {
		old = &GameState{}
	}

	diff := &StateDiff{
		PlaythroughID: newState.PlaythroughID,
		Stats:         diffNumbers(old.Stats, newState.Stats),
		Relationships: diffNumbers(old.Relationships, newState.Relationships),
		Currency:      diffNumbers(old.Currency, newState.Currency),
		Inventory:     diffNumbers(old.Inventory, newState.Inventory),
		Flags:         diffFlags(old.Flags, newState.Flags),
		Variables:     diffVariables(old.Variables, newState.Variables),
		HistoryParams: diffHistory(oldState, newState),
	}

	if oldState == nil || oldState.CurrentNodeID != newState.CurrentNodeID {
		diff.CurrentNodeID = &newState.CurrentNodeID
	}
	if oldState == nil || oldState.Status != newState.Status {
		diff.Status = &newState.Status
	}
	if newState.Ending != nil && (oldState == nil || oldState.Ending == nil) {
		diff.Ending = newState.Ending
	}

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffNumbers[N int | float64](old, new map[string]N) map[string]N {
	delta := make(map[string]N)
	for k, v := range new {
		if d := v - old[k]; d != 0 {
			delta[k] = d
		}
	}
	for k, v := range old {
		if _, ok := new[k]; !ok && v != 0 {
			delta[k] = -v
		}
	}
	if len(delta) == 0 {
		return nil
	}
	return delta
}

func diffFlags(old, new map[string]bool) map[string]bool {
	delta := make(map[string]bool)
	for k, v := range new {
		if v && !old[k] {
			delta[k] = true
		}
	}
	for k, v := range old {
		if v && !new[k] {
			delta[k] = false
		}
	}
	if len(delta) == 0 {
		return nil
	}
	return delta
}

func diffVariables(old, new map[string]any) map[string]any {
	delta := make(map[string]any)

	// Check for Added or Modified
	for k, newVal := range new {
		oldVal, exists := old[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}

	// Check for Deletions
	for k := range old {
		if _, exists := new[k]; !exists {
			delta[k] = nil
		}
	}
	if len(delta) == 0 {
		return nil
	}
	return delta
}

// diffHistory assumes standard append-only behavior for History.
func diffHistory(old *GameState, new *GameState) *HistoryDelta {
	if new == nil || len(new.History) == 0 {
		return nil
	}

	if old == nil {
		return &HistoryDelta{Appended: new.History}
	}

	if len(new.History) > len(old.History) {
		return &HistoryDelta{
			Appended: new.History[len(old.History):],
		}
	}

	return nil
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *StateDiff) IsEmpty() bool {
	return d.CurrentNodeID == nil &&
		d.Status == nil &&
		len(d.Stats) == 0 &&
		len(d.Relationships) == 0 &&
		len(d.Currency) == 0 &&
		len(d.Inventory) == 0 &&
		len(d.Flags) == 0 &&
		len(d.Variables) == 0 &&
		d.HistoryParams == nil &&
		d.Ending == nil
}
