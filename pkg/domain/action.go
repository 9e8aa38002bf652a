package domain

import (
	"fmt"
	"time"
)

// ActionType is the closed set of effects an Action can have.
type ActionType string

const (
	ActNavigate           ActionType = "navigate_to_node"
	ActModifyStat         ActionType = "modify_stat"
	ActModifyRelationship ActionType = "modify_relationship"
	ActModifyItem         ActionType = "modify_item"
	ActModifyCurrency     ActionType = "modify_currency"
	ActModifyFlag         ActionType = "modify_flag"
	ActModifyVariable     ActionType = "modify_variable"
	ActUseItem            ActionType = "use_item"
	ActEndBranch          ActionType = "end_novel_branch"
	ActTriggerEvent       ActionType = "trigger_scene_event"
	ActDelay              ActionType = "delay"
)

// Target is the kind of game state slot a modify action writes.
type Target string

const (
	TargetStat         Target = "stat"
	TargetRelationship Target = "relationship"
	TargetItem         Target = "item"
	TargetCurrency     Target = "currency"
	TargetFlag         Target = "flag"
	TargetVariable     Target = "variable"
)

var modifyTargets = map[ActionType]Target{
	ActModifyStat:         TargetStat,
	ActModifyRelationship: TargetRelationship,
	ActModifyItem:         TargetItem,
	ActModifyCurrency:     TargetCurrency,
	ActModifyFlag:         TargetFlag,
	ActModifyVariable:     TargetVariable,
}

// IsModify reports whether t is one of the modify_* types and which slot it writes.
func (t ActionType) IsModify() (Target, bool) {
	target, ok := modifyTargets[t]
	return target, ok
}

// Operation is the arithmetic or boolean update applied by a modify action.
type Operation string

const (
	OpSet      Operation = "set"
	OpAdd      Operation = "add"
	OpSubtract Operation = "subtract"
	OpMultiply Operation = "multiply"
	OpDivide   Operation = "divide"
	OpToggle   Operation = "toggle"
	OpUnset    Operation = "unset"
)

var operations = map[Operation]struct{}{
	OpSet: {}, OpAdd: {}, OpSubtract: {}, OpMultiply: {}, OpDivide: {}, OpToggle: {}, OpUnset: {},
}

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	_, ok := operations[op]
	return ok
}

// Action is a discriminated union: Type selects exactly one non-nil payload.
type Action struct {
	Type     ActionType
	Navigate *NavigateAction
	Modify   *ModifyAction
	UseItem  *UseItemAction
	End      *EndAction
	Event    *EventAction
	Delay    *DelayAction
}

type NavigateAction struct {
	TargetNodeID string `json:"target_node_id" mapstructure:"target_node_id"`
}

// ModifyAction writes one game state slot. Target is derived from the action
// type and is not part of the wire format.
type ModifyAction struct {
	Target    Target    `json:"-" mapstructure:"-"`
	Parameter string    `json:"parameter" mapstructure:"parameter"`
	Character string    `json:"character,omitempty" mapstructure:"character"`
	Operation Operation `json:"operation" mapstructure:"operation"`
	Value     any       `json:"value,omitempty" mapstructure:"value"`
}

type UseItemAction struct {
	Parameter string `json:"parameter" mapstructure:"parameter"`
}

// EndAction terminates the playthrough with an inline ending.
type EndAction struct {
	Ending EndingContent `json:"ending" mapstructure:"ending"`
}

type EventAction struct {
	Event   string         `json:"event" mapstructure:"event"`
	Payload map[string]any `json:"payload,omitempty" mapstructure:"payload"`
}

type DelayAction struct {
	Milliseconds int `json:"milliseconds" mapstructure:"milliseconds"`
}

// Duration returns the delay as a time.Duration.
func (d DelayAction) Duration() time.Duration {
	return time.Duration(d.Milliseconds) * time.Millisecond
}

// NavigateTo is shorthand for a navigate_to_node action.
func NavigateTo(target string) Action {
	return Action{Type: ActNavigate, Navigate: &NavigateAction{TargetNodeID: target}}
}

// Modify is shorthand for a modify_* action on the given target.
func Modify(target Target, parameter string, op Operation, value any) Action {
	for t, tgt := range modifyTargets {
		if tgt == target {
			return Action{Type: t, Modify: &ModifyAction{Target: target, Parameter: parameter, Operation: op, Value: value}}
		}
	}
	return Action{Type: ActionType("modify_" + string(target))}
}

// SetFlag is shorthand for setting a flag.
func SetFlag(flag string) Action {
	return Modify(TargetFlag, flag, OpSet, true)
}

// Validate checks that the payload matches Type.
func (a Action) Validate() error {
	set := 0
	for _, p := range []bool{a.Navigate != nil, a.Modify != nil, a.UseItem != nil, a.End != nil, a.Event != nil, a.Delay != nil} {
		if p {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("action %q must carry exactly one payload, has %d", a.Type, set)
	}
	if target, ok := a.Type.IsModify(); ok {
		switch {
		case a.Modify == nil:
			return fmt.Errorf("action %q is missing its payload", a.Type)
		case a.Modify.Parameter == "":
			return fmt.Errorf("action %q requires a parameter", a.Type)
		case !a.Modify.Operation.Valid():
			return fmt.Errorf("%w: %q", ErrUnknownOperation, a.Modify.Operation)
		case target == TargetRelationship && a.Modify.Character == "":
			return fmt.Errorf("action %q requires a character", a.Type)
		case a.Modify.Operation != OpToggle && a.Modify.Operation != OpUnset && a.Modify.Value == nil && target != TargetFlag:
			return fmt.Errorf("action %q operation %q requires a value", a.Type, a.Modify.Operation)
		}
		return nil
	}
	var ok bool
	switch a.Type {
	case ActNavigate:
		ok = a.Navigate != nil && a.Navigate.TargetNodeID != ""
	case ActUseItem:
		ok = a.UseItem != nil && a.UseItem.Parameter != ""
	case ActEndBranch:
		ok = a.End != nil && a.End.Ending.EndingID != ""
	case ActTriggerEvent:
		ok = a.Event != nil && a.Event.Event != ""
	case ActDelay:
		ok = a.Delay != nil && a.Delay.Milliseconds >= 0
	default:
		return fmt.Errorf("%w: %q", ErrUnknownActionType, a.Type)
	}
	if !ok {
		return fmt.Errorf("action %q has an incomplete payload", a.Type)
	}
	return nil
}

// Navigation is the routing result of an action list. At most one of Target
// and Ending is set.
type Navigation struct {
	Target string
	Ending *Ending
}

// None reports whether the navigation requests nothing.
func (n Navigation) None() bool {
	return n.Target == "" && n.Ending == nil
}
