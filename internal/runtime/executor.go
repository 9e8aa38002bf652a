package runtime

import (
	"math"
	"slices"

	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/schema"
)

// Outcome is what an action list produced besides its state mutations.
type Outcome struct {
	Navigation domain.Navigation
	Cues       []domain.Cue
	// Errors holds one *ActionError per skipped mutation or ignored navigation.
	Errors []error
}

func (o *Outcome) navigate(a domain.Action, nav domain.Navigation) {
	if o.Navigation.None() {
		o.Navigation = nav
		return
	}
	o.fail(a, CodeExtraNavigation, "", "a previous action already navigated")
}

func (o *Outcome) fail(a domain.Action, code, parameter, reason string) {
	o.Errors = append(o.Errors, &ActionError{Code: code, Action: a.Type, Parameter: parameter, Reason: reason})
}

// Executor applies actions to a game state in place, clamping every numeric
// result to the bounds declared in the mechanics catalogue.
type Executor struct {
	Mechanics *domain.Mechanics
}

func NewExecutor(m *domain.Mechanics) *Executor {
	if m == nil {
		m = &domain.Mechanics{}
	}
	return &Executor{Mechanics: m}
}

// Apply runs a single action.
func (x *Executor) Apply(a domain.Action, s *domain.GameState) (domain.Navigation, error) {
	var out Outcome
	x.apply(a, s, &out, 0)
	if len(out.Errors) > 0 {
		return out.Navigation, out.Errors[0]
	}
	return out.Navigation, nil
}

// ApplyAll runs actions in order. Each mutation is visible to the next action,
// and a failing action never stops the list.
func (x *Executor) ApplyAll(actions []domain.Action, s *domain.GameState) Outcome {
	var out Outcome
	for _, a := range actions {
		x.apply(a, s, &out, 0)
	}
	return out
}

// apply runs one action. Stat and item hooks only fire at depth zero.
func (x *Executor) apply(a domain.Action, s *domain.GameState, out *Outcome, depth int) {
	switch {
	case a.Navigate != nil:
		out.navigate(a, domain.Navigation{Target: a.Navigate.TargetNodeID})
	case a.End != nil:
		c := a.End.Ending
		out.navigate(a, domain.Navigation{Ending: &domain.Ending{
			EndingID:    c.EndingID,
			EndingType:  c.EndingType,
			Title:       c.Title,
			Description: c.Description,
			Image:       c.Image,
		}})
	case a.Event != nil:
		out.Cues = append(out.Cues, domain.Cue{
			Kind:    domain.CueSceneEvent,
			NodeID:  s.CurrentNodeID,
			Event:   a.Event.Event,
			Payload: a.Event.Payload,
		})
	case a.Delay != nil:
		out.Cues = append(out.Cues, domain.Cue{Kind: domain.CueDelay, NodeID: s.CurrentNodeID, Delay: a.Delay.Duration()})
	case a.UseItem != nil:
		x.useItem(a, s, out, depth)
	case a.Modify != nil:
		x.modify(a, s, out, depth)
	default:
		out.fail(a, CodeInvalidOperation, "", "action carries no payload")
	}
}

func (x *Executor) useItem(a domain.Action, s *domain.GameState, out *Outcome, depth int) {
	id := a.UseItem.Parameter
	def, ok := x.Mechanics.Item(id)
	switch {
	case !ok:
		out.fail(a, CodeUnknownTarget, id, "item is not defined")
		return
	case !def.Usable:
		out.fail(a, CodeNotUsable, id, "item is not usable")
		return
	case s.Inventory[id] <= 0:
		out.fail(a, CodeNotOwned, id, "item is not owned")
		return
	}
	if def.Consumable {
		s.Inventory[id]--
	}
	if depth > 0 {
		return
	}
	for _, hook := range def.OnUse {
		x.apply(hook, s, out, depth+1)
	}
}

// maxItemCount caps unbounded stacks at the largest integer a float64 holds
// exactly.
const maxItemCount = 1 << 53

func (x *Executor) modify(a domain.Action, s *domain.GameState, out *Outcome, depth int) {
	m := a.Modify
	target := m.Target
	if t, ok := a.Type.IsModify(); ok {
		target = t
	}
	switch target {
	case domain.TargetStat:
		def, ok := x.Mechanics.Stat(m.Parameter)
		if !ok {
			out.fail(a, CodeUnknownTarget, m.Parameter, "stat is not defined")
			return
		}
		before := s.Stats[m.Parameter]
		after, ok := x.arithmetic(a, before, out)
		if !ok {
			return
		}
		after = def.Clamp(after)
		s.Stats[m.Parameter] = after
		if depth == 0 {
			x.boundHooks(def, before, after, s, out)
		}

	case domain.TargetRelationship:
		def, ok := x.Mechanics.Relationship(m.Character, m.Parameter)
		if !ok {
			out.fail(a, CodeUnknownTarget, domain.RelationshipKey(m.Character, m.Parameter), "relationship is not defined")
			return
		}
		after, ok := x.arithmetic(a, s.Relationships[def.Key()], out)
		if ok {
			s.Relationships[def.Key()] = def.Clamp(after)
		}

	case domain.TargetCurrency:
		def, ok := x.Mechanics.Currency(m.Parameter)
		if !ok {
			out.fail(a, CodeUnknownTarget, m.Parameter, "currency is not defined")
			return
		}
		after, ok := x.arithmetic(a, s.Currency[m.Parameter], out)
		if ok {
			s.Currency[m.Parameter] = def.Clamp(after)
		}

	case domain.TargetItem:
		def, ok := x.Mechanics.Item(m.Parameter)
		if !ok {
			out.fail(a, CodeUnknownTarget, m.Parameter, "item is not defined")
			return
		}
		after, ok := x.arithmetic(a, float64(s.Inventory[m.Parameter]), out)
		if !ok {
			return
		}
		ceiling := float64(maxItemCount)
		if limit := def.Limit(); limit >= 0 {
			ceiling = float64(limit)
		}
		// Clamp before converting: out-of-range float to int is undefined.
		s.Inventory[m.Parameter] = int(math.Max(0, math.Min(math.Round(after), ceiling)))

	case domain.TargetFlag:
		x.flag(a, s, out)

	case domain.TargetVariable:
		x.variable(a, s, out)

	default:
		out.fail(a, CodeInvalidOperation, m.Parameter, "unknown modify target")
	}
}

// boundHooks runs on_min/on_max when a mutation newly lands a stat on a bound.
func (x *Executor) boundHooks(def domain.StatDefinition, before, after float64, s *domain.GameState, out *Outcome) {
	var hooks []domain.Action
	if def.Min != nil && after == *def.Min && before != *def.Min {
		hooks = def.OnMin
	}
	if def.Max != nil && after == *def.Max && before != *def.Max {
		hooks = append(slices.Clone(hooks), def.OnMax...)
	}
	for _, hook := range hooks {
		x.apply(hook, s, out, 1)
	}
}

func (x *Executor) arithmetic(a domain.Action, current float64, out *Outcome) (float64, bool) {
	m := a.Modify
	if m.Operation == domain.OpToggle || m.Operation == domain.OpUnset {
		out.fail(a, CodeInvalidOperation, m.Parameter, string(m.Operation)+" needs a boolean target")
		return 0, false
	}
	operand, ok := domain.ToFloat(m.Value)
	if !ok {
		out.fail(a, CodeTypeMismatch, m.Parameter, "value is not a number")
		return 0, false
	}
	result, code := arith(m.Operation, current, operand)
	if code != "" {
		out.fail(a, code, m.Parameter, "cannot "+string(m.Operation))
		return 0, false
	}
	return result, true
}

func arith(op domain.Operation, current, operand float64) (float64, string) {
	var r float64
	switch op {
	case domain.OpSet:
		r = operand
	case domain.OpAdd:
		r = current + operand
	case domain.OpSubtract:
		r = current - operand
	case domain.OpMultiply:
		r = current * operand
	case domain.OpDivide:
		if operand == 0 {
			return 0, CodeDivisionByZero
		}
		r = current / operand
	default:
		return 0, CodeInvalidOperation
	}
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, CodeNonFinite
	}
	return r, ""
}

// flag writes the open flag set. Only active flags are stored.
func (x *Executor) flag(a domain.Action, s *domain.GameState, out *Outcome) {
	m := a.Modify
	switch m.Operation {
	case domain.OpSet:
		on := true
		if m.Value != nil {
			b, ok := m.Value.(bool)
			if !ok {
				out.fail(a, CodeTypeMismatch, m.Parameter, "flag value must be a boolean")
				return
			}
			on = b
		}
		setFlag(s, m.Parameter, on)
	case domain.OpUnset:
		setFlag(s, m.Parameter, false)
	case domain.OpToggle:
		setFlag(s, m.Parameter, !s.Flags[m.Parameter])
	default:
		out.fail(a, CodeInvalidOperation, m.Parameter, string(m.Operation)+" is not a flag operation")
	}
}

func setFlag(s *domain.GameState, id string, on bool) {
	if on {
		s.Flags[id] = true
		return
	}
	delete(s.Flags, id)
}

func (x *Executor) variable(a domain.Action, s *domain.GameState, out *Outcome) {
	m := a.Modify
	def, ok := x.Mechanics.Variable(m.Parameter)
	if !ok {
		out.fail(a, CodeUnknownTarget, m.Parameter, "variable is not defined")
		return
	}
	typ, err := schema.ParseType(def.Type)
	if err != nil {
		out.fail(a, CodeTypeMismatch, m.Parameter, err.Error())
		return
	}
	if s.Variables == nil {
		s.Variables = make(map[string]any)
	}
	current := s.Variables[m.Parameter]

	var next any
	switch m.Operation {
	case domain.OpSet:
		next = m.Value
	case domain.OpUnset:
		s.Variables[m.Parameter] = nil
		return
	case domain.OpToggle:
		b, isBool := current.(bool)
		if _, ok := typ.(*schema.BoolType); !ok || (current != nil && !isBool) {
			out.fail(a, CodeInvalidOperation, m.Parameter, "toggle needs a bool variable")
			return
		}
		next = !b
	default:
		var ok bool
		next, ok = x.combine(a, typ, current, out)
		if !ok {
			return
		}
	}

	coerced, err := typ.Coerce(next)
	if err != nil {
		out.fail(a, CodeTypeMismatch, m.Parameter, err.Error())
		return
	}
	s.Variables[m.Parameter] = coerced
}

// combine applies add/subtract/multiply/divide to a typed variable. Strings
// concatenate on add; lists append on add and remove on subtract.
func (x *Executor) combine(a domain.Action, typ schema.Type, current any, out *Outcome) (any, bool) {
	m := a.Modify
	switch t := typ.(type) {
	case *schema.StringType:
		s, _ := current.(string)
		add, ok := m.Value.(string)
		if m.Operation != domain.OpAdd || !ok {
			out.fail(a, CodeInvalidOperation, m.Parameter, string(m.Operation)+" is not defined for strings")
			return nil, false
		}
		return s + add, true
	case *schema.SliceType:
		list := []any{}
		if current != nil {
			coerced, err := t.Coerce(current)
			if err != nil {
				out.fail(a, CodeTypeMismatch, m.Parameter, err.Error())
				return nil, false
			}
			list = coerced.([]any)
		}
		elem, err := t.Elem().Coerce(m.Value)
		if err != nil {
			out.fail(a, CodeTypeMismatch, m.Parameter, err.Error())
			return nil, false
		}
		switch m.Operation {
		case domain.OpAdd:
			return append(slices.Clone(list), elem), true
		case domain.OpSubtract:
			return slices.DeleteFunc(slices.Clone(list), func(v any) bool { return domain.EqualValues(v, elem) }), true
		}
		out.fail(a, CodeInvalidOperation, m.Parameter, string(m.Operation)+" is not defined for lists")
		return nil, false
	}
	if !schema.IsNumeric(typ) {
		out.fail(a, CodeInvalidOperation, m.Parameter, string(m.Operation)+" needs a numeric variable")
		return nil, false
	}
	cur := 0.0
	if current != nil {
		var ok bool
		if cur, ok = domain.ToFloat(current); !ok {
			out.fail(a, CodeTypeMismatch, m.Parameter, "current value is not a number")
			return nil, false
		}
	}
	result, ok := x.arithmetic(a, cur, out)
	if !ok {
		return nil, false
	}
	if _, isInt := typ.(*schema.IntType); isInt {
		result = math.Trunc(result)
	}
	return result, true
}
