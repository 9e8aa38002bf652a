package runtime

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/novella/pkg/domain"
)

// Evaluator decides conditions against a game state. It never mutates the
// state, and with a deterministic RandomSource the same inputs always give the
// same answer.
type Evaluator struct {
	Mechanics *domain.Mechanics
	Random    RandomSource
	// PreIncrementVisits makes visit conditions ignore the visit in progress.
	PreIncrementVisits bool
}

// NewEvaluator returns an evaluator over a mechanics catalogue using the
// default hash-based random source.
func NewEvaluator(m *domain.Mechanics) *Evaluator {
	return &Evaluator{Mechanics: m, Random: HashSource{}}
}

// Evaluate reports whether c holds in s. Site identifies where the condition
// sits in the graph and keys random draws.
//
// A non-nil error is always a *ConditionError; the result is then false.
func (e *Evaluator) Evaluate(c domain.Condition, s *domain.GameState, site string) (bool, error) {
	switch c.Type {
	case domain.CondPlayerStat:
		v, ok := s.Stats[c.Parameter]
		if !ok {
			return false, unknown(c)
		}
		return compareNumber(v, c.Operator, c.Value), nil

	case domain.CondRelationship:
		v, ok := s.Relationships[domain.RelationshipKey(c.Character, c.Parameter)]
		if !ok {
			return false, unknown(c)
		}
		return compareNumber(v, c.Operator, c.Value), nil

	case domain.CondCurrency:
		v, ok := s.Currency[c.Parameter]
		if !ok {
			return false, unknown(c)
		}
		return compareNumber(v, c.Operator, c.Value), nil

	case domain.CondItemOwned, domain.CondItemNotOwned, domain.CondItemCount:
		n, ok := s.Inventory[c.Parameter]
		if !ok && !e.knownItem(c.Parameter) {
			return false, unknown(c)
		}
		switch c.Type {
		case domain.CondItemOwned:
			return n > 0, nil
		case domain.CondItemNotOwned:
			return n <= 0, nil
		}
		return compareNumber(float64(n), c.Operator, c.Value), nil

	case domain.CondInventory:
		return compareCollection(s.OwnedItems(), c.Operator, c.Value), nil

	case domain.CondChoiceMade:
		return s.ChoiceMade(c.Parameter), nil

	// Flags form an open set: an undeclared flag is simply not set.
	case domain.CondFlagSet:
		return s.Flags[c.Parameter], nil
	case domain.CondFlagNotSet:
		return !s.Flags[c.Parameter], nil

	case domain.CondRandomChance:
		threshold, _ := domain.ToFloat(c.Value)
		draw := e.random().Draw(s.Seed, drawKey(s, site)) * 100
		if c.Operator == domain.OpLessThanOrEqual {
			return draw <= threshold, nil
		}
		return draw < threshold, nil

	case domain.CondVisitCount:
		return compareNumber(float64(e.visits(s, c.Parameter)), c.Operator, c.Value), nil

	case domain.CondCurrentSceneVisits:
		return compareNumber(float64(e.visits(s, s.CurrentNodeID)), c.Operator, c.Value), nil

	case domain.CondVariableEquals, domain.CondVariable:
		v, ok := s.Variables[c.Parameter]
		if !ok && !e.knownVariable(c.Parameter) {
			return false, unknown(c)
		}
		if c.Type == domain.CondVariableEquals {
			return domain.EqualValues(v, c.Value), nil
		}
		return compareAny(v, c.Operator, c.Value), nil
	}
	return false, &ConditionError{Condition: c, Reason: "unsupported condition type"}
}

// EvaluateAll combines conditions with logic, short-circuiting in author
// order. An empty list holds. Errors of the evaluated conditions are returned
// alongside the result.
func (e *Evaluator) EvaluateAll(conds []domain.Condition, logic domain.Logic, s *domain.GameState, site string) (bool, []error) {
	if len(conds) == 0 {
		return true, nil
	}
	var errs []error
	for i, c := range conds {
		ok, err := e.Evaluate(c, s, fmt.Sprintf("%s#%d", site, i))
		if err != nil {
			errs = append(errs, err)
		}
		if logic == domain.LogicOr && ok {
			return true, errs
		}
		if logic != domain.LogicOr && !ok {
			return false, errs
		}
	}
	return logic != domain.LogicOr, errs
}

func (e *Evaluator) random() RandomSource {
	if e.Random == nil {
		return HashSource{}
	}
	return e.Random
}

func (e *Evaluator) visits(s *domain.GameState, nodeID string) int {
	n := s.Visits[nodeID]
	if e.PreIncrementVisits && nodeID == s.CurrentNodeID && n > 0 {
		n--
	}
	return n
}

func (e *Evaluator) knownItem(id string) bool {
	if e.Mechanics == nil {
		return false
	}
	_, ok := e.Mechanics.Item(id)
	return ok
}

func (e *Evaluator) knownVariable(id string) bool {
	if e.Mechanics == nil {
		return false
	}
	_, ok := e.Mechanics.Variable(id)
	return ok
}

func unknown(c domain.Condition) error {
	return &ConditionError{Condition: c, Reason: "parameter is not defined"}
}

// drawKey pins a random draw to the position of the playthrough, so repeated
// evaluation of an unchanged state draws the same number.
func drawKey(s *domain.GameState, site string) string {
	return fmt.Sprintf("%s|%d|%d|%s", s.CurrentNodeID, s.Visits[s.CurrentNodeID], s.Turn, site)
}

func compareNumber(lhs float64, op domain.Operator, value any) bool {
	rhs, ok := domain.ToFloat(value)
	if !ok {
		return false
	}
	return ordered(lhs, op, rhs)
}

func ordered(lhs float64, op domain.Operator, rhs float64) bool {
	switch op {
	case domain.OpEquals:
		return domain.EqualValues(lhs, rhs)
	case domain.OpNotEquals:
		return !domain.EqualValues(lhs, rhs)
	case domain.OpGreaterThan:
		return lhs > rhs
	case domain.OpGreaterThanOrEqual:
		return lhs >= rhs || domain.EqualValues(lhs, rhs)
	case domain.OpLessThan:
		return lhs < rhs
	case domain.OpLessThanOrEqual:
		return lhs <= rhs || domain.EqualValues(lhs, rhs)
	}
	return false
}

// compareCollection applies contains/not_contains to a list. A list value
// requires every element.
func compareCollection(have []string, op domain.Operator, value any) bool {
	var want []string
	if s, ok := value.(string); ok {
		want = []string{s}
	} else if list, ok := domain.ToStrings(value); ok {
		want = list
	} else {
		return false
	}
	all := true
	for _, w := range want {
		if !slices.Contains(have, w) {
			all = false
			break
		}
	}
	switch op {
	case domain.OpContains:
		return all
	case domain.OpNotContains:
		for _, w := range want {
			if slices.Contains(have, w) {
				return false
			}
		}
		return true
	}
	return false
}

func compareAny(lhs any, op domain.Operator, value any) bool {
	switch op {
	case domain.OpEquals:
		return domain.EqualValues(lhs, value)
	case domain.OpNotEquals:
		return !domain.EqualValues(lhs, value)
	case domain.OpContains, domain.OpNotContains:
		if s, ok := lhs.(string); ok {
			sub, ok := value.(string)
			if !ok {
				return false
			}
			return strings.Contains(s, sub) == (op == domain.OpContains)
		}
		list, ok := domain.ToStrings(lhs)
		if !ok {
			return false
		}
		return compareCollection(list, op, value)
	}
	l, lok := domain.ToFloat(lhs)
	r, rok := domain.ToFloat(value)
	if !lok || !rok {
		return false
	}
	return ordered(l, op, r)
}
