package domain

import "fmt"

// ConditionType is the closed set of checks a Condition can express.
type ConditionType string

const (
	CondPlayerStat         ConditionType = "player_stat"
	CondRelationship       ConditionType = "relationship"
	CondCurrency           ConditionType = "currency"
	CondItemOwned          ConditionType = "item_owned"
	CondItemNotOwned       ConditionType = "item_not_owned"
	CondItemCount          ConditionType = "item_count"
	CondInventory          ConditionType = "inventory"
	CondChoiceMade         ConditionType = "choice_made"
	CondFlagSet            ConditionType = "flag_set"
	CondFlagNotSet         ConditionType = "flag_not_set"
	CondRandomChance       ConditionType = "random_chance"
	CondVisitCount         ConditionType = "visit_count"
	CondCurrentSceneVisits ConditionType = "current_scene_visits"
	CondVariableEquals     ConditionType = "variable_equals"
	CondVariable           ConditionType = "variable"
)

// Operator is a comparison applied by numeric and collection conditions.
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "not_equals"
	OpGreaterThan        Operator = "greater_than"
	OpGreaterThanOrEqual Operator = "greater_than_or_equal"
	OpLessThan           Operator = "less_than"
	OpLessThanOrEqual    Operator = "less_than_or_equal"
	OpContains           Operator = "contains"
	OpNotContains        Operator = "not_contains"
)

// Logic combines a list of conditions. The zero value behaves as LogicAnd.
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// Valid reports whether l is empty or one of the known combinators.
func (l Logic) Valid() bool {
	return l == "" || l == LogicAnd || l == LogicOr
}

// Negate returns the operator that holds exactly when o does not.
func (o Operator) Negate() Operator {
	switch o {
	case OpEquals:
		return OpNotEquals
	case OpNotEquals:
		return OpEquals
	case OpGreaterThan:
		return OpLessThanOrEqual
	case OpGreaterThanOrEqual:
		return OpLessThan
	case OpLessThan:
		return OpGreaterThanOrEqual
	case OpLessThanOrEqual:
		return OpGreaterThan
	case OpContains:
		return OpNotContains
	case OpNotContains:
		return OpContains
	}
	return o
}

// Condition is a single structured check against the game state.
//
// Parameter names the stat, item, flag, currency, variable, node, or choice the
// condition reads. Character is only meaningful for relationship conditions.
type Condition struct {
	Type      ConditionType `json:"type" mapstructure:"type"`
	Parameter string        `json:"parameter,omitempty" mapstructure:"parameter"`
	Character string        `json:"character,omitempty" mapstructure:"character"`
	Operator  Operator      `json:"operator,omitempty" mapstructure:"operator"`
	Value     any           `json:"value,omitempty" mapstructure:"value"`
}

func (c Condition) String() string {
	switch c.Type {
	case CondFlagSet, CondFlagNotSet, CondItemOwned, CondItemNotOwned, CondChoiceMade:
		return fmt.Sprintf("%s(%s)", c.Type, c.Parameter)
	case CondRelationship:
		return fmt.Sprintf("%s(%s/%s) %s %v", c.Type, c.Character, c.Parameter, c.Operator, c.Value)
	}
	return fmt.Sprintf("%s(%s) %s %v", c.Type, c.Parameter, c.Operator, c.Value)
}

type conditionRule struct {
	operators map[Operator]bool // nil: operator must be empty
	parameter bool
	character bool
	value     bool
}

var (
	numericOps = map[Operator]bool{
		OpEquals: true, OpNotEquals: true, OpGreaterThan: true,
		OpGreaterThanOrEqual: true, OpLessThan: true, OpLessThanOrEqual: true,
	}
	collectionOps = map[Operator]bool{OpContains: true, OpNotContains: true}
	anyOps        = map[Operator]bool{
		OpEquals: true, OpNotEquals: true, OpGreaterThan: true,
		OpGreaterThanOrEqual: true, OpLessThan: true, OpLessThanOrEqual: true,
		OpContains: true, OpNotContains: true,
	}
	chanceOps = map[Operator]bool{OpLessThan: true, OpLessThanOrEqual: true}
)

var conditionRules = map[ConditionType]conditionRule{
	CondPlayerStat:         {operators: numericOps, parameter: true, value: true},
	CondRelationship:       {operators: numericOps, parameter: true, character: true, value: true},
	CondCurrency:           {operators: numericOps, parameter: true, value: true},
	CondItemOwned:          {parameter: true},
	CondItemNotOwned:       {parameter: true},
	CondItemCount:          {operators: numericOps, parameter: true, value: true},
	CondInventory:          {operators: collectionOps, value: true},
	CondChoiceMade:         {parameter: true},
	CondFlagSet:            {parameter: true},
	CondFlagNotSet:         {parameter: true},
	CondRandomChance:       {operators: chanceOps, value: true},
	CondVisitCount:         {operators: numericOps, parameter: true, value: true},
	CondCurrentSceneVisits: {operators: numericOps, value: true},
	CondVariableEquals:     {parameter: true, value: true},
	CondVariable:           {operators: anyOps, parameter: true, value: true},
}

// Validate checks that the condition only carries the fields its type accepts.
// It does not consult the mechanics catalogue.
func (c Condition) Validate() error {
	rule, ok := conditionRules[c.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownConditionType, c.Type)
	}
	switch {
	case rule.operators == nil && c.Operator != "":
		return fmt.Errorf("condition %s takes no operator, got %q", c.Type, c.Operator)
	case rule.operators != nil && c.Operator == "":
		return fmt.Errorf("condition %s requires an operator", c.Type)
	case rule.operators != nil && !rule.operators[c.Operator]:
		if !anyOps[c.Operator] {
			return fmt.Errorf("%w: %q", ErrUnknownOperator, c.Operator)
		}
		return fmt.Errorf("operator %q is not valid for condition %s", c.Operator, c.Type)
	case rule.parameter && c.Parameter == "":
		return fmt.Errorf("condition %s requires a parameter", c.Type)
	case !rule.parameter && c.Type != CondInventory && c.Parameter != "":
		return fmt.Errorf("condition %s takes no parameter", c.Type)
	case rule.character && c.Character == "":
		return fmt.Errorf("condition %s requires a character", c.Type)
	case !rule.character && c.Character != "":
		return fmt.Errorf("condition %s takes no character", c.Type)
	case rule.value && c.Value == nil:
		return fmt.Errorf("condition %s requires a value", c.Type)
	}
	if c.Type == CondRandomChance {
		p, ok := ToFloat(c.Value)
		if !ok || p < 0 || p > 100 {
			return fmt.Errorf("random_chance value must be a percentage in [0,100], got %v", c.Value)
		}
	}
	return nil
}
