package runtime

import (
	"errors"
	"testing"

	"github.com/aretw0/novella/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func ptr(f float64) *float64 { return &f }

func fixture() (*domain.Mechanics, *domain.GameState) {
	m := &domain.Mechanics{
		Stats:         []domain.StatDefinition{{ID: "wit", Initial: 4}},
		Relationships: []domain.RelationshipDefinition{{Character: "mira", Type: "trust", Initial: 2}},
		Items: []domain.ItemDefinition{
			{ID: "rope", Stackable: true, Initial: 3},
			{ID: "map"},
		},
		Currencies: []domain.CurrencyDefinition{{ID: "gold", Initial: 12.5}},
		Flags:      []domain.FlagDefinition{{ID: "met_npc", Initial: true}},
		Variables: []domain.VariableDefinition{
			{ID: "name", Type: "string", Initial: "Ada"},
			{ID: "clues", Type: "[string]", Initial: []any{"ash", "salt"}},
			{ID: "age", Type: "int", Initial: 31},
		},
	}
	s := domain.NewGameState(m, "hall")
	s.Visits["hall"] = 2
	s.Visits["cellar"] = 1
	s.Choices = []string{"dock/talk"}
	return m, s
}

func TestEvaluate(t *testing.T) {
	m, s := fixture()
	ev := NewEvaluator(m)

	tests := []struct {
		name string
		cond domain.Condition
		want bool
	}{
		{"stat gte", domain.Condition{Type: domain.CondPlayerStat, Parameter: "wit", Operator: domain.OpGreaterThanOrEqual, Value: 4}, true},
		{"stat lt", domain.Condition{Type: domain.CondPlayerStat, Parameter: "wit", Operator: domain.OpLessThan, Value: 4}, false},
		{"stat against string number", domain.Condition{Type: domain.CondPlayerStat, Parameter: "wit", Operator: domain.OpEquals, Value: "4"}, true},
		{"stat against word", domain.Condition{Type: domain.CondPlayerStat, Parameter: "wit", Operator: domain.OpNotEquals, Value: "four"}, false},
		{"relationship", domain.Condition{Type: domain.CondRelationship, Character: "mira", Parameter: "trust", Operator: domain.OpGreaterThan, Value: 1}, true},
		{"currency float", domain.Condition{Type: domain.CondCurrency, Parameter: "gold", Operator: domain.OpEquals, Value: 12.5}, true},
		{"item owned", domain.Condition{Type: domain.CondItemOwned, Parameter: "rope"}, true},
		{"item not owned", domain.Condition{Type: domain.CondItemNotOwned, Parameter: "map"}, true},
		{"item count", domain.Condition{Type: domain.CondItemCount, Parameter: "rope", Operator: domain.OpEquals, Value: 3}, true},
		{"inventory contains", domain.Condition{Type: domain.CondInventory, Operator: domain.OpContains, Value: "rope"}, true},
		{"inventory contains all", domain.Condition{Type: domain.CondInventory, Operator: domain.OpContains, Value: []any{"rope", "map"}}, false},
		{"inventory not contains", domain.Condition{Type: domain.CondInventory, Operator: domain.OpNotContains, Value: "map"}, true},
		{"choice qualified", domain.Condition{Type: domain.CondChoiceMade, Parameter: "dock/talk"}, true},
		{"choice bare", domain.Condition{Type: domain.CondChoiceMade, Parameter: "talk"}, true},
		{"choice missing", domain.Condition{Type: domain.CondChoiceMade, Parameter: "fight"}, false},
		{"flag set", domain.Condition{Type: domain.CondFlagSet, Parameter: "met_npc"}, true},
		{"undeclared flag not set", domain.Condition{Type: domain.CondFlagNotSet, Parameter: "ghost"}, true},
		{"visit count", domain.Condition{Type: domain.CondVisitCount, Parameter: "cellar", Operator: domain.OpEquals, Value: 1}, true},
		{"current scene visits", domain.Condition{Type: domain.CondCurrentSceneVisits, Operator: domain.OpEquals, Value: 2}, true},
		{"variable equals", domain.Condition{Type: domain.CondVariableEquals, Parameter: "name", Value: "Ada"}, true},
		{"variable list contains", domain.Condition{Type: domain.CondVariable, Parameter: "clues", Operator: domain.OpContains, Value: "salt"}, true},
		{"variable string contains", domain.Condition{Type: domain.CondVariable, Parameter: "name", Operator: domain.OpContains, Value: "d"}, true},
		{"variable numeric", domain.Condition{Type: domain.CondVariable, Parameter: "age", Operator: domain.OpLessThan, Value: 40}, true},
		{"variable ordered on string", domain.Condition{Type: domain.CondVariable, Parameter: "name", Operator: domain.OpGreaterThan, Value: 1}, false},
		{"chance zero", domain.Condition{Type: domain.CondRandomChance, Operator: domain.OpLessThan, Value: 0}, false},
		{"chance hundred", domain.Condition{Type: domain.CondRandomChance, Operator: domain.OpLessThanOrEqual, Value: 100}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ev.Evaluate(tt.cond, s, "test")
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_UnknownParameter(t *testing.T) {
	m, s := fixture()
	ev := NewEvaluator(m)

	for _, c := range []domain.Condition{
		{Type: domain.CondPlayerStat, Parameter: "luck", Operator: domain.OpEquals, Value: 1},
		{Type: domain.CondItemOwned, Parameter: "sword"},
		{Type: domain.CondVariable, Parameter: "mood", Operator: domain.OpEquals, Value: "calm"},
	} {
		ok, err := ev.Evaluate(c, s, "test")
		assert.False(t, ok, c.String())
		var ce *ConditionError
		assert.True(t, errors.As(err, &ce), c.String())
	}
}

func TestEvaluateAll(t *testing.T) {
	m, s := fixture()
	ev := NewEvaluator(m)
	yes := domain.Condition{Type: domain.CondFlagSet, Parameter: "met_npc"}
	no := domain.Condition{Type: domain.CondFlagSet, Parameter: "ghost"}
	unknown := domain.Condition{Type: domain.CondPlayerStat, Parameter: "luck", Operator: domain.OpEquals, Value: 1}

	ok, _ := ev.EvaluateAll(nil, domain.LogicAnd, s, "x")
	assert.True(t, ok)
	ok, _ = ev.EvaluateAll([]domain.Condition{yes, no}, "", s, "x")
	assert.False(t, ok)
	ok, _ = ev.EvaluateAll([]domain.Condition{no, yes}, domain.LogicOr, s, "x")
	assert.True(t, ok)

	// Short circuit: the unknown condition after a satisfied OR is never read.
	ok, errs := ev.EvaluateAll([]domain.Condition{yes, unknown}, domain.LogicOr, s, "x")
	assert.True(t, ok)
	assert.Empty(t, errs)

	ok, errs = ev.EvaluateAll([]domain.Condition{unknown, yes}, domain.LogicOr, s, "x")
	assert.True(t, ok)
	assert.Len(t, errs, 1)
}

func TestEvaluate_PreIncrementVisits(t *testing.T) {
	m, s := fixture()
	ev := NewEvaluator(m)
	ev.PreIncrementVisits = true

	c := domain.Condition{Type: domain.CondCurrentSceneVisits, Operator: domain.OpEquals, Value: 1}
	ok, err := ev.Evaluate(c, s, "x")
	assert.NoError(t, err)
	assert.True(t, ok)

	// Other nodes are not adjusted.
	c = domain.Condition{Type: domain.CondVisitCount, Parameter: "cellar", Operator: domain.OpEquals, Value: 1}
	ok, _ = ev.Evaluate(c, s, "x")
	assert.True(t, ok)
}

func TestRandomChance_IsStableForAState(t *testing.T) {
	m, s := fixture()
	ev := NewEvaluator(m)
	c := domain.Condition{Type: domain.CondRandomChance, Operator: domain.OpLessThan, Value: 50}

	first, _ := ev.Evaluate(c, s, "option:a")
	for i := 0; i < 10; i++ {
		again, _ := ev.Evaluate(c, s, "option:a")
		assert.Equal(t, first, again)
	}

	hits := 0
	for seed := int64(0); seed < 1000; seed++ {
		s.Seed = seed
		if ok, _ := ev.Evaluate(c, s, "option:a"); ok {
			hits++
		}
	}
	assert.InDelta(t, 500, hits, 80)
}

func TestHashSource_Range(t *testing.T) {
	var src HashSource
	for i := int64(0); i < 200; i++ {
		d := src.Draw(i, "k")
		assert.GreaterOrEqual(t, d, 0.0)
		assert.Less(t, d, 1.0)
	}
	assert.Equal(t, src.Draw(42, "a"), src.Draw(42, "a"))
	assert.NotEqual(t, src.Draw(42, "a"), src.Draw(42, "b"))
	assert.Less(t, FixedSource(1).Draw(0, ""), 1.0)
}
