package domain

import "sort"

// Mechanics is the author-defined catalogue that game state values conform to.
type Mechanics struct {
	Stats         []StatDefinition         `json:"stats,omitempty" mapstructure:"-"`
	Relationships []RelationshipDefinition `json:"relationships,omitempty" mapstructure:"-"`
	Items         []ItemDefinition         `json:"items,omitempty" mapstructure:"-"`
	Currencies    []CurrencyDefinition     `json:"currencies,omitempty" mapstructure:"currencies"`
	Flags         []FlagDefinition         `json:"flags,omitempty" mapstructure:"flags"`
	Variables     []VariableDefinition     `json:"variables,omitempty" mapstructure:"variables"`
}

// Bounds is an optional closed interval. A nil end is unbounded.
type Bounds struct {
	Min *float64 `json:"min,omitempty" mapstructure:"min"`
	Max *float64 `json:"max,omitempty" mapstructure:"max"`
}

// Clamp limits v to the interval.
func (b Bounds) Clamp(v float64) float64 {
	if b.Min != nil && v < *b.Min {
		v = *b.Min
	}
	if b.Max != nil && v > *b.Max {
		v = *b.Max
	}
	return v
}

// StatDefinition declares a numeric player stat. OnMin and OnMax run when a
// mutation lands the value on that bound.
type StatDefinition struct {
	ID      string `json:"id" mapstructure:"id"`
	Name    string `json:"name,omitempty" mapstructure:"name"`
	Bounds  `mapstructure:",squash"`
	Initial float64  `json:"initial" mapstructure:"initial"`
	OnMin   []Action `json:"on_min,omitempty" mapstructure:"-"`
	OnMax   []Action `json:"on_max,omitempty" mapstructure:"-"`
}

// Stage names a relationship band starting at Threshold.
type Stage struct {
	Name      string  `json:"name" mapstructure:"name"`
	Threshold float64 `json:"threshold" mapstructure:"threshold"`
}

type RelationshipDefinition struct {
	Character string `json:"character" mapstructure:"character"`
	Type      string `json:"type" mapstructure:"type"`
	Bounds    `mapstructure:",squash"`
	Initial   float64 `json:"initial" mapstructure:"initial"`
	Stages    []Stage `json:"stages,omitempty" mapstructure:"stages"`
}

// Key is the game state map key of the relationship.
func (r RelationshipDefinition) Key() string {
	return RelationshipKey(r.Character, r.Type)
}

// RelationshipKey joins a character and relationship type into a state key.
func RelationshipKey(character, kind string) string {
	return character + "/" + kind
}

type ItemDefinition struct {
	ID         string `json:"id" mapstructure:"id"`
	Name       string `json:"name,omitempty" mapstructure:"name"`
	Stackable  bool   `json:"stackable,omitempty" mapstructure:"stackable"`
	Usable     bool   `json:"usable,omitempty" mapstructure:"usable"`
	Consumable bool   `json:"consumable,omitempty" mapstructure:"consumable"`
	// MaxStack caps stackable items. Zero means no cap.
	MaxStack int      `json:"max_stack,omitempty" mapstructure:"max_stack"`
	Initial  int      `json:"initial,omitempty" mapstructure:"initial"`
	OnUse    []Action `json:"on_use,omitempty" mapstructure:"-"`
}

// Limit returns the largest count the item may reach, or -1 when unbounded.
func (i ItemDefinition) Limit() int {
	if !i.Stackable {
		return 1
	}
	if i.MaxStack > 0 {
		return i.MaxStack
	}
	return -1
}

// Clamp bounds a count to [0, Limit()].
func (i ItemDefinition) Clamp(n int) int {
	if limit := i.Limit(); limit >= 0 && n > limit {
		return limit
	}
	return max(n, 0)
}

type CurrencyDefinition struct {
	ID      string `json:"id" mapstructure:"id"`
	Name    string `json:"name,omitempty" mapstructure:"name"`
	Bounds  `mapstructure:",squash"`
	Initial float64 `json:"initial" mapstructure:"initial"`
}

type FlagDefinition struct {
	ID      string `json:"id" mapstructure:"id"`
	Name    string `json:"name,omitempty" mapstructure:"name"`
	Initial bool   `json:"initial,omitempty" mapstructure:"initial"`
}

// VariableDefinition declares a typed story variable. Type uses the schema
// type syntax: "string", "int", "float", "bool", "[string]".
type VariableDefinition struct {
	ID      string `json:"id" mapstructure:"id"`
	Type    string `json:"type" mapstructure:"type"`
	Initial any    `json:"initial,omitempty" mapstructure:"initial"`
}

// Stat returns the definition of a stat.
func (m *Mechanics) Stat(id string) (StatDefinition, bool) {
	for _, s := range m.Stats {
		if s.ID == id {
			return s, true
		}
	}
	return StatDefinition{}, false
}

// Relationship returns the definition for a character and relationship type.
func (m *Mechanics) Relationship(character, kind string) (RelationshipDefinition, bool) {
	for _, r := range m.Relationships {
		if r.Character == character && r.Type == kind {
			return r, true
		}
	}
	return RelationshipDefinition{}, false
}

func (m *Mechanics) Item(id string) (ItemDefinition, bool) {
	for _, i := range m.Items {
		if i.ID == id {
			return i, true
		}
	}
	return ItemDefinition{}, false
}

func (m *Mechanics) Currency(id string) (CurrencyDefinition, bool) {
	for _, c := range m.Currencies {
		if c.ID == id {
			return c, true
		}
	}
	return CurrencyDefinition{}, false
}

func (m *Mechanics) Flag(id string) (FlagDefinition, bool) {
	for _, f := range m.Flags {
		if f.ID == id {
			return f, true
		}
	}
	return FlagDefinition{}, false
}

func (m *Mechanics) Variable(id string) (VariableDefinition, bool) {
	for _, v := range m.Variables {
		if v.ID == id {
			return v, true
		}
	}
	return VariableDefinition{}, false
}

// RelationshipStage names the highest stage whose threshold the current value
// has reached. It returns "" when no stage applies.
func (m *Mechanics) RelationshipStage(state *GameState, character, kind string) string {
	def, ok := m.Relationship(character, kind)
	if !ok || len(def.Stages) == 0 {
		return ""
	}
	stages := append([]Stage(nil), def.Stages...)
	sort.SliceStable(stages, func(i, j int) bool { return stages[i].Threshold < stages[j].Threshold })
	value := state.Relationships[def.Key()]
	name := ""
	for _, s := range stages {
		if value >= s.Threshold {
			name = s.Name
		}
	}
	return name
}
