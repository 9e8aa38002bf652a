package domain

import (
	"maps"
	"slices"
)

// Status is the position of a playthrough in the engine state machine.
type Status string

const (
	StatusRunning              Status = "running"               // resolving automatic nodes
	StatusAwaitingPresentation Status = "awaiting_presentation" // paused on a scene or choice
	StatusEnded                Status = "ended"                 // terminal
)

// ParallelFrame tracks the branches of a parallel section still to be walked.
type ParallelFrame struct {
	NodeID    string   `json:"node_id"`
	Remaining []string `json:"remaining"`
}

// GameState is the mutable record of one playthrough. It never aliases the
// graph it runs against.
type GameState struct {
	PlaythroughID string `json:"playthrough_id"`
	StoryID       string `json:"story_id"`
	GraphVersion  string `json:"graph_version"`
	CurrentNodeID string `json:"current_node_id"`
	Status        Status `json:"status"`

	Stats         map[string]float64 `json:"stats"`
	Relationships map[string]float64 `json:"relationships"`
	Inventory     map[string]int     `json:"inventory"`
	Currency      map[string]float64 `json:"currency"`
	// Flags holds the set of active flag ids.
	Flags     map[string]bool `json:"flags"`
	Variables map[string]any  `json:"variables"`

	Visits map[string]int `json:"visits"`
	// Choices records selections as "node/option".
	Choices []string `json:"choices,omitempty"`
	History []string `json:"history,omitempty"`

	Parallel []ParallelFrame `json:"parallel,omitempty"`
	Loops    map[string]int  `json:"loops,omitempty"`

	Seed   int64   `json:"seed"`
	Turn   int     `json:"turn"`
	Ending *Ending `json:"ending,omitempty"`
}

// NewGameState creates a state seeded with the catalogue's initial values and
// the cursor on startNodeID.
func NewGameState(m *Mechanics, startNodeID string) *GameState {
	s := &GameState{
		CurrentNodeID: startNodeID,
		Status:        StatusRunning,
		Stats:         make(map[string]float64),
		Relationships: make(map[string]float64),
		Inventory:     make(map[string]int),
		Currency:      make(map[string]float64),
		Flags:         make(map[string]bool),
		Variables:     make(map[string]any),
		Visits:        make(map[string]int),
		Loops:         make(map[string]int),
	}
	if m == nil {
		return s
	}
	for _, d := range m.Stats {
		s.Stats[d.ID] = d.Bounds.Clamp(d.Initial)
	}
	for _, d := range m.Relationships {
		s.Relationships[d.Key()] = d.Bounds.Clamp(d.Initial)
	}
	for _, d := range m.Items {
		s.Inventory[d.ID] = d.Clamp(d.Initial)
	}
	for _, d := range m.Currencies {
		s.Currency[d.ID] = d.Bounds.Clamp(d.Initial)
	}
	for _, d := range m.Flags {
		if d.Initial {
			s.Flags[d.ID] = true
		}
	}
	for _, d := range m.Variables {
		s.Variables[d.ID] = d.Initial
	}
	return s
}

// OwnedItems lists the ids of items with a positive count, sorted.
func (s *GameState) OwnedItems() []string {
	owned := make([]string, 0, len(s.Inventory))
	for id, n := range s.Inventory {
		if n > 0 {
			owned = append(owned, id)
		}
	}
	slices.Sort(owned)
	return owned
}

// ChoiceMade reports whether an option was ever selected. The key is either a
// bare option id or "node/option".
func (s *GameState) ChoiceMade(key string) bool {
	for _, c := range s.Choices {
		if c == key || optionOf(c) == key {
			return true
		}
	}
	return false
}

func optionOf(record string) string {
	for i := len(record) - 1; i >= 0; i-- {
		if record[i] == '/' {
			return record[i+1:]
		}
	}
	return record
}

// Ended reports whether the playthrough reached an ending.
func (s *GameState) Ended() bool {
	return s.Status == StatusEnded
}

// Clone returns a deep copy.
func (s *GameState) Clone() *GameState {
	if s == nil {
		return nil
	}
	c := *s
	c.Stats = maps.Clone(s.Stats)
	c.Relationships = maps.Clone(s.Relationships)
	c.Inventory = maps.Clone(s.Inventory)
	c.Currency = maps.Clone(s.Currency)
	c.Flags = maps.Clone(s.Flags)
	c.Variables = make(map[string]any, len(s.Variables))
	for k, v := range s.Variables {
		c.Variables[k] = cloneValue(v)
	}
	c.Visits = maps.Clone(s.Visits)
	c.Loops = maps.Clone(s.Loops)
	c.Choices = slices.Clone(s.Choices)
	c.History = slices.Clone(s.History)
	if s.Parallel != nil {
		c.Parallel = make([]ParallelFrame, len(s.Parallel))
		for i, f := range s.Parallel {
			c.Parallel[i] = ParallelFrame{NodeID: f.NodeID, Remaining: slices.Clone(f.Remaining)}
		}
	}
	if s.Ending != nil {
		e := *s.Ending
		c.Ending = &e
	}
	ensureMaps(&c)
	return &c
}

func ensureMaps(s *GameState) {
	if s.Stats == nil {
		s.Stats = make(map[string]float64)
	}
	if s.Relationships == nil {
		s.Relationships = make(map[string]float64)
	}
	if s.Inventory == nil {
		s.Inventory = make(map[string]int)
	}
	if s.Currency == nil {
		s.Currency = make(map[string]float64)
	}
	if s.Flags == nil {
		s.Flags = make(map[string]bool)
	}
	if s.Visits == nil {
		s.Visits = make(map[string]int)
	}
	if s.Loops == nil {
		s.Loops = make(map[string]int)
	}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		return slices.Clone(t)
	case []string:
		return slices.Clone(t)
	case map[string]any:
		return maps.Clone(t)
	}
	return v
}
