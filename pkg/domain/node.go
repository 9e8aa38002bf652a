package domain

import "fmt"

// NodeKind is the closed set of node variants a story graph may contain.
type NodeKind string

const (
	// KindStart is the entry point of a story. It runs its actions and continues.
	KindStart NodeKind = "start"
	// KindScene presents narrative text and pauses until the reader continues.
	KindScene NodeKind = "scene"
	// KindChoice presents a set of options and pauses until one is selected.
	KindChoice NodeKind = "choice"
	// KindConditionBranch routes silently to the first branch whose conditions hold.
	KindConditionBranch NodeKind = "condition_branch"
	// KindVariableManipulation applies actions and continues (silent step).
	KindVariableManipulation NodeKind = "variable_manipulation"
	// KindEnding terminates the playthrough.
	KindEnding NodeKind = "ending"
	// KindNote is an editor annotation.
	KindNote NodeKind = "note"
	// KindGroup is an editor grouping.
	KindGroup NodeKind = "group"
	// KindJump moves the cursor to another node without consuming a turn.
	KindJump          NodeKind = "jump"
	KindParallelStart NodeKind = "parallel_start"
	KindParallelEnd   NodeKind = "parallel_end"
	KindLoopStart     NodeKind = "loop_start"
	KindLoopEnd       NodeKind = "loop_end"
)

var nodeKinds = map[NodeKind]struct{}{
	KindStart: {}, KindScene: {}, KindChoice: {}, KindConditionBranch: {},
	KindVariableManipulation: {}, KindEnding: {}, KindNote: {}, KindGroup: {},
	KindJump: {}, KindParallelStart: {}, KindParallelEnd: {}, KindLoopStart: {}, KindLoopEnd: {},
}

// Valid reports whether k is one of the known node kinds.
func (k NodeKind) Valid() bool {
	_, ok := nodeKinds[k]
	return ok
}

// Pauses reports whether the engine yields to the caller on nodes of this kind.
func (k NodeKind) Pauses() bool {
	return k == KindScene || k == KindChoice
}

// Position is editor layout metadata. The engine never reads it.
type Position struct {
	X float64 `json:"x" yaml:"x" mapstructure:"x"`
	Y float64 `json:"y" yaml:"y" mapstructure:"y"`
}

// Node is a unit of the narrative graph.
//
// Content is a discriminated union: exactly one of the variant pointers is set,
// and it always matches Kind. Use NewNode or the graph parser to build nodes so
// that the invariant holds.
type Node struct {
	ID       string
	Kind     NodeKind
	Title    string
	Position *Position

	Start        *StartContent
	Scene        *SceneContent
	Choice       *ChoiceContent
	Branch       *BranchContent
	Manipulation *ManipulationContent
	Ending       *EndingContent
	Note         *NoteContent
	Group        *GroupContent
	Jump         *JumpContent
	Parallel     *ParallelContent
	LoopStart    *LoopStartContent
	LoopEnd      *LoopEndContent
}

// StartContent holds the payload of a start node.
type StartContent struct {
	Text    string   `json:"text,omitempty" mapstructure:"text"`
	Actions []Action `json:"actions,omitempty" mapstructure:"-"`
}

// SceneContent holds the payload of a scene node. Actions run when the reader
// continues past the scene.
type SceneContent struct {
	Text       string   `json:"text,omitempty" mapstructure:"text"`
	Speaker    string   `json:"speaker,omitempty" mapstructure:"speaker"`
	Background string   `json:"background,omitempty" mapstructure:"background"`
	Actions    []Action `json:"actions,omitempty" mapstructure:"-"`
}

// ChoiceContent holds the ordered options of a choice node.
type ChoiceContent struct {
	Prompt          string         `json:"prompt,omitempty" mapstructure:"prompt"`
	Options         []ChoiceOption `json:"options" mapstructure:"-"`
	DefaultOptionID string         `json:"default_option_id,omitempty" mapstructure:"default_option_id"`
	// TimeoutSeconds is a hint for the caller, which owns the clock.
	TimeoutSeconds int `json:"timeout_seconds,omitempty" mapstructure:"timeout_seconds"`
}

// Option returns the option with the given id.
func (c *ChoiceContent) Option(id string) (ChoiceOption, bool) {
	for _, o := range c.Options {
		if o.ID == id {
			return o, true
		}
	}
	return ChoiceOption{}, false
}

// ChoiceOption is a reader-selectable entry of a choice node.
type ChoiceOption struct {
	ID           string      `json:"id" mapstructure:"id"`
	Text         string      `json:"text" mapstructure:"text"`
	Conditions   []Condition `json:"conditions,omitempty" mapstructure:"-"`
	DisplayLogic Logic       `json:"display_logic,omitempty" mapstructure:"display_logic"`
	// Expression is compiled into Conditions when the graph is built.
	Expression string `json:"expression,omitempty" mapstructure:"expression"`
	// HiddenUntilConditionMet omits the option entirely while its conditions
	// fail. Otherwise the option is reported as locked.
	HiddenUntilConditionMet bool     `json:"hidden_until_condition_met,omitempty" mapstructure:"hidden_until_condition_met"`
	Actions                 []Action `json:"actions,omitempty" mapstructure:"-"`
	TargetNodeID            string   `json:"target_node_id,omitempty" mapstructure:"target_node_id"`
}

// Branch is one prioritized exit of a condition branch node.
type Branch struct {
	Port       string      `json:"port" mapstructure:"port"`
	Conditions []Condition `json:"conditions,omitempty" mapstructure:"-"`
	Logic      Logic       `json:"logic,omitempty" mapstructure:"logic"`
	Expression string      `json:"expression,omitempty" mapstructure:"expression"`
}

// BranchContent holds the branches of a condition branch node in priority order.
type BranchContent struct {
	Branches            []Branch `json:"branches" mapstructure:"-"`
	DefaultOutputPortID string   `json:"default_output_port_id" mapstructure:"default_output_port_id"`
}

type ManipulationContent struct {
	Actions []Action `json:"actions" mapstructure:"-"`
}

// EndingContent is copied verbatim into the Ending record.
type EndingContent struct {
	EndingID    string `json:"ending_id" mapstructure:"ending_id"`
	EndingType  string `json:"ending_type,omitempty" mapstructure:"ending_type"`
	Title       string `json:"title,omitempty" mapstructure:"title"`
	Description string `json:"description,omitempty" mapstructure:"description"`
	Image       string `json:"image,omitempty" mapstructure:"image"`
}

type NoteContent struct {
	Text string `json:"text,omitempty" mapstructure:"text"`
}

type GroupContent struct {
	Children []string `json:"children,omitempty" mapstructure:"children"`
}

type JumpContent struct {
	TargetNodeID string `json:"target_node_id" mapstructure:"target_node_id"`
}

// ParallelContent is shared by parallel_start and parallel_end nodes.
type ParallelContent struct {
	Label string `json:"label,omitempty" mapstructure:"label"`
}

type LoopStartContent struct {
	MaxIterations int `json:"max_iterations,omitempty" mapstructure:"max_iterations"`
}

// LoopEndContent sends the cursor back to LoopStartID while Conditions hold
// and fewer than MaxIterations iterations have completed (zero means no cap).
type LoopEndContent struct {
	LoopStartID   string      `json:"loop_start_id" mapstructure:"loop_start_id"`
	Conditions    []Condition `json:"conditions,omitempty" mapstructure:"-"`
	Logic         Logic       `json:"logic,omitempty" mapstructure:"logic"`
	Expression    string      `json:"expression,omitempty" mapstructure:"expression"`
	MaxIterations int         `json:"max_iterations,omitempty" mapstructure:"max_iterations"`
}

// Content returns the variant payload matching the node kind, or nil when the
// node is malformed.
func (n *Node) Content() any {
	switch n.Kind {
	case KindStart:
		return nilIfEmpty(n.Start)
	case KindScene:
		return nilIfEmpty(n.Scene)
	case KindChoice:
		return nilIfEmpty(n.Choice)
	case KindConditionBranch:
		return nilIfEmpty(n.Branch)
	case KindVariableManipulation:
		return nilIfEmpty(n.Manipulation)
	case KindEnding:
		return nilIfEmpty(n.Ending)
	case KindNote:
		return nilIfEmpty(n.Note)
	case KindGroup:
		return nilIfEmpty(n.Group)
	case KindJump:
		return nilIfEmpty(n.Jump)
	case KindParallelStart, KindParallelEnd:
		return nilIfEmpty(n.Parallel)
	case KindLoopStart:
		return nilIfEmpty(n.LoopStart)
	case KindLoopEnd:
		return nilIfEmpty(n.LoopEnd)
	}
	return nil
}

func nilIfEmpty[T any](p *T) any {
	if p == nil {
		return nil
	}
	return p
}

// Actions returns the action list attached to the node, if its kind carries one.
func (n *Node) Actions() []Action {
	switch {
	case n.Start != nil:
		return n.Start.Actions
	case n.Scene != nil:
		return n.Scene.Actions
	case n.Manipulation != nil:
		return n.Manipulation.Actions
	}
	return nil
}

// NewNode builds a node and installs an empty payload of the right variant.
func NewNode(id string, kind NodeKind, title string) (*Node, error) {
	n := &Node{ID: id, Kind: kind, Title: title}
	switch kind {
	case KindStart:
		n.Start = &StartContent{}
	case KindScene:
		n.Scene = &SceneContent{}
	case KindChoice:
		n.Choice = &ChoiceContent{}
	case KindConditionBranch:
		n.Branch = &BranchContent{}
	case KindVariableManipulation:
		n.Manipulation = &ManipulationContent{}
	case KindEnding:
		n.Ending = &EndingContent{}
	case KindNote:
		n.Note = &NoteContent{}
	case KindGroup:
		n.Group = &GroupContent{}
	case KindJump:
		n.Jump = &JumpContent{}
	case KindParallelStart, KindParallelEnd:
		n.Parallel = &ParallelContent{}
	case KindLoopStart:
		n.LoopStart = &LoopStartContent{}
	case KindLoopEnd:
		n.LoopEnd = &LoopEndContent{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeKind, kind)
	}
	return n, nil
}

// Edge is a directed, optionally conditional connection between two nodes.
type Edge struct {
	ID           string `json:"id,omitempty" mapstructure:"id"`
	SourceNodeID string `json:"source_node_id" mapstructure:"source_node_id"`
	// SourcePort names the output of the source node: a branch port, a choice
	// option id, or empty for the node's plain output.
	SourcePort   string            `json:"source_port,omitempty" mapstructure:"source_port"`
	TargetNodeID string            `json:"target_node_id" mapstructure:"target_node_id"`
	Label        string            `json:"label,omitempty" mapstructure:"label"`
	Conditions   []Condition       `json:"conditions,omitempty" mapstructure:"-"`
	Logic        Logic             `json:"condition_logic,omitempty" mapstructure:"condition_logic"`
	Expression   string            `json:"condition_expression,omitempty" mapstructure:"condition_expression"`
	Metadata     map[string]string `json:"metadata,omitempty" mapstructure:"metadata"`
}

// Conditional reports whether the edge is gated.
func (e Edge) Conditional() bool {
	return len(e.Conditions) > 0 || e.Expression != ""
}
