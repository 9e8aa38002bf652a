package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/novella/internal/presentation/graph"
	"github.com/aretw0/novella/pkg/domain"
)

func node(id string, kind domain.NodeKind, title string) *domain.Node {
	n, err := domain.NewNode(id, kind, title)
	if err != nil {
		panic(err)
	}
	return n
}

func TestGenerateMermaid(t *testing.T) {
	choice := node("ask", domain.KindChoice, "")
	choice.Choice.Options = []domain.ChoiceOption{
		{ID: "wave", Text: "Wave", Expression: "flag.met_npc"},
		{ID: "leave", Text: "Leave \"now\"", TargetNodeID: "home"},
	}
	ending := node("home", domain.KindEnding, "Home")
	ending.Ending.EndingType = "GOOD"
	jump := node("skip", domain.KindJump, "")
	jump.Jump.TargetNodeID = "home"
	loopEnd := node("again", domain.KindLoopEnd, "")
	loopEnd.LoopEnd.LoopStartID = "top"

	tests := []struct {
		name     string
		doc      *domain.Document
		contains []string
		absent   []string
	}{
		{
			name: "Shapes By Kind",
			doc: &domain.Document{Nodes: []*domain.Node{
				node("start", domain.KindStart, ""),
				node("dock", domain.KindScene, "The Dock"),
				node("gate", domain.KindConditionBranch, ""),
				node("fx", domain.KindVariableManipulation, ""),
				ending,
				node("memo", domain.KindNote, ""),
			}},
			contains: []string{
				`start(("start"))`,
				`dock["The Dock"]`,
				`gate{{"gate"}}`,
				`fx[["fx"]]`,
				`home((("Home <br/> GOOD")))`,
			},
			absent: []string{"memo"},
		},
		{
			name: "Option Ports And Targets",
			doc: &domain.Document{
				Nodes: []*domain.Node{choice},
				Edges: []domain.Edge{{SourceNodeID: "ask", SourcePort: "wave", TargetNodeID: "pier"}},
			},
			contains: []string{
				`ask{"ask"}`,
				`ask -- "Leave 'now'" --> home`,
				`ask -- "Wave" --> pier`,
			},
		},
		{
			name: "Conditional Edges",
			doc: &domain.Document{Edges: []domain.Edge{
				{SourceNodeID: "a", TargetNodeID: "b", Expression: `var.name == "Ada"`},
				{SourceNodeID: "a", TargetNodeID: "c", Conditions: []domain.Condition{{Type: domain.CondFlagSet, Parameter: "lit"}}},
				{SourceNodeID: "gate", SourcePort: "brave", TargetNodeID: "d"},
			}},
			contains: []string{
				`a -- "var.name == 'Ada'" --> b`,
				`a -- "flag_set(lit)" --> c`,
				`gate -- "brave" --> d`,
			},
		},
		{
			name: "Dotted Jumps And Loops",
			doc:  &domain.Document{Nodes: []*domain.Node{jump, loopEnd}},
			contains: []string{
				`skip -.-> home`,
				`again -. "repeat" .-> top`,
			},
		},
		{
			name: "ID Sanitization",
			doc: &domain.Document{Nodes: []*domain.Node{
				node("chapter/one.two", domain.KindScene, ""),
				node("hyphen-ated", domain.KindScene, ""),
			}},
			contains: []string{
				`chapter_one_two["chapter/one.two"]`,
				`hyphen_ated["hyphen-ated"]`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GenerateMermaid(tt.doc, nil)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("GenerateMermaid() = \n%v\nWant substring: %v", got, want)
				}
			}
			for _, unwanted := range tt.absent {
				if strings.Contains(got, unwanted) {
					t.Errorf("GenerateMermaid() = \n%v\nUnexpected substring: %v", got, unwanted)
				}
			}
		})
	}
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	doc := &domain.Document{Nodes: []*domain.Node{
		node("start", domain.KindStart, ""),
		node("dock", domain.KindScene, ""),
	}}
	state := &domain.GameState{CurrentNodeID: "dock", History: []string{"start", "dock", "dock"}}

	got := graph.GenerateMermaid(doc, graph.OverlayFromState(state))

	if strings.Count(got, "class dock visited;") != 1 {
		t.Errorf("Expected visited nodes to be deduplicated:\n%s", got)
	}
	for _, want := range []string{"class start visited;", "class dock current;", "classDef current"} {
		if !strings.Contains(got, want) {
			t.Errorf("Missing %q in:\n%s", want, got)
		}
	}
	if graph.OverlayFromState(nil) != nil {
		t.Error("Expected no overlay without a state")
	}
}
