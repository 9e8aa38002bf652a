package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/novella/pkg/domain"
)

// GraphOverlay contains dynamic state data to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// OverlayFromState marks the nodes a playthrough has walked.
func OverlayFromState(state *domain.GameState) *GraphOverlay {
	if state == nil {
		return nil
	}
	return &GraphOverlay{VisitedNodes: state.History, CurrentNode: state.CurrentNodeID}
}

var shapes = map[domain.NodeKind][2]string{
	domain.KindStart:                {"((", "))"},
	domain.KindScene:                {"[", "]"},
	domain.KindChoice:               {"{", "}"},
	domain.KindConditionBranch:      {"{{", "}}"},
	domain.KindVariableManipulation: {"[[", "]]"},
	domain.KindEnding:               {"(((", ")))"},
	domain.KindJump:                 {">", "]"},
	domain.KindParallelStart:        {"[/", "\\]"},
	domain.KindParallelEnd:          {"[\\", "/]"},
	domain.KindLoopStart:            {"([", "])"},
	domain.KindLoopEnd:              {"([", "])"},
}

// GenerateMermaid produces a Mermaid flowchart of a story document.
//
// Node shapes follow the kind: start ((circle)), choice {rhombus}, condition
// branch {{hexagon}}, manipulation [[subroutine]], ending (((double circle))).
// Edges are labelled with their port, option text or condition. Jumps and loop
// back-edges are dotted. Notes and groups are editor-only and omitted.
func GenerateMermaid(doc *domain.Document, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	options := make(map[string]map[string]string)
	for _, node := range doc.Nodes {
		shape, ok := shapes[node.Kind]
		if !ok {
			continue
		}
		safeID := sanitizeMermaidID(node.ID)
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, shape[0], nodeLabel(node), shape[1])

		switch {
		case node.Choice != nil:
			texts := make(map[string]string, len(node.Choice.Options))
			for _, o := range node.Choice.Options {
				texts[o.ID] = o.Text
				if o.TargetNodeID != "" {
					fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", safeID, escape(optionLabel(o)), sanitizeMermaidID(o.TargetNodeID))
				}
			}
			options[node.ID] = texts
		case node.Jump != nil:
			fmt.Fprintf(&sb, "    %s -.-> %s\n", safeID, sanitizeMermaidID(node.Jump.TargetNodeID))
		case node.LoopEnd != nil:
			fmt.Fprintf(&sb, "    %s -. \"repeat\" .-> %s\n", safeID, sanitizeMermaidID(node.LoopEnd.LoopStartID))
		}
	}

	for _, e := range doc.Edges {
		label := e.Label
		if label == "" {
			if text, ok := options[e.SourceNodeID][e.SourcePort]; ok {
				label = text
			} else {
				label = e.SourcePort
			}
		}
		if cond := conditionLabel(e.Expression, e.Conditions, e.Logic); cond != "" {
			if label != "" {
				label += ": "
			}
			label += cond
		}
		from, to := sanitizeMermaidID(e.SourceNodeID), sanitizeMermaidID(e.TargetNodeID)
		if label == "" {
			fmt.Fprintf(&sb, "    %s --> %s\n", from, to)
			continue
		}
		fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", from, escape(label), to)
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Black text keeps contrast on light fills in both themes.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if safeID != "" && !visitedSet[safeID] {
				visitedSet[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}
		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

func nodeLabel(n *domain.Node) string {
	label := n.ID
	if n.Title != "" {
		label = n.Title
	}
	if n.Ending != nil && n.Ending.EndingType != "" {
		label += " <br/> " + n.Ending.EndingType
	}
	return escape(label)
}

func optionLabel(o domain.ChoiceOption) string {
	label := o.Text
	if label == "" {
		label = o.ID
	}
	if cond := conditionLabel(o.Expression, o.Conditions, o.DisplayLogic); cond != "" {
		label += " [" + cond + "]"
	}
	return label
}

func conditionLabel(expr string, conds []domain.Condition, logic domain.Logic) string {
	if expr != "" {
		return expr
	}
	if len(conds) == 0 {
		return ""
	}
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = c.String()
	}
	sep := " AND "
	if logic == domain.LogicOr {
		sep = " OR "
	}
	return strings.Join(parts, sep)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
