package dsl

import (
	"fmt"

	"github.com/aretw0/novella/pkg/domain"
)

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    *domain.Node
	edges   []domain.Edge
	builder *Builder
	// option is the index of the option the option modifiers apply to.
	option int
}

func (n *NodeBuilder) fail(format string, args ...any) *NodeBuilder {
	n.builder.errs = append(n.builder.errs, fmt.Errorf("node %q: "+format, append([]any{n.node.ID}, args...)...))
	return n
}

// Title sets the node title.
func (n *NodeBuilder) Title(title string) *NodeBuilder {
	n.node.Title = title
	return n
}

// Text sets the body of a start, scene or note node, the prompt of a
// choice, or the description of an ending.
func (n *NodeBuilder) Text(text string) *NodeBuilder {
	switch {
	case n.node.Start != nil:
		n.node.Start.Text = text
	case n.node.Scene != nil:
		n.node.Scene.Text = text
	case n.node.Note != nil:
		n.node.Note.Text = text
	case n.node.Choice != nil:
		n.node.Choice.Prompt = text
	case n.node.Ending != nil:
		n.node.Ending.Description = text
	default:
		return n.fail("kind %s has no text", n.node.Kind)
	}
	return n
}

// Speaker sets who speaks a scene.
func (n *NodeBuilder) Speaker(name string) *NodeBuilder {
	if n.node.Scene == nil {
		return n.fail("speaker needs a scene")
	}
	n.node.Scene.Speaker = name
	return n
}

// Background sets the backdrop of a scene.
func (n *NodeBuilder) Background(ref string) *NodeBuilder {
	if n.node.Scene == nil {
		return n.fail("background needs a scene")
	}
	n.node.Scene.Background = ref
	return n
}

// Do appends actions. On a choice they attach to the latest option.
func (n *NodeBuilder) Do(actions ...domain.Action) *NodeBuilder {
	switch {
	case n.node.Start != nil:
		n.node.Start.Actions = append(n.node.Start.Actions, actions...)
	case n.node.Scene != nil:
		n.node.Scene.Actions = append(n.node.Scene.Actions, actions...)
	case n.node.Manipulation != nil:
		n.node.Manipulation.Actions = append(n.node.Manipulation.Actions, actions...)
	case n.node.Choice != nil:
		if o := n.current(); o != nil {
			o.Actions = append(o.Actions, actions...)
		}
	default:
		return n.fail("kind %s takes no actions", n.node.Kind)
	}
	return n
}

// Go adds an unconditional edge to the target node.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	n.edges = append(n.edges, domain.Edge{SourceNodeID: n.node.ID, TargetNodeID: target})
	return n
}

// GoIf adds an edge gated by an expression such as "stat.courage >= 3".
func (n *NodeBuilder) GoIf(expr, target string) *NodeBuilder {
	n.edges = append(n.edges, domain.Edge{SourceNodeID: n.node.ID, TargetNodeID: target, Expression: expr})
	return n
}

// Option adds a choice option leading to target. An empty target leaves the
// routing to the option actions or port edges.
func (n *NodeBuilder) Option(id, text, target string) *NodeBuilder {
	if n.node.Choice == nil {
		return n.fail("option %q needs a choice", id)
	}
	n.node.Choice.Options = append(n.node.Choice.Options, domain.ChoiceOption{ID: id, Text: text, TargetNodeID: target})
	n.option = len(n.node.Choice.Options) - 1
	return n
}

// If gates the latest option with an expression. Unless Hidden is also set,
// the option is shown locked while the expression fails.
func (n *NodeBuilder) If(expr string) *NodeBuilder {
	if o := n.current(); o != nil {
		o.Expression = expr
	}
	return n
}

// Requires gates the latest option with structured conditions.
func (n *NodeBuilder) Requires(logic domain.Logic, conds ...domain.Condition) *NodeBuilder {
	if o := n.current(); o != nil {
		o.Conditions = append(o.Conditions, conds...)
		o.DisplayLogic = logic
	}
	return n
}

// Hidden hides the latest option while its conditions fail.
func (n *NodeBuilder) Hidden() *NodeBuilder {
	if o := n.current(); o != nil {
		o.HiddenUntilConditionMet = true
	}
	return n
}

// Default marks the latest option as the default selection, with an
// optional timeout hint for the caller.
func (n *NodeBuilder) Default(timeoutSeconds int) *NodeBuilder {
	if o := n.current(); o != nil {
		n.node.Choice.DefaultOptionID = o.ID
		n.node.Choice.TimeoutSeconds = timeoutSeconds
	}
	return n
}

func (n *NodeBuilder) current() *domain.ChoiceOption {
	if n.node.Choice == nil || len(n.node.Choice.Options) == 0 {
		n.fail("option modifier needs a choice with an option")
		return nil
	}
	return &n.node.Choice.Options[n.option]
}

// When adds a branch port, taken when expr holds, wired to target. Branches
// are tried in the order they are added.
func (n *NodeBuilder) When(port, expr, target string) *NodeBuilder {
	if n.node.Branch == nil {
		return n.fail("when needs a condition branch")
	}
	n.node.Branch.Branches = append(n.node.Branch.Branches, domain.Branch{Port: port, Expression: expr})
	n.edges = append(n.edges, domain.Edge{SourceNodeID: n.node.ID, SourcePort: port, TargetNodeID: target})
	return n
}

// Otherwise sets the fallback port of a branch node, wired to target.
func (n *NodeBuilder) Otherwise(target string) *NodeBuilder {
	if n.node.Branch == nil {
		return n.fail("otherwise needs a condition branch")
	}
	const port = "default"
	n.node.Branch.DefaultOutputPortID = port
	n.edges = append(n.edges, domain.Edge{SourceNodeID: n.node.ID, SourcePort: port, TargetNodeID: target})
	return n
}

// Ends sets the ending record fields beyond id and type.
func (n *NodeBuilder) Ends(title, image string) *NodeBuilder {
	if n.node.Ending == nil {
		return n.fail("ends needs an ending")
	}
	n.node.Ending.Title = title
	n.node.Ending.Image = image
	return n
}

// Build returns the underlying domain.Node.
// This is primarily used by the Builder, but exposed for advanced usage.
func (n *NodeBuilder) Build() *domain.Node {
	return n.node
}
