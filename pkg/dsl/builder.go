package dsl

import (
	"errors"
	"fmt"

	"github.com/aretw0/novella/pkg/adapters/memory"
	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/graph"
)

// Builder manages the story construction.
type Builder struct {
	doc   domain.Document
	nodes []*NodeBuilder
	index map[string]*NodeBuilder
	errs  []error
}

// New creates a new story builder.
func New(storyID string) *Builder {
	return &Builder{
		doc:   domain.Document{ID: storyID},
		index: make(map[string]*NodeBuilder),
	}
}

// Title sets the story title.
func (b *Builder) Title(title string) *Builder {
	b.doc.Title = title
	return b
}

// Version pins the story version. Left empty, the library assigns one.
func (b *Builder) Version(v string) *Builder {
	b.doc.Version = v
	return b
}

// Stat declares a bounded numeric stat.
func (b *Builder) Stat(id string, min, max, initial float64) *Builder {
	b.doc.Mechanics.Stats = append(b.doc.Mechanics.Stats, domain.StatDefinition{
		ID:      id,
		Bounds:  domain.Bounds{Min: &min, Max: &max},
		Initial: initial,
	})
	return b
}

// StatHooks attaches bound hooks to a declared stat.
func (b *Builder) StatHooks(id string, onMin, onMax []domain.Action) *Builder {
	for i := range b.doc.Mechanics.Stats {
		if b.doc.Mechanics.Stats[i].ID == id {
			b.doc.Mechanics.Stats[i].OnMin = onMin
			b.doc.Mechanics.Stats[i].OnMax = onMax
			return b
		}
	}
	b.errs = append(b.errs, fmt.Errorf("stat hooks: stat %q is not declared", id))
	return b
}

// Relationship declares a relationship track with optional stages.
func (b *Builder) Relationship(character, kind string, initial float64, stages ...domain.Stage) *Builder {
	b.doc.Mechanics.Relationships = append(b.doc.Mechanics.Relationships, domain.RelationshipDefinition{
		Character: character,
		Type:      kind,
		Initial:   initial,
		Stages:    stages,
	})
	return b
}

// Item declares an inventory item.
func (b *Builder) Item(def domain.ItemDefinition) *Builder {
	b.doc.Mechanics.Items = append(b.doc.Mechanics.Items, def)
	return b
}

// Currency declares a currency that cannot go negative.
func (b *Builder) Currency(id string, initial float64) *Builder {
	zero := 0.0
	b.doc.Mechanics.Currencies = append(b.doc.Mechanics.Currencies, domain.CurrencyDefinition{
		ID:      id,
		Bounds:  domain.Bounds{Min: &zero},
		Initial: initial,
	})
	return b
}

// Flag declares a flag, initially unset.
func (b *Builder) Flag(id string) *Builder {
	b.doc.Mechanics.Flags = append(b.doc.Mechanics.Flags, domain.FlagDefinition{ID: id})
	return b
}

// Variable declares a typed story variable.
func (b *Builder) Variable(id, typ string, initial any) *Builder {
	b.doc.Mechanics.Variables = append(b.doc.Mechanics.Variables, domain.VariableDefinition{ID: id, Type: typ, Initial: initial})
	return b
}

// Add creates a node of the given kind.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id string, kind domain.NodeKind) *NodeBuilder {
	if nb, ok := b.index[id]; ok {
		if nb.node.Kind != kind {
			b.errs = append(b.errs, fmt.Errorf("node %q redeclared as %s, was %s", id, kind, nb.node.Kind))
		}
		return nb
	}
	node, err := domain.NewNode(id, kind, "")
	if err != nil {
		b.errs = append(b.errs, err)
		node = &domain.Node{ID: id, Kind: kind}
	}
	nb := &NodeBuilder{node: node, builder: b}
	b.nodes = append(b.nodes, nb)
	b.index[id] = nb
	return nb
}

// Start creates the start node and makes it the entry point.
func (b *Builder) Start(id string) *NodeBuilder {
	b.doc.StartNodeID = id
	return b.Add(id, domain.KindStart)
}

func (b *Builder) Scene(id string) *NodeBuilder  { return b.Add(id, domain.KindScene) }
func (b *Builder) Choice(id string) *NodeBuilder { return b.Add(id, domain.KindChoice) }

// Branch creates a condition branch node. Ports are added with When and the
// fallback with Otherwise.
func (b *Builder) Branch(id string) *NodeBuilder { return b.Add(id, domain.KindConditionBranch) }

// Effects creates a variable manipulation node.
func (b *Builder) Effects(id string, actions ...domain.Action) *NodeBuilder {
	return b.Add(id, domain.KindVariableManipulation).Do(actions...)
}

// Ending creates an ending node.
func (b *Builder) Ending(id, endingID, endingType string) *NodeBuilder {
	nb := b.Add(id, domain.KindEnding)
	if nb.node.Ending != nil {
		nb.node.Ending.EndingID = endingID
		nb.node.Ending.EndingType = endingType
	}
	return nb
}

// Jump creates a jump node.
func (b *Builder) Jump(id, target string) *NodeBuilder {
	nb := b.Add(id, domain.KindJump)
	if nb.node.Jump != nil {
		nb.node.Jump.TargetNodeID = target
	}
	return nb
}

// Loop creates a loop_start/loop_end pair. The end node repeats while expr
// holds, at most max times (zero means no cap).
func (b *Builder) Loop(startID, endID, expr string, max int) (start, end *NodeBuilder) {
	start = b.Add(startID, domain.KindLoopStart)
	end = b.Add(endID, domain.KindLoopEnd)
	if start.node.LoopStart != nil {
		start.node.LoopStart.MaxIterations = max
	}
	if end.node.LoopEnd != nil {
		end.node.LoopEnd.LoopStartID = startID
		end.node.LoopEnd.Expression = expr
		end.node.LoopEnd.MaxIterations = max
	}
	return start, end
}

// Parallel creates a parallel_start node fanning out to branches and the
// parallel_end node they join at.
func (b *Builder) Parallel(startID, endID string, branches ...string) (start, end *NodeBuilder) {
	start = b.Add(startID, domain.KindParallelStart)
	for _, target := range branches {
		start.Go(target)
	}
	return start, b.Add(endID, domain.KindParallelEnd)
}

// Document returns the story document.
func (b *Builder) Document() (*domain.Document, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("story %s: %w", b.doc.ID, errors.Join(b.errs...))
	}
	doc := b.doc
	doc.Nodes = make([]*domain.Node, 0, len(b.nodes))
	doc.Edges = nil
	for _, nb := range b.nodes {
		doc.Nodes = append(doc.Nodes, nb.node)
		doc.Edges = append(doc.Edges, nb.edges...)
	}
	return &doc, nil
}

// Build compiles and validates the story.
func (b *Builder) Build(opts ...graph.BuildOption) (*graph.Store, error) {
	doc, err := b.Document()
	if err != nil {
		return nil, err
	}
	return graph.Build(doc, opts...)
}

// Loader wraps the story in a memory loader.
func (b *Builder) Loader() (*memory.Loader, error) {
	doc, err := b.Document()
	if err != nil {
		return nil, err
	}
	loader, err := memory.NewFromDocuments(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to build memory loader: %w", err)
	}
	return loader, nil
}
