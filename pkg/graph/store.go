package graph

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/aretw0/novella/internal/compiler"
	"github.com/aretw0/novella/pkg/domain"
)

// Store is one immutable, validated version of a story graph. Nodes and edges
// are indexed once at build time; nothing in a Store changes afterwards, so a
// Store may be shared by any number of concurrent playthroughs.
type Store struct {
	doc         *domain.Document
	nodes       map[string]*domain.Node
	edges       map[string][]domain.Edge
	endings     map[string]*domain.Node
	diagnostics []domain.Diagnostic
}

// BuildOption configures Build.
type BuildOption func(*buildConfig)

type buildConfig struct {
	reachDepth int
}

// WithReachabilityDepth bounds the reachability walk used for unreachable node
// warnings. Zero (the default) walks the whole graph.
func WithReachabilityDepth(depth int) BuildOption {
	return func(c *buildConfig) { c.reachDepth = depth }
}

// Build validates a document and indexes it into a Store. The document is
// deep-copied, so later changes to doc do not affect the Store. Fatal problems
// are returned together as a *ValidationError.
func Build(doc *domain.Document, opts ...BuildOption) (*Store, error) {
	cfg := buildConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}
	owned, err := cloneDocument(doc)
	if err != nil {
		return nil, &ValidationError{StoryID: doc.ID, Problems: []Problem{{Message: err.Error()}}}
	}

	s := &Store{
		doc:     owned,
		nodes:   make(map[string]*domain.Node, len(owned.Nodes)),
		edges:   make(map[string][]domain.Edge),
		endings: make(map[string]*domain.Node),
	}
	v := &validation{store: s}
	v.compileExpressions()
	v.index()
	v.check(cfg)
	if len(v.problems) > 0 {
		return nil, &ValidationError{StoryID: owned.ID, Problems: v.problems}
	}
	s.diagnostics = v.warnings
	return s, nil
}

// MustBuild is like Build but panics on error. Intended for tests and examples.
func MustBuild(doc *domain.Document, opts ...BuildOption) *Store {
	s, err := Build(doc, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// ID returns the story id.
func (s *Store) ID() string { return s.doc.ID }

// Version returns the graph version this Store was built as.
func (s *Store) Version() string { return s.doc.Version }

func (s *Store) Title() string { return s.doc.Title }

// StartNodeID returns the entry node.
func (s *Store) StartNodeID() string { return s.doc.StartNodeID }

// Mechanics returns the catalogue. Callers must not modify it.
func (s *Store) Mechanics() *domain.Mechanics { return &s.doc.Mechanics }

// Node returns a node by id. Callers must not modify it.
func (s *Store) Node(id string) (*domain.Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Nodes returns all nodes in author order.
func (s *Store) Nodes() []*domain.Node { return slices.Clone(s.doc.Nodes) }

// Edges returns the outgoing edges of a node in author order.
func (s *Store) Edges(from string) []domain.Edge { return s.edges[from] }

// EdgesFrom returns the outgoing edges of a node leaving through port.
func (s *Store) EdgesFrom(from, port string) []domain.Edge {
	var out []domain.Edge
	for _, e := range s.edges[from] {
		if e.SourcePort == port {
			out = append(out, e)
		}
	}
	return out
}

// AllEdges returns every edge in author order.
func (s *Store) AllEdges() []domain.Edge { return slices.Clone(s.doc.Edges) }

// EndingNode returns the first node declaring endingID.
func (s *Store) EndingNode(endingID string) (*domain.Node, bool) {
	n, ok := s.endings[endingID]
	return n, ok
}

// Diagnostics returns the non-fatal findings of the build.
func (s *Store) Diagnostics() []domain.Diagnostic { return slices.Clone(s.diagnostics) }

// Document returns a deep copy of the source document with expressions
// already compiled into conditions.
func (s *Store) Document() *domain.Document {
	doc, err := cloneDocument(s.doc)
	if err != nil {
		// The document was produced by the same codec, so a failure here is a bug.
		panic(fmt.Sprintf("graph: re-encoding a built document: %v", err))
	}
	return doc
}

// cloneDocument deep-copies a document through its wire encoding.
func cloneDocument(doc *domain.Document) (*domain.Document, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	out, err := compiler.NewParser().Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return out, nil
}
