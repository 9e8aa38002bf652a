package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/novella/internal/compiler"
	"github.com/aretw0/novella/internal/validator"
	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/schema"
)

// Problem is one fatal finding of graph validation.
type Problem struct {
	NodeID  string
	Message string
}

func (p Problem) String() string {
	if p.NodeID == "" {
		return p.Message
	}
	return fmt.Sprintf("%s: %s", p.NodeID, p.Message)
}

// ValidationError rejects a document. No playthrough may start against it.
type ValidationError struct {
	StoryID  string
	Problems []Problem
}

func (e *ValidationError) Error() string {
	lines := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		lines = append(lines, p.String())
	}
	return fmt.Sprintf("story %q is invalid (%d problems):\n- %s", e.StoryID, len(e.Problems), strings.Join(lines, "\n- "))
}

// Diagnostic codes reported by Build.
const (
	CodeDuplicateEnding  = "duplicate_ending"
	CodeUnknownParameter = "unknown_parameter"
	CodeEndingEdges      = "ending_has_edges"
	CodeUnreachable      = "unreachable_node"
	CodeStartKind        = "start_not_start_node"
)

type validation struct {
	store    *Store
	problems []Problem
	warnings []domain.Diagnostic
}

func (v *validation) fail(nodeID, format string, args ...any) {
	v.problems = append(v.problems, Problem{NodeID: nodeID, Message: fmt.Sprintf(format, args...)})
}

func (v *validation) warn(code, nodeID, format string, args ...any) {
	v.warnings = append(v.warnings, domain.Diagnostic{
		Severity: domain.SeverityWarning,
		Code:     code,
		NodeID:   nodeID,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (v *validation) index() {
	s := v.store
	if s.doc.ID == "" {
		v.fail("", "document id is required")
	}
	for _, n := range s.doc.Nodes {
		switch {
		case n.ID == "":
			v.fail("", "node without id")
			continue
		case s.nodes[n.ID] != nil:
			v.fail(n.ID, "duplicate node id")
			continue
		case n.Content() == nil:
			v.fail(n.ID, "content does not match kind %q", n.Kind)
			continue
		}
		s.nodes[n.ID] = n
		if n.Kind == domain.KindEnding {
			if first, dup := s.endings[n.Ending.EndingID]; dup {
				v.warn(CodeDuplicateEnding, n.ID, "ending id %q already declared by %q; the first declaration wins", n.Ending.EndingID, first.ID)
			} else {
				s.endings[n.Ending.EndingID] = n
			}
		}
	}
	for _, e := range s.doc.Edges {
		s.edges[e.SourceNodeID] = append(s.edges[e.SourceNodeID], e)
	}
}

// compileExpressions replaces authored expressions with structured
// conditions. An expression takes precedence over a conditions list.
func (v *validation) compileExpressions() {
	compile := func(nodeID, expr string, conds *[]domain.Condition, logic *domain.Logic) {
		if expr == "" {
			return
		}
		c, err := compiler.CompileExpression(expr)
		if err != nil {
			v.fail(nodeID, "%v", err)
			return
		}
		*conds, *logic = c.Conditions, c.Logic
	}
	for _, n := range v.store.doc.Nodes {
		switch {
		case n.Choice != nil:
			for i := range n.Choice.Options {
				o := &n.Choice.Options[i]
				compile(n.ID, o.Expression, &o.Conditions, &o.DisplayLogic)
			}
		case n.Branch != nil:
			for i := range n.Branch.Branches {
				b := &n.Branch.Branches[i]
				compile(n.ID, b.Expression, &b.Conditions, &b.Logic)
			}
		case n.LoopEnd != nil:
			compile(n.ID, n.LoopEnd.Expression, &n.LoopEnd.Conditions, &n.LoopEnd.Logic)
		}
	}
	for i := range v.store.doc.Edges {
		e := &v.store.doc.Edges[i]
		compile(e.SourceNodeID, e.Expression, &e.Conditions, &e.Logic)
	}
}

func (v *validation) check(cfg buildConfig) {
	s := v.store
	v.checkMechanics()

	start, ok := s.nodes[s.doc.StartNodeID]
	switch {
	case s.doc.StartNodeID == "":
		v.fail("", "start_node_id is required")
	case !ok:
		v.fail("", "start node %q: %v", s.doc.StartNodeID, domain.ErrNodeNotFound)
	case start.Kind == domain.KindNote || start.Kind == domain.KindGroup:
		v.fail(start.ID, "start node cannot be a %s", start.Kind)
	case start.Kind != domain.KindStart:
		v.warn(CodeStartKind, start.ID, "start node is a %s node", start.Kind)
	}

	for _, n := range s.doc.Nodes {
		if s.nodes[n.ID] != n {
			continue
		}
		v.checkNode(n)
	}
	v.checkEdges()

	if len(v.problems) > 0 {
		// Graph walks assume every reference resolves.
		return
	}
	for _, p := range validator.DeadEnds(s) {
		v.fail(p.NodeID, "%s", p.Message)
	}
	for _, cycle := range validator.UnboundedCycles(s) {
		v.fail(cycle[0], "automatic nodes %s form a cycle that no condition can break", strings.Join(cycle, " -> "))
	}
	report := validator.Reachability(s, cfg.reachDepth)
	for _, id := range report.Unreachable {
		v.warn(CodeUnreachable, id, "node cannot be reached from %q", s.doc.StartNodeID)
	}
}

func (v *validation) ref(from, target, what string) {
	if target == "" {
		v.fail(from, "%s has no target", what)
		return
	}
	if _, ok := v.store.nodes[target]; !ok {
		v.fail(from, "%s references %q: %v", what, target, domain.ErrNodeNotFound)
	}
}

func (v *validation) checkNode(n *domain.Node) {
	v.checkActions(n.ID, n.Actions())
	switch n.Kind {
	case domain.KindChoice:
		seen := map[string]bool{}
		for _, o := range n.Choice.Options {
			if o.ID == "" {
				v.fail(n.ID, "option without id")
				continue
			}
			if seen[o.ID] {
				v.fail(n.ID, "duplicate option id %q", o.ID)
			}
			seen[o.ID] = true
			v.checkConditions(n.ID, o.Conditions, o.DisplayLogic)
			v.checkActions(n.ID, o.Actions)
			if o.TargetNodeID != "" {
				v.ref(n.ID, o.TargetNodeID, "option "+o.ID)
			}
		}
		if d := n.Choice.DefaultOptionID; d != "" && !seen[d] {
			v.fail(n.ID, "default option %q is not an option", d)
		}
	case domain.KindConditionBranch:
		ports := map[string]bool{}
		for _, b := range n.Branch.Branches {
			if b.Port == "" {
				v.fail(n.ID, "branch without port")
				continue
			}
			if ports[b.Port] {
				v.fail(n.ID, "duplicate branch port %q", b.Port)
			}
			ports[b.Port] = true
			v.checkConditions(n.ID, b.Conditions, b.Logic)
		}
		def := n.Branch.DefaultOutputPortID
		if def == "" {
			v.fail(n.ID, "condition branch has no default output port")
		} else {
			ports[def] = true
		}
		for port := range ports {
			if len(v.store.EdgesFrom(n.ID, port)) == 0 {
				v.fail(n.ID, "branch port %q has no edge", port)
			}
		}
	case domain.KindEnding:
		if n.Ending.EndingID == "" {
			v.fail(n.ID, "ending node has no ending_id")
		}
		if len(v.store.edges[n.ID]) > 0 {
			v.warn(CodeEndingEdges, n.ID, "outgoing edges of an ending are never followed")
		}
	case domain.KindJump:
		v.ref(n.ID, n.Jump.TargetNodeID, "jump")
	case domain.KindLoopEnd:
		v.ref(n.ID, n.LoopEnd.LoopStartID, "loop end")
		if target, ok := v.store.nodes[n.LoopEnd.LoopStartID]; ok && target.Kind != domain.KindLoopStart {
			v.fail(n.ID, "loop end references %q, which is a %s", target.ID, target.Kind)
		}
		if n.LoopEnd.MaxIterations < 0 {
			v.fail(n.ID, "max_iterations cannot be negative")
		}
		v.checkConditions(n.ID, n.LoopEnd.Conditions, n.LoopEnd.Logic)
	case domain.KindLoopStart:
		if n.LoopStart.MaxIterations < 0 {
			v.fail(n.ID, "max_iterations cannot be negative")
		}
	}
}

func (v *validation) checkEdges() {
	for _, e := range v.store.doc.Edges {
		src, ok := v.store.nodes[e.SourceNodeID]
		if !ok {
			v.fail(e.SourceNodeID, "edge %s source: %v", edgeName(e), domain.ErrNodeNotFound)
			continue
		}
		v.ref(src.ID, e.TargetNodeID, "edge "+edgeName(e))
		v.checkConditions(src.ID, e.Conditions, e.Logic)
		if e.SourcePort == "" {
			continue
		}
		switch src.Kind {
		case domain.KindConditionBranch:
			valid := e.SourcePort == src.Branch.DefaultOutputPortID ||
				slices.ContainsFunc(src.Branch.Branches, func(b domain.Branch) bool { return b.Port == e.SourcePort })
			if !valid {
				v.fail(src.ID, "edge %s leaves through unknown port %q", edgeName(e), e.SourcePort)
			}
		case domain.KindChoice:
			if _, ok := src.Choice.Option(e.SourcePort); !ok {
				v.fail(src.ID, "edge %s leaves through unknown option %q", edgeName(e), e.SourcePort)
			}
		default:
			v.fail(src.ID, "%s nodes have no port %q", src.Kind, e.SourcePort)
		}
	}
}

func edgeName(e domain.Edge) string {
	if e.ID != "" {
		return e.ID
	}
	return e.SourceNodeID + "->" + e.TargetNodeID
}

func (v *validation) checkConditions(nodeID string, conds []domain.Condition, logic domain.Logic) {
	if !logic.Valid() {
		v.fail(nodeID, "unknown logic %q", logic)
	}
	m := v.store.Mechanics()
	for _, c := range conds {
		if err := c.Validate(); err != nil {
			v.fail(nodeID, "%v", err)
			continue
		}
		known := true
		switch c.Type {
		case domain.CondPlayerStat:
			_, known = m.Stat(c.Parameter)
		case domain.CondRelationship:
			_, known = m.Relationship(c.Character, c.Parameter)
		case domain.CondCurrency:
			_, known = m.Currency(c.Parameter)
		case domain.CondItemOwned, domain.CondItemNotOwned, domain.CondItemCount:
			_, known = m.Item(c.Parameter)
		case domain.CondFlagSet, domain.CondFlagNotSet:
			_, known = m.Flag(c.Parameter)
		case domain.CondVariableEquals, domain.CondVariable:
			_, known = m.Variable(c.Parameter)
		case domain.CondVisitCount:
			_, known = v.store.nodes[c.Parameter]
		}
		if !known {
			v.warn(CodeUnknownParameter, nodeID, "condition %s reads an undefined parameter", c)
		}
	}
}

func (v *validation) checkActions(nodeID string, actions []domain.Action) {
	m := v.store.Mechanics()
	for _, a := range actions {
		if err := a.Validate(); err != nil {
			v.fail(nodeID, "%v", err)
			continue
		}
		switch {
		case a.Navigate != nil:
			v.ref(nodeID, a.Navigate.TargetNodeID, "navigate action")
		case a.UseItem != nil:
			if _, ok := m.Item(a.UseItem.Parameter); !ok {
				v.warn(CodeUnknownParameter, nodeID, "use_item names undefined item %q", a.UseItem.Parameter)
			}
		case a.Modify != nil:
			if !definedTarget(m, a.Modify) {
				v.warn(CodeUnknownParameter, nodeID, "%s writes undefined %s %q", a.Type, a.Modify.Target, a.Modify.Parameter)
			}
		}
	}
}

func definedTarget(m *domain.Mechanics, a *domain.ModifyAction) bool {
	var ok bool
	switch a.Target {
	case domain.TargetStat:
		_, ok = m.Stat(a.Parameter)
	case domain.TargetRelationship:
		_, ok = m.Relationship(a.Character, a.Parameter)
	case domain.TargetItem:
		_, ok = m.Item(a.Parameter)
	case domain.TargetCurrency:
		_, ok = m.Currency(a.Parameter)
	case domain.TargetFlag:
		_, ok = m.Flag(a.Parameter)
	case domain.TargetVariable:
		_, ok = m.Variable(a.Parameter)
	}
	return ok
}

func (v *validation) checkMechanics() {
	m := v.store.Mechanics()
	ids := map[string]bool{}
	unique := func(kind, id string) {
		key := kind + ":" + id
		if id == "" {
			v.fail("", "%s definition without id", kind)
		} else if ids[key] {
			v.fail("", "duplicate %s definition %q", kind, id)
		}
		ids[key] = true
	}
	bounds := func(kind, id string, b domain.Bounds) {
		if b.Min != nil && b.Max != nil && *b.Min > *b.Max {
			v.fail("", "%s %q has min greater than max", kind, id)
		}
	}
	for _, d := range m.Stats {
		unique("stat", d.ID)
		bounds("stat", d.ID, d.Bounds)
		v.checkActions("", d.OnMin)
		v.checkActions("", d.OnMax)
	}
	for _, d := range m.Relationships {
		unique("relationship", d.Key())
		bounds("relationship", d.Key(), d.Bounds)
	}
	for _, d := range m.Items {
		unique("item", d.ID)
		if d.MaxStack < 0 || d.Initial < 0 {
			v.fail("", "item %q has a negative count", d.ID)
		}
		v.checkActions("", d.OnUse)
	}
	for _, d := range m.Currencies {
		unique("currency", d.ID)
		bounds("currency", d.ID, d.Bounds)
	}
	for _, d := range m.Flags {
		unique("flag", d.ID)
	}
	for _, d := range m.Variables {
		unique("variable", d.ID)
		typ, err := schema.ParseType(d.Type)
		if err != nil {
			v.fail("", "variable %q: %v", d.ID, err)
			continue
		}
		if d.Initial != nil {
			if err := typ.Validate(d.Initial); err != nil {
				v.fail("", "variable %q initial value: %v", d.ID, err)
			}
		}
	}
}
