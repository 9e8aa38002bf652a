// Package validator performs whole-graph analysis of a story: reachability,
// dead ends, and automatic cycles that could never terminate.
package validator

import (
	"slices"

	"github.com/aretw0/novella/pkg/domain"
)

// Graph is the read-only view the validator walks.
type Graph interface {
	StartNodeID() string
	Node(id string) (*domain.Node, bool)
	Nodes() []*domain.Node
	Edges(from string) []domain.Edge
	Mechanics() *domain.Mechanics
}

// Problem pins a finding to a node.
type Problem struct {
	NodeID  string
	Message string
}

// Successors lists every node the engine could move to from n when each
// condition is allowed to be either true or false.
func Successors(g Graph, n *domain.Node) []string {
	var out []string
	add := func(id string) {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	for _, e := range g.Edges(n.ID) {
		add(e.TargetNodeID)
	}
	for _, id := range actionTargets(g.Mechanics(), n.Actions()) {
		add(id)
	}
	switch n.Kind {
	case domain.KindChoice:
		for _, o := range n.Choice.Options {
			add(o.TargetNodeID)
			for _, id := range actionTargets(g.Mechanics(), o.Actions) {
				add(id)
			}
		}
	case domain.KindJump:
		add(n.Jump.TargetNodeID)
	case domain.KindLoopEnd:
		add(n.LoopEnd.LoopStartID)
	}
	return out
}

// actionTargets collects navigation targets of an action list, including the
// ones reachable through stat bound hooks and item use hooks it can trigger.
func actionTargets(m *domain.Mechanics, actions []domain.Action) []string {
	var out []string
	for _, a := range actions {
		switch {
		case a.Navigate != nil:
			out = append(out, a.Navigate.TargetNodeID)
		case a.Modify != nil && a.Modify.Target == domain.TargetStat && m != nil:
			if def, ok := m.Stat(a.Modify.Parameter); ok {
				out = append(out, navTargets(def.OnMin)...)
				out = append(out, navTargets(def.OnMax)...)
			}
		case a.UseItem != nil && m != nil:
			if def, ok := m.Item(a.UseItem.Parameter); ok {
				out = append(out, navTargets(def.OnUse)...)
			}
		}
	}
	return out
}

func navTargets(actions []domain.Action) []string {
	var out []string
	for _, a := range actions {
		if a.Navigate != nil {
			out = append(out, a.Navigate.TargetNodeID)
		}
	}
	return out
}

func ends(actions []domain.Action) bool {
	for _, a := range actions {
		if a.Type == domain.ActEndBranch {
			return true
		}
	}
	return false
}

// Report is the result of a bounded reachability walk.
type Report struct {
	// Depth maps each reached node to its distance from the start node.
	Depth map[string]int
	// Unreachable lists playable nodes the walk never reached, in author order.
	Unreachable []string
	// Truncated is set when the depth bound cut the walk short.
	Truncated bool
}

// Reachability walks the graph breadth-first from the start node over every
// combination of condition outcomes. maxDepth <= 0 means unbounded. Editor-only
// nodes (notes and groups) are never reported.
func Reachability(g Graph, maxDepth int) Report {
	r := Report{Depth: make(map[string]int)}
	start := g.StartNodeID()
	if _, ok := g.Node(start); !ok {
		return r
	}
	r.Depth[start] = 0
	queue := []string{start}

	for len(queue) > 0 {
		currentID := queue[0]
		queue = queue[1:]

		node, ok := g.Node(currentID)
		if !ok {
			continue
		}
		d := r.Depth[currentID]
		for _, next := range Successors(g, node) {
			if _, seen := r.Depth[next]; seen {
				continue
			}
			if maxDepth > 0 && d+1 > maxDepth {
				r.Truncated = true
				continue
			}
			r.Depth[next] = d + 1
			queue = append(queue, next)
		}
	}

	for _, n := range g.Nodes() {
		if n.Kind == domain.KindNote || n.Kind == domain.KindGroup {
			continue
		}
		if _, ok := r.Depth[n.ID]; !ok {
			r.Unreachable = append(r.Unreachable, n.ID)
		}
	}
	return r
}

// DeadEnds reports non-ending nodes from which the engine has no way to move
// on, which would stall a playthrough.
func DeadEnds(g Graph) []Problem {
	var problems []Problem
	for _, n := range g.Nodes() {
		edges := g.Edges(n.ID)
		plain := 0
		for _, e := range edges {
			if e.SourcePort == "" {
				plain++
			}
		}
		switch n.Kind {
		case domain.KindStart, domain.KindScene, domain.KindVariableManipulation:
			if plain == 0 && len(navTargets(n.Actions())) == 0 && !ends(n.Actions()) {
				problems = append(problems, Problem{n.ID, "node has no outgoing edge or navigation"})
			}
		case domain.KindChoice:
			if len(n.Choice.Options) == 0 && plain == 0 {
				problems = append(problems, Problem{n.ID, "choice has no options and no fallback edge"})
			}
			for _, o := range n.Choice.Options {
				if o.TargetNodeID != "" || len(navTargets(o.Actions)) > 0 || ends(o.Actions) || plain > 0 {
					continue
				}
				if !slices.ContainsFunc(edges, func(e domain.Edge) bool { return e.SourcePort == o.ID }) {
					problems = append(problems, Problem{n.ID, "option " + o.ID + " leads nowhere"})
				}
			}
		case domain.KindParallelStart, domain.KindParallelEnd, domain.KindLoopStart, domain.KindLoopEnd:
			if plain == 0 {
				problems = append(problems, Problem{n.ID, string(n.Kind) + " has no outgoing edge"})
			}
		}
	}
	return problems
}

// automatic reports whether the engine passes through the node without
// yielding to the caller.
func automatic(n *domain.Node) bool {
	return !n.Kind.Pauses() && n.Kind != domain.KindEnding
}

// UnboundedCycles finds cycles among automatic nodes that no condition can
// ever break. Each result lists the node ids of one strongly connected
// component in author order.
func UnboundedCycles(g Graph) [][]string {
	var out [][]string
	for _, scc := range automaticSCCs(g) {
		if !terminable(g, scc) {
			out = append(out, scc)
		}
	}
	return out
}

// terminable reports whether some node in the component has a way out of it
// that depends on state, or ends the playthrough outright.
func terminable(g Graph, scc []string) bool {
	in := make(map[string]bool, len(scc))
	for _, id := range scc {
		in[id] = true
	}
	for _, id := range scc {
		n, _ := g.Node(id)
		if ends(n.Actions()) {
			return true
		}
		exits, conditional := false, false
		for _, next := range Successors(g, n) {
			if !in[next] {
				exits = true
			}
		}
		for _, e := range g.Edges(id) {
			if e.Conditional() {
				conditional = true
			}
		}
		switch n.Kind {
		case domain.KindConditionBranch:
			conditional = len(n.Branch.Branches) > 0
		case domain.KindLoopEnd:
			conditional = conditional || loopCapped(g, n.LoopEnd) || len(n.LoopEnd.Conditions) > 0
		}
		if exits && conditional {
			return true
		}
	}
	return false
}

// loopCapped reports whether a loop has an iteration cap, set either on its
// loop_end or inherited from its loop_start.
func loopCapped(g Graph, c *domain.LoopEndContent) bool {
	if c.MaxIterations > 0 {
		return true
	}
	start, ok := g.Node(c.LoopStartID)
	return ok && start.LoopStart != nil && start.LoopStart.MaxIterations > 0
}

// automaticSCCs runs Tarjan's algorithm over the automatic subgraph and
// returns the components that contain a cycle.
func automaticSCCs(g Graph) [][]string {
	var (
		index   = map[string]int{}
		low     = map[string]int{}
		onStack = map[string]bool{}
		stack   []string
		counter int
		out     [][]string
	)

	succ := func(id string) []string {
		n, ok := g.Node(id)
		if !ok || !automatic(n) {
			return nil
		}
		var next []string
		for _, t := range Successors(g, n) {
			if tn, ok := g.Node(t); ok && automatic(tn) {
				next = append(next, t)
			}
		}
		return next
	}

	var connect func(id string)
	connect = func(id string) {
		index[id] = counter
		low[id] = counter
		counter++
		stack = append(stack, id)
		onStack[id] = true

		for _, w := range succ(id) {
			if _, seen := index[w]; !seen {
				connect(w)
				low[id] = min(low[id], low[w])
			} else if onStack[w] {
				low[id] = min(low[id], index[w])
			}
		}

		if low[id] == index[id] {
			var comp []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == id {
					break
				}
			}
			if len(comp) > 1 || slices.Contains(succ(id), id) {
				out = append(out, comp)
			}
		}
	}

	order := map[string]int{}
	for i, n := range g.Nodes() {
		order[n.ID] = i
		if _, seen := index[n.ID]; !seen && automatic(n) {
			connect(n.ID)
		}
	}
	for _, comp := range out {
		slices.SortFunc(comp, func(a, b string) int { return order[a] - order[b] })
	}
	return out
}
