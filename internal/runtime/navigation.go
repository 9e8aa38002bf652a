package runtime

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/graph"
)

// run is the working set of one engine call. It owns state, which is already a
// clone of the caller's.
type run struct {
	e     *Engine
	ctx   context.Context
	store *graph.Store
	state *domain.GameState
	resp  *domain.Response
	eval  *Evaluator
	exec  *Executor
	steps int

	// events holds node, choice and ending notifications until the call
	// succeeds. Diagnostics are reported at once since a failed call still
	// returns them.
	events []func()
}

func (e *Engine) newRun(ctx context.Context, store *graph.Store, state *domain.GameState) *run {
	return &run{
		e:     e,
		ctx:   ctx,
		store: store,
		state: state,
		resp:  &domain.Response{State: state},
		eval:  e.evaluator(store),
		exec:  NewExecutor(store.Mechanics()),
	}
}

// resume consumes one reader step at the paused node and advances.
func (r *run) resume(optionID string) error {
	if r.state.Status != domain.StatusAwaitingPresentation {
		return r.advance()
	}
	n, err := r.node(r.state.CurrentNodeID)
	if err != nil {
		return err
	}

	var nav domain.Navigation
	switch {
	case n.Scene != nil:
		if optionID != "" {
			return &domain.InvalidSelectionError{NodeID: n.ID, OptionID: optionID}
		}
		r.state.Turn++
		nav = r.actions(n.Scene.Actions)
		if nav.None() {
			edge, ok := r.activeEdge(n.ID, "")
			if !ok {
				return &StallError{NodeID: n.ID, Reason: "no active edge leaves the scene"}
			}
			nav.Target = edge.TargetNodeID
		}

	case n.Choice != nil:
		if optionID == "" {
			return fmt.Errorf("%w at %q", domain.ErrSelectionRequired, n.ID)
		}
		visible, _ := partitionOptions(r.eval, n, r.state, nil)
		if defaultOption(optionID, visible) == "" {
			return &domain.InvalidSelectionError{NodeID: n.ID, OptionID: optionID}
		}
		if nav, err = r.choose(n, optionID); err != nil {
			return err
		}

	default:
		return fmt.Errorf("playthrough is paused on %s node %q", n.Kind, n.ID)
	}

	r.state.Status = domain.StatusRunning
	if err := r.follow(n, nav); err != nil {
		return err
	}
	if r.state.Ended() {
		return nil
	}
	return r.advance()
}

// choose records a selection, runs the option's actions and resolves where
// it leads: action navigation, the option target, an edge on the option port,
// then an edge on the plain output.
func (r *run) choose(n *domain.Node, optionID string) (domain.Navigation, error) {
	opt, _ := n.Choice.Option(optionID)
	r.state.Choices = append(r.state.Choices, n.ID+"/"+opt.ID)
	r.state.Turn++
	if h := r.e.hooks.OnChoiceSelected; h != nil {
		ev := &domain.ChoiceEvent{EventBase: r.event(domain.EventChoiceSelected), NodeID: n.ID, OptionID: opt.ID}
		r.emit(func() { h(r.ctx, ev) })
	}
	r.e.logger.Debug("choice selected", "node", n.ID, "option", opt.ID)

	nav := r.actions(opt.Actions)
	if !nav.None() {
		return nav, nil
	}
	if opt.TargetNodeID != "" {
		return domain.Navigation{Target: opt.TargetNodeID}, nil
	}
	if edge, ok := r.activeEdge(n.ID, opt.ID); ok {
		return domain.Navigation{Target: edge.TargetNodeID}, nil
	}
	if edge, ok := r.activeEdge(n.ID, ""); ok {
		return domain.Navigation{Target: edge.TargetNodeID}, nil
	}
	return nav, &StallError{NodeID: n.ID, Reason: fmt.Sprintf("option %q leads nowhere", opt.ID)}
}

// advance walks automatic nodes until the playthrough pauses or ends.
func (r *run) advance() error {
	for {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		n, err := r.node(r.state.CurrentNodeID)
		if err != nil {
			return err
		}

		switch n.Kind {
		case domain.KindScene:
			r.pause(scenePresentation(n))
			return nil

		case domain.KindChoice:
			visible, locked := partitionOptions(r.eval, n, r.state, r.conditionErrors(n.ID))
			if len(visible) > 0 {
				r.pause(choicePresentation(n, visible, locked))
				return nil
			}
			edge, ok := r.activeEdge(n.ID, "")
			if !ok {
				return &StallError{NodeID: n.ID, Reason: "no option is available and no fallback edge is active"}
			}
			r.e.logger.Debug("choice has no available option, taking fallback", "node", n.ID)
			if err := r.follow(n, domain.Navigation{Target: edge.TargetNodeID}); err != nil {
				return err
			}

		case domain.KindEnding:
			r.finish(ResolveEnding(r.store, n))
			return nil

		default:
			nav, err := r.step(n)
			if err != nil {
				return err
			}
			if err := r.follow(n, nav); err != nil {
				return err
			}
		}

		if r.state.Ended() {
			return nil
		}
		r.steps++
		if r.steps > r.e.maxAutoSteps {
			return &StallError{NodeID: r.state.CurrentNodeID, Reason: "automatic step limit exceeded", Steps: r.steps - 1}
		}
	}
}

// step resolves an automatic node to where the cursor goes next.
func (r *run) step(n *domain.Node) (domain.Navigation, error) {
	switch n.Kind {
	case domain.KindStart, domain.KindVariableManipulation:
		if nav := r.actions(n.Actions()); !nav.None() {
			return nav, nil
		}
		return r.plainEdge(n)

	case domain.KindConditionBranch:
		port := n.Branch.DefaultOutputPortID
		for _, b := range n.Branch.Branches {
			ok, errs := r.eval.EvaluateAll(b.Conditions, b.Logic, r.state, "branch:"+b.Port)
			r.report(n.ID, errs)
			if ok {
				port = b.Port
				break
			}
		}
		edge, ok := r.activeEdge(n.ID, port)
		if !ok {
			return domain.Navigation{}, &StallError{NodeID: n.ID, Reason: fmt.Sprintf("no active edge on port %q", port)}
		}
		return domain.Navigation{Target: edge.TargetNodeID}, nil

	case domain.KindJump:
		return domain.Navigation{Target: n.Jump.TargetNodeID}, nil

	case domain.KindParallelStart:
		var targets []string
		for i, e := range r.store.EdgesFrom(n.ID, "") {
			if r.edgeActive(e, i) {
				targets = append(targets, e.TargetNodeID)
			}
		}
		if len(targets) == 0 {
			return domain.Navigation{}, &StallError{NodeID: n.ID, Reason: "no active branch leaves the parallel section"}
		}
		r.state.Parallel = append(r.state.Parallel, domain.ParallelFrame{NodeID: n.ID, Remaining: targets[1:]})
		return domain.Navigation{Target: targets[0]}, nil

	case domain.KindParallelEnd:
		if last := len(r.state.Parallel) - 1; last >= 0 {
			frame := &r.state.Parallel[last]
			if len(frame.Remaining) > 0 {
				next := frame.Remaining[0]
				frame.Remaining = frame.Remaining[1:]
				return domain.Navigation{Target: next}, nil
			}
			r.state.Parallel = r.state.Parallel[:last]
		}
		return r.plainEdge(n)

	case domain.KindLoopEnd:
		return r.loopEnd(n)

	case domain.KindNote, domain.KindGroup, domain.KindLoopStart:
		return r.plainEdge(n)
	}
	return domain.Navigation{}, fmt.Errorf("%w: %q at %q", domain.ErrUnknownNodeKind, n.Kind, n.ID)
}

// loopEnd counts a completed iteration and either repeats the body or exits,
// resetting the counter.
func (r *run) loopEnd(n *domain.Node) (domain.Navigation, error) {
	c := n.LoopEnd
	limit := c.MaxIterations
	if limit == 0 {
		if start, ok := r.store.Node(c.LoopStartID); ok && start.LoopStart != nil {
			limit = start.LoopStart.MaxIterations
		}
	}
	done := r.state.Loops[c.LoopStartID] + 1
	again, errs := r.eval.EvaluateAll(c.Conditions, c.Logic, r.state, "loop")
	r.report(n.ID, errs)
	if again && (limit == 0 || done < limit) {
		r.state.Loops[c.LoopStartID] = done
		return domain.Navigation{Target: c.LoopStartID}, nil
	}
	delete(r.state.Loops, c.LoopStartID)
	return r.plainEdge(n)
}

func (r *run) plainEdge(n *domain.Node) (domain.Navigation, error) {
	edge, ok := r.activeEdge(n.ID, "")
	if !ok {
		return domain.Navigation{}, &StallError{NodeID: n.ID, Reason: "no active edge"}
	}
	return domain.Navigation{Target: edge.TargetNodeID}, nil
}

// activeEdge returns the first edge leaving port whose conditions hold.
func (r *run) activeEdge(from, port string) (domain.Edge, bool) {
	for i, e := range r.store.EdgesFrom(from, port) {
		if r.edgeActive(e, i) {
			return e, true
		}
	}
	return domain.Edge{}, false
}

func (r *run) edgeActive(e domain.Edge, index int) bool {
	site := "edge:" + e.ID
	if e.ID == "" {
		site = "edge:" + e.SourcePort + ":" + strconv.Itoa(index)
	}
	ok, errs := r.eval.EvaluateAll(e.Conditions, e.Logic, r.state, site)
	r.report(e.SourceNodeID, errs)
	return ok
}

// follow applies a navigation: an inline ending or a move to another node.
func (r *run) follow(from *domain.Node, nav domain.Navigation) error {
	switch {
	case nav.Ending != nil:
		r.leave(from)
		r.finish(*nav.Ending)
		return nil
	case nav.Target != "":
		r.leave(from)
		return r.enter(nav.Target)
	}
	return &StallError{NodeID: from.ID, Reason: "nowhere to go"}
}

// enter moves the cursor and counts the visit before anything at the node is
// evaluated.
func (r *run) enter(id string) error {
	n, err := r.node(id)
	if err != nil {
		return err
	}
	r.state.CurrentNodeID = id
	r.state.Visits[id]++
	r.state.History = append(r.state.History, id)
	r.e.logger.Debug("node entered", "playthrough", r.state.PlaythroughID, "node", id, "kind", n.Kind)
	if h := r.e.hooks.OnNodeEnter; h != nil {
		ev := &domain.NodeEvent{EventBase: r.event(domain.EventNodeEnter), NodeID: id, NodeKind: n.Kind, Visits: r.state.Visits[id]}
		r.emit(func() { h(r.ctx, ev) })
	}
	return nil
}

func (r *run) leave(n *domain.Node) {
	if h := r.e.hooks.OnNodeLeave; h != nil {
		ev := &domain.NodeEvent{EventBase: r.event(domain.EventNodeLeave), NodeID: n.ID, NodeKind: n.Kind, Visits: r.state.Visits[n.ID]}
		r.emit(func() { h(r.ctx, ev) })
	}
}

func (r *run) pause(p *domain.PresentationRequest) {
	r.state.Status = domain.StatusAwaitingPresentation
	r.resp.Presentation = p
}

func (r *run) finish(ending domain.Ending) {
	r.state.Status = domain.StatusEnded
	r.state.Ending = &ending
	out := ending
	r.resp.Ending = &out
	r.resp.Presentation = nil
	r.e.logger.Debug("ending reached", "playthrough", r.state.PlaythroughID, "ending", ending.EndingID, "node", ending.NodeID)
	if h := r.e.hooks.OnEnding; h != nil {
		ev := &domain.EndingEvent{EventBase: r.event(domain.EventEnding), Ending: ending, Turn: r.state.Turn}
		r.emit(func() { h(r.ctx, ev) })
	}
}

// actions runs a list against the state, collecting its cues and diagnostics.
func (r *run) actions(list []domain.Action) domain.Navigation {
	if len(list) == 0 {
		return domain.Navigation{}
	}
	out := r.exec.ApplyAll(list, r.state)
	r.resp.Cues = append(r.resp.Cues, out.Cues...)
	for _, err := range out.Errors {
		code := CodeInvalidOperation
		var ae *ActionError
		if errors.As(err, &ae) {
			code = ae.Code
		}
		r.diagnose(domain.Diagnostic{Severity: domain.SeverityWarning, Code: code, NodeID: r.state.CurrentNodeID, Message: err.Error()})
	}
	return out.Navigation
}

func (r *run) conditionErrors(nodeID string) func(error) {
	return func(err error) { r.report(nodeID, []error{err}) }
}

func (r *run) report(nodeID string, errs []error) {
	for _, err := range errs {
		r.diagnose(domain.Diagnostic{Severity: domain.SeverityWarning, Code: CodeUnknownParameter, NodeID: nodeID, Message: err.Error()})
	}
}

func (r *run) diagnose(d domain.Diagnostic) {
	r.resp.Diagnostics = append(r.resp.Diagnostics, d)
	r.e.logger.Warn("recoverable story error", "playthrough", r.state.PlaythroughID, "node", d.NodeID, "code", d.Code, "message", d.Message)
	if h := r.e.hooks.OnDiagnostic; h != nil {
		h(r.ctx, &domain.DiagnosticEvent{EventBase: r.event(domain.EventDiagnostic), Diagnostic: d})
	}
}

func (r *run) emit(fn func()) {
	r.events = append(r.events, fn)
}

// flush delivers the buffered lifecycle events in order.
func (r *run) flush() {
	for _, fn := range r.events {
		fn()
	}
	r.events = nil
}

func (r *run) node(id string) (*domain.Node, error) {
	n, ok := r.store.Node(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
	}
	return n, nil
}

func (r *run) event(t domain.EventType) domain.EventBase {
	return domain.EventBase{
		Timestamp:     time.Now(),
		Type:          t,
		PlaythroughID: r.state.PlaythroughID,
		StoryID:       r.state.StoryID,
	}
}
