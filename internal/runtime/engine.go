package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/novella/internal/logging"
	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/graph"
)

// DefaultMaxAutoSteps bounds the automatic nodes a single call may walk.
const DefaultMaxAutoSteps = 1000

// Engine is the narrative state machine. It holds no playthrough data: every
// call takes a graph and a state, works on a clone of the state and returns
// the result, so one Engine can serve any number of playthroughs.
type Engine struct {
	logger       *slog.Logger
	hooks        domain.LifecycleHooks
	random       RandomSource
	maxAutoSteps int
	preIncrement bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for transitions and diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observers for node, choice, ending and
// diagnostic events.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) { e.hooks = e.hooks.Merge(hooks) }
}

// WithRandomSource replaces the draw source of random_chance conditions.
func WithRandomSource(src RandomSource) Option {
	return func(e *Engine) {
		if src != nil {
			e.random = src
		}
	}
}

// WithMaxAutoSteps sets how many automatic nodes a call may walk before it
// fails with a StallError. Non-positive values keep the default.
func WithMaxAutoSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAutoSteps = n
		}
	}
}

// WithPreIncrementVisits makes visit conditions exclude the visit in progress.
func WithPreIncrementVisits(on bool) Option {
	return func(e *Engine) { e.preIncrement = on }
}

// NewEngine creates an engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:       logging.NewNop(),
		random:       HashSource{},
		maxAutoSteps: DefaultMaxAutoSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartOptions identifies a new playthrough.
type StartOptions struct {
	PlaythroughID string
	Seed          int64
}

// StartPlaythrough creates the initial game state and runs from the start node
// to the first presentation or ending.
func (e *Engine) StartPlaythrough(ctx context.Context, store *graph.Store, opts StartOptions) (*domain.Response, error) {
	if store == nil {
		return nil, errors.New("nil graph store")
	}
	state := domain.NewGameState(store.Mechanics(), store.StartNodeID())
	state.PlaythroughID = opts.PlaythroughID
	state.StoryID = store.ID()
	state.GraphVersion = store.Version()
	state.Seed = opts.Seed

	r := e.newRun(ctx, store, state)
	err := r.enter(store.StartNodeID())
	if err == nil {
		err = r.advance()
	}
	if err != nil {
		e.logger.Error("playthrough failed to start", "story", store.ID(), "error", err)
		return nil, err
	}
	r.flush()
	return r.resp, nil
}

// Resume advances a paused playthrough by one reader step. An empty optionID
// continues past a scene; a choice needs the id of one of its visible options.
//
// On failure the returned Response carries the caller's state unchanged. For
// selection errors it also repeats the pending presentation.
func (e *Engine) Resume(ctx context.Context, store *graph.Store, state *domain.GameState, optionID string) (*domain.Response, error) {
	if store == nil || state == nil {
		return nil, errors.New("resume needs a graph store and a state")
	}
	if state.StoryID != "" && state.StoryID != store.ID() {
		return &domain.Response{State: state}, fmt.Errorf("%w: playthrough belongs to story %q, graph is %q", domain.ErrStoryNotFound, state.StoryID, store.ID())
	}
	if state.GraphVersion != "" && state.GraphVersion != store.Version() {
		return &domain.Response{State: state}, fmt.Errorf("%w: playthrough runs on version %q, graph is %q", domain.ErrVersionNotFound, state.GraphVersion, store.Version())
	}
	if state.Ended() {
		return &domain.Response{State: state, Ending: state.Ending}, domain.ErrPlaythroughEnded
	}

	r := e.newRun(ctx, store, state.Clone())
	if err := r.resume(optionID); err != nil {
		resp := &domain.Response{State: state, Diagnostics: r.resp.Diagnostics}
		var invalid *domain.InvalidSelectionError
		if errors.As(err, &invalid) || errors.Is(err, domain.ErrSelectionRequired) {
			resp.Presentation = e.repeat(store, state)
		} else {
			e.logger.Error("resume failed", "playthrough", state.PlaythroughID, "node", state.CurrentNodeID, "error", err)
		}
		return resp, err
	}
	r.flush()
	return r.resp, nil
}

// repeat rebuilds the presentation a paused state is waiting on.
func (e *Engine) repeat(store *graph.Store, state *domain.GameState) *domain.PresentationRequest {
	n, ok := store.Node(state.CurrentNodeID)
	if !ok {
		return nil
	}
	switch {
	case n.Scene != nil:
		return scenePresentation(n)
	case n.Choice != nil:
		visible, locked := partitionOptions(e.evaluator(store), n, state, nil)
		return choicePresentation(n, visible, locked)
	}
	return nil
}

func (e *Engine) evaluator(store *graph.Store) *Evaluator {
	return &Evaluator{Mechanics: store.Mechanics(), Random: e.random, PreIncrementVisits: e.preIncrement}
}
