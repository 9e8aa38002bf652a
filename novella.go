package novella

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/novella/internal/logging"
	"github.com/aretw0/novella/internal/runtime"
	loamAdapter "github.com/aretw0/novella/pkg/adapters/loam"
	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/graph"
	"github.com/aretw0/novella/pkg/ports"
	"github.com/google/uuid"
)

// StartOptions parameterizes a new playthrough.
type StartOptions = ports.StartOptions

// RandomSource supplies the draws of random_chance conditions.
type RandomSource = runtime.RandomSource

// Engine is the high-level entry point for the novella library. It keeps a
// library of published story versions and drives playthroughs against them.
// It holds no playthrough data; states travel in and out of every call.
type Engine struct {
	runtime     *runtime.Engine
	library     *graph.Library
	loader      ports.GraphLoader
	runtimeOpts []runtime.Option
	buildOpts   []graph.BuildOption
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	Name        string
}

var _ ports.NarrativeEngine = (*Engine)(nil)

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithLoader injects a custom GraphLoader, bypassing the default Loam initialization.
func WithLoader(l ports.GraphLoader) Option {
	return func(e *Engine) {
		e.loader = l
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRandomSource replaces the draw source of random_chance conditions.
func WithRandomSource(src RandomSource) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithRandomSource(src))
	}
}

// WithMaxAutoSteps bounds the automatic nodes a single call may walk.
func WithMaxAutoSteps(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithMaxAutoSteps(n))
	}
}

// WithPreIncrementVisits makes visit conditions exclude the visit in
// progress, for stories written under that convention.
func WithPreIncrementVisits(on bool) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithPreIncrementVisits(on))
	}
}

// WithReachabilityDepth bounds the reachability walk run on every publish.
// Zero means unbounded.
func WithReachabilityDepth(depth int) Option {
	return func(e *Engine) {
		e.buildOpts = append(e.buildOpts, graph.WithReachabilityDepth(depth))
	}
}

// New initializes a new Engine.
// By default, it reads the Loam story project at repoPath. With WithLoader,
// repoPath is only a label and may be empty. With neither, the engine starts
// empty and stories are added through Publish.
//
// Every story the loader lists is published before New returns.
func New(repoPath string, opts ...Option) (*Engine, error) {
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.loader == nil && repoPath != "" {
		loader, err := loamAdapter.Open(repoPath)
		if err != nil {
			return nil, err
		}
		eng.loader = loader
	}
	if repoPath != "" {
		if abs, err := filepath.Abs(repoPath); err == nil {
			eng.Name = filepath.Base(abs)
		}
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("project", eng.Name)
	}

	runtimeOpts := []runtime.Option{
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithLogger(eng.logger),
	}
	eng.runtime = runtime.NewEngine(append(runtimeOpts, eng.runtimeOpts...)...)
	eng.library = graph.NewLibrary(eng.buildOpts...)

	if eng.loader != nil {
		if err := eng.Reload(context.Background()); err != nil {
			return nil, err
		}
	}
	return eng, nil
}

// Reload publishes the current version of every story the loader lists.
// Problems are collected so that one broken story does not hide the others.
func (e *Engine) Reload(ctx context.Context) error {
	if e.loader == nil {
		return errors.New("engine has no loader")
	}
	ids, err := e.loader.ListStories(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stories: %w", err)
	}
	var errs []error
	for _, id := range ids {
		if _, err := e.ReloadStory(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReloadStory loads one story from the loader and publishes it as a new
// version.
func (e *Engine) ReloadStory(ctx context.Context, storyID string) (*graph.Store, error) {
	if e.loader == nil {
		return nil, errors.New("engine has no loader")
	}
	doc, err := e.loader.LoadStory(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load story %s: %w", storyID, err)
	}
	return e.Publish(doc)
}

// Publish validates a document and makes it the latest version of its story.
func (e *Engine) Publish(doc *domain.Document) (*graph.Store, error) {
	store, err := e.library.Publish(doc)
	if err != nil {
		return nil, err
	}
	e.logger.Info("story published", "story", store.ID(), "version", store.Version(), "nodes", len(store.Nodes()))
	for _, d := range store.Diagnostics() {
		e.logger.Warn("story diagnostic", "story", store.ID(), "code", d.Code, "node", d.NodeID, "message", d.Message)
	}
	return store, nil
}

// Edit applies fn to a copy of the latest version of a story and publishes
// the result as a new version.
func (e *Engine) Edit(storyID string, fn func(doc *domain.Document) error) (*graph.Store, error) {
	return e.library.Edit(storyID, fn)
}

// StartPlaythrough begins a story and runs to the first presentation or
// ending. The playthrough id and the seed are generated when not given.
func (e *Engine) StartPlaythrough(ctx context.Context, storyID string, opts StartOptions) (*domain.Response, error) {
	store, err := e.library.Get(storyID, opts.Version)
	if err != nil {
		return nil, err
	}
	id := opts.PlaythroughID
	if id == "" {
		id = uuid.NewString()
	}
	var seed int64
	if opts.Seed != nil {
		seed = *opts.Seed
	} else {
		seed = randomSeed()
	}
	return e.runtime.StartPlaythrough(ctx, store, runtime.StartOptions{PlaythroughID: id, Seed: seed})
}

// randomSeed takes 63 bits from a random uuid.
func randomSeed() int64 {
	u := uuid.New()
	return int64(binary.BigEndian.Uint64(u[:8]) >> 1)
}

// Resume advances a paused playthrough against the graph version it
// started on.
func (e *Engine) Resume(ctx context.Context, state *domain.GameState, optionID string) (*domain.Response, error) {
	if state == nil {
		return nil, errors.New("resume needs a state")
	}
	store, err := e.library.Get(state.StoryID, state.GraphVersion)
	if err != nil {
		return &domain.Response{State: state}, err
	}
	return e.runtime.Resume(ctx, store, state, optionID)
}

// DescribeChoices lists the selectable options of a choice node without
// changing the state.
func (e *Engine) DescribeChoices(state *domain.GameState, nodeID string) ([]domain.VisibleOption, error) {
	if state == nil {
		return nil, errors.New("describe choices needs a state")
	}
	store, err := e.library.Get(state.StoryID, state.GraphVersion)
	if err != nil {
		return nil, err
	}
	return e.runtime.DescribeChoices(store, state, nodeID)
}

// Inspect returns a published graph version for visualization or
// introspection tools. An empty version means the latest.
func (e *Engine) Inspect(storyID, version string) (*graph.Store, error) {
	return e.library.Get(storyID, version)
}

// Stories lists the published story ids.
func (e *Engine) Stories() []string {
	return e.library.Stories()
}

// Versions lists the published versions of a story, oldest first.
func (e *Engine) Versions(storyID string) []string {
	return e.library.Versions(storyID)
}

// Watch republishes stories as their sources change and reports the id of
// every story that was republished. Stories that fail to load are logged and
// keep their previous version.
// Returns error if the loader does not support watching.
func (e *Engine) Watch(ctx context.Context) (<-chan string, error) {
	w, ok := e.loader.(ports.Watchable)
	if !ok {
		return nil, fmt.Errorf("current loader does not support watching")
	}
	changes, err := w.Watch(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan string, 1)
	go func() {
		defer close(out)
		for id := range changes {
			var ids []string
			if id == "" {
				if err := e.Reload(ctx); err != nil {
					e.logger.Warn("reload failed", "err", err)
				}
				ids = e.Stories()
			} else if _, err := e.ReloadStory(ctx, id); err != nil {
				e.logger.Warn("reload failed", "story", id, "err", err)
				continue
			} else {
				ids = []string{id}
			}
			for _, changed := range ids {
				select {
				case out <- changed:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Loader returns the underlying GraphLoader used by the engine.
func (e *Engine) Loader() ports.GraphLoader {
	return e.loader
}

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}
