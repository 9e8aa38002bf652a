package cli

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/novella"
	"github.com/aretw0/novella/internal/config"
	"github.com/aretw0/novella/pkg/adapters/file"
	loamAdapter "github.com/aretw0/novella/pkg/adapters/loam"
	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/ports"
)

// NewLoader opens the story source named by the configuration.
func NewLoader(cfg *config.Config) (ports.GraphLoader, error) {
	switch cfg.Loader {
	case config.LoaderFile:
		return file.NewLoader(cfg.Stories), nil
	default:
		loader, err := loamAdapter.Open(cfg.Stories)
		if err != nil {
			return nil, fmt.Errorf("failed to open story project %s: %w", cfg.Stories, err)
		}
		return loader, nil
	}
}

// NewEngine builds an engine over the configured loader and publishes every
// story it lists.
func NewEngine(cfg *config.Config, logger *slog.Logger, hooks domain.LifecycleHooks) (*novella.Engine, error) {
	loader, err := NewLoader(cfg)
	if err != nil {
		return nil, err
	}
	opts := []novella.Option{
		novella.WithLoader(loader),
		novella.WithLogger(logger),
		novella.WithLifecycleHooks(hooks),
		novella.WithPreIncrementVisits(cfg.Engine.PreIncrementVisits),
	}
	if cfg.Engine.MaxAutoSteps > 0 {
		opts = append(opts, novella.WithMaxAutoSteps(cfg.Engine.MaxAutoSteps))
	}
	if cfg.Engine.ReachabilityDepth > 0 {
		opts = append(opts, novella.WithReachabilityDepth(cfg.Engine.ReachabilityDepth))
	}

	engine, err := novella.New(cfg.Stories, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	return engine, nil
}

// ResolveStory picks the story to play. An explicit id must exist; without
// one, a project holding a single story plays it.
func ResolveStory(engine ports.NarrativeEngine, storyID string) (string, error) {
	stories := engine.Stories()
	if storyID != "" {
		for _, id := range stories {
			if id == storyID {
				return id, nil
			}
		}
		return "", fmt.Errorf("%w: %s (available: %v)", domain.ErrStoryNotFound, storyID, stories)
	}
	switch len(stories) {
	case 0:
		return "", fmt.Errorf("%w: the project has no stories", domain.ErrStoryNotFound)
	case 1:
		return stories[0], nil
	}
	return "", fmt.Errorf("several stories found, pick one with --story: %v", stories)
}
