package ports

import (
	"context"

	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/graph"
)

// StartOptions parameterizes a new playthrough.
type StartOptions struct {
	// PlaythroughID is generated when empty.
	PlaythroughID string
	// Version pins a graph version. Empty means the latest.
	Version string
	// Seed drives random_chance conditions. Nil picks a random seed.
	Seed *int64
}

// NarrativeEngine is the engine surface transports drive. It holds no
// playthrough data: states travel in and out of every call.
type NarrativeEngine interface {
	// StartPlaythrough begins a story and runs to the first presentation.
	StartPlaythrough(ctx context.Context, storyID string, opts StartOptions) (*domain.Response, error)

	// Resume advances a paused playthrough. An empty optionID continues past a scene.
	Resume(ctx context.Context, state *domain.GameState, optionID string) (*domain.Response, error)

	// DescribeChoices lists the selectable options of a choice node without
	// changing the state.
	DescribeChoices(state *domain.GameState, nodeID string) ([]domain.VisibleOption, error)

	// Inspect returns a published graph version for visualization or
	// introspection tools. An empty version means the latest.
	Inspect(storyID, version string) (*graph.Store, error)

	// Stories lists the published story ids.
	Stories() []string
}
