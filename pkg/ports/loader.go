package ports

import (
	"context"

	"github.com/aretw0/novella/pkg/domain"
)

// GraphLoader defines how the engine retrieves story documents.
// This allows the storage layer (Loam, plain files, memory) to be decoupled.
type GraphLoader interface {
	// ListStories returns the ids of the stories the source holds.
	ListStories(ctx context.Context) ([]string, error)

	// LoadStory decodes one story. It returns domain.ErrStoryNotFound when the
	// source has no story with that id.
	LoadStory(ctx context.Context, storyID string) (*domain.Document, error)
}

// Watchable defines an interface for loaders that can notify about backend changes.
// This is typically used for hot-reload or dev-mode functionality.
type Watchable interface {
	// Watch returns a channel that receives the id of every story whose source
	// changed. An empty id means the loader cannot tell which story changed.
	// The channel is closed when ctx is done.
	Watch(ctx context.Context) (<-chan string, error)
}
