package ports

import (
	"context"
	"time"

	"github.com/aretw0/novella/pkg/domain"
)

// PlaythroughStore persists game states, enabling "stop and resume" across
// process restarts.
type PlaythroughStore interface {
	// Save persists the state of a playthrough, replacing any previous one.
	Save(ctx context.Context, playthroughID string, state *domain.GameState) error

	// Load retrieves the state of a playthrough.
	// Returns domain.ErrPlaythroughNotFound if it does not exist.
	Load(ctx context.Context, playthroughID string) (*domain.GameState, error)

	// Delete removes a playthrough. Deleting a missing one is not an error.
	Delete(ctx context.Context, playthroughID string) error

	// List returns the ids of all stored playthroughs.
	List(ctx context.Context) ([]string, error)
}

// UnlockFunc releases a lock taken by a DistributedLocker.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker serializes updates to one playthrough across server
// replicas sharing a store. The in-process locks of the session manager only
// cover a single process.
type DistributedLocker interface {
	// Lock blocks until the playthrough is held or ctx ends. The lock expires
	// after ttl even if the holder never releases it.
	Lock(ctx context.Context, playthroughID string, ttl time.Duration) (UnlockFunc, error)
}
