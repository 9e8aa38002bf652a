package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/novella/pkg/domain"
)

// Store implements ports.PlaythroughStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.GameState
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.GameState),
	}
}

// Save persists a deep copy of the state.
func (s *Store) Save(ctx context.Context, playthroughID string, state *domain.GameState) error {
	copied := state.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[playthroughID] = copied
	return nil
}

// Load returns a copy so the caller can't mutate the stored state by pointer.
func (s *Store) Load(ctx context.Context, playthroughID string) (*domain.GameState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.data[playthroughID]
	if !ok {
		return nil, domain.ErrPlaythroughNotFound
	}
	return state.Clone(), nil
}

// Delete removes the state.
func (s *Store) Delete(ctx context.Context, playthroughID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, playthroughID)
	return nil
}

// List returns the stored playthrough ids, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
