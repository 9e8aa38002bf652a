package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/novella/pkg/domain"
)

// Store implements ports.PlaythroughStore on the local filesystem, one JSON
// file per playthrough.
type Store struct {
	BasePath string
}

// NewStore creates a Store rooted at basePath, ".novella/playthroughs" when empty.
func NewStore(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".novella", "playthroughs")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid playthrough id %q", id)
	}
	return filepath.Join(s.BasePath, id+".json"), nil
}

// Save writes the state atomically: a temp file in the same directory is
// synced and then renamed over the destination.
func (s *Store) Save(ctx context.Context, playthroughID string, state *domain.GameState) error {
	dest, err := s.path(playthroughID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.BasePath, 0o755); err != nil {
		return fmt.Errorf("failed to ensure playthrough directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(s.BasePath, "tmp-"+playthroughID+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to move state into place: %w", err)
	}
	return nil
}

// Load reads the state of a playthrough.
func (s *Store) Load(ctx context.Context, playthroughID string) (*domain.GameState, error) {
	p, err := s.path(playthroughID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrPlaythroughNotFound, playthroughID)
		}
		return nil, fmt.Errorf("failed to read playthrough file: %w", err)
	}

	var state domain.GameState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal playthrough state: %w", err)
	}
	return &state, nil
}

// Delete removes the playthrough file.
func (s *Store) Delete(ctx context.Context, playthroughID string) error {
	p, err := s.path(playthroughID)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete playthrough file: %w", err)
	}
	return nil
}

// List returns the ids of all stored playthroughs, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list playthroughs: %w", err)
	}

	ids := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}
