package ports_test

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"

	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/ports"
)

// jsonStore keeps encoded states, as a remote backend would.
type jsonStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (s *jsonStore) Save(ctx context.Context, id string, state *domain.GameState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[string][]byte)
	}
	s.data[id] = raw
	return nil
}

func (s *jsonStore) Load(ctx context.Context, id string) (*domain.GameState, error) {
	s.mu.Lock()
	raw, ok := s.data[id]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrPlaythroughNotFound
	}
	var state domain.GameState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *jsonStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

func (s *jsonStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func TestPlaythroughStore_Contract(t *testing.T) {
	ports.RunPlaythroughStoreContract(t, &jsonStore{})
}

type staticLoader map[string]*domain.Document

func (l staticLoader) ListStories(ctx context.Context) ([]string, error) {
	var ids []string
	for id := range l {
		ids = append(ids, id)
	}
	return ids, nil
}

func (l staticLoader) LoadStory(ctx context.Context, id string) (*domain.Document, error) {
	doc, ok := l[id]
	if !ok {
		return nil, domain.ErrStoryNotFound
	}
	return doc, nil
}

func TestGraphLoader_Contract(t *testing.T) {
	start, _ := domain.NewNode("start", domain.KindStart, "")
	loader := staticLoader{
		"harbor": {ID: "harbor", Title: "Harbor", StartNodeID: "start", Nodes: []*domain.Node{start}},
	}
	ports.RunGraphLoaderContract(t, loader, map[string]string{"harbor": "Harbor"})
}
