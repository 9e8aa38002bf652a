package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/aretw0/novella/internal/compiler"
	"github.com/aretw0/novella/pkg/domain"
)

// Loader implements ports.GraphLoader over documents held in memory.
type Loader struct {
	docs map[string][]byte
}

// NewLoader creates a loader from raw JSON or YAML documents keyed by story id.
func NewLoader(data map[string]string) *Loader {
	docs := make(map[string][]byte, len(data))
	for k, v := range data {
		docs[k] = []byte(v)
	}
	return &Loader{docs: docs}
}

// NewFromDocuments creates a loader from domain documents.
// Each document is encoded so that later changes to it do not leak in.
func NewFromDocuments(docs ...*domain.Document) (*Loader, error) {
	data := make(map[string][]byte, len(docs))
	for _, d := range docs {
		if d == nil || d.ID == "" {
			return nil, fmt.Errorf("document missing ID")
		}
		raw, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal story %s: %w", d.ID, err)
		}
		data[d.ID] = raw
	}
	return &Loader{docs: data}, nil
}

// ListStories returns all available story ids, sorted.
func (l *Loader) ListStories(ctx context.Context) ([]string, error) {
	keys := make([]string, 0, len(l.docs))
	for k := range l.docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// LoadStory parses the stored document of a story.
func (l *Loader) LoadStory(ctx context.Context, storyID string) (*domain.Document, error) {
	raw, ok := l.docs[storyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrStoryNotFound, storyID)
	}
	doc, err := compiler.NewParser().Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("story %s: %w", storyID, err)
	}
	if doc.ID == "" {
		doc.ID = storyID
	}
	return doc, nil
}
