package graph

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/aretw0/novella/pkg/domain"
)

// Library is the catalogue of published stories. Every publish builds a new
// immutable Store; versions already handed out are never modified, so
// playthroughs pinned to an old version keep running against it.
type Library struct {
	mu      sync.RWMutex
	stories map[string]*shelf
	opts    []BuildOption
}

type shelf struct {
	versions map[string]*Store
	order    []string
}

// NewLibrary creates an empty library. The options apply to every Build.
func NewLibrary(opts ...BuildOption) *Library {
	return &Library{stories: make(map[string]*shelf), opts: opts}
}

// Publish validates doc and makes it the latest version of its story. A doc
// without a version, or with one that is already taken, gets the next free
// sequence number.
func (l *Library) Publish(doc *domain.Document) (*Store, error) {
	if doc == nil || doc.ID == "" {
		return nil, fmt.Errorf("publish: document needs an id")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.publish(doc)
}

func (l *Library) publish(doc *domain.Document) (*Store, error) {
	current := l.stories[doc.ID]
	version := doc.Version
	if version == "" || (current != nil && current.versions[version] != nil) {
		version = nextVersion(current)
	}

	staged := *doc
	staged.Version = version
	store, err := Build(&staged, l.opts...)
	if err != nil {
		return nil, err
	}

	next := &shelf{versions: make(map[string]*Store), order: []string{version}}
	if current != nil {
		for v, s := range current.versions {
			next.versions[v] = s
		}
		next.order = append(slices.Clone(current.order), version)
	}
	next.versions[version] = store
	l.stories[doc.ID] = next
	return store, nil
}

// Edit applies fn to a deep copy of the latest version of a story and
// publishes the result as a new version.
func (l *Library) Edit(storyID string, fn func(doc *domain.Document) error) (*Store, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	current, ok := l.stories[storyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrStoryNotFound, storyID)
	}
	doc := current.versions[current.order[len(current.order)-1]].Document()
	if err := fn(doc); err != nil {
		return nil, fmt.Errorf("edit %s: %w", storyID, err)
	}
	doc.ID = storyID
	doc.Version = ""
	return l.publish(doc)
}

// Get returns a specific version. An empty version means the latest.
func (l *Library) Get(storyID, version string) (*Store, error) {
	if version == "" {
		return l.Latest(storyID)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	current, ok := l.stories[storyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrStoryNotFound, storyID)
	}
	s, ok := current.versions[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s@%s", domain.ErrVersionNotFound, storyID, version)
	}
	return s, nil
}

// Latest returns the most recently published version of a story.
func (l *Library) Latest(storyID string) (*Store, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	current, ok := l.stories[storyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrStoryNotFound, storyID)
	}
	return current.versions[current.order[len(current.order)-1]], nil
}

// Stories lists the published story ids, sorted.
func (l *Library) Stories() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.stories))
	for id := range l.stories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Versions lists the versions of a story in publish order.
func (l *Library) Versions(storyID string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if current, ok := l.stories[storyID]; ok {
		return slices.Clone(current.order)
	}
	return nil
}

func nextVersion(current *shelf) string {
	n := 1
	if current != nil {
		n = len(current.order) + 1
		for _, v := range current.order {
			if i, err := strconv.Atoi(v); err == nil && i >= n {
				n = i + 1
			}
		}
		for current.versions[strconv.Itoa(n)] != nil {
			n++
		}
	}
	return strconv.Itoa(n)
}
