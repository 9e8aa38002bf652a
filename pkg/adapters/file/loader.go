package file

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/novella/internal/compiler"
	"github.com/aretw0/novella/pkg/domain"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader implements ports.GraphLoader and ports.Watchable over a directory of
// story documents, one .yaml, .yml or .json file per story.
type Loader struct {
	dir      string
	debounce time.Duration

	mu    sync.RWMutex
	paths map[string]string // story id -> file
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithDebounce sets how long Watch waits for a burst of writes to settle.
func WithDebounce(d time.Duration) LoaderOption {
	return func(l *Loader) { l.debounce = d }
}

// NewLoader creates a Loader over dir.
func NewLoader(dir string, opts ...LoaderOption) *Loader {
	l := &Loader{dir: dir, debounce: 100 * time.Millisecond, paths: map[string]string{}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func isStoryFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return !strings.HasPrefix(filepath.Base(name), ".")
	}
	return false
}

// storyID reads only the id of a document. A file without one is named
// after its file stem.
func storyID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var header struct {
		ID string `json:"id" yaml:"id"`
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		err = json.Unmarshal(trimmed, &header)
	} else {
		err = yaml.Unmarshal(data, &header)
	}
	if err != nil || header.ID == "" {
		return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), nil
	}
	return header.ID, nil
}

// scan rebuilds the id index from the directory.
func (l *Loader) scan() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("failed to read story directory: %w", err)
	}
	paths := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isStoryFile(e.Name()) {
			continue
		}
		p := filepath.Join(l.dir, e.Name())
		id, err := storyID(p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}
		if prev, dup := paths[id]; dup {
			return fmt.Errorf("story %q is defined by both %s and %s", id, prev, p)
		}
		paths[id] = p
	}
	l.mu.Lock()
	l.paths = paths
	l.mu.Unlock()
	return nil
}

// ListStories returns the story ids found in the directory, sorted.
func (l *Loader) ListStories(ctx context.Context) ([]string, error) {
	if err := l.scan(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.paths))
	for id := range l.paths {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// LoadStory parses the file holding a story.
func (l *Loader) LoadStory(ctx context.Context, storyID string) (*domain.Document, error) {
	l.mu.RLock()
	p, ok := l.paths[storyID]
	l.mu.RUnlock()
	if !ok {
		if err := l.scan(); err != nil {
			return nil, err
		}
		l.mu.RLock()
		p, ok = l.paths[storyID]
		l.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrStoryNotFound, storyID)
		}
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read story %s: %w", storyID, err)
	}
	doc, err := compiler.NewParser().Parse(data)
	if err != nil {
		return nil, fmt.Errorf("story %s (%s): %w", storyID, p, err)
	}
	if doc.ID == "" {
		doc.ID = storyID
	}
	return doc, nil
}

// Watch reports the ids of stories whose files were written, created,
// renamed or removed. Bursts of events on the same file are coalesced.
func (l *Loader) Watch(ctx context.Context) (<-chan string, error) {
	if err := l.scan(); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("story watcher: %w", err)
	}
	if err := w.Add(l.dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("story watcher add %s: %w", l.dir, err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer w.Close()

		pending := map[string]bool{}
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !isStoryFile(ev.Name) || ev.Op == fsnotify.Chmod {
					continue
				}
				pending[ev.Name] = true
				fire = time.After(l.debounce)
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			case <-fire:
				fire = nil
				for _, id := range l.changed(pending) {
					select {
					case out <- id:
					case <-ctx.Done():
						return
					}
				}
				pending = map[string]bool{}
			}
		}
	}()
	return out, nil
}

// changed maps touched files to the story ids they held before and after the
// change, then refreshes the index.
func (l *Loader) changed(files map[string]bool) []string {
	var ids []string
	add := func(id string) {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	l.mu.RLock()
	for id, p := range l.paths {
		if files[p] {
			add(id)
		}
	}
	l.mu.RUnlock()

	for p := range files {
		if id, err := storyID(p); err == nil {
			add(id)
		}
	}
	_ = l.scan()
	sort.Strings(ids)
	return ids
}
