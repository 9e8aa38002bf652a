package loam

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/loam"
	"github.com/aretw0/novella/internal/compiler"
	"github.com/aretw0/novella/pkg/domain"
)

// Loader adapts a Loam repository to the ports.GraphLoader interface. Every
// directory holding a novel manifest is a story; node documents belong to the
// nearest manifest above them.
type Loader struct {
	Repo   *loam.TypedRepository[NodeMetadata]
	parser *compiler.Parser

	mu    sync.Mutex
	known []string
}

// New creates a new Loam adapter.
func New(repo *loam.TypedRepository[NodeMetadata]) *Loader {
	return &Loader{
		Repo:   repo,
		parser: compiler.NewParser(),
	}
}

// Open initializes a read-only Loam repository at dir and wraps it.
func Open(dir string) (*Loader, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	// Strict mode makes markdown and JSON documents agree on numeric types.
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[NodeMetadata](repo)), nil
}

type project struct {
	id       string
	source   string
	manifest NodeMetadata
	nodes    []map[string]any
	edges    []any
	seen     map[string]string
}

// ListStories returns the ids of every manifest in the repository.
func (l *Loader) ListStories(ctx context.Context) ([]string, error) {
	projects, err := l.scan(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.id)
	}
	sort.Strings(ids)
	l.mu.Lock()
	l.known = ids
	l.mu.Unlock()
	return ids, nil
}

// LoadStory assembles the manifest and node documents of a story into a
// Document.
func (l *Loader) LoadStory(ctx context.Context, id string) (*domain.Document, error) {
	projects, err := l.scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		if p.id == id {
			return l.assemble(p)
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrStoryNotFound, id)
}

// scan lists the repository once and groups node documents under their
// manifests, keyed by manifest directory.
func (l *Loader) scan(ctx context.Context) (map[string]*project, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	projects := make(map[string]*project)
	ids := make(map[string]string)
	for _, doc := range docs {
		if doc.Data.Kind != KindNovel {
			continue
		}
		dir := docDir(doc.ID)
		id := doc.Data.ID
		if id == "" {
			id = baseID(doc.ID)
		}
		if existing, ok := projects[dir]; ok {
			return nil, fmt.Errorf("collision detected: directory '%s' has manifests '%s' and '%s'", dir, existing.source, doc.ID)
		}
		if other, ok := ids[id]; ok {
			return nil, fmt.Errorf("collision detected: story '%s' is defined in both '%s' and '%s'", id, other, doc.ID)
		}
		ids[id] = doc.ID
		projects[dir] = &project{id: id, source: doc.ID, manifest: doc.Data, seen: make(map[string]string)}
	}

	for _, doc := range docs {
		if doc.Data.Kind == "" || doc.Data.Kind == KindNovel {
			continue
		}
		p := owner(projects, docDir(doc.ID))
		if p == nil {
			return nil, fmt.Errorf("node document '%s' is outside any novel manifest", doc.ID)
		}
		if err := p.add(doc.ID, doc.Data, doc.Content); err != nil {
			return nil, err
		}
	}

	byID := make(map[string]*project, len(projects))
	for _, p := range projects {
		byID[p.id] = p
	}
	return byID, nil
}

// add converts one node document into raw node and edge objects.
func (p *project) add(source string, meta NodeMetadata, body string) error {
	id := meta.ID
	if id == "" {
		id = baseID(source)
	}
	if existing, ok := p.seen[id]; ok {
		return fmt.Errorf("collision detected: node '%s' is defined in both '%s' and '%s'", id, existing, source)
	}
	p.seen[id] = source

	content := make(map[string]any, len(meta.Content)+1)
	for k, v := range meta.Content {
		content[k] = v
	}
	if text := strings.TrimSpace(body); text != "" {
		field := bodyField(domain.NodeKind(meta.Kind))
		if field == "" {
			return fmt.Errorf("node '%s': kind %s does not take a body", id, meta.Kind)
		}
		if _, ok := content[field]; !ok {
			content[field] = text
		}
	}

	node := map[string]any{"id": id, "kind": meta.Kind}
	if meta.Title != "" {
		node["title"] = meta.Title
	}
	if meta.Position != nil {
		node["position"] = meta.Position
	}
	if len(content) > 0 {
		node["content"] = content
	}
	p.nodes = append(p.nodes, node)

	for i, raw := range meta.Edges {
		e, ok := stringKeys(raw).(map[string]any)
		if !ok {
			return fmt.Errorf("node '%s': edges[%d]: expected an object, got %T", id, i, raw)
		}
		p.edges = append(p.edges, edgeSugar(id, e))
	}
	if meta.To != "" {
		p.edges = append(p.edges, map[string]any{"source_node_id": id, "target_node_id": meta.To})
	}
	return nil
}

// edgeSugar accepts "to" and "port" as short forms and fills in the source.
func edgeSugar(source string, e map[string]any) map[string]any {
	out := make(map[string]any, len(e)+1)
	for k, v := range e {
		switch k {
		case "to":
			out["target_node_id"] = v
		case "port":
			out["source_port"] = v
		default:
			out[k] = v
		}
	}
	out["source_node_id"] = source
	return out
}

func bodyField(kind domain.NodeKind) string {
	switch kind {
	case domain.KindStart, domain.KindScene, domain.KindNote:
		return "text"
	case domain.KindChoice:
		return "prompt"
	case domain.KindEnding:
		return "description"
	}
	return ""
}

// assemble renders the project as a document tree and runs it through the
// regular parser, so both sources share one set of decoding rules.
func (l *Loader) assemble(p *project) (*domain.Document, error) {
	raw := map[string]any{
		"id":            p.id,
		"start_node_id": p.manifest.StartNodeID,
		"nodes":         toAny(p.nodes),
		"edges":         p.edges,
	}
	if p.manifest.Title != "" {
		raw["title"] = p.manifest.Title
	}
	if p.manifest.Version != nil {
		raw["version"] = p.manifest.Version
	}
	if p.manifest.Mechanics != nil {
		raw["mechanics"] = p.manifest.Mechanics
	}

	data, err := json.Marshal(stringKeys(raw))
	if err != nil {
		return nil, fmt.Errorf("story %s: failed to encode: %w", p.id, err)
	}
	doc, err := l.parser.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("story %s: %w", p.id, err)
	}
	return doc, nil
}

// Watch implements ports.Watchable. It reports the stories whose documents
// changed.
func (l *Loader) Watch(ctx context.Context) (<-chan string, error) {
	events, err := l.Repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan string, 1)
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				for _, id := range l.affected(ctx, evt.ID) {
					select {
					case ch <- id:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return ch, nil
}

// affected maps a changed document to the stories it may belong to. When the
// repository cannot be scanned, the last listed stories are reported so
// callers reload and surface the error.
func (l *Loader) affected(ctx context.Context, docID string) []string {
	projects, err := l.scan(ctx)
	if err != nil {
		l.mu.Lock()
		defer l.mu.Unlock()
		return append([]string(nil), l.known...)
	}
	byDir := make(map[string]*project, len(projects))
	for _, p := range projects {
		byDir[docDir(p.source)] = p
	}
	if p := owner(byDir, docDir(docID)); p != nil {
		return []string{p.id}
	}
	ids := make([]string, 0, len(projects))
	for id := range projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func owner(projects map[string]*project, dir string) *project {
	for {
		if p, ok := projects[dir]; ok {
			return p
		}
		if dir == "." || dir == "/" || dir == "" {
			return nil
		}
		dir = path.Dir(dir)
	}
}

func docDir(id string) string {
	return path.Dir(filepath.ToSlash(id))
}

func baseID(id string) string {
	return path.Base(trimExtension(id))
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}

func toAny[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// stringKeys converts map[any]any trees, which some YAML decoders produce, so
// the result can be JSON encoded.
func stringKeys(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[k] = stringKeys(sub)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[fmt.Sprint(k)] = stringKeys(sub)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = stringKeys(sub)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = stringKeys(sub)
		}
		return out
	}
	return v
}
