package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/novella/pkg/adapters/file"
	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.GraphLoader = (*file.Loader)(nil)
	_ ports.Watchable   = (*file.Loader)(nil)
)

const lighthouse = `id: lighthouse
title: The Lighthouse
start_node_id: start
nodes:
  - {id: start, kind: start}
  - {id: end, kind: ending, content: {ending_id: dawn}}
edges:
  - {source_node_id: start, target_node_id: end}
`

const cellarJSON = `{"id": "cellar", "title": "The Cellar", "start_node_id": "s",
 "nodes": [{"id": "s", "kind": "start"}, {"id": "e", "kind": "ending", "content": {"ending_id": "out"}}],
 "edges": [{"source_node_id": "s", "target_node_id": "e"}]}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestFileLoader_Contract(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lighthouse.yaml", lighthouse)
	writeFile(t, dir, "cellar.json", cellarJSON)
	writeFile(t, dir, "README.md", "# not a story")

	ports.RunGraphLoaderContract(t, file.NewLoader(dir), map[string]string{
		"lighthouse": "The Lighthouse",
		"cellar":     "The Cellar",
	})
}

func TestFileLoader_IDFallsBackToFileName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "anon.yml", "start_node_id: a\nnodes: [{id: a, kind: start}]\n")

	loader := file.NewLoader(dir)
	ids, err := loader.ListStories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"anon"}, ids)

	doc, err := loader.LoadStory(context.Background(), "anon")
	require.NoError(t, err)
	assert.Equal(t, "anon", doc.ID)
}

func TestFileLoader_DuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", lighthouse)
	writeFile(t, dir, "b.yaml", lighthouse)

	_, err := file.NewLoader(dir).ListStories(context.Background())
	assert.ErrorContains(t, err, `story "lighthouse" is defined by both`)
}

func TestFileLoader_LoadErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.yaml", "id: bad\nnodes: [{id: a, kind: portal}]\n")
	loader := file.NewLoader(dir)

	_, err := loader.LoadStory(context.Background(), "bad")
	assert.ErrorIs(t, err, domain.ErrUnknownNodeKind)

	_, err = loader.LoadStory(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrStoryNotFound)
}

func TestFileLoader_Watch(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "lighthouse.yaml", lighthouse)
	loader := file.NewLoader(dir, file.WithDebounce(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := loader.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(p, []byte(lighthouse+"# edited\n"), 0o644))
	waitFor(t, changes, "lighthouse")

	writeFile(t, dir, "cellar.json", cellarJSON)
	waitFor(t, changes, "cellar")

	cancel()
	for range changes {
	}
}

// waitFor drains changes until id shows up. A single write may be reported
// more than once when its events straddle the debounce window.
func waitFor(t *testing.T, changes <-chan string, id string) {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case got, ok := <-changes:
			require.True(t, ok, "watch channel closed")
			if got == id {
				return
			}
		case <-timeout:
			t.Fatalf("change of %s not reported", id)
		}
	}
}
