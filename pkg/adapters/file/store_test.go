package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/novella/pkg/adapters/file"
	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.PlaythroughStore = (*file.Store)(nil)

func TestFileStore_Contract(t *testing.T) {
	ports.RunPlaythroughStoreContract(t, file.NewStore(t.TempDir()))
}

func TestFileStore_Layout(t *testing.T) {
	dir := t.TempDir()
	store := file.NewStore(dir)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "pt-1", domain.NewGameState(nil, "start")))
	require.NoError(t, store.Save(ctx, "pt-1", domain.NewGameState(nil, "hall")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
	assert.Equal(t, "pt-1.json", entries[0].Name())

	loaded, err := store.Load(ctx, "pt-1")
	require.NoError(t, err)
	assert.Equal(t, "hall", loaded.CurrentNodeID)

	// Stray files are not playthroughs.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pt-1"}, ids)
}

func TestFileStore_RejectsPathIDs(t *testing.T) {
	store := file.NewStore(t.TempDir())
	ctx := context.Background()
	for _, id := range []string{"", "../escape", `a\b`, ".."} {
		assert.Error(t, store.Save(ctx, id, domain.NewGameState(nil, "start")), id)
		_, err := store.Load(ctx, id)
		assert.Error(t, err, id)
	}
}

func TestFileStore_MissingDirectoryListsNothing(t *testing.T) {
	store := file.NewStore(filepath.Join(t.TempDir(), "absent"))
	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}
