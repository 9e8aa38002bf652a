package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/novella/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunPlaythroughStoreContract runs a suite of tests to verify that a
// PlaythroughStore implementation adheres to the interface contract.
func RunPlaythroughStoreContract(t *testing.T, store PlaythroughStore) {
	ctx := context.Background()
	id := "contract-" + time.Now().Format("20060102150405.000000000")

	sample := func(pid string) *domain.GameState {
		s := domain.NewGameState(&domain.Mechanics{
			Stats: []domain.StatDefinition{{ID: "courage", Initial: 2.5}},
			Items: []domain.ItemDefinition{{ID: "rope", Stackable: true, Initial: 3}},
			Variables: []domain.VariableDefinition{
				{ID: "name", Type: "string", Initial: "Ada"},
				{ID: "age", Type: "int", Initial: 31},
			},
		}, "start")
		s.PlaythroughID = pid
		s.StoryID = "contract"
		s.GraphVersion = "1"
		s.Flags["met_npc"] = true
		s.Visits["start"] = 1
		s.History = []string{"start"}
		s.Seed = 42
		return s
	}

	t.Run("Save and Load", func(t *testing.T) {
		state := sample(id)
		require.NoError(t, store.Save(ctx, id, state), "Save should not return error")

		loaded, err := store.Load(ctx, id)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, state.CurrentNodeID, loaded.CurrentNodeID)
		assert.Equal(t, state.StoryID, loaded.StoryID)
		assert.Equal(t, state.GraphVersion, loaded.GraphVersion)
		assert.Equal(t, 2.5, loaded.Stats["courage"])
		assert.Equal(t, 3, loaded.Inventory["rope"])
		assert.True(t, loaded.Flags["met_npc"])
		assert.Equal(t, "Ada", loaded.Variables["name"])
		// JSON backends may widen numbers, so only the value is checked.
		age, ok := domain.ToFloat(loaded.Variables["age"])
		assert.True(t, ok)
		assert.Equal(t, 31.0, age)
		assert.Equal(t, []string{"start"}, loaded.History)
		assert.Equal(t, int64(42), loaded.Seed)
	})

	t.Run("Load returns an independent copy", func(t *testing.T) {
		loaded, err := store.Load(ctx, id)
		require.NoError(t, err)
		loaded.Stats["courage"] = 99

		again, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 2.5, again.Stats["courage"])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+id)
		assert.ErrorIs(t, err, domain.ErrPlaythroughNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, id, sample(id)))
		require.NoError(t, store.Delete(ctx, id), "Delete should not return error")

		_, err := store.Load(ctx, id)
		assert.ErrorIs(t, err, domain.ErrPlaythroughNotFound, "Load after Delete should return ErrPlaythroughNotFound")
		assert.NoError(t, store.Delete(ctx, id), "deleting twice is not an error")
	})

	t.Run("List", func(t *testing.T) {
		id1, id2 := id+"-1", id+"-2"
		_ = store.Save(ctx, id1, sample(id1))
		_ = store.Save(ctx, id2, sample(id2))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}

// RunGraphLoaderContract verifies that a GraphLoader serves exactly the
// stories in want, keyed by id with their expected titles.
func RunGraphLoaderContract(t *testing.T, loader GraphLoader, want map[string]string) {
	t.Helper()
	ctx := context.Background()

	t.Run("ListStories", func(t *testing.T) {
		ids, err := loader.ListStories(ctx)
		require.NoError(t, err)
		assert.Len(t, ids, len(want))
		for id := range want {
			assert.Contains(t, ids, id)
		}
	})

	t.Run("LoadStory", func(t *testing.T) {
		for id, title := range want {
			doc, err := loader.LoadStory(ctx, id)
			require.NoError(t, err, "loading %s", id)
			assert.Equal(t, id, doc.ID)
			assert.Equal(t, title, doc.Title)
			assert.NotEmpty(t, doc.Nodes)
		}
	})

	t.Run("LoadStory NotFound", func(t *testing.T) {
		_, err := loader.LoadStory(ctx, "non-existent-story")
		assert.ErrorIs(t, err, domain.ErrStoryNotFound)
	})
}
