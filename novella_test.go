package novella_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/novella"
	"github.com/aretw0/novella/pkg/adapters/file"
	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dock(t *testing.T, opts ...novella.Option) *novella.Engine {
	t.Helper()
	b := dsl.New("dock").Title("The Dock")
	b.Start("start").Go("ask")
	b.Choice("ask").
		Option("stay", "Stay ashore", "home").
		Option("sail", "Set sail", "sea")
	b.Ending("home", "home", "NORMAL")
	b.Ending("sea", "sea", "GOOD")

	loader, err := b.Loader()
	require.NoError(t, err)
	eng, err := novella.New("", append([]novella.Option{novella.WithLoader(loader)}, opts...)...)
	require.NoError(t, err)
	return eng
}

func TestEngine_PlaythroughIsPinnedToItsVersion(t *testing.T) {
	eng := dock(t)
	ctx := context.Background()

	old, err := eng.StartPlaythrough(ctx, "dock", novella.StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, "1", old.State.GraphVersion)
	assert.NotEmpty(t, old.State.PlaythroughID, "an id is generated")

	_, err = eng.Edit("dock", func(doc *domain.Document) error {
		for _, n := range doc.Nodes {
			if n.ID == "ask" {
				n.Choice.Options[0].Text = "Stay on the pier"
			}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, eng.Versions("dock"))

	fresh, err := eng.StartPlaythrough(ctx, "dock", novella.StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, "2", fresh.State.GraphVersion)
	assert.Equal(t, "Stay on the pier", fresh.Presentation.Choices.Options[0].Text)

	resp, err := eng.Resume(ctx, old.State, "")
	require.ErrorIs(t, err, domain.ErrSelectionRequired)
	assert.Equal(t, "Stay ashore", resp.Presentation.Choices.Options[0].Text)

	resp, err = eng.Resume(ctx, old.State, "sail")
	require.NoError(t, err)
	require.NotNil(t, resp.Ending)
	assert.Equal(t, "sea", resp.Ending.EndingID)

	pinned, err := eng.StartPlaythrough(ctx, "dock", novella.StartOptions{Version: "1"})
	require.NoError(t, err)
	assert.Equal(t, "1", pinned.State.GraphVersion)
}

func TestEngine_Errors(t *testing.T) {
	eng := dock(t)
	ctx := context.Background()

	_, err := eng.StartPlaythrough(ctx, "castle", novella.StartOptions{})
	assert.ErrorIs(t, err, domain.ErrStoryNotFound)
	_, err = eng.StartPlaythrough(ctx, "dock", novella.StartOptions{Version: "9"})
	assert.ErrorIs(t, err, domain.ErrVersionNotFound)

	resp, err := eng.StartPlaythrough(ctx, "dock", novella.StartOptions{PlaythroughID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, "p1", resp.State.PlaythroughID)

	_, err = eng.Resume(ctx, resp.State, "fly")
	var invalid *domain.InvalidSelectionError
	assert.ErrorAs(t, err, &invalid)

	_, err = eng.Resume(ctx, nil, "")
	assert.Error(t, err)

	_, err = eng.DescribeChoices(resp.State, "home")
	assert.ErrorIs(t, err, domain.ErrNotAChoice)

	_, err = eng.Watch(ctx)
	assert.ErrorContains(t, err, "does not support watching")
}

func TestEngine_SeedIsKept(t *testing.T) {
	eng := dock(t)
	seed := int64(42)
	resp, err := eng.StartPlaythrough(context.Background(), "dock", novella.StartOptions{Seed: &seed})
	require.NoError(t, err)
	assert.Equal(t, int64(42), resp.State.Seed)
}

func TestEngine_LifecycleHooks(t *testing.T) {
	var entered []string
	var ending string
	eng := dock(t, novella.WithLifecycleHooks(domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) { entered = append(entered, e.NodeID) },
		OnEnding:    func(_ context.Context, e *domain.EndingEvent) { ending = e.Ending.EndingID },
	}))
	ctx := context.Background()

	resp, err := eng.StartPlaythrough(ctx, "dock", novella.StartOptions{})
	require.NoError(t, err)
	_, err = eng.Resume(ctx, resp.State, "stay")
	require.NoError(t, err)

	assert.Equal(t, []string{"start", "ask", "home"}, entered)
	assert.Equal(t, "home", ending)
}

const storyV1 = `id: bay
title: The Bay
start_node_id: start
nodes:
  - {id: start, kind: start}
  - {id: end, kind: ending, content: {ending_id: calm}}
edges:
  - {source_node_id: start, target_node_id: end}
`

const storyV2 = `id: bay
title: The Bay at Night
start_node_id: start
nodes:
  - {id: start, kind: start}
  - {id: end, kind: ending, content: {ending_id: storm}}
edges:
  - {source_node_id: start, target_node_id: end}
`

func TestEngine_Watch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(storyV1), 0o644))

	eng, err := novella.New(dir, novella.WithLoader(file.NewLoader(dir)))
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, eng.Versions("bay"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := eng.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(storyV2), 0o644))
	select {
	case id := <-changes:
		assert.Equal(t, "bay", id)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload reported")
	}

	store, err := eng.Inspect("bay", "")
	require.NoError(t, err)
	assert.Equal(t, "The Bay at Night", store.Title())
	assert.Len(t, eng.Versions("bay"), 2)
}

func TestNew_InvalidStory(t *testing.T) {
	dir := t.TempDir()
	broken := `id: bay
start_node_id: start
nodes:
  - {id: start, kind: start}
edges:
  - {source_node_id: start, target_node_id: nowhere}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bay.yaml"), []byte(broken), 0o644))

	_, err := novella.New(dir, novella.WithLoader(file.NewLoader(dir)))
	assert.ErrorContains(t, err, "nowhere")
}
