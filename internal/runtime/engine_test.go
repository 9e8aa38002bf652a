package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/novella/internal/compiler"
	"github.com/aretw0/novella/internal/runtime"
	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, src string) *graph.Store {
	t.Helper()
	doc, err := compiler.NewParser().Parse([]byte(src))
	require.NoError(t, err)
	store, err := graph.Build(doc)
	require.NoError(t, err)
	return store
}

const crossroads = `
id: crossroads
version: "1"
start_node_id: start
nodes:
  - {id: start, kind: start}
  - {id: scene_a, kind: scene, title: Gate, content: {text: A gate in the fog., speaker: Narrator}}
  - id: choice
    kind: choice
    content:
      prompt: Which way?
      options:
        - {id: option1, text: Stay, target_node_id: ending_bad}
        - {id: option2, text: Go}
  - {id: scene_b, kind: scene, content: {text: The road opens.}}
  - {id: ending_bad, kind: ending, content: {ending_id: bad, ending_type: BAD}}
  - {id: ending_good, kind: ending, content: {ending_id: good, ending_type: GOOD, title: Home}}
edges:
  - {source_node_id: start, target_node_id: scene_a}
  - {source_node_id: scene_a, target_node_id: choice}
  - {source_node_id: choice, source_port: option2, target_node_id: scene_b}
  - {source_node_id: scene_b, target_node_id: ending_good}
`

func TestEngine_EndToEnd(t *testing.T) {
	store := build(t, crossroads)
	engine := runtime.NewEngine()
	ctx := context.Background()

	resp, err := engine.StartPlaythrough(ctx, store, runtime.StartOptions{PlaythroughID: "p1", Seed: 7})
	require.NoError(t, err)
	require.NotNil(t, resp.Presentation)
	require.NotNil(t, resp.Presentation.Scene)
	assert.Equal(t, "scene_a", resp.Presentation.Scene.SceneID)
	assert.Equal(t, "Narrator", resp.Presentation.Scene.Speaker)
	assert.Equal(t, domain.StatusAwaitingPresentation, resp.State.Status)
	assert.Equal(t, "crossroads", resp.State.StoryID)
	assert.Equal(t, "1", resp.State.GraphVersion)
	assert.Equal(t, 0, resp.State.Turn)

	resp, err = engine.Resume(ctx, store, resp.State, "")
	require.NoError(t, err)
	require.NotNil(t, resp.Presentation.Choices)
	assert.Equal(t, []domain.VisibleOption{{ID: "option1", Text: "Stay"}, {ID: "option2", Text: "Go"}}, resp.Presentation.Choices.Options)
	assert.Equal(t, "Which way?", resp.Presentation.Choices.Prompt)

	resp, err = engine.Resume(ctx, store, resp.State, "option2")
	require.NoError(t, err)
	require.NotNil(t, resp.Presentation.Scene)
	assert.Equal(t, "scene_b", resp.Presentation.Scene.SceneID)
	assert.Empty(t, resp.State.Flags)
	assert.Equal(t, []string{"choice/option2"}, resp.State.Choices)

	resp, err = engine.Resume(ctx, store, resp.State, "")
	require.NoError(t, err)
	assert.Nil(t, resp.Presentation)
	require.NotNil(t, resp.Ending)
	assert.Equal(t, domain.Ending{EndingID: "good", EndingType: "GOOD", Title: "Home", NodeID: "ending_good"}, *resp.Ending)
	assert.True(t, resp.State.Ended())
	assert.Equal(t, 3, resp.State.Turn)
	assert.Equal(t, []string{"start", "scene_a", "choice", "scene_b", "ending_good"}, resp.State.History)
}

func TestEngine_OptionTargetEndsPlaythrough(t *testing.T) {
	store := build(t, crossroads)
	engine := runtime.NewEngine()
	ctx := context.Background()

	resp, err := engine.StartPlaythrough(ctx, store, runtime.StartOptions{})
	require.NoError(t, err)
	resp, err = engine.Resume(ctx, store, resp.State, "")
	require.NoError(t, err)
	resp, err = engine.Resume(ctx, store, resp.State, "option1")
	require.NoError(t, err)
	require.NotNil(t, resp.Ending)
	assert.Equal(t, "bad", resp.Ending.EndingID)
}

func TestEngine_ResumeErrors(t *testing.T) {
	store := build(t, crossroads)
	engine := runtime.NewEngine()
	ctx := context.Background()

	resp, err := engine.StartPlaythrough(ctx, store, runtime.StartOptions{})
	require.NoError(t, err)
	atScene := resp.State

	t.Run("option at a scene", func(t *testing.T) {
		resp, err := engine.Resume(ctx, store, atScene, "option1")
		var invalid *domain.InvalidSelectionError
		require.True(t, errors.As(err, &invalid))
		assert.Equal(t, "scene_a", invalid.NodeID)
		assert.Same(t, atScene, resp.State)
		assert.Equal(t, "scene_a", resp.Presentation.NodeID())
	})

	resp, err = engine.Resume(ctx, store, atScene, "")
	require.NoError(t, err)
	atChoice := resp.State
	before := atChoice.Clone()

	t.Run("selection required", func(t *testing.T) {
		resp, err := engine.Resume(ctx, store, atChoice, "")
		assert.ErrorIs(t, err, domain.ErrSelectionRequired)
		assert.Same(t, atChoice, resp.State)
		require.NotNil(t, resp.Presentation.Choices)
		assert.Len(t, resp.Presentation.Choices.Options, 2)
	})

	t.Run("unknown option", func(t *testing.T) {
		resp, err := engine.Resume(ctx, store, atChoice, "option9")
		var invalid *domain.InvalidSelectionError
		require.True(t, errors.As(err, &invalid))
		assert.Equal(t, "option9", invalid.OptionID)
		assert.Same(t, atChoice, resp.State)
	})
	assert.Equal(t, before, atChoice)

	t.Run("ended", func(t *testing.T) {
		resp, err := engine.Resume(ctx, store, atChoice, "option1")
		require.NoError(t, err)
		_, err = engine.Resume(ctx, store, resp.State, "")
		assert.ErrorIs(t, err, domain.ErrPlaythroughEnded)
	})

	t.Run("another story", func(t *testing.T) {
		other := atChoice.Clone()
		other.StoryID = "elsewhere"
		_, err := engine.Resume(ctx, store, other, "option1")
		assert.ErrorIs(t, err, domain.ErrStoryNotFound)
	})
}

const gated = `
id: gated
start_node_id: start
mechanics:
  flags: [{id: met_npc}]
nodes:
  - {id: start, kind: start}
  - id: hub
    kind: choice
    content:
      options:
        - id: option1
          text: Greet the keeper
          conditions: [{type: flag_set, parameter: met_npc}]
          target_node_id: end
        - id: option2
          text: Introduce yourself
          actions: [{type: modify_flag, parameter: met_npc, operation: set}]
          target_node_id: hub
  - {id: end, kind: ending, content: {ending_id: friends}}
edges:
  - {source_node_id: start, target_node_id: hub}
`

func TestEngine_GatedChoice(t *testing.T) {
	store := build(t, gated)
	engine := runtime.NewEngine()
	ctx := context.Background()

	resp, err := engine.StartPlaythrough(ctx, store, runtime.StartOptions{})
	require.NoError(t, err)
	choices := resp.Presentation.Choices
	require.NotNil(t, choices)
	assert.Equal(t, []domain.VisibleOption{{ID: "option2", Text: "Introduce yourself"}}, choices.Options)
	assert.Equal(t, []domain.VisibleOption{{ID: "option1", Text: "Greet the keeper"}}, choices.Locked)

	_, err = engine.Resume(ctx, store, resp.State, "option1")
	var invalid *domain.InvalidSelectionError
	require.True(t, errors.As(err, &invalid))

	resp, err = engine.Resume(ctx, store, resp.State, "option2")
	require.NoError(t, err)
	assert.True(t, resp.State.Flags["met_npc"])
	require.NotNil(t, resp.Presentation.Choices)
	assert.Len(t, resp.Presentation.Choices.Options, 2)
	assert.Empty(t, resp.Presentation.Choices.Locked)
	assert.Equal(t, 2, resp.State.Visits["hub"])

	resp, err = engine.Resume(ctx, store, resp.State, "option1")
	require.NoError(t, err)
	assert.Equal(t, "friends", resp.Ending.EndingID)
}

func TestEngine_DescribeChoicesIsIdempotent(t *testing.T) {
	store := build(t, gated)
	engine := runtime.NewEngine()

	resp, err := engine.StartPlaythrough(context.Background(), store, runtime.StartOptions{Seed: 3})
	require.NoError(t, err)
	snapshot := resp.State.Clone()

	first, err := engine.DescribeChoices(store, resp.State, "hub")
	require.NoError(t, err)
	second, err := engine.DescribeChoices(store, resp.State, "hub")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, resp.State)

	_, err = engine.DescribeChoices(store, resp.State, "start")
	assert.ErrorIs(t, err, domain.ErrNotAChoice)
	_, err = engine.DescribeChoices(store, resp.State, "nowhere")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

func TestEngine_HiddenOptionsFallBack(t *testing.T) {
	store := build(t, `
id: fallback
start_node_id: start
nodes:
  - {id: start, kind: start}
  - id: vault
    kind: choice
    content:
      options:
        - id: open
          text: Open the vault
          conditions: [{type: flag_set, parameter: has_key}]
          hidden_until_condition_met: true
          target_node_id: rich
  - {id: rich, kind: ending, content: {ending_id: rich}}
  - {id: poor, kind: ending, content: {ending_id: poor}}
edges:
  - {source_node_id: start, target_node_id: vault}
  - {source_node_id: vault, target_node_id: poor}
`)
	resp, err := runtime.NewEngine().StartPlaythrough(context.Background(), store, runtime.StartOptions{})
	require.NoError(t, err)
	require.NotNil(t, resp.Ending)
	assert.Equal(t, "poor", resp.Ending.EndingID)
}

func TestEngine_StallKeepsCallerState(t *testing.T) {
	store := build(t, `
id: stall
start_node_id: start
nodes:
  - {id: start, kind: start}
  - {id: s, kind: scene, content: {text: Locked door.}}
  - {id: end, kind: ending, content: {ending_id: out}}
edges:
  - {source_node_id: start, target_node_id: s}
  - {source_node_id: s, target_node_id: end, conditions: [{type: flag_set, parameter: key}]}
`)
	engine := runtime.NewEngine()
	ctx := context.Background()

	resp, err := engine.StartPlaythrough(ctx, store, runtime.StartOptions{})
	require.NoError(t, err)
	state := resp.State
	before := state.Clone()

	resp, err = engine.Resume(ctx, store, state, "")
	var stall *runtime.StallError
	require.True(t, errors.As(err, &stall))
	assert.Equal(t, "s", stall.NodeID)
	assert.Same(t, state, resp.State)
	assert.Equal(t, before, state)
}

func TestEngine_MaxAutoSteps(t *testing.T) {
	store := build(t, `
id: treadmill
start_node_id: start
mechanics:
  stats: [{id: steps}]
nodes:
  - {id: start, kind: start}
  - id: walk
    kind: variable_manipulation
    content:
      actions: [{type: modify_stat, parameter: steps, operation: add, value: 1}]
  - id: check
    kind: condition_branch
    content:
      default_output_port_id: again
      branches:
        - {port: done, expression: stat.steps >= 1000000}
  - {id: end, kind: ending, content: {ending_id: arrived}}
edges:
  - {source_node_id: start, target_node_id: walk}
  - {source_node_id: walk, target_node_id: check}
  - {source_node_id: check, source_port: done, target_node_id: end}
  - {source_node_id: check, source_port: again, target_node_id: walk}
`)
	_, err := runtime.NewEngine(runtime.WithMaxAutoSteps(50)).StartPlaythrough(context.Background(), store, runtime.StartOptions{})
	var stall *runtime.StallError
	require.True(t, errors.As(err, &stall))
	assert.Equal(t, 50, stall.Steps)
}

func TestEngine_Determinism(t *testing.T) {
	store := build(t, `
id: coin
start_node_id: start
nodes:
  - {id: start, kind: start}
  - id: flip
    kind: condition_branch
    content:
      default_output_port_id: tails
      branches:
        - port: heads
          conditions: [{type: random_chance, operator: less_than, value: 50}]
  - {id: win, kind: ending, content: {ending_id: heads}}
  - {id: lose, kind: ending, content: {ending_id: tails}}
edges:
  - {source_node_id: start, target_node_id: flip}
  - {source_node_id: flip, source_port: heads, target_node_id: win}
  - {source_node_id: flip, source_port: tails, target_node_id: lose}
`)
	ctx := context.Background()
	engine := runtime.NewEngine()
	seen := map[string]bool{}
	for seed := int64(0); seed < 64; seed++ {
		a, err := engine.StartPlaythrough(ctx, store, runtime.StartOptions{Seed: seed})
		require.NoError(t, err)
		b, err := engine.StartPlaythrough(ctx, store, runtime.StartOptions{Seed: seed})
		require.NoError(t, err)
		assert.Equal(t, a.Ending, b.Ending, "seed %d", seed)
		seen[a.Ending.EndingID] = true
	}
	assert.Len(t, seen, 2, "64 seeds should land on both sides of a fair coin")

	low, err := runtime.NewEngine(runtime.WithRandomSource(runtime.FixedSource(0.1))).StartPlaythrough(ctx, store, runtime.StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, "heads", low.Ending.EndingID)
	high, err := runtime.NewEngine(runtime.WithRandomSource(runtime.FixedSource(0.9))).StartPlaythrough(ctx, store, runtime.StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, "tails", high.Ending.EndingID)
}

func TestEngine_StatHooksAndClamping(t *testing.T) {
	store := build(t, `
id: cliff
start_node_id: start
mechanics:
  stats:
    - id: courage
      min: 0
      max: 3
      initial: 1
      on_min: [{type: end_novel_branch, ending: {ending_id: lost_nerve, ending_type: BAD}}]
nodes:
  - id: start
    kind: start
    content:
      actions: [{type: modify_stat, parameter: courage, operation: add, value: 10}]
  - id: edge
    kind: choice
    content:
      options:
        - id: look
          text: Look down
          actions: [{type: modify_stat, parameter: courage, operation: subtract, value: 5}]
          target_node_id: safe
        - {id: wait, text: Wait, target_node_id: safe}
  - {id: safe, kind: ending, content: {ending_id: safe}}
edges:
  - {source_node_id: start, target_node_id: edge}
`)
	engine := runtime.NewEngine()
	ctx := context.Background()

	resp, err := engine.StartPlaythrough(ctx, store, runtime.StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3.0, resp.State.Stats["courage"])

	resp, err = engine.Resume(ctx, store, resp.State, "look")
	require.NoError(t, err)
	assert.Equal(t, 0.0, resp.State.Stats["courage"])
	require.NotNil(t, resp.Ending)
	assert.Equal(t, domain.Ending{EndingID: "lost_nerve", EndingType: "BAD"}, *resp.Ending)
}

func TestEngine_UseItemAndCues(t *testing.T) {
	store := build(t, `
id: tavern
start_node_id: start
mechanics:
  stats: [{id: hp, min: 0, max: 20, initial: 10}]
  items:
    - id: potion
      stackable: true
      usable: true
      consumable: true
      initial: 2
      on_use: [{type: modify_stat, parameter: hp, operation: add, value: 5}]
nodes:
  - {id: start, kind: start}
  - id: table
    kind: choice
    content:
      options:
        - id: drink
          text: Drink a potion
          conditions: [{type: item_owned, parameter: potion}]
          actions:
            - {type: use_item, parameter: potion}
            - {type: trigger_scene_event, event: gulp, payload: {volume: loud}}
            - {type: delay, milliseconds: 250}
          target_node_id: table
        - {id: leave, text: Leave, target_node_id: out}
  - {id: out, kind: ending, content: {ending_id: out}}
edges:
  - {source_node_id: start, target_node_id: table}
`)
	engine := runtime.NewEngine()
	ctx := context.Background()

	resp, err := engine.StartPlaythrough(ctx, store, runtime.StartOptions{})
	require.NoError(t, err)

	resp, err = engine.Resume(ctx, store, resp.State, "drink")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.State.Inventory["potion"])
	assert.Equal(t, 15.0, resp.State.Stats["hp"])
	require.Len(t, resp.Cues, 2)
	assert.Equal(t, domain.CueSceneEvent, resp.Cues[0].Kind)
	assert.Equal(t, "gulp", resp.Cues[0].Event)
	assert.Equal(t, "loud", resp.Cues[0].Payload["volume"])
	assert.Equal(t, domain.CueDelay, resp.Cues[1].Kind)
	assert.Equal(t, int64(250), resp.Cues[1].Delay.Milliseconds())

	resp, err = engine.Resume(ctx, store, resp.State, "drink")
	require.NoError(t, err)
	assert.Equal(t, 0, resp.State.Inventory["potion"])
	assert.Equal(t, 20.0, resp.State.Stats["hp"])
	assert.Equal(t, []domain.VisibleOption{{ID: "leave", Text: "Leave"}}, resp.Presentation.Choices.Options)
}

func TestEngine_RecoverableErrorsBecomeDiagnostics(t *testing.T) {
	store := build(t, `
id: broken
start_node_id: start
mechanics:
  stats: [{id: gold, initial: 10}]
nodes:
  - id: start
    kind: start
    content:
      actions:
        - {type: modify_stat, parameter: gold, operation: divide, value: 0}
        - {type: modify_stat, parameter: silver, operation: add, value: 1}
        - {type: navigate_to_node, target_node_id: a}
        - {type: navigate_to_node, target_node_id: b}
        - {type: modify_stat, parameter: gold, operation: add, value: 1}
  - {id: a, kind: scene}
  - {id: b, kind: scene}
  - {id: end, kind: ending, content: {ending_id: end}}
edges:
  - {source_node_id: a, target_node_id: end}
  - {source_node_id: b, target_node_id: end}
`)
	var reported []string
	engine := runtime.NewEngine(runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnDiagnostic: func(_ context.Context, e *domain.DiagnosticEvent) {
			reported = append(reported, e.Diagnostic.Code)
		},
	}))

	resp, err := engine.StartPlaythrough(context.Background(), store, runtime.StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, "a", resp.Presentation.NodeID())
	assert.Equal(t, 11.0, resp.State.Stats["gold"])

	var codes []string
	for _, d := range resp.Diagnostics {
		codes = append(codes, d.Code)
		assert.Equal(t, "start", d.NodeID)
	}
	want := []string{runtime.CodeDivisionByZero, runtime.CodeUnknownTarget, runtime.CodeExtraNavigation}
	assert.Equal(t, want, codes)
	assert.Equal(t, want, reported)
}

func TestEngine_LifecycleHooks(t *testing.T) {
	store := build(t, crossroads)

	var entered, left []string
	var chosen []string
	var ending *domain.EndingEvent
	hooks := domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) { entered = append(entered, e.NodeID) },
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) { left = append(left, e.NodeID) },
		OnChoiceSelected: func(_ context.Context, e *domain.ChoiceEvent) {
			chosen = append(chosen, e.NodeID+"/"+e.OptionID)
		},
		OnEnding: func(_ context.Context, e *domain.EndingEvent) { ending = e },
	}
	engine := runtime.NewEngine(runtime.WithLifecycleHooks(hooks))
	ctx := context.Background()

	resp, err := engine.StartPlaythrough(ctx, store, runtime.StartOptions{PlaythroughID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "scene_a"}, entered)
	assert.Equal(t, []string{"start"}, left)

	resp, err = engine.Resume(ctx, store, resp.State, "")
	require.NoError(t, err)
	_, err = engine.Resume(ctx, store, resp.State, "option1")
	require.NoError(t, err)

	assert.Equal(t, []string{"start", "scene_a", "choice", "ending_bad"}, entered)
	assert.Equal(t, []string{"start", "scene_a", "choice"}, left)
	assert.Equal(t, []string{"choice/option1"}, chosen)
	require.NotNil(t, ending)
	assert.Equal(t, "bad", ending.Ending.EndingID)
	assert.Equal(t, "p1", ending.PlaythroughID)
	assert.Equal(t, 2, ending.Turn)
}

func TestEngine_FailedResumeReportsNoEvents(t *testing.T) {
	store := build(t, `
id: vault
start_node_id: start
nodes:
  - {id: start, kind: start}
  - {id: door, kind: scene, content: {text: A sealed door.}}
  - {id: hall, kind: variable_manipulation}
  - {id: end, kind: ending, content: {ending_id: inside}}
edges:
  - {source_node_id: start, target_node_id: door}
  - {source_node_id: door, target_node_id: hall}
  - {source_node_id: hall, target_node_id: end, conditions: [{type: flag_set, parameter: key}]}
`)
	var entered []string
	endings := 0
	engine := runtime.NewEngine(runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) { entered = append(entered, e.NodeID) },
		OnEnding:    func(context.Context, *domain.EndingEvent) { endings++ },
	}))
	ctx := context.Background()

	resp, err := engine.StartPlaythrough(ctx, store, runtime.StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "door"}, entered)

	failed, err := engine.Resume(ctx, store, resp.State, "")
	var stall *runtime.StallError
	require.ErrorAs(t, err, &stall)
	assert.Equal(t, "hall", stall.NodeID)
	assert.Same(t, resp.State, failed.State)
	assert.Equal(t, []string{"start", "door"}, entered, "the rolled-back step is not reported")
	assert.Zero(t, endings)
}
