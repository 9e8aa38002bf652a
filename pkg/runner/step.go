package runner

import (
	"context"
	"strings"

	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/ports"
)

// Step is one engine response together with what it changed.
// Rich clients (CLI, HTTP, MCP) render all three.
type Step struct {
	*domain.Response
	Diff *domain.StateDiff `json:"diff,omitempty"`
	// Stages names the current stage of every relationship the step changed.
	Stages map[string]string `json:"stages,omitempty"`
}

// Start begins a playthrough and wraps the first response.
func Start(ctx context.Context, engine ports.NarrativeEngine, storyID string, opts ports.StartOptions) (*Step, error) {
	resp, err := engine.StartPlaythrough(ctx, storyID, opts)
	if err != nil {
		return nil, err
	}
	// Diff against a fresh state so start-up effects are reported too.
	var initial *domain.GameState
	if store, err := engine.Inspect(storyID, resp.State.GraphVersion); err == nil {
		initial = domain.NewGameState(store.Mechanics(), store.StartNodeID())
		initial.PlaythroughID = resp.State.PlaythroughID
	}
	return newStep(engine, initial, resp), nil
}

// Advance resumes a playthrough and diffs the result against the state it
// was given. On error the returned Step, when non-nil, carries the unchanged
// state so callers can present it again.
func Advance(ctx context.Context, engine ports.NarrativeEngine, state *domain.GameState, optionID string) (*Step, error) {
	before := state.Clone()
	resp, err := engine.Resume(ctx, state, optionID)
	if resp == nil {
		return nil, err
	}
	return newStep(engine, before, resp), err
}

// Current rebuilds the presentation of a paused playthrough, for example
// after it was loaded from a store.
func Current(engine ports.NarrativeEngine, state *domain.GameState) (*Step, error) {
	resp := &domain.Response{State: state}
	if state.Ended() {
		resp.Ending = state.Ending
		return &Step{Response: resp}, nil
	}
	store, err := engine.Inspect(state.StoryID, state.GraphVersion)
	if err != nil {
		return nil, err
	}
	node, ok := store.Node(state.CurrentNodeID)
	if !ok {
		return nil, domain.ErrNodeNotFound
	}
	switch {
	case node.Scene != nil:
		resp.Presentation = &domain.PresentationRequest{
			Kind: domain.PresentScene,
			Scene: &domain.ShowScene{
				SceneID:    node.ID,
				Title:      node.Title,
				Text:       node.Scene.Text,
				Speaker:    node.Scene.Speaker,
				Background: node.Scene.Background,
			},
		}
	case node.Choice != nil:
		options, err := engine.DescribeChoices(state, node.ID)
		if err != nil {
			return nil, err
		}
		resp.Presentation = &domain.PresentationRequest{
			Kind: domain.PresentChoices,
			Choices: &domain.ShowChoices{
				NodeID:  node.ID,
				Title:   node.Title,
				Prompt:  node.Choice.Prompt,
				Options: options,
			},
		}
		if _, ok := node.Choice.Option(node.Choice.DefaultOptionID); ok && visible(options, node.Choice.DefaultOptionID) {
			resp.Presentation.Choices.DefaultOptionID = node.Choice.DefaultOptionID
			resp.Presentation.Choices.TimeoutSeconds = node.Choice.TimeoutSeconds
		}
	}
	return &Step{Response: resp}, nil
}

func visible(options []domain.VisibleOption, id string) bool {
	for _, o := range options {
		if o.ID == id {
			return true
		}
	}
	return false
}

func newStep(engine ports.NarrativeEngine, before *domain.GameState, resp *domain.Response) *Step {
	step := &Step{Response: resp}
	if before == nil || resp.State == nil {
		return step
	}
	step.Diff = domain.Diff(before, resp.State)
	if len(step.Diff.Relationships) == 0 {
		return step
	}
	store, err := engine.Inspect(resp.State.StoryID, resp.State.GraphVersion)
	if err != nil {
		return step
	}
	for key := range step.Diff.Relationships {
		character, kind, ok := strings.Cut(key, "/")
		if !ok {
			continue
		}
		if stage := store.Mechanics().RelationshipStage(resp.State, character, kind); stage != "" {
			if step.Stages == nil {
				step.Stages = make(map[string]string)
			}
			step.Stages[key] = stage
		}
	}
	return step
}
