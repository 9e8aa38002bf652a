package runtime

import (
	"fmt"

	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/graph"
)

// DescribeChoices lists the options of a choice node that are selectable in
// the given state. It reads the state and never changes it.
func (e *Engine) DescribeChoices(store *graph.Store, state *domain.GameState, nodeID string) ([]domain.VisibleOption, error) {
	n, ok := store.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, nodeID)
	}
	if n.Choice == nil {
		return nil, fmt.Errorf("%w: %s is a %s node", domain.ErrNotAChoice, nodeID, n.Kind)
	}
	visible, _ := partitionOptions(e.evaluator(store), n, state, nil)
	return visible, nil
}

// partitionOptions splits the options of a choice into the selectable ones and
// the locked ones the reader may see greyed out. Options hidden until their
// conditions hold appear in neither list while they fail.
func partitionOptions(ev *Evaluator, n *domain.Node, s *domain.GameState, report func(error)) (visible, locked []domain.VisibleOption) {
	visible = []domain.VisibleOption{}
	for _, o := range n.Choice.Options {
		ok, errs := ev.EvaluateAll(o.Conditions, o.DisplayLogic, s, "option:"+o.ID)
		if report != nil {
			for _, err := range errs {
				report(err)
			}
		}
		vo := domain.VisibleOption{ID: o.ID, Text: o.Text}
		switch {
		case ok:
			visible = append(visible, vo)
		case !o.HiddenUntilConditionMet:
			locked = append(locked, vo)
		}
	}
	return visible, locked
}

func scenePresentation(n *domain.Node) *domain.PresentationRequest {
	scene := &domain.ShowScene{SceneID: n.ID, Title: n.Title}
	if n.Scene != nil {
		scene.Text = n.Scene.Text
		scene.Speaker = n.Scene.Speaker
		scene.Background = n.Scene.Background
	}
	return &domain.PresentationRequest{Kind: domain.PresentScene, Scene: scene}
}

func choicePresentation(n *domain.Node, visible, locked []domain.VisibleOption) *domain.PresentationRequest {
	return &domain.PresentationRequest{
		Kind: domain.PresentChoices,
		Choices: &domain.ShowChoices{
			NodeID:          n.ID,
			Title:           n.Title,
			Prompt:          n.Choice.Prompt,
			Options:         visible,
			Locked:          locked,
			DefaultOptionID: defaultOption(n.Choice.DefaultOptionID, visible),
			TimeoutSeconds:  n.Choice.TimeoutSeconds,
		},
	}
}

// defaultOption only advertises a default the reader could actually pick.
func defaultOption(id string, visible []domain.VisibleOption) string {
	for _, o := range visible {
		if o.ID == id {
			return id
		}
	}
	return ""
}
