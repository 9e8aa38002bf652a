package runtime

import (
	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/graph"
)

// ResolveEnding builds the Ending record of an ending node. When several nodes
// share an ending id the first one's record is used, but NodeID always names
// the node that was actually reached.
func ResolveEnding(store *graph.Store, n *domain.Node) domain.Ending {
	content := domain.EndingContent{}
	if n.Ending != nil {
		content = *n.Ending
	}
	if first, ok := store.EndingNode(content.EndingID); ok && first.ID != n.ID && first.Ending != nil {
		content = *first.Ending
	}
	return domain.Ending{
		EndingID:    content.EndingID,
		EndingType:  content.EndingType,
		Title:       content.Title,
		Description: content.Description,
		Image:       content.Image,
		NodeID:      n.ID,
	}
}
