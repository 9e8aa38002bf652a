package domain

import (
	"encoding/json"
	"fmt"
)

// Document is the serializable form of a story graph. It is the storage and
// wire contract between authoring tools and the engine.
type Document struct {
	ID          string    `json:"id"`
	Version     string    `json:"version,omitempty"`
	Title       string    `json:"title,omitempty"`
	StartNodeID string    `json:"start_node_id"`
	Mechanics   Mechanics `json:"mechanics"`
	Nodes       []*Node   `json:"nodes"`
	Edges       []Edge    `json:"edges,omitempty"`
}

type nodeJSON struct {
	ID       string    `json:"id"`
	Kind     NodeKind  `json:"kind"`
	Title    string    `json:"title,omitempty"`
	Position *Position `json:"position,omitempty"`
	Content  any       `json:"content,omitempty"`
}

// MarshalJSON writes the node with its variant payload under "content".
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeJSON{
		ID:       n.ID,
		Kind:     n.Kind,
		Title:    n.Title,
		Position: n.Position,
		Content:  n.Content(),
	})
}

// MarshalJSON flattens the payload next to the type tag.
func (a Action) MarshalJSON() ([]byte, error) {
	var payload any
	switch {
	case a.Navigate != nil:
		payload = a.Navigate
	case a.Modify != nil:
		payload = a.Modify
	case a.UseItem != nil:
		payload = a.UseItem
	case a.End != nil:
		payload = a.End
	case a.Event != nil:
		payload = a.Event
	case a.Delay != nil:
		payload = a.Delay
	default:
		return nil, fmt.Errorf("action %q has no payload", a.Type)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	tag, _ := json.Marshal(a.Type)
	fields["type"] = tag
	return json.Marshal(fields)
}
