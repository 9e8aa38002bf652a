package loam

// KindNovel marks the manifest document of a story project.
const KindNovel = "novel"

// NodeMetadata is the frontmatter of a document in a story project. A project
// directory holds one manifest (kind: novel) carrying the story header and
// mechanics, and one document per node. The markdown body of a node document
// becomes its text, prompt or description depending on the kind.
type NodeMetadata struct {
	ID    string `json:"id" mapstructure:"id"`
	Kind  string `json:"kind" mapstructure:"kind"`
	Title string `json:"title" mapstructure:"title"`

	// Manifest fields.
	Version     any            `json:"version" mapstructure:"version"`
	StartNodeID string         `json:"start_node_id" mapstructure:"start_node_id"`
	Mechanics   map[string]any `json:"mechanics" mapstructure:"mechanics"`

	// Node fields.
	Position map[string]any `json:"position" mapstructure:"position"`
	Content  map[string]any `json:"content" mapstructure:"content"`
	Edges    []any          `json:"edges" mapstructure:"edges"`
	// To is shorthand for a single unconditional edge.
	To string `json:"to" mapstructure:"to"`
}
