package domain

import "time"

// Ending is the terminal record of a playthrough.
type Ending struct {
	EndingID    string `json:"ending_id"`
	EndingType  string `json:"ending_type,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	// NodeID is empty when the ending came from an end_novel_branch action.
	NodeID string `json:"node_id,omitempty"`
}

// PresentationKind discriminates PresentationRequest.
type PresentationKind string

const (
	PresentScene   PresentationKind = "show_scene"
	PresentChoices PresentationKind = "show_choices"
)

// PresentationRequest asks the caller to render something and resume.
// Exactly one of Scene and Choices is set, matching Kind.
type PresentationRequest struct {
	Kind    PresentationKind `json:"kind"`
	Scene   *ShowScene       `json:"scene,omitempty"`
	Choices *ShowChoices     `json:"choices,omitempty"`
}

type ShowScene struct {
	SceneID    string `json:"scene_id"`
	Title      string `json:"title,omitempty"`
	Text       string `json:"text,omitempty"`
	Speaker    string `json:"speaker,omitempty"`
	Background string `json:"background,omitempty"`
}

type ShowChoices struct {
	NodeID  string          `json:"node_id"`
	Title   string          `json:"title,omitempty"`
	Prompt  string          `json:"prompt,omitempty"`
	Options []VisibleOption `json:"options"`
	// Locked lists options whose conditions fail but which are not hidden.
	Locked          []VisibleOption `json:"locked,omitempty"`
	DefaultOptionID string          `json:"default_option_id,omitempty"`
	TimeoutSeconds  int             `json:"timeout_seconds,omitempty"`
}

// VisibleOption is the reader-facing projection of a ChoiceOption.
type VisibleOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// NodeID returns the node the presentation belongs to.
func (p *PresentationRequest) NodeID() string {
	switch {
	case p == nil:
		return ""
	case p.Scene != nil:
		return p.Scene.SceneID
	case p.Choices != nil:
		return p.Choices.NodeID
	}
	return ""
}

// CueKind discriminates renderer cues.
type CueKind string

const (
	CueSceneEvent CueKind = "scene_event"
	CueDelay      CueKind = "delay"
)

// Cue is a renderer hint raised by trigger_scene_event or delay actions. The
// engine never acts on cues itself.
type Cue struct {
	Kind    CueKind        `json:"kind"`
	NodeID  string         `json:"node_id,omitempty"`
	Event   string         `json:"event,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
	Delay   time.Duration  `json:"delay,omitempty"`
}

// Severity grades a diagnostic.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic reports a recoverable problem found while loading or running a
// story.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	NodeID   string   `json:"node_id,omitempty"`
	Message  string   `json:"message"`
}

func (d Diagnostic) String() string {
	if d.NodeID == "" {
		return string(d.Severity) + " " + d.Code + ": " + d.Message
	}
	return string(d.Severity) + " " + d.Code + " at " + d.NodeID + ": " + d.Message
}

// Response is the outcome of one engine call.
type Response struct {
	State        *GameState           `json:"state"`
	Presentation *PresentationRequest `json:"presentation,omitempty"`
	Ending       *Ending              `json:"ending,omitempty"`
	Cues         []Cue                `json:"cues,omitempty"`
	Diagnostics  []Diagnostic         `json:"diagnostics,omitempty"`
}
