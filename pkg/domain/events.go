package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeEnter      EventType = "node_enter"
	EventNodeLeave      EventType = "node_leave"
	EventChoiceSelected EventType = "choice_selected"
	EventEnding         EventType = "ending"
	EventDiagnostic     EventType = "diagnostic"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp     time.Time `json:"timestamp"`
	Type          EventType `json:"type"`
	PlaythroughID string    `json:"playthrough_id"`
	StoryID       string    `json:"story_id"`
}

// NodeEvent represents entry or exit from a node.
type NodeEvent struct {
	EventBase
	NodeID   string   `json:"node_id"`
	NodeKind NodeKind `json:"node_kind"`
	Visits   int      `json:"visits"`
}

type ChoiceEvent struct {
	EventBase
	NodeID   string `json:"node_id"`
	OptionID string `json:"option_id"`
}

type EndingEvent struct {
	EventBase
	Ending Ending `json:"ending"`
	Turn   int    `json:"turn"`
}

type DiagnosticEvent struct {
	EventBase
	Diagnostic Diagnostic `json:"diagnostic"`
}

// LifecycleHooks defines callbacks for engine observability. Nil hooks are skipped.
type LifecycleHooks struct {
	OnNodeEnter      func(context.Context, *NodeEvent)
	OnNodeLeave      func(context.Context, *NodeEvent)
	OnChoiceSelected func(context.Context, *ChoiceEvent)
	OnEnding         func(context.Context, *EndingEvent)
	OnDiagnostic     func(context.Context, *DiagnosticEvent)
}

// Merge combines two hook sets so that both run, h first.
func (h LifecycleHooks) Merge(o LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnNodeEnter:      chain(h.OnNodeEnter, o.OnNodeEnter),
		OnNodeLeave:      chain(h.OnNodeLeave, o.OnNodeLeave),
		OnChoiceSelected: chain(h.OnChoiceSelected, o.OnChoiceSelected),
		OnEnding:         chain(h.OnEnding, o.OnEnding),
		OnDiagnostic:     chain(h.OnDiagnostic, o.OnDiagnostic),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
