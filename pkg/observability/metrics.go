package observability

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aretw0/novella/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine collectors.
type Metrics struct {
	NodeVisits  *prometheus.CounterVec
	Choices     *prometheus.CounterVec
	Endings     *prometheus.CounterVec
	Diagnostics *prometheus.CounterVec
	Turns       *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// Collectors already registered by an earlier call are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		NodeVisits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "novella_node_visits_total",
				Help: "Total number of node visits",
			},
			[]string{"story_id", "node_kind"},
		),
		Choices: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "novella_choices_total",
				Help: "Total number of options selected",
			},
			[]string{"story_id", "node_id", "option_id"},
		),
		Endings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "novella_endings_total",
				Help: "Total number of playthroughs that reached an ending",
			},
			[]string{"story_id", "ending_id", "ending_type"},
		),
		Diagnostics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "novella_diagnostics_total",
				Help: "Total number of runtime diagnostics",
			},
			[]string{"story_id", "code"},
		),
		Turns: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "novella_playthrough_turns",
				Help:    "Turns taken by playthroughs that reached an ending",
				Buckets: prometheus.ExponentialBuckets(1, 2, 8),
			},
			[]string{"story_id"},
		),
	}

	var err error
	if m.NodeVisits, err = register(reg, m.NodeVisits); err != nil {
		return nil, err
	}
	if m.Choices, err = register(reg, m.Choices); err != nil {
		return nil, err
	}
	if m.Endings, err = register(reg, m.Endings); err != nil {
		return nil, err
	}
	if m.Diagnostics, err = register(reg, m.Diagnostics); err != nil {
		return nil, err
	}
	if m.Turns, err = register(reg, m.Turns); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if reg == nil {
		return c, nil
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Hooks returns lifecycle hooks that record into the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeVisits.WithLabelValues(e.StoryID, string(e.NodeKind)).Inc()
		},
		OnChoiceSelected: func(_ context.Context, e *domain.ChoiceEvent) {
			m.Choices.WithLabelValues(e.StoryID, e.NodeID, e.OptionID).Inc()
		},
		OnEnding: func(_ context.Context, e *domain.EndingEvent) {
			m.Endings.WithLabelValues(e.StoryID, e.Ending.EndingID, e.Ending.EndingType).Inc()
			m.Turns.WithLabelValues(e.StoryID).Observe(float64(e.Turn))
		},
		OnDiagnostic: func(_ context.Context, e *domain.DiagnosticEvent) {
			m.Diagnostics.WithLabelValues(e.StoryID, e.Diagnostic.Code).Inc()
		},
	}
}

// LogHooks returns lifecycle hooks that write one structured line per event.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_enter",
				"playthrough", e.PlaythroughID,
				"node_id", e.NodeID,
				"kind", e.NodeKind,
				"visits", e.Visits,
			)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_leave", "playthrough", e.PlaythroughID, "node_id", e.NodeID)
		},
		OnChoiceSelected: func(ctx context.Context, e *domain.ChoiceEvent) {
			logger.InfoContext(ctx, "choice_selected",
				"playthrough", e.PlaythroughID,
				"node_id", e.NodeID,
				"option_id", e.OptionID,
			)
		},
		OnEnding: func(ctx context.Context, e *domain.EndingEvent) {
			logger.InfoContext(ctx, "ending",
				"playthrough", e.PlaythroughID,
				"story", e.StoryID,
				"ending_id", e.Ending.EndingID,
				"turn", e.Turn,
			)
		},
		OnDiagnostic: func(ctx context.Context, e *domain.DiagnosticEvent) {
			logger.WarnContext(ctx, "diagnostic",
				"playthrough", e.PlaythroughID,
				"code", e.Diagnostic.Code,
				"node_id", e.Diagnostic.NodeID,
				"message", e.Diagnostic.Message,
			)
		},
	}
}
