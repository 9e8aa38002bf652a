package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aretw0/novella/internal/logging"
	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/ports"
	"github.com/aretw0/novella/pkg/session"
)

// Runner drives a playthrough against an engine using a pluggable IOHandler.
// It presents every step, reads the reader's selection, and persists the state
// after each step when a session manager is configured.
type Runner struct {
	// Handler is the strategy for IO. Defaults to a TextHandler on stdin/stdout.
	Handler IOHandler

	// Logger is used for internal debug logging.
	Logger *slog.Logger

	// Sessions persists the playthrough between steps. If nil, the
	// playthrough is ephemeral.
	Sessions *session.Manager

	// PlaythroughID names the playthrough. With Sessions set, an existing
	// playthrough under this id is resumed instead of started.
	PlaythroughID string

	// Version pins the story version for new playthroughs.
	Version string

	// Seed fixes the random seed for new playthroughs.
	Seed *int64

	// Headless skips waiting on scenes.
	Headless bool
}

// NewRunner creates a Runner configured by opts.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	if r.Logger == nil {
		r.Logger = logging.NewNop()
	}
	return r
}

// Run plays storyID until an ending, the end of input, or an interrupt, and
// returns the last state. Quitting early is not an error: the state is saved
// and can be resumed later under the same playthrough id.
func (r *Runner) Run(ctx context.Context, engine ports.NarrativeEngine, storyID string) (*domain.GameState, error) {
	handler := r.resolveHandler()

	signals := NewSignalManager(ctx)
	defer signals.Stop()
	ctx = signals.Context()

	step, err := r.resolveInitialStep(ctx, engine, storyID)
	if err != nil {
		return nil, err
	}
	state := step.State
	present := true

	for {
		if present {
			if err := handler.Present(ctx, step); err != nil {
				return state, fmt.Errorf("output error: %w", err)
			}
		}
		present = true
		if err := r.save(ctx, state); err != nil {
			return state, fmt.Errorf("critical persistence error: %w", err)
		}
		if state.Ended() {
			return state, nil
		}

		optionID, err := r.read(ctx, handler, step.Presentation, signals)
		if err != nil {
			if errors.Is(err, io.EOF) || signals.Interrupted() {
				r.Logger.Debug("runner stopped", "playthrough", state.PlaythroughID, "node", state.CurrentNodeID)
				return state, nil
			}
			return state, err
		}

		next, err := Advance(ctx, engine, state, optionID)
		if err != nil {
			var invalid *domain.InvalidSelectionError
			if errors.As(err, &invalid) || errors.Is(err, domain.ErrSelectionRequired) {
				_ = handler.SystemOutput(ctx, err.Error())
				present = false
				continue
			}
			return state, fmt.Errorf("resume error: %w", err)
		}
		step, state = next, next.State
	}
}

func (r *Runner) resolveHandler() IOHandler {
	if r.Handler == nil {
		r.Handler = NewTextHandler(os.Stdin, os.Stdout)
	}
	return r.Handler
}

func (r *Runner) resolveInitialStep(ctx context.Context, engine ports.NarrativeEngine, storyID string) (*Step, error) {
	if r.Sessions != nil && r.PlaythroughID != "" {
		state, err := r.Sessions.Load(ctx, r.PlaythroughID)
		switch {
		case err == nil:
			r.Logger.Info("resuming playthrough", "playthrough", r.PlaythroughID, "node", state.CurrentNodeID)
			return Current(engine, state)
		case !errors.Is(err, domain.ErrPlaythroughNotFound):
			return nil, fmt.Errorf("failed to load playthrough %s: %w", r.PlaythroughID, err)
		}
	}
	step, err := Start(ctx, engine, storyID, ports.StartOptions{
		PlaythroughID: r.PlaythroughID,
		Version:       r.Version,
		Seed:          r.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start playthrough: %w", err)
	}
	return step, nil
}

func (r *Runner) save(ctx context.Context, state *domain.GameState) error {
	if r.Sessions == nil || state.PlaythroughID == "" {
		return nil
	}
	// An interrupt must not prevent the final save.
	if err := r.Sessions.Save(context.WithoutCancel(ctx), state.PlaythroughID, state); err != nil {
		return err
	}
	r.Logger.Debug("state saved", "playthrough", state.PlaythroughID, "node", state.CurrentNodeID)
	return nil
}

// read waits for the next selection. Scenes accept any input, choices accept
// a 1-based number or an option id. A choice with a default option falls
// back to it when its timeout expires.
func (r *Runner) read(ctx context.Context, handler IOHandler, p *domain.PresentationRequest, signals *SignalManager) (string, error) {
	if p != nil && p.Scene != nil && r.Headless {
		return "", nil
	}

	inputCtx, cancel := ctx, context.CancelFunc(func() {})
	var fallback string
	if p != nil && p.Choices != nil && p.Choices.DefaultOptionID != "" && p.Choices.TimeoutSeconds > 0 {
		fallback = p.Choices.DefaultOptionID
		inputCtx, cancel = context.WithTimeout(ctx, time.Duration(p.Choices.TimeoutSeconds)*time.Second)
	}
	defer cancel()

	for {
		val, err := handler.Input(inputCtx)
		if err != nil {
			signals.CheckRace()
			if fallback != "" && errors.Is(inputCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				r.Logger.Debug("choice timed out", "default", fallback)
				return fallback, nil
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", err
		}
		if val == "exit" || val == "quit" {
			return "", io.EOF
		}
		if p == nil || p.Choices == nil {
			return "", nil
		}
		if val == "" {
			if fallback != "" {
				return fallback, nil
			}
			_ = handler.SystemOutput(ctx, "Pick an option.")
			continue
		}
		return resolveOption(p.Choices, val), nil
	}
}

func resolveOption(c *domain.ShowChoices, val string) string {
	if n, err := strconv.Atoi(val); err == nil && n >= 1 && n <= len(c.Options) {
		return c.Options[n-1].ID
	}
	return val
}
