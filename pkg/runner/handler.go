package runner

import (
	"context"
)

// IOHandler defines the strategy for interacting with the reader.
// This allows switching between Text (CLI/TUI) and JSON (Structured) modes.
type IOHandler interface {
	// Present shows a step: its cues, changes, and the scene, choices or
	// ending it paused on.
	Present(ctx context.Context, step *Step) error

	// Input reads a response from the reader. It returns ctx.Err() when the
	// context ends first, and io.EOF when the input is exhausted.
	Input(ctx context.Context) (string, error)

	// SystemOutput presents a meta-message (errors, hints) distinct from story content.
	SystemOutput(ctx context.Context, msg string) error
}
