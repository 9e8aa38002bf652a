package runner

import (
	"log/slog"

	"github.com/aretw0/novella/pkg/session"
)

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithSessions persists the playthrough after every step.
func WithSessions(sessions *session.Manager) Option {
	return func(r *Runner) {
		r.Sessions = sessions
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.Logger = logger
	}
}

// WithInputHandler configures a custom IOHandler.
func WithInputHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.Handler = handler
	}
}

// WithHeadless skips waiting on scenes.
func WithHeadless(headless bool) Option {
	return func(r *Runner) {
		r.Headless = headless
	}
}

// WithPlaythroughID sets the playthrough id. Combined with WithSessions, an
// existing playthrough under the id is resumed.
func WithPlaythroughID(id string) Option {
	return func(r *Runner) {
		r.PlaythroughID = id
	}
}

// WithVersion pins the story version of a new playthrough.
func WithVersion(version string) Option {
	return func(r *Runner) {
		r.Version = version
	}
}

// WithSeed fixes the random seed of a new playthrough.
func WithSeed(seed int64) Option {
	return func(r *Runner) {
		r.Seed = &seed
	}
}
