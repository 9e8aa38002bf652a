/*
Package runner implements the reading loop of a novella playthrough.

It is the bridge between the engine and a reader. The runner presents every
step through a pluggable IOHandler, maps the reader's input onto option ids,
applies default options when a choice times out, and persists the state after
each step through a session manager.

# Key Components

  - Runner: the loop. Quitting or an interrupt saves the state and returns.
  - Step: a response with its state diff, shared with the HTTP and MCP adapters.
  - TextHandler: interactive terminal output with markdown rendering.
  - JSONHandler: one JSON object per step, for scripted drivers.

# Usage

	r := runner.NewRunner(
		runner.WithSessions(session.NewManager(file.NewStore(".novella"))),
		runner.WithPlaythroughID("chapter-one"),
		runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
	)
	state, err := r.Run(ctx, engine, "lighthouse")
*/
package runner
