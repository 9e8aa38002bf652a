/*
Package novella is a narrative graph engine for visual novels and other
branching stories.

A story is a directed graph of typed nodes (scenes, choices, condition
branches, variable manipulations, endings and a few structural kinds) joined
by edges that may carry conditions. A playthrough walks that graph while
keeping a Game State: stats, relationships, inventory, currency, flags, typed
variables, visit counts and the history of choices.

# Concept

The engine is a pure state machine. It never blocks on input and never owns
a clock: every call takes a state, advances it until something must be shown
to the reader, and returns the new state with a presentation request. The
caller renders the scene or the choices, collects a selection, and resumes.
Playthrough persistence, rendering and transport live in adapters, so the
same story runs in a terminal, behind the HTTP API, or as MCP tools for an
agent.

# Key Features

  - Deterministic execution: a playthrough carries its random seed, so the same
    selections always produce the same path.
  - Versioned stories: a playthrough stays pinned to the story version it
    started on while newer versions are published.
  - Validated graphs: broken references, dead ends and cycles that can never
    terminate are rejected before any playthrough starts.
  - Conditions as data or as expressions such as "stat.courage >= 3 AND
    flag.met_mara".

# Usage

	eng, err := novella.New("./my-story")
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	resp, err := eng.StartPlaythrough(ctx, "lighthouse", novella.StartOptions{})
	if err != nil {
		log.Fatal(err)
	}

	for resp.Ending == nil {
		// Render resp.Presentation, then pass the reader's option id
		// (or "" to continue past a scene).
		resp, err = eng.Resume(ctx, resp.State, selection(resp.Presentation))
		if err != nil {
			log.Fatal(err)
		}
	}

The runner package wraps this loop for terminals and JSON pipes.
*/
package novella
