/*
Package domain contains the core domain models of the novella engine.

It defines the story graph (Nodes, Edges, Conditions, Actions and the Mechanics
catalogue), the per-playthrough GameState, and the values the engine hands back
to callers (PresentationRequest, Ending, Response). This package is kept pure and
free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - Node: a unit of the graph. Its payload is a closed union selected by Kind.
  - Edge: a directed, optionally conditional connection between nodes.
  - Condition / Action: structured checks and effects with closed type sets.
  - Mechanics: stat, relationship, item, currency, flag and variable definitions.
  - GameState: the mutable record owned by exactly one playthrough.
  - Response: what the caller should present next, or the Ending reached.
*/
package domain
