/*
Package ports defines the driven ports (interfaces) of the novella engine.

These interfaces decouple the narrative core from external implementations, so
the same engine runs over different story sources, playthrough stores and
transports.

# Key Interfaces

  - GraphLoader: reads story documents (e.g. from Loam, a directory or memory).
  - Watchable: optional loader capability that reports changed stories.
  - PlaythroughStore: persists and loads the GameState of a playthrough.
  - DistributedLocker: serializes access to a playthrough across replicas.
  - NarrativeEngine: what transports (HTTP, MCP, CLI) drive.
*/
package ports
