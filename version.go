package novella

// Version is the release of the engine. Builds override it with
// -ldflags "-X github.com/aretw0/novella.Version=v1.2.3".
var Version = "0.1.0-dev"
