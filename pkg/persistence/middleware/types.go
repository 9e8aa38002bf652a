package middleware

import "github.com/aretw0/novella/pkg/ports"

// Middleware allows wrapping a PlaythroughStore to add behavior.
type Middleware func(ports.PlaythroughStore) ports.PlaythroughStore

// Chain wraps store so that the first middleware sees calls first.
func Chain(store ports.PlaythroughStore, mws ...Middleware) ports.PlaythroughStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
