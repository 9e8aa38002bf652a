package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/ports"
)

// Mask replaces redacted values.
const Mask = "***"

type redactMiddleware struct {
	next     ports.PlaythroughStore
	patterns []*regexp.Regexp
}

// NewRedactMiddleware creates a middleware that masks story variables whose
// ids match any of the patterns before they reach the store, such as a
// player_name typed in by the reader. Nested maps are masked by key too.
// The caller's state is never modified.
func NewRedactMiddleware(patterns []string) (Middleware, error) {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("redact pattern %q: %w", p, err)
		}
		compiled[i] = re
	}
	return func(next ports.PlaythroughStore) ports.PlaythroughStore {
		return &redactMiddleware{next: next, patterns: compiled}
	}, nil
}

func (m *redactMiddleware) Save(ctx context.Context, playthroughID string, state *domain.GameState) error {
	cloned := state.Clone()
	m.mask(cloned.Variables)
	return m.next.Save(ctx, playthroughID, cloned)
}

func (m *redactMiddleware) Load(ctx context.Context, playthroughID string) (*domain.GameState, error) {
	return m.next.Load(ctx, playthroughID)
}

func (m *redactMiddleware) Delete(ctx context.Context, playthroughID string) error {
	return m.next.Delete(ctx, playthroughID)
}

func (m *redactMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *redactMiddleware) mask(vars map[string]any) {
	for k, v := range vars {
		if m.matches(k) {
			vars[k] = Mask
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			copied := make(map[string]any, len(sub))
			for sk, sv := range sub {
				copied[sk] = sv
			}
			m.mask(copied)
			vars[k] = copied
		}
	}
}

func (m *redactMiddleware) matches(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
