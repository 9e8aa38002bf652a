package http

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/aretw0/novella/pkg/domain"
)

// StreamManager fans state diffs out to the SSE clients of each playthrough.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan []byte]struct{}
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan []byte]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a buffered channel for playthroughID. The returned
// function unregisters and closes it.
func (sm *StreamManager) Subscribe(playthroughID string) (<-chan []byte, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan []byte, 10)
	if _, ok := sm.subscribers[playthroughID]; !ok {
		sm.subscribers[playthroughID] = make(map[chan []byte]struct{})
	}
	sm.subscribers[playthroughID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[playthroughID]; ok {
			if _, ok := subs[ch]; !ok {
				return
			}
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, playthroughID)
			}
		}
	}
}

// Broadcast sends diff to every subscriber of its playthrough. Slow clients
// lose messages instead of blocking the request that produced them.
func (sm *StreamManager) Broadcast(diff *domain.StateDiff) {
	if diff == nil {
		return
	}
	payload, err := json.Marshal(diff)
	if err != nil {
		sm.logger.Error("failed to encode diff", "err", err)
		return
	}

	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for ch := range sm.subscribers[diff.PlaythroughID] {
		select {
		case ch <- payload:
		default:
			sm.logger.Warn("sse client buffer full, dropping message", "playthrough", diff.PlaythroughID)
		}
	}
}

// Subscribers counts the open streams of a playthrough.
func (sm *StreamManager) Subscribers(playthroughID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[playthroughID])
}

// parseWatch splits a comma separated field list. Nil keeps everything.
func parseWatch(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	fields := make(map[string]bool)
	for _, f := range strings.Split(raw, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields[f] = true
		}
	}
	return fields
}

// matchesWatch reports whether diff touches any watched field.
func matchesWatch(diff *domain.StateDiff, watch map[string]bool) bool {
	if watch == nil {
		return true
	}
	present := map[string]bool{
		"node":          diff.CurrentNodeID != nil,
		"status":        diff.Status != nil,
		"stats":         len(diff.Stats) > 0,
		"relationships": len(diff.Relationships) > 0,
		"currency":      len(diff.Currency) > 0,
		"inventory":     len(diff.Inventory) > 0,
		"flags":         len(diff.Flags) > 0,
		"variables":     len(diff.Variables) > 0,
		"history":       diff.HistoryParams != nil,
		"ending":        diff.Ending != nil,
	}
	for field := range watch {
		if present[field] {
			return true
		}
	}
	return false
}
