package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/novella/internal/logging"
	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock outlives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// ErrPlaythroughExists is returned by Create when the id is already taken.
var ErrPlaythroughExists = errors.New("playthrough already exists")

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates playthrough access, ensuring that concurrent requests
// on the same playthrough run one at a time. It uses reference counting to
// garbage collect unused locks.
type Manager struct {
	store ports.PlaythroughStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the TTL requested from the distributed locker.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a new Manager over the given playthrough store.
func NewManager(store ports.PlaythroughStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu, and call release(id) after unlocking.
func (m *Manager) acquire(id string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, id)
	}
}

// Load retrieves a playthrough from the store.
func (m *Manager) Load(ctx context.Context, id string) (*domain.GameState, error) {
	var state *domain.GameState
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		var err error
		state, err = m.store.Load(ctx, id)
		return err
	})
	return state, err
}

// Create persists a new playthrough under its PlaythroughID. It fails with
// ErrPlaythroughExists rather than overwrite a live one.
func (m *Manager) Create(ctx context.Context, state *domain.GameState) error {
	if state == nil || state.PlaythroughID == "" {
		return errors.New("playthrough id is required")
	}
	id := state.PlaythroughID
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		_, err := m.store.Load(ctx, id)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s", ErrPlaythroughExists, id)
		case !errors.Is(err, domain.ErrPlaythroughNotFound):
			return fmt.Errorf("failed to check playthrough existence: %w", err)
		}
		if err := m.store.Save(ctx, id, state); err != nil {
			return fmt.Errorf("failed to create playthrough: %w", err)
		}
		return nil
	})
}

// Update loads a playthrough, hands it to fn and saves what fn returns, all
// while holding the playthrough lock. Nothing is saved when fn fails or
// returns a nil state.
func (m *Manager) Update(ctx context.Context, id string, fn func(context.Context, *domain.GameState) (*domain.GameState, error)) (*domain.GameState, error) {
	var next *domain.GameState
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		current, err := m.store.Load(ctx, id)
		if err != nil {
			return err
		}
		next, err = fn(ctx, current)
		if err != nil || next == nil {
			return err
		}
		if err := m.store.Save(ctx, id, next); err != nil {
			return fmt.Errorf("failed to save playthrough: %w", err)
		}
		return nil
	})
	return next, err
}

// Save persists the playthrough state.
func (m *Manager) Save(ctx context.Context, id string, state *domain.GameState) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		return m.store.Save(ctx, id, state)
	})
}

// Delete removes the playthrough from the store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		return m.store.Delete(ctx, id)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying playthrough store.
func (m *Manager) Store() ports.PlaythroughStore {
	return m.store
}

// WithLock executes fn while holding the lock for the playthrough.
func (m *Manager) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	entry := m.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(id)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, id, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"playthrough_id", id,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
