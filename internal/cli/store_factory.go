package cli

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/novella/internal/config"
	"github.com/aretw0/novella/pkg/adapters/file"
	"github.com/aretw0/novella/pkg/adapters/memory"
	"github.com/aretw0/novella/pkg/adapters/redis"
	"github.com/aretw0/novella/pkg/persistence/middleware"
	"github.com/aretw0/novella/pkg/ports"
	"github.com/aretw0/novella/pkg/session"
)

// NewSessions builds the playthrough store named by the configuration, wraps
// it with the configured redaction and encryption, and returns a session
// manager over it. The close function releases backend connections.
func NewSessions(cfg *config.Config, logger *slog.Logger) (*session.Manager, func() error, error) {
	closer := func() error { return nil }
	opts := []session.Option{
		session.WithLogger(logger),
		session.WithLockTTL(cfg.Store.LockTTL),
	}

	var store ports.PlaythroughStore
	switch cfg.Store.Kind {
	case config.StoreMemory:
		store = memory.NewStore()
	case config.StoreRedis:
		r := cfg.Store.Redis
		rs := redis.New(r.Addr, r.Password, r.DB, redis.WithPrefix(r.Prefix), redis.WithTTL(r.TTL))
		store, closer = rs, rs.Close
		opts = append(opts, session.WithLocker(redis.NewLocker(rs.Client(), r.Prefix)))
	default:
		store = file.NewStore(cfg.Store.Dir)
	}

	mws, err := Middlewares(cfg.Security)
	if err != nil {
		_ = closer()
		return nil, nil, err
	}
	return session.NewManager(middleware.Chain(store, mws...), opts...), closer, nil
}

// Middlewares turns security settings into store middlewares. Redaction runs
// before encryption so masked values never reach the cipher.
func Middlewares(sec config.SecurityConfig) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(sec.Redact) > 0 {
		redact, err := middleware.NewRedactMiddleware(sec.Redact)
		if err != nil {
			return nil, err
		}
		mws = append(mws, redact)
	}
	if sec.EncryptionKey != "" {
		active, err := middleware.ParseKey(sec.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("security.encryption_key: %w", err)
		}
		enc := middleware.EncryptionConfig{ActiveKey: active}
		for i, k := range sec.FallbackKeys {
			key, err := middleware.ParseKey(k)
			if err != nil {
				return nil, fmt.Errorf("security.fallback_keys[%d]: %w", i, err)
			}
			enc.FallbackKeys = append(enc.FallbackKeys, key)
		}
		encrypt, err := middleware.NewEncryptionMiddleware(enc)
		if err != nil {
			return nil, err
		}
		mws = append(mws, encrypt)
	}
	return mws, nil
}
