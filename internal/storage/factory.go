package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Settings selects and tunes a backend.
type Settings struct {
	Backend     string
	DatabaseURL string
	SQLitePath  string
	CacheSize   int
	MaxRetries  int
	Logger      *slog.Logger
}

// Open builds the configured backend wrapped in the read cache and, for
// remote backends, the retry and circuit breaker layer. An empty backend
// picks postgres when DatabaseURL is set and memory otherwise.
func Open(ctx context.Context, s Settings, opts ...Option) (Store, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backend := strings.ToLower(strings.TrimSpace(s.Backend))
	if backend == "" {
		backend = BackendMemory
		if strings.TrimSpace(s.DatabaseURL) != "" {
			backend = BackendPostgres
		}
	}

	var origin Store
	switch backend {
	case BackendMemory:
		origin = NewMemoryStore(opts...)
	case BackendPostgres:
		if strings.TrimSpace(s.DatabaseURL) == "" {
			return nil, fmt.Errorf("postgres backend requires DATABASE_URL")
		}
		pool, err := ConnectPostgres(ctx, s.DatabaseURL, 5)
		if err != nil {
			return nil, err
		}
		pg := NewPostgresStore(pool, opts...)
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		origin = NewResilientStore(pg, ResilienceConfig{MaxAttempts: s.MaxRetries, Logger: logger})
	case BackendSQLite:
		path := s.SQLitePath
		if path == "" {
			path = "data/conversations.db"
		}
		lite, err := NewSQLiteStore(path, opts...)
		if err != nil {
			return nil, err
		}
		origin = NewResilientStore(lite, ResilienceConfig{MaxAttempts: s.MaxRetries, Logger: logger})
	default:
		return nil, fmt.Errorf("unknown store backend %q", s.Backend)
	}

	logger.Info("conversation store ready", "backend", backend, "cache_size", s.CacheSize)
	if s.CacheSize < 0 {
		return origin, nil
	}
	return NewCachedStore(origin, CacheConfig{MaxEntries: s.CacheSize}), nil
}
