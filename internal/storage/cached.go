package storage

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

// CacheConfig sizes the specification cache. Entries expire after TTL even
// when they are still being read.
type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

// DefaultCacheConfig keeps 1024 specifications for five minutes.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:        5 * time.Minute,
		MaxEntries: 1024,
	}
}

// CachedStore fronts another Store with an LRU of partial specifications.
// Writes go to the origin first and then refresh the cache.
type CachedStore struct {
	Store
	specs *expirable.LRU[string, specification.Specification]
}

// NewCachedStore wraps origin. Zero fields of cfg take the defaults.
func NewCachedStore(origin Store, cfg CacheConfig) *CachedStore {
	def := DefaultCacheConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	return &CachedStore{
		Store: origin,
		specs: expirable.NewLRU[string, specification.Specification](cfg.MaxEntries, nil, cfg.TTL),
	}
}

func (s *CachedStore) GetPartialSpecification(ctx context.Context, userID string) (specification.Specification, error) {
	key := strings.TrimSpace(userID)
	if spec, ok := s.specs.Get(key); ok {
		return spec.Clone(), nil
	}
	spec, err := s.Store.GetPartialSpecification(ctx, key)
	if err != nil {
		return nil, err
	}
	s.specs.Add(key, spec.Clone())
	return spec, nil
}

func (s *CachedStore) SavePartialSpecification(ctx context.Context, userID string, spec specification.Specification) error {
	key := strings.TrimSpace(userID)
	if err := s.Store.SavePartialSpecification(ctx, key, spec); err != nil {
		s.specs.Remove(key)
		return err
	}
	s.specs.Add(key, spec.Clone())
	return nil
}

func (s *CachedStore) ClearPartialSpecification(ctx context.Context, userID string) error {
	key := strings.TrimSpace(userID)
	s.specs.Remove(key)
	return s.Store.ClearPartialSpecification(ctx, key)
}

// Len reports the number of cached specifications.
func (s *CachedStore) Len() int {
	return s.specs.Len()
}
