package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

// countingStore wraps a MemoryStore and counts spec reads. failures makes
// the next n calls fail with failErr.
type countingStore struct {
	*MemoryStore
	mu       sync.Mutex
	gets     int
	calls    int
	failures int
	failErr  error
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: NewMemoryStore(WithClock(clock)), failErr: errors.New("connection reset")}
}

func (c *countingStore) fail() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failures > 0 {
		c.failures--
		return c.failErr
	}
	return nil
}

func (c *countingStore) GetPartialSpecification(ctx context.Context, userID string) (specification.Specification, error) {
	c.mu.Lock()
	c.gets++
	c.mu.Unlock()
	if err := c.fail(); err != nil {
		return nil, err
	}
	return c.MemoryStore.GetPartialSpecification(ctx, userID)
}

func (c *countingStore) SavePartialSpecification(ctx context.Context, userID string, spec specification.Specification) error {
	if err := c.fail(); err != nil {
		return err
	}
	return c.MemoryStore.SavePartialSpecification(ctx, userID, spec)
}

func TestCachedStore_ReadThroughAndWriteThrough(t *testing.T) {
	ctx := context.Background()
	origin := newCountingStore()
	require.NoError(t, origin.MemoryStore.SavePartialSpecification(ctx, "u1", specification.Specification{"width": 36}))

	store := NewCachedStore(origin, CacheConfig{TTL: time.Minute, MaxEntries: 8})

	first, err := store.GetPartialSpecification(ctx, "u1")
	require.NoError(t, err)
	second, err := store.GetPartialSpecification(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, origin.gets)

	first["width"] = 1
	third, err := store.GetPartialSpecification(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 36, third["width"], "cached value must not alias callers")

	require.NoError(t, store.SavePartialSpecification(ctx, "u1", specification.Specification{"width": 40}))
	got, err := store.GetPartialSpecification(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 40, got["width"])
	assert.Equal(t, 1, origin.gets)

	require.NoError(t, store.ClearPartialSpecification(ctx, "u1"))
	assert.Equal(t, 0, store.Len())
	_, err = store.GetPartialSpecification(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedStore_FailedWriteInvalidates(t *testing.T) {
	ctx := context.Background()
	origin := newCountingStore()
	store := NewCachedStore(origin, CacheConfig{})

	require.NoError(t, store.SavePartialSpecification(ctx, "u1", specification.Specification{"width": 36}))
	assert.Equal(t, 1, store.Len())

	origin.failures = 1
	err := store.SavePartialSpecification(ctx, "u1", specification.Specification{"width": 50})
	require.Error(t, err)
	assert.Equal(t, 0, store.Len())

	got, err := store.GetPartialSpecification(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 36, got["width"])
}

func TestResilientStore(t *testing.T) {
	ctx := context.Background()
	fast := ResilienceConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxFailures: 2, OpenTimeout: time.Hour}

	t.Run("retries transient errors", func(t *testing.T) {
		origin := newCountingStore()
		store := NewResilientStore(origin, fast)
		origin.failures = 1

		require.NoError(t, store.SavePartialSpecification(ctx, "u1", specification.Specification{"width": 36}))
		assert.Equal(t, 2, origin.calls)
	})

	t.Run("not found is returned once", func(t *testing.T) {
		origin := newCountingStore()
		store := NewResilientStore(origin, fast)

		_, err := store.GetPartialSpecification(ctx, "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, 1, origin.gets)
		assert.Equal(t, "closed", store.BreakerState())
	})

	t.Run("breaker opens after repeated failures", func(t *testing.T) {
		origin := newCountingStore()
		store := NewResilientStore(origin, fast)
		origin.failures = 100

		err := store.SavePartialSpecification(ctx, "u1", specification.Specification{})
		require.Error(t, err)
		assert.Equal(t, "open", store.BreakerState())

		calls := origin.calls
		err = store.SavePartialSpecification(ctx, "u1", specification.Specification{})
		require.Error(t, err)
		assert.Equal(t, calls, origin.calls, "open breaker must not reach the backend")
	})
}

func TestDefaultCacheConfig(t *testing.T) {
	cfg := DefaultCacheConfig()
	assert.Equal(t, 5*time.Minute, cfg.TTL)
	assert.Equal(t, 1024, cfg.MaxEntries)
}
