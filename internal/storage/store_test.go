package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func backends(t *testing.T) map[string]Store {
	t.Helper()
	lite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "conv.db"), WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { lite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(WithClock(clock)),
		"sqlite": lite,
		"cached": NewCachedStore(NewMemoryStore(WithClock(clock)), CacheConfig{MaxEntries: 4}),
		"resilient": NewResilientStore(NewMemoryStore(WithClock(clock)), ResilienceConfig{
			InitialDelay: time.Millisecond,
		}),
	}
}

func TestStore_Contract(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("unknown user", func(t *testing.T) {
				_, err := store.GetPartialSpecification(ctx, "nobody")
				assert.ErrorIs(t, err, ErrNotFound)

				_, err = store.GetLastActivityTime(ctx, "nobody")
				assert.ErrorIs(t, err, ErrNotFound)

				payload, err := store.GetPendingClarification(ctx, "nobody")
				require.NoError(t, err)
				assert.Nil(t, payload)
			})

			t.Run("blank user id rejected", func(t *testing.T) {
				err := store.SavePartialSpecification(ctx, "  ", specification.Specification{})
				assert.Error(t, err)
			})

			t.Run("specification round trip", func(t *testing.T) {
				spec := specification.Specification{"width": 36, "height": 48.5, "operation": "casement", "has_low_e": true}
				require.NoError(t, store.SavePartialSpecification(ctx, "u1", spec))

				got, err := store.GetPartialSpecification(ctx, "u1")
				require.NoError(t, err)
				assert.Equal(t, specification.Specification{"width": 36, "height": 48.5, "operation": "casement", "has_low_e": true}, got)

				got["width"] = 99
				again, err := store.GetPartialSpecification(ctx, "u1")
				require.NoError(t, err)
				assert.Equal(t, 36, again["width"])
			})

			t.Run("last activity", func(t *testing.T) {
				require.NoError(t, store.UpdateLastActivity(ctx, "u2"))
				last, err := store.GetLastActivityTime(ctx, "u2")
				require.NoError(t, err)
				assert.True(t, fixedNow.Equal(last), "got %s", last)
			})

			t.Run("pending slot", func(t *testing.T) {
				payload := []byte(`{"id":"x","category":"size"}`)
				require.NoError(t, store.SetPendingClarification(ctx, "u3", payload))

				got, err := store.GetPendingClarification(ctx, "u3")
				require.NoError(t, err)
				assert.JSONEq(t, string(payload), string(got))

				require.NoError(t, store.ClearPendingClarification(ctx, "u3"))
				got, err = store.GetPendingClarification(ctx, "u3")
				require.NoError(t, err)
				assert.Nil(t, got)
			})

			t.Run("clear drops everything", func(t *testing.T) {
				require.NoError(t, store.SavePartialSpecification(ctx, "u4", specification.Specification{"width": 30}))
				require.NoError(t, store.SetPendingClarification(ctx, "u4", []byte(`{}`)))
				require.NoError(t, store.UpdateLastActivity(ctx, "u4"))

				require.NoError(t, store.ClearPartialSpecification(ctx, "u4"))

				_, err := store.GetPartialSpecification(ctx, "u4")
				assert.ErrorIs(t, err, ErrNotFound)
				pending, err := store.GetPendingClarification(ctx, "u4")
				require.NoError(t, err)
				assert.Nil(t, pending)
			})

			assert.NoError(t, store.Ping(ctx))
		})
	}
}
