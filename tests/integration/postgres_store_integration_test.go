package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/storage"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/tests/helpers"
)

func TestPostgresStoreIntegration(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testDB := helpers.NewTestDatabase(t, storage.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	stores := map[string]storage.Store{
		"postgres": testDB.Store,
		"resilient+cached": storage.NewCachedStore(
			storage.NewResilientStore(testDB.Store, storage.DefaultResilienceConfig()),
			storage.DefaultCacheConfig(),
		),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			user := testDB.UserID(name)

			t.Run("unknown user", func(t *testing.T) {
				_, err := store.GetPartialSpecification(ctx, user)
				assert.ErrorIs(t, err, storage.ErrNotFound)
				_, err = store.GetLastActivityTime(ctx, user)
				assert.ErrorIs(t, err, storage.ErrNotFound)
				pending, err := store.GetPendingClarification(ctx, user)
				require.NoError(t, err)
				assert.Nil(t, pending)
			})

			t.Run("specification round trip", func(t *testing.T) {
				require.NoError(t, store.SavePartialSpecification(ctx, user, helpers.CompleteSpecification()))

				got, err := store.GetPartialSpecification(ctx, user)
				require.NoError(t, err)
				assert.Equal(t, helpers.CompleteSpecification(), got)
			})

			t.Run("activity", func(t *testing.T) {
				require.NoError(t, store.UpdateLastActivity(ctx, user))
				at, err := store.GetLastActivityTime(ctx, user)
				require.NoError(t, err)
				assert.True(t, now.Equal(at), "got %s", at)
			})

			t.Run("pending slot", func(t *testing.T) {
				payload := []byte(`{"id":"p1","attempts":0}`)
				require.NoError(t, store.SetPendingClarification(ctx, user, payload))
				got, err := store.GetPendingClarification(ctx, user)
				require.NoError(t, err)
				assert.JSONEq(t, string(payload), string(got))

				require.NoError(t, store.ClearPendingClarification(ctx, user))
				got, err = store.GetPendingClarification(ctx, user)
				require.NoError(t, err)
				assert.Nil(t, got)
			})

			t.Run("clear", func(t *testing.T) {
				require.NoError(t, store.ClearPartialSpecification(ctx, user))
				_, err := store.GetPartialSpecification(ctx, user)
				assert.ErrorIs(t, err, storage.ErrNotFound)
			})
		})
	}

	t.Run("partial specification survives reconnect", func(t *testing.T) {
		user := testDB.UserID("reconnect")
		require.NoError(t, testDB.Store.SavePartialSpecification(ctx, user, specification.Specification{"width": 30.5}))

		pool, err := helpers.GetTestDatabasePool(ctx)
		require.NoError(t, err)
		defer pool.Close()

		got, err := storage.NewPostgresStore(pool).GetPartialSpecification(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, specification.Specification{"width": 30.5}, got)
		assert.Equal(t, 1, testDB.ConversationCount(t))
	})
}
