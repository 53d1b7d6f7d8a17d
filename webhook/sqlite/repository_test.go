package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trellohooks/trellohooks/webhook"
	"github.com/trellohooks/trellohooks/webhook/sqlite"
)

func newRepository(t *testing.T) *sqlite.Repository {
	t.Helper()

	repo, err := sqlite.NewRepository(filepath.Join(t.TempDir(), "trellohooks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close(context.Background()) })
	return repo
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("first persist stamps both timestamps", func(t *testing.T) {
		repo := newRepository(t)

		stored, err := repo.Store(ctx, webhook.Webhook{
			ID: "wh-1", ModelID: "MODEL", AuthToken: "TOKEN", Description: "board updates",
		})

		require.NoError(t, err)
		assert.False(t, stored.CreatedAt.IsZero())
		assert.False(t, stored.LastUpdatedAt.IsZero())
	})

	t.Run("updates keep created_at and bump last_updated_at", func(t *testing.T) {
		repo := newRepository(t)

		stored, err := repo.Store(ctx, webhook.Webhook{
			ID: "wh-1", ModelID: "MODEL", AuthToken: "TOKEN",
		})
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)
		stored.TrelloID = "remote-1"
		updated, err := repo.Store(ctx, stored)
		require.NoError(t, err)

		assert.True(t, updated.CreatedAt.Equal(stored.CreatedAt))
		assert.True(t, updated.LastUpdatedAt.After(stored.LastUpdatedAt))

		got, err := repo.Get(ctx, "wh-1")
		require.NoError(t, err)
		assert.Equal(t, "remote-1", got.TrelloID)
	})

	t.Run("duplicate token and model pair is rejected", func(t *testing.T) {
		repo := newRepository(t)

		_, err := repo.Store(ctx, webhook.Webhook{ID: "wh-1", ModelID: "MODEL", AuthToken: "TOKEN"})
		require.NoError(t, err)

		_, err = repo.Store(ctx, webhook.Webhook{ID: "wh-2", ModelID: "MODEL", AuthToken: "TOKEN"})
		assert.ErrorIs(t, err, webhook.ErrDuplicate)
	})

	t.Run("activation round-trips including unknown", func(t *testing.T) {
		repo := newRepository(t)

		for i, active := range []webhook.Activation{webhook.Unknown, webhook.Active, webhook.Inactive} {
			w := webhook.Webhook{
				ID:        "wh-" + string(rune('a'+i)),
				ModelID:   "M" + string(rune('a'+i)),
				AuthToken: "TOKEN",
				Active:    active,
			}
			_, err := repo.Store(ctx, w)
			require.NoError(t, err)

			got, err := repo.Get(ctx, w.ID)
			require.NoError(t, err)
			assert.Equal(t, active, got.Active)
		}
	})
}

func TestGet(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown id", func(t *testing.T) {
		repo := newRepository(t)

		_, err := repo.Get(ctx, "nope")
		assert.ErrorIs(t, err, webhook.ErrNotFound)
	})

	t.Run("by token and model", func(t *testing.T) {
		repo := newRepository(t)

		_, err := repo.Store(ctx, webhook.Webhook{ID: "wh-1", ModelID: "MODEL", AuthToken: "TOKEN"})
		require.NoError(t, err)

		got, err := repo.GetByTokenAndModel(ctx, "TOKEN", "MODEL")
		require.NoError(t, err)
		assert.Equal(t, "wh-1", got.ID)

		_, err = repo.GetByTokenAndModel(ctx, "OTHER", "MODEL")
		assert.ErrorIs(t, err, webhook.ErrNotFound)
	})
}

func TestList(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)

	for _, id := range []string{"wh-1", "wh-2", "wh-3"} {
		_, err := repo.Store(ctx, webhook.Webhook{ID: id, ModelID: "M-" + id, AuthToken: "TOKEN"})
		require.NoError(t, err)
	}

	hooks, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, hooks, 3)
	assert.Equal(t, "wh-1", hooks[0].ID)
}

func TestTouch(t *testing.T) {
	ctx := context.Background()

	t.Run("bumps last_updated_at only", func(t *testing.T) {
		repo := newRepository(t)

		stored, err := repo.Store(ctx, webhook.Webhook{ID: "wh-1", ModelID: "MODEL", AuthToken: "TOKEN"})
		require.NoError(t, err)

		at := time.Now().Add(time.Hour)
		require.NoError(t, repo.Touch(ctx, "wh-1", at))

		got, err := repo.Get(ctx, "wh-1")
		require.NoError(t, err)
		assert.True(t, got.LastUpdatedAt.After(stored.LastUpdatedAt))
		assert.True(t, got.CreatedAt.Equal(stored.CreatedAt))
	})

	t.Run("unknown id", func(t *testing.T) {
		repo := newRepository(t)
		assert.ErrorIs(t, repo.Touch(ctx, "nope", time.Now()), webhook.ErrNotFound)
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("removes the record", func(t *testing.T) {
		repo := newRepository(t)

		_, err := repo.Store(ctx, webhook.Webhook{ID: "wh-1", ModelID: "MODEL", AuthToken: "TOKEN"})
		require.NoError(t, err)

		require.NoError(t, repo.Delete(ctx, "wh-1"))
		_, err = repo.Get(ctx, "wh-1")
		assert.ErrorIs(t, err, webhook.ErrNotFound)
	})

	t.Run("events survive deletion of their record", func(t *testing.T) {
		repo := newRepository(t)

		_, err := repo.Store(ctx, webhook.Webhook{ID: "wh-1", ModelID: "MODEL", AuthToken: "TOKEN"})
		require.NoError(t, err)
		_, err = repo.StoreEvent(ctx, webhook.CallbackEvent{
			ID: "evt-1", WebhookID: "wh-1", EventType: "commentCard", Payload: []byte(`{}`),
		})
		require.NoError(t, err)

		require.NoError(t, repo.Delete(ctx, "wh-1"))

		events, err := repo.ListEvents(ctx, "wh-1", 0)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("unknown id", func(t *testing.T) {
		repo := newRepository(t)
		assert.ErrorIs(t, repo.Delete(ctx, "nope"), webhook.ErrNotFound)
	})
}

func TestEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("store stamps the ingestion time", func(t *testing.T) {
		repo := newRepository(t)

		stored, err := repo.StoreEvent(ctx, webhook.CallbackEvent{
			ID: "evt-1", WebhookID: "wh-1", EventType: "commentCard", Payload: []byte(`{"a":1}`),
		})

		require.NoError(t, err)
		assert.False(t, stored.Timestamp.IsZero())
	})

	t.Run("list is newest first and honors the limit", func(t *testing.T) {
		repo := newRepository(t)

		for _, id := range []string{"evt-1", "evt-2", "evt-3"} {
			_, err := repo.StoreEvent(ctx, webhook.CallbackEvent{
				ID: id, WebhookID: "wh-1", EventType: "commentCard", Payload: []byte(`{}`),
			})
			require.NoError(t, err)
			time.Sleep(2 * time.Millisecond)
		}

		events, err := repo.ListEvents(ctx, "wh-1", 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "evt-3", events[0].ID)
		assert.Equal(t, "evt-2", events[1].ID)
	})

	t.Run("payload round-trips verbatim", func(t *testing.T) {
		repo := newRepository(t)
		body := `{"action":{"type":"commentCard","data":{"text":"hi"}}}`

		_, err := repo.StoreEvent(ctx, webhook.CallbackEvent{
			ID: "evt-1", WebhookID: "wh-1", EventType: "commentCard", Payload: []byte(body),
		})
		require.NoError(t, err)

		events, err := repo.ListEvents(ctx, "wh-1", 0)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, body, string(events[0].Payload))
	})
}

func TestCollector(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)

	_, err := repo.Store(ctx, webhook.Webhook{ID: "wh-1", ModelID: "M1", AuthToken: "TOKEN"})
	require.NoError(t, err)
	_, err = repo.Store(ctx, webhook.Webhook{ID: "wh-2", ModelID: "M2", AuthToken: "TOKEN", TrelloID: "remote-1", Active: webhook.Active})
	require.NoError(t, err)
	_, err = repo.Store(ctx, webhook.Webhook{ID: "wh-3", ModelID: "M3", AuthToken: "TOKEN", TrelloID: webhook.TrelloIDConflict})
	require.NoError(t, err)
	_, err = repo.StoreEvent(ctx, webhook.CallbackEvent{ID: "evt-1", WebhookID: "wh-2", EventType: "commentCard", Payload: []byte(`{}`)})
	require.NoError(t, err)

	counts, err := repo.StateCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[webhook.Unregistered.String()])
	assert.Equal(t, int64(1), counts[webhook.Registered.String()])
	assert.Equal(t, int64(1), counts[webhook.Orphaned.String()])

	total, err := repo.EventCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}
