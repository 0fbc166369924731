package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/francesco-re-1107/HostPingBot/internal/models"
	"github.com/francesco-re-1107/HostPingBot/internal/storage"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newWatchdog(name string, mode models.Mode, chatID int64) *models.Watchdog {
	now := time.Now().UTC().Truncate(time.Second)
	w := &models.Watchdog{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		Name:      name,
		Mode:      mode,
		Enabled:   true,
		Online:    true,
		LastSeen:  now,
		CreatedAt: now,
	}
	if mode == models.ModePoll {
		w.Address = "203.0.113.10"
	} else {
		w.CheckInterval = 120 * time.Second
	}
	return w
}

func TestCreateAndGetWatchdog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	w := newWatchdog("web", models.ModePoll, 42)
	require.NoError(t, store.CreateWatchdog(ctx, w, 10))

	got, err := store.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.Name, got.Name)
	assert.Equal(t, models.ModePoll, got.Mode)
	assert.Equal(t, "203.0.113.10", got.Address)
	assert.True(t, got.Online)
	assert.True(t, got.Enabled)
	assert.Equal(t, w.LastSeen.Unix(), got.LastSeen.Unix())
}

func TestGetByIDNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetByID(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateWatchdogDuplicateName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateWatchdog(ctx, newWatchdog("web", models.ModePush, 42), 10))
	err := store.CreateWatchdog(ctx, newWatchdog("web", models.ModePush, 42), 10)
	assert.ErrorIs(t, err, storage.ErrDuplicateName)

	// The same name under a different owner is fine.
	assert.NoError(t, store.CreateWatchdog(ctx, newWatchdog("web", models.ModePush, 43), 10))
}

func TestCreateWatchdogLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateWatchdog(ctx, newWatchdog("a", models.ModePush, 42), 2))
	require.NoError(t, store.CreateWatchdog(ctx, newWatchdog("b", models.ModePush, 42), 2))
	err := store.CreateWatchdog(ctx, newWatchdog("c", models.ModePush, 42), 2)
	assert.ErrorIs(t, err, storage.ErrLimitExceeded)
}

func TestListPollHostsFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateWatchdog(ctx, newWatchdog("poll", models.ModePoll, 1), 10))
	require.NoError(t, store.CreateWatchdog(ctx, newWatchdog("push", models.ModePush, 1), 10))

	disabled := newWatchdog("disabled", models.ModePoll, 2)
	disabled.Enabled = false
	require.NoError(t, store.CreateWatchdog(ctx, disabled, 10))

	hosts, err := store.ListPollHosts(ctx)
	require.NoError(t, err)
	require.Len(t, hosts, 1)
	assert.Equal(t, "poll", hosts[0].Name)
}

func TestSetOnlineIsConditional(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	w := newWatchdog("api", models.ModePush, 1)
	require.NoError(t, store.CreateWatchdog(ctx, w, 10))

	// Already online: no change.
	changed, err := store.SetOnline(ctx, w.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = store.SetOfflineBatch(ctx, []string{w.ID})
	require.NoError(t, err)

	now := time.Now().Add(time.Minute)
	changed, err = store.SetOnline(ctx, w.ID, now)
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := store.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, got.Online)
	assert.Equal(t, now.Unix(), got.LastSeen.Unix())
}

func TestSetOfflineBatchReturnsOnlyChangedIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	online := newWatchdog("online", models.ModePoll, 1)
	alreadyOffline := newWatchdog("offline", models.ModePoll, 1)
	require.NoError(t, store.CreateWatchdog(ctx, online, 10))
	require.NoError(t, store.CreateWatchdog(ctx, alreadyOffline, 10))

	_, err := store.SetOfflineBatch(ctx, []string{alreadyOffline.ID})
	require.NoError(t, err)

	changed, err := store.SetOfflineBatch(ctx, []string{online.ID, alreadyOffline.ID, uuid.New().String()})
	require.NoError(t, err)
	assert.Equal(t, []string{online.ID}, changed)

	// A second pass changes nothing.
	changed, err = store.SetOfflineBatch(ctx, []string{online.ID, alreadyOffline.ID})
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestListExpiredPushHosts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	silent := newWatchdog("silent", models.ModePush, 1)
	silent.LastSeen = now.Add(-130 * time.Second)
	require.NoError(t, store.CreateWatchdog(ctx, silent, 10))

	fresh := newWatchdog("fresh", models.ModePush, 1)
	fresh.LastSeen = now.Add(-10 * time.Second)
	require.NoError(t, store.CreateWatchdog(ctx, fresh, 10))

	offline := newWatchdog("down", models.ModePush, 1)
	offline.LastSeen = now.Add(-time.Hour)
	require.NoError(t, store.CreateWatchdog(ctx, offline, 10))
	_, err := store.SetOfflineBatch(ctx, []string{offline.ID})
	require.NoError(t, err)

	polled := newWatchdog("polled", models.ModePoll, 1)
	require.NoError(t, store.CreateWatchdog(ctx, polled, 10))

	expired, err := store.ListExpiredPushHosts(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "silent", expired[0].Name)
}

func TestTouchLastSeen(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	w := newWatchdog("api", models.ModePush, 1)
	w.LastSeen = time.Now().Add(-time.Hour)
	require.NoError(t, store.CreateWatchdog(ctx, w, 10))

	now := time.Now()
	require.NoError(t, store.TouchLastSeen(ctx, w.ID, now))

	got, err := store.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, now.Unix(), got.LastSeen.Unix())
	assert.True(t, got.Online, "touch must not change the liveness flag")
}

func TestDeleteWatchdog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	w := newWatchdog("api", models.ModePush, 42)
	require.NoError(t, store.CreateWatchdog(ctx, w, 10))

	require.NoError(t, store.DeleteWatchdog(ctx, 42, "api"))
	_, err := store.GetByID(ctx, w.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, store.DeleteWatchdog(ctx, 42, "api"), storage.ErrNotFound)
}

func TestListForOwnerAndStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateWatchdog(ctx, newWatchdog("b", models.ModePush, 1), 10))
	require.NoError(t, store.CreateWatchdog(ctx, newWatchdog("a", models.ModePoll, 1), 10))
	require.NoError(t, store.CreateWatchdog(ctx, newWatchdog("c", models.ModePush, 2), 10))

	list, err := store.ListForOwner(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, "b", list[1].Name)

	count, err := store.CountForOwner(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Users)
	assert.Equal(t, 3, stats.Watchdogs)
	assert.Equal(t, 1, stats.PollWatchdogs)
	assert.Equal(t, 2, stats.PushWatchdogs)
}
