package localstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/catalog"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestDeathStore(t *testing.T) (*DeathStore, *SQLiteStore) {
	t.Helper()
	c, err := catalog.New([]catalog.Monster{
		{ID: "1039", Name: "Baphomet", Level: 81, RespawnMin: 60, RespawnMax: 90},
		{ID: "1150", Name: "Moonlight Flower", Level: 67, RespawnMin: 60, RespawnMax: 70},
	})
	require.NoError(t, err)
	kv := newTestStore(t)
	return NewDeathStore(NewDeathStoreOptions{
		KV:      kv,
		Catalog: c,
		Now:     func() time.Time { return testNow },
	}), kv
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "a-1", "one"))
	require.NoError(t, store.Set(ctx, "a-2", "two"))
	require.NoError(t, store.Set(ctx, "b-1", "three"))
	require.NoError(t, store.Set(ctx, "a-1", "uno"))

	value, ok, err := store.Get(ctx, "a-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "uno", value)

	keys, err := store.Keys(ctx, "a-")
	require.NoError(t, err)
	assert.Equal(t, []string{"a-1", "a-2"}, keys)

	require.NoError(t, store.Delete(ctx, "a-1"))
	require.NoError(t, store.Delete(ctx, "a-1"))
	keys, err = store.Keys(ctx, "a-")
	require.NoError(t, err)
	assert.Equal(t, []string{"a-2"}, keys)
}

func TestDeathStore_SetAndLoad(t *testing.T) {
	ctx := context.Background()
	store, kv := newTestDeathStore(t)

	position := &models.MapPosition{X: 25, Y: 75}
	record, err := store.SetDeath(ctx, "1039", testNow.Add(-10*time.Minute), position)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(-10*time.Minute), record.DeathTime)

	value, ok, err := kv.Get(ctx, "mvp-death-1039")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"deathTime":"2024-03-10T11:50:00.000Z","mapPosition":{"x":25,"y":75}}`, value)

	loaded, ok, err := store.Load(ctx, "1039")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record.DeathTime, loaded.DeathTime)
	assert.Equal(t, position, loaded.MapPosition)

	// Future times move back one day.
	record, err = store.SetDeath(ctx, "1150", testNow.Add(time.Hour), nil)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(-23*time.Hour), record.DeathTime)

	_, err = store.SetDeath(ctx, "9999", testNow, nil)
	assert.Error(t, err)
	_, err = store.SetDeath(ctx, "1039", testNow, &models.MapPosition{X: 101})
	assert.Error(t, err)
}

func TestDeathStore_MalformedAndExpired(t *testing.T) {
	ctx := context.Background()
	store, kv := newTestDeathStore(t)

	require.NoError(t, kv.Set(ctx, "mvp-death-1039", "not json"))
	_, ok, err := store.Load(ctx, "1039")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "mvp-death-1039", `{"deathTime":"yesterday"}`))
	_, ok, err = store.Load(ctx, "1039")
	require.NoError(t, err)
	assert.False(t, ok)

	// 70 minute max plus one hour grace.
	_, err = store.SetDeath(ctx, "1150", testNow.Add(-131*time.Minute), nil)
	require.NoError(t, err)
	_, ok, err = store.Load(ctx, "1150")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = kv.Get(ctx, "mvp-death-1150")
	require.NoError(t, err)
	assert.False(t, ok, "expired record is pruned on read")

	records, err := store.ListDeaths(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDeathStore_PruneAndClear(t *testing.T) {
	ctx := context.Background()
	store, kv := newTestDeathStore(t)

	_, err := store.SetDeath(ctx, "1039", testNow.Add(-5*time.Minute), nil)
	require.NoError(t, err)
	_, err = store.SetDeath(ctx, "1150", testNow.Add(-3*time.Hour), nil)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "mvp-death-0000", `{"deathTime":"2024-03-10T11:00:00.000Z"}`))

	pruned, err := store.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)

	records, err := store.ListDeaths(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1039", records[0].MvpID)

	require.NoError(t, store.ClearDeath(ctx, "1039"))
	require.NoError(t, store.ClearDeath(ctx, "1039"))

	_, err = store.SetDeath(ctx, "1039", testNow, nil)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "mvp-death-1150", "garbage"))
	deleted, err := store.ClearAllDeaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	keys, err := kv.Keys(ctx, DeathKeyPrefix)
	require.NoError(t, err)
	assert.Empty(t, keys)
}
