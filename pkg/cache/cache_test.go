package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCachedRepository(t *testing.T) (*CachedRepository, *redis.Client) {
	t.Helper()
	ctx := context.Background()
	repository, err := repositories.NewSQLiteRepository(ctx, filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	return newCachedOver(t, repository)
}

func newCachedOver(t *testing.T, repository repositories.Repository) (*CachedRepository, *redis.Client) {
	t.Helper()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cached := NewCachedRepository(NewCachedRepositoryOptions{
		Repository: repository,
		Client:     rdb,
		TTL:        time.Minute,
		KeyPrefix:  "mvp-hunter-test",
	})
	t.Cleanup(func() { cached.Close(ctx) })
	return cached, rdb
}

// gatedRepository blocks ListDeaths after the database read until released.
type gatedRepository struct {
	repositories.Repository
	reached chan struct{}
	release chan struct{}
}

func (g *gatedRepository) ListDeaths(ctx context.Context, userID string) ([]*models.DeathRecord, error) {
	records, err := g.Repository.ListDeaths(ctx, userID)
	g.reached <- struct{}{}
	<-g.release
	return records, err
}

func TestCachedRepository_ReadThroughAndInvalidate(t *testing.T) {
	ctx := context.Background()
	cached, rdb := newTestCachedRepository(t)

	records, err := cached.ListDeaths(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, records)

	exists, err := rdb.Exists(ctx, cached.Key("user-1")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)

	_, _, err = cached.UpsertDeath(ctx, &models.DeathRecord{
		UserID:    "user-1",
		MvpID:     "1039",
		DeathTime: time.Now(),
	})
	require.NoError(t, err)

	exists, err = rdb.Exists(ctx, cached.Key("user-1")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)

	records, err = cached.ListDeaths(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1039", records[0].MvpID)

	// Served from cache.
	records, err = cached.ListDeaths(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, records, 1)

	_, err = cached.DeleteDeath(ctx, "user-1", "1039")
	require.NoError(t, err)
	records, err = cached.ListDeaths(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCachedRepository_MalformedEntryFallsBack(t *testing.T) {
	ctx := context.Background()
	cached, rdb := newTestCachedRepository(t)

	_, _, err := cached.UpsertDeath(ctx, &models.DeathRecord{
		UserID:    "user-1",
		MvpID:     "1150",
		DeathTime: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, rdb.Set(ctx, cached.Key("user-1"), "not json", time.Minute).Err())

	records, err := cached.ListDeaths(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1150", records[0].MvpID)
}

func TestCachedRepository_InvalidationDuringReadIsNotOverwritten(t *testing.T) {
	ctx := context.Background()
	inner, err := repositories.NewSQLiteRepository(ctx, filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)

	gated := &gatedRepository{
		Repository: inner,
		reached:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	cached, rdb := newCachedOver(t, gated)

	type result struct {
		records []*models.DeathRecord
		err     error
	}
	done := make(chan result, 1)
	go func() {
		records, err := cached.ListDeaths(ctx, "user-1")
		done <- result{records, err}
	}()

	select {
	case <-gated.reached:
	case <-time.After(5 * time.Second):
		t.Fatal("read never reached the database")
	}

	// Write straight to the inner repository so the gate is not hit, then invalidate.
	_, _, err = inner.UpsertDeath(ctx, &models.DeathRecord{
		UserID:    "user-1",
		MvpID:     "1039",
		DeathTime: time.Now(),
	})
	require.NoError(t, err)
	cached.invalidate(ctx, "user-1")

	close(gated.release)
	stale := <-done
	require.NoError(t, stale.err)
	assert.Empty(t, stale.records)

	exists, err := rdb.Exists(ctx, cached.Key("user-1")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists, "stale list must not be cached")

	// The next read fills the cache with the fresh list.
	go func() {
		<-gated.reached
	}()
	records, err := cached.ListDeaths(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1039", records[0].MvpID)

	exists, err = rdb.Exists(ctx, cached.Key("user-1")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}

func TestCachedRepository_InvalidateBumpsGeneration(t *testing.T) {
	ctx := context.Background()
	cached, rdb := newTestCachedRepository(t)

	_, err := cached.DeleteAllDeaths(ctx, "user-1")
	require.NoError(t, err)
	_, err = cached.DeleteAllDeaths(ctx, "user-1")
	require.NoError(t, err)

	gen, err := rdb.Get(ctx, cached.GenerationKey("user-1")).Result()
	require.NoError(t, err)
	assert.Equal(t, "2", gen)

	ttl, err := rdb.PTTL(ctx, cached.GenerationKey("user-1")).Result()
	require.NoError(t, err)
	assert.Less(t, ttl, time.Duration(0), "generation counter has no expiry")
}

func TestCachedRepository_FillSetsTTL(t *testing.T) {
	ctx := context.Background()
	cached, rdb := newTestCachedRepository(t)

	_, err := cached.ListDeaths(ctx, "user-1")
	require.NoError(t, err)

	ttl, err := rdb.PTTL(ctx, cached.Key("user-1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}
