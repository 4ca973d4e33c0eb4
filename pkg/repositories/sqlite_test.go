package repositories

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	repository, err := NewSQLiteRepository(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		repository.Close(ctx)
	})
	return repository
}

func TestSQLiteRepository_UpsertRoundTrip(t *testing.T) {
	ctx := context.Background()
	repository := newTestSQLiteRepository(t)

	deathTime := time.Date(2024, time.March, 10, 12, 34, 56, 789123456, time.UTC)
	stored, inserted, err := repository.UpsertDeath(ctx, &models.DeathRecord{
		UserID:      "user-1",
		MvpID:       "1039",
		DeathTime:   deathTime,
		MapPosition: &models.MapPosition{X: 12.5, Y: 80},
	})
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEmpty(t, stored.ID)

	records, err := repository.ListDeaths(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	assert.Equal(t, stored.ID, got.ID)
	assert.Equal(t, "1039", got.MvpID)
	assert.True(t, deathTime.Truncate(time.Millisecond).Equal(got.DeathTime), "got %s", got.DeathTime)
	require.NotNil(t, got.MapPosition)
	assert.Equal(t, models.MapPosition{X: 12.5, Y: 80}, *got.MapPosition)
}

func TestSQLiteRepository_UpsertKeepsOneRecordPerMonster(t *testing.T) {
	ctx := context.Background()
	repository := newTestSQLiteRepository(t)

	first, inserted, err := repository.UpsertDeath(ctx, &models.DeathRecord{
		UserID:      "user-1",
		MvpID:       "1039",
		DeathTime:   time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC),
		MapPosition: &models.MapPosition{X: 1, Y: 2},
	})
	require.NoError(t, err)
	require.True(t, inserted)

	second, inserted, err := repository.UpsertDeath(ctx, &models.DeathRecord{
		UserID:    "user-1",
		MvpID:     "1039",
		DeathTime: time.Date(2024, time.March, 10, 14, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, second.ID)

	records, err := repository.ListDeaths(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 14, records[0].DeathTime.Hour())
	assert.Nil(t, records[0].MapPosition)
}

func TestSQLiteRepository_RecordsAreScopedPerUser(t *testing.T) {
	ctx := context.Background()
	repository := newTestSQLiteRepository(t)

	for _, userID := range []string{"user-1", "user-2"} {
		_, _, err := repository.UpsertDeath(ctx, &models.DeathRecord{
			UserID:    userID,
			MvpID:     "1039",
			DeathTime: time.Now(),
		})
		require.NoError(t, err)
	}

	records, err := repository.ListDeaths(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	deleted, err := repository.DeleteAllDeaths(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, deleted, 1)

	records, err = repository.ListDeaths(ctx, "user-2")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSQLiteRepository_DeleteDeath(t *testing.T) {
	ctx := context.Background()
	repository := newTestSQLiteRepository(t)

	stored, _, err := repository.UpsertDeath(ctx, &models.DeathRecord{
		UserID:    "user-1",
		MvpID:     "1150",
		DeathTime: time.Now(),
	})
	require.NoError(t, err)

	deleted, err := repository.DeleteDeath(ctx, "user-1", "1150")
	require.NoError(t, err)
	assert.Equal(t, stored.ID, deleted.ID)

	_, err = repository.DeleteDeath(ctx, "user-1", "1150")
	assert.True(t, IsNotFound(err))

	records, err := repository.ListDeaths(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSQLiteRepository_DeleteAllDeaths(t *testing.T) {
	ctx := context.Background()
	repository := newTestSQLiteRepository(t)

	for _, mvpID := range []string{"1039", "1150", "1511"} {
		_, _, err := repository.UpsertDeath(ctx, &models.DeathRecord{
			UserID:    "user-1",
			MvpID:     mvpID,
			DeathTime: time.Now(),
		})
		require.NoError(t, err)
	}

	deleted, err := repository.DeleteAllDeaths(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, deleted, 3)

	deleted, err = repository.DeleteAllDeaths(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

func TestSQLiteRepository_CreateUserIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repository := newTestSQLiteRepository(t)

	user, err := repository.CreateUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)

	_, err = repository.CreateUser(ctx, "user-1")
	assert.NoError(t, err)
}

func TestSQLiteRepository_Accounts(t *testing.T) {
	ctx := context.Background()
	repository := newTestSQLiteRepository(t)

	account, err := repository.CreateAccount(ctx, "hunter@example.com", "hash")
	require.NoError(t, err)

	_, err = repository.CreateAccount(ctx, "hunter@example.com", "other")
	assert.True(t, IsConflict(err))

	byEmail, err := repository.GetAccountByEmail(ctx, "hunter@example.com")
	require.NoError(t, err)
	assert.Equal(t, account.ID, byEmail.ID)
	assert.Equal(t, "hash", byEmail.PasswordHash)

	byID, err := repository.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "hunter@example.com", byID.Email)

	require.NoError(t, repository.DeleteAccount(ctx, account.ID))
	assert.True(t, IsNotFound(repository.DeleteAccount(ctx, account.ID)))

	_, err = repository.GetAccountByEmail(ctx, "hunter@example.com")
	assert.True(t, IsNotFound(err))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	repository, err := Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "open.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteRepository{}, repository)
	require.NoError(t, repository.Close(ctx))

	_, err = Open(ctx, "mysql://localhost/db")
	assert.Error(t, err)
	_, err = Open(ctx, "sqlite://")
	assert.Error(t, err)
}
