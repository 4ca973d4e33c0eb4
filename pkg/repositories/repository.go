package repositories

import (
	"context"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories/models"
)

type Repository interface {
	Close(ctx context.Context) error
	// CreateUser registers the user if it does not exist yet.
	CreateUser(ctx context.Context, userID string) (*models.User, error)

	// ListDeaths returns every stored record for the user, expired or not.
	ListDeaths(ctx context.Context, userID string) ([]*models.DeathRecord, error)
	// UpsertDeath stores the record keyed by (UserID, MvpID). The returned
	// record keeps the existing row id on update; inserted reports whether a
	// new row was created.
	UpsertDeath(ctx context.Context, record *models.DeathRecord) (stored *models.DeathRecord, inserted bool, err error)
	// DeleteDeath removes one record and returns it, or ErrNotFound.
	DeleteDeath(ctx context.Context, userID string, mvpID string) (*models.DeathRecord, error)
	// DeleteAllDeaths removes every record of the user and returns them.
	DeleteAllDeaths(ctx context.Context, userID string) ([]*models.DeathRecord, error)

	CreateAccount(ctx context.Context, email string, passwordHash string) (*models.Account, error)
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	DeleteAccount(ctx context.Context, accountID string) error
}
