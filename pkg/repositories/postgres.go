package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/log"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Repository = &PostgresRepository{}

// pgUniqueViolation is the SQLSTATE for unique_violation
const pgUniqueViolation = "23505"

type PostgresRepository struct {
	pool *pgxpool.Pool
}

type postgresExecer struct {
	pool *pgxpool.Pool
}

func (e postgresExecer) exec(ctx context.Context, q string) error {
	_, err := e.pool.Exec(ctx, q)
	return err
}

// NewPostgresRepository connects to the database and applies the embedded migrations.
// The caller is responsible for calling Close() on the repository.
func NewPostgresRepository(ctx context.Context, connStr string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	var username string
	var database string
	if err := pool.QueryRow(ctx, "SELECT current_user, current_database()").Scan(&username, &database); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to query database: %v", err)
	}
	log.Info("Connected to %s as %s", database, username)

	if err := runMigrations(ctx, postgresExecer{pool: pool}, "migrations/postgres"); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresRepository{
		pool: pool,
	}, nil
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) CreateUser(ctx context.Context, userID string) (*models.User, error) {
	q := `
	INSERT INTO users (id) VALUES ($1)
	ON CONFLICT (id) DO NOTHING;
	`
	if _, err := r.pool.Exec(ctx, q, userID); err != nil {
		return nil, fmt.Errorf("failed to insert user: %v", err)
	}
	return &models.User{ID: userID}, nil
}

const deathColumns = `id, user_id, mvp_id, death_time, map_position, updated_at`

func scanPostgresDeath(row pgx.Row) (*models.DeathRecord, error) {
	var (
		record   models.DeathRecord
		position []byte
	)
	if err := row.Scan(&record.ID, &record.UserID, &record.MvpID, &record.DeathTime, &position, &record.UpdatedAt); err != nil {
		return nil, err
	}
	record.DeathTime = record.DeathTime.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()

	var err error
	if record.MapPosition, err = decodePosition(position); err != nil {
		return nil, err
	}
	return &record, nil
}

func collectPostgresDeaths(rows pgx.Rows) ([]*models.DeathRecord, error) {
	defer rows.Close()
	records := make([]*models.DeathRecord, 0)
	for rows.Next() {
		record, err := scanPostgresDeath(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan death: %v", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deaths: %v", err)
	}
	return records, nil
}

func (r *PostgresRepository) ListDeaths(ctx context.Context, userID string) ([]*models.DeathRecord, error) {
	q := `SELECT ` + deathColumns + ` FROM mvp_deaths WHERE user_id = $1 ORDER BY mvp_id;`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deaths: %v", err)
	}
	return collectPostgresDeaths(rows)
}

func (r *PostgresRepository) UpsertDeath(ctx context.Context, record *models.DeathRecord) (*models.DeathRecord, bool, error) {
	stored := prepareRecord(record, uuid.NewString)
	position, err := encodePosition(stored.MapPosition)
	if err != nil {
		return nil, false, err
	}

	q := `
	INSERT INTO mvp_deaths (id, user_id, mvp_id, death_time, map_position, updated_at)
	VALUES ($1, $2, $3, $4, $5::jsonb, $6)
	ON CONFLICT (user_id, mvp_id) DO UPDATE
	SET death_time = EXCLUDED.death_time, map_position = EXCLUDED.map_position, updated_at = EXCLUDED.updated_at
	RETURNING id, (xmax = 0) AS inserted;
	`
	var inserted bool
	err = r.pool.QueryRow(ctx, q, stored.ID, stored.UserID, stored.MvpID, stored.DeathTime, position, stored.UpdatedAt).Scan(&stored.ID, &inserted)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert death: %v", err)
	}

	return stored, inserted, nil
}

func (r *PostgresRepository) DeleteDeath(ctx context.Context, userID string, mvpID string) (*models.DeathRecord, error) {
	q := `DELETE FROM mvp_deaths WHERE user_id = $1 AND mvp_id = $2 RETURNING ` + deathColumns + `;`
	record, err := scanPostgresDeath(r.pool.QueryRow(ctx, q, userID, mvpID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to delete death: %v", err)
	}
	return record, nil
}

func (r *PostgresRepository) DeleteAllDeaths(ctx context.Context, userID string) ([]*models.DeathRecord, error) {
	q := `DELETE FROM mvp_deaths WHERE user_id = $1 RETURNING ` + deathColumns + `;`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete deaths: %v", err)
	}
	return collectPostgresDeaths(rows)
}

func (r *PostgresRepository) CreateAccount(ctx context.Context, email string, passwordHash string) (*models.Account, error) {
	account := &models.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	q := `
	INSERT INTO accounts (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4);
	`
	if _, err := r.pool.Exec(ctx, q, account.ID, account.Email, account.PasswordHash, account.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, &ErrConflict{Field: "email"}
		}
		return nil, fmt.Errorf("failed to insert account: %v", err)
	}
	return account, nil
}

func (r *PostgresRepository) getAccount(ctx context.Context, where string, arg string) (*models.Account, error) {
	q := `SELECT id, email, password_hash, created_at FROM accounts WHERE ` + where + ` = $1;`
	var account models.Account
	if err := r.pool.QueryRow(ctx, q, arg).Scan(&account.ID, &account.Email, &account.PasswordHash, &account.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan account: %v", err)
	}
	account.CreatedAt = account.CreatedAt.UTC()
	return &account, nil
}

func (r *PostgresRepository) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	return r.getAccount(ctx, "id", accountID)
}

func (r *PostgresRepository) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getAccount(ctx, "email", email)
}

func (r *PostgresRepository) DeleteAccount(ctx context.Context, accountID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1;`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete account: %v", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{}
	}
	return nil
}
