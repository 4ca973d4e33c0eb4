package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories/models"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

var _ Repository = &SQLiteRepository{}

type SQLiteRepository struct {
	db *sql.DB
}

type sqliteExecer struct {
	db *sql.DB
}

func (e sqliteExecer) exec(ctx context.Context, q string) error {
	_, err := e.db.ExecContext(ctx, q)
	return err
}

// NewSQLiteRepository opens the database at path and applies the embedded
// migrations. Use ":memory:" for a throwaway database.
func NewSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	// sqlite serializes writers; a single connection also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, sqliteExecer{db: db}, "migrations/sqlite"); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteRepository{
		db: db,
	}, nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, userID string) (*models.User, error) {
	q := `
	INSERT OR IGNORE INTO users (id, created_at) VALUES (?, ?);
	`
	if _, err := r.db.ExecContext(ctx, q, userID, formatTime(time.Now())); err != nil {
		return nil, fmt.Errorf("failed to insert user: %v", err)
	}
	return &models.User{ID: userID}, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteDeath(row rowScanner) (*models.DeathRecord, error) {
	var (
		record    models.DeathRecord
		deathTime string
		updatedAt string
		position  sql.NullString
	)
	if err := row.Scan(&record.ID, &record.UserID, &record.MvpID, &deathTime, &position, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if record.DeathTime, err = parseTime(deathTime); err != nil {
		return nil, err
	}
	if record.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if position.Valid {
		if record.MapPosition, err = decodePosition([]byte(position.String)); err != nil {
			return nil, err
		}
	}
	return &record, nil
}

func (r *SQLiteRepository) ListDeaths(ctx context.Context, userID string) ([]*models.DeathRecord, error) {
	q := `
	SELECT id, user_id, mvp_id, death_time, map_position, updated_at
	FROM mvp_deaths WHERE user_id = ? ORDER BY mvp_id;
	`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deaths: %v", err)
	}
	defer rows.Close()

	records := make([]*models.DeathRecord, 0)
	for rows.Next() {
		record, err := scanSQLiteDeath(rows)
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

func (r *SQLiteRepository) UpsertDeath(ctx context.Context, record *models.DeathRecord) (*models.DeathRecord, bool, error) {
	stored := prepareRecord(record, uuid.NewString)
	position, err := encodePosition(stored.MapPosition)
	if err != nil {
		return nil, false, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	var existingID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM mvp_deaths WHERE user_id = ? AND mvp_id = ?;`, stored.UserID, stored.MvpID).Scan(&existingID)
	inserted := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
		q := `
		INSERT INTO mvp_deaths (id, user_id, mvp_id, death_time, map_position, updated_at)
		VALUES (?, ?, ?, ?, ?, ?);
		`
		if _, err := tx.ExecContext(ctx, q, stored.ID, stored.UserID, stored.MvpID, formatTime(stored.DeathTime), position, formatTime(stored.UpdatedAt)); err != nil {
			return nil, false, fmt.Errorf("failed to insert death: %v", err)
		}
		inserted = true
	case err != nil:
		return nil, false, fmt.Errorf("failed to query death: %v", err)
	default:
		stored.ID = existingID
		q := `
		UPDATE mvp_deaths SET death_time = ?, map_position = ?, updated_at = ?
		WHERE id = ?;
		`
		if _, err := tx.ExecContext(ctx, q, formatTime(stored.DeathTime), position, formatTime(stored.UpdatedAt), stored.ID); err != nil {
			return nil, false, fmt.Errorf("failed to update death: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %v", err)
	}

	return stored, inserted, nil
}

func (r *SQLiteRepository) DeleteDeath(ctx context.Context, userID string, mvpID string) (*models.DeathRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	q := `
	SELECT id, user_id, mvp_id, death_time, map_position, updated_at
	FROM mvp_deaths WHERE user_id = ? AND mvp_id = ?;
	`
	record, err := scanSQLiteDeath(tx.QueryRowContext(ctx, q, userID, mvpID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan death: %v", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM mvp_deaths WHERE id = ?;`, record.ID); err != nil {
		return nil, fmt.Errorf("failed to delete death: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %v", err)
	}

	return record, nil
}

func (r *SQLiteRepository) DeleteAllDeaths(ctx context.Context, userID string) ([]*models.DeathRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	q := `
	SELECT id, user_id, mvp_id, death_time, map_position, updated_at
	FROM mvp_deaths WHERE user_id = ? ORDER BY mvp_id;
	`
	rows, err := tx.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deaths: %v", err)
	}
	records := make([]*models.DeathRecord, 0)
	for rows.Next() {
		record, err := scanSQLiteDeath(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan death: %v", err)
		}
		records = append(records, record)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deaths: %v", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM mvp_deaths WHERE user_id = ?;`, userID); err != nil {
		return nil, fmt.Errorf("failed to delete deaths: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %v", err)
	}

	return records, nil
}

func (r *SQLiteRepository) CreateAccount(ctx context.Context, email string, passwordHash string) (*models.Account, error) {
	account := &models.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	q := `
	INSERT INTO accounts (id, email, password_hash, created_at) VALUES (?, ?, ?, ?);
	`
	if _, err := r.db.ExecContext(ctx, q, account.ID, account.Email, account.PasswordHash, formatTime(account.CreatedAt)); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, &ErrConflict{Field: "email"}
		}
		return nil, fmt.Errorf("failed to insert account: %v", err)
	}
	return account, nil
}

func (r *SQLiteRepository) getAccount(ctx context.Context, where string, arg string) (*models.Account, error) {
	q := `SELECT id, email, password_hash, created_at FROM accounts WHERE ` + where + ` = ?;`
	var (
		account   models.Account
		createdAt string
	)
	if err := r.db.QueryRowContext(ctx, q, arg).Scan(&account.ID, &account.Email, &account.PasswordHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan account: %v", err)
	}
	var err error
	if account.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	return r.getAccount(ctx, "id", accountID)
}

func (r *SQLiteRepository) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getAccount(ctx, "email", email)
}

func (r *SQLiteRepository) DeleteAccount(ctx context.Context, accountID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?;`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete account: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count deleted accounts: %v", err)
	}
	if n == 0 {
		return &ErrNotFound{}
	}
	return nil
}
