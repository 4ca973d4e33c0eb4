package repositories

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFiles embed.FS

// execer is satisfied by *sql.DB and by a small adapter around pgxpool.
type execer interface {
	exec(ctx context.Context, sql string) error
}

// runMigrations executes every .sql file in dir, in name order.
func runMigrations(ctx context.Context, db execer, dir string) error {
	entries, err := fs.ReadDir(migrationFiles, dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %v", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		migrationPath := path.Join(dir, name)
		migration, err := fs.ReadFile(migrationFiles, migrationPath)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %v", migrationPath, err)
		}
		if err := db.exec(ctx, string(migration)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %v", migrationPath, err)
		}
	}
	return nil
}
