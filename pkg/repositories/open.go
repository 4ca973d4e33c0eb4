package repositories

import (
	"context"
	"fmt"
	"net/url"
)

// Open picks the repository from the scheme of a connection string:
// sqlite://<path> or postgres(ql)://...
func Open(ctx context.Context, connStr string) (Repository, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %v", err)
	}

	switch u.Scheme {
	case "sqlite":
		path := u.Host + u.Path
		if path == "" {
			return nil, fmt.Errorf("missing sqlite database path")
		}
		return NewSQLiteRepository(ctx, path)
	case "postgres", "postgresql":
		return NewPostgresRepository(ctx, u.String())
	default:
		return nil, fmt.Errorf("unknown database type %s", u.Scheme)
	}
}
