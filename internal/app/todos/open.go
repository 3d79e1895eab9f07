package todos

import (
	"context"
	"strings"

	"github.com/focus-todo/project/internal/platform/dbpool"
)

// Open picks the backend from the database URL: postgres:// and
// postgresql:// use pgx, anything else is treated as a SQLite path with an
// optional sqlite: prefix. The returned func releases the backend.
func Open(ctx context.Context, databaseURL string, poolOpts dbpool.Options) (Repository, func(), error) {
	if IsPostgresURL(databaseURL) {
		pool, err := dbpool.New(ctx, databaseURL, poolOpts)
		if err != nil {
			return nil, nil, err
		}
		return NewPostgresRepository(pool), pool.Close, nil
	}

	repo, err := OpenSQLite(SQLitePath(databaseURL))
	if err != nil {
		return nil, nil, err
	}
	return repo, func() { _ = repo.Close() }, nil
}

func IsPostgresURL(databaseURL string) bool {
	return strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://")
}

// SQLitePath strips the sqlite: / sqlite:// prefix from a database URL.
func SQLitePath(databaseURL string) string {
	path := strings.TrimPrefix(databaseURL, "sqlite://")
	path = strings.TrimPrefix(path, "sqlite:")
	if path == "" {
		return "database.db"
	}
	return path
}
