package todos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/focus-todo/project/internal/focus"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteRepository stores todos in a single SQLite file, the deployment the
// app started with. It is also what the tests run against, in memory.
type SQLiteRepository struct {
	db *sqlx.DB
}

// OpenSQLite opens (or creates) the database at path. All access goes through
// one connection so SQLite never sees concurrent writers from this process.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}
	return &SQLiteRepository{db: db}, nil
}

// Close closes the underlying database handle.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

const createTodosSQLiteSQL = `
CREATE TABLE IF NOT EXISTS todos (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id          TEXT NOT NULL,
	text             TEXT NOT NULL,
	duration_hours   INTEGER NOT NULL DEFAULT 0,
	duration_minutes INTEGER NOT NULL DEFAULT 0,
	completed        BOOLEAN NOT NULL DEFAULT 0,
	focused_time     INTEGER NOT NULL DEFAULT 0,
	was_overdue      INTEGER NOT NULL DEFAULT 0,
	overdue_time     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_todos_user_id ON todos(user_id, id);`

// EnsureSchema creates the todos table and adds the overdue columns to
// databases created before they existed. SQLite has no ADD COLUMN IF NOT
// EXISTS, so the current columns are inspected first.
func (r *SQLiteRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createTodosSQLiteSQL); err != nil {
		return fmt.Errorf("creating todos table: %w", err)
	}

	var columns []string
	if err := r.db.SelectContext(ctx, &columns, "SELECT name FROM pragma_table_info('todos')"); err != nil {
		return fmt.Errorf("reading todos columns: %w", err)
	}
	if !slices.Contains(columns, "was_overdue") {
		if _, err := r.db.ExecContext(ctx, "ALTER TABLE todos ADD COLUMN was_overdue INTEGER NOT NULL DEFAULT 0"); err != nil {
			return fmt.Errorf("adding was_overdue column: %w", err)
		}
	}
	if !slices.Contains(columns, "overdue_time") {
		if _, err := r.db.ExecContext(ctx, "ALTER TABLE todos ADD COLUMN overdue_time INTEGER NOT NULL DEFAULT 0"); err != nil {
			return fmt.Errorf("adding overdue_time column: %w", err)
		}
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Insert stores a new todo with zeroed focus fields and returns it with its id.
func (r *SQLiteRepository) Insert(ctx context.Context, todo Todo) (Todo, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO todos (user_id, text, duration_hours, duration_minutes, completed, focused_time, was_overdue, overdue_time)
		VALUES (?, ?, ?, ?, 0, 0, 0, 0)`,
		todo.OwnerID, todo.Text, todo.DurationHours, todo.DurationMinutes,
	)
	if err != nil {
		return Todo{}, fmt.Errorf("inserting todo: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Todo{}, fmt.Errorf("reading todo id: %w", err)
	}
	todo.ID = id
	todo.Completed = false
	todo.FocusedTime, todo.WasOverdue, todo.OverdueTime = 0, false, 0
	return todo, nil
}

// ListByOwner returns the owner's todos in insertion order.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]Todo, error) {
	todos := make([]Todo, 0)
	err := r.db.SelectContext(ctx, &todos,
		"SELECT "+selectColumns+" FROM todos WHERE user_id = ? ORDER BY id", ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing todos: %w", err)
	}
	return todos, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id int64, ownerID string) (Todo, error) {
	var todo Todo
	err := r.db.GetContext(ctx, &todo,
		"SELECT "+selectColumns+" FROM todos WHERE id = ? AND user_id = ?", id, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Todo{}, ErrNotFound
		}
		return Todo{}, fmt.Errorf("getting todo %d: %w", id, err)
	}
	return todo, nil
}

// Delete removes the todo when it belongs to ownerID. The bool reports
// whether a row was removed.
func (r *SQLiteRepository) Delete(ctx context.Context, id int64, ownerID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM todos WHERE id = ? AND user_id = ?", id, ownerID)
	if err != nil {
		return false, fmt.Errorf("deleting todo %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n > 0, nil
}

// ToggleCompleted flips completed in a single statement.
func (r *SQLiteRepository) ToggleCompleted(ctx context.Context, id int64, ownerID string) (Todo, error) {
	var todo Todo
	err := r.db.GetContext(ctx, &todo, `
		UPDATE todos SET completed = NOT completed
		WHERE id = ? AND user_id = ?
		RETURNING `+selectColumns, id, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Todo{}, ErrNotFound
		}
		return Todo{}, fmt.Errorf("toggling todo %d: %w", id, err)
	}
	return todo, nil
}

// UpdateFocus reads the row and writes the triple computed by fn inside one
// transaction.
func (r *SQLiteRepository) UpdateFocus(ctx context.Context, id int64, ownerID string, fn FocusFunc) (Todo, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Todo{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var todo Todo
	err = tx.GetContext(ctx, &todo,
		"SELECT "+selectColumns+" FROM todos WHERE id = ? AND user_id = ?", id, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Todo{}, ErrNotFound
		}
		return Todo{}, fmt.Errorf("loading todo %d: %w", id, err)
	}

	res := fn(todo.PlannedSeconds())
	if _, err := tx.ExecContext(ctx, `
		UPDATE todos SET focused_time = ?, was_overdue = ?, overdue_time = ?
		WHERE id = ? AND user_id = ?`,
		res.FocusedTime, res.WasOverdue, res.OverdueTime, id, ownerID,
	); err != nil {
		return Todo{}, fmt.Errorf("updating focus of todo %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return Todo{}, fmt.Errorf("committing focus update: %w", err)
	}

	todo.FocusedTime, todo.WasOverdue, todo.OverdueTime = res.FocusedTime, res.WasOverdue, res.OverdueTime
	return todo, nil
}

func (r *SQLiteRepository) ListOversized(ctx context.Context, threshold int64) ([]Todo, error) {
	todos := make([]Todo, 0)
	err := r.db.SelectContext(ctx, &todos,
		"SELECT "+selectColumns+" FROM todos WHERE focused_time > ? ORDER BY id", threshold)
	if err != nil {
		return nil, fmt.Errorf("listing oversized todos: %w", err)
	}
	return todos, nil
}

func (r *SQLiteRepository) SaveFocus(ctx context.Context, id int64, res focus.Result) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE todos SET focused_time = ?, was_overdue = ?, overdue_time = ? WHERE id = ?",
		res.FocusedTime, res.WasOverdue, res.OverdueTime, id)
	if err != nil {
		return fmt.Errorf("saving focus of todo %d: %w", id, err)
	}
	return nil
}
