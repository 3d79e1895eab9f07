package todos

import (
	"context"
	"errors"

	"github.com/focus-todo/project/internal/focus"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

const createTodosPostgresSQL = `
CREATE TABLE IF NOT EXISTS todos (
  id bigserial PRIMARY KEY,
  user_id text NOT NULL,
  text text NOT NULL,
  duration_hours integer NOT NULL DEFAULT 0,
  duration_minutes integer NOT NULL DEFAULT 0,
  completed boolean NOT NULL DEFAULT false,
  focused_time bigint NOT NULL DEFAULT 0,
  was_overdue boolean NOT NULL DEFAULT false,
  overdue_time bigint NOT NULL DEFAULT 0
)`

const alterTodosWasOverduePostgresSQL = `
ALTER TABLE todos
ADD COLUMN IF NOT EXISTS was_overdue boolean NOT NULL DEFAULT false`

const alterTodosOverdueTimePostgresSQL = `
ALTER TABLE todos
ADD COLUMN IF NOT EXISTS overdue_time bigint NOT NULL DEFAULT 0`

const createTodosOwnerIndexPostgresSQL = `
CREATE INDEX IF NOT EXISTS todos_user_id_idx ON todos (user_id, id)`

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{
		createTodosPostgresSQL,
		alterTodosWasOverduePostgresSQL,
		alterTodosOverdueTimePostgresSQL,
		createTodosOwnerIndexPostgresSQL,
	} {
		if _, err := r.Pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.Pool.Ping(ctx)
}

func (r *PostgresRepository) Insert(ctx context.Context, todo Todo) (Todo, error) {
	err := r.Pool.QueryRow(ctx,
		`INSERT INTO todos (user_id, text, duration_hours, duration_minutes, completed, focused_time, was_overdue, overdue_time)
		 VALUES ($1, $2, $3, $4, false, 0, false, 0)
		 RETURNING id`,
		todo.OwnerID, todo.Text, todo.DurationHours, todo.DurationMinutes,
	).Scan(&todo.ID)
	if err != nil {
		return Todo{}, err
	}
	todo.Completed = false
	todo.FocusedTime, todo.WasOverdue, todo.OverdueTime = 0, false, 0
	return todo, nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]Todo, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT `+selectColumns+`
		 FROM todos
		 WHERE user_id = $1
		 ORDER BY id`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	return collectTodos(rows)
}

func (r *PostgresRepository) Get(ctx context.Context, id int64, ownerID string) (Todo, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT `+selectColumns+` FROM todos WHERE id = $1 AND user_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return Todo{}, err
	}
	return collectOne(rows)
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64, ownerID string) (bool, error) {
	res, err := r.Pool.Exec(ctx, `DELETE FROM todos WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (r *PostgresRepository) ToggleCompleted(ctx context.Context, id int64, ownerID string) (Todo, error) {
	rows, err := r.Pool.Query(ctx,
		`UPDATE todos
		 SET completed = NOT completed
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+selectColumns,
		id, ownerID,
	)
	if err != nil {
		return Todo{}, err
	}
	return collectOne(rows)
}

func (r *PostgresRepository) UpdateFocus(ctx context.Context, id int64, ownerID string, fn FocusFunc) (Todo, error) {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Todo{}, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT `+selectColumns+` FROM todos WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		id, ownerID,
	)
	if err != nil {
		return Todo{}, err
	}
	todo, err := collectOne(rows)
	if err != nil {
		return Todo{}, err
	}

	res := fn(todo.PlannedSeconds())
	if _, err := tx.Exec(ctx,
		`UPDATE todos
		 SET focused_time = $3, was_overdue = $4, overdue_time = $5
		 WHERE id = $1 AND user_id = $2`,
		id, ownerID, res.FocusedTime, res.WasOverdue, res.OverdueTime,
	); err != nil {
		return Todo{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Todo{}, err
	}

	todo.FocusedTime, todo.WasOverdue, todo.OverdueTime = res.FocusedTime, res.WasOverdue, res.OverdueTime
	return todo, nil
}

func (r *PostgresRepository) ListOversized(ctx context.Context, threshold int64) ([]Todo, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT `+selectColumns+`
		 FROM todos
		 WHERE focused_time > $1
		 ORDER BY id`,
		threshold,
	)
	if err != nil {
		return nil, err
	}
	return collectTodos(rows)
}

func (r *PostgresRepository) SaveFocus(ctx context.Context, id int64, res focus.Result) error {
	_, err := r.Pool.Exec(ctx,
		`UPDATE todos SET focused_time = $2, was_overdue = $3, overdue_time = $4 WHERE id = $1`,
		id, res.FocusedTime, res.WasOverdue, res.OverdueTime,
	)
	return err
}

func collectTodos(rows pgx.Rows) ([]Todo, error) {
	todos, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[Todo])
	if err != nil {
		return nil, err
	}
	if todos == nil {
		todos = make([]Todo, 0)
	}
	return todos, nil
}

func collectOne(rows pgx.Rows) (Todo, error) {
	todo, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByNameLax[Todo])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Todo{}, ErrNotFound
		}
		return Todo{}, err
	}
	return todo, nil
}
