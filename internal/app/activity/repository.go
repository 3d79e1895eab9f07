package activity

import (
	"context"
	"errors"
	"fmt"

	"github.com/focus-todo/project/internal/contracts"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createActivityTableSQL = `
CREATE TABLE IF NOT EXISTS todo_activity (
  event_id text PRIMARY KEY,
  todo_id bigint NOT NULL,
  user_id text NOT NULL,
  event_type text NOT NULL,
  text text NOT NULL DEFAULT '',
  completed boolean NOT NULL DEFAULT FALSE,
  focused_time bigint NOT NULL DEFAULT 0,
  was_overdue boolean NOT NULL DEFAULT FALSE,
  overdue_time bigint NOT NULL DEFAULT 0,
  shard_id integer NOT NULL,
  occurred_at timestamptz NOT NULL,
  inserted_at timestamptz NOT NULL DEFAULT now()
)`

const createActivityIndexSQL = `
CREATE INDEX IF NOT EXISTS todo_activity_user_idx ON todo_activity (user_id, occurred_at)`

const createOwnerSummarySQL = `
CREATE TABLE IF NOT EXISTS owner_activity_summary (
  user_id text PRIMARY KEY,
  created_count bigint NOT NULL DEFAULT 0,
  deleted_count bigint NOT NULL DEFAULT 0,
  completed_count bigint NOT NULL DEFAULT 0,
  focus_updates bigint NOT NULL DEFAULT 0,
  overdue_updates bigint NOT NULL DEFAULT 0,
  last_event_seq bigint NOT NULL DEFAULT 0,
  updated_at timestamptz NOT NULL DEFAULT now()
)`

const insertActivitySQL = `
INSERT INTO todo_activity (
  event_id, todo_id, user_id, event_type, text, completed,
  focused_time, was_overdue, overdue_time, shard_id, occurred_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (event_id) DO NOTHING
`

// Counters only move for newly inserted events so redeliveries are no-ops.
const upsertOwnerSummarySQL = `
INSERT INTO owner_activity_summary (
  user_id, created_count, deleted_count, completed_count,
  focus_updates, overdue_updates, last_event_seq, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (user_id) DO UPDATE
SET created_count = owner_activity_summary.created_count + EXCLUDED.created_count,
    deleted_count = owner_activity_summary.deleted_count + EXCLUDED.deleted_count,
    completed_count = owner_activity_summary.completed_count + EXCLUDED.completed_count,
    focus_updates = owner_activity_summary.focus_updates + EXCLUDED.focus_updates,
    overdue_updates = owner_activity_summary.overdue_updates + EXCLUDED.overdue_updates,
    last_event_seq = GREATEST(owner_activity_summary.last_event_seq, EXCLUDED.last_event_seq),
    updated_at = now()
`

// Summary holds the per-owner counters derived from the activity stream.
type Summary struct {
	OwnerID        string `db:"user_id"`
	CreatedCount   int64  `db:"created_count"`
	DeletedCount   int64  `db:"deleted_count"`
	CompletedCount int64  `db:"completed_count"`
	FocusUpdates   int64  `db:"focus_updates"`
	OverdueUpdates int64  `db:"overdue_updates"`
	LastEventSeq   int64  `db:"last_event_seq"`
}

// SummaryDelta maps one event to the counter increments it contributes.
func SummaryDelta(event contracts.TodoEvent) Summary {
	d := Summary{OwnerID: event.OwnerID}
	switch event.EventType {
	case contracts.EventTodoCreated:
		d.CreatedCount = 1
	case contracts.EventTodoDeleted:
		d.DeletedCount = 1
	case contracts.EventTodoToggled:
		if event.Completed {
			d.CompletedCount = 1
		}
	case contracts.EventTodoFocusUpdated, contracts.EventTodoRepaired:
		d.FocusUpdates = 1
		if event.WasOverdue {
			d.OverdueUpdates = 1
		}
	}
	return d
}

type EventRepository struct {
	Pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{Pool: pool}
}

func (r *EventRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{createActivityTableSQL, createActivityIndexSQL, createOwnerSummarySQL} {
		if _, err := r.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure activity schema: %w", err)
		}
	}
	return nil
}

func (r *EventRepository) InsertEvent(ctx context.Context, event contracts.TodoEvent, eventSeq uint64) error {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, insertActivitySQL,
		event.EventID,
		event.TodoID,
		event.OwnerID,
		event.EventType,
		event.Text,
		event.Completed,
		event.FocusedTime,
		event.WasOverdue,
		event.OverdueTime,
		event.ShardID,
		event.OccurredAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}

	d := SummaryDelta(event)
	if _, err := tx.Exec(ctx, upsertOwnerSummarySQL,
		d.OwnerID,
		d.CreatedCount,
		d.DeletedCount,
		d.CompletedCount,
		d.FocusUpdates,
		d.OverdueUpdates,
		int64(eventSeq),
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *EventRepository) Summary(ctx context.Context, ownerID string) (Summary, error) {
	rows, err := r.Pool.Query(ctx, `
SELECT user_id, created_count, deleted_count, completed_count,
       focus_updates, overdue_updates, last_event_seq
FROM owner_activity_summary WHERE user_id = $1`, ownerID)
	if err != nil {
		return Summary{}, err
	}
	s, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByNameLax[Summary])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Summary{OwnerID: ownerID}, nil
		}
		return Summary{}, err
	}
	return s, nil
}
