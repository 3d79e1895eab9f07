package todos

import (
	"context"
	"errors"
	"fmt"

	"github.com/focus-todo/project/internal/focus"
)

var (
	ErrNotFound = errors.New("todo not found")

	// ErrValidation is wrapped by every input error returned from Create.
	ErrValidation       = errors.New("invalid todo")
	ErrTextRequired     = fmt.Errorf("%w: text is required", ErrValidation)
	ErrDurationRequired = fmt.Errorf("%w: duration_hours and duration_minutes are required", ErrValidation)
	ErrInvalidDuration  = fmt.Errorf("%w: planned duration must be a positive number of hours and minutes", ErrValidation)
)

// Todo is one row of the todos table. OwnerID is the identity-provider
// subject and scopes every read and write.
type Todo struct {
	ID              int64  `json:"id" db:"id"`
	OwnerID         string `json:"-" db:"user_id"`
	Text            string `json:"text" db:"text"`
	DurationHours   int    `json:"duration_hours" db:"duration_hours"`
	DurationMinutes int    `json:"duration_minutes" db:"duration_minutes"`
	Completed       bool   `json:"completed" db:"completed"`
	FocusedTime     int64  `json:"focused_time" db:"focused_time"`
	WasOverdue      bool   `json:"was_overdue" db:"was_overdue"`
	OverdueTime     int64  `json:"overdue_time" db:"overdue_time"`
}

func (t Todo) PlannedSeconds() int64 {
	return focus.PlannedSeconds(t.DurationHours, t.DurationMinutes)
}

// FocusFunc computes the new focus triple from the row's planned seconds.
// Repositories call it while holding the row so the write is consistent.
type FocusFunc func(planned int64) focus.Result

type Repository interface {
	EnsureSchema(ctx context.Context) error
	Insert(ctx context.Context, todo Todo) (Todo, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Todo, error)
	Get(ctx context.Context, id int64, ownerID string) (Todo, error)
	Delete(ctx context.Context, id int64, ownerID string) (bool, error)
	ToggleCompleted(ctx context.Context, id int64, ownerID string) (Todo, error)
	UpdateFocus(ctx context.Context, id int64, ownerID string, fn FocusFunc) (Todo, error)

	// Maintenance access, not owner scoped.
	ListOversized(ctx context.Context, threshold int64) ([]Todo, error)
	SaveFocus(ctx context.Context, id int64, res focus.Result) error
	Ping(ctx context.Context) error
}

const selectColumns = `id, user_id, text,
       COALESCE(duration_hours, 0) AS duration_hours,
       COALESCE(duration_minutes, 0) AS duration_minutes,
       COALESCE(completed, FALSE) AS completed,
       COALESCE(focused_time, 0) AS focused_time,
       COALESCE(was_overdue, FALSE) AS was_overdue,
       COALESCE(overdue_time, 0) AS overdue_time`
