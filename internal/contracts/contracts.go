package contracts

import "time"

const (
	EventTodoCreated      = "todo.created"
	EventTodoDeleted      = "todo.deleted"
	EventTodoToggled      = "todo.toggled"
	EventTodoFocusUpdated = "todo.focus_updated"
	EventTodoRepaired     = "todo.repaired"
)

// TodoEvent is published by focus-web and focus-admin after a todo changes and
// consumed by activity-sink.
type TodoEvent struct {
	EventID     string    `json:"event_id"`
	TodoID      int64     `json:"todo_id"`
	OwnerID     string    `json:"owner_id"`
	EventType   string    `json:"event_type"`
	Text        string    `json:"text,omitempty"`
	Completed   bool      `json:"completed"`
	FocusedTime int64     `json:"focused_time"`
	WasOverdue  bool      `json:"was_overdue"`
	OverdueTime int64     `json:"overdue_time"`
	OccurredAt  time.Time `json:"occurred_at"`
	ShardID     int       `json:"shard_id"`
}

func KnownEventType(t string) bool {
	switch t {
	case EventTodoCreated, EventTodoDeleted, EventTodoToggled, EventTodoFocusUpdated, EventTodoRepaired:
		return true
	}
	return false
}
