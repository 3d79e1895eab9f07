package todos

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/focus-todo/project/internal/contracts"
	"github.com/focus-todo/project/internal/focus"
	"github.com/focus-todo/project/internal/platform/metrics"
	"github.com/focus-todo/project/internal/sharding"
	"github.com/nats-io/nuid"
)

type PublishFunc func(subject string, payload []byte) error

type Service struct {
	Repo    Repository
	Publish PublishFunc
	Logger  *log.Logger
	Now     func() time.Time
	NewID   func() string
	Metrics *metrics.Todo
}

type CreateInput struct {
	Text            string
	DurationHours   *int
	DurationMinutes *int
}

func NewService(repo Repository, publish PublishFunc, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		Repo:    repo,
		Publish: publish,
		Logger:  logger,
		Now:     func() time.Time { return time.Now().UTC() },
		NewID:   nuid.Next,
	}
}

func validateCreate(in CreateInput) (string, int, int, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return "", 0, 0, ErrTextRequired
	}
	if in.DurationHours == nil || in.DurationMinutes == nil {
		return "", 0, 0, ErrDurationRequired
	}
	hours, minutes := *in.DurationHours, *in.DurationMinutes
	if hours < 0 || minutes < 0 || hours > focus.MaxDurationField || minutes > focus.MaxDurationField ||
		focus.PlannedSeconds(hours, minutes) <= 0 {
		return "", 0, 0, ErrInvalidDuration
	}
	return text, hours, minutes, nil
}

func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (todo Todo, err error) {
	defer func() { s.Metrics.Observe("create", err) }()

	text, hours, minutes, err := validateCreate(in)
	if err != nil {
		return Todo{}, err
	}
	todo, err = s.Repo.Insert(ctx, Todo{
		OwnerID:         ownerID,
		Text:            text,
		DurationHours:   hours,
		DurationMinutes: minutes,
	})
	if err != nil {
		return Todo{}, err
	}
	s.Emit(contracts.EventTodoCreated, todo)
	return todo, nil
}

func (s *Service) List(ctx context.Context, ownerID string) ([]Todo, error) {
	return s.Repo.ListByOwner(ctx, ownerID)
}

func (s *Service) Get(ctx context.Context, id int64, ownerID string) (Todo, error) {
	return s.Repo.Get(ctx, id, ownerID)
}

// Delete is a no-op for todos that do not exist or belong to someone else.
func (s *Service) Delete(ctx context.Context, id int64, ownerID string) error {
	removed, err := s.Repo.Delete(ctx, id, ownerID)
	s.Metrics.Observe("delete", err)
	if err != nil {
		return err
	}
	if removed {
		s.Emit(contracts.EventTodoDeleted, Todo{ID: id, OwnerID: ownerID})
	}
	return nil
}

// Toggle is a no-op for todos that do not exist or belong to someone else.
func (s *Service) Toggle(ctx context.Context, id int64, ownerID string) error {
	todo, err := s.Repo.ToggleCompleted(ctx, id, ownerID)
	if errors.Is(err, ErrNotFound) {
		err = nil
		todo = Todo{}
	}
	s.Metrics.Observe("toggle", err)
	if err != nil || todo.ID == 0 {
		return err
	}
	s.Emit(contracts.EventTodoToggled, todo)
	return nil
}

// UpdateFocusTime normalizes raw against the todo's own planned duration and
// stores the result. It returns ErrNotFound for absent or foreign todos.
func (s *Service) UpdateFocusTime(ctx context.Context, id int64, ownerID string, raw json.RawMessage) (focus.Result, error) {
	reported := focus.Coerce(raw)
	var res focus.Result
	todo, err := s.Repo.UpdateFocus(ctx, id, ownerID, func(planned int64) focus.Result {
		res = focus.Normalize(reported, planned)
		return res
	})
	s.Metrics.Observe("update_focus", err)
	if err != nil {
		return focus.Result{}, err
	}
	if res.Correction != focus.CorrectionNone {
		s.Logger.Debug("focus time corrected", "todo_id", id, "raw", reported, "stored", res.FocusedTime, "correction", res.Correction)
		if s.Metrics != nil {
			s.Metrics.FocusCorrections.WithLabelValues(string(res.Correction)).Inc()
		}
	}
	s.Emit(contracts.EventTodoFocusUpdated, todo)
	return res, nil
}

// Emit publishes eventType for todo. Failures are logged and swallowed.
func (s *Service) Emit(eventType string, todo Todo) {
	if s.Publish == nil {
		return
	}
	event := NewEvent(s.NewID(), eventType, todo, s.Now())
	payload, err := json.Marshal(event)
	if err != nil {
		s.Logger.Error("encode todo event", "event_type", eventType, "err", err)
		return
	}
	if err := s.Publish(sharding.EventSubject(todo.OwnerID), payload); err != nil {
		s.Logger.Warn("publish todo event failed", "event_type", eventType, "todo_id", todo.ID, "err", err)
	}
}

// NewEvent builds the activity event describing todo after a change.
func NewEvent(eventID, eventType string, todo Todo, at time.Time) contracts.TodoEvent {
	return contracts.TodoEvent{
		EventID:     eventID,
		TodoID:      todo.ID,
		OwnerID:     todo.OwnerID,
		EventType:   eventType,
		Text:        todo.Text,
		Completed:   todo.Completed,
		FocusedTime: todo.FocusedTime,
		WasOverdue:  todo.WasOverdue,
		OverdueTime: todo.OverdueTime,
		OccurredAt:  at,
		ShardID:     sharding.GetShardID(todo.OwnerID),
	}
}
