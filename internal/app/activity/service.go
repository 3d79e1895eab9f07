// Package activity records todo events consumed from JetStream.
package activity

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/focus-todo/project/internal/contracts"
)

var (
	ErrInvalidEventPayload  = errors.New("invalid event payload")
	ErrUnsupportedEventType = errors.New("unsupported event type")
)

type Repository interface {
	InsertEvent(ctx context.Context, event contracts.TodoEvent, eventSeq uint64) error
}

type Service struct {
	Repository Repository
}

func NewService(repository Repository) *Service {
	return &Service{Repository: repository}
}

// Handle decodes and stores one event. Invalid or unknown payloads are
// reported with the sentinel errors above so the caller can terminate them
// instead of redelivering.
func (s *Service) Handle(ctx context.Context, payload []byte, eventSeq uint64) error {
	var event contracts.TodoEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return ErrInvalidEventPayload
	}
	if event.EventID == "" || event.OwnerID == "" || event.TodoID == 0 {
		return ErrInvalidEventPayload
	}
	if !contracts.KnownEventType(event.EventType) {
		return ErrUnsupportedEventType
	}
	return s.Repository.InsertEvent(ctx, event, eventSeq)
}
