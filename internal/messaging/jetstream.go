package messaging

import (
	"errors"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	EventsStream   = "TODO_EVENTS"
	EventsSubjects = "app.event.>"
)

// StreamConfig describes the todo activity stream.
func StreamConfig() *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:      EventsStream,
		Subjects:  []string{EventsSubjects},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		Replicas:  1,
		MaxAge:    30 * 24 * time.Hour,
	}
}

// StreamManager is the subset of nats.JetStreamContext used to provision streams.
type StreamManager interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// EnsureStreams creates the events stream when it does not exist yet.
func EnsureStreams(js StreamManager) error {
	_, err := js.StreamInfo(EventsStream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = js.AddStream(StreamConfig())
	return err
}
