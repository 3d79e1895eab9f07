package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/focus-todo/project/internal/app/activity"
	"github.com/focus-todo/project/internal/app/todos"
	"github.com/focus-todo/project/internal/messaging"
	"github.com/focus-todo/project/internal/platform/config"
	"github.com/focus-todo/project/internal/platform/dbpool"
	"github.com/focus-todo/project/internal/platform/logging"
	"github.com/focus-todo/project/internal/platform/natsutil"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
)

const queueGroup = "activity-sink"

func main() {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal("load config", "err", err)
	}
	logger := logging.New("activity-sink", cfg.Log.Level, cfg.Log.Format)

	pgURL := cfg.Database()
	if !todos.IsPostgresURL(pgURL) {
		logger.Fatal("activity-sink needs a postgres DATABASE_URL")
	}
	if cfg.NATSURL == "" {
		logger.Fatal("activity-sink needs NATS_URL")
	}

	pool, err := dbpool.New(runCtx, pgURL, cfg.DB)
	if err != nil {
		logger.Fatal("open database", "err", err)
	}
	defer pool.Close()

	repository := activity.NewEventRepository(pool)
	if err := waitForPostgres(runCtx, pool, repository, logger, 30*time.Second); err != nil {
		logger.Fatal("database not ready", "err", err)
	}
	service := activity.NewService(repository)

	client, err := natsutil.ConnectJetStreamWithRetry(runCtx, cfg.NATSURL, cfg.NATSWait, natsutil.Options{Name: "activity-sink", Logger: logger})
	if err != nil {
		logger.Fatal("connect jetstream", "err", err)
	}
	defer client.Close()

	sub, err := client.JS.QueueSubscribe(messaging.EventsSubjects, queueGroup, func(msg *nats.Msg) {
		var eventSeq uint64
		if meta, metaErr := msg.Metadata(); metaErr == nil {
			eventSeq = meta.Sequence.Stream
		}

		insertCtx, cancel := context.WithTimeout(runCtx, 3*time.Second)
		defer cancel()
		if err := service.Handle(insertCtx, msg.Data, eventSeq); err != nil {
			if errors.Is(err, activity.ErrInvalidEventPayload) || errors.Is(err, activity.ErrUnsupportedEventType) {
				logger.Warn("discarding event", "subject", msg.Subject, "seq", eventSeq, "err", err)
				_ = msg.Term()
				return
			}
			logger.Error("event persistence failed", "seq", eventSeq, "err", err)
			_ = msg.Nak()
			return
		}

		_ = msg.Ack()
	}, nats.ManualAck(), nats.Durable(queueGroup), nats.BindStream(messaging.EventsStream))
	if err != nil {
		logger.Fatal("subscribe", "err", err)
	}

	logger.Info("activity-sink listening", "subject", sub.Subject, "stream", messaging.EventsStream)
	<-runCtx.Done()

	if err := sub.Drain(); err != nil {
		logger.Warn("drain subscription", "err", err)
	}
}

func waitForPostgres(
	ctx context.Context,
	pool *pgxpool.Pool,
	repository *activity.EventRepository,
	logger *log.Logger,
	timeout time.Duration,
) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = pool.Ping(attemptCtx)
		if lastErr == nil {
			lastErr = repository.EnsureSchema(attemptCtx)
		}
		cancel()

		if lastErr == nil {
			return nil
		}
		logger.Warn("waiting for postgres readiness", "err", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return lastErr
}
