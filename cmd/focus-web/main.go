package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/focus-todo/project/internal/app/maintenance"
	"github.com/focus-todo/project/internal/app/todos"
	"github.com/focus-todo/project/internal/app/web"
	platformauth "github.com/focus-todo/project/internal/platform/auth"
	"github.com/focus-todo/project/internal/platform/config"
	"github.com/focus-todo/project/internal/platform/logging"
	"github.com/focus-todo/project/internal/platform/metrics"
	"github.com/focus-todo/project/internal/platform/natsutil"
	"github.com/focus-todo/project/internal/platform/oidc"
)

func main() {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal("load config", "err", err)
	}
	logger := logging.New("focus-web", cfg.Log.Level, cfg.Log.Format)

	repo, closeRepo, err := todos.Open(runCtx, cfg.Database(), cfg.DB)
	if err != nil {
		logger.Fatal("open database", "err", err)
	}
	defer closeRepo()
	if err := waitForSchema(runCtx, repo, logger, 30*time.Second); err != nil {
		logger.Fatal("database not ready", "err", err)
	}

	registry := metrics.NewRegistry()
	metrics.RegisterRuntime(registry)
	todoMetrics := metrics.NewTodo(registry)

	var natsClient *natsutil.Client
	var publish todos.PublishFunc
	if cfg.NATSURL != "" {
		natsClient, err = natsutil.ConnectJetStreamWithRetry(runCtx, cfg.NATSURL, cfg.NATSWait, natsutil.Options{Name: "focus-web", Logger: logger})
		if err != nil {
			logger.Fatal("connect jetstream", "err", err)
		}
		defer natsClient.Close()
		publish = natsClient.Publish
	}

	service := todos.NewService(repo, publish, logger)
	service.Metrics = todoMetrics

	if cfg.SweepOnStart {
		sweeper := maintenance.NewSweeper(repo, logger)
		sweeper.Notify = service.Emit
		sweeper.Metrics = todoMetrics
		report, err := sweeper.Run(runCtx)
		if err != nil {
			logger.Fatal("startup sweep", "err", err)
		}
		logger.Info("startup sweep finished", "scanned", report.Scanned, "fixed", report.Fixed)
	}

	if !cfg.OIDCConfigured() {
		logger.Fatal("OIDC_ISSUER, OIDC_CLIENT_ID and OIDC_CLIENT_SECRET must be set")
	}
	provider, err := oidc.New(runCtx, oidc.Config{
		Issuer:       cfg.OIDC.Issuer,
		ClientID:     cfg.OIDC.ClientID,
		ClientSecret: cfg.OIDC.ClientSecret,
		RedirectURL:  cfg.OIDC.RedirectURL,
		Scopes:       cfg.OIDC.Scopes,
	})
	if err != nil {
		logger.Fatal("oidc provider", "err", err)
	}

	root, generated, err := platformauth.RootSecret(cfg.SecretKey)
	if err != nil {
		logger.Fatal("session secret", "err", err)
	}
	if generated {
		logger.Warn("SECRET_KEY is not set; using a random key, sessions end on restart")
	}
	sessionKey, err := platformauth.DeriveKey(root, "session")
	if err != nil {
		logger.Fatal("derive session key", "err", err)
	}
	sessions := platformauth.NewManager(sessionKey, cfg.SessionTTL, cfg.CookieSecure)

	handler, err := web.NewHandler(service, sessions, provider, logger)
	if err != nil {
		logger.Fatal("build handler", "err", err)
	}
	handler.Metrics = todoMetrics
	handler.Registry = registry
	handler.Ready = func(ctx context.Context) error {
		if err := repo.Ping(ctx); err != nil {
			return err
		}
		if natsClient != nil && !natsClient.Ready() {
			return errors.New("nats is not connected")
		}
		return nil
	}

	addr := cfg.Addr()
	server := &http.Server{
		Addr:              addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("focus-web listening", "addr", addr, "events", natsClient != nil)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		logger.Fatal("http server", "err", err)
	case <-runCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
}

func waitForSchema(ctx context.Context, repo todos.Repository, logger *log.Logger, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = repo.EnsureSchema(attemptCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		logger.Warn("waiting for database readiness", "err", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return lastErr
}
