package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/focus-todo/project/internal/app/activity"
	"github.com/focus-todo/project/internal/app/maintenance"
	"github.com/focus-todo/project/internal/app/todos"
	"github.com/focus-todo/project/internal/platform/config"
	"github.com/focus-todo/project/internal/platform/dbpool"
	"github.com/focus-todo/project/internal/platform/logging"
	"github.com/focus-todo/project/internal/platform/natsutil"
	"github.com/spf13/cobra"
)

type app struct {
	configPath string
	cfg        config.Config
	logger     *log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "focus-admin",
		Short: "Maintenance tasks for the focus todo database",
		Long: `focus-admin prepares the todo database and repairs focused-time values.
It reads the same configuration as focus-web (CONFIG_FILE and environment).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logging.NewWithWriter(cmd.ErrOrStderr(), "focus-admin", cfg.Log.Level, cfg.Log.Format)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (defaults to $CONFIG_FILE)")

	root.AddCommand(a.initDBCmd(), a.migrateCmd(), a.fixFocusedTimesCmd(), a.activitySummaryCmd())
	return root
}

func (a *app) openTodos(ctx context.Context) (todos.Repository, func(), error) {
	return todos.Open(ctx, a.cfg.Database(), a.cfg.DB)
}

func (a *app) initDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the todos table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, closeRepo, err := a.openTodos(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRepo()
			if err := repo.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Initialized the database.")
			return nil
		},
	}
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Add missing todo columns and, on Postgres, the activity tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			repo, closeRepo, err := a.openTodos(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()
			if err := repo.EnsureSchema(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Todo schema is up to date.")

			if !todos.IsPostgresURL(a.cfg.Database()) {
				return nil
			}
			events, closeEvents, err := a.openActivity(ctx)
			if err != nil {
				return err
			}
			defer closeEvents()
			if err := events.EnsureSchema(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Activity schema is up to date.")
			return nil
		},
	}
}

func (a *app) fixFocusedTimesCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "fix-focused-times",
		Short: "Convert focused times stored in milliseconds back to seconds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			repo, closeRepo, err := a.openTodos(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			sweeper := maintenance.NewSweeper(repo, a.logger)
			sweeper.DryRun = dryRun
			if a.cfg.NATSURL != "" && !dryRun {
				client, err := natsutil.ConnectJetStreamWithRetry(ctx, a.cfg.NATSURL, a.cfg.NATSWait, natsutil.Options{Name: "focus-admin", Logger: a.logger})
				if err != nil {
					return err
				}
				defer client.Close()
				sweeper.Notify = todos.NewService(repo, client.Publish, a.logger).Emit
			}

			report, err := sweeper.Run(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, c := range report.Changes {
				fmt.Fprintf(out, "todo %d: %d -> %d (overdue %d)\n", c.TodoID, c.Before, c.After.FocusedTime, c.After.OverdueTime)
			}
			verb := "Fixed"
			if dryRun {
				verb = "Would fix"
			}
			fmt.Fprintf(out, "%s %d of %d records.\n", verb, report.Fixed, report.Scanned)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report changes without writing them")
	return cmd
}

func (a *app) activitySummaryCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "activity-summary",
		Short: "Print the activity counters recorded for one owner (Postgres only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if owner == "" {
				return errors.New("--owner is required")
			}
			events, closeEvents, err := a.openActivity(cmd.Context())
			if err != nil {
				return err
			}
			defer closeEvents()

			s, err := events.Summary(cmd.Context(), owner)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"owner %s: created %d, deleted %d, completed %d, focus updates %d (%d overdue), last seq %d\n",
				s.OwnerID, s.CreatedCount, s.DeletedCount, s.CompletedCount, s.FocusUpdates, s.OverdueUpdates, s.LastEventSeq)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner (identity provider subject)")
	return cmd
}

func (a *app) openActivity(ctx context.Context) (*activity.EventRepository, func(), error) {
	url := a.cfg.Database()
	if !todos.IsPostgresURL(url) {
		return nil, nil, errors.New("activity data requires a postgres DATABASE_URL")
	}
	pool, err := dbpool.New(ctx, url, a.cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	return activity.NewEventRepository(pool), pool.Close, nil
}
