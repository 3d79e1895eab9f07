// Package maintenance repairs focused-time values that were stored in
// milliseconds by older clients.
package maintenance

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/focus-todo/project/internal/app/todos"
	"github.com/focus-todo/project/internal/contracts"
	"github.com/focus-todo/project/internal/focus"
	"github.com/focus-todo/project/internal/platform/metrics"
)

// Change describes one repaired row.
type Change struct {
	TodoID  int64
	OwnerID string
	Before  int64
	After   focus.Result
}

type Report struct {
	Scanned int
	Fixed   int
	Changes []Change
}

// Sweeper is not safe against concurrent writers to the same rows; run it
// while the web server is idle or at startup.
type Sweeper struct {
	Repo    todos.Repository
	Logger  *log.Logger
	DryRun  bool
	Notify  func(eventType string, todo todos.Todo)
	Metrics *metrics.Todo
}

func NewSweeper(repo todos.Repository, logger *log.Logger) *Sweeper {
	if logger == nil {
		logger = log.Default()
	}
	return &Sweeper{Repo: repo, Logger: logger}
}

func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	rows, err := s.Repo.ListOversized(ctx, focus.MillisecondThreshold)
	if err != nil {
		return Report{}, fmt.Errorf("scan oversized focus times: %w", err)
	}

	report := Report{Scanned: len(rows)}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, ok := focus.Repair(row.FocusedTime, row.PlannedSeconds())
		if !ok {
			continue
		}
		change := Change{TodoID: row.ID, OwnerID: row.OwnerID, Before: row.FocusedTime, After: res}
		if !s.DryRun {
			if err := s.Repo.SaveFocus(ctx, row.ID, res); err != nil {
				return report, fmt.Errorf("repair todo %d: %w", row.ID, err)
			}
			if s.Notify != nil {
				row.FocusedTime = res.FocusedTime
				row.WasOverdue = res.WasOverdue
				row.OverdueTime = res.OverdueTime
				s.Notify(contracts.EventTodoRepaired, row)
			}
		}
		s.Logger.Info("focus time repaired", "todo_id", row.ID, "before", change.Before, "after", res.FocusedTime, "was_overdue", res.WasOverdue, "dry_run", s.DryRun)
		report.Changes = append(report.Changes, change)
		report.Fixed++
	}

	if s.Metrics != nil && !s.DryRun {
		s.Metrics.SweepFixed.Set(float64(report.Fixed))
	}
	return report, nil
}
