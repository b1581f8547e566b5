// Package maintenance runs the periodic housekeeping jobs of the API process.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	SweepSchedule = "@every 1m"
	PruneSchedule = "@hourly"
)

// Sweeper drops expired entries from a cache and reports how many went.
type Sweeper interface {
	Sweep() int
}

// Pruner deletes records older than a retention window.
type Pruner interface {
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// Scheduler sweeps the permission cache and prunes old checkpoints on a cron schedule.
type Scheduler struct {
	logger    *slog.Logger
	sweeper   Sweeper
	pruner    Pruner
	retention time.Duration

	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler. A nil sweeper skips the sweep job; a non-positive
// retention skips pruning.
func New(logger *slog.Logger, sweeper Sweeper, pruner Pruner, retention time.Duration) *Scheduler {
	return &Scheduler{
		logger:    logger.With("component", "maintenance"),
		sweeper:   sweeper,
		pruner:    pruner,
		retention: retention,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("maintenance scheduler already started")
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn))

	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))

	if s.sweeper != nil {
		if _, err := s.cron.AddFunc(SweepSchedule, s.sweep); err != nil {
			return fmt.Errorf("failed to schedule cache sweep: %w", err)
		}
	}

	if s.pruner != nil && s.retention > 0 {
		if _, err := s.cron.AddFunc(PruneSchedule, s.prune); err != nil {
			return fmt.Errorf("failed to schedule checkpoint pruning: %w", err)
		}
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "maintenance scheduler started",
		"jobs", len(s.cron.Entries()), "checkpoint_retention", s.retention)

	return nil
}

// Stop halts the schedule and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}

	s.cancel()

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.cron = nil
	s.logger.InfoContext(ctx, "maintenance scheduler stopped")

	return nil
}

// Jobs returns the number of scheduled jobs.
func (s *Scheduler) Jobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return 0
	}

	return len(s.cron.Entries())
}

func (s *Scheduler) sweep() {
	if dropped := s.sweeper.Sweep(); dropped > 0 {
		s.logger.Debug("swept permission cache", "dropped", dropped)
	}
}

func (s *Scheduler) prune() {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	deleted, err := s.pruner.Prune(ctx, s.retention)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to prune checkpoints", "error", err)

		return
	}

	s.logger.InfoContext(ctx, "pruned checkpoints", "deleted", deleted, "retention", s.retention)
}
