// Package background runs best-effort tasks detached from the request that started them.
package background

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// DefaultTimeout bounds every task unless the runner is created with another value.
const DefaultTimeout = 30 * time.Second

// Task is a unit of best-effort work.
type Task func(ctx context.Context) error

// Runner starts tasks on their own goroutine. A task's error or panic is logged and
// discarded; it never reaches the caller that started it.
type Runner struct {
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewRunner(logger *slog.Logger, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Runner{
		logger:  logger.With("component", "background"),
		timeout: timeout,
	}
}

// Go runs task without waiting for it. The task keeps the values of ctx but not its
// cancellation, so it outlives the request.
func (r *Runner) Go(ctx context.Context, name string, task Task) {
	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)

	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		defer cancel()

		err := r.run(taskCtx, name, task)
		if err != nil {
			r.logger.WarnContext(taskCtx, "background task failed", "task", name, "error", err)
		}
	}()
}

func (r *Runner) run(ctx context.Context, name string, task Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "background task panicked",
				"task", name, "panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic in task %s: %v", name, rec)
		}
	}()

	return task(ctx)
}

// Wait blocks until every started task has returned or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
