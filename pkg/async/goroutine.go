package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/platinummonkey/tollgate/pkg/observability"
)

// Task is a unit of background work
type Task func(context.Context) error

// SafeGo executes a function in a goroutine with:
// - a timeout derived from parentCtx (none when timeout is zero)
// - panic recovery
// - error logging
//
// Use this instead of bare `go func()` to prevent goroutine leaks and crashes.
//
// Example:
//
//	SafeGo(ctx, logger, 30*time.Second, "auto-recharge", func(ctx context.Context) error {
//	    return recharger.Run(ctx, profile, balance)
//	})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn Task) {
	go run(parentCtx, logger, timeout, taskName, fn)
}

func run(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn Task) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	log := logger.WithContext(parentCtx).WithField("task", taskName)

	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, timeout)
		defer cancelTimeout()
	}

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", fmt.Sprint(r)).
				WithField("stack", string(debug.Stack())).
				Error("PANIC recovered in background task")
		}
	}()

	if err := fn(ctx); err != nil {
		log.WithError(err).Warn("Background task failed")
	}
}

// Runner dispatches fire-and-forget tasks that outlive the request that
// started them, and lets shutdown wait for the ones still in flight.
type Runner struct {
	logger  *observability.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewRunner creates a runner whose tasks each get the given timeout
func NewRunner(logger *observability.Logger, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Runner{logger: logger, timeout: timeout}
}

// Go runs fn in the background. The task keeps ctx values (request id, user id)
// but not its cancellation, so a finished HTTP request does not abort it.
func (r *Runner) Go(ctx context.Context, taskName string, fn Task) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		run(context.WithoutCancel(ctx), r.logger, r.timeout, taskName, fn)
	}()
}

// Wait blocks until every dispatched task finished or ctx is done
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
		return fmt.Errorf("background tasks still running: %w", ctx.Err())
	}
}
