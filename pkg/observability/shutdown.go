package observability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

type namedShutdown struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager runs registered cleanup hooks in reverse registration order
// within a bounded timeout. Stores are registered as they are opened and
// servers last, so servers stop before the stores they depend on close.
type ShutdownManager struct {
	logger  *Logger
	timeout time.Duration

	mu    sync.Mutex
	hooks []namedShutdown
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(logger *Logger, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &ShutdownManager{logger: logger, timeout: timeout}
}

// Register adds a named hook. Nil functions are ignored.
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	if fn == nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.hooks = append(sm.hooks, namedShutdown{name: name, fn: fn})
}

// Shutdown executes every hook, newest first, and returns the joined errors.
// Hooks still run after an earlier hook fails.
func (sm *ShutdownManager) Shutdown(parent context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), sm.timeout)
	defer cancel()

	sm.mu.Lock()
	hooks := make([]namedShutdown, len(sm.hooks))
	copy(hooks, sm.hooks)
	sm.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		log := sm.logger.WithField("hook", h.name)
		if err := h.fn(ctx); err != nil {
			log.WithError(err).Error("Shutdown hook failed")
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		log.Debug("Shutdown hook complete")
	}

	if ctx.Err() != nil {
		errs = append(errs, fmt.Errorf("shutdown timeout reached: %w", ctx.Err()))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	sm.logger.Info("Graceful shutdown complete")
	return nil
}
