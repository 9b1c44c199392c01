// Package async provides safe execution of background tasks with panic
// recovery, timeouts, and error logging.
//
// SafeGo runs a single detached task:
//
//	async.SafeGo(ctx, logger, 5*time.Second, "cache warm", func(ctx context.Context) error {
//		return warm(ctx)
//	})
//
// Runner tracks tasks so shutdown can wait for them:
//
//	runner := async.NewRunner(logger, 30*time.Second)
//	runner.Go(r.Context(), "auto-recharge", task)
//	defer runner.Wait(shutdownCtx)
package async
