// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry setup, health checks, and graceful shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("tool", "word-counter").Info("tool executed")
//
// Request-scoped logging pulls request and user ids from the context:
//
//	observability.FromContext(ctx).WithError(err).Error("deduction failed")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.ToolCallsTotal.WithLabelValues("json-formatter", "success").Inc()
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	observability.RegisterHealthRoutes(mux, checker)
package observability
