package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/platinummonkey/tollgate/pkg/billing"
	"github.com/platinummonkey/tollgate/pkg/config"
	"github.com/platinummonkey/tollgate/pkg/observability"
	"github.com/platinummonkey/tollgate/pkg/storage/postgres"
	"github.com/robfig/cron/v3"
)

var (
	resetSchedule = flag.String("reset-schedule", "0 0 1 * *", "Cron schedule for the monthly spend reset (UTC)")
	runNow        = flag.Bool("run-now", false, "Reset monthly spend once and exit")
	jobTimeout    = flag.Duration("job-timeout", 5*time.Minute, "Timeout for a single job run")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Failed to load .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.Database.Store != config.StorePostgres {
		log.Fatalf("The scheduler requires the postgres store, got %q", cfg.Database.Store)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithField("service", "tollgate-scheduler")

	conns, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.PrimaryURL,
		MaxConns:    2,
		MinConns:    1,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to postgres")
		os.Exit(1)
	}
	defer conns.Close()

	profiles := billing.NewPostgresProfileStore(conns)

	if *runNow {
		if err := resetMonthlySpend(profiles, logger); err != nil {
			logger.WithError(err).Error("Monthly spend reset failed")
			os.Exit(1)
		}
		return
	}

	c := cron.New(cron.WithLocation(time.UTC))
	_, err = c.AddFunc(*resetSchedule, func() {
		if err := resetMonthlySpend(profiles, logger); err != nil {
			logger.WithError(err).Error("Monthly spend reset failed")
		}
	})
	if err != nil {
		logger.WithError(err).Error("Failed to schedule monthly spend reset")
		os.Exit(1)
	}

	c.Start()
	logger.WithField("schedule", *resetSchedule).Info("Tollgate scheduler started")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("Shutting down gracefully")
	<-c.Stop().Done()
	logger.Info("Scheduler stopped")
}

func resetMonthlySpend(profiles billing.ProfileStore, logger *observability.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), *jobTimeout)
	defer cancel()

	start := time.Now()
	reset, err := profiles.ResetMonthlySpend(ctx)
	if err != nil {
		return err
	}
	logger.WithFields(map[string]interface{}{
		"profiles":    reset,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Monthly spend reset")
	return nil
}
