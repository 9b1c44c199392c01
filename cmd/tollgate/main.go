package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/platinummonkey/tollgate/pkg/api"
	"github.com/platinummonkey/tollgate/pkg/async"
	"github.com/platinummonkey/tollgate/pkg/auth"
	"github.com/platinummonkey/tollgate/pkg/billing"
	"github.com/platinummonkey/tollgate/pkg/config"
	"github.com/platinummonkey/tollgate/pkg/favorites"
	"github.com/platinummonkey/tollgate/pkg/gateway"
	"github.com/platinummonkey/tollgate/pkg/middleware"
	"github.com/platinummonkey/tollgate/pkg/observability"
	"github.com/platinummonkey/tollgate/pkg/ratelimit"
	"github.com/platinummonkey/tollgate/pkg/storage/postgres"
	"github.com/platinummonkey/tollgate/pkg/tools"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

var migrate = flag.Bool("migrate", false, "Apply the database schema before serving")

// stores bundles the persistence backends; db is nil in memory mode
type stores struct {
	db        *sql.DB
	profiles  billing.ProfileStore
	keys      auth.KeyStore
	favorites favorites.Store
}

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Failed to load .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Tollgate stopped with error")
		os.Exit(1)
	}
	logger.Info("Tollgate stopped")
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	shutdown.Register("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	st, err := openStores(ctx, cfg, logger, shutdown)
	if err != nil {
		shutdown.Shutdown(ctx)
		return err
	}

	limiter, redisClient, err := openLimiter(cfg, logger, shutdown)
	if err != nil {
		shutdown.Shutdown(ctx)
		return err
	}

	prices, err := billing.LoadPriceTable(cfg.Billing.PriceFile)
	if err != nil {
		shutdown.Shutdown(ctx)
		return err
	}
	caps := billing.NewCapGuard(cfg.Billing.FreeMonthlyCapCents, cfg.Billing.ProMonthlyCapCents)

	resolver := auth.NewResolver(st.keys, auth.ResolverConfig{
		SandboxEnabled: cfg.Auth.SandboxEnabled,
		CacheSize:      cfg.Auth.KeyCacheSize,
		CacheTTL:       cfg.Auth.KeyCacheTTL,
	}, logger, metrics)

	runner := async.NewRunner(logger, cfg.Billing.RechargeTimeout)
	shutdown.Register("background-tasks", runner.Wait)

	var payments billing.PaymentProvider
	var recharger *billing.Recharger
	if cfg.StripeEnabled() {
		stripe := billing.NewStripeProvider(billing.StripeConfig{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			SuccessURL:    cfg.Stripe.SuccessURL,
			CancelURL:     cfg.Stripe.CancelURL,
			Currency:      cfg.Stripe.Currency,
			Timeout:       cfg.Stripe.Timeout,
		}, logger)
		breaker := billing.NewBreaker(billing.BreakerConfig{
			Failures:  cfg.Stripe.BreakerFailures,
			Window:    cfg.Stripe.BreakerWindow,
			OpenDelay: cfg.Stripe.BreakerOpenDelay,
		}, logger)
		payments = stripe
		recharger = billing.NewRecharger(st.profiles, stripe, breaker, billing.RechargeConfig{
			ThresholdCents: cfg.Billing.AutoRechargeThreshold,
			TopUpCents:     cfg.Billing.AutoRechargeTopUpCents,
		}, logger, metrics)
	} else {
		logger.Warn("Stripe is not configured; checkout, webhooks and auto-recharge are disabled")
	}

	var sessions middleware.Verifier
	if cfg.Auth.JWTSecret != "" {
		sessions = auth.NewSessionVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	} else {
		logger.Warn("TOLLGATE_JWT_SECRET is not set; account endpoints are disabled")
	}

	gate := gateway.NewGate(gateway.Options{
		Resolver:  resolver,
		Profiles:  st.profiles,
		Limiter:   limiter,
		Ledger:    billing.NewLedger(st.profiles, prices, caps, logger),
		Caps:      caps,
		Prices:    prices,
		Recharger: recharger,
		Runner:    runner,
		Config:    gateway.Config{StoreTimeout: cfg.Billing.StoreTimeout},
		Logger:    logger,
		Metrics:   metrics,
	})

	server := api.NewServer(api.Options{
		Registry:  tools.DefaultRegistry(),
		Prices:    prices,
		Gate:      gate,
		Resolver:  resolver,
		Keys:      st.keys,
		Profiles:  st.profiles,
		Caps:      caps,
		Favorites: st.favorites,
		Payments:  payments,
		Sessions:  sessions,
		Config: api.Config{
			StoreTimeout:   cfg.Billing.StoreTimeout,
			MinTopUpCents:  cfg.Billing.MinTopUpCents,
			MaxTopUpCents:  cfg.Billing.MaxTopUpCents,
			MaxBodyBytes:   cfg.Server.MaxBodyBytes,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		},
		Logger:  logger,
		Metrics: metrics,
	})

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	opsMux := http.NewServeMux()
	observability.RegisterHealthRoutes(opsMux, observability.NewHealthChecker(st.db, redisClient).WithVersion(version))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(opsMux, registry)
	}
	opsServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           opsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown.Register("ops-server", opsServer.Shutdown)
	shutdown.Register("api-server", apiServer.Shutdown)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(apiServer, "api", logger) })
	g.Go(func() error { return serve(opsServer, "ops", logger) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		return shutdown.Shutdown(context.Background())
	})
	return g.Wait()
}

func serve(srv *http.Server, name string, logger *observability.Logger) error {
	logger.WithFields(map[string]interface{}{"server": name, "addr": srv.Addr}).Info("Listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server failed: %w", name, err)
	}
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, logger *observability.Logger, shutdown *observability.ShutdownManager) (*stores, error) {
	if cfg.Database.Store == config.StoreMemory {
		logger.Warn("Using in-memory stores; balances and keys are lost on restart")
		if *migrate {
			logger.Warn("-migrate ignored for the memory store")
		}
		return &stores{
			profiles:  billing.NewMemoryProfileStore(),
			keys:      auth.NewMemoryKeyStore(),
			favorites: favorites.NewMemoryStore(),
		}, nil
	}

	conns, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.PrimaryURL,
		ReplicaURLs: cfg.Database.ReplicaURLs,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	shutdown.Register("postgres", func(context.Context) error { return conns.Close() })

	if *migrate {
		if err := postgres.Migrate(ctx, conns.Primary()); err != nil {
			return nil, err
		}
		logger.Info("Database schema applied")
	}
	if len(cfg.Database.ReplicaURLs) > 0 {
		conns.StartHealthCheckRoutine(ctx, 30*time.Second)
	}
	logger.WithField("replicas", len(conns.Stats().Replicas)).Info("Connected to postgres")

	return &stores{
		db:        conns.Primary(),
		profiles:  billing.NewPostgresProfileStore(conns),
		keys:      auth.NewPostgresKeyStore(conns),
		favorites: favorites.NewPostgresStore(conns),
	}, nil
}

func openLimiter(cfg *config.Config, logger *observability.Logger, shutdown *observability.ShutdownManager) (ratelimit.Limiter, *redis.Client, error) {
	rateCfg := ratelimit.DefaultConfig()
	rateCfg.DemoDailyLimit = cfg.RateLimit.DemoDailyLimit
	rateCfg.FreeDailyLimit = cfg.RateLimit.FreeDailyLimit
	rateCfg.PaidRequestsPerSecond = cfg.RateLimit.PaidRequestsPerSecond

	if cfg.Redis.URL == "" {
		logger.Warn("TOLLGATE_REDIS_URL is not set; rate limits are per process")
		return ratelimit.NewMemoryLimiter(rateCfg), nil, nil
	}

	client, err := ratelimit.NewRedisClient(cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	shutdown.Register("redis", func(context.Context) error { return client.Close() })
	return ratelimit.NewRedisLimiter(client, rateCfg, cfg.RateLimit.KeyPrefix), client, nil
}
