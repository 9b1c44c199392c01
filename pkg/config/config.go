package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/tollgate/pkg/observability"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	RateLimit     RateLimitConfig
	Billing       BillingConfig
	Stripe        StripeConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	AllowedOrigins  []string

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig selects the backing store and its connection settings
type DatabaseConfig struct {
	Store       string // "postgres" or "memory"
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// RedisConfig holds the rate limit counter store settings.
// An empty URL selects the in-process limiter.
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
	Timeout    time.Duration
}

// RateLimitConfig holds per-tier ceilings
type RateLimitConfig struct {
	DemoDailyLimit        int
	FreeDailyLimit        int
	PaidRequestsPerSecond int
	KeyPrefix             string
}

// BillingConfig holds ledger, cap, and recharge settings
type BillingConfig struct {
	PriceFile              string
	FreeMonthlyCapCents    int64
	ProMonthlyCapCents     int64
	AutoRechargeThreshold  int64
	AutoRechargeTopUpCents int64
	MinTopUpCents          int64
	MaxTopUpCents          int64
	StoreTimeout           time.Duration
	RechargeTimeout        time.Duration
}

// StripeConfig holds payment provider settings
type StripeConfig struct {
	SecretKey        string
	WebhookSecret    string
	SuccessURL       string
	CancelURL        string
	Currency         string
	Timeout          time.Duration
	BreakerFailures  uint
	BreakerWindow    uint
	BreakerOpenDelay time.Duration
}

// AuthConfig holds credential and session settings
type AuthConfig struct {
	SandboxEnabled bool
	JWTSecret      string
	JWTIssuer      string
	KeyCacheSize   int
	KeyCacheTTL    time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		RateLimit:     loadRateLimitConfig(),
		Billing:       loadBillingConfig(),
		Stripe:        loadStripeConfig(),
		Auth:          loadAuthConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TOLLGATE_HOST", "0.0.0.0"),
		Port:            getEnv("TOLLGATE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("TOLLGATE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TOLLGATE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("TOLLGATE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TOLLGATE_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("TOLLGATE_MAX_BODY_BYTES", 1<<20),
		AllowedOrigins:  getEnvList("TOLLGATE_ALLOWED_ORIGINS", []string{"*"}),
		HealthPort:      getEnv("TOLLGATE_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Store:       strings.ToLower(getEnv("TOLLGATE_STORE", StorePostgres)),
		PrimaryURL:  getEnv("TOLLGATE_POSTGRES_URL", ""),
		ReplicaURLs: getEnvList("TOLLGATE_POSTGRES_REPLICA_URLS", nil),
		MaxConns:    getEnvInt("TOLLGATE_POSTGRES_MAX_CONNS", 20),
		MinConns:    getEnvInt("TOLLGATE_POSTGRES_MIN_CONNS", 2),
		Timeout:     getEnvDuration("TOLLGATE_POSTGRES_TIMEOUT", 5*time.Second),
		MaxLifetime: getEnvDuration("TOLLGATE_POSTGRES_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime: getEnvDuration("TOLLGATE_POSTGRES_MAX_IDLE_TIME", 5*time.Minute),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:        getEnv("TOLLGATE_REDIS_URL", ""),
		Password:   getEnv("TOLLGATE_REDIS_PASSWORD", ""),
		DB:         getEnvInt("TOLLGATE_REDIS_DB", 0),
		MaxRetries: getEnvInt("TOLLGATE_REDIS_MAX_RETRIES", 0),
		PoolSize:   getEnvInt("TOLLGATE_REDIS_POOL_SIZE", 0),
		Timeout:    getEnvDuration("TOLLGATE_REDIS_TIMEOUT", 500*time.Millisecond),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		DemoDailyLimit:        getEnvInt("TOLLGATE_DEMO_DAILY_LIMIT", 100),
		FreeDailyLimit:        getEnvInt("TOLLGATE_FREE_DAILY_LIMIT", 100),
		PaidRequestsPerSecond: getEnvInt("TOLLGATE_PAID_RPS", 10),
		KeyPrefix:             getEnv("TOLLGATE_RATELIMIT_PREFIX", "tollgate:rl"),
	}
}

func loadBillingConfig() BillingConfig {
	return BillingConfig{
		PriceFile:              getEnv("TOLLGATE_PRICE_FILE", ""),
		FreeMonthlyCapCents:    getEnvInt64("TOLLGATE_FREE_MONTHLY_CAP_CENTS", 1000),
		ProMonthlyCapCents:     getEnvInt64("TOLLGATE_PRO_MONTHLY_CAP_CENTS", 50000),
		AutoRechargeThreshold:  getEnvInt64("TOLLGATE_AUTO_RECHARGE_THRESHOLD_CENTS", 100),
		AutoRechargeTopUpCents: getEnvInt64("TOLLGATE_AUTO_RECHARGE_AMOUNT_CENTS", 1000),
		MinTopUpCents:          getEnvInt64("TOLLGATE_MIN_TOPUP_CENTS", 500),
		MaxTopUpCents:          getEnvInt64("TOLLGATE_MAX_TOPUP_CENTS", 100000),
		StoreTimeout:           getEnvDuration("TOLLGATE_STORE_TIMEOUT", 2*time.Second),
		RechargeTimeout:        getEnvDuration("TOLLGATE_RECHARGE_TIMEOUT", 30*time.Second),
	}
}

func loadStripeConfig() StripeConfig {
	return StripeConfig{
		SecretKey:        getEnv("STRIPE_SECRET_KEY", ""),
		WebhookSecret:    getEnv("STRIPE_WEBHOOK_SECRET", ""),
		SuccessURL:       getEnv("TOLLGATE_CHECKOUT_SUCCESS_URL", "http://localhost:3000/billing/success"),
		CancelURL:        getEnv("TOLLGATE_CHECKOUT_CANCEL_URL", "http://localhost:3000/billing"),
		Currency:         strings.ToLower(getEnv("TOLLGATE_CURRENCY", "usd")),
		Timeout:          getEnvDuration("TOLLGATE_STRIPE_TIMEOUT", 10*time.Second),
		BreakerFailures:  uint(getEnvInt("TOLLGATE_STRIPE_BREAKER_FAILURES", 5)),
		BreakerWindow:    uint(getEnvInt("TOLLGATE_STRIPE_BREAKER_WINDOW", 10)),
		BreakerOpenDelay: getEnvDuration("TOLLGATE_STRIPE_BREAKER_DELAY", 30*time.Second),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		SandboxEnabled: getEnvBool("TOLLGATE_SANDBOX_ENABLED", true),
		JWTSecret:      getEnv("TOLLGATE_JWT_SECRET", ""),
		JWTIssuer:      getEnv("TOLLGATE_JWT_ISSUER", ""),
		KeyCacheSize:   getEnvInt("TOLLGATE_KEY_CACHE_SIZE", 10000),
		KeyCacheTTL:    getEnvDuration("TOLLGATE_KEY_CACHE_TTL", 30*time.Second),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("TOLLGATE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("TOLLGATE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("TOLLGATE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("TOLLGATE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("TOLLGATE_OTEL_SERVICE_NAME", "tollgate"),
		OTelServiceVersion: getEnv("TOLLGATE_OTEL_SERVICE_VERSION", "dev"),
		OTelInsecure:       getEnvBool("TOLLGATE_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("TOLLGATE_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Database.Store {
	case StorePostgres:
		if c.Database.PrimaryURL == "" {
			return fmt.Errorf("postgres URL is required for postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("invalid store: %s (must be postgres or memory)", c.Database.Store)
	}

	if c.RateLimit.DemoDailyLimit <= 0 || c.RateLimit.FreeDailyLimit <= 0 || c.RateLimit.PaidRequestsPerSecond <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}

	if c.Billing.FreeMonthlyCapCents <= 0 || c.Billing.ProMonthlyCapCents <= 0 {
		return fmt.Errorf("monthly caps must be positive")
	}
	if c.Billing.AutoRechargeTopUpCents <= 0 {
		return fmt.Errorf("auto-recharge amount must be positive")
	}
	if c.Billing.AutoRechargeThreshold < 0 {
		return fmt.Errorf("auto-recharge threshold must not be negative")
	}
	if c.Billing.MinTopUpCents <= 0 || c.Billing.MaxTopUpCents < c.Billing.MinTopUpCents {
		return fmt.Errorf("top-up bounds are invalid: min=%d max=%d", c.Billing.MinTopUpCents, c.Billing.MaxTopUpCents)
	}
	if c.Billing.StoreTimeout <= 0 {
		return fmt.Errorf("store timeout must be positive")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 bytes")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// StripeEnabled reports whether payment provider credentials are configured
func (c *Config) StripeEnabled() bool {
	return c.Stripe.SecretKey != ""
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float64 environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
