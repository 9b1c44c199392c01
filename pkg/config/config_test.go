package config

import (
	"testing"
	"time"

	"github.com/platinummonkey/tollgate/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TOLLGATE_TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TOLLGATE_TEST_VAR_NOT_SET",
			defaultValue: "default",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}
			assert.Equal(t, tt.want, getEnv(tt.key, tt.defaultValue))
		})
	}
}

func TestTypedEnvHelpers(t *testing.T) {
	t.Setenv("TOLLGATE_T_BOOL", "1")
	t.Setenv("TOLLGATE_T_INT", "42")
	t.Setenv("TOLLGATE_T_BAD_INT", "forty")
	t.Setenv("TOLLGATE_T_INT64", "9000000000")
	t.Setenv("TOLLGATE_T_FLOAT", "0.25")
	t.Setenv("TOLLGATE_T_DUR", "750ms")
	t.Setenv("TOLLGATE_T_LIST", "a, b,,c ")

	assert.True(t, getEnvBool("TOLLGATE_T_BOOL", false))
	assert.Equal(t, 42, getEnvInt("TOLLGATE_T_INT", 0))
	assert.Equal(t, 7, getEnvInt("TOLLGATE_T_BAD_INT", 7))
	assert.Equal(t, int64(9000000000), getEnvInt64("TOLLGATE_T_INT64", 0))
	assert.Equal(t, 0.25, getEnvFloat("TOLLGATE_T_FLOAT", 1))
	assert.Equal(t, 750*time.Millisecond, getEnvDuration("TOLLGATE_T_DUR", time.Second))
	assert.Equal(t, []string{"a", "b", "c"}, getEnvList("TOLLGATE_T_LIST", nil))
	assert.Nil(t, getEnvList("TOLLGATE_T_LIST_UNSET", nil))
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]observability.LogLevel{
		"debug":   observability.DebugLevel,
		"INFO":    observability.InfoLevel,
		"warning": observability.WarnLevel,
		"error":   observability.ErrorLevel,
		"bogus":   observability.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("TOLLGATE_STORE", "memory")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, StoreMemory, cfg.Database.Store)
	assert.Equal(t, 100, cfg.RateLimit.DemoDailyLimit)
	assert.Equal(t, 10, cfg.RateLimit.PaidRequestsPerSecond)
	assert.Equal(t, int64(1000), cfg.Billing.FreeMonthlyCapCents)
	assert.Equal(t, int64(50000), cfg.Billing.ProMonthlyCapCents)
	assert.Equal(t, 2*time.Second, cfg.Billing.StoreTimeout)
	assert.True(t, cfg.Auth.SandboxEnabled)
	assert.False(t, cfg.StripeEnabled())
}

func TestLoadConfig_PostgresRequiresURL(t *testing.T) {
	t.Setenv("TOLLGATE_STORE", "postgres")
	t.Setenv("TOLLGATE_POSTGRES_URL", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres URL is required")
}

func validConfig() *Config {
	return &Config{
		Server:    ServerConfig{Port: "8080", HealthPort: "9090"},
		Database:  DatabaseConfig{Store: StoreMemory},
		RateLimit: RateLimitConfig{DemoDailyLimit: 100, FreeDailyLimit: 100, PaidRequestsPerSecond: 10},
		Billing: BillingConfig{
			FreeMonthlyCapCents:    1000,
			ProMonthlyCapCents:     50000,
			AutoRechargeThreshold:  100,
			AutoRechargeTopUpCents: 1000,
			MinTopUpCents:          500,
			MaxTopUpCents:          100000,
			StoreTimeout:           time.Second,
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "same ports", mutate: func(c *Config) { c.Server.HealthPort = "8080" }, wantErr: "must be different"},
		{name: "unknown store", mutate: func(c *Config) { c.Database.Store = "sqlite" }, wantErr: "invalid store"},
		{name: "zero paid rps", mutate: func(c *Config) { c.RateLimit.PaidRequestsPerSecond = 0 }, wantErr: "rate limits"},
		{name: "zero cap", mutate: func(c *Config) { c.Billing.ProMonthlyCapCents = 0 }, wantErr: "monthly caps"},
		{name: "inverted top-up bounds", mutate: func(c *Config) { c.Billing.MaxTopUpCents = 100 }, wantErr: "top-up bounds"},
		{name: "short jwt secret", mutate: func(c *Config) { c.Auth.JWTSecret = "short" }, wantErr: "JWT secret"},
		{name: "otel without endpoint", mutate: func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelServiceName = "tollgate"
		}, wantErr: "endpoint is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
