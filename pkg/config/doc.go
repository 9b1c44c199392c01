// Package config loads and validates tollgate configuration from environment
// variables. A .env file, when present, is loaded by the binaries before
// LoadConfig runs.
//
// Server settings:
//
//	TOLLGATE_PORT="8080"
//	TOLLGATE_HEALTH_PORT="9090"
//	TOLLGATE_MAX_BODY_BYTES="1048576"
//
// Store settings:
//
//	TOLLGATE_STORE="postgres"  # postgres or memory
//	TOLLGATE_POSTGRES_URL="postgres://localhost/tollgate?sslmode=disable"
//	TOLLGATE_POSTGRES_REPLICA_URLS="postgres://replica-1/tollgate,postgres://replica-2/tollgate"
//	TOLLGATE_REDIS_URL="redis://localhost:6379/0"  # empty selects the in-process limiter
//
// Pipeline settings:
//
//	TOLLGATE_DEMO_DAILY_LIMIT="100"
//	TOLLGATE_PAID_RPS="10"
//	TOLLGATE_PRO_MONTHLY_CAP_CENTS="50000"
//	TOLLGATE_AUTO_RECHARGE_THRESHOLD_CENTS="100"
//	TOLLGATE_PRICE_FILE="/etc/tollgate/prices.yaml"
//
// Payment and session settings:
//
//	STRIPE_SECRET_KEY="sk_test_..."
//	STRIPE_WEBHOOK_SECRET="whsec_..."
//	TOLLGATE_JWT_SECRET="<at least 32 bytes>"
package config
