package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/platinummonkey/tollgate/pkg/async"
	"github.com/platinummonkey/tollgate/pkg/auth"
	"github.com/platinummonkey/tollgate/pkg/billing"
	"github.com/platinummonkey/tollgate/pkg/favorites"
	"github.com/platinummonkey/tollgate/pkg/gateway"
	"github.com/platinummonkey/tollgate/pkg/httputil"
	"github.com/platinummonkey/tollgate/pkg/observability"
	"github.com/platinummonkey/tollgate/pkg/ratelimit"
	"github.com/platinummonkey/tollgate/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret     = "test-jwt-secret-that-is-long-enough"
	testWebhookSecret = "whsec_api_test"
)

// fakePayments verifies webhooks for real and fakes every outbound call
type fakePayments struct {
	*billing.StripeProvider

	mu        sync.Mutex
	customers []string
	checkouts []billing.CheckoutRequest
	pmErr     error
}

func newFakePayments() *fakePayments {
	return &fakePayments{
		StripeProvider: billing.NewStripeProvider(billing.StripeConfig{WebhookSecret: testWebhookSecret}, nil),
	}
}

func (f *fakePayments) CreateCustomer(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers = append(f.customers, userID)
	return "cus_" + userID, nil
}

func (f *fakePayments) CreateCheckoutSession(_ context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkouts = append(f.checkouts, req)
	return &billing.CheckoutSession{ID: "cs_test", URL: "https://checkout.stripe.test/cs_test"}, nil
}

func (f *fakePayments) ChargeTopUp(_ context.Context, req billing.TopUpRequest) (*billing.Charge, error) {
	return &billing.Charge{ID: req.IdempotencyKey, AmountCents: req.AmountCents}, nil
}

func (f *fakePayments) PaymentMethodForIntent(context.Context, string) (string, error) {
	if f.pmErr != nil {
		return "", f.pmErr
	}
	return "pm_card_visa", nil
}

type testServer struct {
	handler   http.Handler
	profiles  *billing.MemoryProfileStore
	keys      *auth.MemoryKeyStore
	favorites *favorites.MemoryStore
	payments  *fakePayments
	sessions  *auth.SessionVerifier
	metrics   *observability.Metrics
	runner    *async.Runner
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	profiles := billing.NewMemoryProfileStore()
	keys := auth.NewMemoryKeyStore()
	favs := favorites.NewMemoryStore()
	payments := newFakePayments()
	sessions := auth.NewSessionVerifier(testJWTSecret, "")
	metrics := observability.NewTestMetrics()
	runner := async.NewRunner(nil, 5*time.Second)
	t.Cleanup(func() { runner.Wait(context.Background()) })

	prices := billing.DefaultPriceTable()
	caps := billing.NewCapGuard(1000, 50000)
	registry := tools.DefaultRegistry()
	resolver := auth.NewResolver(keys, auth.ResolverConfig{SandboxEnabled: true, CacheSize: 100, CacheTTL: time.Minute}, nil, metrics)
	breaker := billing.NewBreaker(billing.BreakerConfig{Failures: 5, Window: 5, OpenDelay: time.Minute}, nil)

	gate := gateway.NewGate(gateway.Options{
		Resolver:  resolver,
		Profiles:  profiles,
		Limiter:   ratelimit.NewMemoryLimiter(ratelimit.DefaultConfig()),
		Ledger:    billing.NewLedger(profiles, prices, caps, nil),
		Caps:      caps,
		Prices:    prices,
		Recharger: billing.NewRecharger(profiles, payments, breaker, billing.RechargeConfig{ThresholdCents: 100, TopUpCents: 1000}, nil, metrics),
		Runner:    runner,
		Metrics:   metrics,
	})

	server := NewServer(Options{
		Registry:  registry,
		Prices:    prices,
		Gate:      gate,
		Resolver:  resolver,
		Keys:      keys,
		Profiles:  profiles,
		Caps:      caps,
		Favorites: favs,
		Payments:  payments,
		Sessions:  sessions,
		Config: Config{
			MinTopUpCents:  500,
			MaxTopUpCents:  100000,
			AllowedOrigins: []string{"*"},
		},
		Metrics: metrics,
	})

	return &testServer{
		handler:   server.Handler(),
		profiles:  profiles,
		keys:      keys,
		favorites: favs,
		payments:  payments,
		sessions:  sessions,
		metrics:   metrics,
		runner:    runner,
	}
}

// apiKey stores profile and returns a bearer header for a fresh key
func (s *testServer) apiKey(t *testing.T, profile *billing.BillingProfile) string {
	t.Helper()
	s.profiles.Put(profile)
	key, token, err := auth.NewAPIKey(profile.UserID, "test")
	require.NoError(t, err)
	require.NoError(t, s.keys.Create(context.Background(), key))
	return "Bearer " + token
}

func (s *testServer) session(t *testing.T, userID string) string {
	t.Helper()
	token, err := s.sessions.Sign(userID, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func (s *testServer) profile(t *testing.T, userID string) *billing.BillingProfile {
	t.Helper()
	p, err := s.profiles.GetProfile(context.Background(), userID)
	require.NoError(t, err)
	return p
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details"`
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *errorBody      `json:"error"`
	Meta    struct {
		RequestID string                  `json:"requestId"`
		RateLimit *httputil.RateLimitMeta `json:"rateLimit"`
	} `json:"meta"`
}

func (s *testServer) do(t *testing.T, method, path, header, body string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var resp response
	if rec.Code != http.StatusNoContent {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

func decodeData(t *testing.T, resp response, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Data, dest))
}

func TestServer_Middleware(t *testing.T) {
	s := newTestServer(t)

	t.Run("request id is echoed", func(t *testing.T) {
		rec, resp := s.do(t, http.MethodGet, "/api/tools", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get(httputil.RequestIDHeader))
		assert.Equal(t, rec.Header().Get(httputil.RequestIDHeader), resp.Meta.RequestID)
	})

	t.Run("unknown route", func(t *testing.T) {
		rec, resp := s.do(t, http.MethodGet, "/nope", "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	})

	t.Run("cors preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/tools/word-counter", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestServer_OptionalRoutes(t *testing.T) {
	registry := tools.DefaultRegistry()
	prices := billing.DefaultPriceTable()
	profiles := billing.NewMemoryProfileStore()
	caps := billing.NewCapGuard(1000, 50000)
	gate := gateway.NewGate(gateway.Options{
		Resolver: auth.NewResolver(auth.NewMemoryKeyStore(), auth.ResolverConfig{SandboxEnabled: true}, nil, nil),
		Profiles: profiles,
		Limiter:  ratelimit.NewMemoryLimiter(ratelimit.DefaultConfig()),
		Ledger:   billing.NewLedger(profiles, prices, caps, nil),
		Caps:     caps,
		Prices:   prices,
	})
	server := NewServer(Options{Registry: registry, Prices: prices, Gate: gate})

	for _, path := range []string{"/api/account/profile", "/api/billing/webhook", "/api/billing/checkout"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/tools/uuid-generator", nil)
	req.Header.Set("Authorization", "Bearer "+auth.SandboxKey)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
