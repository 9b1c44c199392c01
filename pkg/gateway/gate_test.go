package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/platinummonkey/tollgate/pkg/apierr"
	"github.com/platinummonkey/tollgate/pkg/async"
	"github.com/platinummonkey/tollgate/pkg/auth"
	"github.com/platinummonkey/tollgate/pkg/billing"
	"github.com/platinummonkey/tollgate/pkg/observability"
	"github.com/platinummonkey/tollgate/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingKeys counts lookups against the wrapped store
type countingKeys struct {
	auth.KeyStore
	lookups int32
}

func (c *countingKeys) LookupByHash(ctx context.Context, hash string) (*auth.APIKey, error) {
	atomic.AddInt32(&c.lookups, 1)
	return c.KeyStore.LookupByHash(ctx, hash)
}

// countingProfiles counts profile reads and can fail them
type countingProfiles struct {
	*billing.MemoryProfileStore
	reads int32
	err   error
}

func (c *countingProfiles) GetProfile(ctx context.Context, userID string) (*billing.BillingProfile, error) {
	atomic.AddInt32(&c.reads, 1)
	if c.err != nil {
		return nil, c.err
	}
	return c.MemoryProfileStore.GetProfile(ctx, userID)
}

type brokenLimiter struct{}

func (brokenLimiter) Check(context.Context, string, ratelimit.Tier) (ratelimit.Result, error) {
	return ratelimit.Result{}, errors.New("dial tcp: connection refused")
}

type fakePayments struct {
	mu      sync.Mutex
	charges int
	err     error
}

func (f *fakePayments) CreateCustomer(context.Context, string) (string, error) { return "cus_fake", nil }

func (f *fakePayments) CreateCheckoutSession(context.Context, billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	return &billing.CheckoutSession{ID: "cs_fake"}, nil
}

func (f *fakePayments) ChargeTopUp(_ context.Context, req billing.TopUpRequest) (*billing.Charge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.charges++
	if f.err != nil {
		return nil, f.err
	}
	return &billing.Charge{ID: req.IdempotencyKey, AmountCents: req.AmountCents}, nil
}

func (f *fakePayments) PaymentMethodForIntent(context.Context, string) (string, error) {
	return "pm_fake", nil
}

func (f *fakePayments) ParseWebhook([]byte, string) (*billing.WebhookEvent, error) {
	return nil, errors.New("not implemented")
}

type harness struct {
	gate     *Gate
	keys     *countingKeys
	profiles *countingProfiles
	payments *fakePayments
	runner   *async.Runner
	metrics  *observability.Metrics
}

type harnessOption func(*Options, *ratelimit.Config)

func withLimiter(l ratelimit.Limiter) harnessOption {
	return func(o *Options, _ *ratelimit.Config) { o.Limiter = l }
}

func withRateConfig(fn func(*ratelimit.Config)) harnessOption {
	return func(_ *Options, c *ratelimit.Config) { fn(c) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	keys := &countingKeys{KeyStore: auth.NewMemoryKeyStore()}
	profiles := &countingProfiles{MemoryProfileStore: billing.NewMemoryProfileStore()}
	payments := &fakePayments{}
	metrics := observability.NewTestMetrics()
	runner := async.NewRunner(nil, 5*time.Second)

	prices := billing.DefaultPriceTable()
	caps := billing.NewCapGuard(1000, 50000)
	breaker := billing.NewBreaker(billing.BreakerConfig{Failures: 5, Window: 5, OpenDelay: time.Minute}, nil)

	rateCfg := ratelimit.DefaultConfig()
	o := Options{
		Resolver:  auth.NewResolver(keys, auth.ResolverConfig{SandboxEnabled: true}, nil, nil),
		Profiles:  profiles,
		Ledger:    billing.NewLedger(profiles, prices, caps, nil),
		Caps:      caps,
		Prices:    prices,
		Recharger: billing.NewRecharger(profiles, payments, breaker, billing.RechargeConfig{ThresholdCents: 100, TopUpCents: 1000}, nil, metrics),
		Runner:    runner,
		Config:    Config{StoreTimeout: time.Second},
		Metrics:   metrics,
	}
	for _, opt := range opts {
		opt(&o, &rateCfg)
	}
	if o.Limiter == nil {
		o.Limiter = ratelimit.NewMemoryLimiter(rateCfg)
	}

	return &harness{
		gate:     NewGate(o),
		keys:     keys,
		profiles: profiles,
		payments: payments,
		runner:   runner,
		metrics:  metrics,
	}
}

// addKey creates a key for profile and stores both
func (h *harness) addKey(t *testing.T, profile *billing.BillingProfile) string {
	t.Helper()
	key, token, err := auth.NewAPIKey(profile.UserID, "test")
	require.NoError(t, err)
	require.NoError(t, h.keys.Create(context.Background(), key))
	h.profiles.Put(profile)
	return "Bearer " + token
}

func (h *harness) balance(t *testing.T, userID string) *billing.BillingProfile {
	t.Helper()
	p, err := h.profiles.MemoryProfileStore.GetProfile(context.Background(), userID)
	require.NoError(t, err)
	return p
}

func requireCode(t *testing.T, err *apierr.Error, code apierr.Code) {
	t.Helper()
	require.NotNil(t, err, "expected %s", code)
	assert.Equal(t, code, err.Code)
}

func TestGate_Credentials(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	for _, header := range []string{"", "Bearer", "Bearer   ", "Basic dXNlcjpwYXNz", "Bearer tg_unknownunknownunknownunknown00"} {
		_, err := h.gate.Admit(ctx, header, "word-counter")
		requireCode(t, err, apierr.CodeUnauthorized)
	}
	assert.Zero(t, atomic.LoadInt32(&h.profiles.reads), "no profile read without an identity")
}

func TestGate_MissingProfile(t *testing.T) {
	h := newHarness(t)
	key, token, err := auth.NewAPIKey("orphan", "test")
	require.NoError(t, err)
	require.NoError(t, h.keys.Create(context.Background(), key))

	_, apiErr := h.gate.Admit(context.Background(), "Bearer "+token, "word-counter")
	requireCode(t, apiErr, apierr.CodeUnauthorized)
}

func TestGate_Sandbox(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withRateConfig(func(c *ratelimit.Config) { c.DemoDailyLimit = 3 }))

	for i := 0; i < 3; i++ {
		admission, err := h.gate.Admit(ctx, "Bearer "+auth.SandboxKey, "word-counter")
		require.Nil(t, err)
		assert.True(t, admission.Identity.IsSandbox)
		assert.Equal(t, ratelimit.TierDemo, admission.Tier)

		meta := admission.Meta()
		assert.Equal(t, int64(2-i), meta.Remaining)
		assert.Zero(t, meta.Balance)
		assert.Zero(t, meta.CostThisCall)
	}

	_, err := h.gate.Admit(ctx, "Bearer "+auth.SandboxKey, "json-formatter")
	requireCode(t, err, apierr.CodeRateLimited)
	assert.Equal(t, 429, err.Status())

	assert.Zero(t, atomic.LoadInt32(&h.keys.lookups), "sandbox never hits the key store")
	assert.Zero(t, atomic.LoadInt32(&h.profiles.reads), "sandbox never reads a profile")
}

func TestGate_PaidDeduction(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	header := h.addKey(t, &billing.BillingProfile{UserID: "u1", BalanceCents: 50, Plan: billing.PlanFree})

	admission, err := h.gate.Admit(ctx, header, "word-counter")
	require.Nil(t, err)
	assert.Equal(t, ratelimit.TierPaid, admission.Tier)
	assert.Equal(t, int64(49), admission.Deduction.NewBalance)
	assert.Equal(t, int64(1), admission.Deduction.CentsDeducted)
	assert.False(t, admission.RechargeDispatched)

	meta := admission.Meta()
	assert.Equal(t, int64(49), meta.Remaining)
	assert.Equal(t, int64(49), meta.Balance)
	assert.Equal(t, 1.0, meta.CostThisCall)
	assert.Equal(t, 10, meta.RequestsPerSecond)

	after := h.balance(t, "u1")
	assert.Equal(t, int64(49), after.BalanceCents)
	assert.Equal(t, int64(1), after.MonthlySpendCents)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CentsDeductedTotal.WithLabelValues("word-counter")))

	half, err := h.gate.Admit(ctx, header, "base64")
	require.Nil(t, err)
	assert.Equal(t, 0.5, half.Meta().CostThisCall)
	assert.Equal(t, int64(48), half.Deduction.NewBalance)
	assert.Equal(t, int64(500), half.Deduction.RemainingFractional)

	again, err := h.gate.Admit(ctx, header, "base64")
	require.Nil(t, err)
	assert.Equal(t, int64(48), again.Deduction.NewBalance, "second half-cent comes out of fractional credit")
	assert.Zero(t, again.Deduction.CentsDeducted)
}

func TestGate_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	header := h.addKey(t, &billing.BillingProfile{UserID: "u1", Plan: billing.PlanPro})

	_, err := h.gate.Admit(ctx, header, "word-counter")
	requireCode(t, err, apierr.CodeInsufficientBalance)
	assert.Equal(t, 402, err.Status())

	after := h.balance(t, "u1")
	assert.Zero(t, after.BalanceCents)
	assert.Zero(t, after.MonthlySpendCents)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.DenialsTotal.WithLabelValues("INSUFFICIENT_BALANCE")))
}

func TestGate_MonthlyCap(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	header := h.addKey(t, &billing.BillingProfile{UserID: "u1", BalanceCents: 500, MonthlySpendCents: 1000, Plan: billing.PlanFree})

	_, err := h.gate.Admit(ctx, header, "word-counter")
	requireCode(t, err, apierr.CodeInsufficientBalance)
	assert.Equal(t, "Monthly spending limit reached", err.Message)

	after := h.balance(t, "u1")
	assert.Equal(t, int64(500), after.BalanceCents, "cap denial leaves the balance untouched")
	assert.Equal(t, int64(1000), after.MonthlySpendCents)

	limit := int64(2000)
	_, uerr := h.profiles.UpdateLimits(ctx, "u1", &limit, false)
	require.NoError(t, uerr)

	_, err = h.gate.Admit(ctx, header, "word-counter")
	assert.Nil(t, err, "an override raises the cap")
}

func TestGate_RateLimited(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withRateConfig(func(c *ratelimit.Config) { c.PaidRequestsPerSecond = 1 }))
	header := h.addKey(t, &billing.BillingProfile{UserID: "u1", BalanceCents: 50, Plan: billing.PlanFree})

	_, err := h.gate.Admit(ctx, header, "word-counter")
	require.Nil(t, err)

	_, err = h.gate.Admit(ctx, header, "word-counter")
	requireCode(t, err, apierr.CodeRateLimited)

	assert.Equal(t, int64(49), h.balance(t, "u1").BalanceCents, "denied call is not billed")
}

func TestGate_FreeTierDailyQuota(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withRateConfig(func(c *ratelimit.Config) { c.FreeDailyLimit = 1 }))
	header := h.addKey(t, &billing.BillingProfile{UserID: "u1", Plan: billing.PlanFree})

	_, err := h.gate.Admit(ctx, header, "word-counter")
	requireCode(t, err, apierr.CodeInsufficientBalance)

	_, err = h.gate.Admit(ctx, header, "word-counter")
	requireCode(t, err, apierr.CodeRateLimited)
}

func TestGate_CollaboratorFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("limiter unavailable fails closed", func(t *testing.T) {
		h := newHarness(t, withLimiter(brokenLimiter{}))
		header := h.addKey(t, &billing.BillingProfile{UserID: "u1", BalanceCents: 50})

		_, err := h.gate.Admit(ctx, header, "word-counter")
		requireCode(t, err, apierr.CodeInternal)
		assert.Equal(t, int64(50), h.balance(t, "u1").BalanceCents)

		_, err = h.gate.Admit(ctx, "Bearer "+auth.SandboxKey, "word-counter")
		requireCode(t, err, apierr.CodeInternal)
	})

	t.Run("profile store error", func(t *testing.T) {
		h := newHarness(t)
		header := h.addKey(t, &billing.BillingProfile{UserID: "u1", BalanceCents: 50})
		h.profiles.err = errors.New("connection reset by peer")

		_, err := h.gate.Admit(ctx, header, "word-counter")
		requireCode(t, err, apierr.CodeInternal)
		assert.NotContains(t, err.Message, "connection reset")
	})
}

func TestGate_AutoRecharge(t *testing.T) {
	ctx := context.Background()
	rechargeable := func() *billing.BillingProfile {
		return &billing.BillingProfile{
			UserID:              "u1",
			BalanceCents:        101,
			Plan:                billing.PlanFree,
			StripeCustomerID:    "cus_1",
			PaymentMethodID:     "pm_1",
			AutoRechargeEnabled: true,
		}
	}

	t.Run("crossing tops up once", func(t *testing.T) {
		h := newHarness(t)
		header := h.addKey(t, rechargeable())

		admission, err := h.gate.Admit(ctx, header, "word-counter")
		require.Nil(t, err)
		assert.True(t, admission.RechargeDispatched)
		assert.Equal(t, int64(100), admission.Meta().Balance, "response reports the post-deduction balance")

		require.NoError(t, h.runner.Wait(ctx))
		assert.Equal(t, int64(1100), h.balance(t, "u1").BalanceCents)

		next, err := h.gate.Admit(ctx, header, "word-counter")
		require.Nil(t, err)
		assert.False(t, next.RechargeDispatched)
		require.NoError(t, h.runner.Wait(ctx))
		assert.Equal(t, 1, h.payments.charges)
	})

	t.Run("later crossing on the same day tops up again", func(t *testing.T) {
		h := newHarness(t)
		header := h.addKey(t, rechargeable())

		_, err := h.gate.Admit(ctx, header, "word-counter")
		require.Nil(t, err)
		require.NoError(t, h.runner.Wait(ctx))
		require.Equal(t, int64(1100), h.balance(t, "u1").BalanceCents)

		spent := rechargeable()
		spent.MonthlySpendCents = h.balance(t, "u1").MonthlySpendCents
		h.profiles.Put(spent)

		admission, err := h.gate.Admit(ctx, header, "word-counter")
		require.Nil(t, err)
		assert.True(t, admission.RechargeDispatched)
		require.NoError(t, h.runner.Wait(ctx))

		assert.Equal(t, 2, h.payments.charges)
		assert.Equal(t, int64(1100), h.balance(t, "u1").BalanceCents)
	})

	t.Run("failed charge keeps the deduction", func(t *testing.T) {
		h := newHarness(t)
		h.payments.err = errors.New("card_declined")
		header := h.addKey(t, rechargeable())

		admission, err := h.gate.Admit(ctx, header, "word-counter")
		require.Nil(t, err)
		assert.True(t, admission.RechargeDispatched)

		require.NoError(t, h.runner.Wait(ctx))
		assert.Equal(t, int64(100), h.balance(t, "u1").BalanceCents)
		assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RechargeAttemptsTotal.WithLabelValues("charge_failed")))
	})

	t.Run("no payment method", func(t *testing.T) {
		h := newHarness(t)
		p := rechargeable()
		p.PaymentMethodID = ""
		header := h.addKey(t, p)

		admission, err := h.gate.Admit(ctx, header, "word-counter")
		require.Nil(t, err)
		assert.False(t, admission.RechargeDispatched)
	})
}

func TestGate_ConcurrentLastCent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withRateConfig(func(c *ratelimit.Config) { c.PaidRequestsPerSecond = 1000 }))
	header := h.addKey(t, &billing.BillingProfile{UserID: "u1", BalanceCents: 1, Plan: billing.PlanFree})

	const n = 30
	var ok, denied int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.gate.Admit(ctx, header, "word-counter")
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case err.Code == apierr.CodeInsufficientBalance:
				atomic.AddInt32(&denied, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok)
	assert.Equal(t, int32(n-1), denied)
	assert.Zero(t, h.balance(t, "u1").BalanceCents)
}
