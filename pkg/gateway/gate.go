package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/tollgate/pkg/apierr"
	"github.com/platinummonkey/tollgate/pkg/async"
	"github.com/platinummonkey/tollgate/pkg/auth"
	"github.com/platinummonkey/tollgate/pkg/billing"
	"github.com/platinummonkey/tollgate/pkg/contextkeys"
	"github.com/platinummonkey/tollgate/pkg/httputil"
	"github.com/platinummonkey/tollgate/pkg/observability"
	"github.com/platinummonkey/tollgate/pkg/ratelimit"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Stage names, in pipeline order
const (
	StageCredentialResolved = "credential_resolved"
	StageSandboxAdmit       = "sandbox_admit"
	StageProfileLoaded      = "profile_loaded"
	StageRateChecked        = "rate_checked"
	StageBalanceChecked     = "balance_checked"
	StageMonthlyChecked     = "monthly_checked"
	StageDeducted           = "deducted"
	StageRechargeChecked    = "recharge_checked"
	StageBodyValidated      = "body_validated"
	StageToolExecuted       = "tool_executed"
)

const monthlyLimitMessage = "Monthly spending limit reached"

// Config holds gate settings
type Config struct {
	// StoreTimeout bounds each call to the key store, profile store and limiter
	StoreTimeout time.Duration
}

// Options wires a Gate to its collaborators. Recharger and Runner may be nil
// to disable auto-recharge.
type Options struct {
	Resolver  *auth.Resolver
	Profiles  billing.ProfileStore
	Limiter   ratelimit.Limiter
	Ledger    *billing.Ledger
	Caps      *billing.CapGuard
	Prices    *billing.PriceTable
	Recharger *billing.Recharger
	Runner    *async.Runner
	Config    Config
	Logger    *observability.Logger
	Metrics   *observability.Metrics
}

// Gate runs the admission pipeline in front of every tool call
type Gate struct {
	resolver  *auth.Resolver
	profiles  billing.ProfileStore
	limiter   ratelimit.Limiter
	ledger    *billing.Ledger
	caps      *billing.CapGuard
	prices    *billing.PriceTable
	recharger *billing.Recharger
	runner    *async.Runner
	cfg       Config
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewGate creates a gate
func NewGate(opts Options) *Gate {
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	if opts.Config.StoreTimeout <= 0 {
		opts.Config.StoreTimeout = 2 * time.Second
	}
	return &Gate{
		resolver:  opts.Resolver,
		profiles:  opts.Profiles,
		limiter:   opts.Limiter,
		ledger:    opts.Ledger,
		caps:      opts.Caps,
		prices:    opts.Prices,
		recharger: opts.Recharger,
		runner:    opts.Runner,
		cfg:       opts.Config,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

// Admission is an admitted call. For key-backed callers the charge has
// already been committed.
type Admission struct {
	Identity  *auth.Identity
	Profile   *billing.BillingProfile
	Tier      ratelimit.Tier
	RateLimit ratelimit.Result
	Deduction billing.DeductionResult
	CostCents float64
	// RechargeDispatched is set when an auto-recharge was handed to the runner
	RechargeDispatched bool
}

// Balance is the post-deduction balance in cents; zero for the sandbox
func (a *Admission) Balance() int64 {
	if a.Identity.IsSandbox {
		return 0
	}
	return a.Deduction.NewBalance
}

// Meta is the rate limit block of the response envelope
func (a *Admission) Meta() httputil.RateLimitMeta {
	meta := httputil.RateLimitMeta{
		Balance:           a.Balance(),
		RequestsPerSecond: a.RateLimit.RequestsPerSecond,
	}
	if a.Identity.IsSandbox {
		meta.Remaining = int64(a.RateLimit.Remaining)
		return meta
	}

	meta.CostThisCall = a.CostCents
	if a.Tier == ratelimit.TierPaid {
		meta.Remaining = a.Deduction.NewBalance
	} else {
		meta.Remaining = int64(a.RateLimit.Remaining)
	}
	return meta
}

// Admit resolves the caller, applies rate limits and, for key-backed
// callers, charges the tool's price. The first failing stage determines the
// returned error and no later stage runs.
func (g *Gate) Admit(ctx context.Context, authHeader, toolID string) (*Admission, *apierr.Error) {
	ctx, span := observability.Tracer().Start(ctx, "gateway.Admit",
		trace.WithAttributes(attribute.String("tool.id", toolID)))
	defer span.End()

	log := observability.WithTraceContext(ctx, g.logger.WithContext(ctx)).WithField("tool", toolID)

	identity, ok := g.resolve(ctx, authHeader)
	if !ok {
		return nil, g.deny(ctx, span, log, StageCredentialResolved, apierr.Unauthorized(""))
	}
	g.event(span, StageCredentialResolved, attribute.Bool("sandbox", identity.IsSandbox))
	log = log.WithField("key_id", identity.KeyID)

	if identity.IsSandbox {
		return g.admitSandbox(ctx, span, log, identity)
	}

	log = log.WithField("user_id", identity.UserID)
	profile, apiErr := g.loadProfile(ctx, identity.UserID)
	if apiErr != nil {
		return nil, g.deny(ctx, span, log, StageProfileLoaded, apiErr)
	}
	g.event(span, StageProfileLoaded, attribute.String("plan", string(profile.Plan)))

	tier := ratelimit.TierFree
	if profile.IsPaid() {
		tier = ratelimit.TierPaid
	}
	rate, apiErr := g.checkRate(ctx, identity.KeyID, tier)
	if apiErr != nil {
		return nil, g.deny(ctx, span, log, StageRateChecked, apiErr)
	}
	g.event(span, StageRateChecked, attribute.String("tier", string(tier)), attribute.Int("remaining", rate.Remaining))

	admission := &Admission{
		Identity:  identity,
		Profile:   profile,
		Tier:      tier,
		RateLimit: rate,
		CostCents: g.prices.CostCents(toolID),
	}

	check, err := g.ledger.CheckBalance(profile, toolID)
	if err != nil {
		return nil, g.deny(ctx, span, log, StageBalanceChecked, apierr.Internal(err))
	}
	if !check.Allowed {
		return nil, g.deny(ctx, span, log, StageBalanceChecked, apierr.InsufficientBalance(check.Message))
	}
	g.event(span, StageBalanceChecked, attribute.Int64("cost_millicents", check.CostMillicents))

	capCheck := g.caps.CheckMonthlyLimit(profile, check.CentsDeducted)
	if !capCheck.Allowed {
		return nil, g.deny(ctx, span, log, StageMonthlyChecked, apierr.InsufficientBalance(capCheck.Message))
	}
	g.event(span, StageMonthlyChecked, attribute.Int64("cap_cents", capCheck.CapCents))

	deduction, apiErr := g.deduct(ctx, profile, check, toolID)
	if apiErr != nil {
		return nil, g.deny(ctx, span, log, StageDeducted, apiErr)
	}
	admission.Deduction = deduction
	g.event(span, StageDeducted,
		attribute.Int64("cents_deducted", deduction.CentsDeducted),
		attribute.Int64("new_balance", deduction.NewBalance))
	if g.metrics != nil {
		g.metrics.CentsDeductedTotal.WithLabelValues(toolID).Add(float64(deduction.CentsDeducted))
	}

	before := *profile
	before.BalanceCents = deduction.PreviousBalance()
	admission.RechargeDispatched = g.dispatchRecharge(ctx, &before, deduction.NewBalance)
	g.event(span, StageRechargeChecked, attribute.Bool("triggered", admission.RechargeDispatched))

	log.WithFields(map[string]interface{}{
		"cents_deducted": deduction.CentsDeducted,
		"new_balance":    deduction.NewBalance,
		"tier":           string(tier),
	}).Debug("Call admitted")
	return admission, nil
}

func (g *Gate) admitSandbox(ctx context.Context, span trace.Span, log *observability.Logger, identity *auth.Identity) (*Admission, *apierr.Error) {
	rate, apiErr := g.checkRate(ctx, identity.KeyID, ratelimit.TierDemo)
	if apiErr != nil {
		return nil, g.deny(ctx, span, log, StageSandboxAdmit, apiErr)
	}
	g.event(span, StageSandboxAdmit, attribute.Int("remaining", rate.Remaining))

	return &Admission{
		Identity:  identity,
		Tier:      ratelimit.TierDemo,
		RateLimit: rate,
	}, nil
}

func (g *Gate) resolve(ctx context.Context, header string) (*auth.Identity, bool) {
	defer g.observe(StageCredentialResolved, time.Now())
	ctx, cancel := context.WithTimeout(ctx, g.cfg.StoreTimeout)
	defer cancel()
	return g.resolver.Resolve(ctx, header)
}

func (g *Gate) loadProfile(ctx context.Context, userID string) (*billing.BillingProfile, *apierr.Error) {
	defer g.observe(StageProfileLoaded, time.Now())
	ctx, cancel := context.WithTimeout(ctx, g.cfg.StoreTimeout)
	defer cancel()

	profile, err := g.profiles.GetProfile(ctx, userID)
	if errors.Is(err, billing.ErrProfileNotFound) {
		return nil, apierr.Unauthorized("No billing profile for this API key")
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return profile, nil
}

func (g *Gate) checkRate(ctx context.Context, keyID string, tier ratelimit.Tier) (ratelimit.Result, *apierr.Error) {
	defer g.observe(StageRateChecked, time.Now())
	ctx, cancel := context.WithTimeout(ctx, g.cfg.StoreTimeout)
	defer cancel()

	rate, err := g.limiter.Check(ctx, keyID, tier)
	if err != nil {
		g.countRate(tier, "error")
		return ratelimit.Result{}, apierr.Internal(err)
	}
	if !rate.Allowed {
		g.countRate(tier, "denied")
		return rate, apierr.RateLimited(rate.Message)
	}
	g.countRate(tier, "allowed")
	return rate, nil
}

func (g *Gate) deduct(ctx context.Context, profile *billing.BillingProfile, check billing.BalanceCheck, toolID string) (billing.DeductionResult, *apierr.Error) {
	defer g.observe(StageDeducted, time.Now())
	ctx, cancel := context.WithTimeout(ctx, g.cfg.StoreTimeout)
	defer cancel()

	result := g.ledger.DeductCredits(ctx, profile, check, toolID)
	switch {
	case result.Err == nil:
		return result, nil
	case errors.Is(result.Err, billing.ErrInsufficientBalance):
		return result, apierr.InsufficientBalance("")
	case errors.Is(result.Err, billing.ErrMonthlyLimitExceeded):
		return result, apierr.InsufficientBalance(monthlyLimitMessage)
	default:
		return result, apierr.Internal(result.Err)
	}
}

// dispatchRecharge hands a crossing to the runner. The response never
// waits for the charge.
func (g *Gate) dispatchRecharge(ctx context.Context, profile *billing.BillingProfile, balanceAfter int64) bool {
	if g.recharger == nil || g.runner == nil || !g.recharger.ShouldTrigger(profile, balanceAfter) {
		return false
	}
	g.runner.Go(ctx, "auto-recharge", func(ctx context.Context) error {
		g.recharger.HandleAutoRecharge(ctx, profile, balanceAfter)
		return nil
	})
	return true
}

// deny records a failed stage. Internal errors log at error level with
// their cause; expected denials log at info.
func (g *Gate) deny(ctx context.Context, span trace.Span, log *observability.Logger, stage string, apiErr *apierr.Error) *apierr.Error {
	span.AddEvent(stage+".denied", trace.WithAttributes(attribute.String("code", string(apiErr.Code))))
	if g.metrics != nil {
		g.metrics.DenialsTotal.WithLabelValues(string(apiErr.Code)).Inc()
	}

	log = log.WithFields(map[string]interface{}{"stage": stage, "code": string(apiErr.Code)})
	if apiErr.Code == apierr.CodeInternal {
		span.RecordError(apiErr.Cause)
		span.SetStatus(codes.Error, stage)
		log.WithError(apiErr.Cause).Error("Tool call failed")
	} else {
		log.Info("Tool call denied")
	}
	return apiErr
}

func (g *Gate) event(span trace.Span, stage string, attrs ...attribute.KeyValue) {
	span.AddEvent(stage, trace.WithAttributes(attrs...))
}

func (g *Gate) observe(stage string, start time.Time) {
	if g.metrics != nil {
		g.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

func (g *Gate) countRate(tier ratelimit.Tier, result string) {
	if g.metrics != nil {
		g.metrics.RateLimitChecksTotal.WithLabelValues(string(tier), result).Inc()
	}
}

// WithIdentity stores the admitted identity on ctx for downstream logging
func WithIdentity(ctx context.Context, identity *auth.Identity) context.Context {
	ctx = contextkeys.WithIdentity(ctx, identity)
	if identity.UserID != "" {
		ctx = contextkeys.WithUserID(ctx, identity.UserID)
	}
	return ctx
}
