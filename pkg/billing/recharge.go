package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/google/uuid"
	"github.com/platinummonkey/tollgate/pkg/observability"
)

// RechargeConfig configures the auto-recharge trigger
type RechargeConfig struct {
	ThresholdCents int64
	TopUpCents     int64
}

// BreakerConfig configures the circuit breaker in front of the payment provider
type BreakerConfig struct {
	Failures  uint
	Window    uint
	OpenDelay time.Duration
}

// NewBreaker trips after Failures of the last Window charges fail and stays
// open for OpenDelay.
func NewBreaker(cfg BreakerConfig, logger *observability.Logger) circuitbreaker.CircuitBreaker[any] {
	if cfg.Window == 0 {
		cfg.Window = 10
	}
	if cfg.Failures == 0 || cfg.Failures > cfg.Window {
		cfg.Failures = cfg.Window
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return circuitbreaker.NewBuilder[any]().
		WithFailureThresholdRatio(cfg.Failures, cfg.Window).
		WithDelay(cfg.OpenDelay).
		WithSuccessThreshold(1).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			logger.WithFields(map[string]interface{}{
				"circuit_breaker": "stripe-recharge",
				"from_state":      fmt.Sprint(event.OldState),
				"to_state":        fmt.Sprint(event.NewState),
			}).Warn("circuit breaker state change")
		}).
		Build()
}

// Recharger tops up a balance when a deduction crosses the threshold
type Recharger struct {
	store    ProfileStore
	payments PaymentProvider
	breaker  circuitbreaker.CircuitBreaker[any]
	cfg      RechargeConfig
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewRecharger creates a recharger. metrics may be nil.
func NewRecharger(store ProfileStore, payments PaymentProvider, breaker circuitbreaker.CircuitBreaker[any], cfg RechargeConfig, logger *observability.Logger, metrics *observability.Metrics) *Recharger {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Recharger{
		store:    store,
		payments: payments,
		breaker:  breaker,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// ShouldTrigger reports whether going from profile's balance to balanceAfter
// crosses the threshold on a profile that can be charged off-session.
func (r *Recharger) ShouldTrigger(profile *BillingProfile, balanceAfter int64) bool {
	return profile.BalanceCents > r.cfg.ThresholdCents &&
		balanceAfter <= r.cfg.ThresholdCents &&
		profile.AutoRechargeEnabled &&
		profile.HasPaymentMethod()
}

// idempotencyKey is minted once per crossing and reused by the Stripe
// client's own retries of that charge.
func idempotencyKey() string {
	return "auto-recharge-" + uuid.NewString()
}

// HandleAutoRecharge charges and credits the top-up if the trigger holds.
// Failures are logged and counted; they never undo the deduction.
func (r *Recharger) HandleAutoRecharge(ctx context.Context, profile *BillingProfile, balanceAfter int64) AutoRechargeEvent {
	if !r.ShouldTrigger(profile, balanceAfter) {
		return AutoRechargeEvent{}
	}

	log := r.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"user_id":       profile.UserID,
		"balance_after": balanceAfter,
		"top_up_cents":  r.cfg.TopUpCents,
	})

	key := idempotencyKey()
	charge, err := failsafe.With(r.breaker).Get(func() (any, error) {
		return r.payments.ChargeTopUp(ctx, TopUpRequest{
			UserID:          profile.UserID,
			CustomerID:      profile.StripeCustomerID,
			PaymentMethodID: profile.PaymentMethodID,
			AmountCents:     r.cfg.TopUpCents,
			IdempotencyKey:  key,
		})
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		log.Warn("Auto-recharge skipped, payment circuit open")
		r.count("circuit_open")
		return AutoRechargeEvent{}
	}
	if err != nil {
		log.WithError(err).Error("Auto-recharge charge failed")
		r.count("charge_failed")
		return AutoRechargeEvent{}
	}
	paid := charge.(*Charge)

	balance, applied, err := r.store.Credit(ctx, CreditEvent{
		EventID:     paid.ID,
		UserID:      profile.UserID,
		Kind:        EventAutoRecharge,
		AmountCents: r.cfg.TopUpCents,
	})
	if err != nil {
		log.WithError(err).WithField("payment_intent", paid.ID).Error("Auto-recharge charged but credit failed")
		r.count("credit_failed")
		return AutoRechargeEvent{}
	}
	if !applied {
		log.WithField("payment_intent", paid.ID).Info("Auto-recharge already credited")
		r.count("duplicate")
		return AutoRechargeEvent{}
	}

	log.WithField("new_balance", balance).Info("Auto-recharge completed")
	r.count("success")
	if r.metrics != nil {
		r.metrics.CreditsTotal.WithLabelValues(string(EventAutoRecharge)).Add(float64(r.cfg.TopUpCents))
	}
	return AutoRechargeEvent{Triggered: true, NewBalance: balance}
}

func (r *Recharger) count(result string) {
	if r.metrics != nil {
		r.metrics.RechargeAttemptsTotal.WithLabelValues(result).Inc()
	}
}
