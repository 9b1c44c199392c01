package billing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/platinummonkey/tollgate/pkg/observability"
	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/webhook"
)

// metadataUserID links Stripe objects back to a billing profile
const metadataUserID = "user_id"

// CheckoutRequest asks for a hosted top-up page
type CheckoutRequest struct {
	UserID      string
	CustomerID  string
	AmountCents int64
}

// CheckoutSession is a created hosted checkout page
type CheckoutSession struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

// TopUpRequest is an off-session charge against a saved payment method
type TopUpRequest struct {
	UserID          string
	CustomerID      string
	PaymentMethodID string
	AmountCents     int64
	IdempotencyKey  string
}

// Charge is a settled payment
type Charge struct {
	ID          string
	AmountCents int64
}

// CompletedCheckout is the billing-relevant part of checkout.session.completed
type CompletedCheckout struct {
	SessionID       string
	UserID          string
	CustomerID      string
	PaymentIntentID string
	AmountCents     int64
	Paid            bool
}

// WebhookEvent is a verified provider event
type WebhookEvent struct {
	ID       string
	Type     string
	Checkout *CompletedCheckout
}

// EventCheckoutCompleted is the only event type that moves money
const EventCheckoutCompleted = "checkout.session.completed"

// PaymentProvider is the payment processor behind top-ups
type PaymentProvider interface {
	CreateCustomer(ctx context.Context, userID string) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	ChargeTopUp(ctx context.Context, req TopUpRequest) (*Charge, error)
	PaymentMethodForIntent(ctx context.Context, paymentIntentID string) (string, error)
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// StripeConfig configures StripeProvider
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	Currency      string
	Timeout       time.Duration
}

// StripeProvider implements PaymentProvider with stripe-go
type StripeProvider struct {
	cfg    StripeConfig
	logger *observability.Logger
}

// NewStripeProvider configures the stripe-go globals and returns a provider
func NewStripeProvider(cfg StripeConfig, logger *observability.Logger) *StripeProvider {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cfg.Currency == "" {
		cfg.Currency = string(stripe.CurrencyUSD)
	}

	stripe.Key = cfg.SecretKey
	if cfg.Timeout > 0 {
		stripe.SetHTTPClient(&http.Client{Timeout: cfg.Timeout})
	}

	return &StripeProvider{cfg: cfg, logger: logger}
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, userID string) (string, error) {
	cust, err := customer.New(&stripe.CustomerParams{
		Metadata: map[string]string{metadataUserID: userID},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create Stripe customer: %w", err)
	}

	p.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"customer_id": cust.ID,
		"user_id":     userID,
	}).Info("Created Stripe customer")
	return cust.ID, nil
}

// CreateCheckoutSession creates a one-off payment that also saves the card
// for off-session auto-recharge.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	metadata := map[string]string{metadataUserID: req.UserID}

	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(req.CustomerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(p.cfg.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Tollgate credits"),
					},
					UnitAmount: stripe.Int64(req.AmountCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			SetupFutureUsage: stripe.String(string(stripe.PaymentIntentSetupFutureUsageOffSession)),
			Metadata:         metadata,
		},
		SuccessURL: stripe.String(p.cfg.SuccessURL),
		CancelURL:  stripe.String(p.cfg.CancelURL),
		Metadata:   metadata,
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create Stripe checkout session: %w", err)
	}

	p.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"session_id":   sess.ID,
		"user_id":      req.UserID,
		"amount_cents": req.AmountCents,
	}).Info("Created Stripe checkout session")

	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// ChargeTopUp confirms an off-session PaymentIntent. Anything short of
// succeeded is an error; nothing is credited for pending intents.
func (p *StripeProvider) ChargeTopUp(ctx context.Context, req TopUpRequest) (*Charge, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(p.cfg.Currency),
		Customer:      stripe.String(req.CustomerID),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
		Metadata: map[string]string{
			metadataUserID: req.UserID,
			"purpose":      string(EventAutoRecharge),
		},
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to charge top-up: %w", err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, fmt.Errorf("top-up payment %s not settled: %s", pi.ID, pi.Status)
	}
	return &Charge{ID: pi.ID, AmountCents: pi.Amount}, nil
}

func (p *StripeProvider) PaymentMethodForIntent(ctx context.Context, paymentIntentID string) (string, error) {
	pi, err := paymentintent.Get(paymentIntentID, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get payment intent: %w", err)
	}
	if pi.PaymentMethod == nil {
		return "", nil
	}
	return pi.PaymentMethod.ID, nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if out.Type != EventCheckoutCompleted {
		return out, nil
	}

	var sess stripe.CheckoutSession
	if err := sess.UnmarshalJSON(event.Data.Raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}

	checkout := &CompletedCheckout{
		SessionID:   sess.ID,
		UserID:      sess.Metadata[metadataUserID],
		AmountCents: sess.AmountTotal,
		Paid:        sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}
	if sess.Customer != nil {
		checkout.CustomerID = sess.Customer.ID
	}
	if sess.PaymentIntent != nil {
		checkout.PaymentIntentID = sess.PaymentIntent.ID
	}
	out.Checkout = checkout
	return out, nil
}
