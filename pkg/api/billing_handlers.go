package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/platinummonkey/tollgate/pkg/apierr"
	"github.com/platinummonkey/tollgate/pkg/billing"
	"github.com/platinummonkey/tollgate/pkg/httputil"
	"github.com/platinummonkey/tollgate/pkg/middleware"
)

// CheckoutRequest asks for a hosted top-up page
type CheckoutRequest struct {
	AmountCents int64 `json:"amountCents"`
}

// createCheckout handles POST /api/billing/checkout
func (s *Server) createCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.ValidateAll(w, r,
		httputil.Between(req.AmountCents, s.cfg.MinTopUpCents, s.cfg.MaxTopUpCents, "amountCents"),
	) {
		return
	}

	ctx := r.Context()
	userID := middleware.GetSession(r).UserID()
	log := s.logger.WithContext(ctx)

	storeCtx, cancel := s.storeContext(r)
	profile, err := s.profiles.EnsureProfile(storeCtx, userID)
	cancel()
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	customerID := profile.StripeCustomerID
	if customerID == "" {
		customerID, err = s.payments.CreateCustomer(ctx, userID)
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}

		storeCtx, cancel := s.storeContext(r)
		err = s.profiles.SetStripeCustomer(storeCtx, userID, customerID)
		cancel()
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
	}

	session, err := s.payments.CreateCheckoutSession(ctx, billing.CheckoutRequest{
		UserID:      userID,
		CustomerID:  customerID,
		AmountCents: req.AmountCents,
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	log.WithFields(map[string]interface{}{
		"session_id":   session.ID,
		"amount_cents": req.AmountCents,
	}).Info("Checkout session created")
	httputil.WriteCreated(w, r, session)
}

// handleWebhook handles POST /api/billing/webhook. Only a paid
// checkout.session.completed moves money; every other verified event is
// acknowledged.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteError(w, r, apierr.Validation("Unreadable webhook body"))
		return
	}

	event, err := s.payments.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Warn("Rejected webhook")
		s.countWebhook("unknown", "rejected")
		httputil.WriteError(w, r, apierr.Validation("Invalid webhook signature"))
		return
	}

	log := s.logger.WithContext(r.Context()).WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"event_type": event.Type,
	})

	checkout := event.Checkout
	if event.Type != billing.EventCheckoutCompleted || checkout == nil {
		s.countWebhook(event.Type, "ignored")
		httputil.WriteSuccess(w, r, map[string]bool{"received": true})
		return
	}
	if !checkout.Paid || checkout.UserID == "" || checkout.AmountCents <= 0 {
		log.WithField("session_id", checkout.SessionID).Info("Checkout completed without a creditable payment")
		s.countWebhook(event.Type, "ignored")
		httputil.WriteSuccess(w, r, map[string]bool{"received": true})
		return
	}

	var paymentMethodID string
	if checkout.PaymentIntentID != "" {
		paymentMethodID, err = s.payments.PaymentMethodForIntent(r.Context(), checkout.PaymentIntentID)
		if err != nil {
			// The credit still applies; auto-recharge waits for the next checkout
			log.WithError(err).Warn("Could not resolve payment method for checkout")
		}
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	balance, applied, err := s.profiles.Credit(ctx, billing.CreditEvent{
		EventID:          checkout.SessionID,
		UserID:           checkout.UserID,
		Kind:             billing.EventCheckout,
		AmountCents:      checkout.AmountCents,
		StripeCustomerID: checkout.CustomerID,
		PaymentMethodID:  paymentMethodID,
	})
	if err != nil {
		s.countWebhook(event.Type, "error")
		httputil.WriteError(w, r, fmt.Errorf("failed to credit checkout %s: %w", checkout.SessionID, err))
		return
	}

	if !applied {
		log.WithField("session_id", checkout.SessionID).Info("Checkout already credited")
		s.countWebhook(event.Type, "duplicate")
	} else {
		log.WithFields(map[string]interface{}{
			"user_id":     checkout.UserID,
			"amount":      checkout.AmountCents,
			"new_balance": balance,
		}).Info("Checkout credited")
		s.countWebhook(event.Type, "credited")
		if s.metrics != nil {
			s.metrics.CreditsTotal.WithLabelValues(string(billing.EventCheckout)).Add(float64(checkout.AmountCents))
		}
	}
	httputil.WriteSuccess(w, r, map[string]bool{"received": true})
}

func (s *Server) countWebhook(eventType, result string) {
	if s.metrics != nil {
		s.metrics.WebhookEventsTotal.WithLabelValues(eventType, result).Inc()
	}
}
