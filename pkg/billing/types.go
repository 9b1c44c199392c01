package billing

import "errors"

// MillicentsPerCent converts between the pricing unit and the balance unit
const MillicentsPerCent = 1000

var (
	// ErrProfileNotFound is returned when a user has no billing profile
	ErrProfileNotFound = errors.New("billing profile not found")
	// ErrInsufficientBalance is returned when the balance cannot cover a charge
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrMonthlyLimitExceeded is returned when a charge would pass the monthly cap
	ErrMonthlyLimitExceeded = errors.New("monthly spending limit exceeded")
	// ErrConflict is returned when a deduction lost to a concurrent change
	// that neither balance nor cap explains
	ErrConflict = errors.New("billing profile changed concurrently")
	// ErrUnknownTool is returned for tools without a price
	ErrUnknownTool = errors.New("unknown tool")
	// ErrDeductionRejected is returned by ProfileStore.Deduct when the
	// conditional update matched no row
	ErrDeductionRejected = errors.New("deduction rejected")
)

// Plan selects the default monthly cap
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// Valid reports whether p is a known plan
func (p Plan) Valid() bool {
	return p == PlanFree || p == PlanPro
}

// BillingProfile is a snapshot of a user's balance and limits.
// The balance is BalanceCents plus FractionalCredit millicents (0..999).
type BillingProfile struct {
	UserID              string `json:"userId"`
	BalanceCents        int64  `json:"balanceCents"`
	FractionalCredit    int64  `json:"fractionalCredit"`
	Plan                Plan   `json:"plan"`
	MonthlySpendCents   int64  `json:"monthlySpendCents"`
	MonthlyLimitCents   *int64 `json:"monthlyLimitCents,omitempty"`
	StripeCustomerID    string `json:"-"`
	PaymentMethodID     string `json:"-"`
	AutoRechargeEnabled bool   `json:"autoRechargeEnabled"`
}

// IsPaid reports whether the profile holds any balance. It selects the rate
// limit tier only; billing applies to every key-backed caller.
func (p *BillingProfile) IsPaid() bool {
	return p.BalanceCents > 0 || p.FractionalCredit > 0
}

// EffectiveMillicents is the whole balance in millicents
func (p *BillingProfile) EffectiveMillicents() int64 {
	return p.BalanceCents*MillicentsPerCent + p.FractionalCredit
}

// HasPaymentMethod reports whether off-session charges are possible
func (p *BillingProfile) HasPaymentMethod() bool {
	return p.StripeCustomerID != "" && p.PaymentMethodID != ""
}

// applyCharge applies cost millicents to a balance of cents plus frac millicents.
// ok is false when the balance cannot cover the cost; the balance is then
// returned unchanged.
func applyCharge(cents, frac, cost int64) (newCents, newFrac, deducted int64, ok bool) {
	effective := cents*MillicentsPerCent + frac
	if cost < 0 || effective < cost {
		return cents, frac, 0, false
	}
	remaining := effective - cost
	newCents = remaining / MillicentsPerCent
	newFrac = remaining % MillicentsPerCent
	return newCents, newFrac, cents - newCents, true
}

// BalanceCheck is the outcome of Ledger.CheckBalance
type BalanceCheck struct {
	Allowed             bool
	Message             string
	CostMillicents      int64
	CentsDeducted       int64
	NewBalance          int64
	RemainingFractional int64
}

// DeductionResult is the outcome of Ledger.DeductCredits
type DeductionResult struct {
	Success             bool
	NewBalance          int64
	CentsDeducted       int64
	RemainingFractional int64
	Err                 error
}

// PreviousBalance is the whole-cent balance before the deduction
func (r DeductionResult) PreviousBalance() int64 {
	return r.NewBalance + r.CentsDeducted
}

// CapCheck is the outcome of CapGuard.CheckMonthlyLimit
type CapCheck struct {
	Allowed    bool
	Message    string
	CapCents   int64
	SpendCents int64
}

// AutoRechargeEvent is the outcome of Recharger.HandleAutoRecharge
type AutoRechargeEvent struct {
	Triggered  bool
	NewBalance int64
}

// EventKind labels a billing_events row
type EventKind string

const (
	EventCheckout     EventKind = "checkout"
	EventAutoRecharge EventKind = "auto_recharge"
)

// CreditEvent adds funds to a profile exactly once per EventID.
// Empty Stripe fields leave the stored values untouched.
type CreditEvent struct {
	EventID          string
	UserID           string
	Kind             EventKind
	AmountCents      int64
	StripeCustomerID string
	PaymentMethodID  string
}
