package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/tollgate/pkg/observability"
)

// Ledger checks and commits per-call charges against a profile
type Ledger struct {
	store  ProfileStore
	prices *PriceTable
	caps   *CapGuard
	logger *observability.Logger
}

// NewLedger creates a ledger
func NewLedger(store ProfileStore, prices *PriceTable, caps *CapGuard, logger *observability.Logger) *Ledger {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Ledger{store: store, prices: prices, caps: caps, logger: logger}
}

// CheckBalance computes what charging toolID would do to the profile. It
// does not write.
func (l *Ledger) CheckBalance(profile *BillingProfile, toolID string) (BalanceCheck, error) {
	cost, ok := l.prices.Cost(toolID)
	if !ok {
		return BalanceCheck{}, fmt.Errorf("%w: %s", ErrUnknownTool, toolID)
	}

	cents, frac, deducted, ok := applyCharge(profile.BalanceCents, profile.FractionalCredit, cost)
	if !ok {
		return BalanceCheck{
			Allowed:        false,
			Message:        "Insufficient balance",
			CostMillicents: cost,
			NewBalance:     profile.BalanceCents,
		}, nil
	}

	return BalanceCheck{
		Allowed:             true,
		CostMillicents:      cost,
		CentsDeducted:       deducted,
		NewBalance:          cents,
		RemainingFractional: frac,
	}, nil
}

// DeductCredits commits a passed check. The write is attempted once; if it
// is rejected the profile is re-read to report why.
func (l *Ledger) DeductCredits(ctx context.Context, profile *BillingProfile, check BalanceCheck, toolID string) DeductionResult {
	result, err := l.store.Deduct(ctx, profile.UserID, check.CostMillicents, l.caps.CapFor(profile))
	if err == nil {
		return result
	}
	if !errors.Is(err, ErrDeductionRejected) {
		return DeductionResult{Err: err}
	}

	current, rerr := l.store.Reload(ctx, profile.UserID)
	if rerr != nil {
		return DeductionResult{Err: fmt.Errorf("failed to classify rejected deduction: %w", rerr)}
	}

	_, _, deducted, ok := applyCharge(current.BalanceCents, current.FractionalCredit, check.CostMillicents)
	switch {
	case !ok:
		return DeductionResult{Err: ErrInsufficientBalance}
	case !l.caps.CheckMonthlyLimit(current, deducted).Allowed:
		return DeductionResult{Err: ErrMonthlyLimitExceeded}
	default:
		l.logger.WithContext(ctx).WithFields(map[string]interface{}{
			"user_id": profile.UserID,
			"tool":    toolID,
		}).Warn("Deduction rejected without a balance or cap reason")
		return DeductionResult{Err: ErrConflict}
	}
}
