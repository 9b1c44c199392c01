// Package billing meters tool calls against a prepaid balance.
//
// Balances are whole cents plus a fractional credit in millicents; prices are
// millicents (1000 = 1 cent). Charging c millicents against an effective
// balance E leaves floor((E-c)/1000) cents and (E-c)%1000 millicents, so a
// sub-cent price takes a whole cent the first time and the remainder pays for
// later calls.
//
// A metered call runs:
//
//	check, err := ledger.CheckBalance(profile, toolID)
//	capCheck := caps.CheckMonthlyLimit(profile, check.CentsDeducted)
//	result := ledger.DeductCredits(ctx, profile, check, toolID)
//	recharger.HandleAutoRecharge(ctx, profile, result.NewBalance)
//
// DeductCredits is a single conditional update that re-checks balance and
// cap under the row lock, so concurrent calls cannot overdraw.
//
// Top-ups arrive through Stripe Checkout (webhook) or off-session auto-recharge;
// both credit through ProfileStore.Credit, which is idempotent per event id.
package billing
