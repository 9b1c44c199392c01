package billing

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/tollgate/pkg/storage/postgres"
)

// ProfileStore persists billing profiles. Deduct is the only write on the
// request path and must be a single atomic conditional update.
type ProfileStore interface {
	// GetProfile may read from a replica
	GetProfile(ctx context.Context, userID string) (*BillingProfile, error)
	// Reload reads from the primary
	Reload(ctx context.Context, userID string) (*BillingProfile, error)
	// EnsureProfile creates an empty free profile if none exists
	EnsureProfile(ctx context.Context, userID string) (*BillingProfile, error)
	// Deduct charges costMillicents if the balance covers it and the
	// resulting monthly spend stays within capCents. Otherwise it changes
	// nothing and returns ErrDeductionRejected.
	Deduct(ctx context.Context, userID string, costMillicents, capCents int64) (DeductionResult, error)
	// Credit adds funds and records the event. A repeated EventID is a
	// no-op and reports applied=false.
	Credit(ctx context.Context, ev CreditEvent) (newBalance int64, applied bool, err error)
	SetStripeCustomer(ctx context.Context, userID, customerID string) error
	UpdateLimits(ctx context.Context, userID string, monthlyLimitCents *int64, autoRecharge bool) (*BillingProfile, error)
	// ResetMonthlySpend zeroes every profile's monthly spend
	ResetMonthlySpend(ctx context.Context) (int64, error)
}

const profileColumns = `user_id, balance_cents, fractional_credit, plan, monthly_spend_cents,
	monthly_limit_cents, stripe_customer_id, payment_method_id, auto_recharge`

// PostgresProfileStore stores profiles in the billing_profile table
type PostgresProfileStore struct {
	conns *postgres.ConnectionManager
}

// NewPostgresProfileStore creates a profile store
func NewPostgresProfileStore(conns *postgres.ConnectionManager) *PostgresProfileStore {
	return &PostgresProfileStore{conns: conns}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (*BillingProfile, error) {
	p := &BillingProfile{}
	var (
		plan          string
		limit         sql.NullInt64
		customerID    sql.NullString
		paymentMethod sql.NullString
	)
	err := row.Scan(&p.UserID, &p.BalanceCents, &p.FractionalCredit, &plan, &p.MonthlySpendCents,
		&limit, &customerID, &paymentMethod, &p.AutoRechargeEnabled)
	if err == sql.ErrNoRows {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Plan = Plan(plan)
	if limit.Valid {
		p.MonthlyLimitCents = &limit.Int64
	}
	p.StripeCustomerID = customerID.String
	p.PaymentMethodID = paymentMethod.String
	return p, nil
}

func (s *PostgresProfileStore) get(ctx context.Context, db *sql.DB, userID string) (*BillingProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM billing_profile WHERE user_id = $1`

	p, err := scanProfile(db.QueryRowContext(ctx, query, userID))
	if err == ErrProfileNotFound {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get billing profile: %w", err)
	}
	return p, nil
}

func (s *PostgresProfileStore) GetProfile(ctx context.Context, userID string) (*BillingProfile, error) {
	return s.get(ctx, s.conns.Replica(), userID)
}

func (s *PostgresProfileStore) Reload(ctx context.Context, userID string) (*BillingProfile, error) {
	return s.get(ctx, s.conns.Primary(), userID)
}

func (s *PostgresProfileStore) EnsureProfile(ctx context.Context, userID string) (*BillingProfile, error) {
	query := `
		INSERT INTO billing_profile (user_id, plan)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := s.conns.Primary().ExecContext(ctx, query, userID, string(PlanFree)); err != nil {
		return nil, fmt.Errorf("failed to ensure billing profile: %w", err)
	}
	return s.Reload(ctx, userID)
}

// Deduct locks the row, then updates it only if the balance and cap
// conditions still hold. Concurrent deductions serialize on the row lock and
// each re-checks the conditions against the committed state.
func (s *PostgresProfileStore) Deduct(ctx context.Context, userID string, costMillicents, capCents int64) (DeductionResult, error) {
	query := `
		WITH prev AS (
			SELECT user_id, balance_cents
			FROM billing_profile
			WHERE user_id = $1
			FOR UPDATE
		)
		UPDATE billing_profile AS b SET
			balance_cents = (b.balance_cents * 1000 + b.fractional_credit - $2) / 1000,
			fractional_credit = (b.balance_cents * 1000 + b.fractional_credit - $2) % 1000,
			monthly_spend_cents = b.monthly_spend_cents + b.balance_cents - (b.balance_cents * 1000 + b.fractional_credit - $2) / 1000,
			updated_at = NOW()
		FROM prev
		WHERE b.user_id = prev.user_id
			AND b.balance_cents * 1000 + b.fractional_credit >= $2
			AND b.monthly_spend_cents + b.balance_cents - (b.balance_cents * 1000 + b.fractional_credit - $2) / 1000 <= $3
		RETURNING prev.balance_cents, b.balance_cents, b.fractional_credit
	`

	var previous int64
	result := DeductionResult{Success: true}
	err := s.conns.Primary().QueryRowContext(ctx, query, userID, costMillicents, capCents).
		Scan(&previous, &result.NewBalance, &result.RemainingFractional)
	if err == sql.ErrNoRows {
		return DeductionResult{}, ErrDeductionRejected
	}
	if err != nil {
		return DeductionResult{}, fmt.Errorf("failed to deduct credits: %w", err)
	}

	result.CentsDeducted = previous - result.NewBalance
	return result, nil
}

// Credit inserts the event and updates the balance in one transaction. The
// billing_events primary key makes replays no-ops.
func (s *PostgresProfileStore) Credit(ctx context.Context, ev CreditEvent) (int64, bool, error) {
	tx, err := s.conns.Primary().BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO billing_events (event_id, user_id, kind, amount_cents)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING
	`, ev.EventID, ev.UserID, string(ev.Kind), ev.AmountCents)
	if err != nil {
		return 0, false, fmt.Errorf("failed to record billing event: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return 0, false, err
	}

	var balance int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO billing_profile (user_id, balance_cents, plan, stripe_customer_id, payment_method_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
		ON CONFLICT (user_id) DO UPDATE SET
			balance_cents = billing_profile.balance_cents + EXCLUDED.balance_cents,
			stripe_customer_id = COALESCE(billing_profile.stripe_customer_id, EXCLUDED.stripe_customer_id),
			payment_method_id = COALESCE(EXCLUDED.payment_method_id, billing_profile.payment_method_id),
			updated_at = NOW()
		RETURNING balance_cents
	`, ev.UserID, ev.AmountCents, string(PlanFree), ev.StripeCustomerID, ev.PaymentMethodID).Scan(&balance)
	if err != nil {
		return 0, false, fmt.Errorf("failed to credit balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit credit: %w", err)
	}
	return balance, true, nil
}

func (s *PostgresProfileStore) SetStripeCustomer(ctx context.Context, userID, customerID string) error {
	query := `UPDATE billing_profile SET stripe_customer_id = $1, updated_at = NOW() WHERE user_id = $2`

	res, err := s.conns.Primary().ExecContext(ctx, query, customerID, userID)
	if err != nil {
		return fmt.Errorf("failed to set stripe customer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (s *PostgresProfileStore) UpdateLimits(ctx context.Context, userID string, monthlyLimitCents *int64, autoRecharge bool) (*BillingProfile, error) {
	query := `
		UPDATE billing_profile
		SET monthly_limit_cents = $1, auto_recharge = $2, updated_at = NOW()
		WHERE user_id = $3
		RETURNING ` + profileColumns

	var limit sql.NullInt64
	if monthlyLimitCents != nil {
		limit = sql.NullInt64{Int64: *monthlyLimitCents, Valid: true}
	}

	p, err := scanProfile(s.conns.Primary().QueryRowContext(ctx, query, limit, autoRecharge, userID))
	if err == ErrProfileNotFound {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update limits: %w", err)
	}
	return p, nil
}

func (s *PostgresProfileStore) ResetMonthlySpend(ctx context.Context) (int64, error) {
	query := `UPDATE billing_profile SET monthly_spend_cents = 0, updated_at = NOW() WHERE monthly_spend_cents <> 0`

	res, err := s.conns.Primary().ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to reset monthly spend: %w", err)
	}
	return res.RowsAffected()
}
