package billing

import (
	"context"
	"sync"
)

// MemoryProfileStore keeps profiles in process. Its mutex plays the part of
// the Postgres row lock; it serves tests and single-instance dev mode.
type MemoryProfileStore struct {
	mu       sync.Mutex
	profiles map[string]*BillingProfile
	events   map[string]CreditEvent
}

// NewMemoryProfileStore creates an empty store
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{
		profiles: make(map[string]*BillingProfile),
		events:   make(map[string]CreditEvent),
	}
}

// Put inserts or replaces a profile
func (s *MemoryProfileStore) Put(p *BillingProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = cloneProfile(p)
}

func cloneProfile(p *BillingProfile) *BillingProfile {
	clone := *p
	if p.MonthlyLimitCents != nil {
		limit := *p.MonthlyLimitCents
		clone.MonthlyLimitCents = &limit
	}
	return &clone
}

func (s *MemoryProfileStore) GetProfile(_ context.Context, userID string) (*BillingProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return cloneProfile(p), nil
}

func (s *MemoryProfileStore) Reload(ctx context.Context, userID string) (*BillingProfile, error) {
	return s.GetProfile(ctx, userID)
}

func (s *MemoryProfileStore) EnsureProfile(_ context.Context, userID string) (*BillingProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		p = &BillingProfile{UserID: userID, Plan: PlanFree}
		s.profiles[userID] = p
	}
	return cloneProfile(p), nil
}

func (s *MemoryProfileStore) Deduct(_ context.Context, userID string, costMillicents, capCents int64) (DeductionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return DeductionResult{}, ErrDeductionRejected
	}

	cents, frac, deducted, ok := applyCharge(p.BalanceCents, p.FractionalCredit, costMillicents)
	if !ok || p.MonthlySpendCents+deducted > capCents {
		return DeductionResult{}, ErrDeductionRejected
	}

	p.BalanceCents = cents
	p.FractionalCredit = frac
	p.MonthlySpendCents += deducted

	return DeductionResult{
		Success:             true,
		NewBalance:          cents,
		CentsDeducted:       deducted,
		RemainingFractional: frac,
	}, nil
}

func (s *MemoryProfileStore) Credit(_ context.Context, ev CreditEvent) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.events[ev.EventID]; seen {
		return 0, false, nil
	}
	s.events[ev.EventID] = ev

	p, ok := s.profiles[ev.UserID]
	if !ok {
		p = &BillingProfile{UserID: ev.UserID, Plan: PlanFree}
		s.profiles[ev.UserID] = p
	}
	p.BalanceCents += ev.AmountCents
	if p.StripeCustomerID == "" {
		p.StripeCustomerID = ev.StripeCustomerID
	}
	if ev.PaymentMethodID != "" {
		p.PaymentMethodID = ev.PaymentMethodID
	}
	return p.BalanceCents, true, nil
}

func (s *MemoryProfileStore) SetStripeCustomer(_ context.Context, userID, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return ErrProfileNotFound
	}
	p.StripeCustomerID = customerID
	return nil
}

func (s *MemoryProfileStore) UpdateLimits(_ context.Context, userID string, monthlyLimitCents *int64, autoRecharge bool) (*BillingProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	p.MonthlyLimitCents = nil
	if monthlyLimitCents != nil {
		limit := *monthlyLimitCents
		p.MonthlyLimitCents = &limit
	}
	p.AutoRechargeEnabled = autoRecharge
	return cloneProfile(p), nil
}

func (s *MemoryProfileStore) ResetMonthlySpend(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reset int64
	for _, p := range s.profiles {
		if p.MonthlySpendCents != 0 {
			p.MonthlySpendCents = 0
			reset++
		}
	}
	return reset, nil
}
