package billing

// CapGuard enforces the monthly spending cap
type CapGuard struct {
	planCaps map[Plan]int64
}

// NewCapGuard creates a guard with the default cap of each plan in cents
func NewCapGuard(freeCapCents, proCapCents int64) *CapGuard {
	return &CapGuard{planCaps: map[Plan]int64{
		PlanFree: freeCapCents,
		PlanPro:  proCapCents,
	}}
}

// CapFor returns the profile's override if set, otherwise its plan cap.
// Unknown plans get the free cap.
func (g *CapGuard) CapFor(p *BillingProfile) int64 {
	if p.MonthlyLimitCents != nil {
		return *p.MonthlyLimitCents
	}
	if limit, ok := g.planCaps[p.Plan]; ok {
		return limit
	}
	return g.planCaps[PlanFree]
}

// CheckMonthlyLimit denies when spending additionalCents more would pass the cap
func (g *CapGuard) CheckMonthlyLimit(p *BillingProfile, additionalCents int64) CapCheck {
	limit := g.CapFor(p)
	check := CapCheck{
		Allowed:    p.MonthlySpendCents+additionalCents <= limit,
		CapCents:   limit,
		SpendCents: p.MonthlySpendCents,
	}
	if !check.Allowed {
		check.Message = "Monthly spending limit reached"
	}
	return check
}
