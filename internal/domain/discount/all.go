package discount

import "github.com/shopspring/decimal"

// AllStrategy sums every discount's contribution computed independently
// against the original amount (no compounding), then clamps the total to the
// percentage cap and to the amount itself.
type AllStrategy struct {
	cfg StrategyConfig
}

// Apply records every discount with a positive contribution as applied, even
// when the cap reduces the aggregate below the sum of individual
// contributions: the cap is a clamp on the total, not a per-discount cutoff.
func (s *AllStrategy) Apply(amount decimal.Decimal, discounts []Discount) *ApplicationResult {
	if amount.Sign() <= 0 {
		return zeroResult(amount, s.Name())
	}

	total := zero
	applied := make([]Discount, 0, len(discounts))

	for i := range discounts {
		d := &discounts[i]
		if c := contribution(amount, d); c.Sign() > 0 {
			total = total.Add(c)
			applied = append(applied, *d)
		}
	}

	total = decimal.Min(total, s.cfg.capAmount(amount), amount)

	discountAmount := s.cfg.round(total)
	final := s.cfg.round(amount.Sub(discountAmount))

	return &ApplicationResult{
		OriginalAmount: amount,
		DiscountAmount: discountAmount,
		FinalAmount:    final,
		Applied:        applied,
		Metadata: map[string]string{
			"strategy":           s.Name(),
			"max_percentage_cap": s.cfg.MaxPercentageCap.String(),
		},
	}
}

func (s *AllStrategy) Name() string { return StrategyAll }
