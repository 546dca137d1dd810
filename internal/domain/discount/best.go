package discount

import "github.com/shopspring/decimal"

// BestStrategy applies only the single discount with the greatest raw
// contribution against the original amount. Useful when stacking should be
// prevented while still giving the user the best deal.
type BestStrategy struct {
	cfg StrategyConfig
}

// Apply evaluates every discount against the original, unreduced amount and
// keeps the strictly greatest contribution. Ties go to the first discount
// encountered, which under the resolver's ordering is the one with the
// highest priority. No positive contribution yields a passthrough result.
func (s *BestStrategy) Apply(amount decimal.Decimal, discounts []Discount) *ApplicationResult {
	if amount.Sign() <= 0 || len(discounts) == 0 {
		return zeroResult(amount, s.Name())
	}

	var best *Discount
	bestAmount := zero

	for i := range discounts {
		d := &discounts[i]
		if c := contribution(amount, d); c.GreaterThan(bestAmount) {
			bestAmount = c
			best = d
		}
	}

	if best == nil {
		return zeroResult(amount, s.Name())
	}

	total := s.cfg.round(bestAmount)
	final := s.cfg.round(amount.Sub(total))

	return &ApplicationResult{
		OriginalAmount: amount,
		DiscountAmount: total,
		FinalAmount:    final,
		Applied:        []Discount{*best},
		Metadata:       map[string]string{"strategy": s.Name()},
	}
}

func (s *BestStrategy) Name() string { return StrategyBest }
