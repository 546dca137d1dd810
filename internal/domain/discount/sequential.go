package discount

import (
	"sort"

	"github.com/shopspring/decimal"
)

// SequentialStrategy applies discounts one after another in priority order
// (higher first), each against the amount remaining after the previous step,
// so percentage discounts compound: 100 with 10% then 20% leaves 72.
type SequentialStrategy struct {
	cfg StrategyConfig
}

// Apply walks the discounts by priority, reducing the running amount at each
// step. Once the cumulative discount reaches the configured percentage cap,
// the running amount is clamped to exactly the capped value and the remaining
// discounts are skipped; the discount that crossed the cap is still recorded
// as applied.
func (s *SequentialStrategy) Apply(amount decimal.Decimal, discounts []Discount) *ApplicationResult {
	if amount.Sign() <= 0 {
		return zeroResult(amount, s.Name())
	}

	ordered := make([]Discount, len(discounts))
	copy(ordered, discounts)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	capAmount := s.cfg.capAmount(amount)
	current := amount
	applied := make([]Discount, 0, len(ordered))

	for i := range ordered {
		d := &ordered[i]

		step := contribution(current, d)
		if d.Type == TypePercentage {
			step = s.cfg.round(step)
		}
		if step.Sign() <= 0 {
			continue
		}

		current = current.Sub(step)
		applied = append(applied, *d)

		if amount.Sub(current).GreaterThanOrEqual(capAmount) {
			current = amount.Sub(capAmount)
			break
		}
	}

	final := s.cfg.round(current)
	total := s.cfg.round(amount.Sub(final))

	return &ApplicationResult{
		OriginalAmount: amount,
		DiscountAmount: total,
		FinalAmount:    final,
		Applied:        applied,
		Metadata: map[string]string{
			"strategy":           s.Name(),
			"max_percentage_cap": s.cfg.MaxPercentageCap.String(),
		},
	}
}

func (s *SequentialStrategy) Name() string { return StrategySequential }
