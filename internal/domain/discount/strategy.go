package discount

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// ErrUnknownStrategy is returned at startup for an unrecognized stacking
// strategy name.
var ErrUnknownStrategy = errors.New("unknown stacking strategy")

// Stacking strategy names accepted in configuration.
const (
	StrategySequential = "sequential"
	StrategyBest       = "best"
	StrategyAll        = "all"
)

// Strategy combines a set of eligible discounts with an amount. Strategies
// are pure: they never touch stores or counters.
type Strategy interface {
	// Apply computes the result of applying the discounts to the amount.
	// A non-positive amount short-circuits to a zero-discount passthrough.
	Apply(amount decimal.Decimal, discounts []Discount) *ApplicationResult
	// Name returns the configuration name of the strategy.
	Name() string
}

// StrategyConfig carries the shared knobs every stacking strategy honors.
type StrategyConfig struct {
	// MaxPercentageCap bounds the total discount as a percentage of the
	// original amount (0-100).
	MaxPercentageCap decimal.Decimal
	RoundingMode     RoundingMode
	// Precision is the number of decimal places monetary values are
	// rounded to.
	Precision int32
}

// DefaultStrategyConfig returns the standard knobs: no effective cap,
// half-up rounding, two decimal places.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		MaxPercentageCap: hundred,
		RoundingMode:     RoundingHalfUp,
		Precision:        2,
	}
}

// NewStrategy constructs the stacking strategy for the given configuration
// name. Unknown names fail with ErrUnknownStrategy; callers are expected to
// reject them at startup, before serving any request.
func NewStrategy(name string, cfg StrategyConfig) (Strategy, error) {
	switch name {
	case StrategySequential:
		return &SequentialStrategy{cfg: cfg}, nil
	case StrategyBest:
		return &BestStrategy{cfg: cfg}, nil
	case StrategyAll:
		return &AllStrategy{cfg: cfg}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownStrategy, "%q", name)
	}
}

func (c StrategyConfig) round(d decimal.Decimal) decimal.Decimal {
	return Round(d, c.Precision, c.RoundingMode)
}

// capAmount returns the maximum total discount allowed against the original
// amount.
func (c StrategyConfig) capAmount(original decimal.Decimal) decimal.Decimal {
	return original.Mul(c.MaxPercentageCap).Div(hundred)
}

// zeroResult builds a passthrough result carrying only the strategy name.
func zeroResult(amount decimal.Decimal, strategy string) *ApplicationResult {
	return &ApplicationResult{
		OriginalAmount: amount,
		DiscountAmount: zero,
		FinalAmount:    amount,
		Metadata:       map[string]string{"strategy": strategy},
	}
}

// contribution computes a single discount's raw reduction of base. A fixed
// discount never exceeds the base it is applied against.
func contribution(base decimal.Decimal, d *Discount) decimal.Decimal {
	switch d.Type {
	case TypePercentage:
		return base.Mul(d.Value).Div(hundred)
	case TypeFixed:
		return decimal.Min(d.Value, base)
	default:
		return zero
	}
}
