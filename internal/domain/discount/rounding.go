package discount

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// RoundingMode selects how monetary values are rounded to the configured
// precision.
type RoundingMode string

const (
	// RoundingUp always rounds away from zero.
	RoundingUp RoundingMode = "up"
	// RoundingDown always truncates toward zero.
	RoundingDown RoundingMode = "down"
	// RoundingHalfUp rounds ties away from zero.
	RoundingHalfUp RoundingMode = "half_up"
	// RoundingHalfDown rounds ties toward zero.
	RoundingHalfDown RoundingMode = "half_down"
	// RoundingHalfEven rounds ties to the nearest even digit.
	RoundingHalfEven RoundingMode = "half_even"
)

// ParseRoundingMode validates a rounding mode name from configuration.
func ParseRoundingMode(s string) (RoundingMode, error) {
	switch m := RoundingMode(s); m {
	case RoundingUp, RoundingDown, RoundingHalfUp, RoundingHalfDown, RoundingHalfEven:
		return m, nil
	default:
		return "", errors.Errorf("unknown rounding mode: %q", s)
	}
}

var half = decimal.New(5, -1)

// Round rounds d to the given number of decimal places using the mode.
// An unrecognized mode falls back to half-up, mirroring the validation done
// at configuration load.
func Round(d decimal.Decimal, places int32, mode RoundingMode) decimal.Decimal {
	switch mode {
	case RoundingUp:
		return d.RoundUp(places)
	case RoundingDown:
		return d.RoundDown(places)
	case RoundingHalfEven:
		return d.RoundBank(places)
	case RoundingHalfDown:
		shifted := d.Shift(places)
		if shifted.Sub(shifted.Truncate(0)).Abs().Equal(half) {
			return shifted.Truncate(0).Shift(-places)
		}
		return d.Round(places)
	default:
		return d.Round(places)
	}
}
