package discount

import "github.com/shopspring/decimal"

// ApplicationResult holds the outcome of running a stacking strategy over an
// amount. It is a transient value: nothing in it is persisted directly.
type ApplicationResult struct {
	OriginalAmount decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	// Applied lists the discounts that contributed, in application order.
	Applied  []Discount
	Metadata map[string]string
}

// Percentage returns the total discount as a percentage of the original
// amount, or zero when the original amount is not positive.
func (r *ApplicationResult) Percentage() decimal.Decimal {
	if r.OriginalAmount.Sign() <= 0 {
		return decimal.Zero
	}
	return r.DiscountAmount.Div(r.OriginalAmount).Mul(hundred)
}

// HasDiscounts reports whether any discount contributed to the result.
func (r *ApplicationResult) HasDiscounts() bool {
	return len(r.Applied) > 0
}
