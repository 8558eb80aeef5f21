package domain

import "github.com/shopspring/decimal"

// Fixed scales for each kind of quantity. Every value is rounded half-to-even
// at its scale before it is persisted or compared.
const (
	PriceScale    int32 = 8
	QuantityScale int32 = 8
	MoneyScale    int32 = 2
	PercentScale  int32 = 5
)

var (
	hundred = decimal.NewFromInt(100)
	// ReconcileTolerance is the largest drift between a wallet balance and
	// its ledger that is still considered consistent.
	ReconcileTolerance = decimal.New(1, -2)
)

// RoundPrice rounds a price or per-unit cost.
func RoundPrice(d decimal.Decimal) decimal.Decimal { return d.RoundBank(PriceScale) }

// RoundQuantity rounds a token quantity.
func RoundQuantity(d decimal.Decimal) decimal.Decimal { return d.RoundBank(QuantityScale) }

// RoundMoney rounds a cash amount.
func RoundMoney(d decimal.Decimal) decimal.Decimal { return d.RoundBank(MoneyScale) }

// RoundPercent rounds a percentage.
func RoundPercent(d decimal.Decimal) decimal.Decimal { return d.RoundBank(PercentScale) }

// Percent returns part/whole*100, or zero when whole is zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return RoundPercent(part.Div(whole).Mul(hundred))
}

// HasScaleAtMost reports whether d can be represented with at most scale
// fractional digits.
func HasScaleAtMost(d decimal.Decimal, scale int32) bool {
	return d.Equal(d.Truncate(scale))
}
