// Package pricing implements the price model: trade impact, the scheduled
// random walk and the statistics derived from price moves. Everything here is
// pure; callers supply state, time and randomness.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

var (
	one     = decimal.NewFromInt(1)
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// ImpactPercent returns the percentage by which a trade of qty moves the
// price. It is computed on the pre-trade circulating supply. A token with no
// circulating supply takes the maximum impact.
func ImpactPercent(rules domain.PriceRules, tok domain.Token, qty decimal.Decimal) decimal.Decimal {
	sizeFactor := one
	if tok.CirculatingSupply.IsPositive() {
		sizeFactor = qty.Div(tok.CirculatingSupply)
	}
	base := one.Sub(tok.CirculatingRatio()).Mul(rules.ImpactConstant)
	scaled := base.Mul(sizeFactor).Mul(hundred)
	if scaled.GreaterThan(rules.MaxImpactPercent) {
		scaled = rules.MaxImpactPercent
	}
	if scaled.IsNegative() {
		return decimal.Zero
	}
	return scaled
}

// Impact returns the market price after a trade. Buys push the price up,
// sells push it down, and the result stays within the price bounds.
func Impact(rules domain.PriceRules, tok domain.Token, price decimal.Decimal, isBuy bool, qty decimal.Decimal) decimal.Decimal {
	pct := ImpactPercent(rules, tok, qty).Div(hundred)
	factor := one.Add(pct)
	if !isBuy {
		factor = one.Sub(pct)
	}
	return domain.RoundPrice(rules.ClampPrice(price.Mul(factor)))
}
