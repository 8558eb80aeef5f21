package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

// Draw holds the uniform variates in [0, 1) consumed by one tick. Walk
// drives the base random walk; Hours drives the extra term added inside
// market hours and is ignored outside them.
type Draw struct {
	Walk  float64
	Hours float64
}

// randomFactor maps u onto 1 + [-bound, +bound].
func randomFactor(u float64, bound decimal.Decimal) decimal.Decimal {
	return one.Add(decimal.NewFromFloat(u).Mul(two).Sub(one).Mul(bound))
}

// NextPrice computes one scheduled tick for a token.
//
// The steps are applied in order: random walk within ±volatility, a second
// random term within ±volatility×MarketHoursMultiplier during market hours,
// effective events, supply skew, price bounds, per-tick delta bound.
func NextPrice(rules domain.PriceRules, tok domain.Token, m domain.MarketRecord, events []domain.MarketEvent, now time.Time, d Draw) decimal.Decimal {
	prev := m.Price

	vol := m.Volatility.Div(hundred)
	p := prev.Mul(randomFactor(d.Walk, vol))
	if rules.InMarketHours(now) {
		p = p.Mul(randomFactor(d.Hours, vol.Mul(rules.MarketHoursMultiplier)))
	}

	for _, e := range events {
		if !e.IsEffective(now) || !e.Affects(tok.Symbol) {
			continue
		}
		switch e.EffectType {
		case domain.EffectBoost:
			p = p.Mul(one.Add(e.Magnitude))
		case domain.EffectDrop:
			p = p.Mul(one.Sub(e.Magnitude))
		}
	}

	skew := one.Add(rules.ReferenceSupplyRatio.Sub(tok.CirculatingRatio()))
	p = p.Mul(skew)

	p = domain.RoundPrice(rules.ClampPrice(p))
	return BoundDelta(rules, prev, p)
}

// BoundDelta limits next to within MaxDailyChangeFraction of prev. Bounds are
// rounded toward prev so the result never exceeds the allowed move.
func BoundDelta(rules domain.PriceRules, prev, next decimal.Decimal) decimal.Decimal {
	maxDelta := prev.Mul(rules.MaxDailyChangeFraction)
	upper := prev.Add(maxDelta).Truncate(domain.PriceScale)
	lower := prev.Sub(maxDelta).RoundCeil(domain.PriceScale)
	if next.GreaterThan(upper) {
		return upper
	}
	if next.LessThan(lower) {
		return lower
	}
	return next
}
