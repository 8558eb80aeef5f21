package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

// ChangePercent returns (next-prev)/prev*100.
func ChangePercent(prev, next decimal.Decimal) decimal.Decimal {
	return domain.Percent(next.Sub(prev), prev)
}

// Volatility derives the volatility of a single move, capped at
// rules.MaxVolatility.
func Volatility(rules domain.PriceRules, prev, next decimal.Decimal) decimal.Decimal {
	v := ChangePercent(prev, next).Abs()
	if v.GreaterThan(rules.MaxVolatility) {
		return rules.MaxVolatility
	}
	return v
}

// SentimentFor classifies an accumulated 24h change.
func SentimentFor(rules domain.PriceRules, change24h decimal.Decimal) domain.Sentiment {
	switch {
	case change24h.GreaterThan(rules.SentimentThreshold):
		return domain.SentimentBullish
	case change24h.LessThan(rules.SentimentThreshold.Neg()):
		return domain.SentimentBearish
	default:
		return domain.SentimentNeutral
	}
}

// ApplyMove rewrites the derived fields of m after its price moved to next.
// The 24h change accumulates inside the rolling window and restarts once the
// window has elapsed. circulating is the token supply after the move.
func ApplyMove(rules domain.PriceRules, m domain.MarketRecord, circulating, next decimal.Decimal, now time.Time) domain.MarketRecord {
	prev := m.Price
	delta := ChangePercent(prev, next)

	if m.ChangeWindowStart.IsZero() || now.Sub(m.ChangeWindowStart) >= rules.ChangeWindow {
		m.ChangeWindowStart = now
		m.PriceChange24h = decimal.Zero
	}
	m.PriceChange24h = domain.RoundPercent(m.PriceChange24h.Add(delta))
	m.Price = next
	m.Volatility = Volatility(rules, prev, next)
	m.LiquidityPool = domain.RoundMoney(circulating.Mul(next))
	m.Sentiment = SentimentFor(rules, m.PriceChange24h)
	m.UpdatedAt = now
	return m
}
