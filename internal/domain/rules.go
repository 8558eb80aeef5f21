package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceRules holds the tunable constants of the price model and the trade
// executor.
type PriceRules struct {
	MinPrice               decimal.Decimal
	MaxPrice               decimal.Decimal
	MaxDailyChangeFraction decimal.Decimal
	ReferenceSupplyRatio   decimal.Decimal
	ImpactConstant         decimal.Decimal
	MaxImpactPercent       decimal.Decimal
	MaxVolatility          decimal.Decimal
	SentimentThreshold     decimal.Decimal
	SlippageTolerance      decimal.Decimal
	ProfitFeeRate          decimal.Decimal
	ProfitNotifyThreshold  decimal.Decimal

	MarketOpenHour        int
	MarketCloseHour       int
	MarketHoursMultiplier decimal.Decimal
	Location              *time.Location

	ChangeWindow time.Duration
}

// DefaultPriceRules returns the production constants.
func DefaultPriceRules() PriceRules {
	loc, err := time.LoadLocation("Africa/Lagos")
	if err != nil {
		loc = time.FixedZone("WAT", 60*60)
	}
	return PriceRules{
		MinPrice:               decimal.NewFromInt(10),
		MaxPrice:               decimal.NewFromInt(1000),
		MaxDailyChangeFraction: decimal.RequireFromString("0.25"),
		ReferenceSupplyRatio:   decimal.RequireFromString("0.1"),
		ImpactConstant:         decimal.NewFromInt(5),
		MaxImpactPercent:       decimal.NewFromInt(5),
		MaxVolatility:          decimal.NewFromInt(10),
		SentimentThreshold:     decimal.RequireFromString("0.5"),
		SlippageTolerance:      decimal.RequireFromString("0.02"),
		ProfitFeeRate:          decimal.RequireFromString("0.10"),
		ProfitNotifyThreshold:  decimal.NewFromInt(1000),
		MarketOpenHour:         9,
		MarketCloseHour:        17,
		MarketHoursMultiplier:  decimal.RequireFromString("1.5"),
		Location:               loc,
		ChangeWindow:           24 * time.Hour,
	}
}

// InMarketHours reports whether t falls inside trading hours.
func (r PriceRules) InMarketHours(t time.Time) bool {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	h := t.In(loc).Hour()
	return h >= r.MarketOpenHour && h < r.MarketCloseHour
}

// ClampPrice bounds p to [MinPrice, MaxPrice].
func (r PriceRules) ClampPrice(p decimal.Decimal) decimal.Decimal {
	if p.LessThan(r.MinPrice) {
		return r.MinPrice
	}
	if p.GreaterThan(r.MaxPrice) {
		return r.MaxPrice
	}
	return p
}
