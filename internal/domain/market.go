package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sentiment is the market mood derived from the 24h price change.
type Sentiment string

const (
	SentimentBullish Sentiment = "BULLISH"
	SentimentBearish Sentiment = "BEARISH"
	SentimentNeutral Sentiment = "NEUTRAL"
)

// MarketRecord is the live market state of one token.
type MarketRecord struct {
	TokenID int64
	Price   decimal.Decimal
	// PriceChange24h accumulates signed percentage changes since
	// ChangeWindowStart.
	PriceChange24h    decimal.Decimal
	ChangeWindowStart time.Time
	Volume            decimal.Decimal
	LiquidityPool     decimal.Decimal
	// Volatility is a percentage in [0, 10].
	Volatility decimal.Decimal
	Sentiment  Sentiment
	UpdatedAt  time.Time
}

// MarketQuote joins a token with its market record for read paths (API
// responses, cache entries, bus payloads).
type MarketQuote struct {
	TokenID        int64           `json:"token_id"`
	Symbol         Symbol          `json:"symbol"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	PriceChange24h decimal.Decimal `json:"price_change_24h"`
	Volume         decimal.Decimal `json:"volume"`
	LiquidityPool  decimal.Decimal `json:"liquidity_pool"`
	Volatility     decimal.Decimal `json:"volatility"`
	Sentiment      Sentiment       `json:"sentiment"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewMarketQuote builds a quote from a token and its market record.
func NewMarketQuote(t Token, m MarketRecord) MarketQuote {
	return MarketQuote{
		TokenID:        t.ID,
		Symbol:         t.Symbol,
		Name:           t.Name,
		Price:          m.Price,
		PriceChange24h: m.PriceChange24h,
		Volume:         m.Volume,
		LiquidityPool:  m.LiquidityPool,
		Volatility:     m.Volatility,
		Sentiment:      m.Sentiment,
		UpdatedAt:      m.UpdatedAt,
	}
}

// PriceSource identifies what moved a price.
type PriceSource string

const (
	PriceSourceTick  PriceSource = "tick"
	PriceSourceTrade PriceSource = "trade"
)

// PricePoint is a single observation in the price history.
type PricePoint struct {
	TokenID    int64
	Symbol     Symbol
	Price      decimal.Decimal
	Volatility decimal.Decimal
	Sentiment  Sentiment
	Source     PriceSource
	Time       time.Time
}

// MarketSnapshot is the market-wide view: every price plus trend lists.
type MarketSnapshot struct {
	Prices      map[Symbol]decimal.Decimal `json:"prices"`
	TopGainers  []MarketQuote              `json:"top_gainers"`
	TopLosers   []MarketQuote              `json:"top_losers"`
	MostTraded  []MarketQuote              `json:"most_traded"`
	GeneratedAt time.Time                  `json:"generated_at"`
}
