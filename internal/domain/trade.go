package domain

import "github.com/shopspring/decimal"

// TradeRequest is a user's order to buy or sell at a quoted price.
type TradeRequest struct {
	TokenID  int64           `json:"token_id"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// TradeResult summarises an executed trade.
type TradeResult struct {
	TransactionID   int64           `json:"transaction_id"`
	Reference       string          `json:"reference"`
	Type            TransactionType `json:"type"`
	TokenID         int64           `json:"token_id"`
	Symbol          Symbol          `json:"symbol"`
	Quantity        decimal.Decimal `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	Total           decimal.Decimal `json:"total"`
	Fee             decimal.Decimal `json:"fee"`
	ProfitLoss      decimal.Decimal `json:"profit_loss"`
	Net             decimal.Decimal `json:"net"`
	NewPrice        decimal.Decimal `json:"new_price"`
	PositionBalance decimal.Decimal `json:"position_balance"`
	CashBalance     decimal.Decimal `json:"cash_balance"`
}

// PositionView is one line of a portfolio.
type PositionView struct {
	TokenID          int64           `json:"token_id"`
	Symbol           Symbol          `json:"symbol"`
	Name             string          `json:"name"`
	Quantity         decimal.Decimal `json:"quantity"`
	AverageBuyPrice  decimal.Decimal `json:"average_buy_price"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	CurrentValue     decimal.Decimal `json:"current_value"`
	TotalInvested    decimal.Decimal `json:"total_invested"`
	UnrealizedProfit decimal.Decimal `json:"unrealized_profit"`
	ProfitPercentage decimal.Decimal `json:"profit_percentage"`
	PriceChange24h   decimal.Decimal `json:"price_change_24h"`
	MarketSentiment  Sentiment       `json:"market_sentiment"`
}

// Portfolio is the valued view of all of a user's holdings.
type Portfolio struct {
	UserID            string          `json:"user_id"`
	Positions         []PositionView  `json:"positions"`
	CashBalance       decimal.Decimal `json:"cash_balance"`
	TotalInvested     decimal.Decimal `json:"total_invested"`
	TotalCurrentValue decimal.Decimal `json:"total_current_value"`
	UnrealizedProfit  decimal.Decimal `json:"unrealized_profit"`
	RealizedProfit    decimal.Decimal `json:"realized_profit"`
	TotalFeesPaid     decimal.Decimal `json:"total_fees_paid"`
	TotalROI          decimal.Decimal `json:"total_roi"`
	BestPerformer     *PositionView   `json:"best_performer,omitempty"`
	WorstPerformer    *PositionView   `json:"worst_performer,omitempty"`
}

// TradeHistory is the recent trades of a user plus aggregates.
type TradeHistory struct {
	Trades  []TradeRecord       `json:"trades"`
	Summary TradeHistorySummary `json:"summary"`
}

// TradeHistorySummary aggregates a TradeHistory.
type TradeHistorySummary struct {
	TotalVolume      decimal.Decimal `json:"total_volume"`
	TotalFees        decimal.Decimal `json:"total_fees"`
	TotalTrades      int             `json:"total_trades"`
	ProfitableTrades int             `json:"profitable_trades"`
}
