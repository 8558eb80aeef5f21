package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a user's holding of one token. A position with zero balance
// does not exist.
type Position struct {
	ID              int64
	UserID          string
	TokenID         int64
	Balance         decimal.Decimal
	AverageBuyPrice decimal.Decimal
	TotalInvested   decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Wallet is a user's cash account.
type Wallet struct {
	ID             int64           `json:"id"`
	UserID         string          `json:"user_id"`
	CashBalance    decimal.Decimal `json:"cash_balance"`
	TotalInvested  decimal.Decimal `json:"total_invested"`
	RealizedProfit decimal.Decimal `json:"realized_profit"`
	TotalFeesPaid  decimal.Decimal `json:"total_fees_paid"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// UserContact is what the notifier needs to reach a user.
type UserContact struct {
	UserID    string
	Email     string
	FirstName string
}
