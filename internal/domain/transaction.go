package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TxBuy     TransactionType = "BUY"
	TxSell    TransactionType = "SELL"
	TxDeposit TransactionType = "DEPOSIT"
)

// Valid reports whether t is a known type.
func (t TransactionType) Valid() bool {
	switch t {
	case TxBuy, TxSell, TxDeposit:
		return true
	}
	return false
}

// TransactionStatus is the settlement state of a ledger entry.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "PENDING"
	TxCompleted TransactionStatus = "COMPLETED"
	TxFailed    TransactionStatus = "FAILED"
)

// Transaction is an append-only ledger entry. Amount is the signed cash
// delta applied to the wallet: negative for buys, positive for sells and
// deposits.
type Transaction struct {
	ID          int64             `json:"id"`
	Reference   string            `json:"reference"`
	WalletID    int64             `json:"wallet_id"`
	UserID      string            `json:"user_id"`
	Type        TransactionType   `json:"type"`
	TokenID     *int64            `json:"token_id,omitempty"`
	Quantity    decimal.Decimal   `json:"quantity"`
	Price       decimal.Decimal   `json:"price"`
	Fee         decimal.Decimal   `json:"fee"`
	ProfitLoss  decimal.Decimal   `json:"profit_loss"`
	Amount      decimal.Decimal   `json:"amount"`
	Status      TransactionStatus `json:"status"`
	Description string            `json:"description"`
	CreatedAt   time.Time         `json:"created_at"`
}

// TransactionFilter narrows a transaction listing.
type TransactionFilter struct {
	Types []TransactionType
	ListOpts
}

// TradeRecord is a BUY or SELL transaction joined with its token.
type TradeRecord struct {
	Transaction
	Symbol    Symbol `json:"symbol"`
	TokenName string `json:"token_name"`
}
