package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TokenStore reads tokens.
type TokenStore interface {
	GetByID(ctx context.Context, id int64) (Token, error)
	GetBySymbol(ctx context.Context, sym Symbol) (Token, error)
	List(ctx context.Context) ([]Token, error)
}

// MarketStore reads market records.
type MarketStore interface {
	GetByTokenID(ctx context.Context, tokenID int64) (MarketRecord, error)
	List(ctx context.Context) ([]MarketRecord, error)
}

// EventStore persists market events.
type EventStore interface {
	Create(ctx context.Context, e MarketEvent) (MarketEvent, error)
	// ListEffective returns events whose window contains at.
	ListEffective(ctx context.Context, at time.Time) ([]MarketEvent, error)
	// DeactivateExpired clears the active flag of events that ended before
	// at and returns how many rows changed.
	DeactivateExpired(ctx context.Context, at time.Time) (int64, error)
}

// WalletStore reads wallets.
type WalletStore interface {
	GetByUser(ctx context.Context, userID string) (Wallet, error)
	List(ctx context.Context) ([]Wallet, error)
}

// PositionStore reads positions.
type PositionStore interface {
	ListByUser(ctx context.Context, userID string) ([]Position, error)
}

// TransactionStore reads the append-only ledger.
type TransactionStore interface {
	ListByUser(ctx context.Context, userID string, f TransactionFilter) ([]TradeRecord, error)
	// SumAmountByWallet returns the signed sum of completed transaction
	// amounts for a wallet.
	SumAmountByWallet(ctx context.Context, walletID int64) (decimal.Decimal, error)
}

// UserDirectory resolves contact details for notifications.
type UserDirectory interface {
	GetContact(ctx context.Context, userID string) (UserContact, error)
	SaveContact(ctx context.Context, c UserContact) error
}

// PriceHistoryStore keeps a time series of prices.
type PriceHistoryStore interface {
	Append(ctx context.Context, points []PricePoint) error
	List(ctx context.Context, sym Symbol, opts ListOpts) ([]PricePoint, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// UnitOfWork runs fn inside a single atomic transaction. If fn returns an
// error every write made through tx is discarded.
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of reads and writes available inside a unit of work. The
// ForUpdate reads take a row lock that is held until the unit of work ends.
type Tx interface {
	TokenForUpdate(ctx context.Context, id int64) (Token, error)
	MarketForUpdate(ctx context.Context, tokenID int64) (MarketRecord, error)
	WalletForUpdate(ctx context.Context, userID string) (Wallet, error)
	// PositionForUpdate returns ErrNotFound when the user holds none of the
	// token.
	PositionForUpdate(ctx context.Context, userID string, tokenID int64) (Position, error)

	UpdateTokenSupply(ctx context.Context, id int64, circulating decimal.Decimal) error
	UpdateMarket(ctx context.Context, m MarketRecord) error
	UpdateWallet(ctx context.Context, w Wallet) error
	CreateWallet(ctx context.Context, w Wallet) (Wallet, error)
	InsertPosition(ctx context.Context, p Position) (Position, error)
	UpdatePosition(ctx context.Context, p Position) error
	DeletePosition(ctx context.Context, id int64) error
	InsertTransaction(ctx context.Context, t Transaction) (Transaction, error)

	// LockCatalog serialises catalog seeding and returns the token count.
	LockCatalog(ctx context.Context) (int, error)
	InsertToken(ctx context.Context, t Token) (Token, error)
	InsertMarket(ctx context.Context, m MarketRecord) error
}
