package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

// UnitOfWork implements domain.UnitOfWork with read-committed transactions.
// Row locks are SELECT ... FOR UPDATE and are held until commit or rollback.
type UnitOfWork struct {
	pool *pgxpool.Pool
}

var _ domain.UnitOfWork = (*UnitOfWork)(nil)

// NewUnitOfWork creates a UnitOfWork backed by pool.
func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

// InTx runs fn in a transaction and commits when it returns nil.
func (u *UnitOfWork) InTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	return pgx.BeginTxFunc(ctx, u.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(t pgx.Tx) error {
		return fn(&txn{q: t})
	})
}

type txn struct {
	q querier
}

var _ domain.Tx = (*txn)(nil)

func (t *txn) TokenForUpdate(ctx context.Context, id int64) (domain.Token, error) {
	tok, err := scanToken(t.q.QueryRow(ctx, `SELECT `+tokenCols+` FROM tokens WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return domain.Token{}, mapErr(err)
	}
	return tok, nil
}

func (t *txn) MarketForUpdate(ctx context.Context, tokenID int64) (domain.MarketRecord, error) {
	m, err := scanMarket(t.q.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE token_id = $1 FOR UPDATE`, tokenID))
	if err != nil {
		return domain.MarketRecord{}, mapErr(err)
	}
	return m, nil
}

func (t *txn) WalletForUpdate(ctx context.Context, userID string) (domain.Wallet, error) {
	w, err := scanWallet(t.q.QueryRow(ctx, `SELECT `+walletCols+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return domain.Wallet{}, mapErr(err)
	}
	return w, nil
}

func (t *txn) PositionForUpdate(ctx context.Context, userID string, tokenID int64) (domain.Position, error) {
	p, err := scanPosition(t.q.QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions WHERE user_id = $1 AND token_id = $2 FOR UPDATE`,
		userID, tokenID))
	if err != nil {
		return domain.Position{}, mapErr(err)
	}
	return p, nil
}

// execOne runs a statement that must touch exactly one row.
func (t *txn) execOne(ctx context.Context, op, sql string, args ...any) error {
	tag, err := t.q.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("postgres: %s: %w", op, mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: %s: %w", op, domain.ErrNotFound)
	}
	return nil
}

func (t *txn) UpdateTokenSupply(ctx context.Context, id int64, circulating decimal.Decimal) error {
	return t.execOne(ctx, "update token supply",
		`UPDATE tokens SET circulating_supply = $2 WHERE id = $1`, id, circulating)
}

func (t *txn) UpdateMarket(ctx context.Context, m domain.MarketRecord) error {
	const query = `
		UPDATE markets SET
			price               = $2,
			price_change_24h    = $3,
			change_window_start = $4,
			volume              = $5,
			liquidity_pool      = $6,
			volatility          = $7,
			sentiment           = $8,
			updated_at          = $9
		WHERE token_id = $1`
	return t.execOne(ctx, "update market", query,
		m.TokenID, m.Price, m.PriceChange24h, m.ChangeWindowStart, m.Volume,
		m.LiquidityPool, m.Volatility, string(m.Sentiment), m.UpdatedAt)
}

func (t *txn) UpdateWallet(ctx context.Context, w domain.Wallet) error {
	const query = `
		UPDATE wallets SET
			cash_balance    = $2,
			total_invested  = $3,
			realized_profit = $4,
			total_fees_paid = $5,
			updated_at      = $6
		WHERE user_id = $1`
	return t.execOne(ctx, "update wallet", query,
		w.UserID, w.CashBalance, w.TotalInvested, w.RealizedProfit, w.TotalFeesPaid, w.UpdatedAt)
}

func (t *txn) CreateWallet(ctx context.Context, w domain.Wallet) (domain.Wallet, error) {
	const query = `
		INSERT INTO wallets (user_id, cash_balance, total_invested, realized_profit,
			total_fees_paid, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	err := t.q.QueryRow(ctx, query, w.UserID, w.CashBalance, w.TotalInvested,
		w.RealizedProfit, w.TotalFeesPaid, w.CreatedAt, w.UpdatedAt).Scan(&w.ID)
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("postgres: create wallet %s: %w", w.UserID, mapErr(err))
	}
	return w, nil
}

func (t *txn) InsertPosition(ctx context.Context, p domain.Position) (domain.Position, error) {
	const query = `
		INSERT INTO positions (user_id, token_id, balance, average_buy_price,
			total_invested, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	err := t.q.QueryRow(ctx, query, p.UserID, p.TokenID, p.Balance, p.AverageBuyPrice,
		p.TotalInvested, p.CreatedAt, p.UpdatedAt).Scan(&p.ID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: insert position: %w", mapErr(err))
	}
	return p, nil
}

func (t *txn) UpdatePosition(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			balance           = $2,
			average_buy_price = $3,
			total_invested    = $4,
			updated_at        = $5
		WHERE id = $1`
	return t.execOne(ctx, "update position", query,
		p.ID, p.Balance, p.AverageBuyPrice, p.TotalInvested, p.UpdatedAt)
}

func (t *txn) DeletePosition(ctx context.Context, id int64) error {
	return t.execOne(ctx, "delete position", `DELETE FROM positions WHERE id = $1`, id)
}

func (t *txn) InsertTransaction(ctx context.Context, tr domain.Transaction) (domain.Transaction, error) {
	const query = `
		INSERT INTO transactions (reference, wallet_id, user_id, type, token_id,
			quantity, price, fee, profit_loss, amount, status, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`
	err := t.q.QueryRow(ctx, query,
		tr.Reference, tr.WalletID, tr.UserID, string(tr.Type), tr.TokenID,
		tr.Quantity, tr.Price, tr.Fee, tr.ProfitLoss, tr.Amount,
		string(tr.Status), tr.Description, tr.CreatedAt,
	).Scan(&tr.ID)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("postgres: insert transaction %s: %w", tr.Reference, mapErr(err))
	}
	return tr, nil
}

// LockCatalog takes a table lock that conflicts with itself and with
// concurrent inserts, then counts tokens.
func (t *txn) LockCatalog(ctx context.Context) (int, error) {
	if _, err := t.q.Exec(ctx, `LOCK TABLE tokens IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return 0, fmt.Errorf("postgres: lock tokens: %w", err)
	}
	var n int
	if err := t.q.QueryRow(ctx, `SELECT COUNT(*) FROM tokens`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count tokens: %w", err)
	}
	return n, nil
}

func (t *txn) InsertToken(ctx context.Context, tok domain.Token) (domain.Token, error) {
	const query = `
		INSERT INTO tokens (symbol, name, institution, total_supply, circulating_supply,
			initial_price, decimals, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	err := t.q.QueryRow(ctx, query, string(tok.Symbol), tok.Name, tok.Institution,
		tok.TotalSupply, tok.CirculatingSupply, tok.InitialPrice, tok.Decimals, tok.CreatedAt,
	).Scan(&tok.ID)
	if err != nil {
		return domain.Token{}, fmt.Errorf("postgres: insert token %s: %w", tok.Symbol, mapErr(err))
	}
	return tok, nil
}

func (t *txn) InsertMarket(ctx context.Context, m domain.MarketRecord) error {
	const query = `
		INSERT INTO markets (token_id, price, price_change_24h, change_window_start,
			volume, liquidity_pool, volatility, sentiment, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := t.q.Exec(ctx, query, m.TokenID, m.Price, m.PriceChange24h, m.ChangeWindowStart,
		m.Volume, m.LiquidityPool, m.Volatility, string(m.Sentiment), m.UpdatedAt); err != nil {
		return fmt.Errorf("postgres: insert market %d: %w", m.TokenID, mapErr(err))
	}
	return nil
}
