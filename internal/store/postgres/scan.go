package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pageClause renders LIMIT/OFFSET for opts, appending the values to args.
func pageClause(opts domain.ListOpts, args *[]any) string {
	var clause string
	if opts.Limit > 0 {
		*args = append(*args, opts.Limit)
		clause += fmt.Sprintf(" LIMIT $%d", len(*args))
	}
	if opts.Offset > 0 {
		*args = append(*args, opts.Offset)
		clause += fmt.Sprintf(" OFFSET $%d", len(*args))
	}
	return clause
}

const tokenCols = `id, symbol, name, institution, total_supply, circulating_supply,
	initial_price, decimals, created_at`

func scanToken(row pgx.Row) (domain.Token, error) {
	var (
		t   domain.Token
		sym string
	)
	err := row.Scan(&t.ID, &sym, &t.Name, &t.Institution, &t.TotalSupply,
		&t.CirculatingSupply, &t.InitialPrice, &t.Decimals, &t.CreatedAt)
	t.Symbol = domain.Symbol(sym)
	return t, err
}

const marketCols = `token_id, price, price_change_24h, change_window_start, volume,
	liquidity_pool, volatility, sentiment, updated_at`

func scanMarket(row pgx.Row) (domain.MarketRecord, error) {
	var (
		m         domain.MarketRecord
		sentiment string
	)
	err := row.Scan(&m.TokenID, &m.Price, &m.PriceChange24h, &m.ChangeWindowStart,
		&m.Volume, &m.LiquidityPool, &m.Volatility, &sentiment, &m.UpdatedAt)
	m.Sentiment = domain.Sentiment(sentiment)
	return m, err
}

const walletCols = `id, user_id, cash_balance, total_invested, realized_profit,
	total_fees_paid, created_at, updated_at`

func scanWallet(row pgx.Row) (domain.Wallet, error) {
	var w domain.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.CashBalance, &w.TotalInvested,
		&w.RealizedProfit, &w.TotalFeesPaid, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

const positionCols = `id, user_id, token_id, balance, average_buy_price,
	total_invested, created_at, updated_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	err := row.Scan(&p.ID, &p.UserID, &p.TokenID, &p.Balance, &p.AverageBuyPrice,
		&p.TotalInvested, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// collect scans every row with scan.
func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
