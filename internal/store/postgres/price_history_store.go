package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

// PriceHistoryStore implements domain.PriceHistoryStore on the price_history
// table. It serves deployments without ClickHouse.
type PriceHistoryStore struct {
	pool *pgxpool.Pool
}

var _ domain.PriceHistoryStore = (*PriceHistoryStore)(nil)

// NewPriceHistoryStore creates a PriceHistoryStore backed by pool.
func NewPriceHistoryStore(pool *pgxpool.Pool) *PriceHistoryStore {
	return &PriceHistoryStore{pool: pool}
}

// Append inserts points in one batch.
func (s *PriceHistoryStore) Append(ctx context.Context, points []domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	rows := make([][]any, len(points))
	for i, p := range points {
		rows[i] = []any{p.TokenID, string(p.Symbol), p.Price, p.Volatility, string(p.Sentiment), string(p.Source), p.Time}
	}
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"price_history"},
		[]string{"token_id", "symbol", "price", "volatility", "sentiment", "source", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("postgres: append price history: %w", err)
	}
	return nil
}

// List returns points for sym newest first.
func (s *PriceHistoryStore) List(ctx context.Context, sym domain.Symbol, opts domain.ListOpts) ([]domain.PricePoint, error) {
	var b strings.Builder
	b.WriteString(`SELECT token_id, symbol, price, volatility, sentiment, source, recorded_at
		FROM price_history WHERE symbol = $1`)
	args := []any{string(sym)}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.Since != nil {
		b.WriteString(" AND recorded_at >= " + arg(*opts.Since))
	}
	if opts.Until != nil {
		b.WriteString(" AND recorded_at <= " + arg(*opts.Until))
	}
	b.WriteString(" ORDER BY recorded_at DESC, id DESC")
	if opts.Limit > 0 {
		b.WriteString(" LIMIT " + arg(opts.Limit))
	}
	if opts.Offset > 0 {
		b.WriteString(" OFFSET " + arg(opts.Offset))
	}

	rows, err := s.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list price history %s: %w", sym, err)
	}
	points, err := collect(rows, func(row pgx.Row) (domain.PricePoint, error) {
		var (
			p                         domain.PricePoint
			symbol, sentiment, source string
		)
		err := row.Scan(&p.TokenID, &symbol, &p.Price, &p.Volatility, &sentiment, &source, &p.Time)
		p.Symbol = domain.Symbol(symbol)
		p.Sentiment = domain.Sentiment(sentiment)
		p.Source = domain.PriceSource(source)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan price history: %w", err)
	}
	return points, nil
}
