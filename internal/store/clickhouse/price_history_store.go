package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

// PriceHistoryStore implements domain.PriceHistoryStore on ClickHouse.
type PriceHistoryStore struct {
	conn *Conn
}

var _ domain.PriceHistoryStore = (*PriceHistoryStore)(nil)

// NewPriceHistoryStore creates a PriceHistoryStore.
func NewPriceHistoryStore(conn *Conn) *PriceHistoryStore {
	return &PriceHistoryStore{conn: conn}
}

// Append writes points as a single batch.
func (s *PriceHistoryStore) Append(ctx context.Context, points []domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_history (token_id, symbol, price, volatility, sentiment, source, ts)`)
	if err != nil {
		return fmt.Errorf("clickhouse: prepare batch: %w", err)
	}
	for _, p := range points {
		if err := batch.Append(
			p.TokenID, string(p.Symbol), p.Price, p.Volatility,
			string(p.Sentiment), string(p.Source), p.Time.UTC(),
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("clickhouse: append point: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("clickhouse: send batch: %w", err)
	}
	return nil
}

// List returns points of sym newest first.
func (s *PriceHistoryStore) List(ctx context.Context, sym domain.Symbol, opts domain.ListOpts) ([]domain.PricePoint, error) {
	var (
		where = []string{"symbol = ?"}
		args  = []any{string(sym)}
	)
	if opts.Since != nil {
		where = append(where, "ts >= ?")
		args = append(args, opts.Since.UTC())
	}
	if opts.Until != nil {
		where = append(where, "ts <= ?")
		args = append(args, opts.Until.UTC())
	}
	query := `SELECT token_id, symbol, price, volatility, sentiment, source, ts
		FROM price_history WHERE ` + strings.Join(where, " AND ") + ` ORDER BY ts DESC`
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
		if opts.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", opts.Offset)
		}
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: query price history: %w", err)
	}
	defer rows.Close()

	var points []domain.PricePoint
	for rows.Next() {
		var (
			p                    domain.PricePoint
			symbol, sent, source string
			price, volatility    decimal.Decimal
			ts                   time.Time
		)
		if err := rows.Scan(&p.TokenID, &symbol, &price, &volatility, &sent, &source, &ts); err != nil {
			return nil, fmt.Errorf("clickhouse: scan price point: %w", err)
		}
		p.Symbol = domain.Symbol(symbol)
		p.Price = price
		p.Volatility = volatility
		p.Sentiment = domain.Sentiment(sent)
		p.Source = domain.PriceSource(source)
		p.Time = ts
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clickhouse: iterate price history: %w", err)
	}
	return points, nil
}
