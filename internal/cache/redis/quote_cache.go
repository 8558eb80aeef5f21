package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

// QuoteCache implements domain.QuoteCache. Each quote is stored as JSON at
// "quote:{SYMBOL}". A zero TTL keeps entries until overwritten.
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{rdb: c.rdb, ttl: ttl}
}

func quoteKey(sym domain.Symbol) string {
	return "quote:" + string(sym)
}

// SetQuote overwrites the cached quote of q.Symbol.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.MarketQuote) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("redis: marshal quote %s: %w", q.Symbol, err)
	}
	if err := qc.rdb.Set(ctx, quoteKey(q.Symbol), payload, qc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.Symbol, err)
	}
	return nil
}

// GetQuote returns the cached quote of sym or domain.ErrNotFound.
func (qc *QuoteCache) GetQuote(ctx context.Context, sym domain.Symbol) (domain.MarketQuote, error) {
	raw, err := qc.rdb.Get(ctx, quoteKey(sym)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.MarketQuote{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.MarketQuote{}, fmt.Errorf("redis: get quote %s: %w", sym, err)
	}
	var q domain.MarketQuote
	if err := json.Unmarshal(raw, &q); err != nil {
		return domain.MarketQuote{}, fmt.Errorf("redis: decode quote %s: %w", sym, err)
	}
	return q, nil
}

// GetQuotes fetches several quotes in one round trip. Missing or undecodable
// entries are omitted.
func (qc *QuoteCache) GetQuotes(ctx context.Context, syms []domain.Symbol) (map[domain.Symbol]domain.MarketQuote, error) {
	out := make(map[domain.Symbol]domain.MarketQuote, len(syms))
	if len(syms) == 0 {
		return out, nil
	}
	keys := make([]string, len(syms))
	for i, s := range syms {
		keys[i] = quoteKey(s)
	}
	vals, err := qc.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get quotes: %w", err)
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var q domain.MarketQuote
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			continue
		}
		out[syms[i]] = q
	}
	return out, nil
}

var _ domain.QuoteCache = (*QuoteCache)(nil)
