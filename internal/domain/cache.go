package domain

import (
	"context"
	"time"
)

// QuoteCache provides fast access to the latest market quotes.
type QuoteCache interface {
	SetQuote(ctx context.Context, q MarketQuote) error
	GetQuote(ctx context.Context, sym Symbol) (MarketQuote, error)
	GetQuotes(ctx context.Context, syms []Symbol) (map[Symbol]MarketQuote, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// Bus channels.
const (
	ChannelPrices       = "prices"
	ChannelTrades       = "trades"
	ChannelMarketEvents = "market_events"
	ChannelAudit        = "audit"
)

// SignalBus provides pub/sub fan-out of market activity.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
