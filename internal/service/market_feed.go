package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

// MarketFeed fans committed market state out to the quote cache, the signal
// bus and the price history. Every sink is optional and every failure is
// logged, never returned: the feed runs after commit.
type MarketFeed struct {
	quotes  domain.QuoteCache
	bus     domain.SignalBus
	history domain.PriceHistoryStore
	logger  *slog.Logger
}

// NewMarketFeed creates a MarketFeed. Any sink may be nil.
func NewMarketFeed(quotes domain.QuoteCache, bus domain.SignalBus, history domain.PriceHistoryStore, logger *slog.Logger) *MarketFeed {
	return &MarketFeed{
		quotes:  quotes,
		bus:     bus,
		history: history,
		logger:  logger.With(slog.String("component", "market_feed")),
	}
}

// PriceUpdate is the payload published on the prices channel.
type PriceUpdate struct {
	Source domain.PriceSource   `json:"source"`
	Quotes []domain.MarketQuote `json:"quotes"`
}

// PublishQuotes distributes freshly committed quotes.
func (f *MarketFeed) PublishQuotes(ctx context.Context, source domain.PriceSource, quotes ...domain.MarketQuote) {
	if f == nil || len(quotes) == 0 {
		return
	}

	if f.quotes != nil {
		for _, q := range quotes {
			if err := f.quotes.SetQuote(ctx, q); err != nil {
				f.logger.WarnContext(ctx, "quote cache update failed",
					slog.String("symbol", q.Symbol.String()),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if f.history != nil {
		points := make([]domain.PricePoint, len(quotes))
		for i, q := range quotes {
			points[i] = domain.PricePoint{
				TokenID:    q.TokenID,
				Symbol:     q.Symbol,
				Price:      q.Price,
				Volatility: q.Volatility,
				Sentiment:  q.Sentiment,
				Source:     source,
				Time:       q.UpdatedAt,
			}
		}
		if err := f.history.Append(ctx, points); err != nil {
			f.logger.WarnContext(ctx, "price history append failed",
				slog.Int("points", len(points)),
				slog.String("error", err.Error()),
			)
		}
	}

	f.Publish(ctx, domain.ChannelPrices, PriceUpdate{Source: source, Quotes: quotes})
}

// Publish marshals v and sends it on channel.
func (f *MarketFeed) Publish(ctx context.Context, channel string, v any) {
	if f == nil || f.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		f.logger.WarnContext(ctx, "marshal bus payload failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := f.bus.Publish(ctx, channel, payload); err != nil {
		f.logger.WarnContext(ctx, "bus publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
