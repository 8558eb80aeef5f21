package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

// trendSize is the length of each trend list in a snapshot.
const trendSize = 3

// maxHistoryPoints bounds a single price history query.
const maxHistoryPoints = 1000

// MarketService serves the read side of the market and seeds the catalog.
type MarketService struct {
	tokens  domain.TokenStore
	markets domain.MarketStore
	history domain.PriceHistoryStore
	uow     domain.UnitOfWork
	feed    *MarketFeed
	clock   clockwork.Clock
	logger  *slog.Logger
}

// NewMarketService creates a MarketService. history may be nil.
func NewMarketService(
	tokens domain.TokenStore,
	markets domain.MarketStore,
	history domain.PriceHistoryStore,
	uow domain.UnitOfWork,
	feed *MarketFeed,
	clock clockwork.Clock,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		tokens:  tokens,
		markets: markets,
		history: history,
		uow:     uow,
		feed:    feed,
		clock:   clock,
		logger:  logger.With(slog.String("component", "market_service")),
	}
}

// ListTokens returns a quote for every token, ordered by symbol. Tokens
// without a market record are omitted.
func (s *MarketService) ListTokens(ctx context.Context) ([]domain.MarketQuote, error) {
	tokens, err := s.tokens.List(ctx)
	if err != nil {
		return nil, surface(ctx, s.logger, "list tokens", err)
	}
	records, err := s.markets.List(ctx)
	if err != nil {
		return nil, surface(ctx, s.logger, "list markets", err)
	}

	byToken := make(map[int64]domain.MarketRecord, len(records))
	for _, m := range records {
		byToken[m.TokenID] = m
	}
	quotes := make([]domain.MarketQuote, 0, len(tokens))
	for _, t := range tokens {
		m, ok := byToken[t.ID]
		if !ok {
			continue
		}
		quotes = append(quotes, domain.NewMarketQuote(t, m))
	}
	slices.SortFunc(quotes, func(a, b domain.MarketQuote) int { return cmp.Compare(a.Symbol, b.Symbol) })
	return quotes, nil
}

// Snapshot returns every price plus the top gainers, top losers and most
// traded tokens.
func (s *MarketService) Snapshot(ctx context.Context) (domain.MarketSnapshot, error) {
	quotes, err := s.ListTokens(ctx)
	if err != nil {
		return domain.MarketSnapshot{}, err
	}

	snap := domain.MarketSnapshot{
		Prices:      make(map[domain.Symbol]decimal.Decimal, len(quotes)),
		GeneratedAt: s.clock.Now(),
	}
	for _, q := range quotes {
		snap.Prices[q.Symbol] = q.Price
	}
	snap.TopGainers = topQuotes(quotes, func(a, b domain.MarketQuote) int {
		return b.PriceChange24h.Cmp(a.PriceChange24h)
	})
	snap.TopLosers = topQuotes(quotes, func(a, b domain.MarketQuote) int {
		return a.PriceChange24h.Cmp(b.PriceChange24h)
	})
	snap.MostTraded = topQuotes(quotes, func(a, b domain.MarketQuote) int {
		return b.Volume.Cmp(a.Volume)
	})
	return snap, nil
}

// topQuotes returns the first trendSize quotes under order, ties broken by
// symbol.
func topQuotes(quotes []domain.MarketQuote, order func(a, b domain.MarketQuote) int) []domain.MarketQuote {
	sorted := slices.Clone(quotes)
	slices.SortStableFunc(sorted, func(a, b domain.MarketQuote) int {
		if c := order(a, b); c != 0 {
			return c
		}
		return cmp.Compare(a.Symbol, b.Symbol)
	})
	return sorted[:min(trendSize, len(sorted))]
}

// SeedCatalog creates tokens and market records for entries. It fails with
// ErrAlreadyExists if any token exists.
func (s *MarketService) SeedCatalog(ctx context.Context, entries []domain.CatalogEntry) ([]domain.MarketQuote, error) {
	var quotes []domain.MarketQuote
	err := s.uow.InTx(ctx, func(tx domain.Tx) error {
		n, err := tx.LockCatalog(ctx)
		if err != nil {
			return fmt.Errorf("lock catalog: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("market_service: catalog has %d tokens: %w", n, domain.ErrAlreadyExists)
		}

		now := s.clock.Now()
		for _, e := range entries {
			circulating := domain.RoundQuantity(e.TotalSupply.Mul(domain.SeedCirculatingRatio))
			tok, err := tx.InsertToken(ctx, domain.Token{
				Symbol:            e.Symbol,
				Name:              e.Name,
				Institution:       e.Institution,
				TotalSupply:       e.TotalSupply,
				CirculatingSupply: circulating,
				InitialPrice:      e.InitialPrice,
				Decimals:          domain.SeedDecimals,
				CreatedAt:         now,
			})
			if err != nil {
				return fmt.Errorf("insert token %s: %w", e.Symbol, err)
			}
			m := domain.MarketRecord{
				TokenID:           tok.ID,
				Price:             e.InitialPrice,
				PriceChange24h:    decimal.Zero,
				ChangeWindowStart: now,
				Volume:            decimal.Zero,
				LiquidityPool:     domain.RoundMoney(circulating.Mul(e.InitialPrice)),
				Volatility:        domain.SeedVolatility,
				Sentiment:         domain.SentimentNeutral,
				UpdatedAt:         now,
			}
			if err := tx.InsertMarket(ctx, m); err != nil {
				return fmt.Errorf("insert market %s: %w", e.Symbol, err)
			}
			quotes = append(quotes, domain.NewMarketQuote(tok, m))
		}
		return nil
	})
	if err != nil {
		return nil, surface(ctx, s.logger, "seed catalog", err)
	}

	s.feed.PublishQuotes(ctx, domain.PriceSourceTick, quotes...)
	s.logger.InfoContext(ctx, "catalog seeded", slog.Int("tokens", len(quotes)))
	return quotes, nil
}

// PriceHistory returns recorded prices of sym, newest first.
func (s *MarketService) PriceHistory(ctx context.Context, sym domain.Symbol, opts domain.ListOpts) ([]domain.PricePoint, error) {
	if sym == "" {
		return nil, domain.NewValidationError("symbol", "is required")
	}
	if _, err := s.tokens.GetBySymbol(ctx, sym); err != nil {
		return nil, surface(ctx, s.logger, "price history", notFound(err, "token", sym.String()))
	}
	if s.history == nil {
		return []domain.PricePoint{}, nil
	}
	if opts.Limit <= 0 || opts.Limit > maxHistoryPoints {
		opts.Limit = maxHistoryPoints
	}
	points, err := s.history.List(ctx, sym, opts)
	if err != nil {
		return nil, surface(ctx, s.logger, "price history", err)
	}
	return points, nil
}
