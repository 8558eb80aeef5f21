package service

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

// DefaultHistoryLimit is the number of trades a history returns by default.
const DefaultHistoryLimit = 50

// PortfolioService values user holdings and lists their trades.
type PortfolioService struct {
	wallets   domain.WalletStore
	positions domain.PositionStore
	tokens    domain.TokenStore
	markets   domain.MarketStore
	txns      domain.TransactionStore
	logger    *slog.Logger
}

// NewPortfolioService creates a PortfolioService.
func NewPortfolioService(
	wallets domain.WalletStore,
	positions domain.PositionStore,
	tokens domain.TokenStore,
	markets domain.MarketStore,
	txns domain.TransactionStore,
	logger *slog.Logger,
) *PortfolioService {
	return &PortfolioService{
		wallets:   wallets,
		positions: positions,
		tokens:    tokens,
		markets:   markets,
		txns:      txns,
		logger:    logger.With(slog.String("component", "portfolio_service")),
	}
}

// Portfolio values every position of userID at current market prices.
func (s *PortfolioService) Portfolio(ctx context.Context, userID string) (domain.Portfolio, error) {
	if userID == "" {
		return domain.Portfolio{}, domain.NewValidationError("user_id", "is required")
	}
	w, err := s.wallets.GetByUser(ctx, userID)
	if err != nil {
		return domain.Portfolio{}, surface(ctx, s.logger, "portfolio", notFound(err, "wallet", userID))
	}
	positions, err := s.positions.ListByUser(ctx, userID)
	if err != nil {
		return domain.Portfolio{}, surface(ctx, s.logger, "portfolio", err)
	}

	p := domain.Portfolio{
		UserID:            userID,
		Positions:         make([]domain.PositionView, 0, len(positions)),
		CashBalance:       w.CashBalance,
		TotalInvested:     decimal.Zero,
		TotalCurrentValue: decimal.Zero,
		UnrealizedProfit:  decimal.Zero,
		RealizedProfit:    w.RealizedProfit,
		TotalFeesPaid:     w.TotalFeesPaid,
	}
	for _, pos := range positions {
		tok, err := s.tokens.GetByID(ctx, pos.TokenID)
		if err != nil {
			return domain.Portfolio{}, surface(ctx, s.logger, "portfolio", notFound(err, "token", idKey(pos.TokenID)))
		}
		m, err := s.markets.GetByTokenID(ctx, pos.TokenID)
		if err != nil {
			return domain.Portfolio{}, surface(ctx, s.logger, "portfolio", notFound(err, "market", idKey(pos.TokenID)))
		}
		v := valuePosition(pos, tok, m)
		p.Positions = append(p.Positions, v)
		p.TotalInvested = p.TotalInvested.Add(v.TotalInvested)
		p.TotalCurrentValue = p.TotalCurrentValue.Add(v.CurrentValue)
		p.UnrealizedProfit = p.UnrealizedProfit.Add(v.UnrealizedProfit)
	}
	slices.SortFunc(p.Positions, func(a, b domain.PositionView) int { return cmp.Compare(a.Symbol, b.Symbol) })

	if len(p.Positions) > 0 {
		best, worst := p.Positions[0], p.Positions[0]
		for _, v := range p.Positions[1:] {
			if v.ProfitPercentage.GreaterThan(best.ProfitPercentage) {
				best = v
			}
			if v.ProfitPercentage.LessThan(worst.ProfitPercentage) {
				worst = v
			}
		}
		p.BestPerformer, p.WorstPerformer = &best, &worst
	}

	gain := p.UnrealizedProfit.Add(p.RealizedProfit).Sub(p.TotalFeesPaid)
	p.TotalROI = domain.Percent(gain, w.TotalInvested)
	return p, nil
}

func valuePosition(pos domain.Position, tok domain.Token, m domain.MarketRecord) domain.PositionView {
	value := domain.RoundMoney(pos.Balance.Mul(m.Price))
	unrealized := value.Sub(pos.TotalInvested)
	return domain.PositionView{
		TokenID:          tok.ID,
		Symbol:           tok.Symbol,
		Name:             tok.Name,
		Quantity:         pos.Balance,
		AverageBuyPrice:  pos.AverageBuyPrice,
		CurrentPrice:     m.Price,
		CurrentValue:     value,
		TotalInvested:    pos.TotalInvested,
		UnrealizedProfit: unrealized,
		ProfitPercentage: domain.Percent(unrealized, pos.TotalInvested),
		PriceChange24h:   m.PriceChange24h,
		MarketSentiment:  m.Sentiment,
	}
}

// TransactionHistory returns the user's most recent trades, newest first,
// with aggregates over the returned page. Without explicit types it lists
// buys and sells; without a limit it returns DefaultHistoryLimit rows.
func (s *PortfolioService) TransactionHistory(ctx context.Context, userID string, f domain.TransactionFilter) (domain.TradeHistory, error) {
	if userID == "" {
		return domain.TradeHistory{}, domain.NewValidationError("user_id", "is required")
	}
	if len(f.Types) == 0 {
		f.Types = []domain.TransactionType{domain.TxBuy, domain.TxSell}
	}
	if f.Limit <= 0 {
		f.Limit = DefaultHistoryLimit
	}
	if f.Offset < 0 {
		return domain.TradeHistory{}, domain.NewValidationError("offset", "must not be negative")
	}

	trades, err := s.txns.ListByUser(ctx, userID, f)
	if err != nil {
		return domain.TradeHistory{}, surface(ctx, s.logger, "transaction history", err)
	}
	if trades == nil {
		trades = []domain.TradeRecord{}
	}

	sum := domain.TradeHistorySummary{
		TotalVolume: decimal.Zero,
		TotalFees:   decimal.Zero,
		TotalTrades: len(trades),
	}
	for _, t := range trades {
		sum.TotalVolume = sum.TotalVolume.Add(domain.RoundMoney(t.Quantity.Mul(t.Price)))
		sum.TotalFees = sum.TotalFees.Add(t.Fee)
		if t.ProfitLoss.IsPositive() {
			sum.ProfitableTrades++
		}
	}
	return domain.TradeHistory{Trades: trades, Summary: sum}, nil
}
