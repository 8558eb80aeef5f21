package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
	"github.com/alanyoungcy/tokenmarket/internal/notify"
	"github.com/alanyoungcy/tokenmarket/internal/observability"
	"github.com/alanyoungcy/tokenmarket/internal/pricing"
)

// TradeExecutor executes buy and sell orders against user wallets. Each
// order is one unit of work that locks wallet, token, market and position in
// that order.
type TradeExecutor struct {
	uow    domain.UnitOfWork
	ledger PositionLedger
	feed   *MarketFeed
	audit  domain.AuditStore
	mail   *notify.Dispatcher
	rules  domain.PriceRules
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewTradeExecutor creates a TradeExecutor. audit and mail may be nil.
func NewTradeExecutor(
	uow domain.UnitOfWork,
	feed *MarketFeed,
	audit domain.AuditStore,
	mail *notify.Dispatcher,
	rules domain.PriceRules,
	clock clockwork.Clock,
	logger *slog.Logger,
) *TradeExecutor {
	return &TradeExecutor{
		uow:    uow,
		ledger: NewPositionLedger(rules),
		feed:   feed,
		audit:  audit,
		mail:   mail,
		rules:  rules,
		clock:  clock,
		logger: logger.With(slog.String("component", "trade_executor")),
	}
}

func validateTrade(userID string, req domain.TradeRequest) error {
	switch {
	case userID == "":
		return domain.NewValidationError("user_id", "is required")
	case req.TokenID <= 0:
		return domain.NewValidationError("token_id", "must be positive")
	case !req.Quantity.IsPositive():
		return domain.NewValidationError("quantity", "must be positive")
	case !domain.HasScaleAtMost(req.Quantity, domain.QuantityScale):
		return domain.NewValidationError("quantity", fmt.Sprintf("at most %d decimal places", domain.QuantityScale))
	case !req.Price.IsPositive():
		return domain.NewValidationError("price", "must be positive")
	case !domain.HasScaleAtMost(req.Price, domain.PriceScale):
		return domain.NewValidationError("price", fmt.Sprintf("at most %d decimal places", domain.PriceScale))
	}
	return nil
}

// checkSlippage rejects a submitted price that drifted more than the
// tolerance from the current market price.
func (e *TradeExecutor) checkSlippage(submitted, current decimal.Decimal) error {
	if current.IsZero() {
		return &domain.StalePriceError{Submitted: submitted, Current: current}
	}
	drift := submitted.Sub(current).Abs().Div(current)
	if drift.GreaterThan(e.rules.SlippageTolerance) {
		return &domain.StalePriceError{Submitted: submitted, Current: current}
	}
	return nil
}

// lockTradeRows takes the wallet, token and market locks for a trade.
func lockTradeRows(ctx context.Context, tx domain.Tx, userID string, tokenID int64) (domain.Wallet, domain.Token, domain.MarketRecord, error) {
	w, err := tx.WalletForUpdate(ctx, userID)
	if err != nil {
		return domain.Wallet{}, domain.Token{}, domain.MarketRecord{}, notFound(err, "wallet", userID)
	}
	tok, err := tx.TokenForUpdate(ctx, tokenID)
	if err != nil {
		return domain.Wallet{}, domain.Token{}, domain.MarketRecord{}, notFound(err, "token", idKey(tokenID))
	}
	m, err := tx.MarketForUpdate(ctx, tokenID)
	if err != nil {
		return domain.Wallet{}, domain.Token{}, domain.MarketRecord{}, notFound(err, "market", idKey(tokenID))
	}
	return w, tok, m, nil
}

// Buy purchases req.Quantity tokens at req.Price. The unit of work is
// detached from ctx cancellation so a disconnecting caller cannot abort it
// halfway; it either commits or rolls back.
func (e *TradeExecutor) Buy(ctx context.Context, userID string, req domain.TradeRequest) (domain.TradeResult, error) {
	start := e.clock.Now()
	if err := validateTrade(userID, req); err != nil {
		observability.RecordTradeRejected("buy", rejectReason(err))
		return domain.TradeResult{}, err
	}

	var (
		res   domain.TradeResult
		quote domain.MarketQuote
	)
	txCtx := context.WithoutCancel(ctx)
	err := e.uow.InTx(txCtx, func(tx domain.Tx) error {
		now := e.clock.Now()
		w, tok, m, err := lockTradeRows(txCtx, tx, userID, req.TokenID)
		if err != nil {
			return err
		}
		if err := e.checkSlippage(req.Price, m.Price); err != nil {
			return err
		}

		cost := domain.RoundMoney(req.Quantity.Mul(req.Price))
		if w.CashBalance.LessThan(cost) {
			return &domain.InsufficientFundsError{Required: cost, Available: w.CashBalance}
		}
		newCirculating := tok.CirculatingSupply.Add(req.Quantity)
		if newCirculating.GreaterThan(tok.TotalSupply) {
			return &domain.InsufficientSupplyError{Symbol: tok.Symbol, Requested: req.Quantity, Remaining: tok.RemainingSupply()}
		}

		pos, err := e.ledger.Buy(txCtx, tx, userID, tok.ID, req.Quantity, req.Price, cost, now)
		if err != nil {
			return err
		}

		w.CashBalance = w.CashBalance.Sub(cost)
		w.TotalInvested = w.TotalInvested.Add(cost)
		w.UpdatedAt = now
		if err := tx.UpdateWallet(txCtx, w); err != nil {
			return fmt.Errorf("update wallet: %w", err)
		}

		newPrice := pricing.Impact(e.rules, tok, m.Price, true, req.Quantity)
		if err := tx.UpdateTokenSupply(txCtx, tok.ID, newCirculating); err != nil {
			return fmt.Errorf("update supply: %w", err)
		}
		tok.CirculatingSupply = newCirculating

		m = pricing.ApplyMove(e.rules, m, newCirculating, newPrice, now)
		m.Volume = domain.RoundMoney(m.Volume.Add(cost))
		if err := tx.UpdateMarket(txCtx, m); err != nil {
			return fmt.Errorf("update market: %w", err)
		}

		tokenID := tok.ID
		rec, err := tx.InsertTransaction(txCtx, domain.Transaction{
			Reference:   uuid.NewString(),
			WalletID:    w.ID,
			UserID:      userID,
			Type:        domain.TxBuy,
			TokenID:     &tokenID,
			Quantity:    req.Quantity,
			Price:       req.Price,
			Fee:         decimal.Zero,
			ProfitLoss:  decimal.Zero,
			Amount:      cost.Neg(),
			Status:      domain.TxCompleted,
			Description: fmt.Sprintf("Bought %s %s tokens at ₦%s each", req.Quantity, tok.Symbol, req.Price),
			CreatedAt:   now,
		})
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		res = domain.TradeResult{
			TransactionID:   rec.ID,
			Reference:       rec.Reference,
			Type:            domain.TxBuy,
			TokenID:         tok.ID,
			Symbol:          tok.Symbol,
			Quantity:        req.Quantity,
			Price:           req.Price,
			Total:           cost,
			Fee:             decimal.Zero,
			ProfitLoss:      decimal.Zero,
			Net:             cost,
			NewPrice:        m.Price,
			PositionBalance: pos.Balance,
			CashBalance:     w.CashBalance,
		}
		quote = domain.NewMarketQuote(tok, m)
		return nil
	})
	if err != nil {
		observability.RecordTradeRejected("buy", rejectReason(err))
		return domain.TradeResult{}, surface(ctx, e.logger, "buy", err)
	}

	e.afterCommit(ctx, userID, res, quote, start)
	return res, nil
}

// Sell disposes of req.Quantity tokens at req.Price. A 10% fee is charged on
// profit; the position is removed when it reaches zero.
func (e *TradeExecutor) Sell(ctx context.Context, userID string, req domain.TradeRequest) (domain.TradeResult, error) {
	start := e.clock.Now()
	if err := validateTrade(userID, req); err != nil {
		observability.RecordTradeRejected("sell", rejectReason(err))
		return domain.TradeResult{}, err
	}

	var (
		res   domain.TradeResult
		quote domain.MarketQuote
	)
	txCtx := context.WithoutCancel(ctx)
	err := e.uow.InTx(txCtx, func(tx domain.Tx) error {
		now := e.clock.Now()
		w, tok, m, err := lockTradeRows(txCtx, tx, userID, req.TokenID)
		if err != nil {
			return err
		}
		if err := e.checkSlippage(req.Price, m.Price); err != nil {
			return err
		}

		pos, err := tx.PositionForUpdate(txCtx, userID, tok.ID)
		if isNotFound(err) {
			return &domain.InsufficientHoldingError{Symbol: tok.Symbol, Requested: req.Quantity, Held: decimal.Zero}
		}
		if err != nil {
			return fmt.Errorf("lock position: %w", err)
		}

		s := e.ledger.Settle(pos, req.Quantity, req.Price)
		pos, _, err = e.ledger.Sell(txCtx, tx, tok.Symbol, pos, req.Quantity, now)
		if err != nil {
			return err
		}

		w.CashBalance = w.CashBalance.Add(s.Net)
		if s.Profit.IsPositive() {
			w.RealizedProfit = w.RealizedProfit.Add(s.Profit)
		}
		w.TotalFeesPaid = w.TotalFeesPaid.Add(s.Fee)
		w.UpdatedAt = now
		if err := tx.UpdateWallet(txCtx, w); err != nil {
			return fmt.Errorf("update wallet: %w", err)
		}

		newPrice := pricing.Impact(e.rules, tok, m.Price, false, req.Quantity)
		m = pricing.ApplyMove(e.rules, m, tok.CirculatingSupply, newPrice, now)
		m.Volume = domain.RoundMoney(m.Volume.Add(s.SaleValue))
		if err := tx.UpdateMarket(txCtx, m); err != nil {
			return fmt.Errorf("update market: %w", err)
		}

		desc := fmt.Sprintf("Sold %s %s tokens at ₦%s each", req.Quantity, tok.Symbol, req.Price)
		if s.Fee.IsPositive() {
			desc += fmt.Sprintf(". Fee: ₦%s", s.Fee.StringFixed(domain.MoneyScale))
		}
		tokenID := tok.ID
		rec, err := tx.InsertTransaction(txCtx, domain.Transaction{
			Reference:   uuid.NewString(),
			WalletID:    w.ID,
			UserID:      userID,
			Type:        domain.TxSell,
			TokenID:     &tokenID,
			Quantity:    req.Quantity,
			Price:       req.Price,
			Fee:         s.Fee,
			ProfitLoss:  s.Profit,
			Amount:      s.Net,
			Status:      domain.TxCompleted,
			Description: desc,
			CreatedAt:   now,
		})
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		res = domain.TradeResult{
			TransactionID:   rec.ID,
			Reference:       rec.Reference,
			Type:            domain.TxSell,
			TokenID:         tok.ID,
			Symbol:          tok.Symbol,
			Quantity:        req.Quantity,
			Price:           req.Price,
			Total:           s.SaleValue,
			Fee:             s.Fee,
			ProfitLoss:      s.Profit,
			Net:             s.Net,
			NewPrice:        m.Price,
			PositionBalance: pos.Balance,
			CashBalance:     w.CashBalance,
		}
		quote = domain.NewMarketQuote(tok, m)
		return nil
	})
	if err != nil {
		observability.RecordTradeRejected("sell", rejectReason(err))
		return domain.TradeResult{}, surface(ctx, e.logger, "sell", err)
	}

	e.afterCommit(ctx, userID, res, quote, start)
	return res, nil
}

// tradeEvent is the payload published on the trades channel.
type tradeEvent struct {
	Event  string             `json:"event"`
	UserID string             `json:"user_id"`
	Trade  domain.TradeResult `json:"trade"`
}

// afterCommit runs the side effects of a committed trade. Nothing here can
// fail the trade.
func (e *TradeExecutor) afterCommit(ctx context.Context, userID string, res domain.TradeResult, quote domain.MarketQuote, start time.Time) {
	side := "buy"
	if res.Type == domain.TxSell {
		side = "sell"
	}

	e.feed.PublishQuotes(ctx, domain.PriceSourceTrade, quote)
	e.feed.Publish(ctx, domain.ChannelTrades, tradeEvent{Event: "trade_executed", UserID: userID, Trade: res})

	observability.RecordTrade(side, res.Symbol.String(), res.Total.InexactFloat64(), res.Fee.InexactFloat64(), e.clock.Since(start).Seconds())

	if e.audit != nil {
		if err := e.audit.Log(ctx, "trade_executed", map[string]any{
			"user_id":     userID,
			"reference":   res.Reference,
			"side":        side,
			"symbol":      res.Symbol.String(),
			"quantity":    res.Quantity.String(),
			"price":       res.Price.String(),
			"total":       res.Total.String(),
			"fee":         res.Fee.String(),
			"profit_loss": res.ProfitLoss.String(),
		}); err != nil {
			e.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	if res.Type == domain.TxSell && res.ProfitLoss.GreaterThan(e.rules.ProfitNotifyThreshold) {
		if !e.mail.EnqueueForUser(userID, profitMail(res)) {
			e.logger.WarnContext(ctx, "profit notification not queued", slog.String("user_id", userID))
		}
	}

	e.logger.InfoContext(ctx, "trade executed",
		slog.String("side", side),
		slog.String("user_id", userID),
		slog.String("symbol", res.Symbol.String()),
		slog.String("quantity", res.Quantity.String()),
		slog.String("price", res.Price.String()),
		slog.String("new_price", res.NewPrice.String()),
	)
}

func profitMail(res domain.TradeResult) notify.Composer {
	return func(c domain.UserContact) notify.Mail {
		name := c.FirstName
		if name == "" {
			name = "User"
		}
		body := fmt.Sprintf(
			"Dear %s,\n\nCongratulations! You've made a profit of ₦%s from your recent sale of %s %s tokens.\n\n"+
				"Sale details:\n- Tokens sold: %s %s\n- Sale price: ₦%s per token\n- Total sale value: ₦%s\n- Profit fee: ₦%s\n- Net amount: ₦%s\n",
			name, res.ProfitLoss.StringFixed(domain.MoneyScale), res.Quantity, res.Symbol,
			res.Quantity, res.Symbol, res.Price,
			res.Total.StringFixed(domain.MoneyScale), res.Fee.StringFixed(domain.MoneyScale), res.Net.StringFixed(domain.MoneyScale),
		)
		return notify.Mail{To: c.Email, Subject: "Profitable Token Sale", Body: body}
	}
}
