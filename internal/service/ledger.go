package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

// PositionLedger maintains per-user holdings with average-cost accounting.
// Its methods only run inside a unit of work that already holds the
// position's row lock.
type PositionLedger struct {
	rules domain.PriceRules
}

// NewPositionLedger creates a PositionLedger.
func NewPositionLedger(rules domain.PriceRules) PositionLedger {
	return PositionLedger{rules: rules}
}

// SellSettlement is the cash arithmetic of a sell.
type SellSettlement struct {
	SaleValue decimal.Decimal
	CostBasis decimal.Decimal
	Profit    decimal.Decimal
	Fee       decimal.Decimal
	Net       decimal.Decimal
}

// Settle prices selling qty of pos at price. The fee is charged on profit
// only.
func (l PositionLedger) Settle(pos domain.Position, qty, price decimal.Decimal) SellSettlement {
	sale := domain.RoundMoney(qty.Mul(price))
	basis := domain.RoundMoney(qty.Mul(pos.AverageBuyPrice))
	profit := sale.Sub(basis)
	fee := decimal.Zero
	if profit.IsPositive() {
		fee = domain.RoundMoney(profit.Mul(l.rules.ProfitFeeRate))
	}
	return SellSettlement{
		SaleValue: sale,
		CostBasis: basis,
		Profit:    profit,
		Fee:       fee,
		Net:       sale.Sub(fee),
	}
}

// Buy adds qty bought at price for cost to the user's position, creating it
// if needed.
func (l PositionLedger) Buy(ctx context.Context, tx domain.Tx, userID string, tokenID int64, qty, price, cost decimal.Decimal, now time.Time) (domain.Position, error) {
	pos, err := tx.PositionForUpdate(ctx, userID, tokenID)
	switch {
	case err == nil:
		pos.TotalInvested = pos.TotalInvested.Add(cost)
		pos.Balance = pos.Balance.Add(qty)
		pos.AverageBuyPrice = domain.RoundPrice(pos.TotalInvested.Div(pos.Balance))
		pos.UpdatedAt = now
		if err := tx.UpdatePosition(ctx, pos); err != nil {
			return domain.Position{}, fmt.Errorf("ledger: update position: %w", err)
		}
		return pos, nil

	case isNotFound(err):
		created, err := tx.InsertPosition(ctx, domain.Position{
			UserID:          userID,
			TokenID:         tokenID,
			Balance:         qty,
			AverageBuyPrice: price,
			TotalInvested:   cost,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		if err != nil {
			return domain.Position{}, fmt.Errorf("ledger: insert position: %w", err)
		}
		return created, nil

	default:
		return domain.Position{}, fmt.Errorf("ledger: lock position: %w", err)
	}
}

// Sell removes qty of sym from pos. Only the balance changes: the average
// price and total invested keep their values so the next buy averages over
// the full purchase history. A position that reaches zero is deleted; the
// returned bool reports that.
func (l PositionLedger) Sell(ctx context.Context, tx domain.Tx, sym domain.Symbol, pos domain.Position, qty decimal.Decimal, now time.Time) (domain.Position, bool, error) {
	remaining := pos.Balance.Sub(qty)
	if remaining.IsNegative() {
		return pos, false, &domain.InsufficientHoldingError{Symbol: sym, Requested: qty, Held: pos.Balance}
	}
	if remaining.IsZero() {
		if err := tx.DeletePosition(ctx, pos.ID); err != nil {
			return pos, false, fmt.Errorf("ledger: delete position: %w", err)
		}
		pos.Balance = decimal.Zero
		return pos, true, nil
	}

	pos.Balance = remaining
	pos.UpdatedAt = now
	if err := tx.UpdatePosition(ctx, pos); err != nil {
		return pos, false, fmt.Errorf("ledger: update position: %w", err)
	}
	return pos, false, nil
}
