package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

// WalletService opens wallets and posts confirmed deposits to the ledger.
type WalletService struct {
	uow    domain.UnitOfWork
	users  domain.UserDirectory
	audit  domain.AuditStore
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewWalletService creates a WalletService. users and audit may be nil.
func NewWalletService(uow domain.UnitOfWork, users domain.UserDirectory, audit domain.AuditStore, clock clockwork.Clock, logger *slog.Logger) *WalletService {
	return &WalletService{
		uow:    uow,
		users:  users,
		audit:  audit,
		clock:  clock,
		logger: logger.With(slog.String("component", "wallet_service")),
	}
}

// Open returns the wallet of userID, creating an empty one if needed.
func (s *WalletService) Open(ctx context.Context, userID string) (domain.Wallet, error) {
	if userID == "" {
		return domain.Wallet{}, domain.NewValidationError("user_id", "is required")
	}

	var (
		w       domain.Wallet
		created bool
	)
	err := s.uow.InTx(ctx, func(tx domain.Tx) error {
		existing, err := tx.WalletForUpdate(ctx, userID)
		if err == nil {
			w = existing
			return nil
		}
		if !isNotFound(err) {
			return fmt.Errorf("lock wallet: %w", err)
		}
		now := s.clock.Now()
		w, err = tx.CreateWallet(ctx, domain.Wallet{
			UserID:         userID,
			CashBalance:    decimal.Zero,
			TotalInvested:  decimal.Zero,
			RealizedProfit: decimal.Zero,
			TotalFeesPaid:  decimal.Zero,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if err != nil {
			return fmt.Errorf("create wallet: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return domain.Wallet{}, surface(ctx, s.logger, "open wallet", err)
	}
	if created {
		s.logger.InfoContext(ctx, "wallet opened", slog.String("user_id", userID), slog.Int64("wallet_id", w.ID))
	}
	return w, nil
}

// SaveContact records where notifications for c.UserID should go.
func (s *WalletService) SaveContact(ctx context.Context, c domain.UserContact) error {
	if c.UserID == "" {
		return domain.NewValidationError("user_id", "is required")
	}
	if s.users == nil {
		return nil
	}
	if err := s.users.SaveContact(ctx, c); err != nil {
		return surface(ctx, s.logger, "save contact", err)
	}
	return nil
}

// RecordDeposit credits amount to the wallet of userID and appends the
// matching DEPOSIT ledger entry. An empty reference is replaced by a new
// one.
func (s *WalletService) RecordDeposit(ctx context.Context, userID string, amount decimal.Decimal, reference string) (domain.Transaction, error) {
	switch {
	case userID == "":
		return domain.Transaction{}, domain.NewValidationError("user_id", "is required")
	case !amount.IsPositive():
		return domain.Transaction{}, domain.NewValidationError("amount", "must be positive")
	case !domain.HasScaleAtMost(amount, domain.MoneyScale):
		return domain.Transaction{}, domain.NewValidationError("amount", fmt.Sprintf("at most %d decimal places", domain.MoneyScale))
	}
	if reference == "" {
		reference = uuid.NewString()
	}

	var rec domain.Transaction
	txCtx := context.WithoutCancel(ctx)
	err := s.uow.InTx(txCtx, func(tx domain.Tx) error {
		w, err := tx.WalletForUpdate(txCtx, userID)
		if err != nil {
			return notFound(err, "wallet", userID)
		}
		now := s.clock.Now()
		w.CashBalance = w.CashBalance.Add(amount)
		w.UpdatedAt = now
		if err := tx.UpdateWallet(txCtx, w); err != nil {
			return fmt.Errorf("update wallet: %w", err)
		}
		rec, err = tx.InsertTransaction(txCtx, domain.Transaction{
			Reference:   reference,
			WalletID:    w.ID,
			UserID:      userID,
			Type:        domain.TxDeposit,
			Quantity:    decimal.Zero,
			Price:       decimal.Zero,
			Fee:         decimal.Zero,
			ProfitLoss:  decimal.Zero,
			Amount:      amount,
			Status:      domain.TxCompleted,
			Description: fmt.Sprintf("Deposit of ₦%s", amount.StringFixed(domain.MoneyScale)),
			CreatedAt:   now,
		})
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Transaction{}, surface(ctx, s.logger, "record deposit", err)
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, "deposit_recorded", map[string]any{
			"user_id":   userID,
			"reference": reference,
			"amount":    amount.String(),
		}); err != nil {
			s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
	s.logger.InfoContext(ctx, "deposit recorded",
		slog.String("user_id", userID),
		slog.String("amount", amount.String()),
		slog.String("reference", reference),
	)
	return rec, nil
}
