package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

// notFound converts a store-level ErrNotFound into a typed NotFoundError and
// passes every other error through.
func notFound(err error, entity, key string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.NotFoundError{Entity: entity, Key: key}
	}
	return err
}

func idKey(id int64) string { return strconv.FormatInt(id, 10) }

// surface returns business errors unchanged and wraps everything else in a
// PersistenceError after logging the cause.
func surface(ctx context.Context, logger *slog.Logger, op string, err error) error {
	if domain.IsDomainError(err) {
		return err
	}
	logger.ErrorContext(ctx, op+" failed", slog.String("error", err.Error()))
	return &domain.PersistenceError{Op: op, Err: err}
}

// rejectReason labels an error for metrics.
func rejectReason(err error) string {
	var (
		ve *domain.ValidationError
		nf *domain.NotFoundError
		fe *domain.InsufficientFundsError
		he *domain.InsufficientHoldingError
		se *domain.InsufficientSupplyError
		sp *domain.StalePriceError
	)
	switch {
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &fe):
		return "insufficient_funds"
	case errors.As(err, &he):
		return "insufficient_holding"
	case errors.As(err, &se):
		return "insufficient_supply"
	case errors.As(err, &sp):
		return "stale_price"
	default:
		return "persistence"
	}
}

func isNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }
