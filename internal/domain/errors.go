package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")
)

// ValidationError reports malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// NotFoundError reports a missing entity. It matches ErrNotFound.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InsufficientFundsError is returned when a wallet cannot cover a buy.
type InsufficientFundsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %s, available %s", e.Required, e.Available)
}

// InsufficientHoldingError is returned when a sell exceeds the position.
type InsufficientHoldingError struct {
	Symbol    Symbol
	Requested decimal.Decimal
	Held      decimal.Decimal
}

func (e *InsufficientHoldingError) Error() string {
	return fmt.Sprintf("insufficient %s holding: requested %s, held %s", e.Symbol, e.Requested, e.Held)
}

// InsufficientSupplyError is returned when a buy would put more tokens into
// circulation than the total supply allows.
type InsufficientSupplyError struct {
	Symbol    Symbol
	Requested decimal.Decimal
	Remaining decimal.Decimal
}

func (e *InsufficientSupplyError) Error() string {
	return fmt.Sprintf("insufficient %s supply: requested %s, remaining %s", e.Symbol, e.Requested, e.Remaining)
}

// StalePriceError is returned when the submitted price is outside the
// slippage band around the current market price.
type StalePriceError struct {
	Submitted decimal.Decimal
	Current   decimal.Decimal
}

func (e *StalePriceError) Error() string {
	return fmt.Sprintf("price has changed: submitted %s, current %s", e.Submitted, e.Current)
}

// PersistenceError wraps a storage failure. Error() is deliberately generic;
// the cause is available through Unwrap for logging.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return "internal storage error" }

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsDomainError reports whether err is one of the typed business errors that
// should be returned to callers unchanged.
func IsDomainError(err error) bool {
	var (
		ve *ValidationError
		nf *NotFoundError
		fe *InsufficientFundsError
		he *InsufficientHoldingError
		se *InsufficientSupplyError
		sp *StalePriceError
		pe *PersistenceError
	)
	return errors.As(err, &ve) || errors.As(err, &nf) || errors.As(err, &fe) ||
		errors.As(err, &he) || errors.As(err, &se) || errors.As(err, &sp) ||
		errors.As(err, &pe) || errors.Is(err, ErrAlreadyExists)
}
