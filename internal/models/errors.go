package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrInvalidTransition     = errors.New("invalid transition")
	ErrAlreadyResolved       = errors.New("dispute already resolved")
	ErrNotFound              = errors.New("not found")
	ErrForbidden             = errors.New("not authorized")
	ErrConcurrencyConflict   = errors.New("concurrent update conflict, retry")
)

// TransitionError is returned for a status change outside the allowed table.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition from %s to %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// ValidateAmount requires a positive amount with at most two decimal places.
func ValidateAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return Validationf("%s must be positive", field)
	}
	if !amount.Equal(amount.Round(2)) {
		return Validationf("%s must have at most 2 decimal places", field)
	}
	return nil
}
