package repositories

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ledger-market/backend/internal/models"
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
)

// convertErr maps driver errors onto the domain error taxonomy.
func convertErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return fmt.Errorf("%w: %s", models.ErrConcurrencyConflict, pgErr.Message)
	case pgUniqueViolation:
		return fmt.Errorf("%w: %s already exists", models.ErrValidation, pgErr.ConstraintName)
	case pgCheckViolation:
		return fmt.Errorf("%w: %s", models.ErrValidation, pgErr.ConstraintName)
	}
	return err
}
