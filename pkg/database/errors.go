package database

import (
	"strings"

	"github.com/freshtrace/freshtrace-backend/pkg/errors"
	"github.com/lib/pq"
)

// PostgreSQL error codes used by the repositories.
const (
	CodeUniqueViolation     = "23505"
	CodeCheckViolation      = "23514"
	CodeForeignKeyViolation = "23503"
	CodeNotNullViolation    = "23502"
	CodeSerializationFail   = "40001"
)

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation, optionally restricted to a named constraint. The lot repository
// uses this to detect lot code collisions on insert.
func IsUniqueViolation(err error, constraint string) bool {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return false
	}
	if string(pqErr.Code) != CodeUniqueViolation {
		return false
	}
	return constraint == "" || strings.Contains(pqErr.Constraint, constraint)
}

// IsSerializationFailure reports whether err is a serialization failure that
// can be retried by re-running the transaction.
func IsSerializationFailure(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && string(pqErr.Code) == CodeSerializationFail
}

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch string(pqErr.Code) {
	case CodeCheckViolation:
		return mapCheckConstraint(pqErr)

	case CodeUniqueViolation:
		return errors.Conflict(formatConstraintMessage(pqErr))

	case CodeForeignKeyViolation:
		return errors.BadRequest("referenced record does not exist")

	case CodeNotNullViolation:
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "available_within_received"):
		return errors.Validation(map[string]string{
			"available_quantity": "must stay between zero and the received quantity",
		})

	case strings.Contains(constraint, "received_quantity_positive"):
		return errors.Validation(map[string]string{
			"received_quantity": "must be greater than zero",
		})

	case strings.Contains(constraint, "quantity_positive"):
		return errors.Validation(map[string]string{
			"quantity": "must be greater than zero",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "lots_pkey") || strings.Contains(constraint, "lot_code"):
		return "a lot with this lot code already exists"
	case strings.Contains(constraint, "gtin"):
		return "an item with this GTIN already exists"
	default:
		return "a record with these values already exists"
	}
}
