package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/medflow/stock-ledger/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with a meaningful message.
// Returns nil if the error is not a pq.Error or has no mapping.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	case "23514": // check_violation
		return mapCheckConstraint(pqErr)
	case "23505": // unique_violation
		return errors.Conflict(formatConstraintMessage(pqErr))
	case "23503": // foreign_key_violation
		return errors.BadRequest("referenced product does not exist")
	case "22003": // numeric_value_out_of_range
		return errors.BadRequest("numeric value out of range")
	case "23502": // not_null_violation
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

func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "remaining_quantity"):
		return errors.Conflict("stock quantity would become negative")
	case strings.Contains(constraint, "quantity"):
		return errors.Validation(map[string]string{
			"quantity": "must be a positive integer",
		})
	case strings.Contains(constraint, "min_stock"):
		return errors.Validation(map[string]string{
			"min_stock": "must not be negative",
		})
	case strings.Contains(constraint, "movement_type"):
		return errors.Validation(map[string]string{
			"type": "must be one of: IN, OUT",
		})
	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

func formatConstraintMessage(pqErr *pq.Error) string {
	switch {
	case strings.Contains(pqErr.Constraint, "products_pkey") || strings.Contains(pqErr.Constraint, "barcode"):
		return "a product with this barcode already exists"
	default:
		return "a record with these values already exists"
	}
}
