package domain

import (
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/medflow/stock-ledger/pkg/errors"
)

// Sentinels for errors.Is checks on stock failures
var (
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrMissingLot        = errors.New("missing lot")
	ErrMissingExpiry     = errors.New("missing expiry date")
	ErrExpiryNotInFuture = errors.New("expiry date not in future")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStaleStock        = errors.New("stock changed concurrently")
)

func InvalidQuantity() *apperrors.AppError {
	return &apperrors.AppError{
		Err:        ErrInvalidQuantity,
		Code:       "INVALID_QUANTITY",
		Message:    fmt.Sprintf("quantity must be a positive integer not above %d", MaxQuantity),
		StatusCode: http.StatusBadRequest,
	}
}

func MissingLot() *apperrors.AppError {
	return &apperrors.AppError{
		Err:        ErrMissingLot,
		Code:       "MISSING_LOT",
		Message:    "lot number is required",
		StatusCode: http.StatusBadRequest,
	}
}

func MissingExpiry() *apperrors.AppError {
	return &apperrors.AppError{
		Err:        ErrMissingExpiry,
		Code:       "MISSING_EXPIRY",
		Message:    "expiry date is required",
		StatusCode: http.StatusBadRequest,
	}
}

func ExpiryNotInFuture(expiry Date) *apperrors.AppError {
	return &apperrors.AppError{
		Err:        ErrExpiryNotInFuture,
		Code:       "EXPIRY_NOT_IN_FUTURE",
		Message:    fmt.Sprintf("expiry date %s must be after today", expiry),
		StatusCode: http.StatusBadRequest,
	}
}

func ProductNotFound(barcode string) *apperrors.AppError {
	return &apperrors.AppError{
		Err:        ErrProductNotFound,
		Code:       "PRODUCT_NOT_FOUND",
		Message:    fmt.Sprintf("product with barcode %s not found", barcode),
		StatusCode: http.StatusNotFound,
	}
}

func InsufficientStock(barcode string, requested, available int) *apperrors.AppError {
	return &apperrors.AppError{
		Err:        ErrInsufficientStock,
		Code:       "INSUFFICIENT_STOCK",
		Message:    fmt.Sprintf("insufficient stock for %s: requested %d, available %d", barcode, requested, available),
		StatusCode: http.StatusConflict,
	}
}

// StaleStock is returned by stores when a change was computed from state that has since moved.
func StaleStock(barcode string) *apperrors.AppError {
	return &apperrors.AppError{
		Err:        ErrStaleStock,
		Code:       "CONFLICT",
		Message:    fmt.Sprintf("stock of %s changed concurrently, retry the request", barcode),
		StatusCode: http.StatusConflict,
	}
}
