package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	apperrors "github.com/freshtrace/freshtrace-backend/pkg/errors"
)

// Sentinel errors for the fulfillment domain. Callers match on these with
// errors.Is; the AppError constructors below attach HTTP codes and details
// for the handler layer.
var (
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrOverRelease         = errors.New("release exceeds received quantity")
	ErrInvalidGTIN         = errors.New("invalid GTIN")
	ErrLotCodeCollision    = errors.New("lot code already exists")
	ErrGenerationExhausted = errors.New("lot code generation exhausted")
)

// InvalidQuantity reports a non-positive quantity on receive, allocate or release
func InvalidQuantity(quantity int) *apperrors.AppError {
	return &apperrors.AppError{
		Err:        ErrInvalidQuantity,
		Code:       "INVALID_QUANTITY",
		Message:    fmt.Sprintf("quantity must be greater than zero, got %d", quantity),
		StatusCode: http.StatusBadRequest,
	}
}

// InsufficientStock reports that an item's combined available quantity cannot
// cover the requested amount. The offending item is carried in the details so
// callers can surface which line failed.
func InsufficientStock(itemID string, requested, available int) *apperrors.AppError {
	return &apperrors.AppError{
		Err:        ErrInsufficientStock,
		Code:       "INSUFFICIENT_STOCK",
		Message:    fmt.Sprintf("not enough stock for item %s: requested %d, available %d", itemID, requested, available),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"item_id":   itemID,
			"requested": strconv.Itoa(requested),
			"available": strconv.Itoa(available),
		},
	}
}

// OverRelease reports a release that would push a lot above its received
// quantity. This indicates a caller bug such as a double cancellation.
func OverRelease(lotCode string, quantity, available, received int) *apperrors.AppError {
	return &apperrors.AppError{
		Err:        ErrOverRelease,
		Code:       "OVER_RELEASE",
		Message:    fmt.Sprintf("releasing %d to lot %s would exceed received quantity (%d available of %d received)", quantity, lotCode, available, received),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"lot_code": lotCode,
		},
	}
}

// InvalidGTIN reports a GTIN that is not 8, 12, 13 or 14 digits after
// normalization, or whose check digit does not verify.
func InvalidGTIN(gtin, reason string) *apperrors.AppError {
	return &apperrors.AppError{
		Err:        ErrInvalidGTIN,
		Code:       "INVALID_GTIN",
		Message:    fmt.Sprintf("invalid GTIN %q: %s", gtin, reason),
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// LotCodeCollision reports a duplicate lot code detected by the ledger's
// insertion check. The ledger retries internally before surfacing
// GenerationExhausted.
func LotCodeCollision(lotCode string) *apperrors.AppError {
	return &apperrors.AppError{
		Err:        ErrLotCodeCollision,
		Code:       "LOT_CODE_COLLISION",
		Message:    fmt.Sprintf("lot code %s already exists", lotCode),
		StatusCode: http.StatusConflict,
	}
}

// GenerationExhausted reports that the bounded collision retry ran out of
// attempts. This points at a data-integrity problem and is logged as fatal
// rather than retried further.
func GenerationExhausted(attempts int) *apperrors.AppError {
	return &apperrors.AppError{
		Err:        ErrGenerationExhausted,
		Code:       "GENERATION_EXHAUSTED",
		Message:    fmt.Sprintf("failed to generate a unique lot code after %d attempts", attempts),
		StatusCode: http.StatusInternalServerError,
	}
}
