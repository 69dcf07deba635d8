package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Validation constants
const (
	MaxNameLength   = 255
	MaxNotesLength  = 2000
	MaxIDLength     = 64
	MaxAmount       = "1000000000" // 1 billion
	DefaultPageSize = 500
	MaxPageSize     = 5000
)

var maxAmount = decimal.RequireFromString(MaxAmount)

// ValidateName checks a required human-readable name. sentinel is the error
// returned, wrapped with detail, when the name is unusable.
func ValidateName(name string, sentinel error) error {
	name = strings.TrimSpace(name)

	if name == "" {
		return sentinel
	}

	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: exceeds %d characters", sentinel, MaxNameLength)
	}

	return nil
}

// ValidateAmount validates an expense or settlement amount.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	if amount.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: maximum amount is %s", ErrAmountTooLarge, MaxAmount)
	}

	if !amount.Equal(amount.Truncate(2)) {
		return ErrAmountTooPrecise
	}

	return nil
}

// ValidateID rejects blank or oversized identifiers.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" || len(id) > MaxIDLength {
		return fmt.Errorf("%w: %q", ErrInvalidIDFormat, id)
	}
	return nil
}

// ValidatePagination clamps a page size into the allowed range.
func ValidatePagination(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}

	if limit > MaxPageSize {
		return MaxPageSize
	}

	return limit
}
