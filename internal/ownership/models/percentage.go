package models

import (
	"github.com/shopspring/decimal"

	dErrors "rightsledger/pkg/domain-errors"
)

// PercentagePlaces is the maximum number of decimal places a share may carry.
const PercentagePlaces = 4

var (
	// One is a whole (100%) share.
	One = decimal.NewFromInt(1)
	// Epsilon absorbs decimal rounding when comparing sums against One.
	Epsilon = decimal.New(1, -6)
	// MaxTotal is the largest admissible per-scope sum of ACTIVE shares.
	MaxTotal = One.Add(Epsilon)
)

// ValidatePercentage enforces 0 < p <= 1 with at most four decimal places.
func ValidatePercentage(p decimal.Decimal) error {
	if !p.IsPositive() {
		return dErrors.New(dErrors.CodeBadRequest, "percentage must be greater than zero")
	}
	if p.GreaterThan(One) {
		return dErrors.New(dErrors.CodeBadRequest, "percentage must not exceed 1")
	}
	if !p.Equal(p.Truncate(PercentagePlaces)) {
		return dErrors.New(dErrors.CodeBadRequest, "percentage supports at most four decimal places")
	}
	return nil
}

// ParsePercentage parses a decimal string and validates it.
func ParsePercentage(s string) (decimal.Decimal, error) {
	p, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, dErrors.New(dErrors.CodeBadRequest, "percentage must be a decimal number")
	}
	if err := ValidatePercentage(p); err != nil {
		return decimal.Zero, err
	}
	return p, nil
}

// ExceedsWhole reports whether a scope total breaks the 100% invariant.
func ExceedsWhole(total decimal.Decimal) bool {
	return total.GreaterThan(MaxTotal)
}
