// Package validator enforces the per-scope 100% invariant over a snapshot of
// ownership records. It performs no I/O; callers must hand it a snapshot taken
// under the scope lock.
package validator

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"rightsledger/internal/ownership/models"
)

// ErrPercentageExceeded is matched by every *PercentageExceededError.
var ErrPercentageExceeded = errors.New("ownership percentage exceeded")

// PercentageExceededError reports the scope total a write would have produced.
type PercentageExceededError struct {
	Scope    models.Scope
	Existing decimal.Decimal
	Proposed decimal.Decimal
}

func (e *PercentageExceededError) Total() decimal.Decimal {
	return e.Existing.Add(e.Proposed)
}

func (e *PercentageExceededError) Error() string {
	return fmt.Sprintf("%s: scope %s would total %s (existing %s + proposed %s)",
		ErrPercentageExceeded, e.Scope.Key(), e.Total().String(), e.Existing.String(), e.Proposed.String())
}

func (e *PercentageExceededError) Is(target error) bool {
	return target == ErrPercentageExceeded
}

// Sum adds the percentages of ACTIVE records in scope, skipping excludeID.
func Sum(records []*models.OwnershipRecord, scope models.Scope, excludeID string) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		if r == nil || !r.IsActive() || r.Scope() != scope {
			continue
		}
		if excludeID != "" && r.ID == excludeID {
			continue
		}
		total = total.Add(r.Percentage)
	}
	return total
}

// Available is the share of scope not held by ACTIVE records, floored at zero.
func Available(records []*models.OwnershipRecord, scope models.Scope) decimal.Decimal {
	left := models.One.Sub(Sum(records, scope, ""))
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}

// Validate decides whether proposed may be ACTIVE alongside existing.
// The proposed record's own ID is excluded from existing, so the same call
// serves creation and update.
func Validate(proposed *models.OwnershipRecord, existing []*models.OwnershipRecord) error {
	scope := proposed.Scope()
	current := Sum(existing, scope, proposed.ID)
	if models.ExceedsWhole(current.Add(proposed.Percentage)) {
		return &PercentageExceededError{Scope: scope, Existing: current, Proposed: proposed.Percentage}
	}
	return nil
}

// ValidateScope checks a complete post-write snapshot of one or more scopes.
func ValidateScope(records []*models.OwnershipRecord) error {
	totals := make(map[models.Scope]decimal.Decimal)
	var order []models.Scope
	for _, r := range records {
		if r == nil || !r.IsActive() {
			continue
		}
		s := r.Scope()
		if _, ok := totals[s]; !ok {
			order = append(order, s)
		}
		totals[s] = totals[s].Add(r.Percentage)
	}
	for _, s := range order {
		if models.ExceedsWhole(totals[s]) {
			return &PercentageExceededError{Scope: s, Existing: totals[s], Proposed: decimal.Zero}
		}
	}
	return nil
}
