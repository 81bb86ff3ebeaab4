package models

import (
	"time"

	"github.com/shopspring/decimal"

	dErrors "rightsledger/pkg/domain-errors"
)

// RegistrationIDs are informational industry identifiers attached to a claim.
type RegistrationIDs struct {
	ISRC       string `json:"isrc,omitempty"`
	ISWC       string `json:"iswc,omitempty"`
	IPI        string `json:"ipi,omitempty"`
	ISNI       string `json:"isni,omitempty"`
	SocietyRef string `json:"society_ref,omitempty"`
}

// OwnershipRecord is one owner's claim over one rights category of one asset.
//
// Invariants:
//   - Percentage is in (0, 1] with at most four decimal places
//   - For each Scope, ACTIVE percentages sum to at most 1 + Epsilon
//   - Subject, category, territory and owner never change after creation
//   - Status follows RecordStatus.CanTransitionTo
type OwnershipRecord struct {
	ID               string          `json:"id"`
	Subject          Subject         `json:"subject"`
	RightsCategory   RightsCategory  `json:"rights_category"`
	OwnerID          string          `json:"owner_id"`
	Percentage       decimal.Decimal `json:"percentage"`
	Status           RecordStatus    `json:"status"`
	Territory        string          `json:"territory"`
	EffectiveDate    time.Time       `json:"effective_date"`
	ExpirationDate   *time.Time      `json:"expiration_date,omitempty"`
	RegistrationIDs  RegistrationIDs `json:"registration_ids"`
	SourceTransferID string          `json:"source_transfer_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NewOwnershipRecord builds a record and enforces field-level invariants.
func NewOwnershipRecord(id string, scope Scope, ownerID string, pct decimal.Decimal, status RecordStatus, effective time.Time, expiration *time.Time, now time.Time) (*OwnershipRecord, error) {
	if !scope.Subject.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "subject must be a track or album with an id")
	}
	if !scope.RightsCategory.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown rights category")
	}
	if ownerID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "owner id is required")
	}
	if err := ValidatePercentage(pct); err != nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, err.Error())
	}
	if status != RecordActive && status != RecordPending {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "records are created ACTIVE or PENDING")
	}
	if effective.IsZero() {
		effective = now
	}
	if expiration != nil && !expiration.After(effective) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "expiration date must be after effective date")
	}
	territory := scope.Territory
	if territory == "" {
		territory = TerritoryWorldwide
	}
	return &OwnershipRecord{
		ID:             id,
		Subject:        scope.Subject,
		RightsCategory: scope.RightsCategory,
		OwnerID:        ownerID,
		Percentage:     pct,
		Status:         status,
		Territory:      territory,
		EffectiveDate:  effective.UTC(),
		ExpirationDate: utcPtr(expiration),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Scope returns the invariant scope of the record.
func (r *OwnershipRecord) Scope() Scope {
	return Scope{Subject: r.Subject, RightsCategory: r.RightsCategory, Territory: r.Territory}
}

func (r *OwnershipRecord) IsActive() bool {
	return r.Status == RecordActive
}

// IsExpiredAt reports whether the record's grant has lapsed at now.
func (r *OwnershipRecord) IsExpiredAt(now time.Time) bool {
	return r.ExpirationDate != nil && !now.Before(*r.ExpirationDate)
}

// WindowOverlaps reports whether the [effective, expiration) windows intersect.
// A nil expiration is open-ended.
func (r *OwnershipRecord) WindowOverlaps(other *OwnershipRecord) bool {
	if r.ExpirationDate != nil && !r.ExpirationDate.After(other.EffectiveDate) {
		return false
	}
	if other.ExpirationDate != nil && !other.ExpirationDate.After(r.EffectiveDate) {
		return false
	}
	return true
}

// TransitionTo moves the record to next if the lifecycle allows it.
func (r *OwnershipRecord) TransitionTo(next RecordStatus, now time.Time) error {
	if r.Status == next {
		return nil
	}
	if !r.Status.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvalidState, "record cannot move from "+string(r.Status)+" to "+string(next))
	}
	r.Status = next
	r.UpdatedAt = now
	return nil
}

// Consume removes pct from the record; a fully consumed record becomes TRANSFERRED.
func (r *OwnershipRecord) Consume(pct decimal.Decimal, now time.Time) error {
	if pct.GreaterThan(r.Percentage) {
		return dErrors.New(dErrors.CodeValidation, "transfer percentage exceeds the source record's share")
	}
	r.Percentage = r.Percentage.Sub(pct)
	r.UpdatedAt = now
	if r.Percentage.IsZero() {
		r.Status = RecordTransferred
	}
	return nil
}

// Clone returns a deep copy.
func (r *OwnershipRecord) Clone() *OwnershipRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.ExpirationDate = copyTime(r.ExpirationDate)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
