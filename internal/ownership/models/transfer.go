package models

import (
	"time"

	"github.com/shopspring/decimal"

	dErrors "rightsledger/pkg/domain-errors"
)

// Consideration is the optional payment attached to a transfer.
type Consideration struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// OwnershipTransfer moves a share from one owner's record to a new record for another.
//
// Invariants:
//   - Percentage never exceeds the source record's share at execution time
//   - Status only leaves PENDING, exactly once
//   - ResultRecordID and SourcePercentageBefore are set iff Status is EXECUTED
type OwnershipTransfer struct {
	ID             string          `json:"id"`
	SourceRecordID string          `json:"source_record_id"`
	TransferorID   string          `json:"transferor_id"`
	TransfereeID   string          `json:"transferee_id"`
	Type           TransferType    `json:"transfer_type"`
	Percentage     decimal.Decimal `json:"percentage"`
	Status         TransferStatus  `json:"status"`
	TransferDate   time.Time       `json:"transfer_date"`
	EffectiveDate  time.Time       `json:"effective_date"`
	ExpirationDate *time.Time      `json:"expiration_date,omitempty"`
	Consideration  *Consideration  `json:"consideration,omitempty"`

	// Scope of the source record at proposal time.
	Subject        Subject        `json:"subject"`
	RightsCategory RightsCategory `json:"rights_category"`
	Territory      string         `json:"territory"`

	ExecutedAt             *time.Time       `json:"executed_at,omitempty"`
	ResultRecordID         string           `json:"result_record_id,omitempty"`
	SourcePercentageBefore *decimal.Decimal `json:"source_percentage_before,omitempty"`
	DisputeReason          string           `json:"dispute_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *OwnershipTransfer) Scope() Scope {
	return Scope{Subject: t.Subject, RightsCategory: t.RightsCategory, Territory: t.Territory}
}

// CanMoveTo returns a StateError when the transfer may not enter next.
func (t *OwnershipTransfer) CanMoveTo(next TransferStatus) error {
	if !t.Status.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvalidState, "transfer is "+string(t.Status)+", expected PENDING")
	}
	return nil
}

// MarkExecuted records the execution audit trail.
func (t *OwnershipTransfer) MarkExecuted(resultRecordID string, sourceBefore decimal.Decimal, now time.Time) error {
	if err := t.CanMoveTo(TransferExecuted); err != nil {
		return err
	}
	before := sourceBefore
	t.Status = TransferExecuted
	t.ExecutedAt = &now
	t.ResultRecordID = resultRecordID
	t.SourcePercentageBefore = &before
	t.UpdatedAt = now
	return nil
}

func (t *OwnershipTransfer) Cancel(now time.Time) error {
	if err := t.CanMoveTo(TransferCancelled); err != nil {
		return err
	}
	t.Status = TransferCancelled
	t.UpdatedAt = now
	return nil
}

func (t *OwnershipTransfer) Dispute(reason string, now time.Time) error {
	if err := t.CanMoveTo(TransferDisputed); err != nil {
		return err
	}
	t.Status = TransferDisputed
	t.DisputeReason = reason
	t.UpdatedAt = now
	return nil
}

// Clone returns a deep copy.
func (t *OwnershipTransfer) Clone() *OwnershipTransfer {
	if t == nil {
		return nil
	}
	c := *t
	c.ExpirationDate = copyTime(t.ExpirationDate)
	c.ExecutedAt = copyTime(t.ExecutedAt)
	if t.Consideration != nil {
		cons := *t.Consideration
		c.Consideration = &cons
	}
	if t.SourcePercentageBefore != nil {
		v := *t.SourcePercentageBefore
		c.SourcePercentageBefore = &v
	}
	return &c
}
