package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateRecordCommand is the input of the ownership-creation path.
type CreateRecordCommand struct {
	Subject         Subject
	RightsCategory  RightsCategory
	OwnerID         string
	Percentage      decimal.Decimal
	Territory       string
	Status          RecordStatus // ACTIVE when empty
	EffectiveDate   *time.Time
	ExpirationDate  *time.Time
	RegistrationIDs RegistrationIDs
}

// UpdateRecordCommand changes the mutable fields of a record. Nil fields are untouched.
type UpdateRecordCommand struct {
	Percentage      *decimal.Decimal
	Status          *RecordStatus
	EffectiveDate   *time.Time
	ExpirationDate  *time.Time
	ClearExpiration bool
	RegistrationIDs *RegistrationIDs
}

// ProposeTransferCommand is the input of ProposeTransfer. TransferorID is the caller.
type ProposeTransferCommand struct {
	SourceRecordID string
	TransferorID   string
	TransfereeID   string
	Type           TransferType
	Percentage     decimal.Decimal
	EffectiveDate  *time.Time
	ExpirationDate *time.Time
	Consideration  *Consideration
}

// ScopeHoldings summarizes the ACTIVE claims of one scope.
type ScopeHoldings struct {
	Scope     Scope              `json:"scope"`
	Total     decimal.Decimal    `json:"total"`
	Available decimal.Decimal    `json:"available"`
	Records   []*OwnershipRecord `json:"records"`
}

// OwnershipView is the read model returned by QueryOwnership.
type OwnershipView struct {
	Subject  Subject          `json:"subject"`
	Holdings []*ScopeHoldings `json:"holdings"`
}
