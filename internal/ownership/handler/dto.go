package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"rightsledger/internal/ownership/conflict"
	"rightsledger/internal/ownership/models"
)

// CreateRecordRequest is the body of POST /v1/records.
type CreateRecordRequest struct {
	SubjectType     models.SubjectType     `json:"subject_type"`
	SubjectID       string                 `json:"subject_id"`
	RightsCategory  string                 `json:"rights_category"`
	OwnerID         string                 `json:"owner_id"`
	Percentage      decimal.Decimal        `json:"percentage"`
	Territory       string                 `json:"territory,omitempty"`
	Status          models.RecordStatus    `json:"status,omitempty"`
	EffectiveDate   *time.Time             `json:"effective_date,omitempty"`
	ExpirationDate  *time.Time             `json:"expiration_date,omitempty"`
	RegistrationIDs models.RegistrationIDs `json:"registration_ids"`
}

func (r CreateRecordRequest) toCommand() models.CreateRecordCommand {
	category, _ := models.ParseRightsCategory(r.RightsCategory)
	return models.CreateRecordCommand{
		Subject:         models.Subject{Type: r.SubjectType, ID: r.SubjectID},
		RightsCategory:  category,
		OwnerID:         r.OwnerID,
		Percentage:      r.Percentage,
		Territory:       r.Territory,
		Status:          r.Status,
		EffectiveDate:   r.EffectiveDate,
		ExpirationDate:  r.ExpirationDate,
		RegistrationIDs: r.RegistrationIDs,
	}
}

// UpdateRecordRequest is the body of PATCH /v1/records/{id}.
type UpdateRecordRequest struct {
	Percentage      *decimal.Decimal        `json:"percentage,omitempty"`
	Status          *models.RecordStatus    `json:"status,omitempty"`
	EffectiveDate   *time.Time              `json:"effective_date,omitempty"`
	ExpirationDate  *time.Time              `json:"expiration_date,omitempty"`
	ClearExpiration bool                    `json:"clear_expiration,omitempty"`
	RegistrationIDs *models.RegistrationIDs `json:"registration_ids,omitempty"`
}

func (r UpdateRecordRequest) toCommand() models.UpdateRecordCommand {
	return models.UpdateRecordCommand{
		Percentage:      r.Percentage,
		Status:          r.Status,
		EffectiveDate:   r.EffectiveDate,
		ExpirationDate:  r.ExpirationDate,
		ClearExpiration: r.ClearExpiration,
		RegistrationIDs: r.RegistrationIDs,
	}
}

// ProposeTransferRequest is the body of POST /v1/transfers. The transferor is
// the authenticated caller.
type ProposeTransferRequest struct {
	SourceRecordID string                `json:"source_record_id"`
	TransfereeID   string                `json:"transferee_id"`
	TransferType   models.TransferType   `json:"transfer_type"`
	Percentage     decimal.Decimal       `json:"percentage"`
	EffectiveDate  *time.Time            `json:"effective_date,omitempty"`
	ExpirationDate *time.Time            `json:"expiration_date,omitempty"`
	Consideration  *models.Consideration `json:"consideration,omitempty"`
}

func (r ProposeTransferRequest) toCommand(transferor string) models.ProposeTransferCommand {
	return models.ProposeTransferCommand{
		SourceRecordID: r.SourceRecordID,
		TransferorID:   transferor,
		TransfereeID:   r.TransfereeID,
		Type:           r.TransferType,
		Percentage:     r.Percentage,
		EffectiveDate:  r.EffectiveDate,
		ExpirationDate: r.ExpirationDate,
		Consideration:  r.Consideration,
	}
}

type DisputeTransferRequest struct {
	Reason string `json:"reason"`
}

type TransferListResponse struct {
	Transfers []*models.OwnershipTransfer `json:"transfers"`
}

type ConflictListResponse struct {
	Conflicts []*models.OwnershipConflict `json:"conflicts"`
}

type DetectResponse struct {
	Subject models.Subject  `json:"subject"`
	Report  conflict.Report `json:"report"`
}
