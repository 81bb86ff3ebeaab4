package models

import "strings"

// RightsCategory is the closed set of exploitation rights tracked by the ledger.
type RightsCategory string

const (
	RightsMaster          RightsCategory = "master"
	RightsPublishing      RightsCategory = "publishing"
	RightsMechanical      RightsCategory = "mechanical"
	RightsPerformance     RightsCategory = "performance"
	RightsSynchronization RightsCategory = "synchronization"
	RightsDigital         RightsCategory = "digital"
	RightsNeighboring     RightsCategory = "neighboring"
)

// AllRightsCategories lists every category in a stable order.
var AllRightsCategories = []RightsCategory{
	RightsMaster,
	RightsPublishing,
	RightsMechanical,
	RightsPerformance,
	RightsSynchronization,
	RightsDigital,
	RightsNeighboring,
}

func (c RightsCategory) IsValid() bool {
	for _, known := range AllRightsCategories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseRightsCategory normalizes case and rejects unknown categories.
func ParseRightsCategory(s string) (RightsCategory, bool) {
	c := RightsCategory(strings.ToLower(strings.TrimSpace(s)))
	return c, c.IsValid()
}

// SubjectType identifies which kind of asset a right attaches to.
type SubjectType string

const (
	SubjectTrack SubjectType = "track"
	SubjectAlbum SubjectType = "album"
)

func (t SubjectType) IsValid() bool {
	return t == SubjectTrack || t == SubjectAlbum
}

// RecordStatus is the lifecycle state of an ownership record.
type RecordStatus string

const (
	RecordActive      RecordStatus = "ACTIVE"
	RecordPending     RecordStatus = "PENDING"
	RecordExpired     RecordStatus = "EXPIRED"
	RecordDisputed    RecordStatus = "DISPUTED"
	RecordTransferred RecordStatus = "TRANSFERRED"
)

var recordTransitions = map[RecordStatus][]RecordStatus{
	RecordPending:  {RecordActive, RecordExpired},
	RecordActive:   {RecordTransferred, RecordExpired, RecordDisputed},
	RecordDisputed: {RecordActive, RecordExpired},
}

func (s RecordStatus) IsValid() bool {
	switch s {
	case RecordActive, RecordPending, RecordExpired, RecordDisputed, RecordTransferred:
		return true
	}
	return false
}

// CanTransitionTo reports whether the record lifecycle allows moving to next.
func (s RecordStatus) CanTransitionTo(next RecordStatus) bool {
	for _, allowed := range recordTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s RecordStatus) IsTerminal() bool {
	return len(recordTransitions[s]) == 0
}

// TransferType is the legal form of a share movement.
type TransferType string

const (
	TransferAssignment TransferType = "assignment"
	TransferLicense    TransferType = "license"
	TransferSublicense TransferType = "sublicense"
	TransferReversion  TransferType = "reversion"
)

func (t TransferType) IsValid() bool {
	switch t {
	case TransferAssignment, TransferLicense, TransferSublicense, TransferReversion:
		return true
	}
	return false
}

// TransferStatus is the state of a transfer. Transitions are monotonic.
type TransferStatus string

const (
	TransferPending   TransferStatus = "PENDING"
	TransferExecuted  TransferStatus = "EXECUTED"
	TransferCancelled TransferStatus = "CANCELLED"
	TransferDisputed  TransferStatus = "DISPUTED"
)

// CanTransitionTo reports whether moving from s to next is allowed.
// Only PENDING has outgoing edges.
func (s TransferStatus) CanTransitionTo(next TransferStatus) bool {
	if s != TransferPending {
		return false
	}
	switch next {
	case TransferExecuted, TransferCancelled, TransferDisputed:
		return true
	}
	return false
}

func (s TransferStatus) IsTerminal() bool {
	return s != TransferPending
}

// ConflictType classifies a detected anomaly.
type ConflictType string

const (
	ConflictOwnershipDispute   ConflictType = "ownership_dispute"
	ConflictPercentageMismatch ConflictType = "percentage_mismatch"
	ConflictOverlappingClaims  ConflictType = "overlapping_claims"
	ConflictExpiredRights      ConflictType = "expired_rights"
	ConflictInvalidTransfer    ConflictType = "invalid_transfer"
	ConflictTerritory          ConflictType = "territory_conflict"
)

func (t ConflictType) IsValid() bool {
	switch t {
	case ConflictOwnershipDispute, ConflictPercentageMismatch, ConflictOverlappingClaims,
		ConflictExpiredRights, ConflictInvalidTransfer, ConflictTerritory:
		return true
	}
	return false
}

// Severity ranks how urgently a conflict needs manual attention.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ConflictStatus tracks the out-of-band resolution workflow.
type ConflictStatus string

const (
	ConflictOpen          ConflictStatus = "open"
	ConflictInvestigating ConflictStatus = "investigating"
	ConflictResolved      ConflictStatus = "resolved"
	ConflictEscalated     ConflictStatus = "escalated"
)

func (s ConflictStatus) IsValid() bool {
	switch s {
	case ConflictOpen, ConflictInvestigating, ConflictResolved, ConflictEscalated:
		return true
	}
	return false
}

// IsUnresolved reports whether the conflict still counts for de-duplication.
func (s ConflictStatus) IsUnresolved() bool {
	return s != ConflictResolved
}
