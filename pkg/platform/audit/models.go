package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing downstream.
type EventCategory string

const (
	// CategoryCompliance covers ledger mutations with legal significance.
	// Royalty and collection-society consumers treat these as the source of truth.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers derived or housekeeping events (detection, sweeps).
	CategoryOperations EventCategory = "operations"
)

type AuditEvent string

const (
	// Record events
	EventRecordCreated   AuditEvent = "ownership_record_created"
	EventRecordUpdated   AuditEvent = "ownership_record_updated"
	EventRecordActivated AuditEvent = "ownership_record_activated"
	EventRecordExpired   AuditEvent = "ownership_record_expired"
	EventRecordDisputed  AuditEvent = "ownership_record_disputed"

	// Transfer events
	EventTransferProposed  AuditEvent = "transfer_proposed"
	EventTransferExecuted  AuditEvent = "transfer_executed"
	EventTransferCancelled AuditEvent = "transfer_cancelled"
	EventTransferDisputed  AuditEvent = "transfer_disputed"

	// Conflict events
	EventConflictDetected AuditEvent = "conflict_detected"
	EventConflictUpdated  AuditEvent = "conflict_updated"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventRecordCreated:     CategoryCompliance,
	EventRecordUpdated:     CategoryCompliance,
	EventRecordActivated:   CategoryCompliance,
	EventRecordExpired:     CategoryCompliance,
	EventRecordDisputed:    CategoryCompliance,
	EventTransferProposed:  CategoryCompliance,
	EventTransferExecuted:  CategoryCompliance,
	EventTransferCancelled: CategoryCompliance,
	EventTransferDisputed:  CategoryCompliance,

	EventConflictDetected: CategoryOperations,
	EventConflictUpdated:  CategoryOperations,
}

// Category returns the category for the event, defaulting to operations.
func (e AuditEvent) Category() EventCategory {
	if c, ok := eventCategories[e]; ok {
		return c
	}
	return CategoryOperations
}

// Event is a ledger fact written to the outbox in the same transaction as the
// mutation it describes. Keep it transport-agnostic so relays can fan out.
type Event struct {
	ID            string
	Category      EventCategory
	Timestamp     time.Time
	Action        AuditEvent
	AggregateType string // "record", "transfer" or "conflict"
	AggregateID   string
	Subject       string // subject key, used as the partition key downstream
	ActorID       string
	RequestID     string
	Payload       json.RawMessage
}

// NewEvent builds an event with a fresh ID and a JSON payload.
func NewEvent(action AuditEvent, aggregateType, aggregateID, subject string, payload any, now time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", action, err)
	}
	return Event{
		ID:            uuid.NewString(),
		Category:      action.Category(),
		Timestamp:     now,
		Action:        action,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Subject:       subject,
		Payload:       raw,
	}, nil
}

// Validate rejects events that relays could not route.
func (e Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("audit event requires ID")
	}
	if e.Action == "" {
		return fmt.Errorf("audit event requires Action")
	}
	if e.AggregateID == "" {
		return fmt.Errorf("audit event requires AggregateID")
	}
	return nil
}

// Envelope is the wire shape published to the event stream.
type Envelope struct {
	ID            string          `json:"id"`
	Category      string          `json:"category"`
	Timestamp     string          `json:"timestamp"`
	Action        string          `json:"action"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Subject       string          `json:"subject,omitempty"`
	ActorID       string          `json:"actor_id,omitempty"`
	RequestID     string          `json:"request_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// ToEnvelope converts an event for publishing.
func (e Event) ToEnvelope() Envelope {
	return Envelope{
		ID:            e.ID,
		Category:      string(e.Category),
		Timestamp:     e.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:        string(e.Action),
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Subject:       e.Subject,
		ActorID:       e.ActorID,
		RequestID:     e.RequestID,
		Payload:       e.Payload,
	}
}
