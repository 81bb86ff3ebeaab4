// Package ports declares the Record Store contract shared by the coordinator,
// the conflict detector and the expiry sweeper.
package ports

import (
	"context"
	"time"

	"rightsledger/internal/ownership/models"
	audit "rightsledger/pkg/platform/audit"
)

// RecordStore reads and writes ownership records inside one transaction.
// Find* return sentinel.ErrNotFound when the row is absent.
type RecordStore interface {
	CreateRecord(ctx context.Context, record *models.OwnershipRecord) error
	UpdateRecord(ctx context.Context, record *models.OwnershipRecord) error
	FindRecord(ctx context.Context, id string) (*models.OwnershipRecord, error)
	// LockRecord returns the current row and holds an exclusive lock on it
	// until the transaction ends.
	LockRecord(ctx context.Context, id string) (*models.OwnershipRecord, error)
	// LockScope serializes every writer of one (subject, category, territory).
	LockScope(ctx context.Context, scope models.Scope) error
	FindActiveByScope(ctx context.Context, scope models.Scope) ([]*models.OwnershipRecord, error)
	// FindActiveBySubject returns ACTIVE records of subject; an empty category matches all.
	FindActiveBySubject(ctx context.Context, subject models.Subject, category models.RightsCategory) ([]*models.OwnershipRecord, error)
	ListExpiredActive(ctx context.Context, asOf time.Time, limit int) ([]*models.OwnershipRecord, error)
	ListActiveSubjects(ctx context.Context) ([]models.SubjectCategory, error)
}

// TransferStore persists the transfer state machine.
type TransferStore interface {
	CreateTransfer(ctx context.Context, transfer *models.OwnershipTransfer) error
	UpdateTransfer(ctx context.Context, transfer *models.OwnershipTransfer) error
	FindTransfer(ctx context.Context, id string) (*models.OwnershipTransfer, error)
	LockTransfer(ctx context.Context, id string) (*models.OwnershipTransfer, error)
	// ListTransfersBySubject returns transfers of subject; an empty category matches all.
	ListTransfersBySubject(ctx context.Context, subject models.Subject, category models.RightsCategory) ([]*models.OwnershipTransfer, error)
}

// ConflictStore persists derived conflicts.
type ConflictStore interface {
	CreateConflict(ctx context.Context, conflict *models.OwnershipConflict) error
	UpdateConflict(ctx context.Context, conflict *models.OwnershipConflict) error
	// FindUnresolvedConflict looks up a non-resolved conflict by key.
	FindUnresolvedConflict(ctx context.Context, key string) (*models.OwnershipConflict, error)
	ListConflicts(ctx context.Context, filter models.ConflictFilter) ([]*models.OwnershipConflict, error)
}

// EventStore appends to the transactional outbox.
type EventStore interface {
	AppendEvent(ctx context.Context, event audit.Event) error
}

// Store is the full tx-scoped handle passed to RunInTx callbacks.
type Store interface {
	RecordStore
	TransferStore
	ConflictStore
	EventStore
}

// StoreTx provides the transactional boundary. All writes made through the
// Store handed to fn commit together or not at all; fn's error, a timeout or a
// cancelled context roll everything back. Lock waits that exceed the
// transaction deadline surface as a domain concurrency error.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(store Store) error) error
}
