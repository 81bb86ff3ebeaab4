package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"rightsledger/internal/ownership/models"
	"rightsledger/internal/ownership/ports"
	dErrors "rightsledger/pkg/domain-errors"
	audit "rightsledger/pkg/platform/audit"
	"rightsledger/pkg/platform/sentinel"
)

// defaultTxTimeout is the maximum duration of one ledger transaction.
const defaultTxTimeout = 5 * time.Second

type memState struct {
	records   map[string]*models.OwnershipRecord
	transfers map[string]*models.OwnershipTransfer
	conflicts map[string]*models.OwnershipConflict
	outbox    []audit.Event
}

func newMemState() *memState {
	return &memState{
		records:   make(map[string]*models.OwnershipRecord),
		transfers: make(map[string]*models.OwnershipTransfer),
		conflicts: make(map[string]*models.OwnershipConflict),
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		records:   make(map[string]*models.OwnershipRecord, len(s.records)),
		transfers: make(map[string]*models.OwnershipTransfer, len(s.transfers)),
		conflicts: make(map[string]*models.OwnershipConflict, len(s.conflicts)),
		outbox:    append([]audit.Event(nil), s.outbox...),
	}
	for id, r := range s.records {
		c.records[id] = r.Clone()
	}
	for id, t := range s.transfers {
		c.transfers[id] = t.Clone()
	}
	for id, cf := range s.conflicts {
		c.conflicts[id] = cf.Clone()
	}
	return c
}

// MemoryStore is an in-process Record Store. Each transaction works on a deep
// copy of the state and swaps it in on success, so a failed callback leaves no
// partial writes. Transactions are serialized by a single weighted semaphore
// whose wait honours the transaction deadline.
type MemoryStore struct {
	sem     *semaphore.Weighted
	mu      sync.RWMutex
	state   *memState
	timeout time.Duration
}

type MemoryOption func(*MemoryStore)

// WithTxTimeout overrides the default transaction timeout.
func WithTxTimeout(d time.Duration) MemoryOption {
	return func(m *MemoryStore) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func NewMemory(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		sem:     semaphore.NewWeighted(1),
		state:   newMemState(),
		timeout: defaultTxTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) RunInTx(ctx context.Context, fn func(store ports.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeConcurrency, "transaction aborted: context cancelled")
	}
	// The caller's deadline still applies when it is earlier.
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return dErrors.Wrap(sentinel.ErrLockTimeout, dErrors.CodeConcurrency, "transaction aborted: lock wait exceeded")
	}
	defer m.sem.Release(1)

	m.mu.RLock()
	working := m.state.clone()
	m.mu.RUnlock()

	if err := fn(&memTx{state: working}); err != nil {
		return err
	}
	// A callback that outlived its deadline must not commit.
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeConcurrency, "transaction aborted: deadline exceeded")
	}

	m.mu.Lock()
	m.state = working
	m.mu.Unlock()
	return nil
}

// PendingEvents returns unpublished outbox events in append order.
func (m *MemoryStore) PendingEvents(_ context.Context, limit int) ([]audit.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.state.outbox)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]audit.Event(nil), m.state.outbox[:n]...), nil
}

// MarkPublished drops delivered events from the outbox.
func (m *MemoryStore) MarkPublished(ctx context.Context, ids []string, _ time.Time) error {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.sem.Release(1)

	done := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		done[id] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.state.outbox[:0:0]
	for _, e := range m.state.outbox {
		if _, ok := done[e.ID]; !ok {
			kept = append(kept, e)
		}
	}
	m.state.outbox = kept
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// memTx is the tx-scoped view. Locks are implicit: the whole transaction
// already holds the store semaphore.
type memTx struct {
	state *memState
}

func (t *memTx) CreateRecord(_ context.Context, record *models.OwnershipRecord) error {
	if _, exists := t.state.records[record.ID]; exists {
		return sentinel.ErrConflict
	}
	t.state.records[record.ID] = record.Clone()
	return nil
}

func (t *memTx) UpdateRecord(_ context.Context, record *models.OwnershipRecord) error {
	if _, exists := t.state.records[record.ID]; !exists {
		return sentinel.ErrNotFound
	}
	t.state.records[record.ID] = record.Clone()
	return nil
}

func (t *memTx) FindRecord(_ context.Context, id string) (*models.OwnershipRecord, error) {
	r, ok := t.state.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

func (t *memTx) LockRecord(ctx context.Context, id string) (*models.OwnershipRecord, error) {
	return t.FindRecord(ctx, id)
}

func (t *memTx) LockScope(context.Context, models.Scope) error {
	return nil
}

func (t *memTx) FindActiveByScope(_ context.Context, scope models.Scope) ([]*models.OwnershipRecord, error) {
	return t.filterRecords(func(r *models.OwnershipRecord) bool {
		return r.IsActive() && r.Scope() == scope
	}), nil
}

func (t *memTx) FindActiveBySubject(_ context.Context, subject models.Subject, category models.RightsCategory) ([]*models.OwnershipRecord, error) {
	return t.filterRecords(func(r *models.OwnershipRecord) bool {
		return r.IsActive() && r.Subject == subject && (category == "" || r.RightsCategory == category)
	}), nil
}

func (t *memTx) ListExpiredActive(_ context.Context, asOf time.Time, limit int) ([]*models.OwnershipRecord, error) {
	out := t.filterRecords(func(r *models.OwnershipRecord) bool {
		return r.IsActive() && r.IsExpiredAt(asOf)
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExpirationDate.Before(*out[j].ExpirationDate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) ListActiveSubjects(context.Context) ([]models.SubjectCategory, error) {
	seen := make(map[string]models.SubjectCategory)
	for _, r := range t.state.records {
		if !r.IsActive() {
			continue
		}
		sc := models.SubjectCategory{Subject: r.Subject, RightsCategory: r.RightsCategory}
		seen[sc.Key()] = sc
	}
	out := make([]models.SubjectCategory, 0, len(seen))
	for _, sc := range seen {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (t *memTx) filterRecords(keep func(*models.OwnershipRecord) bool) []*models.OwnershipRecord {
	var out []*models.OwnershipRecord
	for _, r := range t.state.records {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (t *memTx) CreateTransfer(_ context.Context, transfer *models.OwnershipTransfer) error {
	if _, exists := t.state.transfers[transfer.ID]; exists {
		return sentinel.ErrConflict
	}
	t.state.transfers[transfer.ID] = transfer.Clone()
	return nil
}

func (t *memTx) UpdateTransfer(_ context.Context, transfer *models.OwnershipTransfer) error {
	if _, exists := t.state.transfers[transfer.ID]; !exists {
		return sentinel.ErrNotFound
	}
	t.state.transfers[transfer.ID] = transfer.Clone()
	return nil
}

func (t *memTx) FindTransfer(_ context.Context, id string) (*models.OwnershipTransfer, error) {
	tr, ok := t.state.transfers[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return tr.Clone(), nil
}

func (t *memTx) LockTransfer(ctx context.Context, id string) (*models.OwnershipTransfer, error) {
	return t.FindTransfer(ctx, id)
}

func (t *memTx) ListTransfersBySubject(_ context.Context, subject models.Subject, category models.RightsCategory) ([]*models.OwnershipTransfer, error) {
	var out []*models.OwnershipTransfer
	for _, tr := range t.state.transfers {
		if tr.Subject == subject && (category == "" || tr.RightsCategory == category) {
			out = append(out, tr.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) CreateConflict(_ context.Context, conflict *models.OwnershipConflict) error {
	if _, exists := t.state.conflicts[conflict.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, c := range t.state.conflicts {
		if c.Key == conflict.Key && c.Status.IsUnresolved() {
			return sentinel.ErrConflict
		}
	}
	t.state.conflicts[conflict.ID] = conflict.Clone()
	return nil
}

func (t *memTx) UpdateConflict(_ context.Context, conflict *models.OwnershipConflict) error {
	if _, exists := t.state.conflicts[conflict.ID]; !exists {
		return sentinel.ErrNotFound
	}
	t.state.conflicts[conflict.ID] = conflict.Clone()
	return nil
}

func (t *memTx) FindUnresolvedConflict(_ context.Context, key string) (*models.OwnershipConflict, error) {
	for _, c := range t.state.conflicts {
		if c.Key == key && c.Status.IsUnresolved() {
			return c.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (t *memTx) ListConflicts(_ context.Context, filter models.ConflictFilter) ([]*models.OwnershipConflict, error) {
	var out []*models.OwnershipConflict
	for _, c := range t.state.conflicts {
		if filter.Matches(c) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.Before(out[j].DetectedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (t *memTx) AppendEvent(_ context.Context, event audit.Event) error {
	t.state.outbox = append(t.state.outbox, event)
	return nil
}
