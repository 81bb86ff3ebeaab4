package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"rightsledger/internal/ownership/models"
	"rightsledger/internal/ownership/ports"
	audit "rightsledger/pkg/platform/audit"
	"rightsledger/pkg/platform/sentinel"
)

// ledgerStore is what every backend exposes to the service and the relay.
type ledgerStore interface {
	ports.StoreTx
	PendingEvents(ctx context.Context, limit int) ([]audit.Event, error)
	MarkPublished(ctx context.Context, ids []string, at time.Time) error
}

// storeContractSuite runs the same behavioural checks against each backend.
type storeContractSuite struct {
	suite.Suite
	ctx      context.Context
	newStore func() ledgerStore
	store    ledgerStore
	now      time.Time
}

func (s *storeContractSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC)
	s.store = s.newStore()
}

var testSubject = models.Subject{Type: models.SubjectTrack, ID: "trk-1"}

func (s *storeContractSuite) scope(territory string) models.Scope {
	return models.Scope{Subject: testSubject, RightsCategory: models.RightsMaster, Territory: territory}
}

func (s *storeContractSuite) record(id, owner, pct string, scope models.Scope, expiration *time.Time) *models.OwnershipRecord {
	r, err := models.NewOwnershipRecord(id, scope, owner, decimal.RequireFromString(pct),
		models.RecordActive, s.now, expiration, s.now)
	s.Require().NoError(err)
	return r
}

func (s *storeContractSuite) tx(fn func(st ports.Store) error) error {
	return s.store.RunInTx(s.ctx, fn)
}

func (s *storeContractSuite) TestRecordRoundTrip() {
	exp := s.now.Add(48 * time.Hour)
	rec := s.record("rec-1", "owner-a", "0.6", s.scope("worldwide"), &exp)
	rec.RegistrationIDs = models.RegistrationIDs{ISRC: "USRC17607839", IPI: "00052210040"}

	s.Require().NoError(s.tx(func(st ports.Store) error { return st.CreateRecord(s.ctx, rec) }))

	var got *models.OwnershipRecord
	s.Require().NoError(s.tx(func(st ports.Store) error {
		var err error
		got, err = st.FindRecord(s.ctx, "rec-1")
		return err
	}))
	s.Equal(rec.OwnerID, got.OwnerID)
	s.True(rec.Percentage.Equal(got.Percentage))
	s.Equal(models.RecordActive, got.Status)
	s.Equal("worldwide", got.Territory)
	s.Require().NotNil(got.ExpirationDate)
	s.True(exp.Equal(*got.ExpirationDate))
	s.True(s.now.Equal(got.EffectiveDate))
	s.Equal(rec.RegistrationIDs, got.RegistrationIDs)
}

func (s *storeContractSuite) TestFindMissingRecordReturnsNotFound() {
	err := s.tx(func(st ports.Store) error {
		_, err := st.LockRecord(s.ctx, "missing")
		return err
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeContractSuite) TestDuplicateRecordIDConflicts() {
	rec := s.record("rec-1", "owner-a", "0.5", s.scope("worldwide"), nil)
	s.Require().NoError(s.tx(func(st ports.Store) error { return st.CreateRecord(s.ctx, rec) }))
	err := s.tx(func(st ports.Store) error { return st.CreateRecord(s.ctx, rec) })
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *storeContractSuite) TestFailedCallbackRollsBackEveryWrite() {
	boom := errors.New("boom")
	err := s.tx(func(st ports.Store) error {
		if err := st.CreateRecord(s.ctx, s.record("rec-1", "owner-a", "0.5", s.scope("worldwide"), nil)); err != nil {
			return err
		}
		ev, err := audit.NewEvent(audit.EventRecordCreated, "record", "rec-1", testSubject.String(), map[string]string{"id": "rec-1"}, s.now)
		if err != nil {
			return err
		}
		if err := st.AppendEvent(s.ctx, ev); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	err = s.tx(func(st ports.Store) error {
		_, err := st.FindRecord(s.ctx, "rec-1")
		return err
	})
	s.ErrorIs(err, sentinel.ErrNotFound)

	pending, err := s.store.PendingEvents(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *storeContractSuite) TestUpdateRecordPersistsStatusAndShare() {
	rec := s.record("rec-1", "owner-a", "0.5", s.scope("worldwide"), nil)
	s.Require().NoError(s.tx(func(st ports.Store) error { return st.CreateRecord(s.ctx, rec) }))

	s.Require().NoError(s.tx(func(st ports.Store) error {
		locked, err := st.LockRecord(s.ctx, "rec-1")
		if err != nil {
			return err
		}
		if err := locked.Consume(decimal.RequireFromString("0.5"), s.now.Add(time.Minute)); err != nil {
			return err
		}
		return st.UpdateRecord(s.ctx, locked)
	}))

	var got *models.OwnershipRecord
	s.Require().NoError(s.tx(func(st ports.Store) error {
		var err error
		got, err = st.FindRecord(s.ctx, "rec-1")
		return err
	}))
	s.Equal(models.RecordTransferred, got.Status)
	s.True(got.Percentage.IsZero())

	missing := s.record("nope", "owner-a", "0.5", s.scope("worldwide"), nil)
	err := s.tx(func(st ports.Store) error { return st.UpdateRecord(s.ctx, missing) })
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeContractSuite) TestActiveQueriesFilterByScopeAndStatus() {
	pending, err := models.NewOwnershipRecord("rec-p", s.scope("worldwide"), "owner-c",
		decimal.RequireFromString("0.1"), models.RecordPending, s.now, nil, s.now)
	s.Require().NoError(err)
	lyrics := s.record("rec-l", "owner-d", "1", models.Scope{Subject: testSubject, RightsCategory: models.RightsPublishing, Territory: "worldwide"}, nil)

	s.Require().NoError(s.tx(func(st ports.Store) error {
		for _, r := range []*models.OwnershipRecord{
			s.record("rec-1", "owner-a", "0.5", s.scope("worldwide"), nil),
			s.record("rec-2", "owner-b", "0.5", s.scope("US"), nil),
			pending,
			lyrics,
		} {
			if err := st.CreateRecord(s.ctx, r); err != nil {
				return err
			}
		}
		return nil
	}))

	s.Require().NoError(s.tx(func(st ports.Store) error {
		byScope, err := st.FindActiveByScope(s.ctx, s.scope("worldwide"))
		s.Require().NoError(err)
		s.Require().Len(byScope, 1)
		s.Equal("rec-1", byScope[0].ID)

		bySubject, err := st.FindActiveBySubject(s.ctx, testSubject, models.RightsMaster)
		s.Require().NoError(err)
		s.Len(bySubject, 2)

		all, err := st.FindActiveBySubject(s.ctx, testSubject, "")
		s.Require().NoError(err)
		s.Len(all, 3)

		subjects, err := st.ListActiveSubjects(s.ctx)
		s.Require().NoError(err)
		s.Len(subjects, 2)
		return nil
	}))
}

func (s *storeContractSuite) TestListExpiredActive() {
	past := s.now.Add(time.Hour)
	future := s.now.Add(72 * time.Hour)
	s.Require().NoError(s.tx(func(st ports.Store) error {
		if err := st.CreateRecord(s.ctx, s.record("rec-old", "owner-a", "0.5", s.scope("worldwide"), &past)); err != nil {
			return err
		}
		return st.CreateRecord(s.ctx, s.record("rec-new", "owner-b", "0.5", s.scope("worldwide"), &future))
	}))

	s.Require().NoError(s.tx(func(st ports.Store) error {
		expired, err := st.ListExpiredActive(s.ctx, s.now.Add(2*time.Hour), 10)
		s.Require().NoError(err)
		s.Require().Len(expired, 1)
		s.Equal("rec-old", expired[0].ID)
		return nil
	}))
}

func (s *storeContractSuite) TestTransferLifecycle() {
	src := s.record("rec-1", "owner-a", "1", s.scope("worldwide"), nil)
	tr := &models.OwnershipTransfer{
		ID:             "tr-1",
		SourceRecordID: src.ID,
		TransferorID:   "owner-a",
		TransfereeID:   "owner-b",
		Type:           models.TransferAssignment,
		Percentage:     decimal.RequireFromString("0.25"),
		Status:         models.TransferPending,
		TransferDate:   s.now,
		EffectiveDate:  s.now,
		Consideration:  &models.Consideration{Amount: decimal.RequireFromString("1500.50"), Currency: "EUR"},
		Subject:        testSubject,
		RightsCategory: models.RightsMaster,
		Territory:      "worldwide",
		CreatedAt:      s.now,
		UpdatedAt:      s.now,
	}
	s.Require().NoError(s.tx(func(st ports.Store) error {
		if err := st.CreateRecord(s.ctx, src); err != nil {
			return err
		}
		return st.CreateTransfer(s.ctx, tr)
	}))

	later := s.now.Add(time.Minute)
	s.Require().NoError(s.tx(func(st ports.Store) error {
		locked, err := st.LockTransfer(s.ctx, "tr-1")
		if err != nil {
			return err
		}
		if err := locked.MarkExecuted("rec-2", decimal.RequireFromString("1"), later); err != nil {
			return err
		}
		return st.UpdateTransfer(s.ctx, locked)
	}))

	s.Require().NoError(s.tx(func(st ports.Store) error {
		got, err := st.FindTransfer(s.ctx, "tr-1")
		s.Require().NoError(err)
		s.Equal(models.TransferExecuted, got.Status)
		s.Equal("rec-2", got.ResultRecordID)
		s.Require().NotNil(got.SourcePercentageBefore)
		s.True(got.SourcePercentageBefore.Equal(decimal.NewFromInt(1)))
		s.Require().NotNil(got.ExecutedAt)
		s.True(later.Equal(*got.ExecutedAt))
		s.Require().NotNil(got.Consideration)
		s.True(got.Consideration.Amount.Equal(decimal.RequireFromString("1500.5")))
		s.Equal("EUR", got.Consideration.Currency)

		list, err := st.ListTransfersBySubject(s.ctx, testSubject, "")
		s.Require().NoError(err)
		s.Len(list, 1)
		return nil
	}))
}

func (s *storeContractSuite) TestConflictUpsertByKey() {
	key, ids := models.ConflictKey(models.ConflictPercentageMismatch, []string{"rec-2", "rec-1"})
	c := &models.OwnershipConflict{
		ID:                  "cf-1",
		Subject:             testSubject,
		RightsCategory:      models.RightsMaster,
		Type:                models.ConflictPercentageMismatch,
		Severity:            models.SeverityHigh,
		Status:              models.ConflictOpen,
		ImplicatedRecordIDs: ids,
		Description:         "scope total 1.2 exceeds 1",
		Key:                 key,
		DetectedAt:          s.now,
		UpdatedAt:           s.now,
	}
	s.Require().NoError(s.tx(func(st ports.Store) error { return st.CreateConflict(s.ctx, c) }))

	dup := c.Clone()
	dup.ID = "cf-2"
	err := s.tx(func(st ports.Store) error { return st.CreateConflict(s.ctx, dup) })
	s.ErrorIs(err, sentinel.ErrConflict)

	s.Require().NoError(s.tx(func(st ports.Store) error {
		found, err := st.FindUnresolvedConflict(s.ctx, key)
		if err != nil {
			return err
		}
		found.Severity = models.SeverityCritical
		found.Status = models.ConflictResolved
		found.UpdatedAt = s.now.Add(time.Minute)
		return st.UpdateConflict(s.ctx, found)
	}))

	s.Require().NoError(s.tx(func(st ports.Store) error {
		_, err := st.FindUnresolvedConflict(s.ctx, key)
		s.ErrorIs(err, sentinel.ErrNotFound)

		// a resolved conflict no longer blocks a new one with the same key
		s.Require().NoError(st.CreateConflict(s.ctx, dup))

		subject := testSubject
		list, err := st.ListConflicts(s.ctx, models.ConflictFilter{Subject: &subject, Status: models.ConflictResolved})
		s.Require().NoError(err)
		s.Require().Len(list, 1)
		s.Equal(models.SeverityCritical, list[0].Severity)
		s.Equal([]string{"rec-1", "rec-2"}, list[0].ImplicatedRecordIDs)

		all, err := st.ListConflicts(s.ctx, models.ConflictFilter{Type: models.ConflictPercentageMismatch})
		s.Require().NoError(err)
		s.Len(all, 2)
		return nil
	}))
}

func (s *storeContractSuite) TestOutboxRelayCursor() {
	var ids []string
	s.Require().NoError(s.tx(func(st ports.Store) error {
		for i, action := range []audit.AuditEvent{audit.EventRecordCreated, audit.EventTransferProposed} {
			ev, err := audit.NewEvent(action, "record", "rec-1", testSubject.String(), map[string]int{"n": i}, s.now)
			if err != nil {
				return err
			}
			ev.ActorID = "owner-a"
			ids = append(ids, ev.ID)
			if err := st.AppendEvent(s.ctx, ev); err != nil {
				return err
			}
		}
		return nil
	}))

	pending, err := s.store.PendingEvents(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(ids[0], pending[0].ID)
	s.Equal(audit.EventRecordCreated, pending[0].Action)
	s.Equal("owner-a", pending[0].ActorID)
	var payload map[string]int
	s.Require().NoError(json.Unmarshal(pending[1].Payload, &payload))
	s.Equal(1, payload["n"])

	s.Require().NoError(s.store.MarkPublished(s.ctx, ids[:1], s.now))
	pending, err = s.store.PendingEvents(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(ids[1], pending[0].ID)
}
