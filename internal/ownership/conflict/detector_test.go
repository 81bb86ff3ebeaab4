package conflict

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"rightsledger/internal/ownership/models"
	"rightsledger/internal/ownership/ports"
	"rightsledger/internal/ownership/store"
	audit "rightsledger/pkg/platform/audit"
	"rightsledger/pkg/requestcontext"
)

var trackA = models.Subject{Type: models.SubjectTrack, ID: "trackA"}

type DetectorSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	store    *store.MemoryStore
	detector *Detector
	seq      int
}

func TestDetectorSuite(t *testing.T) {
	suite.Run(t, new(DetectorSuite))
}

func (s *DetectorSuite) SetupTest() {
	s.now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.store = store.NewMemory()
	s.seq = 0
	s.detector = New(s.store, WithIDGenerator(s.nextID))
}

func (s *DetectorSuite) nextID() string {
	s.seq++
	return fmt.Sprintf("conf-%d", s.seq)
}

func (s *DetectorSuite) scope(cat models.RightsCategory, territory string) models.Scope {
	return models.Scope{Subject: trackA, RightsCategory: cat, Territory: territory}
}

func (s *DetectorSuite) insert(id, owner, pct string, scope models.Scope) *models.OwnershipRecord {
	rec, err := models.NewOwnershipRecord(id, scope, owner, decimal.RequireFromString(pct),
		models.RecordActive, s.now.Add(-24*time.Hour), nil, s.now.Add(-24*time.Hour))
	s.Require().NoError(err)
	s.Require().NoError(s.store.RunInTx(s.ctx, func(st ports.Store) error {
		return st.CreateRecord(s.ctx, rec)
	}))
	return rec
}

func (s *DetectorSuite) conflicts(filter models.ConflictFilter) []*models.OwnershipConflict {
	var out []*models.OwnershipConflict
	s.Require().NoError(s.store.RunInTx(s.ctx, func(st ports.Store) error {
		var err error
		out, err = st.ListConflicts(s.ctx, filter)
		return err
	}))
	return out
}

func (s *DetectorSuite) events() []audit.Event {
	events, err := s.store.PendingEvents(s.ctx, 0)
	s.Require().NoError(err)
	return events
}

func (s *DetectorSuite) detect() Report {
	report, err := s.detector.DetectSubject(s.ctx, trackA, models.RightsMaster)
	s.Require().NoError(err)
	return report
}

func (s *DetectorSuite) TestPercentageMismatchIsRecordedOnce() {
	master := s.scope(models.RightsMaster, models.TerritoryWorldwide)
	s.insert("rec-u1", "U1", "1", master)
	s.insert("rec-u2", "U2", "0.1", master)

	first := s.detect()
	s.Positive(first.Created)

	mismatches := s.conflicts(models.ConflictFilter{Type: models.ConflictPercentageMismatch})
	s.Require().Len(mismatches, 1)
	c := mismatches[0]
	s.Equal(models.ConflictOpen, c.Status)
	s.Equal(models.SeverityHigh, c.Severity)
	s.Equal([]string{"rec-u1", "rec-u2"}, c.ImplicatedRecordIDs)
	s.Equal(trackA, c.Subject)

	allBefore := s.conflicts(models.ConflictFilter{})
	eventsBefore := len(s.events())

	second := s.detect()
	s.Zero(second.Created)
	s.Zero(second.Updated)
	s.Equal(first.Findings, second.Unchanged)

	allAfter := s.conflicts(models.ConflictFilter{})
	s.Equal(allBefore, allAfter)
	s.Len(s.events(), eventsBefore)
}

func (s *DetectorSuite) TestSeverityChangeUpdatesExistingConflict() {
	master := s.scope(models.RightsMaster, models.TerritoryWorldwide)
	s.insert("rec-a", "U1", "1", master)
	small := s.insert("rec-b", "U2", "0.05", master)
	s.detect()

	s.Require().NoError(s.store.RunInTx(s.ctx, func(st ports.Store) error {
		small.Percentage = decimal.RequireFromString("0.2")
		return st.UpdateRecord(s.ctx, small)
	}))
	report := s.detect()
	s.Equal(1, report.Updated)

	mismatches := s.conflicts(models.ConflictFilter{Type: models.ConflictPercentageMismatch})
	s.Require().Len(mismatches, 1)
	s.Equal(models.SeverityCritical, mismatches[0].Severity)
	s.Contains(mismatches[0].Description, "1.2")

	var updated int
	for _, e := range s.events() {
		if e.Action == audit.EventConflictUpdated {
			updated++
		}
	}
	s.Equal(1, updated)
}

func (s *DetectorSuite) TestResolvedConflictDoesNotSuppressRedetection() {
	master := s.scope(models.RightsMaster, models.TerritoryWorldwide)
	s.insert("rec-a", "U1", "1", master)
	s.insert("rec-b", "U2", "0.3", master)
	s.detect()

	mismatches := s.conflicts(models.ConflictFilter{Type: models.ConflictPercentageMismatch})
	s.Require().Len(mismatches, 1)
	s.Require().NoError(s.store.RunInTx(s.ctx, func(st ports.Store) error {
		mismatches[0].Status = models.ConflictResolved
		return st.UpdateConflict(s.ctx, mismatches[0])
	}))

	s.detect()
	s.Len(s.conflicts(models.ConflictFilter{Type: models.ConflictPercentageMismatch}), 2)
	s.Len(s.conflicts(models.ConflictFilter{Type: models.ConflictPercentageMismatch, Status: models.ConflictOpen}), 1)
}

func (s *DetectorSuite) TestOwnershipDisputeImplicatesSource() {
	master := s.scope(models.RightsMaster, models.TerritoryWorldwide)
	src := s.insert("rec-src", "U1", "1", master)
	transfer := &models.OwnershipTransfer{
		ID: "tr-1", SourceRecordID: src.ID, TransferorID: "U1", TransfereeID: "U2",
		Type: models.TransferAssignment, Percentage: decimal.RequireFromString("0.5"),
		Status: models.TransferPending, Subject: trackA, RightsCategory: models.RightsMaster,
		Territory: models.TerritoryWorldwide, TransferDate: s.now, EffectiveDate: s.now,
		CreatedAt: s.now, UpdatedAt: s.now,
	}
	s.Require().NoError(transfer.Dispute("contract contested", s.now))
	s.Require().NoError(s.store.RunInTx(s.ctx, func(st ports.Store) error {
		return st.CreateTransfer(s.ctx, transfer)
	}))

	s.detect()
	disputes := s.conflicts(models.ConflictFilter{Type: models.ConflictOwnershipDispute})
	s.Require().Len(disputes, 1)
	s.Equal([]string{"rec-src"}, disputes[0].ImplicatedRecordIDs)
	s.Equal(models.SeverityHigh, disputes[0].Severity)
	s.Contains(disputes[0].Description, "tr-1")
}

func (s *DetectorSuite) TestExpiredActiveRecord() {
	master := s.scope(models.RightsMaster, models.TerritoryWorldwide)
	exp := s.now.Add(-time.Hour)
	rec, err := models.NewOwnershipRecord("rec-old", master, "U1", decimal.RequireFromString("0.5"),
		models.RecordActive, s.now.Add(-48*time.Hour), &exp, s.now.Add(-48*time.Hour))
	s.Require().NoError(err)
	s.Require().NoError(s.store.RunInTx(s.ctx, func(st ports.Store) error {
		return st.CreateRecord(s.ctx, rec)
	}))

	s.detect()
	expired := s.conflicts(models.ConflictFilter{Type: models.ConflictExpiredRights})
	s.Require().Len(expired, 1)
	s.Equal(models.SeverityMedium, expired[0].Severity)
}

func (s *DetectorSuite) TestTerritoryOverlapAboveWhole() {
	s.insert("rec-ww", "U1", "1", s.scope(models.RightsMaster, models.TerritoryWorldwide))
	s.insert("rec-us", "U2", "0.5", s.scope(models.RightsMaster, "US"))

	s.detect()
	territory := s.conflicts(models.ConflictFilter{Type: models.ConflictTerritory})
	s.Require().Len(territory, 1)
	s.Equal([]string{"rec-us", "rec-ww"}, territory[0].ImplicatedRecordIDs)
	s.Equal(models.SeverityHigh, territory[0].Severity)
	s.Empty(s.conflicts(models.ConflictFilter{Type: models.ConflictPercentageMismatch}))
}

func (s *DetectorSuite) TestDisjointTerritoriesDoNotConflict() {
	s.insert("rec-us", "U1", "1", s.scope(models.RightsMaster, "US"))
	s.insert("rec-de", "U2", "1", s.scope(models.RightsMaster, "DE"))

	s.detect()
	s.Empty(s.conflicts(models.ConflictFilter{Type: models.ConflictTerritory}))
}

func (s *DetectorSuite) TestExecutedTransferLineage() {
	master := s.scope(models.RightsMaster, models.TerritoryWorldwide)
	src := s.insert("rec-src", "U1", "0.6", master)
	result := s.insert("rec-res", "U2", "0.4", master)

	s.Run("linked records are not overlapping claims", func() {
		before := decimal.RequireFromString("1")
		transfer := s.executedTransfer("tr-ok", src.ID, result.ID, "U2", "0.4", &before)
		s.Require().NoError(s.store.RunInTx(s.ctx, func(st ports.Store) error {
			result.SourceTransferID = transfer.ID
			if err := st.UpdateRecord(s.ctx, result); err != nil {
				return err
			}
			return st.CreateTransfer(s.ctx, transfer)
		}))

		s.detect()
		s.Empty(s.conflicts(models.ConflictFilter{Type: models.ConflictOverlappingClaims}))
		s.Empty(s.conflicts(models.ConflictFilter{Type: models.ConflictInvalidTransfer}))
	})

	s.Run("moving more than the source held is invalid", func() {
		before := decimal.RequireFromString("0.3")
		transfer := s.executedTransfer("tr-bad", src.ID, "rec-missing", "U3", "0.5", &before)
		s.Require().NoError(s.store.RunInTx(s.ctx, func(st ports.Store) error {
			return st.CreateTransfer(s.ctx, transfer)
		}))

		s.detect()
		invalid := s.conflicts(models.ConflictFilter{Type: models.ConflictInvalidTransfer})
		s.Require().Len(invalid, 1)
		s.Equal(models.SeverityCritical, invalid[0].Severity)
		s.Equal([]string{"rec-src"}, invalid[0].ImplicatedRecordIDs)
		s.Contains(invalid[0].Description, "result record is missing")
	})
}

func (s *DetectorSuite) executedTransfer(id, source, result, transferee, pct string, before *decimal.Decimal) *models.OwnershipTransfer {
	t := &models.OwnershipTransfer{
		ID: id, SourceRecordID: source, TransferorID: "U1", TransfereeID: transferee,
		Type: models.TransferAssignment, Percentage: decimal.RequireFromString(pct),
		Status: models.TransferPending, Subject: trackA, RightsCategory: models.RightsMaster,
		Territory: models.TerritoryWorldwide, TransferDate: s.now, EffectiveDate: s.now,
		CreatedAt: s.now, UpdatedAt: s.now,
	}
	s.Require().NoError(t.MarkExecuted(result, *before, s.now))
	return t
}

func (s *DetectorSuite) TestUnlinkedOverlappingClaims() {
	master := s.scope(models.RightsMaster, models.TerritoryWorldwide)
	s.insert("rec-a", "U1", "0.5", master)
	s.insert("rec-b", "U1", "0.2", master)
	s.insert("rec-c", "U2", "0.3", master)

	s.detect()
	overlaps := s.conflicts(models.ConflictFilter{Type: models.ConflictOverlappingClaims})
	s.Require().Len(overlaps, 3)
	severities := map[string]models.Severity{}
	for _, c := range overlaps {
		severities[c.ImplicatedRecordIDs[0]+"+"+c.ImplicatedRecordIDs[1]] = c.Severity
	}
	s.Equal(models.SeverityMedium, severities["rec-a+rec-b"])
	s.Equal(models.SeverityLow, severities["rec-a+rec-c"])
}

func (s *DetectorSuite) TestMarkDisputedFlipsImplicatedRecords() {
	s.detector = New(s.store, WithIDGenerator(s.nextID), WithMarkDisputed(true))
	master := s.scope(models.RightsMaster, models.TerritoryWorldwide)
	s.insert("rec-u1", "U1", "1", master)
	s.insert("rec-u2", "U2", "0.1", master)

	report := s.detect()
	s.Equal([]string{"rec-u1", "rec-u2"}, report.Disputed)

	s.Require().NoError(s.store.RunInTx(s.ctx, func(st ports.Store) error {
		for _, id := range report.Disputed {
			rec, err := st.FindRecord(s.ctx, id)
			s.Require().NoError(err)
			s.Equal(models.RecordDisputed, rec.Status)
		}
		active, err := st.FindActiveBySubject(s.ctx, trackA, models.RightsMaster)
		s.Require().NoError(err)
		s.Empty(active)
		return nil
	}))

	var disputedEvents int
	for _, e := range s.events() {
		if e.Action == audit.EventRecordDisputed {
			disputedEvents++
		}
	}
	s.Equal(2, disputedEvents)

	again := s.detect()
	s.Empty(again.Disputed)
	s.Zero(again.Created)
}

func (s *DetectorSuite) TestEmptyCategoryChecksEveryCategory() {
	s.insert("rec-m1", "U1", "1", s.scope(models.RightsMaster, models.TerritoryWorldwide))
	s.insert("rec-m2", "U2", "0.5", s.scope(models.RightsMaster, models.TerritoryWorldwide))
	s.insert("rec-p1", "U1", "1", s.scope(models.RightsPublishing, models.TerritoryWorldwide))
	s.insert("rec-p2", "U2", "0.5", s.scope(models.RightsPublishing, models.TerritoryWorldwide))

	_, err := s.detector.DetectSubject(s.ctx, trackA, "")
	s.Require().NoError(err)

	s.Len(s.conflicts(models.ConflictFilter{Type: models.ConflictPercentageMismatch}), 2)
	s.Len(s.conflicts(models.ConflictFilter{Type: models.ConflictPercentageMismatch, RightsCategory: models.RightsPublishing}), 1)
}

func (s *DetectorSuite) TestRejectsInvalidInput() {
	_, err := s.detector.DetectSubject(s.ctx, models.Subject{}, models.RightsMaster)
	s.Error(err)
	_, err = s.detector.DetectSubject(s.ctx, trackA, "lyrics")
	s.Error(err)
}

func (s *DetectorSuite) TestSweepAll() {
	other := models.Subject{Type: models.SubjectAlbum, ID: "album-9"}
	s.insert("rec-a", "U1", "1", s.scope(models.RightsMaster, models.TerritoryWorldwide))
	s.insert("rec-b", "U2", "0.5", s.scope(models.RightsMaster, models.TerritoryWorldwide))
	rec, err := models.NewOwnershipRecord("rec-c", models.Scope{Subject: other, RightsCategory: models.RightsDigital, Territory: models.TerritoryWorldwide},
		"U3", decimal.RequireFromString("1"), models.RecordActive, s.now, nil, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.RunInTx(s.ctx, func(st ports.Store) error { return st.CreateRecord(s.ctx, rec) }))

	report, err := s.detector.SweepAll(s.ctx)
	s.Require().NoError(err)
	s.Positive(report.Created)
	s.Empty(s.conflicts(models.ConflictFilter{Subject: &other}))
	s.Len(s.conflicts(models.ConflictFilter{Subject: &trackA, Type: models.ConflictPercentageMismatch}), 1)

	again, err := s.detector.SweepAll(s.ctx)
	s.Require().NoError(err)
	s.Zero(again.Created)
}

func (s *DetectorSuite) TestTriggerSwallowsFailures() {
	s.NotPanics(func() {
		s.detector.Trigger(s.ctx, models.Subject{}, models.RightsMaster)
	})
}
