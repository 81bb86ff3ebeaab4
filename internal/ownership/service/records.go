package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"rightsledger/internal/ownership/models"
	"rightsledger/internal/ownership/ports"
	"rightsledger/internal/ownership/validator"
	dErrors "rightsledger/pkg/domain-errors"
	audit "rightsledger/pkg/platform/audit"
	"rightsledger/pkg/requestcontext"
)

const aggregateRecord = "record"

func requestNow(ctx context.Context) time.Time {
	return requestcontext.Now(ctx).UTC()
}

// CreateOwnershipRecord registers a new claim. ACTIVE claims are validated
// against the scope under the scope lock; PENDING claims are not counted
// until activated.
func (s *Service) CreateOwnershipRecord(ctx context.Context, cmd models.CreateRecordCommand) (record *models.OwnershipRecord, err error) {
	ctx, span := s.startSpan(ctx, "create_record", subjectAttrs(cmd.Subject, cmd.RightsCategory)...)
	defer func() { endSpan(span, err) }()

	if !cmd.Subject.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "subject must be a track or album with an id")
	}
	if !cmd.RightsCategory.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown rights category: "+string(cmd.RightsCategory))
	}
	if strings.TrimSpace(cmd.OwnerID) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "owner_id is required")
	}
	if err := models.ValidatePercentage(cmd.Percentage); err != nil {
		return nil, err
	}
	territory, err := models.NormalizeTerritory(cmd.Territory)
	if err != nil {
		return nil, err
	}
	status := cmd.Status
	if status == "" {
		status = models.RecordActive
	}
	if status != models.RecordActive && status != models.RecordPending {
		return nil, dErrors.New(dErrors.CodeBadRequest, "records are created ACTIVE or PENDING")
	}

	now := requestNow(ctx)
	effective := now
	if cmd.EffectiveDate != nil {
		effective = cmd.EffectiveDate.UTC()
	}
	scope := models.Scope{Subject: cmd.Subject, RightsCategory: cmd.RightsCategory, Territory: territory}
	rec, err := models.NewOwnershipRecord(s.newID(), scope, strings.TrimSpace(cmd.OwnerID), cmd.Percentage, status, effective, cmd.ExpirationDate, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	rec.RegistrationIDs = cmd.RegistrationIDs

	err = s.tx.RunInTx(ctx, func(st ports.Store) error {
		if err := st.LockScope(ctx, scope); err != nil {
			return err
		}
		if rec.IsActive() {
			existing, err := st.FindActiveByScope(ctx, scope)
			if err != nil {
				return err
			}
			if err := validator.Validate(rec, existing); err != nil {
				return percentageError(err)
			}
		}
		if err := st.CreateRecord(ctx, rec); err != nil {
			return err
		}
		return s.emit(ctx, st, audit.EventRecordCreated, aggregateRecord, rec.ID, rec.Subject, rec)
	})
	if err != nil {
		return nil, s.translate(err, "record not found")
	}

	s.metrics.IncRecordsCreated()
	s.logger.InfoContext(ctx, "ownership record created",
		"record_id", rec.ID,
		"scope", scope.Key(),
		"status", rec.Status,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.afterCommit(ctx, rec.Subject, rec.RightsCategory)
	return rec, nil
}

// ActivateRecord moves a PENDING or DISPUTED record to ACTIVE after
// re-validating its scope.
func (s *Service) ActivateRecord(ctx context.Context, id string) (record *models.OwnershipRecord, err error) {
	ctx, span := s.startSpan(ctx, "activate_record")
	defer func() { endSpan(span, err) }()

	status := models.RecordActive
	return s.UpdateOwnershipRecord(ctx, id, models.UpdateRecordCommand{Status: &status})
}

// UpdateOwnershipRecord changes mutable fields of a live record. A resulting
// ACTIVE record is validated against its scope in the same transaction.
// An authenticated caller must own the record.
func (s *Service) UpdateOwnershipRecord(ctx context.Context, id string, cmd models.UpdateRecordCommand) (record *models.OwnershipRecord, err error) {
	ctx, span := s.startSpan(ctx, "update_record")
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(id) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "record id is required")
	}
	if cmd.Percentage != nil {
		if err := models.ValidatePercentage(*cmd.Percentage); err != nil {
			return nil, err
		}
	}
	if cmd.Status != nil && !cmd.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown record status: "+string(*cmd.Status))
	}

	now := requestNow(ctx)
	var (
		updated *models.OwnershipRecord
		action  = audit.EventRecordUpdated
		changed bool
	)
	err = s.tx.RunInTx(ctx, func(st ports.Store) error {
		current, err := st.FindRecord(ctx, id)
		if err != nil {
			return err
		}
		if err := st.LockScope(ctx, current.Scope()); err != nil {
			return err
		}
		rec, err := st.LockRecord(ctx, id)
		if err != nil {
			return err
		}
		if err := requireParty(ctx, "only the record owner may change it", rec.OwnerID); err != nil {
			return err
		}
		if rec.Status.IsTerminal() {
			return dErrors.New(dErrors.CodeInvalidState, "record is "+string(rec.Status)+" and can no longer change")
		}

		before := rec.Clone()
		if err := applyRecordUpdate(rec, cmd, now); err != nil {
			return err
		}
		if rec.Status == models.RecordActive && rec.IsExpiredAt(now) {
			return dErrors.New(dErrors.CodeInvalidState, "record has expired and cannot be active")
		}
		if rec.IsActive() {
			existing, err := st.FindActiveByScope(ctx, rec.Scope())
			if err != nil {
				return err
			}
			if err := validator.Validate(rec, existing); err != nil {
				return percentageError(err)
			}
		}
		if sameRecordState(rec, before) {
			updated = rec
			return nil
		}
		changed = true
		rec.UpdatedAt = now
		if rec.Status != before.Status {
			switch rec.Status {
			case models.RecordActive:
				action = audit.EventRecordActivated
			case models.RecordDisputed:
				action = audit.EventRecordDisputed
			case models.RecordExpired:
				action = audit.EventRecordExpired
			}
		}
		if err := st.UpdateRecord(ctx, rec); err != nil {
			return err
		}
		updated = rec
		return s.emit(ctx, st, action, aggregateRecord, rec.ID, rec.Subject, rec)
	})
	if err != nil {
		return nil, s.translate(err, "record not found")
	}
	if changed {
		s.afterCommit(ctx, updated.Subject, updated.RightsCategory)
	}
	return updated, nil
}

func applyRecordUpdate(rec *models.OwnershipRecord, cmd models.UpdateRecordCommand, now time.Time) error {
	if cmd.Percentage != nil {
		rec.Percentage = *cmd.Percentage
	}
	if cmd.EffectiveDate != nil {
		rec.EffectiveDate = cmd.EffectiveDate.UTC()
	}
	if cmd.ClearExpiration {
		rec.ExpirationDate = nil
	} else if cmd.ExpirationDate != nil {
		exp := cmd.ExpirationDate.UTC()
		rec.ExpirationDate = &exp
	}
	if rec.ExpirationDate != nil && !rec.ExpirationDate.After(rec.EffectiveDate) {
		return dErrors.New(dErrors.CodeValidation, "expiration date must be after effective date")
	}
	if cmd.RegistrationIDs != nil {
		rec.RegistrationIDs = *cmd.RegistrationIDs
	}
	if cmd.Status != nil {
		if *cmd.Status == models.RecordTransferred {
			return dErrors.New(dErrors.CodeInvalidState, "records become TRANSFERRED only through transfer execution")
		}
		if err := rec.TransitionTo(*cmd.Status, now); err != nil {
			return err
		}
	}
	return nil
}

func sameRecordState(a, b *models.OwnershipRecord) bool {
	return a.Percentage.Equal(b.Percentage) &&
		a.Status == b.Status &&
		a.EffectiveDate.Equal(b.EffectiveDate) &&
		sameTime(a.ExpirationDate, b.ExpirationDate) &&
		a.RegistrationIDs == b.RegistrationIDs
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func (s *Service) GetRecord(ctx context.Context, id string) (*models.OwnershipRecord, error) {
	var rec *models.OwnershipRecord
	err := s.tx.RunInTx(ctx, func(st ports.Store) error {
		var err error
		rec, err = st.FindRecord(ctx, id)
		return err
	})
	if err != nil {
		return nil, s.translate(err, "record not found")
	}
	return rec, nil
}

// QueryOwnership returns the ACTIVE claims of subject grouped by scope, with
// the total and remaining share of each scope. An empty category returns all.
func (s *Service) QueryOwnership(ctx context.Context, subject models.Subject, category models.RightsCategory) (view *models.OwnershipView, err error) {
	ctx, span := s.startSpan(ctx, "query_ownership", subjectAttrs(subject, category)...)
	defer func() { endSpan(span, err) }()

	if !subject.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "subject must be a track or album with an id")
	}
	if category != "" && !category.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown rights category: "+string(category))
	}
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, subject, category); ok {
			return cached, nil
		}
	}

	var records []*models.OwnershipRecord
	err = s.tx.RunInTx(ctx, func(st ports.Store) error {
		var err error
		records, err = st.FindActiveBySubject(ctx, subject, category)
		return err
	})
	if err != nil {
		return nil, s.translate(err, "subject not found")
	}

	view = buildView(subject, records)
	if s.cache != nil {
		s.cache.Set(ctx, subject, category, view)
	}
	return view, nil
}

func buildView(subject models.Subject, records []*models.OwnershipRecord) *models.OwnershipView {
	byScope := make(map[models.Scope]*models.ScopeHoldings)
	for _, r := range records {
		h, ok := byScope[r.Scope()]
		if !ok {
			h = &models.ScopeHoldings{Scope: r.Scope()}
			byScope[r.Scope()] = h
		}
		h.Records = append(h.Records, r)
	}
	view := &models.OwnershipView{Subject: subject, Holdings: make([]*models.ScopeHoldings, 0, len(byScope))}
	for scope, h := range byScope {
		h.Total = validator.Sum(h.Records, scope, "")
		h.Available = validator.Available(h.Records, scope)
		view.Holdings = append(view.Holdings, h)
	}
	sort.Slice(view.Holdings, func(i, j int) bool {
		return view.Holdings[i].Scope.Key() < view.Holdings[j].Scope.Key()
	})
	return view
}

// ListConflicts returns detector output matching filter.
func (s *Service) ListConflicts(ctx context.Context, filter models.ConflictFilter) ([]*models.OwnershipConflict, error) {
	if filter.Subject != nil && !filter.Subject.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "subject must be a track or album with an id")
	}
	if filter.RightsCategory != "" && !filter.RightsCategory.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown rights category: "+string(filter.RightsCategory))
	}
	if filter.Type != "" && !filter.Type.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown conflict type: "+string(filter.Type))
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown conflict status: "+string(filter.Status))
	}
	var out []*models.OwnershipConflict
	err := s.tx.RunInTx(ctx, func(st ports.Store) error {
		var err error
		out, err = st.ListConflicts(ctx, filter)
		return err
	})
	if err != nil {
		return nil, s.translate(err, "conflict not found")
	}
	return out, nil
}
