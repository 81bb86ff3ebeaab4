package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"rightsledger/internal/ownership/models"
	"rightsledger/internal/ownership/ports"
	"rightsledger/internal/ownership/validator"
	dErrors "rightsledger/pkg/domain-errors"
	audit "rightsledger/pkg/platform/audit"
	"rightsledger/pkg/requestcontext"
)

const aggregateTransfer = "transfer"

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

func invalidTransfer(msg string) error {
	return dErrors.New(dErrors.CodeInvalidTransferRequest, msg)
}

// ProposeTransfer records a PENDING transfer of part of a source record.
// No record changes until ExecuteTransfer.
func (s *Service) ProposeTransfer(ctx context.Context, cmd models.ProposeTransferCommand) (transfer *models.OwnershipTransfer, err error) {
	ctx, span := s.startSpan(ctx, "propose_transfer", attribute.String("source_record_id", cmd.SourceRecordID))
	defer func() {
		s.metrics.ObserveTransfer("propose", outcome(err))
		endSpan(span, err)
	}()

	if strings.TrimSpace(cmd.SourceRecordID) == "" {
		return nil, invalidTransfer("source_record_id is required")
	}
	if strings.TrimSpace(cmd.TransferorID) == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "transferor identity is required")
	}
	if strings.TrimSpace(cmd.TransfereeID) == "" {
		return nil, invalidTransfer("transferee_id is required")
	}
	if cmd.TransferorID == cmd.TransfereeID {
		return nil, invalidTransfer("transferor and transferee must differ")
	}
	if !cmd.Type.IsValid() {
		return nil, invalidTransfer("unknown transfer type: " + string(cmd.Type))
	}
	if err := models.ValidatePercentage(cmd.Percentage); err != nil {
		return nil, invalidTransfer(err.Error())
	}
	if c := cmd.Consideration; c != nil {
		if c.Amount.IsNegative() {
			return nil, invalidTransfer("consideration amount must not be negative")
		}
		if !currencyPattern.MatchString(c.Currency) {
			return nil, invalidTransfer("consideration currency must be an ISO 4217 code")
		}
	}

	now := requestNow(ctx)
	err = s.tx.RunInTx(ctx, func(st ports.Store) error {
		source, err := st.FindRecord(ctx, cmd.SourceRecordID)
		if err != nil {
			return notFoundAs(err, "source record not found")
		}
		if source.OwnerID != cmd.TransferorID {
			return dErrors.New(dErrors.CodeForbidden, "transferor does not own the source record")
		}
		if source.Status != models.RecordActive {
			return invalidTransfer("source record is " + string(source.Status) + ", expected ACTIVE")
		}
		if cmd.Percentage.GreaterThan(source.Percentage) {
			return invalidTransfer("transfer percentage " + cmd.Percentage.String() +
				" exceeds the source share " + source.Percentage.String())
		}
		tr, err := buildTransfer(s.newID(), cmd, source, now)
		if err != nil {
			return err
		}
		if err := st.CreateTransfer(ctx, tr); err != nil {
			return err
		}
		transfer = tr
		return s.emit(ctx, st, audit.EventTransferProposed, aggregateTransfer, tr.ID, tr.Subject, tr)
	})
	if err != nil {
		return nil, s.translate(err, "source record not found")
	}
	s.logger.InfoContext(ctx, "transfer proposed",
		"transfer_id", transfer.ID,
		"source_record_id", transfer.SourceRecordID,
		"percentage", transfer.Percentage.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return transfer, nil
}

// buildTransfer fills dates and the denormalized scope from source. The
// transferee's grant cannot outlive the source's.
func buildTransfer(id string, cmd models.ProposeTransferCommand, source *models.OwnershipRecord, now time.Time) (*models.OwnershipTransfer, error) {
	effective := now
	if cmd.EffectiveDate != nil {
		effective = cmd.EffectiveDate.UTC()
	}
	expiration := cmd.ExpirationDate
	if expiration == nil && source.ExpirationDate != nil {
		v := *source.ExpirationDate
		expiration = &v
	}
	if expiration != nil {
		v := expiration.UTC()
		expiration = &v
		if !expiration.After(effective) {
			return nil, invalidTransfer("expiration date must be after effective date")
		}
		if source.ExpirationDate != nil && expiration.After(*source.ExpirationDate) {
			return nil, invalidTransfer("transfer cannot outlast the source record's expiration")
		}
	}
	var consideration *models.Consideration
	if cmd.Consideration != nil {
		c := *cmd.Consideration
		consideration = &c
	}
	return &models.OwnershipTransfer{
		ID:             id,
		SourceRecordID: source.ID,
		TransferorID:   cmd.TransferorID,
		TransfereeID:   cmd.TransfereeID,
		Type:           cmd.Type,
		Percentage:     cmd.Percentage,
		Status:         models.TransferPending,
		TransferDate:   now,
		EffectiveDate:  effective,
		ExpirationDate: expiration,
		Consideration:  consideration,
		Subject:        source.Subject,
		RightsCategory: source.RightsCategory,
		Territory:      source.Territory,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// ExecuteTransfer applies a PENDING transfer in one transaction. Locks are
// taken transfer, then scope, then source record; every check is repeated on
// the locked rows. Any failure leaves no trace. The party rule of
// CancelTransfer applies.
func (s *Service) ExecuteTransfer(ctx context.Context, id string) (transfer *models.OwnershipTransfer, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "execute_transfer", attribute.String("transfer_id", id))
	defer func() {
		s.metrics.ObserveExecute(start)
		s.metrics.ObserveTransfer("execute", outcome(err))
		endSpan(span, err)
	}()

	if strings.TrimSpace(id) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "transfer id is required")
	}

	now := requestNow(ctx)
	var result *models.OwnershipRecord
	err = s.tx.RunInTx(ctx, func(st ports.Store) error {
		tr, err := st.LockTransfer(ctx, id)
		if err != nil {
			return notFoundAs(err, "transfer not found")
		}
		if err := requireParty(ctx, "only a party to the transfer may execute it", tr.TransferorID, tr.TransfereeID); err != nil {
			return err
		}
		if err := tr.CanMoveTo(models.TransferExecuted); err != nil {
			return err
		}

		if err := st.LockScope(ctx, tr.Scope()); err != nil {
			return err
		}
		source, err := st.LockRecord(ctx, tr.SourceRecordID)
		if err != nil {
			return notFoundAs(err, "source record not found")
		}
		if source.Status != models.RecordActive {
			return dErrors.New(dErrors.CodeInvalidState, "source record is "+string(source.Status)+", expected ACTIVE")
		}
		if source.IsExpiredAt(now) {
			return dErrors.New(dErrors.CodeInvalidState, "source record has expired")
		}
		if tr.Percentage.GreaterThan(source.Percentage) {
			return dErrors.New(dErrors.CodeValidation, "transfer percentage "+tr.Percentage.String()+
				" exceeds the source share "+source.Percentage.String())
		}

		before := source.Percentage
		if err := source.Consume(tr.Percentage, now); err != nil {
			return err
		}
		if err := st.UpdateRecord(ctx, source); err != nil {
			return err
		}

		rec, err := models.NewOwnershipRecord(s.newID(), tr.Scope(), tr.TransfereeID, tr.Percentage,
			models.RecordActive, tr.EffectiveDate, tr.ExpirationDate, now)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "transferee record rejected")
		}
		rec.SourceTransferID = tr.ID
		if err := st.CreateRecord(ctx, rec); err != nil {
			return err
		}

		snapshot, err := st.FindActiveByScope(ctx, tr.Scope())
		if err != nil {
			return err
		}
		if err := validator.ValidateScope(snapshot); err != nil {
			return percentageError(err)
		}

		if err := tr.MarkExecuted(rec.ID, before, now); err != nil {
			return err
		}
		if err := st.UpdateTransfer(ctx, tr); err != nil {
			return err
		}
		transfer, result = tr, rec
		return s.emit(ctx, st, audit.EventTransferExecuted, aggregateTransfer, tr.ID, tr.Subject, tr)
	})
	if err != nil {
		err = s.translate(err, "transfer not found")
		s.logger.WarnContext(ctx, "transfer execution aborted",
			"transfer_id", id,
			"code", dErrors.CodeOf(err),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, err
	}

	s.logger.InfoContext(ctx, "transfer executed",
		"transfer_id", transfer.ID,
		"result_record_id", result.ID,
		"percentage", transfer.Percentage.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.afterCommit(ctx, transfer.Subject, transfer.RightsCategory)
	return transfer, nil
}

// CancelTransfer withdraws a PENDING transfer. Only a party to the transfer
// may cancel it; calls without an authenticated actor (operator tooling) may
// cancel any.
func (s *Service) CancelTransfer(ctx context.Context, id string) (transfer *models.OwnershipTransfer, err error) {
	ctx, span := s.startSpan(ctx, "cancel_transfer", attribute.String("transfer_id", id))
	defer func() {
		s.metrics.ObserveTransfer("cancel", outcome(err))
		endSpan(span, err)
	}()

	now := requestNow(ctx)
	err = s.tx.RunInTx(ctx, func(st ports.Store) error {
		tr, err := st.LockTransfer(ctx, id)
		if err != nil {
			return notFoundAs(err, "transfer not found")
		}
		if err := requireParty(ctx, "only a party to the transfer may cancel it", tr.TransferorID, tr.TransfereeID); err != nil {
			return err
		}
		if err := tr.Cancel(now); err != nil {
			return err
		}
		if err := st.UpdateTransfer(ctx, tr); err != nil {
			return err
		}
		transfer = tr
		return s.emit(ctx, st, audit.EventTransferCancelled, aggregateTransfer, tr.ID, tr.Subject, tr)
	})
	if err != nil {
		return nil, s.translate(err, "transfer not found")
	}
	return transfer, nil
}

// DisputeTransfer contests a PENDING transfer. The records stay as they are;
// detection raises an ownership_dispute conflict against the source record.
func (s *Service) DisputeTransfer(ctx context.Context, id, reason string) (transfer *models.OwnershipTransfer, err error) {
	ctx, span := s.startSpan(ctx, "dispute_transfer", attribute.String("transfer_id", id))
	defer func() {
		s.metrics.ObserveTransfer("dispute", outcome(err))
		endSpan(span, err)
	}()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "dispute reason is required")
	}
	now := requestNow(ctx)
	err = s.tx.RunInTx(ctx, func(st ports.Store) error {
		tr, err := st.LockTransfer(ctx, id)
		if err != nil {
			return notFoundAs(err, "transfer not found")
		}
		if err := tr.Dispute(reason, now); err != nil {
			return err
		}
		if err := st.UpdateTransfer(ctx, tr); err != nil {
			return err
		}
		transfer = tr
		return s.emit(ctx, st, audit.EventTransferDisputed, aggregateTransfer, tr.ID, tr.Subject, tr)
	})
	if err != nil {
		return nil, s.translate(err, "transfer not found")
	}
	s.afterCommit(ctx, transfer.Subject, transfer.RightsCategory)
	return transfer, nil
}

func (s *Service) GetTransfer(ctx context.Context, id string) (*models.OwnershipTransfer, error) {
	var tr *models.OwnershipTransfer
	err := s.tx.RunInTx(ctx, func(st ports.Store) error {
		var err error
		tr, err = st.FindTransfer(ctx, id)
		return err
	})
	if err != nil {
		return nil, s.translate(err, "transfer not found")
	}
	return tr, nil
}

// ListTransfers returns every transfer of subject; an empty category returns all.
func (s *Service) ListTransfers(ctx context.Context, subject models.Subject, category models.RightsCategory) ([]*models.OwnershipTransfer, error) {
	if !subject.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "subject must be a track or album with an id")
	}
	if category != "" && !category.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown rights category: "+string(category))
	}
	var out []*models.OwnershipTransfer
	err := s.tx.RunInTx(ctx, func(st ports.Store) error {
		var err error
		out, err = st.ListTransfersBySubject(ctx, subject, category)
		return err
	})
	if err != nil {
		return nil, s.translate(err, "subject not found")
	}
	return out, nil
}
