// Package expiry moves ACTIVE records past their expiration date to EXPIRED.
package expiry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	ledgermetrics "rightsledger/internal/ownership/metrics"
	"rightsledger/internal/ownership/models"
	"rightsledger/internal/ownership/ports"
	dErrors "rightsledger/pkg/domain-errors"
	audit "rightsledger/pkg/platform/audit"
	"rightsledger/pkg/platform/audit/publishers/compliance"
	"rightsledger/pkg/requestcontext"
)

const (
	defaultInterval  = time.Hour
	defaultBatchSize = 200
)

// AuditPublisher appends expiry events through the tx-scoped store.
type AuditPublisher interface {
	Emit(ctx context.Context, sink compliance.Appender, event audit.Event) error
}

// DetectionTrigger re-runs conflict detection for a subject after expiry.
type DetectionTrigger interface {
	Trigger(ctx context.Context, subject models.Subject, category models.RightsCategory)
}

// Invalidator drops cached ownership views.
type Invalidator interface {
	Invalidate(ctx context.Context, subject models.Subject)
}

// Result reports one sweep.
type Result struct {
	Expired []string `json:"expired_record_ids"`
	Failed  int      `json:"failed"`
}

// Sweeper expires records one transaction at a time, each under its scope lock.
type Sweeper struct {
	tx          ports.StoreTx
	logger      *slog.Logger
	metrics     *ledgermetrics.Metrics
	auditor     AuditPublisher
	detection   DetectionTrigger
	invalidator Invalidator
	interval    time.Duration
	batchSize   int
}

type Option func(*Sweeper)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithMetrics(m *ledgermetrics.Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Sweeper) {
		s.auditor = p
	}
}

func WithDetection(d DetectionTrigger) Option {
	return func(s *Sweeper) {
		s.detection = d
	}
}

func WithInvalidator(inv Invalidator) Option {
	return func(s *Sweeper) {
		s.invalidator = inv
	}
}

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func New(tx ports.StoreTx, opts ...Option) *Sweeper {
	s := &Sweeper{
		tx:        tx,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.auditor == nil {
		s.auditor = compliance.New(compliance.WithLogger(s.logger))
	}
	return s
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.WarnContext(ctx, "expiry sweep failed", "error", err)
			}
		}
	}
}

// Sweep expires batches until none remain or a batch makes no progress.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var total Result
	for {
		r, err := s.SweepOnce(ctx)
		total.Expired = append(total.Expired, r.Expired...)
		total.Failed += r.Failed
		if err != nil {
			return total, err
		}
		if len(r.Expired)+r.Failed < s.batchSize || r.Failed > 0 {
			return total, nil
		}
	}
}

// SweepOnce expires up to one batch of records due at the request time.
func (s *Sweeper) SweepOnce(ctx context.Context) (Result, error) {
	now := requestcontext.Now(ctx).UTC()

	var due []*models.OwnershipRecord
	err := s.tx.RunInTx(ctx, func(st ports.Store) error {
		var err error
		due, err = st.ListExpiredActive(ctx, now, s.batchSize)
		return err
	})
	if err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list expired records")
	}

	var result Result
	touched := make(map[string]models.SubjectCategory)
	for _, rec := range due {
		expired, err := s.expire(ctx, rec, now)
		if err != nil {
			result.Failed++
			s.logger.WarnContext(ctx, "failed to expire record",
				"record_id", rec.ID,
				"error", err,
			)
			continue
		}
		if !expired {
			continue
		}
		result.Expired = append(result.Expired, rec.ID)
		sc := models.SubjectCategory{Subject: rec.Subject, RightsCategory: rec.RightsCategory}
		touched[sc.Key()] = sc
	}

	s.metrics.AddRecordsExpired(len(result.Expired))
	for _, sc := range touched {
		if s.invalidator != nil {
			s.invalidator.Invalidate(ctx, sc.Subject)
		}
		if s.detection != nil {
			s.detection.Trigger(context.WithoutCancel(ctx), sc.Subject, sc.RightsCategory)
		}
	}
	if len(result.Expired) > 0 || result.Failed > 0 {
		s.logger.InfoContext(ctx, "expiry sweep batch complete",
			"expired", len(result.Expired),
			"failed", result.Failed,
		)
	}
	return result, nil
}

// expire re-reads the record under lock; it reports false when another
// writer already moved it on.
func (s *Sweeper) expire(ctx context.Context, candidate *models.OwnershipRecord, now time.Time) (bool, error) {
	var expired bool
	err := s.tx.RunInTx(ctx, func(st ports.Store) error {
		expired = false
		if err := st.LockScope(ctx, candidate.Scope()); err != nil {
			return err
		}
		rec, err := st.LockRecord(ctx, candidate.ID)
		if err != nil {
			return err
		}
		if rec.Status != models.RecordActive || !rec.IsExpiredAt(now) {
			return nil
		}
		if err := rec.TransitionTo(models.RecordExpired, now); err != nil {
			return err
		}
		if err := st.UpdateRecord(ctx, rec); err != nil {
			return err
		}
		event, err := audit.NewEvent(audit.EventRecordExpired, "record", rec.ID, rec.Subject.String(), rec, now)
		if err != nil {
			return err
		}
		if err := s.auditor.Emit(ctx, st, event); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil && !dErrors.IsDomain(err) && !errors.Is(err, context.Canceled) {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "expire record "+candidate.ID)
	}
	return expired, err
}
