// Package service is the ledger's transfer coordinator. It owns the record
// creation path and the transfer state machine, running every mutation as
// read, lock, validate, write inside one store transaction.
package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	ledgermetrics "rightsledger/internal/ownership/metrics"
	"rightsledger/internal/ownership/models"
	"rightsledger/internal/ownership/ports"
	"rightsledger/internal/ownership/validator"
	dErrors "rightsledger/pkg/domain-errors"
	audit "rightsledger/pkg/platform/audit"
	"rightsledger/pkg/platform/audit/publishers/compliance"
	"rightsledger/pkg/platform/sentinel"
	"rightsledger/pkg/requestcontext"
)

// AuditPublisher appends ledger events through the tx-scoped store.
type AuditPublisher interface {
	Emit(ctx context.Context, sink compliance.Appender, event audit.Event) error
}

// DetectionTrigger runs conflict detection after a commit. Implementations
// log and count their own failures; callers never see them.
type DetectionTrigger interface {
	Trigger(ctx context.Context, subject models.Subject, category models.RightsCategory)
}

// OwnershipCache is the optional read-through cache behind QueryOwnership.
type OwnershipCache interface {
	Get(ctx context.Context, subject models.Subject, category models.RightsCategory) (*models.OwnershipView, bool)
	Set(ctx context.Context, subject models.Subject, category models.RightsCategory, view *models.OwnershipView)
	Invalidate(ctx context.Context, subject models.Subject)
}

// Service coordinates record and transfer commands.
type Service struct {
	tx        ports.StoreTx
	logger    *slog.Logger
	metrics   *ledgermetrics.Metrics
	auditor   AuditPublisher
	detection DetectionTrigger
	cache     OwnershipCache
	tracer    trace.Tracer
	newID     func() string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *ledgermetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func WithDetection(d DetectionTrigger) Option {
	return func(s *Service) {
		s.detection = d
	}
}

func WithCache(c OwnershipCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithIDGenerator replaces uuid.NewString, for deterministic tests.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New constructs a Service over the transactional store.
func New(tx ports.StoreTx, opts ...Option) *Service {
	s := &Service{
		tx:     tx,
		tracer: otel.Tracer("rightsledger/ownership"),
		newID:  uuid.NewString,
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

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "ownership."+name, trace.WithAttributes(attrs...))
}

// endSpan records err on span and closes it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

// afterCommit invalidates cached views and schedules detection for subject.
func (s *Service) afterCommit(ctx context.Context, subject models.Subject, category models.RightsCategory) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, subject)
	}
	if s.detection != nil {
		s.detection.Trigger(context.WithoutCancel(ctx), subject, category)
	}
}

func (s *Service) emit(ctx context.Context, st ports.Store, action audit.AuditEvent, aggregateType, aggregateID string, subject models.Subject, payload any) error {
	event, err := audit.NewEvent(action, aggregateType, aggregateID, subject.String(), payload, requestNow(ctx))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build ledger event")
	}
	if err := s.auditor.Emit(ctx, st, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record ledger event")
	}
	return nil
}

// translate maps store facts onto domain errors. Domain errors pass through.
func (s *Service) translate(err error, notFound string) error {
	switch {
	case err == nil:
		return nil
	case dErrors.IsDomain(err):
		if dErrors.HasCode(err, dErrors.CodeConcurrency) {
			s.metrics.IncConcurrencyAbort()
		}
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFound)
	case errors.Is(err, sentinel.ErrLockTimeout):
		s.metrics.IncConcurrencyAbort()
		return dErrors.Wrap(err, dErrors.CodeConcurrency, "transaction aborted: lock wait exceeded")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "conflicting write")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvalidState, "write rejected by ledger constraints")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		s.metrics.IncConcurrencyAbort()
		return dErrors.Wrap(err, dErrors.CodeConcurrency, "transaction aborted: deadline exceeded")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "ledger store failure")
	}
}

// notFoundAs names a missing row inside a transaction; other errors pass
// through untouched for translate.
func notFoundAs(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, msg)
	}
	return err
}

// requireParty admits calls without an authenticated actor (operator
// tooling) and otherwise only the listed parties.
func requireParty(ctx context.Context, msg string, parties ...string) error {
	actor := requestcontext.UserID(ctx)
	if actor == "" || slices.Contains(parties, actor) {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, msg)
}

// percentageError converts a validator rejection into a validation error.
func percentageError(err error) error {
	var exceeded *validator.PercentageExceededError
	if errors.As(err, &exceeded) {
		return dErrors.Wrap(err, dErrors.CodeValidation,
			"ownership for "+exceeded.Scope.Key()+" would total "+exceeded.Total().String()+", above 100%")
	}
	return dErrors.Wrap(err, dErrors.CodeValidation, "ownership validation failed")
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(dErrors.CodeOf(err))
}

func subjectAttrs(subject models.Subject, category models.RightsCategory) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("subject", subject.String()),
		attribute.String("rights_category", string(category)),
	}
}
