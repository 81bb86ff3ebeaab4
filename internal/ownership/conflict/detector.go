// Package conflict derives conflict records from the ledger's current state.
// Detection never rejects writes; it runs after commit and records what it
// finds, upserting by (type, implicated record set) so repeated runs over an
// unchanged ledger are no-ops.
package conflict

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	ledgermetrics "rightsledger/internal/ownership/metrics"
	"rightsledger/internal/ownership/models"
	"rightsledger/internal/ownership/ports"
	dErrors "rightsledger/pkg/domain-errors"
	audit "rightsledger/pkg/platform/audit"
	"rightsledger/pkg/platform/audit/publishers/compliance"
	"rightsledger/pkg/platform/sentinel"
	"rightsledger/pkg/requestcontext"
)

const aggregateConflict = "conflict"

// AuditPublisher appends conflict events through the tx-scoped store.
type AuditPublisher interface {
	Emit(ctx context.Context, sink compliance.Appender, event audit.Event) error
}

// Invalidator drops cached ownership views after dispute marking.
type Invalidator interface {
	Invalidate(ctx context.Context, subject models.Subject)
}

// Report summarizes one detection pass.
type Report struct {
	Findings  int      `json:"findings"`
	Created   int      `json:"created"`
	Updated   int      `json:"updated"`
	Unchanged int      `json:"unchanged"`
	Disputed  []string `json:"disputed_record_ids,omitempty"`
}

func (r *Report) add(other Report) {
	r.Findings += other.Findings
	r.Created += other.Created
	r.Updated += other.Updated
	r.Unchanged += other.Unchanged
	r.Disputed = append(r.Disputed, other.Disputed...)
}

// Detector evaluates conflict rules for one subject at a time.
type Detector struct {
	tx           ports.StoreTx
	logger       *slog.Logger
	metrics      *ledgermetrics.Metrics
	auditor      AuditPublisher
	invalidator  Invalidator
	tracer       trace.Tracer
	newID        func() string
	markDisputed bool
}

type Option func(*Detector)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

func WithMetrics(m *ledgermetrics.Metrics) Option {
	return func(d *Detector) {
		d.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(d *Detector) {
		d.auditor = p
	}
}

func WithInvalidator(inv Invalidator) Option {
	return func(d *Detector) {
		d.invalidator = inv
	}
}

// WithMarkDisputed flips ACTIVE records implicated by percentage_mismatch or
// ownership_dispute conflicts to DISPUTED.
func WithMarkDisputed(enabled bool) Option {
	return func(d *Detector) {
		d.markDisputed = enabled
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(d *Detector) {
		if fn != nil {
			d.newID = fn
		}
	}
}

// New constructs a Detector over the transactional store.
func New(tx ports.StoreTx, opts ...Option) *Detector {
	d := &Detector{
		tx:     tx,
		tracer: otel.Tracer("rightsledger/conflict"),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.auditor == nil {
		d.auditor = compliance.New(compliance.WithLogger(d.logger))
	}
	return d
}

// Trigger runs detection synchronously and swallows its failure after
// logging it. It satisfies the coordinator's post-commit hook.
func (d *Detector) Trigger(ctx context.Context, subject models.Subject, category models.RightsCategory) {
	if _, err := d.DetectSubject(ctx, subject, category); err != nil {
		d.metrics.IncDetectionFailure()
		d.logger.ErrorContext(ctx, "conflict detection failed",
			"subject", subject.String(),
			"rights_category", category,
			"error", err,
		)
	}
}

// DetectSubject evaluates every rule for subject. An empty category checks
// each category in its own transaction.
func (d *Detector) DetectSubject(ctx context.Context, subject models.Subject, category models.RightsCategory) (report Report, err error) {
	ctx, span := d.tracer.Start(ctx, "conflict.detect_subject", trace.WithAttributes(
		attribute.String("subject", subject.String()),
		attribute.String("rights_category", string(category)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		}
		span.End()
	}()
	start := time.Now()
	defer d.metrics.ObserveDetection(start)

	if !subject.IsValid() {
		return Report{}, dErrors.New(dErrors.CodeBadRequest, "subject must be a track or album with an id")
	}
	if category != "" && !category.IsValid() {
		return Report{}, dErrors.New(dErrors.CodeBadRequest, "unknown rights category: "+string(category))
	}

	categories := []models.RightsCategory{category}
	if category == "" {
		categories = models.AllRightsCategories
	}
	for _, cat := range categories {
		r, err := d.detectCategory(ctx, subject, cat)
		if err != nil {
			return report, err
		}
		report.add(r)
	}

	if len(report.Disputed) > 0 && d.invalidator != nil {
		d.invalidator.Invalidate(ctx, subject)
	}
	if report.Created > 0 || report.Updated > 0 || len(report.Disputed) > 0 {
		d.logger.InfoContext(ctx, "conflicts detected",
			"subject", subject.String(),
			"rights_category", category,
			"created", report.Created,
			"updated", report.Updated,
			"disputed", len(report.Disputed),
		)
	}
	return report, nil
}

// detectCategory retries once when a concurrent pass inserted the same
// conflict first; the retry then sees it as existing.
func (d *Detector) detectCategory(ctx context.Context, subject models.Subject, category models.RightsCategory) (Report, error) {
	report, err := d.detectOnce(ctx, subject, category)
	if errors.Is(err, sentinel.ErrConflict) {
		report, err = d.detectOnce(ctx, subject, category)
	}
	if err != nil {
		return Report{}, translate(err)
	}
	return report, nil
}

type upsertAction struct {
	conflictType models.ConflictType
	action       string
}

func (d *Detector) detectOnce(ctx context.Context, subject models.Subject, category models.RightsCategory) (Report, error) {
	var (
		report  Report
		actions []upsertAction
	)
	now := requestcontext.Now(ctx).UTC()

	err := d.tx.RunInTx(ctx, func(st ports.Store) error {
		report = Report{}
		actions = actions[:0]

		snap, err := loadSnapshot(ctx, st, subject, category, now)
		if err != nil {
			return err
		}
		findings := evaluate(snap)
		report.Findings = len(findings)

		for _, f := range findings {
			action, err := d.upsert(ctx, st, subject, category, f, now)
			if err != nil {
				return err
			}
			switch action {
			case "created":
				report.Created++
			case "updated":
				report.Updated++
			default:
				report.Unchanged++
			}
			if action != "unchanged" {
				actions = append(actions, upsertAction{conflictType: f.Type, action: action})
			}
		}

		if d.markDisputed {
			disputed, err := d.disputeImplicated(ctx, st, subject, findings, now)
			if err != nil {
				return err
			}
			report.Disputed = disputed
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}

	for _, a := range actions {
		d.metrics.IncConflict(string(a.conflictType), a.action)
	}
	return report, nil
}

func loadSnapshot(ctx context.Context, st ports.Store, subject models.Subject, category models.RightsCategory, now time.Time) (snapshot, error) {
	active, err := st.FindActiveBySubject(ctx, subject, category)
	if err != nil {
		return snapshot{}, err
	}
	transfers, err := st.ListTransfersBySubject(ctx, subject, category)
	if err != nil {
		return snapshot{}, err
	}

	lookup := make(map[string]*models.OwnershipRecord, len(active))
	for _, r := range active {
		lookup[r.ID] = r
	}
	for _, t := range transfers {
		if t.Status != models.TransferExecuted {
			continue
		}
		for _, id := range []string{t.SourceRecordID, t.ResultRecordID} {
			if id == "" {
				continue
			}
			if _, ok := lookup[id]; ok {
				continue
			}
			rec, err := st.FindRecord(ctx, id)
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			if err != nil {
				return snapshot{}, err
			}
			lookup[id] = rec
		}
	}

	return snapshot{
		Subject:   subject,
		Category:  category,
		Active:    active,
		Transfers: transfers,
		Lookup:    lookup,
		Now:       now,
	}, nil
}

// upsert creates the conflict or refreshes its severity and description.
// Status is owned by the resolution workflow and never touched here.
func (d *Detector) upsert(ctx context.Context, st ports.Store, subject models.Subject, category models.RightsCategory, f finding, now time.Time) (string, error) {
	key, recordIDs := models.ConflictKey(f.Type, f.RecordIDs)

	existing, err := st.FindUnresolvedConflict(ctx, key)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		c := &models.OwnershipConflict{
			ID:                  d.newID(),
			Subject:             subject,
			RightsCategory:      category,
			Type:                f.Type,
			Severity:            f.Severity,
			Status:              models.ConflictOpen,
			ImplicatedRecordIDs: recordIDs,
			Description:         f.Description,
			Key:                 key,
			DetectedAt:          now,
			UpdatedAt:           now,
		}
		if err := st.CreateConflict(ctx, c); err != nil {
			return "", err
		}
		return "created", d.emit(ctx, st, audit.EventConflictDetected, c, now)
	case err != nil:
		return "", err
	}

	if existing.Severity == f.Severity && existing.Description == f.Description {
		return "unchanged", nil
	}
	existing.Severity = f.Severity
	existing.Description = f.Description
	existing.UpdatedAt = now
	if err := st.UpdateConflict(ctx, existing); err != nil {
		return "", err
	}
	return "updated", d.emit(ctx, st, audit.EventConflictUpdated, existing, now)
}

// disputeImplicated moves ACTIVE records named by dispute-worthy findings to
// DISPUTED, taking the scope lock before each record lock.
func (d *Detector) disputeImplicated(ctx context.Context, st ports.Store, subject models.Subject, findings []finding, now time.Time) ([]string, error) {
	var candidates []string
	for _, f := range findings {
		if f.Type != models.ConflictPercentageMismatch && f.Type != models.ConflictOwnershipDispute {
			continue
		}
		candidates = append(candidates, f.RecordIDs...)
	}
	candidates = models.SortedUnique(candidates)
	if len(candidates) == 0 {
		return nil, nil
	}

	type target struct {
		scope models.Scope
		id    string
	}
	targets := make([]target, 0, len(candidates))
	for _, id := range candidates {
		rec, err := st.FindRecord(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if rec.Status == models.RecordActive {
			targets = append(targets, target{scope: rec.Scope(), id: rec.ID})
		}
	}
	sort.Slice(targets, func(i, j int) bool {
		if targets[i].scope.Key() != targets[j].scope.Key() {
			return targets[i].scope.Key() < targets[j].scope.Key()
		}
		return targets[i].id < targets[j].id
	})

	var disputed []string
	locked := make(map[string]struct{})
	for _, t := range targets {
		if _, ok := locked[t.scope.Key()]; !ok {
			if err := st.LockScope(ctx, t.scope); err != nil {
				return nil, err
			}
			locked[t.scope.Key()] = struct{}{}
		}
		rec, err := st.LockRecord(ctx, t.id)
		if err != nil {
			return nil, err
		}
		if rec.Status != models.RecordActive {
			continue
		}
		if err := rec.TransitionTo(models.RecordDisputed, now); err != nil {
			return nil, err
		}
		if err := st.UpdateRecord(ctx, rec); err != nil {
			return nil, err
		}
		event, err := audit.NewEvent(audit.EventRecordDisputed, "record", rec.ID, subject.String(), rec, now)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build ledger event")
		}
		if err := d.auditor.Emit(ctx, st, event); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record ledger event")
		}
		disputed = append(disputed, rec.ID)
	}
	return disputed, nil
}

func (d *Detector) emit(ctx context.Context, st ports.Store, action audit.AuditEvent, c *models.OwnershipConflict, now time.Time) error {
	event, err := audit.NewEvent(action, aggregateConflict, c.ID, c.Subject.String(), c, now)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build conflict event")
	}
	if err := d.auditor.Emit(ctx, st, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record conflict event")
	}
	return nil
}

// SweepAll re-runs detection for every subject and category that holds
// ACTIVE records. One failing subject does not stop the sweep.
func (d *Detector) SweepAll(ctx context.Context) (Report, error) {
	var subjects []models.SubjectCategory
	err := d.tx.RunInTx(ctx, func(st ports.Store) error {
		var err error
		subjects, err = st.ListActiveSubjects(ctx)
		return err
	})
	if err != nil {
		return Report{}, translate(err)
	}

	var (
		total Report
		errs  []error
	)
	for _, sc := range subjects {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		r, err := d.DetectSubject(ctx, sc.Subject, sc.RightsCategory)
		if err != nil {
			d.metrics.IncDetectionFailure()
			d.logger.WarnContext(ctx, "sweep detection failed",
				"subject", sc.Subject.String(),
				"rights_category", sc.RightsCategory,
				"error", err,
			)
			errs = append(errs, err)
			continue
		}
		total.add(r)
	}
	d.logger.InfoContext(ctx, "conflict sweep complete",
		"subjects", len(subjects),
		"created", total.Created,
		"updated", total.Updated,
		"failed", len(errs),
	)
	return total, errors.Join(errs...)
}

// RunSweeper calls SweepAll every interval until ctx is cancelled.
func (d *Detector) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := d.SweepAll(ctx); err != nil && ctx.Err() == nil {
				d.logger.WarnContext(ctx, "periodic conflict sweep incomplete", "error", err)
			}
		}
	}
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case dErrors.IsDomain(err):
		return err
	case errors.Is(err, sentinel.ErrLockTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeConcurrency, "detection aborted")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "conflict detection failed")
	}
}
