package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rightsledger/internal/ownership/models"
	"rightsledger/internal/ownership/ports"
	"rightsledger/internal/platform/sqldb"
	dErrors "rightsledger/pkg/domain-errors"
	audit "rightsledger/pkg/platform/audit"
	"rightsledger/pkg/platform/sentinel"
)

// sqlStore is the dialect-neutral half of the SQLite and PostgreSQL stores.
type sqlStore struct {
	db        *sql.DB
	dialect   sqldb.Dialect
	txTimeout time.Duration
	logger    *slog.Logger

	// beginTx opens a transaction and applies per-dialect session settings.
	beginTx func(ctx context.Context) (*sql.Tx, error)
	// classify maps driver errors onto sentinel errors.
	classify func(err error) error
}

// SQLOption configures the SQL-backed stores.
type SQLOption func(*sqlStore)

// WithSQLTxTimeout overrides the default transaction timeout.
func WithSQLTxTimeout(d time.Duration) SQLOption {
	return func(s *sqlStore) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

// WithSQLLogger sets the logger used for rollback failures.
func WithSQLLogger(logger *slog.Logger) SQLOption {
	return func(s *sqlStore) {
		s.logger = logger
	}
}

func (s *sqlStore) RunInTx(ctx context.Context, fn func(store ports.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeConcurrency, "transaction aborted: context cancelled")
	}
	// The caller's deadline still applies when it is earlier.
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return s.abort(ctx, fmt.Errorf("begin tx: %w", s.classify(err)))
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) && s.logger != nil {
			s.logger.WarnContext(ctx, "ledger rollback failed", "error", rbErr)
		}
	}()

	if err := fn(&sqlTx{tx: tx, d: s.dialect, classify: s.classify}); err != nil {
		return s.abort(ctx, err)
	}
	if err := tx.Commit(); err != nil {
		return s.abort(ctx, fmt.Errorf("commit tx: %w", s.classify(err)))
	}
	return nil
}

// abort turns lock waits and expired deadlines into a domain concurrency
// error; everything else passes through for the caller to translate.
func (s *sqlStore) abort(ctx context.Context, err error) error {
	if dErrors.IsDomain(err) {
		return err
	}
	if errors.Is(err, sentinel.ErrLockTimeout) || ctx.Err() != nil {
		return dErrors.Wrap(err, dErrors.CodeConcurrency, "transaction aborted: lock wait exceeded")
	}
	return err
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) DB() *sql.DB {
	return s.db
}

// PendingEvents returns unpublished outbox events in append order.
func (s *sqlStore) PendingEvents(ctx context.Context, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(`SELECT `+outboxColumns+`
		FROM outbox WHERE published_at IS NULL ORDER BY seq LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkPublished stamps delivered events so the relay skips them.
func (s *sqlStore) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, s.dialect.Time(at))
	for _, id := range ids {
		args = append(args, id)
	}
	query := s.dialect.Rebind(`UPDATE outbox SET published_at = ? WHERE id IN (` + sqldb.Placeholders(len(ids)) + `)`)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

// sqlTx implements ports.Store over one database transaction.
type sqlTx struct {
	tx       *sql.Tx
	d        sqldb.Dialect
	classify func(error) error
}

const recordColumns = `id, subject_type, subject_id, rights_category, territory, owner_id, percentage,
	status, effective_date, expiration_date, isrc, iswc, ipi, isni, society_ref,
	source_transfer_id, created_at, updated_at`

const transferColumns = `id, source_record_id, transferor_id, transferee_id, transfer_type, percentage,
	status, transfer_date, effective_date, expiration_date, consideration_amount, consideration_currency,
	subject_type, subject_id, rights_category, territory, executed_at, result_record_id,
	source_percentage_before, dispute_reason, created_at, updated_at`

const conflictColumns = `id, subject_type, subject_id, rights_category, conflict_type, severity, status,
	implicated_record_ids, description, conflict_key, detected_at, updated_at`

const outboxColumns = `id, category, aggregate_type, aggregate_id, event_type, subject, actor_id,
	request_id, payload, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (t *sqlTx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, t.d.Rebind(query), args...)
	if err != nil {
		return nil, t.classify(err)
	}
	return res, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (t *sqlTx) CreateRecord(ctx context.Context, r *models.OwnershipRecord) error {
	_, err := t.exec(ctx, `INSERT INTO ownership_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Subject.Type), r.Subject.ID, string(r.RightsCategory), r.Territory, r.OwnerID,
		r.Percentage, string(r.Status), t.d.Time(r.EffectiveDate), t.d.NullTime(r.ExpirationDate),
		r.RegistrationIDs.ISRC, r.RegistrationIDs.ISWC, r.RegistrationIDs.IPI, r.RegistrationIDs.ISNI,
		r.RegistrationIDs.SocietyRef, r.SourceTransferID, t.d.Time(r.CreatedAt), t.d.Time(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert ownership record: %w", err)
	}
	return nil
}

func (t *sqlTx) UpdateRecord(ctx context.Context, r *models.OwnershipRecord) error {
	res, err := t.exec(ctx, `UPDATE ownership_records SET percentage = ?, status = ?, effective_date = ?,
		expiration_date = ?, isrc = ?, iswc = ?, ipi = ?, isni = ?, society_ref = ?, updated_at = ?
		WHERE id = ?`,
		r.Percentage, string(r.Status), t.d.Time(r.EffectiveDate), t.d.NullTime(r.ExpirationDate),
		r.RegistrationIDs.ISRC, r.RegistrationIDs.ISWC, r.RegistrationIDs.IPI, r.RegistrationIDs.ISNI,
		r.RegistrationIDs.SocietyRef, t.d.Time(r.UpdatedAt), r.ID,
	)
	if err != nil {
		return fmt.Errorf("update ownership record: %w", err)
	}
	return requireOneRow(res)
}

func (t *sqlTx) FindRecord(ctx context.Context, id string) (*models.OwnershipRecord, error) {
	return t.findRecord(ctx, id, "")
}

func (t *sqlTx) LockRecord(ctx context.Context, id string) (*models.OwnershipRecord, error) {
	return t.findRecord(ctx, id, t.d.ForUpdate())
}

func (t *sqlTx) findRecord(ctx context.Context, id, suffix string) (*models.OwnershipRecord, error) {
	row := t.tx.QueryRowContext(ctx, t.d.Rebind(`SELECT `+recordColumns+` FROM ownership_records WHERE id = ?`+suffix), id)
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find ownership record: %w", t.classify(err))
	}
	return r, nil
}

func (t *sqlTx) LockScope(ctx context.Context, scope models.Scope) error {
	if t.d != sqldb.Postgres {
		return nil
	}
	if _, err := t.exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended(?, 0))`, scope.Key()); err != nil {
		return fmt.Errorf("lock scope %s: %w", scope.Key(), err)
	}
	return nil
}

func (t *sqlTx) FindActiveByScope(ctx context.Context, scope models.Scope) ([]*models.OwnershipRecord, error) {
	return t.queryRecords(ctx, `SELECT `+recordColumns+` FROM ownership_records
		WHERE subject_type = ? AND subject_id = ? AND rights_category = ? AND territory = ? AND status = ?
		ORDER BY created_at, id`,
		string(scope.Subject.Type), scope.Subject.ID, string(scope.RightsCategory), scope.Territory, string(models.RecordActive))
}

func (t *sqlTx) FindActiveBySubject(ctx context.Context, subject models.Subject, category models.RightsCategory) ([]*models.OwnershipRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM ownership_records
		WHERE subject_type = ? AND subject_id = ? AND status = ?`
	args := []any{string(subject.Type), subject.ID, string(models.RecordActive)}
	if category != "" {
		query += ` AND rights_category = ?`
		args = append(args, string(category))
	}
	return t.queryRecords(ctx, query+` ORDER BY created_at, id`, args...)
}

func (t *sqlTx) ListExpiredActive(ctx context.Context, asOf time.Time, limit int) ([]*models.OwnershipRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM ownership_records
		WHERE status = ? AND expiration_date IS NOT NULL AND expiration_date <= ?
		ORDER BY expiration_date, id`
	args := []any{string(models.RecordActive), t.d.Time(asOf)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return t.queryRecords(ctx, query, args...)
}

func (t *sqlTx) ListActiveSubjects(ctx context.Context) ([]models.SubjectCategory, error) {
	rows, err := t.tx.QueryContext(ctx, t.d.Rebind(`SELECT DISTINCT subject_type, subject_id, rights_category
		FROM ownership_records WHERE status = ? ORDER BY subject_type, subject_id, rights_category`),
		string(models.RecordActive))
	if err != nil {
		return nil, fmt.Errorf("list active subjects: %w", t.classify(err))
	}
	defer rows.Close()

	var out []models.SubjectCategory
	for rows.Next() {
		var st, sid, cat string
		if err := rows.Scan(&st, &sid, &cat); err != nil {
			return nil, fmt.Errorf("scan active subject: %w", err)
		}
		out = append(out, models.SubjectCategory{
			Subject:        models.Subject{Type: models.SubjectType(st), ID: sid},
			RightsCategory: models.RightsCategory(cat),
		})
	}
	return out, rows.Err()
}

func (t *sqlTx) queryRecords(ctx context.Context, query string, args ...any) ([]*models.OwnershipRecord, error) {
	rows, err := t.tx.QueryContext(ctx, t.d.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query ownership records: %w", t.classify(err))
	}
	defer rows.Close()

	var out []*models.OwnershipRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ownership record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRecord(row rowScanner) (*models.OwnershipRecord, error) {
	var (
		r                           models.OwnershipRecord
		subjectType, cat, status    string
		effective, created, updated sqldb.TimeValue
		expiration                  sqldb.TimeValue
	)
	if err := row.Scan(&r.ID, &subjectType, &r.Subject.ID, &cat, &r.Territory, &r.OwnerID, &r.Percentage,
		&status, &effective, &expiration, &r.RegistrationIDs.ISRC, &r.RegistrationIDs.ISWC,
		&r.RegistrationIDs.IPI, &r.RegistrationIDs.ISNI, &r.RegistrationIDs.SocietyRef,
		&r.SourceTransferID, &created, &updated); err != nil {
		return nil, err
	}
	r.Subject.Type = models.SubjectType(subjectType)
	r.RightsCategory = models.RightsCategory(cat)
	r.Status = models.RecordStatus(status)
	r.EffectiveDate = effective.Time
	r.ExpirationDate = expiration.Ptr()
	r.CreatedAt = created.Time
	r.UpdatedAt = updated.Time
	return &r, nil
}

func (t *sqlTx) CreateTransfer(ctx context.Context, tr *models.OwnershipTransfer) error {
	amount, currency := considerationColumns(tr.Consideration)
	_, err := t.exec(ctx, `INSERT INTO ownership_transfers (`+transferColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.SourceRecordID, tr.TransferorID, tr.TransfereeID, string(tr.Type), tr.Percentage,
		string(tr.Status), t.d.Time(tr.TransferDate), t.d.Time(tr.EffectiveDate), t.d.NullTime(tr.ExpirationDate),
		amount, currency, string(tr.Subject.Type), tr.Subject.ID, string(tr.RightsCategory), tr.Territory,
		t.d.NullTime(tr.ExecutedAt), tr.ResultRecordID, nullDecimal(tr.SourcePercentageBefore), tr.DisputeReason,
		t.d.Time(tr.CreatedAt), t.d.Time(tr.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert ownership transfer: %w", err)
	}
	return nil
}

func (t *sqlTx) UpdateTransfer(ctx context.Context, tr *models.OwnershipTransfer) error {
	res, err := t.exec(ctx, `UPDATE ownership_transfers SET status = ?, executed_at = ?, result_record_id = ?,
		source_percentage_before = ?, dispute_reason = ?, updated_at = ? WHERE id = ?`,
		string(tr.Status), t.d.NullTime(tr.ExecutedAt), tr.ResultRecordID,
		nullDecimal(tr.SourcePercentageBefore), tr.DisputeReason, t.d.Time(tr.UpdatedAt), tr.ID,
	)
	if err != nil {
		return fmt.Errorf("update ownership transfer: %w", err)
	}
	return requireOneRow(res)
}

func (t *sqlTx) FindTransfer(ctx context.Context, id string) (*models.OwnershipTransfer, error) {
	return t.findTransfer(ctx, id, "")
}

func (t *sqlTx) LockTransfer(ctx context.Context, id string) (*models.OwnershipTransfer, error) {
	return t.findTransfer(ctx, id, t.d.ForUpdate())
}

func (t *sqlTx) findTransfer(ctx context.Context, id, suffix string) (*models.OwnershipTransfer, error) {
	row := t.tx.QueryRowContext(ctx, t.d.Rebind(`SELECT `+transferColumns+` FROM ownership_transfers WHERE id = ?`+suffix), id)
	tr, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find ownership transfer: %w", t.classify(err))
	}
	return tr, nil
}

func (t *sqlTx) ListTransfersBySubject(ctx context.Context, subject models.Subject, category models.RightsCategory) ([]*models.OwnershipTransfer, error) {
	query := `SELECT ` + transferColumns + ` FROM ownership_transfers WHERE subject_type = ? AND subject_id = ?`
	args := []any{string(subject.Type), subject.ID}
	if category != "" {
		query += ` AND rights_category = ?`
		args = append(args, string(category))
	}
	rows, err := t.tx.QueryContext(ctx, t.d.Rebind(query+` ORDER BY created_at, id`), args...)
	if err != nil {
		return nil, fmt.Errorf("query ownership transfers: %w", t.classify(err))
	}
	defer rows.Close()

	var out []*models.OwnershipTransfer
	for rows.Next() {
		tr, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ownership transfer: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func scanTransfer(row rowScanner) (*models.OwnershipTransfer, error) {
	var (
		tr                                     models.OwnershipTransfer
		transferType, status, subjectType, cat string
		transferDate, effective, created       sqldb.TimeValue
		updated, expiration, executed          sqldb.TimeValue
		amount, before                         decimal.NullDecimal
		currency                               string
	)
	if err := row.Scan(&tr.ID, &tr.SourceRecordID, &tr.TransferorID, &tr.TransfereeID, &transferType,
		&tr.Percentage, &status, &transferDate, &effective, &expiration, &amount, &currency,
		&subjectType, &tr.Subject.ID, &cat, &tr.Territory, &executed, &tr.ResultRecordID,
		&before, &tr.DisputeReason, &created, &updated); err != nil {
		return nil, err
	}
	tr.Type = models.TransferType(transferType)
	tr.Status = models.TransferStatus(status)
	tr.Subject.Type = models.SubjectType(subjectType)
	tr.RightsCategory = models.RightsCategory(cat)
	tr.TransferDate = transferDate.Time
	tr.EffectiveDate = effective.Time
	tr.ExpirationDate = expiration.Ptr()
	tr.ExecutedAt = executed.Ptr()
	tr.CreatedAt = created.Time
	tr.UpdatedAt = updated.Time
	if amount.Valid {
		tr.Consideration = &models.Consideration{Amount: amount.Decimal, Currency: currency}
	}
	if before.Valid {
		v := before.Decimal
		tr.SourcePercentageBefore = &v
	}
	return &tr, nil
}

func considerationColumns(c *models.Consideration) (any, string) {
	if c == nil {
		return nil, ""
	}
	return c.Amount, c.Currency
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return *d
}

func (t *sqlTx) CreateConflict(ctx context.Context, c *models.OwnershipConflict) error {
	_, err := t.exec(ctx, `INSERT INTO ownership_conflicts (`+conflictColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, string(c.Subject.Type), c.Subject.ID, string(c.RightsCategory), string(c.Type),
		string(c.Severity), string(c.Status), t.d.Strings(c.ImplicatedRecordIDs), c.Description, c.Key,
		t.d.Time(c.DetectedAt), t.d.Time(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert ownership conflict: %w", err)
	}
	return nil
}

func (t *sqlTx) UpdateConflict(ctx context.Context, c *models.OwnershipConflict) error {
	res, err := t.exec(ctx, `UPDATE ownership_conflicts SET severity = ?, status = ?, implicated_record_ids = ?,
		description = ?, updated_at = ? WHERE id = ?`,
		string(c.Severity), string(c.Status), t.d.Strings(c.ImplicatedRecordIDs), c.Description,
		t.d.Time(c.UpdatedAt), c.ID,
	)
	if err != nil {
		return fmt.Errorf("update ownership conflict: %w", err)
	}
	return requireOneRow(res)
}

func (t *sqlTx) FindUnresolvedConflict(ctx context.Context, key string) (*models.OwnershipConflict, error) {
	row := t.tx.QueryRowContext(ctx, t.d.Rebind(`SELECT `+conflictColumns+` FROM ownership_conflicts
		WHERE conflict_key = ? AND status <> ?`), key, string(models.ConflictResolved))
	c, err := scanConflict(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find ownership conflict: %w", t.classify(err))
	}
	return c, nil
}

func (t *sqlTx) ListConflicts(ctx context.Context, filter models.ConflictFilter) ([]*models.OwnershipConflict, error) {
	var (
		where []string
		args  []any
	)
	if filter.Subject != nil {
		where = append(where, "subject_type = ?", "subject_id = ?")
		args = append(args, string(filter.Subject.Type), filter.Subject.ID)
	}
	if filter.RightsCategory != "" {
		where = append(where, "rights_category = ?")
		args = append(args, string(filter.RightsCategory))
	}
	if filter.Type != "" {
		where = append(where, "conflict_type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	query := `SELECT ` + conflictColumns + ` FROM ownership_conflicts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY detected_at, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := t.tx.QueryContext(ctx, t.d.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query ownership conflicts: %w", t.classify(err))
	}
	defer rows.Close()

	var out []*models.OwnershipConflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ownership conflict: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanConflict(row rowScanner) (*models.OwnershipConflict, error) {
	var (
		c                                           models.OwnershipConflict
		subjectType, cat, conflictType, sev, status string
		ids                                         sqldb.StringList
		detected, updated                           sqldb.TimeValue
	)
	if err := row.Scan(&c.ID, &subjectType, &c.Subject.ID, &cat, &conflictType, &sev, &status,
		&ids, &c.Description, &c.Key, &detected, &updated); err != nil {
		return nil, err
	}
	c.Subject.Type = models.SubjectType(subjectType)
	c.RightsCategory = models.RightsCategory(cat)
	c.Type = models.ConflictType(conflictType)
	c.Severity = models.Severity(sev)
	c.Status = models.ConflictStatus(status)
	c.ImplicatedRecordIDs = []string(ids)
	c.DetectedAt = detected.Time
	c.UpdatedAt = updated.Time
	return &c, nil
}

func (t *sqlTx) AppendEvent(ctx context.Context, e audit.Event) error {
	_, err := t.exec(ctx, `INSERT INTO outbox (`+outboxColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Category), e.AggregateType, e.AggregateID, string(e.Action), e.Subject,
		e.ActorID, e.RequestID, string(e.Payload), t.d.Time(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("append outbox event: %w", err)
	}
	return nil
}

func scanEvent(row rowScanner) (audit.Event, error) {
	var (
		e                audit.Event
		category, action string
		payload          []byte
		created          sqldb.TimeValue
	)
	if err := row.Scan(&e.ID, &category, &e.AggregateType, &e.AggregateID, &action, &e.Subject,
		&e.ActorID, &e.RequestID, &payload, &created); err != nil {
		return audit.Event{}, err
	}
	e.Category = audit.EventCategory(category)
	e.Action = audit.AuditEvent(action)
	e.Payload = payload
	e.Timestamp = created.Time
	return e, nil
}
