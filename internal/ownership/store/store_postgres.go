package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"rightsledger/internal/ownership/store/migrations"
	"rightsledger/internal/platform/sqldb"
	"rightsledger/pkg/platform/sentinel"
)

const defaultLockTimeout = 2 * time.Second

// PostgresStore persists the ledger in PostgreSQL. Scope writers serialize on
// a transaction-scoped advisory lock; records and transfers are row-locked.
type PostgresStore struct {
	sqlStore
	lockTimeout time.Duration
}

// OpenPostgres connects through the pgx stdlib driver and applies migrations.
func OpenPostgres(ctx context.Context, dsn string, maxOpenConns int, lockTimeout time.Duration, opts ...SQLOption) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := sqldb.ApplyMigrations(ctx, db, sqldb.Postgres, migrations.FS, "postgres"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return NewPostgres(db, lockTimeout, opts...), nil
}

// NewPostgres wraps an already migrated database handle.
func NewPostgres(db *sql.DB, lockTimeout time.Duration, opts ...SQLOption) *PostgresStore {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	s := &PostgresStore{lockTimeout: lockTimeout}
	s.sqlStore = sqlStore{
		db:        db,
		dialect:   sqldb.Postgres,
		txTimeout: defaultTxTimeout,
		classify:  classifyPostgres,
	}
	s.beginTx = s.begin
	for _, opt := range opts {
		opt(&s.sqlStore)
	}
	return s
}

func (s *PostgresStore) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	// SET does not accept bind parameters.
	stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return tx, nil
}

// classifyPostgres maps SQLSTATE codes onto sentinel errors.
func classifyPostgres(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505": // unique_violation
		return fmt.Errorf("%w: %w", sentinel.ErrConflict, err)
	case "23514": // check_violation
		return fmt.Errorf("%w: %w", sentinel.ErrInvalidState, err)
	case "55P03", // lock_not_available
		"40P01", // deadlock_detected
		"40001", // serialization_failure
		"57014": // query_canceled
		return fmt.Errorf("%w: %w", sentinel.ErrLockTimeout, err)
	}
	return err
}
