package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"rightsledger/internal/ownership/store/migrations"
	"rightsledger/internal/platform/sqldb"
	"rightsledger/pkg/platform/sentinel"
)

// SQLiteStore persists the ledger in a single SQLite file. Every transaction
// begins IMMEDIATE, so writers are serialized by the database lock and
// busy_timeout bounds the wait.
type SQLiteStore struct {
	sqlStore
}

// OpenSQLite opens (or creates) the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string, lockTimeout time.Duration, opts ...SQLOption) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	inMemory := path == ":memory:"
	if !inMemory {
		path = filepath.Clean(path)
	}
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		path, lockTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if inMemory {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqldb.ApplyMigrations(ctx, db, sqldb.SQLite, migrations.FS, "sqlite"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &SQLiteStore{}
	s.sqlStore = sqlStore{
		db:        db,
		dialect:   sqldb.SQLite,
		txTimeout: defaultTxTimeout,
		classify:  classifySQLite,
	}
	s.beginTx = func(ctx context.Context) (*sql.Tx, error) {
		return db.BeginTx(ctx, nil)
	}
	for _, opt := range opts {
		opt(&s.sqlStore)
	}
	return s, nil
}

func classifySQLite(err error) error {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	code := sqliteErr.Code()
	switch {
	case code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
		return fmt.Errorf("%w: %w", sentinel.ErrConflict, err)
	case code&0xff == sqlite3lib.SQLITE_BUSY, code&0xff == sqlite3lib.SQLITE_LOCKED:
		return fmt.Errorf("%w: %w", sentinel.ErrLockTimeout, err)
	}
	return err
}
