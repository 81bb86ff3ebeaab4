package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rightsledger/internal/ownership/ports"
	"rightsledger/internal/platform/config"
	audit "rightsledger/pkg/platform/audit"
)

// Ledger is a store a process can run: transactional access, the outbox feed
// for the relay, and lifecycle hooks.
type Ledger interface {
	ports.StoreTx
	PendingEvents(ctx context.Context, limit int) ([]audit.Event, error)
	MarkPublished(ctx context.Context, ids []string, at time.Time) error
	Ping(ctx context.Context) error
	Close() error
}

// Open builds the store selected by cfg.Driver. SQL drivers run migrations
// before returning.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Ledger, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return NewMemory(WithTxTimeout(cfg.TxTimeout)), nil
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath, cfg.LockTimeout,
			WithSQLTxTimeout(cfg.TxTimeout), WithSQLLogger(logger))
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg.DatabaseURL, cfg.MaxOpenConn, cfg.LockTimeout,
			WithSQLTxTimeout(cfg.TxTimeout), WithSQLLogger(logger))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
