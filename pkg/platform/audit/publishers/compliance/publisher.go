// Package compliance provides a fail-closed audit publisher for ledger events.
//
// Events are appended to the transactional outbox through the same store handle
// as the mutation they describe. If the append fails, Emit returns an error and
// the surrounding transaction MUST roll back: a committed ledger change without
// its event would be invisible to downstream royalty consumers.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	audit "rightsledger/pkg/platform/audit"
	"rightsledger/pkg/requestcontext"
)

// Appender is the tx-scoped outbox write.
type Appender interface {
	AppendEvent(ctx context.Context, event audit.Event) error
}

// Publisher emits compliance events with fail-closed semantics.
type Publisher struct {
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// New creates a compliance publisher.
func New(opts ...Option) *Publisher {
	p := &Publisher{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit enriches the event from the request context and appends it through sink.
// Returns error if persistence fails - the caller MUST fail its transaction.
func (p *Publisher) Emit(ctx context.Context, sink Appender, event audit.Event) error {
	start := time.Now()

	if event.ActorID == "" {
		event.ActorID = requestcontext.UserID(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.Category == "" {
		event.Category = event.Action.Category()
	}
	if err := event.Validate(); err != nil {
		return err
	}

	if err := sink.AppendEvent(ctx, event); err != nil {
		p.metrics.IncPersistFailures()
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "CRITICAL: ledger audit append failed",
				"action", event.Action,
				"aggregate_id", event.AggregateID,
				"error", err,
			)
		}
		return fmt.Errorf("ledger audit persistence failed: %w", err)
	}

	p.metrics.ObservePersistDuration(time.Since(start).Seconds())
	p.metrics.IncEventsEmitted(string(event.Action))
	return nil
}
