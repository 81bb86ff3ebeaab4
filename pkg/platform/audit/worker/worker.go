package worker

import (
	"context"
	"log/slog"
	"time"

	audit "rightsledger/pkg/platform/audit"
)

// Source reads unpublished outbox rows and marks them delivered.
type Source interface {
	PendingEvents(ctx context.Context, limit int) ([]audit.Event, error)
	MarkPublished(ctx context.Context, ids []string, at time.Time) error
}

// Sink delivers a batch of events downstream.
type Sink interface {
	Publish(ctx context.Context, events []audit.Event) error
}

const (
	defaultInterval  = time.Second
	defaultBatchSize = 100
)

// Worker relays outbox events to a sink on a fixed interval. Delivery is
// at-least-once: a crash between Publish and MarkPublished republishes the
// batch, and consumers de-duplicate on event ID.
type Worker struct {
	source    Source
	sink      Sink
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

type Option func(*Worker)

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func NewWorker(source Source, sink Sink, opts ...Option) *Worker {
	w := &Worker{
		source:    source,
		sink:      sink,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run relays until ctx is cancelled. Batch failures are logged and retried on
// the next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for {
				n, err := w.RelayOnce(ctx)
				if err != nil {
					w.logger.WarnContext(ctx, "outbox relay failed", "error", err)
					break
				}
				if n < w.batchSize {
					break
				}
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many events it delivered.
func (w *Worker) RelayOnce(ctx context.Context) (int, error) {
	events, err := w.source.PendingEvents(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}
	if err := w.sink.Publish(ctx, events); err != nil {
		return 0, err
	}
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	if err := w.source.MarkPublished(ctx, ids, time.Now().UTC()); err != nil {
		return 0, err
	}
	return len(events), nil
}
