package conflict

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	ledgermetrics "rightsledger/internal/ownership/metrics"
	"rightsledger/internal/ownership/models"
)

const (
	defaultQueueSize    = 1024
	defaultQueueWorkers = 2
)

// subjectTrigger is the detection call a queue worker makes.
type subjectTrigger interface {
	Trigger(ctx context.Context, subject models.Subject, category models.RightsCategory)
}

// Queue runs detection off the request path. A subject already waiting in
// the queue is not enqueued twice; once a worker picks it up, new triggers
// queue it again so later writes are always seen.
type Queue struct {
	target  subjectTrigger
	logger  *slog.Logger
	metrics *ledgermetrics.Metrics
	workers int
	jobs    chan models.SubjectCategory

	mu      sync.Mutex
	pending map[string]struct{}
}

type QueueOption func(*Queue)

func WithQueueLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) {
		q.logger = logger
	}
}

func WithQueueMetrics(m *ledgermetrics.Metrics) QueueOption {
	return func(q *Queue) {
		q.metrics = m
	}
}

func WithWorkers(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithQueueSize bounds the number of waiting subjects. Triggers beyond it
// are dropped and left to the periodic sweep.
func WithQueueSize(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.jobs = make(chan models.SubjectCategory, n)
		}
	}
}

func NewQueue(target subjectTrigger, opts ...QueueOption) *Queue {
	q := &Queue{
		target:  target,
		workers: defaultQueueWorkers,
		jobs:    make(chan models.SubjectCategory, defaultQueueSize),
		pending: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = slog.Default()
	}
	return q
}

// Trigger enqueues subject without blocking.
func (q *Queue) Trigger(ctx context.Context, subject models.Subject, category models.RightsCategory) {
	job := models.SubjectCategory{Subject: subject, RightsCategory: category}
	key := job.Key()

	q.mu.Lock()
	if _, queued := q.pending[key]; queued {
		q.mu.Unlock()
		return
	}
	select {
	case q.jobs <- job:
		q.pending[key] = struct{}{}
	default:
		q.metrics.IncDetectionFailure()
		q.logger.WarnContext(ctx, "detection queue full, dropping trigger",
			"subject", subject.String(),
			"rights_category", category,
		)
	}
	depth := len(q.jobs)
	q.mu.Unlock()
	q.metrics.SetQueueDepth(depth)
}

// Pending reports how many subjects are waiting.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Run starts the workers and blocks until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	q.logger.InfoContext(ctx, "detection queue started", "workers", q.workers)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case job := <-q.jobs:
					q.mu.Lock()
					delete(q.pending, job.Key())
					depth := len(q.jobs)
					q.mu.Unlock()
					q.metrics.SetQueueDepth(depth)
					q.target.Trigger(ctx, job.Subject, job.RightsCategory)
				}
			}
		})
	}
	err := g.Wait()
	q.logger.InfoContext(context.WithoutCancel(ctx), "detection queue stopped")
	return err
}
