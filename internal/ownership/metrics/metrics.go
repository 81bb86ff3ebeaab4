package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// Metrics provides observability for the ownership ledger.
// Every method is safe on a nil receiver so tests and CLI paths can skip registration.
type Metrics struct {
	RecordsCreated    prometheus.Counter
	RecordsExpired    prometheus.Counter
	TransfersTotal    *prometheus.CounterVec
	ExecuteDuration   prometheus.Histogram
	ConcurrencyAborts prometheus.Counter
	ConflictsTotal    *prometheus.CounterVec
	DetectionFailures prometheus.Counter
	DetectionDuration prometheus.Histogram
	DetectionQueued   prometheus.Gauge
	CacheLookups      *prometheus.CounterVec
}

// New creates a Metrics instance registered on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the ledger collectors on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecordsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "rightsledger_records_created_total",
			Help: "Total number of ownership records created",
		}),
		RecordsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "rightsledger_records_expired_total",
			Help: "Total number of ownership records moved to EXPIRED by the sweeper",
		}),
		TransfersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rightsledger_transfers_total",
			Help: "Transfer commands by operation and outcome",
		}, []string{"operation", "outcome"}),
		ExecuteDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rightsledger_transfer_execute_duration_seconds",
			Help:    "Duration of ExecuteTransfer transactions",
			Buckets: latencyBuckets,
		}),
		ConcurrencyAborts: factory.NewCounter(prometheus.CounterOpts{
			Name: "rightsledger_concurrency_aborts_total",
			Help: "Transactions aborted on lock wait or deadline",
		}),
		ConflictsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rightsledger_conflicts_total",
			Help: "Conflicts written by the detector, by type and action (created, updated)",
		}, []string{"type", "action"}),
		DetectionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "rightsledger_detection_failures_total",
			Help: "Conflict detection runs that failed",
		}),
		DetectionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rightsledger_detection_duration_seconds",
			Help:    "Duration of one subject detection run",
			Buckets: latencyBuckets,
		}),
		DetectionQueued: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rightsledger_detection_queue_depth",
			Help: "Subjects waiting in the async detection queue",
		}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rightsledger_ownership_cache_lookups_total",
			Help: "QueryOwnership cache lookups by result (hit, miss)",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncRecordsCreated() {
	if m == nil {
		return
	}
	m.RecordsCreated.Inc()
}

func (m *Metrics) AddRecordsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsExpired.Add(float64(n))
}

// ObserveTransfer counts a transfer command. outcome is "ok" or an error code.
func (m *Metrics) ObserveTransfer(operation, outcome string) {
	if m == nil {
		return
	}
	m.TransfersTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveExecute records the duration of an ExecuteTransfer call started at start.
func (m *Metrics) ObserveExecute(start time.Time) {
	if m == nil {
		return
	}
	m.ExecuteDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncConcurrencyAbort() {
	if m == nil {
		return
	}
	m.ConcurrencyAborts.Inc()
}

func (m *Metrics) IncConflict(conflictType, action string) {
	if m == nil {
		return
	}
	m.ConflictsTotal.WithLabelValues(conflictType, action).Inc()
}

func (m *Metrics) IncDetectionFailure() {
	if m == nil {
		return
	}
	m.DetectionFailures.Inc()
}

func (m *Metrics) ObserveDetection(start time.Time) {
	if m == nil {
		return
	}
	m.DetectionDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.DetectionQueued.Set(float64(n))
}

func (m *Metrics) IncCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
