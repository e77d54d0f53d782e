// Package metrics exposes the forwarder counters over Prometheus and keeps a
// plain snapshot for the shutdown report.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	NAMESPACE = "acctforward"
)

var (
	MetricRecordsForwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:      "records_forwarded_count",
			Help:      "Accounting records forwarded to the analytic store.",
			Namespace: NAMESPACE,
		},
	)
	MetricBatchesForwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:      "batches_forwarded_count",
			Help:      "Batches forwarded to the analytic store.",
			Namespace: NAMESPACE,
		},
	)
	MetricForwardErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:      "forward_errors_count",
			Help:      "Forward cycles aborted by an error.",
			Namespace: NAMESPACE,
		},
	)
	MetricBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:      "batch_size_records",
			Help:      "Size of forwarded batches.",
			Namespace: NAMESPACE,
			Buckets:   prometheus.ExponentialBuckets(1, 4, 6),
		},
	)
	MetricLastForward = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:      "last_forward_timestamp_seconds",
			Help:      "Unix time of the last successful forward.",
			Namespace: NAMESPACE,
		},
	)
)

func init() {
	prometheus.MustRegister(
		MetricRecordsForwarded,
		MetricBatchesForwarded,
		MetricForwardErrors,
		MetricBatchSize,
		MetricLastForward,
	)
}

// Snapshot is the final report logged at shutdown.
type Snapshot struct {
	TotalForwarded  uint64
	TotalBatches    uint64
	TotalErrors     uint64
	StartedAt       time.Time
	LastForwardTime time.Time
}

// Recorder accumulates forwarding counters. The orchestration loop is the
// only mutator, so no locking is needed.
type Recorder struct {
	startedAt       time.Time
	totalForwarded  uint64
	totalBatches    uint64
	totalErrors     uint64
	lastForwardTime time.Time
}

func NewRecorder(startedAt time.Time) *Recorder {
	return &Recorder{startedAt: startedAt}
}

// Batch records one successfully forwarded batch.
func (r *Recorder) Batch(count int, at time.Time) {
	r.totalForwarded += uint64(count)
	r.totalBatches++
	r.lastForwardTime = at

	MetricRecordsForwarded.Add(float64(count))
	MetricBatchesForwarded.Inc()
	MetricBatchSize.Observe(float64(count))
	MetricLastForward.Set(float64(at.Unix()))
}

// Error records one aborted forward cycle.
func (r *Recorder) Error() {
	r.totalErrors++
	MetricForwardErrors.Inc()
}

func (r *Recorder) Snapshot() Snapshot {
	return Snapshot{
		TotalForwarded:  r.totalForwarded,
		TotalBatches:    r.totalBatches,
		TotalErrors:     r.totalErrors,
		StartedAt:       r.startedAt,
		LastForwardTime: r.lastForwardTime,
	}
}
