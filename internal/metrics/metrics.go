// Package metrics registers DURAFLOW's Prometheus collectors against a
// caller-supplied Registerer, following the reference observability
// package's promauto/prometheus.Registerer construction style.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/duraflow/duraflow/pkg/block"
	"github.com/duraflow/duraflow/pkg/ingest"
	"github.com/duraflow/duraflow/pkg/storeblock"
)

// Metrics holds every collector DURAFLOW exposes. All fields are safe for
// concurrent use, same as the underlying prometheus types.
type Metrics struct {
	WALRecordsWrittenTotal prometheus.Counter
	WALWriteSeconds        prometheus.Histogram

	BlockRecordsAppendedTotal prometheus.Counter
	BlockCutsTotal            prometheus.Counter
	BlockQueueDepth           prometheus.Gauge
	BlockPushSeconds          prometheus.Histogram

	IngestBatchesTotal     *prometheus.CounterVec
	IngestAcksTotal        prometheus.Counter
	IngestNacksTotal       prometheus.Counter
	IngestConnectionsInUse prometheus.Gauge
}

// New registers every collector against registerer and returns the handle.
// Pass prometheus.DefaultRegisterer for process-global metrics, or a fresh
// *prometheus.Registry in tests to avoid duplicate-registration panics
// across test runs.
func New(registerer prometheus.Registerer) *Metrics {
	return &Metrics{
		WALRecordsWrittenTotal: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "duraflow_wal_records_written_total",
			Help: "Total number of records appended to the write-ahead log.",
		}),
		WALWriteSeconds: promauto.With(registerer).NewHistogram(prometheus.HistogramOpts{
			Name:    "duraflow_wal_write_seconds",
			Help:    "Latency of one durable WAL write, in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		BlockRecordsAppendedTotal: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "duraflow_block_records_appended_total",
			Help: "Total number of records appended to the current block buffer.",
		}),
		BlockCutsTotal: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "duraflow_block_cuts_total",
			Help: "Total number of cut intervals that produced a non-empty block.",
		}),
		BlockQueueDepth: promauto.With(registerer).NewGauge(prometheus.GaugeOpts{
			Name: "duraflow_block_queue_depth",
			Help: "Current depth of the bounded block-push queue.",
		}),
		BlockPushSeconds: promauto.With(registerer).NewHistogram(prometheus.HistogramOpts{
			Name:    "duraflow_block_push_seconds",
			Help:    "Latency of one listener.OnPushBlock call, in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		IngestBatchesTotal: promauto.With(registerer).NewCounterVec(prometheus.CounterOpts{
			Name: "duraflow_ingest_batches_total",
			Help: "Total number of batches polled from remote sources, by outcome.",
		}, []string{"outcome"}),
		IngestAcksTotal: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "duraflow_ingest_acks_total",
			Help: "Total number of batches successfully stored and acked.",
		}),
		IngestNacksTotal: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "duraflow_ingest_nacks_total",
			Help: "Total number of batches nacked after a failed store.",
		}),
		IngestConnectionsInUse: promauto.With(registerer).NewGauge(prometheus.GaugeOpts{
			Name: "duraflow_ingest_connections_in_use",
			Help: "Number of pooled source connections currently checked out.",
		}),
	}
}

// ObserveBatch implements ingest.Metrics.
func (m *Metrics) ObserveBatch(outcome ingest.OutcomeKind) {
	m.IngestBatchesTotal.WithLabelValues(outcome.String()).Inc()
}

// IncAck implements ingest.Metrics.
func (m *Metrics) IncAck() { m.IngestAcksTotal.Inc() }

// IncNack implements ingest.Metrics.
func (m *Metrics) IncNack() { m.IngestNacksTotal.Inc() }

// SetConnectionsInUse implements ingest.Metrics.
func (m *Metrics) SetConnectionsInUse(n int) { m.IngestConnectionsInUse.Set(float64(n)) }

// IncRecordsWritten implements storeblock.Metrics.
func (m *Metrics) IncRecordsWritten(n int) { m.WALRecordsWrittenTotal.Add(float64(n)) }

// ObserveWriteDuration implements storeblock.Metrics.
func (m *Metrics) ObserveWriteDuration(d time.Duration) { m.WALWriteSeconds.Observe(d.Seconds()) }

// IncAppended implements block.Metrics.
func (m *Metrics) IncAppended() { m.BlockRecordsAppendedTotal.Inc() }

// IncCut implements block.Metrics.
func (m *Metrics) IncCut() { m.BlockCutsTotal.Inc() }

// SetQueueDepth implements block.Metrics.
func (m *Metrics) SetQueueDepth(n int) { m.BlockQueueDepth.Set(float64(n)) }

// ObservePush implements block.Metrics.
func (m *Metrics) ObservePush(d time.Duration) { m.BlockPushSeconds.Observe(d.Seconds()) }

var (
	_ ingest.Metrics     = (*Metrics)(nil)
	_ storeblock.Metrics = (*Metrics)(nil)
	_ block.Metrics      = (*Metrics)(nil)
)
