package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Router metrics
	RouterRecords       *prometheus.CounterVec
	RouterBatchDuration prometheus.Histogram
	RouterBatchSize     prometheus.Histogram
	RouterBatchFailures prometheus.Counter

	// Dedup store metrics
	DedupStoreDuration *prometheus.HistogramVec
	DedupStoreErrors   *prometheus.CounterVec

	// Consumer metrics
	MessagesConsumed   *prometheus.CounterVec
	OffsetCommits      *prometheus.CounterVec
	Rebalances         *prometheus.CounterVec
	RebalanceDuration  *prometheus.HistogramVec
	PartitionsAssigned *prometheus.GaugeVec
	CommitLatency      *prometheus.HistogramVec
	DLQMessages        *prometheus.CounterVec

	// Buffer metrics
	BufferedRecords prometheus.Gauge
	BufferedBytes   prometheus.Gauge

	// Storage metrics
	FilesWritten         *prometheus.CounterVec
	StorageWriteDuration *prometheus.HistogramVec
	FileSize             *prometheus.HistogramVec
	StorageErrors        *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		// Router metrics
		RouterRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_records_total",
				Help: "Total number of records routed, by outcome",
			},
			[]string{"outcome"},
		),
		RouterBatchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "router_batch_duration_seconds",
				Help:    "Duration of routing one batch",
				Buckets: prometheus.DefBuckets,
			},
		),
		RouterBatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "router_batch_size",
				Help:    "Number of input records per routed batch",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1 to 2048
			},
		),
		RouterBatchFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "router_batch_failures_total",
				Help: "Total number of batches aborted by a dedup store failure",
			},
		),

		// Dedup store metrics
		DedupStoreDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dedup_store_duration_seconds",
				Help:    "Latency of dedup store calls",
				Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"backend", "operation"},
		),
		DedupStoreErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dedup_store_errors_total",
				Help: "Total number of failed dedup store calls",
			},
			[]string{"backend", "operation"},
		),

		// Consumer metrics
		MessagesConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_messages_consumed_total",
				Help: "Total number of messages consumed from Kafka",
			},
			[]string{"topic", "partition"},
		),
		OffsetCommits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_offset_commit_total",
				Help: "Total number of offset commits",
			},
			[]string{"topic", "partition", "status"},
		),
		Rebalances: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_rebalance_total",
				Help: "Total number of consumer group rebalances",
			},
			[]string{"group"},
		),
		RebalanceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kafka_rebalance_duration_seconds",
				Help:    "Duration of consumer group rebalances",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"group"},
		),
		PartitionsAssigned: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kafka_partitions_assigned",
				Help: "Number of partitions currently assigned to this consumer",
			},
			[]string{"topic"},
		),
		CommitLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kafka_commit_latency_seconds",
				Help:    "Latency of offset commit operations",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"topic", "partition"},
		),
		DLQMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_dlq_messages_total",
				Help: "Total number of messages published to the dead letter queue",
			},
			[]string{"reason", "status"},
		),

		// Buffer metrics
		BufferedRecords: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "buffer_record_count",
				Help: "Current number of routed records waiting to be flushed",
			},
		),
		BufferedBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "buffer_size_bytes",
				Help: "Current size of routed records waiting to be flushed",
			},
		),

		// Storage metrics
		FilesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "files_written_total",
				Help: "Total number of files written to storage",
			},
			[]string{"backend", "format", "status"},
		),
		StorageWriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storage_write_duration_seconds",
				Help:    "Duration of complete storage write operations including encoding",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		FileSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "file_size_bytes",
				Help:    "Size of files written to storage",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to 256MB
			},
			[]string{"backend", "format"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"backend", "error_type"},
		),
	}
}

// IncRouterRecords increments the routed records counter.
func (m *Metrics) IncRouterRecords(outcome string) {
	m.RouterRecords.WithLabelValues(outcome).Inc()
}

// ObserveRouterBatch observes the size and duration of a routed batch.
func (m *Metrics) ObserveRouterBatch(size int, duration float64) {
	m.RouterBatchSize.Observe(float64(size))
	m.RouterBatchDuration.Observe(duration)
}

// IncRouterBatchFailures increments the aborted batches counter.
func (m *Metrics) IncRouterBatchFailures() {
	m.RouterBatchFailures.Inc()
}

// ObserveStoreDuration observes dedup store call latency.
func (m *Metrics) ObserveStoreDuration(backend string, operation string, duration float64) {
	m.DedupStoreDuration.WithLabelValues(backend, operation).Observe(duration)
}

// IncStoreErrors increments dedup store errors counter.
func (m *Metrics) IncStoreErrors(backend string, operation string) {
	m.DedupStoreErrors.WithLabelValues(backend, operation).Inc()
}

// IncMessagesConsumed increments messages consumed counter.
func (m *Metrics) IncMessagesConsumed(topic string, partition int32) {
	m.MessagesConsumed.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Inc()
}

// IncRebalances increments rebalances counter.
func (m *Metrics) IncRebalances(groupID string) {
	m.Rebalances.WithLabelValues(groupID).Inc()
}

// IncOffsetCommits increments offset commits counter.
func (m *Metrics) IncOffsetCommits(topic string, partition int32, status string) {
	m.OffsetCommits.WithLabelValues(topic, fmt.Sprintf("%d", partition), status).Inc()
}

// ObserveRebalanceDuration observes rebalance duration.
func (m *Metrics) ObserveRebalanceDuration(groupID string, duration float64) {
	m.RebalanceDuration.WithLabelValues(groupID).Observe(duration)
}

// ObserveCommitLatency observes commit latency.
func (m *Metrics) ObserveCommitLatency(topic string, partition int32, duration float64) {
	m.CommitLatency.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Observe(duration)
}

// SetPartitionsAssigned sets partitions assigned gauge.
func (m *Metrics) SetPartitionsAssigned(topic string, count float64) {
	m.PartitionsAssigned.WithLabelValues(topic).Set(count)
}

// IncDLQMessages increments the DLQ counter.
func (m *Metrics) IncDLQMessages(reason string, status string) {
	m.DLQMessages.WithLabelValues(reason, status).Inc()
}

// SetBuffered sets the buffered records and bytes gauges.
func (m *Metrics) SetBuffered(records int, bytes int64) {
	m.BufferedRecords.Set(float64(records))
	m.BufferedBytes.Set(float64(bytes))
}

// IncFilesWritten increments files written counter.
func (m *Metrics) IncFilesWritten(backend string, format string, status string) {
	m.FilesWritten.WithLabelValues(backend, format, status).Inc()
}

// ObserveFileSize observes file size.
func (m *Metrics) ObserveFileSize(backend string, format string, size float64) {
	m.FileSize.WithLabelValues(backend, format).Observe(size)
}

// ObserveStorageWriteDuration observes storage write duration.
func (m *Metrics) ObserveStorageWriteDuration(backend string, duration float64) {
	m.StorageWriteDuration.WithLabelValues(backend).Observe(duration)
}

// IncStorageErrors increments storage errors counter.
func (m *Metrics) IncStorageErrors(backend string, operation string) {
	m.StorageErrors.WithLabelValues(backend, operation).Inc()
}
