package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gatherFamily(t *testing.T, registry *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	if metrics == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestMetrics_IncRouterRecords(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.IncRouterRecords("routed")
	metrics.IncRouterRecords("routed")
	metrics.IncRouterRecords("duplicate")

	mf := gatherFamily(t, registry, "router_records_total")
	if mf == nil {
		t.Fatal("router_records_total not registered")
	}

	counts := map[string]float64{}
	for _, m := range mf.GetMetric() {
		counts[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	if counts["routed"] != 2 || counts["duplicate"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestMetrics_ObserveRouterBatch(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.ObserveRouterBatch(500, 0.2)
	metrics.ObserveRouterBatch(1, 0.001)
	metrics.IncRouterBatchFailures()

	mf := gatherFamily(t, registry, "router_batch_size")
	if mf == nil {
		t.Fatal("router_batch_size not registered")
	}
	if got := mf.GetMetric()[0].GetHistogram().GetSampleCount(); got != 2 {
		t.Errorf("sample count = %d, want 2", got)
	}
	if gatherFamily(t, registry, "router_batch_failures_total") == nil {
		t.Error("router_batch_failures_total not registered")
	}
}

func TestMetrics_DedupStore(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.ObserveStoreDuration("dynamodb", "put_if_absent", 0.004)
	metrics.IncStoreErrors("dynamodb", "put_if_absent")
	metrics.IncStoreErrors("redis", "exists")

	mf := gatherFamily(t, registry, "dedup_store_errors_total")
	if mf == nil {
		t.Fatal("dedup_store_errors_total not registered")
	}
	if len(mf.GetMetric()) != 2 {
		t.Errorf("series = %d, want 2", len(mf.GetMetric()))
	}
	if gatherFamily(t, registry, "dedup_store_duration_seconds") == nil {
		t.Error("dedup_store_duration_seconds not registered")
	}
}

func TestMetrics_IncMessagesConsumed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	// Should not panic
	metrics.IncMessagesConsumed("test-topic", 0)
	metrics.IncMessagesConsumed("test-topic", 1)
	metrics.IncMessagesConsumed("another-topic", 0)
}

func TestMetrics_Storage(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.IncFilesWritten("s3", "parquet", "success")
	metrics.IncFilesWritten("file", "json", "failure")
	metrics.ObserveFileSize("s3", "parquet", 2048.0)
	metrics.ObserveStorageWriteDuration("s3", 0.5)
	metrics.IncStorageErrors("azure", "upload")

	for _, name := range []string{
		"files_written_total",
		"file_size_bytes",
		"storage_write_duration_seconds",
		"storage_errors_total",
	} {
		if gatherFamily(t, registry, name) == nil {
			t.Errorf("%s not registered", name)
		}
	}
}

func TestMetrics_Kafka(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.IncRebalances("consumer-group-1")
	metrics.IncRebalances("consumer-group-1")
	metrics.IncOffsetCommits("test-topic", 0, "success")
	metrics.ObserveRebalanceDuration("consumer-group-1", 2.5)
	metrics.ObserveCommitLatency("test-topic", 0, 0.1)
	metrics.SetPartitionsAssigned("test-topic", 3.0)
	metrics.IncDLQMessages("processing_failed", "success")

	mf := gatherFamily(t, registry, "kafka_rebalance_total")
	if mf == nil {
		t.Fatal("Expected rebalances metric to be registered")
	}
	if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("rebalances = %v, want 2", got)
	}
	if gatherFamily(t, registry, "kafka_dlq_messages_total") == nil {
		t.Error("kafka_dlq_messages_total not registered")
	}
}

func TestMetrics_SetBuffered(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.SetBuffered(12, 4096)

	mf := gatherFamily(t, registry, "buffer_record_count")
	if mf == nil {
		t.Fatal("buffer_record_count not registered")
	}
	if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 12 {
		t.Errorf("buffer_record_count = %v, want 12", got)
	}
}

func TestMetrics_HighVolume(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	// Simulate high volume of metrics
	for i := 0; i < 1000; i++ {
		metrics.IncMessagesConsumed("high-volume-topic", int32(i%10))
		metrics.IncRouterRecords("routed")
	}

	mf := gatherFamily(t, registry, "kafka_messages_consumed_total")
	if mf == nil || len(mf.GetMetric()) != 10 {
		t.Error("expected 10 partition series")
	}
}
