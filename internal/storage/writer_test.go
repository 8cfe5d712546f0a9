package storage

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jittakal/kafeventrouter/pkg/event"
)

type fakeMetrics struct {
	mu        sync.Mutex
	written   map[string]int
	sizes     []float64
	durations int
	errors    map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{written: map[string]int{}, errors: map[string]int{}}
}

func (m *fakeMetrics) IncFilesWritten(backend string, format string, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written[backend+"/"+format+"/"+status]++
}

func (m *fakeMetrics) ObserveFileSize(_ string, _ string, size float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sizes = append(m.sizes, size)
}

func (m *fakeMetrics) ObserveStorageWriteDuration(string, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations++
}

func (m *fakeMetrics) IncStorageErrors(backend string, operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[backend+"/"+operation]++
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRecords() []event.Record {
	created := time.Unix(1700000000, 0).UTC()
	return []event.Record{
		{
			RecordID: "r-1",
			Prefix:   "purchase/completed/2023/11/14/",
			Data:     []byte(`{"event_uuid":"u1","event_name":"purchase:completed","created_at":1700000000}`),
			Event: &event.Event{
				UUID:            "u1",
				Name:            "purchase:completed",
				Type:            "purchase",
				Subtype:         "completed",
				CreatedAt:       "1700000000",
				CreatedDateTime: created,
			},
			ProcessedAt: created,
		},
		{
			RecordID: "r-2",
			Prefix:   "purchase/completed/2023/11/14/",
			Data:     []byte(`{"event_uuid":"u2","event_name":"purchase:completed","created_at":1700000001}`),
			Event: &event.Event{
				UUID:            "u2",
				Name:            "purchase:completed",
				Type:            "purchase",
				Subtype:         "completed",
				CreatedAt:       "1700000001",
				CreatedDateTime: created.Add(time.Second),
			},
			ProcessedAt: created,
		},
	}
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		scheme string
		want   string
	}{
		{"s3 uri", "s3://bucket/base/a/b/2024/3/5/", "s3", "base/a/b/2024/3/5/"},
		{"bucket only", "s3://bucket", "s3", ""},
		{"plain key", "/a/b/", "s3", "a/b/"},
		{"other scheme untouched", "gs://bucket/a/", "s3", "gs://bucket/a/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := objectKey(tt.path, tt.scheme); got != tt.want {
				t.Errorf("objectKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProtocol(t *testing.T) {
	tests := map[string]string{
		BackendS3:    "s3",
		BackendAzure: "wasbs",
		BackendGCS:   "gs",
		BackendFile:  "file",
		"unknown":    "file",
	}
	for backend, want := range tests {
		if got := Protocol(backend); got != want {
			t.Errorf("Protocol(%s) = %s, want %s", backend, got, want)
		}
	}
}

func TestFileNamer_Sequence(t *testing.T) {
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	namer := newFileNamer()
	namer.now = func() time.Time { return now }

	if got := namer.next(".jsonl"); got != "events_20240305_100000_001.jsonl" {
		t.Errorf("first name = %s", got)
	}
	if got := namer.next(".jsonl"); got != "events_20240305_100000_002.jsonl" {
		t.Errorf("second name = %s", got)
	}

	now = now.Add(time.Second)
	if got := namer.next(".parquet"); got != "events_20240305_100001_001.parquet" {
		t.Errorf("name after next second = %s", got)
	}
}

func TestContentType(t *testing.T) {
	tests := []struct {
		format      event.FileFormat
		compression string
		want        string
	}{
		{event.FormatJSON, "", "application/x-ndjson"},
		{event.FormatJSON, "gzip", "application/gzip"},
		{event.FormatAvro, "gzip", "application/avro"},
		{event.FormatParquet, "snappy", "application/octet-stream"},
	}

	for _, tt := range tests {
		if got := contentType(tt.format, tt.compression); got != tt.want {
			t.Errorf("contentType(%s, %s) = %s, want %s", tt.format, tt.compression, got, tt.want)
		}
	}
}
