package encoder

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jittakal/kafeventrouter/pkg/event"
)

// testRecords returns one routed record and one error partition record.
func testRecords() []event.Record {
	processed := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	return []event.Record{
		{
			RecordID: "r-1",
			Prefix:   "purchase/completed/2023/11/14/",
			Data:     []byte(`{"event_uuid":"u1","event_name":"purchase:completed","created_at":1700000000,"event_type":"purchase","event_subtype":"completed"}`),
			Event: &event.Event{
				UUID:            "u1",
				Name:            "purchase:completed",
				Type:            "purchase",
				Subtype:         "completed",
				CreatedAt:       "1700000000",
				CreatedDateTime: time.Unix(1700000000, 0).UTC(),
			},
			Source: event.SourceMetadata{
				Topic:     "raw-events",
				Partition: 2,
				Offset:    42,
			},
			ProcessedAt: processed,
		},
		{
			RecordID: "r-2",
			Prefix:   "error/2024/3/5/",
			Data:     []byte(`{"event_uuid":"u2","event_name":"","created_at":1709600000}`),
			Event: &event.Event{
				UUID:            "u2",
				CreatedAt:       "1709600000",
				CreatedDateTime: time.Unix(1709600000, 0).UTC(),
			},
			ProcessedAt: processed,
		},
	}
}

func TestNewFactory(t *testing.T) {
	factory := NewFactory(event.FormatParquet, "snappy")
	if factory.format != event.FormatParquet {
		t.Errorf("format = %v, want %v", factory.format, event.FormatParquet)
	}
	if factory.compression != "snappy" {
		t.Errorf("compression = %v, want snappy", factory.compression)
	}
}

func TestFactory_CreateEncoder(t *testing.T) {
	tests := []struct {
		name        string
		format      event.FileFormat
		compression string
		wantExt     string
		wantErr     bool
	}{
		{"json", event.FormatJSON, "", ".jsonl", false},
		{"json gzip", event.FormatJSON, "gzip", ".jsonl.gz", false},
		{"parquet", event.FormatParquet, "snappy", ".parquet", false},
		{"avro", event.FormatAvro, "uncompressed", ".avro", false},
		{"avro gzip", event.FormatAvro, "GZIP", ".avro.gz", false},
		{"unsupported format", event.FileFormat("csv"), "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewFactory(tt.format, tt.compression).CreateEncoder()
			if (err != nil) != tt.wantErr {
				t.Fatalf("CreateEncoder() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if enc.Format() != tt.format {
				t.Errorf("Format() = %v, want %v", enc.Format(), tt.format)
			}
			if enc.FileExtension() != tt.wantExt {
				t.Errorf("FileExtension() = %v, want %v", enc.FileExtension(), tt.wantExt)
			}
		})
	}
}

func TestSupportedFormats(t *testing.T) {
	formats := SupportedFormats()
	if len(formats) != 3 {
		t.Fatalf("SupportedFormats() = %v, want 3 formats", formats)
	}
	for _, f := range formats {
		if _, err := NewFactory(f, DefaultCompression(f)).CreateEncoder(); err != nil {
			t.Errorf("format %s is listed but cannot be created: %v", f, err)
		}
	}
}

func TestSupportedCompressions(t *testing.T) {
	tests := []struct {
		format event.FileFormat
		want   int
	}{
		{event.FormatJSON, 2},
		{event.FormatParquet, 5},
		{event.FormatAvro, 2},
		{event.FileFormat("csv"), 0},
	}

	for _, tt := range tests {
		if got := SupportedCompressions(tt.format); len(got) != tt.want {
			t.Errorf("SupportedCompressions(%s) = %v, want %d entries", tt.format, got, tt.want)
		}
	}
}

func TestDefaultCompression(t *testing.T) {
	tests := []struct {
		format event.FileFormat
		want   string
	}{
		{event.FormatJSON, "uncompressed"},
		{event.FormatParquet, "snappy"},
		{event.FormatAvro, "gzip"},
	}

	for _, tt := range tests {
		if got := DefaultCompression(tt.format); got != tt.want {
			t.Errorf("DefaultCompression(%s) = %v, want %v", tt.format, got, tt.want)
		}
	}
}

func TestJSONEncoder_Encode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	records := testRecords()

	stats, err := NewJSONEncoder("").Encode(path, records)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if stats.RecordCount != 2 {
		t.Errorf("RecordCount = %d, want 2", stats.RecordCount)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if stats.SizeBytes != int64(len(data)) {
		t.Errorf("SizeBytes = %d, file has %d bytes", stats.SizeBytes, len(data))
	}

	want := string(records[0].Data) + "\n" + string(records[1].Data) + "\n"
	if string(data) != want {
		t.Errorf("file content = %q, want %q", data, want)
	}
}

func TestJSONEncoder_CompactsMultiLinePayloads(t *testing.T) {
	records := []event.Record{
		{RecordID: "r-1", Data: []byte("{\n  \"event_uuid\": \"u1\",\n  \"event_name\": \"\"\n}\n")},
	}

	data, err := NewJSONEncoder("").EncodeToBytes(records)
	if err != nil {
		t.Fatalf("EncodeToBytes() error = %v", err)
	}
	if got, want := string(data), `{"event_uuid":"u1","event_name":""}`+"\n"; got != want {
		t.Errorf("EncodeToBytes() = %q, want %q", got, want)
	}

	bad := []event.Record{{RecordID: "r-2", Data: []byte("not\njson")}}
	if _, err := NewJSONEncoder("").EncodeToBytes(bad); err == nil {
		t.Error("expected error for multi-line payload that is not JSON")
	}
}

func TestJSONEncoder_Gzip(t *testing.T) {
	records := testRecords()

	data, err := NewJSONEncoder("gzip").EncodeToBytes(records)
	if err != nil {
		t.Fatalf("EncodeToBytes() error = %v", err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("gzip.NewReader() error = %v", err)
	}
	plain, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(string(plain), "\n"), "\n")
	if len(lines) != len(records) {
		t.Fatalf("got %d lines, want %d", len(lines), len(records))
	}
	if lines[1] != string(records[1].Data) {
		t.Errorf("line 2 = %q, want %q", lines[1], records[1].Data)
	}
}

func TestEncoders_EmptyRecords(t *testing.T) {
	dir := t.TempDir()
	for _, f := range SupportedFormats() {
		enc, err := NewFactory(f, DefaultCompression(f)).CreateEncoder()
		if err != nil {
			t.Fatalf("CreateEncoder(%s) error = %v", f, err)
		}
		if _, err := enc.Encode(filepath.Join(dir, "empty"+enc.FileExtension()), nil); err == nil {
			t.Errorf("%s: expected error for empty records", f)
		}
	}
}

func TestNewEventRow(t *testing.T) {
	records := testRecords()

	row := NewEventRow(records[0])
	if row.EventType != "purchase" || row.EventSubtype != "completed" {
		t.Errorf("type/subtype = %s/%s", row.EventType, row.EventSubtype)
	}
	if row.CreatedAt != "1700000000" {
		t.Errorf("CreatedAt = %v", row.CreatedAt)
	}
	if row.CreatedDateTime == nil || !row.CreatedDateTime.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("CreatedDateTime = %v", row.CreatedDateTime)
	}
	if row.SourceTopic == nil || *row.SourceTopic != "raw-events" || *row.SourceOffset != 42 {
		t.Errorf("source columns not populated: %+v", row)
	}
	if row.Payload != string(records[0].Data) {
		t.Errorf("Payload = %v", row.Payload)
	}

	bare := NewEventRow(event.Record{RecordID: "r-3", Data: []byte(`{}`)})
	if bare.CreatedDateTime != nil || bare.SourceTopic != nil {
		t.Errorf("expected NULL optional columns, got %+v", bare)
	}
}

func BenchmarkParquetEncoder_Encode(b *testing.B) {
	benchmarkEncoder(b, NewParquetEncoder("snappy"))
}

func BenchmarkJSONEncoder_Encode(b *testing.B) {
	benchmarkEncoder(b, NewJSONEncoder(""))
}

func benchmarkEncoder(b *testing.B, enc interface {
	Encode(string, []event.Record) (*event.FileStats, error)
}) {
	base := testRecords()
	records := make([]event.Record, 0, 100)
	for len(records) < 100 {
		records = append(records, base...)
	}
	path := filepath.Join(b.TempDir(), "bench")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := enc.Encode(path, records); err != nil {
			b.Fatal(err)
		}
	}
}
