package encoder

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/linkedin/goavro/v2"
)

func readOCF(t *testing.T, data []byte) []map[string]any {
	t.Helper()

	reader, err := goavro.NewOCFReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("NewOCFReader() error = %v", err)
	}

	var out []map[string]any
	for reader.Scan() {
		datum, err := reader.Read()
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		out = append(out, datum.(map[string]any))
	}
	if err := reader.Err(); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	return out
}

func TestAvroEncoder_RoundTrip(t *testing.T) {
	enc, err := NewAvroEncoder("uncompressed")
	if err != nil {
		t.Fatalf("NewAvroEncoder() error = %v", err)
	}

	data, err := enc.EncodeToBytes(testRecords())
	if err != nil {
		t.Fatalf("EncodeToBytes() error = %v", err)
	}

	rows := readOCF(t, data)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	if rows[0]["event_type"] != "purchase" || rows[0]["prefix"] != "purchase/completed/2023/11/14/" {
		t.Errorf("row 0 = %v", rows[0])
	}
	created, ok := rows[0]["created_datetime"].(map[string]any)
	if !ok || created["string"] != "2023-11-14T22:13:20Z" {
		t.Errorf("created_datetime = %v", rows[0]["created_datetime"])
	}
	offset, ok := rows[0]["source_offset"].(map[string]any)
	if !ok || offset["long"] != int64(42) {
		t.Errorf("source_offset = %v", rows[0]["source_offset"])
	}
	if rows[1]["source_topic"] != nil {
		t.Errorf("source_topic = %v, want nil", rows[1]["source_topic"])
	}
}

func TestAvroEncoder_Gzip(t *testing.T) {
	enc, err := NewAvroEncoder("gzip")
	if err != nil {
		t.Fatalf("NewAvroEncoder() error = %v", err)
	}
	if enc.FileExtension() != ".avro.gz" {
		t.Errorf("FileExtension() = %v", enc.FileExtension())
	}

	data, err := enc.EncodeToBytes(testRecords())
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

	if rows := readOCF(t, plain); len(rows) != 2 {
		t.Errorf("got %d rows, want 2", len(rows))
	}
}

func TestAvroSchemaMatchesRow(t *testing.T) {
	codec, err := goavro.NewCodec(avroSchema)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	for _, record := range testRecords() {
		if _, err := codec.BinaryFromNative(nil, avroMap(NewEventRow(record))); err != nil {
			t.Errorf("record %s does not match schema: %v", record.RecordID, err)
		}
	}
}
