package encoder

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/linkedin/goavro/v2"

	"github.com/jittakal/kafeventrouter/pkg/encoder"
	"github.com/jittakal/kafeventrouter/pkg/event"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*AvroEncoder)(nil)

// AvroEncoder implements encoder.Encoder for Apache Avro OCF files with
// optional gzip compression of the whole container.
type AvroEncoder struct {
	codec *goavro.Codec
	gzip  bool
}

// NewAvroEncoder creates a new Avro encoder with specified compression.
func NewAvroEncoder(compression string) (*AvroEncoder, error) {
	codec, err := goavro.NewCodec(avroSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to create avro codec: %w", err)
	}

	return &AvroEncoder{
		codec: codec,
		gzip:  IsGzip(compression),
	}, nil
}

// avroSchema mirrors EventRow. Timestamps are RFC3339 strings.
const avroSchema = `{
	"type": "record",
	"name": "RoutedEvent",
	"namespace": "com.kafeventrouter",
	"fields": [
		{"name": "event_uuid", "type": "string"},
		{"name": "event_name", "type": "string"},
		{"name": "event_type", "type": "string"},
		{"name": "event_subtype", "type": "string"},
		{"name": "created_at", "type": "string"},
		{"name": "created_datetime", "type": ["null", "string"], "default": null},
		{"name": "prefix", "type": "string"},
		{"name": "record_id", "type": "string"},
		{"name": "payload", "type": "string"},
		{"name": "source_topic", "type": ["null", "string"], "default": null},
		{"name": "source_partition", "type": ["null", "int"], "default": null},
		{"name": "source_offset", "type": ["null", "long"], "default": null},
		{"name": "ingested_at", "type": "string"}
	]
}`

// Encode writes records to an Avro file.
func (e *AvroEncoder) Encode(filePath string, records []event.Record) (*event.FileStats, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to encode")
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := e.write(file, records); err != nil {
		return nil, err
	}

	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	now := time.Now()
	return &event.FileStats{
		RecordCount:    len(records),
		SizeBytes:      fileInfo.Size(),
		FirstWriteTime: now,
		LastWriteTime:  now,
	}, nil
}

// EncodeToBytes encodes records to bytes (useful for testing).
func (e *AvroEncoder) EncodeToBytes(records []event.Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to encode")
	}

	var buf bytes.Buffer
	if err := e.write(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *AvroEncoder) write(dst io.Writer, records []event.Record) error {
	var gz *gzip.Writer
	if e.gzip {
		gz = gzip.NewWriter(dst)
		dst = gz
	}

	ocfWriter, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:     dst,
		Codec: e.codec,
	})
	if err != nil {
		return fmt.Errorf("failed to create OCF writer: %w", err)
	}

	native := make([]any, len(records))
	for i, record := range records {
		native[i] = avroMap(NewEventRow(record))
	}
	if err := ocfWriter.Append(native); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to close gzip writer: %w", err)
		}
	}
	return nil
}

// avroMap converts a row to goavro's native form. Nullable fields use
// goavro.Union.
func avroMap(row EventRow) map[string]any {
	m := map[string]any{
		"event_uuid":       row.EventUUID,
		"event_name":       row.EventName,
		"event_type":       row.EventType,
		"event_subtype":    row.EventSubtype,
		"created_at":       row.CreatedAt,
		"created_datetime": nil,
		"prefix":           row.Prefix,
		"record_id":        row.RecordID,
		"payload":          row.Payload,
		"source_topic":     nil,
		"source_partition": nil,
		"source_offset":    nil,
		"ingested_at":      row.IngestedAt.Format(time.RFC3339Nano),
	}

	if row.CreatedDateTime != nil {
		m["created_datetime"] = goavro.Union("string", row.CreatedDateTime.Format(time.RFC3339))
	}
	if row.SourceTopic != nil {
		m["source_topic"] = goavro.Union("string", *row.SourceTopic)
		m["source_partition"] = goavro.Union("int", *row.SourcePartition)
		m["source_offset"] = goavro.Union("long", *row.SourceOffset)
	}
	return m
}

// Format returns the file format.
func (e *AvroEncoder) Format() event.FileFormat {
	return event.FormatAvro
}

// FileExtension returns the file extension.
func (e *AvroEncoder) FileExtension() string {
	if e.gzip {
		return ".avro.gz"
	}
	return ".avro"
}
