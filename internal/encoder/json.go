package encoder

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jittakal/kafeventrouter/pkg/encoder"
	"github.com/jittakal/kafeventrouter/pkg/event"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*JSONEncoder)(nil)

// JSONEncoder writes newline delimited payloads, one routed record per
// line, the same shape the managed delivery stream produces.
type JSONEncoder struct {
	gzip bool
}

// NewJSONEncoder creates a JSON lines encoder. Only "gzip" compresses.
func NewJSONEncoder(compression string) *JSONEncoder {
	return &JSONEncoder{gzip: IsGzip(compression)}
}

// Encode writes records to a JSON lines file.
func (e *JSONEncoder) Encode(filePath string, records []event.Record) (*event.FileStats, error) {
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
func (e *JSONEncoder) EncodeToBytes(records []event.Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to encode")
	}

	var buf bytes.Buffer
	if err := e.write(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *JSONEncoder) write(dst io.Writer, records []event.Record) error {
	var gz *gzip.Writer
	if e.gzip {
		gz = gzip.NewWriter(dst)
		dst = gz
	}

	w := bufio.NewWriter(dst)
	var compact bytes.Buffer
	for i := range records {
		data := bytes.TrimRight(records[i].Data, "\r\n")
		// Multi-line payloads are compacted so each record stays on one line.
		if bytes.ContainsAny(data, "\r\n") {
			compact.Reset()
			if err := json.Compact(&compact, data); err != nil {
				return fmt.Errorf("record %s spans multiple lines: %w", records[i].RecordID, err)
			}
			data = compact.Bytes()
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush records: %w", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to close gzip writer: %w", err)
		}
	}
	return nil
}

// Format returns the file format.
func (e *JSONEncoder) Format() event.FileFormat {
	return event.FormatJSON
}

// FileExtension returns the file extension.
func (e *JSONEncoder) FileExtension() string {
	if e.gzip {
		return ".jsonl.gz"
	}
	return ".jsonl"
}
