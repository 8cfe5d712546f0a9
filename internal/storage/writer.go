package storage

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jittakal/kafeventrouter/internal/encoder"
	"github.com/jittakal/kafeventrouter/pkg/event"
)

// Storage backends, used as metric labels and router protocols.
const (
	BackendFile  = "file"
	BackendS3    = "s3"
	BackendAzure = "azure"
	BackendGCS   = "gcs"
)

// MetricsCollector defines metrics operations for storage.
type MetricsCollector interface {
	IncFilesWritten(backend string, format string, status string)
	ObserveFileSize(backend string, format string, size float64)
	ObserveStorageWriteDuration(backend string, duration float64)
	IncStorageErrors(backend string, operation string)
}

// Protocol returns the URI scheme the router uses for a backend.
func Protocol(backend string) string {
	switch backend {
	case BackendS3:
		return "s3"
	case BackendAzure:
		return "wasbs"
	case BackendGCS:
		return "gs"
	default:
		return "file"
	}
}

// objectKey strips "scheme://bucket/" from a routed path. Paths without a
// scheme are returned without a leading slash.
func objectKey(path, scheme string) string {
	prefix := scheme + "://"
	if !strings.HasPrefix(path, prefix) {
		return strings.TrimPrefix(path, "/")
	}

	parts := strings.SplitN(strings.TrimPrefix(path, prefix), "/", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return ""
}

// fileNamer generates events_YYYYMMDD_HHMMSS_NNN{ext} names. NNN is a
// sequence within the same second so names never collide in one process.
type fileNamer struct {
	mu       sync.Mutex
	lastSec  string
	sequence int
	now      func() time.Time
}

func newFileNamer() *fileNamer {
	return &fileNamer{now: time.Now}
}

func (n *fileNamer) next(ext string) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	ts := n.now().UTC().Format("20060102_150405")
	if ts == n.lastSec {
		n.sequence++
	} else {
		n.lastSec = ts
		n.sequence = 1
	}
	return fmt.Sprintf("events_%s_%03d%s", ts, n.sequence, ext)
}

// writeObserver reports storage metrics for one backend.
type writeObserver struct {
	backend string
	metrics MetricsCollector
}

func (o writeObserver) failed(operation string, format event.FileFormat) {
	if o.metrics == nil {
		return
	}
	o.metrics.IncStorageErrors(o.backend, operation)
	o.metrics.IncFilesWritten(o.backend, string(format), "failure")
}

func (o writeObserver) written(format event.FileFormat, size int64, duration time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.IncFilesWritten(o.backend, string(format), "success")
	o.metrics.ObserveFileSize(o.backend, string(format), float64(size))
	o.metrics.ObserveStorageWriteDuration(o.backend, duration.Seconds())
}

// encodedFile is a batch encoded into a temporary file.
type encodedFile struct {
	path      string
	extension string
	stats     *event.FileStats
}

func (f *encodedFile) remove() {
	os.Remove(f.path)
}

// encodeTemp encodes records into a temporary file. The caller removes it.
func encodeTemp(factory *encoder.Factory, records []event.Record, pattern string) (*encodedFile, error) {
	enc, err := factory.CreateEncoder()
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	tmp, err := os.CreateTemp("", pattern+"-*"+enc.FileExtension())
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	f := &encodedFile{path: tmp.Name(), extension: enc.FileExtension()}
	if err := tmp.Close(); err != nil {
		f.remove()
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	f.stats, err = enc.Encode(f.path, records)
	if err != nil {
		f.remove()
		return nil, fmt.Errorf("failed to encode records: %w", err)
	}
	return f, nil
}

// contentType returns the object content type for a format.
func contentType(format event.FileFormat, compression string) string {
	switch format {
	case event.FormatJSON:
		if encoder.IsGzip(compression) {
			return "application/gzip"
		}
		return "application/x-ndjson"
	case event.FormatAvro:
		return "application/avro"
	default:
		return "application/octet-stream"
	}
}
