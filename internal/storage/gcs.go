package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/jittakal/kafeventrouter/internal/encoder"
	"github.com/jittakal/kafeventrouter/internal/errors"
	"github.com/jittakal/kafeventrouter/pkg/event"
	pkgstorage "github.com/jittakal/kafeventrouter/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ pkgstorage.Writer = (*GCSWriter)(nil)

// GCSConfig contains Google Cloud Storage configuration.
type GCSConfig struct {
	Bucket               string
	ProjectID            string
	CredentialsFile      string
	CredentialsJSON      string
	Endpoint             string
	UseDefaultCredential bool
}

// clientOptions selects the credential source. Explicit JSON wins over a
// credentials file; otherwise application default credentials are used.
func (c GCSConfig) clientOptions() []option.ClientOption {
	var opts []option.ClientOption
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}

	switch {
	case c.UseDefaultCredential:
	case c.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(c.CredentialsJSON)))
	case c.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(c.CredentialsFile))
	}
	return opts
}

// objectStore opens object writers. It is satisfied by gcsObjectStore and
// by fakes in tests.
type objectStore interface {
	NewWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser
	Close() error
}

type gcsObjectStore struct {
	client *storage.Client
}

func (s gcsObjectStore) NewWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser {
	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	return w
}

func (s gcsObjectStore) Close() error { return s.client.Close() }

// GCSWriter implements storage.Writer for Google Cloud Storage.
type GCSWriter struct {
	objects        objectStore
	bucket         string
	compression    string
	encoderFactory *encoder.Factory
	namer          *fileNamer
	observer       writeObserver
	logger         *slog.Logger
	mu             sync.Mutex
}

// NewGCSWriter creates a new Google Cloud Storage writer.
func NewGCSWriter(
	cfg GCSConfig,
	format event.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*GCSWriter, error) {
	client, err := storage.NewClient(context.Background(), cfg.clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	w, err := newGCSWriter(gcsObjectStore{client: client}, cfg, format, compression, logger, metrics)
	if err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("GCS writer created",
		"bucket", cfg.Bucket,
		"project_id", cfg.ProjectID,
		"format", format,
		"compression", compression,
	)
	return w, nil
}

func newGCSWriter(
	objects objectStore,
	cfg GCSConfig,
	format event.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*GCSWriter, error) {
	encoderFactory := encoder.NewFactory(format, compression)
	if _, err := encoderFactory.CreateEncoder(); err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	return &GCSWriter{
		objects:        objects,
		bucket:         cfg.Bucket,
		compression:    compression,
		encoderFactory: encoderFactory,
		namer:          newFileNamer(),
		observer:       writeObserver{backend: BackendGCS, metrics: metrics},
		logger:         logger,
	}, nil
}

// Write encodes records and uploads them as one object below path.
func (w *GCSWriter) Write(
	ctx context.Context,
	records []event.Record,
	path string,
	format event.FileFormat,
) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(records) == 0 {
		return 0, fmt.Errorf("no records to write")
	}

	startTime := time.Now()

	encoded, err := encodeTemp(w.encoderFactory, records, "gcs-upload")
	if err != nil {
		w.observer.failed("encode", format)
		return 0, err
	}
	defer encoded.remove()

	objectPath := objectKey(path, Protocol(BackendGCS)) + w.namer.next(encoded.extension)
	location := "gs://" + w.bucket + "/" + objectPath

	file, err := os.Open(encoded.path)
	if err != nil {
		w.observer.failed("file_open", format)
		return 0, fmt.Errorf("failed to open encoded file: %w", err)
	}
	defer file.Close()

	writer := w.objects.NewWriter(ctx, w.bucket, objectPath, contentType(format, w.compression))
	bytesWritten, err := io.Copy(writer, file)
	if err != nil {
		w.observer.failed("upload", format)
		writer.Close()
		return 0, &errors.StorageError{Operation: "upload", Path: location, Err: err}
	}

	// The object is only committed once the writer is closed.
	if err := writer.Close(); err != nil {
		w.observer.failed("close", format)
		return 0, &errors.StorageError{Operation: "upload", Path: location, Err: err}
	}

	duration := time.Since(startTime)
	w.observer.written(format, encoded.stats.SizeBytes, duration)

	w.logger.Info("wrote records to GCS",
		"bucket", w.bucket,
		"object", objectPath,
		"record_count", encoded.stats.RecordCount,
		"file_size", encoded.stats.SizeBytes,
		"bytes_written", bytesWritten,
		"format", format,
		"total_duration_ms", duration.Milliseconds(),
	)

	return encoded.stats.SizeBytes, nil
}

// Close closes the GCS writer and its client.
func (w *GCSWriter) Close() error {
	w.logger.Info("closing GCS writer")
	if w.objects != nil {
		return w.objects.Close()
	}
	return nil
}
