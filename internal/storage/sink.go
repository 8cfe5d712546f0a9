package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/jittakal/kafeventrouter/internal/config/dto"
	"github.com/jittakal/kafeventrouter/internal/encoder"
	"github.com/jittakal/kafeventrouter/pkg/event"
	"github.com/jittakal/kafeventrouter/pkg/storage"
)

// Sink writes buffered records of one prefix to the configured backend.
type Sink struct {
	writer storage.Writer
	router storage.Router
	format event.FileFormat
}

// NewSink wraps a writer and router.
func NewSink(writer storage.Writer, router storage.Router, format event.FileFormat) *Sink {
	return &Sink{writer: writer, router: router, format: format}
}

// NewSinkFromConfig builds the writer for cfg.Backend. subPath is appended to
// the backend base path, e.g. the conversion job's output directory.
func NewSinkFromConfig(cfg dto.StorageConfig, subPath string, logger *slog.Logger, metrics MetricsCollector) (*Sink, error) {
	format, err := event.ParseFileFormat(cfg.Format)
	if err != nil {
		return nil, err
	}

	compression := cfg.Compression
	if compression == "" {
		compression = encoder.DefaultCompression(format)
	}

	var (
		writer   storage.Writer
		bucket   string
		basePath string
	)
	switch cfg.Backend {
	case BackendFile:
		writer, err = NewFileWriter(FileConfig{BasePath: cfg.File.BasePath}, format, compression, logger, metrics)
	case BackendS3:
		bucket, basePath = cfg.S3.Bucket, cfg.S3.BasePath
		writer, err = NewS3Writer(S3Config{
			Bucket:       cfg.S3.Bucket,
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
			SSEEnabled:   cfg.S3.SSEEnabled,
			SSEKMSKeyID:  cfg.S3.SSEKMSKeyID,
		}, format, compression, logger, metrics)
	case BackendAzure:
		bucket, basePath = cfg.Azure.Container, cfg.Azure.BasePath
		writer, err = NewAzureWriter(AzureConfig{
			AccountName:   cfg.Azure.AccountName,
			AccountKey:    os.Getenv("AZURE_STORAGE_ACCOUNT_KEY"),
			SASToken:      os.Getenv("AZURE_STORAGE_SAS_TOKEN"),
			ContainerName: cfg.Azure.Container,
			Endpoint:      cfg.Azure.Endpoint,
		}, format, compression, logger, metrics)
	case BackendGCS:
		bucket, basePath = cfg.GCS.Bucket, cfg.GCS.BasePath
		credentialsJSON := cfg.GCS.CredentialsJSON
		if credentialsJSON == "" {
			credentialsJSON = os.Getenv("GCP_CREDENTIALS_JSON")
		}
		writer, err = NewGCSWriter(GCSConfig{
			Bucket:               cfg.GCS.Bucket,
			ProjectID:            cfg.GCS.ProjectID,
			CredentialsFile:      cfg.GCS.CredentialsFile,
			CredentialsJSON:      credentialsJSON,
			UseDefaultCredential: cfg.GCS.UseDefaultCredential,
		}, format, compression, logger, metrics)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s (supported: file, s3, azure, gcs)", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s writer: %w", cfg.Backend, err)
	}

	router := NewRouter(Protocol(cfg.Backend), bucket, path.Join(basePath, subPath))
	return NewSink(writer, router, format), nil
}

// Format returns the file format written by the sink.
func (s *Sink) Format() event.FileFormat {
	return s.format
}

// Location returns the routed storage path for prefix.
func (s *Sink) Location(prefix string) string {
	return s.router.Route(prefix)
}

// Write stores records as one file under prefix and returns the location
// and the number of bytes written.
func (s *Sink) Write(ctx context.Context, prefix string, records []event.Record) (string, int64, error) {
	location := s.router.Route(prefix)
	n, err := s.writer.Write(ctx, records, location, s.format)
	return location, n, err
}

// Close closes the underlying writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}
