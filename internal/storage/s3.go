package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jittakal/kafeventrouter/internal/encoder"
	"github.com/jittakal/kafeventrouter/internal/errors"
	"github.com/jittakal/kafeventrouter/pkg/event"
	"github.com/jittakal/kafeventrouter/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*S3Writer)(nil)

// S3Config contains AWS S3 configuration.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	SSEEnabled   bool
	SSEKMSKeyID  string
}

// s3Uploader is the subset of manager.Uploader used by S3Writer.
type s3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Writer implements storage.Writer for AWS S3 storage.
// Objects are uploaded with the multipart manager and optional SSE.
type S3Writer struct {
	uploader       s3Uploader
	bucket         string
	sseEnabled     bool
	sseKMSKeyID    string
	compression    string
	encoderFactory *encoder.Factory
	namer          *fileNamer
	observer       writeObserver
	logger         *slog.Logger
	mu             sync.Mutex
}

// NewS3Writer creates a new S3 storage writer.
func NewS3Writer(
	cfg S3Config,
	format event.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*S3Writer, error) {
	awsConfig, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	uploader := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024
		u.Concurrency = 5
	})

	w, err := newS3Writer(uploader, cfg, format, compression, logger, metrics)
	if err != nil {
		return nil, err
	}

	logger.Info("S3 writer created",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"format", format,
		"compression", compression,
		"sse_enabled", cfg.SSEEnabled,
	)
	return w, nil
}

func newS3Writer(
	uploader s3Uploader,
	cfg S3Config,
	format event.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*S3Writer, error) {
	encoderFactory := encoder.NewFactory(format, compression)
	if _, err := encoderFactory.CreateEncoder(); err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	return &S3Writer{
		uploader:       uploader,
		bucket:         cfg.Bucket,
		sseEnabled:     cfg.SSEEnabled,
		sseKMSKeyID:    cfg.SSEKMSKeyID,
		compression:    compression,
		encoderFactory: encoderFactory,
		namer:          newFileNamer(),
		observer:       writeObserver{backend: BackendS3, metrics: metrics},
		logger:         logger,
	}, nil
}

// Write encodes records and uploads them as one object below path.
func (w *S3Writer) Write(
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

	encoded, err := encodeTemp(w.encoderFactory, records, "s3-upload")
	if err != nil {
		w.observer.failed("encode", format)
		return 0, err
	}
	defer encoded.remove()

	key := objectKey(path, Protocol(BackendS3)) + w.namer.next(encoded.extension)

	file, err := os.Open(encoded.path)
	if err != nil {
		w.observer.failed("file_open", format)
		return 0, fmt.Errorf("failed to open encoded file: %w", err)
	}
	defer file.Close()

	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType(format, w.compression)),
	}
	if w.sseEnabled {
		if w.sseKMSKeyID != "" {
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			input.SSEKMSKeyId = aws.String(w.sseKMSKeyID)
		} else {
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		}
	}

	result, err := w.uploader.Upload(ctx, input)
	if err != nil {
		w.observer.failed("upload", format)
		return 0, &errors.StorageError{Operation: "upload", Path: "s3://" + w.bucket + "/" + key, Err: err}
	}

	duration := time.Since(startTime)
	w.observer.written(format, encoded.stats.SizeBytes, duration)

	w.logger.Info("wrote records to S3",
		"bucket", w.bucket,
		"key", key,
		"record_count", encoded.stats.RecordCount,
		"file_size", encoded.stats.SizeBytes,
		"format", format,
		"location", result.Location,
		"total_duration_ms", duration.Milliseconds(),
	)

	return encoded.stats.SizeBytes, nil
}

// Close closes the S3 writer.
func (w *S3Writer) Close() error {
	w.logger.Info("closing S3 writer")
	return nil
}
