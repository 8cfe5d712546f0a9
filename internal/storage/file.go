package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jittakal/kafeventrouter/internal/encoder"
	"github.com/jittakal/kafeventrouter/internal/errors"
	"github.com/jittakal/kafeventrouter/pkg/event"
	"github.com/jittakal/kafeventrouter/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*FileWriter)(nil)

// FileConfig contains local filesystem configuration.
type FileConfig struct {
	BasePath string
}

// FileWriter implements storage.Writer for local filesystem storage.
// Routed paths are resolved below the configured base path, so a prefix
// "purchase/completed/2023/11/14/" becomes a directory of the same shape.
type FileWriter struct {
	basePath       string
	encoderFactory *encoder.Factory
	namer          *fileNamer
	observer       writeObserver
	logger         *slog.Logger
	mu             sync.Mutex
	closed         bool
}

// NewFileWriter creates a new filesystem storage writer.
func NewFileWriter(
	config FileConfig,
	format event.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*FileWriter, error) {
	// Ensure base path exists
	if err := os.MkdirAll(config.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	encoderFactory := encoder.NewFactory(format, compression)
	if _, err := encoderFactory.CreateEncoder(); err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	logger.Info("filesystem writer created",
		"base_path", config.BasePath,
		"format", format,
		"compression", compression,
	)

	return &FileWriter{
		basePath:       config.BasePath,
		encoderFactory: encoderFactory,
		namer:          newFileNamer(),
		observer:       writeObserver{backend: BackendFile, metrics: metrics},
		logger:         logger,
	}, nil
}

// Write encodes records into a new file below path.
func (w *FileWriter) Write(
	ctx context.Context,
	records []event.Record,
	path string,
	format event.FileFormat,
) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, errors.ErrWriterClosed
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("no records to write")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	startTime := time.Now()

	fileEncoder, err := w.encoderFactory.CreateEncoder()
	if err != nil {
		w.observer.failed("encoder_create", format)
		return 0, fmt.Errorf("failed to create encoder: %w", err)
	}

	// File routes carry no bucket segment, only the scheme is stripped.
	rel := strings.TrimPrefix(path, Protocol(BackendFile)+"://")
	dir := filepath.Join(w.basePath, filepath.FromSlash(rel))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.observer.failed("mkdir", format)
		return 0, &errors.StorageError{Operation: "mkdir", Path: dir, Err: err}
	}

	fullPath := filepath.Join(dir, w.namer.next(fileEncoder.FileExtension()))

	stats, err := fileEncoder.Encode(fullPath, records)
	if err != nil {
		w.observer.failed("encode", format)
		os.Remove(fullPath)
		return 0, &errors.StorageError{Operation: "write", Path: fullPath, Err: err}
	}

	duration := time.Since(startTime)
	w.observer.written(format, stats.SizeBytes, duration)

	w.logger.Info("wrote records to file",
		"path", fullPath,
		"record_count", stats.RecordCount,
		"file_size", stats.SizeBytes,
		"format", format,
		"total_duration_ms", duration.Milliseconds(),
	)

	return stats.SizeBytes, nil
}

// Close closes the writer. Later writes fail with ErrWriterClosed.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	w.logger.Info("closing filesystem writer")
	return nil
}
