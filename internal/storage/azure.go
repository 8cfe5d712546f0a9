package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/jittakal/kafeventrouter/internal/encoder"
	"github.com/jittakal/kafeventrouter/internal/errors"
	"github.com/jittakal/kafeventrouter/pkg/event"
	"github.com/jittakal/kafeventrouter/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*AzureWriter)(nil)

// AzureConfig contains Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName   string
	AccountKey    string
	SASToken      string
	ContainerName string
	Endpoint      string
}

// serviceURL returns the blob service URL, honouring a custom endpoint.
func (c AzureConfig) serviceURL() string {
	if c.Endpoint != "" {
		return strings.TrimSuffix(c.Endpoint, "/") + "/"
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/", c.AccountName)
}

// connectionString builds a shared key connection string.
func (c AzureConfig) connectionString() string {
	if c.Endpoint != "" {
		return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;BlobEndpoint=%s",
			c.AccountName, c.AccountKey, c.Endpoint)
	}
	return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
		c.AccountName, c.AccountKey)
}

// blobUploader is the subset of azblob.Client used by AzureWriter.
type blobUploader interface {
	UploadFile(ctx context.Context, containerName string, blobName string, file *os.File, o *azblob.UploadFileOptions) (azblob.UploadFileResponse, error)
}

// AzureWriter implements storage.Writer for Azure Blob Storage.
// It authenticates with an account key or, when no key is set, a SAS token.
type AzureWriter struct {
	client         blobUploader
	containerName  string
	compression    string
	encoderFactory *encoder.Factory
	namer          *fileNamer
	observer       writeObserver
	logger         *slog.Logger
	mu             sync.Mutex
}

// NewAzureWriter creates a new Azure Blob storage writer.
func NewAzureWriter(
	cfg AzureConfig,
	format event.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*AzureWriter, error) {
	var (
		client *azblob.Client
		err    error
	)
	switch {
	case cfg.AccountKey != "":
		client, err = azblob.NewClientFromConnectionString(cfg.connectionString(), nil)
	case cfg.SASToken != "":
		client, err = azblob.NewClientWithNoCredential(cfg.serviceURL()+"?"+strings.TrimPrefix(cfg.SASToken, "?"), nil)
	default:
		return nil, fmt.Errorf("azure storage requires an account key or SAS token")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	w, err := newAzureWriter(client, cfg, format, compression, logger, metrics)
	if err != nil {
		return nil, err
	}

	logger.Info("Azure writer created",
		"container", cfg.ContainerName,
		"account", cfg.AccountName,
		"format", format,
		"compression", compression,
	)
	return w, nil
}

func newAzureWriter(
	client blobUploader,
	cfg AzureConfig,
	format event.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*AzureWriter, error) {
	encoderFactory := encoder.NewFactory(format, compression)
	if _, err := encoderFactory.CreateEncoder(); err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	return &AzureWriter{
		client:         client,
		containerName:  cfg.ContainerName,
		compression:    compression,
		encoderFactory: encoderFactory,
		namer:          newFileNamer(),
		observer:       writeObserver{backend: BackendAzure, metrics: metrics},
		logger:         logger,
	}, nil
}

// Write encodes records and uploads them as one blob below path.
func (w *AzureWriter) Write(ctx context.Context, records []event.Record, path string, format event.FileFormat) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(records) == 0 {
		return 0, fmt.Errorf("no records to write")
	}

	startTime := time.Now()

	encoded, err := encodeTemp(w.encoderFactory, records, "azure-upload")
	if err != nil {
		w.observer.failed("encode", format)
		return 0, err
	}
	defer encoded.remove()

	blobPath := objectKey(path, Protocol(BackendAzure)) + w.namer.next(encoded.extension)

	file, err := os.Open(encoded.path)
	if err != nil {
		w.observer.failed("file_open", format)
		return 0, fmt.Errorf("failed to open encoded file: %w", err)
	}
	defer file.Close()

	ct := contentType(format, w.compression)
	_, err = w.client.UploadFile(ctx, w.containerName, blobPath, file, &azblob.UploadFileOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &ct},
	})
	if err != nil {
		w.observer.failed("upload", format)
		return 0, &errors.StorageError{Operation: "upload", Path: "wasbs://" + w.containerName + "/" + blobPath, Err: err}
	}

	duration := time.Since(startTime)
	w.observer.written(format, encoded.stats.SizeBytes, duration)

	w.logger.Info("wrote records to Azure Blob",
		"container", w.containerName,
		"blob", blobPath,
		"record_count", encoded.stats.RecordCount,
		"file_size", encoded.stats.SizeBytes,
		"format", format,
		"total_duration_ms", duration.Milliseconds(),
	)

	return encoded.stats.SizeBytes, nil
}

// Close closes the Azure writer.
func (w *AzureWriter) Close() error {
	w.logger.Info("Azure writer closed")
	return nil
}
