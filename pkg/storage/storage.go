// Package storage defines interfaces for routed record storage operations.
//
// Writers persist the records buffered under one partition prefix to a
// storage backend (S3, Azure Blob, GCS, local filesystem).
package storage

import (
	"context"

	"github.com/jittakal/kafeventrouter/pkg/event"
)

// Writer writes routed records to storage.
type Writer interface {
	// Write writes records as one file under the specified path.
	// Returns the number of bytes written.
	Write(ctx context.Context, records []event.Record, path string, format event.FileFormat) (int64, error)

	// Close closes the writer and releases resources.
	Close() error
}

// Router maps a partition prefix onto a backend location.
type Router interface {
	// Route returns the storage path for a prefix such as
	// "purchase/completed/2023/11/14/".
	Route(prefix string) string
}

// RotationPolicy determines when to rotate (flush) buffered records to storage.
type RotationPolicy interface {
	// ShouldRotate returns true if the buffer should be flushed based on stats.
	ShouldRotate(stats event.FileStats) bool
}
