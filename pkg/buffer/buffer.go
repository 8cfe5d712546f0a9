// Package buffer defines interfaces for record buffering operations.
//
// Routed records are grouped by their output prefix and held in memory
// until a rotation policy decides to write them to storage.
package buffer

import (
	"github.com/jittakal/kafeventrouter/pkg/event"
)

// Buffer manages buffering of records before storage.
// All implementations must be thread-safe.
type Buffer interface {
	// Add adds a record to the buffer.
	// Returns an error if the buffer is full or capacity would be exceeded.
	Add(record event.Record) error

	// Drain removes and returns all records from the buffer.
	// The buffer is reset after draining.
	Drain() []event.Record

	// Stats returns current buffer statistics without modifying the buffer.
	Stats() event.FileStats

	// IsEmpty returns true if the buffer contains no records.
	IsEmpty() bool

	// Reset clears the buffer and resets all statistics.
	Reset()
}

// Manager creates and manages buffers keyed by output prefix.
type Manager interface {
	// GetOrCreate returns the buffer for prefix, creating one if it
	// doesn't exist.
	GetOrCreate(prefix string) Buffer

	// Prefixes returns the prefixes that currently hold records, sorted.
	Prefixes() []string
}
