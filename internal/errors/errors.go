// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"

	"github.com/jittakal/kafeventrouter/pkg/event"
)

// Sentinel errors for common conditions.
var (
	ErrBufferFull       = errors.New("buffer is full")
	ErrConsumerClosed   = errors.New("consumer is closed")
	ErrMalformedRecord  = errors.New("malformed record")
	ErrStoreUnavailable = errors.New("dedup store unavailable")
	ErrStoreClosed      = errors.New("dedup store is closed")
	ErrWriterClosed     = errors.New("storage writer is closed")
	ErrConnectionLost   = errors.New("connection lost")
)

// DecodeError describes why a raw record could not be turned into an event.
type DecodeError struct {
	RecordID string
	Stage    string // base64, utf8, json or field
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: record_id=%s stage=%s: %v", e.RecordID, e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is makes every DecodeError match ErrMalformedRecord.
func (e *DecodeError) Is(target error) bool {
	return target == ErrMalformedRecord
}

// StoreError represents a failed call to the deduplication store.
type StoreError struct {
	Backend   string
	Operation string
	Key       string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: backend=%s operation=%s key=%s: %v",
		e.Backend, e.Operation, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is makes every StoreError match ErrStoreUnavailable.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// IsRetryable reports whether the store call may succeed when repeated.
func (e *StoreError) IsRetryable() bool {
	return !errors.Is(e.Err, ErrStoreClosed)
}

// ProcessingError represents an error while routing a consumed batch.
type ProcessingError struct {
	PartitionID event.PartitionID
	Offset      int64
	RecordID    string
	Err         error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing error: partition=%s offset=%d record_id=%s: %v",
		e.PartitionID, e.Offset, e.RecordID, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// RouteError reports the record at which routing of a batch stopped.
// Records before Index were routed and their output is returned with the error.
type RouteError struct {
	Index    int
	RecordID string
	Err      error
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("routing stopped at record %d (%s): %v", e.Index, e.RecordID, e.Err)
}

func (e *RouteError) Unwrap() error {
	return e.Err
}

// StorageError represents a storage operation failure.
type StorageError struct {
	Operation string
	Path      string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: operation=%s path=%s: %v",
		e.Operation, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Retryable defines an interface for errors that can indicate if they are retryable.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable checks if an error is retryable.
// It first checks if the error implements the Retryable interface,
// then falls back to checking sentinel errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	if errors.Is(err, ErrConnectionLost) {
		return true
	}

	return false
}

// IsRetryable determines if a StorageError is retryable based on the operation type.
func (e *StorageError) IsRetryable() bool {
	return e.Operation == "write" || e.Operation == "upload" || e.Operation == "create"
}

// IsRetryable determines if a ProcessingError is retryable.
func (e *ProcessingError) IsRetryable() bool {
	return IsRetryable(e.Err)
}

// IsRetryable determines if a RouteError is retryable.
func (e *RouteError) IsRetryable() bool {
	return IsRetryable(e.Err)
}
