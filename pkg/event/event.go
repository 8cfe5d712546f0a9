// Package event defines core event types and interfaces for event routing.
//
// This package contains the public API for the stream transformation contract:
// raw records handed over by the stream runtime, routed output records and the
// storage records written by the delivery sinks.
package event

import (
	"fmt"
	"time"
)

// Transformation results understood by the stream runtime.
const (
	ResultOk               = "Ok"
	ResultDropped          = "Dropped"
	ResultProcessingFailed = "ProcessingFailed"
)

// PartitionKeyPrefix is the partition key carrying the output prefix.
const PartitionKeyPrefix = "s3Prefix"

// UnknownSegment is used when event_name lacks a type or subtype segment.
const UnknownSegment = "unknown"

// TransformRequest is the batch handed to the router by the stream runtime.
type TransformRequest struct {
	InvocationID      string      `json:"invocationId,omitempty"`
	DeliveryStreamArn string      `json:"deliveryStreamArn,omitempty"`
	Region            string      `json:"region,omitempty"`
	Records           []RawRecord `json:"records"`
}

// RawRecord is a single transport record. Data is base64 encoded.
type RawRecord struct {
	RecordID                    string `json:"recordId"`
	ApproximateArrivalTimestamp int64  `json:"approximateArrivalTimestamp,omitempty"`
	Data                        string `json:"data"`
}

// Event holds the fields the router derives from a decoded payload.
type Event struct {
	UUID            string
	Name            string
	Type            string
	Subtype         string
	CreatedAt       string // original created_at text, "0" when absent
	CreatedDateTime time.Time
}

// IsError reports whether the event lands in the error partition.
func (e *Event) IsError() bool {
	return e.Name == ""
}

// DedupKey returns event_uuid + "_" + event_name + "_" + created_at.
func (e *Event) DedupKey() string {
	return e.UUID + "_" + e.Name + "_" + e.CreatedAt
}

// OutputRecord is the router's result for one surviving input record.
type OutputRecord struct {
	RecordID string
	Result   string
	// Data holds the decoded payload bytes; transports re-encode as needed.
	Data   []byte
	Prefix string
	// Event is nil when the record could not be decoded.
	Event *Event
}

// PartitionKeys returns the runtime partition keys for the record.
func (r *OutputRecord) PartitionKeys() map[string]string {
	if r.Prefix == "" {
		return nil
	}
	return map[string]string{PartitionKeyPrefix: r.Prefix}
}

// SourceMetadata describes where a record came from when it was not
// delivered by a managed runtime.
type SourceMetadata struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Headers   map[string]string
	Timestamp time.Time
}

// PartitionID uniquely identifies a Kafka partition.
type PartitionID struct {
	Topic     string
	Partition int32
}

// String returns a string representation of the partition ID in the format "topic-partition".
func (p PartitionID) String() string {
	return fmt.Sprintf("%s-%d", p.Topic, p.Partition)
}

// Record represents a routed event ready for storage.
type Record struct {
	RecordID    string
	Prefix      string
	Data        []byte
	Event       *Event
	Source      SourceMetadata
	ProcessedAt time.Time
}

// GetEventTime returns the event's creation time, falling back to the
// source timestamp for records without a decoded event.
func (r *Record) GetEventTime() time.Time {
	if r.Event != nil {
		return r.Event.CreatedDateTime
	}
	return r.Source.Timestamp
}

// GetEventTimeUnix returns the event's timestamp as Unix seconds.
func (r *Record) GetEventTimeUnix() int64 {
	return r.GetEventTime().Unix()
}

// FileStats contains statistics about buffered events.
type FileStats struct {
	RecordCount    int
	SizeBytes      int64
	FirstWriteTime time.Time
	LastWriteTime  time.Time
}

// FileFormat represents the storage file format.
type FileFormat string

const (
	FormatJSON    FileFormat = "json"
	FormatParquet FileFormat = "parquet"
	FormatAvro    FileFormat = "avro"
)

// ParseFileFormat converts a configuration value to a FileFormat.
func ParseFileFormat(s string) (FileFormat, error) {
	switch FileFormat(s) {
	case FormatJSON, FormatParquet, FormatAvro:
		return FileFormat(s), nil
	default:
		return "", fmt.Errorf("unsupported file format: %s", s)
	}
}

// ConsumedEvent represents a raw event consumed from Kafka.
type ConsumedEvent struct {
	Payload    []byte
	Metadata   SourceMetadata
	CommitFunc func() error
}

// RecordID returns a stable transport identifier for the consumed message.
func (c *ConsumedEvent) RecordID() string {
	return fmt.Sprintf("%s-%d-%d", c.Metadata.Topic, c.Metadata.Partition, c.Metadata.Offset)
}
