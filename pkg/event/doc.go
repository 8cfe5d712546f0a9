// Package event defines core event types for the routing pipeline.
//
// # Transformation Contract
//
// The stream runtime hands the router a TransformRequest whose records carry
// base64 encoded JSON payloads:
//
//	req := event.TransformRequest{
//	    Records: []event.RawRecord{
//	        {RecordID: "r-1", Data: "eyJldmVudF91dWlkIjoidTEifQ=="},
//	    },
//	}
//
// The router answers with one OutputRecord per surviving input record. Each
// record carries a result (ResultOk, ResultDropped or ResultProcessingFailed)
// and, for Ok records, the partition prefix under PartitionKeyPrefix:
//
//	out.PartitionKeys() // map[s3Prefix:purchase/completed/2023/11/14/]
//
// # Event Fields
//
// Event holds the fields derived from a decoded payload. Its DedupKey is the
// identity used by the deduplication store:
//
//	e := event.Event{UUID: "u1", Name: "purchase:completed", CreatedAt: "1700000000"}
//	e.DedupKey() // "u1_purchase:completed_1700000000"
//
// # Storage Records
//
// Record wraps a routed payload with source metadata for the delivery sinks.
// GetEventTime falls back to the source timestamp when no event was decoded.
//
// # File Formats
//
//	event.FormatJSON     // Newline delimited payloads, as delivered by the runtime
//	event.FormatParquet  // Columnar format for analytics
//	event.FormatAvro     // Row-based format with schema
package event
