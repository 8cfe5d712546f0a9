// Package encoder provides routed record encoding to various file formats.
//
// # Supported Formats
//
//   - JSON lines: one payload per line, the layout the managed delivery
//     stream writes and the batch conversion job reads
//   - Parquet: columnar format for Athena queries
//   - Avro: row-based OCF with embedded schema
//
// # Encoder Factory
//
//	factory := encoder.NewFactory(event.FormatParquet, "snappy")
//	enc, err := factory.CreateEncoder()
//	if err != nil {
//	    return err
//	}
//	stats, err := enc.Encode(filePath, records)
//
// # Schema
//
// Parquet and Avro share the EventRow projection: the derived event fields
// (event_uuid, event_name, event_type, event_subtype, created_at,
// created_datetime), the partition prefix, the record id, the payload text
// and, for records consumed from Kafka, the source topic, partition and
// offset. Records without source metadata store NULL source columns.
//
// # Compression
//
//	JSON:    "gzip", "uncompressed"
//	Parquet: "snappy" (default), "gzip", "lz4", "zstd", "uncompressed"
//	Avro:    "gzip" (default), "uncompressed"
//
// Gzip changes the file extension to ".jsonl.gz" or ".avro.gz".
package encoder
