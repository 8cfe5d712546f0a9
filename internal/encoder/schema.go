package encoder

import (
	"time"

	"github.com/jittakal/kafeventrouter/pkg/event"
)

// EventRow is the columnar projection of a routed record shared by the
// Parquet and Avro encoders.
type EventRow struct {
	EventUUID       string     `parquet:"event_uuid,dict"`
	EventName       string     `parquet:"event_name,dict"`
	EventType       string     `parquet:"event_type,dict"`
	EventSubtype    string     `parquet:"event_subtype,dict"`
	CreatedAt       string     `parquet:"created_at"`
	CreatedDateTime *time.Time `parquet:"created_datetime,timestamp(microsecond),optional"`
	Prefix          string     `parquet:"prefix,dict"`
	RecordID        string     `parquet:"record_id"`
	Payload         string     `parquet:"payload"`

	SourceTopic     *string `parquet:"source_topic,dict,optional"`
	SourcePartition *int32  `parquet:"source_partition,optional"`
	SourceOffset    *int64  `parquet:"source_offset,optional"`

	IngestedAt time.Time `parquet:"ingested_at,timestamp(microsecond)"`
}

// NewEventRow projects a record onto the row schema. Records without a
// decoded event keep empty event columns and a NULL created_datetime.
func NewEventRow(record event.Record) EventRow {
	row := EventRow{
		Prefix:     record.Prefix,
		RecordID:   record.RecordID,
		Payload:    string(record.Data),
		IngestedAt: record.ProcessedAt.UTC(),
	}

	if ev := record.Event; ev != nil {
		row.EventUUID = ev.UUID
		row.EventName = ev.Name
		row.EventType = ev.Type
		row.EventSubtype = ev.Subtype
		row.CreatedAt = ev.CreatedAt
		created := ev.CreatedDateTime.UTC()
		row.CreatedDateTime = &created
	}

	if src := record.Source; src.Topic != "" {
		topic, partition, offset := src.Topic, src.Partition, src.Offset
		row.SourceTopic = &topic
		row.SourcePartition = &partition
		row.SourceOffset = &offset
	}

	return row
}
