package event_test

import (
	"fmt"
	"time"

	"github.com/jittakal/kafeventrouter/pkg/event"
)

func ExamplePartitionID_String() {
	pid := event.PartitionID{
		Topic:     "raw-events",
		Partition: 5,
	}

	fmt.Println(pid.String())
	// Output: raw-events-5
}

func ExampleEvent_DedupKey() {
	e := event.Event{
		UUID:      "u1",
		Name:      "purchase:completed",
		CreatedAt: "1700000000",
	}

	fmt.Println(e.DedupKey())
	// Output: u1_purchase:completed_1700000000
}

func ExampleRecord_GetEventTime() {
	created := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)

	record := event.Record{
		RecordID: "r-1",
		Prefix:   "purchase/completed/2023/11/14/",
		Event:    &event.Event{CreatedDateTime: created},
	}

	fmt.Println(record.GetEventTime().Format("2006-01-02 15:04:05"))
	// Output: 2023-11-14 22:13:20
}
