package buffer_test

import (
	"fmt"

	"github.com/jittakal/kafeventrouter/internal/buffer"
	"github.com/jittakal/kafeventrouter/pkg/event"
)

func Example_prefixBuffer() {
	buf := buffer.New("purchase/completed/2023/11/14/", 1024*1024, 1000)

	for i := 0; i < 5; i++ {
		record := event.Record{
			RecordID: fmt.Sprintf("record-%d", i),
			Prefix:   "purchase/completed/2023/11/14/",
			Data:     []byte(fmt.Sprintf(`{"order_id":%d}`, i)),
		}
		if err := buf.Add(record); err != nil {
			fmt.Println("Error adding record:", err)
			return
		}
	}

	fmt.Printf("Records buffered: %d\n", buf.Stats().RecordCount)

	records := buf.Drain()
	fmt.Printf("Drained %d records\n", len(records))
	fmt.Printf("Buffer is empty after drain: %v\n", buf.IsEmpty())

	// Output:
	// Records buffered: 5
	// Drained 5 records
	// Buffer is empty after drain: true
}

func Example_manager() {
	manager := buffer.NewManager(1024*1024, 1000, nil)

	for _, prefix := range []string{"signup/web/2024/3/5/", "error/2024/3/5/", "signup/web/2024/3/5/"} {
		_ = manager.Add(event.Record{Prefix: prefix, Data: []byte("{}")})
	}

	for _, prefix := range manager.Prefixes() {
		fmt.Printf("%s %d\n", prefix, len(manager.GetOrCreate(prefix).Drain()))
	}

	// Output:
	// error/2024/3/5/ 1
	// signup/web/2024/3/5/ 2
}
