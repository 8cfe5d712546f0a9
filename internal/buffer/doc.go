// Package buffer provides thread-safe buffering for routed records.
//
// Records are grouped by the output prefix the router assigned them, so every
// drained batch can be written to a single storage location.
//
// # PrefixBuffer
//
// PrefixBuffer holds records for one prefix with optional size and count
// limits:
//
//	buf := buffer.New("purchase/completed/2023/11/14/", maxSizeBytes, maxRecords)
//
//	if err := buf.Add(record); errors.Is(err, apperrors.ErrBufferFull) {
//	    records := buf.Drain()
//	    write(records)
//	}
//
// # Manager
//
// Manager creates prefix buffers on demand and keeps running totals that
// are exported as buffered records and bytes gauges:
//
//	manager := buffer.NewManager(maxSizeBytes, maxRecords, metrics)
//	_ = manager.Add(record) // buffered under record.Prefix
//
//	for _, prefix := range manager.Prefixes() {
//	    records := manager.GetOrCreate(prefix).Drain()
//	    write(prefix, records)
//	}
//
// # Thread Safety
//
// Add, Drain and Reset take the buffer's write lock while Stats and IsEmpty
// take its read lock. Manager.GetOrCreate uses double-checked locking.
package buffer
