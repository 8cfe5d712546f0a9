package buffer

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jittakal/kafeventrouter/internal/errors"
	"github.com/jittakal/kafeventrouter/pkg/buffer"
	"github.com/jittakal/kafeventrouter/pkg/event"
)

// Ensure implementations satisfy interfaces at compile time.
var (
	_ buffer.Buffer  = (*PrefixBuffer)(nil)
	_ buffer.Manager = (*Manager)(nil)
)

// MetricsCollector defines metrics operations for buffers.
type MetricsCollector interface {
	SetBuffered(records int, bytes int64)
}

// PrefixBuffer buffers routed records that share one output prefix.
// It tracks first and last write times for file rotation decisions.
type PrefixBuffer struct {
	prefix         string
	records        []event.Record
	maxSizeBytes   int64
	maxRecords     int
	currentSize    int64
	firstWriteTime time.Time
	lastWriteTime  time.Time
	onChange       func(records int, bytes int64)
	mu             sync.RWMutex
}

// New creates a new prefix buffer. A zero limit disables that limit.
func New(prefix string, maxSizeBytes int64, maxRecords int) *PrefixBuffer {
	return &PrefixBuffer{
		prefix:       prefix,
		records:      make([]event.Record, 0, initialCapacity(maxRecords)),
		maxSizeBytes: maxSizeBytes,
		maxRecords:   maxRecords,
	}
}

func initialCapacity(maxRecords int) int {
	if maxRecords <= 0 || maxRecords > 1024 {
		return 1024
	}
	return maxRecords
}

// Prefix returns the output prefix of the buffered records.
func (b *PrefixBuffer) Prefix() string {
	return b.prefix
}

// Add adds a record to the buffer.
func (b *PrefixBuffer) Add(record event.Record) error {
	b.mu.Lock()

	recordSize := int64(estimateSize(record))

	if b.maxRecords > 0 && len(b.records) >= b.maxRecords {
		b.mu.Unlock()
		return fmt.Errorf("%w: max records (%d) reached", errors.ErrBufferFull, b.maxRecords)
	}

	if b.maxSizeBytes > 0 && b.currentSize+recordSize > b.maxSizeBytes {
		b.mu.Unlock()
		return fmt.Errorf("%w: max size (%d bytes) would be exceeded", errors.ErrBufferFull, b.maxSizeBytes)
	}

	b.records = append(b.records, record)
	b.currentSize += recordSize

	now := time.Now()
	if b.firstWriteTime.IsZero() {
		b.firstWriteTime = now
	}
	b.lastWriteTime = now
	onChange := b.onChange
	b.mu.Unlock()

	if onChange != nil {
		onChange(1, recordSize)
	}
	return nil
}

// Drain removes and returns all records from the buffer.
// The returned slice is owned by the caller.
func (b *PrefixBuffer) Drain() []event.Record {
	b.mu.Lock()
	records := b.records
	size := b.currentSize
	b.reset()
	onChange := b.onChange
	b.mu.Unlock()

	if onChange != nil && len(records) > 0 {
		onChange(-len(records), -size)
	}
	return records
}

// Stats returns current buffer statistics.
func (b *PrefixBuffer) Stats() event.FileStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return event.FileStats{
		RecordCount:    len(b.records),
		SizeBytes:      b.currentSize,
		FirstWriteTime: b.firstWriteTime,
		LastWriteTime:  b.lastWriteTime,
	}
}

// IsEmpty returns true if the buffer is empty.
func (b *PrefixBuffer) IsEmpty() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records) == 0
}

// Reset clears the buffer and resets all statistics.
func (b *PrefixBuffer) Reset() {
	b.Drain()
}

func (b *PrefixBuffer) reset() {
	b.records = make([]event.Record, 0, initialCapacity(b.maxRecords))
	b.currentSize = 0
	b.firstWriteTime = time.Time{}
	b.lastWriteTime = time.Time{}
}

// estimateSize estimates the size of a record in bytes.
func estimateSize(record event.Record) int {
	size := len(record.Data) + len(record.Prefix) + len(record.RecordID)

	size += len(record.Source.Topic)
	size += len(record.Source.Key)
	for k, v := range record.Source.Headers {
		size += len(k) + len(v)
	}

	if record.Event != nil {
		size += len(record.Event.UUID) + len(record.Event.Name) + len(record.Event.CreatedAt)
	}

	return size
}

// Manager manages buffers for multiple output prefixes.
// Buffers are created on demand and keep a running total for metrics.
type Manager struct {
	buffers      map[string]*PrefixBuffer
	maxSizeBytes int64
	maxRecords   int
	metrics      MetricsCollector
	totalRecords int
	totalBytes   int64
	mu           sync.RWMutex
	totalsMu     sync.Mutex
}

// NewManager creates a new buffer manager. metrics may be nil.
func NewManager(maxSizeBytes int64, maxRecords int, metrics MetricsCollector) *Manager {
	return &Manager{
		buffers:      make(map[string]*PrefixBuffer),
		maxSizeBytes: maxSizeBytes,
		maxRecords:   maxRecords,
		metrics:      metrics,
	}
}

// GetOrCreate returns a buffer for the prefix, creating if needed.
func (m *Manager) GetOrCreate(prefix string) buffer.Buffer {
	return m.getOrCreate(prefix)
}

func (m *Manager) getOrCreate(prefix string) *PrefixBuffer {
	m.mu.RLock()
	buf, exists := m.buffers[prefix]
	m.mu.RUnlock()

	if exists {
		return buf
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if buf, exists := m.buffers[prefix]; exists {
		return buf
	}

	buf = New(prefix, m.maxSizeBytes, m.maxRecords)
	buf.onChange = m.track
	m.buffers[prefix] = buf
	return buf
}

// Add appends record to the buffer of its prefix.
func (m *Manager) Add(record event.Record) error {
	return m.getOrCreate(record.Prefix).Add(record)
}

// Prefixes returns the prefixes with buffered records, sorted.
func (m *Manager) Prefixes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefixes := make([]string, 0, len(m.buffers))
	for prefix, buf := range m.buffers {
		if !buf.IsEmpty() {
			prefixes = append(prefixes, prefix)
		}
	}
	sort.Strings(prefixes)
	return prefixes
}

// Remove drops the buffer of prefix. Its records are discarded.
func (m *Manager) Remove(prefix string) {
	m.mu.Lock()
	buf, exists := m.buffers[prefix]
	delete(m.buffers, prefix)
	m.mu.Unlock()

	if exists {
		buf.Drain()
	}
}

// Totals returns the number of records and bytes across all buffers.
func (m *Manager) Totals() (int, int64) {
	m.totalsMu.Lock()
	defer m.totalsMu.Unlock()
	return m.totalRecords, m.totalBytes
}

func (m *Manager) track(records int, bytes int64) {
	m.totalsMu.Lock()
	m.totalRecords += records
	m.totalBytes += bytes
	totalRecords, totalBytes := m.totalRecords, m.totalBytes
	m.totalsMu.Unlock()

	if m.metrics != nil {
		m.metrics.SetBuffered(totalRecords, totalBytes)
	}
}
