// Package dedup implements deduplication store backends.
package dedup

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"

	apperrors "github.com/jittakal/kafeventrouter/internal/errors"
	"github.com/jittakal/kafeventrouter/pkg/dedup"
)

// Ensure implementation satisfies interfaces at compile time.
var (
	_ dedup.Store  = (*MemoryStore)(nil)
	_ dedup.Pinger = (*MemoryStore)(nil)
)

const backendMemory = "memory"

// MemoryConfig contains in-process store configuration.
type MemoryConfig struct {
	// LifeWindow must be at least the dedup retention, otherwise entries are
	// evicted before they expire.
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	Shards             int
}

// MemoryStore keeps dedup keys in a process-local bigcache. It is meant for
// the http runtime in single-instance deployments and for tests; keys are not
// shared between processes.
type MemoryStore struct {
	cache  *bigcache.BigCache
	now    func() time.Time
	mu     sync.Mutex
	closed bool
}

// NewMemoryStore creates a new in-process store.
func NewMemoryStore(ctx context.Context, cfg MemoryConfig) (*MemoryStore, error) {
	if cfg.LifeWindow <= 0 {
		return nil, fmt.Errorf("memory store life window must be positive")
	}

	bc := bigcache.DefaultConfig(cfg.LifeWindow)
	bc.CleanWindow = cfg.CleanWindow
	if bc.CleanWindow <= 0 {
		bc.CleanWindow = time.Minute
	}
	if cfg.MaxEntriesInWindow > 0 {
		bc.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.Shards > 0 {
		bc.Shards = cfg.Shards
	}
	bc.Verbose = false

	cache, err := bigcache.New(ctx, bc)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigcache: %w", err)
	}

	return &MemoryStore{
		cache: cache,
		now:   time.Now,
	}, nil
}

// Exists reports whether key is present and not yet expired.
func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, s.storeErr("exists", key, apperrors.ErrStoreClosed)
	}
	return s.live(key)
}

// Put inserts key with an absolute expiry.
func (s *MemoryStore) Put(ctx context.Context, key string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.storeErr("put", key, apperrors.ErrStoreClosed)
	}
	if err := s.cache.Set(key, encodeExpiry(expiresAt)); err != nil {
		return s.storeErr("put", key, err)
	}
	return nil
}

// PutIfAbsent inserts key unless a live entry exists.
func (s *MemoryStore) PutIfAbsent(ctx context.Context, key string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, s.storeErr("put_if_absent", key, apperrors.ErrStoreClosed)
	}

	existed, err := s.live(key)
	if err != nil || existed {
		return existed, err
	}

	if err := s.cache.Set(key, encodeExpiry(expiresAt)); err != nil {
		return false, s.storeErr("put_if_absent", key, err)
	}
	return false, nil
}

// Ping reports whether the store is open.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return apperrors.ErrStoreClosed
	}
	return nil
}

// Close releases the cache.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.cache.Close()
}

// live must be called with mu held.
func (s *MemoryStore) live(key string) (bool, error) {
	entry, err := s.cache.Get(key)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return false, nil
		}
		return false, s.storeErr("exists", key, err)
	}
	if len(entry) != 8 {
		return false, s.storeErr("exists", key, fmt.Errorf("corrupt entry of %d bytes", len(entry)))
	}

	expiresAt := time.Unix(int64(binary.BigEndian.Uint64(entry)), 0)
	return s.now().Before(expiresAt), nil
}

func (s *MemoryStore) storeErr(op, key string, err error) error {
	return &apperrors.StoreError{Backend: backendMemory, Operation: op, Key: key, Err: err}
}

func encodeExpiry(t time.Time) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(t.Unix()))
	return buf
}
