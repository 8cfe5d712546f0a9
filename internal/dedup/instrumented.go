package dedup

import (
	"context"
	"time"

	"github.com/jittakal/kafeventrouter/pkg/dedup"
)

// Ensure implementation satisfies interfaces at compile time.
var (
	_ dedup.Store  = (*Instrumented)(nil)
	_ dedup.Pinger = (*Instrumented)(nil)
)

// Instrumented records latency and failures of another store.
type Instrumented struct {
	next    dedup.Store
	backend string
	metrics MetricsCollector
}

// NewInstrumented wraps next.
func NewInstrumented(next dedup.Store, backend string, metrics MetricsCollector) *Instrumented {
	return &Instrumented{next: next, backend: backend, metrics: metrics}
}

// Exists delegates to the wrapped store.
func (s *Instrumented) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := s.next.Exists(ctx, key)
	s.observe("exists", start, err)
	return ok, err
}

// Put delegates to the wrapped store.
func (s *Instrumented) Put(ctx context.Context, key string, expiresAt time.Time) error {
	start := time.Now()
	err := s.next.Put(ctx, key, expiresAt)
	s.observe("put", start, err)
	return err
}

// PutIfAbsent delegates to the wrapped store.
func (s *Instrumented) PutIfAbsent(ctx context.Context, key string, expiresAt time.Time) (bool, error) {
	start := time.Now()
	existed, err := s.next.PutIfAbsent(ctx, key, expiresAt)
	s.observe("put_if_absent", start, err)
	return existed, err
}

// Ping delegates when the wrapped store supports it.
func (s *Instrumented) Ping(ctx context.Context) error {
	if p, ok := s.next.(dedup.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close closes the wrapped store.
func (s *Instrumented) Close() error {
	return s.next.Close()
}

func (s *Instrumented) observe(op string, start time.Time, err error) {
	s.metrics.ObserveStoreDuration(s.backend, op, time.Since(start).Seconds())
	if err != nil {
		s.metrics.IncStoreErrors(s.backend, op)
	}
}
