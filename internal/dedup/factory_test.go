package dedup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jittakal/kafeventrouter/pkg/dedup"
)

type recordingMetrics struct {
	mu        sync.Mutex
	durations map[string]int
	errors    map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{durations: map[string]int{}, errors: map[string]int{}}
}

func (m *recordingMetrics) ObserveStoreDuration(backend, op string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations[backend+"/"+op]++
}

func (m *recordingMetrics) IncStoreErrors(backend, op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[backend+"/"+op]++
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "memory backend",
			cfg:  Config{Backend: "memory", TTL: time.Hour},
		},
		{
			name:    "unknown backend",
			cfg:     Config{Backend: "cassandra", TTL: time.Hour},
			wantErr: true,
		},
		{
			name:    "dynamodb without table",
			cfg:     Config{Backend: "dynamodb", TTL: time.Hour},
			wantErr: true,
		},
		{
			name:    "redis without address",
			cfg:     Config{Backend: "redis", TTL: time.Hour},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := New(context.Background(), tt.cfg, testLogger(), nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if store != nil {
				store.Close()
			}
		})
	}
}

func TestNew_Instrumented(t *testing.T) {
	ctx := context.Background()
	metrics := newRecordingMetrics()

	store, err := New(ctx, Config{Backend: "memory", TTL: time.Hour}, testLogger(), metrics)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	if _, ok := store.(*Instrumented); !ok {
		t.Fatalf("store type = %T, want *Instrumented", store)
	}

	if _, err := store.PutIfAbsent(ctx, "k", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("PutIfAbsent() error = %v", err)
	}
	if _, err := store.Exists(ctx, "k"); err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if err := store.(dedup.Pinger).Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	if metrics.durations["memory/put_if_absent"] != 1 || metrics.durations["memory/exists"] != 1 {
		t.Errorf("durations = %v", metrics.durations)
	}
	if len(metrics.errors) != 0 {
		t.Errorf("errors = %v, want none", metrics.errors)
	}
}

type failingStore struct{}

func (failingStore) Exists(context.Context, string) (bool, error) { return false, errors.New("down") }
func (failingStore) Put(context.Context, string, time.Time) error { return errors.New("down") }
func (failingStore) PutIfAbsent(context.Context, string, time.Time) (bool, error) {
	return false, errors.New("down")
}
func (failingStore) Close() error { return nil }

func TestInstrumented_RecordsErrors(t *testing.T) {
	metrics := newRecordingMetrics()
	store := NewInstrumented(failingStore{}, "fake", metrics)

	store.PutIfAbsent(context.Background(), "k", time.Now())
	store.Put(context.Background(), "k", time.Now())

	if metrics.errors["fake/put_if_absent"] != 1 || metrics.errors["fake/put"] != 1 {
		t.Errorf("errors = %v", metrics.errors)
	}
	// failingStore is not a Pinger.
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
