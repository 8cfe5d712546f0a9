package storage

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"strings"
	"testing"

	"github.com/jittakal/kafeventrouter/pkg/event"
)

type fakeObjectWriter struct {
	bytes.Buffer
	closeErr error
	closed   bool
}

func (w *fakeObjectWriter) Close() error {
	w.closed = true
	return w.closeErr
}

type fakeObjectStore struct {
	bucket      string
	object      string
	contentType string
	writer      *fakeObjectWriter
	closed      bool
}

func (s *fakeObjectStore) NewWriter(_ context.Context, bucket, object, contentType string) io.WriteCloser {
	s.bucket, s.object, s.contentType = bucket, object, contentType
	return s.writer
}

func (s *fakeObjectStore) Close() error {
	s.closed = true
	return nil
}

func TestGCSConfig_ClientOptions(t *testing.T) {
	tests := []struct {
		name string
		cfg  GCSConfig
		want int
	}{
		{"default credentials", GCSConfig{UseDefaultCredential: true, CredentialsJSON: "{}"}, 0},
		{"json credentials", GCSConfig{CredentialsJSON: "{}", CredentialsFile: "/tmp/key.json"}, 1},
		{"file credentials", GCSConfig{CredentialsFile: "/tmp/key.json"}, 1},
		{"endpoint and file", GCSConfig{Endpoint: "http://localhost:4443", CredentialsFile: "/tmp/key.json"}, 2},
		{"nothing configured", GCSConfig{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(tt.cfg.clientOptions()); got != tt.want {
				t.Errorf("clientOptions() = %d options, want %d", got, tt.want)
			}
		})
	}
}

func TestGCSWriter_Write(t *testing.T) {
	store := &fakeObjectStore{writer: &fakeObjectWriter{}}
	metrics := newFakeMetrics()

	w, err := newGCSWriter(store, GCSConfig{Bucket: "events"}, event.FormatAvro, "uncompressed", testLogger(), metrics)
	if err != nil {
		t.Fatalf("newGCSWriter() error = %v", err)
	}

	path := NewRouter(Protocol(BackendGCS), "events", "raw").Route("purchase/completed/2023/11/14/")
	size, err := w.Write(context.Background(), testRecords(), path, event.FormatAvro)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if store.bucket != "events" {
		t.Errorf("bucket = %s", store.bucket)
	}
	if !strings.HasPrefix(store.object, "raw/purchase/completed/2023/11/14/events_") || !strings.HasSuffix(store.object, ".avro") {
		t.Errorf("object = %s", store.object)
	}
	if store.contentType != "application/avro" {
		t.Errorf("content type = %s", store.contentType)
	}
	if !store.writer.closed {
		t.Error("object writer was not closed")
	}
	if int64(store.writer.Len()) != size {
		t.Errorf("uploaded %d bytes, Write() = %d", store.writer.Len(), size)
	}
	if metrics.written["gcs/avro/success"] != 1 {
		t.Errorf("files written = %v", metrics.written)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !store.closed {
		t.Error("client was not closed")
	}
}

func TestGCSWriter_CloseFailure(t *testing.T) {
	store := &fakeObjectStore{writer: &fakeObjectWriter{closeErr: stderrors.New("precondition failed")}}
	metrics := newFakeMetrics()

	w, err := newGCSWriter(store, GCSConfig{Bucket: "events"}, event.FormatJSON, "", testLogger(), metrics)
	if err != nil {
		t.Fatalf("newGCSWriter() error = %v", err)
	}

	if _, err := w.Write(context.Background(), testRecords(), "gs://events/a/", event.FormatJSON); err == nil {
		t.Fatal("expected error when the object cannot be committed")
	}
	if metrics.errors["gcs/close"] != 1 {
		t.Errorf("errors = %v", metrics.errors)
	}
}
