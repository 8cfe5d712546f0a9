package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"

	apperrors "github.com/jittakal/kafeventrouter/internal/errors"
	"github.com/jittakal/kafeventrouter/internal/router"
	"github.com/jittakal/kafeventrouter/pkg/event"
)

type fakeProcessor struct {
	out []event.OutputRecord
	err error
	got []event.RawRecord
}

func (p *fakeProcessor) Process(_ context.Context, records []event.RawRecord) ([]event.OutputRecord, error) {
	p.got = records
	return p.out, p.err
}

type fakeMetrics struct {
	failures int
}

func (m *fakeMetrics) IncRouterBatchFailures() {
	m.failures++
}

type mapStore struct {
	mu   sync.Mutex
	keys map[string]time.Time
}

func newMapStore() *mapStore {
	return &mapStore{keys: make(map[string]time.Time)}
}

func (s *mapStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok, nil
}

func (s *mapStore) Put(_ context.Context, key string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = expiresAt
	return nil
}

func (s *mapStore) PutIfAbsent(_ context.Context, key string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return true, nil
	}
	s.keys[key] = expiresAt
	return false, nil
}

func (s *mapStore) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func encode(payload string) string {
	return base64.StdEncoding.EncodeToString([]byte(payload))
}

func TestNewResponse(t *testing.T) {
	out := []event.OutputRecord{
		{RecordID: "1", Result: event.ResultOk, Data: []byte(`{"a":1}`), Prefix: "purchase/completed/2023/11/14/"},
		{RecordID: "2", Result: event.ResultProcessingFailed, Data: []byte("garbage")},
	}

	resp := NewResponse(out)

	if len(resp.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(resp.Records))
	}
	first := resp.Records[0]
	if first.RecordID != "1" || first.Result != events.KinesisFirehoseTransformedStateOk {
		t.Errorf("unexpected first record: %+v", first)
	}
	if got := first.Metadata.PartitionKeys[event.PartitionKeyPrefix]; got != "purchase/completed/2023/11/14/" {
		t.Errorf("partition key = %q", got)
	}
	second := resp.Records[1]
	if second.Result != events.KinesisFirehoseTransformedStateProcessingFailed {
		t.Errorf("second result = %q", second.Result)
	}
	if second.Metadata.PartitionKeys != nil {
		t.Errorf("expected no partition keys, got %v", second.Metadata.PartitionKeys)
	}
	if string(second.Data) != "garbage" {
		t.Errorf("second data = %q", second.Data)
	}
}

func TestNewResponse_Empty(t *testing.T) {
	resp := NewResponse(nil)
	if resp.Records == nil {
		t.Fatal("expected non-nil records slice")
	}
	body, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(body) != `{"records":[]}` {
		t.Errorf("body = %s", body)
	}
}

func TestFirehoseHandler_Handle(t *testing.T) {
	proc := &fakeProcessor{
		out: []event.OutputRecord{{RecordID: "r1", Result: event.ResultOk, Data: []byte("{}"), Prefix: "error/2024/3/5/"}},
	}
	metrics := &fakeMetrics{}
	h := NewFirehoseHandler(proc, testLogger(), metrics)

	ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: "req-1"})
	req := event.TransformRequest{
		InvocationID: "inv-1",
		Records:      []event.RawRecord{{RecordID: "r1", Data: encode("{}")}},
	}

	resp, err := h.Handle(ctx, req)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(proc.got) != 1 || proc.got[0].RecordID != "r1" {
		t.Errorf("processor received %+v", proc.got)
	}
	if len(resp.Records) != 1 || resp.Records[0].RecordID != "r1" {
		t.Errorf("unexpected response %+v", resp)
	}
	if metrics.failures != 0 {
		t.Errorf("failures = %d, want 0", metrics.failures)
	}
}

func TestFirehoseHandler_HandleStoreError(t *testing.T) {
	storeErr := &apperrors.StoreError{Backend: "dynamodb", Operation: "put_if_absent", Err: fmt.Errorf("throttled")}
	proc := &fakeProcessor{err: storeErr}
	metrics := &fakeMetrics{}
	h := NewFirehoseHandler(proc, testLogger(), metrics)

	resp, err := h.Handle(context.Background(), event.TransformRequest{
		Records: []event.RawRecord{{RecordID: "r1", Data: encode("{}")}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !apperrors.IsRetryable(err) {
		t.Errorf("expected retryable error, got %v", err)
	}
	if resp.Records != nil {
		t.Errorf("expected empty response, got %+v", resp)
	}
	if metrics.failures != 1 {
		t.Errorf("failures = %d, want 1", metrics.failures)
	}
}

func TestFirehoseHandler_NilMetrics(t *testing.T) {
	h := NewFirehoseHandler(&fakeProcessor{err: fmt.Errorf("boom")}, testLogger(), nil)
	if _, err := h.Handle(context.Background(), event.TransformRequest{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestFirehoseHandler_WithRouter(t *testing.T) {
	r, err := router.New(newMapStore(), router.Config{}, testLogger(), nil)
	if err != nil {
		t.Fatalf("router.New() error = %v", err)
	}
	h := NewFirehoseHandler(r, testLogger(), nil)

	payload := `{"event_uuid":"u-1","event_name":"purchase:completed","created_at":1700000000}`
	req := event.TransformRequest{
		Records: []event.RawRecord{
			{RecordID: "a", Data: encode(payload)},
			{RecordID: "b", Data: encode(payload)},
			{RecordID: "c", Data: encode(`{"event_uuid":"u-2","created_at":1709600000}`)},
		},
	}

	resp, err := h.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(resp.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(resp.Records))
	}

	tests := []struct {
		recordID string
		prefix   string
	}{
		{"a", "purchase/completed/2023/11/14/"},
		{"c", "error/2024/3/5/"},
	}
	for i, tt := range tests {
		got := resp.Records[i]
		if got.RecordID != tt.recordID {
			t.Errorf("record %d id = %q, want %q", i, got.RecordID, tt.recordID)
		}
		if got.Result != events.KinesisFirehoseTransformedStateOk {
			t.Errorf("record %d result = %q", i, got.Result)
		}
		if p := got.Metadata.PartitionKeys[event.PartitionKeyPrefix]; p != tt.prefix {
			t.Errorf("record %d prefix = %q, want %q", i, p, tt.prefix)
		}
	}
}

func TestTransformHandler(t *testing.T) {
	proc := &fakeProcessor{
		out: []event.OutputRecord{{RecordID: "r1", Result: event.ResultOk, Data: []byte(`{"x":1}`), Prefix: "a/b/2024/1/2/"}},
	}
	h := NewFirehoseHandler(proc, testLogger(), nil)
	handler := TransformHandler(h, 1<<20)

	body := `{"invocationId":"inv","records":[{"recordId":"r1","data":"` + encode(`{"x":1}`) + `"}]}`
	req := httptest.NewRequest(http.MethodPost, "/transform", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var resp events.KinesisFirehoseResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(resp.Records))
	}
	if string(resp.Records[0].Data) != `{"x":1}` {
		t.Errorf("data = %s", resp.Records[0].Data)
	}
	if resp.Records[0].Metadata.PartitionKeys[event.PartitionKeyPrefix] != "a/b/2024/1/2/" {
		t.Errorf("partition keys = %v", resp.Records[0].Metadata.PartitionKeys)
	}
}

func TestTransformHandler_Errors(t *testing.T) {
	storeErr := &apperrors.StoreError{Backend: "redis", Operation: "put", Err: fmt.Errorf("down")}

	tests := []struct {
		name       string
		method     string
		body       string
		procErr    error
		wantStatus int
	}{
		{"wrong method", http.MethodGet, "", nil, http.StatusMethodNotAllowed},
		{"invalid json", http.MethodPost, "{", nil, http.StatusBadRequest},
		{"too large", http.MethodPost, `{"records":[{"recordId":"` + strings.Repeat("x", 256) + `"}]}`, nil, http.StatusRequestEntityTooLarge},
		{"store unavailable", http.MethodPost, `{"records":[]}`, storeErr, http.StatusServiceUnavailable},
		{"other failure", http.MethodPost, `{"records":[]}`, fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewFirehoseHandler(&fakeProcessor{err: tt.procErr}, testLogger(), nil)
			handler := TransformHandler(h, 128)

			req := httptest.NewRequest(tt.method, "/transform", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}
