package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jittakal/kafeventrouter/pkg/dedup"
)

// mockHealthChecker implements HealthChecker for testing
type mockHealthChecker struct {
	liveness  bool
	readiness bool
	healthy   bool
	status    map[string]string
}

func (m *mockHealthChecker) Liveness() bool {
	return m.liveness
}

func (m *mockHealthChecker) Readiness(ctx context.Context) bool {
	return m.readiness
}

func (m *mockHealthChecker) IsHealthy() bool {
	return m.healthy
}

func (m *mockHealthChecker) GetStatus() map[string]string {
	return m.status
}

func TestLivenessHandler_Alive(t *testing.T) {
	checker := &mockHealthChecker{
		liveness: true,
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	handler := LivenessHandler(checker, logger)
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}

	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != "alive" {
		t.Errorf("status = %s, want alive", response.Status)
	}
}

func TestLivenessHandler_NotAlive(t *testing.T) {
	checker := &mockHealthChecker{
		liveness: false,
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	handler := LivenessHandler(checker, logger)
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != "not alive" {
		t.Errorf("status = %s, want not alive", response.Status)
	}
}

func TestReadinessHandler_Ready(t *testing.T) {
	checker := &mockHealthChecker{
		readiness: true,
		status: map[string]string{
			"kafka":   "connected",
			"storage": "available",
		},
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	handler := ReadinessHandler(checker, logger)
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}

	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != "ready" {
		t.Errorf("status = %s, want ready", response.Status)
	}

	if len(response.Checks) != 2 {
		t.Errorf("len(checks) = %d, want 2", len(response.Checks))
	}
}

func TestReadinessHandler_NotReady(t *testing.T) {
	checker := &mockHealthChecker{
		readiness: false,
		status: map[string]string{
			"kafka":   "disconnected",
			"storage": "unavailable",
		},
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	handler := ReadinessHandler(checker, logger)
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != "not ready" {
		t.Errorf("status = %s, want not ready", response.Status)
	}
}

func TestHealthResponse(t *testing.T) {
	response := HealthResponse{
		Status:    "alive",
		Timestamp: "2024-01-01T00:00:00Z",
		Checks: map[string]string{
			"test": "ok",
		},
	}

	data, err := json.Marshal(response)
	if err != nil {
		t.Fatalf("failed to marshal response: %v", err)
	}

	var decoded HealthResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if decoded.Status != response.Status {
		t.Errorf("status = %s, want %s", decoded.Status, response.Status)
	}
}

type stubStore struct{}

func (stubStore) Exists(context.Context, string) (bool, error)                 { return false, nil }
func (stubStore) Put(context.Context, string, time.Time) error                 { return nil }
func (stubStore) PutIfAbsent(context.Context, string, time.Time) (bool, error) { return false, nil }
func (stubStore) Close() error                                                 { return nil }

type pingableStore struct {
	stubStore
	err error
}

func (s *pingableStore) Ping(context.Context) error { return s.err }

func TestStoreHealthChecker(t *testing.T) {
	tests := []struct {
		name       string
		store      dedup.Store
		ready      bool
		wantReady  bool
		wantStatus string
	}{
		{"store without ping", stubStore{}, true, true, "ok"},
		{"ping succeeds", &pingableStore{}, true, true, "ok"},
		{"ping fails", &pingableStore{err: errors.New("table not found")}, true, false, "table not found"},
		{"draining", &pingableStore{}, false, false, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewStoreHealthChecker(tt.store, time.Second)
			checker.SetReady(tt.ready)

			if !checker.Liveness() {
				t.Error("checker should start alive")
			}
			if got := checker.Readiness(context.Background()); got != tt.wantReady {
				t.Errorf("Readiness() = %v, want %v", got, tt.wantReady)
			}
			if got := checker.GetStatus()["dedup_store"]; got != tt.wantStatus {
				t.Errorf("dedup_store status = %q, want %q", got, tt.wantStatus)
			}
		})
	}
}

func TestStoreHealthChecker_ReadinessEndpoint(t *testing.T) {
	store := &pingableStore{err: errors.New("connection refused")}
	checker := NewStoreHealthChecker(store, 0)
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	handler := ReadinessHandler(checker, logger)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if response.Checks["dedup_store"] != "connection refused" {
		t.Errorf("checks = %v", response.Checks)
	}

	store.err = nil
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status after recovery = %d", w.Code)
	}
	if !checker.IsHealthy() {
		t.Error("checker should be healthy after recovery")
	}

	checker.SetAlive(false)
	if checker.Liveness() || checker.Readiness(context.Background()) {
		t.Error("dead checker must be neither alive nor ready")
	}
}
