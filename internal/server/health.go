// Package server implements health check handlers.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jittakal/kafeventrouter/pkg/dedup"
)

const defaultPingTimeout = 2 * time.Second

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// LivenessHandler returns a handler for Kubernetes liveness probes.
// Liveness probes should only fail if the process needs to be restarted.
func LivenessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "alive"
		statusCode := http.StatusOK

		if !checker.Liveness() {
			status = "not alive"
			statusCode = http.StatusServiceUnavailable
		}

		response := HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)

		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Error("failed to encode liveness response", "error", err)
		}
	}
}

// ReadinessHandler returns a handler for Kubernetes readiness probes.
// Readiness probes indicate if the application can handle traffic.
func ReadinessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ready"
		statusCode := http.StatusOK

		if !checker.Readiness(r.Context()) {
			status = "not ready"
			statusCode = http.StatusServiceUnavailable
		}

		response := HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checker.GetStatus(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)

		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Error("failed to encode readiness response", "error", err)
		}
	}
}

// StoreHealthChecker reports readiness from the dedup store. Stores that
// cannot be pinged are assumed reachable.
type StoreHealthChecker struct {
	store       dedup.Store
	pingTimeout time.Duration
	alive       atomic.Bool
	ready       atomic.Bool
	lastErr     atomic.Value // string
}

// NewStoreHealthChecker creates a checker that starts alive and ready.
func NewStoreHealthChecker(store dedup.Store, pingTimeout time.Duration) *StoreHealthChecker {
	if pingTimeout <= 0 {
		pingTimeout = defaultPingTimeout
	}
	h := &StoreHealthChecker{store: store, pingTimeout: pingTimeout}
	h.alive.Store(true)
	h.ready.Store(true)
	h.lastErr.Store("")
	return h
}

// SetReady toggles readiness, e.g. while draining on shutdown.
func (h *StoreHealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// SetAlive toggles liveness.
func (h *StoreHealthChecker) SetAlive(alive bool) {
	h.alive.Store(alive)
}

func (h *StoreHealthChecker) Liveness() bool {
	return h.alive.Load()
}

func (h *StoreHealthChecker) Readiness(ctx context.Context) bool {
	if !h.alive.Load() || !h.ready.Load() {
		return false
	}

	pinger, ok := h.store.(dedup.Pinger)
	if !ok {
		h.lastErr.Store("")
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, h.pingTimeout)
	defer cancel()

	if err := pinger.Ping(ctx); err != nil {
		h.lastErr.Store(err.Error())
		return false
	}
	h.lastErr.Store("")
	return true
}

func (h *StoreHealthChecker) IsHealthy() bool {
	return h.alive.Load() && h.ready.Load() && h.lastErr.Load().(string) == ""
}

func (h *StoreHealthChecker) GetStatus() map[string]string {
	status := map[string]string{"dedup_store": "ok"}
	if msg := h.lastErr.Load().(string); msg != "" {
		status["dedup_store"] = msg
	}
	if !h.ready.Load() {
		status["router"] = "draining"
	}
	return status
}
