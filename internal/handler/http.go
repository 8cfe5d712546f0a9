package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/jittakal/kafeventrouter/internal/errors"
	"github.com/jittakal/kafeventrouter/pkg/event"
)

type errorResponse struct {
	Error string `json:"error"`
}

// TransformHandler serves the transformation contract over HTTP. The request
// body is a transformation request, the response body a transformation
// response. Bodies larger than maxBodyBytes are rejected.
func TransformHandler(h *FirehoseHandler, maxBodyBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, h, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
			return
		}

		var req event.TransformRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := dec.Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, h, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
				return
			}
			writeJSON(w, h, http.StatusBadRequest, errorResponse{Error: "invalid transformation request: " + err.Error()})
			return
		}

		resp, err := h.Handle(r.Context(), req)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, apperrors.ErrStoreUnavailable) {
				status = http.StatusServiceUnavailable
			}
			writeJSON(w, h, status, errorResponse{Error: err.Error()})
			return
		}

		writeJSON(w, h, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, h *FirehoseHandler, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
