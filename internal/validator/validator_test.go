package validator

import (
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/jittakal/kafeventrouter/internal/errors"
)

func TestNewPayloadValidator(t *testing.T) {
	validator := NewPayloadValidator()
	if validator == nil {
		t.Fatal("expected non-nil validator")
	}
}

func TestPayloadValidator_ValidateSuccess(t *testing.T) {
	validator := NewPayloadValidator()

	tests := []struct {
		name    string
		payload map[string]any
	}{
		{
			name: "all fields",
			payload: map[string]any{
				"event_uuid": "u1",
				"event_name": "purchase:completed",
				"created_at": json.Number("1700000000"),
			},
		},
		{
			name:    "all fields absent",
			payload: map[string]any{},
		},
		{
			name: "null fields",
			payload: map[string]any{
				"event_uuid": nil,
				"event_name": nil,
				"created_at": nil,
			},
		},
		{
			name: "numeric uuid and fractional timestamp",
			payload: map[string]any{
				"event_uuid": json.Number("42"),
				"created_at": json.Number("1700000000.25"),
			},
		},
		{
			name: "negative timestamp",
			payload: map[string]any{
				"created_at": json.Number("-86400"),
			},
		},
		{
			name: "extra fields ignored",
			payload: map[string]any{
				"event_name": "a:b",
				"user":       map[string]any{"id": "x"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validator.Validate("rec-1", tt.payload); err != nil {
				t.Errorf("Validate() error = %v, want nil", err)
			}
		})
	}
}

func TestPayloadValidator_ValidateErrors(t *testing.T) {
	validator := NewPayloadValidator()

	tests := []struct {
		name    string
		payload map[string]any
	}{
		{
			name:    "event_name number",
			payload: map[string]any{"event_name": json.Number("1")},
		},
		{
			name:    "event_name object",
			payload: map[string]any{"event_name": map[string]any{}},
		},
		{
			name:    "event_uuid bool",
			payload: map[string]any{"event_uuid": true},
		},
		{
			name:    "created_at string",
			payload: map[string]any{"created_at": "1700000000"},
		},
		{
			name:    "created_at too large",
			payload: map[string]any{"created_at": json.Number("1e20")},
		},
		{
			name:    "created_at before year 1",
			payload: map[string]any{"created_at": json.Number("-99999999999")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate("rec-1", tt.payload)
			if err == nil {
				t.Fatal("Validate() error = nil, want error")
			}
			if !stderrors.Is(err, errors.ErrMalformedRecord) {
				t.Errorf("error %v does not match ErrMalformedRecord", err)
			}

			var de *errors.DecodeError
			if !stderrors.As(err, &de) {
				t.Fatalf("error type = %T, want *DecodeError", err)
			}
			if de.Stage != "field" || de.RecordID != "rec-1" {
				t.Errorf("DecodeError = %+v", de)
			}
		})
	}
}
