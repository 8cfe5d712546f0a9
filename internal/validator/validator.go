// Package validator checks decoded event payloads before they are routed.
package validator

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/jittakal/kafeventrouter/internal/errors"
)

// Payload field names.
const (
	FieldEventUUID = "event_uuid"
	FieldEventName = "event_name"
	FieldCreatedAt = "created_at"
)

// Bounds of created_at, in Unix seconds, that map to years 1 through 9999.
const (
	minCreatedAt = -62135596800
	maxCreatedAt = 253402300799
)

// PayloadValidator validates the routing fields of a decoded payload.
// Payloads must be decoded with json.Decoder.UseNumber.
type PayloadValidator struct{}

// NewPayloadValidator creates a new payload validator.
func NewPayloadValidator() *PayloadValidator {
	return &PayloadValidator{}
}

// Validate checks the types of event_uuid, event_name and created_at.
// Absent and null fields are valid; defaults are applied by the router.
func (v *PayloadValidator) Validate(recordID string, payload map[string]any) error {
	switch val := payload[FieldEventUUID].(type) {
	case nil, string, json.Number:
	default:
		return fieldError(recordID, FieldEventUUID, fmt.Sprintf("unsupported type %T", val))
	}

	switch val := payload[FieldEventName].(type) {
	case nil, string:
	default:
		return fieldError(recordID, FieldEventName, fmt.Sprintf("must be a string, got %T", val))
	}

	switch val := payload[FieldCreatedAt].(type) {
	case nil:
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return fieldError(recordID, FieldCreatedAt, fmt.Sprintf("invalid number %q", val.String()))
		}
		if math.IsNaN(f) || f < minCreatedAt || f > maxCreatedAt {
			return fieldError(recordID, FieldCreatedAt, fmt.Sprintf("timestamp %s out of range", val.String()))
		}
	default:
		return fieldError(recordID, FieldCreatedAt, fmt.Sprintf("must be a unix timestamp, got %T", val))
	}

	return nil
}

func fieldError(recordID, field, reason string) error {
	return &errors.DecodeError{
		RecordID: recordID,
		Stage:    "field",
		Err:      fmt.Errorf("%s: %s", field, reason),
	}
}
