package router

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"
	"unicode/utf8"

	"github.com/jittakal/kafeventrouter/internal/errors"
	"github.com/jittakal/kafeventrouter/internal/validator"
	"github.com/jittakal/kafeventrouter/pkg/event"
)

// decodeData turns a base64 transport payload into the raw bytes and the
// decoded JSON object. Numbers are kept as json.Number.
func decodeData(recordID, data string) ([]byte, map[string]any, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, nil, &errors.DecodeError{RecordID: recordID, Stage: "base64", Err: err}
	}

	if !utf8.Valid(raw) {
		return raw, nil, &errors.DecodeError{RecordID: recordID, Stage: "utf8", Err: fmt.Errorf("payload is not valid UTF-8")}
	}

	payload, err := decodeObject(raw)
	if err != nil {
		return raw, nil, &errors.DecodeError{RecordID: recordID, Stage: "json", Err: err}
	}
	return raw, payload, nil
}

func decodeObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, fmt.Errorf("payload is not a JSON object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON object")
	}
	return payload, nil
}

// extractEvent applies the field defaults to a validated payload.
func extractEvent(payload map[string]any) *event.Event {
	ev := &event.Event{CreatedAt: "0", CreatedDateTime: time.Unix(0, 0).UTC()}

	switch v := payload[validator.FieldEventUUID].(type) {
	case string:
		ev.UUID = v
	case json.Number:
		ev.UUID = v.String()
	}

	if name, ok := payload[validator.FieldEventName].(string); ok {
		ev.Name = name
	}

	if n, ok := payload[validator.FieldCreatedAt].(json.Number); ok {
		ev.CreatedAt = n.String()
		ev.CreatedDateTime = unixTime(n)
	}

	return ev
}

func unixTime(n json.Number) time.Time {
	if i, err := n.Int64(); err == nil {
		return time.Unix(i, 0).UTC()
	}
	f, _ := n.Float64()
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// encodeObject marshals payload without HTML escaping or a trailing newline.
func encodeObject(payload map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ParseEvent decodes a payload already written to a partition and derives its
// event fields with the same validation and defaults the router applies.
// Type and Subtype stay empty for error partition events.
func ParseEvent(raw []byte) (*event.Event, error) {
	payload, err := decodeObject(raw)
	if err != nil {
		return nil, &errors.DecodeError{Stage: "json", Err: err}
	}
	if err := validator.NewPayloadValidator().Validate("", payload); err != nil {
		return nil, err
	}

	ev := extractEvent(payload)
	if !ev.IsError() {
		ev.Type, ev.Subtype = SplitEventName(ev.Name)
	}
	return ev, nil
}
