package edge

import (
	"encoding/json"
	"fmt"
)

// CodePing is the reserved keep-alive command code. Devices answer it on
// their data topic; the payload is omitted.
const CodePing = "100"

// CommandEnvelope is the wire form of a backend-to-device command,
// published as a single JSON object on the device's command topic.
//
// The device is expected to echo TraceID in its reply so the correlator can
// match the two.
type CommandEnvelope struct {
	TraceID string          `json:"trace_id"`
	Code    string          `json:"code"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode serializes the envelope for publishing.
func (e CommandEnvelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding command envelope: %w", err)
	}
	return data, nil
}

// ExtractTraceID pulls a correlation trace id out of an inbound data-topic
// message.
//
// Device firmware has never agreed on one reply shape, so the lookup is
// deliberately lenient: the id may appear as "trace_id" or "traceId",
// either at the top level of the message or inside a "payload" sub-object.
// The returned body is the "payload" sub-object when one exists, otherwise
// the whole message.
//
// Returns ok=false for non-JSON messages or messages carrying no trace id;
// those are routine telemetry, not errors.
func ExtractTraceID(message []byte) (traceID string, body json.RawMessage, ok bool) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(message, &top); err != nil {
		return "", nil, false
	}

	body = json.RawMessage(message)
	if payload, exists := top["payload"]; exists {
		body = payload
	}

	if id, found := traceFromObject(top); found {
		return id, body, true
	}

	if payload, exists := top["payload"]; exists {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(payload, &nested); err == nil {
			if id, found := traceFromObject(nested); found {
				return id, body, true
			}
		}
	}

	return "", nil, false
}

// traceFromObject checks both accepted spellings of the trace id field.
func traceFromObject(obj map[string]json.RawMessage) (string, bool) {
	for _, key := range []string{"trace_id", "traceId"} {
		raw, exists := obj[key]
		if !exists {
			continue
		}
		var id string
		if err := json.Unmarshal(raw, &id); err == nil && id != "" {
			return id, true
		}
	}
	return "", false
}
