package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// Key namespaces for command hand-off entries.
const (
	requestKeyPrefix  = "cmd:req:"
	responseKeyPrefix = "cmd:res:"
)

// NotFound is the literal terminal value recorded when a command's reply
// never arrived. Callers receive it in place of a payload; it is not an error.
const NotFound = "notfound"

// RequestRecord is the cached form of a dispatched command.
//
// It records which edge the trace id belongs to, so a later poll or stream
// request can re-derive ownership without re-parsing the original call.
type RequestRecord struct {
	EdgeID  string          `json:"edge_id"`
	Code    string          `json:"code"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ResponseEnvelope is the cached form of a command's outcome. Payload is
// either the device's reply payload or the JSON string "notfound".
type ResponseEnvelope struct {
	Payload json.RawMessage `json:"payload"`
}

// CommandCache is the hand-off point between asynchronous reply correlation
// and the HTTP caller that retrieves the result later.
//
// The dispatching request returns its trace id immediately; a separate poll
// or stream request reads the response entry, which may happen before,
// during, or after the correlation resolves. The three observable states are
// "not yet present" (false from GetResponseRaw), the reply payload, and the
// literal "notfound".
type CommandCache struct {
	store Store
	ttl   time.Duration
}

// NewCommandCache creates a command cache over the given store.
// Both request and response entries use the same ttl.
func NewCommandCache(store Store, ttl time.Duration) *CommandCache {
	return &CommandCache{
		store: store,
		ttl:   ttl,
	}
}

// StoreRequest records a dispatched command under its trace id.
func (c *CommandCache) StoreRequest(traceID, edgeID, code string, payload json.RawMessage) error {
	rec := RequestRecord{
		EdgeID:  edgeID,
		Code:    code,
		Payload: payload,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding request record: %w", err)
	}
	if err := c.store.Set(requestKeyPrefix+traceID, data, c.ttl); err != nil {
		return fmt.Errorf("caching request %s: %w", traceID, err)
	}
	return nil
}

// GetRequest returns the cached request for a trace id, or false if it was
// never stored or has expired.
func (c *CommandCache) GetRequest(traceID string) (*RequestRecord, bool, error) {
	data, ok := c.store.Get(requestKeyPrefix + traceID)
	if !ok {
		return nil, false, nil
	}
	var rec RequestRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("decoding request record %s: %w", traceID, err)
	}
	return &rec, true, nil
}

// StoreResponse records a command's outcome under its trace id.
// A nil payload records the terminal "notfound" value.
func (c *CommandCache) StoreResponse(traceID string, payload json.RawMessage) error {
	env := ResponseEnvelope{Payload: payload}
	if payload == nil {
		env.Payload = json.RawMessage(`"` + NotFound + `"`)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding response envelope: %w", err)
	}
	if err := c.store.Set(responseKeyPrefix+traceID, data, c.ttl); err != nil {
		return fmt.Errorf("caching response %s: %w", traceID, err)
	}
	return nil
}

// GetResponseRaw returns the cached response envelope JSON for a trace id,
// or false if the correlation has not resolved (or the entry expired).
func (c *CommandCache) GetResponseRaw(traceID string) ([]byte, bool) {
	return c.store.Get(responseKeyPrefix + traceID)
}

// GetResponse returns the decoded response payload for a trace id.
// The payload is the literal JSON string "notfound" when the reply never arrived.
func (c *CommandCache) GetResponse(traceID string) (json.RawMessage, bool, error) {
	data, ok := c.GetResponseRaw(traceID)
	if !ok {
		return nil, false, nil
	}
	var env ResponseEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false, fmt.Errorf("decoding response envelope %s: %w", traceID, err)
	}
	return env.Payload, true, nil
}
