package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// heartbeatKeyPrefix namespaces heartbeat entries per edge id.
const heartbeatKeyPrefix = "edge:heartbeat:"

// HeartbeatRecord is the latest observed heartbeat for an edge device.
//
// Exactly one record exists per edge at any time (latest wins). The entry's
// TTL is what makes the "is online" view self-healing: a crashed tracker can
// never leave a device reading as online forever.
type HeartbeatRecord struct {
	EdgeID string `json:"edge_id"`

	// Payload is the parsed heartbeat body when the device sent valid JSON,
	// or an object {"raw": "..."} wrapping the original bytes otherwise.
	Payload json.RawMessage `json:"payload"`

	ReceivedAt time.Time `json:"received_at"`
}

// HeartbeatCache stores the latest heartbeat per edge with a short TTL.
type HeartbeatCache struct {
	store Store
	ttl   time.Duration
}

// NewHeartbeatCache creates a heartbeat cache over the given store.
func NewHeartbeatCache(store Store, ttl time.Duration) *HeartbeatCache {
	return &HeartbeatCache{
		store: store,
		ttl:   ttl,
	}
}

// Store records the latest heartbeat for an edge, overwriting any previous one.
//
// Devices occasionally send non-JSON payloads; those are preserved wrapped in
// a {"raw": ...} object rather than rejected, since a malformed heartbeat is
// still evidence of liveness.
func (c *HeartbeatCache) Store(edgeID string, payload []byte) error {
	rec := HeartbeatRecord{
		EdgeID:     edgeID,
		Payload:    normalizeHeartbeatPayload(payload),
		ReceivedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding heartbeat record: %w", err)
	}
	if err := c.store.Set(heartbeatKeyPrefix+edgeID, data, c.ttl); err != nil {
		return fmt.Errorf("caching heartbeat for %s: %w", edgeID, err)
	}
	return nil
}

// Get returns the latest heartbeat for an edge, or false if none is stored
// or the stored one has expired.
func (c *HeartbeatCache) Get(edgeID string) (*HeartbeatRecord, bool, error) {
	data, ok := c.store.Get(heartbeatKeyPrefix + edgeID)
	if !ok {
		return nil, false, nil
	}
	var rec HeartbeatRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("decoding heartbeat record for %s: %w", edgeID, err)
	}
	return &rec, true, nil
}

// normalizeHeartbeatPayload returns the payload as-is when it is a JSON
// object, and wraps anything else in {"raw": "<string>"}.
func normalizeHeartbeatPayload(payload []byte) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err == nil {
		return json.RawMessage(payload)
	}
	wrapped, err := json.Marshal(map[string]string{"raw": string(payload)})
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(wrapped)
}
