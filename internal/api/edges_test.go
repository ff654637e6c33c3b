package api

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestRegisterHeartbeat(t *testing.T) {
	h := newTestHarness(t)
	h.bind(t, "user-1", "RED-1A2B3C4D")

	rec := h.do(t, http.MethodPost, "/api/v1/edges/RED-1A2B3C4D/heartbeat", "user-1", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body %s", rec.Code, rec.Body)
	}

	if !h.broker.subscribed("RED-1A2B3C4D/status") {
		t.Error("status topic not subscribed")
	}
	if !h.broker.subscribed("RED-1A2B3C4D/data") {
		t.Error("data topic not subscribed")
	}
	if got := h.broker.published("RED-1A2B3C4D/cmd"); got != 1 {
		t.Errorf("immediate pings = %d, want 1", got)
	}
}

func TestRegisterHeartbeat_InvalidEdgeID(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/edges/not-an-edge/heartbeat", "user-1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRegisterHeartbeat_NotBound(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/edges/RED-1A2B3C4D/heartbeat", "user-1", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if h.broker.subscribed("RED-1A2B3C4D/status") {
		t.Error("broker touched for unbound caller")
	}
}

func TestEdgeStatus(t *testing.T) {
	h := newTestHarness(t)
	h.bind(t, "user-1", "RED-1A2B3C4D")

	// Before any heartbeat: offline
	rec := h.do(t, http.MethodGet, "/api/v1/edges/RED-1A2B3C4D/status", "user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["online"] != false {
		t.Errorf("online = %v before heartbeat, want false", resp["online"])
	}

	// Register and deliver a heartbeat
	h.do(t, http.MethodPost, "/api/v1/edges/RED-1A2B3C4D/heartbeat", "user-1", nil)
	h.broker.deliver("RED-1A2B3C4D/status", []byte(`{"uptime":12}`))

	rec = h.do(t, http.MethodGet, "/api/v1/edges/RED-1A2B3C4D/status", "user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp = map[string]any{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["online"] != true {
		t.Errorf("online = %v after heartbeat, want true", resp["online"])
	}
	if resp["tracked"] != true {
		t.Errorf("tracked = %v, want true", resp["tracked"])
	}
	hb, ok := resp["heartbeat"].(map[string]any)
	if !ok || hb["uptime"] != float64(12) {
		t.Errorf("heartbeat = %v, want uptime 12", resp["heartbeat"])
	}
}

func TestEdgeStatus_NotBound(t *testing.T) {
	h := newTestHarness(t)
	h.bind(t, "user-1", "RED-1A2B3C4D")

	rec := h.do(t, http.MethodGet, "/api/v1/edges/RED-1A2B3C4D/status", "user-2", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}
