package edge

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redsafetw/edge-core/internal/cache"
)

func newTestDispatcher(t *testing.T, broker *fakeBroker, timeout time.Duration) (*Dispatcher, *Correlator, *cache.CommandCache) {
	t.Helper()
	store := cache.NewMemoryStore()
	t.Cleanup(store.Close)
	commands := cache.NewCommandCache(store, time.Minute)
	registry := NewSubscriptionRegistry(broker, testLogger())
	correlator := NewCorrelator(registry, commands, timeout, testLogger())
	return NewDispatcher(broker, correlator, commands, testLogger()), correlator, commands
}

func TestDispatcher_Send(t *testing.T) {
	broker := newFakeBroker()
	d, correlator, commands := newTestDispatcher(t, broker, time.Minute)

	traceID, err := d.Send("RED-1A2B3C4D", "200", json.RawMessage(`{"relay":1}`))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if traceID == "" {
		t.Fatal("Send() returned empty trace id")
	}

	published := broker.publishedTo("RED-1A2B3C4D/cmd")
	if len(published) != 1 {
		t.Fatalf("commands published = %d, want 1", len(published))
	}
	var env CommandEnvelope
	if err := json.Unmarshal(published[0].payload, &env); err != nil {
		t.Fatalf("published envelope invalid: %v", err)
	}
	if env.TraceID != traceID {
		t.Errorf("envelope trace_id = %q, want %q", env.TraceID, traceID)
	}
	if env.Code != "200" {
		t.Errorf("envelope code = %q, want %q", env.Code, "200")
	}
	if string(env.Payload) != `{"relay":1}` {
		t.Errorf("envelope payload = %s", env.Payload)
	}

	rec, ok, err := commands.GetRequest(traceID)
	if err != nil || !ok {
		t.Fatalf("GetRequest() = %v, %v, want cached request", ok, err)
	}
	if rec.EdgeID != "RED-1A2B3C4D" || rec.Code != "200" {
		t.Errorf("request record = %+v", rec)
	}

	if got := correlator.Pending(); got != 1 {
		t.Errorf("Pending() = %d, want an armed wait", got)
	}

	correlator.Abort(traceID)
}

func TestDispatcher_SendInvalidEdgeID(t *testing.T) {
	broker := newFakeBroker()
	d, _, _ := newTestDispatcher(t, broker, time.Minute)

	traceID, err := d.Send("red-lowercase", "200", nil)
	if !errors.Is(err, ErrInvalidEdgeID) {
		t.Fatalf("Send() error = %v, want ErrInvalidEdgeID", err)
	}
	if traceID != "" {
		t.Errorf("Send() trace id = %q, want empty", traceID)
	}
	if len(broker.published) != 0 || broker.subscribeCount("red-lowercase/data") != 0 {
		t.Error("broker touched for invalid edge id")
	}
}

func TestDispatcher_SendDisconnected(t *testing.T) {
	broker := newFakeBroker()
	broker.disconnected = true
	d, _, _ := newTestDispatcher(t, broker, time.Minute)

	_, err := d.Send("RED-1A2B3C4D", "200", nil)
	if !errors.Is(err, ErrBrokerUnavailable) {
		t.Fatalf("Send() error = %v, want ErrBrokerUnavailable", err)
	}
}

func TestDispatcher_PublishFailureResolvesWait(t *testing.T) {
	broker := newFakeBroker()
	broker.publishErr = errBrokerDown
	d, correlator, commands := newTestDispatcher(t, broker, time.Minute)

	traceID, err := d.Send("RED-1A2B3C4D", "200", nil)
	if !errors.Is(err, ErrBrokerUnavailable) {
		t.Fatalf("Send() error = %v, want ErrBrokerUnavailable", err)
	}
	if traceID == "" {
		t.Fatal("Send() trace id empty, want the already-generated id")
	}

	if got := correlator.Pending(); got != 0 {
		t.Errorf("Pending() = %d after failed publish, want 0", got)
	}

	payload, ok, _ := commands.GetResponse(traceID)
	if !ok {
		t.Fatal("GetResponse() = false, want terminal value")
	}
	var terminal string
	if err := json.Unmarshal(payload, &terminal); err != nil || terminal != cache.NotFound {
		t.Errorf("cached payload = %s, want %q", payload, cache.NotFound)
	}
	if got := broker.unsubscribeCount("RED-1A2B3C4D/data"); got != 1 {
		t.Errorf("data topic unsubscribes = %d, want 1", got)
	}
}

func TestDispatcher_EndToEndReply(t *testing.T) {
	broker := newFakeBroker()
	d, _, commands := newTestDispatcher(t, broker, time.Second)

	traceID, err := d.Send("RED-1A2B3C4D", "200", nil)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	reply := []byte(`{"payload":{"trace_id":"` + traceID + `","door":"closed"}}`)
	broker.deliver("RED-1A2B3C4D/data", reply)

	payload, ok, err := commands.GetResponse(traceID)
	if err != nil || !ok {
		t.Fatalf("GetResponse() = %v, %v", ok, err)
	}
	if string(payload) != `{"trace_id":"`+traceID+`","door":"closed"}` {
		t.Errorf("cached payload = %s, want reply payload", payload)
	}
	if got := broker.unsubscribeCount("RED-1A2B3C4D/data"); got != 1 {
		t.Errorf("data topic unsubscribes = %d, want 1", got)
	}
}

func TestDispatcher_EndToEndTimeout(t *testing.T) {
	broker := newFakeBroker()
	d, _, commands := newTestDispatcher(t, broker, 30*time.Millisecond)

	traceID, err := d.Send("RED-1A2B3C4D", "200", nil)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	time.Sleep(80 * time.Millisecond)

	payload, ok, _ := commands.GetResponse(traceID)
	if !ok {
		t.Fatal("GetResponse() = false after timeout, want terminal value")
	}
	var terminal string
	if err := json.Unmarshal(payload, &terminal); err != nil || terminal != cache.NotFound {
		t.Errorf("cached payload = %s, want %q", payload, cache.NotFound)
	}
}
