package edge

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redsafetw/edge-core/internal/cache"
	"github.com/redsafetw/edge-core/internal/infrastructure/logging"
)

// TelemetryWriter receives fleet liveness events for long-term storage.
// Implementations must not block; a nil writer disables telemetry.
type TelemetryWriter interface {
	WriteHeartbeat(edgeID string, receivedAt time.Time)
	WriteWatchdogTimeout(edgeID string, firedAt time.Time)
}

// edgeState is the per-device bookkeeping: one watchdog timer, one pinger
// goroutine, and the two topic references the device holds while tracked.
// Owned by the Tracker mutex as a unit, so a timeout can never observe a
// half-registered device.
type edgeState struct {
	watchdog      *time.Timer
	stopPinger    chan struct{}
	releaseStatus func()
	releaseData   func()
}

// Tracker maintains per-device liveness via a heartbeat watchdog and a
// keep-alive pinger.
//
// Register arms a watchdog that each inbound status-topic heartbeat
// re-arms. A device that stays quiet past the watchdog timeout is dropped:
// its topic references are released, its pinger stopped, and its
// bookkeeping removed. It resumes tracking only by registering again.
// Offline declaration is therefore bound to the watchdog window, not a
// single missed heartbeat, which keeps status from flapping on one lost
// message.
//
// Each heartbeat is also written to the heartbeat cache under its own TTL,
// so "is this device online" reads expire naturally even if the process
// carrying the watchdog dies.
type Tracker struct {
	registry   *SubscriptionRegistry
	broker     Broker
	heartbeats *cache.HeartbeatCache
	telemetry  TelemetryWriter
	logger     *logging.Logger

	watchdogTimeout time.Duration
	pingInterval    time.Duration

	mu     sync.Mutex
	edges  map[string]*edgeState
	closed bool
}

// NewTracker creates a tracker. telemetry may be nil.
func NewTracker(registry *SubscriptionRegistry, broker Broker, heartbeats *cache.HeartbeatCache, telemetry TelemetryWriter, watchdogTimeout, pingInterval time.Duration, logger *logging.Logger) *Tracker {
	return &Tracker{
		registry:        registry,
		broker:          broker,
		heartbeats:      heartbeats,
		telemetry:       telemetry,
		logger:          logger,
		watchdogTimeout: watchdogTimeout,
		pingInterval:    pingInterval,
		edges:           make(map[string]*edgeState),
	}
}

// Register begins liveness tracking for an edge device.
//
// Acquires the device's status and data topics, sends an immediate
// keep-alive ping, arms the watchdog, and starts the recurring pinger.
// Registering an already-tracked device is a no-op, so concurrent
// registrations cannot stack duplicate timers or subscriptions.
//
// Returns ErrInvalidEdgeID for identifiers outside the fleet naming scheme
// (checked before any broker interaction) and ErrBrokerUnavailable when a
// topic cannot be subscribed.
func (t *Tracker) Register(edgeID string) error {
	if err := ValidateEdgeID(edgeID); err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrBrokerUnavailable
	}
	if _, tracked := t.edges[edgeID]; tracked {
		t.mu.Unlock()
		return nil
	}

	releaseStatus, err := t.registry.Acquire(StatusTopic(edgeID), t.heartbeatHandler(edgeID))
	if err != nil {
		t.mu.Unlock()
		return err
	}
	releaseData, err := t.registry.Acquire(DataTopic(edgeID), nil)
	if err != nil {
		releaseStatus()
		t.mu.Unlock()
		return err
	}

	st := &edgeState{
		stopPinger:    make(chan struct{}),
		releaseStatus: releaseStatus,
		releaseData:   releaseData,
	}
	st.watchdog = time.AfterFunc(t.watchdogTimeout, func() {
		t.timeout(edgeID)
	})
	t.edges[edgeID] = st
	t.mu.Unlock()

	t.sendPing(edgeID)
	go t.runPinger(edgeID, st.stopPinger)

	t.logger.Info("edge registered", "edge_id", edgeID)
	return nil
}

// Tracked reports whether the device currently has an armed watchdog.
func (t *Tracker) Tracked(edgeID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, tracked := t.edges[edgeID]
	return tracked
}

// Status returns the latest cached heartbeat for a device, or false when
// none is stored (never seen, or expired).
func (t *Tracker) Status(edgeID string) (*cache.HeartbeatRecord, bool, error) {
	return t.heartbeats.Get(edgeID)
}

// Close stops tracking every device: watchdogs cancelled, pingers stopped,
// topic references released. The tracker rejects registrations afterwards.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	states := t.edges
	t.edges = make(map[string]*edgeState)
	t.mu.Unlock()

	for edgeID, st := range states {
		st.watchdog.Stop()
		close(st.stopPinger)
		st.releaseStatus()
		st.releaseData()
		t.logger.Debug("edge tracking stopped", "edge_id", edgeID)
	}
}

// heartbeatHandler builds the status-topic listener for one device.
func (t *Tracker) heartbeatHandler(edgeID string) MessageHandler {
	return func(_ string, payload []byte) error {
		t.Heartbeat(edgeID, payload)
		return nil
	}
}

// Heartbeat records an observed heartbeat and re-arms the device's
// watchdog.
//
// Latest wins: the cached record is overwritten on every call. A heartbeat
// for a device that is no longer tracked (it timed out, or the message
// raced a teardown) still updates the cache but does not revive tracking;
// that requires a fresh Register.
func (t *Tracker) Heartbeat(edgeID string, payload []byte) {
	if err := t.heartbeats.Store(edgeID, payload); err != nil {
		t.logger.Error("caching heartbeat failed", "edge_id", edgeID, "error", err)
	}
	if t.telemetry != nil {
		t.telemetry.WriteHeartbeat(edgeID, time.Now().UTC())
	}

	t.mu.Lock()
	st, tracked := t.edges[edgeID]
	if tracked {
		st.watchdog.Reset(t.watchdogTimeout)
	}
	t.mu.Unlock()

	if !tracked {
		t.logger.Debug("heartbeat from untracked edge", "edge_id", edgeID)
		return
	}
	t.logger.Debug("watchdog re-armed", "edge_id", edgeID)
}

// timeout is the watchdog expiry path: the device went quiet for a full
// watchdog window, so drop it.
func (t *Tracker) timeout(edgeID string) {
	t.mu.Lock()
	st, tracked := t.edges[edgeID]
	if tracked {
		delete(t.edges, edgeID)
	}
	t.mu.Unlock()

	if !tracked {
		return
	}

	close(st.stopPinger)
	st.releaseStatus()
	st.releaseData()

	if t.telemetry != nil {
		t.telemetry.WriteWatchdogTimeout(edgeID, time.Now().UTC())
	}
	t.logger.Warn("edge watchdog timed out", "edge_id", edgeID, "timeout", t.watchdogTimeout)
}

// runPinger publishes a keep-alive ping every pingInterval until stopped.
func (t *Tracker) runPinger(edgeID string, stop <-chan struct{}) {
	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.sendPing(edgeID)
		case <-stop:
			return
		}
	}
}

// sendPing publishes one keep-alive command. Fire and forget: the reply, if
// any, lands as an ordinary data-topic message, and a publish failure is
// the watchdog's problem to surface.
func (t *Tracker) sendPing(edgeID string) {
	env := CommandEnvelope{
		TraceID: uuid.NewString(),
		Code:    CodePing,
	}
	data, err := env.Encode()
	if err != nil {
		t.logger.Error("encoding ping failed", "edge_id", edgeID, "error", err)
		return
	}
	if err := t.broker.Publish(CommandTopic(edgeID), data, subscriptionQoS, false); err != nil {
		t.logger.Warn("ping publish failed", "edge_id", edgeID, "error", err)
		return
	}
	t.logger.Debug("ping sent", "edge_id", edgeID)
}
