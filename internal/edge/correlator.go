package edge

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/redsafetw/edge-core/internal/cache"
	"github.com/redsafetw/edge-core/internal/infrastructure/logging"
)

// pendingWait is one outstanding correlation: a trace id waiting for a
// matching data-topic message or a deadline, whichever comes first.
type pendingWait struct {
	edgeID  string
	timer   *time.Timer
	release func()
}

// Correlator matches inbound data-topic messages to outstanding command
// trace ids.
//
// Each wait holds one reference on the device's data topic and a deadline
// timer. Resolution happens exactly once per trace id: the first of the
// matching reply or the deadline wins, the loser finds the entry already
// gone. Both paths write the outcome into the command cache and release
// the topic reference. A deadline expiry records the terminal "notfound"
// value, not an error; an edge that never answers is an expected outcome.
type Correlator struct {
	registry *SubscriptionRegistry
	cache    *cache.CommandCache
	logger   *logging.Logger
	timeout  time.Duration

	mu      sync.Mutex
	pending map[string]*pendingWait
}

// NewCorrelator creates a correlator resolving waits within timeout.
func NewCorrelator(registry *SubscriptionRegistry, commandCache *cache.CommandCache, timeout time.Duration, logger *logging.Logger) *Correlator {
	return &Correlator{
		registry: registry,
		cache:    commandCache,
		logger:   logger,
		timeout:  timeout,
		pending:  make(map[string]*pendingWait),
	}
}

// Await starts a correlation wait for traceID on the edge's data topic.
//
// Call this before publishing the command, so a device that answers faster
// than the publish round trip cannot slip past the listener. The wait ends
// on the first matching reply or after the configured timeout, writing the
// outcome into the command cache either way.
//
// Returns ErrDuplicateTrace if a wait for traceID already exists, and
// ErrBrokerUnavailable if the data topic cannot be subscribed.
func (c *Correlator) Await(edgeID, traceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pending[traceID]; exists {
		return ErrDuplicateTrace
	}

	w := &pendingWait{edgeID: edgeID}
	c.pending[traceID] = w

	release, err := c.registry.Acquire(DataTopic(edgeID), c.matchHandler(traceID))
	if err != nil {
		delete(c.pending, traceID)
		return err
	}
	w.release = release
	w.timer = time.AfterFunc(c.timeout, func() {
		c.expire(traceID)
	})

	c.logger.Debug("correlation wait started", "edge_id", edgeID, "trace_id", traceID)
	return nil
}

// Abort resolves an outstanding wait to "notfound" immediately. Used when
// the command publish fails after the wait was already armed, so the entry
// does not linger until its deadline.
func (c *Correlator) Abort(traceID string) {
	c.resolve(traceID, nil)
}

// Pending returns the number of outstanding waits.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// matchHandler builds the data-topic listener for one trace id. Messages
// carrying a different or no trace id are other devices' business and are
// ignored without logging.
func (c *Correlator) matchHandler(traceID string) MessageHandler {
	return func(_ string, payload []byte) error {
		id, body, ok := ExtractTraceID(payload)
		if !ok || id != traceID {
			return nil
		}
		c.resolve(traceID, body)
		return nil
	}
}

// expire is the deadline path: resolve to "notfound".
func (c *Correlator) expire(traceID string) {
	c.resolve(traceID, nil)
}

// resolve completes a wait exactly once. A nil payload records the terminal
// "notfound" value. Losing racers (late reply after timeout, duplicate
// replies) find the entry already removed and return silently.
func (c *Correlator) resolve(traceID string, payload json.RawMessage) {
	c.mu.Lock()
	w, exists := c.pending[traceID]
	if exists {
		delete(c.pending, traceID)
	}
	c.mu.Unlock()

	if !exists {
		return
	}

	if w.timer != nil {
		w.timer.Stop()
	}
	if err := c.cache.StoreResponse(traceID, payload); err != nil {
		c.logger.Error("caching command response failed", "trace_id", traceID, "error", err)
	}
	w.release()

	if payload == nil {
		c.logger.Info("correlation timed out", "edge_id", w.edgeID, "trace_id", traceID)
		return
	}
	c.logger.Debug("correlation resolved", "edge_id", w.edgeID, "trace_id", traceID)
}
