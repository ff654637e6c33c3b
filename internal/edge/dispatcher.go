package edge

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/redsafetw/edge-core/internal/cache"
	"github.com/redsafetw/edge-core/internal/infrastructure/logging"
)

// Dispatcher publishes command envelopes to edge devices and wires up the
// correlation machinery for their replies.
//
// Authorization (is this caller bound to this device) is the API layer's
// job; by the time Send runs, the caller is trusted.
type Dispatcher struct {
	broker     Broker
	correlator *Correlator
	cache      *cache.CommandCache
	logger     *logging.Logger
}

// NewDispatcher creates a dispatcher over the given broker and correlator.
func NewDispatcher(broker Broker, correlator *Correlator, commandCache *cache.CommandCache, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{
		broker:     broker,
		correlator: correlator,
		cache:      commandCache,
		logger:     logger,
	}
}

// Send publishes a command to an edge device and returns the trace id the
// caller can later poll the result under.
//
// Sequence: validate, generate the trace id, cache the request, arm the
// correlation wait, then publish. The wait is armed before the publish so a
// reply arriving faster than the publish acknowledgement is still caught.
//
// A publish failure still returns the already-generated trace id alongside
// the error, and the armed wait is resolved to "notfound" immediately
// rather than left to its deadline. A request-cache write failure is logged
// and ignored; the cache is a hand-off convenience, not the source of truth
// for the in-flight correlation.
func (d *Dispatcher) Send(edgeID, code string, payload json.RawMessage) (string, error) {
	if err := ValidateEdgeID(edgeID); err != nil {
		return "", err
	}
	if !d.broker.IsConnected() {
		return "", fmt.Errorf("%w: not connected", ErrBrokerUnavailable)
	}

	traceID := uuid.NewString()

	if err := d.cache.StoreRequest(traceID, edgeID, code, payload); err != nil {
		d.logger.Warn("caching command request failed", "trace_id", traceID, "error", err)
	}

	if err := d.correlator.Await(edgeID, traceID); err != nil {
		return "", fmt.Errorf("arming correlation for %s: %w", traceID, err)
	}

	env := CommandEnvelope{
		TraceID: traceID,
		Code:    code,
		Payload: payload,
	}
	data, err := env.Encode()
	if err != nil {
		d.correlator.Abort(traceID)
		return traceID, err
	}

	if err := d.broker.Publish(CommandTopic(edgeID), data, subscriptionQoS, false); err != nil {
		d.correlator.Abort(traceID)
		return traceID, fmt.Errorf("%w: publishing command %s: %v", ErrBrokerUnavailable, traceID, err)
	}

	d.logger.Info("command dispatched", "edge_id", edgeID, "code", code, "trace_id", traceID)
	return traceID, nil
}
