package edge

import (
	"fmt"
	"sync"

	"github.com/redsafetw/edge-core/internal/infrastructure/logging"
	"github.com/redsafetw/edge-core/internal/infrastructure/mqtt"
)

// MessageHandler processes an inbound broker message. Aliased from the MQTT
// layer so broker implementations and listeners share one signature.
type MessageHandler = mqtt.MessageHandler

// Broker is the slice of the MQTT client this package needs. Satisfied by
// *mqtt.Client; tests substitute a fake.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// subscriptionQoS is the delivery guarantee for all fleet topics.
// At-least-once: a duplicated heartbeat or reply is harmless, a dropped one
// is not.
const subscriptionQoS = 1

// subEntry is the bookkeeping for one physically subscribed topic.
type subEntry struct {
	refs         int
	nextListener int
	listeners    map[int]MessageHandler
}

// SubscriptionRegistry reference-counts topic subscriptions over a shared
// broker connection.
//
// The tracker, pinger, and correlator independently need a device's topics
// for overlapping windows of time. Each caller acquires the topic and holds
// the returned release func; the physical broker subscribe happens only on
// the 0→1 transition and the physical unsubscribe only on 1→0, so no caller
// can tear a topic down underneath another.
//
// Count transitions and the physical subscribe/unsubscribe happen under one
// mutex, never as separate check-then-act steps. Inbound messages fan out
// to every listener registered for the topic.
type SubscriptionRegistry struct {
	broker Broker
	logger *logging.Logger

	mu     sync.Mutex
	topics map[string]*subEntry
}

// NewSubscriptionRegistry creates an empty registry over the given broker.
func NewSubscriptionRegistry(broker Broker, logger *logging.Logger) *SubscriptionRegistry {
	return &SubscriptionRegistry{
		broker: broker,
		logger: logger,
		topics: make(map[string]*subEntry),
	}
}

// Acquire takes a reference on topic and registers handler as a listener
// for its messages. A nil handler takes the reference without listening.
//
// The returned release func drops the reference and the listener; it is
// idempotent, and calling it after the count already reached zero is a
// no-op. The physical broker subscribe happens only when this acquire is
// the first.
//
// Returns ErrBrokerUnavailable (wrapped) when a first acquire cannot
// establish the physical subscription; no reference is retained in that
// case.
func (r *SubscriptionRegistry) Acquire(topic string, handler MessageHandler) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.topics[topic]
	if !exists {
		entry = &subEntry{listeners: make(map[int]MessageHandler)}
		if err := r.broker.Subscribe(topic, subscriptionQoS, r.fanOut(topic)); err != nil {
			return nil, fmt.Errorf("%w: subscribing %s: %v", ErrBrokerUnavailable, topic, err)
		}
		r.topics[topic] = entry
		r.logger.Debug("topic subscribed", "topic", topic)
	}

	entry.refs++
	token := -1
	if handler != nil {
		token = entry.nextListener
		entry.nextListener++
		entry.listeners[token] = handler
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			r.release(topic, token)
		})
	}
	return release, nil
}

// release drops one reference, removing the listener and, on the last
// reference, the physical subscription.
func (r *SubscriptionRegistry) release(topic string, token int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.topics[topic]
	if !exists {
		return
	}
	if token >= 0 {
		delete(entry.listeners, token)
	}
	entry.refs--
	if entry.refs > 0 {
		return
	}

	delete(r.topics, topic)
	if err := r.broker.Unsubscribe(topic); err != nil {
		r.logger.Warn("topic unsubscribe failed", "topic", topic, "error", err)
		return
	}
	r.logger.Debug("topic unsubscribed", "topic", topic)
}

// fanOut builds the single physical handler for a topic, dispatching each
// message to a snapshot of the current listeners.
func (r *SubscriptionRegistry) fanOut(topic string) MessageHandler {
	return func(_ string, payload []byte) error {
		r.mu.Lock()
		entry, exists := r.topics[topic]
		var handlers []MessageHandler
		if exists {
			handlers = make([]MessageHandler, 0, len(entry.listeners))
			for _, h := range entry.listeners {
				handlers = append(handlers, h)
			}
		}
		r.mu.Unlock()

		for _, h := range handlers {
			if err := h(topic, payload); err != nil {
				r.logger.Warn("message listener failed", "topic", topic, "error", err)
			}
		}
		return nil
	}
}

// Count returns the current reference count for a topic. Zero means no
// physical subscription exists.
func (r *SubscriptionRegistry) Count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.topics[topic]
	if !exists {
		return 0
	}
	return entry.refs
}
