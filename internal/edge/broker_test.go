package edge

import (
	"errors"
	"sync"

	"github.com/redsafetw/edge-core/internal/infrastructure/config"
	"github.com/redsafetw/edge-core/internal/infrastructure/logging"
)

// fakeBroker implements Broker in memory, recording physical subscribe,
// unsubscribe, and publish activity and letting tests inject inbound
// messages.
type fakeBroker struct {
	mu           sync.Mutex
	disconnected bool
	subscribeErr error
	publishErr   error

	handlers     map[string]MessageHandler
	subscribes   map[string]int
	unsubscribes map[string]int
	published    []publishedMessage
}

type publishedMessage struct {
	topic   string
	payload []byte
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		handlers:     make(map[string]MessageHandler),
		subscribes:   make(map[string]int),
		unsubscribes: make(map[string]int),
	}
}

func (b *fakeBroker) Publish(topic string, payload []byte, _ byte, _ bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	b.published = append(b.published, publishedMessage{topic: topic, payload: buf})
	return nil
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribeErr != nil {
		return b.subscribeErr
	}
	b.handlers[topic] = handler
	b.subscribes[topic]++
	return nil
}

func (b *fakeBroker) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, topic)
	b.unsubscribes[topic]++
	return nil
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.disconnected
}

// deliver injects an inbound message, invoking the topic's physical handler
// the way the broker client's router would.
func (b *fakeBroker) deliver(topic string, payload []byte) {
	b.mu.Lock()
	handler := b.handlers[topic]
	b.mu.Unlock()
	if handler != nil {
		handler(topic, payload)
	}
}

func (b *fakeBroker) subscribeCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribes[topic]
}

func (b *fakeBroker) unsubscribeCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unsubscribes[topic]
}

func (b *fakeBroker) publishedTo(topic string) []publishedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []publishedMessage
	for _, m := range b.published {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

var errBrokerDown = errors.New("broker down")

// testLogger returns a logger quiet enough for test output.
func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{
		Level:  "error",
		Format: "text",
		Output: "stderr",
	}, "test")
}
