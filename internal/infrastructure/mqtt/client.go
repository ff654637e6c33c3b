package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/redsafetw/edge-core/internal/infrastructure/config"
)

// MessageHandler is invoked for each message received on a subscribed topic.
// Paho calls handlers on its own goroutines; a returned error is logged and
// does not affect message acknowledgment.
type MessageHandler func(topic string, payload []byte) error

// Logger is the minimal logging surface the client needs for handler
// failures. Satisfied by logging.Logger and *slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// topicSub records an active subscription so it can be replayed after the
// broker connection drops and paho reconnects.
type topicSub struct {
	qos     byte
	handler MessageHandler
}

// Client owns the single broker connection for the process.
//
// All methods are safe for concurrent use. Subscriptions registered through
// Subscribe survive reconnects; callers never resubscribe themselves.
type Client struct {
	paho pahomqtt.Client
	cfg  config.MQTTConfig

	subsMu sync.RWMutex
	subs   map[string]topicSub

	upMu sync.RWMutex
	up   bool

	hookMu       sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)

	logMu sync.RWMutex
	log   Logger
}

// Connect dials the broker described by cfg and returns a ready client.
//
// The connection carries a Last Will and Testament so peers observe an
// offline status even when the process dies without calling Close. After
// every (re)connect the client replays its subscription set and publishes
// a retained online status.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:  cfg,
		subs: make(map[string]topicSub),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) { c.onBrokerConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onBrokerDisconnect(err) })

	c.paho = pahomqtt.NewClient(opts)
	token := c.paho.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously and may not have fired yet.
	// Mark the client up here so IsConnected is true as soon as Connect
	// returns; the handler still handles replay and the status publish.
	c.upMu.Lock()
	c.up = true
	c.upMu.Unlock()

	return c, nil
}

// onBrokerConnect runs on initial connect and on every paho reconnect.
func (c *Client) onBrokerConnect() {
	c.upMu.Lock()
	c.up = true
	c.upMu.Unlock()

	c.resubscribeAll()
	c.announceOnline()

	c.hookMu.RLock()
	hook := c.onConnect
	c.hookMu.RUnlock()
	if hook != nil {
		hook()
	}
}

func (c *Client) onBrokerDisconnect(err error) {
	c.upMu.Lock()
	c.up = false
	c.upMu.Unlock()

	c.hookMu.RLock()
	hook := c.onDisconnect
	c.hookMu.RUnlock()
	if hook != nil {
		hook(err)
	}
}

// resubscribeAll replays every tracked subscription against the broker.
// Errors are ignored here; paho retries the connection and this runs again.
func (c *Client) resubscribeAll() {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()

	for topic, sub := range c.subs {
		c.paho.Subscribe(topic, sub.qos, c.dispatchTo(sub.handler))
	}
}

// announceOnline publishes the retained online status for this client,
// replacing any earlier offline payload (including a delivered LWT).
func (c *Client) announceOnline() {
	payload := buildOnlinePayload(c.cfg.Broker.ClientID)
	c.paho.Publish(systemStatusTopic, byte(c.cfg.QoS), true, payload)
}

// Close publishes a graceful offline status and disconnects. Closing an
// unconnected client is a no-op.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}

	if c.IsConnected() {
		payload := buildOfflinePayload(c.cfg.Broker.ClientID)
		token := c.paho.Publish(systemStatusTopic, byte(c.cfg.QoS), true, payload)
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.paho.Disconnect(defaultDisconnectQuiesce)

	c.upMu.Lock()
	c.up = false
	c.upMu.Unlock()

	return nil
}

// HealthCheck reports whether the broker connection is currently alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	c.upMu.RLock()
	defer c.upMu.RUnlock()
	return c.up && c.paho.IsConnected()
}

// SetOnConnect registers a hook invoked after every successful (re)connect.
func (c *Client) SetOnConnect(hook func()) {
	c.hookMu.Lock()
	c.onConnect = hook
	c.hookMu.Unlock()
}

// SetOnDisconnect registers a hook invoked when the connection drops. The
// error describes why the broker went away.
func (c *Client) SetOnDisconnect(hook func(err error)) {
	c.hookMu.Lock()
	c.onDisconnect = hook
	c.hookMu.Unlock()
}

// SetLogger attaches a logger for handler errors and recovered panics.
// Without one, handler failures are dropped silently.
func (c *Client) SetLogger(log Logger) {
	c.logMu.Lock()
	c.log = log
	c.logMu.Unlock()
}

func (c *Client) currentLogger() Logger {
	c.logMu.RLock()
	defer c.logMu.RUnlock()
	return c.log
}

// dispatchTo adapts a MessageHandler to paho's callback shape, recovering
// panics so a bad payload cannot take down the paho router goroutine.
func (c *Client) dispatchTo(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if log := c.currentLogger(); log != nil {
					log.Error("mqtt handler panicked", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if log := c.currentLogger(); log != nil {
				log.Warn("mqtt handler failed", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
