package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/config"
)

const (
	connectTimeout    = 10 * time.Second
	operationTimeout  = 5 * time.Second
	keepAlive         = 30 * time.Second
	disconnectQuiesce = 500 // ms

	// maxPayloadSize bounds a single publish.
	maxPayloadSize = 256 * 1024
)

// Logger is the logging surface the client needs.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler receives one message. Handlers run one at a time in
// arrival order on paho's router goroutine. A returned error is logged.
type MessageHandler func(topic string, payload []byte) error

// Client is a paho connection bound to one topic namespace. Subscriptions
// survive reconnects, and the retained presence document on
// Topics.SystemStatus tracks whether the daemon is up.
type Client struct {
	paho   pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	mu           sync.Mutex
	subs         map[string]subscription
	logger       Logger
	onConnect    func()
	onDisconnect func(error)
	closed       bool
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Connect dials the broker and blocks until the first session is up.
// Later connection losses are retried by paho.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:    cfg,
		topics: NewTopics(cfg.TopicPrefix),
		subs:   make(map[string]subscription),
	}

	c.paho = pahomqtt.NewClient(c.options())
	token := c.paho.Connect()
	if !token.WaitTimeout(connectTimeout) {
		c.paho.Disconnect(0)
		return nil, fmt.Errorf("%w: %w after %v", ErrConnectionFailed, ErrTimeout, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return c, nil
}

func (c *Client) options() *pahomqtt.ClientOptions {
	scheme := "tcp"
	if c.cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, c.cfg.Broker.Host, c.cfg.Broker.Port)).
		SetClientID(c.cfg.Broker.ClientID).
		SetCleanSession(true).
		// The tree relies on an object's value updates reaching the loop
		// before its removal.
		SetOrderMatters(true).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive).
		SetMaxReconnectInterval(time.Duration(c.cfg.Reconnect.MaxDelay) * time.Second).
		SetWill(c.topics.SystemStatus(),
			string(presencePayload(PresenceLost, c.cfg.Broker.ClientID, time.Now())), 1, true).
		SetOnConnectHandler(func(pahomqtt.Client) { c.connected() }).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.lost(err) }).
		SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
			c.log().Warn("MQTT reconnecting", "broker", c.cfg.Broker.Host)
		})

	if c.cfg.Auth.Username != "" {
		opts.SetUsername(c.cfg.Auth.Username).SetPassword(c.cfg.Auth.Password)
	}
	if c.cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

// connected runs on every (re)connect: it restores subscriptions and
// announces presence before telling the caller.
func (c *Client) connected() {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for topic, s := range c.subs {
		subs[topic] = s
	}
	cb := c.onConnect
	c.mu.Unlock()

	for topic, s := range subs {
		c.paho.Subscribe(topic, s.qos, c.route(s.handler))
	}
	c.paho.Publish(c.topics.SystemStatus(), 1, true,
		presencePayload(PresenceOnline, c.cfg.Broker.ClientID, time.Now()))

	if cb != nil {
		cb()
	}
}

func (c *Client) lost(err error) {
	c.mu.Lock()
	cb := c.onDisconnect
	c.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// Close publishes the offline presence and disconnects.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.paho.IsConnectionOpen() {
		c.paho.Publish(c.topics.SystemStatus(), 1, true,
			presencePayload(PresenceOffline, c.cfg.Broker.ClientID, time.Now())).
			WaitTimeout(operationTimeout)
	}
	c.paho.Disconnect(disconnectQuiesce)
	return nil
}

// IsConnected reports whether a broker session is currently open.
func (c *Client) IsConnected() bool {
	if c.paho == nil {
		return false
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	return !closed && c.paho.IsConnectionOpen()
}

// HealthCheck fails when the session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Topics returns the namespace this client publishes and subscribes in.
func (c *Client) Topics() Topics {
	return c.topics
}

// SetLogger sets the logger for handler errors and reconnects.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

// SetOnConnect registers fn for every successful (re)connect.
func (c *Client) SetOnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// SetOnDisconnect registers fn for every connection loss.
func (c *Client) SetOnDisconnect(fn func(error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.logger == nil {
		return discard{}
	}
	return c.logger
}

type discard struct{}

func (discard) Error(string, ...any) {}
func (discard) Warn(string, ...any)  {}
