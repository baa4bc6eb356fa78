// Package transport owns the MQTT session: a persistent (non-clean)
// session with automatic reconnect, the command-topic subscription, and
// acknowledged publishes to the telemetry topic. The rest of the service
// sees only Publish and Messages.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/blobcode/novaGround/internal/config"
)

const (
	reconnectMinInterval = 2 * time.Second
	reconnectMaxInterval = 30 * time.Second
	inboundBuffer        = 64
	disconnectQuiesceMS  = 250
)

// Message is one inbound command-topic message. The payload is opaque to
// the transport.
type Message struct {
	Topic   string
	Payload []byte
}

// Client wraps the paho client with the session contract the relay needs.
type Client struct {
	cfg     *config.Config
	client  mqtt.Client
	inbound chan Message

	connected      atomic.Bool
	published      atomic.Uint64
	publishErrors  atomic.Uint64
	received       atomic.Uint64
	droppedInbound atomic.Uint64
	subscribes     atomic.Uint64
}

// Stats contains transport counters.
type Stats struct {
	Connected      bool
	Published      uint64
	PublishErrors  uint64
	Received       uint64
	DroppedInbound uint64
}

// New creates a disconnected client.
func New(cfg *config.Config) *Client {
	return &Client{
		cfg:     cfg,
		inbound: make(chan Message, inboundBuffer),
	}
}

// Connect establishes the broker session and blocks until the broker
// accepts the connection or ctx is cancelled. The session is persistent
// (clean session off) and the command subscription is issued only when the
// broker did not resume a previous session; on later auto-reconnects the
// broker-side subscription survives with the session.
func (c *Client) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", c.cfg.MQTT.Broker))
	opts.SetClientID(c.cfg.InstanceID)
	opts.SetCleanSession(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(reconnectMinInterval)
	opts.SetMaxReconnectInterval(reconnectMaxInterval)

	opts.OnConnect = func(mqtt.Client) {
		c.connected.Store(true)
		slog.Info("mqtt connection established",
			"broker", c.cfg.MQTT.Broker,
			"client_id", c.cfg.InstanceID,
		)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		c.connected.Store(false)
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", c.cfg.MQTT.Broker,
			"max_retry_interval", reconnectMaxInterval,
		)
	}

	c.client = mqtt.NewClient(opts)

	slog.Info("connecting to mqtt broker", "broker", c.cfg.MQTT.Broker)

	token := c.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		c.client.Disconnect(0)
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	c.connected.Store(true)

	sessionPresent := false
	if ct, ok := token.(*mqtt.ConnectToken); ok {
		sessionPresent = ct.SessionPresent()
	}
	return c.ensureSubscription(sessionPresent)
}

// ensureSubscription subscribes to the command topic exactly when the
// broker reports no resumed session. With a resumed session the broker
// already holds the subscription and subscribing again would double it.
func (c *Client) ensureSubscription(sessionPresent bool) error {
	if sessionPresent {
		slog.Info("mqtt session resumed, keeping existing command subscription",
			"topic", c.cfg.MQTT.Topics.Command)
		return nil
	}

	topic := c.cfg.MQTT.Topics.Command
	qos := c.cfg.QoSFor("command")

	token := c.client.Subscribe(topic, qos, c.onMessage)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("command subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("command subscription failed: %w", err)
	}
	c.subscribes.Add(1)

	slog.Info("subscribed to command topic", "topic", topic, "qos", qos)
	return nil
}

// onMessage forwards an inbound message into the consumer channel without
// blocking the paho router. A full channel drops the message and counts it.
func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	c.received.Add(1)

	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())

	select {
	case c.inbound <- Message{Topic: msg.Topic(), Payload: payload}:
	default:
		c.droppedInbound.Add(1)
		slog.Warn("inbound message queue full, dropping message", "topic", msg.Topic())
	}
}

// Publish sends payload to the telemetry topic and waits for the broker
// acknowledgment, bounded by the configured ack timeout.
func (c *Client) Publish(ctx context.Context, payload []byte) error {
	token := c.client.Publish(c.cfg.MQTT.Topics.Telemetry, c.cfg.QoSFor("telemetry"), false, payload)

	timeout := c.cfg.AckTimeout()
	select {
	case <-token.Done():
	case <-time.After(timeout):
		c.publishErrors.Add(1)
		return fmt.Errorf("publish timeout after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		c.publishErrors.Add(1)
		return fmt.Errorf("publish failed: %w", err)
	}

	c.published.Add(1)
	return nil
}

// Messages returns the inbound command stream. Receiving blocks until a
// message arrives, so consumers never busy-spin during disconnects.
func (c *Client) Messages() <-chan Message {
	return c.inbound
}

// IsConnected reports the current session state.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Stats returns cumulative transport counters.
func (c *Client) Stats() Stats {
	return Stats{
		Connected:      c.connected.Load(),
		Published:      c.published.Load(),
		PublishErrors:  c.publishErrors.Load(),
		Received:       c.received.Load(),
		DroppedInbound: c.droppedInbound.Load(),
	}
}

// Disconnect closes the session, allowing a short drain for in-flight
// messages. The broker keeps the persistent session and its subscription.
func (c *Client) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(disconnectQuiesceMS)
		slog.Info("mqtt disconnected")
	}
	c.connected.Store(false)
}
