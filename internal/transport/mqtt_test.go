package transport

import (
	"context"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/blobcode/novaGround/internal/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		MQTT: config.MQTTConfig{Broker: "localhost:1883"},
		Sampling: config.SamplingConfig{
			Channels: []config.Channel{{ID: 0, Name: "a"}},
		},
	}
	if err := config.Validate(cfg); err != nil {
		panic(err)
	}
	return cfg
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	done := make(chan struct{})
	close(done)
	return &fakeToken{err: err, done: done}
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

// fakeMQTT records subscribe and publish calls.
type fakeMQTT struct {
	subscribeTopics []string
	subscribeQoS    []byte
	publishPayloads [][]byte
	publishErr      error
}

func (f *fakeMQTT) IsConnected() bool      { return true }
func (f *fakeMQTT) IsConnectionOpen() bool { return true }
func (f *fakeMQTT) Connect() mqtt.Token    { return newFakeToken(nil) }
func (f *fakeMQTT) Disconnect(uint)        {}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.publishPayloads = append(f.publishPayloads, payload.([]byte))
	return newFakeToken(f.publishErr)
}

func (f *fakeMQTT) Subscribe(topic string, qos byte, cb mqtt.MessageHandler) mqtt.Token {
	f.subscribeTopics = append(f.subscribeTopics, topic)
	f.subscribeQoS = append(f.subscribeQoS, qos)
	return newFakeToken(nil)
}

func (f *fakeMQTT) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return newFakeToken(nil)
}

func (f *fakeMQTT) Unsubscribe(...string) mqtt.Token      { return newFakeToken(nil) }
func (f *fakeMQTT) AddRoute(string, mqtt.MessageHandler)  {}
func (f *fakeMQTT) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// TestSubscribeOnlyOnFreshSession verifies the session contract: exactly
// one subscribe when no session was resumed, zero when one was.
func TestSubscribeOnlyOnFreshSession(t *testing.T) {
	fresh := &fakeMQTT{}
	c := New(testConfig())
	c.client = fresh

	if err := c.ensureSubscription(false); err != nil {
		t.Fatalf("ensureSubscription(fresh) failed: %v", err)
	}
	if len(fresh.subscribeTopics) != 1 {
		t.Fatalf("Expected exactly 1 subscribe on fresh session, got %d", len(fresh.subscribeTopics))
	}
	if fresh.subscribeTopics[0] != "novaground/command" {
		t.Errorf("Subscribed to %q", fresh.subscribeTopics[0])
	}
	if fresh.subscribeQoS[0] != 1 {
		t.Errorf("Expected QoS 1 for command topic, got %d", fresh.subscribeQoS[0])
	}

	resumed := &fakeMQTT{}
	c2 := New(testConfig())
	c2.client = resumed

	if err := c2.ensureSubscription(true); err != nil {
		t.Fatalf("ensureSubscription(resumed) failed: %v", err)
	}
	if len(resumed.subscribeTopics) != 0 {
		t.Errorf("Expected 0 subscribes on resumed session, got %d", len(resumed.subscribeTopics))
	}
}

// TestPublishCountsOutcomes verifies ack success and failure bookkeeping.
func TestPublishCountsOutcomes(t *testing.T) {
	fake := &fakeMQTT{}
	c := New(testConfig())
	c.client = fake

	if err := c.Publish(context.Background(), []byte(`{"data":[]}`)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(fake.publishPayloads) != 1 || string(fake.publishPayloads[0]) != `{"data":[]}` {
		t.Fatalf("broker saw payloads %q", fake.publishPayloads)
	}

	fake.publishErr = context.DeadlineExceeded
	if err := c.Publish(context.Background(), []byte(`{}`)); err == nil {
		t.Fatal("Expected publish error")
	}

	s := c.Stats()
	if s.Published != 1 || s.PublishErrors != 1 {
		t.Errorf("unexpected stats: %+v", s)
	}
}

// TestInboundDropWhenFull verifies the consumer channel never blocks the
// message callback; overflow is dropped and counted.
func TestInboundDropWhenFull(t *testing.T) {
	c := New(testConfig())

	total := inboundBuffer + 3
	for i := 0; i < total; i++ {
		c.onMessage(nil, &fakeMessage{topic: "novaground/command", payload: []byte("go")})
	}

	s := c.Stats()
	if s.Received != uint64(total) {
		t.Errorf("received: got %d, want %d", s.Received, total)
	}
	if s.DroppedInbound != 3 {
		t.Errorf("dropped: got %d, want 3", s.DroppedInbound)
	}

	// The buffered messages are all intact and in order.
	for i := 0; i < inboundBuffer; i++ {
		select {
		case msg := <-c.Messages():
			if msg.Topic != "novaground/command" || string(msg.Payload) != "go" {
				t.Fatalf("message %d corrupted: %+v", i, msg)
			}
		default:
			t.Fatalf("expected %d buffered messages, channel empty at %d", inboundBuffer, i)
		}
	}
}
