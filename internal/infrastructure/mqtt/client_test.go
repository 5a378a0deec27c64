package mqtt_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/homecontrol-core/internal/infrastructure/config"
	"github.com/nerrad567/homecontrol-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/homecontrol-core/internal/infrastructure/mqtt/mqtttest"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "homecontrol-test",
		},
		Auth: config.MQTTAuthConfig{Username: "hub", Password: "secret"},
		QoS:  1,
	}
}

func connectFake(t *testing.T) (*mqtt.Client, *mqtttest.Broker) {
	t.Helper()
	b := mqtttest.New()
	c, err := mqtt.ConnectWith(testConfig(), b.Dial)
	if err != nil {
		t.Fatalf("ConnectWith() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, b
}

// warnLogger records warnings and errors.
type warnLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *warnLogger) Error(msg string, _ ...any) { l.add(msg) }
func (l *warnLogger) Warn(msg string, _ ...any)  { l.add(msg) }

func (l *warnLogger) add(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func (l *warnLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}

func TestConnect_Options(t *testing.T) {
	_, b := connectFake(t)

	opts := b.Options
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "homecontrol-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "hub" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if opts.WillTopic != "homecontrol/system/status" || !opts.WillRetained {
		t.Errorf("LWT = %q retained=%v", opts.WillTopic, opts.WillRetained)
	}
}

func TestConnect_TLSScheme(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883
	b := mqtttest.New()
	c, err := mqtt.ConnectWith(cfg, b.Dial)
	if err != nil {
		t.Fatalf("ConnectWith() error = %v", err)
	}
	defer c.Close()

	if got := b.Options.Servers[0].String(); got != "ssl://127.0.0.1:8883" {
		t.Errorf("broker URL = %q, want ssl://127.0.0.1:8883", got)
	}
	if b.Options.TLSConfig == nil {
		t.Error("TLSConfig not set")
	}
}

func TestConnect_Refused(t *testing.T) {
	b := mqtttest.New()
	b.Refuse(errors.New("connection refused"))

	_, err := mqtt.ConnectWith(testConfig(), b.Dial)
	if !errors.Is(err, mqtt.ErrConnectionFailed) {
		t.Errorf("ConnectWith() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClose(t *testing.T) {
	c, b := connectFake(t)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}

	status := b.PublishedTo("homecontrol/system/status")
	if len(status) == 0 {
		t.Fatal("no offline status published on Close")
	}
	last := status[len(status)-1]
	if !last.Retained || !strings.Contains(string(last.Payload), `"graceful_shutdown"`) {
		t.Errorf("offline status = %s retained=%v", last.Payload, last.Retained)
	}

	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	c, b := connectFake(t)

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v", err)
	}

	b.SimulateConnectionLost()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("HealthCheck() after connection lost = %v, want ErrNotConnected", err)
	}
}

func TestPublish_Validation(t *testing.T) {
	c, _ := connectFake(t)

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{name: "empty topic", topic: "", qos: 1, wantErr: mqtt.ErrInvalidTopic},
		{name: "invalid qos", topic: "a/b", qos: 3, wantErr: mqtt.ErrInvalidQoS},
		{name: "too large", topic: "a/b", payload: make([]byte, 1<<20+1), qos: 0, wantErr: mqtt.ErrPublishFailed},
		{name: "nil payload", topic: "a/b", payload: nil, qos: 0},
		{name: "valid", topic: "a/b", payload: []byte("x"), qos: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if tt.wantErr == nil && err != nil {
				t.Errorf("Publish() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublish_Disconnected(t *testing.T) {
	c, b := connectFake(t)
	b.SimulateConnectionLost()

	if err := c.Publish("a/b", []byte("x"), 1, false); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestPublish_BrokerError(t *testing.T) {
	c, b := connectFake(t)
	b.FailOperations(errors.New("not authorised"))

	if err := c.Publish("a/b", []byte("x"), 1, false); !errors.Is(err, mqtt.ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestPublishJSONRetained(t *testing.T) {
	c, b := connectFake(t)

	if err := c.PublishJSON("homecontrol/lamp/state", map[string]any{"on": true}, true); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}
	msgs := b.PublishedTo("homecontrol/lamp/state")
	if len(msgs) != 1 || !msgs[0].Retained || msgs[0].QoS != 1 {
		t.Fatalf("published = %+v", msgs)
	}
	var got map[string]any
	if err := json.Unmarshal(msgs[0].Payload, &got); err != nil || got["on"] != true {
		t.Errorf("payload = %s", msgs[0].Payload)
	}

	if err := c.PublishJSON("x", func() {}, false); !errors.Is(err, mqtt.ErrPublishFailed) {
		t.Errorf("PublishJSON(func) error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c, _ := connectFake(t)
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, mqtt.ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("a", 5, noop); !errors.Is(err, mqtt.ErrInvalidQoS) {
		t.Errorf("invalid qos error = %v", err)
	}
	if err := c.Subscribe("a", 1, nil); !errors.Is(err, mqtt.ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
}

func TestSubscribe_WildcardDelivery(t *testing.T) {
	c, b := connectFake(t)

	var mu sync.Mutex
	var topics []string
	err := c.Subscribe(c.Topics().AllItemCommands(), 1, func(topic string, _ []byte) error {
		mu.Lock()
		topics = append(topics, topic)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	b.Deliver("homecontrol/lamp1/set", []byte("ON"))
	b.Deliver("homecontrol/lamp1/state", []byte("ON"))
	b.Deliver("homecontrol/lamp2/set", []byte("OFF"))

	mu.Lock()
	defer mu.Unlock()
	if len(topics) != 2 {
		t.Errorf("delivered topics = %v, want the two set topics", topics)
	}
}

func TestSubscribe_FailureNotTracked(t *testing.T) {
	c, b := connectFake(t)
	b.FailOperations(errors.New("denied"))

	if err := c.Subscribe("a/b", 1, func(string, []byte) error { return nil }); !errors.Is(err, mqtt.ErrSubscribeFailed) {
		t.Fatalf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if c.HasSubscription("a/b") {
		t.Error("failed subscription is still tracked")
	}
}

func TestUnsubscribe(t *testing.T) {
	c, b := connectFake(t)
	if err := c.Subscribe("a/b", 1, func(string, []byte) error { return nil }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if c.SubscriptionCount() != 1 || !c.HasSubscription("a/b") {
		t.Fatal("subscription not tracked")
	}

	if err := c.Unsubscribe("a/b"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if c.SubscriptionCount() != 0 || b.Subscribed("a/b") {
		t.Error("subscription still present after Unsubscribe")
	}
	if err := c.Unsubscribe(""); !errors.Is(err, mqtt.ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v", err)
	}
}

func TestReconnect_RestoresSubscriptionsAndStatus(t *testing.T) {
	c, b := connectFake(t)
	if err := c.Subscribe("a/b", 1, func(string, []byte) error { return nil }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	lost := make(chan error, 1)
	connected := make(chan struct{}, 1)
	c.SetOnDisconnect(func(err error) { lost <- err })
	c.SetOnConnect(func() { connected <- struct{}{} })

	b.SimulateConnectionLost()
	if err := <-lost; err == nil {
		t.Error("OnDisconnect received nil error")
	}
	// A clean session loses subscriptions on the broker side.
	b.Unsubscribe("a/b")

	b.SimulateReconnect()
	<-connected

	if !b.Subscribed("a/b") {
		t.Error("subscription not restored after reconnect")
	}
	status := b.PublishedTo("homecontrol/system/status")
	if len(status) == 0 || !strings.Contains(string(status[len(status)-1].Payload), `"online"`) {
		t.Errorf("online status not published on reconnect: %+v", status)
	}
}

func TestHandler_ErrorsAndPanicsAreLogged(t *testing.T) {
	c, b := connectFake(t)
	logger := &warnLogger{}
	c.SetLogger(logger)

	if err := c.Subscribe("err", 0, func(string, []byte) error { return errors.New("bad payload") }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := c.Subscribe("panic", 0, func(string, []byte) error { panic("boom") }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	b.Deliver("err", nil)
	b.Deliver("panic", nil)

	if logger.count() != 2 {
		t.Errorf("logged %d messages, want 2", logger.count())
	}
}
