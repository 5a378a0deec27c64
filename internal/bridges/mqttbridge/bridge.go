package mqttbridge

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/nerrad567/homecontrol-core/internal/core"
	"github.com/nerrad567/homecontrol-core/internal/domains"
	"github.com/nerrad567/homecontrol-core/internal/event"
	"github.com/nerrad567/homecontrol-core/internal/infrastructure/config"
	"github.com/nerrad567/homecontrol-core/internal/infrastructure/logging"
	"github.com/nerrad567/homecontrol-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/homecontrol-core/internal/item"
	"github.com/nerrad567/homecontrol-core/internal/module"
	"github.com/nerrad567/homecontrol-core/internal/scheduler"
	"github.com/nerrad567/homecontrol-core/internal/schema"
)

const (
	// ModuleName is the module name. The module owns the "mqtt" domain.
	ModuleName = "mqttbridge"

	// Domain is the configuration domain holding the broker settings.
	Domain = "mqtt"

	defaultPort = 1883
	defaultQoS  = 1
)

// Events published by the bridge from paho's goroutines.
const (
	// EventConnected fires when the broker connection is (re)established.
	// It may fire more than once for the initial connection.
	// Payload: "broker".
	EventConnected = "mqtt_connected"

	// EventDisconnected fires when the connection is lost. Payload: "error".
	EventDisconnected = "mqtt_disconnected"

	// EventMessageReceived fires for messages on the configured subscribe
	// topics. Payload: "topic", "payload" (string).
	EventMessageReceived = "mqtt_message_received"
)

// ErrNotConnected is returned by switch setters while the bridge has no
// broker client.
var ErrNotConnected = errors.New("mqttbridge: not connected")

// Dialer connects to the broker. mqtt.Connect is the production dialer.
type Dialer func(cfg config.MQTTConfig) (*mqtt.Client, error)

// Config is the mqtt domain.
type Config struct {
	config.MQTTConfig `yaml:",inline"`

	// PublishEvents lists bus events mirrored to <prefix>/event/<name>.
	PublishEvents []string `yaml:"publish_events"`
}

// Bridge connects the hub to an MQTT broker:
//   - item state changes are published retained to <prefix>/<item>/state
//   - JSON objects received on <prefix>/<item>/set are applied as state
//     commands
//   - messages on the configured subscribe topics become
//     mqtt_message_received events
//   - items of type mqttbridge.Switch drive a device command topic
//
// Thread Safety: all methods are safe for concurrent use.
type Bridge struct {
	k      *core.Kernel
	dial   Dialer
	logger *logging.Logger

	mu     sync.RWMutex
	client *mqtt.Client
	cfg    Config
	tokens []event.Token
}

// New is the core.Factory for the bridge, connecting with mqtt.Connect.
func New(k *core.Kernel) (module.Module, error) {
	return NewWithDialer(mqtt.Connect)(k)
}

// NewWithDialer returns a core.Factory whose bridge connects with dial.
func NewWithDialer(dial Dialer) core.Factory {
	return func(k *core.Kernel) (module.Module, error) {
		if dial == nil {
			return nil, fmt.Errorf("mqttbridge: nil dialer")
		}
		return &Bridge{
			k:      k,
			dial:   dial,
			logger: k.Logger.With("module", ModuleName),
		}, nil
	}
}

func (b *Bridge) Name() string           { return ModuleName }
func (b *Bridge) Dependencies() []string { return nil }

// Schema validates the mqtt domain. Omitted keys take the defaults of
// DefaultConfig.
func Schema() schema.Schema {
	return schema.Object(
		schema.KeyOptional("broker", schema.Object(
			schema.KeyOptional("host", schema.String()),
			schema.KeyOptional("port", schema.IntRange(1, 65535)),
			schema.KeyOptional("tls", schema.Bool()),
			schema.KeyOptional("client_id", schema.String()),
		)),
		schema.KeyOptional("auth", schema.Object(
			schema.KeyOptional("username", schema.String()),
			schema.KeyOptional("password", schema.String()),
		)),
		schema.KeyOptional("qos", schema.IntRange(0, 2)),
		schema.KeyOptional("subscribe", schema.List(schema.String())),
		schema.KeyOptional("state_prefix", schema.String()),
		schema.KeyOptional("publish_events", schema.List(schema.String())),
	)
}

// DefaultConfig returns the settings used for keys the domain omits. The
// client identifier is derived from the hub instance.
func DefaultConfig(instanceID string) Config {
	return Config{
		MQTTConfig: config.MQTTConfig{
			Broker: config.MQTTBrokerConfig{
				Host:     "localhost",
				Port:     defaultPort,
				ClientID: "homecontrol-" + instanceID,
			},
			QoS:         defaultQoS,
			StatePrefix: mqtt.DefaultPrefix,
		},
	}
}

// Init connects to the broker and wires the bus to it. A broker that
// cannot be reached fails the module.
func (b *Bridge) Init(ctx context.Context) error {
	value, err := b.k.Domains.Register(ctx, Domain, domains.Options{
		Schema:  Schema(),
		Default: map[string]any{},
	})
	if err != nil {
		return fmt.Errorf("registering %s domain: %w", Domain, err)
	}
	cfg := DefaultConfig(b.k.InstanceID)
	if err := config.Decode(value, &cfg); err != nil {
		return err
	}

	client, err := scheduler.RunBlocking(ctx, b.k.Loop, func(context.Context) (*mqtt.Client, error) {
		return b.dial(cfg.MQTTConfig)
	})
	if err != nil {
		return err
	}
	client.SetLogger(b.logger)

	b.mu.Lock()
	b.client, b.cfg = client, cfg
	b.mu.Unlock()

	broker := fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port)
	client.SetOnConnect(func() {
		b.broadcast(EventConnected, map[string]any{"broker": broker})
	})
	client.SetOnDisconnect(func(err error) {
		b.logger.Warn("MQTT connection lost", "error", err)
		b.broadcast(EventDisconnected, map[string]any{"error": fmt.Sprint(err)})
	})

	if err := b.wire(client, cfg); err != nil {
		b.teardown()
		return err
	}

	b.logger.Info("connected to MQTT broker", "broker", broker, "prefix", client.Topics().Prefix)
	b.k.Bus.Broadcast(EventConnected, map[string]any{"broker": broker})
	return nil
}

func (b *Bridge) wire(client *mqtt.Client, cfg Config) error {
	qos := byte(cfg.QoS)
	for _, topic := range cfg.Subscribe {
		if err := client.Subscribe(topic, qos, b.onMessage); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}
	if err := client.Subscribe(client.Topics().AllItemCommands(), qos, b.onCommand); err != nil {
		return fmt.Errorf("subscribing to item commands: %w", err)
	}

	if err := b.register(event.StateChange, b.onStateChange); err != nil {
		return err
	}
	for _, name := range cfg.PublishEvents {
		if err := b.register(name, b.onMirroredEvent); err != nil {
			return err
		}
	}
	return b.k.Items.RegisterType(TypeSwitch, b.newSwitch)
}

func (b *Bridge) register(name string, h event.Handler) error {
	tok, err := b.k.Bus.Register(name, h)
	if err != nil {
		return fmt.Errorf("registering %s handler: %w", name, err)
	}
	b.mu.Lock()
	b.tokens = append(b.tokens, tok)
	b.mu.Unlock()
	return nil
}

// broadcast publishes from a paho goroutine. A full run-queue drops the
// event.
func (b *Bridge) broadcast(name string, data map[string]any) {
	if err := b.k.Bus.BroadcastThreaded(name, data); err != nil {
		b.logger.Warn("dropping MQTT event", "event", name, "error", err)
	}
}

// Client returns the broker client, nil before Init or after Stop.
func (b *Bridge) Client() *mqtt.Client {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.client
}

func (b *Bridge) settings() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

func (b *Bridge) onMessage(topic string, payload []byte) error {
	return b.k.Bus.BroadcastThreaded(EventMessageReceived, map[string]any{
		"topic":   topic,
		"payload": string(payload),
	})
}

// onCommand applies {"state": value, ...} received on an item's set
// topic. It runs on a paho goroutine, so the command is queued with
// Loop.Submit and applied from there on a scheduler task. Values go
// through Store.Set, so item setters run.
func (b *Bridge) onCommand(topic string, payload []byte) error {
	client := b.Client()
	if client == nil {
		return nil
	}
	id, ok := client.Topics().ItemFromTopic(topic)
	if !ok {
		return fmt.Errorf("not an item command topic: %s", topic)
	}
	if !gjson.ValidBytes(payload) {
		return fmt.Errorf("command for %s is not valid JSON", id)
	}
	changes, ok := gjson.ParseBytes(payload).Value().(map[string]any)
	if !ok {
		return fmt.Errorf("command for %s is not a JSON object", id)
	}

	return b.k.Loop.Submit(func() {
		err := b.k.Loop.Go("mqtt command "+id, func(ctx context.Context) {
			b.applyCommand(ctx, id, changes)
		})
		if err != nil {
			b.logger.Warn("MQTT command dropped", "item", id, "error", err)
		}
	})
}

func (b *Bridge) applyCommand(ctx context.Context, id string, changes map[string]any) {
	it, ok := b.k.Items.GetItem(id)
	if !ok {
		b.logger.Warn("MQTT command for unknown item", "item", id)
		return
	}
	for _, name := range slices.Sorted(maps.Keys(changes)) {
		if _, err := it.States().Set(ctx, name, changes[name]); err != nil {
			b.logger.Warn("MQTT command rejected", "item", id, "state", name, "error", err)
		}
	}
}

// onStateChange publishes the item's full state, retained, so late
// subscribers see the current values.
func (b *Bridge) onStateChange(_ context.Context, ev event.Event) (any, error) {
	v, _ := ev.Get("item")
	it, ok := v.(*item.Item)
	client := b.Client()
	if !ok || client == nil {
		return nil, nil
	}
	return nil, client.PublishJSON(client.Topics().ItemState(it.ID()), it.States().Dump(), true)
}

func (b *Bridge) onMirroredEvent(_ context.Context, ev event.Event) (any, error) {
	client := b.Client()
	if client == nil {
		return nil, nil
	}
	return nil, client.PublishJSON(client.Topics().Event(ev.Name), ev, false)
}

// Stop unhooks the bus and disconnects with a graceful offline status.
func (b *Bridge) Stop(context.Context) error {
	b.teardown()
	return nil
}

func (b *Bridge) teardown() {
	b.mu.Lock()
	client, tokens := b.client, b.tokens
	b.client, b.tokens = nil, nil
	b.mu.Unlock()

	for _, tok := range tokens {
		b.k.Bus.RemoveHandler(tok)
	}
	if client != nil {
		_ = client.Close()
	}
}
