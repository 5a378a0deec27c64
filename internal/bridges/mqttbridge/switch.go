package mqttbridge

import (
	"context"
	"fmt"

	"github.com/nerrad567/homecontrol-core/internal/infrastructure/config"
	"github.com/nerrad567/homecontrol-core/internal/item"
	"github.com/nerrad567/homecontrol-core/internal/schema"
)

// TypeSwitch is an on/off device driven over MQTT:
//
//	items:
//	  - id: porch_light
//	    type: mqttbridge.Switch
//	    config:
//	      command_topic: zigbee2mqtt/porch/set
//	      state_topic: zigbee2mqtt/porch/power
//	      payload_on: "ON"
//	      payload_off: "OFF"
//
// Setting "on" publishes payload_on or payload_off to command_topic. When
// state_topic is set, the device's reports update "on" without publishing.
const TypeSwitch = "mqttbridge.Switch"

type switchConfig struct {
	CommandTopic string `yaml:"command_topic"`
	StateTopic   string `yaml:"state_topic"`
	PayloadOn    string `yaml:"payload_on"`
	PayloadOff   string `yaml:"payload_off"`
}

func switchSchema() schema.Schema {
	return schema.Object(
		schema.Key("command_topic", schema.String()),
		schema.KeyOptional("state_topic", schema.String()),
		schema.KeyOptional("payload_on", schema.String()),
		schema.KeyOptional("payload_off", schema.String()),
	)
}

func (b *Bridge) newSwitch(_ context.Context, cfg item.Config) (item.Spec, error) {
	raw, err := switchSchema().Validate(cfg.Settings)
	if err != nil {
		return item.Spec{}, fmt.Errorf("%s %s: %w", TypeSwitch, cfg.ID, err)
	}
	sc := switchConfig{PayloadOn: "ON", PayloadOff: "OFF"}
	if err := config.Decode(raw, &sc); err != nil {
		return item.Spec{}, err
	}

	setOn := func(_ context.Context, _ *item.Item, v any) error {
		client := b.Client()
		if client == nil {
			return ErrNotConnected
		}
		payload := sc.PayloadOff
		if on, _ := v.(bool); on {
			payload = sc.PayloadOn
		}
		return client.Publish(sc.CommandTopic, []byte(payload), byte(b.settings().QoS), false)
	}

	spec := item.Spec{
		Module: ModuleName,
		States: item.States{
			"on": {Schema: schema.Bool(), Default: false, Setter: setOn},
		},
		Actions: item.Actions{}.
			Add("turn_on", func(ctx context.Context, it *item.Item, _ map[string]any) (any, error) {
				return it.States().Set(ctx, "on", true)
			}).
			Add("turn_off", func(ctx context.Context, it *item.Item, _ map[string]any) (any, error) {
				return it.States().Set(ctx, "on", false)
			}),
	}
	if sc.StateTopic != "" {
		spec.Init = func(_ context.Context, it *item.Item) error {
			return b.followState(it, sc)
		}
		spec.Stop = func(context.Context, *item.Item) error {
			if client := b.Client(); client != nil {
				return client.Unsubscribe(sc.StateTopic)
			}
			return nil
		}
	}
	return spec, nil
}

// followState mirrors device reports on the state topic into "on". The
// update is handed to the scheduler's run queue; the paho goroutine never
// touches the store. Payloads other than payload_on and payload_off are
// ignored.
func (b *Bridge) followState(it *item.Item, sc switchConfig) error {
	client := b.Client()
	if client == nil {
		return ErrNotConnected
	}
	return client.Subscribe(sc.StateTopic, byte(b.settings().QoS), func(_ string, payload []byte) error {
		var on bool
		switch string(payload) {
		case sc.PayloadOn:
			on = true
		case sc.PayloadOff:
		default:
			return fmt.Errorf("%s: unexpected payload %q", it.ID(), payload)
		}
		return b.k.Loop.Submit(func() {
			if _, err := it.States().Update("on", on); err != nil {
				b.logger.Warn("state report rejected", "item", it.ID(), "error", err)
			}
		})
	})
}
