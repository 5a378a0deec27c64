// Package switches provides virtual on/off switches.
//
// A switch has no device behind it: its "on" state lives only in the
// store, which makes it useful for modes, flags and automation testing.
//
//	switches:
//	  initial_on: false
//	items:
//	  - id: guest_mode
//	    type: switches.Switch
package switches

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/homecontrol-core/internal/core"
	"github.com/nerrad567/homecontrol-core/internal/domains"
	"github.com/nerrad567/homecontrol-core/internal/infrastructure/config"
	"github.com/nerrad567/homecontrol-core/internal/item"
	"github.com/nerrad567/homecontrol-core/internal/module"
	"github.com/nerrad567/homecontrol-core/internal/schema"
)

const (
	// ModuleName is the module and configuration domain name.
	ModuleName = "switches"

	// TypeSwitch is the item type registered by the module.
	TypeSwitch = "switches.Switch"

	// StateOn is the switch's only state.
	StateOn = "on"
)

// Config is the switches domain.
type Config struct {
	// InitialOn is the "on" value of switches created without an explicit
	// state.
	InitialOn bool `yaml:"initial_on"`
}

// Module registers the switch item type. It implements module.Module and
// domains.Applier.
type Module struct {
	k *core.Kernel

	mu  sync.RWMutex
	cfg Config
}

// New is the core.Factory for the switches module.
func New(k *core.Kernel) (module.Module, error) {
	return &Module{k: k}, nil
}

func (m *Module) Name() string           { return ModuleName }
func (m *Module) Dependencies() []string { return nil }

func domainSchema() schema.Schema {
	return schema.Object(
		schema.KeyDefault("initial_on", schema.Bool(), false),
	)
}

// Init claims the switches domain and registers TypeSwitch.
func (m *Module) Init(ctx context.Context) error {
	value, err := m.k.Domains.Register(ctx, ModuleName, domains.Options{
		Handler:     m,
		Schema:      domainSchema(),
		AllowReload: true,
		Default:     map[string]any{},
	})
	if err != nil {
		return fmt.Errorf("registering %s domain: %w", ModuleName, err)
	}
	if err := m.apply(value); err != nil {
		return err
	}
	return m.k.Items.RegisterType(TypeSwitch, m.newSwitch)
}

// ApplyConfiguration takes a reloaded domain value. Existing switches keep
// their state; only switches created afterwards see the new initial value.
func (m *Module) ApplyConfiguration(_ context.Context, _ string, value any) error {
	return m.apply(value)
}

func (m *Module) apply(value any) error {
	var cfg Config
	if err := config.Decode(value, &cfg); err != nil {
		return err
	}
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	return nil
}

// Settings returns the current domain value.
func (m *Module) Settings() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Module) newSwitch(_ context.Context, _ item.Config) (item.Spec, error) {
	return item.Spec{
		Module: ModuleName,
		States: item.States{
			StateOn: {Schema: schema.Bool(), Default: m.Settings().InitialOn},
		},
		Actions: item.Actions{}.
			Add("toggle", toggle).
			Add("turn_on", turn(true)).
			Add("turn_off", turn(false)),
	}, nil
}

func toggle(ctx context.Context, it *item.Item, _ map[string]any) (any, error) {
	v, err := it.States().Get(StateOn)
	if err != nil {
		return nil, err
	}
	on, _ := v.(bool)
	return it.States().Set(ctx, StateOn, !on)
}

func turn(on bool) item.Action {
	return func(ctx context.Context, it *item.Item, _ map[string]any) (any, error) {
		return it.States().Set(ctx, StateOn, on)
	}
}
