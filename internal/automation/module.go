package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nerrad567/homecontrol-core/internal/core"
	"github.com/nerrad567/homecontrol-core/internal/domains"
	"github.com/nerrad567/homecontrol-core/internal/event"
	"github.com/nerrad567/homecontrol-core/internal/item"
	"github.com/nerrad567/homecontrol-core/internal/module"
)

const (
	// ModuleName is the module name.
	ModuleName = "automation"

	// DomainRules and DomainScenes are the reloadable domains the module
	// owns.
	DomainRules  = "automation"
	DomainScenes = "scenes"
)

// Module wires the engine to the bus. It implements module.Module,
// module.Stopper, domains.Approver and domains.Applier.
type Module struct {
	k        *core.Kernel
	logger   Logger
	registry *Registry
	engine   *Engine

	mu         sync.Mutex
	token      event.Token
	stopTimers context.CancelFunc
}

// New is the core.Factory for the automation module.
func New(k *core.Kernel) (module.Module, error) {
	logger := k.Logger.With("module", ModuleName)
	registry := NewRegistry()
	registry.SetLogger(logger)
	return &Module{
		k:        k,
		logger:   logger,
		registry: registry,
		engine:   NewEngine(registry, k.Items, k.Bus, logger),
	}, nil
}

func (m *Module) Name() string           { return ModuleName }
func (m *Module) Dependencies() []string { return nil }

// Registry returns the active rules and scenes.
func (m *Module) Registry() *Registry { return m.registry }

// ActivateScene runs a scene. See Engine.ActivateScene.
func (m *Module) ActivateScene(ctx context.Context, alias, triggerType string) (*SceneExecution, error) {
	return m.engine.ActivateScene(ctx, alias, triggerType)
}

// Init claims both domains and starts listening for events.
func (m *Module) Init(ctx context.Context) error {
	scenes, err := m.k.Domains.Register(ctx, DomainScenes, domains.Options{
		Handler:     m,
		Schema:      ScenesSchema(),
		AllowReload: true,
		Default:     []any{},
	})
	if err != nil {
		return fmt.Errorf("registering %s domain: %w", DomainScenes, err)
	}
	if err := m.ApplyConfiguration(ctx, DomainScenes, scenes); err != nil {
		return err
	}

	rules, err := m.k.Domains.Register(ctx, DomainRules, domains.Options{
		Handler:     m,
		Schema:      RulesSchema(),
		AllowReload: true,
		Default:     []any{},
	})
	if err != nil {
		return fmt.Errorf("registering %s domain: %w", DomainRules, err)
	}

	token, err := m.k.Bus.Register(event.AllEvents, m.onEvent)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()

	return m.ApplyConfiguration(ctx, DomainRules, rules)
}

// ApproveConfiguration compiles the proposed rules or scenes, so a
// broken condition fails the reload instead of the rule.
func (m *Module) ApproveConfiguration(_ context.Context, domain string, value any) (domains.Verdict, error) {
	var err error
	switch domain {
	case DomainRules:
		_, err = compileRules(value)
	case DomainScenes:
		_, err = CompileScenes(value)
	}
	if err != nil {
		return domains.Reject, err
	}
	return domains.Approve, nil
}

// ApplyConfiguration swaps in the new rules or scenes. Timer rules of the
// previous set stop before the new ones start.
func (m *Module) ApplyConfiguration(_ context.Context, domain string, value any) error {
	switch domain {
	case DomainScenes:
		scenes, err := CompileScenes(value)
		if err != nil {
			return err
		}
		m.registry.replaceScenes(scenes)
	case DomainRules:
		rules, err := compileRules(value)
		if err != nil {
			return err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.stopTimers != nil {
			m.stopTimers()
		}
		m.registry.replaceRules(rules)
		m.stopTimers = m.startTimers(rules)
	}
	return nil
}

// startTimers starts one task per timer rule. Caller holds mu.
func (m *Module) startTimers(rules []*compiledRule) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	for _, cr := range rules {
		if cr.Trigger.Provider != TriggerTimer {
			continue
		}
		interval := time.Duration(cr.Trigger.Interval) * time.Second
		err := m.k.Loop.Go("automation timer "+cr.Alias, func(loopCtx context.Context) {
			m.runTimer(loopCtx, ctx, cr, interval)
		})
		if err != nil {
			m.logger.Warn("automation timer not started", "alias", cr.Alias, "error", err)
		}
	}
	return cancel
}

func (m *Module) runTimer(loopCtx, stopCtx context.Context, cr *compiledRule, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	payload := map[string]any{"interval": float64(cr.Trigger.Interval)}
	raw, _ := json.Marshal(payload)
	for {
		select {
		case <-loopCtx.Done():
			return
		case <-stopCtx.Done():
			return
		case <-ticker.C:
			_ = m.engine.fire(loopCtx, cr, trigger{name: TriggerTimer, payload: payload, raw: raw})
		}
	}
}

// onEvent runs the event and state rules the event triggers, in
// configuration order.
func (m *Module) onEvent(ctx context.Context, ev event.Event) (any, error) {
	var fired []*compiledRule
	for _, cr := range m.registry.compiled() {
		switch cr.Trigger.Provider {
		case TriggerEvent:
			if cr.Trigger.Type == ev.Name {
				fired = append(fired, cr)
			}
		case TriggerState:
			if ev.Name == event.StateChange && stateChanged(ev, cr.Trigger.Target, cr.Trigger.State) {
				fired = append(fired, cr)
			}
		}
	}
	if len(fired) == 0 {
		return nil, nil
	}

	raw, err := json.Marshal(ev.Data())
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", ev.Name, err)
	}
	t := trigger{name: ev.Name, payload: gjson.ParseBytes(raw).Value(), raw: raw}

	for _, cr := range fired {
		if cr.match != nil && !matches(cr.match, t.payload) {
			continue
		}
		_ = m.engine.fire(ctx, cr, t)
	}
	return nil, nil
}

func stateChanged(ev event.Event, target, state string) bool {
	v, _ := ev.Get("item")
	it, ok := v.(*item.Item)
	if !ok || it.ID() != target {
		return false
	}
	changes, _ := ev.Get("changes")
	values, _ := changes.(map[string]any)
	_, ok = values[state]
	return ok
}

// Stop removes the event handler and stops timer rules.
func (m *Module) Stop(context.Context) error {
	m.mu.Lock()
	token, stop := m.token, m.stopTimers
	m.token, m.stopTimers = event.Token{}, nil
	m.mu.Unlock()

	m.k.Bus.RemoveHandler(token)
	if stop != nil {
		stop()
	}
	return nil
}
