package item

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/homecontrol-core/internal/event"
	"github.com/nerrad567/homecontrol-core/internal/metrics"
	"github.com/nerrad567/homecontrol-core/internal/scheduler"
	"github.com/nerrad567/homecontrol-core/internal/schema"
)

// Publisher receives the events items publish. *event.Bus satisfies it.
type Publisher interface {
	Broadcast(name string, data map[string]any)
}

// env is shared by every item of a registry.
type env struct {
	bus     Publisher
	loop    *scheduler.Loop
	logger  Logger
	metrics metrics.Recorder
}

// Item is a registered device or logical unit. Build one with
// Registry.NewItem.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Item struct {
	id       string
	uniqueID string
	typ      string
	name     string
	module   string
	config   map[string]any

	states  *Store
	actions Actions
	initFn  func(ctx context.Context, it *Item) error
	stopFn  func(ctx context.Context, it *Item) error
	env     *env

	statusMu sync.RWMutex
	status   Status

	// lifecycleMu serialises Start and Stop.
	lifecycleMu sync.Mutex
	started     bool
	stopped     bool
	cancelPolls context.CancelFunc
}

// ID returns the process-local identifier.
func (it *Item) ID() string { return it.id }

// UniqueID returns the identifier that is stable across restarts.
func (it *Item) UniqueID() string { return it.uniqueID }

// Type returns the type tag.
func (it *Item) Type() string { return it.typ }

// Name returns the display name.
func (it *Item) Name() string { return it.name }

// Module returns the owning module's name.
func (it *Item) Module() string { return it.module }

// Config returns a copy of the item's own settings.
func (it *Item) Config() map[string]any {
	return schema.Copy(it.config).(map[string]any)
}

// States returns the item's state store.
func (it *Item) States() *Store { return it.states }

// Actions returns the declared action names, sorted.
func (it *Item) Actions() []string { return it.actions.Names() }

// Status returns the current status.
func (it *Item) Status() Status {
	it.statusMu.RLock()
	defer it.statusMu.RUnlock()
	return it.status
}

// SetStatus changes the status and publishes item_status_changed with the
// previous and new status. Setting the current status again publishes
// nothing.
func (it *Item) SetStatus(status Status) error {
	if !status.Valid() {
		return fmt.Errorf("item %s: invalid status %q", it.id, status)
	}

	it.statusMu.Lock()
	previous := it.status
	it.status = status
	it.statusMu.Unlock()

	if previous == status {
		return nil
	}
	it.env.bus.Broadcast(event.ItemStatusChanged, map[string]any{
		"item":     it,
		"previous": previous,
		"status":   status,
	})
	return nil
}

// RunAction invokes a declared action.
//
// Returns ErrUnknownAction if the item has no such action, ErrItemNotOnline
// if the item is not online, or the action's own error.
func (it *Item) RunAction(ctx context.Context, name string, args map[string]any) (any, error) {
	fn, ok := it.actions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownAction, it.id, name)
	}
	if it.Status() != StatusOnline {
		return nil, fmt.Errorf("%w: %s", ErrItemNotOnline, it.id)
	}
	if args == nil {
		args = map[string]any{}
	}
	return fn(ctx, it, args)
}

// Start runs the item's Init hook and marks it online, then starts state
// polling. On failure the item stays offline and is not started, so a
// later Start runs Init again and Stop does nothing. Starting a running
// item is a no-op; a stopped item can be started again.
func (it *Item) Start(ctx context.Context) error {
	it.lifecycleMu.Lock()
	defer it.lifecycleMu.Unlock()

	if it.started && !it.stopped {
		return nil
	}

	if it.initFn != nil {
		if err := it.initFn(ctx, it); err != nil {
			_ = it.SetStatus(StatusOffline)
			return fmt.Errorf("starting item %s: %w", it.id, err)
		}
	}
	if err := ctx.Err(); err != nil {
		_ = it.SetStatus(StatusOffline)
		return fmt.Errorf("starting item %s: %w", it.id, err)
	}

	it.started = true
	it.stopped = false
	it.startPolling()
	return it.SetStatus(StatusOnline)
}

// Stop stops polling, runs the item's Stop hook and marks it offline.
// It is idempotent: stopping a stopped or never started item does nothing.
func (it *Item) Stop(ctx context.Context) error {
	it.lifecycleMu.Lock()
	defer it.lifecycleMu.Unlock()

	if !it.started || it.stopped {
		return nil
	}
	it.stopped = true

	if it.cancelPolls != nil {
		it.cancelPolls()
		it.cancelPolls = nil
	}

	var err error
	if it.stopFn != nil {
		if stopErr := it.stopFn(ctx, it); stopErr != nil {
			err = fmt.Errorf("stopping item %s: %w", it.id, stopErr)
		}
	}
	_ = it.SetStatus(StatusOffline)
	return err
}

// startPolling starts one task per polled state. Caller holds lifecycleMu.
func (it *Item) startPolling() {
	loop := it.env.loop
	if loop == nil {
		return
	}

	var polled []string
	for name, def := range it.states.defs {
		if def.Getter != nil && def.PollInterval > 0 {
			polled = append(polled, name)
		}
	}
	if len(polled) == 0 {
		return
	}

	ctx, cancel := context.WithCancel(loop.Context())
	it.cancelPolls = cancel

	for _, name := range polled {
		interval := it.states.defs[name].PollInterval
		err := loop.Go("poll:"+it.id+"."+name, func(context.Context) {
			it.poll(ctx, name, interval)
		})
		if err != nil {
			it.env.logger.Warn("state polling not started", "item", it.id, "state", name, "error", err)
		}
	}
}

func (it *Item) poll(ctx context.Context, name string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if it.Status() != StatusOnline {
				continue
			}
			if _, err := it.states.Poll(ctx, name); err != nil && ctx.Err() == nil {
				it.env.logger.Warn("polling state failed", "item", it.id, "state", name, "error", err)
			}
		}
	}
}

func (it *Item) publishChanges(changes map[string]any) {
	it.env.metrics.StateChanged(it.typ, len(changes))
	it.env.bus.Broadcast(event.StateChange, map[string]any{
		"item":    it,
		"changes": changes,
	})
}

// Snapshot is the external representation of an item.
type Snapshot struct {
	ID       string         `json:"id"`
	UniqueID string         `json:"unique_id"`
	Type     string         `json:"type"`
	Name     string         `json:"name"`
	Module   string         `json:"module"`
	Status   Status         `json:"status"`
	States   map[string]any `json:"states"`
	Actions  []string       `json:"actions"`
}

// Snapshot captures the item's current status and state values.
func (it *Item) Snapshot() Snapshot {
	return Snapshot{
		ID:       it.id,
		UniqueID: it.uniqueID,
		Type:     it.typ,
		Name:     it.name,
		Module:   it.module,
		Status:   it.Status(),
		States:   it.states.Dump(),
		Actions:  it.Actions(),
	}
}

// MarshalJSON encodes the item's Snapshot.
func (it *Item) MarshalJSON() ([]byte, error) {
	return json.Marshal(it.Snapshot())
}
