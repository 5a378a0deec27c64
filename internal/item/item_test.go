package item

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/homecontrol-core/internal/event"
	"github.com/nerrad567/homecontrol-core/internal/scheduler"
	"github.com/nerrad567/homecontrol-core/internal/schema"
)

type published struct {
	name string
	data map[string]any
}

// recordingBus captures broadcasts synchronously.
type recordingBus struct {
	mu     sync.Mutex
	events []published
}

func (b *recordingBus) Broadcast(name string, data map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{name: name, data: data})
}

func (b *recordingBus) named(name string) []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []published
	for _, e := range b.events {
		if e.name == name {
			out = append(out, e)
		}
	}
	return out
}

func lampSpec(id string) Spec {
	return Spec{
		ID:   id,
		Type: "switches.Switch",
		States: States{
			"on":         {Schema: schema.Bool(), Default: false},
			"brightness": {Schema: schema.IntRange(0, 100), Default: 0},
		},
		Actions: Actions{}.Add("toggle", func(ctx context.Context, it *Item, _ map[string]any) (any, error) {
			on, _ := it.States().Get("on")
			return it.States().Set(ctx, "on", !on.(bool))
		}),
	}
}

func newLamp(t *testing.T, id string) (*Item, *Registry, *recordingBus) {
	t.Helper()
	bus := &recordingBus{}
	reg := NewRegistry(bus, nil)
	it, err := reg.NewItem(lampSpec(id))
	if err != nil {
		t.Fatalf("NewItem() error = %v", err)
	}
	if err := reg.RegisterItem(it); err != nil {
		t.Fatalf("RegisterItem() error = %v", err)
	}
	return it, reg, bus
}

// onlineLamp is newLamp with the item started.
func onlineLamp(t *testing.T, id string) (*Item, *Registry, *recordingBus) {
	t.Helper()
	it, reg, bus := newLamp(t, id)
	if err := it.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return it, reg, bus
}

func TestStore_SetPublishesOnlyOnChange(t *testing.T) {
	it, _, bus := onlineLamp(t, "lamp1")
	ctx := context.Background()

	got, err := it.States().Set(ctx, "on", true)
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !reflect.DeepEqual(got, map[string]any{"on": true}) {
		t.Errorf("Set() = %v, want {on: true}", got)
	}

	got, err = it.States().Set(ctx, "on", true)
	if err != nil {
		t.Fatalf("second Set() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("second Set() = %v, want empty", got)
	}

	changes := bus.named(event.StateChange)
	if len(changes) != 1 {
		t.Fatalf("state_change events = %d, want 1", len(changes))
	}
	if changes[0].data["item"] != it {
		t.Error("state_change item is not lamp1")
	}
	if !reflect.DeepEqual(changes[0].data["changes"], map[string]any{"on": true}) {
		t.Errorf("state_change changes = %v", changes[0].data["changes"])
	}
}

func TestStore_InvalidValueKeepsPrevious(t *testing.T) {
	it, _, bus := onlineLamp(t, "lamp1")
	ctx := context.Background()

	if _, err := it.States().Set(ctx, "brightness", 40); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	tests := []struct {
		name  string
		value any
	}{
		{name: "out of range", value: 150},
		{name: "wrong type", value: "bright"},
		{name: "fraction", value: 4.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := it.States().Set(ctx, "brightness", tt.value)
			if !errors.Is(err, ErrInvalidStateValue) || !errors.Is(err, schema.ErrInvalid) {
				t.Fatalf("Set(%v) error = %v, want ErrInvalidStateValue", tt.value, err)
			}
			var se *StateError
			if !errors.As(err, &se) || se.Item != "lamp1" || se.State != "brightness" {
				t.Errorf("error = %#v, want StateError for lamp1.brightness", err)
			}
			if v, _ := it.States().Get("brightness"); v != 40 {
				t.Errorf("Get() = %v, want 40", v)
			}
		})
	}

	if n := len(bus.named(event.StateChange)); n != 1 {
		t.Errorf("state_change events = %d, want 1", n)
	}
}

func TestStore_UnknownState(t *testing.T) {
	it, _, _ := onlineLamp(t, "lamp1")

	if _, err := it.States().Get("colour"); !errors.Is(err, ErrUnknownState) {
		t.Errorf("Get() error = %v, want ErrUnknownState", err)
	}
	if _, err := it.States().Set(context.Background(), "colour", "red"); !errors.Is(err, ErrUnknownState) {
		t.Errorf("Set() error = %v, want ErrUnknownState", err)
	}
}

func TestStore_BulkUpdate(t *testing.T) {
	it, _, bus := newLamp(t, "lamp1")

	applied, rejected := it.States().BulkUpdate(map[string]any{
		"on":         true,
		"brightness": 500,
		"colour":     "red",
	})

	if !reflect.DeepEqual(applied, map[string]any{"on": true}) {
		t.Errorf("applied = %v, want {on: true}", applied)
	}
	if len(rejected) != 2 || !errors.Is(rejected["brightness"], ErrInvalidStateValue) || !errors.Is(rejected["colour"], ErrUnknownState) {
		t.Errorf("rejected = %v", rejected)
	}

	changes := bus.named(event.StateChange)
	if len(changes) != 1 || !reflect.DeepEqual(changes[0].data["changes"], map[string]any{"on": true}) {
		t.Fatalf("state_change events = %+v, want one with {on: true}", changes)
	}

	// Nothing changes: no event.
	applied, rejected = it.States().BulkUpdate(map[string]any{"on": true, "brightness": 0})
	if len(applied) != 0 || rejected != nil {
		t.Errorf("BulkUpdate() = %v, %v; want empty", applied, rejected)
	}
	if n := len(bus.named(event.StateChange)); n != 1 {
		t.Errorf("state_change events = %d, want 1", n)
	}
}

func TestStore_SetterAndUpdate(t *testing.T) {
	bus := &recordingBus{}
	reg := NewRegistry(bus, nil)

	var writes []any
	fail := false
	it, err := reg.NewItem(Spec{
		ID:   "relay",
		Type: "mqttbridge.Switch",
		States: States{
			"on": {
				Schema:  schema.Bool(),
				Default: false,
				Setter: func(_ context.Context, _ *Item, v any) error {
					if fail {
						return errors.New("broker down")
					}
					writes = append(writes, v)
					return nil
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("NewItem() error = %v", err)
	}
	ctx := context.Background()
	if err := it.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if _, err := it.States().Set(ctx, "on", true); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !reflect.DeepEqual(writes, []any{true}) {
		t.Errorf("writes = %v, want [true]", writes)
	}

	fail = true
	if _, err := it.States().Set(ctx, "on", false); err == nil {
		t.Fatal("Set() expected setter error")
	}
	if v, _ := it.States().Get("on"); v != true {
		t.Errorf("Get() = %v after setter failure, want true", v)
	}

	if _, err := it.States().Update("on", false); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(writes) != 1 {
		t.Errorf("Update() called the setter")
	}
}

func TestStore_SetRequiresOnline(t *testing.T) {
	bus := &recordingBus{}
	reg := NewRegistry(bus, nil)
	var writes int
	it, err := reg.NewItem(Spec{
		ID:   "relay",
		Type: "mqttbridge.Switch",
		States: States{
			"on": {
				Schema:  schema.Bool(),
				Default: false,
				Setter: func(context.Context, *Item, any) error {
					writes++
					return nil
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("NewItem() error = %v", err)
	}
	ctx := context.Background()

	tests := []struct {
		name   string
		status Status
	}{
		{name: "never started", status: StatusOffline},
		{name: "unavailable", status: StatusUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = it.SetStatus(tt.status)

			got, err := it.States().Set(ctx, "on", true)
			if !errors.Is(err, ErrItemNotOnline) {
				t.Fatalf("Set() = %v, %v; want ErrItemNotOnline", got, err)
			}
			var se *StateError
			if !errors.As(err, &se) || se.Item != "relay" || se.State != "on" {
				t.Errorf("error = %#v, want StateError for relay.on", err)
			}
			if v, _ := it.States().Get("on"); v != false {
				t.Errorf("Get() = %v, want false", v)
			}
		})
	}
	if writes != 0 {
		t.Errorf("setter called %d times on an item that is not online", writes)
	}
	if n := len(bus.named(event.StateChange)); n != 0 {
		t.Errorf("state_change events = %d, want 0", n)
	}

	// Device reports are accepted whatever the status.
	if _, err := it.States().Update("on", true); err != nil {
		t.Errorf("Update() error = %v", err)
	}
	if applied, _ := it.States().BulkUpdate(map[string]any{"on": false}); len(applied) != 1 {
		t.Errorf("BulkUpdate() applied = %v", applied)
	}
	if writes != 0 {
		t.Errorf("device reports called the setter")
	}
}

func TestStore_DumpIsSnapshot(t *testing.T) {
	it, _, _ := newLamp(t, "lamp1")

	dump := it.States().Dump()
	dump["on"] = true

	if v, _ := it.States().Get("on"); v != false {
		t.Error("Dump() exposed internal state")
	}
	if !reflect.DeepEqual(it.States().Names(), []string{"brightness", "on"}) {
		t.Errorf("Names() = %v", it.States().Names())
	}
}

func TestNewItem_InvalidSpec(t *testing.T) {
	reg := NewRegistry(&recordingBus{}, nil)

	tests := []struct {
		name string
		spec Spec
	}{
		{name: "no id", spec: Spec{Type: "x.Y"}},
		{name: "no type", spec: Spec{ID: "a"}},
		{name: "no schema", spec: Spec{ID: "a", Type: "x.Y", States: States{"on": {Default: true}}}},
		{name: "bad default", spec: Spec{ID: "a", Type: "x.Y", States: States{"on": {Schema: schema.Bool(), Default: 1}}}},
		{name: "bad initial", spec: Spec{ID: "a", Type: "x.Y", States: States{"on": {Schema: schema.Bool(), Default: false}}, Initial: map[string]any{"on": "yes"}}},
		{name: "undeclared initial", spec: Spec{ID: "a", Type: "x.Y", Initial: map[string]any{"on": true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := reg.NewItem(tt.spec); !errors.Is(err, ErrInvalidSpec) {
				t.Errorf("NewItem() error = %v, want ErrInvalidSpec", err)
			}
		})
	}
}

func TestNewItem_Derived(t *testing.T) {
	reg := NewRegistry(&recordingBus{}, nil)
	it, err := reg.NewItem(Spec{ID: "lamp1", Type: "switches.Switch"})
	if err != nil {
		t.Fatalf("NewItem() error = %v", err)
	}

	if it.Module() != "switches" || it.Name() != "lamp1" || it.Status() != StatusOffline {
		t.Errorf("item = %+v", it.Snapshot())
	}
	if it.UniqueID() != DeriveUniqueID("switches.Switch", "lamp1") {
		t.Errorf("UniqueID() = %q, want derived", it.UniqueID())
	}
	if DeriveUniqueID("switches.Switch", "lamp1") == DeriveUniqueID("switches.Switch", "lamp2") {
		t.Error("derived unique ids collide")
	}
}

func TestRegistry_Duplicates(t *testing.T) {
	_, reg, _ := newLamp(t, "lamp1")

	again, _ := reg.NewItem(lampSpec("lamp1"))
	if err := reg.RegisterItem(again); !errors.Is(err, ErrDuplicateIdentifier) {
		t.Errorf("RegisterItem() same id error = %v, want ErrDuplicateIdentifier", err)
	}

	spec := lampSpec("lamp2")
	spec.UniqueID = DeriveUniqueID("switches.Switch", "lamp1")
	clash, _ := reg.NewItem(spec)
	if err := reg.RegisterItem(clash); !errors.Is(err, ErrDuplicateIdentifier) {
		t.Errorf("RegisterItem() same unique id error = %v, want ErrDuplicateIdentifier", err)
	}

	if reg.GetItemCount() != 1 {
		t.Errorf("GetItemCount() = %d, want 1", reg.GetItemCount())
	}
}

func TestRegistry_RemoveItem(t *testing.T) {
	it, reg, bus := newLamp(t, "lamp1")

	if n := len(bus.named(event.ItemCreated)); n != 1 {
		t.Errorf("item_created events = %d, want 1", n)
	}

	if err := reg.RemoveItem("lamp1"); err != nil {
		t.Fatalf("RemoveItem() error = %v", err)
	}
	if _, ok := reg.GetItem("lamp1"); ok {
		t.Error("GetItem() found removed item")
	}
	removed := bus.named(event.ItemRemoved)
	if len(removed) != 1 || removed[0].data["item"] != it {
		t.Errorf("item_removed events = %+v", removed)
	}
	if err := reg.RemoveItem("lamp1"); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("second RemoveItem() error = %v, want ErrItemNotFound", err)
	}

	// The unique id is free again.
	again, _ := reg.NewItem(lampSpec("lamp1"))
	if err := reg.RegisterItem(again); err != nil {
		t.Errorf("RegisterItem() after removal error = %v", err)
	}
}

func TestRegistry_ListAndByModule(t *testing.T) {
	bus := &recordingBus{}
	reg := NewRegistry(bus, nil)
	for _, spec := range []Spec{
		{ID: "b", Type: "switches.Switch"},
		{ID: "a", Type: "switches.Switch"},
		{ID: "c", Type: "mqttbridge.Switch"},
	} {
		it, _ := reg.NewItem(spec)
		_ = reg.RegisterItem(it)
	}

	var ids []string
	for _, it := range reg.ListItems() {
		ids = append(ids, it.ID())
	}
	if !reflect.DeepEqual(ids, []string{"a", "b", "c"}) {
		t.Errorf("ListItems() = %v", ids)
	}
	if n := len(reg.GetItemsByModule("switches")); n != 2 {
		t.Errorf("GetItemsByModule() = %d items, want 2", n)
	}
}

func TestItem_StatusChanges(t *testing.T) {
	it, _, bus := newLamp(t, "lamp1")

	if err := it.SetStatus(StatusOnline); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	_ = it.SetStatus(StatusOnline)
	_ = it.SetStatus(StatusUnavailable)
	if err := it.SetStatus("broken"); err == nil {
		t.Error("SetStatus() accepted an invalid status")
	}

	events := bus.named(event.ItemStatusChanged)
	if len(events) != 2 {
		t.Fatalf("item_status_changed events = %d, want 2", len(events))
	}
	if events[0].data["previous"] != StatusOffline || events[0].data["status"] != StatusOnline {
		t.Errorf("first event = %v", events[0].data)
	}
	if events[1].data["previous"] != StatusOnline || events[1].data["status"] != StatusUnavailable {
		t.Errorf("second event = %v", events[1].data)
	}
	if n := len(bus.named(event.StateChange)); n != 0 {
		t.Errorf("status changes published %d state_change events", n)
	}
}

func TestItem_RunAction(t *testing.T) {
	it, _, _ := newLamp(t, "lamp1")
	ctx := context.Background()

	if _, err := it.RunAction(ctx, "toggle", nil); !errors.Is(err, ErrItemNotOnline) {
		t.Errorf("RunAction() offline error = %v, want ErrItemNotOnline", err)
	}

	if err := it.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := it.RunAction(ctx, "explode", nil); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("RunAction() error = %v, want ErrUnknownAction", err)
	}

	res, err := it.RunAction(ctx, "toggle", nil)
	if err != nil {
		t.Fatalf("RunAction() error = %v", err)
	}
	if !reflect.DeepEqual(res, map[string]any{"on": true}) {
		t.Errorf("RunAction() = %v", res)
	}
	if !reflect.DeepEqual(it.Actions(), []string{"toggle"}) {
		t.Errorf("Actions() = %v", it.Actions())
	}
}

func TestItem_StartStopIdempotent(t *testing.T) {
	bus := &recordingBus{}
	reg := NewRegistry(bus, nil)
	var inits, stops int
	it, _ := reg.NewItem(Spec{
		ID:   "lamp1",
		Type: "switches.Switch",
		Init: func(context.Context, *Item) error { inits++; return nil },
		Stop: func(context.Context, *Item) error { stops++; return nil },
	})
	ctx := context.Background()

	if err := it.Stop(ctx); err != nil || stops != 0 {
		t.Errorf("Stop() before Start ran the hook: err=%v stops=%d", err, stops)
	}

	_ = it.Start(ctx)
	_ = it.Start(ctx)
	if inits != 1 || it.Status() != StatusOnline {
		t.Errorf("inits = %d status = %s, want 1 online", inits, it.Status())
	}

	_ = it.Stop(ctx)
	_ = it.Stop(ctx)
	if stops != 1 || it.Status() != StatusOffline {
		t.Errorf("stops = %d status = %s, want 1 offline", stops, it.Status())
	}

	// Restart after stop.
	_ = it.Start(ctx)
	if inits != 2 {
		t.Errorf("inits = %d after restart, want 2", inits)
	}
}

func TestItem_StartCancelled(t *testing.T) {
	reg := NewRegistry(&recordingBus{}, nil)
	it, _ := reg.NewItem(Spec{
		ID:   "slow",
		Type: "x.Slow",
		Init: func(ctx context.Context, _ *Item) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := it.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Start() error = %v, want context.Canceled", err)
	}
	if it.Status() != StatusOffline {
		t.Errorf("Status() = %s, want offline", it.Status())
	}
	if err := it.Stop(context.Background()); err != nil {
		t.Errorf("Stop() after failed start error = %v", err)
	}
}

func TestItem_StartRetriesAfterFailedInit(t *testing.T) {
	reg := NewRegistry(&recordingBus{}, nil)
	var inits, stops int
	reachable := false
	it, _ := reg.NewItem(Spec{
		ID:   "lamp1",
		Type: "switches.Switch",
		Init: func(context.Context, *Item) error {
			inits++
			if !reachable {
				return errors.New("device unreachable")
			}
			return nil
		},
		Stop: func(context.Context, *Item) error { stops++; return nil },
	})
	ctx := context.Background()

	if err := it.Start(ctx); err == nil {
		t.Fatal("Start() expected init error")
	}
	if err := it.Start(ctx); err == nil {
		t.Error("second Start() hid the init failure")
	}
	if inits != 2 || it.Status() != StatusOffline {
		t.Errorf("inits = %d status = %s, want 2 offline", inits, it.Status())
	}
	if err := it.Stop(ctx); err != nil || stops != 0 {
		t.Errorf("Stop() after failed start: err=%v stops=%d", err, stops)
	}

	reachable = true
	if err := it.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if inits != 3 || it.Status() != StatusOnline {
		t.Errorf("inits = %d status = %s, want 3 online", inits, it.Status())
	}
}

func TestCreateFromConfig(t *testing.T) {
	bus := &recordingBus{}
	reg := NewRegistry(bus, nil)

	err := reg.RegisterType("switches.Switch", func(_ context.Context, cfg Config) (Spec, error) {
		spec := lampSpec("")
		spec.Init = func(context.Context, *Item) error {
			if cfg.Settings["broken"] == true {
				return errors.New("no response")
			}
			return nil
		}
		return spec, nil
	})
	if err != nil {
		t.Fatalf("RegisterType() error = %v", err)
	}
	if err := reg.RegisterType("switches.Switch", nil); !errors.Is(err, ErrDuplicateType) {
		t.Errorf("RegisterType() twice error = %v, want ErrDuplicateType", err)
	}

	raw := []any{
		map[string]any{"id": "lamp1", "type": "switches.Switch", "name": "Desk", "states": map[string]any{"on": true}},
		map[string]any{"id": "lamp2", "type": "switches.Switch", "config": map[string]any{"broken": true}},
		map[string]any{"id": "fan", "type": "climate.Fan"},
	}
	validated, err := ConfigSchema().Validate(raw)
	if err != nil {
		t.Fatalf("ConfigSchema() error = %v", err)
	}
	cfgs, err := ParseConfigs(validated)
	if err != nil || len(cfgs) != 3 {
		t.Fatalf("ParseConfigs() = %v, %v", cfgs, err)
	}
	ctx := context.Background()

	lamp1, err := reg.CreateFromConfig(ctx, cfgs[0])
	if err != nil {
		t.Fatalf("CreateFromConfig(lamp1) error = %v", err)
	}
	if lamp1.Status() != StatusOnline || lamp1.Name() != "Desk" {
		t.Errorf("lamp1 = %+v", lamp1.Snapshot())
	}
	if v, _ := lamp1.States().Get("on"); v != true {
		t.Errorf("lamp1 on = %v, want configured true", v)
	}

	lamp2, err := reg.CreateFromConfig(ctx, cfgs[1])
	if err == nil || lamp2 == nil {
		t.Fatalf("CreateFromConfig(lamp2) = %v, %v; want item and error", lamp2, err)
	}
	if lamp2.Status() != StatusOffline {
		t.Errorf("lamp2 status = %s, want offline", lamp2.Status())
	}
	if _, ok := reg.GetItem("lamp2"); !ok {
		t.Error("failed item not registered")
	}
	if n := len(bus.named(event.ItemNotWorking)); n != 1 {
		t.Errorf("item_not_working events = %d, want 1", n)
	}

	if _, err := reg.CreateFromConfig(ctx, cfgs[2]); !errors.Is(err, ErrUnknownType) {
		t.Errorf("CreateFromConfig(fan) error = %v, want ErrUnknownType", err)
	}
	if !reflect.DeepEqual(reg.Types(), []string{"switches.Switch"}) {
		t.Errorf("Types() = %v", reg.Types())
	}
}

func TestReleaseModule(t *testing.T) {
	bus := &recordingBus{}
	reg := NewRegistry(bus, nil)
	var stops atomic.Int32
	for _, id := range []string{"a", "b"} {
		it, _ := reg.NewItem(Spec{ID: id, Type: "switches.Switch", Stop: func(context.Context, *Item) error {
			stops.Add(1)
			return nil
		}})
		_ = reg.RegisterItem(it)
		_ = it.Start(context.Background())
	}
	other, _ := reg.NewItem(Spec{ID: "c", Type: "influx.Sensor"})
	_ = reg.RegisterItem(other)

	reg.ReleaseModule(context.Background(), "switches")

	if stops.Load() != 2 || reg.GetItemCount() != 1 {
		t.Errorf("stops = %d, items = %d; want 2 and 1", stops.Load(), reg.GetItemCount())
	}
}

func TestPolling(t *testing.T) {
	loop := scheduler.New(scheduler.Options{})
	t.Cleanup(func() { _ = loop.Shutdown(time.Second) })

	bus := &recordingBus{}
	reg := NewRegistry(bus, loop)
	var reads atomic.Int64
	it, err := reg.NewItem(Spec{
		ID:   "thermo",
		Type: "climate.Sensor",
		States: States{
			"temperature": {
				Schema:  schema.Float(),
				Default: 0.0,
				Getter: func(context.Context, *Item) (any, error) {
					return float64(reads.Add(1)), nil
				},
				PollInterval: 5 * time.Millisecond,
			},
		},
	})
	if err != nil {
		t.Fatalf("NewItem() error = %v", err)
	}
	if err := it.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for len(bus.named(event.StateChange)) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("no polled state changes")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_ = it.Stop(context.Background())
	after := reads.Load()
	time.Sleep(30 * time.Millisecond)
	if reads.Load() > after+1 {
		t.Errorf("polling continued after Stop: %d -> %d reads", after, reads.Load())
	}
}

func TestItem_MarshalJSON(t *testing.T) {
	it, _, _ := newLamp(t, "lamp1")

	data, err := json.Marshal(it)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if snap.ID != "lamp1" || snap.Status != StatusOffline || snap.States["on"] != false {
		t.Errorf("snapshot = %+v", snap)
	}
}
