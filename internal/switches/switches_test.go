package switches

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/nerrad567/homecontrol-core/internal/core"
	"github.com/nerrad567/homecontrol-core/internal/infrastructure/config"
	"github.com/nerrad567/homecontrol-core/internal/item"
)

type memorySource struct {
	mu  sync.Mutex
	doc config.Document
}

func (s *memorySource) Load() (config.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc, nil
}

func parse(t *testing.T, text string) config.Document {
	t.Helper()
	doc, err := config.ParseDocument([]byte(text))
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}
	return doc
}

func bootstrap(t *testing.T, text string) (*core.Kernel, *memorySource) {
	t.Helper()
	doc := parse(t, text)
	src := &memorySource{doc: doc}
	k, err := core.New(core.Options{Document: doc, Source: src})
	if err != nil {
		t.Fatalf("core.New() error = %v", err)
	}
	t.Cleanup(func() { _ = k.Stop(context.Background()) })
	if err := k.Bootstrap(context.Background(), New); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	return k, src
}

func state(t *testing.T, it *item.Item) bool {
	t.Helper()
	v, err := it.States().Get(StateOn)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	return v.(bool)
}

func TestSwitch_Actions(t *testing.T) {
	k, _ := bootstrap(t, `
items:
  - id: guest_mode
    type: switches.Switch
  - id: night
    type: switches.Switch
    states:
      on: true
`)
	ctx := context.Background()

	guest, ok := k.Items.GetItem("guest_mode")
	if !ok {
		t.Fatal("guest_mode not created")
	}
	if guest.Module() != ModuleName || !slices.Equal(guest.Actions(), []string{"toggle", "turn_off", "turn_on"}) {
		t.Errorf("guest_mode = %+v", guest.Snapshot())
	}
	if state(t, guest) {
		t.Error("guest_mode initially on")
	}

	steps := []struct {
		action string
		want   bool
	}{
		{"toggle", true},
		{"toggle", false},
		{"turn_on", true},
		{"turn_on", true},
		{"turn_off", false},
	}
	for _, step := range steps {
		if _, err := guest.RunAction(ctx, step.action, nil); err != nil {
			t.Fatalf("RunAction(%s) error = %v", step.action, err)
		}
		if got := state(t, guest); got != step.want {
			t.Errorf("after %s on = %v, want %v", step.action, got, step.want)
		}
	}

	night, _ := k.Items.GetItem("night")
	if !state(t, night) {
		t.Error("configured initial state ignored")
	}

	if _, err := guest.RunAction(ctx, "dim", nil); !errors.Is(err, item.ErrUnknownAction) {
		t.Errorf("RunAction(dim) error = %v, want ErrUnknownAction", err)
	}
	if _, err := guest.States().Set(ctx, StateOn, "yes"); !errors.Is(err, item.ErrInvalidStateValue) {
		t.Errorf("Set(\"yes\") error = %v, want ErrInvalidStateValue", err)
	}
}

func TestDomain_Reload(t *testing.T) {
	k, src := bootstrap(t, "switches:\n  initial_on: false\n")

	mod, _ := k.Modules.Module(ModuleName)
	m := mod.(*Module)
	if m.Settings().InitialOn {
		t.Fatal("initial_on = true before reload")
	}

	src.mu.Lock()
	src.doc = parse(t, "switches:\n  initial_on: true\n")
	src.mu.Unlock()

	result, err := k.ReloadConfig(context.Background())
	if err != nil {
		t.Fatalf("ReloadConfig() error = %v", err)
	}
	if !slices.Equal(result.Updated, []string{ModuleName}) {
		t.Errorf("ReloadConfig() = %+v", result)
	}
	if !m.Settings().InitialOn {
		t.Error("initial_on not applied")
	}

	it, err := k.Items.CreateFromConfig(context.Background(), item.Config{ID: "late", Type: TypeSwitch})
	if err != nil {
		t.Fatalf("CreateFromConfig() error = %v", err)
	}
	if !state(t, it) {
		t.Error("switch created after reload does not use the new initial value")
	}
}
