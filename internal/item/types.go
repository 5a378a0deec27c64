package item

import (
	"context"
	"sort"
	"time"

	"github.com/nerrad567/homecontrol-core/internal/schema"
)

// Status is an item's availability.
type Status string

const (
	// StatusOffline means the item is not running (not started, stopped, or
	// failed to start).
	StatusOffline Status = "offline"

	// StatusOnline means the item is running and accepts actions.
	StatusOnline Status = "online"

	// StatusUnavailable means the item is running but its device cannot be
	// reached.
	StatusUnavailable Status = "unavailable"
)

// AllStatuses returns all valid statuses.
func AllStatuses() []Status {
	return []Status{StatusOffline, StatusOnline, StatusUnavailable}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range AllStatuses() {
		if s == v {
			return true
		}
	}
	return false
}

// StateDef declares one state of an item.
type StateDef struct {
	// Schema validates every value. Required.
	Schema schema.Schema

	// Default is the initial value. It must satisfy Schema.
	Default any

	// Setter writes a changed value to the device before the store accepts
	// it. Optional.
	Setter func(ctx context.Context, it *Item, value any) error

	// Getter reads the current value from the device. Optional.
	Getter func(ctx context.Context, it *Item) (any, error)

	// PollInterval enables polling through Getter while the item is online.
	PollInterval time.Duration
}

// States maps state names to their definitions.
type States map[string]StateDef

// Action is one invocable operation of an item.
type Action func(ctx context.Context, it *Item, args map[string]any) (any, error)

// Actions is an item's action table.
type Actions map[string]Action

// Add registers an action under name and returns the table for chaining.
func (a Actions) Add(name string, fn Action) Actions {
	a[name] = fn
	return a
}

// Names returns the action names, sorted.
func (a Actions) Names() []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Spec is everything needed to build an item.
type Spec struct {
	ID       string
	UniqueID string
	Type     string
	Name     string
	Module   string

	// Config is the item's own settings from the items domain.
	Config map[string]any

	States  States
	Actions Actions

	// Initial overrides state defaults. Values are validated.
	Initial map[string]any

	// Init runs when the item starts. Failure leaves it offline.
	Init func(ctx context.Context, it *Item) error

	// Stop runs when the item stops. It may be called after a cancelled
	// or failed Init and must tolerate that.
	Stop func(ctx context.Context, it *Item) error
}
