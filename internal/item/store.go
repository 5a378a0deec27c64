package item

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/nerrad567/homecontrol-core/internal/scheduler"
	"github.com/nerrad567/homecontrol-core/internal/schema"
)

// Store holds one validated value per declared state of an item.
//
// Every value visible through the store satisfies its state's schema; a
// rejected update leaves the previous value in place.
type Store struct {
	item *Item
	defs States

	mu     sync.Mutex
	values map[string]any
}

func newStore(it *Item, defs States, initial map[string]any) (*Store, error) {
	s := &Store{
		item:   it,
		defs:   defs,
		values: make(map[string]any, len(defs)),
	}

	for name, def := range defs {
		if def.Schema == nil {
			return nil, fmt.Errorf("%w: state %s has no schema", ErrInvalidSpec, name)
		}
		v, err := def.Schema.Validate(schema.Copy(def.Default))
		if err != nil {
			return nil, fmt.Errorf("%w: default of state %s: %v", ErrInvalidSpec, name, err)
		}
		s.values[name] = v
	}

	for name, raw := range initial {
		def, ok := defs[name]
		if !ok {
			return nil, fmt.Errorf("%w: initial value for undeclared state %s", ErrInvalidSpec, name)
		}
		v, err := def.Schema.Validate(schema.Copy(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: initial value of state %s: %v", ErrInvalidSpec, name, err)
		}
		s.values[name] = v
	}

	return s, nil
}

// Names returns the declared state names, sorted.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.defs))
	for name := range s.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is a declared state.
func (s *Store) Has(name string) bool {
	_, ok := s.defs[name]
	return ok
}

// Get returns the current value of a state.
//
// Returns ErrUnknownState (as a *StateError) if name is not declared.
func (s *Store) Get(name string) (any, error) {
	if _, ok := s.defs[name]; !ok {
		return nil, s.stateErr(name, ErrUnknownState)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return schema.Copy(s.values[name]), nil
}

// Set validates value, writes it to the device through the state's Setter
// when it differs from the current value, stores it and publishes a
// state_change event.
//
// Returns:
//   - {name: value} when the value changed
//   - an empty map when it did not; nothing is published
//   - ErrUnknownState or ErrInvalidStateValue (as a *StateError); the
//     stored value is untouched
//   - ErrItemNotOnline (as a *StateError) if the item is not online; the
//     Setter is not called
//   - the Setter's error; the stored value is untouched
func (s *Store) Set(ctx context.Context, name string, value any) (map[string]any, error) {
	return s.set(ctx, name, value, true)
}

// Update is Set without the Setter or the online check. Integrations use it
// to report values they received from the device.
func (s *Store) Update(name string, value any) (map[string]any, error) {
	return s.set(context.Background(), name, value, false)
}

func (s *Store) set(ctx context.Context, name string, value any, useSetter bool) (map[string]any, error) {
	v, err := s.validate(name, value)
	if err != nil {
		return nil, err
	}
	if useSetter && s.item.Status() != StatusOnline {
		return nil, s.stateErr(name, ErrItemNotOnline)
	}

	s.mu.Lock()
	unchanged := reflect.DeepEqual(s.values[name], v)
	s.mu.Unlock()
	if unchanged {
		return map[string]any{}, nil
	}

	if def := s.defs[name]; useSetter && def.Setter != nil {
		if err := def.Setter(ctx, s.item, schema.Copy(v)); err != nil {
			return nil, s.stateErr(name, err)
		}
	}

	s.mu.Lock()
	s.values[name] = v
	s.mu.Unlock()

	s.item.publishChanges(map[string]any{name: schema.Copy(v)})
	return map[string]any{name: schema.Copy(v)}, nil
}

// BulkUpdate applies several values at once without Setters. Invalid
// names are skipped and reported in rejected; they are never partially
// applied. A single state_change event carries exactly the values that
// changed, and is only published when something changed.
func (s *Store) BulkUpdate(changes map[string]any) (applied map[string]any, rejected map[string]error) {
	validated := make(map[string]any, len(changes))
	for name, raw := range changes {
		v, err := s.validate(name, raw)
		if err != nil {
			if rejected == nil {
				rejected = make(map[string]error)
			}
			rejected[name] = err
			continue
		}
		validated[name] = v
	}

	applied = make(map[string]any, len(validated))
	s.mu.Lock()
	for name, v := range validated {
		if reflect.DeepEqual(s.values[name], v) {
			continue
		}
		s.values[name] = v
		applied[name] = v
	}
	s.mu.Unlock()

	if len(applied) > 0 {
		s.item.publishChanges(schema.Copy(applied).(map[string]any))
	}
	return schema.Copy(applied).(map[string]any), rejected
}

// Dump returns a snapshot of every state value.
func (s *Store) Dump() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = schema.Copy(v)
	}
	return out
}

// Poll reads a state through its Getter on the worker pool and stores the
// result with Update. States without a Getter are left alone.
func (s *Store) Poll(ctx context.Context, name string) (map[string]any, error) {
	def, ok := s.defs[name]
	if !ok {
		return nil, s.stateErr(name, ErrUnknownState)
	}
	if def.Getter == nil {
		return map[string]any{}, nil
	}

	read := func(ctx context.Context) (any, error) {
		return def.Getter(ctx, s.item)
	}

	var (
		v   any
		err error
	)
	if loop := s.item.env.loop; loop != nil {
		v, err = scheduler.RunBlocking(ctx, loop, read)
	} else {
		v, err = read(ctx)
	}
	if err != nil {
		return nil, s.stateErr(name, err)
	}
	return s.Update(name, v)
}

func (s *Store) validate(name string, value any) (any, error) {
	def, ok := s.defs[name]
	if !ok {
		return nil, s.stateErr(name, ErrUnknownState)
	}
	v, err := def.Schema.Validate(schema.Copy(value))
	if err != nil {
		return nil, s.stateErr(name, fmt.Errorf("%w: %w", ErrInvalidStateValue, err))
	}
	return v, nil
}

func (s *Store) stateErr(name string, err error) error {
	return &StateError{Item: s.item.id, State: name, Err: err}
}
