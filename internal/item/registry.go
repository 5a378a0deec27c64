package item

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/homecontrol-core/internal/event"
	"github.com/nerrad567/homecontrol-core/internal/metrics"
	"github.com/nerrad567/homecontrol-core/internal/scheduler"
)

// Logger is the logging interface used by the registry.
// Compatible with *logging.Logger and *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// uniqueIDNamespace seeds derived unique identifiers.
var uniqueIDNamespace = uuid.MustParse("8f4b1a52-6c1e-4f0e-9d57-2b7c4e1a9d30")

// DeriveUniqueID returns a stable unique identifier for an item type and
// identifier pair.
func DeriveUniqueID(itemType, id string) string {
	return uuid.NewSHA1(uniqueIDNamespace, []byte(itemType+"/"+id)).String()
}

// Registry is the catalog of live items and the sole authority for
// identifier uniqueness.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Registry struct {
	env *env

	mu       sync.RWMutex
	items    map[string]*Item
	byUnique map[string]string

	typesMu sync.RWMutex
	types   map[string]Constructor
}

// NewRegistry creates a registry publishing on bus. loop runs state
// polling and blocking getters; it may be nil in tests.
func NewRegistry(bus Publisher, loop *scheduler.Loop) *Registry {
	return &Registry{
		env: &env{
			bus:     bus,
			loop:    loop,
			logger:  noopLogger{},
			metrics: metrics.Noop{},
		},
		items:    make(map[string]*Item),
		byUnique: make(map[string]string),
		types:    make(map[string]Constructor),
	}
}

// SetLogger sets the logger used by the registry and its items.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.env.logger = logger
	}
}

// SetMetrics sets the activity recorder used by the registry and its items.
func (r *Registry) SetMetrics(rec metrics.Recorder) {
	if rec != nil {
		r.env.metrics = rec
	}
}

// NewItem builds an item from spec without registering it. The item
// starts offline.
//
// Returns ErrInvalidSpec if ID or Type is empty, or a state default or
// initial value does not satisfy its schema.
func (r *Registry) NewItem(spec Spec) (*Item, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("%w: identifier is required", ErrInvalidSpec)
	}
	if spec.Type == "" {
		return nil, fmt.Errorf("%w: type is required for %s", ErrInvalidSpec, spec.ID)
	}

	it := &Item{
		id:       spec.ID,
		uniqueID: spec.UniqueID,
		typ:      spec.Type,
		name:     spec.Name,
		module:   spec.Module,
		config:   spec.Config,
		actions:  spec.Actions,
		initFn:   spec.Init,
		stopFn:   spec.Stop,
		env:      r.env,
		status:   StatusOffline,
	}
	if it.uniqueID == "" {
		it.uniqueID = DeriveUniqueID(spec.Type, spec.ID)
	}
	if it.name == "" {
		it.name = spec.ID
	}
	if it.module == "" {
		it.module, _, _ = strings.Cut(spec.Type, ".")
	}
	if it.config == nil {
		it.config = map[string]any{}
	}
	if it.actions == nil {
		it.actions = Actions{}
	}

	store, err := newStore(it, spec.States, spec.Initial)
	if err != nil {
		return nil, fmt.Errorf("item %s: %w", spec.ID, err)
	}
	it.states = store
	return it, nil
}

// RegisterItem adds an item to the catalog and publishes item_created.
//
// Returns ErrDuplicateIdentifier if the identifier or unique identifier is
// already registered.
func (r *Registry) RegisterItem(it *Item) error {
	r.mu.Lock()
	if _, exists := r.items[it.id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: identifier %s", ErrDuplicateIdentifier, it.id)
	}
	if owner, exists := r.byUnique[it.uniqueID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: unique identifier %s already used by %s", ErrDuplicateIdentifier, it.uniqueID, owner)
	}
	r.items[it.id] = it
	r.byUnique[it.uniqueID] = it.id
	count := len(r.items)
	r.mu.Unlock()

	r.env.metrics.Items(count)
	r.env.logger.Debug("item registered", "item", it.id, "type", it.typ, "module", it.module)
	r.env.bus.Broadcast(event.ItemCreated, map[string]any{"item": it})
	return nil
}

// GetItem returns the item with the identifier.
func (r *Registry) GetItem(id string) (*Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	it, ok := r.items[id]
	return it, ok
}

// RemoveItem removes an item from the catalog and publishes item_removed.
// It does not stop the item.
//
// Returns ErrItemNotFound if no item has the identifier.
func (r *Registry) RemoveItem(id string) error {
	r.mu.Lock()
	it, ok := r.items[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	delete(r.items, id)
	delete(r.byUnique, it.uniqueID)
	count := len(r.items)
	r.mu.Unlock()

	r.env.metrics.Items(count)
	r.env.bus.Broadcast(event.ItemRemoved, map[string]any{"item": it})
	return nil
}

// ListItems returns all items sorted by identifier.
func (r *Registry) ListItems() []*Item {
	r.mu.RLock()
	out := make([]*Item, 0, len(r.items))
	for _, it := range r.items {
		out = append(out, it)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// GetItemsByModule returns the items owned by a module, sorted by
// identifier.
func (r *Registry) GetItemsByModule(module string) []*Item {
	var out []*Item
	for _, it := range r.ListItems() {
		if it.module == module {
			out = append(out, it)
		}
	}
	return out
}

// GetItemCount returns the number of registered items.
func (r *Registry) GetItemCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// ReleaseModule stops and removes every item owned by module. Stop
// failures are logged; removal always happens.
func (r *Registry) ReleaseModule(ctx context.Context, module string) {
	for _, it := range r.GetItemsByModule(module) {
		if err := it.Stop(ctx); err != nil {
			r.env.logger.Warn("item stop failed", "item", it.id, "error", err)
		}
		if err := r.RemoveItem(it.id); err != nil {
			r.env.logger.Debug("item already removed", "item", it.id)
		}
	}
}

// StopAll stops every item, in identifier order, without removing them.
func (r *Registry) StopAll(ctx context.Context) {
	for _, it := range r.ListItems() {
		if err := it.Stop(ctx); err != nil {
			r.env.logger.Warn("item stop failed", "item", it.id, "error", err)
		}
	}
}
