package item

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/nerrad567/homecontrol-core/internal/event"
	"github.com/nerrad567/homecontrol-core/internal/schema"
)

// Config is one entry of the items configuration domain.
type Config struct {
	ID       string
	UniqueID string
	Type     string
	Name     string
	Settings map[string]any
	States   map[string]any
}

// Constructor builds the Spec for a configured item of one type. The
// registry fills ID, UniqueID, Name, Type, Config and Initial from cfg
// when the constructor leaves them empty.
type Constructor func(ctx context.Context, cfg Config) (Spec, error)

// ConfigSchema validates the items domain:
//
//	items:
//	  - id: lamp1
//	    type: switches.Switch
//	    name: Desk lamp
//	    config: {}
//	    states: {on: true}
func ConfigSchema() schema.Schema {
	return schema.List(schema.Object(
		schema.Key("id", schema.String()),
		schema.Key("type", schema.String()),
		schema.KeyOptional("unique_id", schema.String()),
		schema.KeyOptional("name", schema.String()),
		schema.KeyDefault("config", schema.Map(schema.Any()), map[string]any{}),
		schema.KeyDefault("states", schema.Map(schema.Any()), map[string]any{}),
	))
}

// ParseConfigs converts a value validated by ConfigSchema into Configs.
func ParseConfigs(value any) ([]Config, error) {
	list, ok := value.([]any)
	if !ok {
		if value == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("item: items domain must be a list, got %T", value)
	}

	out := make([]Config, 0, len(list))
	for i, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("item: items[%d] must be a mapping, got %T", i, entry)
		}
		cfg := Config{}
		cfg.ID, _ = m["id"].(string)
		cfg.Type, _ = m["type"].(string)
		cfg.UniqueID, _ = m["unique_id"].(string)
		cfg.Name, _ = m["name"].(string)
		cfg.Settings, _ = m["config"].(map[string]any)
		cfg.States, _ = m["states"].(map[string]any)
		out = append(out, cfg)
	}
	return out, nil
}

// RegisterType makes configured items of typeName buildable.
//
// Returns ErrDuplicateType if the type already has a constructor.
func (r *Registry) RegisterType(typeName string, c Constructor) error {
	r.typesMu.Lock()
	defer r.typesMu.Unlock()

	if _, exists := r.types[typeName]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, typeName)
	}
	r.types[typeName] = c
	return nil
}

// Types returns the registered item type names, sorted.
func (r *Registry) Types() []string {
	r.typesMu.RLock()
	defer r.typesMu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateFromConfig builds, registers and starts a configured item.
//
// An item whose start fails stays registered and offline; item_not_working
// is published and the start error is returned with the item.
//
// Returns:
//   - *Item: the registered item, nil if it could not be built or registered
//   - error: ErrUnknownType, the constructor's error, ErrInvalidSpec,
//     ErrDuplicateIdentifier or the start error
func (r *Registry) CreateFromConfig(ctx context.Context, cfg Config) (*Item, error) {
	r.typesMu.RLock()
	construct, ok := r.types[cfg.Type]
	r.typesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (item %s)", ErrUnknownType, cfg.Type, cfg.ID)
	}

	spec, err := construct(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("constructing item %s: %w", cfg.ID, err)
	}
	fillSpec(&spec, cfg)

	it, err := r.NewItem(spec)
	if err != nil {
		return nil, err
	}
	if err := r.RegisterItem(it); err != nil {
		return nil, err
	}

	if err := it.Start(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			r.env.logger.Warn("item not working", "item", it.id, "error", err)
		}
		r.env.bus.Broadcast(event.ItemNotWorking, map[string]any{
			"item":  it,
			"error": err.Error(),
		})
		return it, err
	}
	return it, nil
}

func fillSpec(spec *Spec, cfg Config) {
	if spec.ID == "" {
		spec.ID = cfg.ID
	}
	if spec.UniqueID == "" {
		spec.UniqueID = cfg.UniqueID
	}
	if spec.Name == "" {
		spec.Name = cfg.Name
	}
	if spec.Type == "" {
		spec.Type = cfg.Type
	}
	if spec.Config == nil {
		spec.Config = cfg.Settings
	}
	if spec.Initial == nil {
		spec.Initial = cfg.States
	}
}
