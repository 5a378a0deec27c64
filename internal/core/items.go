package core

import (
	"context"
	"fmt"

	"github.com/nerrad567/homecontrol-core/internal/domains"
	"github.com/nerrad567/homecontrol-core/internal/item"
	"github.com/nerrad567/homecontrol-core/internal/module"
)

// newItemsModule returns the module that creates the items declared in the
// items domain. It follows every other module so their item types are
// registered first, and a failed module only loses its own items.
func newItemsModule(k *Kernel, others []string) module.Module {
	return &module.Descriptor{
		ModuleName: ItemsModule,
		Follows:    others,
		OnInit: func(ctx context.Context) error {
			return createConfiguredItems(ctx, k)
		},
	}
}

func createConfiguredItems(ctx context.Context, k *Kernel) error {
	value, err := k.Domains.Register(ctx, DomainItems, domains.Options{
		Schema:  item.ConfigSchema(),
		Default: []any{},
	})
	if err != nil {
		return fmt.Errorf("registering %s domain: %w", DomainItems, err)
	}

	cfgs, err := item.ParseConfigs(value)
	if err != nil {
		return err
	}

	created := 0
	for _, cfg := range cfgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		// A non-nil item with an error is registered but offline.
		if it, err := k.Items.CreateFromConfig(ctx, cfg); it == nil {
			k.Logger.Error("configured item not created", "item", cfg.ID, "type", cfg.Type, "error", err)
			continue
		}
		created++
	}
	k.Logger.Info("configured items created", "created", created, "declared", len(cfgs))
	return nil
}
