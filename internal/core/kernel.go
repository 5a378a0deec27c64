package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/homecontrol-core/internal/domains"
	"github.com/nerrad567/homecontrol-core/internal/event"
	"github.com/nerrad567/homecontrol-core/internal/infrastructure/config"
	"github.com/nerrad567/homecontrol-core/internal/infrastructure/logging"
	"github.com/nerrad567/homecontrol-core/internal/item"
	"github.com/nerrad567/homecontrol-core/internal/metrics"
	"github.com/nerrad567/homecontrol-core/internal/module"
	"github.com/nerrad567/homecontrol-core/internal/scheduler"
	"github.com/nerrad567/homecontrol-core/internal/schema"
)

// Names of the domains the kernel claims itself.
const (
	DomainCore    = "core"
	DomainLogging = "logging"
	DomainModules = "modules"
	DomainItems   = "items"
)

// ItemsModule is the name of the built-in module that creates configured
// items.
const ItemsModule = "items"

// ErrBootstrapped is returned by Bootstrap when called twice.
var ErrBootstrapped = errors.New("core: kernel already bootstrapped")

// Factory builds one module. Factories run before any module initialises
// and must not perform I/O.
type Factory func(k *Kernel) (module.Module, error)

// Options configures New. Only Document is required.
type Options struct {
	// Document is the loaded configuration document.
	Document config.Document

	// Source is re-read by ReloadConfig. Optional.
	Source config.Source

	// Settings are the bootstrap settings. Loaded from Document when nil.
	Settings *config.Settings

	// Logger defaults to a discarding logger.
	Logger *logging.Logger

	// Metrics defaults to a no-op recorder.
	Metrics metrics.Recorder
}

// Kernel is the handle modules use to reach the hub's services.
//
// Thread Safety: all fields are set by New and never reassigned; the
// services they point to are safe for concurrent use.
type Kernel struct {
	Loop       *scheduler.Loop
	Bus        *event.Bus
	Domains    *domains.Manager
	Items      *item.Registry
	Modules    *module.Manager
	Logger     *logging.Logger
	Metrics    metrics.Recorder
	Settings   config.Settings
	InstanceID string

	mu           sync.Mutex
	bootstrapped bool
	stopOnce     sync.Once
	stopErr      error
}

// New wires the kernel services together. No module is loaded until
// Bootstrap.
func New(opts Options) (*Kernel, error) {
	settings := opts.Settings
	if settings == nil {
		s, err := config.LoadSettings(opts.Document)
		if err != nil {
			return nil, err
		}
		settings = s
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	rec := opts.Metrics
	if rec == nil {
		rec = metrics.Noop{}
	}

	instanceID := settings.Core.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	logger = logger.With("instance", instanceID)

	loop := scheduler.New(scheduler.Options{
		QueueSize: settings.Core.QueueSize,
		Workers:   settings.Core.Workers,
		Logger:    logger.With("component", "scheduler"),
	})

	bus := event.NewBus(loop)
	bus.SetLogger(logger.With("component", "event"))
	bus.SetMetrics(rec)

	doms := domains.NewManager(opts.Document, opts.Source)
	doms.SetLogger(logger.With("component", "config"))

	items := item.NewRegistry(bus, loop)
	items.SetLogger(logger.With("component", "item"))
	items.SetMetrics(rec)

	mods := module.NewManager(bus)
	mods.SetLogger(logger.With("component", "module"))
	mods.SetMetrics(rec)
	mods.SetReleaser(items.ReleaseModule)

	return &Kernel{
		Loop:       loop,
		Bus:        bus,
		Domains:    doms,
		Items:      items,
		Modules:    mods,
		Logger:     logger,
		Metrics:    rec,
		Settings:   *settings,
		InstanceID: instanceID,
	}, nil
}

// Bootstrap builds the modules allowed by the "modules" domain, adds the
// built-in items module and initialises them all. It returns once
// core_bootstrap_complete has been published. Individual module failures
// are not returned; query k.Modules for them.
func (k *Kernel) Bootstrap(ctx context.Context, factories ...Factory) error {
	k.mu.Lock()
	if k.bootstrapped {
		k.mu.Unlock()
		return ErrBootstrapped
	}
	k.bootstrapped = true
	k.mu.Unlock()

	// The bootstrap settings were consumed by New and cannot change at
	// runtime; claiming them makes a reload report them as skipped.
	for _, domain := range []string{DomainCore, DomainLogging} {
		if _, err := k.Domains.Register(ctx, domain, domains.Options{}); err != nil {
			return fmt.Errorf("registering %s domain: %w", domain, err)
		}
	}

	filter, err := k.moduleFilter(ctx)
	if err != nil {
		return err
	}

	var names []string
	for _, factory := range factories {
		mod, err := factory(k)
		if err != nil {
			k.Logger.Error("module could not be built", "error", err)
			continue
		}
		if !filter.allows(mod.Name()) {
			k.Logger.Info("module disabled by configuration", "module", mod.Name())
			continue
		}
		if err := k.Modules.Add(mod); err != nil {
			k.Logger.Error("module could not be added", "module", mod.Name(), "error", err)
			continue
		}
		names = append(names, mod.Name())
	}

	if err := k.Modules.Add(newItemsModule(k, names)); err != nil {
		return fmt.Errorf("adding items module: %w", err)
	}

	k.Logger.Info("loading modules", "count", len(names)+1)
	return k.Modules.Init(ctx)
}

type moduleFilter struct {
	exclude  []string
	loadOnly []string
}

func (f moduleFilter) allows(name string) bool {
	if slices.Contains(f.exclude, name) {
		return false
	}
	return len(f.loadOnly) == 0 || slices.Contains(f.loadOnly, name)
}

func modulesSchema() schema.Schema {
	return schema.Object(
		schema.KeyDefault("exclude", schema.List(schema.String()), []any{}),
		schema.KeyDefault("load_only", schema.List(schema.String()), []any{}),
	)
}

func (k *Kernel) moduleFilter(ctx context.Context) (moduleFilter, error) {
	v, err := k.Domains.Register(ctx, DomainModules, domains.Options{
		Schema:  modulesSchema(),
		Default: map[string]any{},
	})
	if err != nil {
		return moduleFilter{}, fmt.Errorf("registering %s domain: %w", DomainModules, err)
	}

	m, _ := v.(map[string]any)
	return moduleFilter{
		exclude:  toStrings(m["exclude"]),
		loadOnly: toStrings(m["load_only"]),
	}, nil
}

func toStrings(v any) []string {
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ReloadConfig re-reads the configuration source, updates every changed
// reloadable domain and publishes core_config_reloaded.
func (k *Kernel) ReloadConfig(ctx context.Context) (domains.ReloadResult, error) {
	result, err := k.Domains.Reload(ctx)
	if err != nil {
		k.Logger.Error("configuration reload failed", "error", err)
		return result, err
	}

	failed := make(map[string]string, len(result.Failed))
	for domain, ferr := range result.Failed {
		failed[domain] = ferr.Error()
	}
	k.Bus.Broadcast(event.ConfigReloaded, map[string]any{
		"updated": nonNil(result.Updated),
		"skipped": nonNil(result.Skipped),
		"failed":  failed,
	})
	return result, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Stop stops every item, then every module in reverse dependency order,
// then shuts the scheduler down within the configured grace period. It is
// idempotent and returns scheduler.ErrShutdownTimeout when tasks outlived
// the grace period.
func (k *Kernel) Stop(ctx context.Context) error {
	k.stopOnce.Do(func() {
		k.Logger.Info("stopping")
		k.Items.StopAll(ctx)
		k.Modules.Stop(ctx)
		k.stopErr = k.Loop.Shutdown(k.Settings.Core.GetShutdownGrace())
		if k.stopErr != nil {
			k.Logger.Warn("scheduler did not drain in time", "error", k.stopErr)
		}
		k.Logger.Info("stopped")
	})
	return k.stopErr
}

// Run bootstraps the kernel, blocks until ctx is cancelled, then stops it.
// Teardown uses a fresh context bounded by twice the shutdown grace.
func (k *Kernel) Run(ctx context.Context, factories ...Factory) error {
	if err := k.Bootstrap(ctx, factories...); err != nil && !errors.Is(err, context.Canceled) {
		_ = k.Stop(context.Background())
		return err
	}
	<-ctx.Done()

	grace := k.Settings.Core.GetShutdownGrace()
	stopCtx, cancel := context.WithTimeout(context.Background(), 2*grace+time.Second)
	defer cancel()
	return k.Stop(stopCtx)
}
