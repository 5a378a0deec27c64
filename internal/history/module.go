package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/homecontrol-core/internal/core"
	"github.com/nerrad567/homecontrol-core/internal/domains"
	"github.com/nerrad567/homecontrol-core/internal/event"
	"github.com/nerrad567/homecontrol-core/internal/infrastructure/config"
	"github.com/nerrad567/homecontrol-core/internal/infrastructure/database"
	"github.com/nerrad567/homecontrol-core/internal/infrastructure/logging"
	"github.com/nerrad567/homecontrol-core/internal/item"
	"github.com/nerrad567/homecontrol-core/internal/module"
	"github.com/nerrad567/homecontrol-core/internal/scheduler"
	"github.com/nerrad567/homecontrol-core/internal/schema"
	"github.com/nerrad567/homecontrol-core/migrations"
)

const (
	// ModuleName is the module and configuration domain name.
	ModuleName = "history"

	defaultPath          = "data/history.db"
	defaultBusyTimeout   = 5
	defaultRetentionDays = 30
)

// ErrNotRunning is returned by Query before Init or after Stop.
var ErrNotRunning = errors.New("history: not running")

// Module records state_change events. It implements module.Module and
// module.Stopper.
type Module struct {
	k      *core.Kernel
	logger *logging.Logger

	mu    sync.RWMutex
	db    *database.DB
	repo  *Repository
	token event.Token
}

// New is the core.Factory for the history module.
func New(k *core.Kernel) (module.Module, error) {
	return &Module{
		k:      k,
		logger: k.Logger.With("module", ModuleName),
	}, nil
}

func (m *Module) Name() string           { return ModuleName }
func (m *Module) Dependencies() []string { return nil }

// Schema validates the history domain. Absent keys take the defaults of
// DefaultConfig.
func Schema() schema.Schema {
	return schema.Object(
		schema.KeyOptional("path", schema.String()),
		schema.KeyOptional("wal_mode", schema.Bool()),
		schema.KeyOptional("busy_timeout", schema.IntRange(0, 600)),
		schema.KeyOptional("retention_days", schema.IntRange(0, 3650)),
	)
}

// DefaultConfig returns the settings used for keys the domain omits.
func DefaultConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Path:          defaultPath,
		WALMode:       true,
		BusyTimeout:   defaultBusyTimeout,
		RetentionDays: defaultRetentionDays,
	}
}

// Init opens and migrates the database, prunes expired rows and starts
// recording.
func (m *Module) Init(ctx context.Context) error {
	value, err := m.k.Domains.Register(ctx, ModuleName, domains.Options{
		Schema:  Schema(),
		Default: map[string]any{},
	})
	if err != nil {
		return fmt.Errorf("registering %s domain: %w", ModuleName, err)
	}
	cfg := DefaultConfig()
	if err := config.Decode(value, &cfg); err != nil {
		return err
	}

	db, err := scheduler.RunBlocking(ctx, m.k.Loop, func(ctx context.Context) (*database.DB, error) {
		db, err := database.Open(cfg)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			db.Close() //nolint:errcheck // already failing
			return nil, err
		}
		return db, nil
	})
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}
	repo := NewRepository(db.DB)

	if cfg.RetentionDays > 0 {
		retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
		pruned, err := scheduler.RunBlocking(ctx, m.k.Loop, func(ctx context.Context) (int64, error) {
			return repo.Prune(ctx, retention)
		})
		if err != nil {
			m.logger.Warn("pruning state history failed", "error", err)
		} else if pruned > 0 {
			m.logger.Info("state history pruned", "rows", pruned, "retention_days", cfg.RetentionDays)
		}
	}

	token, err := m.k.Bus.Register(event.StateChange, m.onStateChange)
	if err != nil {
		db.Close() //nolint:errcheck // already failing
		return err
	}

	m.mu.Lock()
	m.db, m.repo, m.token = db, repo, token
	m.mu.Unlock()

	m.logger.Info("recording state history", "path", db.Path())
	return nil
}

func (m *Module) onStateChange(ctx context.Context, ev event.Event) (any, error) {
	it, _ := ev.Get("item")
	src, ok := it.(*item.Item)
	if !ok {
		return nil, nil
	}
	changes, _ := ev.Get("changes")
	values, _ := changes.(map[string]any)

	m.mu.RLock()
	repo := m.repo
	m.mu.RUnlock()
	if repo == nil {
		return nil, nil
	}

	entry := Entry{
		ItemID:     src.ID(),
		UniqueID:   src.UniqueID(),
		Changes:    values,
		RecordedAt: ev.Time,
	}
	_, err := scheduler.RunBlocking(ctx, m.k.Loop, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, repo.Record(ctx, entry)
	})
	return nil, err
}

// Query returns an item's most recent entries, newest first.
func (m *Module) Query(ctx context.Context, itemID string, limit int) ([]Entry, error) {
	m.mu.RLock()
	repo := m.repo
	m.mu.RUnlock()
	if repo == nil {
		return nil, ErrNotRunning
	}

	return scheduler.RunBlocking(ctx, m.k.Loop, func(ctx context.Context) ([]Entry, error) {
		return repo.Query(ctx, itemID, limit)
	})
}

// Stop stops recording and closes the database.
func (m *Module) Stop(context.Context) error {
	m.mu.Lock()
	db, token := m.db, m.token
	m.db, m.repo = nil, nil
	m.mu.Unlock()

	m.k.Bus.RemoveHandler(token)
	return db.Close()
}
