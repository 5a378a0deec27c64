// Package recorder writes item state changes to InfluxDB.
//
// The module owns the influxdb domain. When the domain is absent or
// enabled is false it loads and stays idle:
//
//	influxdb:
//	  enabled: true
//	  url: http://influxdb:8086
//	  token: ${INFLUX_TOKEN}
//	  org: home
//	  bucket: states
//	  stats_interval: 60
//
// Every state_change becomes one item_state point. With a positive
// stats_interval (seconds) the module also writes a hub_stats point with
// the item count at that period.
package recorder

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
	"github.com/nerrad567/homecontrol-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/homecontrol-core/internal/infrastructure/logging"
	"github.com/nerrad567/homecontrol-core/internal/item"
	"github.com/nerrad567/homecontrol-core/internal/module"
	"github.com/nerrad567/homecontrol-core/internal/scheduler"
	"github.com/nerrad567/homecontrol-core/internal/schema"
)

const (
	// ModuleName is the module name.
	ModuleName = "recorder"

	// Domain is the configuration domain the module owns.
	Domain = "influxdb"

	// MeasurementHubStats is the measurement of the periodic stats point.
	MeasurementHubStats = "hub_stats"
)

// Connector opens the InfluxDB client. influxdb.Connect is the production
// connector.
type Connector func(cfg config.InfluxDBConfig) (*influxdb.Client, error)

// Config is the influxdb domain.
type Config struct {
	config.InfluxDBConfig `yaml:",inline"`

	// StatsInterval is the hub_stats period in seconds. Zero disables it.
	StatsInterval int `yaml:"stats_interval"`
}

// Recorder implements module.Module and module.Stopper.
type Recorder struct {
	k       *core.Kernel
	connect Connector
	logger  *logging.Logger

	mu     sync.RWMutex
	client *influxdb.Client
	token  event.Token
	cancel context.CancelFunc
}

// New is the core.Factory for the recorder.
func New(k *core.Kernel) (module.Module, error) {
	return NewWithConnector(influxdb.Connect)(k)
}

// NewWithConnector returns a core.Factory whose recorder opens its client
// with connect.
func NewWithConnector(connect Connector) core.Factory {
	return func(k *core.Kernel) (module.Module, error) {
		return &Recorder{
			k:       k,
			connect: connect,
			logger:  k.Logger.With("module", ModuleName),
		}, nil
	}
}

func (r *Recorder) Name() string           { return ModuleName }
func (r *Recorder) Dependencies() []string { return nil }

// Schema validates the influxdb domain.
func Schema() schema.Schema {
	return schema.Object(
		schema.KeyDefault("enabled", schema.Bool(), false),
		schema.KeyOptional("url", schema.String()),
		schema.KeyOptional("token", schema.String()),
		schema.KeyOptional("org", schema.String()),
		schema.KeyOptional("bucket", schema.String()),
		schema.KeyOptional("batch_size", schema.IntRange(1, 100000)),
		schema.KeyOptional("flush_interval", schema.IntRange(1, 3600)),
		schema.KeyDefault("stats_interval", schema.IntRange(0, 86400), 0),
	)
}

// Init connects when the domain enables recording.
func (r *Recorder) Init(ctx context.Context) error {
	value, err := r.k.Domains.Register(ctx, Domain, domains.Options{
		Schema:  Schema(),
		Default: map[string]any{},
	})
	if err != nil {
		return fmt.Errorf("registering %s domain: %w", Domain, err)
	}
	var cfg Config
	if err := config.Decode(value, &cfg); err != nil {
		return err
	}
	if !cfg.Enabled {
		r.logger.Info("state recording disabled")
		return nil
	}
	if cfg.URL == "" || cfg.Bucket == "" {
		return fmt.Errorf("%s: url and bucket are required when enabled", Domain)
	}

	client, err := scheduler.RunBlocking(ctx, r.k.Loop, func(context.Context) (*influxdb.Client, error) {
		return r.connect(cfg.InfluxDBConfig)
	})
	if errors.Is(err, influxdb.ErrDisabled) {
		return nil
	}
	if err != nil {
		return err
	}
	client.SetOnError(func(err error) {
		r.logger.Error("influxdb write failed", "error", err)
	})

	token, err := r.k.Bus.Register(event.StateChange, r.onStateChange)
	if err != nil {
		_ = client.Close()
		return err
	}

	statsCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.client, r.token, r.cancel = client, token, cancel
	r.mu.Unlock()

	if cfg.StatsInterval > 0 {
		interval := time.Duration(cfg.StatsInterval) * time.Second
		if err := r.k.Loop.Go("recorder stats", func(ctx context.Context) {
			r.writeStats(ctx, statsCtx, interval)
		}); err != nil {
			r.logger.Warn("hub stats not started", "error", err)
		}
	}

	r.logger.Info("recording state to influxdb", "url", cfg.URL, "bucket", cfg.Bucket)
	return nil
}

// Client returns the InfluxDB client, nil while idle.
func (r *Recorder) Client() *influxdb.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client
}

func (r *Recorder) onStateChange(_ context.Context, ev event.Event) (any, error) {
	v, _ := ev.Get("item")
	it, ok := v.(*item.Item)
	client := r.Client()
	if !ok || client == nil {
		return nil, nil
	}
	changes, _ := ev.Get("changes")
	values, _ := changes.(map[string]any)
	if len(values) == 0 {
		return nil, nil
	}
	return nil, client.WriteItemState(it.ID(), it.UniqueID(), values, ev.Time)
}

// writeStats runs until the loop or the module stops.
func (r *Recorder) writeStats(loopCtx, stopCtx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-loopCtx.Done():
			return
		case <-stopCtx.Done():
			return
		case <-ticker.C:
			client := r.Client()
			if client == nil {
				return
			}
			client.WritePoint(MeasurementHubStats,
				map[string]string{"instance": r.k.InstanceID},
				map[string]interface{}{
					"items":   r.k.Items.GetItemCount(),
					"modules": len(r.k.Modules.Names()),
				})
		}
	}
}

// Stop flushes buffered points and closes the client.
func (r *Recorder) Stop(context.Context) error {
	r.mu.Lock()
	client, token, cancel := r.client, r.token, r.cancel
	r.client, r.cancel = nil, nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.k.Bus.RemoveHandler(token)
	return client.Close()
}
