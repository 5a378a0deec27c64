package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings holds the bootstrap configuration the kernel needs before any
// module is loaded. It is read from the "core" and "logging" domains.
type Settings struct {
	Core    CoreConfig    `yaml:"core"`
	Logging LoggingConfig `yaml:"logging"`
}

// CoreConfig contains kernel settings.
type CoreConfig struct {
	// InstanceID identifies this hub. Generated at startup when empty.
	InstanceID string `yaml:"instance_id"`
	Name       string `yaml:"name"`

	// Workers bounds the pool used for blocking calls (device polling,
	// disk I/O).
	Workers int `yaml:"workers"`

	// QueueSize is the capacity of the scheduler run-queue used by
	// foreign goroutines.
	QueueSize int `yaml:"queue_size"`

	// ShutdownGrace is how long pending tasks may run after shutdown
	// starts before they are cancelled, in milliseconds.
	ShutdownGrace int `yaml:"shutdown_grace"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MQTTConfig contains MQTT broker connection settings (the "mqtt" domain).
type MQTTConfig struct {
	Broker      MQTTBrokerConfig `yaml:"broker"`
	Auth        MQTTAuthConfig   `yaml:"auth"`
	QoS         int              `yaml:"qos"`
	Subscribe   []string         `yaml:"subscribe"`
	StatePrefix string           `yaml:"state_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InfluxDBConfig contains InfluxDB connection settings (the "influxdb"
// domain).
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// DatabaseConfig contains SQLite settings (the "history" domain).
type DatabaseConfig struct {
	Path          string `yaml:"path"`
	WALMode       bool   `yaml:"wal_mode"`
	BusyTimeout   int    `yaml:"busy_timeout"`
	RetentionDays int    `yaml:"retention_days"`
}

// APIConfig contains HTTP façade settings (the "api" domain).
type APIConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	ReadTimeout    int      `yaml:"read_timeout"`
	WriteTimeout   int      `yaml:"write_timeout"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	// PingInterval is the websocket keepalive period in seconds.
	PingInterval int `yaml:"ping_interval"`
}

// Address returns host:port for net.Listen.
func (c APIConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadSettings extracts bootstrap settings from a document.
//
// The loading order is:
//  1. Default values
//  2. Document values (core and logging domains)
//  3. Environment variables HOMECONTROL_*
//
// Returns an error if a domain cannot be decoded or validation fails.
func LoadSettings(doc Document) (*Settings, error) {
	s := defaultSettings()

	if v, ok := doc.Domain("core"); ok {
		if err := Decode(v, &s.Core); err != nil {
			return nil, fmt.Errorf("core: %w", err)
		}
	}
	if v, ok := doc.Domain("logging"); ok {
		if err := Decode(v, &s.Logging); err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
	}

	applyEnvOverrides(s)

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return s, nil
}

func defaultSettings() *Settings {
	return &Settings{
		Core: CoreConfig{
			Name:          "homecontrol",
			Workers:       8,
			QueueSize:     256,
			ShutdownGrace: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies HOMECONTROL_* environment variables.
func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("HOMECONTROL_INSTANCE_ID"); v != "" {
		s.Core.InstanceID = v
	}
	if v := os.Getenv("HOMECONTROL_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.Core.Workers = n
		}
	}
	if v := os.Getenv("HOMECONTROL_LOG_LEVEL"); v != "" {
		s.Logging.Level = v
	}
	if v := os.Getenv("HOMECONTROL_LOG_FORMAT"); v != "" {
		s.Logging.Format = v
	}
}

// Validate checks the settings and reports every problem at once.
func (s *Settings) Validate() error {
	var errs []string

	if s.Core.Workers < 1 {
		errs = append(errs, "core.workers must be at least 1")
	}
	if s.Core.QueueSize < 1 {
		errs = append(errs, "core.queue_size must be at least 1")
	}
	if s.Core.ShutdownGrace < 0 {
		errs = append(errs, "core.shutdown_grace must not be negative")
	}

	switch strings.ToLower(s.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, "logging.format must be json or text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// GetShutdownGrace returns the shutdown grace period as a Duration.
func (c CoreConfig) GetShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGrace) * time.Millisecond
}
