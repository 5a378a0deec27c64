package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadDocument_Domains(t *testing.T) {
	content := `
lighting:
  brightness: 50
items:
  - id: lamp1
    type: switches.Switch
`
	path := writeFile(t, t.TempDir(), "configuration.yaml", content)

	doc, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}

	lighting, ok := doc.Domain("lighting")
	if !ok {
		t.Fatal("lighting domain missing")
	}
	m, ok := lighting.(map[string]any)
	if !ok {
		t.Fatalf("lighting is %T, want map[string]any", lighting)
	}
	if m["brightness"] != 50 {
		t.Errorf("brightness = %v, want 50", m["brightness"])
	}

	items, ok := doc["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("items = %#v, want one entry", doc["items"])
	}
}

func TestLoadDocument_EmptyFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "configuration.yaml", "\n")

	doc, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	if len(doc) != 0 {
		t.Errorf("len(doc) = %d, want 0", len(doc))
	}
}

func TestLoadDocument_MissingFile(t *testing.T) {
	if _, err := LoadDocument("/nonexistent/path/configuration.yaml"); err == nil {
		t.Error("LoadDocument() expected error for missing file, got nil")
	}
}

func TestLoadDocument_InvalidYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "configuration.yaml", "invalid: [yaml: content")

	if _, err := LoadDocument(path); err == nil {
		t.Error("LoadDocument() expected error for invalid YAML, got nil")
	}
}

func TestLoadDocument_EnvTag(t *testing.T) {
	t.Setenv("HC_TEST_BROKER", "broker.local")

	content := `
mqtt:
  broker:
    host: !env HC_TEST_BROKER
    port: !env HC_TEST_UNSET_PORT 1884
`
	path := writeFile(t, t.TempDir(), "configuration.yaml", content)

	doc, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}

	var cfg MQTTConfig
	if err := Decode(doc["mqtt"], &cfg); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if cfg.Broker.Host != "broker.local" {
		t.Errorf("Broker.Host = %q, want %q", cfg.Broker.Host, "broker.local")
	}
	if cfg.Broker.Port != 1884 {
		t.Errorf("Broker.Port = %d, want 1884", cfg.Broker.Port)
	}

	// The fallback resolves implicitly, so it decodes as an int in the raw
	// document too.
	broker := doc["mqtt"].(map[string]any)["broker"].(map[string]any)
	if broker["port"] != 1884 {
		t.Errorf("raw port = %#v, want int 1884", broker["port"])
	}
}

func TestLoadDocument_Include(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "items.yaml", "- id: lamp1\n  type: switches.Switch\n")
	path := writeFile(t, dir, "configuration.yaml", "items: !include items.yaml\n")

	doc, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	items, ok := doc["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("items = %#v, want one entry", doc["items"])
	}
}

func TestLoadDocument_IncludeLoop(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "loop.yaml", "again: !include loop.yaml\n")

	_, err := LoadDocument(path)
	if err == nil {
		t.Fatal("LoadDocument() expected error for include loop, got nil")
	}
	if !strings.Contains(err.Error(), ErrIncludeDepth.Error()) {
		t.Errorf("error = %v, want include depth error", err)
	}
}

func TestFileSource_Rereads(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "configuration.yaml", "lighting:\n  brightness: 10\n")
	src := FileSource{Path: path}

	first, err := src.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	writeFile(t, dir, "configuration.yaml", "lighting:\n  brightness: 20\n")
	second, err := src.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	b1 := first["lighting"].(map[string]any)["brightness"]
	b2 := second["lighting"].(map[string]any)["brightness"]
	if b1 != 10 || b2 != 20 {
		t.Errorf("brightness = %v then %v, want 10 then 20", b1, b2)
	}
}

func TestLoadSettings_Defaults(t *testing.T) {
	s, err := LoadSettings(Document{})
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if s.Core.Workers != 8 {
		t.Errorf("Core.Workers = %d, want 8", s.Core.Workers)
	}
	if got := s.Core.GetShutdownGrace().Seconds(); got != 1 {
		t.Errorf("GetShutdownGrace() = %vs, want 1s", got)
	}
	if s.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", s.Logging.Format)
	}
}

func TestLoadSettings_EnvOverrides(t *testing.T) {
	t.Setenv("HOMECONTROL_WORKERS", "3")
	t.Setenv("HOMECONTROL_LOG_LEVEL", "debug")
	t.Setenv("HOMECONTROL_INSTANCE_ID", "hub-1")

	doc, err := ParseDocument([]byte("core:\n  workers: 5\nlogging:\n  level: warn\n"))
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}
	s, err := LoadSettings(doc)
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}

	if s.Core.Workers != 3 {
		t.Errorf("Core.Workers = %d, want 3", s.Core.Workers)
	}
	if s.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", s.Logging.Level)
	}
	if s.Core.InstanceID != "hub-1" {
		t.Errorf("Core.InstanceID = %q, want hub-1", s.Core.InstanceID)
	}
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Settings)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			modify: func(*Settings) {},
		},
		{
			name:    "zero workers",
			modify:  func(s *Settings) { s.Core.Workers = 0 },
			wantErr: "core.workers",
		},
		{
			name:    "zero queue",
			modify:  func(s *Settings) { s.Core.QueueSize = 0 },
			wantErr: "core.queue_size",
		},
		{
			name:    "negative grace",
			modify:  func(s *Settings) { s.Core.ShutdownGrace = -1 },
			wantErr: "core.shutdown_grace",
		},
		{
			name:    "bad format",
			modify:  func(s *Settings) { s.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := defaultSettings()
			tt.modify(s)
			err := s.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDecode_KeepsDefaults(t *testing.T) {
	cfg := APIConfig{Host: "0.0.0.0", Port: 8080}
	if err := Decode(map[string]any{"port": 9000}, &cfg); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if cfg.Host != "0.0.0.0" || cfg.Port != 9000 {
		t.Errorf("cfg = %+v, want host kept and port 9000", cfg)
	}
	if cfg.Address() != "0.0.0.0:9000" {
		t.Errorf("Address() = %q", cfg.Address())
	}
}
