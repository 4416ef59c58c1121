package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: "test-site"
hub:
  host: "192.168.1.50"
  token: "hub-token"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
discovery:
  sync_concurrency: 2
  categories: ["light", "switch"]
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Hub.Host != "192.168.1.50" {
		t.Errorf("Hub.Host = %q, want %q", cfg.Hub.Host, "192.168.1.50")
	}
	if cfg.Hub.Port != 8443 {
		t.Errorf("Hub.Port = %d, want default 8443", cfg.Hub.Port)
	}
	if cfg.Hub.APIVersion != "v1" {
		t.Errorf("Hub.APIVersion = %q, want default v1", cfg.Hub.APIVersion)
	}
	if cfg.Discovery.SyncConcurrency != 2 {
		t.Errorf("Discovery.SyncConcurrency = %d, want 2", cfg.Discovery.SyncConcurrency)
	}
	if !cfg.Discovery.InitialSync {
		t.Error("Discovery.InitialSync should default to true")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	configPath := writeConfig(t, `
hub:
  host: "file-host"
`)
	t.Setenv("GRAYLOGIC_HUB_HOST", "env-host")
	t.Setenv("GRAYLOGIC_HUB_TOKEN", "env-token")
	t.Setenv("GRAYLOGIC_DATABASE_PATH", "/tmp/env.db")
	t.Setenv("GRAYLOGIC_MQTT_HOST", "broker.local")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Hub.Host != "env-host" {
		t.Errorf("Hub.Host = %q, want env-host", cfg.Hub.Host)
	}
	if cfg.Hub.Token != "env-token" {
		t.Errorf("Hub.Token = %q, want env-token", cfg.Hub.Token)
	}
	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("Database.Path = %q, want /tmp/env.db", cfg.Database.Path)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want broker.local", cfg.MQTT.Broker.Host)
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: ""
database:
  path: "/tmp/test.db"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error, got nil")
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Hub.Host = "192.168.1.50"
	cfg.Hub.Token = "token"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "missing hub host",
			mutate:  func(c *Config) { c.Hub.Host = "" },
			wantErr: "hub.host is required",
		},
		{
			name:    "missing hub token",
			mutate:  func(c *Config) { c.Hub.Token = "" },
			wantErr: "hub.token is required",
		},
		{
			name:    "hub port out of range",
			mutate:  func(c *Config) { c.Hub.Port = 70000 },
			wantErr: "hub.port",
		},
		{
			name:    "negative request timeout",
			mutate:  func(c *Config) { c.Hub.RequestTimeout = -1 },
			wantErr: "hub.request_timeout",
		},
		{
			name:    "zero sync concurrency",
			mutate:  func(c *Config) { c.Discovery.SyncConcurrency = 0 },
			wantErr: "discovery.sync_concurrency",
		},
		{
			name:    "negative attempt retention",
			mutate:  func(c *Config) { c.Discovery.AttemptRetention = -1 },
			wantErr: "discovery.attempt_retention",
		},
		{
			name:    "negative attempt cap",
			mutate:  func(c *Config) { c.Discovery.AttemptMaxRows = -5 },
			wantErr: "discovery.attempt_max_rows",
		},
		{
			name:    "zero prune interval with recording",
			mutate:  func(c *Config) { c.Discovery.AttemptPruneInterval = 0 },
			wantErr: "discovery.attempt_prune_interval",
		},
		{
			name: "zero prune interval without recording",
			mutate: func(c *Config) {
				c.Discovery.RecordAttempts = false
				c.Discovery.AttemptPruneInterval = 0
			},
		},
		{
			name:    "unknown category",
			mutate:  func(c *Config) { c.Discovery.Categories = []string{"light", "vacuum"} },
			wantErr: `unknown category "vacuum"`,
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "api port ignored when disabled",
			mutate:  func(c *Config) { c.API.Enabled = false; c.API.Port = 0 },
			wantErr: "",
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_CategoryEnabled(t *testing.T) {
	cfg := validConfig()
	if !cfg.CategoryEnabled("cover") {
		t.Error("all categories should be enabled when none are listed")
	}

	cfg.Discovery.Categories = []string{"light"}
	if !cfg.CategoryEnabled("light") {
		t.Error("light should be enabled")
	}
	if cfg.CategoryEnabled("cover") {
		t.Error("cover should be disabled")
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := validConfig()

	if got := cfg.GetHubRequestTimeout(); got != 30*time.Second {
		t.Errorf("GetHubRequestTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetHealthInterval(); got != 30*time.Second {
		t.Errorf("GetHealthInterval() = %v, want 30s", got)
	}
	if got := cfg.GetAttemptRetention(); got != 168*time.Hour {
		t.Errorf("GetAttemptRetention() = %v, want 168h", got)
	}
	if got := cfg.GetAttemptPruneInterval(); got != time.Hour {
		t.Errorf("GetAttemptPruneInterval() = %v, want 1h", got)
	}
	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 60*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 60s", got)
	}
}
