package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Dirigera bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Hub       HubConfig       `yaml:"hub"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// HubConfig contains the Dirigera hub connection settings.
type HubConfig struct {
	// Host is the hub's IP address or hostname.
	Host string `yaml:"host"`

	// Port is the hub's HTTPS port. Default: 8443
	Port int `yaml:"port"`

	// APIVersion is the path prefix of the hub API. Default: "v1"
	APIVersion string `yaml:"api_version"`

	// Token is the bearer token obtained by pairing with the hub.
	// Set via GRAYLOGIC_HUB_TOKEN rather than in the file.
	Token string `yaml:"token"`

	// VerifyTLS enables certificate verification. Hubs ship a self-signed
	// certificate, so this defaults to false.
	VerifyTLS bool `yaml:"verify_tls"`

	// RequestTimeout bounds a single REST call (seconds). 0 disables the bound.
	RequestTimeout int `yaml:"request_timeout"`

	// EmptyScenes creates placeholder scenes for every controller after
	// the initial sync so their button presses reach the event stream.
	// They are removed again on shutdown.
	EmptyScenes bool `yaml:"empty_scenes"`

	// Events configures the websocket event listener.
	Events HubEventsConfig `yaml:"events"`
}

// HubEventsConfig contains settings for the hub event stream.
type HubEventsConfig struct {
	Enabled bool `yaml:"enabled"`

	// ReconnectDelay is the initial reconnect delay (seconds).
	ReconnectDelay int `yaml:"reconnect_delay"`

	// MaxReconnectDelay caps the exponential backoff (seconds).
	MaxReconnectDelay int `yaml:"max_reconnect_delay"`
}

// DiscoveryConfig contains discovery coordinator settings.
type DiscoveryConfig struct {
	// InitialSync discovers every device the hub reports at startup.
	InitialSync bool `yaml:"initial_sync"`

	// SyncConcurrency bounds concurrent discoveries during the initial sync.
	SyncConcurrency int `yaml:"sync_concurrency"`

	// RecordAttempts persists every discovery attempt to the database.
	RecordAttempts bool `yaml:"record_attempts"`

	// AttemptRetention is how long recorded attempts are kept (hours).
	// 0 keeps them regardless of age.
	AttemptRetention int `yaml:"attempt_retention"`

	// AttemptMaxRows caps the number of recorded attempts. 0 disables the cap.
	AttemptMaxRows int `yaml:"attempt_max_rows"`

	// AttemptPruneInterval is how often old attempts are pruned (minutes).
	AttemptPruneInterval int `yaml:"attempt_prune_interval"`

	// Categories limits which host categories get a platform. Empty means all.
	Categories []string `yaml:"categories"`

	// HealthInterval is how often bridge health is published (seconds).
	HealthInterval int `yaml:"health_interval"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_HUB_HOST, GRAYLOGIC_HUB_TOKEN
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Hub: HubConfig{
			Port:           8443,
			APIVersion:     "v1",
			RequestTimeout: 30,
			Events: HubEventsConfig{
				Enabled:           true,
				ReconnectDelay:    1,
				MaxReconnectDelay: 60,
			},
		},
		Discovery: DiscoveryConfig{
			InitialSync:          true,
			SyncConcurrency:      4,
			RecordAttempts:       true,
			AttemptRetention:     168,
			AttemptMaxRows:       10000,
			AttemptPruneInterval: 60,
			HealthInterval:       30,
		},
		Database: DatabaseConfig{
			Path:        "./data/dirigera.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-dirigera",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8081,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Hub
	if v := os.Getenv("GRAYLOGIC_HUB_HOST"); v != "" {
		cfg.Hub.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_HUB_TOKEN"); v != "" {
		cfg.Hub.Token = v
	}

	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// validCategories are the host categories a platform can be created for.
var validCategories = map[string]bool{
	"light":         true,
	"switch":        true,
	"fan":           true,
	"cover":         true,
	"sensor":        true,
	"binary_sensor": true,
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Hub validation
	if c.Hub.Host == "" {
		errs = append(errs, "hub.host is required (set GRAYLOGIC_HUB_HOST environment variable)")
	}
	if c.Hub.Token == "" {
		errs = append(errs, "hub.token is required (set GRAYLOGIC_HUB_TOKEN environment variable)")
	}
	if c.Hub.Port < 1 || c.Hub.Port > 65535 {
		errs = append(errs, "hub.port must be between 1 and 65535")
	}
	if c.Hub.RequestTimeout < 0 {
		errs = append(errs, "hub.request_timeout cannot be negative")
	}

	// Discovery validation
	if c.Discovery.SyncConcurrency < 1 {
		errs = append(errs, "discovery.sync_concurrency must be at least 1")
	}
	if c.Discovery.AttemptRetention < 0 {
		errs = append(errs, "discovery.attempt_retention cannot be negative")
	}
	if c.Discovery.AttemptMaxRows < 0 {
		errs = append(errs, "discovery.attempt_max_rows cannot be negative")
	}
	if c.Discovery.RecordAttempts && c.Discovery.AttemptPruneInterval < 1 {
		errs = append(errs, "discovery.attempt_prune_interval must be at least 1 when record_attempts is enabled")
	}
	for _, cat := range c.Discovery.Categories {
		if !validCategories[cat] {
			errs = append(errs, fmt.Sprintf("discovery.categories: unknown category %q", cat))
		}
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// CategoryEnabled reports whether a platform should be created for category.
func (c *Config) CategoryEnabled(category string) bool {
	if len(c.Discovery.Categories) == 0 {
		return true
	}
	for _, cat := range c.Discovery.Categories {
		if cat == category {
			return true
		}
	}
	return false
}

// GetHubRequestTimeout returns the hub REST timeout as a Duration.
func (c *Config) GetHubRequestTimeout() time.Duration {
	return time.Duration(c.Hub.RequestTimeout) * time.Second
}

// GetHealthInterval returns the bridge health publish interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Discovery.HealthInterval) * time.Second
}

// GetAttemptRetention returns the attempt retention as a Duration.
// Zero means attempts are never pruned by age.
func (c *Config) GetAttemptRetention() time.Duration {
	return time.Duration(c.Discovery.AttemptRetention) * time.Hour
}

// GetAttemptPruneInterval returns how often attempts are pruned.
func (c *Config) GetAttemptPruneInterval() time.Duration {
	return time.Duration(c.Discovery.AttemptPruneInterval) * time.Minute
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
