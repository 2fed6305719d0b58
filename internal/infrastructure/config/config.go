package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load source identifiers for ControlLoadConfig.Source.
const (
	LoadSourceRandom = "random"
	LoadSourceFixed  = "fixed"
	LoadSourceMeter  = "meter"
)

// envPrefix is the prefix for all environment variable overrides.
const envPrefix = "GRIDCONTROL_"

// Config is the root configuration structure for the grid control gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Control   ControlConfig   `yaml:"control"`
}

// SiteConfig identifies the gateway deployment.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
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
	Topics    MQTTTopicsConfig    `yaml:"topics"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// MQTTTopicsConfig holds the two namespace segments that prefix every
// device topic: {product}/{domain}/{deviceId}/{kind}.
type MQTTTopicsConfig struct {
	Product string `yaml:"product"`
	Domain  string `yaml:"domain"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
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

// TelemetryConfig controls how ingested samples are recorded.
type TelemetryConfig struct {
	// Persist enables the SQLite sample log. InfluxDB recording is
	// controlled separately by influxdb.enabled.
	Persist bool `yaml:"persist"`

	// PersistTimeout bounds a single save (milliseconds) so a slow store
	// cannot hold up the control path.
	PersistTimeout int `yaml:"persist_timeout_ms"`

	// HistoryLimit is the default number of rows returned by history queries.
	HistoryLimit int `yaml:"history_limit"`
}

// ControlConfig contains decision engine settings.
type ControlConfig struct {
	// ExportLimitKW is the default grid export ceiling applied to every device
	// that has no operator-supplied override.
	ExportLimitKW float64 `yaml:"export_limit_kw"`

	// DerateBase is the value from which the export excess is subtracted to
	// produce an active power limit (percent of nameplate).
	DerateBase float64 `yaml:"derate_base"`

	Load ControlLoadConfig `yaml:"load"`
}

// ControlLoadConfig selects where the engine gets the site consumption figure.
type ControlLoadConfig struct {
	// Source is one of "random", "fixed" or "meter".
	Source string `yaml:"source"`

	MinKW   float64 `yaml:"min_kw"`
	MaxKW   float64 `yaml:"max_kw"`
	FixedKW float64 `yaml:"fixed_kw"`

	// MeterField is the telemetry payload field holding site consumption
	// in kW when Source is "meter".
	MeterField string `yaml:"meter_field"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. .env file in the working directory, if present (never overrides real env vars)
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: GRIDCONTROL_SECTION_KEY
// For example: GRIDCONTROL_DATABASE_PATH, GRIDCONTROL_MQTT_HOST
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

	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv populates the process environment from ./.env.
// A missing file is not an error.
func loadDotEnv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Grid Control Gateway",
		},
		Database: DatabaseConfig{
			Path:        "./data/gridcontrol.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "gridcontrol-gateway",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Topics: MQTTTopicsConfig{
				Product: "prod",
				Domain:  "solar",
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Telemetry: TelemetryConfig{
			Persist:        true,
			PersistTimeout: 2000,
			HistoryLimit:   50,
		},
		Control: ControlConfig{
			ExportLimitKW: 10,
			DerateBase:    100,
			Load: ControlLoadConfig{
				Source:     LoadSourceRandom,
				MinKW:      30,
				MaxKW:      100,
				MeterField: "kwConsumption",
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRIDCONTROL_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Database
	if v := os.Getenv(envPrefix + "DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv(envPrefix + "MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv(envPrefix + "MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMQTT_PORT: %w", envPrefix, err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv(envPrefix + "MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv(envPrefix + "MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv(envPrefix + "MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv(envPrefix + "API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv(envPrefix + "INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv(envPrefix + "INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Control
	if v := os.Getenv(envPrefix + "CONTROL_EXPORT_LIMIT_KW"); v != "" {
		limit, err := parseFinite(v)
		if err != nil {
			return fmt.Errorf("%sCONTROL_EXPORT_LIMIT_KW: %w", envPrefix, err)
		}
		cfg.Control.ExportLimitKW = limit
	}
	if v := os.Getenv(envPrefix + "CONTROL_DERATE_BASE"); v != "" {
		base, err := parseFinite(v)
		if err != nil {
			return fmt.Errorf("%sCONTROL_DERATE_BASE: %w", envPrefix, err)
		}
		cfg.Control.DerateBase = base
	}
	if v := os.Getenv(envPrefix + "CONTROL_LOAD_SOURCE"); v != "" {
		cfg.Control.Load.Source = v
	}

	return nil
}

// parseFinite parses a float and rejects NaN and ±Inf, which ParseFloat accepts.
func parseFinite(v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not a finite number", v)
	}
	return f, nil
}

// finite reports whether every value is a real number.
func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
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

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if msg := validateTopicSegment("mqtt.topics.product", c.MQTT.Topics.Product); msg != "" {
		errs = append(errs, msg)
	}
	if msg := validateTopicSegment("mqtt.topics.domain", c.MQTT.Topics.Domain); msg != "" {
		errs = append(errs, msg)
	}
	if c.MQTT.Reconnect.InitialDelay < 1 {
		errs = append(errs, "mqtt.reconnect.initial_delay must be at least 1")
	}
	if c.MQTT.Reconnect.MaxDelay < c.MQTT.Reconnect.InitialDelay {
		errs = append(errs, "mqtt.reconnect.max_delay must not be less than mqtt.reconnect.initial_delay")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Control validation
	load := c.Control.Load
	if !finite(c.Control.ExportLimitKW, c.Control.DerateBase, load.MinKW, load.MaxKW, load.FixedKW) {
		errs = append(errs, "control values (export_limit_kw, derate_base, load.min_kw, load.max_kw, load.fixed_kw) must be finite numbers")
	}
	if c.Control.ExportLimitKW < 0 {
		errs = append(errs, "control.export_limit_kw must not be negative")
	}
	if c.Control.DerateBase <= 0 {
		errs = append(errs, "control.derate_base must be greater than 0")
	}
	switch c.Control.Load.Source {
	case LoadSourceRandom, LoadSourceMeter:
		if c.Control.Load.MinKW < 0 || c.Control.Load.MinKW > c.Control.Load.MaxKW {
			errs = append(errs, "control.load.min_kw must be between 0 and control.load.max_kw")
		}
	case LoadSourceFixed:
		if c.Control.Load.FixedKW < 0 {
			errs = append(errs, "control.load.fixed_kw must not be negative")
		}
	default:
		errs = append(errs, fmt.Sprintf("control.load.source %q is not one of random, fixed, meter", c.Control.Load.Source))
	}
	if c.Control.Load.Source == LoadSourceMeter && c.Control.Load.MeterField == "" {
		errs = append(errs, "control.load.meter_field is required when control.load.source is meter")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateTopicSegment rejects empty segments and anything that would change
// the shape of a topic (separators and wildcards).
func validateTopicSegment(field, value string) string {
	if value == "" {
		return field + " is required"
	}
	if strings.ContainsAny(value, "/+#") {
		return field + " must not contain '/', '+' or '#'"
	}
	return ""
}

// GetReadTimeout returns the API read timeout as a Duration.
func (a APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (a APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (a APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}

// GetPersistTimeout returns the per-sample persistence timeout.
func (c *Config) GetPersistTimeout() time.Duration {
	return time.Duration(c.Telemetry.PersistTimeout) * time.Millisecond
}
