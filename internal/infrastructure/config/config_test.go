package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// validConfig returns a config that passes validation.
func validConfig() *Config {
	cfg := defaultConfig()
	return cfg
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
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
  topics:
    product: "acme"
    domain: "pv"
control:
  export_limit_kw: 15
  load:
    source: "fixed"
    fixed_kw: 42
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.MQTT.Topics.Product != "acme" || cfg.MQTT.Topics.Domain != "pv" {
		t.Errorf("MQTT.Topics = %+v, want acme/pv", cfg.MQTT.Topics)
	}
	if cfg.Control.ExportLimitKW != 15 {
		t.Errorf("Control.ExportLimitKW = %v, want 15", cfg.Control.ExportLimitKW)
	}
	if cfg.Control.Load.Source != LoadSourceFixed || cfg.Control.Load.FixedKW != 42 {
		t.Errorf("Control.Load = %+v, want fixed 42", cfg.Control.Load)
	}

	// Untouched sections keep their defaults
	if cfg.Control.DerateBase != 100 {
		t.Errorf("Control.DerateBase = %v, want default 100", cfg.Control.DerateBase)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want default 8080", cfg.API.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
site:
  id: ""
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "missing site ID",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: "site.id",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "empty product namespace",
			mutate:  func(c *Config) { c.MQTT.Topics.Product = "" },
			wantErr: "mqtt.topics.product",
		},
		{
			name:    "wildcard in domain namespace",
			mutate:  func(c *Config) { c.MQTT.Topics.Domain = "solar/+" },
			wantErr: "mqtt.topics.domain",
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: "api.port",
		},
		{
			name: "port ignored when API disabled",
			mutate: func(c *Config) {
				c.API.Enabled = false
				c.API.Port = 0
			},
		},
		{
			name:    "negative export limit",
			mutate:  func(c *Config) { c.Control.ExportLimitKW = -1 },
			wantErr: "control.export_limit_kw",
		},
		{
			name:    "NaN export limit",
			mutate:  func(c *Config) { c.Control.ExportLimitKW = math.NaN() },
			wantErr: "must be finite",
		},
		{
			name:    "infinite max load",
			mutate:  func(c *Config) { c.Control.Load.MaxKW = math.Inf(1) },
			wantErr: "must be finite",
		},
		{
			name:    "NaN fixed load",
			mutate:  func(c *Config) { c.Control.Load.FixedKW = math.NaN() },
			wantErr: "must be finite",
		},
		{
			name:    "negative derate base",
			mutate:  func(c *Config) { c.Control.DerateBase = -50 },
			wantErr: "control.derate_base",
		},
		{
			name:    "zero derate base",
			mutate:  func(c *Config) { c.Control.DerateBase = 0 },
			wantErr: "control.derate_base",
		},
		{
			name:    "zero reconnect delay",
			mutate:  func(c *Config) { c.MQTT.Reconnect.InitialDelay = 0 },
			wantErr: "mqtt.reconnect.initial_delay",
		},
		{
			name:    "negative reconnect delay",
			mutate:  func(c *Config) { c.MQTT.Reconnect.InitialDelay = -1 },
			wantErr: "mqtt.reconnect.initial_delay",
		},
		{
			name: "max delay below initial delay",
			mutate: func(c *Config) {
				c.MQTT.Reconnect.InitialDelay = 10
				c.MQTT.Reconnect.MaxDelay = 5
			},
			wantErr: "mqtt.reconnect.max_delay",
		},
		{
			name: "equal reconnect delays",
			mutate: func(c *Config) {
				c.MQTT.Reconnect.InitialDelay = 1
				c.MQTT.Reconnect.MaxDelay = 1
			},
		},
		{
			name:    "unknown load source",
			mutate:  func(c *Config) { c.Control.Load.Source = "crystal-ball" },
			wantErr: "control.load.source",
		},
		{
			name: "inverted random range",
			mutate: func(c *Config) {
				c.Control.Load.MinKW = 100
				c.Control.Load.MaxKW = 30
			},
			wantErr: "control.load.min_kw",
		},
		{
			name: "meter without field",
			mutate: func(c *Config) {
				c.Control.Load.Source = LoadSourceMeter
				c.Control.Load.MeterField = ""
			},
			wantErr: "control.load.meter_field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error mentioning %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Telemetry: TelemetryConfig{PersistTimeout: 1500},
	}

	if got := cfg.API.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.API.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.API.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := cfg.GetPersistTimeout().Milliseconds(); got != 1500 {
		t.Errorf("GetPersistTimeout() = %vms, want 1500ms", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRIDCONTROL_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GRIDCONTROL_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRIDCONTROL_MQTT_PORT", "8883")
	t.Setenv("GRIDCONTROL_MQTT_USERNAME", "testuser")
	t.Setenv("GRIDCONTROL_MQTT_PASSWORD", "testpass")
	t.Setenv("GRIDCONTROL_API_HOST", "192.168.1.1")
	t.Setenv("GRIDCONTROL_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRIDCONTROL_CONTROL_EXPORT_LIMIT_KW", "12.5")
	t.Setenv("GRIDCONTROL_CONTROL_LOAD_SOURCE", "meter")
	t.Setenv("GRIDCONTROL_CONTROL_DERATE_BASE", "90")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Username != "testuser" || cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth = %+v, want testuser/testpass", cfg.MQTT.Auth)
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Control.ExportLimitKW != 12.5 {
		t.Errorf("Control.ExportLimitKW = %v, want 12.5", cfg.Control.ExportLimitKW)
	}
	if cfg.Control.Load.Source != LoadSourceMeter {
		t.Errorf("Control.Load.Source = %q, want meter", cfg.Control.Load.Source)
	}
	if cfg.Control.DerateBase != 90 {
		t.Errorf("Control.DerateBase = %v, want 90", cfg.Control.DerateBase)
	}
}

func TestApplyEnvOverrides_NonFinite(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"NaN export limit", "GRIDCONTROL_CONTROL_EXPORT_LIMIT_KW", "NaN"},
		{"infinite export limit", "GRIDCONTROL_CONTROL_EXPORT_LIMIT_KW", "+Inf"},
		{"NaN derate base", "GRIDCONTROL_CONTROL_DERATE_BASE", "nan"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			t.Setenv(tt.key, tt.value)

			if err := applyEnvOverrides(cfg); err == nil {
				t.Errorf("applyEnvOverrides() with %s=%s expected error", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_RejectsNaNExportLimit(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("site:\n  id: nan\n"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("GRIDCONTROL_CONTROL_EXPORT_LIMIT_KW", "NaN")

	if _, err := Load(configPath); err == nil {
		t.Error("Load() accepted export_limit_kw=NaN")
	}
}

func TestApplyEnvOverrides_InvalidNumber(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("GRIDCONTROL_MQTT_PORT", "not-a-port")

	if err := applyEnvOverrides(cfg); err == nil {
		t.Error("applyEnvOverrides() expected error for non-numeric port")
	}
}

func TestLoad_DotEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("site:\n  id: dotenv\n"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, ".env"), []byte("GRIDCONTROL_MQTT_CLIENT_ID=from-dotenv\n"), 0600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}

	origDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck // best-effort restore
	t.Cleanup(func() { os.Unsetenv("GRIDCONTROL_MQTT_CLIENT_ID") })

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MQTT.Broker.ClientID != "from-dotenv" {
		t.Errorf("MQTT.Broker.ClientID = %q, want from-dotenv", cfg.MQTT.Broker.ClientID)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig should validate, got %v", err)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Control.ExportLimitKW != 10 {
		t.Errorf("defaultConfig Control.ExportLimitKW = %v, want 10", cfg.Control.ExportLimitKW)
	}
	if cfg.Control.Load.MinKW != 30 || cfg.Control.Load.MaxKW != 100 {
		t.Errorf("defaultConfig Control.Load range = [%v, %v], want [30, 100]", cfg.Control.Load.MinKW, cfg.Control.Load.MaxKW)
	}
}
