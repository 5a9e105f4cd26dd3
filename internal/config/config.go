// Package config loads the plantd YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Device          DeviceConfig     `yaml:"device"`
	MQTT            MQTTConfig       `yaml:"mqtt"`
	Hardware        HardwareConfig   `yaml:"hardware"`
	Telemetry       TelemetryConfig  `yaml:"telemetry"`
	Reconciler      ReconcilerConfig `yaml:"reconciler"`
	Database        DatabaseConfig   `yaml:"database"`
	Ledger          LedgerConfig     `yaml:"ledger"`
	HTTP            HTTPConfig       `yaml:"http"`
	Log             LogConfig        `yaml:"log"`
	ShutdownTimeout Duration         `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// DeviceConfig identifies and calibrates the device
type DeviceConfig struct {
	ID               string   `yaml:"id"`                // Empty = derive from the first MAC address
	AirValue         int      `yaml:"air_value"`         // Raw reading in dry air (0%)
	WaterValue       int      `yaml:"water_value"`       // Raw reading submerged (100%)
	OverrideDuration Duration `yaml:"override_duration"` // How long a manual command beats the schedule
	Timezone         string   `yaml:"timezone"`          // Zone for schedule evaluation and timestamps
}

// MQTTConfig contains broker connection settings
type MQTTConfig struct {
	Broker         string   `yaml:"broker"`
	ClientIDPrefix string   `yaml:"client_id_prefix"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	TopicPrefix    string   `yaml:"topic_prefix"`
	HelloTopic     string   `yaml:"hello_topic"`
	KeepAlive      Duration `yaml:"keepalive"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
	WriteTimeout   Duration `yaml:"write_timeout"`
	PublishRPS     float64  `yaml:"publish_rps"`
	QueueSize      int      `yaml:"queue_size"` // Buffered inbound commands
}

// HardwareConfig selects the sensor/actuator driver
type HardwareConfig struct {
	Driver  string   `yaml:"driver"` // "serial" or "null"
	Port    string   `yaml:"port"`
	Baud    int      `yaml:"baud"`
	Timeout Duration `yaml:"timeout"`
	NullRaw int      `yaml:"null_raw"` // Fixed raw sample reported by the null driver
}

// TelemetryConfig contains periodic publish settings
type TelemetryConfig struct {
	Schedule   string `yaml:"schedule"` // cron spec, e.g. "@every 5m"
	MaxPayload int    `yaml:"max_payload"`
}

// ReconcilerConfig contains control loop settings
type ReconcilerConfig struct {
	ScheduleTick Duration `yaml:"schedule_tick"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig contains command ledger settings
type LedgerConfig struct {
	Enabled         *bool    `yaml:"enabled"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// IsEnabled returns whether the ledger is on (default: true)
func (c *LedgerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// HTTPConfig contains status server settings
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Addr returns host:port
func (c *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Colors bool   `yaml:"colors"`
	JSON   bool   `yaml:"json"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Location resolves Device.Timezone. Empty means the host's local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Device.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Device.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Device.Timezone, err)
	}
	return loc, nil
}

// Load reads and parses the configuration file. A .env file next to it, if
// present, is loaded into the environment first.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes and applies defaults.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) setDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./plantd.sqlite"
	}

	// Device defaults (capacitive probe calibration)
	if cfg.Device.AirValue == 0 {
		cfg.Device.AirValue = 2600
	}
	if cfg.Device.WaterValue == 0 {
		cfg.Device.WaterValue = 1150
	}
	if cfg.Device.OverrideDuration == 0 {
		cfg.Device.OverrideDuration = Duration(15 * time.Minute)
	}

	// MQTT defaults
	if cfg.MQTT.Broker == "" {
		cfg.MQTT.Broker = "tcp://localhost:1883"
	}
	if cfg.MQTT.ClientIDPrefix == "" {
		cfg.MQTT.ClientIDPrefix = "plant-esp-"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "plants"
	}
	if cfg.MQTT.HelloTopic == "" {
		cfg.MQTT.HelloTopic = cfg.MQTT.TopicPrefix + "/test"
	}
	if cfg.MQTT.KeepAlive == 0 {
		cfg.MQTT.KeepAlive = Duration(60 * time.Second)
	}
	if cfg.MQTT.ConnectTimeout == 0 {
		cfg.MQTT.ConnectTimeout = Duration(15 * time.Second)
	}
	if cfg.MQTT.WriteTimeout == 0 {
		cfg.MQTT.WriteTimeout = Duration(5 * time.Second)
	}
	if cfg.MQTT.PublishRPS == 0 {
		cfg.MQTT.PublishRPS = 5.0
	}
	if cfg.MQTT.QueueSize <= 0 {
		cfg.MQTT.QueueSize = 16
	}

	// Hardware defaults
	if cfg.Hardware.Driver == "" {
		cfg.Hardware.Driver = "null"
	}
	if cfg.Hardware.Baud == 0 {
		cfg.Hardware.Baud = 115200
	}
	if cfg.Hardware.Timeout == 0 {
		cfg.Hardware.Timeout = Duration(2 * time.Second)
	}
	if cfg.Hardware.NullRaw == 0 {
		cfg.Hardware.NullRaw = cfg.Device.AirValue
	}

	// Telemetry defaults
	if cfg.Telemetry.Schedule == "" {
		cfg.Telemetry.Schedule = "@every 5m"
	}
	if cfg.Telemetry.MaxPayload == 0 {
		cfg.Telemetry.MaxPayload = 256
	}

	// Reconciler defaults
	if cfg.Reconciler.ScheduleTick == 0 {
		cfg.Reconciler.ScheduleTick = Duration(time.Second)
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// HTTP defaults
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 9090
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

func (cfg *Config) validate() error {
	switch cfg.Hardware.Driver {
	case "null":
	case "serial":
		if cfg.Hardware.Port == "" {
			return errors.New("hardware.port is required for the serial driver")
		}
	default:
		return fmt.Errorf("unknown hardware driver %q", cfg.Hardware.Driver)
	}
	if cfg.Device.AirValue == cfg.Device.WaterValue {
		return errors.New("device.air_value and device.water_value must differ")
	}
	if _, err := cfg.Location(); err != nil {
		return err
	}
	return nil
}

// loadDotEnv loads KEY=VALUE pairs from path without overriding variables
// that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
