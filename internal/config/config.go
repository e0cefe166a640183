package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	bridgeerrors "modbus-voltage-bridge/internal/errors"
	"modbus-voltage-bridge/internal/logger"
)

// EnvPrefix is prepended to every environment override, e.g. BRIDGE_MODBUS_HOST
const EnvPrefix = "BRIDGE_"

// Config represents the complete application configuration
type Config struct {
	Modbus   ModbusConfig         `yaml:"modbus" envPrefix:"MODBUS_"`
	MQTT     MQTTConfig           `yaml:"mqtt" envPrefix:"MQTT_"`
	Topics   TopicsConfig         `yaml:"topics" envPrefix:"TOPIC_"`
	HTTP     HTTPConfig           `yaml:"http" envPrefix:"HTTP_"`
	Metrics  MetricsConfig        `yaml:"metrics" envPrefix:"METRICS_"`
	Services ServicesConfig       `yaml:"services" envPrefix:"SERVICES_"`
	Logging  logger.LoggingConfig `yaml:"logging" envPrefix:"LOG_"`

	HomeAssistant HomeAssistantConfig `yaml:"homeassistant" envPrefix:"HA_"`
}

// ModbusConfig describes the voltage source's Modbus TCP endpoint
type ModbusConfig struct {
	Host    string        `yaml:"host" env:"HOST"`
	Port    int           `yaml:"port" env:"PORT"`
	UnitID  uint8         `yaml:"unit_id" env:"UNIT_ID"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" envPrefix:"CB_"`
}

// CircuitBreakerConfig enables fail-fast on a device that keeps failing
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled" env:"ENABLED"`
	MaxFailures int           `yaml:"max_failures" env:"MAX_FAILURES"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker           string        `yaml:"broker" env:"BROKER"`
	Port             int           `yaml:"port" env:"PORT"`
	Username         string        `yaml:"username" env:"USERNAME"`
	Password         string        `yaml:"password" env:"PASSWORD"`
	ClientID         string        `yaml:"client_id" env:"CLIENT_ID"`
	KeepAlive        time.Duration `yaml:"keep_alive" env:"KEEP_ALIVE"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	OperationTimeout time.Duration `yaml:"operation_timeout" env:"OPERATION_TIMEOUT"`
	QoS              byte          `yaml:"qos" env:"QOS"`
	Retain           bool          `yaml:"retain" env:"RETAIN"`
}

// TopicsConfig holds the initial base topic
type TopicsConfig struct {
	Base string `yaml:"base" env:"BASE"`
}

// HTTPConfig configures the control API listener
type HTTPConfig struct {
	Listen string `yaml:"listen" env:"LISTEN"`
}

// MetricsConfig toggles the /metrics endpoint
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

// ServicesConfig sets the background loop intervals. Zero disables a loop.
type ServicesConfig struct {
	StateInterval time.Duration `yaml:"state_interval" env:"STATE_INTERVAL"`
	ProbeInterval time.Duration `yaml:"probe_interval" env:"PROBE_INTERVAL"`
}

// HomeAssistantConfig contains Home Assistant MQTT discovery settings
type HomeAssistantConfig struct {
	Enabled         bool   `yaml:"enabled" env:"ENABLED"`
	DiscoveryPrefix string `yaml:"discovery_prefix" env:"DISCOVERY_PREFIX"`
	DeviceID        string `yaml:"device_id" env:"DEVICE_ID"`
	DeviceName      string `yaml:"device_name" env:"DEVICE_NAME"`
	Manufacturer    string `yaml:"manufacturer" env:"MANUFACTURER"`
	Model           string `yaml:"model" env:"MODEL"`
}

// Default returns the configuration used when no file is found
func Default() *Config {
	return &Config{
		Modbus: ModbusConfig{
			Host:    "192.168.0.184",
			Port:    502,
			UnitID:  1,
			Timeout: 3 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				MaxFailures: 5,
				Timeout:     30 * time.Second,
			},
		},
		MQTT: MQTTConfig{
			Broker:           "192.168.0.180",
			Port:             1883,
			KeepAlive:        60 * time.Second,
			ConnectTimeout:   5 * time.Second,
			OperationTimeout: 5 * time.Second,
		},
		Topics: TopicsConfig{Base: "modbus"},
		HTTP:   HTTPConfig{Listen: ":5000"},
		Logging: logger.LoggingConfig{
			Level: logger.LogLevelInfo,
		},
		HomeAssistant: HomeAssistantConfig{
			DiscoveryPrefix: "homeassistant",
			DeviceID:        "modbus_voltage_source",
			DeviceName:      "Modbus Voltage Source",
			Manufacturer:    "Generic",
			Model:           "2-channel DAC",
		},
	}
}

// SearchPaths lists the locations tried after the explicit path
var SearchPaths = []string{
	"/etc/modbus-voltage-bridge/config.yaml",
	"/etc/modbus-voltage-bridge.yaml",
	"./config.yaml",
}

// LoadConfig reads configuration from configPath or the search paths,
// applies BRIDGE_* environment overrides and validates the result.
// An explicit path that cannot be read is an error; if no path was given and
// nothing is found, defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	cfg := Default()

	data, usedPath, err := readFirst(configPath)
	if err != nil {
		return nil, bridgeerrors.NewConfigError("read", err, "")
	}

	if data != nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, bridgeerrors.NewConfigError("parse",
				fmt.Errorf("error parsing configuration from %s: %w", usedPath, err), "")
		}
	} else {
		logger.LogStartup("No configuration file found, using built-in defaults")
		usedPath = "defaults"
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.LogStartup("Configuration loaded from %s", usedPath)
	return cfg, nil
}

// LoadConfigFromString loads configuration from a YAML string (for testing)
func LoadConfigFromString(yamlContent string) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(yamlContent), cfg); err != nil {
		return nil, bridgeerrors.NewConfigError("parse", fmt.Errorf("error parsing configuration: %w", err), "")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays BRIDGE_* environment variables onto cfg
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return bridgeerrors.NewConfigError("env", fmt.Errorf("parse env: %w", err), "")
	}
	return nil
}

func readFirst(configPath string) ([]byte, string, error) {
	if configPath != "" {
		// #nosec G304 - operator supplied configuration path
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, "", fmt.Errorf("cannot read configuration file %s: %w", configPath, err)
		}
		return data, configPath, nil
	}

	for _, path := range SearchPaths {
		// #nosec G304 - paths come from the fixed search list
		data, err := os.ReadFile(path)
		if err == nil {
			return data, path, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("cannot read configuration file %s: %w", path, err)
		}
	}
	return nil, "", nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	invalid := func(field string, format string, args ...interface{}) error {
		return bridgeerrors.NewConfigError("validate", fmt.Errorf(format, args...), field)
	}

	if strings.TrimSpace(c.Modbus.Host) == "" {
		return invalid("modbus.host", "is not specified")
	}
	if c.Modbus.Port <= 0 || c.Modbus.Port > 65535 {
		return invalid("modbus.port", "must be between 1 and 65535, got %d", c.Modbus.Port)
	}
	if c.Modbus.Timeout <= 0 {
		return invalid("modbus.timeout", "must be positive")
	}
	if c.Modbus.CircuitBreaker.MaxFailures < 0 {
		return invalid("modbus.circuit_breaker.max_failures", "must be non-negative")
	}
	if strings.TrimSpace(c.MQTT.Broker) == "" {
		return invalid("mqtt.broker", "is not specified")
	}
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		return invalid("mqtt.port", "must be between 1 and 65535, got %d", c.MQTT.Port)
	}
	if c.MQTT.QoS > 2 {
		return invalid("mqtt.qos", "must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.MQTT.OperationTimeout <= 0 {
		return invalid("mqtt.operation_timeout", "must be positive")
	}
	if c.MQTT.ConnectTimeout <= 0 {
		return invalid("mqtt.connect_timeout", "must be positive")
	}
	if strings.TrimSpace(c.Topics.Base) == "" {
		return invalid("topics.base", "cannot be empty")
	}
	if c.HTTP.Listen == "" {
		return invalid("http.listen", "is not specified")
	}
	if c.Services.StateInterval < 0 || c.Services.ProbeInterval < 0 {
		return invalid("services", "intervals must be non-negative")
	}
	if c.HomeAssistant.Enabled {
		if strings.TrimSpace(c.HomeAssistant.DiscoveryPrefix) == "" {
			return invalid("homeassistant.discovery_prefix", "cannot be empty")
		}
		if strings.TrimSpace(c.HomeAssistant.DeviceID) == "" {
			return invalid("homeassistant.device_id", "cannot be empty")
		}
	}
	if c.Logging.Level != "" && !logger.ValidLevel(c.Logging.Level) {
		return invalid("logging.level", "unknown level %q", c.Logging.Level)
	}
	return nil
}
