package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bridgeerrors "modbus-voltage-bridge/internal/errors"
)

const sampleConfig = `
modbus:
  host: 10.0.0.5
  port: 1502
  unit_id: 3
  timeout: 2s
mqtt:
  broker: broker.local
  port: 1884
  client_id: bench-bridge
  qos: 1
topics:
  base: lab/psu
http:
  listen: ":8080"
services:
  state_interval: 30s
logging:
  level: debug
`

func TestLoadConfigFromString(t *testing.T) {
	cfg, err := LoadConfigFromString(sampleConfig)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.Modbus.Host)
	assert.Equal(t, 1502, cfg.Modbus.Port)
	assert.Equal(t, uint8(3), cfg.Modbus.UnitID)
	assert.Equal(t, 2*time.Second, cfg.Modbus.Timeout)
	assert.Equal(t, "broker.local", cfg.MQTT.Broker)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, "lab/psu", cfg.Topics.Base)
	assert.Equal(t, ":8080", cfg.HTTP.Listen)
	assert.Equal(t, 30*time.Second, cfg.Services.StateInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// untouched sections keep their defaults
	assert.Equal(t, 5*time.Second, cfg.MQTT.OperationTimeout)
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "192.168.0.184", cfg.Modbus.Host)
	assert.Equal(t, 502, cfg.Modbus.Port)
	assert.Equal(t, "192.168.0.180", cfg.MQTT.Broker)
	assert.Equal(t, "modbus", cfg.Topics.Base)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty modbus host", func(c *Config) { c.Modbus.Host = "" }, "modbus.host"},
		{"modbus port zero", func(c *Config) { c.Modbus.Port = 0 }, "modbus.port"},
		{"mqtt port too large", func(c *Config) { c.MQTT.Port = 70000 }, "mqtt.port"},
		{"blank base topic", func(c *Config) { c.Topics.Base = "   " }, "topics.base"},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"negative interval", func(c *Config) { c.Services.ProbeInterval = -time.Second }, "services"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"discovery without prefix", func(c *Config) {
			c.HomeAssistant.Enabled = true
			c.HomeAssistant.DiscoveryPrefix = ""
		}, "homeassistant.discovery_prefix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)

			var ce *bridgeerrors.ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestUnitIDDefaultsOnlyWhenMissing(t *testing.T) {
	cfg, err := LoadConfigFromString("modbus:\n  host: 10.0.0.5\n")
	require.NoError(t, err)
	assert.Equal(t, uint8(1), cfg.Modbus.UnitID)

	cfg, err = LoadConfigFromString("modbus:\n  host: 10.0.0.5\n  unit_id: 0\n")
	require.NoError(t, err)
	assert.Equal(t, uint8(0), cfg.Modbus.UnitID)
}

func TestLoadConfigExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "lab/psu", cfg.Topics.Base)
}

func TestLoadConfigMissingExplicitPath(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.False(t, bridgeerrors.IsRecoverable(err))
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	prev := SearchPaths
	SearchPaths = []string{filepath.Join(t.TempDir(), "missing.yaml")}
	defer func() { SearchPaths = prev }()

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, Default().Modbus.Host, cfg.Modbus.Host)
}

func TestEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0600))

	t.Setenv("BRIDGE_MODBUS_HOST", "172.16.0.9")
	t.Setenv("BRIDGE_MQTT_PORT", "8883")
	t.Setenv("BRIDGE_TOPIC_BASE", "override")
	t.Setenv("BRIDGE_LOG_LEVEL", "warn")
	t.Setenv("BRIDGE_MODBUS_CB_ENABLED", "true")
	t.Setenv("BRIDGE_HA_ENABLED", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "172.16.0.9", cfg.Modbus.Host)
	assert.Equal(t, 8883, cfg.MQTT.Port)
	assert.Equal(t, "override", cfg.Topics.Base)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Modbus.CircuitBreaker.Enabled)
	assert.True(t, cfg.HomeAssistant.Enabled)
	assert.Equal(t, "homeassistant", cfg.HomeAssistant.DiscoveryPrefix)
	// not overridden
	assert.Equal(t, 1502, cfg.Modbus.Port)
}

func TestBadYAML(t *testing.T) {
	_, err := LoadConfigFromString("modbus: [unterminated")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "parse"))
}

func TestMQTTSettingsGeneratesClientID(t *testing.T) {
	cfg := Default()
	a := NewMQTTSettings(cfg)
	b := NewMQTTSettings(cfg)

	assert.True(t, strings.HasPrefix(a.ClientID, "voltage-bridge-"))
	assert.NotEqual(t, a.ClientID, b.ClientID)

	cfg.MQTT.ClientID = "fixed"
	assert.Equal(t, "fixed", NewMQTTSettings(cfg).ClientID)
}

func TestModbusSettings(t *testing.T) {
	cfg, err := LoadConfigFromString(sampleConfig)
	require.NoError(t, err)

	s := NewModbusSettings(cfg)
	assert.Equal(t, "10.0.0.5", s.Host)
	assert.Equal(t, uint8(3), s.UnitID)
	assert.False(t, s.CircuitBreakerEnabled)
	assert.Equal(t, 5, s.MaxFailures)
}
