package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ModbusSettings contains only Modbus-specific configuration
// Used for dependency injection to avoid coupling to full Config
type ModbusSettings struct {
	Host    string
	Port    int
	UnitID  uint8
	Timeout time.Duration

	CircuitBreakerEnabled bool
	MaxFailures           int
	BreakerTimeout        time.Duration
}

// NewModbusSettings extracts Modbus settings from full config
func NewModbusSettings(cfg *Config) ModbusSettings {
	return ModbusSettings{
		Host:                  cfg.Modbus.Host,
		Port:                  cfg.Modbus.Port,
		UnitID:                cfg.Modbus.UnitID,
		Timeout:               cfg.Modbus.Timeout,
		CircuitBreakerEnabled: cfg.Modbus.CircuitBreaker.Enabled,
		MaxFailures:           cfg.Modbus.CircuitBreaker.MaxFailures,
		BreakerTimeout:        cfg.Modbus.CircuitBreaker.Timeout,
	}
}

// MQTTSettings contains only MQTT-specific configuration
// Used for dependency injection to avoid coupling to full Config
type MQTTSettings struct {
	Broker           string
	Port             int
	Username         string
	Password         string
	ClientID         string
	KeepAlive        time.Duration
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
	QoS              byte
	Retain           bool
}

// NewMQTTSettings extracts MQTT settings from full config.
// An empty client id becomes "voltage-bridge-<uuid>" so that two bridges
// on one broker never evict each other.
func NewMQTTSettings(cfg *Config) MQTTSettings {
	clientID := cfg.MQTT.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("voltage-bridge-%s", uuid.NewString())
	}
	return MQTTSettings{
		Broker:           cfg.MQTT.Broker,
		Port:             cfg.MQTT.Port,
		Username:         cfg.MQTT.Username,
		Password:         cfg.MQTT.Password,
		ClientID:         clientID,
		KeepAlive:        cfg.MQTT.KeepAlive,
		ConnectTimeout:   cfg.MQTT.ConnectTimeout,
		OperationTimeout: cfg.MQTT.OperationTimeout,
		QoS:              cfg.MQTT.QoS,
		Retain:           cfg.MQTT.Retain,
	}
}
