package main

import (
	"fmt"
	"os"

	"modbus-voltage-bridge/internal/config"
	"modbus-voltage-bridge/internal/device"
	"modbus-voltage-bridge/internal/topics"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: validate_config <config-file>")
		os.Exit(1)
	}

	configPath := os.Args[1]
	fmt.Printf("📄 Loading config from: %s\n", configPath)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("❌ Error loading config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Config loaded successfully!\n")
	fmt.Printf("   Modbus device: %s:%d (unit %d, timeout %v)\n",
		cfg.Modbus.Host, cfg.Modbus.Port, cfg.Modbus.UnitID, cfg.Modbus.Timeout)
	if cfg.Modbus.CircuitBreaker.Enabled {
		fmt.Printf("   Circuit breaker: %d failures, %v timeout\n",
			cfg.Modbus.CircuitBreaker.MaxFailures, cfg.Modbus.CircuitBreaker.Timeout)
	}
	fmt.Printf("   MQTT Broker: %s:%d (qos %d, retain %v)\n",
		cfg.MQTT.Broker, cfg.MQTT.Port, cfg.MQTT.QoS, cfg.MQTT.Retain)

	base := cfg.Topics.Base
	fmt.Printf("   Base topic: %s\n", base)
	fmt.Printf("     Control filter: %s\n", topics.ControlFilterFor(base))
	for _, ch := range device.Channels() {
		lo, hi := ch.Range()
		addr, _ := device.AddressOf(ch)
		fmt.Printf("     %s: register 0x%04X, %g-%g V, state on %s\n",
			ch, addr, lo, hi, topics.StateTopicFor(base+topics.StateSuffix, int(ch)))
	}

	if cfg.HomeAssistant.Enabled {
		fmt.Printf("   Home Assistant discovery: %s/number/%s_channel_N/config\n",
			cfg.HomeAssistant.DiscoveryPrefix, cfg.HomeAssistant.DeviceID)
	}
	fmt.Printf("   HTTP listen: %s (metrics: %v)\n", cfg.HTTP.Listen, cfg.Metrics.Enabled)
	fmt.Printf("   Services: state every %v, probe every %v\n",
		cfg.Services.StateInterval, cfg.Services.ProbeInterval)
	fmt.Printf("   Log level: %s\n", cfg.Logging.Level)

	fmt.Println("\n✅ Configuration is valid!")
}
