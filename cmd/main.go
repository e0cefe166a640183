package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"modbus-voltage-bridge/internal/api"
	"modbus-voltage-bridge/internal/bridge"
	"modbus-voltage-bridge/internal/config"
	"modbus-voltage-bridge/internal/device"
	"modbus-voltage-bridge/internal/homeassistant"
	"modbus-voltage-bridge/internal/logger"
	"modbus-voltage-bridge/internal/metrics"
	"modbus-voltage-bridge/internal/modbus"
	"modbus-voltage-bridge/internal/mqtt"
	"modbus-voltage-bridge/internal/recovery"
	"modbus-voltage-bridge/internal/services"
	"modbus-voltage-bridge/internal/topics"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

// Diagnostic exit codes
const (
	DiagnosticOK               = 0
	DiagnosticMQTTDisconnected = 1001
	DiagnosticModbusTimeout    = 1002
	DiagnosticModbusError      = 1003
)

// Application wires the bridge together
type Application struct {
	config  *config.Config
	metrics metrics.MetricsCollector
	modbus  *modbus.Manager
	mqtt    *mqtt.Manager
	engine  *bridge.Engine
	api     *api.Server
	state   *services.StateService
	probe   *services.ProbeService

	wg sync.WaitGroup
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}

	logger.Init(&cfg.Logging)
	logger.LogStartup("Logging initialized with level: %s", cfg.Logging.Level)

	var mc metrics.MetricsCollector = metrics.NewNullMetrics()
	if cfg.Metrics.Enabled {
		mc = metrics.NewPrometheusMetrics()
		logger.LogInfo("📊 Prometheus metrics enabled on /metrics")
	}

	mbSettings := config.NewModbusSettings(cfg)
	mbOpts := []modbus.Option{modbus.WithMetrics(mc)}
	if mbSettings.CircuitBreakerEnabled {
		mbOpts = append(mbOpts, modbus.WithCircuitBreaker(recovery.NewCircuitBreaker(recovery.CircuitBreakerConfig{
			MaxFailures: mbSettings.MaxFailures,
			Timeout:     mbSettings.BreakerTimeout,
		})))
		logger.LogInfo("🛡️ Modbus circuit breaker enabled (max failures %d, timeout %v)",
			mbSettings.MaxFailures, mbSettings.BreakerTimeout)
	}
	mb := modbus.NewManager(modbus.Endpoint{
		Host:   mbSettings.Host,
		Port:   mbSettings.Port,
		UnitID: mbSettings.UnitID,
	}, mbSettings.Timeout, mbOpts...)

	mqSettings := config.NewMQTTSettings(cfg)
	mq := mqtt.NewManager(mqtt.Settings{
		ClientID:         mqSettings.ClientID,
		Username:         mqSettings.Username,
		Password:         mqSettings.Password,
		KeepAlive:        mqSettings.KeepAlive,
		ConnectTimeout:   mqSettings.ConnectTimeout,
		OperationTimeout: mqSettings.OperationTimeout,
		QoS:              mqSettings.QoS,
		Retain:           mqSettings.Retain,
	}, mqtt.WithMetrics(mc))

	engineOpts := []bridge.Option{bridge.WithMetrics(mc)}
	if cfg.HomeAssistant.Enabled {
		discovery := homeassistant.NewPublisher(mq, homeassistant.Settings{
			DiscoveryPrefix: cfg.HomeAssistant.DiscoveryPrefix,
			DeviceID:        cfg.HomeAssistant.DeviceID,
			DeviceName:      cfg.HomeAssistant.DeviceName,
			Manufacturer:    cfg.HomeAssistant.Manufacturer,
			Model:           cfg.HomeAssistant.Model,
		})
		engineOpts = append(engineOpts, bridge.WithSubscribedHook(func(snap topics.Snapshot) {
			if err := discovery.PublishDiscovery(snap); err != nil {
				logger.LogWarn("⚠️ Home Assistant discovery failed: %v", err)
			}
		}))
		logger.LogInfo("🏠 Home Assistant discovery enabled under %s", cfg.HomeAssistant.DiscoveryPrefix)
	}

	engine := bridge.New(mb, mq, topics.NewNamespace(cfg.Topics.Base), engineOpts...)

	return &Application{
		config:  cfg,
		metrics: mc,
		modbus:  mb,
		mqtt:    mq,
		engine:  engine,
		api: api.NewServer(cfg.HTTP.Listen, engine,
			api.WithMetricsHandler(mc.Handler()),
			api.WithVersion(version)),
		state: services.NewStateService(engine, cfg.Services.StateInterval),
		probe: services.NewProbeService(engine, cfg.Services.ProbeInterval),
	}, nil
}

func (app *Application) brokerEndpoint() mqtt.Endpoint {
	return mqtt.Endpoint{Broker: app.config.MQTT.Broker, Port: app.config.MQTT.Port}
}

// Start runs the startup sequence, then the API and background services
func (app *Application) Start(ctx context.Context) error {
	logger.LogInfo("🚀 Starting Modbus voltage bridge %s...", version)

	if err := app.engine.Start(ctx, app.brokerEndpoint()); err != nil {
		return fmt.Errorf("error starting bridge: %w", err)
	}

	if err := app.api.Start(); err != nil {
		return fmt.Errorf("error starting API: %w", err)
	}

	app.wg.Add(2)
	go func() {
		defer app.wg.Done()
		app.state.Start(ctx)
	}()
	go func() {
		defer app.wg.Done()
		app.probe.Start(ctx)
	}()

	st := app.engine.Status()
	logger.LogInfo("✅ Bridge started: modbus %s (connected: %v), mqtt %s (connected: %v), base topic %s",
		st.Modbus.Endpoint.Address(), st.Modbus.Connected,
		st.MQTT.Endpoint.Address(), st.MQTT.Connected, st.Topics.Base)
	return nil
}

// Stop shuts down the API, waits for the services and closes both sessions.
// ctx must already be cancelled for the services to return.
func (app *Application) Stop() {
	logger.LogInfo("🛑 Stopping Modbus voltage bridge...")

	if err := app.api.Close(); err != nil {
		logger.LogError("⚠️ Error stopping API: %v", err)
	}
	app.wg.Wait()

	app.mqtt.Close()
	if err := app.modbus.Close(); err != nil {
		logger.LogDebug("Modbus close: %v", err)
	}

	logger.LogInfo("✅ Modbus voltage bridge stopped")
}

// DiagnosticMode checks both sides and reads every channel once
func (app *Application) DiagnosticMode(ctx context.Context) (int, error) {
	logger.LogInfo("🔍 Starting diagnostic mode...")

	logger.LogInfo("🔍 Test 1: Modbus device connectivity (%s, unit %d)",
		app.modbus.Endpoint().Address(), app.modbus.Endpoint().UnitID)
	if st := app.modbus.CheckConnection(ctx); !st.Connected {
		logger.LogError("❌ Modbus device unreachable: %s", st.Error)
		logger.LogInfo("💡 Possible issues:")
		logger.LogInfo("   - Wrong host or port (%s)", app.modbus.Endpoint().Address())
		logger.LogInfo("   - Device is not powered on")
		logger.LogInfo("   - Network connectivity issues")
		return DiagnosticModbusTimeout, fmt.Errorf("modbus device unreachable: %s", st.Error)
	}
	logger.LogInfo("✅ Modbus device reachable")

	logger.LogInfo("🔍 Test 2: MQTT broker connectivity (%s)", app.brokerEndpoint().Address())
	if err := app.mqtt.Connect(ctx, app.brokerEndpoint()); err != nil {
		logger.LogError("❌ MQTT broker connection failed: %v", err)
		return DiagnosticMQTTDisconnected, err
	}
	defer app.mqtt.Disconnect()
	logger.LogInfo("✅ MQTT broker connected")

	logger.LogInfo("🔍 Test 3: Register reads (unit %d)", app.modbus.Endpoint().UnitID)
	for _, ch := range device.Channels() {
		v, err := app.engine.ReadVoltage(ctx, ch)
		if err != nil {
			logger.LogError("❌ Read of %s failed: %v", ch, err)
			logger.LogInfo("💡 Possible issues:")
			logger.LogInfo("   - Wrong unit id (%d)", app.modbus.Endpoint().UnitID)
			logger.LogInfo("   - Device does not expose holding registers 0x0000-0x0001")
			return DiagnosticModbusError, fmt.Errorf("modbus read failed: %w", err)
		}
		lo, hi := ch.Range()
		logger.LogInfo("✅ %s: %.2f V (range %.0f-%.0f V)", ch, v, lo, hi)
	}

	logger.LogInfo("🎉 All diagnostic tests passed!")
	return DiagnosticOK, nil
}

func main() {
	configPath := pflag.StringP("config", "c", "", "Path to configuration file (optional)")
	diagnosticMode := pflag.Bool("diagnostic", false, "Run connectivity diagnostics and exit")
	showVersion := pflag.Bool("version", false, "Print version and exit")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [--config path] [--diagnostic]\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	// a bare positional argument is still accepted as the config path
	if *configPath == "" && pflag.NArg() > 0 {
		*configPath = pflag.Arg(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	app, err := NewApplication(*configPath)
	if err != nil {
		logger.LogError("Application creation error: %v", err)
		os.Exit(1)
	}

	if *diagnosticMode {
		diagCtx, diagCancel := context.WithTimeout(ctx, 30*time.Second)
		code, err := app.DiagnosticMode(diagCtx)
		diagCancel()
		if err != nil {
			logger.LogError("Diagnostic failed (code %d): %v", code, err)
			os.Exit(1)
		}
		logger.LogInfo("✅ Diagnostic completed successfully")
		return
	}

	if err := app.Start(ctx); err != nil {
		logger.LogError("Application start error: %v", err)
		os.Exit(1)
	}

	<-sigChan
	logger.LogInfo("📢 Stop signal received...")

	cancel()
	app.Stop()
}
