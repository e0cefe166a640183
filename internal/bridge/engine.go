// Package bridge connects the voltage source's Modbus registers to MQTT.
// The Engine owns both sessions and the topic namespace; the HTTP API and
// the MQTT control loop both go through it.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"modbus-voltage-bridge/internal/device"
	bridgeerrors "modbus-voltage-bridge/internal/errors"
	"modbus-voltage-bridge/internal/logger"
	"modbus-voltage-bridge/internal/metrics"
	"modbus-voltage-bridge/internal/modbus"
	"modbus-voltage-bridge/internal/mqtt"
	"modbus-voltage-bridge/internal/topics"
)

// ModbusSession is the part of modbus.Manager the engine uses
type ModbusSession interface {
	ReadRegister(ctx context.Context, address uint16) (uint16, error)
	WriteRegister(ctx context.Context, address, value uint16) error
	CheckConnection(ctx context.Context) modbus.Status
	SetEndpoint(ctx context.Context, ep modbus.Endpoint) modbus.Status
	Endpoint() modbus.Endpoint
	Status() modbus.Status
}

// MQTTSession is the part of mqtt.Manager the engine uses
type MQTTSession interface {
	Connect(ctx context.Context, ep mqtt.Endpoint) error
	Publish(topic string, payload []byte) error
	Subscribe(filter string, handler mqtt.MessageHandler) error
	Unsubscribe(filter string) error
	IsConnected() bool
	SetOnConnect(fn func())
	Endpoint() mqtt.Endpoint
	Status() mqtt.Status
}

// StateMessage is the payload published on <state_prefix>/channel_<n>
type StateMessage struct {
	Channel int     `json:"channel"`
	Voltage float64 `json:"voltage"`
}

// Engine is the bridge core
type Engine struct {
	modbus  ModbusSession
	mqtt    MQTTSession
	ns      *topics.Namespace
	log     logger.ILogger
	errs    *bridgeerrors.ErrorHandler
	metrics metrics.MetricsCollector
	health  *HealthTracker

	// mqttMu serializes broker reconfiguration and topic rebinds
	mqttMu sync.Mutex
	// subMu keeps the control subscription consistent with the namespace
	// across rebinds and automatic reconnects
	subMu sync.Mutex

	onSubscribed func(topics.Snapshot)
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger injects a logger
func WithLogger(l logger.ILogger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics reports control message outcomes and handled errors to mc
func WithMetrics(mc metrics.MetricsCollector) Option {
	return func(e *Engine) { e.metrics = mc }
}

// WithSubscribedHook calls fn with the active namespace each time the
// control subscription is established, after a connect or a rebind.
// fn must not call back into the engine.
func WithSubscribedHook(fn func(topics.Snapshot)) Option {
	return func(e *Engine) { e.onSubscribed = fn }
}

// New wires an engine and registers the on-connect resubscription
func New(mb ModbusSession, mq MQTTSession, ns *topics.Namespace, opts ...Option) *Engine {
	e := &Engine{
		modbus:  mb,
		mqtt:    mq,
		ns:      ns,
		log:     logger.NewStandardLogger(),
		metrics: metrics.NewNullMetrics(),
		health:  NewHealthTracker(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.errs = bridgeerrors.NewErrorHandler(e.log, e.metrics)
	mq.SetOnConnect(e.subscribeControl)
	return e
}

// Start runs the startup sequence: probe the device, connect to the broker
// and publish the initial state. Neither side being down is fatal.
func (e *Engine) Start(ctx context.Context, ep mqtt.Endpoint) error {
	st := e.modbus.CheckConnection(ctx)
	e.log.LogInfo("Modbus device %s connected: %v", e.modbus.Endpoint().Address(), st.Connected)

	e.mqttMu.Lock()
	err := e.mqtt.Connect(ctx, ep)
	e.mqttMu.Unlock()
	if err != nil {
		e.errs.Handle(err)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if e.mqtt.IsConnected() {
		if err := e.PublishAllState(ctx); err != nil {
			e.errs.Handle(err)
		}
	}
	return nil
}

// Health returns the tracker fed by every register exchange
func (e *Engine) Health() *HealthTracker {
	return e.health
}

// Namespace returns a snapshot of the current topics
func (e *Engine) Namespace() topics.Snapshot {
	return e.ns.Snapshot()
}

// ReadVoltage reads the channel's register and converts it to volts
func (e *Engine) ReadVoltage(ctx context.Context, ch device.Channel) (float64, error) {
	addr, err := device.AddressOf(ch)
	if err != nil {
		return 0, err
	}

	raw, err := e.modbus.ReadRegister(ctx, addr)
	e.health.Record(err)
	if err != nil {
		return 0, err
	}
	return device.Decode(raw), nil
}

// SetVoltage validates v against the channel's range, writes it, and on
// acknowledgement republishes the state of both channels. Nothing touches
// the device when validation fails.
func (e *Engine) SetVoltage(ctx context.Context, ch device.Channel, v float64) error {
	if err := device.ValidateVoltage(ch, v); err != nil {
		return err
	}
	addr, err := device.AddressOf(ch)
	if err != nil {
		return err
	}

	err = e.modbus.WriteRegister(ctx, addr, device.Encode(v))
	e.health.Record(err)
	if err != nil {
		return err
	}
	e.log.LogInfo("Channel %d set to %.2f V", int(ch), v)

	if err := e.PublishAllState(ctx); err != nil && !errors.Is(err, bridgeerrors.ErrNotConnected) {
		e.errs.Handle(err)
	}
	return nil
}

// PublishAllState reads every channel and publishes the readable ones.
// With no broker session it does nothing and returns an error wrapping
// ErrNotConnected. Unreadable channels are skipped.
func (e *Engine) PublishAllState(ctx context.Context) error {
	if !e.mqtt.IsConnected() {
		e.log.LogDebug("Skipping state publish, MQTT not connected")
		return bridgeerrors.NewMQTTError("publish_state", bridgeerrors.ErrNotConnected, e.mqtt.Endpoint().Address())
	}

	statePrefix := e.ns.StatePrefix()
	var errs []error
	for _, ch := range device.Channels() {
		v, err := e.ReadVoltage(ctx, ch)
		if err != nil {
			e.log.LogWarn("Skipping state of channel %d: %v", int(ch), err)
			continue
		}

		payload, err := json.Marshal(StateMessage{Channel: int(ch), Voltage: v})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		topic := topics.StateTopicFor(statePrefix, int(ch))
		if err := e.mqtt.Publish(topic, payload); err != nil {
			errs = append(errs, err)
			continue
		}
		e.log.LogDebug("Published %s = %.2f V", topic, v)
	}
	return errors.Join(errs...)
}

// RebindTopic moves the bridge to a new base topic. Blank input is
// rejected and leaves the namespace untouched. While connected the old
// control filter is unsubscribed and the new one subscribed; both steps are
// best effort. While disconnected only the namespace changes and the next
// connect subscribes the new filter.
func (e *Engine) RebindTopic(base string) (topics.Snapshot, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return e.ns.Snapshot(), bridgeerrors.NewValidationError(bridgeerrors.ErrInvalidTopic, "base_topic", "non-empty topic", base)
	}

	e.mqttMu.Lock()
	defer e.mqttMu.Unlock()
	e.subMu.Lock()
	defer e.subMu.Unlock()

	connected := e.mqtt.IsConnected()
	old := e.ns.Snapshot()

	if connected {
		if err := e.mqtt.Unsubscribe(old.ControlFilter()); err != nil {
			e.log.LogWarn("Unsubscribe from %s failed: %v", old.ControlFilter(), err)
		}
	}

	_, current := e.ns.Rebind(base)
	e.log.LogInfo("Base topic changed from %s to %s", old.Base, current.Base)

	if connected {
		if err := e.mqtt.Subscribe(current.ControlFilter(), e.onControlMessage); err != nil {
			e.log.LogWarn("Subscribe to %s failed: %v", current.ControlFilter(), err)
		} else {
			e.notifySubscribed(current)
		}
	}
	return current, nil
}

// ReconfigureModbus points the session at a new device and checks it.
// unitID is used as given, 0 included; callers supply modbus.DefaultUnitID
// when none was specified.
func (e *Engine) ReconfigureModbus(ctx context.Context, host string, port int, unitID uint8) (modbus.Status, error) {
	host = strings.TrimSpace(host)
	if host == "" || port <= 0 || port > 65535 {
		return modbus.Status{}, bridgeerrors.NewValidationError(bridgeerrors.ErrInvalidEndpoint, "modbus",
			"host and port 1-65535", fmt.Sprintf("%q:%d", host, port))
	}
	st := e.modbus.SetEndpoint(ctx, modbus.Endpoint{Host: host, Port: port, UnitID: unitID})
	e.log.LogInfo("Modbus reconfigured to %s:%d unit %d (connected: %v)", host, port, unitID, st.Connected)
	return st, nil
}

// ReconfigureMQTT reconnects to a new broker. A failed connect is reported
// in the returned status, not as an error.
func (e *Engine) ReconfigureMQTT(ctx context.Context, broker string, port int) (mqtt.Status, error) {
	broker = strings.TrimSpace(broker)
	if broker == "" || port <= 0 || port > 65535 {
		return mqtt.Status{}, bridgeerrors.NewValidationError(bridgeerrors.ErrInvalidEndpoint, "mqtt",
			"broker and port 1-65535", fmt.Sprintf("%q:%d", broker, port))
	}

	e.mqttMu.Lock()
	defer e.mqttMu.Unlock()

	if err := e.mqtt.Connect(ctx, mqtt.Endpoint{Broker: broker, Port: port}); err != nil {
		e.errs.Handle(err)
	}
	st := e.mqtt.Status()
	e.log.LogInfo("MQTT reconfigured to %s:%d (connected: %v)", broker, port, st.Connected)
	return st, nil
}

// CheckModbus re-probes the device
func (e *Engine) CheckModbus(ctx context.Context) modbus.Status {
	return e.modbus.CheckConnection(ctx)
}

// StatusReport is the snapshot served by the API root
type StatusReport struct {
	Modbus ModbusReport    `json:"modbus"`
	MQTT   MQTTReport      `json:"mqtt"`
	Topics topics.Snapshot `json:"topics"`
}

// ModbusReport pairs the endpoint with its last check
type ModbusReport struct {
	modbus.Endpoint
	modbus.Status
}

// MQTTReport pairs the broker with its last recorded state
type MQTTReport struct {
	mqtt.Endpoint
	mqtt.Status
}

// Status reports endpoints, connectivity and topics
func (e *Engine) Status() StatusReport {
	return StatusReport{
		Modbus: ModbusReport{Endpoint: e.modbus.Endpoint(), Status: e.modbus.Status()},
		MQTT:   MQTTReport{Endpoint: e.mqtt.Endpoint(), Status: e.mqtt.Status()},
		Topics: e.ns.Snapshot(),
	}
}

// subscribeControl runs after every (re)connect
func (e *Engine) subscribeControl() {
	e.subMu.Lock()
	snap := e.ns.Snapshot()
	err := e.mqtt.Subscribe(snap.ControlFilter(), e.onControlMessage)
	e.subMu.Unlock()

	if err != nil {
		e.errs.Handle(err)
		return
	}
	e.notifySubscribed(snap)
}

func (e *Engine) notifySubscribed(snap topics.Snapshot) {
	if e.onSubscribed != nil {
		e.onSubscribed(snap)
	}
}
