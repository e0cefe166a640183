package mqtt

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	bridgeerrors "modbus-voltage-bridge/internal/errors"
	"modbus-voltage-bridge/internal/logger"
	"modbus-voltage-bridge/internal/metrics"
)

// Endpoint identifies the broker
type Endpoint struct {
	Broker string `json:"broker"`
	Port   int    `json:"port"`
}

// Address returns broker:port
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Broker, strconv.Itoa(e.Port))
}

// URL returns the paho server URL
func (e Endpoint) URL() string {
	return "tcp://" + e.Address()
}

// Settings are the session parameters that survive an endpoint change
type Settings struct {
	ClientID         string
	Username         string
	Password         string
	KeepAlive        time.Duration
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
	QoS              byte
	Retain           bool
}

// MessageHandler receives inbound messages on the manager's delivery
// worker, one at a time and in arrival order
type MessageHandler func(topic string, payload []byte)

// deliveryQueueSize bounds the messages waiting for the delivery worker
const deliveryQueueSize = 64

type delivery struct {
	handler MessageHandler
	topic   string
	payload []byte
}

// ClientFactory builds a paho client from options
type ClientFactory func(opts *paho.ClientOptions) paho.Client

// Status describes the believed state of the broker session
type Status struct {
	Connected bool      `json:"connected"`
	CheckedAt time.Time `json:"checked_at"`
	Error     string    `json:"error,omitempty"`
}

// Manager owns the broker session. Connectivity is recorded when a connect
// attempt completes and when paho reports the connection lost; it is not
// polled otherwise.
type Manager struct {
	settings Settings
	factory  ClientFactory
	metrics  metrics.MetricsCollector

	mu        sync.Mutex
	client    paho.Client
	endpoint  Endpoint
	onConnect func()

	stateMu sync.RWMutex
	status  Status

	deliveries chan delivery
	workerOnce sync.Once
	closeOnce  sync.Once
	done       chan struct{}
}

// Option configures a Manager
type Option func(*Manager)

// WithClientFactory replaces paho.NewClient
func WithClientFactory(f ClientFactory) Option {
	return func(m *Manager) { m.factory = f }
}

// WithMetrics reports publish outcomes to mc
func WithMetrics(mc metrics.MetricsCollector) Option {
	return func(m *Manager) { m.metrics = mc }
}

// NewManager creates a disconnected manager
func NewManager(settings Settings, opts ...Option) *Manager {
	if settings.KeepAlive == 0 {
		settings.KeepAlive = 60 * time.Second
	}
	if settings.ConnectTimeout == 0 {
		settings.ConnectTimeout = 5 * time.Second
	}
	if settings.OperationTimeout == 0 {
		settings.OperationTimeout = 5 * time.Second
	}
	m := &Manager{
		settings:   settings,
		factory:    paho.NewClient,
		metrics:    metrics.NewNullMetrics(),
		deliveries: make(chan delivery, deliveryQueueSize),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetOnConnect registers fn to run after every successful connect and
// automatic reconnect. fn runs on a paho goroutine.
func (m *Manager) SetOnConnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnect = fn
}

// Endpoint returns the broker the manager is (or was last) bound to
func (m *Manager) Endpoint() Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endpoint
}

// Status returns the last recorded connectivity
func (m *Manager) Status() Status {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.status
}

// IsConnected reports whether publish and subscribe will be attempted
func (m *Manager) IsConnected() bool {
	if !m.Status().Connected {
		return false
	}
	client := m.currentClient()
	return client != nil && client.IsConnected()
}

// Connect tears down any existing session and connects to ep. On failure
// the manager stays bound to ep but disconnected.
func (m *Manager) Connect(ctx context.Context, ep Endpoint) error {
	m.mu.Lock()
	if m.client != nil {
		m.client.Disconnect(250)
	}
	m.endpoint = ep
	client := m.factory(m.clientOptions(ep))
	m.client = client
	m.mu.Unlock()

	m.setStatus(false, nil)
	logger.LogInfo("Connecting to MQTT broker %s...", ep.Address())

	token := client.Connect()
	var err error
	select {
	case <-token.Done():
		err = token.Error()
	case <-ctx.Done():
		err = ctx.Err()
	case <-time.After(m.settings.ConnectTimeout):
		err = fmt.Errorf("connect timed out after %s", m.settings.ConnectTimeout)
	}

	if err != nil {
		m.setStatus(false, err)
		logger.LogError("MQTT connection to %s failed: %v", ep.Address(), err)
		return bridgeerrors.NewMQTTError("connect", err, ep.Address())
	}

	m.setStatus(true, nil)
	logger.LogInfo("✅ Connected to MQTT broker %s", ep.Address())
	return nil
}

// Disconnect closes the session
func (m *Manager) Disconnect() {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
	m.setStatus(false, nil)
}

// Close disconnects and stops the delivery worker. The manager cannot be
// reused afterwards.
func (m *Manager) Close() {
	m.Disconnect()
	m.closeOnce.Do(func() { close(m.done) })
}

// Publish sends payload to topic with the configured QoS and retain flag
func (m *Manager) Publish(topic string, payload []byte) error {
	return m.publish(topic, payload, m.settings.Retain)
}

// PublishRetained sends payload with the retain flag set regardless of
// settings, for discovery documents that must outlive the session
func (m *Manager) PublishRetained(topic string, payload []byte) error {
	return m.publish(topic, payload, true)
}

func (m *Manager) publish(topic string, payload []byte, retain bool) error {
	client, err := m.usableClient("publish", topic)
	if err != nil {
		m.metrics.IncrementMQTTErrors()
		return err
	}

	token := client.Publish(topic, m.settings.QoS, retain, payload)
	if err := m.wait(token); err != nil {
		m.metrics.IncrementMQTTErrors()
		return bridgeerrors.NewMQTTError("publish", err, m.Endpoint().Address()).WithTopic(topic)
	}

	m.metrics.IncrementMQTTPublishes()
	logger.LogTrace("Published %s: %s", topic, string(payload))
	return nil
}

// Subscribe registers handler for filter
func (m *Manager) Subscribe(filter string, handler MessageHandler) error {
	client, err := m.usableClient("subscribe", filter)
	if err != nil {
		return err
	}

	m.workerOnce.Do(func() { go m.runDeliveries() })

	token := client.Subscribe(filter, m.settings.QoS, func(_ paho.Client, msg paho.Message) {
		m.enqueue(delivery{handler: handler, topic: msg.Topic(), payload: msg.Payload()})
	})
	if err := m.wait(token); err != nil {
		m.metrics.IncrementMQTTErrors()
		return bridgeerrors.NewMQTTError("subscribe", err, m.Endpoint().Address()).WithTopic(filter)
	}

	logger.LogInfo("Subscribed to %s", filter)
	return nil
}

// Unsubscribe removes the subscription for filter
func (m *Manager) Unsubscribe(filter string) error {
	client, err := m.usableClient("unsubscribe", filter)
	if err != nil {
		return err
	}

	if err := m.wait(client.Unsubscribe(filter)); err != nil {
		m.metrics.IncrementMQTTErrors()
		return bridgeerrors.NewMQTTError("unsubscribe", err, m.Endpoint().Address()).WithTopic(filter)
	}

	logger.LogInfo("Unsubscribed from %s", filter)
	return nil
}

func (m *Manager) clientOptions(ep Endpoint) *paho.ClientOptions {
	opts := paho.NewClientOptions()
	opts.AddBroker(ep.URL())
	opts.SetClientID(m.settings.ClientID)
	if m.settings.Username != "" {
		opts.SetUsername(m.settings.Username)
		opts.SetPassword(m.settings.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(m.settings.KeepAlive)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(m.settings.ConnectTimeout)
	// paho hands messages over in arrival order; enqueue never blocks its router
	opts.SetOrderMatters(true)

	opts.SetOnConnectHandler(func(c paho.Client) {
		if !m.owns(c) {
			return
		}
		m.setStatus(true, nil)
		logger.LogDebug("MQTT session to %s established", ep.Address())

		m.mu.Lock()
		fn := m.onConnect
		m.mu.Unlock()
		if fn != nil {
			fn()
		}
	})

	opts.SetConnectionLostHandler(func(c paho.Client, err error) {
		if !m.owns(c) {
			return
		}
		m.setStatus(false, err)
		logger.LogWarn("MQTT connection to %s lost: %v", ep.Address(), err)
	})

	return opts
}

// enqueue passes a message to the delivery worker, dropping it when the
// worker has fallen deliveryQueueSize messages behind
func (m *Manager) enqueue(d delivery) {
	select {
	case m.deliveries <- d:
	default:
		m.metrics.IncrementMQTTErrors()
		logger.LogWarn("⚠️ MQTT delivery queue full, dropping message on %s", d.topic)
	}
}

func (m *Manager) runDeliveries() {
	for {
		select {
		case d := <-m.deliveries:
			d.handler(d.topic, d.payload)
		case <-m.done:
			return
		}
	}
}

// owns guards callbacks from a client that has already been replaced
func (m *Manager) owns(c paho.Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client == c
}

func (m *Manager) currentClient() paho.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client
}

func (m *Manager) usableClient(op, topic string) (paho.Client, error) {
	client := m.currentClient()
	if client == nil || !m.IsConnected() {
		return nil, bridgeerrors.NewMQTTError(op, bridgeerrors.ErrNotConnected, m.Endpoint().Address()).WithTopic(topic)
	}
	return client, nil
}

func (m *Manager) wait(token paho.Token) error {
	if !token.WaitTimeout(m.settings.OperationTimeout) {
		return fmt.Errorf("timed out after %s", m.settings.OperationTimeout)
	}
	return token.Error()
}

func (m *Manager) setStatus(connected bool, err error) {
	st := Status{Connected: connected, CheckedAt: time.Now()}
	if err != nil {
		st.Error = err.Error()
	}

	m.stateMu.Lock()
	m.status = st
	m.stateMu.Unlock()
	m.metrics.SetMQTTConnected(connected)
}
