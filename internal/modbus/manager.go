package modbus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	bridgeerrors "modbus-voltage-bridge/internal/errors"
	"modbus-voltage-bridge/internal/logger"
	"modbus-voltage-bridge/internal/metrics"
	"modbus-voltage-bridge/internal/recovery"
)

// Status is the outcome of the last explicit connectivity check
type Status struct {
	Connected bool      `json:"connected"`
	CheckedAt time.Time `json:"checked_at"`
	Error     string    `json:"error,omitempty"`
}

// Manager owns the Modbus session. Every register operation opens a
// connection, performs one request and closes again. A single mutex
// serializes operations, checks and endpoint swaps so requests from the
// API and from MQTT never interleave on the wire.
type Manager struct {
	mu        sync.Mutex
	endpoint  Endpoint
	timeout   time.Duration
	factory   TransportFactory
	transport Transport
	breaker   *recovery.CircuitBreaker
	metrics   metrics.MetricsCollector

	statusMu sync.RWMutex
	status   Status
}

// Option configures a Manager
type Option func(*Manager)

// WithTransportFactory replaces the goburrow TCP transport
func WithTransportFactory(f TransportFactory) Option {
	return func(m *Manager) { m.factory = f }
}

// WithCircuitBreaker makes operations fail fast while cb is open
func WithCircuitBreaker(cb *recovery.CircuitBreaker) Option {
	return func(m *Manager) { m.breaker = cb }
}

// WithMetrics reports operation counts and durations to mc
func WithMetrics(mc metrics.MetricsCollector) Option {
	return func(m *Manager) { m.metrics = mc }
}

// NewManager creates a manager bound to ep. No connection is made.
func NewManager(ep Endpoint, timeout time.Duration, opts ...Option) *Manager {
	m := &Manager{
		endpoint: ep,
		timeout:  timeout,
		factory:  NewTCPTransport,
		metrics:  metrics.NewNullMetrics(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.transport = m.factory(ep, timeout)
	return m
}

// Endpoint returns the current endpoint
func (m *Manager) Endpoint() Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endpoint
}

// Status returns the result of the last connectivity check
func (m *Manager) Status() Status {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status
}

// IsConnected reports the last recorded connectivity
func (m *Manager) IsConnected() bool {
	return m.Status().Connected
}

// ReadRegister reads one holding register (FC 0x03, quantity 1)
func (m *Manager) ReadRegister(ctx context.Context, address uint16) (uint16, error) {
	var value uint16
	err := m.do(ctx, "read", FuncReadHoldingRegisters, address, func(t Transport) error {
		data, err := t.ReadHoldingRegisters(address, 1)
		if err != nil {
			return err
		}
		if len(data) < 2 {
			return bridgeerrors.ErrEmptyResponse
		}
		value = binary.BigEndian.Uint16(data)
		return nil
	})
	return value, err
}

// WriteRegister writes one holding register (FC 0x06)
func (m *Manager) WriteRegister(ctx context.Context, address, value uint16) error {
	return m.do(ctx, "write", FuncWriteSingleRegister, address, func(t Transport) error {
		ack, err := t.WriteSingleRegister(address, value)
		if err != nil {
			return err
		}
		if len(ack) == 0 {
			return fmt.Errorf("write not acknowledged: %w", bridgeerrors.ErrEmptyResponse)
		}
		return nil
	})
}

// CheckConnection opens and closes a connection without touching any
// register and records the outcome.
func (m *Manager) CheckConnection(ctx context.Context) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkLocked(ctx)
}

// SetEndpoint discards the current transport, binds a new one to ep and
// checks connectivity. In-flight operations finish first.
func (m *Manager) SetEndpoint(ctx context.Context, ep Endpoint) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	_ = m.transport.Close()
	m.endpoint = ep
	m.transport = m.factory(ep, m.timeout)
	if m.breaker != nil {
		m.breaker.Reset()
	}
	logger.LogInfo("Modbus endpoint set to %s (unit %d)", ep.Address(), ep.UnitID)

	return m.checkLocked(ctx)
}

// Close releases the transport
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transport.Close()
}

func (m *Manager) checkLocked(ctx context.Context) Status {
	start := time.Now()
	err := ctx.Err()
	if err == nil {
		err = m.transport.Connect()
		if err == nil {
			_ = m.transport.Close()
		}
	}
	m.metrics.ObserveModbusOperation("check", time.Since(start), err)

	st := Status{Connected: err == nil, CheckedAt: time.Now()}
	if err != nil {
		st.Error = err.Error()
		logger.LogWarn("Modbus device %s unreachable: %v", m.endpoint.Address(), err)
	} else {
		logger.LogDebug("Modbus device %s reachable", m.endpoint.Address())
	}

	m.statusMu.Lock()
	m.status = st
	m.statusMu.Unlock()
	m.metrics.SetModbusConnected(st.Connected)
	return st
}

// do runs one bracketed exchange under the session lock
func (m *Manager) do(ctx context.Context, op string, fc uint8, address uint16, fn func(Transport) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// cancelled requests never reach the breaker
	if err := ctx.Err(); err != nil {
		merr := bridgeerrors.NewModbusError(op+"_register", err, m.endpoint.Address(), m.endpoint.UnitID)
		merr.FunctionCode = fc
		merr.Address = address
		return merr
	}

	start := time.Now()
	exchange := func() error {
		if err := m.transport.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		defer func() {
			if cerr := m.transport.Close(); cerr != nil {
				logger.LogDebug("Modbus close failed: %v", cerr)
			}
		}()
		return fn(m.transport)
	}

	var err error
	if m.breaker != nil {
		err = m.breaker.Call(exchange)
	} else {
		err = exchange()
	}
	m.metrics.ObserveModbusOperation(op, time.Since(start), err)

	if err == nil {
		logger.LogTrace("Modbus %s 0x%04X ok", op, address)
		return nil
	}

	if errors.Is(err, recovery.ErrCircuitOpen) {
		logger.LogDebug("Modbus %s 0x%04X rejected: %v", op, address, err)
	}

	merr := bridgeerrors.NewModbusError(op+"_register", err, m.endpoint.Address(), m.endpoint.UnitID)
	merr.FunctionCode = fc
	merr.Address = address
	return merr
}
