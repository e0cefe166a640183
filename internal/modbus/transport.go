package modbus

import (
	"net"
	"strconv"
	"time"

	"github.com/goburrow/modbus"
)

// Function codes used against the voltage source
const (
	FuncReadHoldingRegisters = 0x03
	FuncWriteSingleRegister  = 0x06
)

// DefaultUnitID is used when no unit id is supplied
const DefaultUnitID uint8 = 1

// Endpoint identifies the Modbus TCP device
type Endpoint struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	UnitID uint8  `json:"unit_id"`
}

// Address returns host:port
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Transport is the subset of a Modbus client the manager drives.
// One Transport is bound to one endpoint for its whole life.
type Transport interface {
	Connect() error
	Close() error
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteSingleRegister(address, value uint16) ([]byte, error)
}

// TransportFactory builds a Transport for an endpoint
type TransportFactory func(ep Endpoint, timeout time.Duration) Transport

type tcpTransport struct {
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

// NewTCPTransport returns a goburrow Modbus TCP transport. It does not dial
// until Connect is called.
func NewTCPTransport(ep Endpoint, timeout time.Duration) Transport {
	handler := modbus.NewTCPClientHandler(ep.Address())
	handler.SlaveId = ep.UnitID
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	handler.Timeout = timeout
	return &tcpTransport{handler: handler, client: modbus.NewClient(handler)}
}

func (t *tcpTransport) Connect() error {
	return t.handler.Connect()
}

func (t *tcpTransport) Close() error {
	return t.handler.Close()
}

func (t *tcpTransport) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	return t.client.ReadHoldingRegisters(address, quantity)
}

func (t *tcpTransport) WriteSingleRegister(address, value uint16) ([]byte, error) {
	return t.client.WriteSingleRegister(address, value)
}
