package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	bridgeerrors "modbus-voltage-bridge/internal/errors"
	"modbus-voltage-bridge/internal/modbus"
	"modbus-voltage-bridge/internal/mqtt"
)

// deviceSim is a two-register voltage source behind the modbus.Transport
// interface. Every transport built by its factory shares the same state.
type deviceSim struct {
	mu         sync.Mutex
	registers  map[uint16]uint16
	failRead   map[uint16]error
	connectErr error
	writeErr   error
	delay      time.Duration

	reads    int32
	writes   int32
	inFlight int32
	overlap  int32
	order    []string
}

func newDeviceSim() *deviceSim {
	return &deviceSim{
		registers: map[uint16]uint16{0x0000: 0, 0x0001: 0},
		failRead:  map[uint16]error{},
	}
}

func (d *deviceSim) Factory(ep modbus.Endpoint, timeout time.Duration) modbus.Transport {
	return d
}

func (d *deviceSim) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connectErr
}

func (d *deviceSim) Close() error { return nil }

func (d *deviceSim) enter(op string) func() {
	if atomic.AddInt32(&d.inFlight, 1) > 1 {
		atomic.StoreInt32(&d.overlap, 1)
	}
	d.mu.Lock()
	d.order = append(d.order, op+":start")
	d.mu.Unlock()
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	return func() {
		d.mu.Lock()
		d.order = append(d.order, op+":end")
		d.mu.Unlock()
		atomic.AddInt32(&d.inFlight, -1)
	}
}

func (d *deviceSim) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	defer d.enter("read")()
	atomic.AddInt32(&d.reads, 1)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failRead[address]; err != nil {
		return nil, err
	}
	v := d.registers[address]
	return []byte{byte(v >> 8), byte(v)}, nil
}

func (d *deviceSim) WriteSingleRegister(address, value uint16) ([]byte, error) {
	defer d.enter("write")()
	atomic.AddInt32(&d.writes, 1)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writeErr != nil {
		return nil, d.writeErr
	}
	d.registers[address] = value
	return []byte{byte(value >> 8), byte(value)}, nil
}

func (d *deviceSim) Register(address uint16) uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registers[address]
}

func (d *deviceSim) SetRegister(address, value uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registers[address] = value
}

func (d *deviceSim) Ops() int32 {
	return atomic.LoadInt32(&d.reads) + atomic.LoadInt32(&d.writes)
}

type publication struct {
	topic   string
	payload string
}

// fakeMQTT implements MQTTSession in memory
type fakeMQTT struct {
	mu           sync.Mutex
	connected    bool
	connectErr   error
	subscribeErr error
	endpoint     mqtt.Endpoint
	subs         map[string]mqtt.MessageHandler
	subscribes   []string
	unsubscribes []string
	published    []publication
	onConnect    func()
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{subs: map[string]mqtt.MessageHandler{}}
}

func (f *fakeMQTT) Connect(ctx context.Context, ep mqtt.Endpoint) error {
	f.mu.Lock()
	f.endpoint = ep
	f.subs = map[string]mqtt.MessageHandler{}
	if f.connectErr != nil {
		f.connected = false
		err := f.connectErr
		f.mu.Unlock()
		return bridgeerrors.NewMQTTError("connect", err, ep.Address())
	}
	f.connected = true
	fn := f.onConnect
	f.mu.Unlock()

	if fn != nil {
		fn()
	}
	return nil
}

func (f *fakeMQTT) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return bridgeerrors.NewMQTTError("publish", bridgeerrors.ErrNotConnected, f.endpoint.Address())
	}
	f.published = append(f.published, publication{topic: topic, payload: string(payload)})
	return nil
}

func (f *fakeMQTT) Subscribe(filter string, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return bridgeerrors.NewMQTTError("subscribe", bridgeerrors.ErrNotConnected, f.endpoint.Address())
	}
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subs[filter] = handler
	f.subscribes = append(f.subscribes, filter)
	return nil
}

func (f *fakeMQTT) Unsubscribe(filter string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return bridgeerrors.NewMQTTError("unsubscribe", bridgeerrors.ErrNotConnected, f.endpoint.Address())
	}
	delete(f.subs, filter)
	f.unsubscribes = append(f.unsubscribes, filter)
	return nil
}

func (f *fakeMQTT) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeMQTT) SetOnConnect(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onConnect = fn
}

func (f *fakeMQTT) Endpoint() mqtt.Endpoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.endpoint
}

func (f *fakeMQTT) Status() mqtt.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return mqtt.Status{Connected: f.connected}
}

// Deliver routes a message to every subscription whose filter matches,
// returning how many handlers ran
func (f *fakeMQTT) Deliver(topic string, payload string) int {
	f.mu.Lock()
	var handlers []mqtt.MessageHandler
	for filter, h := range f.subs {
		if matches(filter, topic) {
			handlers = append(handlers, h)
		}
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(topic, []byte(payload))
	}
	return len(handlers)
}

func (f *fakeMQTT) Published() []publication {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publication(nil), f.published...)
}

func (f *fakeMQTT) Subscriptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.subs))
	for filter := range f.subs {
		out = append(out, filter)
	}
	return out
}

func (f *fakeMQTT) Drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func matches(filter, topic string) bool {
	if strings.HasSuffix(filter, "/#") {
		prefix := strings.TrimSuffix(filter, "/#")
		return topic == prefix || strings.HasPrefix(topic, prefix+"/")
	}
	return filter == topic
}

var errDeviceTimeout = errors.New("i/o timeout")
