package mqtt

import (
	"errors"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken completes immediately with err
type fakeToken struct {
	err  error
	done chan struct{}
	hang bool
}

func newToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func hangingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{}), hang: true}
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

// fakeMessage implements paho.Message
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient is an in-memory paho.Client. It runs OnConnect synchronously
// from Connect and routes Deliver calls to matching handlers.
type fakeClient struct {
	opts *paho.ClientOptions

	mu          sync.Mutex
	connected   bool
	connectErr  error
	hangConnect bool
	publishErr  error
	subs        map[string]paho.MessageHandler
	unsubs      []string
	published   []published
	disconnects int
}

func newFakeClient(opts *paho.ClientOptions) *fakeClient {
	return &fakeClient{opts: opts, subs: map[string]paho.MessageHandler{}}
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *fakeClient) Connect() paho.Token {
	c.mu.Lock()
	if c.hangConnect {
		c.mu.Unlock()
		return hangingToken()
	}
	if c.connectErr != nil {
		err := c.connectErr
		c.mu.Unlock()
		return newToken(err)
	}
	c.connected = true
	c.mu.Unlock()

	if c.opts.OnConnect != nil {
		c.opts.OnConnect(c)
	}
	return newToken(nil)
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnects++
}

// Drop simulates a broker-side connection loss
func (c *fakeClient) Drop(err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	if c.opts.OnConnectionLost != nil {
		c.opts.OnConnectionLost(c, err)
	}
}

// Reconnect simulates paho's automatic reconnect
func (c *fakeClient) Reconnect() {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	if c.opts.OnConnect != nil {
		c.opts.OnConnect(c)
	}
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return newToken(c.publishErr)
	}
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	c.published = append(c.published, published{topic: topic, qos: qos, retained: retained, payload: b})
	return newToken(nil)
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return newToken(errors.New("not connected"))
	}
	c.subs[topic] = callback
	return newToken(nil)
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, callback paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for f := range filters {
		c.subs[f] = callback
	}
	return newToken(nil)
}

func (c *fakeClient) Unsubscribe(topics ...string) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.subs, t)
		c.unsubs = append(c.unsubs, t)
	}
	return newToken(nil)
}

func (c *fakeClient) AddRoute(topic string, callback paho.MessageHandler) {}

func (c *fakeClient) OptionsReader() paho.ClientOptionsReader {
	return paho.ClientOptionsReader{}
}

// Deliver hands a message to the handler registered for filter
func (c *fakeClient) Deliver(filter, topic string, payload []byte) bool {
	c.mu.Lock()
	h, ok := c.subs[filter]
	c.mu.Unlock()
	if !ok {
		return false
	}
	h(c, &fakeMessage{topic: topic, payload: payload})
	return true
}

func (c *fakeClient) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for f := range c.subs {
		out = append(out, f)
	}
	return out
}

func (c *fakeClient) Published() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.published...)
}

// fakeFactory records every client the manager builds
type fakeFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
	setup   func(*fakeClient)
}

func (f *fakeFactory) New(opts *paho.ClientOptions) paho.Client {
	c := newFakeClient(opts)
	if f.setup != nil {
		f.setup(c)
	}
	f.mu.Lock()
	f.clients = append(f.clients, c)
	f.mu.Unlock()
	return c
}

func (f *fakeFactory) Last() *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clients) == 0 {
		return nil
	}
	return f.clients[len(f.clients)-1]
}

func (f *fakeFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}
