// Package mqtttest provides an in-memory stand-in for the paho client so
// the transport and everything above it can be tested without a broker.
//
//	fake := mqtttest.NewFakeClient()
//	client := mqtt.New(cfg, mqtt.WithClientFactory(fake.New))
//	_ = client.Connect(ctx)
//	fake.Deliver("rye/test", []byte("a"), 1, false)
//
// The fake behaves like a broker with a clean session: it only delivers
// messages that match a current subscription, forgets subscriptions when
// the connection drops, and loops published messages back to subscribers.
// Callbacks run synchronously on the caller's goroutine.
package mqtttest

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrNotConnected is returned by tokens issued while the fake is offline.
var ErrNotConnected = errors.New("mqtttest: not connected")

// Published is a message the fake received through Publish.
type Published struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// FakeClient implements pahomqtt.Client.
type FakeClient struct {
	mu sync.Mutex

	opts      *pahomqtt.ClientOptions
	connected bool

	connectErr   error
	subscribeErr map[string]error

	subscriptions  map[string]byte
	routes         map[string]pahomqtt.MessageHandler
	subscribeCalls []string
	unsubscribed   []string
	published      []Published
	connects       int
	disconnects    int
	nextID         uint16
}

var _ pahomqtt.Client = (*FakeClient)(nil)

// NewFakeClient creates a disconnected fake.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		subscribeErr:  make(map[string]error),
		subscriptions: make(map[string]byte),
		routes:        make(map[string]pahomqtt.MessageHandler),
	}
}

// New has the signature of pahomqtt.NewClient and returns the fake bound to
// opts.
func (f *FakeClient) New(opts *pahomqtt.ClientOptions) pahomqtt.Client {
	f.mu.Lock()
	f.opts = opts
	f.mu.Unlock()
	return f
}

// SetConnectError makes subsequent Connect calls fail with err.
func (f *FakeClient) SetConnectError(err error) {
	f.mu.Lock()
	f.connectErr = err
	f.mu.Unlock()
}

// FailSubscribe makes subscribe calls for filter fail with err. A nil err
// clears the failure.
func (f *FakeClient) FailSubscribe(filter string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.subscribeErr, filter)
		return
	}
	f.subscribeErr[filter] = err
}

// Options returns the options the transport built.
func (f *FakeClient) Options() *pahomqtt.ClientOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opts
}

func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeClient) IsConnectionOpen() bool {
	return f.IsConnected()
}

// Connect succeeds unless SetConnectError was called, then runs the
// OnConnect handler before returning.
func (f *FakeClient) Connect() pahomqtt.Token {
	f.mu.Lock()
	if f.connectErr != nil {
		err := f.connectErr
		f.mu.Unlock()
		return newToken(err)
	}
	f.connected = true
	f.connects++
	opts := f.opts
	f.mu.Unlock()

	if opts != nil && opts.OnConnect != nil {
		opts.OnConnect(f)
	}
	return newToken(nil)
}

func (f *FakeClient) Disconnect(_ uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
	clear(f.subscriptions)
	clear(f.routes)
}

// DropConnection simulates a lost network session.
func (f *FakeClient) DropConnection(err error) {
	f.mu.Lock()
	f.connected = false
	clear(f.subscriptions)
	clear(f.routes)
	opts := f.opts
	f.mu.Unlock()

	if opts != nil && opts.OnConnectionLost != nil {
		opts.OnConnectionLost(f, err)
	}
}

// Reconnect simulates paho's automatic reconnection.
func (f *FakeClient) Reconnect() {
	f.mu.Lock()
	opts := f.opts
	f.mu.Unlock()

	if opts != nil && opts.OnReconnecting != nil {
		opts.OnReconnecting(f, opts)
	}

	f.mu.Lock()
	f.connected = true
	f.connects++
	f.mu.Unlock()

	if opts != nil && opts.OnConnect != nil {
		opts.OnConnect(f)
	}
}

func (f *FakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	var body []byte
	switch p := payload.(type) {
	case []byte:
		body = append([]byte(nil), p...)
	case string:
		body = []byte(p)
	}

	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return newToken(ErrNotConnected)
	}
	f.published = append(f.published, Published{Topic: topic, Payload: body, QoS: qos, Retained: retained})
	f.mu.Unlock()

	f.Deliver(topic, body, qos, retained)
	return newToken(nil)
}

func (f *FakeClient) Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.subscribeCalls = append(f.subscribeCalls, topic)
	if !f.connected {
		return newToken(ErrNotConnected)
	}
	if err := f.subscribeErr[topic]; err != nil {
		return newToken(err)
	}
	f.subscriptions[topic] = qos
	if callback != nil {
		f.routes[topic] = callback
	}
	return newToken(nil)
}

func (f *FakeClient) SubscribeMultiple(filters map[string]byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	var last pahomqtt.Token = newToken(nil)
	for topic, qos := range filters {
		if tok := f.Subscribe(topic, qos, callback); tok.Error() != nil {
			last = tok
		}
	}
	return last
}

func (f *FakeClient) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return newToken(ErrNotConnected)
	}
	for _, t := range topics {
		delete(f.subscriptions, t)
		delete(f.routes, t)
		f.unsubscribed = append(f.unsubscribed, t)
	}
	return newToken(nil)
}

func (f *FakeClient) AddRoute(topic string, callback pahomqtt.MessageHandler) {
	f.mu.Lock()
	f.routes[topic] = callback
	f.mu.Unlock()
}

func (f *FakeClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// Deliver pushes an inbound message as the broker would. It is dropped
// unless the fake is connected and a subscription matches. Matching routes
// are called first; otherwise the default publish handler receives it once.
// Deliver reports whether the message was handed to a callback.
func (f *FakeClient) Deliver(topic string, payload []byte, qos byte, retained bool) bool {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return false
	}
	matched := false
	grantedQoS := byte(0)
	for filter, granted := range f.subscriptions {
		if match(filter, topic) {
			matched = true
			grantedQoS = max(grantedQoS, granted)
		}
	}
	var handlers []pahomqtt.MessageHandler
	for filter, h := range f.routes {
		if match(filter, topic) {
			handlers = append(handlers, h)
		}
	}
	f.nextID++
	msg := &message{
		topic:    topic,
		payload:  append([]byte(nil), payload...),
		qos:      min(qos, grantedQoS),
		retained: retained,
		id:       f.nextID,
	}
	opts := f.opts
	f.mu.Unlock()

	if !matched {
		return false
	}
	if len(handlers) > 0 {
		for _, h := range handlers {
			h(f, msg)
		}
		return true
	}
	if opts != nil && opts.DefaultPublishHandler != nil {
		opts.DefaultPublishHandler(f, msg)
		return true
	}
	return false
}

// SubscribeCalls returns every filter passed to Subscribe, in call order.
func (f *FakeClient) SubscribeCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribeCalls...)
}

// Subscriptions returns the filters currently held by the session, sorted.
func (f *FakeClient) Subscriptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.subscriptions))
	for filter := range f.subscriptions {
		out = append(out, filter)
	}
	sort.Strings(out)
	return out
}

// Unsubscribed returns every filter passed to Unsubscribe.
func (f *FakeClient) Unsubscribed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.unsubscribed...)
}

// Published returns every message passed to Publish.
func (f *FakeClient) Published() []Published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Published(nil), f.published...)
}

// Connects returns how many sessions were established.
func (f *FakeClient) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// Disconnects returns how many times Disconnect was called.
func (f *FakeClient) Disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

func match(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	for i, level := range f {
		if level == "#" {
			return true
		}
		if i >= len(t) || (level != "+" && level != t[i]) {
			return false
		}
	}
	return len(f) == len(t)
}

type token struct {
	err  error
	done chan struct{}
}

func newToken(err error) *token {
	t := &token{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *token) Wait() bool                     { return true }
func (t *token) WaitTimeout(time.Duration) bool { return true }
func (t *token) Done() <-chan struct{}          { return t.done }
func (t *token) Error() error                   { return t.err }

type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
	id       uint16
}

func (m *message) Duplicate() bool   { return false }
func (m *message) Qos() byte         { return m.qos }
func (m *message) Retained() bool    { return m.retained }
func (m *message) Topic() string     { return m.topic }
func (m *message) MessageID() uint16 { return m.id }
func (m *message) Payload() []byte   { return m.payload }
func (m *message) Ack()              {}
