package mqtt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/mqttlog/internal/infrastructure/config"
	"github.com/nerrad567/mqttlog/internal/infrastructure/mqtt/mqtttest"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:      "127.0.0.1",
			Port:      1883,
			ClientID:  "mqttlog-test",
			KeepAlive: 30,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// newFakeClient returns a Client wired to an in-memory paho fake.
func newFakeClient(t *testing.T, cfg config.MQTTConfig) (*Client, *mqtttest.FakeClient) {
	t.Helper()
	fake := mqtttest.NewFakeClient()
	client := New(cfg, WithClientFactory(fake.New))
	return client, fake
}

// connectedClient returns a connected Client backed by a fake.
func connectedClient(t *testing.T) (*Client, *mqtttest.FakeClient) {
	t.Helper()
	client, fake := newFakeClient(t, testConfig())
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Disconnect() })
	return client, fake
}

// recorder collects messages handed to SetOnMessage.
type recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recorder) receive(m Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
}

func (r *recorder) topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Topic
	}
	return out
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	client, fake := newFakeClient(t, testConfig())

	if got := client.State(); got != StateDisconnected {
		t.Fatalf("State() before Connect = %v, want disconnected", got)
	}

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Disconnect()

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if got := client.State(); got != StateConnected {
		t.Errorf("State() = %v, want connected", got)
	}
	if fake.Connects() != 1 {
		t.Errorf("Connects() = %d, want 1", fake.Connects())
	}
}

func TestConnect_BrokerRefused(t *testing.T) {
	client, fake := newFakeClient(t, testConfig())
	fake.SetConnectError(errors.New("connection refused"))

	err := client.Connect(context.Background())
	if err == nil {
		t.Fatal("Connect() should fail for refused connection")
	}
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
	if !strings.Contains(err.Error(), "127.0.0.1:1883") {
		t.Errorf("Connect() error = %q, want broker address", err)
	}
	if got := client.State(); got != StateDisconnected {
		t.Errorf("State() after failed connect = %v, want disconnected", got)
	}
}

func TestConnect_Twice(t *testing.T) {
	client, _ := connectedClient(t)

	if err := client.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect() error = %v, want ErrAlreadyConnected", err)
	}
}

func TestConnect_AfterFailureCanRetry(t *testing.T) {
	client, fake := newFakeClient(t, testConfig())
	fake.SetConnectError(errors.New("refused"))
	if err := client.Connect(context.Background()); err == nil {
		t.Fatal("first Connect() should fail")
	}

	fake.SetConnectError(nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("retry Connect() error = %v", err)
	}
	defer client.Disconnect()
	if !client.IsConnected() {
		t.Error("IsConnected() = false after retry")
	}
}

func TestDisconnect(t *testing.T) {
	client, fake := connectedClient(t)

	if err := client.Disconnect(); err != nil {
		t.Errorf("Disconnect() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Disconnect()")
	}
	if got := client.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", got)
	}

	// Second call is a no-op.
	if err := client.Disconnect(); err != nil {
		t.Errorf("second Disconnect() error = %v", err)
	}
	if fake.Disconnects() != 1 {
		t.Errorf("Disconnects() = %d, want 1", fake.Disconnects())
	}
}

func TestDisconnect_NeverConnected(t *testing.T) {
	client, fake := newFakeClient(t, testConfig())

	if err := client.Disconnect(); err != nil {
		t.Errorf("Disconnect() error = %v", err)
	}
	if fake.Disconnects() != 0 {
		t.Errorf("Disconnects() = %d, want 0", fake.Disconnects())
	}
}

func TestDisconnectNil(t *testing.T) {
	var client Client
	if err := client.Disconnect(); err != nil {
		t.Errorf("Disconnect() on zero client error = %v", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestHealthCheck(t *testing.T) {
	client, _ := connectedClient(t)

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	client, _ := connectedClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	client, _ := newFakeClient(t, testConfig())

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// State Machine Tests
// =============================================================================

func TestConnectionLostAndRestored(t *testing.T) {
	client, fake := connectedClient(t)

	var (
		mu        sync.Mutex
		connects  int
		lostErr   error
		lostState State
	)
	client.SetOnConnect(func() {
		mu.Lock()
		connects++
		mu.Unlock()
	})
	client.SetOnDisconnect(func(err error) {
		mu.Lock()
		lostErr = err
		lostState = client.State()
		mu.Unlock()
	})

	cause := errors.New("network unreachable")
	fake.DropConnection(cause)

	if got := client.State(); got != StateReconnecting {
		t.Errorf("State() after drop = %v, want reconnecting", got)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after drop")
	}

	fake.Reconnect()

	if got := client.State(); got != StateConnected {
		t.Errorf("State() after reconnect = %v, want connected", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if !errors.Is(lostErr, cause) {
		t.Errorf("OnDisconnect error = %v, want %v", lostErr, cause)
	}
	if lostState != StateReconnecting {
		t.Errorf("state seen by OnDisconnect = %v, want reconnecting", lostState)
	}
	if connects != 1 {
		t.Errorf("OnConnect calls after reconnect = %d, want 1", connects)
	}
}

func TestOnConnectCallback_InitialConnect(t *testing.T) {
	client, _ := newFakeClient(t, testConfig())

	called := make(chan State, 1)
	client.SetOnConnect(func() {
		called <- client.State()
	})

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Disconnect()

	select {
	case s := <-called:
		if s != StateConnected {
			t.Errorf("state inside OnConnect = %v, want connected", s)
		}
	case <-time.After(time.Second):
		t.Fatal("OnConnect callback was not called")
	}
}

func TestCallbacksSuppressedAfterDisconnect(t *testing.T) {
	client, fake := connectedClient(t)

	called := false
	client.SetOnDisconnect(func(error) { called = true })

	client.Disconnect()
	fake.DropConnection(errors.New("late"))

	if called {
		t.Error("OnDisconnect fired after Disconnect()")
	}
	if got := client.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", got)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{StateReconnecting, "reconnecting"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

// =============================================================================
// Subscribe Tests
// =============================================================================

func TestSubscribe(t *testing.T) {
	client, fake := connectedClient(t)
	rec := &recorder{}
	client.SetOnMessage(rec.receive)

	if err := client.Subscribe(context.Background(), "rye/test", 1); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	fake.Deliver("rye/test", []byte("hello"), 1, false)
	fake.Deliver("other/topic", []byte("ignored"), 1, false)

	got := rec.topics()
	if len(got) != 1 || got[0] != "rye/test" {
		t.Fatalf("received topics = %v, want [rye/test]", got)
	}

	msg := rec.msgs[0]
	if string(msg.Payload) != "hello" {
		t.Errorf("Payload = %q, want hello", msg.Payload)
	}
	if msg.QoS != 1 {
		t.Errorf("QoS = %d, want 1", msg.QoS)
	}
	if msg.ReceivedAt.IsZero() {
		t.Error("ReceivedAt is zero")
	}
}

func TestSubscribe_Validation(t *testing.T) {
	client, _ := connectedClient(t)

	tests := []struct {
		name    string
		filter  string
		qos     byte
		wantErr error
	}{
		{"empty filter", "", 1, ErrInvalidTopic},
		{"qos 3", "rye/test", 3, ErrInvalidQoS},
		{"hash not last", "rye/#/x", 1, ErrInvalidFilter},
		{"partial hash", "rye/te#", 1, ErrInvalidFilter},
		{"partial plus", "rye/te+", 1, ErrInvalidFilter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Subscribe(context.Background(), tt.filter, tt.qos)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Subscribe(%q, %d) error = %v, want %v", tt.filter, tt.qos, err, tt.wantErr)
			}
		})
	}
}

func TestSubscribeDisconnected(t *testing.T) {
	client, _ := newFakeClient(t, testConfig())

	if err := client.Subscribe(context.Background(), "rye/test", 1); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeRejected(t *testing.T) {
	client, fake := connectedClient(t)
	fake.FailSubscribe("rye/test", errors.New("not authorised"))

	err := client.Subscribe(context.Background(), "rye/test", 1)
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if !strings.Contains(err.Error(), "rye/test") {
		t.Errorf("Subscribe() error = %q, want filter in message", err)
	}
}

func TestSubscribe_CancelledContext(t *testing.T) {
	client, fake := connectedClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.Subscribe(ctx, "rye/test", 1)
	if !errors.Is(err, ErrSubscribeFailed) || !errors.Is(err, context.Canceled) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed wrapping context.Canceled", err)
	}
	if calls := fake.SubscribeCalls(); len(calls) != 0 {
		t.Errorf("SubscribeCalls() = %v, want none after cancellation", calls)
	}
}

func TestUnsubscribe_CancelledContext(t *testing.T) {
	client, fake := connectedClient(t)
	if err := client.Subscribe(context.Background(), "rye/test", 1); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.Unsubscribe(ctx, "rye/test")
	if !errors.Is(err, ErrUnsubscribeFailed) || !errors.Is(err, context.Canceled) {
		t.Errorf("Unsubscribe() error = %v, want ErrUnsubscribeFailed wrapping context.Canceled", err)
	}
	if got := fake.Unsubscribed(); len(got) != 0 {
		t.Errorf("Unsubscribed() = %v, want none after cancellation", got)
	}
}

func TestWildcardSubscription(t *testing.T) {
	client, fake := connectedClient(t)
	rec := &recorder{}
	client.SetOnMessage(rec.receive)

	if err := client.Subscribe(context.Background(), "sensors/+/temperature", 0); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	fake.Deliver("sensors/kitchen/temperature", []byte("21"), 0, false)
	fake.Deliver("sensors/kitchen/humidity", []byte("40"), 0, false)
	fake.Deliver("sensors/hall/temperature", []byte("19"), 0, false)

	got := rec.topics()
	want := []string{"sensors/kitchen/temperature", "sensors/hall/temperature"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("received = %v, want %v", got, want)
	}
}

func TestOverlappingFiltersDeliverOnce(t *testing.T) {
	client, fake := connectedClient(t)
	rec := &recorder{}
	client.SetOnMessage(rec.receive)

	for _, f := range []string{"rye/test", "rye/#"} {
		if err := client.Subscribe(context.Background(), f, 1); err != nil {
			t.Fatalf("Subscribe(%q) error = %v", f, err)
		}
	}

	fake.Deliver("rye/test", []byte("x"), 1, false)

	if n := len(rec.topics()); n != 1 {
		t.Errorf("received %d copies, want 1", n)
	}
}

func TestMessageOrderPreserved(t *testing.T) {
	client, fake := connectedClient(t)
	rec := &recorder{}
	client.SetOnMessage(rec.receive)

	if err := client.Subscribe(context.Background(), "rye/test", 1); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	for _, p := range []string{"a", "b", "c"} {
		fake.Deliver("rye/test", []byte(p), 1, false)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var got []string
	for _, m := range rec.msgs {
		got = append(got, string(m.Payload))
	}
	if strings.Join(got, "") != "abc" {
		t.Errorf("payload order = %v, want [a b c]", got)
	}
}

func TestMessageWithoutReceiverDropped(t *testing.T) {
	client, fake := connectedClient(t)
	if err := client.Subscribe(context.Background(), "rye/test", 1); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// Must not panic.
	fake.Deliver("rye/test", []byte("x"), 1, false)
}

func TestReceiverPanicRecovered(t *testing.T) {
	client, fake := connectedClient(t)
	logger := &captureLogger{}
	client.SetLogger(logger)
	client.SetOnMessage(func(Message) { panic("boom") })

	if err := client.Subscribe(context.Background(), "rye/test", 1); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	fake.Deliver("rye/test", []byte("x"), 1, false)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	found := false
	for _, l := range logger.lines {
		if strings.HasPrefix(l, "ERROR") && strings.Contains(l, "panic") {
			found = true
		}
	}
	if !found {
		t.Errorf("logged %v, want a recovered panic error", logger.lines)
	}
}

func TestPayloadCopied(t *testing.T) {
	client, fake := connectedClient(t)
	rec := &recorder{}
	client.SetOnMessage(rec.receive)
	if err := client.Subscribe(context.Background(), "rye/test", 1); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	buf := []byte("original")
	fake.Deliver("rye/test", buf, 1, false)
	copy(buf, "XXXXXXXX")

	if got := string(rec.msgs[0].Payload); got != "original" {
		t.Errorf("Payload = %q, want original", got)
	}
}

func TestSubscriptionsLostOnDrop(t *testing.T) {
	client, fake := connectedClient(t)
	if err := client.Subscribe(context.Background(), "rye/test", 1); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	fake.DropConnection(errors.New("eof"))
	fake.Reconnect()

	// The transport itself does not restore filters.
	if subs := fake.Subscriptions(); len(subs) != 0 {
		t.Errorf("Subscriptions() after reconnect = %v, want none", subs)
	}
}

// =============================================================================
// Unsubscribe Tests
// =============================================================================

func TestUnsubscribe(t *testing.T) {
	client, fake := connectedClient(t)
	rec := &recorder{}
	client.SetOnMessage(rec.receive)

	if err := client.Subscribe(context.Background(), "rye/test", 1); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := client.Unsubscribe(context.Background(), "rye/test"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}

	fake.Deliver("rye/test", []byte("late"), 1, false)
	if n := len(rec.topics()); n != 0 {
		t.Errorf("received %d messages after unsubscribe, want 0", n)
	}
}

func TestUnsubscribe_Validation(t *testing.T) {
	client, _ := connectedClient(t)

	if err := client.Unsubscribe(context.Background()); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe() error = %v, want ErrInvalidTopic", err)
	}
	if err := client.Unsubscribe(context.Background(), "a", ""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(a, \"\") error = %v, want ErrInvalidTopic", err)
	}
}

func TestUnsubscribeDisconnected(t *testing.T) {
	client, _ := newFakeClient(t, testConfig())

	if err := client.Unsubscribe(context.Background(), "rye/test"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublish(t *testing.T) {
	client, fake := connectedClient(t)

	if err := client.Publish(context.Background(), "rye/test", []byte("hello"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	pubs := fake.Published()
	if len(pubs) != 1 {
		t.Fatalf("Published() = %d messages, want 1", len(pubs))
	}
	if pubs[0].Topic != "rye/test" || string(pubs[0].Payload) != "hello" || pubs[0].QoS != 1 {
		t.Errorf("Published()[0] = %+v", pubs[0])
	}
}

func TestPublish_Retained(t *testing.T) {
	client, fake := connectedClient(t)

	if err := client.Publish(context.Background(), "rye/test", []byte("text"), 0, true); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if pubs := fake.Published(); len(pubs) != 1 || !pubs[0].Retained {
		t.Errorf("Published() = %+v, want one retained message", pubs)
	}
}

func TestPublish_Validation(t *testing.T) {
	client, _ := connectedClient(t)

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", nil, 1, ErrInvalidTopic},
		{"wildcard topic", "rye/+", nil, 1, ErrInvalidTopic},
		{"invalid qos", "rye/test", nil, 3, ErrInvalidQoS},
		{"too large", "rye/test", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(context.Background(), tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublishDisconnected(t *testing.T) {
	client, _ := newFakeClient(t, testConfig())

	if err := client.Publish(context.Background(), "rye/test", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Status Topic Tests
// =============================================================================

func TestStatusTopic(t *testing.T) {
	cfg := testConfig()
	cfg.StatusTopic = "mqttlog/status"
	client, fake := newFakeClient(t, cfg)

	opts := fake.Options()
	if !opts.WillEnabled || opts.WillTopic != "mqttlog/status" || !opts.WillRetained {
		t.Errorf("will = enabled %v topic %q retained %v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Disconnect()

	pubs := fake.Published()
	if len(pubs) != 2 {
		t.Fatalf("Published() = %d messages, want online and offline", len(pubs))
	}
	if !strings.Contains(string(pubs[0].Payload), `"status":"online"`) {
		t.Errorf("first status = %s, want online", pubs[0].Payload)
	}
	if !strings.Contains(string(pubs[1].Payload), `"reason":"graceful_shutdown"`) {
		t.Errorf("second status = %s, want graceful shutdown", pubs[1].Payload)
	}
	for _, p := range pubs {
		if !p.Retained {
			t.Errorf("status %s not retained", p.Payload)
		}
	}
}

func TestNoStatusTopic(t *testing.T) {
	client, fake := connectedClient(t)
	client.Disconnect()

	if pubs := fake.Published(); len(pubs) != 0 {
		t.Errorf("Published() = %v, want nothing without status topic", pubs)
	}
	if fake.Options().WillEnabled {
		t.Error("will enabled without status topic")
	}
}

// =============================================================================
// Options Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "user"
	cfg.Auth.Password = "pass"

	opts := buildClientOptions(cfg, "id-1")

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "id-1" {
		t.Errorf("ClientID = %q, want id-1", opts.ClientID)
	}
	if opts.Username != "user" || opts.Password != "pass" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false")
	}
	if opts.ConnectRetry {
		t.Error("ConnectRetry = true, initial failures would be hidden")
	}
	if !opts.Order {
		t.Error("Order = false, messages could arrive out of order")
	}
	if opts.KeepAlive != 30 {
		t.Errorf("KeepAlive = %d, want 30", opts.KeepAlive)
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883
	cfg.Broker.KeepAlive = 0

	opts := buildClientOptions(cfg, "id")

	if opts.Servers[0].String() != "ssl://127.0.0.1:8883" {
		t.Errorf("Servers[0] = %v, want ssl://127.0.0.1:8883", opts.Servers[0])
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Errorf("TLSConfig = %+v, want MinVersion TLS 1.2", opts.TLSConfig)
	}
	if opts.KeepAlive != int64(defaultKeepAlive/time.Second) {
		t.Errorf("KeepAlive = %d, want default", opts.KeepAlive)
	}
}

func TestResolveClientID(t *testing.T) {
	if got := resolveClientID("fixed"); got != "fixed" {
		t.Errorf("resolveClientID(fixed) = %q", got)
	}

	a := resolveClientID("")
	b := resolveClientID("")
	if !strings.HasPrefix(a, clientIDPrefix) || len(a) != len(clientIDPrefix)+8 {
		t.Errorf("resolveClientID(\"\") = %q, want %sxxxxxxxx", a, clientIDPrefix)
	}
	if a == b {
		t.Errorf("generated client IDs collide: %q", a)
	}
}

func TestNew_GeneratedClientID(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = ""
	client, fake := newFakeClient(t, cfg)

	if client.ClientID() != fake.Options().ClientID {
		t.Errorf("ClientID() = %q, options carry %q", client.ClientID(), fake.Options().ClientID)
	}
}

// captureLogger records log calls.
type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLogger) log(level, msg string) {
	l.mu.Lock()
	l.lines = append(l.lines, level+" "+msg)
	l.mu.Unlock()
}

func (l *captureLogger) Info(msg string, _ ...any)  { l.log("INFO", msg) }
func (l *captureLogger) Warn(msg string, _ ...any)  { l.log("WARN", msg) }
func (l *captureLogger) Error(msg string, _ ...any) { l.log("ERROR", msg) }
