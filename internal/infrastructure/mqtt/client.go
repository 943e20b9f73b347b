package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mqttlog/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang with mqttlog-specific functionality.
//
// It provides connection management, subscription calls, publishing and
// automatic reconnection with exponential backoff. It does not track
// subscriptions itself; re-subscribing after a reconnect is driven from
// the SetOnConnect callback.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - The message receiver is invoked sequentially, never concurrently.
type Client struct {
	client   pahomqtt.Client
	options  *pahomqtt.ClientOptions
	cfg      config.MQTTConfig
	clientID string
	factory  ClientFactory
	now      func() time.Time

	state   atomic.Int32
	closing atomic.Bool

	// Callbacks (optional, set via SetOnConnect/SetOnDisconnect/SetOnMessage).
	onConnect    func()
	onDisconnect func(err error)
	onMessage    func(Message)
	callbackMu   sync.RWMutex

	// logger for connection and panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ClientFactory creates the underlying paho client. pahomqtt.NewClient is
// the default.
type ClientFactory func(opts *pahomqtt.ClientOptions) pahomqtt.Client

// Option configures a Client.
type Option func(*Client)

// WithClientFactory replaces the paho client constructor.
func WithClientFactory(factory ClientFactory) Option {
	return func(c *Client) {
		c.factory = factory
	}
}

// WithClock sets the clock used to stamp inbound messages.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New builds a Client from config without connecting.
//
// It configures the broker URL, authentication, keep-alive, TLS, the
// optional Last Will on cfg.StatusTopic, and the connection callbacks that
// drive the state machine.
func New(cfg config.MQTTConfig, opts ...Option) *Client {
	c := &Client{
		cfg:     cfg,
		factory: pahomqtt.NewClient,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.clientID = resolveClientID(cfg.Broker.ClientID)
	c.options = buildClientOptions(cfg, c.clientID)
	if cfg.StatusTopic != "" {
		configureLWT(c.options, cfg.StatusTopic, c.clientID, byte(cfg.QoS))
	}

	c.options.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	c.options.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})
	c.options.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.handleReconnecting()
	})
	c.options.SetDefaultPublishHandler(c.handleMessage)

	c.client = c.factory(c.options)
	return c
}

// Connect establishes the first session with the broker.
//
// It waits until the broker accepts the session, the context is cancelled,
// or the connect timeout elapses. Any failure is returned wrapped in
// ErrConnectionFailed and leaves the client disconnected. After a
// successful Connect, lost connections are re-established automatically.
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}
	c.closing.Store(false)

	token := c.client.Connect()
	if err := waitToken(ctx, token, defaultConnectTimeout); err != nil {
		c.closing.Store(true)
		c.client.Disconnect(0)
		c.setState(StateDisconnected)
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, c.cfg.BrokerAddress(), err)
	}

	// The OnConnect handler runs asynchronously and may not have executed
	// yet, so mark the session established here as well.
	c.state.CompareAndSwap(int32(StateConnecting), int32(StateConnected))
	return nil
}

// handleConnect is called on the first connect and on every reconnect.
func (c *Client) handleConnect() {
	if c.closing.Load() {
		return
	}
	c.setState(StateConnected)

	if logger := c.getLogger(); logger != nil {
		logger.Info("MQTT connected", "broker", c.cfg.BrokerAddress(), "client_id", c.clientID)
	}

	c.publishStatus("online", "")

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleConnectionLost is called when an established session drops.
// paho starts reconnecting on its own, so the state moves to reconnecting.
func (c *Client) handleConnectionLost(err error) {
	if c.closing.Load() {
		return
	}
	c.setState(StateReconnecting)

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "broker", c.cfg.BrokerAddress(), "error", err)
	}

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

func (c *Client) handleReconnecting() {
	if c.closing.Load() {
		return
	}
	c.setState(StateReconnecting)
	if logger := c.getLogger(); logger != nil {
		logger.Info("MQTT reconnecting", "broker", c.cfg.BrokerAddress())
	}
}

// handleMessage is the single paho callback for every subscription. It is
// invoked sequentially in broker delivery order.
func (c *Client) handleMessage(_ pahomqtt.Client, m pahomqtt.Message) {
	msg := newMessage(m, c.now())

	defer func() {
		if r := recover(); r != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("MQTT message receiver panic recovered",
					"topic", msg.Topic,
					"panic", r,
				)
			}
		}
	}()

	c.callbackMu.RLock()
	receiver := c.onMessage
	c.callbackMu.RUnlock()
	if receiver == nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT message dropped, no receiver", "topic", msg.Topic)
		}
		return
	}
	receiver(msg)
}

// publishStatus publishes a retained status payload when a status topic is
// configured. It does not wait for the acknowledgment.
func (c *Client) publishStatus(status, reason string) pahomqtt.Token {
	if c.cfg.StatusTopic == "" {
		return nil
	}
	payload := buildStatusPayload(c.clientID, status, reason)
	return c.client.Publish(c.cfg.StatusTopic, byte(c.cfg.QoS), true, payload)
}

// Disconnect closes the session and stops any reconnection in progress.
//
// It performs:
//  1. Publishes graceful offline status (different from LWT crash status)
//  2. Waits briefly for pending operations
//  3. Disconnects from broker
//
// Calling Disconnect on a client that is already disconnected is a no-op.
func (c *Client) Disconnect() error {
	if c.client == nil {
		return nil
	}

	c.closing.Store(true)
	previous := State(c.state.Swap(int32(StateDisconnected)))
	if previous == StateDisconnected {
		return nil
	}

	if previous == StateConnected && c.client.IsConnected() {
		if token := c.publishStatus("offline", "graceful_shutdown"); token != nil {
			token.WaitTimeout(defaultPublishTimeout)
		}
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	if logger := c.getLogger(); logger != nil {
		logger.Info("MQTT disconnected", "broker", c.cfg.BrokerAddress())
	}
	return nil
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return fmt.Errorf("%w (state %s)", ErrNotConnected, c.State())
	}
	return nil
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// IsConnected reports whether a session is currently established.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected && c.client != nil && c.client.IsConnected()
}

// ClientID returns the client identifier presented to the broker.
func (c *Client) ClientID() string {
	return c.clientID
}

// BrokerAddress returns host:port of the configured broker.
func (c *Client) BrokerAddress() string {
	return c.cfg.BrokerAddress()
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
// The error parameter describes why the connection was lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetOnMessage sets the single receiver for inbound messages on every
// subscribed filter. Without one, messages are logged and dropped.
func (c *Client) SetOnMessage(receiver func(Message)) {
	c.callbackMu.Lock()
	c.onMessage = receiver
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for connection events and recovered panics.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// waitToken blocks until the token completes, ctx is done, or timeout
// elapses, and returns the first failure.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
}
