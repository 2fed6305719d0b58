package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gridcontrol/internal/infrastructure/config"
)

// pahoClient is the subset of pahomqtt.Client the adapter uses.
type pahoClient interface {
	IsConnected() bool
	Connect() pahomqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
}

// Client wraps paho.mqtt.golang as the gateway's transport adapter.
//
// Connection lifecycle is asynchronous: Connect returns immediately and the
// underlying client retries until the broker is reachable. Publishing is
// fire-and-forget and failures surface through the publish error callback
// or the logger.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
type Client struct {
	client pahoClient
	cfg    config.MQTTConfig
	topics Topics

	publishTimeout time.Duration

	// subscriptions tracks subscriptions for (re-)subscription on connect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	onConnect      func()
	onDisconnect   func(err error)
	onPublishError func(topic string, err error)
	callbackMu     sync.RWMutex

	logger Logger
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers run one at a time in arrival order and should return quickly.
// A returned error is logged; it does not affect acknowledgment.
type MessageHandler func(topic string, payload []byte) error

// Option configures a Client before its first connection attempt.
type Option func(*Client)

// WithOnConnect sets a callback invoked on initial connect and every reconnect.
func WithOnConnect(callback func()) Option {
	return func(c *Client) { c.onConnect = callback }
}

// WithOnDisconnect sets a callback invoked when the connection is lost.
func WithOnDisconnect(callback func(err error)) Option {
	return func(c *Client) { c.onDisconnect = callback }
}

// WithOnPublishError sets a callback invoked when an asynchronous publish fails.
func WithOnPublishError(callback func(topic string, err error)) Option {
	return func(c *Client) { c.onPublishError = callback }
}

// Connect starts a session with the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS)
//  2. Registers a Last Will on {product}/{domain}/gateway/status
//  3. Applies opts, so lifecycle callbacks are in place before any connect event
//  4. Starts connecting in the background with retry and backoff
//
// Connect does not wait for the broker. Subscriptions registered before the
// connection comes up are applied as soon as it does.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//   - logger: Receives connection lifecycle and handler errors (nil disables logging)
//   - opts: Lifecycle callbacks (WithOnConnect, WithOnDisconnect, WithOnPublishError)
//
// Returns:
//   - *Client: Client that is connecting or connected
//   - error: Only for configuration that can never work (invalid QoS)
func Connect(cfg config.MQTTConfig, logger Logger, opts ...Option) (*Client, error) {
	return connect(cfg, logger, func(o *pahomqtt.ClientOptions) pahoClient {
		return pahomqtt.NewClient(o)
	}, opts...)
}

// connect is Connect with the paho constructor injected.
func connect(cfg config.MQTTConfig, logger Logger, newPaho func(*pahomqtt.ClientOptions) pahoClient, opts ...Option) (*Client, error) {
	if cfg.QoS < 0 || cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}

	c := newClient(cfg, logger)
	for _, opt := range opts {
		opt(c)
	}

	pahoOpts := buildClientOptions(cfg)
	configureLWT(pahoOpts, c.topics.GatewayStatus(), cfg.Broker.ClientID)

	pahoOpts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	pahoOpts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	pahoOpts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.logger.Info("mqtt reconnecting", "broker", cfg.Broker.Host)
	})

	c.client = newPaho(pahoOpts)
	go c.watchConnect(c.client.Connect())

	return c, nil
}

// newClient builds an unconnected Client. The paho client is attached by the caller.
func newClient(cfg config.MQTTConfig, logger Logger) *Client {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Client{
		cfg:            cfg,
		topics:         NewTopics(cfg.Topics.Product, cfg.Topics.Domain),
		publishTimeout: defaultPublishTimeout,
		subscriptions:  make(map[string]subscription),
		logger:         logger,
	}
}

// watchConnect logs the outcome of the initial connection attempt.
func (c *Client) watchConnect(token pahomqtt.Token) {
	if !token.WaitTimeout(defaultConnectTimeout) {
		c.logger.Warn("mqtt broker not reachable yet, retrying in background",
			"broker", c.cfg.Broker.Host,
			"port", c.cfg.Broker.Port,
		)
		return
	}
	if err := token.Error(); err != nil {
		c.logger.Error("mqtt connect failed",
			"broker", c.cfg.Broker.Host,
			"error", fmt.Errorf("%w: %w", ErrConnectionFailed, err),
		)
	}
}

// handleConnect is called when the connection is established.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.logger.Info("mqtt connected", "broker", c.cfg.Broker.Host)

	c.restoreSubscriptions()
	c.publishStatus("online", "")

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.logger.Warn("mqtt connection lost", "error", err)

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions subscribes to every tracked topic. Tokens are not
// awaited because this runs inside the paho connect callback.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
		c.logger.Debug("mqtt subscription applied", "topic", sub.topic)
	}
}

// publishStatus publishes a retained gateway status message.
func (c *Client) publishStatus(status, reason string) pahomqtt.Token {
	payload := buildStatusPayload(status, c.cfg.Broker.ClientID, reason)
	return c.client.Publish(c.topics.GatewayStatus(), byte(c.cfg.QoS), true, payload)
}

// Close publishes a graceful offline status and disconnects.
// Calling Close on a client that never connected stops its retry loop.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		c.publishStatus("offline", "graceful_shutdown").WaitTimeout(c.publishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// HealthCheck reports whether the broker connection is up.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// Topics returns the topic builder for this client's namespace.
func (c *Client) Topics() Topics {
	return c.topics
}

// QoS returns the configured default QoS.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS)
}

// wrapHandler wraps a MessageHandler with panic recovery and logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("mqtt handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Warn("mqtt handler returned error",
				"topic", msg.Topic(),
				"error", err,
			)
		}
	}
}
