package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-adapters/internal/infrastructure/config"
)

// Client is one adapter's broker session.
//
// Paho auto-reconnect is off. When the session drops, the onLost callback
// given to Connect fires once and the Client stays closed; the adapter
// lifecycle dials a replacement and subscribes again.
//
// All methods are safe for concurrent use.
type Client struct {
	paho     pahomqtt.Client
	clientID string

	// filters maps each active subscription filter to its QoS.
	filters map[string]byte
	subMu   sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	onLost   func(error)
	lostOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger receives handler failures. logging.Logger and adapter.Logger both
// satisfy it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler processes one inbound state message. It runs on a paho
// goroutine and should return quickly. A returned error is logged; the
// message is acknowledged either way.
type MessageHandler func(topic string, payload []byte) error

// Connect opens a session to the broker in cfg, bounded by ctx and the
// configured connect timeout. onLost may be nil. It is installed before the
// dial, so a drop straight after the handshake is still reported.
func Connect(ctx context.Context, cfg config.MQTTConfig, onLost func(error)) (*Client, error) {
	opts, err := buildClientOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		clientID: cfg.Broker.ClientID,
		filters:  make(map[string]byte),
		onLost:   onLost,
	}
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.connectionLost(err)
	})

	c.paho = pahomqtt.NewClient(opts)
	token := c.paho.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		c.paho.Disconnect(0)
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, BrokerURL(cfg), ctx.Err())
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, BrokerURL(cfg), err)
	}

	c.setConnected(true)
	return c, nil
}

func (c *Client) setConnected(v bool) {
	c.connMu.Lock()
	c.connected = v
	c.connMu.Unlock()
}

// connectionLost marks the session closed and reports the cause once.
func (c *Client) connectionLost(err error) {
	c.setConnected(false)
	c.lostOnce.Do(func() {
		if c.onLost != nil {
			c.onLost(err)
		}
	})
}

// Close ends the session after a short quiesce for in-flight publishes.
// onLost never fires for a deliberate Close. Closing a nil or already closed
// Client is a no-op.
func (c *Client) Close() error {
	if c == nil || c.paho == nil {
		return nil
	}
	c.lostOnce.Do(func() {})
	c.paho.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)
	return nil
}

// IsConnected reports whether the session is still usable.
func (c *Client) IsConnected() bool {
	if c == nil || c.paho == nil {
		return false
	}
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.paho.IsConnected()
}

// SetLogger routes handler errors and panics to logger. Without one they
// are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.dispatch(handler, msg.Topic(), msg.Payload())
	}
}

// dispatch runs one handler call. A panicking handler is contained here so
// one bad payload cannot take down the paho router.
func (c *Client) dispatch(handler MessageHandler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("state handler panicked",
					"client_id", c.clientID,
					"topic", topic,
					"panic", r,
				)
			}
		}
	}()

	if err := handler(topic, payload); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("state message rejected",
				"client_id", c.clientID,
				"topic", topic,
				"bytes", len(payload),
				"error", err,
			)
		}
	}
}
