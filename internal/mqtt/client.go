package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/AaronLay10/SentientStory/internal/events"
)

const tokenTimeout = 10 * time.Second

// Client wraps the Paho MQTT client. Subscriptions are remembered and
// replayed whenever the connection comes back.
type Client struct {
	client    paho.Client
	brokerURL string
	logger    *zap.Logger
	mu        sync.Mutex

	subsMu sync.Mutex
	subs   map[string]paho.MessageHandler
}

// NewClient creates a new MQTT client but does not connect.
func NewClient(brokerURL, clientID string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		brokerURL: brokerURL,
		logger:    logger.Named("mqtt"),
		subs:      make(map[string]paho.MessageHandler),
	}

	opts := paho.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		// Handlers publish replies; ordered delivery would deadlock on the token wait.
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	c.client = paho.NewClient(opts)
	return c
}

// Connect attempts to connect to the broker.
// Returns an error if connection fails, but does not block indefinitely.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Connect()
	if !token.WaitTimeout(tokenTimeout) {
		return &ConnectTimeoutError{}
	}
	return token.Error()
}

// Subscribe subscribes to a topic with the given handler.
func (c *Client) Subscribe(topic string, handler paho.MessageHandler) error {
	c.subsMu.Lock()
	c.subs[topic] = handler
	c.subsMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Subscribe(topic, 1, handler)
	if !token.WaitTimeout(tokenTimeout) {
		return &TimeoutError{Op: "subscribe", Topic: topic}
	}
	return token.Error()
}

// Publish sends a QoS 1, non-retained message.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(tokenTimeout) {
		return &TimeoutError{Op: "publish", Topic: topic}
	}
	return token.Error()
}

// Disconnect cleanly disconnects from the broker.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.client.Disconnect(1000)
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Topics returns the topics that are replayed on reconnect.
func (c *Client) Topics() []string {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	topics := make([]string, 0, len(c.subs))
	for t := range c.subs {
		topics = append(topics, t)
	}
	return topics
}

func (c *Client) onConnect(pc paho.Client) {
	events.Emit("info", "mqtt.connected", "", map[string]interface{}{
		"broker": c.brokerURL,
	})

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for topic, handler := range c.subs {
		token := pc.Subscribe(topic, 1, handler)
		go func(topic string) {
			if token.WaitTimeout(tokenTimeout) && token.Error() == nil {
				c.logger.Info("resubscribed", zap.String("topic", topic))
				return
			}
			c.logger.Warn("resubscribe failed", zap.String("topic", topic), zap.Error(token.Error()))
		}(topic)
	}
}

func (c *Client) onConnectionLost(_ paho.Client, err error) {
	c.logger.Warn("connection lost", zap.String("broker", c.brokerURL), zap.Error(err))
	events.Emit("warn", "mqtt.disconnected", "connection lost", map[string]interface{}{
		"broker": c.brokerURL,
		"error":  err.Error(),
	})
}

// ConnectTimeoutError indicates connection timed out.
type ConnectTimeoutError struct{}

func (e *ConnectTimeoutError) Error() string {
	return "mqtt connect timeout"
}

// TimeoutError indicates a subscribe or publish did not complete in time.
type TimeoutError struct {
	Op    string
	Topic string
}

func (e *TimeoutError) Error() string {
	return "mqtt " + e.Op + " timeout: " + e.Topic
}

// StartWithRetry attempts to connect and subscribe, logging errors but not crashing.
// Returns true if connected, false otherwise. Paho keeps retrying the
// connection in the background and onConnect replays the subscription.
func (c *Client) StartWithRetry(topic string, handler paho.MessageHandler) bool {
	c.subsMu.Lock()
	c.subs[topic] = handler
	c.subsMu.Unlock()

	if err := c.Connect(); err != nil {
		c.logger.Error("failed to connect", zap.String("broker", c.brokerURL), zap.Error(err))
		return false
	}

	if err := c.Subscribe(topic, handler); err != nil {
		c.logger.Error("failed to subscribe", zap.String("topic", topic), zap.Error(err))
		return false
	}

	c.logger.Info("connected and subscribed", zap.String("broker", c.brokerURL), zap.String("topic", topic))
	return true
}
