package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Presence payloads published retained on the presence topic
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

const (
	defaultConnectTimeout = 10 * time.Second
	disconnectQuiesceMs   = 250
)

// Client owns the broker connection shared by Subscriber and Publisher.
// Gateways can watch the presence topic to learn whether the monitor is listening.
type Client struct {
	client mqtt.Client
	config ClientConfig
	logger *slog.Logger

	mu    sync.Mutex
	hooks []func()
}

// ClientConfig holds MQTT client configuration
type ClientConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	PresenceTopic  string // empty disables presence and last will
	ConnectTimeout time.Duration
}

// NewClient connects to the broker. It fails if the first connect does not complete in time.
func NewClient(config ClientConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = defaultConnectTimeout
	}

	c := &Client{
		config: config,
		logger: logger.With("component", "mqtt_client", "broker", config.Broker),
	}
	c.client = mqtt.NewClient(c.options())

	token := c.client.Connect()
	if !token.WaitTimeout(config.ConnectTimeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", config.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	c.logger.Info("connected to broker")
	return c, nil
}

func (c *Client) options() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(c.config.Broker).
		SetClientID(c.config.ClientID).
		SetUsername(c.config.Username).
		SetPassword(c.config.Password).
		SetConnectTimeout(c.config.ConnectTimeout).
		SetAutoReconnect(true).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second)

	if c.config.PresenceTopic != "" {
		opts.SetWill(c.config.PresenceTopic, PresenceOffline, 1, true)
	}

	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		c.logger.Debug("unrouted message", "topic", msg.Topic())
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Warn("connection lost", "error", err)
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		c.logger.Info("reconnecting")
	})
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		c.onConnect(client)
	})
	return opts
}

// onConnect announces presence and runs the registered hooks, on the first connect and every reconnect
func (c *Client) onConnect(client publishClient) {
	if c.config.PresenceTopic != "" {
		token := client.Publish(c.config.PresenceTopic, 1, true, []byte(PresenceOnline))
		if token.WaitTimeout(c.config.ConnectTimeout) && token.Error() != nil {
			c.logger.Warn("failed to publish presence", "topic", c.config.PresenceTopic, "error", token.Error())
		}
	}

	c.mu.Lock()
	hooks := append([]func(){}, c.hooks...)
	c.mu.Unlock()
	for _, hook := range hooks {
		hook()
	}
}

// OnConnect registers fn to run after every (re)connect, e.g. to restore subscriptions
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// GetNativeClient returns the underlying paho client for Subscriber and Publisher
func (c *Client) GetNativeClient() mqtt.Client {
	return c.client
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Close marks the monitor offline and disconnects
func (c *Client) Close() {
	if c.config.PresenceTopic != "" && c.client.IsConnected() {
		c.client.Publish(c.config.PresenceTopic, 1, true, []byte(PresenceOffline)).WaitTimeout(time.Second)
	}
	c.client.Disconnect(disconnectQuiesceMs)
	c.logger.Info("disconnected")
}
