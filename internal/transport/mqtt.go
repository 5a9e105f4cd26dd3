package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNotConnected is returned when publishing while the broker is unreachable.
	// Reconnection is handled by the client; callers must not retry.
	ErrNotConnected = errors.New("mqtt not connected")

	// ErrTimeout is returned when the broker does not acknowledge in time.
	ErrTimeout = errors.New("mqtt operation timed out")
)

// Default client settings
const (
	DefaultQueueSize      = 16
	DefaultKeepAlive      = 60 * time.Second
	DefaultConnectTimeout = 15 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
)

// Message is one inbound command.
type Message struct {
	Topic    string
	Payload  []byte
	Received time.Time
}

// Options configures the MQTT client.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string

	CommandTopic string
	HelloTopic   string
	HelloPayload string

	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	QueueSize      int
}

// Client is the MQTT gateway. Inbound commands are buffered on a channel for
// the controller loop; publishes fail fast with ErrNotConnected while offline.
type Client struct {
	opts   Options
	client mqtt.Client
	inbox  chan Message
}

// New creates a client. Nothing is sent until Start.
func New(opts Options) *Client {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.KeepAlive == 0 {
		opts.KeepAlive = DefaultKeepAlive
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}

	c := &Client{
		opts:  opts,
		inbox: make(chan Message, opts.QueueSize),
	}
	c.client = mqtt.NewClient(c.clientOptions())
	return c
}

func (c *Client) clientOptions() *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(c.opts.Broker).
		SetClientID(c.opts.ClientID).
		SetUsername(c.opts.Username).
		SetPassword(c.opts.Password).
		SetKeepAlive(c.opts.KeepAlive).
		SetConnectTimeout(c.opts.ConnectTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetCleanSession(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(client mqtt.Client, err error) {
			log.Warn().Err(err).Msg("MQTT connection lost")
		}).
		SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
			log.Info().Str("broker", c.opts.Broker).Msg("MQTT reconnecting")
		})
}

// Start begins connecting in the background. The client keeps retrying
// until Close.
func (c *Client) Start(ctx context.Context) {
	log.Info().
		Str("broker", c.opts.Broker).
		Str("client_id", c.opts.ClientID).
		Msg("Connecting to MQTT")

	token := c.client.Connect()
	go func() {
		select {
		case <-token.Done():
			if err := token.Error(); err != nil {
				log.Error().Err(err).Msg("MQTT connect failed")
			}
		case <-ctx.Done():
		}
	}()
}

// onConnect runs on every (re)connect: subscribe to commands, then say hello.
func (c *Client) onConnect(client mqtt.Client) {
	log.Info().Str("broker", c.opts.Broker).Msg("Connected to MQTT")

	if c.opts.CommandTopic != "" {
		token := client.Subscribe(c.opts.CommandTopic, 0, c.handleMessage)
		switch err := awaitToken(token, c.opts.WriteTimeout); {
		case errors.Is(err, ErrTimeout):
			log.Warn().Str("topic", c.opts.CommandTopic).Dur("timeout", c.opts.WriteTimeout).Msg("MQTT subscribe not acknowledged in time")
		case err != nil:
			log.Error().Err(err).Str("topic", c.opts.CommandTopic).Msg("MQTT subscribe failed")
		default:
			log.Info().Str("topic", c.opts.CommandTopic).Msg("Subscribed to commands")
		}
	}

	if c.opts.HelloTopic != "" {
		client.Publish(c.opts.HelloTopic, 0, false, c.opts.HelloPayload)
	}
}

// handleMessage copies the payload onto the inbox. Non-blocking: when the
// controller falls behind, new commands are dropped.
func (c *Client) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())

	select {
	case c.inbox <- Message{Topic: msg.Topic(), Payload: payload, Received: time.Now()}:
	default:
		log.Warn().
			Str("topic", msg.Topic()).
			Int("queue_size", cap(c.inbox)).
			Msg("Command queue full, dropping command")
	}
}

// Commands returns the inbound command channel.
func (c *Client) Commands() <-chan Message {
	return c.inbox
}

// IsConnected returns true while the broker connection is up.
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Publish sends payload at QoS 0.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, 0, retained, payload)
	if err := waitToken(ctx, token, c.opts.WriteTimeout); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects, allowing a short grace period for in-flight work.
func (c *Client) Close() {
	c.client.Disconnect(250)
	log.Info().Msg("MQTT disconnected")
}

// awaitToken blocks up to timeout for a broker acknowledgement.
func awaitToken(token mqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return ErrTimeout
	}
	return token.Error()
}

func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	}
}
