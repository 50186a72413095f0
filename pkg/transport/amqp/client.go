// Package amqp implements transport.Session against RabbitMQ. Topics are
// published to the amq.topic exchange using the same topic-to-routing-key
// mapping as RabbitMQ's MQTT plugin, so MQTT subscribers on the broker see
// the node's messages unchanged.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/sensor-node/pkg/metrics"
	"procodus.dev/sensor-node/pkg/transport"
)

const (
	transportLabel = string(transport.KindAMQP)

	// DefaultExchange is RabbitMQ's built-in topic exchange.
	DefaultExchange = "amq.topic"

	defaultConfirmTimeout = 5 * time.Second
)

var (
	errURLRequired    = errors.New("amqp url is required")
	errLoggerRequired = errors.New("logger is required")
	errNack           = errors.New("publish not acknowledged by broker")
	errConfirmTimeout = errors.New("timed out waiting for publish confirmation")
	errChannelClosed  = errors.New("channel closed while waiting for confirmation")
)

// Config holds the configuration for an AMQP session.
type Config struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// URL is the connection string for RabbitMQ
	URL string
	// Exchange receives every publish (defaults to amq.topic)
	Exchange string
	// ClientID is the device identity, sent as the AMQP app id
	ClientID string
	// ConfirmTimeout bounds the wait for each publisher confirm
	ConfirmTimeout time.Duration
	// Metrics is the optional Prometheus metrics collector
	Metrics *metrics.TransportMetrics
}

// Client is a per-cycle AMQP session with publisher confirms.
type Client struct {
	cfg             Config
	logger          *slog.Logger
	connection      *amqp.Connection
	channel         *amqp.Channel
	notifyConnClose chan *amqp.Error
	notifyConfirm   chan amqp.Confirmation
	metrics         *metrics.TransportMetrics
}

// New validates cfg. It does not connect.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}
	if cfg.URL == "" {
		return nil, errURLRequired
	}
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = defaultConfirmTimeout
	}

	return &Client{
		cfg:     cfg,
		logger:  cfg.Logger.With(slog.String("component", "amqp-session")),
		metrics: cfg.Metrics,
	}, nil
}

// RoutingKey maps an MQTT-style topic onto an AMQP topic routing key.
func RoutingKey(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

// Connect implements transport.Session.
func (c *Client) Connect(ctx context.Context) error {
	if c.metrics != nil {
		c.metrics.ConnectAttempts.WithLabelValues(transportLabel).Inc()
	}

	if err := c.connect(ctx); err != nil {
		if c.metrics != nil {
			c.metrics.ConnectFailures.WithLabelValues(transportLabel).Inc()
		}
		return err
	}

	if c.metrics != nil {
		c.metrics.SessionOpen.WithLabelValues(transportLabel).Set(1)
	}
	c.logger.Debug("connected", "exchange", c.cfg.Exchange)
	return nil
}

func (c *Client) connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("enable confirms: %w", err)
	}

	c.changeConnection(conn)
	c.changeChannel(ch)
	return nil
}

// changeConnection takes a new connection and updates the close listener.
func (c *Client) changeConnection(connection *amqp.Connection) {
	c.connection = connection
	c.notifyConnClose = make(chan *amqp.Error, 1)
	c.connection.NotifyClose(c.notifyConnClose)
}

// changeChannel takes a new channel and updates the confirm listener.
func (c *Client) changeChannel(channel *amqp.Channel) {
	c.channel = channel
	c.notifyConfirm = make(chan amqp.Confirmation, 1)
	c.channel.NotifyPublish(c.notifyConfirm)
}

// connectionLost reports whether the broker has closed the connection
// since it was opened. The library closes the notify channel on any
// shutdown, so a receive of any kind means the connection is gone.
func (c *Client) connectionLost() bool {
	select {
	case amqpErr, ok := <-c.notifyConnClose:
		if ok && amqpErr != nil {
			c.logger.Warn("connection closed by broker", "code", amqpErr.Code, "reason", amqpErr.Reason)
		}
		return true
	default:
		return false
	}
}

// Publish implements transport.Session. It blocks until the broker confirms.
func (c *Client) Publish(ctx context.Context, topic, payload string) error {
	if c.metrics != nil {
		timer := prometheus.NewTimer(c.metrics.PublishDuration.WithLabelValues(transportLabel))
		defer timer.ObserveDuration()
	}

	if c.channel == nil || c.channel.IsClosed() {
		c.trackFailure("not_connected")
		return transport.ErrNotConnected
	}
	if c.connectionLost() {
		c.trackFailure("connection_closed")
		return transport.ErrNotConnected
	}

	err := c.channel.PublishWithContext(
		ctx,
		c.cfg.Exchange,
		RoutingKey(topic),
		false, // Mandatory
		false, // Immediate
		amqp.Publishing{
			ContentType: "text/plain",
			AppId:       c.cfg.ClientID,
			Timestamp:   time.Now(),
			Body:        []byte(payload),
		},
	)
	if err != nil {
		c.trackFailure("publish_error")
		return fmt.Errorf("publish %q: %w", topic, err)
	}

	timer := time.NewTimer(c.cfg.ConfirmTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		c.trackFailure("context_canceled")
		return ctx.Err()
	case <-timer.C:
		c.trackFailure("confirm_timeout")
		return errConfirmTimeout
	case amqpErr := <-c.notifyConnClose:
		c.trackFailure("connection_closed")
		return fmt.Errorf("%w: %v", transport.ErrNotConnected, amqpErr)
	case confirm, ok := <-c.notifyConfirm:
		if !ok {
			c.trackFailure("channel_closed")
			return errChannelClosed
		}
		if !confirm.Ack {
			c.trackFailure("nack")
			return fmt.Errorf("%w: delivery tag %d", errNack, confirm.DeliveryTag)
		}
	}

	if c.metrics != nil {
		c.metrics.MessagesPublished.WithLabelValues(transportLabel).Inc()
	}
	return nil
}

// Disconnect implements transport.Session. Both the channel and the
// connection are closed; the first error is returned.
func (c *Client) Disconnect() error {
	if c.connection == nil {
		return transport.ErrNotConnected
	}

	conn, ch := c.connection, c.channel
	c.connection, c.channel = nil, nil
	if c.metrics != nil {
		c.metrics.SessionOpen.WithLabelValues(transportLabel).Set(0)
	}

	var chErr error
	if ch != nil && !ch.IsClosed() {
		chErr = ch.Close()
	}

	var connErr error
	if conn.IsClosed() {
		connErr = transport.ErrNotConnected
	} else {
		connErr = conn.Close()
	}

	c.logger.Debug("disconnected")
	return errors.Join(chErr, connErr)
}

func (c *Client) trackFailure(reason string) {
	if c.metrics != nil {
		c.metrics.PublishFailures.WithLabelValues(transportLabel, reason).Inc()
	}
}

// Ensure Client implements transport.Session.
var _ transport.Session = (*Client)(nil)
