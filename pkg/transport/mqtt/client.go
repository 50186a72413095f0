// Package mqtt implements transport.Session on the paho MQTT 3.1.1 client.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"

	"procodus.dev/sensor-node/pkg/metrics"
	"procodus.dev/sensor-node/pkg/transport"
)

const (
	transportLabel = string(transport.KindMQTT)

	defaultConnectTimeout = 10 * time.Second
	defaultKeepAlive      = 60 * time.Second

	// Milliseconds paho waits for in-flight work on disconnect.
	disconnectQuiesce = 250
)

var (
	errBrokerRequired   = errors.New("broker host is required")
	errClientIDRequired = errors.New("client id is required")
	errLoggerRequired   = errors.New("logger is required")
	errConnectTimeout   = errors.New("timed out waiting for broker")
)

// Config holds the configuration for an MQTT session.
type Config struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// Host and Port locate the broker
	Host string
	Port int
	// TLS enables an encrypted session; CAFile optionally pins the broker CA
	TLS    bool
	CAFile string
	// Username and Password authenticate the session
	Username string
	Password string
	// ClientID is the device identity
	ClientID string
	// QoS is used for every publish
	QoS byte
	// ConnectTimeout bounds Connect and each Publish wait
	ConnectTimeout time.Duration
	// Metrics is the optional Prometheus metrics collector
	Metrics *metrics.TransportMetrics
}

// Client is a single-use-per-cycle MQTT session. Each Connect builds a
// fresh paho client; Disconnect tears it down.
type Client struct {
	cfg     Config
	logger  *slog.Logger
	tlsConf *tls.Config
	client  paho.Client
	metrics *metrics.TransportMetrics
}

// New validates cfg and prepares TLS material. It does not connect.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}
	if cfg.Host == "" {
		return nil, errBrokerRequired
	}
	if cfg.ClientID == "" {
		return nil, errClientIDRequired
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}

	c := &Client{
		cfg:     cfg,
		logger:  cfg.Logger.With(slog.String("component", "mqtt-session")),
		metrics: cfg.Metrics,
	}

	if cfg.TLS {
		tlsConf, err := newTLSConfig(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		c.tlsConf = tlsConf
	}

	return c, nil
}

func newTLSConfig(caFile string) (*tls.Config, error) {
	conf := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return conf, nil
	}

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}
	conf.RootCAs = pool
	return conf, nil
}

// BrokerURL returns the URL paho dials.
func (c *Client) BrokerURL() string {
	scheme := "tcp"
	if c.cfg.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.cfg.Host, c.cfg.Port)
}

func (c *Client) options() *paho.ClientOptions {
	opts := paho.NewClientOptions()
	opts.AddBroker(c.BrokerURL())
	opts.SetClientID(c.cfg.ClientID)
	opts.SetUsername(c.cfg.Username)
	opts.SetPassword(c.cfg.Password)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetConnectTimeout(c.cfg.ConnectTimeout)
	// Reconnection belongs to the node's recovery tiers, not to paho.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetOrderMatters(true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.logger.Warn("connection lost", "error", err)
	})
	if c.tlsConf != nil {
		opts.SetTLSConfig(c.tlsConf)
	}
	return opts
}

// Connect implements transport.Session.
func (c *Client) Connect(ctx context.Context) error {
	if c.metrics != nil {
		c.metrics.ConnectAttempts.WithLabelValues(transportLabel).Inc()
	}

	c.logger.Debug("connecting", "broker", c.BrokerURL(), "client_id", c.cfg.ClientID)

	client := paho.NewClient(c.options())
	if err := c.wait(ctx, client.Connect()); err != nil {
		if c.metrics != nil {
			c.metrics.ConnectFailures.WithLabelValues(transportLabel).Inc()
		}
		return fmt.Errorf("connect %s: %w", c.BrokerURL(), err)
	}

	c.client = client
	if c.metrics != nil {
		c.metrics.SessionOpen.WithLabelValues(transportLabel).Set(1)
	}
	c.logger.Debug("connected", "broker", c.BrokerURL())
	return nil
}

// Publish implements transport.Session.
func (c *Client) Publish(ctx context.Context, topic, payload string) error {
	if c.metrics != nil {
		timer := prometheus.NewTimer(c.metrics.PublishDuration.WithLabelValues(transportLabel))
		defer timer.ObserveDuration()
	}

	// The broker drops the whole connection on a bad topic, taking every
	// later publish with it, so it never reaches paho.
	if err := transport.ValidateTopic(topic); err != nil {
		c.trackFailure("invalid_topic")
		return err
	}

	if c.client == nil || !c.client.IsConnected() {
		c.trackFailure("not_connected")
		return transport.ErrNotConnected
	}

	if err := c.wait(ctx, c.client.Publish(topic, c.cfg.QoS, false, payload)); err != nil {
		c.trackFailure("publish_error")
		return fmt.Errorf("publish %q: %w", topic, err)
	}

	if c.metrics != nil {
		c.metrics.MessagesPublished.WithLabelValues(transportLabel).Inc()
	}
	return nil
}

// Disconnect implements transport.Session.
func (c *Client) Disconnect() error {
	if c.client == nil {
		return transport.ErrNotConnected
	}

	client := c.client
	c.client = nil
	if c.metrics != nil {
		c.metrics.SessionOpen.WithLabelValues(transportLabel).Set(0)
	}

	if !client.IsConnected() {
		return transport.ErrNotConnected
	}
	client.Disconnect(disconnectQuiesce)
	c.logger.Debug("disconnected", "broker", c.BrokerURL())
	return nil
}

// wait blocks on a paho token, the context, or the configured timeout.
func (c *Client) wait(ctx context.Context, token paho.Token) error {
	timer := time.NewTimer(c.cfg.ConnectTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errConnectTimeout
	}
}

func (c *Client) trackFailure(reason string) {
	if c.metrics != nil {
		c.metrics.PublishFailures.WithLabelValues(transportLabel, reason).Inc()
	}
}

// Ensure Client implements transport.Session.
var _ transport.Session = (*Client)(nil)
