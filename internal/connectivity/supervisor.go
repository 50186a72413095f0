// Package connectivity owns the node's network association and its broker
// session lifecycle.
package connectivity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"procodus.dev/sensor-node/internal/wallclock"
	"procodus.dev/sensor-node/pkg/metrics"
	"procodus.dev/sensor-node/pkg/transport"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
)

var (
	// ErrNetworkAssociation is returned when the station fails to associate
	// within the retry budget.
	ErrNetworkAssociation = errors.New("network association failed")
	// ErrTransportSession is returned when a broker session cannot be opened.
	ErrTransportSession = errors.New("broker session failed")

	errStationRequired = errors.New("station is required")
	errSessionRequired = errors.New("transport session is required")
	errLoggerRequired  = errors.New("logger is required")
)

// Station is the wireless interface the node associates through.
type Station interface {
	// Associated reports full association (link up with an address).
	Associated() bool
	// Disconnect drops any current association.
	Disconnect() error
	// Connect starts associating with ssid. It does not wait for the result.
	Connect(ssid, password string) error
}

// TimeSyncer sets the node clock from the network.
type TimeSyncer interface {
	Sync(ctx context.Context) error
}

// Config holds the configuration for a Supervisor.
type Config struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// Station is the wireless interface
	Station Station
	// Session is the broker transport; each cycle connects and disconnects it
	Session transport.Session
	// TimeSyncer is optional; it runs after every fresh association
	TimeSyncer TimeSyncer
	// Clock drives the inter-poll waits (defaults to wallclock.Instance)
	Clock wallclock.Clock
	// SSID and Password are the network credentials
	SSID     string
	Password string
	// MaxRetries is the number of association polls (default 3)
	MaxRetries int
	// RetryDelay is the fixed wait after each failed poll (default 1s)
	RetryDelay time.Duration
	// Metrics is the optional Prometheus metrics collector
	Metrics *metrics.NodeMetrics
}

// Supervisor joins the network with bounded retries and opens and closes
// the broker session for each cycle.
type Supervisor struct {
	cfg     Config
	logger  *slog.Logger
	clock   wallclock.Clock
	metrics *metrics.NodeMetrics

	mu    sync.Mutex
	state ConnectionState
}

// New creates a Supervisor in the Disconnected state.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}
	if cfg.Station == nil {
		return nil, errStationRequired
	}
	if cfg.Session == nil {
		return nil, errSessionRequired
	}
	if cfg.Clock == nil {
		cfg.Clock = wallclock.Instance
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}

	s := &Supervisor{
		cfg:     cfg,
		logger:  cfg.Logger.With(slog.String("component", "connectivity")),
		clock:   cfg.Clock,
		metrics: cfg.Metrics,
	}
	s.setState(Disconnected)
	return s, nil
}

// State returns the current connection state.
func (s *Supervisor) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(state ConnectionState) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ConnectionState.Set(float64(state))
	}
	if prev != state {
		s.logger.Debug("connection state changed", "from", prev.String(), "to", state.String())
	}
}

// JoinNetwork associates the station unless it already is. It polls the
// association status up to MaxRetries times, waiting RetryDelay after each
// failed poll; these waits are not cancellable. A successful fresh
// association triggers a best-effort time sync.
func (s *Supervisor) JoinNetwork(ctx context.Context) (JoinOutcome, error) {
	if s.cfg.Station.Associated() {
		s.setState(Connected)
		return JoinAlreadyAssociated, nil
	}

	s.setState(Connecting)
	s.logger.Info("connecting to network", "ssid", s.cfg.SSID)

	if err := s.cfg.Station.Disconnect(); err != nil {
		s.logger.Warn("station disconnect failed", "error", err)
	}
	if err := s.cfg.Station.Connect(s.cfg.SSID, s.cfg.Password); err != nil {
		s.logger.Warn("station connect request failed", "ssid", s.cfg.SSID, "error", err)
	}

	for remaining := s.cfg.MaxRetries; remaining > 0; remaining-- {
		if s.metrics != nil {
			s.metrics.AssociationPolls.Inc()
		}
		if s.cfg.Station.Associated() {
			s.setState(Connected)
			s.logger.Info("network associated", "ssid", s.cfg.SSID)
			s.syncTime(ctx)
			return JoinAssociated, nil
		}

		s.logger.Debug("waiting for association", "ssid", s.cfg.SSID, "retries_left", remaining)
		s.clock.Sleep(s.cfg.RetryDelay)
	}

	s.setState(Failed)
	s.logger.Error("network connection failed", "ssid", s.cfg.SSID, "polls", s.cfg.MaxRetries)
	return JoinExhausted, fmt.Errorf("%w: %q after %d polls", ErrNetworkAssociation, s.cfg.SSID, s.cfg.MaxRetries)
}

func (s *Supervisor) syncTime(ctx context.Context) {
	if s.cfg.TimeSyncer == nil {
		return
	}
	if err := s.cfg.TimeSyncer.Sync(ctx); err != nil {
		s.logger.Warn("time sync failed", "error", err)
	}
}

// EnsureBrokerSession opens a new broker session. It does not retry.
func (s *Supervisor) EnsureBrokerSession(ctx context.Context) error {
	s.logger.Debug("opening broker session")
	if err := s.cfg.Session.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportSession, err)
	}
	s.logger.Debug("broker session open")
	return nil
}

// ReleaseBrokerSession closes the broker session. A failure is logged and
// returned; callers running it as cleanup record it without re-raising.
func (s *Supervisor) ReleaseBrokerSession() error {
	if err := s.cfg.Session.Disconnect(); err != nil {
		s.logger.Error("error during broker disconnect", "error", err)
		return fmt.Errorf("release broker session: %w", err)
	}
	s.logger.Debug("broker session released")
	return nil
}

// Publish sends one field on the open broker session.
func (s *Supervisor) Publish(ctx context.Context, topic, payload string) error {
	return s.cfg.Session.Publish(ctx, topic, payload)
}
