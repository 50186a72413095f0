// Package node runs the sensing cycle and its inner fault-recovery tier.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"procodus.dev/sensor-node/internal/connectivity"
	"procodus.dev/sensor-node/internal/wallclock"
	"procodus.dev/sensor-node/pkg/metrics"
)

// DefaultRepeatDelay is the wait between cycles and after an inner-tier fault.
const DefaultRepeatDelay = 300 * time.Second

// Connection is what the runtime needs from the connection supervisor.
type Connection interface {
	JoinNetwork(ctx context.Context) (connectivity.JoinOutcome, error)
	EnsureBrokerSession(ctx context.Context) error
	ReleaseBrokerSession() error
	Publish(ctx context.Context, topic, payload string) error
}

// PowerCycler signals the power-timer hardware and holds. The hold is not
// cancellable.
type PowerCycler interface {
	Cycle() error
}

// RuntimeConfig holds the configuration for a Runtime.
type RuntimeConfig struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// Strategy is the sensor variant
	Strategy Strategy
	// Connection joins the network and carries the broker session
	Connection Connection
	// PowerCycler is optional; when set it runs after every cycle
	PowerCycler PowerCycler
	// Persister is optional; when set every reading is written to PersistPath
	Persister   Persister
	PersistPath string
	// Clock drives the inter-cycle and recovery sleeps
	Clock wallclock.Clock
	// RepeatDelay is the inter-cycle and fault-recovery sleep
	RepeatDelay time.Duration
	// Metrics is the optional Prometheus metrics collector
	Metrics *metrics.NodeMetrics
}

// Runtime is one sensor node. It is driven from a single goroutine.
type Runtime struct {
	cfg      RuntimeConfig
	logger   *slog.Logger
	strategy Strategy
	conn     Connection
	clock    wallclock.Clock
	metrics  *metrics.NodeMetrics
}

var errPanic = errors.New("panic in sensing loop")

// NewRuntime validates cfg.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}
	if cfg.Strategy == nil {
		return nil, errStrategyRequired
	}
	if cfg.Connection == nil {
		return nil, errConnRequired
	}
	if cfg.Clock == nil {
		cfg.Clock = wallclock.Instance
	}
	if cfg.RepeatDelay <= 0 {
		cfg.RepeatDelay = DefaultRepeatDelay
	}

	return &Runtime{
		cfg:      cfg,
		logger:   cfg.Logger.With(slog.String("component", "node"), slog.String("kind", string(cfg.Strategy.Kind()))),
		strategy: cfg.Strategy,
		conn:     cfg.Connection,
		clock:    cfg.Clock,
		metrics:  cfg.Metrics,
	}, nil
}

// Run joins the network, then runs the sensing loop until ctx is done.
//
// A failed boot-time join is returned to the caller. Inside the loop any
// fault is logged at ERROR, followed by a RepeatDelay sleep and re-entry
// from sensor initialization. Run returns nil once ctx is done.
func (rt *Runtime) Run(ctx context.Context) error {
	rt.logger.Info("node starting", "repeat_delay", rt.cfg.RepeatDelay)

	if _, err := rt.conn.JoinNetwork(ctx); err != nil {
		return fmt.Errorf("boot: %w", err)
	}

	for {
		err := rt.tier(ctx)
		if ctx.Err() != nil {
			rt.logger.Info("context canceled, shutting down")
			return nil
		}

		rt.logger.Error("fault in sensing loop", "error", err)
		if rt.metrics != nil {
			rt.metrics.Faults.WithLabelValues(metrics.TierInner).Inc()
		}

		rt.logger.Info("sleeping on fault recovery", "delay", rt.cfg.RepeatDelay)
		if err := rt.clock.SleepContext(ctx, rt.cfg.RepeatDelay); err != nil {
			rt.logger.Info("context canceled, shutting down")
			return nil
		}
	}
}

// tier is the inner recovery tier: initialize, then cycle until a fault.
func (rt *Runtime) tier(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()

	if err := rt.strategy.Initialize(ctx); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := rt.conn.JoinNetwork(ctx); err != nil {
			return err
		}

		if _, err := rt.RunCycle(ctx); err != nil {
			return err
		}

		if rt.cfg.PowerCycler != nil {
			if err := rt.cfg.PowerCycler.Cycle(); err != nil {
				return fmt.Errorf("power cycle: %w", err)
			}
		}

		rt.logger.Info("sleeping", "delay", rt.cfg.RepeatDelay)
		if err := rt.clock.SleepContext(ctx, rt.cfg.RepeatDelay); err != nil {
			return err
		}
	}
}
