// Package recovery holds the outer fault-recovery tier and the power-timer
// hold that runs between cycles.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"procodus.dev/sensor-node/internal/wallclock"
	"procodus.dev/sensor-node/pkg/metrics"
)

// DefaultRestartDelay is the wait before re-invoking a failed entry point.
const DefaultRestartDelay = 60 * time.Second

var (
	errLoggerRequired = errors.New("logger is required")
	errEntryReturned  = errors.New("entry point returned without shutdown")
	errEntryPanicked  = errors.New("entry point panicked")
)

// Entry is a run-forever entry point, typically node.Runtime.Run.
type Entry func(ctx context.Context) error

// SupervisorConfig holds the configuration for a Supervisor.
type SupervisorConfig struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// Clock drives the restart delay (defaults to wallclock.Instance)
	Clock wallclock.Clock
	// RestartDelay is the wait between attempts
	RestartDelay time.Duration
	// Metrics is the optional Prometheus metrics collector
	Metrics *metrics.NodeMetrics
}

// Supervisor re-invokes an entry point forever. It is a plain loop; nothing
// recurses.
type Supervisor struct {
	logger  *slog.Logger
	clock   wallclock.Clock
	delay   time.Duration
	metrics *metrics.NodeMetrics
}

// NewSupervisor validates cfg.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}
	if cfg.Clock == nil {
		cfg.Clock = wallclock.Instance
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultRestartDelay
	}

	return &Supervisor{
		logger:  cfg.Logger.With(slog.String("component", "recovery")),
		clock:   cfg.Clock,
		delay:   cfg.RestartDelay,
		metrics: cfg.Metrics,
	}, nil
}

// Run invokes entry until ctx is done. Any return while ctx is live is
// treated as abnormal: it is logged, the restart delay is waited out and
// entry is invoked again. Run returns nil on shutdown.
func (s *Supervisor) Run(ctx context.Context, entry Entry) error {
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return nil
		}

		s.logger.Info("starting node", "attempt", attempt)
		err := s.invoke(ctx, entry)
		if ctx.Err() != nil {
			s.logger.Info("node stopped")
			return nil
		}
		if err == nil {
			err = errEntryReturned
		}

		s.logger.Error("node terminated", "error", err, "attempt", attempt)
		if s.metrics != nil {
			s.metrics.Faults.WithLabelValues(metrics.TierOuter).Inc()
		}

		s.logger.Info("retrying", "delay", s.delay)
		if err := s.clock.SleepContext(ctx, s.delay); err != nil {
			return nil
		}
		if s.metrics != nil {
			s.metrics.Restarts.Inc()
		}
	}
}

func (s *Supervisor) invoke(ctx context.Context, entry Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errEntryPanicked, r)
		}
	}()
	return entry(ctx)
}
