package recovery

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"procodus.dev/sensor-node/internal/wallclock"
	"procodus.dev/sensor-node/pkg/gpio"
	"procodus.dev/sensor-node/pkg/metrics"
)

// DefaultHold is how long the power timer is given to cut power.
const DefaultHold = 30 * time.Second

const holdTick = time.Second

var errPinRequired = errors.New("power-cycle pin is required")

// PowerCyclerConfig holds the configuration for a PowerCycler.
type PowerCyclerConfig struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// Pin is the power-timer "done" line, owned by the runtime
	Pin gpio.Pin
	// Hold is the total wait after asserting the line
	Hold time.Duration
	// Clock drives the hold (defaults to wallclock.Instance)
	Clock wallclock.Clock
	// Metrics is the optional Prometheus metrics collector
	Metrics *metrics.NodeMetrics
}

// PowerCycler asks a power-timer HAT to cut power until its next interval.
// If power is still on afterwards the node simply carries on.
type PowerCycler struct {
	logger  *slog.Logger
	pin     gpio.Pin
	hold    time.Duration
	clock   wallclock.Clock
	metrics *metrics.NodeMetrics
}

// NewPowerCycler validates cfg.
func NewPowerCycler(cfg PowerCyclerConfig) (*PowerCycler, error) {
	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}
	if cfg.Pin == nil {
		return nil, errPinRequired
	}
	if cfg.Hold <= 0 {
		cfg.Hold = DefaultHold
	}
	if cfg.Clock == nil {
		cfg.Clock = wallclock.Instance
	}

	return &PowerCycler{
		logger:  cfg.Logger.With(slog.String("component", "power-timer")),
		pin:     cfg.Pin,
		hold:    cfg.Hold,
		clock:   cfg.Clock,
		metrics: cfg.Metrics,
	}, nil
}

// Cycle drives the line high, holds in one-second ticks, then drives it
// low again so the next cycle produces a fresh edge. The hold always runs
// to completion.
func (p *PowerCycler) Cycle() error {
	p.logger.Info("power down HAT")
	if err := p.pin.Set(true); err != nil {
		return fmt.Errorf("assert power-cycle line: %w", err)
	}
	if p.metrics != nil {
		p.metrics.PowerCycles.Inc()
	}

	ticks := int(p.hold / holdTick)
	for n := range ticks {
		p.logger.Debug("holding for power down", "count", n)
		p.clock.Sleep(holdTick)
	}
	if rest := p.hold % holdTick; rest > 0 {
		p.clock.Sleep(rest)
	}

	if err := p.pin.Set(false); err != nil {
		return fmt.Errorf("release power-cycle line: %w", err)
	}
	return nil
}
