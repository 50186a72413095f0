package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"procodus.dev/sensor-node/pkg/metrics"
)

// CyclePhase is the orchestrator state within one cycle.
type CyclePhase int

const (
	PhaseIdle CyclePhase = iota
	PhaseReading
	PhaseFiltering
	PhasePublishing
	PhaseCleanup
)

func (p CyclePhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseReading:
		return "reading"
	case PhaseFiltering:
		return "filtering"
	case PhasePublishing:
		return "publishing"
	case PhaseCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// CycleReport describes what one cycle did. Expected degradations are
// recorded here rather than returned as errors.
type CycleReport struct {
	// Phase is the last phase entered.
	Phase CyclePhase
	// Reading is what was published; zero when nothing was available.
	Reading    Reading
	HasReading bool
	// Published counts fields the transport accepted.
	Published int

	ReadErr    error
	PublishErr error
	PersistErr error
	// ReleaseErr is the cleanup failure, logged and never re-raised.
	ReleaseErr error

	Duration time.Duration
}

// Outcome classifies the cycle for metrics.
func (r CycleReport) Outcome() string {
	switch {
	case !r.HasReading:
		return metrics.OutcomeFailed
	case r.ReadErr != nil, r.PublishErr != nil, r.PersistErr != nil, r.ReleaseErr != nil:
		return metrics.OutcomeDegraded
	default:
		return metrics.OutcomeOK
	}
}

// RunCycle runs one connect, read, filter, publish, persist, release pass.
//
// The broker session is released on every path once it was opened. A
// sensor fault is logged once at ERROR and the previous reading is
// published again; publish and persistence failures are logged and
// recorded in the report. Only a failure to open the session is returned.
func (rt *Runtime) RunCycle(ctx context.Context) (report CycleReport, err error) {
	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
		if rt.metrics != nil {
			outcome := report.Outcome()
			if err != nil {
				outcome = metrics.OutcomeFailed
			}
			rt.metrics.CyclesTotal.WithLabelValues(outcome).Inc()
			rt.metrics.CycleDuration.Observe(report.Duration.Seconds())
		}
	}()

	if err := rt.conn.EnsureBrokerSession(ctx); err != nil {
		return report, err
	}

	defer func() {
		rt.enter(&report, PhaseCleanup)
		if relErr := rt.conn.ReleaseBrokerSession(); relErr != nil {
			report.ReleaseErr = relErr
			if rt.metrics != nil {
				rt.metrics.ReleaseFailures.Inc()
			}
			return
		}
		rt.logger.Debug("broker disconnected")
	}()

	rt.enter(&report, PhaseReading)
	if readErr := rt.strategy.ReadSample(ctx); readErr != nil {
		report.ReadErr = readErr
		rt.logger.Error("sensor read failed", "error", readErr)
		if rt.metrics != nil {
			rt.metrics.SensorReadFailures.Inc()
		}
	}

	rt.enter(&report, PhaseFiltering)
	reading, derr := rt.strategy.DeriveFields()
	if errors.Is(derr, ErrNoReading) {
		rt.logger.Warn("no reading to publish")
		return report, nil
	}
	if derr != nil {
		report.ReadErr = errors.Join(report.ReadErr, derr)
		rt.logger.Warn("deriving fields failed", "error", derr)
		return report, nil
	}
	report.Reading = reading
	report.HasReading = true
	if reading.Stale {
		rt.logger.Info("publishing previous reading")
	}
	if rt.metrics != nil && reading.Distance != nil && reading.Distance.Changed {
		rt.metrics.OccupancyChanges.Inc()
	}

	rt.enter(&report, PhasePublishing)
	report.Published, report.PublishErr = rt.publish(ctx, rt.strategy.PublishFields(reading))

	if rt.cfg.Persister != nil {
		if perr := rt.cfg.Persister.Persist(rt.cfg.PersistPath, reading); perr != nil {
			report.PersistErr = perr
			rt.logger.Warn("persisting reading failed", "path", rt.cfg.PersistPath, "error", perr)
			if rt.metrics != nil {
				rt.metrics.PersistFailures.Inc()
			}
		} else {
			rt.logger.Debug("reading persisted", "path", rt.cfg.PersistPath)
		}
	}

	return report, nil
}

// publish sends every field in order. A failed field does not stop the
// rest; failures are joined.
func (rt *Runtime) publish(ctx context.Context, fields []Field) (int, error) {
	var (
		sent int
		errs []error
	)

	for _, f := range fields {
		if f.Topic == "" {
			rt.logger.Warn("publishing to empty topic", "field", f.Name)
		}

		rt.logger.Debug("publishing", "field", f.Name, "topic", f.Topic, "payload", f.Payload)
		if err := rt.conn.Publish(ctx, f.Topic, f.Payload); err != nil {
			rt.logger.Error("publish failed", "field", f.Name, "topic", f.Topic, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
			if rt.metrics != nil {
				rt.metrics.PublishFailures.WithLabelValues(f.Name).Inc()
			}
			continue
		}
		rt.logger.Debug("published", "field", f.Name, "topic", f.Topic)

		sent++
		if rt.metrics != nil {
			rt.metrics.FieldsPublished.WithLabelValues(f.Name).Inc()
		}
	}

	return sent, errors.Join(errs...)
}

func (rt *Runtime) enter(report *CycleReport, phase CyclePhase) {
	report.Phase = phase
	rt.logger.Debug("cycle phase", slog.String("phase", phase.String()))
}
