package node

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"procodus.dev/sensor-node/internal/config"
	"procodus.dev/sensor-node/internal/debounce"
	"procodus.dev/sensor-node/internal/filter"
)

// DistanceConfig holds the configuration for a DistanceStrategy.
type DistanceConfig struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// Sensor is the range driver
	Sensor RangeSensor
	// Filter smooths each raw sample
	Filter filter.Filter
	// Classifier turns a smoothed distance into "occupied"
	Classifier debounce.Classifier
	// Debouncer stabilizes the classification
	Debouncer *debounce.Debouncer
	// WindowSize is the number of samples read per cycle
	WindowSize int
	// DistanceTopic and OccupancyTopic receive the published fields
	DistanceTopic  string
	OccupancyTopic string
	// Now stamps readings (defaults to time.Now)
	Now func() time.Time
}

// DistanceStrategy reads a full filter window every cycle, classifies each
// smoothed sample and publishes the debounced occupancy.
//
// Occupancy starts vacant. The first time the debounce history is full and
// uniform its state becomes the baseline; after that the published value
// only changes when the debouncer detects a change.
type DistanceStrategy struct {
	cfg    DistanceConfig
	logger *slog.Logger

	raw      []float64
	last     *Reading
	occupied bool
	baseline bool
}

// NewDistanceStrategy validates cfg.
func NewDistanceStrategy(cfg DistanceConfig) (*DistanceStrategy, error) {
	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}
	if cfg.Sensor == nil {
		return nil, errSensorRequired
	}
	if cfg.Filter == nil {
		return nil, errFilterRequired
	}
	if cfg.Debouncer == nil {
		return nil, errDebounceRequired
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = filter.DefaultWindowSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &DistanceStrategy{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("strategy", string(KindDistance))),
		raw:    make([]float64, 0, cfg.WindowSize),
	}, nil
}

// Kind implements Strategy.
func (s *DistanceStrategy) Kind() Kind { return KindDistance }

// Initialize implements Strategy.
func (s *DistanceStrategy) Initialize(ctx context.Context) error {
	if err := initDriver(ctx, s.cfg.Sensor); err != nil {
		return fmt.Errorf("%w: %w", ErrSensorInit, err)
	}
	s.cfg.Filter.Reset()
	s.cfg.Debouncer.Reset()
	s.raw = s.raw[:0]
	s.last = nil
	s.occupied = false
	s.baseline = false
	s.logger.Debug("sensor initialized", "window_size", s.cfg.WindowSize)
	return nil
}

// ReadSample implements Strategy.
func (s *DistanceStrategy) ReadSample(ctx context.Context) error {
	s.raw = s.raw[:0]
	for i := range s.cfg.WindowSize {
		mm, err := s.cfg.Sensor.ReadDistance(ctx)
		if err != nil {
			s.raw = s.raw[:0]
			return fmt.Errorf("%w: sample %d of %d: %w", ErrSensorRead, i+1, s.cfg.WindowSize, err)
		}
		s.raw = append(s.raw, mm)
	}
	s.logger.Debug("distance sampled", "raw_mm", s.raw)
	return nil
}

// DeriveFields implements Strategy.
func (s *DistanceStrategy) DeriveFields() (Reading, error) {
	if len(s.raw) == 0 {
		if s.last == nil {
			return Reading{}, ErrNoReading
		}
		stale := *s.last
		stale.Stale = true
		d := *stale.Distance
		d.Changed = false
		stale.Distance = &d
		return stale, nil
	}

	prev := s.occupied
	var smoothed float64
	for _, mm := range s.raw {
		smoothed = s.cfg.Filter.AddReading(mm)
		s.cfg.Debouncer.Push(s.cfg.Classifier.Classify(smoothed))
		s.settle()
	}

	changed := s.occupied != prev
	if s.occupied {
		s.logger.Info("occupied", "distance_mm", smoothed, "changed", changed)
	} else {
		s.logger.Info("vacant", "distance_mm", smoothed, "changed", changed)
	}

	r := Reading{
		Kind: KindDistance,
		Time: s.cfg.Now(),
		Distance: &DistanceReading{
			RawMM:      append([]float64(nil), s.raw...),
			FilteredMM: smoothed,
			Occupied:   s.occupied,
			Changed:    changed,
		},
	}
	s.raw = s.raw[:0]
	s.last = &r
	return r, nil
}

// settle commits the debounced state after a push.
func (s *DistanceStrategy) settle() {
	if !s.baseline {
		if state, ok := s.cfg.Debouncer.Stable(); ok {
			s.occupied = state
			s.baseline = true
			s.logger.Debug("occupancy baseline", "occupied", state)
		}
		return
	}
	if s.cfg.Debouncer.DetectChange() {
		state, _ := s.cfg.Debouncer.Stable()
		s.occupied = state
	}
}

// PublishFields implements Strategy.
func (s *DistanceStrategy) PublishFields(r Reading) []Field {
	if r.Distance == nil {
		return nil
	}
	return []Field{
		{Name: config.FieldDistance, Topic: s.cfg.DistanceTopic, Payload: formatDistance(r.Distance.FilteredMM)},
		{Name: config.FieldOccupancy, Topic: s.cfg.OccupancyTopic, Payload: formatBool(r.Distance.Occupied)},
	}
}

// formatDistance renders millimetres with at most one decimal.
func formatDistance(mm float64) string {
	return strconv.FormatFloat(math.Round(mm*10)/10, 'f', -1, 64)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Ensure DistanceStrategy implements Strategy.
var _ Strategy = (*DistanceStrategy)(nil)
