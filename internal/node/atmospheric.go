package node

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"procodus.dev/sensor-node/internal/config"
)

// AtmosphericConfig holds the configuration for an AtmosphericStrategy.
type AtmosphericConfig struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// Sensor is the environmental driver
	Sensor AtmosphericSensor
	// Topics for each published field
	TemperatureTopic string
	AirPressureTopic string
	HumidityTopic    string
	// Now stamps readings (defaults to time.Now)
	Now func() time.Time
}

// AtmosphericStrategy reads one composite sample per cycle. The sample
// needs no windowing.
type AtmosphericStrategy struct {
	cfg    AtmosphericConfig
	logger *slog.Logger

	sample *AtmosphericReading
	last   *Reading
}

// NewAtmosphericStrategy validates cfg.
func NewAtmosphericStrategy(cfg AtmosphericConfig) (*AtmosphericStrategy, error) {
	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}
	if cfg.Sensor == nil {
		return nil, errSensorRequired
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &AtmosphericStrategy{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("strategy", string(KindAtmospheric))),
	}, nil
}

// Kind implements Strategy.
func (s *AtmosphericStrategy) Kind() Kind { return KindAtmospheric }

// Initialize implements Strategy.
func (s *AtmosphericStrategy) Initialize(ctx context.Context) error {
	if err := initDriver(ctx, s.cfg.Sensor); err != nil {
		return fmt.Errorf("%w: %w", ErrSensorInit, err)
	}
	s.sample = nil
	s.last = nil
	s.logger.Debug("sensor initialized")
	return nil
}

// ReadSample implements Strategy.
func (s *AtmosphericStrategy) ReadSample(ctx context.Context) error {
	s.sample = nil
	tempC, presPa, humRH, err := s.cfg.Sensor.ReadValues(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSensorRead, err)
	}
	s.sample = &AtmosphericReading{
		TemperatureC: tempC,
		PressurePa:   presPa,
		PressureHPa:  presPa / 100,
		HumidityRH:   humRH,
	}
	return nil
}

// DeriveFields implements Strategy.
func (s *AtmosphericStrategy) DeriveFields() (Reading, error) {
	if s.sample == nil {
		if s.last == nil {
			return Reading{}, ErrNoReading
		}
		stale := *s.last
		stale.Stale = true
		return stale, nil
	}

	a := *s.sample
	s.logger.Info("atmospheric reading",
		"temp_c", a.TemperatureC,
		"pressure_hpa", a.PressureHPa,
		"humidity_rh", a.HumidityRH,
	)

	r := Reading{Kind: KindAtmospheric, Time: s.cfg.Now(), Atmospheric: &a}
	s.sample = nil
	s.last = &r
	return r, nil
}

// PublishFields implements Strategy. Pressure (hPa) and humidity are
// truncated to whole numbers.
func (s *AtmosphericStrategy) PublishFields(r Reading) []Field {
	if r.Atmospheric == nil {
		return nil
	}
	a := r.Atmospheric
	return []Field{
		{Name: config.FieldTemperature, Topic: s.cfg.TemperatureTopic, Payload: strconv.FormatFloat(a.TemperatureC, 'f', -1, 64)},
		{Name: config.FieldAirPressure, Topic: s.cfg.AirPressureTopic, Payload: strconv.FormatInt(int64(math.Trunc(a.PressureHPa)), 10)},
		{Name: config.FieldHumidity, Topic: s.cfg.HumidityTopic, Payload: strconv.FormatInt(int64(math.Trunc(a.HumidityRH)), 10)},
	}
}

// Ensure AtmosphericStrategy implements Strategy.
var _ Strategy = (*AtmosphericStrategy)(nil)
