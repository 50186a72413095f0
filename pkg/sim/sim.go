// Package sim provides simulated sensor drivers for bench runs without
// hardware. Readings follow realistic patterns with noise, glitches and
// slow trends so the filter and debouncer have something to do.
package sim

import (
	"context"
	"errors"
	"math"
	"net"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// ErrSimulatedFault is returned when a driver injects a read failure.
var ErrSimulatedFault = errors.New("simulated sensor fault")

// HardwareAddr returns a fake, locally administered unicast MAC.
func HardwareAddr(f *gofakeit.Faker) net.HardwareAddr {
	mac, err := net.ParseMAC(f.MacAddress())
	if err != nil || len(mac) != 6 {
		mac = net.HardwareAddr{0, 0, 0, 0, 0, byte(f.Uint8())}
	}
	mac[0] = (mac[0] | 0x02) &^ 0x01
	return mac
}

// RangeConfig tunes the simulated distance sensor.
type RangeConfig struct {
	// Seed makes the sequence reproducible; 0 seeds randomly.
	Seed uint64
	// EmptyMM and OccupiedMM are the mean distances for each state.
	EmptyMM    float64
	OccupiedMM float64
	// NoiseMM is the peak-to-peak measurement noise.
	NoiseMM float64
	// SpikeRate is the chance a reading is a glitch (0 or out of range).
	SpikeRate float64
	// SwitchRate is the chance per reading that occupancy flips.
	SwitchRate float64
	// FailureRate is the chance a read fails.
	FailureRate float64
}

// DefaultRangeConfig is a desk about two metres from the sensor.
func DefaultRangeConfig() RangeConfig {
	return RangeConfig{
		EmptyMM:    2000,
		OccupiedMM: 600,
		NoiseMM:    40,
		SpikeRate:  0.03,
		SwitchRate: 0.02,
	}
}

// Range is a simulated time-of-flight distance sensor.
type Range struct {
	mu       sync.Mutex
	cfg      RangeConfig
	faker    *gofakeit.Faker
	occupied bool
}

// NewRange creates a simulated distance sensor.
func NewRange(cfg RangeConfig) *Range {
	return &Range{cfg: cfg, faker: gofakeit.New(cfg.Seed)}
}

// Init clears the simulated occupancy.
func (r *Range) Init(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.occupied = false
	return nil
}

// Occupied reports the simulated ground truth.
func (r *Range) Occupied() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.occupied
}

// ReadDistance returns a distance in millimetres.
func (r *Range) ReadDistance(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f := r.faker
	if f.Float64() < r.cfg.FailureRate {
		return 0, ErrSimulatedFault
	}
	if f.Float64() < r.cfg.SwitchRate {
		r.occupied = !r.occupied
	}

	// Glitches read as nothing or as the sensor's range limit.
	if f.Float64() < r.cfg.SpikeRate {
		if f.Bool() {
			return 0, nil
		}
		return 8190, nil
	}

	mean := r.cfg.EmptyMM
	if r.occupied {
		mean = r.cfg.OccupiedMM
	}
	noise := (f.Float64() - 0.5) * r.cfg.NoiseMM
	return math.Max(0, math.Round(mean+noise)), nil
}

// AtmosphericConfig tunes the simulated environmental sensor.
type AtmosphericConfig struct {
	// Seed makes the sequence reproducible; 0 seeds randomly.
	Seed uint64
	// Now supplies the time used for daily and seasonal cycles.
	Now func() time.Time
	// FailureRate is the chance a read fails.
	FailureRate float64
}

// Atmospheric is a simulated temperature/pressure/humidity sensor.
// Temperature follows a daily cycle, humidity is inversely correlated with
// it, and pressure is a slow random walk with occasional weather fronts.
type Atmospheric struct {
	mu    sync.Mutex
	cfg   AtmosphericConfig
	faker *gofakeit.Faker

	baselineTemp     float64
	baselineHumidity float64
	baselinePressure float64 // hPa
	noise            float64
	pressureTrend    float64
	lastPressure     float64
}

// NewAtmospheric creates a simulated environmental sensor.
func NewAtmospheric(cfg AtmosphericConfig) *Atmospheric {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	a := &Atmospheric{cfg: cfg, faker: gofakeit.New(cfg.Seed)}
	a.reset()
	return a
}

func (a *Atmospheric) reset() {
	f := a.faker
	a.baselineTemp = f.Float64Range(15, 25)
	a.baselineHumidity = f.Float64Range(45, 65)
	a.baselinePressure = 1013 + f.Float64Range(-10, 10)
	a.noise = f.Float64Range(0.2, 1.5)
	a.pressureTrend = f.Float64Range(-0.25, 0.25)
	a.lastPressure = a.baselinePressure
}

// Init re-seeds the baselines, as a sensor power-up would.
func (a *Atmospheric) Init(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reset()
	return nil
}

// ReadValues returns temperature in °C, pressure in Pa and relative humidity in %.
func (a *Atmospheric) ReadValues(ctx context.Context) (float64, float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, 0, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.faker.Float64() < a.cfg.FailureRate {
		return 0, 0, 0, ErrSimulatedFault
	}

	t := a.cfg.Now()
	temp := a.temperature(t)
	hum := a.humidity(t, temp)
	pres := a.pressure(t)

	return round(temp, 2), round(pres*100, 0), round(hum, 2), nil
}

func (a *Atmospheric) temperature(t time.Time) float64 {
	f := a.faker
	hour := float64(t.Hour())

	// Peak mid-afternoon.
	daily := 5 * math.Sin((hour-6)*math.Pi/12)
	noise := (f.Float64() - 0.5) * a.noise

	anomaly := 0.0
	if f.Float64() < 0.05 {
		anomaly = (f.Float64() - 0.5) * 15
	}

	return a.baselineTemp + daily + noise + anomaly
}

func (a *Atmospheric) humidity(t time.Time, temperature float64) float64 {
	f := a.faker
	hour := float64(t.Hour())

	daily := -3 * math.Sin((hour-6)*math.Pi/12)
	tempEffect := -(temperature - a.baselineTemp) * 1.5
	noise := (f.Float64() - 0.5) * a.noise * 0.5
	weekly := 10 * math.Sin(float64(t.Unix())/(86400*7))

	rain := 0.0
	if f.Float64() < 0.03 {
		rain = f.Float64() * 20
	}

	return math.Max(20, math.Min(95, a.baselineHumidity+daily+tempEffect+noise+weekly+rain))
}

// pressure is in hPa.
func (a *Atmospheric) pressure(t time.Time) float64 {
	f := a.faker

	step := (f.Float64() - 0.5) * 0.5
	if f.Float64() < 0.1 {
		a.pressureTrend = -a.pressureTrend + (f.Float64()-0.5)*0.2
	}

	seasonal := 5 * math.Sin(float64(t.YearDay())*2*math.Pi/365)
	diurnal := 0.5 * math.Sin((float64(t.Hour())-3)*math.Pi/12)

	p := a.lastPressure + step + a.pressureTrend + diurnal*0.1
	p = a.baselinePressure + (p-a.baselinePressure)*0.7 + seasonal
	p = math.Max(980, math.Min(1040, p))

	if f.Float64() < 0.02 {
		front := (f.Float64() - 0.5) * 10
		p += front
		a.pressureTrend = front * 0.3
	}

	a.lastPressure = p
	return p
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
