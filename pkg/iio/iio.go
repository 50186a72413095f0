// Package iio reads sensors exposed through the Linux Industrial I/O
// sysfs interface. The vl53l0x and bme280 kernel drivers both publish
// their channels there, so the node needs no userspace I2C code.
package iio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultDevice is the first IIO device registered by the kernel.
const DefaultDevice = "/sys/bus/iio/devices/iio:device0"

// ErrChannel is returned when a channel file is missing or unparsable.
var ErrChannel = errors.New("iio channel unavailable")

// Device is one IIO device directory.
type Device struct {
	dir string
}

// Open returns a Device rooted at dir (DefaultDevice when empty). Nothing
// is read until Init or a Read call.
func Open(dir string) *Device {
	if dir == "" {
		dir = DefaultDevice
	}
	return &Device{dir: dir}
}

// Dir returns the device directory.
func (d *Device) Dir() string { return d.dir }

// Name returns the kernel driver name of the device.
func (d *Device) Name() (string, error) {
	b, err := os.ReadFile(filepath.Join(d.dir, "name"))
	if err != nil {
		return "", fmt.Errorf("%w: name: %w", ErrChannel, err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Init checks that the device is present.
func (d *Device) Init(context.Context) error {
	info, err := os.Stat(d.dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrChannel, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a device directory", ErrChannel, d.dir)
	}
	return nil
}

func (d *Device) read(ctx context.Context, channel string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b, err := os.ReadFile(filepath.Join(d.dir, channel))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrChannel, channel, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrChannel, channel, err)
	}
	return v, nil
}

// Range is a time-of-flight ranger such as the VL53L0X.
type Range struct {
	*Device
}

// NewRange wraps a device exposing in_distance_raw.
func NewRange(dir string) *Range {
	return &Range{Device: Open(dir)}
}

// ReadDistance returns the distance in millimetres. in_distance_scale is in
// metres per raw unit and defaults to 0.001 when the driver omits it.
func (r *Range) ReadDistance(ctx context.Context) (float64, error) {
	raw, err := r.read(ctx, "in_distance_raw")
	if err != nil {
		return 0, err
	}
	scale, err := r.read(ctx, "in_distance_scale")
	if err != nil {
		scale = 0.001
	}
	return raw * scale * 1000, nil
}

// Atmospheric is a combined temperature, pressure and humidity sensor such
// as the BME280.
type Atmospheric struct {
	*Device
}

// NewAtmospheric wraps a device exposing the processed temp, pressure and
// humidityrelative channels.
func NewAtmospheric(dir string) *Atmospheric {
	return &Atmospheric{Device: Open(dir)}
}

// ReadValues returns °C, Pa and %RH. The kernel reports milli-degrees,
// kilopascals and milli-percent.
func (a *Atmospheric) ReadValues(ctx context.Context) (float64, float64, float64, error) {
	temp, err := a.read(ctx, "in_temp_input")
	if err != nil {
		return 0, 0, 0, err
	}
	pres, err := a.read(ctx, "in_pressure_input")
	if err != nil {
		return 0, 0, 0, err
	}
	hum, err := a.read(ctx, "in_humidityrelative_input")
	if err != nil {
		return 0, 0, 0, err
	}
	return temp / 1000, pres * 1000, hum / 1000, nil
}
