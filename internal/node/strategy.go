package node

import (
	"context"
)

// Strategy is the capability set a sensor variant supplies to the runtime.
type Strategy interface {
	// Kind names the variant.
	Kind() Kind
	// Initialize prepares the driver and clears filter and debounce state.
	Initialize(ctx context.Context) error
	// ReadSample takes this cycle's raw samples. On error the samples taken
	// so far are discarded and DeriveFields reports the previous reading.
	ReadSample(ctx context.Context) error
	// DeriveFields filters the cycle's samples into a Reading. It returns
	// ErrNoReading when nothing has ever been sampled.
	DeriveFields() (Reading, error)
	// PublishFields maps a Reading onto topics, in publish order.
	PublishFields(r Reading) []Field
}

// RangeSensor measures a distance in millimetres.
type RangeSensor interface {
	ReadDistance(ctx context.Context) (float64, error)
}

// AtmosphericSensor returns temperature in °C, pressure in Pa and relative
// humidity in %.
type AtmosphericSensor interface {
	ReadValues(ctx context.Context) (tempC, presPa, humRH float64, err error)
}

// initializer is implemented by drivers that need a power-up step.
type initializer interface {
	Init(ctx context.Context) error
}

func initDriver(ctx context.Context, driver any) error {
	if in, ok := driver.(initializer); ok {
		return in.Init(ctx)
	}
	return nil
}
