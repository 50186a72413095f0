package node

import (
	"time"
)

// Kind names a sensor node variant.
type Kind string

const (
	KindDistance    Kind = "distance"
	KindAtmospheric Kind = "atmospheric"
)

// Reading is the current cycle's derived values. It is overwritten every
// cycle and all of its fields are published in one pass.
type Reading struct {
	Kind  Kind      `json:"kind"`
	Time  time.Time `json:"time"`
	Stale bool      `json:"stale,omitempty"`

	Distance    *DistanceReading    `json:"distance,omitempty"`
	Atmospheric *AtmosphericReading `json:"atmospheric,omitempty"`
}

// DistanceReading is the output of one distance cycle.
type DistanceReading struct {
	// RawMM are this cycle's samples in read order.
	RawMM []float64 `json:"raw_mm"`
	// FilteredMM is the filter output after the last sample.
	FilteredMM float64 `json:"distance"`
	// Occupied is the debounced, published occupancy.
	Occupied bool `json:"occupancy"`
	// Changed is true when Occupied flipped during this cycle.
	Changed bool `json:"changed,omitempty"`
}

// AtmosphericReading is one composite environmental sample.
type AtmosphericReading struct {
	TemperatureC float64 `json:"tempC"`
	PressurePa   float64 `json:"presPa"`
	PressureHPa  float64 `json:"pres_hPa"`
	HumidityRH   float64 `json:"humRH"`
}

// Field is one published value.
type Field struct {
	Name    string
	Topic   string
	Payload string
}
