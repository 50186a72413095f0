// Package filter smooths noisy numeric sensor readings over a bounded window.
//
// Two strategies share the Filter contract: DiscardExtremes drops the single
// lowest and highest reading, TrimmedMean drops a fraction from each end.
// Both average what remains.
package filter

import (
	"errors"
	"fmt"
	"slices"
)

// Filter turns a stream of raw readings into smoothed values.
type Filter interface {
	// AddReading pushes value into the window and returns the smoothed value.
	AddReading(value float64) float64
	// Reset empties the window.
	Reset()
}

// Kind names a filter strategy in configuration.
type Kind string

const (
	KindDiscardExtremes Kind = "discard_extremes"
	KindTrimmedMean     Kind = "trimmed_mean"
)

const (
	// DefaultWindowSize is the window used when none is configured.
	DefaultWindowSize = 5
	// DefaultTrimPercent is the per-side trim fraction for TrimmedMean.
	DefaultTrimPercent = 0.1
)

var (
	errInvalidWindow = errors.New("window size must be greater than 0")
	errInvalidTrim   = errors.New("trim percent must be in [0, 0.5)")
	errUnknownKind   = errors.New("unknown filter kind")
)

// New builds the filter named by kind.
func New(kind Kind, windowSize int, trimPercent float64) (Filter, error) {
	switch kind {
	case KindDiscardExtremes:
		return NewDiscardExtremes(windowSize)
	case KindTrimmedMean:
		return NewTrimmedMean(windowSize, trimPercent)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownKind, kind)
	}
}

// window is the bounded, insertion-ordered sample buffer shared by both strategies.
type window struct {
	size    int
	samples []float64
}

func (w *window) push(v float64) {
	if len(w.samples) >= w.size {
		w.samples = w.samples[1:]
	}
	w.samples = append(w.samples, v)
}

func (w *window) sorted() []float64 {
	s := slices.Clone(w.samples)
	slices.Sort(s)
	return s
}

func (w *window) reset() {
	w.samples = nil
}

// Len reports how many readings the window holds.
func (w *window) Len() int { return len(w.samples) }

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// DiscardExtremes averages the window after removing its single lowest and
// single highest reading. Until the window holds three readings the raw
// value passes through.
type DiscardExtremes struct {
	window
}

// NewDiscardExtremes creates a DiscardExtremes filter over windowSize readings.
func NewDiscardExtremes(windowSize int) (*DiscardExtremes, error) {
	if windowSize <= 0 {
		return nil, errInvalidWindow
	}
	return &DiscardExtremes{window: window{size: windowSize}}, nil
}

// AddReading implements Filter.
func (f *DiscardExtremes) AddReading(value float64) float64 {
	f.push(value)

	if f.Len() <= 2 {
		return value
	}

	s := f.sorted()
	return mean(s[1 : len(s)-1])
}

// Reset implements Filter.
func (f *DiscardExtremes) Reset() { f.reset() }

// TrimmedMean averages the window after removing floor(len*trimPercent)
// readings from each end.
type TrimmedMean struct {
	window
	trimPercent float64
}

// NewTrimmedMean creates a TrimmedMean filter over windowSize readings.
func NewTrimmedMean(windowSize int, trimPercent float64) (*TrimmedMean, error) {
	if windowSize <= 0 {
		return nil, errInvalidWindow
	}
	if trimPercent < 0 || trimPercent >= 0.5 {
		return nil, errInvalidTrim
	}
	return &TrimmedMean{window: window{size: windowSize}, trimPercent: trimPercent}, nil
}

// AddReading implements Filter.
func (f *TrimmedMean) AddReading(value float64) float64 {
	f.push(value)

	if f.Len() <= 1 {
		return value
	}

	s := f.sorted()
	trim := int(float64(len(s)) * f.trimPercent)
	if trim == 0 {
		return mean(s)
	}
	// trimPercent < 0.5 keeps at least one reading.
	return mean(s[trim : len(s)-trim])
}

// Reset implements Filter.
func (f *TrimmedMean) Reset() { f.reset() }

var (
	_ Filter = (*DiscardExtremes)(nil)
	_ Filter = (*TrimmedMean)(nil)
)
