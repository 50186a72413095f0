// Package debounce stabilizes a boolean classification of a noisy
// measurement. A change is only reported once the whole history has flushed
// from one consistent state to another.
package debounce

import "errors"

// DefaultCapacity is the history length used when none is configured.
const DefaultCapacity = 3

var errInvalidCapacity = errors.New("debounce capacity must be greater than 0")

// Classifier maps a measurement onto a boolean state, e.g. "an object is
// within Threshold millimetres".
type Classifier struct {
	Threshold float64
	// Inclusive switches the comparison from < to <=.
	Inclusive bool
}

// Classify reports whether measurement is below (or at, when Inclusive) the threshold.
func (c Classifier) Classify(measurement float64) bool {
	if c.Inclusive {
		return measurement <= c.Threshold
	}
	return measurement < c.Threshold
}

// Debouncer holds a bounded history of classified states and the most
// recently evicted one.
type Debouncer struct {
	capacity    int
	history     []bool
	lastEvicted bool
	evicted     bool
}

// New creates a Debouncer with the given history capacity.
func New(capacity int) (*Debouncer, error) {
	if capacity <= 0 {
		return nil, errInvalidCapacity
	}
	return &Debouncer{
		capacity: capacity,
		history:  make([]bool, 0, capacity),
	}, nil
}

// Push appends state, evicting and remembering the oldest entry when full.
func (d *Debouncer) Push(state bool) {
	if len(d.history) >= d.capacity {
		d.lastEvicted = d.history[0]
		d.evicted = true
		d.history = append(d.history[:0], d.history[1:]...)
	}
	d.history = append(d.history, state)
}

// Stable returns the persistent state when the history is full and every
// entry agrees.
func (d *Debouncer) Stable() (state bool, ok bool) {
	if len(d.history) < d.capacity {
		return false, false
	}
	first := d.history[0]
	for _, s := range d.history[1:] {
		if s != first {
			return false, false
		}
	}
	return first, true
}

// DetectChange reports whether the history has settled on a state that
// differs from the last evicted one. The first full window never reports a
// change because nothing has been evicted yet.
func (d *Debouncer) DetectChange() bool {
	if !d.evicted {
		return false
	}
	state, ok := d.Stable()
	return ok && state != d.lastEvicted
}

// LastEvicted returns the most recently evicted state, if any.
func (d *Debouncer) LastEvicted() (state bool, ok bool) {
	return d.lastEvicted, d.evicted
}

// History returns a copy of the current history, oldest first.
func (d *Debouncer) History() []bool {
	return append([]bool(nil), d.history...)
}

// Capacity returns the history capacity.
func (d *Debouncer) Capacity() int { return d.capacity }

// Reset clears the history and the evicted marker.
func (d *Debouncer) Reset() {
	d.history = d.history[:0]
	d.lastEvicted = false
	d.evicted = false
}
