// Package mock provides a mock gpio.Pin for testing.
package mock

import (
	"sync"

	"procodus.dev/sensor-node/pkg/gpio"
)

// MockPin records every level it is driven to.
type MockPin struct {
	mu sync.Mutex

	// SetError is returned by Set when non-nil.
	SetError error
	// Levels tracks every value passed to Set.
	Levels []bool
}

// Set implements gpio.Pin.
func (m *MockPin) Set(high bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Levels = append(m.Levels, high)
	return m.SetError
}

// High reports whether the last Set drove the line high.
func (m *MockPin) High() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.Levels) > 0 && m.Levels[len(m.Levels)-1]
}

// Ensure MockPin implements gpio.Pin.
var _ gpio.Pin = (*MockPin)(nil)
