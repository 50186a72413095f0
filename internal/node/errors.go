package node

import (
	"errors"

	"procodus.dev/sensor-node/internal/connectivity"
)

var (
	// ErrNetworkAssociation is returned when the station cannot associate.
	ErrNetworkAssociation = connectivity.ErrNetworkAssociation
	// ErrTransportSession is returned when the broker session cannot be opened.
	ErrTransportSession = connectivity.ErrTransportSession
	// ErrSensorRead wraps a driver failure. The cycle continues with stale data.
	ErrSensorRead = errors.New("sensor read failed")
	// ErrPersistence wraps a local persistence failure. It is logged only.
	ErrPersistence = errors.New("persisting reading failed")
	// ErrNoReading is returned by DeriveFields before any sample was taken.
	ErrNoReading = errors.New("no reading available")
	// ErrSensorInit wraps a driver initialization failure.
	ErrSensorInit = errors.New("sensor initialization failed")

	errLoggerRequired   = errors.New("logger is required")
	errStrategyRequired = errors.New("strategy is required")
	errConnRequired     = errors.New("connection is required")
	errSensorRequired   = errors.New("sensor is required")
	errFilterRequired   = errors.New("filter is required")
	errDebounceRequired = errors.New("debouncer is required")
)
