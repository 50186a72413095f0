// Package mock provides a mock transport.Session for testing.
package mock

import (
	"context"
	"sync"

	"procodus.dev/sensor-node/pkg/transport"
)

// MockSession is a mock implementation of transport.Session.
// It tracks method calls and allows configuring return values and behavior.
type MockSession struct {
	mu sync.Mutex

	// ConnectFunc is called when Connect is invoked. If nil, returns ConnectError.
	ConnectFunc func(ctx context.Context) error
	// ConnectError is returned by Connect if ConnectFunc is nil.
	ConnectError error
	// ConnectCalls tracks the number of times Connect was called.
	ConnectCalls int

	// PublishFunc is called when Publish is invoked. If nil, returns PublishError.
	PublishFunc func(ctx context.Context, topic, payload string) error
	// PublishError is returned by Publish if PublishFunc is nil.
	PublishError error
	// PublishCalls tracks all calls to Publish with their arguments.
	PublishCalls []PublishCall

	// DisconnectFunc is called when Disconnect is invoked. If nil, returns DisconnectError.
	DisconnectFunc func() error
	// DisconnectError is returned by Disconnect if DisconnectFunc is nil.
	DisconnectError error
	// DisconnectCalls tracks the number of times Disconnect was called.
	DisconnectCalls int
}

// PublishCall records the arguments to a Publish call.
type PublishCall struct {
	Ctx     context.Context
	Topic   string
	Payload string
}

// NewMockSession creates a new MockSession with default behavior (no errors).
func NewMockSession() *MockSession {
	return &MockSession{
		PublishCalls: make([]PublishCall, 0),
	}
}

// Connect implements transport.Session.
func (m *MockSession) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ConnectCalls++

	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx)
	}
	return m.ConnectError
}

// Publish implements transport.Session.
func (m *MockSession) Publish(ctx context.Context, topic, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PublishCalls = append(m.PublishCalls, PublishCall{
		Ctx:     ctx,
		Topic:   topic,
		Payload: payload,
	})

	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topic, payload)
	}
	return m.PublishError
}

// Disconnect implements transport.Session.
func (m *MockSession) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DisconnectCalls++

	if m.DisconnectFunc != nil {
		return m.DisconnectFunc()
	}
	return m.DisconnectError
}

// Topics returns the topics published to, in order.
func (m *MockSession) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.PublishCalls))
	for _, c := range m.PublishCalls {
		out = append(out, c.Topic)
	}
	return out
}

// Payloads returns the payloads published, in order.
func (m *MockSession) Payloads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.PublishCalls))
	for _, c := range m.PublishCalls {
		out = append(out, c.Payload)
	}
	return out
}

// Reset clears all tracked calls.
func (m *MockSession) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PublishCalls = make([]PublishCall, 0)
	m.ConnectCalls = 0
	m.DisconnectCalls = 0
}

// Ensure MockSession implements transport.Session.
var _ transport.Session = (*MockSession)(nil)
