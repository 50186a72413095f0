// Package transport defines the broker session the sensor node publishes
// through. Concrete sessions live in the mqtt and amqp subpackages.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Session is one connect/publish/disconnect lifecycle against a broker.
// Implementations are used from a single goroutine.
type Session interface {
	// Connect opens the session. It does not retry.
	Connect(ctx context.Context) error

	// Publish sends payload as plain text on topic. Sessions that cannot
	// carry a topic reject it with ErrInvalidTopic and stay open, so the
	// caller can go on publishing the remaining fields.
	Publish(ctx context.Context, topic, payload string) error

	// Disconnect closes the session.
	Disconnect() error
}

// Kind names a transport in configuration.
type Kind string

const (
	KindMQTT Kind = "mqtt"
	KindAMQP Kind = "amqp"
)

var (
	// ErrNotConnected is returned when publishing or disconnecting without an open session.
	ErrNotConnected = errors.New("not connected to a broker")
	// ErrUnknownKind is returned for an unsupported transport name.
	ErrUnknownKind = errors.New("unknown transport")
	// ErrInvalidTopic is returned when a topic cannot be published to.
	ErrInvalidTopic = errors.New("invalid topic")
)

// ValidateTopic checks that topic is usable as an MQTT publish topic: not
// empty, no wildcards and no NUL character.
func ValidateTopic(topic string) error {
	if topic == "" || strings.ContainsAny(topic, "+#\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return nil
}

// ParseKind validates a configured transport name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindMQTT, KindAMQP:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}
