// Package testcontainers provides helper functions for managing test containers across e2e tests.
package testcontainers

import (
	"context"
	"fmt"
	"strings"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// RabbitMQConfig holds configuration for RabbitMQ test container.
type RabbitMQConfig struct {
	// User is the RabbitMQ username (default: guest)
	User string
	// Password is the RabbitMQ password (default: guest)
	Password string
	// ContainerName is the name of the container (optional)
	ContainerName string
	// EnableMQTT turns on the rabbitmq_mqtt plugin and exposes 1883
	EnableMQTT bool
}

// RabbitMQEndpoints holds the connection details of a started broker.
type RabbitMQEndpoints struct {
	// AMQPURL is the amqp:// connection string
	AMQPURL string
	// MQTTHost and MQTTPort are set when EnableMQTT was requested
	MQTTHost string
	MQTTPort int
}

const enabledPlugins = "[rabbitmq_management,rabbitmq_mqtt].\n"

// StartRabbitMQ starts a RabbitMQ container for testing and returns the container and its endpoints.
func StartRabbitMQ(ctx context.Context, config *RabbitMQConfig) (testcontainers.Container, *RabbitMQEndpoints, error) {
	// Set defaults
	if config == nil {
		config = &RabbitMQConfig{}
	}
	if config.User == "" {
		config.User = "guest"
	}
	if config.Password == "" {
		config.Password = "guest"
	}

	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3-management-alpine",
		ExposedPorts: []string{"5672/tcp", "15672/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5672/tcp"),
			wait.ForLog("Server startup complete"),
		),
		Env: map[string]string{
			"RABBITMQ_DEFAULT_USER": config.User,
			"RABBITMQ_DEFAULT_PASS": config.Password,
		},
		Name: config.ContainerName,
	}

	if config.EnableMQTT {
		req.ExposedPorts = append(req.ExposedPorts, "1883/tcp")
		req.Files = []testcontainers.ContainerFile{{
			Reader:            strings.NewReader(enabledPlugins),
			ContainerFilePath: "/etc/rabbitmq/enabled_plugins",
			FileMode:          0o644,
		}}
		req.WaitingFor = wait.ForAll(
			wait.ForListeningPort("5672/tcp"),
			wait.ForListeningPort("1883/tcp"),
			wait.ForLog("Server startup complete"),
		)
	}

	// Start container
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})

	if err != nil {
		return nil, nil, fmt.Errorf("failed to start RabbitMQ container: %w", err)
	}

	// Get host and port
	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5672")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to get container port: %w", err)
	}

	endpoints := &RabbitMQEndpoints{
		AMQPURL: fmt.Sprintf("amqp://%s:%s@%s:%s/", config.User, config.Password, host, port.Port()),
	}

	if config.EnableMQTT {
		mqttPort, err := container.MappedPort(ctx, "1883")
		if err != nil {
			_ = container.Terminate(ctx)
			return nil, nil, fmt.Errorf("failed to get mqtt port: %w", err)
		}
		endpoints.MQTTHost = host
		endpoints.MQTTPort = mqttPort.Int()
	}

	return container, endpoints, nil
}
