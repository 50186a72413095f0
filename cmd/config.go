package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"procodus.dev/sensor-node/internal/config"
	"procodus.dev/sensor-node/pkg/logger"
)

// InitConfig initializes Viper configuration.
// The node configuration file is required; environment variables prefixed
// with SENSOR_NODE_ override individual keys.
func InitConfig(cfgFile string) error {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in current directory and /etc/sensor-node/
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/sensor-node/")
		viper.SetConfigType("json")
		viper.SetConfigName("config")
	}

	// Environment variables
	viper.SetEnvPrefix("SENSOR_NODE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configNotFoundErr viper.ConfigFileNotFoundError
		if errors.As(err, &configNotFoundErr) {
			return fmt.Errorf("%w: no config file found", config.ErrConfiguration)
		}
		return fmt.Errorf("%w: failed to read config file: %w", config.ErrConfiguration, err)
	}

	return nil
}

// GetLogger creates the node logger from the log.* settings. Record times
// come from now. The returned closer releases the log file, if any.
func GetLogger(now func() time.Time) (*slog.Logger, io.Closer, error) {
	logLevel := viper.GetString("log.level")
	if logLevel == "" {
		logLevel = "info"
	}

	return logger.Open(&logger.Config{
		Output:   os.Stdout,
		Level:    logger.ParseLevel(logLevel),
		FilePath: viper.GetString("log.file"),
		Now:      now,
	})
}
