// Package config loads the node configuration from viper.
//
// Key names are the ones used by the node's JSON configuration file. Any key
// that is absent falls back to a default and the substitution is logged, so
// a sparse file never stops the node from booting.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ErrConfiguration is returned when the configuration cannot be used.
var ErrConfiguration = errors.New("invalid configuration")

// Published field names, in publish order per sensor kind.
const (
	FieldDistance    = "distance"
	FieldOccupancy   = "occupancy"
	FieldTemperature = "temperature"
	FieldHumidity    = "humidity"
	FieldAirPressure = "airPressure"
)

// Fields lists every field that has a topic key.
var Fields = []string{FieldDistance, FieldOccupancy, FieldTemperature, FieldHumidity, FieldAirPressure}

// TopicKey returns the configuration key holding the topic for field.
func TopicKey(field string) string {
	return "MQTT_TOPIC_" + field
}

// Defaults.
const (
	DefaultWiFiMaxRetries   = 3
	DefaultWiFiRetryDelay   = time.Second
	DefaultMQTTPort         = 8883
	DefaultTransport        = "mqtt"
	DefaultOccupancyMM      = 1000.0
	DefaultFilter           = "discard_extremes"
	DefaultWindowSize       = 5
	DefaultTrimPercent      = 0.1
	DefaultDebounceCapacity = 3
	DefaultPowerTimerGPIO   = 22
	DefaultPowerTimerHold   = 30 * time.Second
	DefaultDataFile         = "main.dat"
	DefaultRepeatDelay      = 300 * time.Second
	DefaultRestartDelay     = 60 * time.Second
	DefaultNTPServer        = "pool.ntp.org"
)

// WiFiConfig holds the station credentials and the association retry policy.
type WiFiConfig struct {
	SSID       string
	Password   string
	MaxRetries int
	RetryDelay time.Duration
}

// BrokerConfig holds the broker endpoint and credentials.
type BrokerConfig struct {
	Transport string
	Host      string
	Port      int
	Username  string
	Password  string
	CACerts   string
	TLS       bool
	QoS       byte
	AMQPURL   string
}

// OccupancyConfig holds the distance threshold in millimetres.
type OccupancyConfig struct {
	DistanceMM float64
	Inclusive  bool
}

// FilterConfig selects the reading filter.
type FilterConfig struct {
	Kind        string
	WindowSize  int
	TrimPercent float64
}

// PowerTimerConfig describes the power-timer HAT.
type PowerTimerConfig struct {
	Enabled bool
	GPIO    int
	Hold    time.Duration
}

// PersistenceConfig controls local recording of each reading.
type PersistenceConfig struct {
	Enabled bool
	Path    string
}

// NodeConfig is the immutable node configuration, loaded once at boot.
type NodeConfig struct {
	WiFi             WiFiConfig
	Broker           BrokerConfig
	Topics           map[string]string
	Occupancy        OccupancyConfig
	Filter           FilterConfig
	DebounceCapacity int
	PowerTimer       PowerTimerConfig
	Persistence      PersistenceConfig
	RepeatDelay      time.Duration
	RestartDelay     time.Duration
	NTPServer        string
}

// Topic returns the configured topic for field, or "" when none is set.
func (c *NodeConfig) Topic(field string) string {
	return c.Topics[field]
}

// Load reads a NodeConfig from v. Missing keys fall back to defaults, each
// substitution logged at WARN. Malformed values are collected and returned
// together, wrapped in ErrConfiguration.
func Load(v *viper.Viper, logger *slog.Logger) (*NodeConfig, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: no configuration source", ErrConfiguration)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	l := &loader{v: v, logger: logger.With(slog.String("component", "config"))}

	cfg := &NodeConfig{
		WiFi: WiFiConfig{
			SSID:       l.str("WIFI_SSID", ""),
			Password:   l.str("WIFI_PASSWORD", ""),
			MaxRetries: l.integer("WIFI_MAX_RETRIES", DefaultWiFiMaxRetries),
			RetryDelay: l.duration("WIFI_RETRY_DELAY", DefaultWiFiRetryDelay),
		},
		Broker: BrokerConfig{
			Transport: strings.ToLower(l.str("TRANSPORT", DefaultTransport)),
			Host:      l.str("MQTT_BROKER", ""),
			Port:      l.integer("MQTT_PORT", DefaultMQTTPort),
			Username:  l.str("MQTT_USERNAME", ""),
			Password:  l.str("MQTT_PASSWORD", ""),
			CACerts:   l.str("MQTT_CA_CERTS", ""),
			TLS:       l.boolean("MQTT_TLS", true),
			QoS:       l.qos("MQTT_QOS"),
			AMQPURL:   l.str("AMQP_URL", ""),
		},
		Topics: make(map[string]string, len(Fields)),
		Occupancy: OccupancyConfig{
			DistanceMM: l.float("OCCUPANCY_DISTANCE", DefaultOccupancyMM),
			Inclusive:  l.boolean("OCCUPANCY_INCLUSIVE", false),
		},
		Filter: FilterConfig{
			Kind:        strings.ToLower(l.str("FILTER", DefaultFilter)),
			WindowSize:  l.integer("FILTER_WINDOW_SIZE", DefaultWindowSize),
			TrimPercent: l.float("FILTER_TRIM_PERCENT", DefaultTrimPercent),
		},
		DebounceCapacity: l.integer("DEBOUNCE_CAPACITY", DefaultDebounceCapacity),
		PowerTimer: PowerTimerConfig{
			Enabled: l.boolean("MAKERVERSE_NANO_POWER_TIMER_HAT", false),
			GPIO:    l.integer("POWER_TIMER_GPIO", DefaultPowerTimerGPIO),
			Hold:    l.duration("POWER_TIMER_HOLD", DefaultPowerTimerHold),
		},
		Persistence: PersistenceConfig{
			Enabled: l.boolean("LOG_SENSOR_DATA", false),
			Path:    l.str("LOG_SENSOR_DATA_FILE", DefaultDataFile),
		},
		RepeatDelay:  l.duration("SENSE_REPEAT_DELAY", DefaultRepeatDelay),
		RestartDelay: l.duration("RESTART_DELAY", DefaultRestartDelay),
		NTPServer:    l.str("NTP_SERVER", DefaultNTPServer),
	}

	for _, field := range Fields {
		cfg.Topics[field] = l.str(TopicKey(field), "")
	}

	l.validate(cfg)

	if len(l.errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(l.errs...))
	}

	l.logger.Debug("config values applied",
		"transport", cfg.Broker.Transport,
		"broker", cfg.Broker.Host,
		"port", cfg.Broker.Port,
		"persist", cfg.Persistence.Enabled,
		"persist_file", cfg.Persistence.Path,
		"power_timer", cfg.PowerTimer.Enabled,
	)

	return cfg, nil
}

type loader struct {
	v      *viper.Viper
	logger *slog.Logger
	errs   []error
}

// raw returns the value for key, or ok=false after logging the default.
func (l *loader) raw(key string, def any) (any, bool) {
	if !l.v.IsSet(key) {
		l.logger.Warn("config key missing, using default", "key", key, "default", def)
		return nil, false
	}
	return l.v.Get(key), true
}

func (l *loader) fail(key string, err error) {
	l.errs = append(l.errs, fmt.Errorf("%s: %w", key, err))
}

func (l *loader) str(key, def string) string {
	val, ok := l.raw(key, def)
	if !ok {
		return def
	}
	s, err := cast.ToStringE(val)
	if err != nil {
		l.fail(key, err)
		return def
	}
	return s
}

func (l *loader) integer(key string, def int) int {
	val, ok := l.raw(key, def)
	if !ok {
		return def
	}
	n, err := cast.ToIntE(val)
	if err != nil {
		l.fail(key, err)
		return def
	}
	return n
}

// qos range-checks the raw integer before narrowing it to a byte.
func (l *loader) qos(key string) byte {
	n := l.integer(key, 0)
	if n < 0 || n > 2 {
		l.fail(key, fmt.Errorf("qos must be 0, 1 or 2, got %d", n))
		return 0
	}
	return byte(n)
}

func (l *loader) float(key string, def float64) float64 {
	val, ok := l.raw(key, def)
	if !ok {
		return def
	}
	f, err := cast.ToFloat64E(val)
	if err != nil {
		l.fail(key, err)
		return def
	}
	return f
}

// boolean accepts real booleans. Strings are coerced ("true" in any case is
// true, anything else false) and the coercion is logged at ERROR.
func (l *loader) boolean(key string, def bool) bool {
	val, ok := l.raw(key, def)
	if !ok {
		return def
	}
	if s, isString := val.(string); isString {
		l.logger.Error("string value detected and replaced with a boolean", "key", key, "value", s)
		return strings.EqualFold(strings.TrimSpace(s), "true")
	}
	b, err := cast.ToBoolE(val)
	if err != nil {
		l.fail(key, err)
		return def
	}
	return b
}

// duration accepts Go duration strings ("5m") or plain numbers of seconds.
func (l *loader) duration(key string, def time.Duration) time.Duration {
	val, ok := l.raw(key, def)
	if !ok {
		return def
	}
	if s, isString := val.(string); isString {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d
		}
	}
	secs, err := cast.ToFloat64E(val)
	if err != nil {
		l.fail(key, fmt.Errorf("not a duration: %v", val))
		return def
	}
	return time.Duration(secs * float64(time.Second))
}

func (l *loader) validate(cfg *NodeConfig) {
	switch cfg.Broker.Transport {
	case "mqtt", "amqp":
	default:
		l.fail("TRANSPORT", fmt.Errorf("unsupported transport %q", cfg.Broker.Transport))
	}
	switch cfg.Filter.Kind {
	case "discard_extremes", "trimmed_mean":
	default:
		l.fail("FILTER", fmt.Errorf("unsupported filter %q", cfg.Filter.Kind))
	}
	if cfg.Broker.Port < 0 || cfg.Broker.Port > 65535 {
		l.fail("MQTT_PORT", fmt.Errorf("port out of range: %d", cfg.Broker.Port))
	}
	if cfg.WiFi.MaxRetries < 1 {
		l.fail("WIFI_MAX_RETRIES", fmt.Errorf("must be at least 1, got %d", cfg.WiFi.MaxRetries))
	}
	if cfg.Filter.WindowSize < 1 {
		l.fail("FILTER_WINDOW_SIZE", fmt.Errorf("must be at least 1, got %d", cfg.Filter.WindowSize))
	}
	if cfg.Filter.TrimPercent < 0 || cfg.Filter.TrimPercent >= 0.5 {
		l.fail("FILTER_TRIM_PERCENT", fmt.Errorf("must be in [0, 0.5), got %v", cfg.Filter.TrimPercent))
	}
	if cfg.DebounceCapacity < 1 {
		l.fail("DEBOUNCE_CAPACITY", fmt.Errorf("must be at least 1, got %d", cfg.DebounceCapacity))
	}
	if cfg.RepeatDelay < 0 || cfg.RestartDelay < 0 || cfg.WiFi.RetryDelay < 0 || cfg.PowerTimer.Hold < 0 {
		l.fail("delays", errors.New("delays must not be negative"))
	}
}
