package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/sensor-node/internal/config"
	"procodus.dev/sensor-node/internal/connectivity"
	"procodus.dev/sensor-node/internal/debounce"
	"procodus.dev/sensor-node/internal/filter"
	"procodus.dev/sensor-node/internal/node"
	"procodus.dev/sensor-node/internal/recovery"
	"procodus.dev/sensor-node/internal/timesync"
	"procodus.dev/sensor-node/pkg/gpio"
	"procodus.dev/sensor-node/pkg/identity"
	"procodus.dev/sensor-node/pkg/iio"
	"procodus.dev/sensor-node/pkg/metrics"
	"procodus.dev/sensor-node/pkg/sim"
	"procodus.dev/sensor-node/pkg/transport"
	"procodus.dev/sensor-node/pkg/transport/amqp"
	"procodus.dev/sensor-node/pkg/transport/mqtt"
)

const metricsNamespace = "sensor_node"

var errUnknownKind = errors.New("unknown sensor kind")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sensor node",
	Long: `Run the sensor node that:
- Joins the configured wireless network and syncs network time
- Samples a distance or atmospheric sensor every cycle
- Publishes each derived field to its own topic over MQTT or AMQP
- Restarts itself after any fault until SIGINT or SIGTERM`,
	RunE: runNode,
}

// defaultInterface is the wireless interface every command assumes when
// --interface is not given.
const defaultInterface = "wlan0"

func init() {
	rootCmd.AddCommand(runCmd)

	// Run-specific flags
	runCmd.Flags().String("kind", string(node.KindDistance), "sensor kind (distance, atmospheric)")
	runCmd.Flags().Bool("simulate", false, "use simulated sensors and the host network instead of hardware")
	runCmd.Flags().Uint64("seed", 0, "seed for simulated sensors and identity (0 is random)")
	runCmd.Flags().String("interface", defaultInterface, "wireless interface managed through NetworkManager")
	runCmd.Flags().String("iio-device", iio.DefaultDevice, "IIO device directory of the sensor")
	runCmd.Flags().String("gpio-root", gpio.DefaultSysfsRoot, "sysfs GPIO root for the power-timer line")
	runCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (disabled when empty)")

	bindRunFlags()
}

// bindRunFlags binds the run flags to viper keys.
func bindRunFlags() {
	_ = viper.BindPFlag("node.kind", runCmd.Flags().Lookup("kind"))
	_ = viper.BindPFlag("node.simulate", runCmd.Flags().Lookup("simulate"))
	_ = viper.BindPFlag("node.seed", runCmd.Flags().Lookup("seed"))
	_ = viper.BindPFlag("node.interface", runCmd.Flags().Lookup("interface"))
	_ = viper.BindPFlag("node.iio_device", runCmd.Flags().Lookup("iio-device"))
	_ = viper.BindPFlag("node.gpio_root", runCmd.Flags().Lookup("gpio-root"))
	_ = viper.BindPFlag("metrics.addr", runCmd.Flags().Lookup("metrics-addr"))
}

// runOptions are the command-line settings that sit outside the node
// configuration file.
type runOptions struct {
	Kind      node.Kind
	Simulate  bool
	Seed      uint64
	Interface string
	IIODevice string
	GPIORoot  string
}

func parseKind(s string) (node.Kind, error) {
	switch node.Kind(s) {
	case node.KindDistance, node.KindAtmospheric:
		return node.Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownKind, s)
	}
}

// loadRunOptions reads the run flags through viper, so each one can also be
// set in the config file.
func loadRunOptions() (runOptions, error) {
	kind, err := parseKind(viper.GetString("node.kind"))
	if err != nil {
		return runOptions{}, err
	}
	return runOptions{
		Kind:      kind,
		Simulate:  viper.GetBool("node.simulate"),
		Seed:      viper.GetUint64("node.seed"),
		Interface: viper.GetString("node.interface"),
		IIODevice: viper.GetString("node.iio_device"),
		GPIORoot:  viper.GetString("node.gpio_root"),
	}, nil
}

func runNode(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := InitConfig(cfgFile); err != nil {
		return err
	}

	// Log records carry network time once the first sync has succeeded.
	var clockRef atomic.Pointer[timesync.NTPClock]
	logger, closer, err := GetLogger(func() time.Time {
		if c := clockRef.Load(); c != nil {
			return c.Now()
		}
		return time.Now()
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	opts, err := loadRunOptions()
	if err != nil {
		return err
	}

	logger.Info("starting sensor node", "config_file", viper.ConfigFileUsed(), "kind", opts.Kind, "simulate", opts.Simulate)

	cfg, err := config.Load(viper.GetViper(), logger)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		return err
	}

	// The identity is derived once; failing to derive it aborts boot.
	id, err := deviceIdentity(opts)
	if err != nil {
		logger.Error("failed to derive device identity", "error", err)
		return fmt.Errorf("device identity: %w", err)
	}
	logger.Info("device identity", "device_id", id.ID, "uuid", id.UUID.String(), "interface", id.Interface)

	clock, err := timesync.NewNTPClock(timesync.Config{Logger: logger, Server: cfg.NTPServer})
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}
	clockRef.Store(clock)

	nodeMetrics := metrics.NewNodeMetrics(metricsNamespace)
	transportMetrics := metrics.NewTransportMetrics(metricsNamespace)

	if addr := viper.GetString("metrics.addr"); addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr, logger); err != nil {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	supervisor, err := recovery.NewSupervisor(recovery.SupervisorConfig{
		Logger:       logger,
		RestartDelay: cfg.RestartDelay,
		Metrics:      nodeMetrics,
	})
	if err != nil {
		return err
	}

	b := &builder{
		cfg:              cfg,
		opts:             opts,
		logger:           logger,
		clock:            clock,
		nodeMetrics:      nodeMetrics,
		transportMetrics: transportMetrics,
		id:               id,
	}

	// Everything below the configuration and identity is rebuilt on each
	// restart, so an unreadable GPIO line is retried like any other fault.
	if err := supervisor.Run(ctx, func(ctx context.Context) error {
		rt, err := b.runtime()
		if err != nil {
			return err
		}
		return rt.Run(ctx)
	}); err != nil {
		logger.Error("sensor node error", "error", err)
		return err
	}

	logger.Info("sensor node stopped")
	return nil
}

// builder wires the node's components from configuration.
type builder struct {
	cfg              *config.NodeConfig
	opts             runOptions
	logger           *slog.Logger
	clock            *timesync.NTPClock
	nodeMetrics      *metrics.NodeMetrics
	transportMetrics *metrics.TransportMetrics
	id               identity.DeviceIdentity
}

func (b *builder) runtime() (*node.Runtime, error) {
	logger := b.logger.With(slog.String("device_id", b.id.ID))

	session, err := b.session(logger)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}

	conn, err := connectivity.New(connectivity.Config{
		Logger:     logger,
		Station:    b.station(),
		Session:    session,
		TimeSyncer: b.clock,
		SSID:       b.cfg.WiFi.SSID,
		Password:   b.cfg.WiFi.Password,
		MaxRetries: b.cfg.WiFi.MaxRetries,
		RetryDelay: b.cfg.WiFi.RetryDelay,
		Metrics:    b.nodeMetrics,
	})
	if err != nil {
		return nil, err
	}

	strategy, err := b.strategy(logger)
	if err != nil {
		return nil, fmt.Errorf("sensor strategy: %w", err)
	}

	rc := node.RuntimeConfig{
		Logger:      logger,
		Strategy:    strategy,
		Connection:  conn,
		RepeatDelay: b.cfg.RepeatDelay,
		Metrics:     b.nodeMetrics,
	}

	if b.cfg.PowerTimer.Enabled {
		pc, err := b.powerCycler(logger)
		if err != nil {
			return nil, fmt.Errorf("power timer: %w", err)
		}
		rc.PowerCycler = pc
	}

	if b.cfg.Persistence.Enabled {
		rc.Persister = node.FilePersister{}
		rc.PersistPath = b.cfg.Persistence.Path
	}

	return node.NewRuntime(rc)
}

func deviceIdentity(opts runOptions) (identity.DeviceIdentity, error) {
	if opts.Simulate {
		return identity.FromMAC(sim.HardwareAddr(gofakeit.New(opts.Seed)))
	}
	return identity.FromInterfaces(opts.Interface)
}

func (b *builder) station() connectivity.Station {
	if b.opts.Simulate {
		return connectivity.NewHostStation()
	}
	return connectivity.NewNMStation(b.opts.Interface, nil)
}

func (b *builder) session(logger *slog.Logger) (transport.Session, error) {
	kind, err := transport.ParseKind(b.cfg.Broker.Transport)
	if err != nil {
		return nil, err
	}

	switch kind {
	case transport.KindAMQP:
		return amqp.New(amqp.Config{
			Logger:   logger,
			URL:      b.cfg.Broker.AMQPURL,
			ClientID: b.id.ID,
			Metrics:  b.transportMetrics,
		})
	default:
		return mqtt.New(mqtt.Config{
			Logger:   logger,
			Host:     b.cfg.Broker.Host,
			Port:     b.cfg.Broker.Port,
			TLS:      b.cfg.Broker.TLS,
			CAFile:   b.cfg.Broker.CACerts,
			Username: b.cfg.Broker.Username,
			Password: b.cfg.Broker.Password,
			ClientID: b.id.ID,
			QoS:      b.cfg.Broker.QoS,
			Metrics:  b.transportMetrics,
		})
	}
}

func (b *builder) strategy(logger *slog.Logger) (node.Strategy, error) {
	switch b.opts.Kind {
	case node.KindAtmospheric:
		var sensor node.AtmosphericSensor = iio.NewAtmospheric(b.opts.IIODevice)
		if b.opts.Simulate {
			sensor = sim.NewAtmospheric(sim.AtmosphericConfig{Seed: b.opts.Seed, Now: b.clock.Now})
		}
		return node.NewAtmosphericStrategy(node.AtmosphericConfig{
			Logger:           logger,
			Sensor:           sensor,
			TemperatureTopic: b.cfg.Topic(config.FieldTemperature),
			AirPressureTopic: b.cfg.Topic(config.FieldAirPressure),
			HumidityTopic:    b.cfg.Topic(config.FieldHumidity),
			Now:              b.clock.Now,
		})

	default:
		f, err := filter.New(filter.Kind(b.cfg.Filter.Kind), b.cfg.Filter.WindowSize, b.cfg.Filter.TrimPercent)
		if err != nil {
			return nil, err
		}
		d, err := debounce.New(b.cfg.DebounceCapacity)
		if err != nil {
			return nil, err
		}

		var sensor node.RangeSensor = iio.NewRange(b.opts.IIODevice)
		if b.opts.Simulate {
			rc := sim.DefaultRangeConfig()
			rc.Seed = b.opts.Seed
			sensor = sim.NewRange(rc)
		}

		return node.NewDistanceStrategy(node.DistanceConfig{
			Logger: logger,
			Sensor: sensor,
			Filter: f,
			Classifier: debounce.Classifier{
				Threshold: b.cfg.Occupancy.DistanceMM,
				Inclusive: b.cfg.Occupancy.Inclusive,
			},
			Debouncer:      d,
			WindowSize:     b.cfg.Filter.WindowSize,
			DistanceTopic:  b.cfg.Topic(config.FieldDistance),
			OccupancyTopic: b.cfg.Topic(config.FieldOccupancy),
			Now:            b.clock.Now,
		})
	}
}

func (b *builder) powerCycler(logger *slog.Logger) (*recovery.PowerCycler, error) {
	pin, err := gpio.OpenSysfs(b.opts.GPIORoot, b.cfg.PowerTimer.GPIO)
	if err != nil {
		return nil, err
	}
	return recovery.NewPowerCycler(recovery.PowerCyclerConfig{
		Logger:  logger,
		Pin:     pin,
		Hold:    b.cfg.PowerTimer.Hold,
		Metrics: b.nodeMetrics,
	})
}
