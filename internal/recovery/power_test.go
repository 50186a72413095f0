package recovery_test

import (
	"errors"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"procodus.dev/sensor-node/internal/recovery"
	"procodus.dev/sensor-node/internal/wallclock"
	"procodus.dev/sensor-node/pkg/gpio/mock"
	"procodus.dev/sensor-node/pkg/logger"
	"procodus.dev/sensor-node/pkg/metrics"
)

var _ = Describe("PowerCycler", func() {
	var (
		log   *slog.Logger
		rec   *logger.Recorder
		clock *wallclock.Fake
		pin   *mock.MockPin
		nm    *metrics.NodeMetrics
	)

	BeforeEach(func() {
		log, rec = logger.NewRecorder()
		clock = wallclock.NewFake(time.Unix(0, 0))
		pin = &mock.MockPin{}
		nm = metrics.NewNodeMetricsFor(prometheus.NewRegistry(), "test")
	})

	It("should require a pin", func() {
		_, err := recovery.NewPowerCycler(recovery.PowerCyclerConfig{Logger: log})
		Expect(err).To(HaveOccurred())
	})

	It("should assert the line and hold for thirty one-second ticks", func() {
		pc, err := recovery.NewPowerCycler(recovery.PowerCyclerConfig{
			Logger:  log,
			Pin:     pin,
			Clock:   clock,
			Metrics: nm,
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(pc.Cycle()).To(Succeed())

		Expect(pin.Levels).To(Equal([]bool{true, false}))
		Expect(clock.Sleeps()).To(HaveLen(30))
		Expect(clock.Sleeps()).To(HaveEach(time.Second))
		Expect(clock.Total()).To(Equal(30 * time.Second))
		Expect(rec.Messages(slog.LevelDebug)).To(HaveLen(30))
		Expect(testutil.ToFloat64(nm.PowerCycles)).To(Equal(1.0))
	})

	It("should hold for a fractional remainder", func() {
		pc, err := recovery.NewPowerCycler(recovery.PowerCyclerConfig{
			Logger: log,
			Pin:    pin,
			Clock:  clock,
			Hold:   2500 * time.Millisecond,
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(pc.Cycle()).To(Succeed())
		Expect(clock.Sleeps()).To(Equal([]time.Duration{time.Second, time.Second, 500 * time.Millisecond}))
	})

	It("should not hold when the line cannot be asserted", func() {
		pin.SetError = errors.New("permission denied")
		pc, err := recovery.NewPowerCycler(recovery.PowerCyclerConfig{Logger: log, Pin: pin, Clock: clock})
		Expect(err).NotTo(HaveOccurred())

		Expect(pc.Cycle()).To(MatchError(ContainSubstring("permission denied")))
		Expect(clock.Sleeps()).To(BeEmpty())
	})
})
