package node_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/sensor-node/internal/node"
	"procodus.dev/sensor-node/pkg/logger"
)

var _ = Describe("AtmosphericStrategy", func() {
	var (
		ctx    = context.Background()
		sensor *atmosphericSensor
		strat  *node.AtmosphericStrategy
	)

	BeforeEach(func() {
		sensor = &atmosphericSensor{tempC: 21.37, presPa: 101325, humRH: 48.9}

		var err error
		strat, err = node.NewAtmosphericStrategy(node.AtmosphericConfig{
			Logger:           logger.Discard(),
			Sensor:           sensor,
			TemperatureTopic: "weatherstn/temperature",
			AirPressureTopic: "weatherstn/airPressure",
			HumidityTopic:    "weatherstn/humidity",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(strat.Initialize(ctx)).To(Succeed())
	})

	It("should convert pressure to hPa", func() {
		Expect(strat.ReadSample(ctx)).To(Succeed())
		r, err := strat.DeriveFields()
		Expect(err).NotTo(HaveOccurred())

		Expect(r.Kind).To(Equal(node.KindAtmospheric))
		Expect(r.Atmospheric.PressureHPa).To(BeNumerically("~", 1013.25, 1e-9))
		Expect(sensor.inits).To(Equal(1))
	})

	It("should publish temperature, pressure and humidity in order", func() {
		Expect(strat.ReadSample(ctx)).To(Succeed())
		r, err := strat.DeriveFields()
		Expect(err).NotTo(HaveOccurred())

		Expect(strat.PublishFields(r)).To(Equal([]node.Field{
			{Name: "temperature", Topic: "weatherstn/temperature", Payload: "21.37"},
			{Name: "airPressure", Topic: "weatherstn/airPressure", Payload: "1013"},
			{Name: "humidity", Topic: "weatherstn/humidity", Payload: "48"},
		}))
	})

	It("should reuse the previous sample after a read failure", func() {
		Expect(strat.ReadSample(ctx)).To(Succeed())
		_, err := strat.DeriveFields()
		Expect(err).NotTo(HaveOccurred())

		sensor.err = errI2C
		Expect(strat.ReadSample(ctx)).To(MatchError(node.ErrSensorRead))

		r, err := strat.DeriveFields()
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Stale).To(BeTrue())
		Expect(r.Atmospheric.TemperatureC).To(Equal(21.37))
	})

	It("should have nothing to publish before the first sample", func() {
		sensor.err = errI2C
		Expect(strat.ReadSample(ctx)).To(HaveOccurred())
		_, err := strat.DeriveFields()
		Expect(err).To(MatchError(node.ErrNoReading))
	})

	It("should publish nothing for a foreign reading", func() {
		Expect(strat.PublishFields(node.Reading{Kind: node.KindDistance})).To(BeEmpty())
	})
})
