package mqtt_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"procodus.dev/sensor-node/pkg/logger"
	"procodus.dev/sensor-node/pkg/metrics"
	"procodus.dev/sensor-node/pkg/transport"
	"procodus.dev/sensor-node/pkg/transport/mqtt"
)

type received struct {
	mu       sync.Mutex
	messages map[string]string
}

func (r *received) get(topic string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages[topic]
}

func subscribe(filter string) (*received, paho.Client) {
	r := &received{messages: map[string]string{}}

	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://127.0.0.1:%d", brokerPort)).
		SetClientID("observer").
		SetUsername(brokerUser).
		SetPassword(brokerPassword)
	c := paho.NewClient(opts)
	token := c.Connect()
	Expect(token.WaitTimeout(5 * time.Second)).To(BeTrue())
	Expect(token.Error()).NotTo(HaveOccurred())

	token = c.Subscribe(filter, 1, func(_ paho.Client, msg paho.Message) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.messages[msg.Topic()] = string(msg.Payload())
	})
	Expect(token.WaitTimeout(5 * time.Second)).To(BeTrue())
	Expect(token.Error()).NotTo(HaveOccurred())

	return r, c
}

var _ = Describe("MQTT Client", func() {
	var cfg mqtt.Config

	BeforeEach(func() {
		cfg = mqtt.Config{
			Logger:         logger.Discard(),
			Host:           "127.0.0.1",
			Port:           brokerPort,
			Username:       brokerUser,
			Password:       brokerPassword,
			ClientID:       "28cdc10a1b2c",
			ConnectTimeout: 2 * time.Second,
		}
	})

	Describe("New", func() {
		It("should require a logger", func() {
			cfg.Logger = nil
			_, err := mqtt.New(cfg)
			Expect(err).To(MatchError(ContainSubstring("logger")))
		})

		It("should require a broker host", func() {
			cfg.Host = ""
			_, err := mqtt.New(cfg)
			Expect(err).To(MatchError(ContainSubstring("broker")))
		})

		It("should require a client id", func() {
			cfg.ClientID = ""
			_, err := mqtt.New(cfg)
			Expect(err).To(MatchError(ContainSubstring("client id")))
		})

		It("should use the ssl scheme when TLS is enabled", func() {
			cfg.TLS = true
			cfg.Port = 8883
			c, err := mqtt.New(cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.BrokerURL()).To(Equal("ssl://127.0.0.1:8883"))
		})

		It("should fail on an unreadable CA file", func() {
			cfg.TLS = true
			cfg.CAFile = filepath.Join(GinkgoT().TempDir(), "missing.crt")
			_, err := mqtt.New(cfg)
			Expect(err).To(MatchError(ContainSubstring("CA file")))
		})

		It("should fail on a CA file without certificates", func() {
			path := filepath.Join(GinkgoT().TempDir(), "empty.crt")
			Expect(os.WriteFile(path, []byte("not a cert"), 0o600)).To(Succeed())
			cfg.TLS = true
			cfg.CAFile = path
			_, err := mqtt.New(cfg)
			Expect(err).To(MatchError(ContainSubstring("no certificates")))
		})
	})

	Describe("session lifecycle", func() {
		It("should connect, publish and disconnect", func() {
			r, observer := subscribe("node/#")
			defer observer.Disconnect(100)

			reg := prometheus.NewRegistry()
			cfg.Metrics = metrics.NewTransportMetricsFor(reg, "test")

			c, err := mqtt.New(cfg)
			Expect(err).NotTo(HaveOccurred())

			ctx := context.Background()
			Expect(c.Connect(ctx)).To(Succeed())
			Expect(testutil.ToFloat64(cfg.Metrics.SessionOpen.WithLabelValues("mqtt"))).To(Equal(1.0))

			Expect(c.Publish(ctx, "node/distance", "812")).To(Succeed())
			Expect(c.Publish(ctx, "node/occupancy", "1")).To(Succeed())
			Expect(c.Disconnect()).To(Succeed())

			Eventually(func() string { return r.get("node/distance") }, 2*time.Second).Should(Equal("812"))
			Eventually(func() string { return r.get("node/occupancy") }, 2*time.Second).Should(Equal("1"))
			Expect(testutil.ToFloat64(cfg.Metrics.MessagesPublished.WithLabelValues("mqtt"))).To(Equal(2.0))
			Expect(testutil.ToFloat64(cfg.Metrics.SessionOpen.WithLabelValues("mqtt"))).To(Equal(0.0))
		})

		It("should reject an empty topic and keep the session for the next field", func() {
			r, observer := subscribe("node/#")
			defer observer.Disconnect(100)

			reg := prometheus.NewRegistry()
			cfg.Metrics = metrics.NewTransportMetricsFor(reg, "test")

			c, err := mqtt.New(cfg)
			Expect(err).NotTo(HaveOccurred())

			ctx := context.Background()
			Expect(c.Connect(ctx)).To(Succeed())

			Expect(c.Publish(ctx, "", "19.5")).To(MatchError(transport.ErrInvalidTopic))
			Expect(c.Publish(ctx, "node/pressure", "1008")).To(Succeed())
			Expect(c.Disconnect()).To(Succeed())

			Eventually(func() string { return r.get("node/pressure") }, 2*time.Second).Should(Equal("1008"))
			Expect(testutil.ToFloat64(cfg.Metrics.PublishFailures.WithLabelValues("mqtt", "invalid_topic"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(cfg.Metrics.MessagesPublished.WithLabelValues("mqtt"))).To(Equal(1.0))
		})

		DescribeTable("should reject wildcard topics without dropping the session",
			func(topic string) {
				c, err := mqtt.New(cfg)
				Expect(err).NotTo(HaveOccurred())

				ctx := context.Background()
				Expect(c.Connect(ctx)).To(Succeed())
				defer func() { Expect(c.Disconnect()).To(Succeed()) }()

				Expect(c.Publish(ctx, topic, "1")).To(MatchError(transport.ErrInvalidTopic))
				Expect(c.Publish(ctx, "node/humidity", "41.2")).To(Succeed())
			},
			Entry("single-level", "node/+/humidity"),
			Entry("multi-level", "node/#"),
		)

		It("should open a fresh session after a disconnect", func() {
			c, err := mqtt.New(cfg)
			Expect(err).NotTo(HaveOccurred())

			for range 2 {
				Expect(c.Connect(context.Background())).To(Succeed())
				Expect(c.Disconnect()).To(Succeed())
			}
		})

		It("should reject bad credentials", func() {
			cfg.Password = "wrong"
			c, err := mqtt.New(cfg)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.Connect(context.Background())).NotTo(Succeed())
		})

		It("should fail to publish without a session", func() {
			c, err := mqtt.New(cfg)
			Expect(err).NotTo(HaveOccurred())

			err = c.Publish(context.Background(), "node/distance", "1")
			Expect(errors.Is(err, transport.ErrNotConnected)).To(BeTrue())
		})

		It("should report a disconnect without a session", func() {
			c, err := mqtt.New(cfg)
			Expect(err).NotTo(HaveOccurred())

			Expect(errors.Is(c.Disconnect(), transport.ErrNotConnected)).To(BeTrue())
		})

		It("should honour a cancelled context on connect", func() {
			cfg.Port = freePort()
			c, err := mqtt.New(cfg)
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			Expect(c.Connect(ctx)).NotTo(Succeed())
		})
	})
})
