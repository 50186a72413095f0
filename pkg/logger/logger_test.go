package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/sensor-node/pkg/logger"
)

func decode(buf *bytes.Buffer) map[string]any {
	var entry map[string]any
	ExpectWithOffset(1, json.Unmarshal(buf.Bytes(), &entry)).To(Succeed())
	return entry
}

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("should fall back to defaults for a nil config", func() {
			Expect(logger.New(nil)).NotTo(BeNil())
			Expect(logger.DefaultConfig().Level).To(Equal(slog.LevelInfo))
		})

		It("should write one JSON record per call with snake_case attributes intact", func() {
			buf := &bytes.Buffer{}
			log := logger.New(&logger.Config{Level: slog.LevelInfo, Output: buf})

			log.Info("published", "field", "distance", "payload_len", 5)

			entry := decode(buf)
			Expect(entry).To(HaveKey("time"))
			Expect(entry).To(HaveKeyWithValue("level", "INFO"))
			Expect(entry).To(HaveKeyWithValue("msg", "published"))
			Expect(entry).To(HaveKeyWithValue("field", "distance"))
			Expect(entry).To(HaveKeyWithValue("payload_len", float64(5)))
		})

		DescribeTable("should respect the configured level",
			func(level slog.Level, emit func(*slog.Logger), shouldAppear bool) {
				buf := &bytes.Buffer{}
				emit(logger.New(&logger.Config{Level: level, Output: buf}))
				Expect(strings.TrimSpace(buf.String()) != "").To(Equal(shouldAppear))
			},
			Entry("debug at debug", slog.LevelDebug, func(l *slog.Logger) { l.Debug("holding for power down") }, true),
			Entry("debug at info", slog.LevelInfo, func(l *slog.Logger) { l.Debug("holding for power down") }, false),
			Entry("warn at info", slog.LevelInfo, func(l *slog.Logger) { l.Warn("config key missing, using default") }, true),
			Entry("info at error", slog.LevelError, func(l *slog.Logger) { l.Info("sleeping") }, false),
		)
	})

	Describe("ParseLevel", func() {
		DescribeTable("should parse level strings",
			func(input string, expected slog.Level) {
				Expect(logger.ParseLevel(input)).To(Equal(expected))
			},
			Entry("debug", "debug", slog.LevelDebug),
			Entry("upper case", "DEBUG", slog.LevelDebug),
			Entry("warning", "warning", slog.LevelWarn),
			Entry("error with spaces", " error ", slog.LevelError),
			Entry("invalid defaults to info", "verbose", slog.LevelInfo),
			Entry("empty defaults to info", "", slog.LevelInfo),
		)
	})

	Describe("Open", func() {
		It("should append to the log file as well as the output", func() {
			path := filepath.Join(GinkgoT().TempDir(), "node.log")
			buf := &bytes.Buffer{}

			log, closer, err := logger.Open(&logger.Config{
				Level:    slog.LevelInfo,
				Output:   buf,
				FilePath: path,
			})
			Expect(err).NotTo(HaveOccurred())

			log.Info("first")
			log.Info("second")
			Expect(closer.Close()).To(Succeed())

			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.Count(string(data), "\n")).To(Equal(2))
			Expect(buf.String()).To(ContainSubstring("second"))
		})

		It("should keep existing file contents", func() {
			path := filepath.Join(GinkgoT().TempDir(), "node.log")
			Expect(os.WriteFile(path, []byte("old\n"), 0o644)).To(Succeed())

			log, closer, err := logger.Open(&logger.Config{Output: &bytes.Buffer{}, FilePath: path})
			Expect(err).NotTo(HaveOccurred())
			log.Info("new")
			Expect(closer.Close()).To(Succeed())

			data, _ := os.ReadFile(path)
			Expect(string(data)).To(HavePrefix("old\n"))
		})

		It("should fail with ErrLogSink when the file cannot be opened", func() {
			path := filepath.Join(GinkgoT().TempDir(), "missing", "node.log")

			log, _, err := logger.Open(&logger.Config{Output: &bytes.Buffer{}, FilePath: path})
			Expect(errors.Is(err, logger.ErrLogSink)).To(BeTrue())
			Expect(log).To(BeNil())
		})

		It("should work without a file path", func() {
			log, closer, err := logger.Open(&logger.Config{Output: &bytes.Buffer{}})
			Expect(err).NotTo(HaveOccurred())
			Expect(log).NotTo(BeNil())
			Expect(closer.Close()).To(Succeed())
		})
	})

	Describe("Now override", func() {
		It("should stamp records with the provided clock", func() {
			buf := &bytes.Buffer{}
			fixed := time.Date(2024, 6, 4, 12, 30, 0, 0, time.UTC)
			log := logger.New(&logger.Config{
				Level:  slog.LevelInfo,
				Output: buf,
				Now:    func() time.Time { return fixed },
			})

			log.Info("stamped")

			Expect(decode(buf)["time"]).To(Equal("2024-06-04T12:30:00Z"))
		})

		It("should leave a nested time attribute alone", func() {
			buf := &bytes.Buffer{}
			log := logger.New(&logger.Config{
				Output: buf,
				Now:    func() time.Time { return time.Unix(0, 0) },
			})

			log.WithGroup("sync").Info("offset applied", "time", "local")

			entry := decode(buf)
			Expect(entry).To(HaveKeyWithValue("time", "1970-01-01T00:00:00Z"))
			Expect(entry["sync"]).To(HaveKeyWithValue("time", "local"))
		})
	})

	Describe("Discard", func() {
		It("should drop everything", func() {
			log := logger.Discard()
			Expect(log.Enabled(context.Background(), slog.LevelError)).To(BeFalse())
		})
	})

	Describe("Recorder", func() {
		It("should count records per level", func() {
			log, rec := logger.NewRecorder()
			log.Error("boom")
			log.With("component", "x").Debug("detail")
			log.Info("hello")

			Expect(rec.Count(slog.LevelError)).To(Equal(1))
			Expect(rec.Messages(slog.LevelDebug)).To(ConsistOf("detail"))
			Expect(rec.Records()).To(HaveLen(3))

			rec.Reset()
			Expect(rec.Records()).To(BeEmpty())
		})
	})
})
