package timesync_test

import (
	"context"
	"errors"
	"time"

	"github.com/beevik/ntp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/sensor-node/internal/timesync"
)

var _ = Describe("NTPClock", func() {
	local := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	validResponse := func(offset time.Duration) *ntp.Response {
		return &ntp.Response{
			Stratum:        2,
			ClockOffset:    offset,
			RTT:            20 * time.Millisecond,
			Leap:           ntp.LeapNoWarning,
			Time:           local.Add(offset),
			ReferenceTime:  local.Add(offset - time.Minute),
			RootDelay:      10 * time.Millisecond,
			RootDispersion: 10 * time.Millisecond,
		}
	}

	newClock := func(q timesync.QueryFunc) *timesync.NTPClock {
		c, err := timesync.NewNTPClock(timesync.Config{
			Server: "pool.ntp.org",
			Query:  q,
			Local:  func() time.Time { return local },
		})
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	It("should require a server", func() {
		_, err := timesync.NewNTPClock(timesync.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("should report local time before the first sync", func() {
		c := newClock(nil)
		Expect(c.Synced()).To(BeFalse())
		Expect(c.Now()).To(Equal(local))
	})

	It("should apply the offset after a sync", func() {
		var host string
		var timeout time.Duration
		c := newClock(func(h string, opts ntp.QueryOptions) (*ntp.Response, error) {
			host, timeout = h, opts.Timeout
			return validResponse(90 * time.Second), nil
		})

		Expect(c.Sync(context.Background())).To(Succeed())
		Expect(host).To(Equal("pool.ntp.org"))
		Expect(timeout).To(Equal(5 * time.Second))
		Expect(c.Synced()).To(BeTrue())
		Expect(c.Offset()).To(Equal(90 * time.Second))
		Expect(c.Now()).To(Equal(local.Add(90 * time.Second)))
	})

	It("should keep the previous offset when a query fails", func() {
		fail := false
		c := newClock(func(string, ntp.QueryOptions) (*ntp.Response, error) {
			if fail {
				return nil, errors.New("i/o timeout")
			}
			return validResponse(time.Second), nil
		})

		Expect(c.Sync(context.Background())).To(Succeed())
		fail = true
		Expect(c.Sync(context.Background())).To(MatchError(ContainSubstring("i/o timeout")))
		Expect(c.Offset()).To(Equal(time.Second))
	})

	It("should reject an unsynchronised server", func() {
		c := newClock(func(string, ntp.QueryOptions) (*ntp.Response, error) {
			r := validResponse(time.Hour)
			r.Leap = ntp.LeapNotInSync
			return r, nil
		})

		Expect(c.Sync(context.Background())).To(HaveOccurred())
		Expect(c.Synced()).To(BeFalse())
		Expect(c.Now()).To(Equal(local))
	})

	It("should not query with a cancelled context", func() {
		called := false
		c := newClock(func(string, ntp.QueryOptions) (*ntp.Response, error) {
			called = true
			return validResponse(0), nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		Expect(c.Sync(ctx)).To(MatchError(context.Canceled))
		Expect(called).To(BeFalse())
	})
})
