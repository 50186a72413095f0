package identity_test

import (
	"net"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/sensor-node/pkg/identity"
)

var _ = Describe("DeviceIdentity", func() {
	mac := net.HardwareAddr{0x28, 0xcd, 0xc1, 0x0a, 0x1b, 0x2c}

	Describe("FromMAC", func() {
		It("should use the hex of the MAC as the ID", func() {
			id, err := identity.FromMAC(mac)
			Expect(err).NotTo(HaveOccurred())
			Expect(id.ID).To(Equal("28cdc10a1b2c"))
			Expect(id.String()).To(Equal("28cdc10a1b2c"))
		})

		It("should derive a stable version 5 UUID", func() {
			a, err := identity.FromMAC(mac)
			Expect(err).NotTo(HaveOccurred())
			b, err := identity.FromMAC(mac)
			Expect(err).NotTo(HaveOccurred())

			Expect(a.UUID).To(Equal(b.UUID))
			Expect(a.UUID.Version()).To(Equal(uuid.Version(5)))
			Expect(a.UUID).To(Equal(uuid.NewSHA1(uuid.NameSpaceOID, mac)))
		})

		It("should give different MACs different UUIDs", func() {
			a, _ := identity.FromMAC(mac)
			b, _ := identity.FromMAC(net.HardwareAddr{0x28, 0xcd, 0xc1, 0x0a, 0x1b, 0x2d})
			Expect(a.UUID).NotTo(Equal(b.UUID))
		})

		It("should reject an empty address", func() {
			_, err := identity.FromMAC(nil)
			Expect(err).To(MatchError(identity.ErrNoHardwareAddress))
		})
	})

	Describe("interface selection", func() {
		ifaces := []net.Interface{
			{Name: "lo", Flags: net.FlagUp | net.FlagLoopback},
			{Name: "eth0", Flags: 0, HardwareAddr: net.HardwareAddr{1, 2, 3, 4, 5, 6}},
			{Name: "wlan0", Flags: net.FlagUp, HardwareAddr: mac},
		}

		It("should skip loopback and down interfaces", func() {
			id, err := identity.Pick(ifaces, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(id.Interface).To(Equal("wlan0"))
			Expect(id.ID).To(Equal("28cdc10a1b2c"))
		})

		It("should honour an explicit interface name", func() {
			id, err := identity.Pick(ifaces, "eth0")
			Expect(err).NotTo(HaveOccurred())
			Expect(id.ID).To(Equal("010203040506"))
		})

		It("should fail when the named interface has no MAC", func() {
			_, err := identity.Pick(ifaces, "lo")
			Expect(err).To(MatchError(identity.ErrNoHardwareAddress))
			Expect(err.Error()).To(ContainSubstring(`"lo"`))
		})
	})
})
