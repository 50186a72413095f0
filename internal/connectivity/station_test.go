package connectivity_test

import (
	"errors"
	"fmt"
	"net"

	"github.com/Wifx/gonetworkmanager/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/sensor-node/internal/connectivity"
)

type fakeProfile struct {
	gonetworkmanager.Connection
	deleted int
}

func (p *fakeProfile) Delete() error {
	p.deleted++
	return nil
}

type fakeActive struct {
	gonetworkmanager.ActiveConnection
	profile *fakeProfile
}

func (a *fakeActive) GetPropertyConnection() (gonetworkmanager.Connection, error) {
	return a.profile, nil
}

type fakeDevice struct {
	gonetworkmanager.Device
	state         gonetworkmanager.NmDeviceState
	stateErr      error
	disconnects   int
	disconnectErr error
}

func (d *fakeDevice) GetPropertyState() (gonetworkmanager.NmDeviceState, error) {
	return d.state, d.stateErr
}

func (d *fakeDevice) Disconnect() error {
	d.disconnects++
	return d.disconnectErr
}

type fakeNetworkManager struct {
	devices     map[string]*fakeDevice
	activated   []map[string]map[string]interface{}
	activateErr error
	profile     *fakeProfile
}

func (nm *fakeNetworkManager) GetDeviceByIpIface(iface string) (gonetworkmanager.Device, error) {
	dev, ok := nm.devices[iface]
	if !ok {
		return nil, fmt.Errorf("no device for %s", iface)
	}
	return dev, nil
}

func (nm *fakeNetworkManager) AddAndActivateConnection(
	connection map[string]map[string]interface{},
	_ gonetworkmanager.Device,
) (gonetworkmanager.ActiveConnection, error) {
	if nm.activateErr != nil {
		return nil, nm.activateErr
	}
	nm.activated = append(nm.activated, connection)
	nm.profile = &fakeProfile{}
	return &fakeActive{profile: nm.profile}, nil
}

var _ = Describe("NMStation", func() {
	var (
		wlan0 *fakeDevice
		nm    *fakeNetworkManager
		st    *connectivity.NMStation
	)

	BeforeEach(func() {
		wlan0 = &fakeDevice{state: gonetworkmanager.NmDeviceStateDisconnected}
		nm = &fakeNetworkManager{devices: map[string]*fakeDevice{
			"wlan0": wlan0,
			"eth0":  {state: gonetworkmanager.NmDeviceStateActivated},
		}}
		st = connectivity.NewNMStation("wlan0", nm)
	})

	It("should report association only once the device is activated", func() {
		Expect(st.Associated()).To(BeFalse())

		wlan0.state = gonetworkmanager.NmDeviceStateIpConfig
		Expect(st.Associated()).To(BeFalse())

		wlan0.state = gonetworkmanager.NmDeviceStateActivated
		Expect(st.Associated()).To(BeTrue())
	})

	It("should report a missing interface as unassociated", func() {
		Expect(connectivity.NewNMStation("wlan1", nm).Associated()).To(BeFalse())
	})

	It("should report a failed state read as unassociated", func() {
		wlan0.state = gonetworkmanager.NmDeviceStateActivated
		wlan0.stateErr = errors.New("dbus: no reply")
		Expect(st.Associated()).To(BeFalse())
	})

	It("should activate a WPA profile for the configured interface", func() {
		Expect(st.Connect("shed", "secret")).To(Succeed())

		Expect(nm.activated).To(HaveLen(1))
		settings := nm.activated[0]
		Expect(settings["connection"]).To(HaveKeyWithValue("type", "802-11-wireless"))
		Expect(settings["802-11-wireless"]).To(HaveKeyWithValue("ssid", []byte("shed")))
		Expect(settings["802-11-wireless-security"]).To(HaveKeyWithValue("psk", "secret"))
	})

	It("should omit security for open networks", func() {
		Expect(connectivity.WirelessSettings("cafe", "")).NotTo(HaveKey("802-11-wireless-security"))
	})

	It("should delete the profile it added on disconnect", func() {
		Expect(st.Connect("shed", "secret")).To(Succeed())
		profile := nm.profile

		Expect(st.Disconnect()).To(Succeed())
		Expect(wlan0.disconnects).To(Equal(1))
		Expect(profile.deleted).To(Equal(1))

		Expect(st.Disconnect()).To(Succeed())
		Expect(profile.deleted).To(Equal(1))
	})

	It("should wrap activation failures", func() {
		nm.activateErr = errors.New("secrets were required")
		Expect(st.Connect("shed", "wrong")).To(MatchError(ContainSubstring("secrets were required")))
	})

	It("should wrap disconnect failures", func() {
		wlan0.disconnectErr = errors.New("not active")
		Expect(st.Disconnect()).To(MatchError(ContainSubstring("not active")))
	})

	It("should fail every call when the system bus is unreachable", func() {
		dials := 0
		st := connectivity.NewNMStationDialing("wlan0", func() (connectivity.NetworkManager, error) {
			dials++
			return nil, errors.New("no system bus")
		})

		Expect(st.Associated()).To(BeFalse())
		Expect(st.Connect("shed", "secret")).To(MatchError(ContainSubstring("no system bus")))
		Expect(st.Disconnect()).To(MatchError(ContainSubstring("no system bus")))
		Expect(dials).To(Equal(3))
	})

	It("should dial the bus once and reuse it", func() {
		dials := 0
		st := connectivity.NewNMStationDialing("wlan0", func() (connectivity.NetworkManager, error) {
			dials++
			return nm, nil
		})

		Expect(st.Associated()).To(BeFalse())
		Expect(st.Connect("shed", "secret")).To(Succeed())
		Expect(dials).To(Equal(1))
	})
})

var _ = Describe("HostStation", func() {
	addr := &net.IPNet{IP: net.IPv4(192, 168, 1, 20), Mask: net.CIDRMask(24, 32)}

	It("should be associated with an addressed interface", func() {
		st := connectivity.NewHostStationWith(
			[]net.Interface{
				{Name: "lo", Flags: net.FlagUp | net.FlagLoopback},
				{Name: "eth0", Flags: net.FlagUp},
			},
			map[string][]net.Addr{"lo": {addr}, "eth0": {addr}},
		)
		Expect(st.Associated()).To(BeTrue())
		Expect(st.Connect("x", "y")).To(Succeed())
		Expect(st.Disconnect()).To(Succeed())
	})

	It("should ignore loopback and down interfaces", func() {
		st := connectivity.NewHostStationWith(
			[]net.Interface{
				{Name: "lo", Flags: net.FlagUp | net.FlagLoopback},
				{Name: "eth0", Flags: 0},
			},
			map[string][]net.Addr{"lo": {addr}, "eth0": {addr}},
		)
		Expect(st.Associated()).To(BeFalse())
	})
})
