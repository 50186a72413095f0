package connectivity

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/Wifx/gonetworkmanager/v2"
)

// NetworkManager is the part of the NetworkManager D-Bus API a station
// needs. gonetworkmanager.NetworkManager satisfies it.
type NetworkManager interface {
	GetDeviceByIpIface(iface string) (gonetworkmanager.Device, error)
	AddAndActivateConnection(connection map[string]map[string]interface{}, device gonetworkmanager.Device) (gonetworkmanager.ActiveConnection, error)
}

// NMStation drives a Wi-Fi interface through NetworkManager over D-Bus.
type NMStation struct {
	iface string
	dial  func() (NetworkManager, error)

	mu      sync.Mutex
	nm      NetworkManager
	profile gonetworkmanager.Connection
}

// NewNMStation manages iface (for example "wlan0"). A nil nm connects to the
// system bus on first use.
func NewNMStation(iface string, nm NetworkManager) *NMStation {
	s := &NMStation{iface: iface, nm: nm}
	s.dial = func() (NetworkManager, error) {
		return gonetworkmanager.NewNetworkManager()
	}
	return s
}

// device looks the interface up on every call; NetworkManager assigns a new
// object path when the adapter is re-plugged.
func (s *NMStation) device() (NetworkManager, gonetworkmanager.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nm == nil {
		nm, err := s.dial()
		if err != nil {
			return nil, nil, fmt.Errorf("networkmanager: %w", err)
		}
		s.nm = nm
	}

	dev, err := s.nm.GetDeviceByIpIface(s.iface)
	if err != nil {
		return nil, nil, fmt.Errorf("device %s: %w", s.iface, err)
	}
	return s.nm, dev, nil
}

// Associated implements Station. It is true once NetworkManager reports the
// device activated, which includes IP configuration.
func (s *NMStation) Associated() bool {
	_, dev, err := s.device()
	if err != nil {
		return false
	}
	state, err := dev.GetPropertyState()
	if err != nil {
		return false
	}
	return state == gonetworkmanager.NmDeviceStateActivated
}

// Disconnect implements Station. It also deletes the profile added by the
// last Connect.
func (s *NMStation) Disconnect() error {
	_, dev, err := s.device()
	if err != nil {
		return err
	}

	var errs []error
	if err := dev.Disconnect(); err != nil {
		errs = append(errs, fmt.Errorf("disconnect %s: %w", s.iface, err))
	}

	s.mu.Lock()
	profile := s.profile
	s.profile = nil
	s.mu.Unlock()
	if profile != nil {
		if err := profile.Delete(); err != nil {
			errs = append(errs, fmt.Errorf("delete profile: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Connect implements Station. NetworkManager returns as soon as activation
// has started; the supervisor polls Associated for the result.
func (s *NMStation) Connect(ssid, password string) error {
	nm, dev, err := s.device()
	if err != nil {
		return err
	}

	active, err := nm.AddAndActivateConnection(wirelessSettings(ssid, password), dev)
	if err != nil {
		return fmt.Errorf("activate %q: %w", ssid, err)
	}
	if active != nil {
		if profile, err := active.GetPropertyConnection(); err == nil {
			s.mu.Lock()
			s.profile = profile
			s.mu.Unlock()
		}
	}
	return nil
}

// wirelessSettings builds a NetworkManager connection profile for ssid.
// An empty password means an open network.
func wirelessSettings(ssid, password string) map[string]map[string]interface{} {
	settings := map[string]map[string]interface{}{
		"connection": {
			"id":          ssid,
			"type":        "802-11-wireless",
			"autoconnect": false,
		},
		"802-11-wireless": {
			"ssid": []byte(ssid),
			"mode": "infrastructure",
		},
		"ipv4": {"method": "auto"},
		"ipv6": {"method": "auto"},
	}
	if password != "" {
		settings["802-11-wireless-security"] = map[string]interface{}{
			"key-mgmt": "wpa-psk",
			"psk":      password,
		}
	}
	return settings
}

// HostStation treats the host's existing network as the station. It is
// associated when any non-loopback interface is up with an address.
// Connect and Disconnect do nothing.
type HostStation struct {
	interfaces func() ([]net.Interface, error)
	addrs      func(net.Interface) ([]net.Addr, error)
}

// NewHostStation returns a station backed by the host's interfaces.
func NewHostStation() *HostStation {
	return &HostStation{
		interfaces: net.Interfaces,
		addrs:      func(i net.Interface) ([]net.Addr, error) { return i.Addrs() },
	}
}

// Associated implements Station.
func (h *HostStation) Associated() bool {
	ifaces, err := h.interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if addrs, err := h.addrs(iface); err == nil && len(addrs) > 0 {
			return true
		}
	}
	return false
}

// Disconnect implements Station.
func (h *HostStation) Disconnect() error { return nil }

// Connect implements Station.
func (h *HostStation) Connect(string, string) error { return nil }

var (
	_ Station = (*NMStation)(nil)
	_ Station = (*HostStation)(nil)
)
