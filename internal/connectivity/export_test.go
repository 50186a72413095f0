package connectivity

import "net"

// NewHostStationWith builds a HostStation over canned interfaces.
func NewHostStationWith(ifaces []net.Interface, addrs map[string][]net.Addr) *HostStation {
	return &HostStation{
		interfaces: func() ([]net.Interface, error) { return ifaces, nil },
		addrs:      func(i net.Interface) ([]net.Addr, error) { return addrs[i.Name], nil },
	}
}

// NewNMStationDialing builds an NMStation whose bus connection comes from dial.
func NewNMStationDialing(iface string, dial func() (NetworkManager, error)) *NMStation {
	s := NewNMStation(iface, nil)
	s.dial = dial
	return s
}

// WirelessSettings exposes the connection profile built for Connect.
var WirelessSettings = wirelessSettings
