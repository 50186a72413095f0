// Package identity derives the node's stable device identity from its
// hardware address.
package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"
)

// ErrNoHardwareAddress is returned when no usable interface has a MAC.
var ErrNoHardwareAddress = errors.New("no hardware address found")

// DeviceIdentity identifies a node for the lifetime of the process.
type DeviceIdentity struct {
	// ID is the lowercase hex of the MAC address without separators.
	// It is used as the broker client ID.
	ID string
	// UUID is a name-based (SHA-1) UUID of the MAC in the OID namespace.
	UUID uuid.UUID
	// Interface is the name of the interface the MAC was read from, if any.
	Interface string
}

// String returns ID.
func (d DeviceIdentity) String() string { return d.ID }

// FromMAC builds an identity from a hardware address.
func FromMAC(mac net.HardwareAddr) (DeviceIdentity, error) {
	if len(mac) == 0 {
		return DeviceIdentity{}, ErrNoHardwareAddress
	}
	return DeviceIdentity{
		ID:   hex.EncodeToString(mac),
		UUID: uuid.NewSHA1(uuid.NameSpaceOID, mac),
	}, nil
}

// FromInterfaces picks the first up, non-loopback interface with a MAC.
// When name is non-empty only that interface is considered.
func FromInterfaces(name string) (DeviceIdentity, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return DeviceIdentity{}, fmt.Errorf("list interfaces: %w", err)
	}
	return pick(ifaces, name)
}

func pick(ifaces []net.Interface, name string) (DeviceIdentity, error) {
	for _, iface := range ifaces {
		if name != "" && iface.Name != name {
			continue
		}
		if name == "" && (iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0) {
			continue
		}
		id, err := FromMAC(iface.HardwareAddr)
		if err != nil {
			continue
		}
		id.Interface = iface.Name
		return id, nil
	}
	if name != "" {
		return DeviceIdentity{}, fmt.Errorf("%w on interface %q", ErrNoHardwareAddress, name)
	}
	return DeviceIdentity{}, ErrNoHardwareAddress
}
