package discovery

import (
	"fmt"
	"net"
)

// DefaultControlPort is the TCP port a device's control session connects
// to when a descriptor doesn't specify one.
const DefaultControlPort = 6444

// DiscoveryPort is the UDP port the broadcast probe is sent to.
const DiscoveryPort = 6445

// Descriptor is the immutable identity of one device, as produced by
// Discover and consumed by a control session. Descriptors are plain
// values: callers clone them by copying, never by reference.
type Descriptor struct {
	ID              uint64
	ApplianceType   byte
	Serial          string
	SSID            string
	Address         net.IP
	Port            uint16
	ProtocolVersion byte // 2 or 3
}

// NewDescriptor validates and constructs a Descriptor, defaulting Port to
// DefaultControlPort when zero.
func NewDescriptor(id uint64, applianceType byte, serial, ssid string, addr net.IP, port uint16, protocolVersion byte) (Descriptor, error) {
	if len(serial) > 32 {
		return Descriptor{}, fmt.Errorf("discovery: serial %q exceeds 32 bytes", serial)
	}
	if len(ssid) > 32 {
		return Descriptor{}, fmt.Errorf("discovery: ssid %q exceeds 32 bytes", ssid)
	}
	if protocolVersion != 2 && protocolVersion != 3 {
		return Descriptor{}, fmt.Errorf("discovery: unsupported protocol version %d", protocolVersion)
	}
	if port == 0 {
		port = DefaultControlPort
	}
	return Descriptor{
		ID:              id,
		ApplianceType:   applianceType,
		Serial:          serial,
		SSID:            ssid,
		Address:         addr,
		Port:            port,
		ProtocolVersion: protocolVersion,
	}, nil
}

// TCPAddr returns the dial target for this descriptor's control session.
func (d Descriptor) TCPAddr() string {
	return fmt.Sprintf("%s:%d", d.Address.String(), d.Port)
}

func (d Descriptor) String() string {
	return fmt.Sprintf("Descriptor{id=%d, type=0x%02x, serial=%q, addr=%s, v%d}",
		d.ID, d.ApplianceType, d.Serial, d.TCPAddr(), d.ProtocolVersion)
}
