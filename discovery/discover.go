package discovery

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/muurk/midealan/internal/logging"
	"go.uber.org/zap"
)

// probe is the fixed 64-byte UDP broadcast discovery probe.
var probe = []byte{
	0x5a, 0x5a, 0x01, 0x11, 0x48, 0x00, 0x92, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x7f, 0x75, 0xbd, 0x6b, 0x3e, 0x4f, 0x8b, 0x76,
	0x2e, 0x84, 0x9c, 0x6e, 0x57, 0x8d, 0x65, 0x90,
	0x03, 0x6e, 0x9d, 0x43, 0x42, 0xa5, 0x0f, 0x1f,
}

const (
	minResponseSize = 104
	defaultTimeout  = 5 * time.Second
	readBufferSize  = 2048
	// defaultDiscoveredProtocolVersion is the protocol version assumed
	// for a freshly discovered device. The descriptor keeps it; a session
	// records the version byte of a QUERY_APPLIANCE reply separately and
	// does not change the descriptor.
	defaultDiscoveredProtocolVersion = 3
)

// Options configures one Discover call.
type Options struct {
	// BroadcastAddr defaults to "255.255.255.255:6445".
	BroadcastAddr string
	// Timeout defaults to 5s.
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.BroadcastAddr == "" {
		o.BroadcastAddr = fmt.Sprintf("255.255.255.255:%d", DiscoveryPort)
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return o
}

// Discover broadcasts the discovery probe and collects responses until
// ctx is done or the timeout elapses, whichever comes first. The
// returned map is keyed by device id.
func Discover(ctx context.Context, opts Options) (map[uint64]Descriptor, error) {
	opts = opts.withDefaults()

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("discovery: open udp socket: %w", err)
	}
	defer conn.Close()

	broadcastAddr, err := net.ResolveUDPAddr("udp4", opts.BroadcastAddr)
	if err != nil {
		return nil, fmt.Errorf("discovery: resolve broadcast address %q: %w", opts.BroadcastAddr, err)
	}

	if err := enableBroadcast(conn); err != nil {
		return nil, fmt.Errorf("discovery: enable broadcast: %w", err)
	}

	if _, err := conn.WriteTo(probe, broadcastAddr); err != nil {
		return nil, fmt.Errorf("discovery: send probe: %w", err)
	}

	deadline := time.Now().Add(opts.Timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("discovery: set deadline: %w", err)
	}

	found := make(map[uint64]Descriptor)
	buf := make([]byte, readBufferSize)

	for {
		select {
		case <-ctx.Done():
			return found, nil
		default:
		}

		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return found, nil
			}
			return found, fmt.Errorf("discovery: read response: %w", err)
		}

		desc, ok := parseResponse(buf[:n], addr)
		if !ok {
			logging.Debug("discovery: ignored malformed response", zap.String("remote_addr", addr.String()), zap.Int("length", n))
			continue
		}
		found[desc.ID] = desc
	}
}

// parseResponse decodes a single UDP discovery reply into a Descriptor.
func parseResponse(data []byte, from net.Addr) (Descriptor, bool) {
	if len(data) < minResponseSize || data[0] != 0x5A || data[1] != 0x5A {
		return Descriptor{}, false
	}

	deviceID := binary.LittleEndian.Uint64(data[20:28])
	applianceType := data[38]
	serial := nulTerminatedASCII(data[40:72])
	ssid := nulTerminatedASCII(data[72:104])

	ip := udpHost(from)
	if ip == nil {
		return Descriptor{}, false
	}

	desc, err := NewDescriptor(deviceID, applianceType, serial, ssid, ip, DefaultControlPort, defaultDiscoveredProtocolVersion)
	if err != nil {
		return Descriptor{}, false
	}
	return desc, true
}

func nulTerminatedASCII(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func udpHost(addr net.Addr) net.IP {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return nil
	}
	return udpAddr.IP
}
