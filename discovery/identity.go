package discovery

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/muurk/midealan/protocol"
)

// IdentityVariant selects one of the three byte layouts used to derive a
// cloud-assisted lookup identifier from a numeric appliance id. None of
// the three is "correct" in a protocol sense — different cloud
// generations used different layouts, and the core carries all three
// for compatibility.
type IdentityVariant int

const (
	IdentityVariantReversedBE8 IdentityVariant = 0
	IdentityVariantLow6BE      IdentityVariant = 1
	IdentityVariantLow6LE      IdentityVariant = 2
)

// UDPID derives the 16-byte (32 hex character) identifier used for
// cloud-assisted device lookup. It has no role in LAN control itself.
func UDPID(applianceID uint64, variant IdentityVariant) (string, error) {
	var seed []byte

	switch variant {
	case IdentityVariantReversedBE8:
		seed = make([]byte, 8)
		binary.BigEndian.PutUint64(seed, applianceID)
		reverse(seed)
	case IdentityVariantLow6BE:
		seed = make([]byte, 6)
		var be8 [8]byte
		binary.BigEndian.PutUint64(be8[:], applianceID)
		copy(seed, be8[2:])
	case IdentityVariantLow6LE:
		seed = make([]byte, 6)
		var le8 [8]byte
		binary.LittleEndian.PutUint64(le8[:], applianceID)
		copy(seed, le8[:6])
	default:
		return "", fmt.Errorf("discovery: unknown identity variant %d", variant)
	}

	digest := protocol.SHA256(seed)
	mixed := protocol.BufferXOR(digest[:16], digest[16:])
	return hex.EncodeToString(mixed), nil
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
