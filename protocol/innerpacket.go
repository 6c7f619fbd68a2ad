package protocol

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Inner packet layout (40-byte header + body + 16-byte tag):
//
//	[0:2]   magic        0x5A 0x5A
//	[2:4]   version      0x01 0x11 (standard) or 0x01 0x10 (handshake)
//	[4:6]   length        u16 LE, total_header + body + 16
//	[6:8]   flags         u16, 0x0020 (standard) or 0x007B (handshake)
//	[8:12]  message_id   u32 LE, always 0 for client-built packets
//	[12:20] timestamp     8 reversed BCD bytes
//	[20:28] device_id     u64 LE
//	[28:40] padding       12 zero bytes
//	[40:N]  body          AES-ECB encrypted (standard) or plain (handshake)
//	[N:N+16] tag          MD5(packet[:N] || salt)
const (
	innerHeaderSize = 40
	innerTagSize    = 16

	innerMagicByte = 0x5A

	innerVersionStandard  = 0x11
	innerVersionHandshake = 0x10

	innerFlagsStandardLo  = 0x20
	innerFlagsHandshakeLo = 0x7B
)

// BuildInnerPacket assembles a 40-byte header, the command body (AES-ECB
// encrypted unless isHandshake), and a trailing MD5 integrity tag.
func BuildInnerPacket(deviceID uint64, command []byte, isHandshake bool) ([]byte, error) {
	body := command
	if !isHandshake {
		encrypted, err := EncryptECB(command)
		if err != nil {
			return nil, fmt.Errorf("protocol: encrypt inner packet body: %w", err)
		}
		body = encrypted
	}

	total := innerHeaderSize + len(body) + innerTagSize
	pkt := make([]byte, total)

	pkt[0], pkt[1] = innerMagicByte, innerMagicByte
	pkt[2] = 0x01
	if isHandshake {
		pkt[3] = innerVersionHandshake
	} else {
		pkt[3] = innerVersionStandard
	}

	binary.LittleEndian.PutUint16(pkt[4:6], uint16(total))

	if isHandshake {
		pkt[6] = innerFlagsHandshakeLo
	} else {
		pkt[6] = innerFlagsStandardLo
	}
	pkt[7] = 0x00

	binary.LittleEndian.PutUint32(pkt[8:12], 0)

	ts := bcdTimestamp(time.Now())
	copy(pkt[12:20], ts[:])

	binary.LittleEndian.PutUint64(pkt[20:28], deviceID)
	// pkt[28:40] left zero.

	copy(pkt[innerHeaderSize:], body)

	tag := MD5Tag(pkt[:innerHeaderSize+len(body)])
	copy(pkt[innerHeaderSize+len(body):], tag)

	return pkt, nil
}

// ParseInnerPacket validates the magic and integrity tag of a complete
// inner packet and returns its body (AES-ECB decrypted for a standard
// packet, as carried for a handshake packet), the device id, and whether
// the packet used handshake (cleartext) framing.
func ParseInnerPacket(pkt []byte) (body []byte, deviceID uint64, isHandshake bool, err error) {
	if len(pkt) < innerHeaderSize+innerTagSize {
		return nil, 0, false, fmt.Errorf("protocol: inner packet too short: %d bytes", len(pkt))
	}
	if pkt[0] != innerMagicByte || pkt[1] != innerMagicByte {
		return nil, 0, false, fmt.Errorf("protocol: inner packet bad magic: %02x %02x", pkt[0], pkt[1])
	}

	n := len(pkt)
	payload, tag := pkt[:n-innerTagSize], pkt[n-innerTagSize:]
	if !CheckMD5Tag(payload, tag) {
		return nil, 0, false, fmt.Errorf("protocol: inner packet tag mismatch")
	}

	isHandshake = pkt[3] == innerVersionHandshake
	deviceID = binary.LittleEndian.Uint64(pkt[20:28])
	body = pkt[innerHeaderSize : n-innerTagSize]

	if !isHandshake {
		decrypted, derr := DecryptECB(body)
		if derr != nil {
			return nil, 0, false, fmt.Errorf("protocol: decrypt inner packet body: %w", derr)
		}
		body = decrypted
	}

	return body, deviceID, isHandshake, nil
}

// bcdTimestamp encodes t as "YYYYMMDDHHmmssSS" packed two-digits-per-byte
// BCD, then reverses the byte order (least-significant byte first).
func bcdTimestamp(t time.Time) [8]byte {
	digits := t.Format("20060102150405") + "00"

	var packed [8]byte
	for i := 0; i < 8; i++ {
		hi := digits[i*2] - '0'
		lo := digits[i*2+1] - '0'
		packed[i] = hi<<4 | lo
	}

	var reversed [8]byte
	for i := 0; i < 8; i++ {
		reversed[i] = packed[7-i]
	}
	return reversed
}
