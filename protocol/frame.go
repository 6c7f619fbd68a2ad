package protocol

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// MsgType identifies the outer ("v3") frame's payload kind, packed into
// the low nibble of header byte 5.
type MsgType byte

const (
	MsgTypeHandshakeRequest  MsgType = 0
	MsgTypeHandshakeResponse MsgType = 1
	MsgTypeEncryptedResponse MsgType = 3
	MsgTypeEncryptedRequest  MsgType = 6
)

func (t MsgType) isEncrypted() bool {
	return t == MsgTypeEncryptedRequest || t == MsgTypeEncryptedResponse
}

const (
	outerMagicHi   = 0x83
	outerMagicLo   = 0x70
	outerByte4Fill = 0x20
	signatureSize  = 32
)

// errorFrameBody is the sentinel plaintext the device sends when it wants
// to terminate the session without a usable reply.
var errorFrameBody = []byte("ERROR")

// DecodedFrame is one complete outer frame recovered from the stream.
type DecodedFrame struct {
	ResponseCounter uint16
	MsgType         MsgType
	Body            []byte
	// IsErrorFrame is set when the frame's plaintext is the ASCII "ERROR"
	// sentinel recovered despite a signature mismatch; the session engine
	// must drop the socket but this is not an IntegrityError.
	IsErrorFrame bool
}

// EncodeFrame builds one outer v3 frame carrying payload as msgType,
// consuming and advancing the caller's request counter (which wraps at
// 0x10000). For encrypted message types, tcpKey must be the session's
// 32-byte key and the payload is randomly padded to a block boundary.
func EncodeFrame(payload []byte, msgType MsgType, tcpKey []byte, counter *uint16) ([]byte, error) {
	encrypted := msgType.isEncrypted()

	work := payload
	var pad int
	if encrypted {
		pad = (16 - (len(payload)+2)%16) % 16
		if pad > 0 {
			padding := make([]byte, pad)
			if _, err := rand.Read(padding); err != nil {
				return nil, fmt.Errorf("protocol: generate frame padding: %w", err)
			}
			work = append(append([]byte{}, payload...), padding...)
		}
	}

	headerField := len(work)
	if encrypted {
		headerField += signatureSize
	}

	header := []byte{
		outerMagicHi, outerMagicLo,
		byte(headerField >> 8), byte(headerField),
		outerByte4Fill,
		byte(pad<<4) | byte(msgType),
	}

	counterBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(counterBytes, *counter)
	*counter++

	body := append(counterBytes, work...)

	if !encrypted {
		return append(header, body...), nil
	}

	sign := SHA256(append(append([]byte{}, header...), body...))
	cipherText, err := EncryptCBC(body, tcpKey)
	if err != nil {
		return nil, fmt.Errorf("protocol: encrypt outer frame: %w", err)
	}

	out := make([]byte, 0, len(header)+len(cipherText)+len(sign))
	out = append(out, header...)
	out = append(out, cipherText...)
	out = append(out, sign...)
	return out, nil
}

// DecodeFrames consumes as many complete outer frames as are present in
// buf, returning them in arrival order along with the unconsumed
// remainder. A non-nil error means the session's framing or integrity is
// broken beyond recovery and the socket must be dropped; frames decoded
// before the error are still returned.
func DecodeFrames(buf, tcpKey []byte) (frames []DecodedFrame, leftover []byte, err error) {
	for len(buf) >= 6 {
		if buf[0] != outerMagicHi || buf[1] != outerMagicLo {
			return frames, buf, fmt.Errorf("protocol: outer frame bad magic: %02x %02x", buf[0], buf[1])
		}

		headerField := int(binary.BigEndian.Uint16(buf[2:4]))
		packetSize := headerField + 8
		if len(buf) < packetSize {
			return frames, buf, nil
		}

		packet := buf[:packetSize]
		msgType := MsgType(packet[5] & 0x0F)
		pad := int(packet[5] >> 4)
		encrypted := msgType.isEncrypted()

		rest := packet[6:]
		var plain []byte
		var isErrorFrame bool

		if encrypted {
			if len(rest) < signatureSize {
				return frames, buf, fmt.Errorf("protocol: encrypted outer frame too short for signature")
			}
			cipherText, sign := rest[:len(rest)-signatureSize], rest[len(rest)-signatureSize:]

			decrypted, derr := DecryptCBC(cipherText, tcpKey)
			if derr != nil {
				return frames, buf, fmt.Errorf("protocol: decrypt outer frame: %w", derr)
			}

			recomputed := SHA256(append(append([]byte{}, packet[:6]...), decrypted...))
			if !bytes.Equal(recomputed, sign) {
				// The plaintext starts with the 2-byte response counter.
				if len(decrypted) >= 2+len(errorFrameBody) && bytes.Equal(decrypted[2:2+len(errorFrameBody)], errorFrameBody) {
					plain = decrypted
					isErrorFrame = true
				} else {
					return frames, buf, fmt.Errorf("protocol: outer frame signature mismatch")
				}
			} else {
				plain = decrypted
			}
		} else {
			plain = rest
		}

		if pad > 0 {
			if pad > len(plain) {
				return frames, buf, fmt.Errorf("protocol: outer frame padding %d exceeds body %d", pad, len(plain))
			}
			plain = plain[:len(plain)-pad]
		}

		if len(plain) < 2 {
			return frames, buf, fmt.Errorf("protocol: outer frame body too short for counter")
		}

		frames = append(frames, DecodedFrame{
			ResponseCounter: binary.BigEndian.Uint16(plain[:2]),
			MsgType:         msgType,
			Body:            plain[2:],
			IsErrorFrame:    isErrorFrame,
		})

		buf = buf[packetSize:]
	}

	return frames, buf, nil
}
