package session

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/muurk/midealan/protocol"
)

// handshakeResponseFrameSize is the fixed size of the outer frame carrying
// the server's handshake reply: a 6-byte header plus a 2-byte counter plus
// the 64-byte response body.
const handshakeResponseFrameSize = 72

// Handshake performs the protocol-v3 handshake over an already-connected
// conn: send the 64-byte token as a HandshakeRequest frame, read the
// server's 72-byte reply, and derive the session's tcp_key. It does not
// touch conn's deadlines beyond what ctx implies; callers own the
// connection's lifetime.
func Handshake(ctx context.Context, conn net.Conn, token, key []byte) ([]byte, error) {
	if len(token) != 64 {
		return nil, NewAuthError(fmt.Sprintf("token must be 64 bytes, got %d", len(token)), nil)
	}
	if len(key) != 32 {
		return nil, NewAuthError(fmt.Sprintf("key must be 32 bytes, got %d", len(key)), nil)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}

	var counter uint16
	request, err := protocol.EncodeFrame(token, protocol.MsgTypeHandshakeRequest, nil, &counter)
	if err != nil {
		return nil, NewAuthError("encode handshake request", err)
	}
	if _, err := conn.Write(request); err != nil {
		return nil, NewConnectError("write handshake request", err)
	}

	buf := make([]byte, 0, handshakeResponseFrameSize)
	chunk := make([]byte, handshakeResponseFrameSize)
	for len(buf) < handshakeResponseFrameSize {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			return nil, NewConnectError("read handshake response", err)
		}
	}

	frames, _, err := protocol.DecodeFrames(buf, nil)
	if err != nil {
		return nil, NewFramingError("decode handshake response", err)
	}
	if len(frames) != 1 || len(frames[0].Body) != 64 {
		return nil, NewAuthError(fmt.Sprintf("malformed handshake response: %d frames", len(frames)), nil)
	}

	body := frames[0].Body
	payload, sign := body[:32], body[32:64]

	plain, err := protocol.DecryptCBC(payload, key)
	if err != nil {
		return nil, NewAuthError("decrypt handshake payload", err)
	}

	if !bytes.Equal(protocol.SHA256(plain), sign) {
		return nil, NewAuthError("handshake signature mismatch", nil)
	}

	return protocol.BufferXOR(plain, key), nil
}
