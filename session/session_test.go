package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net"
	"testing"
	"time"

	"github.com/muurk/midealan/adapter"
	"github.com/muurk/midealan/protocol"
)

// fakeDevice is a minimal test double for the server side of a protocol-v3
// control session: it performs the handshake, then lets the test script
// individual request/reply exchanges over the same tcp_key.
type fakeDevice struct {
	conn   net.Conn
	tcpKey []byte
	respCt uint16
}

func acceptAndHandshake(t *testing.T, ln net.Listener, key []byte) *fakeDevice {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	tcpKey := serveHandshake(t, conn, key)
	return &fakeDevice{conn: conn, tcpKey: tcpKey}
}

// readFrame reads exactly one outer frame's worth of bytes and decodes it.
func (d *fakeDevice) readFrame(t *testing.T) protocol.DecodedFrame {
	t.Helper()
	buf := make([]byte, 0, 256)
	chunk := make([]byte, 256)
	for {
		n, err := d.conn.Read(chunk)
		if err != nil {
			t.Fatalf("fakeDevice: read: %v", err)
		}
		buf = append(buf, chunk[:n]...)
		frames, _, err := protocol.DecodeFrames(buf, d.tcpKey)
		if err != nil {
			t.Fatalf("fakeDevice: decode: %v", err)
		}
		if len(frames) > 0 {
			return frames[0]
		}
	}
}

func (d *fakeDevice) sendApplianceReply(t *testing.T, applianceType byte, msgType protocol.MessageType, body []byte, deviceID uint64) {
	t.Helper()
	appMsg := protocol.BuildApplianceMessage(applianceType, 3, msgType, body)
	inner, err := protocol.BuildInnerPacket(deviceID, appMsg, false)
	if err != nil {
		t.Fatalf("fakeDevice: build inner packet: %v", err)
	}
	frame, err := protocol.EncodeFrame(inner, protocol.MsgTypeEncryptedResponse, d.tcpKey, &d.respCt)
	if err != nil {
		t.Fatalf("fakeDevice: encode frame: %v", err)
	}
	if _, err := d.conn.Write(frame); err != nil {
		t.Fatalf("fakeDevice: write: %v", err)
	}
}

func randomHex(t *testing.T, n int) string {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return hex.EncodeToString(b)
}

func TestSession_ConnectRefreshAndObserve(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	keyHex := randomHex(t, 32)
	key, _ := hex.DecodeString(keyHex)

	const deviceID = uint64(42)
	addr := ln.Addr().(*net.TCPAddr)

	opts := Options{
		Name:              "test-unit",
		DeviceID:          deviceID,
		IP:                addr.IP.String(),
		Port:              uint16(addr.Port),
		TokenHex:          randomHex(t, 64),
		KeyHex:            keyHex,
		Protocol:          3,
		RefreshInterval:   time.Hour, // disable the automatic timer for this test
		HeartbeatInterval: time.Hour,
		Adapter:           adapter.NewGenericAdapter(adapter.TypeAirConditioner),
	}

	sess, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var observed []adapter.Status
	obsCh := make(chan adapter.Status, 8)
	sess.RegisterObserver(func(s adapter.Status) {
		obsCh <- s
	})

	sess.Open()
	defer sess.Close()

	device := acceptAndHandshake(t, ln, key)

	waitForState(t, sess, StateReady, 2*time.Second)

	// Reaching Ready publishes available=true before any frame arrives;
	// consume it so the check below sees the NOTIFY1 status.
	select {
	case <-obsCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the Ready availability notification")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	refreshDone := make(chan error, 1)
	go func() {
		refreshDone <- sess.RefreshStatus(ctx, true)
	}()

	queryFrame := device.readFrame(t)
	_, _, _, err = protocol.ParseInnerPacket(queryFrame.Body)
	if err != nil {
		t.Fatalf("device: parse inbound inner packet: %v", err)
	}
	device.sendApplianceReply(t, adapter.TypeAirConditioner, protocol.MessageTypeQueryAppliance, make([]byte, 19), deviceID)

	if err := <-refreshDone; err != nil {
		t.Fatalf("RefreshStatus(wait=true): %v", err)
	}

	device.sendApplianceReply(t, adapter.TypeAirConditioner, protocol.MessageTypeNotify1, []byte{0x01}, deviceID)

	select {
	case s := <-obsCh:
		observed = append(observed, s)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for observer notification from NOTIFY1 frame")
	}
	if avail, _ := observed[len(observed)-1]["available"].(bool); !avail {
		t.Fatalf("expected available=true status, got %v", observed[len(observed)-1])
	}
}

func TestSession_ErrorFrameDropsAndReconnects(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	keyHex := randomHex(t, 32)
	key, _ := hex.DecodeString(keyHex)
	addr := ln.Addr().(*net.TCPAddr)

	opts := Options{
		DeviceID:          7,
		IP:                addr.IP.String(),
		Port:              uint16(addr.Port),
		TokenHex:          randomHex(t, 64),
		KeyHex:            keyHex,
		Protocol:          3,
		RefreshInterval:   time.Hour,
		HeartbeatInterval: time.Hour,
		Adapter:           adapter.NewGenericAdapter(adapter.TypeFan),
	}

	sess, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	availCh := make(chan bool, 8)
	sess.RegisterObserver(func(s adapter.Status) {
		if v, ok := s["available"].(bool); ok {
			availCh <- v
		}
	})

	sess.Open()
	defer sess.Close()

	device := acceptAndHandshake(t, ln, key)
	waitForState(t, sess, StateReady, 2*time.Second)
	drainBool(t, availCh, true)

	var counter uint16
	errFrame, err := protocol.EncodeFrame([]byte("ERROR"), protocol.MsgTypeEncryptedResponse, device.tcpKey, &counter)
	if err != nil {
		t.Fatalf("encode ERROR frame: %v", err)
	}
	if _, err := device.conn.Write(errFrame); err != nil {
		t.Fatalf("write ERROR frame: %v", err)
	}

	drainBool(t, availCh, false)
	waitForState(t, sess, StateReconnecting, 2*time.Second)
}

func drainBool(t *testing.T, ch chan bool, want bool) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("availability = %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for availability=%v", want)
	}
}

func waitForState(t *testing.T, sess *Session, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if sess.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session did not reach state %v within %v (last state %v)", want, timeout, sess.State())
}

func TestCommandKey_DistinguishesCommands(t *testing.T) {
	a := commandKey(0xAC, 0x03, []byte{0x01})
	b := commandKey(0xAC, 0x03, []byte{0x02})
	c := commandKey(0xA1, 0x03, []byte{0x01})
	if a == b || a == c || b == c {
		t.Fatalf("expected distinct keys, got a=%q b=%q c=%q", a, b, c)
	}
}

func TestUnsupportedSet_MarkAndReset(t *testing.T) {
	u := newUnsupportedSet()
	if u.isUnsupported("x") {
		t.Fatal("fresh set reports a key as unsupported")
	}
	u.mark("x")
	if !u.isUnsupported("x") {
		t.Fatal("mark did not take effect")
	}
	u.reset()
	if u.isUnsupported("x") {
		t.Fatal("reset did not clear the set")
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateIdle:           "Idle",
		StateConnecting:     "Connecting",
		StateAuthenticating: "Authenticating",
		StateReady:          "Ready",
		StateReconnecting:   "Reconnecting",
		StateClosed:         "Closed",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
