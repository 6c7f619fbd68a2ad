package protocol

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeFrame_RoundTrip_SpecVector(t *testing.T) {
	tcpKey := bytes.Repeat([]byte{0x00}, 32)
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	var counter uint16

	frame, err := EncodeFrame(payload, MsgTypeEncryptedRequest, tcpKey, &counter)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	if frame[0] != 0x83 || frame[1] != 0x70 || frame[4] != 0x20 {
		t.Fatalf("unexpected fixed header bytes: % x", frame[:6])
	}
	if frame[5]&0x0F != byte(MsgTypeEncryptedRequest) {
		t.Fatalf("msg type nibble = %d, want %d", frame[5]&0x0F, MsgTypeEncryptedRequest)
	}
	if counter != 1 {
		t.Fatalf("counter after encode = %d, want 1", counter)
	}

	frames, leftover, err := DecodeFrames(frame, tcpKey)
	if err != nil {
		t.Fatalf("DecodeFrames: %v", err)
	}
	if len(leftover) != 0 {
		t.Fatalf("leftover = %d bytes, want 0", len(leftover))
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].ResponseCounter != 0 {
		t.Fatalf("response counter = %d, want 0", frames[0].ResponseCounter)
	}
	if !bytes.Equal(frames[0].Body, payload) {
		t.Fatalf("decoded payload = %v, want %v", frames[0].Body, payload)
	}
}

func TestEncodeDecodeFrame_Plaintext(t *testing.T) {
	payload := []byte("hello handshake")
	var counter uint16

	frame, err := EncodeFrame(payload, MsgTypeHandshakeRequest, nil, &counter)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}

	frames, leftover, err := DecodeFrames(frame, nil)
	if err != nil {
		t.Fatalf("DecodeFrames: %v", err)
	}
	if len(leftover) != 0 {
		t.Fatal("expected no leftover")
	}
	if !bytes.Equal(frames[0].Body, payload) {
		t.Fatalf("decoded payload = %q, want %q", frames[0].Body, payload)
	}
}

func TestDecodeFrames_ErrorFrameNotFatal(t *testing.T) {
	tcpKey := bytes.Repeat([]byte{0x01}, 32)
	var counter uint16

	frame, err := EncodeFrame(errorFrameBody, MsgTypeEncryptedResponse, tcpKey, &counter)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	// Corrupt the signature so the decoder takes the mismatch branch; the
	// plaintext is still recoverable since CBC decryption does not
	// depend on the signature.
	frame[len(frame)-1] ^= 0xFF

	frames, _, err := DecodeFrames(frame, tcpKey)
	if err != nil {
		t.Fatalf("DecodeFrames returned fatal error for ERROR frame: %v", err)
	}
	if len(frames) != 1 || !frames[0].IsErrorFrame {
		t.Fatalf("expected one ERROR frame, got %+v", frames)
	}
}

func TestDecodeFrames_SignatureMismatchIsFatal(t *testing.T) {
	tcpKey := bytes.Repeat([]byte{0x02}, 32)
	var counter uint16

	frame, err := EncodeFrame([]byte("normal status payload-1"), MsgTypeEncryptedResponse, tcpKey, &counter)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	frame[len(frame)-1] ^= 0xFF

	if _, _, err := DecodeFrames(frame, tcpKey); err == nil {
		t.Fatal("expected fatal integrity error for corrupted non-ERROR frame")
	}
}

func TestDecodeFrames_BadMagicIsFatal(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x00, 0x01, 0x20, 0x06, 0x00, 0x00, 0x00}
	if _, _, err := DecodeFrames(buf, nil); err == nil {
		t.Fatal("expected fatal framing error for bad magic")
	}
}

func TestDecodeFrames_Padding(t *testing.T) {
	tcpKey := bytes.Repeat([]byte{0x03}, 32)
	var counter uint16
	frame, err := EncodeFrame([]byte{0x01, 0x02, 0x03}, MsgTypeEncryptedRequest, tcpKey, &counter)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}

	frames, leftover, err := DecodeFrames(frame[:len(frame)-5], tcpKey)
	if err != nil {
		t.Fatalf("DecodeFrames: %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("expected no complete frames from truncated buffer, got %d", len(frames))
	}
	if len(leftover) != len(frame)-5 {
		t.Fatalf("leftover = %d bytes, want %d", len(leftover), len(frame)-5)
	}
}

func TestDecodeFrames_StreamReassemblyIdempotence(t *testing.T) {
	tcpKey := bytes.Repeat([]byte{0x04}, 32)
	var counter uint16

	var full []byte
	for i := 0; i < 3; i++ {
		f, err := EncodeFrame([]byte{byte(i), byte(i + 1), byte(i + 2)}, MsgTypeEncryptedRequest, tcpKey, &counter)
		if err != nil {
			t.Fatalf("EncodeFrame: %v", err)
		}
		full = append(full, f...)
	}

	allAtOnce, leftover, err := DecodeFrames(full, tcpKey)
	if err != nil {
		t.Fatalf("DecodeFrames (bulk): %v", err)
	}
	if len(leftover) != 0 {
		t.Fatal("expected no leftover from bulk decode")
	}

	var oneAtATime []DecodedFrame
	var buf []byte
	for _, b := range full {
		buf = append(buf, b)
		frames, rest, derr := DecodeFrames(buf, tcpKey)
		if derr != nil {
			t.Fatalf("DecodeFrames (byte-at-a-time): %v", derr)
		}
		oneAtATime = append(oneAtATime, frames...)
		buf = rest
	}
	if len(buf) != 0 {
		t.Fatal("expected no leftover after feeding full stream byte by byte")
	}

	if len(allAtOnce) != len(oneAtATime) {
		t.Fatalf("frame count mismatch: bulk=%d, byte-at-a-time=%d", len(allAtOnce), len(oneAtATime))
	}
	for i := range allAtOnce {
		if !bytes.Equal(allAtOnce[i].Body, oneAtATime[i].Body) {
			t.Fatalf("frame %d body mismatch: %v vs %v", i, allAtOnce[i].Body, oneAtATime[i].Body)
		}
	}
}

func TestEncodeFrame_CounterWraps(t *testing.T) {
	tcpKey := bytes.Repeat([]byte{0x05}, 32)
	counter := uint16(0xFFFF)

	frame1, err := EncodeFrame([]byte{0x01}, MsgTypeEncryptedRequest, tcpKey, &counter)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	if counter != 0 {
		t.Fatalf("counter after wrap = %d, want 0", counter)
	}

	frames, _, err := DecodeFrames(frame1, tcpKey)
	if err != nil {
		t.Fatalf("DecodeFrames: %v", err)
	}
	if frames[0].ResponseCounter != 0xFFFF {
		t.Fatalf("response counter = %d, want 0xFFFF", frames[0].ResponseCounter)
	}
}

func TestEncodeFrame_ManyFrames_WrapAndRemainDecodable(t *testing.T) {
	tcpKey := bytes.Repeat([]byte{0x06}, 32)
	var counter uint16

	const n = 0x10000
	frame, err := EncodeFrame([]byte{0x42}, MsgTypeEncryptedRequest, tcpKey, &counter)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	for i := 1; i < n; i++ {
		if _, err := EncodeFrame([]byte{0x42}, MsgTypeEncryptedRequest, tcpKey, &counter); err != nil {
			t.Fatalf("EncodeFrame #%d: %v", i, err)
		}
	}
	if counter != 0 {
		t.Fatalf("counter after %d frames = %d, want 0", n, counter)
	}

	frames, _, err := DecodeFrames(frame, tcpKey)
	if err != nil || len(frames) != 1 {
		t.Fatalf("first frame should still decode after counter wrapped: frames=%v err=%v", frames, err)
	}
}
