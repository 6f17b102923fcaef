package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	in := Header{
		PacketCnt: 2047,
		DataLen:   116,
		Mode:      Stream,
	}
	for i := range in.Nonce {
		in.Nonce[i] = byte(i)
	}

	raw, err := in.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if len(raw) != HeaderSize {
		t.Fatalf("expected %d header bytes, got %d", HeaderSize, len(raw))
	}
	if got := binary.BigEndian.Uint16(raw[0:2]); got != Magic {
		t.Fatalf("expected magic %#x on the wire, got %#x", Magic, got)
	}

	var out Header
	if err := out.UnmarshalBinary(raw); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}
}

func TestHeaderUnmarshal_BadMagic(t *testing.T) {
	h := Header{Mode: Ping}
	raw, _ := h.MarshalBinary()
	raw[0] = 0x00

	var out Header
	if err := out.UnmarshalBinary(raw); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestHeaderUnmarshal_Short(t *testing.T) {
	var out Header
	if err := out.UnmarshalBinary(make([]byte, HeaderSize-1)); !errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected ErrShortFrame, got %v", err)
	}
}

func TestHeaderUnmarshal_OversizedBody(t *testing.T) {
	h := Header{Mode: Stream, DataLen: MaxBodySize + 1}
	raw, _ := h.MarshalBinary()

	var out Header
	if err := out.UnmarshalBinary(raw); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
}

func TestReadFrame_Stream(t *testing.T) {
	body := []byte("encrypted bytes")
	frame, err := EncodeFrame(&Header{PacketCnt: 9, Mode: Stream}, body)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}

	h, got, err := ReadFrame(bytes.NewReader(frame))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if h.Mode != Stream || h.PacketCnt != 9 {
		t.Fatalf("unexpected header: %+v", h)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("body mismatch: %q", got)
	}
}

func TestReadFrame_ControlFrameHasNoBody(t *testing.T) {
	frame, err := EncodeFrame(&Header{PacketCnt: 1, Mode: Ping}, nil)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	if len(frame) != HeaderSize {
		t.Fatalf("control frame must be header only, got %d bytes", len(frame))
	}

	h, body, err := ReadFrame(bytes.NewReader(frame))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if h.Mode != Ping || body != nil {
		t.Fatalf("unexpected frame: %+v body=%v", h, body)
	}
}

func TestReadFrame_TruncatedBody(t *testing.T) {
	frame, _ := EncodeFrame(&Header{Mode: Stream}, []byte("full body"))
	if _, _, err := ReadFrame(bytes.NewReader(frame[:len(frame)-3])); err == nil {
		t.Fatal("expected an error for a truncated body")
	}
}

func TestParseDatagram(t *testing.T) {
	body := []byte{1, 2, 3, 4}
	frame, _ := EncodeFrame(&Header{PacketCnt: 5, Mode: Stream}, body)

	h, got, err := ParseDatagram(frame)
	if err != nil {
		t.Fatalf("ParseDatagram: %v", err)
	}
	if h.PacketCnt != 5 || !bytes.Equal(got, body) {
		t.Fatalf("unexpected parse result: %+v %v", h, got)
	}

	t.Run("TruncatedBody", func(t *testing.T) {
		if _, _, err := ParseDatagram(frame[:len(frame)-1]); !errors.Is(err, ErrShortFrame) {
			t.Fatalf("expected ErrShortFrame, got %v", err)
		}
	})
}

func TestReadFrame_BadMagicConsumesDeclaredBody(t *testing.T) {
	bad, _ := EncodeFrame(&Header{Mode: Stream}, []byte("dropped body"))
	bad[0] = 0x00
	good, _ := EncodeFrame(&Header{Mode: Ping}, nil)

	r := bytes.NewReader(append(bad, good...))

	if _, _, err := ReadFrame(r); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
	// The stream must still be aligned on the next frame.
	h, _, err := ReadFrame(r)
	if err != nil {
		t.Fatalf("expected the following frame to parse, got %v", err)
	}
	if h.Mode != Ping {
		t.Fatalf("expected PING after the dropped frame, got %s", h.Mode)
	}
}

func TestModeString(t *testing.T) {
	if Stream.String() != "STREAM" {
		t.Fatalf("unexpected mode name: %s", Stream)
	}
	if Mode(42).String() != "UNKNOWN" {
		t.Fatalf("unexpected mode name for 42: %s", Mode(42))
	}
}
