package wire

import (
	"encoding/binary"
	"fmt"
)

const (
	// Magic is the constant leading every frame on the wire.
	Magic uint16 = 0xE460

	NonceSize = 24
	// HeaderSize is the packed header: magic(2) + counter(4) + length(2) +
	// mode(1) + nonce(24).
	HeaderSize = 2 + 4 + 2 + 1 + NonceSize

	// MaxBodySize bounds a frame body; sized for a full tunnelled packet
	// plus the AEAD tag.
	MaxBodySize = 2048 + 16
)

// Header is the fixed frame header, big-endian on the wire.
//
// PacketCnt carries the sender's remaining counter value at send time.
// Nonce is meaningful only for modes that carry an encrypted body.
type Header struct {
	PacketCnt uint32
	DataLen   uint16
	Mode      Mode
	Nonce     [NonceSize]byte
}

func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint16(buf[0:2], Magic)
	binary.BigEndian.PutUint32(buf[2:6], h.PacketCnt)
	binary.BigEndian.PutUint16(buf[6:8], h.DataLen)
	buf[8] = byte(h.Mode)
	copy(buf[9:], h.Nonce[:])
	return buf, nil
}

func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return ErrShortFrame
	}
	if binary.BigEndian.Uint16(data[0:2]) != Magic {
		return ErrBadMagic
	}

	h.PacketCnt = binary.BigEndian.Uint32(data[2:6])
	h.DataLen = binary.BigEndian.Uint16(data[6:8])
	h.Mode = Mode(data[8])
	copy(h.Nonce[:], data[9:HeaderSize])

	if int(h.DataLen) > MaxBodySize {
		return fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, h.DataLen)
	}
	return nil
}
