package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// EncodeFrame renders a complete frame: header followed by body. Callers
// hand the result to the transport in one write so datagram transports emit
// one datagram per frame.
func EncodeFrame(h *Header, body []byte) ([]byte, error) {
	h.DataLen = uint16(len(body))
	buf, err := h.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(buf, body...), nil
}

// ReadFrame reads one frame from a byte stream: the fixed header, then
// exactly DataLen body bytes. The declared body is consumed even when the
// magic is wrong, so a frame dropped with ErrBadMagic leaves the stream
// aligned on the next frame boundary. A declared length over MaxBodySize is
// reported as ErrBodyTooLarge and its body is not read.
func ReadFrame(r io.Reader) (Header, []byte, error) {
	var h Header

	raw := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return h, nil, fmt.Errorf("failed to read frame header: %w", err)
	}

	dataLen := int(binary.BigEndian.Uint16(raw[6:8]))
	if dataLen > MaxBodySize {
		return h, nil, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, dataLen)
	}

	var body []byte
	if dataLen > 0 {
		body = make([]byte, dataLen)
		if _, err := io.ReadFull(r, body); err != nil {
			return h, nil, fmt.Errorf("failed to read frame body: %w", err)
		}
	}

	if err := h.UnmarshalBinary(raw); err != nil {
		return h, nil, err
	}
	return h, body, nil
}

// ParseDatagram splits a single datagram into header and body. The body is
// a view into the datagram buffer; callers copy it if it must outlive the
// read buffer.
func ParseDatagram(datagram []byte) (Header, []byte, error) {
	var h Header
	if err := h.UnmarshalBinary(datagram); err != nil {
		return h, nil, err
	}
	if len(datagram)-HeaderSize < int(h.DataLen) {
		return h, nil, ErrShortFrame
	}
	return h, datagram[HeaderSize : HeaderSize+int(h.DataLen)], nil
}
