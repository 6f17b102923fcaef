package wire

import "errors"

var (
	// ErrBadMagic marks a frame that does not start with the packet magic;
	// such frames are dropped without touching session state.
	ErrBadMagic = errors.New("invalid packet magic")
	// ErrShortFrame marks a header or body shorter than its declared length.
	ErrShortFrame = errors.New("short frame")
	// ErrBodyTooLarge guards the fixed receive buffers.
	ErrBodyTooLarge = errors.New("frame body exceeds buffer size")
)
