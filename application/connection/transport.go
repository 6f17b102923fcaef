package connection

// Transport is a single peer's egress path: either an accepted/dialed byte
// stream or a shared datagram socket paired with the peer's address.
//
// Write must hand the full frame to the transport in one call so that
// datagram transports emit exactly one datagram per frame.
type Transport interface {
	Write(frame []byte) (int, error)
	// Close releases per-peer transport resources. Datagram transports
	// must not close the shared socket.
	Close() error
	RemoteAddr() string
}
