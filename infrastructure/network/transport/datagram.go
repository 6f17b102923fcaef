package transport

import (
	"net/netip"

	"carbonvpn/application/connection"
	"carbonvpn/infrastructure/listeners/udp_listener"
)

// DatagramTransport pairs the shared datagram socket with one peer's
// address. Closing it is a no-op: the socket belongs to the listener and
// outlives any single session.
type DatagramTransport struct {
	listener udp_listener.Listener
	peer     netip.AddrPort
}

func NewDatagramTransport(listener udp_listener.Listener, peer netip.AddrPort) connection.Transport {
	return &DatagramTransport{listener: listener, peer: peer}
}

func (d *DatagramTransport) Write(frame []byte) (int, error) {
	return d.listener.WriteToUDPAddrPort(frame, d.peer)
}

func (d *DatagramTransport) Close() error {
	return nil
}

func (d *DatagramTransport) RemoteAddr() string {
	return d.peer.String()
}
