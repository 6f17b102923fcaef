package udp_listener

import (
	"fmt"
	"net"
	"net/netip"
)

type UdpListener struct {
	udp *net.UDPConn
}

// NewUdpListener binds the shared datagram socket all sessions send through.
func NewUdpListener(port int) (Listener, error) {
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve udp addr: %w", err)
	}

	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", port, err)
	}

	return &UdpListener{udp: conn}, nil
}

func (u *UdpListener) ReadFromUDPAddrPort(b []byte) (int, netip.AddrPort, error) {
	return u.udp.ReadFromUDPAddrPort(b)
}

func (u *UdpListener) WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error) {
	return u.udp.WriteToUDPAddrPort(b, addr)
}

func (u *UdpListener) Close() error {
	return u.udp.Close()
}
