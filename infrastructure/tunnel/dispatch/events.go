package dispatch

import (
	"net"
	"net/netip"

	"carbonvpn/infrastructure/network/wire"
	"carbonvpn/infrastructure/tunnel/session"
)

// tun_pi flags word: the kernel sets the TAP bit for layer-2 frames when
// the interface was created with packet info enabled.
const tapFlag = 0x0002

// inboundFrame is one parsed frame handed to the dispatcher. Exactly one of
// sess (a server stream or the client's connection) or addr (the server's
// shared datagram socket) identifies its origin; sess is nil for frames read
// from the server's datagram socket.
type inboundFrame struct {
	sess *session.Session
	addr netip.AddrPort
	h    wire.Header
	body []byte
}

// accepted is a freshly accepted stream connection awaiting admission.
type accepted struct {
	conn net.Conn
}
