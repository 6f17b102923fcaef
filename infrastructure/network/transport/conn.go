package transport

import (
	"net"

	"carbonvpn/application/connection"
)

// ConnTransport is a per-peer endpoint backed by an owned net.Conn: an
// accepted stream on the server, or the client's dialed socket (stream or
// connected datagram).
type ConnTransport struct {
	conn net.Conn
}

func NewConnTransport(conn net.Conn) connection.Transport {
	return &ConnTransport{conn: conn}
}

func (c *ConnTransport) Write(frame []byte) (int, error) {
	return c.conn.Write(frame)
}

func (c *ConnTransport) Close() error {
	return c.conn.Close()
}

func (c *ConnTransport) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
