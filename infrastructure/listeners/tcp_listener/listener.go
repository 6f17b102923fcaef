package tcp_listener

import (
	"fmt"
	"net"
)

type TcpListener struct {
	listener net.Listener
}

// NewTcpListener binds the stream transport socket.
func NewTcpListener(port int) (Listener, error) {
	listener, err := net.Listen("tcp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", port, err)
	}
	return &TcpListener{listener: listener}, nil
}

func (t *TcpListener) Accept() (net.Conn, error) {
	return t.listener.Accept()
}

func (t *TcpListener) Close() error {
	return t.listener.Close()
}
