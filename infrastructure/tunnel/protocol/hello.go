package protocol

import (
	"fmt"
	"net/netip"

	"carbonvpn/infrastructure/cryptography/envelope"
	"carbonvpn/infrastructure/network/ip"
)

// serverHelloSize is an identity envelope followed by the assigned tunnel
// address and netmask, both 4-byte big-endian IPv4.
const serverHelloSize = envelope.IdentitySize + 4 + 4

// ServerHello is the server's handshake reply: its identity plus the
// client's tunnel addressing.
type ServerHello struct {
	Identity []byte
	Addr     netip.Addr
	Netmask  netip.Addr
}

func (s *ServerHello) MarshalBinary() ([]byte, error) {
	if len(s.Identity) != envelope.IdentitySize {
		return nil, fmt.Errorf("invalid identity envelope length: %d", len(s.Identity))
	}

	buf := make([]byte, serverHelloSize)
	copy(buf, s.Identity)
	if err := ip.PutAddr4(buf[envelope.IdentitySize:], s.Addr); err != nil {
		return nil, err
	}
	if err := ip.PutAddr4(buf[envelope.IdentitySize+4:], s.Netmask); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *ServerHello) UnmarshalBinary(data []byte) error {
	if len(data) != serverHelloSize {
		return fmt.Errorf("invalid server hello length: %d", len(data))
	}

	s.Identity = data[:envelope.IdentitySize]

	addr, err := ip.Addr4(data[envelope.IdentitySize:])
	if err != nil {
		return err
	}
	mask, err := ip.Addr4(data[envelope.IdentitySize+4:])
	if err != nil {
		return err
	}
	s.Addr, s.Netmask = addr, mask
	return nil
}
