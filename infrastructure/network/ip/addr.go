package ip

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// NextAddr returns the IPv4 address `increment` hosts above base as an owned
// value. The server assigns client tunnel addresses as router + index.
func NextAddr(base netip.Addr, increment int) (netip.Addr, error) {
	if !base.Is4() {
		return netip.Addr{}, fmt.Errorf("only IPv4 supported: %s", base)
	}
	arr := base.As4()
	n := binary.BigEndian.Uint32(arr[:]) + uint32(increment)

	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	return netip.AddrFrom4(b), nil
}

// PutAddr4 writes an IPv4 address into a 4-byte big-endian wire field.
func PutAddr4(dst []byte, addr netip.Addr) error {
	if !addr.Is4() || len(dst) < 4 {
		return fmt.Errorf("cannot encode %s into a 4-byte field", addr)
	}
	arr := addr.As4()
	copy(dst, arr[:])
	return nil
}

// Addr4 reads a 4-byte big-endian wire field as an IPv4 address.
func Addr4(src []byte) (netip.Addr, error) {
	if len(src) < 4 {
		return netip.Addr{}, fmt.Errorf("short IPv4 field: %d bytes", len(src))
	}
	var b [4]byte
	copy(b[:], src)
	return netip.AddrFrom4(b), nil
}
