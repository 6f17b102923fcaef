package ip

import (
	"fmt"
	"net/netip"

	"golang.org/x/net/ipv4"
)

// SourceAddr parses the source address of a plaintext IPv4 packet read from
// the virtual interface. The dispatcher uses it to route outbound traffic to
// the session owning the address.
func SourceAddr(packet []byte) (netip.Addr, error) {
	hdr, err := ipv4.ParseHeader(packet)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("failed to parse IPv4 header: %w", err)
	}
	addr, ok := netip.AddrFromSlice(hdr.Src.To4())
	if !ok {
		return netip.Addr{}, fmt.Errorf("packet has no IPv4 source")
	}
	return addr, nil
}
