package tun

import "io"

// Layer selects between an IP (TUN) and an Ethernet (TAP) virtual interface.
type Layer uint8

const (
	L3 Layer = iota
	L2
)

// Device is a readable/writable virtual network interface.
type Device interface {
	io.ReadWriteCloser
	Name() string
	// PacketInfo reports whether reads are prefixed with the kernel's
	// 4-byte packet-info header.
	PacketInfo() bool
}

// Configurator assigns addressing to a virtual interface. The client side
// applies it once the server hands out a tunnel address.
type Configurator interface {
	Configure(addr, netmask string, mtu int) error
}
