//go:build linux

// Package tun creates and configures Linux TUN/TAP devices through the
// clone device and the interface ioctls.
package tun

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	apptun "carbonvpn/application/tun"
)

const tunClonePath = "/dev/net/tun"

type ifReqFlags struct {
	Name  [unix.IFNAMSIZ]byte
	Flags uint16
	_     [22]byte
}

// device wraps the clone-device file descriptor.
type device struct {
	file       *os.File
	name       string
	packetInfo bool
}

// Open creates (or attaches to) the named TUN or TAP interface. With
// packetInfo set, every read is prefixed with the kernel's 4-byte
// packet-info header.
func Open(name string, layer apptun.Layer, packetInfo bool) (apptun.Device, error) {
	file, err := os.OpenFile(tunClonePath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("cannot create interface: %w", err)
	}

	var req ifReqFlags
	copy(req.Name[:unix.IFNAMSIZ-1], name)
	req.Flags = unix.IFF_TUN
	if layer == apptun.L2 {
		req.Flags = unix.IFF_TAP
	}
	if !packetInfo {
		req.Flags |= unix.IFF_NO_PI
	}

	if err := ioctl(file.Fd(), unix.TUNSETIFF, unsafe.Pointer(&req)); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("ioctl TUNSETIFF failed for %s: %w", name, err)
	}

	return &device{
		file:       file,
		name:       cString(req.Name[:]),
		packetInfo: packetInfo,
	}, nil
}

func (d *device) Read(p []byte) (int, error)  { return d.file.Read(p) }
func (d *device) Write(p []byte) (int, error) { return d.file.Write(p) }
func (d *device) Close() error                { return d.file.Close() }
func (d *device) Name() string                { return d.name }
func (d *device) PacketInfo() bool            { return d.packetInfo }

func ioctl(fd uintptr, request uintptr, arg unsafe.Pointer) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, request, uintptr(arg)); errno != 0 {
		return errno
	}
	return nil
}

func cString(raw []byte) string {
	for i, b := range raw {
		if b == 0 {
			return string(raw[:i])
		}
	}
	return string(raw)
}
