//go:build linux

package tun

import (
	"fmt"
	"net/netip"
	"unsafe"

	"golang.org/x/sys/unix"

	apptun "carbonvpn/application/tun"
)

type ifReqAddr struct {
	Name [unix.IFNAMSIZ]byte
	Addr unix.RawSockaddrInet4
	_    [8]byte
}

type ifReqMTU struct {
	Name [unix.IFNAMSIZ]byte
	MTU  int32
	_    [20]byte
}

// Configurator assigns address, netmask and MTU to an interface and brings
// it up, through the SIOCSIF* ioctls on a throwaway AF_INET socket.
type Configurator struct {
	ifname string
}

func NewConfigurator(ifname string) *Configurator {
	return &Configurator{ifname: ifname}
}

var _ apptun.Configurator = (*Configurator)(nil)

func (c *Configurator) Configure(addr, netmask string, mtu int) error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return fmt.Errorf("cannot create socket: %w", err)
	}
	defer func() { _ = unix.Close(fd) }()

	if err := c.setAddr(fd, unix.SIOCSIFADDR, addr); err != nil {
		return fmt.Errorf("cannot set ip address: %w", err)
	}
	if err := c.setAddr(fd, unix.SIOCSIFNETMASK, netmask); err != nil {
		return fmt.Errorf("cannot set netmask: %w", err)
	}
	if mtu > 0 {
		if err := c.setMTU(fd, mtu); err != nil {
			return fmt.Errorf("cannot set MTU: %w", err)
		}
	}
	if err := c.bringUp(fd); err != nil {
		return fmt.Errorf("cannot set interface: %w", err)
	}
	return nil
}

func (c *Configurator) setAddr(fd int, request uintptr, value string) error {
	parsed, err := netip.ParseAddr(value)
	if err != nil || !parsed.Is4() {
		return fmt.Errorf("invalid IPv4 address: %q", value)
	}

	var req ifReqAddr
	copy(req.Name[:unix.IFNAMSIZ-1], c.ifname)
	req.Addr.Family = unix.AF_INET
	req.Addr.Addr = parsed.As4()

	return ioctl(uintptr(fd), request, unsafe.Pointer(&req))
}

func (c *Configurator) setMTU(fd, mtu int) error {
	var req ifReqMTU
	copy(req.Name[:unix.IFNAMSIZ-1], c.ifname)
	req.MTU = int32(mtu)

	return ioctl(uintptr(fd), unix.SIOCSIFMTU, unsafe.Pointer(&req))
}

func (c *Configurator) bringUp(fd int) error {
	var req ifReqFlags
	copy(req.Name[:unix.IFNAMSIZ-1], c.ifname)

	if err := ioctl(uintptr(fd), unix.SIOCGIFFLAGS, unsafe.Pointer(&req)); err != nil {
		return err
	}
	req.Flags |= unix.IFF_UP | unix.IFF_RUNNING
	return ioctl(uintptr(fd), unix.SIOCSIFFLAGS, unsafe.Pointer(&req))
}
