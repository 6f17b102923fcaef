package settings

import (
	"net/netip"
	"time"

	"carbonvpn/infrastructure/cryptography/envelope"
)

const (
	DefaultPort              = 5059
	DefaultInterfaceName     = "tun0"
	DefaultRouterAddr        = "10.7.0.1"
	DefaultNetmask           = "255.255.255.0"
	DefaultMaxClients        = 20
	DefaultHeartbeatInterval = 1800 * time.Second
	DefaultLogFile           = "/var/log/carbonvpn.log"

	// BufferSize bounds a single plaintext packet read from the virtual
	// interface or decrypted from a STREAM frame.
	BufferSize = 2048
)

// Settings is the full runtime configuration: tunnel addressing, transport
// selection, timers and the certificate bundle. It is immutable once the
// event core starts.
type Settings struct {
	Port          int
	InterfaceName string
	// Router is the server-side base tunnel address; client n is assigned
	// Router + n.
	Router  netip.Addr
	Netmask netip.Addr
	MTU     int

	LogFile           string
	HeartbeatInterval time.Duration
	MaxClients        int
	Protocol          Protocol
	Debug             bool
	Daemonize         bool

	// Certificate bundle. CAPrivateKey is only present on issuer hosts.
	CACert       []byte
	CAPublicKey  *[envelope.SignPublicKeySize]byte
	CAPrivateKey *[envelope.SignSecretKeySize]byte
	Identity     []byte
	PrivateKey   *[envelope.KeySize]byte
}

// NewDefaultSettings returns the documented defaults; config file and flags
// override them.
func NewDefaultSettings() Settings {
	return Settings{
		Port:              DefaultPort,
		InterfaceName:     DefaultInterfaceName,
		Router:            netip.MustParseAddr(DefaultRouterAddr),
		Netmask:           netip.MustParseAddr(DefaultNetmask),
		LogFile:           DefaultLogFile,
		HeartbeatInterval: DefaultHeartbeatInterval,
		MaxClients:        DefaultMaxClients,
		Protocol:          UDP,
	}
}
