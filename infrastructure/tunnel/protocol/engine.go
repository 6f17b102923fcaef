package protocol

import (
	"io"
	"net/netip"

	"carbonvpn/application/logging"
	"carbonvpn/application/tun"
	"carbonvpn/infrastructure/cryptography/envelope"
	"carbonvpn/infrastructure/settings"
)

// Engine drives the session protocol for one endpoint: it interprets
// inbound frames against a session record and emits the frames the state
// machine calls for. It runs entirely on the dispatcher goroutine.
type Engine struct {
	server bool

	identity    []byte
	privateKey  *[envelope.KeySize]byte
	caCert      []byte
	caPublicKey *[envelope.SignPublicKeySize]byte

	router  netip.Addr
	netmask netip.Addr
	mtu     int

	tunWriter    io.Writer
	configurator tun.Configurator
	log          logging.Debugger
}

// NewServerEngine builds the server-side engine. Inbound plaintext is
// written to tunWriter.
func NewServerEngine(conf settings.Settings, tunWriter io.Writer, log logging.Debugger) *Engine {
	return &Engine{
		server:      true,
		identity:    conf.Identity,
		privateKey:  conf.PrivateKey,
		caCert:      conf.CACert,
		caPublicKey: conf.CAPublicKey,
		router:      conf.Router,
		netmask:     conf.Netmask,
		tunWriter:   tunWriter,
		log:         log,
	}
}

// NewClientEngine builds the client-side engine. The configurator applies
// the server-assigned address to the virtual interface.
func NewClientEngine(conf settings.Settings, tunWriter io.Writer, configurator tun.Configurator, log logging.Debugger) *Engine {
	return &Engine{
		server:       false,
		identity:     conf.Identity,
		privateKey:   conf.PrivateKey,
		caCert:       conf.CACert,
		caPublicKey:  conf.CAPublicKey,
		mtu:          conf.MTU,
		tunWriter:    tunWriter,
		configurator: configurator,
		log:          log,
	}
}
