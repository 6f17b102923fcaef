package presentation

import (
	"context"
	"fmt"
	"net"

	"carbonvpn/application/tun"
	"carbonvpn/infrastructure/logging"
	pal "carbonvpn/infrastructure/PAL/linux/tun"
	"carbonvpn/infrastructure/settings"
	"carbonvpn/infrastructure/tunnel/dispatch"
	"carbonvpn/infrastructure/tunnel/protocol"
)

// StartClient resolves the server, dials the transport and runs the client
// event core until ctx is cancelled or the server disconnects.
func StartClient(ctx context.Context, conf settings.Settings, remote string, layer tun.Layer, log *logging.LogLogger) error {
	if err := conf.ValidateMaterial(); err != nil {
		return err
	}

	device, err := pal.Open(conf.InterfaceName, layer, false)
	if err != nil {
		return err
	}

	network := "udp4"
	if conf.Protocol == settings.TCP {
		network = "tcp4"
	}
	conn, err := net.Dial(network, net.JoinHostPort(remote, fmt.Sprintf("%d", conf.Port)))
	if err != nil {
		_ = device.Close()
		return fmt.Errorf("cannot connect to %s: %w", remote, err)
	}

	if conf.Protocol == settings.TCP {
		log.Printf("connected to server %s", conn.RemoteAddr())
	} else {
		log.Printf("using stateless connection")
	}

	configurator := pal.NewConfigurator(device.Name())
	engine := protocol.NewClientEngine(conf, device, configurator, log)
	core := dispatch.NewClient(conf, device, engine, conn, conf.Protocol == settings.UDP, log)

	log.Printf("starting events")
	return core.Run(ctx)
}
