package presentation

import (
	"context"

	"carbonvpn/application/tun"
	"carbonvpn/infrastructure/listeners/tcp_listener"
	"carbonvpn/infrastructure/listeners/udp_listener"
	"carbonvpn/infrastructure/logging"
	pal "carbonvpn/infrastructure/PAL/linux/tun"
	"carbonvpn/infrastructure/settings"
	"carbonvpn/infrastructure/tunnel/dispatch"
	"carbonvpn/infrastructure/tunnel/protocol"
)

// StartServer brings up the virtual interface, binds the transport and runs
// the server event core until ctx is cancelled.
func StartServer(ctx context.Context, conf settings.Settings, layer tun.Layer, log *logging.LogLogger) error {
	if err := conf.ValidateMaterial(); err != nil {
		return err
	}
	conf.ResolveHeartbeat()

	device, err := pal.Open(conf.InterfaceName, layer, false)
	if err != nil {
		return err
	}

	configurator := pal.NewConfigurator(device.Name())
	if err := configurator.Configure(conf.Router.String(), conf.Netmask.String(), conf.MTU); err != nil {
		_ = device.Close()
		return err
	}

	engine := protocol.NewServerEngine(conf, device, log)

	var core *dispatch.Server
	switch conf.Protocol {
	case settings.TCP:
		listener, listenErr := tcp_listener.NewTcpListener(conf.Port)
		if listenErr != nil {
			_ = device.Close()
			return listenErr
		}
		core = dispatch.NewTCPServer(conf, device, layer, engine, listener, log)
	default:
		listener, listenErr := udp_listener.NewUdpListener(conf.Port)
		if listenErr != nil {
			_ = device.Close()
			return listenErr
		}
		core = dispatch.NewUDPServer(conf, device, layer, engine, listener, log)
	}

	log.Printf("starting events")
	return core.Run(ctx)
}
