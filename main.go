package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"carbonvpn/application/tun"
	"carbonvpn/infrastructure/logging"
	"carbonvpn/infrastructure/settings"
	"carbonvpn/infrastructure/tunnel/dispatch"
	"carbonvpn/presentation"
)

const version = "CarbonVPN 0.9.0"

type cliOptions struct {
	configFile  string
	ifname      string
	remote      string
	port        int
	tap         bool
	daemon      bool
	verbose     bool
	showVersion bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "carbonvpn [flags] [command]",
		Short:         "Point-to-multipoint VPN with a CA-rooted key infrastructure",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				fmt.Fprintln(cmd.OutOrStdout(), version)
				return nil
			}
			return runTunnel(cmd, opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configFile, "file", "f", "", "read options from config file")
	flags.StringVarP(&opts.ifname, "interface", "i", settings.DefaultInterfaceName, "use specific interface")
	flags.StringVarP(&opts.remote, "connect", "c", "", "connect to remote VPN server (enables client mode)")
	flags.IntVarP(&opts.port, "port", "p", settings.DefaultPort, "bind to port or connect to port")
	flags.BoolVarP(&opts.tap, "tap", "a", false, "use TAP interface (default: TUN)")
	flags.BoolVarP(&opts.daemon, "daemon", "d", false, "run daemon in background")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	flags.BoolVarP(&opts.showVersion, "version", "V", false, "print version")

	root.AddCommand(newGenCACommand(opts), newGenCertCommand(opts))
	return root
}

func newGenCACommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "genca",
		Short: "Generate CA certificate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return presentation.RunGenCA(cmd.OutOrStdout())
		},
	}
}

func newGenCertCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "gencert",
		Short: "Create and sign certificate",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadSettings(cmd, opts)
			if err != nil {
				return err
			}
			return presentation.RunGenCert(conf, cmd.OutOrStdout())
		},
	}
}

// loadSettings layers configuration: defaults, then the config file, then
// explicitly set flags.
func loadSettings(cmd *cobra.Command, opts *cliOptions) (settings.Settings, error) {
	conf := settings.NewDefaultSettings()

	if opts.configFile != "" {
		unknown, err := settings.NewFileReader(opts.configFile).Apply(&conf)
		if err != nil {
			return conf, err
		}
		for _, key := range unknown {
			fmt.Fprintf(cmd.ErrOrStderr(), "unknown option %q in %s\n", key, opts.configFile)
		}
	}

	flags := cmd.Root().PersistentFlags()
	if flags.Changed("interface") {
		conf.InterfaceName = opts.ifname
	}
	if flags.Changed("port") {
		conf.Port = opts.port
	}
	if opts.verbose {
		conf.Debug = true
	}
	if opts.daemon {
		conf.Daemonize = true
	}
	return conf, nil
}

func runTunnel(cmd *cobra.Command, opts *cliOptions) error {
	conf, err := loadSettings(cmd, opts)
	if err != nil {
		return err
	}

	log, err := logging.NewLogLogger(conf.LogFile, conf.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	if conf.Daemonize && !presentation.InDaemon() {
		pid, daemonErr := presentation.Daemonize()
		if daemonErr != nil {
			return fmt.Errorf("failed to fork into background: %w", daemonErr)
		}
		log.Printf("starting daemon in background, pid %d", pid)
		return nil
	}
	if presentation.InDaemon() {
		log.Quiet()
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGHUP)
	defer stop()

	layer := tun.L3
	if opts.tap {
		layer = tun.L2
	}

	if opts.remote != "" {
		err = presentation.StartClient(ctx, conf, opts.remote, layer, log)
	} else {
		err = presentation.StartServer(ctx, conf, layer, log)
	}

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		log.Printf("shutdown daemon")
		return nil
	case errors.Is(err, dispatch.ErrTransportClosed):
		// The single-session client ends cleanly when the server goes away.
		return nil
	default:
		return err
	}
}
