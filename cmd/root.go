package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/tvremote/client"
	"github.com/luma/tvremote/cmd/gen"
	"github.com/luma/tvremote/discovery"
	"github.com/luma/tvremote/internal/env"
	"github.com/luma/tvremote/transport"
)

var (
	// Path of an optional TOML config file
	configPath string

	// Overrides the configured log level
	logLevel string

	// Dump packets to the log
	trace bool
)

var RootCmd = &cobra.Command{
	Use:   "tvremote",
	Short: "Discover and control Android TV receivers on the local network",
	Long: `tvremote finds receivers that announce the remote control service over
mDNS and sends them remote control key events.

Use "tvremote [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := RootCmd.PersistentFlags()

	flags.StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.BoolVar(&trace, "trace", false, "Dump protocol packets to the log")

	RootCmd.AddCommand(StartCmd)
	RootCmd.AddCommand(DiscoverCmd)
	RootCmd.AddCommand(RemoteCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger every command uses.
func setup(cmd *cobra.Command) (*env.Config, *zap.Logger, error) {
	conf, err := env.LoadConfig(cmd.Context(), configPath)
	if err != nil {
		return nil, nil, err
	}

	if logLevel != "" {
		conf.LogLevel = logLevel
	}

	log, err := env.MakeLogger(conf.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("Invalid log level %q: %w", conf.LogLevel, err)
	}

	return conf, log, nil
}

func newDialer(conf *env.Config, log *zap.Logger) transport.Dialer {
	return transport.NewTCPDialer(transport.Options{
		DialTimeout: conf.DialTimeout,
		IdleTimeout: conf.IdleTimeout,
		Trace:       trace,
		Log:         log.Named("transport"),
	})
}

func newSession(conf *env.Config, log *zap.Logger) *client.Session {
	return client.New(newDialer(conf, log), client.Options{
		ClientName:       conf.ClientName,
		HandshakeTimeout: conf.HandshakeTimeout,
		Log:              log.Named("session"),
	})
}

func newAggregator(conf *env.Config, log *zap.Logger) *discovery.Aggregator {
	provider := discovery.NewZeroconf(discovery.ZeroconfOptions{
		Domain:         conf.Domain,
		BrowseWindow:   conf.BrowseWindow,
		LostAfter:      conf.LostAfter,
		ResolveTimeout: conf.ResolveTimeout,
		Log:            log.Named("zeroconf"),
	})

	return discovery.NewAggregator(provider, log.Named("discovery"))
}
