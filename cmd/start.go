package cmd

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/tvremote/controller"
	"github.com/luma/tvremote/server"
	"github.com/luma/tvremote/storage"
)

var (
	// The host to listen on
	host string

	// The port to listen for http requests on
	httpPort int

	// Start discovering as soon as the bridge is up
	discoverOnStart bool
)

func init() {
	flags := StartCmd.PersistentFlags()

	flags.IntVarP(&httpPort, "port", "p", 0, "The port to listen to HTTP requests on (default from config, 7362)")
	flags.StringVarP(&host, "host", "a", "", "The host to listen on (default from config, 127.0.0.1)")
	flags.BoolVar(&discoverOnStart, "discover", true, "Start discovering receivers on start up")
}

var StartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the HTTP bridge for remote control user interfaces",
	Long: `Start the HTTP bridge for remote control user interfaces

Usage
	tvremote start --port 7362

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer signalStop()

		conf, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync() // nolint:errcheck

		if host != "" {
			conf.HTTPHost = host
		}
		if httpPort != 0 {
			conf.HTTPPort = httpPort
		}

		ctrl := controller.New(
			newAggregator(conf, log),
			newSession(conf, log),
			storage.NewInmemoryStore(log.Named("storage")),
			controller.Options{
				ServiceType: conf.ServiceType,
				Log:         log.Named("controller"),
			},
		)

		if err := ctrl.Start(ctx); err != nil {
			return err
		}

		srv := server.New(ctrl, server.Options{
			Host:      conf.HTTPHost,
			Port:      conf.HTTPPort,
			Reuseport: conf.Reuseport,
			DebugHTTP: conf.DebugHTTP,
			Log:       log.Named("http"),
		})

		if err := srv.Start(ctx); err != nil {
			ctrl.Close() // nolint:errcheck
			return err
		}

		if discoverOnStart {
			if err := ctrl.StartDiscovery(ctx); err != nil {
				log.Warn("Discovery is unavailable, connect by address instead", zap.Error(err))
			}
		}

		log.Info("Started",
			zap.Any("config", conf),
			zap.Stringer("addr", srv.Addr()))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
		}

		if err := ctrl.Close(); err != nil {
			log.Error("Controller did not close cleanly", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}
