package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/tvremote/discovery"
)

var (
	// How long to browse for
	discoverFor time.Duration

	// Print the final device set as JSON
	discoverJSON bool
)

func init() {
	flags := DiscoverCmd.Flags()

	flags.DurationVarP(&discoverFor, "timeout", "t", 10*time.Second, "How long to browse for receivers")
	flags.BoolVar(&discoverJSON, "json", false, "Print the receivers as JSON once browsing ends")
}

var DiscoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List the receivers on the local network",
	Long: `List the receivers on the local network

Usage
	tvremote discover --timeout 5s

`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer signalStop()

		conf, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync() // nolint:errcheck

		ctx, cancel := context.WithTimeout(ctx, discoverFor)
		defer cancel()

		devices, err := discover(ctx, newAggregator(conf, log), conf.ServiceType, func(d discovery.Device) {
			if !discoverJSON {
				fmt.Fprintf(cmd.OutOrStdout(), "%-32s %s\n", d.ServiceName, d.Endpoint())
			}
		})
		if err != nil {
			return err
		}

		if discoverJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(devices)
		}

		if len(devices) == 0 {
			log.Info("No receivers found", zap.Duration("timeout", discoverFor))
		}

		return nil
	},
}

// discover browses until ctx ends, calling found for each new device, and
// returns the device set at that point.
func discover(ctx context.Context, aggregator *discovery.Aggregator, serviceType string, found func(discovery.Device)) ([]discovery.Device, error) {
	if err := aggregator.StartDiscovery(ctx, serviceType); err != nil {
		return nil, err
	}
	defer aggregator.StopDiscovery() // nolint:errcheck

	seen := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return aggregator.Devices(), nil

		case ev := <-aggregator.Events():
			switch ev.Type {
			case discovery.EventDevicesChanged:
				for _, d := range ev.Devices {
					if !seen[d.Endpoint()] {
						seen[d.Endpoint()] = true
						found(d)
					}
				}

			case discovery.EventDiscoveryStartFailed:
				return aggregator.Devices(), ev.Err
			}
		}
	}
}
