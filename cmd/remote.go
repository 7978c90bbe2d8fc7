package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/luma/tvremote/client"
	"github.com/luma/tvremote/discovery"
	"github.com/luma/tvremote/internal/keyboard"
	"github.com/luma/tvremote/protocol"
)

// Used when the config leaves the handshake unbounded, a one-shot command
// should not wait forever for a receiver that never answers.
const remoteHandshakeTimeout = 10 * time.Second

var (
	remoteHost     string
	remotePort     int
	remoteDevice   string
	remoteSecret   string
	remoteFind     time.Duration
	remoteLinger   time.Duration
	remoteInteract bool
)

func init() {
	flags := RemoteCmd.Flags()

	flags.StringVar(&remoteHost, "host", "", "Address of the receiver")
	flags.IntVar(&remotePort, "port", protocol.DefaultPort, "Port of the receiver")
	flags.StringVarP(&remoteDevice, "device", "d", "", "Service name of a receiver to discover instead of --host")
	flags.StringVar(&remoteSecret, "secret", "", "Pairing secret to send if the receiver asks for one")
	flags.DurationVar(&remoteFind, "discover-timeout", 10*time.Second, "How long to look for --device")
	flags.DurationVar(&remoteLinger, "linger", 250*time.Millisecond, "How long to keep the connection open after the last key")
	flags.BoolVarP(&remoteInteract, "interactive", "i", false, "Read keys from the terminal")
}

var RemoteCmd = &cobra.Command{
	Use:   "remote [action...]",
	Short: "Send remote control keys to a receiver",
	Long: `Send remote control keys to a receiver

Actions are key names such as HOME, DPAD_UP or VOLUME_MUTE, in any case, or
one of the short aliases (up, down, left, right, ok, back, home, menu, volup,
voldown, mute, play, next, prev, power).

Usage
	tvremote remote --host 192.168.1.20 home down down ok
	tvremote remote --device "Living Room" -i

`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !remoteInteract {
			return errors.New("Nothing to send, give actions or use --interactive")
		}

		ctx, signalStop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer signalStop()

		conf, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync() // nolint:errcheck

		if conf.HandshakeTimeout == 0 {
			conf.HandshakeTimeout = remoteHandshakeTimeout
		}

		host, port := remoteHost, remotePort
		if remoteDevice != "" {
			d, err := findDevice(ctx, newAggregator(conf, log), conf.ServiceType, remoteDevice)
			if err != nil {
				return err
			}
			host, port = d.Host, d.Port
		}

		if host == "" {
			return errors.New("Either --host or --device is required")
		}

		session := newSession(conf, log)
		defer session.Disconnect() // nolint:errcheck

		if err := session.Connect(ctx, host, port); err != nil {
			return err
		}

		if err := awaitAuthentication(ctx, session, cmd.ErrOrStderr()); err != nil {
			return err
		}

		for _, name := range args {
			action, known := protocol.ParseAction(name)
			if !known {
				log.Warn("Unknown action, the receiver will ignore it", zap.String("action", name))
			}

			if err := session.SendKey(ctx, action); err != nil {
				return err
			}
		}

		if remoteInteract {
			if err := interact(ctx, session, os.Stdin, cmd.OutOrStdout(), log); err != nil {
				return err
			}
		}

		// Key events are fire and forget, give the write queue time to drain
		select {
		case <-time.After(remoteLinger):
		case <-ctx.Done():
		}

		return nil
	},
}

func findDevice(ctx context.Context, aggregator *discovery.Aggregator, serviceType, name string) (discovery.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, remoteFind)
	defer cancel()

	if err := aggregator.StartDiscovery(ctx, serviceType); err != nil {
		return discovery.Device{}, err
	}
	defer aggregator.StopDiscovery() // nolint:errcheck

	for {
		select {
		case <-ctx.Done():
			return discovery.Device{}, fmt.Errorf("No receiver named %q found within %s", name, remoteFind)

		case ev := <-aggregator.Events():
			if ev.Type == discovery.EventDiscoveryStartFailed {
				return discovery.Device{}, ev.Err
			}

			if d, ok := aggregator.Lookup(name); ok {
				return d, nil
			}
		}
	}
}

// awaitAuthentication waits for the receiver to accept the pairing, sending
// the pairing secret when one was given.
func awaitAuthentication(ctx context.Context, session *client.Session, out io.Writer) error {
	if remoteSecret != "" {
		if err := session.SendPairingSecret(ctx, remoteSecret); err != nil {
			return err
		}
	}

	if session.Authenticated() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-session.Events():
			switch {
			case ev.Type == client.EventPairingCode:
				fmt.Fprintf(out, "The receiver shows pairing code %s\n", ev.PairingCode)

			case ev.State == client.StateAuthenticated:
				return nil

			case ev.State == client.StateDisconnected:
				if ev.Err != nil {
					return ev.Err
				}
				return client.ErrNotConnected
			}
		}
	}
}

// interact puts the terminal in raw mode and sends a key for every bound key
// press until a quit key, the session drops, or ctx ends.
func interact(ctx context.Context, session *client.Session, in *os.File, out io.Writer, log *zap.Logger) error {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("--interactive needs a terminal on stdin")
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return err
	}
	defer term.Restore(fd, oldState) // nolint:errcheck

	for _, h := range keyboard.Help {
		fmt.Fprintf(out, "  %-16s %s\r\n", h.Keys, h.Action)
	}

	reads := make(chan []byte)
	go func() {
		buf := make([]byte, 64)
		for {
			n, err := in.Read(buf)
			if err != nil {
				close(reads)
				return
			}

			select {
			case reads <- append([]byte(nil), buf[:n]...):
			case <-ctx.Done():
				return
			}
		}
	}()

	var decoder keyboard.Decoder

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev := <-session.Events():
			if ev.Type == client.EventStateChanged && ev.State == client.StateDisconnected {
				if ev.Err != nil {
					return ev.Err
				}
				return client.ErrNotConnected
			}

		case data, ok := <-reads:
			if !ok {
				return nil
			}

			for _, key := range decoder.Feed(data) {
				if key.Quit {
					return nil
				}

				if err := session.SendKey(ctx, key.Action); err != nil {
					return err
				}

				log.Debug("Sent key", zap.String("action", string(key.Action)))
			}
		}
	}
}
