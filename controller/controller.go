// Package controller ties discovery and the remote session together behind
// one API, and mirrors what they report into a state store.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/tvremote/client"
	"github.com/luma/tvremote/discovery"
	"github.com/luma/tvremote/protocol"
	"github.com/luma/tvremote/storage"
)

var ErrUnknownDevice = errors.New("No device with that name has been discovered")

// Store paths written by the controller.
const (
	PathDevices            = "devices"
	PathDiscoveryActive    = "discovery.active"
	PathDiscoveryService   = "discovery.serviceType"
	PathDiscoveryError     = "discovery.error"
	PathSessionState       = "session.state"
	PathSessionID          = "session.id"
	PathSessionHost        = "session.host"
	PathSessionPort        = "session.port"
	PathSessionPairingCode = "session.pairingCode"
	PathSessionError       = "session.error"
)

type Options struct {
	ServiceType string
	Log         *zap.Logger
}

type Controller struct {
	aggregator *discovery.Aggregator
	session    *client.Session
	store      storage.Store
	opts       Options
	log        *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New returns a Controller. It takes over the event streams of aggregator and
// session, nothing else may read them.
func New(aggregator *discovery.Aggregator, session *client.Session, store storage.Store, opts Options) *Controller {
	if opts.ServiceType == "" {
		opts.ServiceType = protocol.DefaultServiceType
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	return &Controller{
		aggregator: aggregator,
		session:    session,
		store:      store,
		opts:       opts,
		log:        opts.Log,
	}
}

// Start seeds the store and begins mirroring events until ctx ends or Close
// is called.
func (c *Controller) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	seed := map[string]interface{}{
		PathDevices:          []discovery.Device{},
		PathDiscoveryActive:  false,
		PathDiscoveryService: c.opts.ServiceType,
		PathSessionState:     client.StateDisconnected.String(),
	}
	for path, value := range seed {
		if err := c.store.Set(ctx, path, value); err != nil {
			return fmt.Errorf("Failed to seed state: %w", err)
		}
	}

	c.wg.Add(2)
	go c.mirrorDiscovery(ctx)
	go c.mirrorSession(ctx)

	return nil
}

// Close stops discovery, disconnects, and closes the store.
func (c *Controller) Close() (err error) {
	c.closeOnce.Do(func() {
		err = multierr.Combine(
			c.aggregator.StopDiscovery(),
			c.session.Disconnect(),
		)

		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()

		err = multierr.Append(err, c.store.Close())
	})

	return err
}

func (c *Controller) Store() storage.Store {
	return c.store
}

func (c *Controller) StartDiscovery(ctx context.Context) error {
	return c.aggregator.StartDiscovery(ctx, c.opts.ServiceType)
}

func (c *Controller) StopDiscovery() error {
	return c.aggregator.StopDiscovery()
}

func (c *Controller) Discovering() bool {
	return c.aggregator.Discovering()
}

func (c *Controller) Devices() []discovery.Device {
	return c.aggregator.Devices()
}

func (c *Controller) Connect(ctx context.Context, host string, port int) error {
	if port == 0 {
		port = protocol.DefaultPort
	}

	return c.session.Connect(ctx, host, port)
}

// ConnectDevice connects to a discovered device by its service name.
func (c *Controller) ConnectDevice(ctx context.Context, serviceName string) error {
	d, ok := c.aggregator.Lookup(serviceName)
	if !ok {
		return fmt.Errorf("%q: %w", serviceName, ErrUnknownDevice)
	}

	return c.session.Connect(ctx, d.Host, d.Port)
}

func (c *Controller) Disconnect() error {
	return c.session.Disconnect()
}

// Press sends a short press of the named action. Names are resolved with
// protocol.ParseAction, unknown names go out with key code 0.
func (c *Controller) Press(ctx context.Context, name string) error {
	return c.Key(ctx, name, protocol.Short)
}

func (c *Controller) Key(ctx context.Context, name string, direction protocol.Direction) error {
	action, _ := protocol.ParseAction(name)
	return c.session.SendKeyEvent(ctx, action, direction)
}

func (c *Controller) SendPairingSecret(ctx context.Context, secret string) error {
	return c.session.SendPairingSecret(ctx, secret)
}

// Status is a point in time view of the session.
type Status struct {
	ID          string       `json:"id,omitempty"`
	State       client.State `json:"state"`
	Endpoint    string       `json:"endpoint,omitempty"`
	PairingCode string       `json:"pairingCode,omitempty"`
}

func (c *Controller) Status() Status {
	code, _ := c.session.PairingCode()

	return Status{
		ID:          c.session.ID(),
		State:       c.session.State(),
		Endpoint:    c.session.Endpoint(),
		PairingCode: code,
	}
}

// State returns the raw JSON at path in the state document.
func (c *Controller) State(ctx context.Context, path string) ([]byte, error) {
	return c.store.Get(ctx, path)
}
