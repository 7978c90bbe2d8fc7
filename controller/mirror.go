package controller

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/tvremote/client"
	"github.com/luma/tvremote/discovery"
)

func (c *Controller) mirrorDiscovery(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-c.aggregator.Events():
			c.applyDiscovery(ctx, ev)
		}
	}
}

func (c *Controller) applyDiscovery(ctx context.Context, ev discovery.Event) {
	var err error

	switch ev.Type {
	case discovery.EventDiscoveryStarted:
		err = c.set(ctx,
			PathDiscoveryActive, true,
			PathDiscoveryService, ev.ServiceType)
		c.del(ctx, PathDiscoveryError)

	case discovery.EventDevicesChanged:
		devices := ev.Devices
		if devices == nil {
			devices = []discovery.Device{}
		}
		err = c.set(ctx, PathDevices, devices)

	case discovery.EventDiscoveryStopped:
		err = c.set(ctx, PathDiscoveryActive, false)

	case discovery.EventDiscoveryStartFailed:
		err = c.set(ctx,
			PathDiscoveryActive, false,
			PathDiscoveryError, errorString(ev.Err))

	case discovery.EventServiceFound, discovery.EventResolveFailed:
		// Nothing to keep, the device set only holds resolved services
	}

	if err != nil {
		c.log.Warn("Failed to record discovery event", zap.Stringer("event", ev.Type), zap.Error(err))
	}
}

func (c *Controller) mirrorSession(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-c.session.Events():
			c.applySession(ctx, ev)
		}
	}
}

func (c *Controller) applySession(ctx context.Context, ev client.Event) {
	var err error

	switch ev.Type {
	case client.EventStateChanged:
		err = c.set(ctx,
			PathSessionState, ev.State.String(),
			PathSessionID, ev.SessionID,
			PathSessionHost, ev.Host,
			PathSessionPort, ev.Port)

		if ev.Err != nil {
			err = multierr.Append(err, c.set(ctx, PathSessionError, ev.Err.Error()))
		} else if ev.State != client.StateDisconnected {
			c.del(ctx, PathSessionError)
		}

		if ev.State == client.StateDisconnected || ev.State == client.StateConnecting {
			c.del(ctx, PathSessionPairingCode)
		}

	case client.EventPairingCode:
		err = c.set(ctx, PathSessionPairingCode, ev.PairingCode)
	}

	if err != nil {
		c.log.Warn("Failed to record session event", zap.Stringer("state", ev.State), zap.Error(err))
	}
}

// set writes path/value pairs in order.
func (c *Controller) set(ctx context.Context, pairs ...interface{}) error {
	for n := 0; n+1 < len(pairs); n += 2 {
		if err := c.store.Set(ctx, pairs[n].(string), pairs[n+1]); err != nil {
			return err
		}
	}

	return nil
}

func (c *Controller) del(ctx context.Context, path string) {
	if err := c.store.Delete(ctx, path); err != nil {
		c.log.Warn("Failed to clear state", zap.String("path", path), zap.Error(err))
	}
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
