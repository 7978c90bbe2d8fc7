package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

const EventBufferSize = 255

// Aggregator turns a provider's found/resolved/lost callbacks into a set of
// devices, unique by host and port.
//
// Callbacks and API calls are serialized. Callbacks that belong to a discovery
// run that has since been stopped or restarted are ignored.
type Aggregator struct {
	provider Provider
	log      *zap.Logger

	mu           sync.Mutex
	run          uint64
	serviceType  string
	discovering  bool
	registration Registration
	cancelRun    context.CancelFunc
	devices      []Device

	// failed records the run that OnStartDiscoveryFailed ended, so a failure
	// reported while DiscoverServices is still running reaches its caller.
	failedRun uint64
	failedErr *StartFailedError

	events chan Event
}

// NewAggregator returns an Aggregator using provider. A nil provider stands
// for a platform without service discovery, StartDiscovery will always fail.
func NewAggregator(provider Provider, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}

	return &Aggregator{
		provider: provider,
		log:      log,
		events:   make(chan Event, EventBufferSize),
	}
}

// Events delivers discovery events. Events are dropped if the channel is full.
func (a *Aggregator) Events() <-chan Event {
	return a.events
}

// StartDiscovery clears the device set and starts discovering serviceType,
// stopping any discovery that is already running.
func (a *Aggregator) StartDiscovery(ctx context.Context, serviceType string) error {
	if a.provider == nil {
		a.log.Warn("Service discovery is not available", zap.String("serviceType", serviceType))

		a.mu.Lock()
		a.emitLocked(Event{
			Type:        EventDiscoveryStartFailed,
			ServiceType: serviceType,
			Code:        FailureInternalError,
			Err:         ErrPlatformUnsupported,
		})
		a.mu.Unlock()

		return ErrPlatformUnsupported
	}

	a.mu.Lock()
	prev, _ := a.detachLocked()

	a.run++
	run := a.run

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancelRun = cancel
	a.serviceType = serviceType
	a.discovering = true

	if len(a.devices) > 0 {
		a.devices = nil
		a.emitLocked(Event{Type: EventDevicesChanged, ServiceType: serviceType, Devices: []Device{}})
	}
	a.mu.Unlock()

	if prev != nil {
		if err := prev.Stop(); err != nil {
			a.log.Warn("Previous discovery did not stop cleanly", zap.Error(err))
		}
	}

	log := a.log.With(zap.String("serviceType", serviceType))
	log.Info("Starting discovery")

	reg, err := a.provider.DiscoverServices(ctx, serviceType, &runListener{a: a, run: run, ctx: runCtx})

	a.mu.Lock()

	if err != nil {
		if run == a.run {
			a.run++
			a.discovering = false
			a.cancelRun()
			a.cancelRun = nil
		}

		var startErr *StartFailedError
		if !errors.As(err, &startErr) {
			startErr = &StartFailedError{ServiceType: serviceType, Code: codeFor(err), Err: err}
		}
		a.emitLocked(Event{
			Type:        EventDiscoveryStartFailed,
			ServiceType: serviceType,
			Code:        startErr.Code,
			Err:         startErr,
		})
		a.mu.Unlock()

		log.Warn("Failed to start discovery", zap.Error(err))
		return startErr
	}

	if run != a.run {
		// Stopped, restarted, or failed while registering
		var startErr error
		if a.failedRun == run && a.failedErr != nil {
			startErr = a.failedErr
		}
		a.mu.Unlock()

		if reg != nil {
			if err := reg.Stop(); err != nil {
				log.Warn("Abandoned discovery did not stop cleanly", zap.Error(err))
			}
		}

		return startErr
	}

	a.registration = reg
	a.mu.Unlock()

	return nil
}

// StopDiscovery stops the running discovery, if any. The device set is kept.
func (a *Aggregator) StopDiscovery() error {
	a.mu.Lock()
	reg, stopped := a.detachLocked()
	a.mu.Unlock()

	if !stopped {
		return nil
	}

	a.log.Info("Stopped discovery")

	if reg != nil {
		if err := reg.Stop(); err != nil {
			return fmt.Errorf("Failed to stop discovery: %w", err)
		}
	}

	return nil
}

// Devices returns a snapshot of the device set in discovery order.
func (a *Aggregator) Devices() []Device {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.snapshotLocked()
}

func (a *Aggregator) Discovering() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.discovering
}

// Lookup returns the device announced as serviceName.
func (a *Aggregator) Lookup(serviceName string) (Device, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, d := range a.devices {
		if d.ServiceName == serviceName {
			return d, true
		}
	}

	return Device{}, false
}

// detachLocked ends the current run and returns its registration, which the
// caller must stop without holding the lock.
func (a *Aggregator) detachLocked() (Registration, bool) {
	if !a.discovering && a.registration == nil {
		return nil, false
	}

	a.run++
	if a.cancelRun != nil {
		a.cancelRun()
		a.cancelRun = nil
	}

	reg := a.registration
	a.registration = nil
	a.discovering = false

	a.emitLocked(Event{Type: EventDiscoveryStopped, ServiceType: a.serviceType})

	return reg, true
}

func (a *Aggregator) snapshotLocked() []Device {
	return append(make([]Device, 0, len(a.devices)), a.devices...)
}

func (a *Aggregator) emitLocked(ev Event) {
	select {
	case a.events <- ev:
	default:
		a.log.Warn("Discovery event dropped, nobody is listening", zap.Stringer("event", ev.Type))
	}
}

// runListener receives the callbacks of one discovery run.
type runListener struct {
	a   *Aggregator
	run uint64
	ctx context.Context
}

// lock returns false, without holding the lock, if the run is over.
func (l *runListener) lock() bool {
	l.a.mu.Lock()

	if l.run != l.a.run {
		l.a.mu.Unlock()
		return false
	}

	return true
}

func (l *runListener) OnDiscoveryStarted(serviceType string) {
	if !l.lock() {
		return
	}
	defer l.a.mu.Unlock()

	l.a.log.Info("Discovery started", zap.String("serviceType", serviceType))
	l.a.emitLocked(Event{Type: EventDiscoveryStarted, ServiceType: serviceType})
}

func (l *runListener) OnServiceFound(svc ServiceInfo) {
	if !l.lock() {
		return
	}

	l.a.log.Debug("Service found", zap.String("serviceName", svc.Name))
	l.a.emitLocked(Event{Type: EventServiceFound, ServiceType: svc.Type, Service: svc})
	l.a.mu.Unlock()

	if err := l.a.provider.ResolveService(l.ctx, svc, l); err != nil {
		l.a.log.Warn("Failed to start resolve", zap.String("serviceName", svc.Name), zap.Error(err))
		l.OnResolveFailed(svc, codeFor(err))
	}
}

func (l *runListener) OnServiceResolved(svc ResolvedService) {
	if !l.lock() {
		return
	}
	defer l.a.mu.Unlock()

	log := l.a.log.With(
		zap.String("serviceName", svc.Name),
		zap.String("host", svc.Host),
		zap.Int("port", svc.Port))

	for _, d := range l.a.devices {
		if d.Host == svc.Host && d.Port == svc.Port {
			log.Debug("Ignoring resolved service, its endpoint is already known",
				zap.String("knownAs", d.ServiceName))
			return
		}
	}

	l.a.devices = append(l.a.devices, Device{
		ServiceName: svc.Name,
		ServiceType: svc.Type,
		Host:        svc.Host,
		Port:        svc.Port,
	})

	log.Info("Device resolved")
	l.a.emitLocked(Event{Type: EventDevicesChanged, ServiceType: svc.Type, Devices: l.a.snapshotLocked()})
}

func (l *runListener) OnResolveFailed(svc ServiceInfo, code int) {
	if !l.lock() {
		return
	}
	defer l.a.mu.Unlock()

	err := &ResolveError{Name: svc.Name, Code: code}
	l.a.log.Warn("Resolve failed", zap.String("serviceName", svc.Name), zap.Int("code", code))
	l.a.emitLocked(Event{Type: EventResolveFailed, ServiceType: svc.Type, Service: svc, Code: code, Err: err})
}

func (l *runListener) OnServiceLost(svc ServiceInfo) {
	if !l.lock() {
		return
	}
	defer l.a.mu.Unlock()

	kept := l.a.devices[:0]
	for _, d := range l.a.devices {
		if d.ServiceName != svc.Name {
			kept = append(kept, d)
		}
	}

	if len(kept) == len(l.a.devices) {
		return
	}

	l.a.devices = kept
	l.a.log.Info("Device lost", zap.String("serviceName", svc.Name))
	l.a.emitLocked(Event{Type: EventDevicesChanged, ServiceType: svc.Type, Devices: l.a.snapshotLocked()})
}

func (l *runListener) OnDiscoveryStopped(serviceType string) {
	if !l.lock() {
		return
	}
	defer l.a.mu.Unlock()

	// The provider gave up on its own. Its registration is already released.
	l.a.registration = nil
	l.a.detachLocked()
}

func (l *runListener) OnStartDiscoveryFailed(serviceType string, code int) {
	if !l.lock() {
		return
	}
	defer l.a.mu.Unlock()

	l.a.run++
	l.a.discovering = false
	l.a.registration = nil
	if l.a.cancelRun != nil {
		l.a.cancelRun()
		l.a.cancelRun = nil
	}

	err := &StartFailedError{ServiceType: serviceType, Code: code}
	l.a.failedRun = l.run
	l.a.failedErr = err

	l.a.log.Warn("Discovery failed to start", zap.String("serviceType", serviceType), zap.Int("code", code))
	l.a.emitLocked(Event{Type: EventDiscoveryStartFailed, ServiceType: serviceType, Code: code, Err: err})
}

var _ Listener = (*runListener)(nil)
var _ ResolveListener = (*runListener)(nil)
