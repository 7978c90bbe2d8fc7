// Package discoverytest provides an in-memory discovery.Provider.
package discoverytest

import (
	"context"
	"sync"

	"github.com/luma/tvremote/discovery"
)

// Provider is a discovery.Provider driven by the test. Services announced with
// Announce resolve immediately; services passed to Find stay pending until
// Resolve or FailResolve is called.
type Provider struct {
	mu            sync.Mutex
	startErr      error
	failStart     bool
	failCode      int
	resolveErr    error
	listeners     []discovery.Listener
	registrations []*Registration
	endpoints     map[string]discovery.ResolvedService
	pending       map[string]discovery.ResolveListener
}

func NewProvider() *Provider {
	return &Provider{
		endpoints: make(map[string]discovery.ResolvedService),
		pending:   make(map[string]discovery.ResolveListener),
	}
}

// SetStartErr makes the next DiscoverServices calls fail with err.
func (p *Provider) SetStartErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startErr = err
}

// SetStartFailure makes the next DiscoverServices calls accept the
// registration but report OnStartDiscoveryFailed with code before returning.
func (p *Provider) SetStartFailure(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failStart = true
	p.failCode = code
}

// SetResolveErr makes ResolveService refuse to start with err.
func (p *Provider) SetResolveErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.resolveErr = err
}

func (p *Provider) DiscoverServices(ctx context.Context, serviceType string, listener discovery.Listener) (discovery.Registration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.startErr != nil {
		return nil, p.startErr
	}

	reg := &Registration{}
	p.listeners = append(p.listeners, listener)
	p.registrations = append(p.registrations, reg)

	if p.failStart {
		code := p.failCode
		p.mu.Unlock()
		listener.OnStartDiscoveryFailed(serviceType, code)
		p.mu.Lock()
	}

	return reg, nil
}

func (p *Provider) ResolveService(ctx context.Context, svc discovery.ServiceInfo, listener discovery.ResolveListener) error {
	p.mu.Lock()

	if p.resolveErr != nil {
		err := p.resolveErr
		p.mu.Unlock()
		return err
	}

	resolved, ok := p.endpoints[svc.Name]
	if !ok {
		p.pending[svc.Name] = listener
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	listener.OnServiceResolved(resolved)
	return nil
}

// Listener returns the listener of the nth DiscoverServices call, or nil.
func (p *Provider) Listener(n int) discovery.Listener {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n < 0 || n >= len(p.listeners) {
		return nil
	}

	return p.listeners[n]
}

// Current returns the listener of the latest DiscoverServices call.
func (p *Provider) Current() discovery.Listener {
	p.mu.Lock()
	n := len(p.listeners) - 1
	p.mu.Unlock()

	return p.Listener(n)
}

// Registrations returns every registration handed out so far.
func (p *Provider) Registrations() []*Registration {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]*Registration(nil), p.registrations...)
}

// Announce reports name as found on the latest listener. It resolves to
// host and port.
func (p *Provider) Announce(serviceType, name, host string, port int) {
	p.mu.Lock()
	p.endpoints[name] = discovery.ResolvedService{Name: name, Type: serviceType, Host: host, Port: port}
	p.mu.Unlock()

	p.Find(serviceType, name)
}

// Find reports name as found on the latest listener.
func (p *Provider) Find(serviceType, name string) {
	if l := p.Current(); l != nil {
		l.OnServiceFound(discovery.ServiceInfo{Name: name, Type: serviceType})
	}
}

// Lose reports name as lost on the latest listener.
func (p *Provider) Lose(serviceType, name string) {
	if l := p.Current(); l != nil {
		l.OnServiceLost(discovery.ServiceInfo{Name: name, Type: serviceType})
	}
}

// Resolve completes a pending resolve of name.
func (p *Provider) Resolve(serviceType, name, host string, port int) bool {
	p.mu.Lock()
	l, ok := p.pending[name]
	delete(p.pending, name)
	p.mu.Unlock()

	if !ok {
		return false
	}

	l.OnServiceResolved(discovery.ResolvedService{Name: name, Type: serviceType, Host: host, Port: port})
	return true
}

// FailResolve fails a pending resolve of name with code.
func (p *Provider) FailResolve(serviceType, name string, code int) bool {
	p.mu.Lock()
	l, ok := p.pending[name]
	delete(p.pending, name)
	p.mu.Unlock()

	if !ok {
		return false
	}

	l.OnResolveFailed(discovery.ServiceInfo{Name: name, Type: serviceType}, code)
	return true
}

// Registration counts Stop calls.
type Registration struct {
	mu    sync.Mutex
	stops int
}

func (r *Registration) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stops++
	return nil
}

func (r *Registration) Stops() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.stops
}
