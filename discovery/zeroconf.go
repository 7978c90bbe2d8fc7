package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

type ZeroconfOptions struct {
	Domain string

	// BrowseWindow is the length of one browse round.
	BrowseWindow time.Duration

	// LostAfter is the number of consecutive rounds a service may be missing
	// before it is reported lost.
	LostAfter int

	ResolveTimeout time.Duration

	Log *zap.Logger
}

func (o ZeroconfOptions) withDefaults() ZeroconfOptions {
	if o.Domain == "" {
		o.Domain = "local."
	}
	if o.BrowseWindow <= 0 {
		o.BrowseWindow = 10 * time.Second
	}
	if o.LostAfter <= 0 {
		o.LostAfter = 2
	}
	if o.ResolveTimeout <= 0 {
		o.ResolveTimeout = 5 * time.Second
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	return o
}

// Zeroconf is a Provider backed by multicast DNS.
//
// mDNS has no notion of a service going away other than TTL expiry, so a
// service is reported lost once it has not answered for LostAfter browse
// rounds.
type Zeroconf struct {
	opts ZeroconfOptions
	log  *zap.Logger

	mu    sync.Mutex
	cache map[string]*zeroconf.ServiceEntry
}

func NewZeroconf(opts ZeroconfOptions) *Zeroconf {
	opts = opts.withDefaults()

	return &Zeroconf{
		opts:  opts,
		log:   opts.Log,
		cache: make(map[string]*zeroconf.ServiceEntry),
	}
}

func (z *Zeroconf) DiscoverServices(ctx context.Context, serviceType string, listener Listener) (Registration, error) {
	service := trimServiceType(serviceType)

	// Open a resolver once so that an unusable interface fails the start
	// rather than the background rounds.
	if _, err := zeroconf.NewResolver(); err != nil {
		return nil, fmt.Errorf("Failed to create mDNS resolver: %w", ErrPlatformUnsupported)
	}

	browseCtx, cancel := context.WithCancel(context.Background())
	reg := &zeroconfRegistration{cancel: cancel}

	reg.wg.Add(1)
	go func() {
		defer reg.wg.Done()
		z.browse(browseCtx, serviceType, service, listener)
	}()

	return reg, nil
}

func (z *Zeroconf) browse(ctx context.Context, serviceType, service string, listener Listener) {
	log := z.log.With(zap.String("serviceType", serviceType))
	presence := newPresenceTracker(z.opts.LostAfter)

	listener.OnDiscoveryStarted(serviceType)
	defer listener.OnDiscoveryStopped(serviceType)

	for {
		complete, err := z.round(ctx, service, func(e *zeroconf.ServiceEntry) {
			z.mu.Lock()
			z.cache[e.Instance] = e
			z.mu.Unlock()

			if presence.see(e.Instance) {
				listener.OnServiceFound(ServiceInfo{Name: e.Instance, Type: serviceType})
			}
		})
		if err != nil {
			log.Warn("Browse round failed", zap.Error(err))
		}

		if !complete {
			return
		}

		for _, name := range presence.endRound() {
			z.mu.Lock()
			delete(z.cache, name)
			z.mu.Unlock()

			listener.OnServiceLost(ServiceInfo{Name: name, Type: serviceType})
		}
	}
}

// round browses for one window. It returns false if ctx ended first.
func (z *Zeroconf) round(ctx context.Context, service string, found func(*zeroconf.ServiceEntry)) (bool, error) {
	roundCtx, cancel := context.WithTimeout(ctx, z.opts.BrowseWindow)
	defer cancel()

	resolver, err := zeroconf.NewResolver()
	if err != nil {
		select {
		case <-roundCtx.Done():
		case <-ctx.Done():
		}

		return ctx.Err() == nil, err
	}

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(roundCtx, service, z.opts.Domain, entries); err != nil {
		<-roundCtx.Done()
		return ctx.Err() == nil, err
	}
	defer drainEntries(cancel, entries)

	for {
		select {
		case e, ok := <-entries:
			if !ok {
				<-roundCtx.Done()
				return ctx.Err() == nil, nil
			}
			if e != nil && e.Instance != "" {
				found(e)
			}

		case <-roundCtx.Done():
			return ctx.Err() == nil, nil
		}
	}
}

func (z *Zeroconf) ResolveService(ctx context.Context, svc ServiceInfo, listener ResolveListener) error {
	z.mu.Lock()
	cached, ok := z.cache[svc.Name]
	z.mu.Unlock()

	if ok {
		if host := hostFor(cached); host != "" && cached.Port > 0 {
			go listener.OnServiceResolved(ResolvedService{Name: svc.Name, Type: svc.Type, Host: host, Port: cached.Port})
			return nil
		}
	}

	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return &ResolveError{Name: svc.Name, Code: FailureInternalError}
	}

	go z.lookup(ctx, resolver, svc, listener)
	return nil
}

func (z *Zeroconf) lookup(ctx context.Context, resolver *zeroconf.Resolver, svc ServiceInfo, listener ResolveListener) {
	ctx, cancel := context.WithTimeout(ctx, z.opts.ResolveTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Lookup(ctx, svc.Name, trimServiceType(svc.Type), z.opts.Domain, entries); err != nil {
		z.log.Debug("Lookup failed", zap.String("serviceName", svc.Name), zap.Error(err))
		listener.OnResolveFailed(svc, FailureInternalError)
		return
	}
	defer drainEntries(cancel, entries)

	for {
		select {
		case e, ok := <-entries:
			if !ok {
				listener.OnResolveFailed(svc, FailureInternalError)
				return
			}

			host := hostFor(e)
			if e == nil || host == "" || e.Port <= 0 {
				continue
			}

			listener.OnServiceResolved(ResolvedService{Name: svc.Name, Type: svc.Type, Host: host, Port: e.Port})
			return

		case <-ctx.Done():
			listener.OnResolveFailed(svc, FailureInternalError)
			return
		}
	}
}

// drainEntries ends a browse or lookup and reads entries until the resolver
// closes the channel. The resolver can still be sending an answer that
// arrived as ctx ended, and it only releases its sockets after that send.
func drainEntries(cancel context.CancelFunc, entries <-chan *zeroconf.ServiceEntry) {
	cancel()

	for range entries {
	}
}

// hostFor picks the address to connect to, IPv4 first. Entries that only
// carry a host name have no usable address.
func hostFor(e *zeroconf.ServiceEntry) string {
	if e == nil {
		return ""
	}

	for _, ip := range e.AddrIPv4 {
		if ip != nil && !ip.IsUnspecified() {
			return ip.String()
		}
	}

	for _, ip := range e.AddrIPv6 {
		if ip != nil && !ip.IsUnspecified() && !ip.IsLinkLocalUnicast() {
			return ip.String()
		}
	}

	return ""
}

// trimServiceType turns "_svc._tcp." or "_svc._tcp.local." into "_svc._tcp".
func trimServiceType(serviceType string) string {
	s := strings.TrimSuffix(serviceType, ".")
	s = strings.TrimSuffix(s, ".local")
	return s
}

type zeroconfRegistration struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func (r *zeroconfRegistration) Stop() error {
	r.once.Do(func() {
		r.cancel()
		r.wg.Wait()
	})

	return nil
}

// presenceTracker counts, per service, the browse rounds it has been missing.
type presenceTracker struct {
	lostAfter int
	seen      map[string]bool
	missed    map[string]int
}

func newPresenceTracker(lostAfter int) *presenceTracker {
	return &presenceTracker{
		lostAfter: lostAfter,
		seen:      make(map[string]bool),
		missed:    make(map[string]int),
	}
}

// see records a sighting. It returns true the first time name is seen since
// it was last reported lost.
func (p *presenceTracker) see(name string) bool {
	_, known := p.missed[name]
	p.missed[name] = 0
	p.seen[name] = true

	return !known
}

// endRound closes a browse round and returns the names that are now lost.
func (p *presenceTracker) endRound() []string {
	var lost []string

	for name := range p.missed {
		if p.seen[name] {
			continue
		}

		p.missed[name]++
		if p.missed[name] >= p.lostAfter {
			delete(p.missed, name)
			lost = append(lost, name)
		}
	}

	p.seen = make(map[string]bool)
	sort.Strings(lost)

	return lost
}

var _ Provider = (*Zeroconf)(nil)
