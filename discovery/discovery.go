package discovery

import (
	"context"
	"net"
	"strconv"
)

// Failure codes reported by discovery providers. They match the codes of the
// Android network service discovery API so they can be passed through as is.
const (
	FailureInternalError = 0
	FailureAlreadyActive = 3
	FailureMaxLimit      = 4
)

// ServiceInfo names a service that has been found but not resolved.
type ServiceInfo struct {
	Name string
	Type string
}

// ResolvedService is a service with a network endpoint.
type ResolvedService struct {
	Name string
	Type string
	Host string
	Port int
}

// Listener receives the results of a DiscoverServices call. Calls are made
// one at a time.
type Listener interface {
	OnDiscoveryStarted(serviceType string)
	OnServiceFound(svc ServiceInfo)
	OnServiceLost(svc ServiceInfo)
	OnDiscoveryStopped(serviceType string)
	OnStartDiscoveryFailed(serviceType string, code int)
}

// ResolveListener receives the result of a single ResolveService call.
type ResolveListener interface {
	OnServiceResolved(svc ResolvedService)
	OnResolveFailed(svc ServiceInfo, code int)
}

// Registration is an active discovery. Stop releases it, no listener methods
// are called once Stop returns.
type Registration interface {
	Stop() error
}

// Provider is a platform's service discovery capability.
type Provider interface {
	// DiscoverServices returns once the platform has accepted the discovery,
	// not when the first service is found.
	DiscoverServices(ctx context.Context, serviceType string, listener Listener) (Registration, error)

	// ResolveService resolves svc asynchronously. An error means the resolve
	// could not be started, the listener will not be called.
	ResolveService(ctx context.Context, svc ServiceInfo, listener ResolveListener) error
}

// Device is a resolved receiver. Devices are identified by Host and Port, a
// receiver may be announced under more than one name.
type Device struct {
	ServiceName string `json:"serviceName"`
	ServiceType string `json:"serviceType"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
}

func (d Device) Endpoint() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

type EventType int

const (
	EventDiscoveryStarted EventType = iota

	// EventServiceFound is informational, the service is not resolved yet.
	EventServiceFound

	// EventDevicesChanged carries the device set after the change.
	EventDevicesChanged

	EventDiscoveryStopped
	EventDiscoveryStartFailed

	// EventResolveFailed is not fatal, discovery carries on.
	EventResolveFailed
)

func (e EventType) String() string {
	switch e {
	case EventDiscoveryStarted:
		return "discovery-started"
	case EventServiceFound:
		return "service-found"
	case EventDevicesChanged:
		return "device-list-changed"
	case EventDiscoveryStopped:
		return "discovery-stopped"
	case EventDiscoveryStartFailed:
		return "discovery-start-failed"
	case EventResolveFailed:
		return "resolve-failed"
	default:
		return "unknown"
	}
}

type Event struct {
	Type        EventType
	ServiceType string
	Service     ServiceInfo
	Devices     []Device
	Code        int
	Err         error
}
