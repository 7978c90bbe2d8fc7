package discovery

import (
	"errors"
	"fmt"
)

var (
	ErrPlatformUnsupported  = errors.New("Service discovery is not available on this platform")
	ErrDiscoveryStartFailed = errors.New("Service discovery could not be started")
	ErrResolveFailed        = errors.New("Service could not be resolved")
)

// StartFailedError is returned, and emitted, when a discovery could not be
// registered. It matches ErrDiscoveryStartFailed.
type StartFailedError struct {
	ServiceType string
	Code        int
	Err         error
}

func (e *StartFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Discovery of %s failed with error code %d: %v", e.ServiceType, e.Code, e.Err)
	}

	return fmt.Sprintf("Discovery of %s failed with error code %d", e.ServiceType, e.Code)
}

func (e *StartFailedError) Is(target error) bool {
	return target == ErrDiscoveryStartFailed
}

func (e *StartFailedError) Unwrap() error {
	return e.Err
}

// ResolveError describes a failed resolve. It matches ErrResolveFailed.
type ResolveError struct {
	Name string
	Code int
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("Resolving %q failed with error code %d", e.Name, e.Code)
}

func (e *ResolveError) Is(target error) bool {
	return target == ErrResolveFailed
}

// codeFor extracts a platform failure code from err.
func codeFor(err error) int {
	var startErr *StartFailedError
	if errors.As(err, &startErr) {
		return startErr.Code
	}

	var resolveErr *ResolveError
	if errors.As(err, &resolveErr) {
		return resolveErr.Code
	}

	return FailureInternalError
}
