package cl

import (
	"errors"
	"fmt"
	"strings"
)

// Backend identifies a driver implementation.
type Backend string

const (
	BackendHost   Backend = "host"
	BackendOpenCL Backend = "opencl"
)

var (
	// ErrUnknownBackend is returned when the name does not match a known backend.
	ErrUnknownBackend = errors.New("unknown compute backend")
	// ErrBackendUnavailable indicates the backend is not available in this build.
	ErrBackendUnavailable = errors.New("compute backend unavailable")
)

// NormalizeBackend maps arbitrary user input to a canonical backend identifier.
func NormalizeBackend(name string) Backend {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "host", "cpu", "software":
		return BackendHost
	case "gpu", "opencl", "cl":
		return BackendOpenCL
	default:
		return Backend(name)
	}
}

// SupportedBackends returns the list of backends understood by the factory.
func SupportedBackends() []Backend {
	return []Backend{BackendHost, BackendOpenCL}
}

// NewDriver constructs the requested driver and returns a cleanup hook.
func NewDriver(name string) (Driver, func(), error) {
	switch backend := NormalizeBackend(name); backend {
	case BackendHost:
		d := NewHostDriver()
		return d, d.Close, nil
	case BackendOpenCL:
		d, err := newOpenCLDriver()
		if err != nil {
			return nil, func() {}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return d, d.Close, nil
	default:
		return nil, func() {}, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
}
