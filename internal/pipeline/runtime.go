// Package pipeline drives a compute runtime from platform discovery to a
// completed kernel launch: enumerate, create a context, build a program,
// allocate buffers, bind arguments, enqueue and read back.
//
// Every stage returns an error instead of aborting; failures are
// *StageError values carrying the runtime status. Objects created by the
// pipeline are released exactly once, in reverse creation order.
package pipeline

import (
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/cwbudde/saxpycl/internal/cl"
)

// Platform is an enumerated platform and its metadata.
type Platform struct {
	ID cl.Platform
	cl.PlatformInfo
}

// Device is an enumerated device and its metadata.
type Device struct {
	ID cl.Device
	cl.DeviceInfo
}

// Runtime wraps a driver with the pipeline's error and ownership rules.
type Runtime struct {
	driver cl.Driver
	logger *slog.Logger
}

// NewRuntime creates a Runtime. A nil logger uses slog.Default.
func NewRuntime(driver cl.Driver, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{driver: driver, logger: logger}
}

// Platforms lists the available platforms in runtime order. It fails with
// ErrNoPlatform when there are none.
func (r *Runtime) Platforms() ([]Platform, error) {
	ids, err := r.driver.Platforms()
	if err != nil {
		return nil, stageError(StagePlatform, err)
	}
	if len(ids) == 0 {
		return nil, ErrNoPlatform
	}

	out := make([]Platform, len(ids))
	for i, id := range ids {
		info, err := r.driver.PlatformInfo(id)
		if err != nil {
			return nil, stageError(StagePlatform, err)
		}
		out[i] = Platform{ID: id, PlatformInfo: info}
	}
	return out, nil
}

// Devices lists the devices of p accepted by filter. It fails with
// ErrNoDevice when there are none.
func (r *Runtime) Devices(p Platform, filter cl.DeviceType) ([]Device, error) {
	ids, err := r.driver.Devices(p.ID, filter)
	if err != nil {
		return nil, stageError(StageDevice, err)
	}
	if len(ids) == 0 {
		return nil, ErrNoDevice
	}

	out := make([]Device, len(ids))
	for i, id := range ids {
		info, err := r.driver.DeviceInfo(id)
		if err != nil {
			return nil, stageError(StageDevice, err)
		}
		out[i] = Device{ID: id, DeviceInfo: info}
	}
	return out, nil
}

// Context is an execution scope over one platform and a fixed device set.
type Context struct {
	owned
	rt       *Runtime
	id       cl.Context
	Platform Platform
	Devices  []Device
}

// CreateContext binds p and every device in devices.
func (r *Runtime) CreateContext(p Platform, devices []Device) (*Context, error) {
	ids := make([]cl.Device, len(devices))
	for i, d := range devices {
		ids[i] = d.ID
	}

	id, err := r.driver.CreateContext(p.ID, ids)
	if err != nil {
		return nil, stageError(StageContext, err)
	}

	r.logger.Debug("Context created", "platform", p.Name, "devices", len(devices))
	return &Context{
		owned:    owned{kind: "context", free: func() error { return r.driver.ReleaseContext(id) }},
		rt:       r,
		id:       id,
		Platform: p,
		Devices:  devices,
	}, nil
}

// AccessMode declares how kernels may touch a buffer.
type AccessMode int

const (
	ReadOnly AccessMode = iota
	ReadWrite
)

func (m AccessMode) String() string {
	switch m {
	case ReadOnly:
		return "read-only"
	case ReadWrite:
		return "read-write"
	default:
		return "unknown"
	}
}

func (m AccessMode) flags() cl.MemFlags {
	if m == ReadOnly {
		return cl.MemReadOnly
	}
	return cl.MemReadWrite
}

// Buffer is a device-resident memory region.
type Buffer struct {
	owned
	id   cl.Buffer
	Mode AccessMode
	Size int
}

// CreateBuffer allocates size bytes. When host is non-nil it must be exactly
// size bytes and is copied into the buffer once; later changes to host are
// not seen by the device.
func (c *Context) CreateBuffer(mode AccessMode, size int, host []byte) (*Buffer, error) {
	if size <= 0 {
		return nil, stageError(StageBuffer, cl.InvalidBufferSize)
	}
	if mode != ReadOnly && mode != ReadWrite {
		return nil, stageError(StageBuffer, cl.InvalidValue)
	}

	flags := mode.flags()
	if host != nil {
		if len(host) != size {
			return nil, stageError(StageBuffer, cl.InvalidHostPtr)
		}
		flags |= cl.MemCopyHostPtr
	}

	drv := c.rt.driver
	id, err := drv.CreateBuffer(c.id, flags, size, host)
	if err != nil {
		return nil, stageError(StageBuffer, err)
	}

	c.rt.logger.Debug("Buffer created", "mode", mode.String(), "size", humanize.Bytes(uint64(size)), "seeded", host != nil)
	return &Buffer{
		owned: owned{kind: "buffer", free: func() error { return drv.ReleaseBuffer(id) }},
		id:    id,
		Mode:  mode,
		Size:  size,
	}, nil
}
