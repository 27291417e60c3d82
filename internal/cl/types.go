package cl

import (
	"fmt"
	"strings"
)

// DeviceType describes the class of an OpenCL device. As a filter,
// DeviceTypeAll matches every device.
type DeviceType string

const (
	DeviceTypeGPU         DeviceType = "GPU"
	DeviceTypeCPU         DeviceType = "CPU"
	DeviceTypeAccelerator DeviceType = "Accelerator"
	DeviceTypeDefault     DeviceType = "Default"
	DeviceTypeUnknown     DeviceType = "Unknown"
	DeviceTypeAll         DeviceType = "All"
)

// ParseDeviceType maps user input such as "gpu" or "all" to a DeviceType.
func ParseDeviceType(s string) (DeviceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return DeviceTypeAll, nil
	case "gpu":
		return DeviceTypeGPU, nil
	case "cpu":
		return DeviceTypeCPU, nil
	case "accelerator":
		return DeviceTypeAccelerator, nil
	case "default":
		return DeviceTypeDefault, nil
	default:
		return "", fmt.Errorf("unknown device type %q", s)
	}
}

// Matches reports whether a device of type dt passes the filter.
func (filter DeviceType) Matches(dt DeviceType) bool {
	return filter == DeviceTypeAll || filter == dt
}

// DeviceInfo captures metadata about an OpenCL device.
type DeviceInfo struct {
	Name            string
	Vendor          string
	Version         string
	Type            DeviceType
	MaxComputeUnits uint32
	GlobalMemSize   uint64
	MaxMemAllocSize uint64
}

// PlatformInfo captures metadata about an OpenCL platform.
type PlatformInfo struct {
	Name    string
	Vendor  string
	Version string
}

// MemFlags mirrors cl_mem_flags.
type MemFlags uint64

const (
	MemReadWrite   MemFlags = 1 << 0
	MemWriteOnly   MemFlags = 1 << 1
	MemReadOnly    MemFlags = 1 << 2
	MemCopyHostPtr MemFlags = 1 << 5
)

// Opaque handles. Zero is never a valid handle.
type (
	Platform uint64
	Device   uint64
	Context  uint64
	Program  uint64
	Kernel   uint64
	Buffer   uint64
	Queue    uint64
)
