package cl

import (
	"encoding/binary"
	"math"
	"slices"
	"sync"
)

// HostKernelFunc executes one work-item of a kernel on the host device.
type HostKernelFunc func(item int, args *HostArgs)

type hostKernelImpl struct {
	params int
	fn     HostKernelFunc
	bodies []string
}

var (
	hostKernelsMu sync.RWMutex
	hostKernels   = map[string]hostKernelImpl{}
)

// RegisterHostKernel makes entry point name executable on host devices.
// Programs declaring name must declare exactly params parameters.
//
// bodies lists the OpenCL C kernel bodies fn implements, written with $0,
// $1, ... in place of the parameter names. Local variable names and
// whitespace do not matter. A program whose body matches none of them
// fails to build. With no bodies any body is accepted.
func RegisterHostKernel(name string, params int, fn HostKernelFunc, bodies ...string) {
	normalized := make([]string, len(bodies))
	for i, b := range bodies {
		normalized[i] = normalizeBody(b, nil)
	}

	hostKernelsMu.Lock()
	defer hostKernelsMu.Unlock()
	hostKernels[name] = hostKernelImpl{params: params, fn: fn, bodies: normalized}
}

func lookupHostKernel(name string) (hostKernelImpl, bool) {
	hostKernelsMu.RLock()
	defer hostKernelsMu.RUnlock()
	impl, ok := hostKernels[name]
	return impl, ok
}

func (impl hostKernelImpl) accepts(body string) bool {
	if len(impl.bodies) == 0 {
		return true
	}
	return slices.Contains(impl.bodies, body)
}

func init() {
	RegisterHostKernel("SAXPY", 3, saxpy,
		"int i = get_global_id(0); $1[i] = $0[i] + $2 * $1[i];",
		"size_t i = get_global_id(0); $1[i] = $0[i] + $2 * $1[i];",
		"int i = get_global_id(0); $1[i] = $2 * $1[i] + $0[i];",
		"size_t i = get_global_id(0); $1[i] = $2 * $1[i] + $0[i];",
		"$1[get_global_id(0)] = $0[get_global_id(0)] + $2 * $1[get_global_id(0)];",
	)
}

// saxpy computes y[i] = x[i] + a*y[i].
func saxpy(i int, args *HostArgs) {
	x := args.LoadFloat32(0, i)
	y := args.LoadFloat32(1, i)
	a := args.Float32(2)
	args.StoreFloat32(1, i, x+a*y)
}

type argValue struct {
	buf *hostBuffer
	raw []byte
	set bool
}

// HostArgs gives a work-item access to the kernel arguments captured when
// the launch was enqueued. Buffers hold native-endian element data.
type HostArgs struct {
	values []argValue
}

// Float32 returns scalar argument index.
func (a *HostArgs) Float32(index int) float32 {
	return math.Float32frombits(binary.NativeEndian.Uint32(a.values[index].raw))
}

// Int32 returns scalar argument index.
func (a *HostArgs) Int32(index int) int32 {
	return int32(binary.NativeEndian.Uint32(a.values[index].raw))
}

// Len returns the size in bytes of buffer argument index.
func (a *HostArgs) Len(index int) int {
	return len(a.values[index].buf.data)
}

// LoadFloat32 reads element elem of buffer argument index.
func (a *HostArgs) LoadFloat32(index, elem int) float32 {
	data := a.values[index].buf.data
	return math.Float32frombits(binary.NativeEndian.Uint32(data[elem*4 : elem*4+4]))
}

// StoreFloat32 writes element elem of buffer argument index.
func (a *HostArgs) StoreFloat32(index, elem int, v float32) {
	data := a.values[index].buf.data
	binary.NativeEndian.PutUint32(data[elem*4:elem*4+4], math.Float32bits(v))
}
