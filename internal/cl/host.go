package cl

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
)

// HostDevice describes one simulated device of a host platform.
type HostDevice struct {
	Name         string
	Type         DeviceType
	ComputeUnits int
	// GlobalMemSize defaults to DefaultHostMemory. A single buffer may use
	// at most a quarter of it.
	GlobalMemSize uint64
	// NoCompiler makes every build targeting the device fail with
	// CL_COMPILER_NOT_AVAILABLE.
	NoCompiler bool
}

// HostPlatform describes one simulated platform and its devices.
type HostPlatform struct {
	Name    string
	Vendor  string
	Version string
	Devices []HostDevice
}

// DefaultHostMemory is the global memory size of a host device that does
// not set one.
const DefaultHostMemory = 1 << 30

// DefaultHostPlatform is a single CPU device spanning every logical core.
func DefaultHostPlatform() HostPlatform {
	return HostPlatform{
		Name:    "Host Software Platform",
		Vendor:  "saxpycl",
		Version: "OpenCL 1.2 host",
		Devices: []HostDevice{{
			Name:         fmt.Sprintf("Host CPU (%s)", runtime.GOARCH),
			Type:         DeviceTypeCPU,
			ComputeUnits: runtime.NumCPU(),
		}},
	}
}

// HostOption configures a HostDriver.
type HostOption func(*hostConfig)

type hostConfig struct {
	platforms []HostPlatform
}

// WithHostPlatforms replaces the default topology. Passing nothing yields a
// driver that reports zero platforms.
func WithHostPlatforms(platforms ...HostPlatform) HostOption {
	return func(c *hostConfig) {
		c.platforms = platforms
	}
}

type hostPlatform struct {
	info    PlatformInfo
	devices []*hostDevice
}

type hostDevice struct {
	info       DeviceInfo
	platform   *hostPlatform
	noCompiler bool
}

type hostContext struct {
	platform *hostPlatform
	devices  []*hostDevice
}

func (c *hostContext) has(dev *hostDevice) bool {
	for _, d := range c.devices {
		if d == dev {
			return true
		}
	}
	return false
}

type hostProgram struct {
	ctx     *hostContext
	source  string
	logs    map[*hostDevice]string
	kernels map[string]*kernelDecl
}

type hostKernel struct {
	ctx  *hostContext
	decl *kernelDecl
	fn   HostKernelFunc
	args []argValue
}

type hostBuffer struct {
	ctx   *hostContext
	flags MemFlags
	data  []byte
}

// HostDriver is a pure-Go Driver. Kernels are bound by entry-point name to
// functions registered with RegisterHostKernel and run on goroutines.
type HostDriver struct {
	mu sync.Mutex

	platformList []Platform
	platforms    *handles[*hostPlatform]
	devices      *handles[*hostDevice]
	contexts     *handles[*hostContext]
	programs     *handles[*hostProgram]
	kernels      *handles[*hostKernel]
	buffers      *handles[*hostBuffer]
	queues       *handles[*hostQueue]
}

// NewHostDriver creates a host driver. Without options it exposes
// DefaultHostPlatform.
func NewHostDriver(opts ...HostOption) *HostDriver {
	cfg := hostConfig{platforms: []HostPlatform{DefaultHostPlatform()}}
	for _, opt := range opts {
		opt(&cfg)
	}

	d := &HostDriver{
		platforms: newHandles[*hostPlatform](),
		devices:   newHandles[*hostDevice](),
		contexts:  newHandles[*hostContext](),
		programs:  newHandles[*hostProgram](),
		kernels:   newHandles[*hostKernel](),
		buffers:   newHandles[*hostBuffer](),
		queues:    newHandles[*hostQueue](),
	}

	for _, ps := range cfg.platforms {
		p := &hostPlatform{info: PlatformInfo{Name: ps.Name, Vendor: ps.Vendor, Version: ps.Version}}
		for _, ds := range ps.Devices {
			units := ds.ComputeUnits
			if units <= 0 {
				units = 1
			}
			dt := ds.Type
			if dt == "" {
				dt = DeviceTypeCPU
			}
			mem := ds.GlobalMemSize
			if mem == 0 {
				mem = DefaultHostMemory
			}
			dev := &hostDevice{
				info: DeviceInfo{
					Name:            ds.Name,
					Vendor:          ps.Vendor,
					Version:         ps.Version,
					Type:            dt,
					MaxComputeUnits: uint32(units),
					GlobalMemSize:   mem,
					MaxMemAllocSize: mem / 4,
				},
				platform:   p,
				noCompiler: ds.NoCompiler,
			}
			p.devices = append(p.devices, dev)
			d.devices.add(dev)
		}
		d.platformList = append(d.platformList, Platform(d.platforms.add(p)))
	}

	return d
}

// Close stops every live queue and forgets all objects.
func (d *HostDriver) Close() {
	d.mu.Lock()
	var queues []*hostQueue
	d.queues.each(func(id uint64, q *hostQueue) {
		queues = append(queues, q)
		d.queues.remove(id)
	})
	d.contexts = newHandles[*hostContext]()
	d.programs = newHandles[*hostProgram]()
	d.kernels = newHandles[*hostKernel]()
	d.buffers = newHandles[*hostBuffer]()
	d.mu.Unlock()

	for _, q := range queues {
		q.stop()
	}
}

// LiveObjects reports how many contexts, programs, kernels, buffers and
// queues have been created and not yet released.
func (d *HostDriver) LiveObjects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.contexts.len() + d.programs.len() + d.kernels.len() + d.buffers.len() + d.queues.len()
}

// Platforms lists the configured platforms in order.
func (d *HostDriver) Platforms() ([]Platform, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Platform, len(d.platformList))
	copy(out, d.platformList)
	return out, nil
}

// PlatformInfo returns the name, vendor and version of p.
func (d *HostDriver) PlatformInfo(p Platform) (PlatformInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	platform, ok := d.platforms.get(uint64(p))
	if !ok {
		return PlatformInfo{}, InvalidPlatform
	}
	return platform.info, nil
}

// Devices lists the devices of p whose type matches filter.
func (d *HostDriver) Devices(p Platform, filter DeviceType) ([]Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	platform, ok := d.platforms.get(uint64(p))
	if !ok {
		return nil, InvalidPlatform
	}

	switch filter {
	case DeviceTypeAll, DeviceTypeGPU, DeviceTypeCPU, DeviceTypeAccelerator:
	case DeviceTypeDefault:
		if len(platform.devices) == 0 {
			return nil, nil
		}
		return []Device{Device(d.devices.add(platform.devices[0]))}, nil
	default:
		return nil, InvalidDeviceType
	}

	var out []Device
	for _, dev := range platform.devices {
		if filter.Matches(dev.info.Type) {
			out = append(out, Device(d.devices.add(dev)))
		}
	}
	return out, nil
}

// DeviceInfo returns the metadata of dev.
func (d *HostDriver) DeviceInfo(dev Device) (DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	device, ok := d.devices.get(uint64(dev))
	if !ok {
		return DeviceInfo{}, InvalidDevice
	}
	return device.info, nil
}

// CreateContext binds devices, which must all belong to p, into a context.
func (d *HostDriver) CreateContext(p Platform, devices []Device) (Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	platform, ok := d.platforms.get(uint64(p))
	if !ok {
		return 0, InvalidPlatform
	}
	if len(devices) == 0 {
		return 0, InvalidValue
	}

	ctx := &hostContext{platform: platform}
	for _, h := range devices {
		dev, ok := d.devices.get(uint64(h))
		if !ok || dev.platform != platform {
			return 0, InvalidDevice
		}
		if !ctx.has(dev) {
			ctx.devices = append(ctx.devices, dev)
		}
	}
	return Context(d.contexts.add(ctx)), nil
}

// ReleaseContext frees c.
func (d *HostDriver) ReleaseContext(c Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.contexts.remove(uint64(c)); !ok {
		return InvalidContext
	}
	return nil
}

// CreateProgram records source for a later build. Nothing is compiled yet.
func (d *HostDriver) CreateProgram(c Context, source string) (Program, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, ok := d.contexts.get(uint64(c))
	if !ok {
		return 0, InvalidContext
	}
	if source == "" {
		return 0, InvalidValue
	}
	return Program(d.programs.add(&hostProgram{
		ctx:    ctx,
		source: source,
		logs:   make(map[*hostDevice]string),
	})), nil
}

// BuildProgram compiles the program for devices, or every context device
// when devices is empty. Kernels can only be created once every target
// device built successfully.
func (d *HostDriver) BuildProgram(p Program, devices []Device, options string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	program, ok := d.programs.get(uint64(p))
	if !ok {
		return InvalidProgram
	}
	for _, opt := range strings.Fields(options) {
		if !strings.HasPrefix(opt, "-") {
			return InvalidBuildOptions
		}
	}

	targets := program.ctx.devices
	if len(devices) > 0 {
		targets = make([]*hostDevice, 0, len(devices))
		for _, h := range devices {
			dev, ok := d.devices.get(uint64(h))
			if !ok || !program.ctx.has(dev) {
				return InvalidDevice
			}
			targets = append(targets, dev)
		}
	}

	program.kernels = nil
	var built map[string]*kernelDecl
	for _, dev := range targets {
		if dev.noCompiler {
			program.logs[dev] = "error: no compiler available for device " + dev.info.Name
			return CompilerNotAvailable
		}
		decls, log, err := compileHost(program.source)
		program.logs[dev] = log
		if err != nil {
			return BuildProgramFailure
		}
		built = decls
	}
	program.kernels = built
	return nil
}

// BuildLog returns the compiler output of the last build for dev.
func (d *HostDriver) BuildLog(p Program, dev Device) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	program, ok := d.programs.get(uint64(p))
	if !ok {
		return "", InvalidProgram
	}
	device, ok := d.devices.get(uint64(dev))
	if !ok || !program.ctx.has(device) {
		return "", InvalidDevice
	}
	return program.logs[device], nil
}

// ReleaseProgram frees p. Kernels created from it stay valid.
func (d *HostDriver) ReleaseProgram(p Program) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.programs.remove(uint64(p)); !ok {
		return InvalidProgram
	}
	return nil
}

// CreateKernel extracts entry point name from a built program.
func (d *HostDriver) CreateKernel(p Program, name string) (Kernel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	program, ok := d.programs.get(uint64(p))
	if !ok {
		return 0, InvalidProgram
	}
	if program.kernels == nil {
		return 0, InvalidProgramExecutable
	}
	decl, ok := program.kernels[name]
	if !ok {
		return 0, InvalidKernelName
	}
	impl, ok := lookupHostKernel(name)
	if !ok {
		return 0, InvalidKernelDefinition
	}

	return Kernel(d.kernels.add(&hostKernel{
		ctx:  program.ctx,
		decl: decl,
		fn:   impl.fn,
		args: make([]argValue, len(decl.params)),
	})), nil
}

// KernelNumArgs returns the declared parameter count of k.
func (d *HostDriver) KernelNumArgs(k Kernel) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kernel, ok := d.kernels.get(uint64(k))
	if !ok {
		return 0, InvalidKernel
	}
	return len(kernel.decl.params), nil
}

// SetKernelArg binds a scalar value to argument index of k.
func (d *HostDriver) SetKernelArg(k Kernel, index int, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	kernel, ok := d.kernels.get(uint64(k))
	if !ok {
		return InvalidKernel
	}
	if index < 0 || index >= len(kernel.args) {
		return InvalidArgIndex
	}
	param := kernel.decl.params[index]
	if param.kind != argScalar {
		return InvalidArgValue
	}
	if len(value) != param.size {
		return InvalidArgSize
	}

	raw := make([]byte, len(value))
	copy(raw, value)
	kernel.args[index] = argValue{raw: raw, set: true}
	return nil
}

// SetKernelArgBuffer binds buffer b to argument index of k.
func (d *HostDriver) SetKernelArgBuffer(k Kernel, index int, b Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	kernel, ok := d.kernels.get(uint64(k))
	if !ok {
		return InvalidKernel
	}
	buf, ok := d.buffers.get(uint64(b))
	if !ok || buf.ctx != kernel.ctx {
		return InvalidMemObject
	}
	if index < 0 || index >= len(kernel.args) {
		return InvalidArgIndex
	}
	if kernel.decl.params[index].kind == argScalar {
		return InvalidArgValue
	}

	kernel.args[index] = argValue{buf: buf, set: true}
	return nil
}

// ReleaseKernel frees k.
func (d *HostDriver) ReleaseKernel(k Kernel) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.kernels.remove(uint64(k)); !ok {
		return InvalidKernel
	}
	return nil
}

// CreateBuffer allocates size bytes in c, copying host when it is given.
func (d *HostDriver) CreateBuffer(c Context, flags MemFlags, size int, host []byte) (Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, ok := d.contexts.get(uint64(c))
	if !ok {
		return 0, InvalidContext
	}
	if size <= 0 {
		return 0, InvalidBufferSize
	}
	for _, dev := range ctx.devices {
		if uint64(size) > dev.info.MaxMemAllocSize {
			return 0, InvalidBufferSize
		}
	}

	access := flags & (MemReadWrite | MemWriteOnly | MemReadOnly)
	switch access {
	case 0:
		flags |= MemReadWrite
	case MemReadWrite, MemWriteOnly, MemReadOnly:
	default:
		return 0, InvalidValue
	}

	data := make([]byte, size)
	if flags&MemCopyHostPtr != 0 {
		if len(host) < size {
			return 0, InvalidHostPtr
		}
		copy(data, host[:size])
	} else if host != nil {
		return 0, InvalidHostPtr
	}

	return Buffer(d.buffers.add(&hostBuffer{ctx: ctx, flags: flags, data: data})), nil
}

// ReleaseBuffer frees b.
func (d *HostDriver) ReleaseBuffer(b Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.buffers.remove(uint64(b)); !ok {
		return InvalidMemObject
	}
	return nil
}

// CreateQueue starts an in-order queue on dev.
func (d *HostDriver) CreateQueue(c Context, dev Device) (Queue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, ok := d.contexts.get(uint64(c))
	if !ok {
		return 0, InvalidContext
	}
	device, ok := d.devices.get(uint64(dev))
	if !ok || !ctx.has(device) {
		return 0, InvalidDevice
	}
	return Queue(d.queues.add(newHostQueue(ctx, device))), nil
}

// EnqueueNDRange queues a one-dimensional launch of k.
func (d *HostDriver) EnqueueNDRange(q Queue, k Kernel, global, local []int) error {
	d.mu.Lock()
	queue, ok := d.queues.get(uint64(q))
	if !ok {
		d.mu.Unlock()
		return InvalidCommandQueue
	}
	kernel, ok := d.kernels.get(uint64(k))
	if !ok {
		d.mu.Unlock()
		return InvalidKernel
	}
	l, err := prepareLaunch(queue, kernel, global, local)
	d.mu.Unlock()
	if err != nil {
		return err
	}

	return queue.submit(l.run, false)
}

// EnqueueReadBuffer copies len(dst) bytes of b from offset into dst once
// earlier commands on q have run. A blocking read waits for the copy.
func (d *HostDriver) EnqueueReadBuffer(q Queue, b Buffer, blocking bool, offset int, dst []byte) error {
	d.mu.Lock()
	queue, ok := d.queues.get(uint64(q))
	if !ok {
		d.mu.Unlock()
		return InvalidCommandQueue
	}
	buf, ok := d.buffers.get(uint64(b))
	d.mu.Unlock()
	if !ok {
		return InvalidMemObject
	}
	if buf.ctx != queue.ctx {
		return InvalidContext
	}
	if len(dst) == 0 || offset < 0 || offset+len(dst) > len(buf.data) {
		return InvalidValue
	}

	read := func() error {
		copy(dst, buf.data[offset:offset+len(dst)])
		return nil
	}
	return queue.submit(read, blocking)
}

// Finish waits until every command queued on q has completed.
func (d *HostDriver) Finish(q Queue) error {
	d.mu.Lock()
	queue, ok := d.queues.get(uint64(q))
	d.mu.Unlock()
	if !ok {
		return InvalidCommandQueue
	}
	return queue.submit(func() error { return nil }, true)
}

// ReleaseQueue stops q after its pending commands and frees it.
func (d *HostDriver) ReleaseQueue(q Queue) error {
	d.mu.Lock()
	queue, ok := d.queues.remove(uint64(q))
	d.mu.Unlock()
	if !ok {
		return InvalidCommandQueue
	}
	queue.stop()
	return nil
}
