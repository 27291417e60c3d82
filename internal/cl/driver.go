package cl

// Driver is the compute runtime contract: one method per OpenCL entry point
// the pipeline needs. Failures are returned as Status values.
//
// Enumeration methods return an empty slice, not an error, when nothing is
// found; deciding whether that is fatal belongs to the caller.
type Driver interface {
	Platforms() ([]Platform, error)
	PlatformInfo(Platform) (PlatformInfo, error)
	Devices(Platform, DeviceType) ([]Device, error)
	DeviceInfo(Device) (DeviceInfo, error)

	CreateContext(Platform, []Device) (Context, error)
	ReleaseContext(Context) error

	CreateProgram(ctx Context, source string) (Program, error)
	BuildProgram(p Program, devices []Device, options string) error
	BuildLog(Program, Device) (string, error)
	ReleaseProgram(Program) error

	CreateKernel(p Program, name string) (Kernel, error)
	KernelNumArgs(Kernel) (int, error)
	SetKernelArg(k Kernel, index int, value []byte) error
	SetKernelArgBuffer(k Kernel, index int, b Buffer) error
	ReleaseKernel(Kernel) error

	// CreateBuffer allocates size bytes. With MemCopyHostPtr the host slice
	// is copied once and not referenced afterwards.
	CreateBuffer(ctx Context, flags MemFlags, size int, host []byte) (Buffer, error)
	ReleaseBuffer(Buffer) error

	CreateQueue(Context, Device) (Queue, error)
	// EnqueueNDRange submits a kernel launch. A nil local size lets the
	// runtime pick the work-group partitioning.
	EnqueueNDRange(q Queue, k Kernel, global, local []int) error
	EnqueueReadBuffer(q Queue, b Buffer, blocking bool, offset int, dst []byte) error
	Finish(Queue) error
	ReleaseQueue(Queue) error
}
