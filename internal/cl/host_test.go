package cl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/saxpycl/kernels"
)

// hostSetup creates a context over every device of the first platform.
func hostSetup(t *testing.T, d *HostDriver) (Context, []Device) {
	t.Helper()

	platforms, err := d.Platforms()
	require.NoError(t, err)
	require.NotEmpty(t, platforms)

	devices, err := d.Devices(platforms[0], DeviceTypeAll)
	require.NoError(t, err)
	require.NotEmpty(t, devices)

	ctx, err := d.CreateContext(platforms[0], devices)
	require.NoError(t, err)
	return ctx, devices
}

func buildKernel(t *testing.T, d *HostDriver, ctx Context, devices []Device, source, name string) Kernel {
	t.Helper()

	program, err := d.CreateProgram(ctx, source)
	require.NoError(t, err)
	require.NoError(t, d.BuildProgram(program, devices, ""))

	kernel, err := d.CreateKernel(program, name)
	require.NoError(t, err)
	require.NoError(t, d.ReleaseProgram(program))
	return kernel
}

func TestHostDriverDefaultTopology(t *testing.T) {
	d := NewHostDriver()
	defer d.Close()

	platforms, err := d.Platforms()
	require.NoError(t, err)
	require.Len(t, platforms, 1)

	info, err := d.PlatformInfo(platforms[0])
	require.NoError(t, err)
	assert.Equal(t, "Host Software Platform", info.Name)

	devices, err := d.Devices(platforms[0], DeviceTypeAll)
	require.NoError(t, err)
	require.Len(t, devices, 1)

	dev, err := d.DeviceInfo(devices[0])
	require.NoError(t, err)
	assert.Equal(t, DeviceTypeCPU, dev.Type)
	assert.NotZero(t, dev.MaxComputeUnits)
	assert.Equal(t, uint64(DefaultHostMemory), dev.GlobalMemSize)
	assert.Equal(t, uint64(DefaultHostMemory/4), dev.MaxMemAllocSize)
}

func TestHostDriverZeroPlatforms(t *testing.T) {
	d := NewHostDriver(WithHostPlatforms())
	defer d.Close()

	platforms, err := d.Platforms()
	require.NoError(t, err)
	assert.Empty(t, platforms)
}

func TestHostDriverDeviceFilter(t *testing.T) {
	d := NewHostDriver(WithHostPlatforms(HostPlatform{
		Name: "mixed",
		Devices: []HostDevice{
			{Name: "cpu0", Type: DeviceTypeCPU},
			{Name: "gpu0", Type: DeviceTypeGPU},
			{Name: "gpu1", Type: DeviceTypeGPU},
		},
	}))
	defer d.Close()

	platforms, _ := d.Platforms()

	tests := []struct {
		filter DeviceType
		want   []string
	}{
		{DeviceTypeAll, []string{"cpu0", "gpu0", "gpu1"}},
		{DeviceTypeGPU, []string{"gpu0", "gpu1"}},
		{DeviceTypeCPU, []string{"cpu0"}},
		{DeviceTypeAccelerator, nil},
		{DeviceTypeDefault, []string{"cpu0"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.filter), func(t *testing.T) {
			devices, err := d.Devices(platforms[0], tt.filter)
			require.NoError(t, err)

			var names []string
			for _, dev := range devices {
				info, err := d.DeviceInfo(dev)
				require.NoError(t, err)
				names = append(names, info.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}

	_, err := d.Devices(platforms[0], DeviceTypeUnknown)
	assert.ErrorIs(t, err, InvalidDeviceType)
}

func TestHostPartialBuildFailureBlocksKernel(t *testing.T) {
	d := NewHostDriver(WithHostPlatforms(HostPlatform{
		Name: "split",
		Devices: []HostDevice{
			{Name: "compiles"},
			{Name: "no-compiler", NoCompiler: true},
		},
	}))
	defer d.Close()

	ctx, devices := hostSetup(t, d)
	require.Len(t, devices, 2)

	program, err := d.CreateProgram(ctx, kernels.SAXPY)
	require.NoError(t, err)
	require.ErrorIs(t, d.BuildProgram(program, devices, ""), CompilerNotAvailable)

	_, err = d.CreateKernel(program, kernels.SAXPYEntryPoint)
	assert.ErrorIs(t, err, InvalidProgramExecutable)

	// Building for the compiling device alone succeeds.
	require.NoError(t, d.BuildProgram(program, devices[:1], ""))
	kernel, err := d.CreateKernel(program, kernels.SAXPYEntryPoint)
	require.NoError(t, err)

	require.NoError(t, d.ReleaseKernel(kernel))
	require.NoError(t, d.ReleaseProgram(program))
	require.NoError(t, d.ReleaseContext(ctx))
	assert.Zero(t, d.LiveObjects())
}

func TestHostDriverRejectsForeignDevice(t *testing.T) {
	d := NewHostDriver(WithHostPlatforms(
		HostPlatform{Name: "a", Devices: []HostDevice{{Name: "a0"}}},
		HostPlatform{Name: "b", Devices: []HostDevice{{Name: "b0"}}},
	))
	defer d.Close()

	platforms, _ := d.Platforms()
	bDevices, _ := d.Devices(platforms[1], DeviceTypeAll)

	_, err := d.CreateContext(platforms[0], bDevices)
	assert.ErrorIs(t, err, InvalidDevice)

	_, err = d.CreateContext(platforms[0], nil)
	assert.ErrorIs(t, err, InvalidValue)
}

func TestHostSAXPY(t *testing.T) {
	d := NewHostDriver()
	defer d.Close()

	ctx, devices := hostSetup(t, d)
	kernel := buildKernel(t, d, ctx, devices, kernels.SAXPY, kernels.SAXPYEntryPoint)

	const n = 1024
	x := make([]float32, n)
	y := make([]float32, n)
	for i := range x {
		x[i] = float32(23 ^ i)
		y[i] = float32(42 ^ i)
	}

	xBuf, err := d.CreateBuffer(ctx, MemReadOnly|MemCopyHostPtr, n*4, Float32Bytes(x))
	require.NoError(t, err)
	yBuf, err := d.CreateBuffer(ctx, MemReadWrite|MemCopyHostPtr, n*4, Float32Bytes(y))
	require.NoError(t, err)

	queue, err := d.CreateQueue(ctx, devices[0])
	require.NoError(t, err)

	require.NoError(t, d.SetKernelArgBuffer(kernel, 0, xBuf))
	require.NoError(t, d.SetKernelArgBuffer(kernel, 1, yBuf))
	require.NoError(t, d.SetKernelArg(kernel, 2, ScalarFloat32(2)))

	require.NoError(t, d.EnqueueNDRange(queue, kernel, []int{n}, nil))

	raw := make([]byte, n*4)
	require.NoError(t, d.EnqueueReadBuffer(queue, yBuf, true, 0, raw))

	got := make([]float32, n)
	DecodeFloat32(got, raw)
	for i := range got {
		if want := x[i] + 2*y[i]; got[i] != want {
			t.Fatalf("element %d: got %v, want %v", i, got[i], want)
		}
	}

	require.NoError(t, d.ReleaseQueue(queue))
	require.NoError(t, d.ReleaseBuffer(yBuf))
	require.NoError(t, d.ReleaseBuffer(xBuf))
	require.NoError(t, d.ReleaseKernel(kernel))
	require.NoError(t, d.ReleaseContext(ctx))
	assert.Zero(t, d.LiveObjects())
}

func TestHostBuildFailureKeepsLog(t *testing.T) {
	d := NewHostDriver()
	defer d.Close()

	ctx, devices := hostSetup(t, d)

	program, err := d.CreateProgram(ctx, "__kernel void SAXPY(__global const float* x, __global float* y, const float a) {\n")
	require.NoError(t, err)

	err = d.BuildProgram(program, devices, "")
	require.ErrorIs(t, err, BuildProgramFailure)

	log, err := d.BuildLog(program, devices[0])
	require.NoError(t, err)
	assert.Contains(t, log, "unbalanced '{'")

	_, err = d.CreateKernel(program, "SAXPY")
	assert.ErrorIs(t, err, InvalidProgramExecutable)
}

func TestHostBuildWithoutCompiler(t *testing.T) {
	d := NewHostDriver(WithHostPlatforms(HostPlatform{
		Name: "p",
		Devices: []HostDevice{
			{Name: "ok"},
			{Name: "broken", NoCompiler: true},
		},
	}))
	defer d.Close()

	ctx, devices := hostSetup(t, d)
	program, err := d.CreateProgram(ctx, kernels.SAXPY)
	require.NoError(t, err)

	err = d.BuildProgram(program, devices, "")
	assert.ErrorIs(t, err, CompilerNotAvailable)

	err = d.BuildProgram(program, devices[:1], "")
	assert.NoError(t, err)
}

func TestHostBuildOptions(t *testing.T) {
	d := NewHostDriver()
	defer d.Close()

	ctx, devices := hostSetup(t, d)
	program, err := d.CreateProgram(ctx, kernels.SAXPY)
	require.NoError(t, err)

	assert.ErrorIs(t, d.BuildProgram(program, devices, "fast-math"), InvalidBuildOptions)
	assert.NoError(t, d.BuildProgram(program, devices, "-cl-fast-relaxed-math -DN=4"))
}

func TestHostCreateKernelUnknownName(t *testing.T) {
	d := NewHostDriver()
	defer d.Close()

	ctx, devices := hostSetup(t, d)
	program, err := d.CreateProgram(ctx, kernels.SAXPY)
	require.NoError(t, err)
	require.NoError(t, d.BuildProgram(program, devices, ""))

	_, err = d.CreateKernel(program, "DAXPY")
	assert.ErrorIs(t, err, InvalidKernelName)
}

func TestHostCreateBufferValidation(t *testing.T) {
	d := NewHostDriver()
	defer d.Close()

	ctx, _ := hostSetup(t, d)

	_, err := d.CreateBuffer(ctx, MemReadWrite, 0, nil)
	assert.ErrorIs(t, err, InvalidBufferSize)

	_, err = d.CreateBuffer(ctx, MemReadWrite|MemCopyHostPtr, 16, make([]byte, 8))
	assert.ErrorIs(t, err, InvalidHostPtr)

	_, err = d.CreateBuffer(ctx, MemReadWrite, 16, make([]byte, 16))
	assert.ErrorIs(t, err, InvalidHostPtr)

	_, err = d.CreateBuffer(ctx, MemReadOnly|MemReadWrite, 16, nil)
	assert.ErrorIs(t, err, InvalidValue)
}

func TestHostCreateBufferAllocLimit(t *testing.T) {
	d := NewHostDriver(WithHostPlatforms(HostPlatform{
		Name:    "small",
		Devices: []HostDevice{{Name: "tiny", GlobalMemSize: 64}},
	}))
	defer d.Close()

	ctx, _ := hostSetup(t, d)

	b, err := d.CreateBuffer(ctx, MemReadWrite, 16, nil)
	require.NoError(t, err)
	require.NoError(t, d.ReleaseBuffer(b))

	_, err = d.CreateBuffer(ctx, MemReadWrite, 17, nil)
	assert.ErrorIs(t, err, InvalidBufferSize)
}

func TestHostCopyHostPtrIsSnapshot(t *testing.T) {
	d := NewHostDriver()
	defer d.Close()

	ctx, devices := hostSetup(t, d)
	host := Float32Bytes([]float32{1, 2, 3, 4})

	buf, err := d.CreateBuffer(ctx, MemReadWrite|MemCopyHostPtr, len(host), host)
	require.NoError(t, err)

	copy(host, Float32Bytes([]float32{9, 9, 9, 9}))

	queue, err := d.CreateQueue(ctx, devices[0])
	require.NoError(t, err)
	defer d.ReleaseQueue(queue)

	raw := make([]byte, len(host))
	require.NoError(t, d.EnqueueReadBuffer(queue, buf, true, 0, raw))

	got := make([]float32, 4)
	DecodeFloat32(got, raw)
	assert.Equal(t, []float32{1, 2, 3, 4}, got)
}

func TestHostKernelArgValidation(t *testing.T) {
	d := NewHostDriver()
	defer d.Close()

	ctx, devices := hostSetup(t, d)
	kernel := buildKernel(t, d, ctx, devices, kernels.SAXPY, kernels.SAXPYEntryPoint)

	n, err := d.KernelNumArgs(kernel)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	buf, err := d.CreateBuffer(ctx, MemReadWrite, 16, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, d.SetKernelArg(kernel, 3, ScalarFloat32(1)), InvalidArgIndex)
	assert.ErrorIs(t, d.SetKernelArg(kernel, 2, []byte{1, 2}), InvalidArgSize)
	assert.ErrorIs(t, d.SetKernelArg(kernel, 0, ScalarFloat32(1)), InvalidArgValue)
	assert.ErrorIs(t, d.SetKernelArgBuffer(kernel, 2, buf), InvalidArgValue)
	assert.ErrorIs(t, d.SetKernelArgBuffer(kernel, 0, Buffer(9999)), InvalidMemObject)
}

func TestHostEnqueueValidation(t *testing.T) {
	d := NewHostDriver()
	defer d.Close()

	ctx, devices := hostSetup(t, d)
	kernel := buildKernel(t, d, ctx, devices, kernels.SAXPY, kernels.SAXPYEntryPoint)

	ro, err := d.CreateBuffer(ctx, MemReadOnly, 64, nil)
	require.NoError(t, err)
	rw, err := d.CreateBuffer(ctx, MemReadWrite, 64, nil)
	require.NoError(t, err)

	queue, err := d.CreateQueue(ctx, devices[0])
	require.NoError(t, err)
	defer d.ReleaseQueue(queue)

	require.NoError(t, d.SetKernelArgBuffer(kernel, 0, ro))
	require.NoError(t, d.SetKernelArgBuffer(kernel, 1, rw))

	assert.ErrorIs(t, d.EnqueueNDRange(queue, kernel, []int{16}, nil), InvalidKernelArgs)

	require.NoError(t, d.SetKernelArg(kernel, 2, ScalarFloat32(2)))

	assert.ErrorIs(t, d.EnqueueNDRange(queue, kernel, nil, nil), InvalidWorkDimension)
	assert.ErrorIs(t, d.EnqueueNDRange(queue, kernel, []int{4, 4}, nil), InvalidWorkDimension)
	assert.ErrorIs(t, d.EnqueueNDRange(queue, kernel, []int{0}, nil), InvalidGlobalWorkSize)
	assert.ErrorIs(t, d.EnqueueNDRange(queue, kernel, []int{16}, []int{5}), InvalidWorkGroupSize)
	assert.NoError(t, d.EnqueueNDRange(queue, kernel, []int{16}, []int{4}))

	// Writable parameter bound to a read-only buffer.
	require.NoError(t, d.SetKernelArgBuffer(kernel, 1, ro))
	assert.ErrorIs(t, d.EnqueueNDRange(queue, kernel, []int{16}, nil), InvalidOperation)

	assert.NoError(t, d.Finish(queue))
}

func TestHostKernelFaultPoisonsQueue(t *testing.T) {
	RegisterHostKernel("OVERRUN", 1, func(i int, args *HostArgs) {
		args.StoreFloat32(0, i+1, 1)
	})

	d := NewHostDriver()
	defer d.Close()

	ctx, devices := hostSetup(t, d)
	kernel := buildKernel(t, d, ctx, devices, "__kernel void OVERRUN(__global float* out) { }", "OVERRUN")

	buf, err := d.CreateBuffer(ctx, MemReadWrite, 4*8, nil)
	require.NoError(t, err)
	require.NoError(t, d.SetKernelArgBuffer(kernel, 0, buf))

	queue, err := d.CreateQueue(ctx, devices[0])
	require.NoError(t, err)
	defer d.ReleaseQueue(queue)

	// Submission succeeds; the fault shows up at the next blocking call.
	require.NoError(t, d.EnqueueNDRange(queue, kernel, []int{8}, nil))

	err = d.EnqueueReadBuffer(queue, buf, true, 0, make([]byte, 4*8))
	require.Error(t, err)
	assert.Equal(t, ExecStatusErrorForEventsInWaitList, StatusOf(err))
}

func TestHostNonBlockingReadCompletesAtFinish(t *testing.T) {
	d := NewHostDriver()
	defer d.Close()

	ctx, devices := hostSetup(t, d)
	host := Float32Bytes([]float32{5, 6})
	buf, err := d.CreateBuffer(ctx, MemReadOnly|MemCopyHostPtr, len(host), host)
	require.NoError(t, err)

	queue, err := d.CreateQueue(ctx, devices[0])
	require.NoError(t, err)

	raw := make([]byte, len(host))
	require.NoError(t, d.EnqueueReadBuffer(queue, buf, false, 0, raw))
	require.NoError(t, d.Finish(queue))
	assert.Equal(t, host, raw)

	require.NoError(t, d.ReleaseQueue(queue))
	assert.ErrorIs(t, d.Finish(queue), InvalidCommandQueue)
	assert.ErrorIs(t, d.ReleaseQueue(queue), InvalidCommandQueue)
}

func TestHostReleaseTwiceFails(t *testing.T) {
	d := NewHostDriver()
	defer d.Close()

	ctx, _ := hostSetup(t, d)
	require.NoError(t, d.ReleaseContext(ctx))

	err := d.ReleaseContext(ctx)
	assert.True(t, errors.Is(err, InvalidContext))
}

func TestHostCloseReleasesEverything(t *testing.T) {
	d := NewHostDriver()

	ctx, devices := hostSetup(t, d)
	_, err := d.CreateQueue(ctx, devices[0])
	require.NoError(t, err)
	_, err = d.CreateBuffer(ctx, MemReadWrite, 4, nil)
	require.NoError(t, err)
	require.Equal(t, 3, d.LiveObjects())

	d.Close()
	assert.Zero(t, d.LiveObjects())
}
