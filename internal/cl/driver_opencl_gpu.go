//go:build gpu

package cl

/*
#cgo LDFLAGS: -lOpenCL
#define CL_TARGET_OPENCL_VERSION 120
#define CL_USE_DEPRECATED_OPENCL_1_2_APIS
#include <CL/cl.h>
#include <stdlib.h>

static cl_context saxpycl_create_context(cl_platform_id platform, cl_uint count, const cl_device_id *devices, cl_int *status) {
	cl_context_properties props[] = {
		CL_CONTEXT_PLATFORM, (cl_context_properties)platform,
		0
	};
	return clCreateContext(props, count, devices, NULL, NULL, status);
}

static cl_program saxpycl_create_program(cl_context ctx, const char *source, size_t length, cl_int *status) {
	return clCreateProgramWithSource(ctx, 1, &source, &length, status);
}

static cl_command_queue saxpycl_create_queue(cl_context ctx, cl_device_id device, cl_int *status) {
#if CL_TARGET_OPENCL_VERSION >= 200
	const cl_queue_properties props[] = {0};
	return clCreateCommandQueueWithProperties(ctx, device, props, status);
#else
	return clCreateCommandQueue(ctx, device, 0, status);
#endif
}
*/
import "C"

import (
	"sync"
	"unsafe"
)

// openCLDriver binds Driver to the system OpenCL ICD loader.
type openCLDriver struct {
	mu sync.Mutex

	platforms *handles[C.cl_platform_id]
	devices   *handles[C.cl_device_id]
	contexts  *handles[C.cl_context]
	programs  *handles[C.cl_program]
	kernels   *handles[C.cl_kernel]
	buffers   *handles[C.cl_mem]
	queues    *handles[C.cl_command_queue]
}

func newOpenCLDriver() (*openCLDriver, error) {
	return &openCLDriver{
		platforms: newHandles[C.cl_platform_id](),
		devices:   newHandles[C.cl_device_id](),
		contexts:  newHandles[C.cl_context](),
		programs:  newHandles[C.cl_program](),
		kernels:   newHandles[C.cl_kernel](),
		buffers:   newHandles[C.cl_mem](),
		queues:    newHandles[C.cl_command_queue](),
	}, nil
}

// Close releases every object still registered with the driver.
func (d *openCLDriver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.queues.each(func(id uint64, q C.cl_command_queue) {
		C.clReleaseCommandQueue(q)
		d.queues.remove(id)
	})
	d.kernels.each(func(id uint64, k C.cl_kernel) {
		C.clReleaseKernel(k)
		d.kernels.remove(id)
	})
	d.buffers.each(func(id uint64, m C.cl_mem) {
		C.clReleaseMemObject(m)
		d.buffers.remove(id)
	})
	d.programs.each(func(id uint64, p C.cl_program) {
		C.clReleaseProgram(p)
		d.programs.remove(id)
	})
	d.contexts.each(func(id uint64, c C.cl_context) {
		C.clReleaseContext(c)
		d.contexts.remove(id)
	})
}

func (d *openCLDriver) Platforms() ([]Platform, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var count C.cl_uint
	status := Status(C.clGetPlatformIDs(0, nil, &count))
	if status == PlatformNotFoundKHR {
		return nil, nil
	}
	if err := check(status); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	ids := make([]C.cl_platform_id, int(count))
	if err := check(Status(C.clGetPlatformIDs(count, &ids[0], nil))); err != nil {
		return nil, err
	}

	out := make([]Platform, len(ids))
	for i, id := range ids {
		out[i] = Platform(d.platforms.add(id))
	}
	return out, nil
}

func (d *openCLDriver) PlatformInfo(p Platform) (PlatformInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.platforms.get(uint64(p))
	if !ok {
		return PlatformInfo{}, InvalidPlatform
	}

	name, err := getPlatformString(id, C.CL_PLATFORM_NAME)
	if err != nil {
		return PlatformInfo{}, err
	}
	vendor, err := getPlatformString(id, C.CL_PLATFORM_VENDOR)
	if err != nil {
		return PlatformInfo{}, err
	}
	version, err := getPlatformString(id, C.CL_PLATFORM_VERSION)
	if err != nil {
		return PlatformInfo{}, err
	}
	return PlatformInfo{Name: name, Vendor: vendor, Version: version}, nil
}

func (d *openCLDriver) Devices(p Platform, filter DeviceType) ([]Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pid, ok := d.platforms.get(uint64(p))
	if !ok {
		return nil, InvalidPlatform
	}
	dt, ok := nativeDeviceType(filter)
	if !ok {
		return nil, InvalidDeviceType
	}

	var count C.cl_uint
	status := Status(C.clGetDeviceIDs(pid, dt, 0, nil, &count))
	if status == DeviceNotFound || (status == Success && count == 0) {
		return nil, nil
	}
	if err := check(status); err != nil {
		return nil, err
	}

	ids := make([]C.cl_device_id, int(count))
	if err := check(Status(C.clGetDeviceIDs(pid, dt, count, &ids[0], nil))); err != nil {
		return nil, err
	}

	out := make([]Device, len(ids))
	for i, id := range ids {
		out[i] = Device(d.devices.add(id))
	}
	return out, nil
}

func (d *openCLDriver) DeviceInfo(dev Device) (DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.devices.get(uint64(dev))
	if !ok {
		return DeviceInfo{}, InvalidDevice
	}

	name, err := getDeviceString(id, C.CL_DEVICE_NAME)
	if err != nil {
		return DeviceInfo{}, err
	}
	vendor, err := getDeviceString(id, C.CL_DEVICE_VENDOR)
	if err != nil {
		return DeviceInfo{}, err
	}
	version, err := getDeviceString(id, C.CL_DEVICE_VERSION)
	if err != nil {
		return DeviceInfo{}, err
	}

	var rawType C.cl_device_type
	status := Status(C.clGetDeviceInfo(id, C.CL_DEVICE_TYPE, C.size_t(unsafe.Sizeof(rawType)), unsafe.Pointer(&rawType), nil))
	if err := check(status); err != nil {
		return DeviceInfo{}, err
	}

	var computeUnits C.cl_uint
	status = Status(C.clGetDeviceInfo(id, C.CL_DEVICE_MAX_COMPUTE_UNITS, C.size_t(unsafe.Sizeof(computeUnits)), unsafe.Pointer(&computeUnits), nil))
	if err := check(status); err != nil {
		return DeviceInfo{}, err
	}

	var globalMem, maxAlloc C.cl_ulong
	status = Status(C.clGetDeviceInfo(id, C.CL_DEVICE_GLOBAL_MEM_SIZE, C.size_t(unsafe.Sizeof(globalMem)), unsafe.Pointer(&globalMem), nil))
	if err := check(status); err != nil {
		return DeviceInfo{}, err
	}
	status = Status(C.clGetDeviceInfo(id, C.CL_DEVICE_MAX_MEM_ALLOC_SIZE, C.size_t(unsafe.Sizeof(maxAlloc)), unsafe.Pointer(&maxAlloc), nil))
	if err := check(status); err != nil {
		return DeviceInfo{}, err
	}

	return DeviceInfo{
		Name:            name,
		Vendor:          vendor,
		Version:         version,
		Type:            mapDeviceType(rawType),
		MaxComputeUnits: uint32(computeUnits),
		GlobalMemSize:   uint64(globalMem),
		MaxMemAllocSize: uint64(maxAlloc),
	}, nil
}

func (d *openCLDriver) CreateContext(p Platform, devices []Device) (Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pid, ok := d.platforms.get(uint64(p))
	if !ok {
		return 0, InvalidPlatform
	}
	ids, err := d.resolveDevices(devices)
	if err != nil {
		return 0, err
	}

	var status C.cl_int
	ctx := C.saxpycl_create_context(pid, C.cl_uint(len(ids)), &ids[0], &status)
	if err := check(Status(status)); err != nil {
		return 0, err
	}
	return Context(d.contexts.add(ctx)), nil
}

func (d *openCLDriver) ReleaseContext(c Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, ok := d.contexts.remove(uint64(c))
	if !ok {
		return InvalidContext
	}
	return check(Status(C.clReleaseContext(ctx)))
}

func (d *openCLDriver) CreateProgram(c Context, source string) (Program, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, ok := d.contexts.get(uint64(c))
	if !ok {
		return 0, InvalidContext
	}

	src := C.CString(source)
	defer C.free(unsafe.Pointer(src))

	var status C.cl_int
	program := C.saxpycl_create_program(ctx, src, C.size_t(len(source)), &status)
	if err := check(Status(status)); err != nil {
		return 0, err
	}
	return Program(d.programs.add(program)), nil
}

func (d *openCLDriver) BuildProgram(p Program, devices []Device, options string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	program, ok := d.programs.get(uint64(p))
	if !ok {
		return InvalidProgram
	}
	ids, err := d.resolveDevices(devices)
	if err != nil {
		return err
	}

	opts := C.CString(options)
	defer C.free(unsafe.Pointer(opts))

	return check(Status(C.clBuildProgram(program, C.cl_uint(len(ids)), &ids[0], opts, nil, nil)))
}

func (d *openCLDriver) BuildLog(p Program, dev Device) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	program, ok := d.programs.get(uint64(p))
	if !ok {
		return "", InvalidProgram
	}
	id, ok := d.devices.get(uint64(dev))
	if !ok {
		return "", InvalidDevice
	}

	var logSize C.size_t
	if err := check(Status(C.clGetProgramBuildInfo(program, id, C.CL_PROGRAM_BUILD_LOG, 0, nil, &logSize))); err != nil {
		return "", err
	}
	if logSize == 0 {
		return "", nil
	}

	buf := make([]byte, int(logSize))
	if err := check(Status(C.clGetProgramBuildInfo(program, id, C.CL_PROGRAM_BUILD_LOG, logSize, unsafe.Pointer(&buf[0]), nil))); err != nil {
		return "", err
	}
	return trimNull(buf), nil
}

func (d *openCLDriver) ReleaseProgram(p Program) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	program, ok := d.programs.remove(uint64(p))
	if !ok {
		return InvalidProgram
	}
	return check(Status(C.clReleaseProgram(program)))
}

func (d *openCLDriver) CreateKernel(p Program, name string) (Kernel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	program, ok := d.programs.get(uint64(p))
	if !ok {
		return 0, InvalidProgram
	}

	kernelName := C.CString(name)
	defer C.free(unsafe.Pointer(kernelName))

	var status C.cl_int
	kernel := C.clCreateKernel(program, kernelName, &status)
	if err := check(Status(status)); err != nil {
		return 0, err
	}
	return Kernel(d.kernels.add(kernel)), nil
}

func (d *openCLDriver) KernelNumArgs(k Kernel) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kernel, ok := d.kernels.get(uint64(k))
	if !ok {
		return 0, InvalidKernel
	}

	var n C.cl_uint
	if err := check(Status(C.clGetKernelInfo(kernel, C.CL_KERNEL_NUM_ARGS, C.size_t(unsafe.Sizeof(n)), unsafe.Pointer(&n), nil))); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (d *openCLDriver) SetKernelArg(k Kernel, index int, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	kernel, ok := d.kernels.get(uint64(k))
	if !ok {
		return InvalidKernel
	}
	if index < 0 {
		return InvalidArgIndex
	}
	if len(value) == 0 {
		return InvalidArgSize
	}
	return check(Status(C.clSetKernelArg(kernel, C.cl_uint(index), C.size_t(len(value)), unsafe.Pointer(&value[0]))))
}

func (d *openCLDriver) SetKernelArgBuffer(k Kernel, index int, b Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	kernel, ok := d.kernels.get(uint64(k))
	if !ok {
		return InvalidKernel
	}
	mem, ok := d.buffers.get(uint64(b))
	if !ok {
		return InvalidMemObject
	}
	if index < 0 {
		return InvalidArgIndex
	}
	return check(Status(C.clSetKernelArg(kernel, C.cl_uint(index), C.size_t(unsafe.Sizeof(mem)), unsafe.Pointer(&mem))))
}

func (d *openCLDriver) ReleaseKernel(k Kernel) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	kernel, ok := d.kernels.remove(uint64(k))
	if !ok {
		return InvalidKernel
	}
	return check(Status(C.clReleaseKernel(kernel)))
}

func (d *openCLDriver) CreateBuffer(c Context, flags MemFlags, size int, host []byte) (Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, ok := d.contexts.get(uint64(c))
	if !ok {
		return 0, InvalidContext
	}
	if size <= 0 {
		return 0, InvalidBufferSize
	}

	var hostPtr unsafe.Pointer
	if flags&MemCopyHostPtr != 0 {
		if len(host) < size {
			return 0, InvalidHostPtr
		}
		hostPtr = unsafe.Pointer(&host[0])
	} else if host != nil {
		return 0, InvalidHostPtr
	}

	var status C.cl_int
	mem := C.clCreateBuffer(ctx, C.cl_mem_flags(flags), C.size_t(size), hostPtr, &status)
	if err := check(Status(status)); err != nil {
		return 0, err
	}
	return Buffer(d.buffers.add(mem)), nil
}

func (d *openCLDriver) ReleaseBuffer(b Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	mem, ok := d.buffers.remove(uint64(b))
	if !ok {
		return InvalidMemObject
	}
	return check(Status(C.clReleaseMemObject(mem)))
}

func (d *openCLDriver) CreateQueue(c Context, dev Device) (Queue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, ok := d.contexts.get(uint64(c))
	if !ok {
		return 0, InvalidContext
	}
	id, ok := d.devices.get(uint64(dev))
	if !ok {
		return 0, InvalidDevice
	}

	var status C.cl_int
	queue := C.saxpycl_create_queue(ctx, id, &status)
	if err := check(Status(status)); err != nil {
		return 0, err
	}
	return Queue(d.queues.add(queue)), nil
}

func (d *openCLDriver) EnqueueNDRange(q Queue, k Kernel, global, local []int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	queue, ok := d.queues.get(uint64(q))
	if !ok {
		return InvalidCommandQueue
	}
	kernel, ok := d.kernels.get(uint64(k))
	if !ok {
		return InvalidKernel
	}
	if len(global) < 1 || len(global) > 3 {
		return InvalidWorkDimension
	}
	if local != nil && len(local) != len(global) {
		return InvalidWorkDimension
	}

	gws := make([]C.size_t, len(global))
	for i, g := range global {
		gws[i] = C.size_t(g)
	}
	var lwsPtr *C.size_t
	if local != nil {
		lws := make([]C.size_t, len(local))
		for i, l := range local {
			lws[i] = C.size_t(l)
		}
		lwsPtr = &lws[0]
	}

	return check(Status(C.clEnqueueNDRangeKernel(queue, kernel, C.cl_uint(len(gws)), nil, &gws[0], lwsPtr, 0, nil, nil)))
}

func (d *openCLDriver) EnqueueReadBuffer(q Queue, b Buffer, blocking bool, offset int, dst []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	queue, ok := d.queues.get(uint64(q))
	if !ok {
		return InvalidCommandQueue
	}
	mem, ok := d.buffers.get(uint64(b))
	if !ok {
		return InvalidMemObject
	}
	// Go memory must not be retained by C after the call returns.
	if !blocking {
		return InvalidOperation
	}
	if len(dst) == 0 || offset < 0 {
		return InvalidValue
	}

	return check(Status(C.clEnqueueReadBuffer(queue, mem, C.CL_TRUE, C.size_t(offset), C.size_t(len(dst)), unsafe.Pointer(&dst[0]), 0, nil, nil)))
}

func (d *openCLDriver) Finish(q Queue) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	queue, ok := d.queues.get(uint64(q))
	if !ok {
		return InvalidCommandQueue
	}
	return check(Status(C.clFinish(queue)))
}

func (d *openCLDriver) ReleaseQueue(q Queue) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	queue, ok := d.queues.remove(uint64(q))
	if !ok {
		return InvalidCommandQueue
	}
	return check(Status(C.clReleaseCommandQueue(queue)))
}

func (d *openCLDriver) resolveDevices(devices []Device) ([]C.cl_device_id, error) {
	if len(devices) == 0 {
		return nil, InvalidValue
	}
	ids := make([]C.cl_device_id, len(devices))
	for i, dev := range devices {
		id, ok := d.devices.get(uint64(dev))
		if !ok {
			return nil, InvalidDevice
		}
		ids[i] = id
	}
	return ids, nil
}

func getPlatformString(id C.cl_platform_id, param C.cl_platform_info) (string, error) {
	var size C.size_t
	if err := check(Status(C.clGetPlatformInfo(id, param, 0, nil, &size))); err != nil {
		return "", err
	}
	if size == 0 {
		return "", nil
	}

	buf := make([]byte, int(size))
	if err := check(Status(C.clGetPlatformInfo(id, param, size, unsafe.Pointer(&buf[0]), nil))); err != nil {
		return "", err
	}
	return trimNull(buf), nil
}

func getDeviceString(id C.cl_device_id, param C.cl_device_info) (string, error) {
	var size C.size_t
	if err := check(Status(C.clGetDeviceInfo(id, param, 0, nil, &size))); err != nil {
		return "", err
	}
	if size == 0 {
		return "", nil
	}

	buf := make([]byte, int(size))
	if err := check(Status(C.clGetDeviceInfo(id, param, size, unsafe.Pointer(&buf[0]), nil))); err != nil {
		return "", err
	}
	return trimNull(buf), nil
}

func trimNull(buf []byte) string {
	if len(buf) == 0 {
		return ""
	}
	if buf[len(buf)-1] == 0 {
		buf = buf[:len(buf)-1]
	}
	return string(buf)
}

func nativeDeviceType(filter DeviceType) (C.cl_device_type, bool) {
	switch filter {
	case DeviceTypeAll:
		return C.CL_DEVICE_TYPE_ALL, true
	case DeviceTypeGPU:
		return C.CL_DEVICE_TYPE_GPU, true
	case DeviceTypeCPU:
		return C.CL_DEVICE_TYPE_CPU, true
	case DeviceTypeAccelerator:
		return C.CL_DEVICE_TYPE_ACCELERATOR, true
	case DeviceTypeDefault:
		return C.CL_DEVICE_TYPE_DEFAULT, true
	default:
		return 0, false
	}
}

func mapDeviceType(dt C.cl_device_type) DeviceType {
	switch {
	case dt&C.CL_DEVICE_TYPE_GPU != 0:
		return DeviceTypeGPU
	case dt&C.CL_DEVICE_TYPE_CPU != 0:
		return DeviceTypeCPU
	case dt&C.CL_DEVICE_TYPE_ACCELERATOR != 0:
		return DeviceTypeAccelerator
	case dt&C.CL_DEVICE_TYPE_DEFAULT != 0:
		return DeviceTypeDefault
	default:
		return DeviceTypeUnknown
	}
}
