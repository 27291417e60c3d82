package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/cwbudde/saxpycl/internal/cl"
	"github.com/cwbudde/saxpycl/kernels"
)

const (
	// ElementCount is the length of both vectors and the global work size.
	ElementCount = 1 << 10
	// Scalar is the factor applied to the read-write vector.
	Scalar float32 = 2
)

// ErrMismatch is returned by Verify when the output differs from the
// expected vector.
var ErrMismatch = errors.New("output mismatch")

// TestVectors returns the fixed inputs a[i] = 23^i and b[i] = 42^i.
func TestVectors(n int) (a, b []float32) {
	a = make([]float32, n)
	b = make([]float32, n)
	for i := 0; i < n; i++ {
		a[i] = float32(23 ^ i)
		b[i] = float32(42 ^ i)
	}
	return a, b
}

// ExpectedSAXPY computes a[i] + scalar*b[i] on the host.
func ExpectedSAXPY(a, b []float32, scalar float32) []float32 {
	out := make([]float32, len(a))
	for i := range a {
		out[i] = a[i] + scalar*b[i]
	}
	return out
}

// Verify compares got against want element by element, exactly.
func Verify(got, want []float32) error {
	if len(got) != len(want) {
		return fmt.Errorf("%w: length %d, want %d", ErrMismatch, len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			return fmt.Errorf("%w: element %d is %v, want %v", ErrMismatch, i, got[i], want[i])
		}
	}
	return nil
}

// LoadKernelSource reads UTF-8 kernel source from path. An empty path
// returns the embedded SAXPY kernel.
func LoadKernelSource(path string) (string, error) {
	if path == "" {
		return kernels.SAXPY, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read kernel source: %w", err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("kernel source %s is not valid UTF-8", path)
	}
	return string(data), nil
}

// Options configures RunSAXPY.
type Options struct {
	Source       string
	EntryPoint   string
	BuildOptions string
	DeviceType   cl.DeviceType
	// Progress receives human-readable progress lines. Nil discards them.
	Progress io.Writer
}

// Result is the outcome of a completed run.
type Result struct {
	RunID     string
	Platforms []Platform
	Devices   []Device
	// Device is the device the kernel ran on.
	Device Device
	Input  []float32
	Output []float32
}

// RunSAXPY executes the whole pipeline once: first platform, all its
// devices, one launch of the entry point on the first device, blocking
// read-back of the read-write vector. The first failure ends the run; all
// objects created so far are released before RunSAXPY returns.
func (r *Runtime) RunSAXPY(opts Options) (res *Result, err error) {
	if opts.EntryPoint == "" {
		opts.EntryPoint = kernels.SAXPYEntryPoint
	}
	if opts.DeviceType == "" {
		opts.DeviceType = cl.DeviceTypeAll
	}
	out := opts.Progress
	if out == nil {
		out = io.Discard
	}

	runID := uuid.NewString()
	logger := r.logger.With("run", runID)
	rt := &Runtime{driver: r.driver, logger: logger}

	scope := NewScope(logger)
	defer func() {
		if cerr := scope.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	platforms, err := rt.Platforms()
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Found %d platform(s)\n", len(platforms))
	for i, p := range platforms {
		fmt.Fprintf(out, "\t (%d) : %s\n", i+1, p.Name)
	}

	platform := platforms[0]
	devices, err := rt.Devices(platform, opts.DeviceType)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Found %d device(s)\n", len(devices))
	for i, d := range devices {
		fmt.Fprintf(out, "\t (%d) : %s\n", i+1, d.Name)
	}

	ctx, err := rt.CreateContext(platform, devices)
	if err != nil {
		return nil, err
	}
	scope.Add(ctx)
	fmt.Fprintln(out, "Context created")

	program, err := ctx.CreateProgram(opts.Source)
	if err != nil {
		return nil, err
	}
	scope.Add(program)

	if err := program.Build(devices, opts.BuildOptions); err != nil {
		return nil, err
	}

	kernel, err := program.CreateKernel(opts.EntryPoint)
	if err != nil {
		return nil, err
	}
	scope.Add(kernel)

	// Kernel extraction is the program's only use.
	if err := program.Release(); err != nil {
		return nil, err
	}

	a, b := TestVectors(ElementCount)
	size := ElementCount * 4

	aBuffer, err := ctx.CreateBuffer(ReadOnly, size, cl.Float32Bytes(a))
	if err != nil {
		return nil, err
	}
	scope.Add(aBuffer)

	bBuffer, err := ctx.CreateBuffer(ReadWrite, size, cl.Float32Bytes(b))
	if err != nil {
		return nil, err
	}
	scope.Add(bBuffer)

	device := devices[0]
	queue, err := ctx.CreateQueue(device)
	if err != nil {
		return nil, err
	}
	scope.Add(queue)

	if err := kernel.SetArgBuffer(0, aBuffer); err != nil {
		return nil, err
	}
	if err := kernel.SetArgBuffer(1, bBuffer); err != nil {
		return nil, err
	}
	if err := kernel.SetArgFloat32(2, Scalar); err != nil {
		return nil, err
	}

	if err := queue.EnqueueKernel(kernel, ElementCount); err != nil {
		return nil, err
	}

	output := make([]float32, ElementCount)
	if err := queue.ReadFloat32(bBuffer, output); err != nil {
		return nil, err
	}
	if err := queue.Release(); err != nil {
		return nil, err
	}

	logger.Info("SAXPY completed", "platform", platform.Name, "device", device.Name, "elements", ElementCount)

	return &Result{
		RunID:     runID,
		Platforms: platforms,
		Devices:   devices,
		Device:    device,
		Input:     b,
		Output:    output,
	}, nil
}
