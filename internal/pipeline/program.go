package pipeline

import (
	"fmt"
	"strings"

	"github.com/cwbudde/saxpycl/internal/cl"
)

// Program is kernel source compiled, or about to be compiled, for the
// context's devices.
type Program struct {
	owned
	ctx *Context
	id  cl.Program
}

// CreateProgram registers source with the context. Nothing is compiled yet.
func (c *Context) CreateProgram(source string) (*Program, error) {
	drv := c.rt.driver
	id, err := drv.CreateProgram(c.id, source)
	if err != nil {
		return nil, stageError(StageProgram, err)
	}
	return &Program{
		owned: owned{kind: "program", free: func() error { return drv.ReleaseProgram(id) }},
		ctx:   c,
		id:    id,
	}, nil
}

// Build compiles the program for devices. Any device failing fails the
// build; the returned *StageError carries the compiler log.
func (p *Program) Build(devices []Device, options string) error {
	ids := make([]cl.Device, len(devices))
	for i, d := range devices {
		ids[i] = d.ID
	}

	err := p.ctx.rt.driver.BuildProgram(p.id, ids, options)
	if err == nil {
		return nil
	}

	se := stageError(StageBuild, err)
	se.Log = p.buildLog(devices)
	return se
}

// buildLog collects the non-empty build logs of devices, like the
// compiler would print them.
func (p *Program) buildLog(devices []Device) string {
	logger := p.ctx.rt.logger

	var logs []string
	for _, d := range devices {
		log, err := p.ctx.rt.driver.BuildLog(p.id, d.ID)
		if err != nil {
			logger.Error("OpenCL: failed to fetch build log", "device", d.Name, "err", err)
			continue
		}
		log = strings.TrimSpace(log)
		if log == "" {
			continue
		}
		logger.Error("OpenCL build log", "device", d.Name, "log", log)
		logs = append(logs, fmt.Sprintf("[%s]\n%s", d.Name, log))
	}
	return strings.Join(logs, "\n")
}

// CreateKernel extracts entry point name from the built program.
func (p *Program) CreateKernel(name string) (*Kernel, error) {
	drv := p.ctx.rt.driver
	id, err := drv.CreateKernel(p.id, name)
	if err != nil {
		return nil, stageError(StageKernel, fmt.Errorf("%w: entry point %q", err, name))
	}

	n, err := drv.KernelNumArgs(id)
	if err != nil {
		_ = drv.ReleaseKernel(id)
		return nil, stageError(StageKernel, err)
	}

	return &Kernel{
		owned: owned{kind: "kernel", free: func() error { return drv.ReleaseKernel(id) }},
		drv:   drv,
		id:    id,
		Name:  name,
		bound: make([]bool, n),
	}, nil
}

// Kernel is an invocable entry point with positional argument slots.
type Kernel struct {
	owned
	drv   cl.Driver
	id    cl.Kernel
	Name  string
	bound []bool
}

// NumArgs returns the number of argument slots in the kernel signature.
func (k *Kernel) NumArgs() int {
	return len(k.bound)
}

// SetArg binds a raw scalar value to slot index.
func (k *Kernel) SetArg(index int, value []byte) error {
	if err := k.drv.SetKernelArg(k.id, index, value); err != nil {
		return stageError(StageSetArg, fmt.Errorf("%w: slot %d", err, index))
	}
	k.mark(index)
	return nil
}

// SetArgFloat32 binds a float scalar to slot index.
func (k *Kernel) SetArgFloat32(index int, v float32) error {
	return k.SetArg(index, cl.ScalarFloat32(v))
}

// SetArgBuffer binds b to slot index.
func (k *Kernel) SetArgBuffer(index int, b *Buffer) error {
	if err := k.drv.SetKernelArgBuffer(k.id, index, b.id); err != nil {
		return stageError(StageSetArg, fmt.Errorf("%w: slot %d", err, index))
	}
	k.mark(index)
	return nil
}

func (k *Kernel) mark(index int) {
	if index >= 0 && index < len(k.bound) {
		k.bound[index] = true
	}
}

// Unbound returns the slots that have not been set yet.
func (k *Kernel) Unbound() []int {
	var out []int
	for i, ok := range k.bound {
		if !ok {
			out = append(out, i)
		}
	}
	return out
}
