package pipeline

import (
	"errors"
	"fmt"

	"github.com/cwbudde/saxpycl/internal/cl"
)

// Queue is an in-order command queue on one device of a context.
type Queue struct {
	owned
	ctx    *Context
	id     cl.Queue
	Device Device
}

// CreateQueue opens a command queue on device d. Releasing the queue waits
// for its outstanding commands first.
func (c *Context) CreateQueue(d Device) (*Queue, error) {
	drv := c.rt.driver
	id, err := drv.CreateQueue(c.id, d.ID)
	if err != nil {
		return nil, stageError(StageQueue, err)
	}
	return &Queue{
		owned: owned{kind: "queue", free: func() error {
			return errors.Join(drv.Finish(id), drv.ReleaseQueue(id))
		}},
		ctx:    c,
		id:     id,
		Device: d,
	}, nil
}

// EnqueueKernel submits a one-dimensional launch of k over globalWorkSize
// work-items and returns without waiting for it. Every argument slot must be
// bound first.
func (q *Queue) EnqueueKernel(k *Kernel, globalWorkSize int) error {
	if unbound := k.Unbound(); len(unbound) > 0 {
		return stageError(StageEnqueue, fmt.Errorf("%w: unbound argument slots %v", cl.InvalidKernelArgs, unbound))
	}
	if globalWorkSize <= 0 {
		return stageError(StageEnqueue, cl.InvalidGlobalWorkSize)
	}

	if err := q.ctx.rt.driver.EnqueueNDRange(q.id, k.id, []int{globalWorkSize}, nil); err != nil {
		return stageError(StageEnqueue, err)
	}
	q.ctx.rt.logger.Debug("Kernel enqueued", "kernel", k.Name, "global", globalWorkSize, "device", q.Device.Name)
	return nil
}

// ReadBuffer copies the start of b into dst. It blocks until all work
// enqueued earlier on q has completed.
func (q *Queue) ReadBuffer(b *Buffer, dst []byte) error {
	if len(dst) == 0 || len(dst) > b.Size {
		return stageError(StageReadBack, cl.InvalidValue)
	}
	if err := q.ctx.rt.driver.EnqueueReadBuffer(q.id, b.id, true, 0, dst); err != nil {
		return stageError(StageReadBack, err)
	}
	return nil
}

// ReadFloat32 is ReadBuffer for float element data.
func (q *Queue) ReadFloat32(b *Buffer, dst []float32) error {
	raw := make([]byte, len(dst)*4)
	if err := q.ReadBuffer(b, raw); err != nil {
		return err
	}
	cl.DecodeFloat32(dst, raw)
	return nil
}
