package cl

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

type hostCommand struct {
	run func() error
	ack chan error
}

// hostQueue is an in-order queue: a single worker drains commands FIFO.
// Once a command fails the queue is poisoned and every later command is
// skipped and reported as failed.
type hostQueue struct {
	ctx    *hostContext
	device *hostDevice

	mu     sync.Mutex
	closed bool
	cmds   chan hostCommand
	done   chan struct{}

	// fault is owned by the worker goroutine.
	fault error
}

func newHostQueue(ctx *hostContext, device *hostDevice) *hostQueue {
	q := &hostQueue{
		ctx:    ctx,
		device: device,
		cmds:   make(chan hostCommand, 64),
		done:   make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *hostQueue) loop() {
	defer close(q.done)
	for cmd := range q.cmds {
		var err error
		if q.fault != nil {
			err = fmt.Errorf("%w: %v", ExecStatusErrorForEventsInWaitList, q.fault)
		} else if err = cmd.run(); err != nil {
			q.fault = err
		}
		if cmd.ack != nil {
			cmd.ack <- err
		}
	}
}

// submit appends run to the queue. A blocking submit waits until run and
// everything enqueued before it has retired.
func (q *hostQueue) submit(run func() error, blocking bool) error {
	cmd := hostCommand{run: run}
	if blocking {
		cmd.ack = make(chan error, 1)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return InvalidCommandQueue
	}
	q.cmds <- cmd
	q.mu.Unlock()

	if !blocking {
		return nil
	}
	return <-cmd.ack
}

// stop drains pending work and ends the worker.
func (q *hostQueue) stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.cmds)
	q.mu.Unlock()
	<-q.done
}

type launch struct {
	name   string
	fn     HostKernelFunc
	args   *HostArgs
	global int
	units  int
}

// prepareLaunch validates a kernel launch and snapshots its arguments.
// Callers hold the driver lock.
func prepareLaunch(q *hostQueue, k *hostKernel, global, local []int) (*launch, error) {
	if k.ctx != q.ctx {
		return nil, InvalidContext
	}
	// The host device executes one-dimensional ranges only.
	if len(global) != 1 {
		return nil, InvalidWorkDimension
	}
	if global[0] <= 0 {
		return nil, InvalidGlobalWorkSize
	}
	if local != nil {
		if len(local) != len(global) {
			return nil, InvalidWorkDimension
		}
		if local[0] <= 0 || global[0]%local[0] != 0 {
			return nil, InvalidWorkGroupSize
		}
	}

	values := make([]argValue, len(k.args))
	for i, arg := range k.args {
		if !arg.set {
			return nil, InvalidKernelArgs
		}
		if k.decl.params[i].kind == argGlobal && arg.buf.flags&MemReadOnly != 0 {
			return nil, InvalidOperation
		}
		values[i] = arg
	}

	return &launch{
		name:   k.decl.name,
		fn:     k.fn,
		args:   &HostArgs{values: values},
		global: global[0],
		units:  int(q.device.info.MaxComputeUnits),
	}, nil
}

// run spreads the work-items over at most units goroutines.
func (l *launch) run() error {
	units := max(l.units, 1)
	chunk := (l.global + units - 1) / units

	var g errgroup.Group
	g.SetLimit(units)
	for start := 0; start < l.global; start += chunk {
		end := min(start+chunk, l.global)
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: kernel %s faulted in work-items [%d,%d): %v", OutOfResources, l.name, start, end, r)
				}
			}()
			for item := start; item < end; item++ {
				l.fn(item, l.args)
			}
			return nil
		})
	}

	err := g.Wait()
	slog.Debug("Host kernel retired", "kernel", l.name, "global", l.global, "chunk", chunk, "err", err)
	return err
}
