// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build opencl

package opencl

import (
	"errors"
	"time"

	"github.com/jgillich/go-opencl/cl"

	"github.com/gogpu/blur/gpucore"
)

// Enqueue sets the kernel arguments and enqueues the NDRange.
func (d *Device) Enqueue(desc gpucore.DispatchDesc) (*gpucore.Event, error) {
	const op = "enqueue"
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, gpucore.Errorf(gpucore.StatusDeviceNotAvailable, op, "device closed")
	}

	p, ok := d.programs[desc.Program]
	if !ok {
		return nil, gpucore.Errorf(gpucore.StatusInvalidProgram, op, "program#%d", desc.Program)
	}
	kernel, ok := p.kernels[desc.Entry]
	if !ok {
		return nil, gpucore.Errorf(gpucore.StatusInvalidKernelName, op, "%s has no entry %q", p.name, desc.Entry)
	}

	for i, a := range desc.Args {
		var v any
		switch a.Kind {
		case gpucore.ArgMemory:
			m, ok := d.mems[a.Memory]
			if !ok {
				return nil, gpucore.Errorf(gpucore.StatusInvalidMemObject, op, "arg %d: mem#%d released", i, a.Memory)
			}
			v = m.mem
		case gpucore.ArgUint:
			v = a.Value
		case gpucore.ArgInt:
			v = a.Int32()
		case gpucore.ArgLocal:
			v = cl.LocalBuffer(a.Size)
		}
		if err := kernel.SetArg(i, v); err != nil {
			return nil, wrap(op, err)
		}
	}

	global := []int{desc.Global[0], desc.Global[1]}
	local := []int{desc.Local[0], desc.Local[1]}
	event, err := d.queue.EnqueueNDRangeKernel(kernel, nil, global, local, nil)
	if err != nil {
		return nil, wrap(op, err)
	}
	d.log().Debug("opencl: kernel enqueued", "entry", p.name+"."+desc.Entry,
		"global", desc.Global.String(), "local", desc.Local.String())

	if !desc.Profile {
		event.Release()
		return nil, nil
	}
	evt := &gpucore.Event{}
	d.pending = append(d.pending, profiled{cl: event, evt: evt})
	return evt, nil
}

// completeProfiled copies device timestamps of finished commands into
// their events. Callers hold d.mu and have waited for the queue.
func (d *Device) completeProfiled() error {
	var errs []error
	for _, p := range d.pending {
		start, err1 := p.cl.GetEventProfilingInfo(cl.ProfilingInfoCommandStart)
		end, err2 := p.cl.GetEventProfilingInfo(cl.ProfilingInfoCommandEnd)
		if err := errors.Join(err1, err2); err != nil {
			errs = append(errs, gpucore.Errorf(gpucore.StatusProfilingInfoNotAvailable, "profiling", "%v", err))
		} else {
			p.evt.Complete(time.Unix(0, start), time.Unix(0, end))
		}
		p.cl.Release()
	}
	d.pending = d.pending[:0]
	return errors.Join(errs...)
}

// finish waits for the queue. Callers hold d.mu.
func (d *Device) finish() error {
	if err := d.queue.Finish(); err != nil {
		return wrap("finish", err)
	}
	return d.completeProfiled()
}

// Finish waits for every enqueued command.
func (d *Device) Finish() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finish()
}
