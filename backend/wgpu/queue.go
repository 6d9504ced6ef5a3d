// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package wgpu

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/blur/gpucore"
)

// Buffer program argument indices.
const (
	argSrc = iota
	argChannels
	argMask
	argWeights
	argKernelLen
	argWidth
	argHeight
	argPitch
)

// paramsSize is the size of the WGSL Params uniform.
const paramsSize = 32

// submission is a dispatch in flight and the objects it keeps alive.
type submission struct {
	name      string
	cmdBuf    hal.CommandBuffer
	fence     hal.Fence
	uniform   hal.Buffer
	bindGroup hal.BindGroup
	submitted time.Time
	event     *gpucore.Event
}

// packParams lays out the scalar arguments as the Params uniform.
func packParams(args []gpucore.Arg) []byte {
	out := make([]byte, paramsSize)
	for i, idx := range []int{argChannels, argMask, argKernelLen, argWidth, argHeight, argPitch} {
		binary.LittleEndian.PutUint32(out[i*4:], args[idx].Value)
	}
	return out
}

// resolved holds the validated memory arguments of a dispatch.
type resolved struct {
	src, weights, dst *buffer
}

func (d *Device) resolve(p *program, args []gpucore.Arg) (resolved, error) {
	const op = "enqueue"
	want := 9
	if p.layout.kernelLen > 0 {
		want = 10
	}
	if len(args) != want {
		return resolved{}, gpucore.Errorf(gpucore.StatusInvalidKernelArgs, op, "%d arguments, entry takes %d", len(args), want)
	}
	dstIdx := want - 1

	mem := func(i int, read, write bool) (*buffer, error) {
		a := args[i]
		if a.Kind != gpucore.ArgMemory {
			return nil, gpucore.Errorf(gpucore.StatusInvalidArgValue, op, "arg %d: %s is not a memory object", i, a)
		}
		b, ok := d.buffers[a.Memory]
		if !ok {
			return nil, gpucore.Errorf(gpucore.StatusInvalidMemObject, op, "arg %d: mem#%d released", i, a.Memory)
		}
		if (read && !b.access.CanRead()) || (write && !b.access.CanWrite()) {
			return nil, gpucore.Errorf(gpucore.StatusInvalidMemObject, op, "arg %d: %s is %s", i, b.label, b.access)
		}
		return b, nil
	}

	var r resolved
	var err error
	if r.src, err = mem(argSrc, true, false); err != nil {
		return r, err
	}
	if r.weights, err = mem(argWeights, true, false); err != nil {
		return r, err
	}
	if r.dst, err = mem(dstIdx, false, true); err != nil {
		return r, err
	}
	for _, i := range []int{argChannels, argMask, argKernelLen, argWidth, argHeight, argPitch} {
		if k := args[i].Kind; k != gpucore.ArgUint && k != gpucore.ArgInt {
			return r, gpucore.Errorf(gpucore.StatusInvalidArgValue, op, "arg %d: %s is not a scalar", i, args[i])
		}
	}

	klen := int(args[argKernelLen].Value)
	if klen <= 0 || uint64(klen)*4 > r.weights.size {
		return r, gpucore.Errorf(gpucore.StatusInvalidArgValue, op, "kernel length %d with %d weights", klen, r.weights.size/4)
	}
	if p.layout.kernelLen > 0 {
		if a := args[8]; a.Kind != gpucore.ArgLocal {
			return r, gpucore.Errorf(gpucore.StatusInvalidArgSize, op, "arg 8: %s is not a local allocation", a)
		}
		if klen > p.layout.kernelLen {
			return r, gpucore.Errorf(gpucore.StatusInvalidArgSize, op,
				"kernel length %d exceeds the built cache for %d", klen, p.layout.kernelLen)
		}
	}
	return r, nil
}

// checkWorkSize validates the extents against the compiled workgroup size
// of the entry.
func (d *Device) checkWorkSize(p *program, entry string, global, local gpucore.NDRange) error {
	const op = "enqueue"
	for i := range 2 {
		if global[i] <= 0 {
			return gpucore.Errorf(gpucore.StatusInvalidGlobalWorkSize, op, "global %s", global)
		}
		if local[i] <= 0 || global[i]%local[i] != 0 {
			return gpucore.Errorf(gpucore.StatusInvalidWorkGroupSize, op, "global %s is not a multiple of local %s", global, local)
		}
	}
	if local.Size() > d.caps.MaxWorkGroupSize {
		return gpucore.Errorf(gpucore.StatusInvalidWorkGroupSize, op, "local %s exceeds %d invocations", local, d.caps.MaxWorkGroupSize)
	}
	compiled := gpucore.NDRange{p.layout.rowLocal, 1}
	if entry == "BlurColumn" {
		compiled = gpucore.NDRange{1, p.layout.columnLocal}
	}
	if local != compiled {
		return gpucore.Errorf(gpucore.StatusInvalidWorkGroupSize, op, "local %s, %s was built for %s", local, entry, compiled)
	}
	return nil
}

// Enqueue encodes one compute pass and submits it.
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
	pipe, ok := p.pipelines[desc.Entry]
	if !ok {
		return nil, gpucore.Errorf(gpucore.StatusInvalidKernelName, op, "%s has no entry %q", p.name, desc.Entry)
	}
	if err := d.checkWorkSize(p, desc.Entry, desc.Global, desc.Local); err != nil {
		return nil, err
	}
	bufs, err := d.resolve(p, desc.Args)
	if err != nil {
		return nil, err
	}

	s := &submission{name: fmt.Sprintf("%s.%s", p.name, desc.Entry)}
	if err := d.encode(s, p, pipe, bufs, desc); err != nil {
		d.destroySubmission(s)
		return nil, err
	}
	if desc.Profile {
		s.event = &gpucore.Event{}
	}
	d.pending = append(d.pending, s)

	d.log().Debug("wgpu: dispatch submitted", "entry", s.name, "global", desc.Global.String(), "local", desc.Local.String())
	return s.event, nil
}

func (d *Device) encode(s *submission, p *program, pipe hal.ComputePipeline, bufs resolved, desc gpucore.DispatchDesc) error {
	const op = "enqueue"
	var err error
	s.uniform, err = d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: s.name + "_params",
		Size:  paramsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return gpucore.Errorf(gpucore.StatusOutOfResources, op, "params buffer: %v", err)
	}
	d.queue.WriteBuffer(s.uniform, 0, packParams(desc.Args))

	s.bindGroup, err = d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  s.name + "_bind_group",
		Layout: p.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: s.uniform.NativeHandle(), Offset: 0, Size: paramsSize}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: bufs.src.buf.NativeHandle(), Offset: 0, Size: bufs.src.size}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: bufs.weights.buf.NativeHandle(), Offset: 0, Size: bufs.weights.size}},
			{Binding: 3, Resource: gputypes.BufferBinding{Buffer: bufs.dst.buf.NativeHandle(), Offset: 0, Size: bufs.dst.size}},
		},
	})
	if err != nil {
		return gpucore.Errorf(gpucore.StatusOutOfResources, op, "bind group: %v", err)
	}

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: s.name})
	if err != nil {
		return gpucore.Errorf(gpucore.StatusOutOfResources, op, "create command encoder: %v", err)
	}
	if err := encoder.BeginEncoding(s.name); err != nil {
		return gpucore.Errorf(gpucore.StatusOutOfResources, op, "begin encoding: %v", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: s.name})
	pass.SetPipeline(pipe)
	pass.SetBindGroup(0, s.bindGroup, nil)
	pass.Dispatch(
		uint32(desc.Global[0]/desc.Local[0]), //nolint:gosec // validated extents
		uint32(desc.Global[1]/desc.Local[1]), //nolint:gosec // validated extents
		1,
	)
	pass.End()
	s.cmdBuf, err = encoder.EndEncoding()
	if err != nil {
		return gpucore.Errorf(gpucore.StatusOutOfResources, op, "end encoding: %v", err)
	}

	s.fence, err = d.device.CreateFence()
	if err != nil {
		return gpucore.Errorf(gpucore.StatusOutOfResources, op, "create fence: %v", err)
	}
	s.submitted = time.Now()
	if err := d.queue.Submit([]hal.CommandBuffer{s.cmdBuf}, s.fence, 1); err != nil {
		return gpucore.Errorf(gpucore.StatusOutOfResources, op, "submit: %v", err)
	}
	return nil
}

func (d *Device) destroySubmission(s *submission) {
	if s.fence != nil {
		d.device.DestroyFence(s.fence)
	}
	if s.cmdBuf != nil {
		d.device.FreeCommandBuffer(s.cmdBuf)
	}
	if s.bindGroup != nil {
		d.device.DestroyBindGroup(s.bindGroup)
	}
	if s.uniform != nil {
		d.device.DestroyBuffer(s.uniform)
	}
}

// submitAndWait submits a command buffer and blocks until it completes.
// Callers hold d.mu.
func (d *Device) submitAndWait(op string, cmdBuf hal.CommandBuffer) error {
	fence, err := d.device.CreateFence()
	if err != nil {
		return gpucore.Errorf(gpucore.StatusOutOfResources, op, "create fence: %v", err)
	}
	defer d.device.DestroyFence(fence)
	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return gpucore.Errorf(gpucore.StatusOutOfResources, op, "submit: %v", err)
	}
	ok, err := d.device.Wait(fence, 1, d.timeout)
	if err != nil || !ok {
		return gpucore.Errorf(gpucore.StatusOutOfResources, op, "wait for GPU: ok=%v err=%v", ok, err)
	}
	return nil
}

// drain waits for every pending submission in order and releases its
// objects. Event timestamps are host times from submit to fence signal.
// Callers hold d.mu.
func (d *Device) drain() error {
	var first error
	for _, s := range d.pending {
		ok, err := d.device.Wait(s.fence, 1, d.timeout)
		end := time.Now()
		if (err != nil || !ok) && first == nil {
			first = gpucore.Errorf(gpucore.StatusOutOfResources, "finish", "%s: wait for GPU: ok=%v err=%v", s.name, ok, err)
		}
		if s.event != nil && ok {
			s.event.Complete(s.submitted, end)
		}
		d.destroySubmission(s)
	}
	d.pending = d.pending[:0]
	return first
}

// Finish waits for every submitted dispatch.
func (d *Device) Finish() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drain()
}
