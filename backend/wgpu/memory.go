// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package wgpu

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/blur/gpucore"
)

// buffer is a storage buffer. size is rounded up to whole floats.
type buffer struct {
	buf    hal.Buffer
	label  string
	size   uint64
	access gpucore.Access
}

// packFloats encodes values as little-endian float32 into n bytes.
func packFloats(values []float32, n int) []byte {
	out := make([]byte, n)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// unpackFloats decodes little-endian float32 values into dst.
func unpackFloats(data []byte, dst []float32) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
}

// CreateBuffer allocates a storage buffer and uploads desc.Data.
func (d *Device) CreateBuffer(desc gpucore.BufferDesc) (gpucore.MemoryID, error) {
	const op = "create buffer"
	size := (desc.Size + 3) &^ 3
	if desc.Size <= 0 {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusInvalidBufferSize, op, "size %d", desc.Size)
	}
	if d.caps.MaxAllocation > 0 && int64(size) > d.caps.MaxAllocation {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusInvalidBufferSize, op,
			"size %d exceeds max allocation %d", size, d.caps.MaxAllocation)
	}
	if len(desc.Data)*4 > size {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusInvalidValue, op,
			"%s: %d host floats exceed size %d", desc.Label, len(desc.Data), desc.Size)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusDeviceNotAvailable, op, "device closed")
	}

	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  uint64(size), //nolint:gosec // positive
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusMemObjectAllocationFailure, op, "%s: %v", desc.Label, err)
	}
	if len(desc.Data) > 0 {
		d.queue.WriteBuffer(buf, 0, packFloats(desc.Data, len(desc.Data)*4))
	}

	id := gpucore.MemoryID(d.newID())
	d.buffers[id] = &buffer{buf: buf, label: desc.Label, size: uint64(size), access: desc.Access} //nolint:gosec // positive
	d.log().Debug("wgpu: buffer created", "id", id, "label", desc.Label, "bytes", size)
	return id, nil
}

// CreateImage is not supported.
func (d *Device) CreateImage(gpucore.ImageDesc) (gpucore.MemoryID, error) {
	return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusImageFormatNotSupported, "create image", "images not supported")
}

// CreateImageFromBuffer is not supported.
func (d *Device) CreateImageFromBuffer(gpucore.MemoryID, gpucore.ImageDesc) (gpucore.MemoryID, error) {
	return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusInvalidOperation, "create image from buffer",
		"%s not supported", gpucore.CapImageFromBuffer)
}

// ReadImage is not supported.
func (d *Device) ReadImage(gpucore.MemoryID, []float32, int) error {
	return gpucore.Errorf(gpucore.StatusInvalidMemObject, "read image", "images not supported")
}

// ReadBuffer waits for pending dispatches, then copies the buffer through a
// staging buffer.
func (d *Device) ReadBuffer(id gpucore.MemoryID, dst []float32) error {
	const op = "read buffer"
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers[id]
	if !ok {
		return gpucore.Errorf(gpucore.StatusInvalidMemObject, op, "mem#%d", id)
	}
	n := uint64(len(dst)) * 4
	if n > b.size {
		return gpucore.Errorf(gpucore.StatusInvalidValue, op, "%d floats requested from %d", len(dst), b.size/4)
	}
	if n == 0 {
		return nil
	}
	if err := d.drain(); err != nil {
		return err
	}

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: b.label + "_staging",
		Size:  n,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return gpucore.Errorf(gpucore.StatusOutOfHostMemory, op, "staging: %v", err)
	}
	defer d.device.DestroyBuffer(staging)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "blur_readback"})
	if err != nil {
		return gpucore.Errorf(gpucore.StatusOutOfResources, op, "create command encoder: %v", err)
	}
	if err := encoder.BeginEncoding("blur_readback"); err != nil {
		return gpucore.Errorf(gpucore.StatusOutOfResources, op, "begin encoding: %v", err)
	}
	encoder.CopyBufferToBuffer(b.buf, staging, []hal.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: n}})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return gpucore.Errorf(gpucore.StatusOutOfResources, op, "end encoding: %v", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	if err := d.submitAndWait(op, cmdBuf); err != nil {
		return err
	}

	readback := make([]byte, n)
	if err := d.queue.ReadBuffer(staging, 0, readback); err != nil {
		return gpucore.Errorf(gpucore.StatusOutOfResources, op, "readback: %v", err)
	}
	unpackFloats(readback, dst)
	return nil
}

// Release destroys a buffer. Unknown IDs are ignored.
func (d *Device) Release(id gpucore.MemoryID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return
	}
	delete(d.buffers, id)
	if !d.closed {
		d.device.DestroyBuffer(b.buf)
	}
}
