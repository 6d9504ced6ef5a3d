// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build opencl

package opencl

import (
	"unsafe"

	"github.com/jgillich/go-opencl/cl"

	"github.com/gogpu/blur/gpucore"
)

var rgbaFloat = cl.ImageFormat{
	ChannelOrder:    cl.ChannelOrderRGBA,
	ChannelDataType: cl.ChannelDataTypeFloat,
}

func memFlags(a gpucore.Access) cl.MemFlag {
	switch a {
	case gpucore.ReadOnly:
		return cl.MemReadOnly
	case gpucore.WriteOnly:
		return cl.MemWriteOnly
	default:
		return cl.MemReadWrite
	}
}

// floatBytes views a float slice as bytes.
func floatBytes(f []float32) []byte {
	if len(f) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&f[0])), len(f)*4)
}

func (d *Device) add(m *memObject) gpucore.MemoryID {
	id := gpucore.MemoryID(d.newID())
	d.mems[id] = m
	d.log().Debug("opencl: memory created", "id", id, "label", m.label, "image", m.image)
	return id
}

// CreateBuffer allocates a buffer and uploads desc.Data.
func (d *Device) CreateBuffer(desc gpucore.BufferDesc) (gpucore.MemoryID, error) {
	const op = "create buffer"
	if desc.Size <= 0 {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusInvalidBufferSize, op, "size %d", desc.Size)
	}
	if len(desc.Data)*4 > desc.Size {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusInvalidValue, op,
			"%s: %d host floats exceed size %d", desc.Label, len(desc.Data), desc.Size)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusDeviceNotAvailable, op, "device closed")
	}

	mem, err := d.context.CreateEmptyBuffer(memFlags(desc.Access), desc.Size)
	if err != nil {
		return gpucore.InvalidID, wrap(op, err)
	}
	if len(desc.Data) > 0 {
		if _, err := d.queue.EnqueueWriteBufferFloat32(mem, true, 0, desc.Data, nil); err != nil {
			mem.Release()
			return gpucore.InvalidID, wrap(op, err)
		}
	}
	return d.add(&memObject{mem: mem, label: desc.Label, access: desc.Access, size: desc.Size}), nil
}

// CreateImage allocates an RGBA float image and uploads desc.Data.
func (d *Device) CreateImage(desc gpucore.ImageDesc) (gpucore.MemoryID, error) {
	const op = "create image"
	if !d.caps.Has(gpucore.CapImages) {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusImageFormatNotSupported, op, "images not supported")
	}
	if desc.Width <= 0 || desc.Height <= 0 {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusInvalidImageSize, op, "%dx%d", desc.Width, desc.Height)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusDeviceNotAvailable, op, "device closed")
	}

	flags := memFlags(desc.Access)
	imgDesc := cl.ImageDescription{Type: cl.MemObjectTypeImage2D, Width: desc.Width, Height: desc.Height}
	var data []byte
	if desc.Data != nil {
		if need := (desc.Height-1)*desc.Pitch()/4 + desc.Width*4; len(desc.Data) < need {
			return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusInvalidValue, op,
				"%s: %d host floats, image needs %d", desc.Label, len(desc.Data), need)
		}
		flags |= cl.MemCopyHostPtr
		imgDesc.RowPitch = desc.Pitch()
		data = floatBytes(desc.Data)
	}
	mem, err := d.context.CreateImage(flags, rgbaFloat, imgDesc, data)
	if err != nil {
		return gpucore.InvalidID, wrap(op, err)
	}
	return d.add(&memObject{
		mem: mem, label: desc.Label, access: desc.Access,
		image: true, width: desc.Width, height: desc.Height,
	}), nil
}

// CreateImageFromBuffer creates an image aliasing a buffer.
func (d *Device) CreateImageFromBuffer(buffer gpucore.MemoryID, desc gpucore.ImageDesc) (gpucore.MemoryID, error) {
	const op = "create image from buffer"
	if !d.caps.Has(gpucore.CapImageFromBuffer) {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusInvalidOperation, op, "%s not supported", gpucore.CapImageFromBuffer)
	}
	if desc.Data != nil {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusInvalidValue, op, "host data given for an aliasing image")
	}
	if desc.Pitch()%d.caps.ImagePitchAlignment != 0 {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusInvalidValue, op,
			"pitch %d is not a multiple of %d", desc.Pitch(), d.caps.ImagePitchAlignment)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	parent, ok := d.mems[buffer]
	if !ok || parent.image {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusInvalidMemObject, op, "mem#%d is not a buffer", buffer)
	}
	if desc.Height*desc.Pitch() > parent.size {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusInvalidImageSize, op,
			"%dx%d with pitch %d exceeds %d bytes", desc.Width, desc.Height, desc.Pitch(), parent.size)
	}
	if (desc.Access.CanWrite() && !parent.access.CanWrite()) || (desc.Access.CanRead() && !parent.access.CanRead()) {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusInvalidValue, op, "%s image over %s buffer", desc.Access, parent.access)
	}

	mem, err := d.context.CreateImage(memFlags(desc.Access), rgbaFloat, cl.ImageDescription{
		Type:     cl.MemObjectTypeImage2D,
		Width:    desc.Width,
		Height:   desc.Height,
		RowPitch: desc.Pitch(),
		Buffer:   parent.mem,
	}, nil)
	if err != nil {
		return gpucore.InvalidID, wrap(op, err)
	}
	return d.add(&memObject{
		mem: mem, label: desc.Label, access: desc.Access,
		image: true, width: desc.Width, height: desc.Height,
	}), nil
}

// ReadBuffer blocks on the queue and copies the first len(dst) floats.
func (d *Device) ReadBuffer(id gpucore.MemoryID, dst []float32) error {
	const op = "read buffer"
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.mems[id]
	if !ok || m.image {
		return gpucore.Errorf(gpucore.StatusInvalidMemObject, op, "mem#%d is not a buffer", id)
	}
	if len(dst)*4 > m.size {
		return gpucore.Errorf(gpucore.StatusInvalidValue, op, "%d floats requested from %d", len(dst), m.size/4)
	}
	if len(dst) == 0 {
		return nil
	}
	if _, err := d.queue.EnqueueReadBufferFloat32(m.mem, true, 0, dst, nil); err != nil {
		return wrap(op, err)
	}
	return d.completeProfiled()
}

// ReadImage blocks on the queue and copies the image using rowPitch bytes
// per row.
func (d *Device) ReadImage(id gpucore.MemoryID, dst []float32, rowPitch int) error {
	const op = "read image"
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.mems[id]
	if !ok || !m.image {
		return gpucore.Errorf(gpucore.StatusInvalidMemObject, op, "mem#%d is not an image", id)
	}
	if rowPitch < m.width*gpucore.PixelSize || (m.height-1)*rowPitch/4+m.width*4 > len(dst) {
		return gpucore.Errorf(gpucore.StatusInvalidValue, op, "%d floats with pitch %d for %dx%d", len(dst), rowPitch, m.width, m.height)
	}
	_, err := d.queue.EnqueueReadImage(m.mem, true, [3]int{0, 0, 0}, [3]int{m.width, m.height, 1}, rowPitch, 0, floatBytes(dst), nil)
	if err != nil {
		return wrap(op, err)
	}
	return d.completeProfiled()
}

// Release releases a memory object. Unknown IDs are ignored.
func (d *Device) Release(id gpucore.MemoryID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m, ok := d.mems[id]; ok {
		delete(d.mems, id)
		m.mem.Release()
	}
}
