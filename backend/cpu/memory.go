package cpu

import (
	"github.com/gogpu/blur/gpucore"
)

type memKind uint8

const (
	kindBuffer memKind = iota
	kindImage
)

// memObject is a buffer or an image. Images created over buffers share the
// parent's storage and do not count towards the allocation total.
type memObject struct {
	id     gpucore.MemoryID
	label  string
	kind   memKind
	access gpucore.Access
	data   []float32
	bytes  int64
	view   bool

	// Image layout. stride is the row pitch in floats.
	width, height, stride int
}

func (m *memObject) surface() *surface {
	return &surface{data: m.data, width: m.width, height: m.height, stride: m.stride}
}

// surface is an edge-clamped view of image storage.
type surface struct {
	data                  []float32
	width, height, stride int
}

// read returns the pixel at (x, y), clamping coordinates to the edge.
func (s *surface) read(x, y int) [4]float32 {
	x = clamp(x, 0, s.width-1)
	y = clamp(y, 0, s.height-1)
	i := y*s.stride + x*4
	return [4]float32{s.data[i], s.data[i+1], s.data[i+2], s.data[i+3]}
}

// write stores a pixel. Coordinates outside the image are ignored.
func (s *surface) write(x, y int, p [4]float32) {
	if x < 0 || y < 0 || x >= s.width || y >= s.height {
		return
	}
	i := y*s.stride + x*4
	copy(s.data[i:i+4], p[:])
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// reserve accounts for an allocation of n bytes. Callers hold d.mu.
func (d *Device) reserve(op string, n int64) error {
	if n <= 0 {
		return gpucore.Errorf(gpucore.StatusInvalidBufferSize, op, "size %d", n)
	}
	if limit := d.caps.MaxAllocation; limit > 0 && n > limit {
		return gpucore.Errorf(gpucore.StatusInvalidBufferSize, op, "size %d exceeds max allocation %d", n, limit)
	}
	if d.memLimit > 0 && d.allocated+n > d.memLimit {
		return gpucore.Errorf(gpucore.StatusMemObjectAllocationFailure, op,
			"%d bytes requested, %d of %d in use", n, d.allocated, d.memLimit)
	}
	d.allocated += n
	return nil
}

func (d *Device) insert(m *memObject) gpucore.MemoryID {
	m.id = gpucore.MemoryID(d.newID())
	d.mems[m.id] = m
	return m.id
}

// CreateBuffer allocates a buffer.
func (d *Device) CreateBuffer(desc gpucore.BufferDesc) (gpucore.MemoryID, error) {
	if d.closed.Load() {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusDeviceNotAvailable, "create buffer", "device closed")
	}
	floats := (desc.Size + 3) / 4
	if len(desc.Data) > floats {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusInvalidValue, "create buffer",
			"%s: %d host floats exceed size %d", desc.Label, len(desc.Data), desc.Size)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.reserve("create buffer", int64(desc.Size)); err != nil {
		return gpucore.InvalidID, err
	}
	m := &memObject{
		label:  desc.Label,
		kind:   kindBuffer,
		access: desc.Access,
		data:   make([]float32, floats),
		bytes:  int64(desc.Size),
	}
	copy(m.data, desc.Data)
	id := d.insert(m)
	d.log().Debug("cpu: buffer created", "id", id, "label", desc.Label, "bytes", desc.Size)
	return id, nil
}

func checkImageDesc(op string, desc gpucore.ImageDesc) error {
	if desc.Width <= 0 || desc.Height <= 0 {
		return gpucore.Errorf(gpucore.StatusInvalidImageSize, op, "%dx%d", desc.Width, desc.Height)
	}
	pitch := desc.Pitch()
	if pitch < desc.Width*gpucore.PixelSize || pitch%gpucore.PixelSize != 0 {
		return gpucore.Errorf(gpucore.StatusInvalidValue, op, "row pitch %d for width %d", pitch, desc.Width)
	}
	return nil
}

// CreateImage allocates an image.
func (d *Device) CreateImage(desc gpucore.ImageDesc) (gpucore.MemoryID, error) {
	const op = "create image"
	if d.closed.Load() {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusDeviceNotAvailable, op, "device closed")
	}
	if !d.caps.Has(gpucore.CapImages) {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusImageFormatNotSupported, op, "images not supported")
	}
	if err := checkImageDesc(op, desc); err != nil {
		return gpucore.InvalidID, err
	}
	pitch := desc.Pitch()
	if desc.Data != nil && len(desc.Data) < desc.Height*pitch/4 {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusInvalidValue, op,
			"%s: %d host floats, need %d", desc.Label, len(desc.Data), desc.Height*pitch/4)
	}

	// Device images are stored tightly packed regardless of the host pitch.
	stride := desc.Width * 4
	bytes := int64(desc.Height * stride * 4)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.reserve(op, bytes); err != nil {
		return gpucore.InvalidID, err
	}
	m := &memObject{
		label:  desc.Label,
		kind:   kindImage,
		access: desc.Access,
		data:   make([]float32, desc.Height*stride),
		bytes:  bytes,
		width:  desc.Width,
		height: desc.Height,
		stride: stride,
	}
	if desc.Data != nil {
		hostStride := pitch / 4
		for y := range desc.Height {
			copy(m.data[y*stride:(y+1)*stride], desc.Data[y*hostStride:y*hostStride+stride])
		}
	}
	id := d.insert(m)
	d.log().Debug("cpu: image created", "id", id, "label", desc.Label, "width", desc.Width, "height", desc.Height)
	return id, nil
}

// CreateImageFromBuffer creates an image aliasing a buffer's storage.
func (d *Device) CreateImageFromBuffer(buffer gpucore.MemoryID, desc gpucore.ImageDesc) (gpucore.MemoryID, error) {
	const op = "create image from buffer"
	if d.closed.Load() {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusDeviceNotAvailable, op, "device closed")
	}
	if !d.caps.Has(gpucore.CapImages) || !d.caps.Has(gpucore.CapImageFromBuffer) {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusInvalidOperation, op, "%s not supported", gpucore.CapImageFromBuffer)
	}
	if desc.Data != nil {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusInvalidValue, op, "host data not allowed")
	}
	if err := checkImageDesc(op, desc); err != nil {
		return gpucore.InvalidID, err
	}
	pitch := desc.Pitch()
	if align := d.caps.ImagePitchAlignment; align > 0 && pitch%align != 0 {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusInvalidValue, op,
			"row pitch %d is not a multiple of %d", pitch, align)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	parent, ok := d.mems[buffer]
	if !ok || parent.kind != kindBuffer {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusInvalidMemObject, op, "mem#%d is not a buffer", buffer)
	}
	if need := int64(desc.Height * pitch); parent.bytes < need {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusInvalidImageSize, op,
			"buffer holds %d bytes, image needs %d", parent.bytes, need)
	}
	if (desc.Access.CanRead() && !parent.access.CanRead()) || (desc.Access.CanWrite() && !parent.access.CanWrite()) {
		return gpucore.InvalidID, gpucore.Errorf(gpucore.StatusInvalidValue, op,
			"image access %s incompatible with buffer access %s", desc.Access, parent.access)
	}
	m := &memObject{
		label:  desc.Label,
		kind:   kindImage,
		access: desc.Access,
		data:   parent.data,
		view:   true,
		width:  desc.Width,
		height: desc.Height,
		stride: pitch / 4,
	}
	id := d.insert(m)
	d.log().Debug("cpu: buffer image created", "id", id, "buffer", buffer, "pitch", pitch)
	return id, nil
}

func (d *Device) lookup(op string, id gpucore.MemoryID, kind memKind) (*memObject, error) {
	d.mu.Lock()
	m, ok := d.mems[id]
	d.mu.Unlock()
	if !ok || m.kind != kind {
		return nil, gpucore.Errorf(gpucore.StatusInvalidMemObject, op, "mem#%d", id)
	}
	return m, nil
}

// ReadBuffer copies buffer contents after the queue drains.
func (d *Device) ReadBuffer(id gpucore.MemoryID, dst []float32) error {
	const op = "read buffer"
	m, err := d.lookup(op, id, kindBuffer)
	if err != nil {
		return err
	}
	if len(dst) > len(m.data) {
		return gpucore.Errorf(gpucore.StatusInvalidValue, op, "%d floats requested from %d", len(dst), len(m.data))
	}
	d.pending.Wait()
	copy(dst, m.data)
	return nil
}

// ReadImage copies image contents to dst with rowPitch bytes per row after
// the queue drains.
func (d *Device) ReadImage(id gpucore.MemoryID, dst []float32, rowPitch int) error {
	const op = "read image"
	m, err := d.lookup(op, id, kindImage)
	if err != nil {
		return err
	}
	if rowPitch < m.width*gpucore.PixelSize || rowPitch%4 != 0 {
		return gpucore.Errorf(gpucore.StatusInvalidValue, op, "row pitch %d for width %d", rowPitch, m.width)
	}
	hostStride := rowPitch / 4
	if len(dst) < (m.height-1)*hostStride+m.width*4 {
		return gpucore.Errorf(gpucore.StatusInvalidValue, op, "destination holds %d floats", len(dst))
	}
	d.pending.Wait()
	row := m.width * 4
	for y := range m.height {
		copy(dst[y*hostStride:y*hostStride+row], m.data[y*m.stride:y*m.stride+row])
	}
	return nil
}

// Release frees a memory object. Unknown IDs are ignored.
func (d *Device) Release(id gpucore.MemoryID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.mems[id]
	if !ok {
		return
	}
	delete(d.mems, id)
	if !m.view {
		d.allocated -= m.bytes
	}
}
