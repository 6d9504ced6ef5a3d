package blur

import (
	"fmt"

	"github.com/gogpu/blur/gpucore"
)

// linearMemory keeps source, intermediate and output in plain buffers that
// share the source row pitch.
type linearMemory struct {
	src, tmp, dst gpucore.MemoryID
}

func (m *linearMemory) uploadSource(r *runState) (err error) {
	m.src, err = r.createBuffer(gpucore.BufferDesc{
		Label:  "source",
		Size:   r.src.Bytes(),
		Access: gpucore.ReadOnly,
		Data:   r.src.Pix[:r.src.Bytes()/4],
	})
	return err
}

func (m *linearMemory) allocateIntermediate(r *runState) (err error) {
	m.tmp, err = r.createBuffer(gpucore.BufferDesc{
		Label:  "intermediate",
		Size:   r.src.Bytes(),
		Access: gpucore.ReadWrite,
	})
	return err
}

func (m *linearMemory) allocateOutput(r *runState) (err error) {
	m.dst, err = r.createBuffer(gpucore.BufferDesc{
		Label:  "output",
		Size:   r.src.Bytes(),
		Access: gpucore.WriteOnly,
	})
	return err
}

func (m *linearMemory) rowArgs(r *runState) []gpucore.Arg {
	return r.bufferArgs(m.src, gpucore.Mem(m.tmp))
}

func (m *linearMemory) columnArgs(r *runState) []gpucore.Arg {
	return r.bufferArgs(m.tmp, gpucore.Mem(m.dst))
}

func (m *linearMemory) downloadOutput(r *runState) (*Image, error) {
	return readBufferImage(r, m.dst, r.src.RowPitch)
}

// tiledMemory uses the linear buffer layout and adds a work-group local
// cache argument sized for the kernel plus one work-group span.
type tiledMemory struct {
	linearMemory
}

func (m *tiledMemory) rowArgs(r *runState) []gpucore.Arg {
	cache := LocalCacheBytes(r.kernel.Len(), r.workGroup(RowPass))
	return r.bufferArgs(m.src, gpucore.Local(cache), gpucore.Mem(m.tmp))
}

func (m *tiledMemory) columnArgs(r *runState) []gpucore.Arg {
	cache := LocalCacheBytes(r.kernel.Len(), r.workGroup(ColumnPass))
	return r.bufferArgs(m.tmp, gpucore.Local(cache), gpucore.Mem(m.dst))
}

// readBufferImage reads a width x height image stored in buf with rowPitch.
func readBufferImage(r *runState, buf gpucore.MemoryID, rowPitch int) (*Image, error) {
	img, err := NewImageWithPitch(r.src.Width, r.src.Height, rowPitch)
	if err != nil {
		return nil, err
	}
	if err := r.backend.ReadBuffer(buf, img.Pix); err != nil {
		return nil, fmt.Errorf("%w: read output: %w", ErrDispatchFailed, err)
	}
	return img, nil
}
