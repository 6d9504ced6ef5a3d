package blur

import (
	"fmt"

	"github.com/gogpu/blur/gpucore"
)

// imageMemory keeps source, intermediate and output in 2D images.
type imageMemory struct {
	src, tmp, dst gpucore.MemoryID
}

func (m *imageMemory) uploadSource(r *runState) (err error) {
	m.src, err = r.createImage(gpucore.ImageDesc{
		Label:    "source",
		Width:    r.src.Width,
		Height:   r.src.Height,
		RowPitch: r.src.RowPitch,
		Access:   gpucore.ReadOnly,
		Data:     r.src.Pix[:r.src.Bytes()/4],
	})
	return err
}

func (m *imageMemory) allocateIntermediate(r *runState) (err error) {
	m.tmp, err = r.createImage(gpucore.ImageDesc{
		Label:  "intermediate",
		Width:  r.src.Width,
		Height: r.src.Height,
		Access: gpucore.ReadWrite,
	})
	return err
}

func (m *imageMemory) allocateOutput(r *runState) (err error) {
	m.dst, err = r.createImage(gpucore.ImageDesc{
		Label:  "output",
		Width:  r.src.Width,
		Height: r.src.Height,
		Access: gpucore.WriteOnly,
	})
	return err
}

func (m *imageMemory) rowArgs(r *runState) []gpucore.Arg {
	return r.imageArgs(RowPass, m.src, m.tmp)
}

func (m *imageMemory) columnArgs(r *runState) []gpucore.Arg {
	return r.imageArgs(ColumnPass, m.tmp, m.dst)
}

func (m *imageMemory) downloadOutput(r *runState) (*Image, error) {
	img, err := NewImageWithPitch(r.src.Width, r.src.Height, r.src.RowPitch)
	if err != nil {
		return nil, err
	}
	if err := r.backend.ReadImage(m.dst, img.Pix, img.RowPitch); err != nil {
		return nil, fmt.Errorf("%w: read output: %w", ErrDispatchFailed, err)
	}
	return img, nil
}

// bufferImageMemory uploads into a buffer whose rows are padded to the
// device image pitch alignment and reads it through an aliasing image.
// The output is a buffer of the same layout, written through an aliasing
// image and read back as a buffer.
type bufferImageMemory struct {
	pitch            int
	srcBuf, srcImg   gpucore.MemoryID
	tmp              gpucore.MemoryID
	dstBuf, dstImage gpucore.MemoryID
}

// alignedPitch returns the row pitch used for buffer backed images. The
// pipeline rejects devices without a positive pitch alignment before this
// runs.
func (m *bufferImageMemory) alignedPitch(r *runState) int {
	align := lcm(r.caps.ImagePitchAlignment, PixelSize)
	return alignUp(r.src.Width*PixelSize, align)
}

func (m *bufferImageMemory) uploadSource(r *runState) error {
	m.pitch = m.alignedPitch(r)

	host := r.src
	if host.RowPitch != m.pitch {
		repacked, err := host.Repack(m.pitch)
		if err != nil {
			return err
		}
		host = repacked
	}

	var err error
	m.srcBuf, err = r.createBuffer(gpucore.BufferDesc{
		Label:  "source",
		Size:   host.Bytes(),
		Access: gpucore.ReadOnly,
		Data:   host.Pix,
	})
	if err != nil {
		return err
	}
	m.srcImg, err = r.createImageFromBuffer(m.srcBuf, gpucore.ImageDesc{
		Label:    "source_image",
		Width:    r.src.Width,
		Height:   r.src.Height,
		RowPitch: m.pitch,
		Access:   gpucore.ReadOnly,
	})
	return err
}

func (m *bufferImageMemory) allocateIntermediate(r *runState) (err error) {
	m.tmp, err = r.createImage(gpucore.ImageDesc{
		Label:  "intermediate",
		Width:  r.src.Width,
		Height: r.src.Height,
		Access: gpucore.ReadWrite,
	})
	return err
}

func (m *bufferImageMemory) allocateOutput(r *runState) (err error) {
	m.dstBuf, err = r.createBuffer(gpucore.BufferDesc{
		Label:  "output",
		Size:   m.pitch * r.src.Height,
		Access: gpucore.ReadWrite,
	})
	if err != nil {
		return err
	}
	m.dstImage, err = r.createImageFromBuffer(m.dstBuf, gpucore.ImageDesc{
		Label:    "output_image",
		Width:    r.src.Width,
		Height:   r.src.Height,
		RowPitch: m.pitch,
		Access:   gpucore.WriteOnly,
	})
	return err
}

func (m *bufferImageMemory) rowArgs(r *runState) []gpucore.Arg {
	return r.imageArgs(RowPass, m.srcImg, m.tmp)
}

func (m *bufferImageMemory) columnArgs(r *runState) []gpucore.Arg {
	return r.imageArgs(ColumnPass, m.tmp, m.dstImage)
}

func (m *bufferImageMemory) downloadOutput(r *runState) (*Image, error) {
	img, err := readBufferImage(r, m.dstBuf, m.pitch)
	if err != nil {
		return nil, err
	}
	if img.RowPitch == r.src.RowPitch {
		return img, nil
	}
	return img.Repack(r.src.RowPitch)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	return a / gcd(a, b) * b
}
