package blur

import (
	"fmt"

	"github.com/gogpu/blur/gpucore"
)

// PixelSize is the size in bytes of one pixel: four float32 channels.
const PixelSize = gpucore.PixelSize

// Pixel holds the four channels of one pixel in R, G, B, A order.
type Pixel [4]float32

// Image is a 2D grid of four-channel float32 pixels in one contiguous buffer.
// Row y starts at float index y*RowPitch/4; the bytes between Width*PixelSize
// and RowPitch are padding and are never read by the convolution.
type Image struct {
	Width    int
	Height   int
	RowPitch int // bytes, multiple of PixelSize, at least Width*PixelSize
	Pix      []float32
}

// NewImage allocates a zeroed image with tightly packed rows.
func NewImage(width, height int) *Image {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Image{
		Width:    width,
		Height:   height,
		RowPitch: width * PixelSize,
		Pix:      make([]float32, width*height*4),
	}
}

// NewImageWithPitch allocates a zeroed image with the given row pitch in bytes.
func NewImageWithPitch(width, height, rowPitch int) (*Image, error) {
	m := &Image{Width: width, Height: height, RowPitch: rowPitch}
	if err := m.checkLayout(); err != nil {
		return nil, err
	}
	m.Pix = make([]float32, height*rowPitch/4)
	return m, nil
}

// checkLayout validates dimensions and pitch without looking at Pix.
func (m *Image) checkLayout() error {
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidImage, m.Width, m.Height)
	}
	if m.RowPitch < m.Width*PixelSize {
		return fmt.Errorf("%w: row pitch %d below %d", ErrInvalidImage, m.RowPitch, m.Width*PixelSize)
	}
	if m.RowPitch%PixelSize != 0 {
		return fmt.Errorf("%w: row pitch %d is not a multiple of %d", ErrInvalidImage, m.RowPitch, PixelSize)
	}
	return nil
}

// Validate reports whether the image can be convolved.
func (m *Image) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil image", ErrInvalidImage)
	}
	if err := m.checkLayout(); err != nil {
		return err
	}
	if need := m.Height * m.RowPitch / 4; len(m.Pix) < need {
		return fmt.Errorf("%w: %d floats, need %d", ErrInvalidImage, len(m.Pix), need)
	}
	return nil
}

// Stride returns the row pitch in floats.
func (m *Image) Stride() int { return m.RowPitch / 4 }

// Bytes returns the byte size of the pixel storage described by the layout.
func (m *Image) Bytes() int { return m.Height * m.RowPitch }

func (m *Image) offset(x, y int) int { return y*m.Stride() + x*4 }

// At returns the pixel at (x, y).
func (m *Image) At(x, y int) Pixel {
	i := m.offset(x, y)
	return Pixel{m.Pix[i], m.Pix[i+1], m.Pix[i+2], m.Pix[i+3]}
}

// Set stores the pixel at (x, y).
func (m *Image) Set(x, y int, p Pixel) {
	i := m.offset(x, y)
	copy(m.Pix[i:i+4], p[:])
}

// Fill sets every pixel to p.
func (m *Image) Fill(p Pixel) {
	for y := range m.Height {
		for x := range m.Width {
			m.Set(x, y, p)
		}
	}
}

// Row returns the Width*4 floats of row y, sharing storage with the image.
func (m *Image) Row(y int) []float32 {
	i := y * m.Stride()
	return m.Pix[i : i+m.Width*4]
}

// Clone returns a deep copy.
func (m *Image) Clone() *Image {
	c := *m
	c.Pix = make([]float32, len(m.Pix))
	copy(c.Pix, m.Pix)
	return &c
}

// Repack returns a copy of the image laid out with the given row pitch.
// Padding floats are zero.
func (m *Image) Repack(rowPitch int) (*Image, error) {
	dst, err := NewImageWithPitch(m.Width, m.Height, rowPitch)
	if err != nil {
		return nil, err
	}
	for y := range m.Height {
		copy(dst.Row(y), m.Row(y))
	}
	return dst, nil
}

// PixelFormat selects which channels are convolved.
type PixelFormat uint8

// Pixel formats.
const (
	// RGBA convolves all four channels.
	RGBA PixelFormat = iota

	// RGB convolves red, green and blue; alpha passes through unchanged.
	RGB
)

// String returns the format name.
func (f PixelFormat) String() string {
	switch f {
	case RGBA:
		return "rgba"
	case RGB:
		return "rgb"
	default:
		return fmt.Sprintf("PixelFormat(%d)", f)
	}
}

// Channels returns the number of convolved channels.
func (f PixelFormat) Channels() uint32 {
	if f == RGB {
		return 3
	}
	return 4
}

// ChannelMask returns the bit mask of convolved channels (bit 0 is red).
func (f PixelFormat) ChannelMask() uint32 {
	if f == RGB {
		return 0x7
	}
	return 0xF
}

// ParsePixelFormat parses "rgb" or "rgba".
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch s {
	case "rgba", "RGBA":
		return RGBA, nil
	case "rgb", "RGB":
		return RGB, nil
	default:
		return RGBA, fmt.Errorf("%w: unknown pixel format %q", ErrInvalidConfig, s)
	}
}

// alignUp rounds n up to a multiple of align.
func alignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}
