package imageio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"runtime"

	"github.com/klauspost/compress/zstd"

	"github.com/gogpu/blur"
)

// Raw float layout inside the zstd stream: magic, little-endian uint32
// width and height, then width*height*4 little-endian float32 values in
// row order without padding.
var rawMagic = [8]byte{'R', 'G', 'B', 'A', 'F', '3', '2', 0}

const maxRawPixels = 1 << 28

func writeRawFloat(w io.Writer, img *blur.Image, format blur.PixelFormat) error {
	var raw bytes.Buffer
	raw.Grow(16 + img.Width*img.Height*blur.PixelSize)
	raw.Write(rawMagic[:])
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(img.Width))  //nolint:gosec // validated
	binary.LittleEndian.PutUint32(hdr[4:], uint32(img.Height)) //nolint:gosec // validated
	raw.Write(hdr[:])

	var px [blur.PixelSize]byte
	for y := range img.Height {
		for x := range img.Width {
			p := img.At(x, y)
			if format == blur.RGB {
				p[3] = 255
			}
			for c, v := range p {
				binary.LittleEndian.PutUint32(px[c*4:], math.Float32bits(v))
			}
			raw.Write(px[:])
		}
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(runtime.NumCPU()))
	if err != nil {
		return fmt.Errorf("imageio: zstd writer: %w", err)
	}
	if _, err := enc.Write(raw.Bytes()); err != nil {
		_ = enc.Close()
		return fmt.Errorf("imageio: encode %s: %w", RawFloat, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("imageio: encode %s: %w", RawFloat, err)
	}
	return nil
}

func readRawFloat(r io.Reader, o options) (*blur.Image, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("imageio: zstd reader: %w", err)
	}
	defer dec.Close()

	var hdr [16]byte
	if _, err := io.ReadFull(dec, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrCorrupt, err)
	}
	if !bytes.Equal(hdr[:8], rawMagic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	w := int(binary.LittleEndian.Uint32(hdr[8:]))
	h := int(binary.LittleEndian.Uint32(hdr[12:]))
	if w <= 0 || h <= 0 || w*h > maxRawPixels {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrCorrupt, w, h)
	}

	img, err := blur.NewImageWithPitch(w, h, rowPitch(w, o.rowAlignment))
	if err != nil {
		return nil, err
	}
	rowBytes := make([]byte, w*blur.PixelSize)
	for y := range h {
		if _, err := io.ReadFull(dec, rowBytes); err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", ErrCorrupt, y, err)
		}
		row := img.Row(y)
		for i := range row {
			row[i] = math.Float32frombits(binary.LittleEndian.Uint32(rowBytes[i*4:]))
		}
	}
	return img, nil
}
