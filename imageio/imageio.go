// Package imageio loads and stores blur images.
//
// Decoded pixels are float32 channel values in [0, 255], non-premultiplied.
// Sixteen bit sources are scaled by 1/257 so no precision is lost to the
// 8-bit range. The raw float format (".rgbaf.zst") stores the pixels
// unclamped in a zstd stream and round-trips exactly.
package imageio

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/gogpu/blur"
)

// I/O errors.
var (
	// ErrUnsupportedFormat is returned when the file format is not supported.
	ErrUnsupportedFormat = errors.New("imageio: unsupported format")

	// ErrEmptyData is returned when image data is empty.
	ErrEmptyData = errors.New("imageio: empty data")

	// ErrCorrupt is returned when a raw float stream is malformed.
	ErrCorrupt = errors.New("imageio: corrupt raw float data")
)

// Codec is a file format.
type Codec uint8

// Supported codecs.
const (
	PNG Codec = iota
	JPEG
	TIFF
	BMP
	RawFloat
)

// RawFloatExt is the file extension of the raw float format.
const RawFloatExt = ".rgbaf.zst"

func (c Codec) String() string {
	switch c {
	case PNG:
		return "png"
	case JPEG:
		return "jpeg"
	case TIFF:
		return "tiff"
	case BMP:
		return "bmp"
	case RawFloat:
		return "rgbaf.zst"
	default:
		return fmt.Sprintf("Codec(%d)", c)
	}
}

// CodecFromPath returns the codec for a file name extension.
func CodecFromPath(path string) (Codec, error) {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, RawFloatExt) {
		return RawFloat, nil
	}
	switch filepath.Ext(lower) {
	case ".png":
		return PNG, nil
	case ".jpg", ".jpeg":
		return JPEG, nil
	case ".tif", ".tiff":
		return TIFF, nil
	case ".bmp":
		return BMP, nil
	default:
		return PNG, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Decode loads an image file. The format is detected from the content.
func Decode(path string, opts ...Option) (*blur.Image, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("imageio: open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Read(f, opts...)
}

// DecodeBytes decodes an image from a byte slice.
func DecodeBytes(data []byte, opts ...Option) (*blur.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyData
	}
	return Read(bytes.NewReader(data), opts...)
}

// zstdMagic starts every zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Read decodes an image from r, detecting the format from its content.
func Read(r io.Reader, opts ...Option) (*blur.Image, error) {
	o := newOptions(opts)

	br := bufio.NewReader(r)
	head, err := br.Peek(len(zstdMagic))
	if len(head) == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return nil, ErrEmptyData
		}
		return nil, fmt.Errorf("imageio: read: %w", err)
	}
	if bytes.Equal(head, zstdMagic) {
		return readRawFloat(br, o)
	}

	img, _, err := image.Decode(br)
	if err != nil {
		return nil, fmt.Errorf("imageio: decode: %w", err)
	}
	return fromStdImage(downscale(img, o.maxDimension), o)
}

// Encode stores img at path in the format selected by the extension.
// With blur.RGB every written pixel is opaque.
func Encode(path string, img *blur.Image, format blur.PixelFormat, opts ...Option) error {
	codec, err := CodecFromPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("imageio: create file: %w", err)
	}
	if err := Write(f, img, codec, format, opts...); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Write encodes img to w.
func Write(w io.Writer, img *blur.Image, codec Codec, format blur.PixelFormat, opts ...Option) error {
	if err := img.Validate(); err != nil {
		return err
	}
	o := newOptions(opts)

	if codec == RawFloat {
		return writeRawFloat(w, img, format)
	}

	std := toStdImage(img, format, o.sixteenBit && codec != JPEG && codec != BMP)
	var err error
	switch codec {
	case PNG:
		err = png.Encode(w, std)
	case JPEG:
		err = jpeg.Encode(w, std, &jpeg.Options{Quality: o.jpegQuality})
	case TIFF:
		err = tiff.Encode(w, std, &tiff.Options{Compression: tiff.Deflate})
	case BMP:
		err = bmp.Encode(w, std)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, codec)
	}
	if err != nil {
		return fmt.Errorf("imageio: encode %s: %w", codec, err)
	}
	return nil
}
