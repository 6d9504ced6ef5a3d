package imageio

import (
	"image"
	"image/color"
	"math"

	"github.com/nfnt/resize"

	"github.com/gogpu/blur"
)

// downscale shrinks img so that neither side exceeds maxDim.
func downscale(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	if maxDim <= 0 || (b.Dx() <= maxDim && b.Dy() <= maxDim) {
		return img
	}
	if b.Dx() >= b.Dy() {
		return resize.Resize(uint(maxDim), 0, img, resize.Lanczos3) //nolint:gosec // positive
	}
	return resize.Resize(0, uint(maxDim), img, resize.Lanczos3) //nolint:gosec // positive
}

// rowPitch returns the row pitch for a decoded image of width pixels.
func rowPitch(width, align int) int {
	pitch := width * blur.PixelSize
	if align <= 1 {
		return pitch
	}
	unit := align
	for unit%blur.PixelSize != 0 {
		unit += align
	}
	return (pitch + unit - 1) / unit * unit
}

// fromStdImage converts img to float pixels in [0, 255].
func fromStdImage(img image.Image, o options) (*blur.Image, error) {
	b := img.Bounds()
	dst, err := blur.NewImageWithPitch(b.Dx(), b.Dy(), rowPitch(b.Dx(), o.rowAlignment))
	if err != nil {
		return nil, err
	}

	// Fast path for NRGBA images, including sub-images with a non-zero origin
	if n, ok := img.(*image.NRGBA); ok {
		for y := range dst.Height {
			off := n.PixOffset(b.Min.X, b.Min.Y+y)
			src := n.Pix[off : off+dst.Width*4]
			row := dst.Row(y)
			for i, v := range src {
				row[i] = float32(v)
			}
		}
		return dst, nil
	}

	for y := range dst.Height {
		for x := range dst.Width {
			c := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
			dst.Set(x, y, blur.Pixel{
				float32(c.R) / 257,
				float32(c.G) / 257,
				float32(c.B) / 257,
				float32(c.A) / 257,
			})
		}
	}
	return dst, nil
}

func to8(v float32) uint8 {
	return uint8(math.Round(float64(min(max(v, 0), 255)))) //nolint:gosec // clamped
}

func to16(v float32) uint16 {
	return uint16(math.Round(float64(min(max(v, 0), 255)) * 257)) //nolint:gosec // clamped
}

// toStdImage converts img to a non-premultiplied standard image. With
// blur.RGB alpha is written as opaque.
func toStdImage(img *blur.Image, format blur.PixelFormat, sixteen bool) image.Image {
	rect := image.Rect(0, 0, img.Width, img.Height)
	opaque := format == blur.RGB

	if sixteen {
		out := image.NewNRGBA64(rect)
		for y := range img.Height {
			for x := range img.Width {
				p := img.At(x, y)
				c := color.NRGBA64{R: to16(p[0]), G: to16(p[1]), B: to16(p[2]), A: to16(p[3])}
				if opaque {
					c.A = 0xffff
				}
				out.SetNRGBA64(x, y, c)
			}
		}
		return out
	}

	out := image.NewNRGBA(rect)
	for y := range img.Height {
		row := img.Row(y)
		pix := out.Pix[y*out.Stride : y*out.Stride+img.Width*4]
		for i, v := range row {
			pix[i] = to8(v)
		}
		if opaque {
			for i := 3; i < len(pix); i += 4 {
				pix[i] = 0xff
			}
		}
	}
	return out
}
